// Package watcher reloads the edge and attribute files when they change on disk.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ritzau/emotion-graph/pkg/logging"
)

// ChangeType represents the type of file change detected
type ChangeType int

const (
	ChangeTypeEdges ChangeType = iota
	ChangeTypeAttributes
)

func (t ChangeType) String() string {
	switch t {
	case ChangeTypeEdges:
		return "edges"
	case ChangeTypeAttributes:
		return "attributes"
	default:
		return fmt.Sprintf("ChangeType(%d)", int(t))
	}
}

// batchWindow groups the burst of events a single save produces
const batchWindow = 100 * time.Millisecond

// ChangeEvent represents a batch of file system changes
type ChangeEvent struct {
	Type      ChangeType
	Paths     []string
	Timestamp time.Time
}

// FileWatcher watches the edge and attribute files. It watches their directories
// so that editors replacing a file by rename are noticed too.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	files   map[string]ChangeType // cleaned absolute path -> type
	events  chan ChangeEvent
	once    sync.Once
}

// NewFileWatcher creates a watcher for the given files. Empty paths are ignored.
func NewFileWatcher(edges, attributes string) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	fw := &FileWatcher{
		watcher: watcher,
		files:   make(map[string]ChangeType),
		events:  make(chan ChangeEvent, 100),
	}
	for path, t := range map[string]ChangeType{edges: ChangeTypeEdges, attributes: ChangeTypeAttributes} {
		if path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("resolving %s: %w", path, err)
		}
		fw.files[filepath.Clean(abs)] = t
	}
	return fw, nil
}

// Start begins watching for file changes
func (fw *FileWatcher) Start(ctx context.Context) error {
	dirs := make(map[string]bool)
	for path := range fw.files {
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := fw.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	logging.Info("started watching data files", "files", len(fw.files), "dirs", len(dirs))

	go fw.processEvents(ctx)
	return nil
}

// processEvents filters events to the watched files and batches them by type
func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer fw.close()

	pending := make(map[ChangeType][]string)

	flushTimer := time.NewTimer(batchWindow)
	flushTimer.Stop()

	flush := func() {
		for _, t := range []ChangeType{ChangeTypeEdges, ChangeTypeAttributes} {
			if len(pending[t]) == 0 {
				continue
			}
			fw.events <- ChangeEvent{Type: t, Paths: pending[t], Timestamp: time.Now()}
			delete(pending, t)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			t, watched := fw.files[filepath.Clean(event.Name)]
			if !watched {
				continue
			}
			logging.Trace("data file event", "path", event.Name, "op", event.Op.String())
			pending[t] = append(pending[t], event.Name)
			flushTimer.Reset(batchWindow)

		case <-flushTimer.C:
			flush()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

func (fw *FileWatcher) close() {
	fw.once.Do(func() {
		fw.watcher.Close()
		close(fw.events)
	})
}

// Events returns the channel of change events. It is closed when the watcher stops.
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}
