package watcher

import (
	"context"
	"time"

	"github.com/ritzau/emotion-graph/pkg/logging"
)

// Debouncer batches rapid file system events so a file being written in several
// chunks triggers one reload
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a new event debouncer. A batch is flushed after quietPeriod
// without events, or maxWait after its first event at the latest.
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins processing events with debouncing
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

func (d *Debouncer) run(ctx context.Context) {
	defer close(d.output)

	var (
		quiet       <-chan time.Time
		deadline    <-chan time.Time
		quietTimer  *time.Timer
		maxTimer    *time.Timer
		accumulated = make(map[ChangeType][]string)
		eventCount  int
	)

	stopTimers := func() {
		if quietTimer != nil {
			quietTimer.Stop()
		}
		if maxTimer != nil {
			maxTimer.Stop()
		}
		quiet, deadline = nil, nil
		quietTimer, maxTimer = nil, nil
	}

	flush := func() {
		stopTimers()
		if eventCount == 0 {
			return
		}

		logging.Debug("flushing accumulated events", "count", eventCount)

		// Edges first: they decide which network the attributes are joined to
		for _, t := range []ChangeType{ChangeTypeEdges, ChangeTypeAttributes} {
			if paths := accumulated[t]; len(paths) > 0 {
				d.output <- ChangeEvent{Type: t, Paths: paths, Timestamp: time.Now()}
			}
		}

		accumulated = make(map[ChangeType][]string)
		eventCount = 0
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				return
			}

			accumulated[event.Type] = append(accumulated[event.Type], event.Paths...)
			eventCount++

			// Reset quiet period timer
			if quietTimer != nil {
				quietTimer.Stop()
			}
			quietTimer = time.NewTimer(d.quietPeriod)
			quiet = quietTimer.C

			// Start max wait timer on first event
			if maxTimer == nil {
				maxTimer = time.NewTimer(d.maxWait)
				deadline = maxTimer.C
			}

		case <-quiet:
			flush()

		case <-deadline:
			flush()
		}
	}
}

// Output returns the channel of debounced events
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}
