package watcher

import (
	"context"
	"fmt"

	"github.com/ritzau/emotion-graph/pkg/logging"
	"github.com/ritzau/emotion-graph/pkg/pipeline"
)

// ReloadOptions maps a change to the files the pipeline must read again. Only the
// changed file is re-read; the other one stays as loaded.
func ReloadOptions(event ChangeEvent, edges, attributes string) pipeline.Options {
	opts := pipeline.Options{
		Reason: fmt.Sprintf("%s changed", event.Type),
	}

	switch event.Type {
	case ChangeTypeEdges:
		// A new edge file resets the network selection
		opts.Edges = edges
	case ChangeTypeAttributes:
		opts.Attributes = attributes
	}
	return opts
}

// Loader reads data files into the live graph
type Loader interface {
	Run(ctx context.Context, opts pipeline.Options) (*pipeline.Summary, error)
}

// Reload runs loader for every change until events is closed
func Reload(ctx context.Context, events <-chan ChangeEvent, loader Loader, edges, attributes string) {
	for event := range events {
		opts := ReloadOptions(event, edges, attributes)
		logging.Info("reloading", "reason", opts.Reason, "paths", len(event.Paths))
		if _, err := loader.Run(ctx, opts); err != nil {
			logging.Warn("reload failed", "reason", opts.Reason, "error", err)
		}
	}
}
