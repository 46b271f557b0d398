// Package pipeline turns uploaded or watched spreadsheet files into the live graph:
// it decodes the rows, keeps them in a dataset, builds the selected network and hands
// the result to the view.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/ritzau/emotion-graph/pkg/dataset"
	"github.com/ritzau/emotion-graph/pkg/graph"
	"github.com/ritzau/emotion-graph/pkg/logging"
	"github.com/ritzau/emotion-graph/pkg/model"
	"github.com/ritzau/emotion-graph/pkg/tabular"
)

// ErrUnknownNetwork is returned when selecting a network the edge file does not contain
var ErrUnknownNetwork = errors.New("unknown network")

// ErrEmptyFile is returned for a file that decodes to zero rows
var ErrEmptyFile = errors.New("file has no rows")

// Sink receives the graphs the runner builds and its progress messages
type Sink interface {
	Rebuild(network string, g *model.Graph)
	SetStatus(text string, isError bool)
}

// Options configures a Run
type Options struct {
	Edges      string // edge file path, skipped when empty
	Attributes string // attribute file path, skipped when empty
	Reason     string // e.g., "initial load", "edges changed"
}

// Summary describes the dataset after a load
type Summary struct {
	Network       string             `json:"network"`
	Networks      []string           `json:"networks"`
	EdgeRows      int                `json:"edgeRows"`
	AttributeRows int                `json:"attributeRows"`
	Ready         bool               `json:"ready"`
	Nodes         int                `json:"nodes"`
	Links         int                `json:"links"`
	Diagnostics   []graph.Diagnostic `json:"diagnostics,omitempty"`
}

// Runner serializes loads and rebuilds
type Runner struct {
	dataset *dataset.Dataset
	sink    Sink
	idKey   string
	mu      sync.Mutex // one load at a time
	last    Summary
}

// NewRunner creates a runner feeding sink. idKey names the attribute id column.
func NewRunner(ds *dataset.Dataset, sink Sink, idKey string) *Runner {
	if idKey == "" {
		idKey = graph.DefaultIDKey
	}
	return &Runner{dataset: ds, sink: sink, idKey: idKey}
}

// Run reads the files named in opts and rebuilds the graph once both are loaded
func (r *Runner) Run(ctx context.Context, opts Options) (*Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	logging.InfoContext(ctx, "load started", "reason", opts.Reason)

	if opts.Edges != "" {
		if err := r.loadFileLocked(ctx, opts.Edges, r.setEdgesLocked, "edges"); err != nil {
			return nil, err
		}
	}
	if opts.Attributes != "" {
		if err := r.loadFileLocked(ctx, opts.Attributes, r.dataset.SetAttributes, "attributes"); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := r.rebuildLocked(ctx)
	logging.InfoContext(ctx, "load complete", "reason", opts.Reason, "ready", summary.Ready)
	return summary, nil
}

// LoadEdges decodes an uploaded edge file. name selects the decoder by extension.
func (r *Runner) LoadEdges(ctx context.Context, name string, src io.Reader) (*Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.decodeLocked(ctx, name, src, r.setEdgesLocked, "edges"); err != nil {
		return nil, err
	}
	return r.rebuildLocked(ctx), nil
}

// LoadAttributes decodes an uploaded attribute file
func (r *Runner) LoadAttributes(ctx context.Context, name string, src io.Reader) (*Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.decodeLocked(ctx, name, src, r.dataset.SetAttributes, "attributes"); err != nil {
		return nil, err
	}
	return r.rebuildLocked(ctx), nil
}

// Select displays another network of the loaded edge file
func (r *Runner) Select(ctx context.Context, network string) (*Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.dataset.Select(network) {
		return nil, errors.WithHintf(errors.Wrapf(ErrUnknownNetwork, "%q", network),
			"choose one of %v", r.dataset.Networks())
	}
	return r.rebuildLocked(ctx), nil
}

// Networks returns the network ids of the edge file and the selected one
func (r *Runner) Networks() (ids []string, selected string) {
	return r.dataset.Networks(), r.dataset.Selected()
}

// Summary returns the outcome of the last load
func (r *Runner) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.last
	s.Networks = append([]string(nil), s.Networks...)
	return s
}

func (r *Runner) setEdgesLocked(rows []tabular.Row) {
	networks := r.dataset.SetEdges(rows)
	logging.Debug("edge rows loaded", "rows", len(rows), "networks", len(networks))
}

func (r *Runner) loadFileLocked(ctx context.Context, path string, store func([]tabular.Row), kind string) error {
	f, err := os.Open(path)
	if err != nil {
		r.sink.SetStatus(fmt.Sprintf("Could not open %s", filepath.Base(path)), true)
		return errors.Wrapf(err, "opening %s file", kind)
	}
	defer f.Close()
	return r.decodeLocked(ctx, path, f, store, kind)
}

func (r *Runner) decodeLocked(ctx context.Context, name string, src io.Reader, store func([]tabular.Row), kind string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	format, err := tabular.DetectFormat(name)
	if err != nil {
		r.sink.SetStatus(fmt.Sprintf("Unsupported %s file %s", kind, filepath.Base(name)), true)
		return errors.WithHint(err, "upload a .csv or .xlsx file")
	}

	r.sink.SetStatus(fmt.Sprintf("Reading %s…", kind), false)
	rows, err := tabular.Read(src, format)
	if err != nil {
		r.sink.SetStatus(fmt.Sprintf("Could not read the %s file", kind), true)
		return errors.Wrapf(err, "reading %s", name)
	}
	if len(rows) == 0 {
		r.sink.SetStatus(fmt.Sprintf("The %s file has no rows", kind), true)
		return errors.Wrapf(ErrEmptyFile, "%s", name)
	}

	store(rows)
	logging.InfoContext(ctx, "file decoded", "kind", kind, "file", filepath.Base(name), "rows", len(rows))
	return nil
}

// rebuildLocked builds the selected network if both files are present
func (r *Runner) rebuildLocked(ctx context.Context) *Summary {
	edgeRows, attrRows := r.dataset.Counts()
	summary := &Summary{
		Network:       r.dataset.Selected(),
		Networks:      r.dataset.Networks(),
		EdgeRows:      edgeRows,
		AttributeRows: attrRows,
		Ready:         r.dataset.Ready(),
	}

	switch {
	case !summary.Ready && edgeRows > 0:
		r.sink.SetStatus("Edges ready. Now the attributes…", false)
	case !summary.Ready && attrRows > 0:
		r.sink.SetStatus("Attributes ready. Now the edges…", false)
	case !summary.Ready:
		r.sink.SetStatus("Upload the edges and attributes files", false)
	default:
		r.sink.SetStatus("Filtering and building the network…", false)
		network, edges, attrs := r.dataset.Current()
		result := graph.Build(edges, attrs, r.idKey)
		result.Graph.Network = network

		summary.Nodes = len(result.Graph.Nodes)
		summary.Links = len(result.Graph.Links)
		summary.Diagnostics = result.Diagnostics

		r.sink.Rebuild(network, result.Graph)
		logging.InfoContext(ctx, "network rebuilt", "network", network,
			"nodes", summary.Nodes, "links", summary.Links, "diagnostics", len(summary.Diagnostics))
	}

	r.last = *summary
	return summary
}
