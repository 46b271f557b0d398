// trace-check prints a saved propagation log the way the animation would play it,
// optionally resolving every step against a network loaded from disk.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"

	"github.com/ritzau/emotion-graph/pkg/animation"
	"github.com/ritzau/emotion-graph/pkg/dataset"
	"github.com/ritzau/emotion-graph/pkg/graph"
	"github.com/ritzau/emotion-graph/pkg/logging"
	"github.com/ritzau/emotion-graph/pkg/model"
	"github.com/ritzau/emotion-graph/pkg/output"
	"github.com/ritzau/emotion-graph/pkg/pipeline"
	"github.com/ritzau/emotion-graph/pkg/trace"
)

type graphSink struct {
	graph *model.Graph
}

func (s *graphSink) Rebuild(network string, g *model.Graph) { s.graph = g }
func (s *graphSink) SetStatus(text string, isError bool)    {}

func main() {
	f := pflag.NewFlagSet("trace-check", pflag.ExitOnError)
	f.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: trace-check [flags] <log.json | ->")
		f.PrintDefaults()
	}
	seed := f.String("seed", "", "User that published the message, used when the log has no seed event")
	edges := f.String("edges", "", "Edge file to resolve the steps against")
	attributes := f.String("attributes", "", "Attribute file to resolve the steps against")
	network := f.String("network", "", "Network to resolve the steps against (default: the first one)")
	idKey := f.String("id-key", "user_name", "Attribute column holding the user id")
	delay := f.Duration("inter-step-delay", 2*time.Second, "Time between two propagation steps")
	reveal := f.Duration("reveal-duration", time.Second, "Time a link takes to light up")
	strict := f.Bool("strict", false, "Exit with status 1 when a step has no link")
	verbose := f.CountP("verbose", "v", "Increase log verbosity")
	f.Parse(os.Args[1:])

	if f.NArg() != 1 {
		f.Usage()
		os.Exit(2)
	}
	logging.Setup(os.Stderr, logging.ParseLevel("", *verbose), "compact")

	tr, err := loadTrace(f.Arg(0), *seed)
	if err != nil {
		fail(err)
	}

	var ix *graph.Index
	if *edges != "" || *attributes != "" {
		ix, err = loadNetwork(*edges, *attributes, *network, *idKey)
		if err != nil {
			fail(err)
		}
	}

	cfg := animation.Config{InterStepDelay: *delay, RevealDuration: *reveal}
	misses := output.PrintTraceReport(os.Stdout, tr, ix, cfg)
	if *strict && misses > 0 {
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if hint := errors.FlattenHints(err); hint != "" {
		fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	}
	os.Exit(1)
}

func loadTrace(path, seed string) (*trace.Trace, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, errors.Wrap(err, "read log")
	}

	raw, err := trace.Decode(data)
	if err != nil {
		return nil, err
	}
	tr, err := trace.Normalize(raw)
	if errors.Is(err, trace.ErrMissingSeedEvent) {
		if seed == "" {
			logging.Warn("log has no unique seed event", "hint", "pass --seed")
			return tr, nil
		}
		return tr.WithSeed(trace.Seed{UserID: seed}), nil
	}
	return tr, err
}

func loadNetwork(edges, attributes, network, idKey string) (*graph.Index, error) {
	if edges == "" || attributes == "" {
		return nil, errors.WithHint(errors.New("incomplete network"),
			"pass both --edges and --attributes")
	}
	sink := &graphSink{}
	runner := pipeline.NewRunner(dataset.New(), sink, idKey)
	ctx := context.Background()
	if _, err := runner.Run(ctx, pipeline.Options{Edges: edges, Attributes: attributes, Reason: "trace check"}); err != nil {
		return nil, err
	}
	if network != "" {
		if _, err := runner.Select(ctx, network); err != nil {
			return nil, err
		}
	}
	if sink.graph == nil {
		return nil, errors.New("network could not be built")
	}
	return graph.NewIndex(sink.graph), nil
}
