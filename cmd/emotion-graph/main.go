package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"

	"github.com/ritzau/emotion-graph/pkg/analysis"
	"github.com/ritzau/emotion-graph/pkg/clock"
	"github.com/ritzau/emotion-graph/pkg/config"
	"github.com/ritzau/emotion-graph/pkg/dataset"
	"github.com/ritzau/emotion-graph/pkg/logging"
	"github.com/ritzau/emotion-graph/pkg/model"
	"github.com/ritzau/emotion-graph/pkg/output"
	"github.com/ritzau/emotion-graph/pkg/pipeline"
	"github.com/ritzau/emotion-graph/pkg/view"
	"github.com/ritzau/emotion-graph/pkg/watcher"
	"github.com/ritzau/emotion-graph/pkg/web"
)

func main() {
	f := pflag.NewFlagSet("emotion-graph", pflag.ExitOnError)
	f.Bool("web", false, "Start web server instead of printing a report to the console")
	f.Int("port", 8080, "Port for web server (only used with --web)")
	f.Bool("open", true, "Open the browser when the web server starts")
	f.Bool("watch", false, "Reload the data files when they change")
	f.String("edges", "", "Edge file (.csv or .xlsx) with source, target and optional network_id columns")
	f.String("attributes", "", "Attribute file (.csv or .xlsx) with one row per user")
	f.String("network", "", "Network to display (default: the first one in the edge file)")
	f.String("id-key", "user_name", "Attribute column holding the user id")
	f.String("analysis-url", analysis.DefaultBaseURL, "Base URL of the message analysis service")
	f.Duration("analysis-timeout", analysis.DefaultTimeout, "Timeout of one analysis request")
	f.Float64("analysis-rate", analysis.DefaultRate, "Analysis requests per second (0 = unlimited)")
	f.Duration("inter-step-delay", 2*time.Second, "Time between two propagation steps")
	f.Duration("reveal-duration", time.Second, "Time a link takes to light up")
	f.Float64("frame-rate", 60, "Animation frames per second (0 = every tick)")
	f.Duration("flash-duration", 9*time.Second, "How long a focused user flashes")
	f.Duration("focus-transition", 1500*time.Millisecond, "Camera transition to a focused user")
	f.Duration("fit-transition", 400*time.Millisecond, "Camera transition when fitting the whole graph")
	f.String("verbosity", "", "Log level: error, warn, info, debug or trace")
	f.CountP("verbose", "v", "Increase log verbosity (-v debug, -vv trace)")
	f.String("log-format", "compact", "Log format: compact or json")
	f.Parse(os.Args[1:])

	cfg, err := config.Load(f)
	if err != nil {
		fail(err)
	}
	logging.Setup(os.Stderr, logging.ParseLevel(cfg.Verbosity, cfg.VerboseCnt), cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.WebMode {
		err = runWeb(ctx, cfg)
	} else {
		err = runReport(ctx, cfg)
	}
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if hint := errors.FlattenHints(err); hint != "" {
		fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	}
	os.Exit(1)
}

// reportSink keeps the graph the runner builds for the console report
type reportSink struct {
	graph *model.Graph
}

func (s *reportSink) Rebuild(network string, g *model.Graph) {
	s.graph = g
}

func (s *reportSink) SetStatus(text string, isError bool) {
	if isError {
		logging.Warn(text)
	} else {
		logging.Debug(text)
	}
}

func runReport(ctx context.Context, cfg *config.Config) error {
	if cfg.Edges == "" || cfg.Attributes == "" {
		return errors.WithHint(errors.New("no data files"),
			"pass --edges and --attributes, or --web to upload them in the browser")
	}

	sink := &reportSink{}
	runner := pipeline.NewRunner(dataset.New(), sink, cfg.IDKey)
	if _, err := runner.Run(ctx, pipeline.Options{
		Edges:      cfg.Edges,
		Attributes: cfg.Attributes,
		Reason:     "report",
	}); err != nil {
		return err
	}
	if cfg.Network != "" {
		if _, err := runner.Select(ctx, cfg.Network); err != nil {
			return err
		}
	}

	output.PrintGraphReport(os.Stdout, runner.Summary(), sink.graph)
	return nil
}

func runWeb(ctx context.Context, cfg *config.Config) error {
	pub := web.NewPublisher()
	defer pub.Close()

	client := analysis.NewClient(
		analysis.WithBaseURL(cfg.AnalysisURL),
		analysis.WithTimeout(cfg.AnalysisTimeout),
		analysis.WithRate(cfg.AnalysisRate),
	)
	controller := view.NewController(web.NewRenderer(pub), client, clock.New(), cfg.View())
	runner := pipeline.NewRunner(dataset.New(), controller, cfg.IDKey)
	server := web.NewServer(pub, controller, runner, web.WithHealthChecker(client))

	if cfg.Edges != "" || cfg.Attributes != "" {
		go initialLoad(ctx, cfg, runner)
	}
	if cfg.Watch {
		if err := startWatcher(ctx, cfg, runner); err != nil {
			logging.Warn("file watching disabled", "error", err)
		}
	}

	url := fmt.Sprintf("http://localhost:%d", cfg.Port)
	if cfg.OpenBrowser {
		go func() {
			// Wait a moment for server to start
			time.Sleep(500 * time.Millisecond)
			logging.Info("opening browser", "url", url)
			openBrowser(url)
		}()
	}

	logging.Info("analysis service", "url", client.BaseURL())
	return server.Start(ctx, cfg.Port)
}

func initialLoad(ctx context.Context, cfg *config.Config, runner *pipeline.Runner) {
	if _, err := runner.Run(ctx, pipeline.Options{
		Edges:      cfg.Edges,
		Attributes: cfg.Attributes,
		Reason:     "initial load",
	}); err != nil {
		logging.Warn("initial load failed", "error", err)
		return
	}
	if cfg.Network != "" {
		if _, err := runner.Select(ctx, cfg.Network); err != nil {
			logging.Warn("network selection failed", "network", cfg.Network, "error", err)
		}
	}
}

func startWatcher(ctx context.Context, cfg *config.Config, runner *pipeline.Runner) error {
	if cfg.Edges == "" && cfg.Attributes == "" {
		return errors.New("nothing to watch without --edges or --attributes")
	}
	fw, err := watcher.NewFileWatcher(cfg.Edges, cfg.Attributes)
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}

	debouncer := watcher.NewDebouncer(fw.Events(), 300*time.Millisecond, 2*time.Second)
	debouncer.Start(ctx)
	go watcher.Reload(ctx, debouncer.Output(), runner, cfg.Edges, cfg.Attributes)
	return nil
}

func openBrowser(url string) {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "linux":
		cmd = "xdg-open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		logging.Warn("cannot open browser on this platform", "os", runtime.GOOS)
		return
	}

	if err := exec.Command(cmd, args...).Start(); err != nil {
		logging.Warn("failed to open browser", "error", err)
	}
}
