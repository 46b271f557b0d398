package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/ritzau/emotion-graph/pkg/animation"
	"github.com/ritzau/emotion-graph/pkg/view"
)

const (
	// DefaultFile is the optional configuration file read from the working directory
	DefaultFile = "emotion-graph.toml"

	envPrefix = "EMOTION_GRAPH_"
)

// Config holds all configuration for the application
type Config struct {
	WebMode     bool   `koanf:"web"`
	Port        int    `koanf:"port"`
	OpenBrowser bool   `koanf:"open"`
	Watch       bool   `koanf:"watch"`
	Edges       string `koanf:"edges"`
	Attributes  string `koanf:"attributes"`
	Network     string `koanf:"network"`
	IDKey       string `koanf:"id-key"`

	AnalysisURL     string        `koanf:"analysis-url"`
	AnalysisTimeout time.Duration `koanf:"analysis-timeout"`
	AnalysisRate    float64       `koanf:"analysis-rate"`

	InterStepDelay  time.Duration `koanf:"inter-step-delay"`
	RevealDuration  time.Duration `koanf:"reveal-duration"`
	FrameRate       float64       `koanf:"frame-rate"`
	FlashDuration   time.Duration `koanf:"flash-duration"`
	FocusTransition time.Duration `koanf:"focus-transition"`
	FitTransition   time.Duration `koanf:"fit-transition"`

	Verbosity  string `koanf:"verbosity"`
	VerboseCnt int    `koanf:"verbose"`
	LogFormat  string `koanf:"log-format"`
}

// Defaults returns the built-in configuration values
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"web":              false,
		"port":             8080,
		"open":             true,
		"watch":            false,
		"edges":            "",
		"attributes":       "",
		"network":          "",
		"id-key":           "user_name",
		"analysis-url":     "http://localhost:8000",
		"analysis-timeout": "30s",
		"analysis-rate":    2.0,
		"inter-step-delay": "2s",
		"reveal-duration":  "1s",
		"frame-rate":       60.0,
		"flash-duration":   "9s",
		"focus-transition": "1500ms",
		"fit-transition":   "400ms",
		"verbosity":        "",
		"verbose":          0,
		"log-format":       "compact",
	}
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	return LoadFile(f, DefaultFile)
}

// LoadFile is Load with an explicit configuration file path
func LoadFile(f *pflag.FlagSet, path string) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(makeMapProvider(Defaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional)
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, errors.WithHintf(errors.Wrapf(err, "failed to load %s", path),
					"fix or remove %s", path)
			}
		}
	}

	// 3. Environment Variables
	// Prefix: EMOTION_GRAPH_ (e.g., EMOTION_GRAPH_ANALYSIS_URL=http://host:8000)
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, envPrefix)), "_", "-")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// Unmarshal into struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can work with
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.Newf("invalid port %d", c.Port)
	}
	if c.FrameRate < 0 {
		return errors.Newf("frame-rate must not be negative, got %v", c.FrameRate)
	}
	if c.AnalysisRate < 0 {
		return errors.Newf("analysis-rate must not be negative, got %v", c.AnalysisRate)
	}
	for name, d := range map[string]time.Duration{
		"analysis-timeout": c.AnalysisTimeout,
		"inter-step-delay": c.InterStepDelay,
		"reveal-duration":  c.RevealDuration,
		"flash-duration":   c.FlashDuration,
		"focus-transition": c.FocusTransition,
		"fit-transition":   c.FitTransition,
	} {
		if d < 0 {
			return errors.Newf("%s must not be negative, got %s", name, d)
		}
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "compact", "json":
	default:
		return errors.WithHint(errors.Newf("unknown log format %q", c.LogFormat), "use compact or json")
	}
	return nil
}

// Animation returns the animation timing
func (c *Config) Animation() animation.Config {
	var frame time.Duration
	if c.FrameRate > 0 {
		frame = time.Duration(float64(time.Second) / c.FrameRate)
	}
	return animation.Config{
		InterStepDelay: c.InterStepDelay,
		RevealDuration: c.RevealDuration,
		FrameInterval:  frame,
	}
}

// View returns the view timing
func (c *Config) View() view.Config {
	v := view.DefaultConfig()
	v.Animation = c.Animation()
	v.FlashDuration = c.FlashDuration
	v.FocusTransition = c.FocusTransition
	v.FitDuration = c.FitTransition
	return v
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
