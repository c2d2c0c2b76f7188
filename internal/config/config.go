// Package config loads tool settings from prex.toml.
//
// Everything in the file is optional; flags override file values and the
// built-in defaults cover the rest. Unknown keys are refused so a typo
// never silently reverts a setting to its default.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"prex/internal/trace"
)

// FileName is the manifest the tool looks for when no --config is given.
const FileName = "prex.toml"

// Config mirrors prex.toml.
type Config struct {
	Analysis AnalysisConfig `toml:"analysis"`
	Trace    TraceConfig    `toml:"trace"`
	Report   ReportConfig   `toml:"report"`
}

// AnalysisConfig holds the [analysis] section.
type AnalysisConfig struct {
	// Entries lists the entry functions to analyze. Empty means every
	// function the fact script mentions.
	Entries []string `toml:"entries"`
	// MaxIterations bounds the refinement loop per function. Zero keeps
	// the driver default.
	MaxIterations int `toml:"max-iterations"`
	// Parallelism bounds concurrent function analyses. Zero means one
	// per CPU.
	Parallelism int `toml:"parallelism"`
}

// TraceConfig holds the [trace] section.
type TraceConfig struct {
	Level    string `toml:"level"`
	Mode     string `toml:"mode"`
	Output   string `toml:"output"`
	RingSize int    `toml:"ring-size"`
}

// ReportConfig holds the [report] section.
type ReportConfig struct {
	Color string `toml:"color"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Trace:  TraceConfig{Level: "off", Mode: "stream", Output: "-"},
		Report: ReportConfig{Color: "auto"},
	}
}

// Load reads a prex.toml, layered over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Analysis.MaxIterations < 0 {
		return fmt.Errorf("[analysis].max-iterations must not be negative, got %d", c.Analysis.MaxIterations)
	}
	if c.Analysis.Parallelism < 0 {
		return fmt.Errorf("[analysis].parallelism must not be negative, got %d", c.Analysis.Parallelism)
	}
	if _, err := trace.ParseLevel(c.Trace.Level); err != nil {
		return fmt.Errorf("[trace].level: %w", err)
	}
	if _, err := trace.ParseMode(c.Trace.Mode); err != nil {
		return fmt.Errorf("[trace].mode: %w", err)
	}
	if c.Trace.RingSize < 0 {
		return fmt.Errorf("[trace].ring-size must not be negative, got %d", c.Trace.RingSize)
	}
	switch c.Report.Color {
	case "auto", "on", "off":
	default:
		return fmt.Errorf("[report].color must be auto, on, or off, got %q", c.Report.Color)
	}
	return nil
}

// Find walks up from startDir to locate prex.toml.
func Find(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}
