package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"prex/internal/config"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, config.FileName)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	if cfg.Trace.Level != "off" || cfg.Trace.Mode != "stream" || cfg.Trace.Output != "-" {
		t.Fatalf("trace defaults = %+v", cfg.Trace)
	}
	if cfg.Report.Color != "auto" {
		t.Fatalf("report color default = %q, want auto", cfg.Report.Color)
	}
	if cfg.Analysis.MaxIterations != 0 || cfg.Analysis.Parallelism != 0 {
		t.Fatalf("analysis defaults = %+v, want zero (driver picks)", cfg.Analysis)
	}
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[analysis]
entries = ["process", "consume"]
max-iterations = 5
parallelism = 2

[trace]
level = "phase"
mode = "both"
output = "trace.ndjson"
ring-size = 128

[report]
color = "off"
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Analysis.Entries) != 2 || cfg.Analysis.Entries[0] != "process" {
		t.Fatalf("entries = %v", cfg.Analysis.Entries)
	}
	if cfg.Analysis.MaxIterations != 5 || cfg.Analysis.Parallelism != 2 {
		t.Fatalf("analysis = %+v", cfg.Analysis)
	}
	if cfg.Trace.Level != "phase" || cfg.Trace.Mode != "both" || cfg.Trace.RingSize != 128 {
		t.Fatalf("trace = %+v", cfg.Trace)
	}
	if cfg.Report.Color != "off" {
		t.Fatalf("color = %q", cfg.Report.Color)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "[analysis]\nmax-iterations = 7\n")
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Analysis.MaxIterations != 7 {
		t.Fatalf("max-iterations = %d, want 7", cfg.Analysis.MaxIterations)
	}
	if cfg.Trace.Level != "off" || cfg.Report.Color != "auto" {
		t.Fatalf("defaults not preserved: trace=%+v report=%+v", cfg.Trace, cfg.Report)
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "[analysis]\nmax-iters = 7\n")
	_, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Fatalf("Load = %v, want unknown key error", err)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"negative iterations", "[analysis]\nmax-iterations = -1\n", "max-iterations"},
		{"negative parallelism", "[analysis]\nparallelism = -2\n", "parallelism"},
		{"bad level", "[trace]\nlevel = \"loud\"\n", "invalid trace level"},
		{"bad mode", "[trace]\nmode = \"spool\"\n", "invalid storage mode"},
		{"negative ring", "[trace]\nring-size = -1\n", "ring-size"},
		{"bad color", "[report]\ncolor = \"maybe\"\n", "color"},
		{"not toml", "analysis = [\n", "failed to parse TOML"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tc.body)
			_, err := config.Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Load = %v, want error mentioning %q", err, tc.want)
			}
		})
	}
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	want := writeConfig(t, root, "[report]\ncolor = \"on\"\n")

	got, ok, err := config.Find(nested)
	if err != nil || !ok {
		t.Fatalf("Find = (%q, %v, %v), want the manifest", got, ok, err)
	}
	if got != want {
		t.Fatalf("Find = %q, want %q", got, want)
	}

	// Starting at the manifest's own directory finds it too.
	got, ok, err = config.Find(root)
	if err != nil || !ok || got != want {
		t.Fatalf("Find(root) = (%q, %v, %v), want %q", got, ok, err, want)
	}
}

func TestFindNothing(t *testing.T) {
	_, ok, err := config.Find(t.TempDir())
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if ok {
		t.Fatal("Find reported a manifest in an empty tree")
	}
}
