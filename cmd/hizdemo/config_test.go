package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/hiz"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hizdemo.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if _, err := cfg.Options(); err != nil {
		t.Errorf("Options() error = %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
strategy = "aggregated"
reduction = "min"
frames = 5
verify = false

[[view]]
name = "cascade0"
width = 640
height = 360
seed = 7

[[view]]
name = "cascade1"
id = "0b9f3c1e-5d2a-4c1b-8f3e-7a6d5c4b3a29"
width = 33
height = 17
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Strategy != "aggregated" || cfg.Reduction != "min" {
		t.Errorf("strategy, reduction = %q, %q, want aggregated, min", cfg.Strategy, cfg.Reduction)
	}
	if cfg.Frames != 5 {
		t.Errorf("Frames = %d, want 5", cfg.Frames)
	}
	if cfg.Verify {
		t.Error("Verify = true, want false")
	}
	if cfg.MaxLevels != hiz.MaxLevels {
		t.Errorf("MaxLevels = %d, want default %d", cfg.MaxLevels, hiz.MaxLevels)
	}
	if len(cfg.Views) != 2 {
		t.Fatalf("Views = %d, want 2", len(cfg.Views))
	}
	id, err := cfg.Views[1].ViewID()
	if err != nil {
		t.Fatalf("ViewID() error = %v", err)
	}
	if got := id.String(); got != "0b9f3c1e-5d2a-4c1b-8f3e-7a6d5c4b3a29" {
		t.Errorf("ViewID() = %s, want configured id", got)
	}
}

func TestLoadConfigKeepsDefaultViews(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "frames = 2\n"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if got, want := len(cfg.Views), len(DefaultConfig().Views); got != want {
		t.Errorf("Views = %d, want %d", got, want)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"syntax", "frames = = 2\n", "parse"},
		{"strategy", "strategy = \"pyramid\"\n", "strategy"},
		{"frames", "frames = -1\n", "frames"},
		{"empty view", "[[view]]\nname = \"a\"\nwidth = 0\nheight = 4\n", "empty size"},
		{"duplicate", "[[view]]\nname = \"a\"\nwidth = 4\nheight = 4\n[[view]]\nname = \"a\"\nwidth = 8\nheight = 8\n", "already used"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadConfig() error = %v, want containing %q", err, tt.want)
			}
		})
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("LoadConfig(missing) error = nil")
	}
}

func TestViewIDIsStable(t *testing.T) {
	a, _ := ViewConfig{Name: "main"}.ViewID()
	b, _ := ViewConfig{Name: "main"}.ViewID()
	c, _ := ViewConfig{Name: "shadow"}.ViewID()
	if a != b {
		t.Errorf("ViewID(main) = %s then %s, want equal", a, b)
	}
	if a == c {
		t.Errorf("ViewID(main) = ViewID(shadow) = %s", a)
	}
}

func TestOverride(t *testing.T) {
	cfg := DefaultConfig()
	override(&cfg, "aggregated", "", "software", 9, "out")
	if cfg.Strategy != "aggregated" || cfg.Backend != "software" || cfg.Frames != 9 || cfg.OutputDir != "out" {
		t.Errorf("override() = %+v", cfg)
	}
	if cfg.Reduction != DefaultConfig().Reduction {
		t.Errorf("Reduction = %q, want unchanged", cfg.Reduction)
	}
}
