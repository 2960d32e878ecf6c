package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/hiz"
)

// viewNamespace derives stable view IDs from view names.
var viewNamespace = uuid.MustParse("6f1d8a52-3c0b-4e8e-9a7d-2b64c1f0e5a3")

// Config is the demo configuration file.
//
//	strategy = "aggregated"
//	frames = 4
//
//	[[view]]
//	name = "main"
//	width = 1024
//	height = 768
type Config struct {
	Backend   string `toml:"backend"`
	Strategy  string `toml:"strategy"`
	Reduction string `toml:"reduction"`
	MaxLevels int    `toml:"max_levels"`
	Sampler   bool   `toml:"sampler"`
	Frames    int    `toml:"frames"`
	// Workers is the number of CPU workers of the software backend; 0 runs
	// kernels on the submitting goroutine.
	Workers   int          `toml:"workers"`
	Verify    bool         `toml:"verify"`
	OutputDir string       `toml:"output_dir"`
	LogLevel  string       `toml:"log_level"`
	Views     []ViewConfig `toml:"view"`
}

// ViewConfig describes one synthetic view.
type ViewConfig struct {
	Name   string `toml:"name"`
	ID     string `toml:"id"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	Seed   uint64 `toml:"seed"`
	// Occluders is the number of random boxes drawn into the depth buffer.
	Occluders int `toml:"occluders"`
}

// DefaultConfig returns the configuration used without a config file.
func DefaultConfig() Config {
	return Config{
		Backend:   "software",
		Strategy:  hiz.StrategyIterative.String(),
		Reduction: hiz.ReduceMax.String(),
		MaxLevels: hiz.MaxLevels,
		Frames:    3,
		Verify:    true,
		LogLevel:  "info",
		Views: []ViewConfig{
			{Name: "main", Width: 1024, Height: 768, Seed: 1, Occluders: 24},
			{Name: "shadow", Width: 8, Height: 8, Seed: 2, Occluders: 2},
		},
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig. A [[view]] table in
// the file replaces the default views.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	views := cfg.Views
	cfg.Views = nil
	if err := toml.Unmarshal(data, &cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return cfg, fmt.Errorf("parse %s:%d:%d: %w", path, row, col, err)
		}
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cfg.Views) == 0 {
		cfg.Views = views
	}
	return cfg, cfg.Validate()
}

// Validate checks values that the builder does not check itself.
func (c *Config) Validate() error {
	if _, err := hiz.ParseStrategy(c.Strategy); err != nil {
		return err
	}
	if _, err := hiz.ParseReduction(c.Reduction); err != nil {
		return err
	}
	if c.Frames < 1 {
		return fmt.Errorf("frames must be at least 1, got %d", c.Frames)
	}
	if len(c.Views) == 0 {
		return errors.New("no views configured")
	}
	seen := make(map[hiz.ViewID]string)
	for i, v := range c.Views {
		if v.Width == 0 || v.Height == 0 {
			return fmt.Errorf("view %d (%s): empty size %dx%d", i, v.Name, v.Width, v.Height)
		}
		id, err := v.ViewID()
		if err != nil {
			return fmt.Errorf("view %d (%s): %w", i, v.Name, err)
		}
		if other, ok := seen[id]; ok {
			return fmt.Errorf("view %d (%s): id %s already used by %s", i, v.Name, id, other)
		}
		seen[id] = v.Name
	}
	return nil
}

// Options converts the configuration to builder options.
func (c *Config) Options() ([]hiz.Option, error) {
	s, err := hiz.ParseStrategy(c.Strategy)
	if err != nil {
		return nil, err
	}
	r, err := hiz.ParseReduction(c.Reduction)
	if err != nil {
		return nil, err
	}
	return []hiz.Option{
		hiz.WithStrategy(s),
		hiz.WithReduction(r),
		hiz.WithMaxLevels(c.MaxLevels),
		hiz.WithSampler(c.Sampler),
	}, nil
}

// ViewID returns the configured ID, or one derived from the view name.
func (v ViewConfig) ViewID() (hiz.ViewID, error) {
	if v.ID != "" {
		return hiz.ParseViewID(v.ID)
	}
	return hiz.ViewID(uuid.NewSHA1(viewNamespace, []byte(v.Name))), nil
}
