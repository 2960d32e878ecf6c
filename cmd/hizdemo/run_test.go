package main

import (
	"context"
	"os"
	"testing"
	"time"

	"golang.org/x/image/tiff"

	"github.com/gogpu/hiz/internal/reduce"
)

func smallConfig(strategy string) Config {
	cfg := DefaultConfig()
	cfg.Backend = "software"
	cfg.Strategy = strategy
	cfg.Frames = 3
	cfg.Views = []ViewConfig{
		{Name: "main", Width: 96, Height: 54, Seed: 3, Occluders: 6},
		{Name: "odd", Width: 13, Height: 7, Seed: 4, Occluders: 2},
		{Name: "unit", Width: 1, Height: 1},
	}
	return cfg
}

func TestDemoMatchesReference(t *testing.T) {
	for _, strategy := range []string{"iterative", "aggregated"} {
		t.Run(strategy, func(t *testing.T) {
			cfg := smallConfig(strategy)
			cfg.Workers = 3
			d, err := newDemo(cfg, logger)
			if err != nil {
				t.Fatalf("newDemo() error = %v", err)
			}
			defer d.close()

			res, err := d.run(context.Background())
			if err != nil {
				t.Fatalf("run() error = %v", err)
			}
			if res.Frames != 3 {
				t.Errorf("Frames = %d, want 3", res.Frames)
			}
			if res.Mismatches != 0 {
				t.Errorf("Mismatches = %d, want 0", res.Mismatches)
			}
			if res.Stats.SetsReused == 0 {
				t.Error("SetsReused = 0, want binding sets reused across frames")
			}
		})
	}
}

func TestDemoWritesLevels(t *testing.T) {
	cfg := smallConfig("iterative")
	cfg.Frames = 1
	cfg.OutputDir = t.TempDir()
	cfg.Views = cfg.Views[:2]

	d, err := newDemo(cfg, logger)
	if err != nil {
		t.Fatalf("newDemo() error = %v", err)
	}
	defer d.close()
	res, err := d.run(context.Background())
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	// 96x54 has 7 levels, 13x7 has 4.
	if len(res.Files) != 11 {
		t.Fatalf("Files = %d, want 11", len(res.Files))
	}
	f, err := os.Open(res.Files[1])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := tiff.Decode(f)
	if err != nil {
		t.Fatalf("tiff.Decode() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 48 || b.Dy() != 27 {
		t.Errorf("level 1 bounds = %v, want 48x27", b)
	}
}

func TestSceneIsDeterministic(t *testing.T) {
	vc := ViewConfig{Name: "v", Width: 32, Height: 16, Seed: 9, Occluders: 5}
	a := newScene(vc).render(2)
	b := newScene(vc).render(2)
	if !a.Equal(b) {
		t.Error("render() differs for equal seeds")
	}
	for _, v := range a.Pix {
		if v <= 0 || v > 1 {
			t.Fatalf("depth %v outside (0, 1]", v)
		}
	}
}

func TestGray16(t *testing.T) {
	m := reduce.NewImage(3, 1)
	m.Pix = []float32{-1, 0.5, 2}
	g := gray16(m)
	want := []uint16{0, 32768, 65535}
	for x, w := range want {
		if got := g.Gray16At(x, 0).Y; got != w {
			t.Errorf("gray16(%v) = %d, want %d", m.Pix[x], got, w)
		}
	}
}

func TestWrap(t *testing.T) {
	tests := []struct{ v, n, want int }{
		{5, 4, 1},
		{-1, 4, 3},
		{0, 4, 0},
		{-9, 4, 3},
	}
	for _, tt := range tests {
		if got := wrap(tt.v, tt.n); got != tt.want {
			t.Errorf("wrap(%d, %d) = %d, want %d", tt.v, tt.n, got, tt.want)
		}
	}
}

func TestWatchConfigReloads(t *testing.T) {
	path := writeConfig(t, "frames = 1\n")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reloaded := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- watchConfig(ctx, path, func() {
			select {
			case reloaded <- struct{}{}:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("frames = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-reloaded:
	case <-ctx.Done():
		t.Fatal("reload not called before timeout")
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("watchConfig() error = %v", err)
	}
}
