package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gogpu/hiz"
	"github.com/gogpu/hiz/backend"
	"github.com/gogpu/hiz/backend/software"
	"github.com/gogpu/hiz/internal/reduce"
)

type demoView struct {
	name  string
	view  hiz.View
	scene *scene
	owned []hiz.TextureViewID
}

// Result summarizes one demo run.
type Result struct {
	Frames     int
	Mismatches int
	Files      []string
	Stats      hiz.Stats
}

type demo struct {
	cfg     Config
	logger  *slog.Logger
	dev     backend.Backend
	sw      *software.Device
	builder *hiz.Builder
	op      reduce.Op
	views   []*demoView
}

func openBackend(cfg Config) (backend.Backend, error) {
	switch cfg.Backend {
	case "", "auto":
		return backend.Default()
	case backend.BackendSoftware:
		if cfg.Workers != 0 {
			return software.New(software.WithWorkers(cfg.Workers)), nil
		}
	}
	return backend.Get(cfg.Backend)
}

func newDemo(cfg Config, logger *slog.Logger) (*demo, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	dev, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}
	d := &demo{cfg: cfg, logger: logger, dev: dev, op: reduce.Max}
	if r, _ := hiz.ParseReduction(cfg.Reduction); r == hiz.ReduceMin {
		d.op = reduce.Min
	}
	d.sw, _ = dev.(*software.Device)

	d.builder, err = hiz.New(dev, append(opts, hiz.WithLogger(logger))...)
	if err != nil {
		dev.Close()
		return nil, err
	}
	for _, vc := range cfg.Views {
		v, err := d.addView(vc)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("view %s: %w", vc.Name, err)
		}
		d.views = append(d.views, v)
	}
	logger.Info("demo ready",
		"backend", dev.Name(),
		"strategy", d.builder.Strategy(),
		"views", len(d.views),
	)
	return d, nil
}

func (d *demo) addView(vc ViewConfig) (*demoView, error) {
	id, err := vc.ViewID()
	if err != nil {
		return nil, err
	}
	size := hiz.Extent{Width: vc.Width, Height: vc.Height}
	depth, err := d.dev.AllocateDepth(vc.Name+"_depth", size)
	if err != nil {
		return nil, err
	}
	chain, err := d.dev.AllocateChain(vc.Name+"_hiz", hiz.PlanLevels(vc.Width, vc.Height, d.cfg.MaxLevels))
	if err != nil {
		d.dev.ReleaseViews(depth)
		return nil, err
	}
	return &demoView{
		name:  vc.Name,
		scene: newScene(vc),
		owned: append([]hiz.TextureViewID{depth}, chain...),
		view: hiz.View{
			ID:      id,
			Depth:   &hiz.DepthSource{View: depth, Size: size},
			Prepass: &hiz.PrepassTextures{Levels: chain},
		},
	}, nil
}

// run renders and reduces every configured frame.
func (d *demo) run(ctx context.Context) (Result, error) {
	var res Result
	views := make([]hiz.View, len(d.views))
	for i, v := range d.views {
		views[i] = v.view
	}

	for frame := uint64(1); frame <= uint64(d.cfg.Frames); frame++ {
		sources := make(map[hiz.ViewID]*reduce.Image, len(d.views))
		if d.sw != nil {
			for _, v := range d.views {
				img := v.scene.render(frame)
				if err := d.sw.Upload(v.view.Depth.View, img.Pix); err != nil {
					return res, fmt.Errorf("frame %d: upload %s: %w", frame, v.name, err)
				}
				sources[v.view.ID] = img
			}
		}

		start := time.Now()
		report, err := d.builder.Run(ctx, frame, views)
		if err != nil {
			return res, fmt.Errorf("frame %d: %w", frame, err)
		}
		for _, ve := range report.Unavailable {
			d.logger.Warn("view has no pyramid", "frame", frame, "view", ve.View, "err", ve.Err)
		}
		d.logger.Debug("frame built",
			"frame", frame,
			"prepared", len(report.Prepared),
			"skipped", len(report.Skipped),
			"elapsed", time.Since(start),
		)
		res.Frames++

		if d.sw == nil {
			continue
		}
		if d.cfg.Verify {
			res.Mismatches += d.verify(report, sources)
		}
		if d.cfg.OutputDir != "" && frame == uint64(d.cfg.Frames) {
			files, err := d.dump(report)
			res.Files = append(res.Files, files...)
			if err != nil {
				return res, err
			}
		}
	}
	res.Stats = d.builder.Stats()
	return res, nil
}

// verify compares every prepared pyramid with the CPU reference and returns
// the number of mismatching levels.
func (d *demo) verify(report *hiz.FrameReport, sources map[hiz.ViewID]*reduce.Image) int {
	bad := 0
	for _, p := range report.Prepared {
		src, ok := sources[p.View]
		if !ok {
			continue
		}
		got, err := d.sw.ReadbackPyramid(p)
		if err != nil {
			d.logger.Error("readback failed", "view", p.View, "err", err)
			bad++
			continue
		}
		want := reduce.Pyramid(src, len(p.Levels), d.op)
		for i := range want {
			if !got[i].Equal(want[i]) {
				d.logger.Error("level mismatch", "frame", report.Frame, "view", p.View, "level", i)
				bad++
			}
		}
	}
	return bad
}

func (d *demo) dump(report *hiz.FrameReport) ([]string, error) {
	var files []string
	for _, p := range report.Prepared {
		levels, err := d.sw.ReadbackPyramid(p)
		if err != nil {
			return files, err
		}
		name := d.viewName(p.View)
		written, err := writeLevels(filepath.Join(d.cfg.OutputDir, name), fmt.Sprintf("frame%03d", report.Frame), levels)
		files = append(files, written...)
		if err != nil {
			return files, fmt.Errorf("dump %s: %w", name, err)
		}
		d.logger.Info("levels written", "view", name, "files", len(written))
	}
	return files, nil
}

func (d *demo) viewName(id hiz.ViewID) string {
	for _, v := range d.views {
		if v.view.ID == id {
			return v.name
		}
	}
	return id.String()
}

func (d *demo) close() {
	if d.builder != nil {
		if err := d.builder.Close(); err != nil {
			d.logger.Warn("close builder", "err", err)
		}
	}
	for _, v := range d.views {
		d.dev.ReleaseViews(v.owned...)
	}
	d.dev.Close()
}
