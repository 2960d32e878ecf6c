// Command hizdemo builds Hi-Z pyramids for synthetic depth buffers and
// checks them against the CPU reference.
//
// Usage:
//
//	hizdemo [-config hizdemo.toml] [-strategy aggregated] [-frames 8] [-out dir] [-watch]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gogpu/hiz"
	"github.com/gogpu/hiz/backend"
	_ "github.com/gogpu/hiz/backend/native"
)

var logger = slog.New(newHandler("info"))

func newHandler(level string) *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          "hizdemo",
	})
	if lvl, err := log.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	}
	return l
}

func main() {
	var (
		configPath = flag.String("config", "", "TOML config file")
		strategy   = flag.String("strategy", "", "override strategy: iterative or aggregated")
		reduction  = flag.String("reduction", "", "override reduction: max or min")
		backendArg = flag.String("backend", "", "override backend: "+fmt.Sprint(backend.Available())+" or auto")
		frames     = flag.Int("frames", 0, "override frame count")
		output     = flag.String("out", "", "write the last frame's levels as TIFF into this directory")
		watch      = flag.Bool("watch", false, "rerun whenever the config file changes")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	load := func() (Config, error) {
		cfg := DefaultConfig()
		if *configPath != "" {
			var err error
			if cfg, err = LoadConfig(*configPath); err != nil {
				return cfg, err
			}
		}
		override(&cfg, *strategy, *reduction, *backendArg, *frames, *output)
		if *verbose {
			cfg.LogLevel = "debug"
		}
		return cfg, cfg.Validate()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runOnce := func() bool {
		cfg, err := load()
		if err != nil {
			logger.Error("config", "err", err)
			return false
		}
		logger = slog.New(newHandler(cfg.LogLevel))
		hiz.SetLogger(logger)
		return execute(ctx, cfg)
	}

	ok := runOnce()
	if !*watch {
		if !ok {
			os.Exit(1)
		}
		return
	}
	if *configPath == "" {
		logger.Error("-watch needs -config")
		os.Exit(2)
	}
	logger.Info("watching config", "path", *configPath)
	if err := watchConfig(ctx, *configPath, func() { runOnce() }); err != nil {
		logger.Error("watch", "err", err)
		os.Exit(1)
	}
}

func override(cfg *Config, strategy, reduction, backendName string, frames int, output string) {
	if strategy != "" {
		cfg.Strategy = strategy
	}
	if reduction != "" {
		cfg.Reduction = reduction
	}
	if backendName != "" {
		cfg.Backend = backendName
	}
	if frames > 0 {
		cfg.Frames = frames
	}
	if output != "" {
		cfg.OutputDir = output
	}
}

func execute(ctx context.Context, cfg Config) bool {
	d, err := newDemo(cfg, logger)
	if err != nil {
		logger.Error("setup", "err", err)
		return false
	}
	defer d.close()

	res, err := d.run(ctx)
	if err != nil {
		logger.Error("run", "err", err)
		return false
	}
	s := res.Stats
	logger.Info("done",
		"frames", res.Frames,
		"dispatches", s.Dispatches,
		"barriers", s.Barriers,
		"sets_created", s.SetsCreated,
		"sets_reused", s.SetsReused,
		"pipelines", s.Pipelines,
		"files", len(res.Files),
	)
	if res.Mismatches > 0 {
		logger.Error("pyramids differ from the CPU reference", "levels", res.Mismatches)
		return false
	}
	return true
}
