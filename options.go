package hiz

import "log/slog"

// Option configures a Builder during creation.
//
// Example:
//
//	// Iterative max-reduction pyramid (the default)
//	b, err := hiz.New(device)
//
//	// Reversed-Z, single-dispatch pyramid on a device with enough
//	// storage-texture slots
//	b, err := hiz.New(device,
//	    hiz.WithStrategy(hiz.StrategyAggregated),
//	    hiz.WithReduction(hiz.ReduceMin))
type Option func(*config)

// config holds the build-time configuration of a Builder.
type config struct {
	strategy       Strategy
	reduction      Reduction
	maxLevels      int
	sampler        bool
	kernel         *Kernel
	framesInFlight int
	cacheSize      int
	logger         *slog.Logger
}

func defaultConfig() config {
	return config{
		strategy:       StrategyIterative,
		reduction:      ReduceMax,
		maxLevels:      MaxLevels,
		framesInFlight: 2,
		cacheSize:      32,
	}
}

// WithStrategy selects the dispatch strategy. The default is
// StrategyIterative.
func WithStrategy(s Strategy) Option {
	return func(c *config) {
		c.strategy = s
	}
}

// WithReduction selects the reduction operator. Use ReduceMin for
// reversed-Z depth.
func WithReduction(r Reduction) Option {
	return func(c *config) {
		c.reduction = r
	}
}

// WithMaxLevels lowers the level ceiling. Values are clamped to
// [1, MaxLevels].
func WithMaxLevels(n int) Option {
	return func(c *config) {
		c.maxLevels = n
	}
}

// WithSampler declares a sampler slot after the level images. Only the
// aggregated strategy reads through it.
func WithSampler(enabled bool) Option {
	return func(c *config) {
		c.sampler = enabled
	}
}

// WithKernel replaces the built-in iterative kernel. The kernel must bind
// the two-slot iterative layout and declare the 8x8x1 block size; New
// rejects it otherwise.
func WithKernel(k Kernel) Option {
	return func(c *config) {
		c.kernel = &k
	}
}

// WithFramesInFlight sets how many frames the GPU may still be executing
// when a new frame is prepared. Binding sets replaced in frame N are
// destroyed when frame N+n is prepared.
func WithFramesInFlight(n int) Option {
	return func(c *config) {
		c.framesInFlight = n
	}
}

// WithPipelineCacheSize bounds the number of compiled pipeline shapes kept.
// 0 means unbounded.
func WithPipelineCacheSize(n int) Option {
	return func(c *config) {
		c.cacheSize = n
	}
}

// WithLogger installs l as the package logger (see SetLogger) and hands it
// to the device.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// validate checks option values that do not depend on the device.
func (c *config) validate() error {
	if c.strategy != StrategyIterative && c.strategy != StrategyAggregated {
		return configError("unknown strategy %d", c.strategy)
	}
	if c.reduction != ReduceMax && c.reduction != ReduceMin {
		return configError("unknown reduction %d", c.reduction)
	}
	if c.kernel != nil && c.strategy != StrategyIterative {
		return configError("custom kernels are only supported with the %s strategy", StrategyIterative)
	}
	if c.framesInFlight < 1 {
		return configError("frames in flight must be at least 1, got %d", c.framesInFlight)
	}
	if c.cacheSize < 0 {
		return configError("pipeline cache size must not be negative, got %d", c.cacheSize)
	}
	c.maxLevels = clampLevels(c.maxLevels)
	return nil
}
