package hiz

import (
	"fmt"
	"sync"

	"github.com/gogpu/hiz/internal/pipecache"
)

// pipelineKey identifies one compiled pipeline shape. Iterative pipelines
// ignore the level count.
type pipelineKey struct {
	levelCount int
}

// compiled is a cache entry. Failures are cached too: a kernel that does
// not compile on this device will not compile next frame either.
type compiled struct {
	set PipelineSet
	err error
}

// PipelineRegistry compiles and caches the downsample pipelines for one
// strategy, and owns the binding layouts they are built against.
//
// Layouts and compiled pipelines are immutable once created and shared by
// every view and frame. PipelineRegistry is safe for concurrent use.
type PipelineRegistry struct {
	device    Device
	strategy  Strategy
	reduction Reduction
	sampler   bool
	custom    *Kernel

	mu      sync.Mutex
	layouts map[int]layoutEntry
	retired []PipelineID

	cache *pipecache.Cache[pipelineKey, compiled]
}

type layoutEntry struct {
	layout *BindingLayout
	id     BindingLayoutID
}

// NewPipelineRegistry creates a registry. custom, if non-nil, replaces the
// built-in iterative kernel. cacheSize bounds the number of compiled shapes
// kept (0 = unbounded).
func NewPipelineRegistry(device Device, strategy Strategy, reduction Reduction, withSampler bool, custom *Kernel, cacheSize int) *PipelineRegistry {
	r := &PipelineRegistry{
		device:    device,
		strategy:  strategy,
		reduction: reduction,
		sampler:   withSampler && strategy == StrategyAggregated,
		custom:    custom,
		layouts:   make(map[int]layoutEntry),
		cache:     pipecache.New[pipelineKey, compiled](cacheSize),
	}
	r.cache.OnEvict = func(_ pipelineKey, c compiled) {
		if c.err != nil {
			return
		}
		r.mu.Lock()
		r.retired = append(r.retired, c.set.First)
		if c.set.Rest != c.set.First && c.set.Rest != InvalidID {
			r.retired = append(r.retired, c.set.Rest)
		}
		r.mu.Unlock()
	}
	return r
}

// Strategy returns the registry's dispatch strategy.
func (r *PipelineRegistry) Strategy() Strategy { return r.strategy }

// Kernel returns the kernel used for a pyramid of levelCount levels.
func (r *PipelineRegistry) Kernel(levelCount int) Kernel {
	if r.strategy == StrategyAggregated {
		return AggregatedKernel(r.reduction, levelCount, r.sampler)
	}
	if r.custom != nil {
		return *r.custom
	}
	return IterativeKernel(r.reduction)
}

func (r *PipelineRegistry) layoutKey(levelCount int) int {
	if r.strategy == StrategyIterative {
		return 0
	}
	return clampLevels(levelCount)
}

// Layout returns the shared binding layout for levelCount, creating it on
// the device on first use.
func (r *PipelineRegistry) Layout(levelCount int) (*BindingLayout, BindingLayoutID, error) {
	key := r.layoutKey(levelCount)

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.layouts[key]; ok {
		return e.layout, e.id, nil
	}
	layout := NewBindingLayout(r.strategy, levelCount, r.sampler)
	if err := layout.Validate(r.device.Limits()); err != nil {
		return nil, InvalidID, err
	}
	id, err := r.device.CreateBindingLayout(layout)
	if err != nil {
		return nil, InvalidID, fmt.Errorf("%w: create layout %s: %w", ErrPipelineUnavailable, layout.Label(), err)
	}
	r.layouts[key] = layoutEntry{layout: layout, id: id}
	return layout, id, nil
}

// Pipeline returns the compiled pipelines for levelCount, compiling them on
// first use. A failure wraps ErrPipelineUnavailable and is sticky.
func (r *PipelineRegistry) Pipeline(levelCount int) (PipelineSet, error) {
	key := pipelineKey{levelCount: r.layoutKey(levelCount)}
	c := r.cache.GetOrCreate(key, func() compiled {
		return r.compile(levelCount)
	})
	return c.set, c.err
}

func (r *PipelineRegistry) compile(levelCount int) compiled {
	k := r.Kernel(levelCount)
	fail := func(err error) compiled {
		Logger().Warn("hiz: pipeline unavailable", "kernel", k.Label, "err", err)
		return compiled{err: fmt.Errorf("%w: %s: %w", ErrPipelineUnavailable, k.Label, err)}
	}

	if r.strategy == StrategyAggregated {
		// Generated per level count; the startup check only covered the
		// largest shape.
		if err := ValidateKernel(k); err != nil {
			return fail(err)
		}
	}
	if limit := r.device.Limits().MaxPushConstantSize; k.PushConstantBytes > limit {
		return fail(fmt.Errorf("push constants need %d bytes, device allows %d", k.PushConstantBytes, limit))
	}

	_, layoutID, err := r.Layout(levelCount)
	if err != nil {
		return fail(err)
	}

	desc := PipelineDescriptor{
		Label:             k.Label,
		Layout:            layoutID,
		Source:            k.Source,
		EntryPoint:        k.Entry,
		Workgroup:         k.Workgroup,
		PushConstantBytes: k.PushConstantBytes,
		Reduction:         r.reduction,
	}
	first, err := r.device.CreatePipeline(&desc)
	if err != nil {
		return fail(err)
	}
	set := PipelineSet{First: first, Rest: first, Block: k.Workgroup, PushConstantBytes: k.PushConstantBytes}

	if entries := k.Entries(); len(entries) > 1 {
		desc.Label = k.Label + "_second"
		desc.EntryPoint = entries[1]
		rest, err := r.device.CreatePipeline(&desc)
		if err != nil {
			r.device.DestroyPipeline(first)
			return fail(err)
		}
		set.Rest = rest
	}

	Logger().Info("hiz: pipeline compiled", "kernel", k.Label, "entries", k.Entries(), "block", k.Workgroup)
	return compiled{set: set}
}

// drainRetired returns pipelines evicted from the cache since the last call.
// They may still be referenced by frames in flight.
func (r *PipelineRegistry) drainRetired() []PipelineID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.retired
	r.retired = nil
	return out
}

// CacheStats reports pipeline cache usage.
func (r *PipelineRegistry) CacheStats() (hits, misses uint64, entries int) {
	s := r.cache.Stats()
	return s.Hits, s.Misses, s.Len
}

// Close destroys every pipeline and layout. The caller must ensure the GPU
// no longer uses them.
func (r *PipelineRegistry) Close() {
	r.cache.Clear()
	for _, id := range r.drainRetired() {
		r.device.DestroyPipeline(id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for key, e := range r.layouts {
		r.device.DestroyBindingLayout(e.id)
		delete(r.layouts, key)
	}
}
