package hiz

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// FrameReport is the outcome of preparing one frame.
type FrameReport struct {
	Frame uint64

	// Prepared holds the pyramids to dispatch this frame, in view order.
	Prepared []*DepthPyramid

	// Skipped lists views that were not ready (no depth output or no level
	// chain yet). This is not an error.
	Skipped []ViewID

	// Unavailable lists views that lost their pyramid this frame. Consumers
	// treat them as having no occlusion data.
	Unavailable []*ViewError
}

// Err joins the per-view errors, or returns nil if every view succeeded or
// was skipped.
func (r *FrameReport) Err() error {
	if len(r.Unavailable) == 0 {
		return nil
	}
	errs := make([]error, len(r.Unavailable))
	for i, e := range r.Unavailable {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// retired holds resources replaced in frame that the GPU may still use.
type retired struct {
	frame     uint64
	sets      []BindingSetID
	pipelines []PipelineID
}

// Builder builds Hi-Z depth pyramids for every view, every frame.
//
// A frame is prepared, recorded and submitted:
//
//	report, err := b.Prepare(ctx, frame, views)
//	rec := hiz.NewRecording("hiz")
//	b.Record(rec, report)
//	err = b.Submit(ctx, rec)
//
// or in one step with Run. Pyramid returns the consumer handle for a view.
//
// Prepare and Close are serialized; Pyramid, Stats and Record may be called
// from any goroutine.
type Builder struct {
	device   Device
	cfg      config
	registry *PipelineRegistry
	sets     *BindingSetBuilder
	sched    *DispatchScheduler
	table    *ViewTable
	sampler  SamplerID
	stats    counters

	mu      sync.Mutex
	pending []retired
	closed  bool
}

// New creates a Builder on device.
//
// The binding layout for the configured level ceiling is checked against
// the device limits and the kernel is validated; either failure wraps
// ErrConfig and no Builder is returned.
func New(device Device, opts ...Option) (*Builder, error) {
	if device == nil {
		return nil, configError("nil device")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.logger != nil {
		SetLogger(cfg.logger)
	}
	propagateLogger(device, Logger())

	if err := NewBindingLayout(cfg.strategy, cfg.maxLevels, cfg.sampler).Validate(device.Limits()); err != nil {
		return nil, err
	}

	b := &Builder{
		device: device,
		cfg:    cfg,
		sched:  NewDispatchScheduler(cfg.strategy),
		table:  NewViewTable(),
	}
	b.registry = NewPipelineRegistry(device, cfg.strategy, cfg.reduction, cfg.sampler, cfg.kernel, cfg.cacheSize)
	if err := ValidateKernel(b.registry.Kernel(cfg.maxLevels)); err != nil {
		return nil, err
	}

	if cfg.sampler && cfg.strategy == StrategyAggregated {
		s, err := device.CreateSampler("hiz_depth_sampler")
		if err != nil {
			return nil, fmt.Errorf("hiz: create sampler: %w", err)
		}
		b.sampler = s
	}
	b.sets = NewBindingSetBuilder(device, b.sampler)

	Logger().Info("hiz: builder created",
		"strategy", cfg.strategy,
		"reduction", cfg.reduction,
		"max_levels", cfg.maxLevels,
		"sampler", b.sampler != InvalidID)
	return b, nil
}

// Strategy returns the builder's dispatch strategy.
func (b *Builder) Strategy() Strategy { return b.cfg.strategy }

// Prepare plans and binds a pyramid for every view.
//
// Views that are not ready are skipped and lose any pyramid they held.
// Views whose pipeline or binding sets are unavailable are reported in
// FrameReport.Unavailable; other views are unaffected. Views absent from
// views are dropped. Binding sets are reused while a view's depth source
// and level chain are unchanged.
//
// frame must increase between calls; it drives the release of resources
// replaced in earlier frames. The only error is ErrClosed or ctx's error.
func (b *Builder) Prepare(ctx context.Context, frame uint64, views []View) (*FrameReport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	b.collect(frame)

	report := &FrameReport{Frame: frame}
	seen := make(map[ViewID]struct{}, len(views))
	for _, v := range views {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		seen[v.ID] = struct{}{}

		p, err := b.prepareView(frame, v)
		switch {
		case err == nil:
			report.Prepared = append(report.Prepared, p)
		case errors.Is(err, ErrViewNotReady):
			Logger().Debug("hiz: view skipped", "view", v.ID, "reason", err)
			report.Skipped = append(report.Skipped, v.ID)
			b.drop(frame, v.ID)
		default:
			report.Unavailable = append(report.Unavailable, &ViewError{View: v.ID, Err: err})
			b.drop(frame, v.ID)
		}
	}

	for _, p := range b.table.Retain(func(p *DepthPyramid) bool {
		_, ok := seen[p.View]
		return ok
	}) {
		b.retire(retired{frame: frame, sets: p.Sets})
	}
	if ps := b.registry.drainRetired(); len(ps) > 0 {
		b.retire(retired{frame: frame, pipelines: ps})
	}

	b.stats.frame(report)
	Logger().Debug("hiz: frame prepared",
		"frame", frame,
		"prepared", len(report.Prepared),
		"skipped", len(report.Skipped),
		"unavailable", len(report.Unavailable))
	return report, nil
}

func (b *Builder) prepareView(frame uint64, v View) (*DepthPyramid, error) {
	levels, err := resolveLevels(v, b.cfg.maxLevels)
	if err != nil {
		return nil, err
	}
	p := &DepthPyramid{
		View:     v.ID,
		Source:   v.Depth.View,
		Strategy: b.cfg.strategy,
		Frame:    frame,
		Levels:   levels,
	}
	if len(levels) < 2 {
		// A 1x1 source is its own pyramid.
		b.replace(frame, p)
		return p, nil
	}

	pipelines, err := b.registry.Pipeline(len(levels))
	if err != nil {
		return nil, err
	}
	p.pipelines = pipelines

	if old, ok := b.table.Get(v.ID); ok && old.sameTargets(p.Strategy, levels) && len(old.Sets) > 0 {
		p.Sets = old.Sets
		b.table.Insert(p)
		b.stats.setsReused.Add(uint64(len(p.Sets)))
		return p, nil
	}

	layout, layoutID, err := b.registry.Layout(len(levels))
	if err != nil {
		return nil, err
	}
	sets, err := b.sets.Build(layout, layoutID, v.ID, levels)
	if err != nil {
		Logger().Warn("hiz: pyramid unavailable", "view", v.ID, "err", err)
		return nil, err
	}
	p.Sets = sets
	b.stats.setsCreated.Add(uint64(len(sets)))
	b.replace(frame, p)

	Logger().Debug("hiz: pyramid built",
		"view", v.ID,
		"size", p.Size(),
		"levels", len(levels),
		"sets", len(sets))
	return p, nil
}

// replace installs p and retires the sets of the pyramid it replaces.
func (b *Builder) replace(frame uint64, p *DepthPyramid) {
	if old := b.table.Insert(p); old != nil {
		b.retire(retired{frame: frame, sets: old.Sets})
	}
}

func (b *Builder) drop(frame uint64, id ViewID) {
	if old, ok := b.table.Remove(id); ok {
		b.retire(retired{frame: frame, sets: old.Sets})
	}
}

func (b *Builder) retire(r retired) {
	if len(r.sets) == 0 && len(r.pipelines) == 0 {
		return
	}
	b.pending = append(b.pending, r)
}

// collect destroys resources retired at least FramesInFlight frames before
// frame. Caller must hold b.mu.
func (b *Builder) collect(frame uint64) {
	keep := b.pending[:0]
	for _, r := range b.pending {
		if frame < r.frame+uint64(b.cfg.framesInFlight) {
			keep = append(keep, r)
			continue
		}
		b.release(r)
	}
	clear(b.pending[len(keep):])
	b.pending = keep
}

func (b *Builder) release(r retired) {
	b.sets.Destroy(r.sets)
	for _, id := range r.pipelines {
		b.device.DestroyPipeline(id)
	}
}

// Record appends the dispatches of every prepared pyramid to rec.
func (b *Builder) Record(rec *Recording, report *FrameReport) {
	for _, p := range report.Prepared {
		b.sched.Dispatch(rec, p.View, p.pipelines, p.Sets, p.Levels)
	}
}

// Submit hands rec to the device.
func (b *Builder) Submit(ctx context.Context, rec *Recording) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := b.device.Submit(ctx, rec); err != nil {
		return fmt.Errorf("hiz: submit %s: %w", rec.Label, err)
	}
	b.stats.submitted(rec)
	return nil
}

// Run prepares, records and submits one frame.
func (b *Builder) Run(ctx context.Context, frame uint64, views []View) (*FrameReport, error) {
	report, err := b.Prepare(ctx, frame, views)
	if err != nil {
		return report, err
	}
	rec := NewRecording(fmt.Sprintf("hiz_frame_%d", frame))
	b.Record(rec, report)
	if rec.Len() == 0 {
		return report, nil
	}
	return report, b.Submit(ctx, rec)
}

// Pyramid returns the current pyramid of view id. A missing pyramid means
// there is no occlusion data for the view: treat everything as visible.
func (b *Builder) Pyramid(id ViewID) (*DepthPyramid, bool) {
	return b.table.Get(id)
}

// Table returns the per-view pyramid table.
func (b *Builder) Table() *ViewTable {
	return b.table
}

// Stats returns a snapshot of the builder's counters.
func (b *Builder) Stats() Stats {
	s := b.stats.snapshot()
	s.PipelineHits, s.PipelineMisses, s.Pipelines = b.registry.CacheStats()
	s.Views = b.table.Len()
	return s
}

// Close releases every binding set, pipeline, layout and the sampler. The
// caller must ensure the GPU has finished all submitted frames.
func (b *Builder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, r := range b.pending {
		b.release(r)
	}
	b.pending = nil
	for _, p := range b.table.Retain(func(*DepthPyramid) bool { return false }) {
		b.sets.Destroy(p.Sets)
	}
	b.registry.Close()
	if b.sampler != InvalidID {
		b.device.DestroySampler(b.sampler)
		b.sampler = InvalidID
	}
	Logger().Info("hiz: builder closed")
	return nil
}
