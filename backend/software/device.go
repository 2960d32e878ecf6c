package software

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/hiz"
	"github.com/gogpu/hiz/backend"
	"github.com/gogpu/hiz/internal/parallel"
	"github.com/gogpu/hiz/internal/reduce"
)

// poison fills freshly allocated levels so that reading a level before it
// is written is visible in the output.
const poison = -1

// Image is a single-channel float32 image.
type Image = reduce.Image

type texture struct {
	label   string
	depth   bool
	visible *Image
	// pending holds writes not yet made visible by a barrier.
	pending *Image
}

func (t *texture) target() *Image {
	if t.pending == nil {
		t.pending = t.visible.Clone()
	}
	return t.pending
}

func (t *texture) flush() {
	if t.pending != nil {
		t.visible = t.pending
		t.pending = nil
	}
}

type pipeline struct {
	desc   hiz.PipelineDescriptor
	kernel Kernel
}

type bindingSet struct {
	label    string
	layoutID hiz.BindingLayoutID
	layout   *hiz.BindingLayout
	textures map[uint32]*texture
}

// Counts reports live resources by kind.
type Counts struct {
	Textures  int
	Layouts   int
	Samplers  int
	Pipelines int
	Sets      int
}

// Option configures a Device.
type Option func(*Device)

// WithLimits overrides the limits the device reports.
func WithLimits(l gputypes.Limits) Option {
	return func(d *Device) {
		d.limits = l
	}
}

// WithWorkers runs kernel invocations on n goroutines, split into row
// bands. n <= 0 uses GOMAXPROCS. Kernels registered with WithKernel must
// then tolerate concurrent calls for different rows.
func WithWorkers(n int) Option {
	return func(d *Device) {
		d.pool = parallel.NewWorkerPool(n)
	}
}

// WithKernel registers k for entry point entry, replacing any built-in.
func WithKernel(entry string, k Kernel) Option {
	return func(d *Device) {
		d.kernels[entry] = k
	}
}

// Device is a CPU implementation of hiz.Device and hiz.TextureAllocator.
// It is safe for concurrent use; submissions execute one at a time.
type Device struct {
	mu     sync.Mutex
	limits gputypes.Limits
	logger *slog.Logger
	nextID uint64

	kernels   map[string]Kernel
	textures  map[hiz.TextureViewID]*texture
	layouts   map[hiz.BindingLayoutID]*hiz.BindingLayout
	samplers  map[hiz.SamplerID]string
	pipelines map[hiz.PipelineID]*pipeline
	sets      map[hiz.BindingSetID]*bindingSet

	submits uint64
	pool    *parallel.WorkerPool
}

var _ backend.Backend = (*Device)(nil)

// New creates a software device. It reports gputypes.DefaultLimits raised
// to 16 storage textures per stage and 128 push-constant bytes, enough for
// both strategies.
func New(opts ...Option) *Device {
	limits := gputypes.DefaultLimits()
	limits.MaxStorageTexturesPerShaderStage = 16
	limits.MaxPushConstantSize = 128

	d := &Device{
		limits:    limits,
		logger:    hiz.Logger(),
		kernels:   builtinKernels(),
		textures:  make(map[hiz.TextureViewID]*texture),
		layouts:   make(map[hiz.BindingLayoutID]*hiz.BindingLayout),
		samplers:  make(map[hiz.SamplerID]string),
		pipelines: make(map[hiz.PipelineID]*pipeline),
		sets:      make(map[hiz.BindingSetID]*bindingSet),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns "software".
func (d *Device) Name() string { return backend.BackendSoftware }

// SetLogger sets the device logger.
func (d *Device) SetLogger(l *slog.Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l == nil {
		l = hiz.Logger()
	}
	d.logger = l
}

// Limits returns the device limits.
func (d *Device) Limits() gputypes.Limits {
	return d.limits
}

func (d *Device) newID() uint64 {
	d.nextID++
	return d.nextID
}

// CreateBindingLayout records layout.
func (d *Device) CreateBindingLayout(layout *hiz.BindingLayout) (hiz.BindingLayoutID, error) {
	if err := layout.Validate(d.limits); err != nil {
		return hiz.InvalidID, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := hiz.BindingLayoutID(d.newID())
	d.layouts[id] = layout
	return id, nil
}

// DestroyBindingLayout releases a layout.
func (d *Device) DestroyBindingLayout(id hiz.BindingLayoutID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.layouts, id)
}

// CreateSampler creates a sampler. Kernels read texels directly, so the
// sampler only exists to satisfy layouts that declare one.
func (d *Device) CreateSampler(label string) (hiz.SamplerID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := hiz.SamplerID(d.newID())
	d.samplers[id] = label
	return id, nil
}

// DestroySampler releases a sampler.
func (d *Device) DestroySampler(id hiz.SamplerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.samplers, id)
}

// CreatePipeline validates desc.Source with naga and binds the Go kernel
// registered for desc.EntryPoint.
func (d *Device) CreatePipeline(desc *hiz.PipelineDescriptor) (hiz.PipelineID, error) {
	if desc.PushConstantBytes > d.limits.MaxPushConstantSize {
		return hiz.InvalidID, fmt.Errorf("software: %s: push constants need %d bytes, limit %d",
			desc.Label, desc.PushConstantBytes, d.limits.MaxPushConstantSize)
	}
	err := hiz.ValidateKernel(hiz.Kernel{
		Label:             desc.Label,
		Source:            desc.Source,
		Entry:             desc.EntryPoint,
		Workgroup:         desc.Workgroup,
		PushConstantBytes: desc.PushConstantBytes,
	})
	if err != nil {
		return hiz.InvalidID, fmt.Errorf("software: compile %s: %w", desc.Label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.layouts[desc.Layout]; !ok {
		return hiz.InvalidID, fmt.Errorf("%w: layout %d", ErrUnknownResource, desc.Layout)
	}
	k, ok := d.kernels[desc.EntryPoint]
	if !ok {
		return hiz.InvalidID, fmt.Errorf("%w: %q", ErrUnknownEntryPoint, desc.EntryPoint)
	}
	id := hiz.PipelineID(d.newID())
	d.pipelines[id] = &pipeline{desc: *desc, kernel: k}
	d.logger.Debug("software: pipeline created", "label", desc.Label, "entry", desc.EntryPoint)
	return id, nil
}

// DestroyPipeline releases a pipeline.
func (d *Device) DestroyPipeline(id hiz.PipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pipelines, id)
}

// CreateBindingSet checks desc against its layout: every slot bound exactly
// once, with a resource of the kind the slot declares.
func (d *Device) CreateBindingSet(desc *hiz.BindingSetDescriptor) (hiz.BindingSetID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	layout, ok := d.layouts[desc.Layout]
	if !ok {
		return hiz.InvalidID, fmt.Errorf("%w: layout %d", ErrUnknownResource, desc.Layout)
	}
	slots := layout.Slots()
	if len(desc.Entries) != len(slots) {
		return hiz.InvalidID, fmt.Errorf("%w: %s binds %d entries, layout %s has %d slots",
			ErrBinding, desc.Label, len(desc.Entries), layout.Label(), len(slots))
	}

	set := &bindingSet{
		label:    desc.Label,
		layoutID: desc.Layout,
		layout:   layout,
		textures: make(map[uint32]*texture, len(slots)),
	}
	for _, slot := range slots {
		e, ok := findEntry(desc.Entries, slot.Binding)
		if !ok {
			return hiz.InvalidID, fmt.Errorf("%w: %s: binding %d unbound", ErrBinding, desc.Label, slot.Binding)
		}
		if slot.Kind == hiz.SlotSampler {
			if _, ok := d.samplers[e.Sampler]; !ok {
				return hiz.InvalidID, fmt.Errorf("%w: sampler %d", ErrUnknownResource, e.Sampler)
			}
			continue
		}
		t, ok := d.textures[e.View]
		if !ok {
			return hiz.InvalidID, fmt.Errorf("%w: view %d", ErrUnknownResource, e.View)
		}
		if slot.Kind == hiz.SlotStorage && t.depth {
			return hiz.InvalidID, fmt.Errorf("%w: %s: depth view %q bound to storage binding %d",
				ErrBinding, desc.Label, t.label, slot.Binding)
		}
		set.textures[slot.Binding] = t
	}

	id := hiz.BindingSetID(d.newID())
	d.sets[id] = set
	return id, nil
}

func findEntry(entries []hiz.BindingEntry, binding uint32) (hiz.BindingEntry, bool) {
	for _, e := range entries {
		if e.Binding == binding {
			return e, true
		}
	}
	return hiz.BindingEntry{}, false
}

// DestroyBindingSet releases a binding set.
func (d *Device) DestroyBindingSet(id hiz.BindingSetID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sets, id)
}

// Submit executes rec in command order and returns when it is complete.
// Writes still pending at the end of the submission become visible.
func (d *Device) Submit(ctx context.Context, rec *hiz.Recording) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer d.flushAll()

	for i, c := range rec.Commands() {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch c.Kind {
		case hiz.CommandDispatch:
			if err := d.dispatch(c); err != nil {
				return fmt.Errorf("software: %s command %d: %w", rec.Label, i, err)
			}
		case hiz.CommandBarrier:
			for _, id := range c.Textures {
				if t, ok := d.textures[id]; ok {
					t.flush()
				}
			}
		}
	}
	d.submits++
	d.logger.Debug("software: submitted", "label", rec.Label, "commands", rec.Len())
	return nil
}

func (d *Device) dispatch(c hiz.Command) error {
	p, ok := d.pipelines[c.Pipeline]
	if !ok {
		return fmt.Errorf("%w: pipeline %d", ErrUnknownResource, c.Pipeline)
	}
	set, ok := d.sets[c.BindingSet]
	if !ok {
		return fmt.Errorf("%w: binding set %d", ErrUnknownResource, c.BindingSet)
	}
	if set.layoutID != p.desc.Layout {
		return fmt.Errorf("%w: set %s does not match the layout of %s", ErrBinding, set.label, p.desc.Label)
	}
	if uint32(len(c.Push)) != p.desc.PushConstantBytes {
		return fmt.Errorf("%w: %s expects %d push-constant bytes, got %d",
			ErrBinding, p.desc.Label, p.desc.PushConstantBytes, len(c.Push))
	}
	return p.kernel(&Dispatch{
		Groups: c.Groups,
		Block:  p.desc.Workgroup,
		Op:     reduceOp(p.desc.Reduction),
		Push:   c.Push,
		set:    set,
		pool:   d.pool,
	})
}

func (d *Device) flushAll() {
	for _, t := range d.textures {
		t.flush()
	}
}

func reduceOp(r hiz.Reduction) reduce.Op {
	if r == hiz.ReduceMin {
		return reduce.Min
	}
	return reduce.Max
}

// Submits returns the number of completed submissions.
func (d *Device) Submits() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submits
}

// Counts returns the number of live resources of each kind.
func (d *Device) Counts() Counts {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Counts{
		Textures:  len(d.textures),
		Layouts:   len(d.layouts),
		Samplers:  len(d.samplers),
		Pipelines: len(d.pipelines),
		Sets:      len(d.sets),
	}
}

// Close releases every resource.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.textures)
	clear(d.layouts)
	clear(d.samplers)
	clear(d.pipelines)
	clear(d.sets)
	if d.pool != nil {
		d.pool.Close()
		d.pool = nil
	}
}
