package native

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/hiz"
	"github.com/gogpu/hiz/backend"
)

// allocation is a texture created by the allocator, shared by the views of
// its mip levels.
type allocation struct {
	tex  hal.Texture
	refs int
}

// view is one mip level of a texture. Views imported from a renderer have
// no allocation and are never destroyed by the device.
type view struct {
	label  string
	tex    hal.Texture
	view   hal.TextureView
	mip    uint32
	depth  bool
	owner  *allocation
	handle uintptr

	// usage is the usage the last successful submission left the view in.
	usage gputypes.TextureUsage
	// external, when set, is the usage the renderer leaves the view in
	// before each submission. pinned overrides it with usage once.
	external gputypes.TextureUsage
	pinned   bool
}

// entry returns the usage v is in when a submission starts.
func (v *view) entry() gputypes.TextureUsage {
	if v.external != 0 && !v.pinned {
		return v.external
	}
	return v.usage
}

// usages tracks view usage while a command buffer is encoded. It is
// committed only once the buffer is submitted.
type usages map[*view]gputypes.TextureUsage

func (u usages) get(v *view) gputypes.TextureUsage {
	if cur, ok := u[v]; ok {
		return cur
	}
	return v.entry()
}

func (u usages) commit() {
	for v, usage := range u {
		v.usage = usage
		v.pinned = false
	}
}

func (v *view) aspect() gputypes.TextureAspect {
	if v.depth {
		return gputypes.TextureAspectDepthOnly
	}
	return gputypes.TextureAspectAll
}

type layout struct {
	desc     *hiz.BindingLayout
	group    hal.BindGroupLayout
	pipeline hal.PipelineLayout
}

type pipeline struct {
	module hal.ShaderModule
	pipe   hal.ComputePipeline
	layout hiz.BindingLayoutID
}

type bindingSet struct {
	group  hal.BindGroup
	layout hiz.BindingLayoutID
	// reads and writes are the views the set samples and stores to.
	reads  []*view
	writes []*view
}

type inflight struct {
	index   uint64
	encoder hal.CommandEncoder
	buffer  hal.CommandBuffer
}

// Device runs the hiz command stream on a gogpu/wgpu HAL device.
// It is safe for concurrent use.
type Device struct {
	mu      sync.Mutex
	dev     hal.Device
	queue   hal.Queue
	limits  gputypes.Limits
	logger  *slog.Logger
	nextID  uint64
	release func()
	compile func(source string) ([]uint32, error)

	views     map[hiz.TextureViewID]*view
	layouts   map[hiz.BindingLayoutID]*layout
	samplers  map[hiz.SamplerID]hal.Sampler
	pipelines map[hiz.PipelineID]*pipeline
	sets      map[hiz.BindingSetID]*bindingSet
	inflight  []inflight
}

var _ backend.Backend = (*Device)(nil)

// New wraps an open HAL device. limits should be the limits the device was
// opened with. The caller keeps ownership of dev and queue: Close releases
// the resources created through Device but does not destroy dev.
func New(dev hal.Device, queue hal.Queue, limits gputypes.Limits) *Device {
	return &Device{
		dev:       dev,
		queue:     queue,
		limits:    limits,
		logger:    hiz.Logger(),
		compile:   compileSPIRV,
		views:     make(map[hiz.TextureViewID]*view),
		layouts:   make(map[hiz.BindingLayoutID]*layout),
		samplers:  make(map[hiz.SamplerID]hal.Sampler),
		pipelines: make(map[hiz.PipelineID]*pipeline),
		sets:      make(map[hiz.BindingSetID]*bindingSet),
	}
}

// Name returns "native".
func (d *Device) Name() string { return backend.BackendNative }

// SetLogger sets the device logger.
func (d *Device) SetLogger(l *slog.Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l == nil {
		l = hiz.Logger()
	}
	d.logger = l
}

// Limits returns the limits passed to New.
func (d *Device) Limits() gputypes.Limits { return d.limits }

func (d *Device) newID() uint64 {
	d.nextID++
	return d.nextID
}

// CreateBindingLayout creates the bind group layout and a pipeline layout
// holding it as group 0.
func (d *Device) CreateBindingLayout(l *hiz.BindingLayout) (hiz.BindingLayoutID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	group, err := d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   l.Label(),
		Entries: l.Entries(),
	})
	if err != nil {
		return hiz.InvalidID, fmt.Errorf("create bind group layout %s: %w", l.Label(), err)
	}
	pl, err := d.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            l.Label(),
		BindGroupLayouts: []hal.BindGroupLayout{group},
	})
	if err != nil {
		d.dev.DestroyBindGroupLayout(group)
		return hiz.InvalidID, fmt.Errorf("create pipeline layout %s: %w", l.Label(), err)
	}
	id := hiz.BindingLayoutID(d.newID())
	d.layouts[id] = &layout{desc: l, group: group, pipeline: pl}
	return id, nil
}

// DestroyBindingLayout destroys a layout created by CreateBindingLayout.
func (d *Device) DestroyBindingLayout(id hiz.BindingLayoutID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.layouts[id]
	if !ok {
		return
	}
	delete(d.layouts, id)
	d.dev.DestroyPipelineLayout(l.pipeline)
	d.dev.DestroyBindGroupLayout(l.group)
}

// CreateSampler creates a nearest, clamp-to-edge sampler.
func (d *Device) CreateSampler(label string) (hiz.SamplerID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.dev.CreateSampler(&hal.SamplerDescriptor{
		Label:        label,
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeNearest,
		MinFilter:    gputypes.FilterModeNearest,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
		Anisotropy:   1,
	})
	if err != nil {
		return hiz.InvalidID, fmt.Errorf("create sampler %s: %w", label, err)
	}
	id := hiz.SamplerID(d.newID())
	d.samplers[id] = s
	return id, nil
}

// DestroySampler destroys a sampler.
func (d *Device) DestroySampler(id hiz.SamplerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.samplers[id]; ok {
		delete(d.samplers, id)
		d.dev.DestroySampler(s)
	}
}

// CreatePipeline compiles desc.Source to SPIR-V and creates a compute
// pipeline for desc.EntryPoint.
func (d *Device) CreatePipeline(desc *hiz.PipelineDescriptor) (hiz.PipelineID, error) {
	if desc.PushConstantBytes > 0 {
		return hiz.InvalidID, fmt.Errorf("%w: %s declares %d bytes", ErrPushConstants, desc.Label, desc.PushConstantBytes)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.layouts[desc.Layout]
	if !ok {
		return hiz.InvalidID, fmt.Errorf("%w: layout %d", ErrUnknownResource, desc.Layout)
	}
	spirv, err := d.compile(desc.Source)
	if err != nil {
		return hiz.InvalidID, fmt.Errorf("%s: %w", desc.Label, err)
	}
	module, err := createShaderModule(d.dev, desc.Label, spirv)
	if err != nil {
		return hiz.InvalidID, fmt.Errorf("create shader module %s: %w", desc.Label, err)
	}
	pipe, err := d.dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: l.pipeline,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		d.dev.DestroyShaderModule(module)
		return hiz.InvalidID, fmt.Errorf("create compute pipeline %s: %w", desc.Label, err)
	}
	id := hiz.PipelineID(d.newID())
	d.pipelines[id] = &pipeline{module: module, pipe: pipe, layout: desc.Layout}
	d.logger.Debug("native: pipeline created", "label", desc.Label, "entry", desc.EntryPoint)
	return id, nil
}

// DestroyPipeline destroys a pipeline and its shader module.
func (d *Device) DestroyPipeline(id hiz.PipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pipelines[id]
	if !ok {
		return
	}
	delete(d.pipelines, id)
	d.dev.DestroyComputePipeline(p.pipe)
	d.dev.DestroyShaderModule(p.module)
}

// CreateBindingSet creates a bind group. Entries are matched to the
// layout's slots by binding index.
func (d *Device) CreateBindingSet(desc *hiz.BindingSetDescriptor) (hiz.BindingSetID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.layouts[desc.Layout]
	if !ok {
		return hiz.InvalidID, fmt.Errorf("%w: layout %d", ErrUnknownResource, desc.Layout)
	}
	kinds := make(map[uint32]hiz.SlotKind)
	for _, s := range l.desc.Slots() {
		kinds[s.Binding] = s.Kind
	}

	set := &bindingSet{layout: desc.Layout}
	entries := make([]gputypes.BindGroupEntry, 0, len(desc.Entries))
	for _, e := range desc.Entries {
		kind, ok := kinds[e.Binding]
		if !ok {
			return hiz.InvalidID, fmt.Errorf("%w: %s: binding %d not in layout %s", ErrUnknownResource, desc.Label, e.Binding, l.desc.Label())
		}
		if kind == hiz.SlotSampler {
			s, ok := d.samplers[e.Sampler]
			if !ok {
				return hiz.InvalidID, fmt.Errorf("%w: %s: sampler %d", ErrUnknownResource, desc.Label, e.Sampler)
			}
			entries = append(entries, gputypes.BindGroupEntry{
				Binding:  e.Binding,
				Resource: gputypes.SamplerBinding{Sampler: s.NativeHandle()},
			})
			continue
		}
		v, ok := d.views[e.View]
		if !ok {
			return hiz.InvalidID, fmt.Errorf("%w: %s: view %d", ErrUnknownResource, desc.Label, e.View)
		}
		if kind == hiz.SlotStorage {
			set.writes = append(set.writes, v)
		} else {
			set.reads = append(set.reads, v)
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  e.Binding,
			Resource: gputypes.TextureViewBinding{TextureView: v.handle},
		})
	}

	group, err := d.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  l.group,
		Entries: entries,
	})
	if err != nil {
		return hiz.InvalidID, fmt.Errorf("create bind group %s: %w", desc.Label, err)
	}
	set.group = group
	id := hiz.BindingSetID(d.newID())
	d.sets[id] = set
	return id, nil
}

// DestroyBindingSet destroys a bind group.
func (d *Device) DestroyBindingSet(id hiz.BindingSetID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sets[id]; ok {
		delete(d.sets, id)
		d.dev.DestroyBindGroup(s.group)
	}
}

// Submit encodes rec into one command buffer and submits it. Each dispatch
// gets its own compute pass; textures are transitioned to the usage their
// slot needs before the pass, and barriers transition written levels from
// storage to sampled. Depth sources start from the usage the renderer
// leaves them in. Tracked usage only changes when the submission succeeds.
func (d *Device) Submit(ctx context.Context, rec *hiz.Recording) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reclaim(false)

	enc, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: rec.Label})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(rec.Label); err != nil {
		enc.Destroy()
		return fmt.Errorf("begin encoding: %w", err)
	}
	state := make(usages)
	if err := d.encode(enc, rec, state); err != nil {
		enc.DiscardEncoding()
		enc.Destroy()
		return err
	}
	buf, err := enc.EndEncoding()
	if err != nil {
		enc.Destroy()
		return fmt.Errorf("end encoding: %w", err)
	}
	index, err := d.queue.Submit([]hal.CommandBuffer{buf})
	if err != nil {
		d.dev.FreeCommandBuffer(buf)
		enc.Destroy()
		return fmt.Errorf("queue submit: %w", err)
	}
	state.commit()
	d.inflight = append(d.inflight, inflight{index: index, encoder: enc, buffer: buf})
	return nil
}

func (d *Device) encode(enc hal.CommandEncoder, rec *hiz.Recording, state usages) error {
	for _, c := range rec.Commands() {
		switch c.Kind {
		case hiz.CommandDispatch:
			if len(c.Push) > 0 {
				return fmt.Errorf("%w: dispatch for view %s", ErrPushConstants, c.View)
			}
			p, ok := d.pipelines[c.Pipeline]
			if !ok {
				return fmt.Errorf("%w: pipeline %d", ErrUnknownResource, c.Pipeline)
			}
			s, ok := d.sets[c.BindingSet]
			if !ok {
				return fmt.Errorf("%w: binding set %d", ErrUnknownResource, c.BindingSet)
			}
			if s.layout != p.layout {
				return fmt.Errorf("%w: binding set %d does not match pipeline layout", ErrUnknownResource, c.BindingSet)
			}
			transition(enc, state, s.reads, gputypes.TextureUsageTextureBinding)
			transition(enc, state, s.writes, gputypes.TextureUsageStorageBinding)

			pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: rec.Label})
			pass.SetPipeline(p.pipe)
			pass.SetBindGroup(0, s.group, nil)
			pass.Dispatch(c.Groups[0], c.Groups[1], c.Groups[2])
			pass.End()
		case hiz.CommandBarrier:
			views := make([]*view, 0, len(c.Textures))
			for _, id := range c.Textures {
				v, ok := d.views[id]
				if !ok {
					return fmt.Errorf("%w: view %d", ErrUnknownResource, id)
				}
				views = append(views, v)
			}
			transition(enc, state, views, gputypes.TextureUsageTextureBinding)
		}
	}
	return nil
}

// transition moves views to usage, skipping those already there.
func transition(enc hal.CommandEncoder, state usages, views []*view, usage gputypes.TextureUsage) {
	var barriers []hal.TextureBarrier
	for _, v := range views {
		old := state.get(v)
		if old == usage || v.tex == nil {
			continue
		}
		barriers = append(barriers, hal.TextureBarrier{
			Texture: v.tex,
			Range: hal.TextureRange{
				Aspect:          v.aspect(),
				BaseMipLevel:    v.mip,
				MipLevelCount:   1,
				BaseArrayLayer:  0,
				ArrayLayerCount: 1,
			},
			Usage: hal.TextureUsageTransition{OldUsage: old, NewUsage: usage},
		})
		state[v] = usage
	}
	if len(barriers) > 0 {
		enc.TransitionTextures(barriers)
	}
}

// reclaim frees command buffers the queue has finished with, or all of
// them when all is set.
func (d *Device) reclaim(all bool) {
	done := d.queue.PollCompleted()
	keep := d.inflight[:0]
	for _, f := range d.inflight {
		if !all && f.index > done {
			keep = append(keep, f)
			continue
		}
		d.dev.FreeCommandBuffer(f.buffer)
		f.encoder.Destroy()
	}
	clear(d.inflight[len(keep):])
	d.inflight = keep
}

// Close waits for the device to go idle and destroys every resource
// created through d. Devices returned by Open are destroyed as well.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.dev.WaitIdle(); err != nil {
		d.logger.Warn("native: wait idle failed", "err", err)
	}
	d.reclaim(true)
	for id, s := range d.sets {
		d.dev.DestroyBindGroup(s.group)
		delete(d.sets, id)
	}
	for id, p := range d.pipelines {
		d.dev.DestroyComputePipeline(p.pipe)
		d.dev.DestroyShaderModule(p.module)
		delete(d.pipelines, id)
	}
	for id, l := range d.layouts {
		d.dev.DestroyPipelineLayout(l.pipeline)
		d.dev.DestroyBindGroupLayout(l.group)
		delete(d.layouts, id)
	}
	for id, s := range d.samplers {
		d.dev.DestroySampler(s)
		delete(d.samplers, id)
	}
	for id := range d.views {
		d.releaseView(id)
	}
	if d.release != nil {
		d.release()
		d.release = nil
	}
}

// Pending returns the number of submissions not yet reclaimed.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}
