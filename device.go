package hiz

import (
	"context"

	"github.com/gogpu/gputypes"
)

// Resource IDs
//
// These opaque IDs name device resources. Each Device keeps its own mapping
// from ID to backend object. Zero is never a valid ID.

// TextureViewID names a view of one mip level (or of a depth source).
type TextureViewID uint64

// BindingLayoutID names a created binding layout.
type BindingLayoutID uint64

// SamplerID names a sampler.
type SamplerID uint64

// PipelineID names a compiled compute pipeline.
type PipelineID uint64

// BindingSetID names a binding set: a layout paired with concrete views.
type BindingSetID uint64

// InvalidID is the zero value of every resource ID.
const InvalidID = 0

// PipelineDescriptor describes one compute pipeline.
type PipelineDescriptor struct {
	Label  string
	Layout BindingLayoutID

	// Source is WGSL text. EntryPoint must name a compute entry point in it.
	Source     string
	EntryPoint string

	// Workgroup is the thread-block size declared by EntryPoint.
	Workgroup [3]uint32

	// PushConstantBytes is the size of the compute push-constant range, or 0.
	PushConstantBytes uint32

	// Reduction is the operator baked into Source. Devices that cannot run
	// WGSL use it to pick their native implementation.
	Reduction Reduction
}

// BindingEntry binds one resource to a layout slot. Exactly one of View or
// Sampler is set.
type BindingEntry struct {
	Binding uint32
	View    TextureViewID
	Sampler SamplerID
}

// BindingSetDescriptor pairs a layout with concrete resources.
type BindingSetDescriptor struct {
	Label   string
	Layout  BindingLayoutID
	Entries []BindingEntry
}

// Device is the GPU surface the builder records against.
//
// Implementations must be safe for concurrent use. Resources are created
// with Create* and released with Destroy*; IDs are never reused.
type Device interface {
	// Limits reports the device limits used for startup validation.
	Limits() gputypes.Limits

	CreateBindingLayout(layout *BindingLayout) (BindingLayoutID, error)
	DestroyBindingLayout(id BindingLayoutID)

	// CreateSampler creates the non-filtering, clamp-to-edge sampler used by
	// layouts that declare a sampler slot.
	CreateSampler(label string) (SamplerID, error)
	DestroySampler(id SamplerID)

	// CreatePipeline compiles a compute pipeline. Failure is reported per view
	// by the caller and is not fatal.
	CreatePipeline(desc *PipelineDescriptor) (PipelineID, error)
	DestroyPipeline(id PipelineID)

	CreateBindingSet(desc *BindingSetDescriptor) (BindingSetID, error)
	DestroyBindingSet(id BindingSetID)

	// Submit executes a recording in command order. It does not wait for the
	// GPU; completion is observed through the caller's frame fence.
	Submit(ctx context.Context, rec *Recording) error
}

// TextureAllocator allocates depth sources and level chains. Renderers own
// these textures; tools and tests use a device's allocator instead.
type TextureAllocator interface {
	// AllocateDepth creates a single-channel depth image.
	AllocateDepth(label string, size Extent) (TextureViewID, error)

	// AllocateChain creates one R32Float view per level, sized from levels.
	AllocateChain(label string, levels []Extent) ([]TextureViewID, error)

	// ReleaseViews releases views created by this allocator.
	ReleaseViews(ids ...TextureViewID)
}
