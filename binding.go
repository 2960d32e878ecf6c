package hiz

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Access is the access mode of a binding slot or pyramid level.
type Access uint8

const (
	AccessReadOnly Access = iota + 1
	AccessWriteOnly
	AccessReadWrite
)

// String returns the WGSL-style access name.
func (a Access) String() string {
	switch a {
	case AccessReadOnly:
		return "read"
	case AccessWriteOnly:
		return "write"
	case AccessReadWrite:
		return "read_write"
	default:
		return fmt.Sprintf("Access(%d)", a)
	}
}

// SlotKind is the resource type a binding slot accepts.
type SlotKind uint8

const (
	// SlotDepth is a depth-format sampled image (texture_depth_2d).
	SlotDepth SlotKind = iota + 1
	// SlotImage is a sampled single-channel image read with textureLoad
	// (texture_2d<f32>, unfilterable). Depth32Float and R32Float views both
	// bind to it.
	SlotImage
	// SlotStorage is a single-channel float storage image.
	SlotStorage
	// SlotSampler is a non-filtering sampler.
	SlotSampler
)

// BindingSlot is one entry of a binding layout.
type BindingSlot struct {
	Binding uint32
	Kind    SlotKind
	Access  Access
	Format  gputypes.TextureFormat
}

// LevelFormat is the format of every written pyramid level.
const LevelFormat = gputypes.TextureFormatR32Float

// DepthFormat is the format of depth sources.
const DepthFormat = gputypes.TextureFormatDepth32Float

// BindingLayout is the fixed description of the bindings one downsample
// dispatch consumes. It is built once per (strategy, level count) and reused
// verbatim by every binding set built against it.
type BindingLayout struct {
	strategy   Strategy
	levelCount int
	slots      []BindingSlot
}

// NewBindingLayout describes the slots for strategy.
//
// Iterative layouts always have two slots: binding 0 reads level k (or the
// depth source for k=0), binding 1 writes level k+1. Aggregated layouts read
// the depth source at binding 0 and write levels 1..levelCount-1 at bindings
// 1..levelCount-1, followed by the sampler slot when withSampler is set.
// Level AggregatedSplit is read-write when a second pass reads it.
// withSampler is ignored for iterative layouts.
func NewBindingLayout(strategy Strategy, levelCount int, withSampler bool) *BindingLayout {
	levelCount = clampLevels(levelCount)
	l := &BindingLayout{strategy: strategy, levelCount: levelCount}

	switch strategy {
	case StrategyAggregated:
		l.slots = append(l.slots, BindingSlot{Binding: 0, Kind: SlotDepth, Access: AccessReadOnly, Format: DepthFormat})
		for i := 1; i < levelCount; i++ {
			access := AccessWriteOnly
			if i == AggregatedSplit && levelCount-1 > AggregatedSplit {
				access = AccessReadWrite
			}
			l.slots = append(l.slots, BindingSlot{
				Binding: uint32(i),
				Kind:    SlotStorage,
				Access:  access,
				Format:  LevelFormat,
			})
		}
		if withSampler {
			l.slots = append(l.slots, BindingSlot{Binding: uint32(levelCount), Kind: SlotSampler, Access: AccessReadOnly})
		}
	default:
		l.slots = []BindingSlot{
			{Binding: 0, Kind: SlotImage, Access: AccessReadOnly, Format: LevelFormat},
			{Binding: 1, Kind: SlotStorage, Access: AccessWriteOnly, Format: LevelFormat},
		}
	}
	return l
}

// Label returns a debug label such as "hiz_aggregated_11".
func (l *BindingLayout) Label() string {
	if l.strategy == StrategyIterative {
		return "hiz_iterative"
	}
	return fmt.Sprintf("hiz_%s_%d", l.strategy, l.levelCount)
}

// Strategy returns the strategy the layout was built for.
func (l *BindingLayout) Strategy() Strategy { return l.strategy }

// LevelCount returns the pyramid level count the layout was built for.
// Iterative layouts are shared by every level count.
func (l *BindingLayout) LevelCount() int { return l.levelCount }

// Slots returns a copy of the layout's slots in binding order.
func (l *BindingLayout) Slots() []BindingSlot {
	return append([]BindingSlot(nil), l.slots...)
}

// TextureBindingCount returns the number of image slots (sampler excluded).
// It equals the level count for aggregated layouts and 2 for iterative ones.
func (l *BindingLayout) TextureBindingCount() int {
	return l.count(SlotDepth) + l.count(SlotImage) + l.count(SlotStorage)
}

// SamplerBinding returns the sampler slot's binding index, if declared.
func (l *BindingLayout) SamplerBinding() (uint32, bool) {
	for _, s := range l.slots {
		if s.Kind == SlotSampler {
			return s.Binding, true
		}
	}
	return 0, false
}

func (l *BindingLayout) count(kind SlotKind) int {
	n := 0
	for _, s := range l.slots {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

// Entries converts the layout to WebGPU bind group layout entries. Every
// entry is visible to the compute stage only.
func (l *BindingLayout) Entries() []gputypes.BindGroupLayoutEntry {
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(l.slots))
	for _, s := range l.slots {
		e := gputypes.BindGroupLayoutEntry{
			Binding:    s.Binding,
			Visibility: gputypes.ShaderStageCompute,
		}
		switch s.Kind {
		case SlotDepth:
			e.Texture = &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeDepth,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		case SlotImage:
			e.Texture = &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeUnfilterableFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		case SlotStorage:
			e.StorageTexture = &gputypes.StorageTextureBindingLayout{
				Access:        storageAccess(s.Access),
				Format:        s.Format,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		case SlotSampler:
			e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeNonFiltering}
		}
		entries = append(entries, e)
	}
	return entries
}

func storageAccess(a Access) gputypes.StorageTextureAccess {
	switch a {
	case AccessReadOnly:
		return gputypes.StorageTextureAccessReadOnly
	case AccessReadWrite:
		return gputypes.StorageTextureAccessReadWrite
	default:
		return gputypes.StorageTextureAccessWriteOnly
	}
}

// Validate checks the layout against device limits. Any violation is a
// configuration error wrapping ErrConfig.
func (l *BindingLayout) Validate(limits gputypes.Limits) error {
	checks := []struct {
		what  string
		need  int
		limit uint32
	}{
		{"bindings per group", len(l.slots), limits.MaxBindingsPerBindGroup},
		{"storage textures per stage", l.count(SlotStorage), limits.MaxStorageTexturesPerShaderStage},
		{"sampled textures per stage", l.count(SlotDepth) + l.count(SlotImage), limits.MaxSampledTexturesPerShaderStage},
		{"samplers per stage", l.count(SlotSampler), limits.MaxSamplersPerShaderStage},
	}
	for _, c := range checks {
		if uint64(c.need) > uint64(c.limit) {
			return configError("%s layout needs %d %s, device allows %d", l.Label(), c.need, c.what, c.limit)
		}
	}
	return nil
}
