package hiz

import (
	"fmt"
)

// BindingSetBuilder wires one view's level chain into binding sets against
// a shared layout.
type BindingSetBuilder struct {
	device  Device
	sampler SamplerID
}

// NewBindingSetBuilder returns a builder creating sets on device. sampler is
// bound into layouts that declare a sampler slot.
func NewBindingSetBuilder(device Device, sampler SamplerID) *BindingSetBuilder {
	return &BindingSetBuilder{device: device, sampler: sampler}
}

// resolveLevels checks that v is ready for a pyramid of at most maxLevels
// levels and pairs its chain with the planned extents. A view that is not
// ready yields ErrViewNotReady.
func resolveLevels(v View, maxLevels int) ([]PyramidLevel, error) {
	if v.Depth == nil || v.Depth.View == InvalidID {
		return nil, fmt.Errorf("%w: no depth output", ErrViewNotReady)
	}
	if v.Prepass == nil {
		return nil, fmt.Errorf("%w: no prepass textures", ErrViewNotReady)
	}
	sizes := PlanLevels(v.Depth.Size.Width, v.Depth.Size.Height, maxLevels)
	chain := v.Prepass.Levels
	if len(chain) < len(sizes) {
		return nil, fmt.Errorf("%w: chain has %d levels, need %d", ErrViewNotReady, len(chain), len(sizes))
	}
	for i := 1; i < len(sizes); i++ {
		if chain[i] == InvalidID {
			return nil, fmt.Errorf("%w: level %d not allocated", ErrViewNotReady, i)
		}
	}
	return pyramidLevels(v.Depth, chain, sizes), nil
}

// Build creates the binding sets for one pyramid: len(levels)-1 sets for
// the iterative strategy (set k reads level k and writes level k+1), one set
// for the aggregated strategy. A single-level pyramid needs no sets.
//
// On failure every set created so far is destroyed and the error wraps
// ErrPyramidUnavailable.
func (b *BindingSetBuilder) Build(layout *BindingLayout, layoutID BindingLayoutID, view ViewID, levels []PyramidLevel) ([]BindingSetID, error) {
	if len(levels) < 2 {
		return nil, nil
	}

	var descs []BindingSetDescriptor
	switch layout.Strategy() {
	case StrategyAggregated:
		if layout.LevelCount() != len(levels) {
			return nil, fmt.Errorf("%w: layout %s for %d levels", ErrPyramidUnavailable, layout.Label(), len(levels))
		}
		entries := make([]BindingEntry, 0, len(levels)+1)
		for i, l := range levels {
			entries = append(entries, BindingEntry{Binding: uint32(i), View: l.View})
		}
		if binding, ok := layout.SamplerBinding(); ok {
			if b.sampler == InvalidID {
				return nil, fmt.Errorf("%w: layout %s needs a sampler", ErrPyramidUnavailable, layout.Label())
			}
			entries = append(entries, BindingEntry{Binding: binding, Sampler: b.sampler})
		}
		descs = append(descs, BindingSetDescriptor{
			Label:   fmt.Sprintf("hiz_%s_all", view),
			Layout:  layoutID,
			Entries: entries,
		})
	default:
		for k := 0; k+1 < len(levels); k++ {
			descs = append(descs, BindingSetDescriptor{
				Label:  fmt.Sprintf("hiz_%s_%d", view, k),
				Layout: layoutID,
				Entries: []BindingEntry{
					{Binding: 0, View: levels[k].View},
					{Binding: 1, View: levels[k+1].View},
				},
			})
		}
	}

	sets := make([]BindingSetID, 0, len(descs))
	for i := range descs {
		id, err := b.device.CreateBindingSet(&descs[i])
		if err != nil {
			b.Destroy(sets)
			return nil, fmt.Errorf("%w: binding set %s: %w", ErrPyramidUnavailable, descs[i].Label, err)
		}
		sets = append(sets, id)
	}
	return sets, nil
}

// Destroy releases sets.
func (b *BindingSetBuilder) Destroy(sets []BindingSetID) {
	for _, id := range sets {
		b.device.DestroyBindingSet(id)
	}
}
