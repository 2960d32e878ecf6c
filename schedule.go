package hiz

import (
	"encoding/binary"
)

// PipelineSet holds the compiled pipelines one pyramid is dispatched with.
type PipelineSet struct {
	// First runs the first transition, or the first aggregated pass.
	First PipelineID
	// Rest runs every later transition, or the aggregated pass that starts
	// at level AggregatedSplit. It equals First for kernels with a single
	// entry point.
	Rest PipelineID

	// Block is the fixed thread-block size of both pipelines.
	Block [3]uint32

	// PushConstantBytes is the push-constant range size, or 0.
	PushConstantBytes uint32
}

// For returns the pipeline for transition k (level k to level k+1).
func (p PipelineSet) For(transition int) PipelineID {
	if transition == 0 || p.Rest == InvalidID {
		return p.First
	}
	return p.Rest
}

// WorkgroupCount returns ceil(size / block), the smallest work-group count
// whose threads cover size. A zero block is treated as 1.
func WorkgroupCount(size, block uint32) uint32 {
	block = max(block, 1)
	return (size + block - 1) / block
}

// DispatchScheduler records the dispatches that generate one view's pyramid.
// It never fails: anything that can go wrong is caught earlier, when the
// binding sets are built.
type DispatchScheduler struct {
	strategy Strategy
}

// NewDispatchScheduler returns a scheduler for strategy.
func NewDispatchScheduler(strategy Strategy) *DispatchScheduler {
	return &DispatchScheduler{strategy: strategy}
}

// Dispatch records the commands for one view into rec.
//
// Iterative: one dispatch per transition in increasing level order, each
// sized from its target level and followed by a barrier on the level it
// wrote, so transition k+1 never reads level k+1 before it is complete.
//
// Aggregated: one dispatch per AggregatedPasses pass, all with the single
// binding set. Each is sized from its source level in Pass.Tile squares and
// followed by a barrier over the levels it wrote; the last barrier covers
// every level. Level ordering inside a pass is the kernel's responsibility.
func (s *DispatchScheduler) Dispatch(rec *Recording, view ViewID, pipelines PipelineSet, sets []BindingSetID, levels []PyramidLevel) {
	if len(sets) == 0 || len(levels) < 2 {
		return
	}
	block := pipelines.Block

	if s.strategy == StrategyAggregated {
		passes := AggregatedPasses(len(levels))
		for i, p := range passes {
			src := levels[p.Source].Size
			tile := p.Tile()
			groups := [3]uint32{WorkgroupCount(src.Width, tile), WorkgroupCount(src.Height, tile), 1}
			rec.Dispatch(view, p.Top, pipelines.For(i), sets[0], groups, nil)

			from := p.Source + 1
			if i == len(passes)-1 {
				from = 1
			}
			written := make([]TextureViewID, 0, p.Top-from+1)
			for _, l := range levels[from : p.Top+1] {
				written = append(written, l.View)
			}
			rec.Barrier(view, p.Top, written...)
		}
		return
	}

	n := min(len(sets), len(levels)-1)
	for k := 0; k < n; k++ {
		target := levels[k+1]
		groups := [3]uint32{WorkgroupCount(target.Size.Width, block[0]), WorkgroupCount(target.Size.Height, block[1]), 1}
		var push []byte
		if pipelines.PushConstantBytes > 0 {
			push = EncodeExtent(target.Size, pipelines.PushConstantBytes)
		}
		rec.Dispatch(view, k+1, pipelines.For(k), sets[k], groups, push)
		rec.Barrier(view, k+1, target.View)
	}
}

// EncodeExtent packs e as two little-endian uint16 values into a push
// constant block of size bytes (at least 4).
func EncodeExtent(e Extent, size uint32) []byte {
	b := make([]byte, max(size, 4))
	binary.LittleEndian.PutUint16(b[0:], uint16(min(e.Width, 0xFFFF)))
	binary.LittleEndian.PutUint16(b[2:], uint16(min(e.Height, 0xFFFF)))
	return b
}

// DecodeExtent is the inverse of EncodeExtent.
func DecodeExtent(b []byte) (Extent, bool) {
	if len(b) < 4 {
		return Extent{}, false
	}
	return Extent{
		Width:  uint32(binary.LittleEndian.Uint16(b[0:])),
		Height: uint32(binary.LittleEndian.Uint16(b[2:])),
	}, true
}
