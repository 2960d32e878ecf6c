// Package hiz builds hierarchical depth (Hi-Z) pyramids on the GPU.
//
// # Overview
//
// Once per rendered view per frame, hiz turns the view's full-resolution
// depth buffer into a chain of half-resolution levels, each texel holding
// the conservative depth of the 2x2 block beneath it. Occlusion culling
// samples the pyramid to reject hidden work cheaply.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/hiz"
//		"github.com/gogpu/hiz/backend/software"
//	)
//
//	dev := software.New()
//	b, err := hiz.New(dev)
//	if err != nil {
//		log.Fatal(err) // layout over device limits, bad kernel
//	}
//	defer b.Close()
//
//	for frame := uint64(1); ; frame++ {
//		report, err := b.Run(ctx, frame, views)
//		...
//		if p, ok := b.Pyramid(viewID); ok {
//			cull(p.Views())
//		}
//	}
//
// # Strategies
//
// StrategyIterative (the default) dispatches once per level transition,
// reading level k and writing level k+1, with a barrier between
// dispatches. Its binding layout has two slots regardless of the level
// count.
//
// StrategyAggregated writes every level from the depth source in one
// dispatch. It needs a storage-image slot per level and is rejected by New
// on devices that cannot bind that many.
//
// # Levels
//
// Level 0 is the depth source itself. Level k floor-halves level k-1 and
// never drops below one texel; at most MaxLevels levels are built. Odd
// sources fold their trailing row and column into the last texel, so no
// depth sample is dropped.
//
// # Errors
//
// Configuration errors (ErrConfig) are fatal and only returned by New.
// Views without a depth output or level chain are skipped silently.
// Pipeline and allocation failures are reported per view in FrameReport
// and never abort the frame; a view without a pyramid must be treated as
// fully visible.
//
// # Architecture
//
//   - Planning: Plan, PlanLevels, LevelCount
//   - Static state: BindingLayout, Kernel, PipelineRegistry
//   - Per view: BindingSetBuilder, ViewTable, DepthPyramid
//   - Commands: DispatchScheduler, Recording, Device
//   - Backends: backend/software (CPU), backend/native (gogpu/wgpu HAL)
package hiz
