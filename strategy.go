package hiz

import (
	"fmt"
	"strings"
)

// Strategy selects how a pyramid is dispatched. It is fixed when a Builder
// is created and never changes afterwards.
type Strategy uint8

const (
	// StrategyIterative runs one dispatch per level transition, reading
	// level k and writing level k+1, with a barrier between dispatches.
	// It needs exactly two binding slots regardless of the level count.
	StrategyIterative Strategy = iota

	// StrategyAggregated writes up to AggregatedSplit levels per dispatch,
	// reducing within each work-group's tile. Pyramids deeper than that take
	// a second dispatch that reads level AggregatedSplit. It needs one
	// storage-image slot per written level, so it is only available on
	// devices with generous storage-texture limits.
	StrategyAggregated
)

// AggregatedSplit is the deepest level the first aggregated pass writes and
// the level the second pass reads. It is bound read-write.
const AggregatedSplit = 6

// Pass is one aggregated dispatch: it reads level Source and writes levels
// Source+1 through Top.
type Pass struct {
	Source, Top int
}

// Tile returns the number of Source texels per work-group along each axis.
func (p Pass) Tile() uint32 {
	return 1 << (p.Top - p.Source)
}

// AggregatedPasses splits a pyramid of levelCount levels into aggregated
// dispatches. It returns nil for fewer than 2 levels.
func AggregatedPasses(levelCount int) []Pass {
	last := min(levelCount, MaxLevels) - 1
	if last < 1 {
		return nil
	}
	if last <= AggregatedSplit {
		return []Pass{{Source: 0, Top: last}}
	}
	return []Pass{{Source: 0, Top: AggregatedSplit}, {Source: AggregatedSplit, Top: last}}
}

// String returns the human-readable name of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyIterative:
		return "iterative"
	case StrategyAggregated:
		return "aggregated"
	default:
		return fmt.Sprintf("Strategy(%d)", s)
	}
}

// ParseStrategy parses "iterative" or "aggregated".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "iterative":
		return StrategyIterative, nil
	case "aggregated":
		return StrategyAggregated, nil
	default:
		return 0, configError("unknown strategy %q", s)
	}
}

// BlockSize returns the fixed thread-block size of the strategy's kernels.
// Iterative blocks cover target-level texels. Aggregated blocks cover a
// Pass.Tile square of source texels, so threads handle several each.
func (s Strategy) BlockSize() [3]uint32 {
	return [3]uint32{8, 8, 1}
}

// Reduction is the operator folding a 2x2 block into one texel.
type Reduction uint8

const (
	// ReduceMax keeps the farthest depth. Conservative for standard depth
	// where 1.0 is the far plane.
	ReduceMax Reduction = iota

	// ReduceMin keeps the nearest value, which is the farthest depth under
	// a reversed-Z projection.
	ReduceMin
)

// String returns "max" or "min".
func (r Reduction) String() string {
	switch r {
	case ReduceMax:
		return "max"
	case ReduceMin:
		return "min"
	default:
		return fmt.Sprintf("Reduction(%d)", r)
	}
}

// ParseReduction parses "max" or "min".
func ParseReduction(s string) (Reduction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "max":
		return ReduceMax, nil
	case "min":
		return ReduceMin, nil
	default:
		return 0, configError("unknown reduction %q", s)
	}
}
