package hiz

import (
	"fmt"
	"math/bits"
)

// MaxLevels is the ceiling on pyramid levels. It matches the number of
// storage-image bindings the aggregated layout needs for a 1024px source.
const MaxLevels = 11

// Extent is the pixel size of one pyramid level.
type Extent struct {
	Width  uint32
	Height uint32
}

// String returns the extent as "WxH".
func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Half returns the next level's size: floor halving, never below 1.
func (e Extent) Half() Extent {
	return Extent{
		Width:  max(1, e.Width/2),
		Height: max(1, e.Height/2),
	}
}

// IsUnit reports whether the extent is 1x1.
func (e Extent) IsUnit() bool {
	return e.Width == 1 && e.Height == 1
}

// LevelCount returns min(MaxLevels, floor(log2(max(width, height)))+1).
// Zero dimensions are treated as 1.
func LevelCount(width, height uint32) int {
	return levelCount(width, height, MaxLevels)
}

func levelCount(width, height uint32, maxLevels int) int {
	n := bits.Len32(max(width, height, 1))
	return min(n, clampLevels(maxLevels))
}

func clampLevels(maxLevels int) int {
	return min(max(maxLevels, 1), MaxLevels)
}

// Plan returns the dimensions of every pyramid level for a source of the
// given size, capped at MaxLevels.
//
// Level 0 equals the source. Every following level floor-halves the previous
// one (never below 1 pixel). Planning stops at the cap or after the first 1x1
// level, whichever comes first.
//
// Example:
//
//	hiz.Plan(8, 8) // [8x8 4x4 2x2 1x1]
func Plan(width, height uint32) []Extent {
	return PlanLevels(width, height, MaxLevels)
}

// PlanLevels is Plan with a lower cap. maxLevels is clamped to [1, MaxLevels].
func PlanLevels(width, height uint32, maxLevels int) []Extent {
	n := levelCount(width, height, maxLevels)
	levels := make([]Extent, n)
	levels[0] = Extent{Width: max(width, 1), Height: max(height, 1)}
	for i := 1; i < n; i++ {
		levels[i] = levels[i-1].Half()
	}
	return levels
}
