package hiz

import (
	"slices"

	"github.com/google/uuid"
)

// ViewID is the stable identity of a rendered view (camera, shadow cascade).
type ViewID uuid.UUID

// NewViewID returns a random view identifier.
func NewViewID() ViewID {
	return ViewID(uuid.New())
}

// ParseViewID parses the textual UUID form.
func ParseViewID(s string) (ViewID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ViewID{}, err
	}
	return ViewID(id), nil
}

func (id ViewID) String() string {
	return uuid.UUID(id).String()
}

// DepthSource is one view's full-resolution depth output. The pyramid
// builder borrows it read-only for level-0 reads.
type DepthSource struct {
	View TextureViewID
	Size Extent
}

// PrepassTextures is the per-view record of the allocated level chain:
// one R32Float view per planned level, index 0 first. Entry 0 is never
// written; level 0 of a pyramid aliases the depth source.
type PrepassTextures struct {
	Levels []TextureViewID
}

// View is the per-frame input for one view. A nil Depth or Prepass means
// the view is not ready and is skipped this frame.
type View struct {
	ID      ViewID
	Depth   *DepthSource
	Prepass *PrepassTextures
}

// PyramidLevel is one level of a built pyramid.
type PyramidLevel struct {
	Index int
	Size  Extent
	View  TextureViewID

	// Access is how the level's view is bound during generation. Level 0 is
	// AccessReadOnly, written levels are AccessWriteOnly.
	Access Access
}

// DepthPyramid is the derived state attached to a view for one frame. It is
// what the occlusion-culling consumer samples.
type DepthPyramid struct {
	View     ViewID
	Source   TextureViewID
	Strategy Strategy
	Frame    uint64
	Levels   []PyramidLevel

	// Sets are the binding sets built for this frame, one per dispatch.
	// They are only valid until the frame retires.
	Sets []BindingSetID

	pipelines PipelineSet
}

// sameTargets reports whether p was built for exactly the given source and
// levels, so its binding sets can be reused.
func (p *DepthPyramid) sameTargets(strategy Strategy, levels []PyramidLevel) bool {
	return p.Strategy == strategy && slices.Equal(p.Levels, levels)
}

// Size returns the level-0 extent.
func (p *DepthPyramid) Size() Extent {
	if len(p.Levels) == 0 {
		return Extent{}
	}
	return p.Levels[0].Size
}

// Views returns the level views in order, with the depth source at index 0.
func (p *DepthPyramid) Views() []TextureViewID {
	views := make([]TextureViewID, len(p.Levels))
	for i, l := range p.Levels {
		views[i] = l.View
	}
	return views
}

// pyramidLevels pairs planned extents with the view chain. Level 0 is the
// depth source.
func pyramidLevels(depth *DepthSource, chain []TextureViewID, sizes []Extent) []PyramidLevel {
	levels := make([]PyramidLevel, len(sizes))
	for i, size := range sizes {
		l := PyramidLevel{Index: i, Size: size, View: depth.View, Access: AccessReadOnly}
		if i > 0 {
			l.View = chain[i]
			l.Access = AccessWriteOnly
		}
		levels[i] = l
	}
	return levels
}
