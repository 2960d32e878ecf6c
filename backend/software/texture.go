package software

import (
	"fmt"

	"github.com/gogpu/hiz"
	"github.com/gogpu/hiz/internal/reduce"
)

func newTexture(label string, size hiz.Extent, depth bool) *texture {
	img := reduce.NewImage(int(max(size.Width, 1)), int(max(size.Height, 1)))
	return &texture{label: label, depth: depth, visible: img}
}

// AllocateDepth creates a depth image cleared to 0.
func (d *Device) AllocateDepth(label string, size hiz.Extent) (hiz.TextureViewID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := hiz.TextureViewID(d.newID())
	d.textures[id] = newTexture(label, size, true)
	return id, nil
}

// AllocateChain creates one R32Float image per level, filled with -1.
func (d *Device) AllocateChain(label string, levels []hiz.Extent) ([]hiz.TextureViewID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]hiz.TextureViewID, len(levels))
	for i, size := range levels {
		t := newTexture(fmt.Sprintf("%s_mip%d", label, i), size, false)
		t.visible.Fill(poison)
		id := hiz.TextureViewID(d.newID())
		d.textures[id] = t
		ids[i] = id
	}
	return ids, nil
}

// ReleaseViews releases textures created by AllocateDepth or AllocateChain.
func (d *Device) ReleaseViews(ids ...hiz.TextureViewID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		delete(d.textures, id)
	}
}

// Upload replaces the contents of view with pix, row-major.
func (d *Device) Upload(view hiz.TextureViewID, pix []float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures[view]
	if !ok {
		return fmt.Errorf("%w: view %d", ErrUnknownResource, view)
	}
	if len(pix) != len(t.visible.Pix) {
		return fmt.Errorf("%w: %q holds %d texels, got %d", ErrSize, t.label, len(t.visible.Pix), len(pix))
	}
	img := reduce.NewImage(t.visible.Width, t.visible.Height)
	copy(img.Pix, pix)
	t.visible = img
	t.pending = nil
	return nil
}

// Readback returns a copy of the visible contents of view.
func (d *Device) Readback(view hiz.TextureViewID) (*Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures[view]
	if !ok {
		return nil, fmt.Errorf("%w: view %d", ErrUnknownResource, view)
	}
	return t.visible.Clone(), nil
}

// ReadbackPyramid reads every level of p, the depth source first.
func (d *Device) ReadbackPyramid(p *hiz.DepthPyramid) ([]*Image, error) {
	out := make([]*Image, len(p.Levels))
	for i, l := range p.Levels {
		img, err := d.Readback(l.View)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		out[i] = img
	}
	return out, nil
}
