package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/hiz"
)

// Texture usages of allocated textures.
const (
	depthUsage = gputypes.TextureUsageTextureBinding | gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopyDst
	chainUsage = gputypes.TextureUsageTextureBinding | gputypes.TextureUsageStorageBinding | gputypes.TextureUsageCopySrc
)

// AllocateDepth creates a Depth32Float texture and its depth-aspect view.
func (d *Device) AllocateDepth(label string, size hiz.Extent) (hiz.TextureViewID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tex, err := d.dev.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: max(size.Width, 1), Height: max(size.Height, 1), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        hiz.DepthFormat,
		Usage:         depthUsage,
	})
	if err != nil {
		return hiz.InvalidID, fmt.Errorf("create texture %s: %w", label, err)
	}
	a := &allocation{tex: tex}
	id, err := d.addView(a, label, 0, true)
	if err != nil {
		d.dev.DestroyTexture(tex)
		return hiz.InvalidID, err
	}
	// The depth pass leaves the source as an attachment before every
	// submission.
	d.views[id].usage = gputypes.TextureUsageRenderAttachment
	d.views[id].external = gputypes.TextureUsageRenderAttachment
	return id, nil
}

// AllocateChain creates one R32Float texture with a mip level per entry of
// levels and returns a view per mip. levels must follow the halving plan of
// levels[0], which is what hiz.Plan returns.
func (d *Device) AllocateChain(label string, levels []hiz.Extent) ([]hiz.TextureViewID, error) {
	if len(levels) == 0 {
		return nil, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	base := levels[0]
	tex, err := d.dev.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: max(base.Width, 1), Height: max(base.Height, 1), DepthOrArrayLayers: 1},
		MipLevelCount: uint32(len(levels)),
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        hiz.LevelFormat,
		Usage:         chainUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture %s: %w", label, err)
	}
	a := &allocation{tex: tex}
	ids := make([]hiz.TextureViewID, 0, len(levels))
	for i := range levels {
		id, err := d.addView(a, fmt.Sprintf("%s_mip%d", label, i), uint32(i), false)
		if err != nil {
			// Releasing the last created view destroys tex.
			for _, id := range ids {
				d.releaseView(id)
			}
			if len(ids) == 0 {
				d.dev.DestroyTexture(tex)
			}
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (d *Device) addView(a *allocation, label string, mip uint32, depth bool) (hiz.TextureViewID, error) {
	format, aspect := hiz.LevelFormat, gputypes.TextureAspectAll
	if depth {
		format, aspect = hiz.DepthFormat, gputypes.TextureAspectDepthOnly
	}
	tv, err := d.dev.CreateTextureView(a.tex, &hal.TextureViewDescriptor{
		Label:           label,
		Format:          format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          aspect,
		BaseMipLevel:    mip,
		MipLevelCount:   1,
		BaseArrayLayer:  0,
		ArrayLayerCount: 1,
	})
	if err != nil {
		return hiz.InvalidID, fmt.Errorf("create texture view %s: %w", label, err)
	}
	a.refs++
	id := hiz.TextureViewID(d.newID())
	d.views[id] = &view{
		label:  label,
		tex:    a.tex,
		view:   tv,
		mip:    mip,
		depth:  depth,
		owner:  a,
		handle: tv.NativeHandle(),
	}
	return id, nil
}

// Import registers a renderer-owned view of mip level mip of tex. The
// device transitions tex around dispatches but never destroys it.
// usage is the usage tex is in when first submitted. Depth views are
// assumed to be back in usage before every submission, since the renderer
// writes them each frame; use SetUsage when that is not the case.
func (d *Device) Import(label string, tex hal.Texture, tv hal.TextureView, mip uint32, depth bool, usage gputypes.TextureUsage) hiz.TextureViewID {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := hiz.TextureViewID(d.newID())
	v := &view{
		label:  label,
		tex:    tex,
		view:   tv,
		mip:    mip,
		depth:  depth,
		usage:  usage,
		handle: tv.NativeHandle(),
	}
	if depth {
		v.external = usage
	}
	d.views[id] = v
	return id
}

// SetUsage records that the caller's own commands left view id in usage, so
// the next submission transitions it from there.
func (d *Device) SetUsage(id hiz.TextureViewID, usage gputypes.TextureUsage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.views[id]
	if !ok {
		return fmt.Errorf("%w: view %d", ErrUnknownResource, id)
	}
	v.usage = usage
	v.pinned = true
	return nil
}

// ReleaseViews destroys allocated views, and their texture once no view of
// it remains. Imported views are forgotten.
func (d *Device) ReleaseViews(ids ...hiz.TextureViewID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		d.releaseView(id)
	}
}

func (d *Device) releaseView(id hiz.TextureViewID) {
	v, ok := d.views[id]
	if !ok {
		return
	}
	delete(d.views, id)
	if v.owner == nil {
		return
	}
	d.dev.DestroyTextureView(v.view)
	v.owner.refs--
	if v.owner.refs == 0 {
		d.dev.DestroyTexture(v.owner.tex)
	}
}
