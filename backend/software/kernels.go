package software

import (
	"fmt"

	"github.com/gogpu/hiz"
	"github.com/gogpu/hiz/internal/parallel"
	"github.com/gogpu/hiz/internal/reduce"
)

// Kernel executes one dispatch on the CPU.
type Kernel func(d *Dispatch) error

// Dispatch is the execution state of one dispatch command.
type Dispatch struct {
	Groups [3]uint32
	Block  [3]uint32
	Op     reduce.Op
	Push   []byte

	set  *bindingSet
	pool *parallel.WorkerPool
}

// Layout returns the layout of the bound binding set.
func (d *Dispatch) Layout() *hiz.BindingLayout {
	return d.set.layout
}

// Source returns the visible contents of the view at binding.
func (d *Dispatch) Source(binding uint32) (*Image, error) {
	t, ok := d.set.textures[binding]
	if !ok {
		return nil, fmt.Errorf("%w: %s: no texture at binding %d", ErrBinding, d.set.label, binding)
	}
	return t.visible, nil
}

// Target returns the image writes to binding go to. They stay invisible to
// Source until a barrier covers the view.
func (d *Dispatch) Target(binding uint32) (*Image, error) {
	t, ok := d.set.textures[binding]
	if !ok {
		return nil, fmt.Errorf("%w: %s: no texture at binding %d", ErrBinding, d.set.label, binding)
	}
	return t.target(), nil
}

// Invocations calls fn with the global invocation id of every thread in the
// dispatch grid. Kernels are two-dimensional; z is not iterated. On devices
// created WithWorkers, fn runs concurrently for different rows.
func (d *Dispatch) Invocations(fn func(x, y int)) {
	w := int(d.Groups[0]) * int(max(d.Block[0], 1))
	h := int(d.Groups[1]) * int(max(d.Block[1], 1))
	if d.Groups[2] == 0 {
		return
	}
	parallel.Rows(d.pool, h, func(b parallel.Band) {
		for y := b.Y0; y < b.Y1; y++ {
			for x := 0; x < w; x++ {
				fn(x, y)
			}
		}
	})
}

// Workgroups calls fn with the id of every work-group in the dispatch grid.
// On devices created WithWorkers, fn runs concurrently for different rows
// of work-groups.
func (d *Dispatch) Workgroups(fn func(x, y int)) {
	if d.Groups[2] == 0 {
		return
	}
	parallel.Rows(d.pool, int(d.Groups[1]), func(b parallel.Band) {
		for y := b.Y0; y < b.Y1; y++ {
			for x := 0; x < int(d.Groups[0]); x++ {
				fn(x, y)
			}
		}
	})
}

func builtinKernels() map[string]Kernel {
	return map[string]Kernel{
		hiz.EntryDownsample:          downsampleLevel,
		hiz.EntryDownsampleFirst:     downsampleLevel,
		hiz.EntryDownsampleSecond:    downsampleLevel,
		hiz.EntryDownsampleAll:       downsamplePass(0),
		hiz.EntryDownsampleAllSecond: downsamplePass(1),
	}
}

// downsampleLevel reduces binding 0 into binding 1, one thread per target
// texel.
func downsampleLevel(d *Dispatch) error {
	src, err := d.Source(0)
	if err != nil {
		return err
	}
	dst, err := d.Target(1)
	if err != nil {
		return err
	}
	w, h := dst.Width, dst.Height
	if e, ok := hiz.DecodeExtent(d.Push); ok {
		w, h = min(w, int(e.Width)), min(h, int(e.Height))
	}
	d.Invocations(func(x, y int) {
		if x < w && y < h {
			dst.Set(x, y, reduce.Texel(dst, src, x, y, d.Op))
		}
	})
	return nil
}

// downsamplePass runs aggregated pass i. Each work-group owns one texel of
// the pass's top level and writes it and every texel beneath it, level by
// level. Levels written earlier in the same pass are read back directly;
// the pass source goes through the barrier-gated view.
func downsamplePass(i int) Kernel {
	return func(d *Dispatch) error {
		passes := hiz.AggregatedPasses(d.Layout().LevelCount())
		if i >= len(passes) {
			return fmt.Errorf("%w: %s: no aggregated pass %d", ErrBinding, d.set.label, i)
		}
		p := passes[i]

		src, err := d.Source(uint32(p.Source))
		if err != nil {
			return err
		}
		levels := make([]*Image, p.Top+1)
		levels[p.Source] = src
		for l := p.Source + 1; l <= p.Top; l++ {
			if levels[l], err = d.Target(uint32(l)); err != nil {
				return err
			}
		}
		top := levels[p.Top]

		d.Workgroups(func(gx, gy int) {
			if gx >= top.Width || gy >= top.Height {
				return
			}
			for l := p.Source + 1; l <= p.Top; l++ {
				dst, below := levels[l], levels[l-1]
				shift := p.Top - l
				x0, x1 := reduce.Footprint(gx, top.Width, shift, dst.Width)
				y0, y1 := reduce.Footprint(gy, top.Height, shift, dst.Height)
				for y := y0; y < y1; y++ {
					for x := x0; x < x1; x++ {
						dst.Set(x, y, reduce.Texel(dst, below, x, y, d.Op))
					}
				}
			}
		})
		return nil
	}
}
