package main

import (
	"math/rand/v2"

	"github.com/gogpu/hiz/internal/reduce"
)

// box is an axis-aligned occluder at constant depth.
type box struct {
	x, y, w, h int
	depth      float32
	dx         int
}

// scene is a synthetic depth buffer: a far background sloping towards the
// camera at the bottom, with occluder boxes sliding horizontally each frame.
type scene struct {
	width, height int
	boxes         []box
}

func newScene(v ViewConfig) *scene {
	w, h := int(v.Width), int(v.Height)
	rng := rand.New(rand.NewPCG(v.Seed, v.Seed^0x9e3779b97f4a7c15))
	s := &scene{width: w, height: h}
	for range v.Occluders {
		b := box{
			x:     rng.IntN(w),
			y:     rng.IntN(h),
			w:     1 + rng.IntN(max(w/4, 1)),
			h:     1 + rng.IntN(max(h/4, 1)),
			depth: 0.1 + 0.8*rng.Float32(),
			dx:    rng.IntN(5) - 2,
		}
		s.boxes = append(s.boxes, b)
	}
	return s
}

// render draws the scene as it looks at frame.
func (s *scene) render(frame uint64) *reduce.Image {
	img := reduce.NewImage(s.width, s.height)
	for y := 0; y < s.height; y++ {
		far := 1 - 0.25*float32(y)/float32(max(s.height-1, 1))
		for x := 0; x < s.width; x++ {
			img.Set(x, y, far)
		}
	}
	for _, b := range s.boxes {
		x0 := wrap(b.x+b.dx*int(frame), s.width)
		for y := b.y; y < min(b.y+b.h, s.height); y++ {
			for i := 0; i < b.w; i++ {
				x := x0 + i
				if x >= s.width {
					break
				}
				if b.depth < img.At(x, y) {
					img.Set(x, y, b.depth)
				}
			}
		}
	}
	return img
}

func wrap(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}
