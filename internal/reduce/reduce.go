package reduce

import "fmt"

// Op folds two depth values into one.
type Op uint8

const (
	// Max keeps the farthest value under standard depth.
	Max Op = iota
	// Min keeps the farthest value under reversed-Z.
	Min
)

func (op Op) String() string {
	switch op {
	case Max:
		return "max"
	case Min:
		return "min"
	default:
		return fmt.Sprintf("Op(%d)", op)
	}
}

// Apply returns op(a, b).
func (op Op) Apply(a, b float32) float32 {
	if op == Min {
		return min(a, b)
	}
	return max(a, b)
}

// Image is a single-channel float image stored row-major.
type Image struct {
	Width  int
	Height int
	Pix    []float32
}

// NewImage returns a zeroed width x height image.
func NewImage(width, height int) *Image {
	return &Image{Width: width, Height: height, Pix: make([]float32, width*height)}
}

// At returns the texel at (x, y).
func (m *Image) At(x, y int) float32 {
	return m.Pix[y*m.Width+x]
}

// Set stores v at (x, y).
func (m *Image) Set(x, y int, v float32) {
	m.Pix[y*m.Width+x] = v
}

// Fill sets every texel to v.
func (m *Image) Fill(v float32) {
	for i := range m.Pix {
		m.Pix[i] = v
	}
}

// Clone returns a deep copy of m.
func (m *Image) Clone() *Image {
	c := &Image{Width: m.Width, Height: m.Height, Pix: make([]float32, len(m.Pix))}
	copy(c.Pix, m.Pix)
	return c
}

// Equal reports whether m and o have the same size and bitwise-equal texels.
func (m *Image) Equal(o *Image) bool {
	if m.Width != o.Width || m.Height != o.Height {
		return false
	}
	for i, v := range m.Pix {
		if v != o.Pix[i] {
			return false
		}
	}
	return true
}

// Span returns the source range [lo, hi) folded into output index i when a
// source axis of srcSize texels is reduced to dstSize texels.
func Span(i, dstSize, srcSize int) (lo, hi int) {
	lo = 2 * i
	hi = min(lo+2, srcSize)
	if i == dstSize-1 {
		hi = srcSize
	}
	return lo, hi
}

// Footprint returns the level-0 range [lo, hi) covered by texel i of a level
// that is shift halvings below a level-0 axis of baseSize texels, where
// size is the texel count of that level.
func Footprint(i, size, shift, baseSize int) (lo, hi int) {
	lo = i << shift
	if i == size-1 {
		return lo, baseSize
	}
	return lo, (i + 1) << shift
}

// Rect folds every texel of src in [x0, x1) x [y0, y1).
func Rect(src *Image, x0, y0, x1, y1 int, op Op) float32 {
	acc := src.At(x0, y0)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			acc = op.Apply(acc, src.At(x, y))
		}
	}
	return acc
}

// Texel computes output texel (x, y) of dst from src.
func Texel(dst, src *Image, x, y int, op Op) float32 {
	x0, x1 := Span(x, dst.Width, src.Width)
	y0, y1 := Span(y, dst.Height, src.Height)
	return Rect(src, x0, y0, x1, y1, op)
}

// Downsample writes every texel of dst from src.
func Downsample(dst, src *Image, op Op) {
	for y := 0; y < dst.Height; y++ {
		for x := 0; x < dst.Width; x++ {
			dst.Set(x, y, Texel(dst, src, x, y, op))
		}
	}
}

// Pyramid builds levels images from src by repeated halving (floored at 1).
// Index 0 is src itself.
func Pyramid(src *Image, levels int, op Op) []*Image {
	if levels < 1 {
		return nil
	}
	out := make([]*Image, levels)
	out[0] = src
	for l := 1; l < levels; l++ {
		prev := out[l-1]
		next := NewImage(max(prev.Width/2, 1), max(prev.Height/2, 1))
		Downsample(next, prev, op)
		out[l] = next
	}
	return out
}
