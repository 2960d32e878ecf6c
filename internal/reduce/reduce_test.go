package reduce

import (
	"math/rand/v2"
	"testing"
)

func TestSpan(t *testing.T) {
	tests := []struct {
		i, dst, src int
		lo, hi      int
	}{
		{0, 2, 4, 0, 2},
		{1, 2, 4, 2, 4},
		{1, 2, 5, 2, 5},
		{0, 1, 1, 0, 1},
		{0, 1, 3, 0, 3},
		{3, 4, 9, 6, 9},
	}
	for _, tt := range tests {
		lo, hi := Span(tt.i, tt.dst, tt.src)
		if lo != tt.lo || hi != tt.hi {
			t.Errorf("Span(%d, %d, %d) = [%d, %d), want [%d, %d)", tt.i, tt.dst, tt.src, lo, hi, tt.lo, tt.hi)
		}
	}
}

func TestFootprint(t *testing.T) {
	tests := []struct {
		i, size, shift, base int
		lo, hi               int
	}{
		{0, 4, 1, 8, 0, 2},
		{3, 4, 1, 8, 6, 8},
		{2, 3, 2, 13, 8, 13},
		{0, 1, 3, 5, 0, 5},
	}
	for _, tt := range tests {
		lo, hi := Footprint(tt.i, tt.size, tt.shift, tt.base)
		if lo != tt.lo || hi != tt.hi {
			t.Errorf("Footprint(%d, %d, %d, %d) = [%d, %d), want [%d, %d)",
				tt.i, tt.size, tt.shift, tt.base, lo, hi, tt.lo, tt.hi)
		}
	}
}

func indexImage(w, h int) *Image {
	m := NewImage(w, h)
	for i := range m.Pix {
		m.Pix[i] = float32(i)
	}
	return m
}

func TestPyramidOddSource(t *testing.T) {
	levels := Pyramid(indexImage(5, 3), 3, Max)

	if got := levels[1]; got.Width != 2 || got.Height != 1 {
		t.Fatalf("level 1 size = %dx%d, want 2x1", got.Width, got.Height)
	}
	// Texel 1 folds columns 2..4 and every row.
	if got := levels[1].Pix; got[0] != 11 || got[1] != 14 {
		t.Errorf("level 1 = %v, want [11 14]", got)
	}
	if got := levels[2].Pix; len(got) != 1 || got[0] != 14 {
		t.Errorf("level 2 = %v, want [14]", got)
	}

	minLevels := Pyramid(indexImage(5, 3), 3, Min)
	if got := minLevels[2].Pix[0]; got != 0 {
		t.Errorf("min pyramid apex = %v, want 0", got)
	}
}

func TestPyramidConservative(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, size := range [][2]int{{16, 16}, {13, 7}, {9, 1}, {1, 9}, {17, 33}} {
		src := NewImage(size[0], size[1])
		for i := range src.Pix {
			src.Pix[i] = rng.Float32()
		}

		n := 1
		for w, h := size[0], size[1]; w > 1 || h > 1; n++ {
			w, h = max(w/2, 1), max(h/2, 1)
		}
		levels := Pyramid(src, n, Max)
		apex := levels[n-1]
		if apex.Width != 1 || apex.Height != 1 {
			t.Fatalf("%v: apex is %dx%d, want 1x1", size, apex.Width, apex.Height)
		}
		if want := Rect(src, 0, 0, src.Width, src.Height, Max); apex.Pix[0] != want {
			t.Errorf("%v: apex = %v, want global max %v", size, apex.Pix[0], want)
		}

		// Every level texel equals the reduction of its level-0 footprint.
		for l := 1; l < n; l++ {
			lvl := levels[l]
			for y := 0; y < lvl.Height; y++ {
				for x := 0; x < lvl.Width; x++ {
					x0, x1 := Footprint(x, lvl.Width, l, src.Width)
					y0, y1 := Footprint(y, lvl.Height, l, src.Height)
					if want := Rect(src, x0, y0, x1, y1, Max); lvl.At(x, y) != want {
						t.Errorf("%v: level %d (%d,%d) = %v, footprint reduces to %v", size, l, x, y, lvl.At(x, y), want)
					}
				}
			}
		}
	}
}

func TestImageEqual(t *testing.T) {
	a := indexImage(3, 2)
	b := a.Clone()
	if !a.Equal(b) {
		t.Error("Clone() is not Equal to its source")
	}
	b.Set(2, 1, -1)
	if a.Equal(b) {
		t.Error("Equal() = true after Set on the clone")
	}
	if a.Equal(NewImage(2, 3)) {
		t.Error("Equal() = true for different sizes")
	}
}
