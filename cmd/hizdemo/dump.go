package main

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"

	"github.com/gogpu/hiz/internal/reduce"
)

// gray16 converts a depth image to 16-bit gray, clamping to [0, 1].
// Unwritten texels (negative) come out black.
func gray16(m *reduce.Image) *image.Gray16 {
	out := image.NewGray16(image.Rect(0, 0, m.Width, m.Height))
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			v := min(max(m.At(x, y), 0), 1)
			i := out.PixOffset(x, y)
			g := uint16(v*65535 + 0.5)
			out.Pix[i] = uint8(g >> 8)
			out.Pix[i+1] = uint8(g)
		}
	}
	return out
}

// writeLevels writes one deflate-compressed TIFF per level into dir and
// returns the file names.
func writeLevels(dir, prefix string, levels []*reduce.Image) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(levels))
	for i, m := range levels {
		name := filepath.Join(dir, fmt.Sprintf("%s_mip%02d.tiff", prefix, i))
		if err := writeTIFF(name, gray16(m)); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, nil
}

func writeTIFF(name string, img image.Image) (err error) {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return nil
}
