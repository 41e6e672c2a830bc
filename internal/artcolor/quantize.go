package artcolor

import (
	"image"
	"sort"

	"github.com/mediawatch/backend/internal/media"
)

// bucket accumulates the pixels that fall into one 5-bit-per-channel cell.
type bucket struct {
	key     uint16
	r, g, b uint64
	n       int
}

func (b bucket) color() media.Color {
	return media.Color{
		R: uint8(b.r / uint64(b.n)),
		G: uint8(b.g / uint64(b.n)),
		B: uint8(b.b / uint64(b.n)),
	}
}

// quantize samples at most maxSamples opaque pixels of img and returns the
// populated buckets, most populous first.
func quantize(img image.Image, maxSamples int) []bucket {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return nil
	}
	step := 1
	for total/(step*step) > maxSamples {
		step++
	}

	cells := make(map[uint16]*bucket)
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			r, g, b, a := img.At(x, y).RGBA()
			if a < minAlpha {
				continue
			}
			// RGBA is alpha-premultiplied.
			r8 := uint8((r * 0xffff / a) >> 8)
			g8 := uint8((g * 0xffff / a) >> 8)
			b8 := uint8((b * 0xffff / a) >> 8)

			key := uint16(r8>>3)<<10 | uint16(g8>>3)<<5 | uint16(b8>>3)
			c, ok := cells[key]
			if !ok {
				c = &bucket{key: key}
				cells[key] = c
			}
			c.r += uint64(r8)
			c.g += uint64(g8)
			c.b += uint64(b8)
			c.n++
		}
	}

	out := make([]bucket, 0, len(cells))
	for _, c := range cells {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].key < out[j].key
	})
	return out
}
