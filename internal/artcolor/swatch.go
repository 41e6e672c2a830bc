package artcolor

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/mediawatch/backend/internal/media"
)

type swatch struct {
	c       colorful.Color
	h, s, l float64
	pop     int
}

// target describes one swatch slot as HSL lightness and saturation windows.
type target struct {
	minL, tL, maxL float64
	minS, tS, maxS float64
}

var (
	vibrant      = target{minL: 0.3, tL: 0.5, maxL: 0.7, minS: 0.35, tS: 1, maxS: 1}
	lightVibrant = target{minL: 0.55, tL: 0.74, maxL: 1, minS: 0.35, tS: 1, maxS: 1}
	darkVibrant  = target{minL: 0, tL: 0.26, maxL: 0.45, minS: 0.35, tS: 1, maxS: 1}
	muted        = target{minL: 0.3, tL: 0.5, maxL: 0.7, minS: 0, tS: 0.3, maxS: 0.4}
	lightMuted   = target{minL: 0.55, tL: 0.74, maxL: 1, minS: 0, tS: 0.3, maxS: 0.4}
	darkMuted    = target{minL: 0, tL: 0.26, maxL: 0.45, minS: 0, tS: 0.3, maxS: 0.4}
)

func (t target) accepts(s swatch) bool {
	return s.l >= t.minL && s.l <= t.maxL && s.s >= t.minS && s.s <= t.maxS
}

func (t target) score(s swatch, maxPop int) float64 {
	return (1-math.Abs(s.s-t.tS))*3 +
		(1-math.Abs(s.l-t.tL))*6.5 +
		float64(s.pop)/float64(maxPop)*0.5
}

// synth builds a colour for t from base's hue when no bucket qualified.
func (t target) synth(base swatch) colorful.Color {
	s := math.Min(math.Max(base.s, t.minS), t.maxS)
	return colorful.Hsl(base.h, s, t.tL).Clamped()
}

// derive turns populated buckets (most populous first) into a palette.
func derive(buckets []bucket) media.Palette {
	swatches := make([]swatch, len(buckets))
	for i, b := range buckets {
		mc := b.color()
		c := colorful.Color{R: float64(mc.R) / 255, G: float64(mc.G) / 255, B: float64(mc.B) / 255}
		h, s, l := c.Hsl()
		swatches[i] = swatch{c: c, h: h, s: s, l: l, pop: b.n}
	}
	maxPop := swatches[0].pop

	used := make(map[int]bool)
	pick := func(t target) (swatch, bool) {
		best, bestScore := -1, math.Inf(-1)
		for i, s := range swatches {
			if used[i] || !t.accepts(s) {
				continue
			}
			if sc := t.score(s, maxPop); sc > bestScore {
				best, bestScore = i, sc
			}
		}
		if best < 0 {
			return swatch{}, false
		}
		used[best] = true
		return swatches[best], true
	}

	type slot struct {
		t   target
		s   swatch
		ok  bool
		out *media.Color
	}
	var p media.Palette
	p.Dominant = toMedia(swatches[0].c)
	vivid := []*slot{
		{t: vibrant, out: &p.Vibrant},
		{t: lightVibrant, out: &p.LightVibrant},
		{t: darkVibrant, out: &p.DarkVibrant},
	}
	soft := []*slot{
		{t: muted, out: &p.Muted},
		{t: lightMuted, out: &p.LightMuted},
		{t: darkMuted, out: &p.DarkMuted},
	}
	for _, group := range [][]*slot{vivid, soft} {
		for _, sl := range group {
			sl.s, sl.ok = pick(sl.t)
		}
	}
	for _, group := range [][]*slot{vivid, soft} {
		base := swatches[0]
		for _, sl := range group {
			if sl.ok {
				base = sl.s
				break
			}
		}
		for _, sl := range group {
			if sl.ok {
				*sl.out = toMedia(sl.s.c)
			} else {
				*sl.out = toMedia(sl.t.synth(base))
			}
		}
	}
	return p
}

func toMedia(c colorful.Color) media.Color {
	r, g, b := c.Clamped().RGB255()
	return media.Color{R: r, G: g, B: b}
}
