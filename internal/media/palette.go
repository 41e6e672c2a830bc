package media

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Color is an opaque 8-bit RGB colour.
type Color struct {
	R, G, B uint8
}

func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c Color) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Hex())
}

func (c *Color) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseHex(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseHex parses "#rrggbb".
func ParseHex(s string) (Color, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return Color{}, fmt.Errorf("invalid hex colour %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid hex colour %q: %w", s, err)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// Palette is the colour swatch derived from a session's thumbnail.
type Palette struct {
	Dominant     Color `json:"dominant"`
	Vibrant      Color `json:"vibrant"`
	LightVibrant Color `json:"lightVibrant"`
	DarkVibrant  Color `json:"darkVibrant"`
	Muted        Color `json:"muted"`
	LightMuted   Color `json:"lightMuted"`
	DarkMuted    Color `json:"darkMuted"`
}

// Swatches returns the palette entries in display order.
func (p Palette) Swatches() []Color {
	return []Color{p.Dominant, p.Vibrant, p.LightVibrant, p.DarkVibrant, p.Muted, p.LightMuted, p.DarkMuted}
}
