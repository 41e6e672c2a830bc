// Package theme provides the Lip Gloss palette and reusable styles for the
// terminal viewer. It is a leaf package with no internal imports besides
// media.
package theme

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mediawatch/backend/internal/media"
)

// Playback status colors.
var (
	ColorPlaying  = lipgloss.Color("#22c55e")
	ColorPaused   = lipgloss.Color("#d97706")
	ColorStopped  = lipgloss.Color("#6b7280")
	ColorChanging = lipgloss.Color("#7c3aed")
	ColorClosed   = lipgloss.Color("#374151")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
	ColorAccent  = lipgloss.Color("#3b82f6")
)

// StatusColor returns the color for a playback status.
func StatusColor(s media.Status) lipgloss.Color {
	switch s {
	case media.StatusPlaying:
		return ColorPlaying
	case media.StatusPaused:
		return ColorPaused
	case media.StatusStopped:
		return ColorStopped
	case media.StatusChanging:
		return ColorChanging
	default:
		return ColorClosed
	}
}

// StatusGlyph returns a glyph for a playback status.
func StatusGlyph(s media.Status) string {
	switch s {
	case media.StatusPlaying:
		return "▶"
	case media.StatusPaused:
		return "⏸"
	case media.StatusStopped:
		return "■"
	case media.StatusChanging:
		return "…"
	default:
		return "·"
	}
}

// Swatch renders one palette entry as a colored block.
func Swatch(c media.Color, width int) string {
	return lipgloss.NewStyle().Background(lipgloss.Color(c.Hex())).Render(strings.Repeat(" ", width))
}

// Flag renders a boolean aggregate flag.
func Flag(name string, on bool) string {
	if on {
		return lipgloss.NewStyle().Foreground(ColorHealthy).Render("● " + name)
	}
	return StyleDimmed.Render("○ " + name)
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)
)
