// Package app is the root Bubble Tea model of the terminal viewer.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mediawatch/backend/internal/engine"
	"github.com/mediawatch/backend/internal/media"
	"github.com/mediawatch/backend/internal/notify"
	"github.com/mediawatch/backend/internal/tui/client"
	"github.com/mediawatch/backend/internal/tui/theme"
)

// Conn is what the model needs from the websocket client.
type Conn interface {
	Connect(ctx context.Context) tea.Cmd
	ReadNext() tea.Cmd
	Close()
}

type Model struct {
	conn   Conn
	ctx    context.Context
	cancel context.CancelFunc
	keys   KeyMap

	width  int
	height int

	connected bool
	attempts  int
	lastErr   error

	mode     engine.Mode
	state    notify.Snapshot
	sessions []engine.SessionView
	focused  media.SessionID
	art      media.SessionID
	palette  *media.Palette

	selected    int
	showPalette bool
}

func New(conn Conn) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		conn:        conn,
		ctx:         ctx,
		cancel:      cancel,
		keys:        DefaultKeyMap(),
		showPalette: true,
	}
}

func (m Model) Init() tea.Cmd {
	return m.conn.Connect(m.ctx)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case client.ConnectedMsg:
		m.connected = true
		m.attempts = 0
		m.lastErr = nil
		return m, m.conn.ReadNext()

	case client.RetryMsg:
		m.attempts++
		m.lastErr = msg.Err
		return m, m.conn.Connect(m.ctx)

	case client.DisconnectedMsg:
		m.connected = false
		m.lastErr = msg.Err
		return m, m.conn.Connect(m.ctx)

	case client.SnapshotMsg:
		m.mode = msg.Payload.Mode
		m.state = msg.Payload.State
		m.sessions = msg.Payload.Sessions
		m.focused = msg.Payload.Focused
		m.art = ""
		m.palette = nil
		for _, s := range m.sessions {
			if s.ArtHead {
				m.art = s.ID
				m.palette = s.Palette
			}
		}
		m.clampSelection()
		return m, m.conn.ReadNext()

	case client.StateMsg:
		m.state = msg.State
		return m, m.conn.ReadNext()

	case client.FocusedMsg:
		m.focused = msg.Payload.Session
		for i := range m.sessions {
			s := &m.sessions[i]
			s.Focused = s.ID == m.focused
			if s.Focused && msg.Payload.Playback != nil {
				s.Playback = msg.Payload.Playback
			}
		}
		return m, m.conn.ReadNext()

	case client.ArtMsg:
		m.art, m.palette = msg.Payload.Session, msg.Payload.Palette
		if m.palette == nil {
			m.art = ""
		}
		return m, m.conn.ReadNext()

	case client.PropertiesMsg:
		p := msg.Payload
		for i := range m.sessions {
			if m.sessions[i].ID == p.Session {
				m.sessions[i].Metadata.Title = p.Title
				m.sessions[i].Metadata.Artist = p.Artist
				m.sessions[i].Metadata.Album = p.Album
				m.sessions[i].Metadata.Kind = p.Kind
				m.sessions[i].HasArt = p.HasArt
			}
		}
		return m, m.conn.ReadNext()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		m.conn.Close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Down):
		if len(m.sessions) > 0 {
			m.selected = (m.selected + 1) % len(m.sessions)
		}
	case key.Matches(msg, m.keys.Up):
		if len(m.sessions) > 0 {
			m.selected = (m.selected - 1 + len(m.sessions)) % len(m.sessions)
		}
	case key.Matches(msg, m.keys.Palette):
		m.showPalette = !m.showPalette
	}
	return m, nil
}

func (m *Model) clampSelection() {
	if m.selected >= len(m.sessions) {
		m.selected = max(0, len(m.sessions)-1)
	}
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if !m.connected {
		return m.renderDisconnected()
	}

	sections := []string{
		m.renderStatus(),
		m.renderFlags(),
		m.renderSessions(),
	}
	if m.showPalette {
		sections = append(sections, m.renderPalette())
	}
	sections = append(sections, theme.StyleDimmed.Render("  j/k:select  p:palette  q:quit"))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderDisconnected() string {
	lines := []string{
		lipgloss.NewStyle().Foreground(theme.ColorDanger).Bold(true).Render("DISCONNECTED"),
		theme.StyleDimmed.Render(fmt.Sprintf("Reconnecting... (attempt %d)", m.attempts+1)),
	}
	if m.lastErr != nil {
		lines = append(lines, theme.StyleDimmed.Render(m.lastErr.Error()))
	}
	box := theme.StyleBorder.Padding(1, 3).Render(lipgloss.JoinVertical(lipgloss.Center, lines...))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m Model) renderStatus() string {
	conn := lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := conn + sep + fmt.Sprintf("mode %s", m.mode) + sep + fmt.Sprintf("%d sessions", len(m.sessions))
	return lipgloss.NewStyle().
		Width(max(m.width-2, 40)).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func (m Model) renderFlags() string {
	s := m.state
	flags := strings.Join([]string{
		theme.Flag("media", s.HasMedia),
		theme.Flag("playing", s.MediaPlaying),
		theme.Flag("next", s.HasNextMedia),
		theme.Flag("prev", s.HasPreviousMedia),
		theme.Flag("art", s.HasArt),
	}, "  ")

	now := theme.StyleDimmed.Render("nothing playing")
	if s.HasMedia {
		title := s.Title
		if s.Artist != "" {
			title += " - " + s.Artist
		}
		status := lipgloss.NewStyle().Foreground(theme.StatusColor(s.MediaState)).
			Render(theme.StatusGlyph(s.MediaState) + " " + s.MediaState.String())
		now = status + "  " + theme.StyleHeader.Render(s.SessionName)
		if title != "" {
			now += "  " + title
		}
	}
	return "  " + now + "\n  " + flags
}

func (m Model) renderSessions() string {
	lines := []string{theme.StyleHeader.Render("=== SESSIONS ===")}
	if len(m.sessions) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, append(lines, theme.StyleDimmed.Render("  No sessions"))...)
	}
	for i, s := range m.sessions {
		prefix := "  "
		if i == m.selected {
			prefix = "> "
		}
		lines = append(lines, prefix+m.renderSessionLine(s))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderSessionLine(s engine.SessionView) string {
	status := media.StatusClosed
	if s.Playback != nil {
		status = s.Playback.Status
	}
	glyph := lipgloss.NewStyle().Foreground(theme.StatusColor(status)).Render(theme.StatusGlyph(status))

	markers := ""
	if s.ID == m.focused {
		markers += lipgloss.NewStyle().Foreground(theme.ColorAccent).Render("[focus]")
	}
	if s.HasArt {
		tag := "[art]"
		if s.ID == m.art {
			tag = "[art*]"
		}
		markers += lipgloss.NewStyle().Foreground(theme.ColorWarning).Render(tag)
	}

	name := displayName(s, 28)
	line := glyph + " " + name
	if s.Metadata.Title != "" {
		line += "  " + theme.StyleDimmed.Render(s.Metadata.Title)
	}
	if markers != "" {
		line += "  " + markers
	}
	return line
}

func (m Model) renderPalette() string {
	if m.palette == nil {
		return theme.StyleDimmed.Render("  no art")
	}
	var blocks []string
	for _, c := range m.palette.Swatches() {
		blocks = append(blocks, theme.Swatch(c, 4))
	}
	return "  " + strings.Join(blocks, " ") + "  " + theme.StyleDimmed.Render(string(m.art))
}

// displayName truncates a session id to maxLen characters.
func displayName(s engine.SessionView, maxLen int) string {
	name := string(s.ID)
	if len(name) > maxLen {
		name = name[:maxLen-3] + "..."
	}
	return name
}
