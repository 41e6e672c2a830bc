package engine

import (
	"github.com/mediawatch/backend/internal/media"
	"github.com/mediawatch/backend/internal/notify"
)

// refresh re-derives the aggregate snapshot and publishes it when it
// changed. It runs once per applied event so the snapshot is never
// observed half-updated.
func (e *Engine) refresh() {
	next := e.derive()
	e.obs.Tracked(e.store.Len(), e.art.Len())
	if next == e.snap {
		return
	}
	e.snap = next
	e.publish(notify.SnapshotChanged(next))
}

func (e *Engine) derive() notify.Snapshot {
	s := notify.Snapshot{HasArt: e.art.Len() > 0}
	signal := e.policy.signal()

	if e.policy.Mode == ModeAnySession {
		name := e.focus.ID()
		if name == "" {
			name = e.lastEvent
		}
		for _, entry := range e.store.All() {
			s.HasMedia = true
			p := entry.Playback
			if p == nil || !p.Usable() {
				continue
			}
			s.HasNextMedia = s.HasNextMedia || p.Controls.NextEnabled
			s.HasPreviousMedia = s.HasPreviousMedia || p.Controls.PreviousEnabled
			s.MediaPlaying = s.MediaPlaying || playing(signal, p)
		}
		if entry, ok := e.store.Get(name); ok {
			s.SessionName = name.String()
			s.Title, s.Artist, s.Kind = entry.Metadata.Title, entry.Metadata.Artist, entry.Metadata.Kind
			if entry.Playback != nil {
				s.MediaState = entry.Playback.Status
			}
		}
		return s
	}

	entry, ok := e.store.Get(e.focus.ID())
	if !ok {
		return s
	}
	s.HasMedia = true
	s.SessionName = entry.ID().String()
	s.Title, s.Artist, s.Kind = entry.Metadata.Title, entry.Metadata.Artist, entry.Metadata.Kind
	if p := entry.Playback; p != nil && p.Usable() {
		s.HasNextMedia = p.Controls.NextEnabled
		s.HasPreviousMedia = p.Controls.PreviousEnabled
		s.MediaPlaying = playing(signal, p)
		s.MediaState = p.Status
	}
	return s
}

func playing(signal PlayingSignal, p *media.PlaybackSnapshot) bool {
	switch signal {
	case SignalPlayDisabled:
		return p.Controls != nil && !p.Controls.PlayEnabled
	default:
		return p.Status == media.StatusPlaying
	}
}
