package engine

import (
	"github.com/mediawatch/backend/internal/media"
)

// Event is one provider notification (or an internal completion) applied by
// the engine. The set is closed.
type Event interface {
	eventName() string
}

// SessionOpened reports a new transport-control session.
type SessionOpened struct {
	Session media.Session
}

// SessionClosed reports that a session went away.
type SessionClosed struct {
	Session media.Session
}

// FocusChanged reports the OS focus target. A nil Session means nothing is
// focused.
type FocusChanged struct {
	Session media.Session
}

// PropertiesChanged carries a session's metadata block; a nil
// Properties.Thumbnail means the session exposes no art.
type PropertiesChanged struct {
	Session    media.Session
	Properties media.Properties
}

// HasThumbnail reports whether the event carries art.
func (ev PropertiesChanged) HasThumbnail() bool {
	return ev.Properties.HasThumbnail()
}

// PlaybackChanged carries a fresh playback snapshot; nil means the provider
// delivered no playback info.
type PlaybackChanged struct {
	Session  media.Session
	Snapshot *media.PlaybackSnapshot

	// token is set for deliveries through a focus registration.
	token uint64
}

// extractionTicket identifies the exact request an extraction result
// belongs to.
type extractionTicket struct {
	session    media.SessionID
	generation uint64
	request    uint64
	epoch      uint64
}

type artExtracted struct {
	ticket  extractionTicket
	palette media.Palette
	err     error
}

func (SessionOpened) eventName() string     { return "session_opened" }
func (SessionClosed) eventName() string     { return "session_closed" }
func (FocusChanged) eventName() string      { return "focus_changed" }
func (PropertiesChanged) eventName() string { return "properties_changed" }
func (PlaybackChanged) eventName() string   { return "playback_changed" }
func (artExtracted) eventName() string      { return "art_extracted" }

// EventName returns the stable name used in logs and metrics.
func EventName(ev Event) string {
	return ev.eventName()
}
