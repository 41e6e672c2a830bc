package notify

import (
	"time"

	"github.com/mediawatch/backend/internal/media"
)

// Kind identifies an outward notification.
type Kind string

const (
	KindFocusedMediaChanged    Kind = "focused_media_changed"
	KindArtStateChanged        Kind = "art_state_changed"
	KindMediaPropertiesChanged Kind = "media_properties_changed"
	KindSnapshotChanged        Kind = "snapshot_changed"
)

// FocusedMediaChanged reports the session whose playback is current. An
// empty Session with nil Playback is the "no media" notification.
type FocusedMediaChanged struct {
	Session  media.SessionID         `json:"session,omitempty"`
	Playback *media.PlaybackSnapshot `json:"playback,omitempty"`
}

// ArtStateChanged reports the art head's palette. A nil Palette tells the
// consumer there is no art to show.
type ArtStateChanged struct {
	Session media.SessionID `json:"session,omitempty"`
	Palette *media.Palette  `json:"palette,omitempty"`
}

type MediaPropertiesChanged struct {
	Session media.SessionID `json:"session"`
	Title   string          `json:"title,omitempty"`
	Artist  string          `json:"artist,omitempty"`
	Album   string          `json:"album,omitempty"`
	Kind    media.Kind      `json:"kind,omitempty"`
	HasArt  bool            `json:"hasArt"`
}

// Snapshot is the aggregate view derived after every applied event.
type Snapshot struct {
	HasMedia         bool         `json:"hasMedia"`
	HasNextMedia     bool         `json:"hasNextMedia"`
	HasPreviousMedia bool         `json:"hasPreviousMedia"`
	MediaPlaying     bool         `json:"mediaPlaying"`
	MediaState       media.Status `json:"mediaState"`
	SessionName      string       `json:"sessionName"`
	HasArt           bool         `json:"hasArt"`
	Title            string       `json:"title,omitempty"`
	Artist           string       `json:"artist,omitempty"`
	Kind             media.Kind   `json:"kind,omitempty"`
}

// Notification carries exactly one payload matching Kind.
type Notification struct {
	Kind       Kind
	At         time.Time
	Focused    *FocusedMediaChanged
	Art        *ArtStateChanged
	Properties *MediaPropertiesChanged
	Snapshot   *Snapshot
}

func Focused(ev FocusedMediaChanged) Notification {
	return Notification{Kind: KindFocusedMediaChanged, At: time.Now(), Focused: &ev}
}

func Art(ev ArtStateChanged) Notification {
	return Notification{Kind: KindArtStateChanged, At: time.Now(), Art: &ev}
}

func Properties(ev MediaPropertiesChanged) Notification {
	return Notification{Kind: KindMediaPropertiesChanged, At: time.Now(), Properties: &ev}
}

func SnapshotChanged(s Snapshot) Notification {
	return Notification{Kind: KindSnapshotChanged, At: time.Now(), Snapshot: &s}
}

// Payload returns the non-nil payload for the notification's kind.
func (n Notification) Payload() interface{} {
	switch n.Kind {
	case KindFocusedMediaChanged:
		return n.Focused
	case KindArtStateChanged:
		return n.Art
	case KindMediaPropertiesChanged:
		return n.Properties
	case KindSnapshotChanged:
		return n.Snapshot
	}
	return nil
}
