// Package media holds the value types shared by the session aggregation
// engine, its providers and its consumers. It is a leaf package with no
// internal imports.
package media

import (
	"encoding/json"
	"fmt"
)

// SessionID is the provider-assigned identifier of a transport-control
// session. It is not unique over time: several logical sessions (browser
// tabs, for example) may share one id concurrently.
type SessionID string

func (id SessionID) String() string { return string(id) }

type Status int

const (
	StatusClosed Status = iota
	StatusStopped
	StatusPlaying
	StatusPaused
	StatusChanging
)

var statusNames = map[Status]string{
	StatusClosed:   "closed",
	StatusStopped:  "stopped",
	StatusPlaying:  "playing",
	StatusPaused:   "paused",
	StatusChanging: "changing",
}

var statusFromName = map[string]Status{
	"closed":   StatusClosed,
	"stopped":  StatusStopped,
	"playing":  StatusPlaying,
	"paused":   StatusPaused,
	"changing": StatusChanging,
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	v, ok := statusFromName[n]
	if !ok {
		return fmt.Errorf("unknown playback status %q", n)
	}
	*s = v
	return nil
}

// Kind is the media type reported by a session, when known.
type Kind string

const (
	KindUnknown Kind = ""
	KindMusic   Kind = "music"
	KindVideo   Kind = "video"
	KindImage   Kind = "image"
)

// Controls reports which transport buttons a session currently enables.
type Controls struct {
	NextEnabled     bool `json:"nextEnabled"`
	PreviousEnabled bool `json:"previousEnabled"`
	PlayEnabled     bool `json:"playEnabled"`
}

// PlaybackSnapshot is an immutable point-in-time read of a session's
// playback state. Controls is nil when the provider reported no control
// block at all.
type PlaybackSnapshot struct {
	Status   Status    `json:"status"`
	Controls *Controls `json:"controls,omitempty"`
	Kind     Kind      `json:"kind,omitempty"`
}

// NewPlaybackSnapshot builds a snapshot that owns its own copy of controls.
func NewPlaybackSnapshot(status Status, controls *Controls, kind Kind) PlaybackSnapshot {
	snap := PlaybackSnapshot{Status: status, Kind: kind}
	if controls != nil {
		c := *controls
		snap.Controls = &c
	}
	return snap
}

// Usable reports whether the snapshot describes a live session. Closed
// sessions and sessions without a control block are not usable.
func (p PlaybackSnapshot) Usable() bool {
	return p.Status != StatusClosed && p.Controls != nil
}

// Clone returns a copy whose Controls pointer is not shared.
func (p PlaybackSnapshot) Clone() PlaybackSnapshot {
	return NewPlaybackSnapshot(p.Status, p.Controls, p.Kind)
}

// Properties is the metadata block a session reports alongside its art.
type Properties struct {
	Title     string
	Artist    string
	Album     string
	Kind      Kind
	Thumbnail Thumbnail // nil when the session exposes no art
}

// HasThumbnail reports whether the properties carry art.
func (p Properties) HasThumbnail() bool {
	return p.Thumbnail != nil
}
