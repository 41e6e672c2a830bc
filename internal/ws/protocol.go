package ws

import (
	"github.com/mediawatch/backend/internal/engine"
	"github.com/mediawatch/backend/internal/media"
	"github.com/mediawatch/backend/internal/notify"
)

type MessageType string

const (
	MsgSnapshot   MessageType = "snapshot"
	MsgState      MessageType = "state"
	MsgFocused    MessageType = "focused"
	MsgArt        MessageType = "art"
	MsgProperties MessageType = "properties"
	MsgError      MessageType = "error"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// SnapshotPayload is the full view sent on connect and on every snapshot
// interval.
type SnapshotPayload struct {
	State    notify.Snapshot      `json:"state"`
	Sessions []engine.SessionView `json:"sessions"`
	Focused  media.SessionID      `json:"focused,omitempty"`
	Mode     engine.Mode          `json:"mode"`
}

// SessionsPayload answers /api/sessions.
type SessionsPayload struct {
	Sessions []media.SessionID `json:"sessions"`
	Art      []media.SessionID `json:"art"`
	Focused  media.SessionID   `json:"focused,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
