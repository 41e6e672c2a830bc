package engine

import (
	"context"

	"github.com/mediawatch/backend/internal/media"
)

// Provider is the OS-facing source of session events. Implementations must
// not hold their own locks while calling Sink.Post, and Sessions must be
// safe to call from inside the engine while an event is being applied.
type Provider interface {
	// Start begins event delivery into sink. An error here is fatal to the
	// engine.
	Start(ctx context.Context, sink Sink) error

	// Stop ends delivery. It must be safe to call while a callback is in
	// flight.
	Stop() error

	// Sessions is a best-effort enumeration of currently known sessions.
	Sessions() map[media.SessionID]media.Session
}

// Sink receives provider events. Post never blocks.
type Sink interface {
	Post(ev Event)
}

// Extractor derives an art palette from a thumbnail.
type Extractor interface {
	Extract(ctx context.Context, thumb media.Thumbnail) (media.Palette, error)
}

// Observer receives engine telemetry. Calls happen inside the serialized
// path and must not block.
type Observer interface {
	EventApplied(event string)
	ExtractionFinished(result string)
	Anomaly(kind string)
	Tracked(sessions, artSessions int)
}

type nopObserver struct{}

func (nopObserver) EventApplied(string)       {}
func (nopObserver) ExtractionFinished(string) {}
func (nopObserver) Anomaly(string)            {}
func (nopObserver) Tracked(int, int)          {}
