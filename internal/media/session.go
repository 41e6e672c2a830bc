package media

import (
	"context"
	"io"
	"sync"
)

// Session is a non-owning handle to one OS transport-control endpoint.
// The provider owns it; a handle may become invalid at any time after the
// provider reports the session closed.
type Session interface {
	ID() SessionID

	// Valid reports whether the underlying control handle can still be
	// queried.
	Valid() bool

	// PlaybackInfo reads the current playback state. It returns
	// ErrStaleHandle when the control handle is gone.
	PlaybackInfo() (PlaybackSnapshot, error)

	// Properties reads the current metadata block. It returns
	// ErrStaleHandle when the control handle is gone.
	Properties() (Properties, error)

	// SubscribePlayback registers fn for playback-state changes on this
	// session. fn receives nil when the provider reported no playback info.
	// Implementations must not invoke fn synchronously from inside
	// SubscribePlayback.
	SubscribePlayback(fn func(*PlaybackSnapshot)) (Registration, error)
}

// Registration is the token returned by a subscribe call. Release is
// idempotent and stops further callbacks.
type Registration interface {
	Release()
}

// ReleaseOnce adapts release to a Registration that runs it at most once,
// however many times Release is called and from however many goroutines.
func ReleaseOnce(release func()) Registration {
	return &onceRegistration{release: release}
}

type onceRegistration struct {
	once    sync.Once
	release func()
}

func (r *onceRegistration) Release() { r.once.Do(r.release) }

// Thumbnail is a handle to a session's art bytes.
type Thumbnail interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}
