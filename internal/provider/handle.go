// Package provider holds the session handle shared by the concrete session
// providers under it.
package provider

import (
	"sync"

	"github.com/mediawatch/backend/internal/engine"
	"github.com/mediawatch/backend/internal/media"
)

// Handle is an in-process media.Session. Several handles may carry the same
// id at once; each one is a distinct logical session.
type Handle struct {
	id media.SessionID

	mu       sync.Mutex
	valid    bool
	playback media.PlaybackSnapshot
	props    media.Properties
	subs     map[uint64]func(*media.PlaybackSnapshot)
	nextSub  uint64
}

func NewHandle(id media.SessionID, playback media.PlaybackSnapshot, props media.Properties) *Handle {
	return &Handle{
		id:       id,
		valid:    true,
		playback: playback.Clone(),
		props:    props,
		subs:     make(map[uint64]func(*media.PlaybackSnapshot)),
	}
}

func (h *Handle) ID() media.SessionID { return h.id }

func (h *Handle) Valid() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.valid
}

func (h *Handle) PlaybackInfo() (media.PlaybackSnapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid {
		return media.PlaybackSnapshot{}, media.ErrStaleHandle
	}
	return h.playback.Clone(), nil
}

func (h *Handle) Properties() (media.Properties, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid {
		return media.Properties{}, media.ErrStaleHandle
	}
	return h.props, nil
}

func (h *Handle) SubscribePlayback(fn func(*media.PlaybackSnapshot)) (media.Registration, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid {
		return nil, media.ErrStaleHandle
	}
	key := h.nextSub
	h.nextSub++
	h.subs[key] = fn

	return media.ReleaseOnce(func() {
		h.mu.Lock()
		delete(h.subs, key)
		h.mu.Unlock()
	}), nil
}

// Subscribers reports the number of live playback registrations.
func (h *Handle) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Status returns the last playback status set on the handle.
func (h *Handle) Status() media.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playback.Status
}

// SetProperties replaces the metadata block.
func (h *Handle) SetProperties(p media.Properties) {
	h.mu.Lock()
	h.props = p
	h.mu.Unlock()
}

// SetPlayback stores snap and delivers it to every registration. It returns
// the number of callbacks invoked. Callbacks run on the caller's goroutine
// after the handle lock is released.
func (h *Handle) SetPlayback(snap media.PlaybackSnapshot) int {
	h.mu.Lock()
	h.playback = snap.Clone()
	fns := make([]func(*media.PlaybackSnapshot), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		c := snap.Clone()
		fn(&c)
	}
	return len(fns)
}

// Close invalidates the handle. Subscribers get a final Closed snapshot.
func (h *Handle) Close() {
	h.mu.Lock()
	if !h.valid {
		h.mu.Unlock()
		return
	}
	h.valid = false
	h.playback = media.NewPlaybackSnapshot(media.StatusClosed, nil, h.playback.Kind)
	fns := make([]func(*media.PlaybackSnapshot), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		closed := media.NewPlaybackSnapshot(media.StatusClosed, nil, media.KindUnknown)
		fn(&closed)
	}
}

// Deliver publishes snap for h. Focused handles deliver through their
// registration; everyone else reports straight to sink so any-session
// reconciliation sees every session.
func Deliver(sink engine.Sink, h *Handle, snap media.PlaybackSnapshot) {
	if h.SetPlayback(snap) > 0 {
		return
	}
	c := snap.Clone()
	sink.Post(engine.PlaybackChanged{Session: h, Snapshot: &c})
}

// Controls builds the control block a simple player exposes for status.
func Controls(status media.Status, hasQueue bool) *media.Controls {
	return &media.Controls{
		NextEnabled:     hasQueue,
		PreviousEnabled: hasQueue,
		PlayEnabled:     status != media.StatusPlaying,
	}
}
