// Package focus holds the single focused session and the one playback
// registration that belongs to it.
package focus

import (
	"fmt"

	"github.com/mediawatch/backend/internal/media"
)

// SubscribeFunc opens the playback registration for a newly focused
// session. token identifies the focus period; callbacks delivered through
// the registration should carry it so stale deliveries can be recognised.
type SubscribeFunc func(sess media.Session, token uint64) (media.Registration, error)

// Tracker is not safe for concurrent use; the engine serializes access.
type Tracker struct {
	current media.Session
	reg     media.Registration
	token   uint64
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Focus releases the previous registration, then subscribes to sess. The
// release always happens before the new subscribe call. On subscribe
// failure nothing is focused.
func (t *Tracker) Focus(sess media.Session, subscribe SubscribeFunc) (uint64, error) {
	t.Clear()
	t.token++
	reg, err := subscribe(sess, t.token)
	if err != nil {
		return 0, fmt.Errorf("subscribe playback for %s: %w", sess.ID(), err)
	}
	t.current = sess
	t.reg = reg
	return t.token, nil
}

// Clear releases the registration and drops focus. The token advances so
// callbacks from the released registration no longer match.
func (t *Tracker) Clear() {
	if t.reg != nil {
		t.reg.Release()
		t.reg = nil
	}
	if t.current != nil {
		t.current = nil
		t.token++
	}
}

func (t *Tracker) Current() (media.Session, bool) {
	return t.current, t.current != nil
}

// ID returns the focused session id, or "" when nothing is focused.
func (t *Tracker) ID() media.SessionID {
	if t.current == nil {
		return ""
	}
	return t.current.ID()
}

// Is reports whether id is the focused session.
func (t *Tracker) Is(id media.SessionID) bool {
	return t.current != nil && t.current.ID() == id
}

// Live reports whether token belongs to the current focus period.
func (t *Tracker) Live(token uint64) bool {
	return t.current != nil && token == t.token
}

// Subscribed reports whether a registration is currently held.
func (t *Tracker) Subscribed() bool {
	return t.reg != nil
}
