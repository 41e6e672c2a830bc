package engine

import (
	"errors"

	"github.com/mediawatch/backend/internal/media"
	"github.com/mediawatch/backend/internal/notify"
	"github.com/mediawatch/backend/internal/session"
)

// Anomaly kinds reported to the observer.
const (
	anomalyStaleHandle     = "stale_handle"
	anomalyCollision       = "identifier_collision"
	anomalyStalePlayback   = "stale_playback"
	anomalySubscribeFailed = "subscribe_failed"
)

func (e *Engine) onOpened(sess media.Session) {
	if sess == nil {
		return
	}
	entry, inserted := e.adopt(sess)
	if !inserted {
		return
	}
	if info, err := sess.PlaybackInfo(); err == nil && info.Usable() {
		e.store.SetPlayback(sess.ID(), info)
	}
	e.logger.Debug().
		Str("session", sess.ID().String()).
		Uint64("generation", entry.Generation).
		Msg("Session opened")
}

func (e *Engine) onClosed(sess media.Session) {
	if sess == nil {
		return
	}
	e.reconcileClosed(sess)
}

// adopt inserts sess, collapsing duplicates by id. A stored handle that
// died without a close notification is retired first so the new handle
// starts as a fresh instance.
func (e *Engine) adopt(sess media.Session) (session.Entry, bool) {
	entry, inserted := e.store.Add(sess)
	if inserted || entry.Session.Valid() || !sess.Valid() {
		return entry, inserted
	}
	id := sess.ID()
	e.obs.Anomaly(anomalyStaleHandle)
	e.logger.Debug().
		Str("session", id.String()).
		Uint64("generation", entry.Generation).
		Err(media.ErrStaleHandle).
		Msg("Replacing dead session handle")
	e.closeSession(id)
	return e.store.Add(sess)
}

// closeSession is the single removal path for every kind of close. It
// reports whether anything was tracked for id.
func (e *Engine) closeSession(id media.SessionID) bool {
	_, inStore := e.store.Remove(id)
	removed, wasHead := e.art.Remove(id)
	if wasHead {
		e.selectArtFallback(id)
	}
	focused := e.focus.Is(id)
	if focused {
		e.focus.Clear()
		e.publish(notify.Focused(notify.FocusedMediaChanged{}))
	}
	if e.lastEvent == id {
		e.lastEvent = ""
	}
	return inStore || removed || focused
}

// reconcileClosed removes sess and then re-adds its id when the provider
// still enumerates a live session under it. Several logical sessions can
// share one id, so a close for one of them must not drop the others.
func (e *Engine) reconcileClosed(sess media.Session) {
	e.reconcile(sess, e.focus.Is(sess.ID()))
}

// reconcile is reconcileClosed with an explicit choice of whether a re-added
// session takes focus. It reports whether focus ended up on the re-added
// session.
func (e *Engine) reconcile(sess media.Session, refocus bool) bool {
	id := sess.ID()
	gen := e.store.Generation(id)
	if !e.closeSession(id) {
		e.logger.Debug().Str("session", id.String()).Msg("Close for untracked session")
	}

	other, ok := e.provider.Sessions()[id]
	if !ok || other == nil || !other.Valid() {
		return false
	}
	info, err := other.PlaybackInfo()
	if err != nil || !info.Usable() {
		return false
	}

	entry, _ := e.store.Add(other)
	e.store.SetPlayback(id, info)
	e.obs.Anomaly(anomalyCollision)
	e.logger.Warn().
		Str("session", id.String()).
		Uint64("closed_generation", gen).
		Uint64("generation", entry.Generation).
		Err(media.ErrIdentifierCollision).
		Msg("Closed session id still enumerable, re-added")

	if !refocus {
		return false
	}
	return e.focusSession(other, &info)
}

func (e *Engine) onFocus(sess media.Session) {
	if sess == nil {
		e.focus.Clear()
		e.publish(notify.Focused(notify.FocusedMediaChanged{}))
		return
	}
	if !sess.Valid() {
		e.staleHandle(sess, "focus_changed")
		e.refocusOrClear(sess)
		return
	}
	e.adopt(sess)
	info, err := sess.PlaybackInfo()
	switch {
	case errors.Is(err, media.ErrStaleHandle):
		e.staleHandle(sess, "focus_changed")
		e.refocusOrClear(sess)
	case err != nil:
		// The handle is live, only the read failed. Focus it without a
		// snapshot; the registration delivers the next one.
		e.logger.Debug().Err(err).Str("session", sess.ID().String()).Msg("Playback read failed on focus")
		e.focusSession(sess, nil)
	case !info.Usable():
		e.refocusOrClear(sess)
	default:
		e.focusSession(sess, &info)
	}
}

// refocusOrClear handles a focus target that cannot be used: focus moves to
// a live session enumerated under the same id, or nothing is focused.
func (e *Engine) refocusOrClear(sess media.Session) {
	e.focus.Clear()
	if !e.reconcile(sess, true) {
		e.publish(notify.Focused(notify.FocusedMediaChanged{}))
	}
}

// focusSession moves focus to sess (release before subscribe) and applies
// info as its first playback snapshot. A nil info publishes the focus
// change without playback.
func (e *Engine) focusSession(sess media.Session, info *media.PlaybackSnapshot) bool {
	id := sess.ID()
	token, err := e.focus.Focus(sess, e.subscribePlayback)
	if err != nil {
		e.obs.Anomaly(anomalySubscribeFailed)
		e.logger.Warn().Err(err).Str("session", id.String()).Msg("Failed to subscribe playback")
		e.publish(notify.Focused(notify.FocusedMediaChanged{}))
		return false
	}
	e.logger.Debug().
		Str("session", id.String()).
		Uint64("token", token).
		Msg("Focus changed")
	if info == nil {
		e.publish(notify.Focused(notify.FocusedMediaChanged{Session: id}))
		return true
	}
	e.applyPlayback(sess, info)
	return true
}

func (e *Engine) subscribePlayback(sess media.Session, token uint64) (media.Registration, error) {
	return sess.SubscribePlayback(func(snap *media.PlaybackSnapshot) {
		e.Post(PlaybackChanged{Session: sess, Snapshot: snap, token: token})
	})
}

func (e *Engine) onPlayback(ev PlaybackChanged) {
	if ev.Session == nil {
		return
	}
	if ev.token != 0 && !e.focus.Live(ev.token) {
		e.obs.Anomaly(anomalyStalePlayback)
		e.logger.Debug().
			Str("session", ev.Session.ID().String()).
			Uint64("token", ev.token).
			Msg("Dropping playback from released registration")
		return
	}
	if !ev.Session.Valid() {
		e.staleHandle(ev.Session, "playback_changed")
		e.reconcileClosed(ev.Session)
		return
	}
	e.applyPlayback(ev.Session, ev.Snapshot)
}

// applyPlayback caches snap for sess. A missing snapshot, a Closed status
// or a missing control block is an implicit close.
func (e *Engine) applyPlayback(sess media.Session, snap *media.PlaybackSnapshot) {
	id := sess.ID()
	if snap == nil || !snap.Usable() {
		e.logger.Debug().Str("session", id.String()).Msg("Unusable playback snapshot, reconciling close")
		e.reconcileClosed(sess)
		return
	}
	e.adopt(sess)
	e.store.SetPlayback(id, *snap)
	e.lastEvent = id

	focused := e.focus.Is(id)
	if focused || (e.policy.Mode == ModeAnySession && e.focus.ID() == "") {
		c := snap.Clone()
		e.publish(notify.Focused(notify.FocusedMediaChanged{Session: id, Playback: &c}))
	}
}

func (e *Engine) onProperties(ev PropertiesChanged) {
	sess := ev.Session
	if sess == nil {
		return
	}
	if !sess.Valid() {
		e.staleHandle(sess, "properties_changed")
		e.reconcileClosed(sess)
		return
	}
	id := sess.ID()
	e.adopt(sess)
	p := ev.Properties
	e.store.SetMetadata(id, session.Metadata{Title: p.Title, Artist: p.Artist, Album: p.Album, Kind: p.Kind})
	e.publish(notify.Properties(notify.MediaPropertiesChanged{
		Session: id,
		Title:   p.Title,
		Artist:  p.Artist,
		Album:   p.Album,
		Kind:    p.Kind,
		HasArt:  p.HasThumbnail(),
	}))

	if p.HasThumbnail() {
		e.art.Touch(id, p.Thumbnail)
		e.requestExtraction(id)
		return
	}
	if _, wasHead := e.art.Remove(id); wasHead {
		e.selectArtFallback(id)
	}
}

// selectArtFallback runs after the art head was removed. The new head is the
// most recently refreshed remaining member; with no members left the
// consumer is told there is no art.
func (e *Engine) selectArtFallback(removed media.SessionID) {
	head, ok := e.art.Head()
	if !ok {
		e.publish(notify.Art(notify.ArtStateChanged{Session: removed}))
		return
	}
	if head.Palette != nil {
		p := *head.Palette
		e.publish(notify.Art(notify.ArtStateChanged{Session: head.ID, Palette: &p}))
		return
	}
	e.requestExtraction(head.ID)
}

func (e *Engine) staleHandle(sess media.Session, during string) {
	e.obs.Anomaly(anomalyStaleHandle)
	e.logger.Debug().
		Str("session", sess.ID().String()).
		Str("event", during).
		Err(media.ErrStaleHandle).
		Msg("Stale handle, treating as close")
}
