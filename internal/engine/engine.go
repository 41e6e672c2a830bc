// Package engine is the media session aggregation engine. It consumes the
// provider's duplicate-prone, partially ordered event stream and maintains
// the session store, the art tracker and the focus tracker under one
// serialization boundary, deriving the aggregate snapshot after every event.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/mediawatch/backend/internal/art"
	"github.com/mediawatch/backend/internal/focus"
	"github.com/mediawatch/backend/internal/media"
	"github.com/mediawatch/backend/internal/notify"
	"github.com/mediawatch/backend/internal/session"
)

// Config tunes the engine. Zero values select defaults.
type Config struct {
	Policy                   Policy
	ExtractTimeout           time.Duration
	MaxConcurrentExtractions int64
}

const (
	defaultExtractTimeout = 5 * time.Second
	defaultMaxExtractions = 2
)

type Option func(*Engine)

// WithObserver installs telemetry hooks.
func WithObserver(obs Observer) Option {
	return func(e *Engine) {
		if obs != nil {
			e.obs = obs
		}
	}
}

type Engine struct {
	mu        sync.RWMutex // the serialization boundary; every mutation holds it
	provider  Provider
	extractor Extractor
	pub       notify.Publisher
	obs       Observer
	logger    zerolog.Logger

	policy         Policy
	extractTimeout time.Duration
	sem            *semaphore.Weighted

	store *session.Store
	art   *art.Tracker
	focus *focus.Tracker

	// lastEvent is the session the most recent playback event arrived for;
	// any-session mode names it when nothing is focused.
	lastEvent media.SessionID
	snap      notify.Snapshot

	// epoch advances on every Start and Stop so in-flight work from an
	// earlier run can be recognised and discarded.
	epoch     uint64
	running   bool
	runCtx    context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	mbox      atomic.Pointer[mailbox]
	extractWG sync.WaitGroup
}

func New(provider Provider, extractor Extractor, pub notify.Publisher, cfg Config, logger zerolog.Logger, opts ...Option) *Engine {
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = defaultExtractTimeout
	}
	if cfg.MaxConcurrentExtractions <= 0 {
		cfg.MaxConcurrentExtractions = defaultMaxExtractions
	}
	e := &Engine{
		provider:       provider,
		extractor:      extractor,
		pub:            pub,
		obs:            nopObserver{},
		logger:         logger.With().Str("component", "engine").Logger(),
		policy:         cfg.Policy.normalized(),
		extractTimeout: cfg.ExtractTimeout,
		sem:            semaphore.NewWeighted(cfg.MaxConcurrentExtractions),
		store:          session.NewStore(),
		art:            art.NewTracker(),
		focus:          focus.NewTracker(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start starts the consumer loop and the provider, then seeds the store with
// the provider's current enumeration. A provider failure is returned wrapped
// in media.ErrProviderUnavailable and leaves the engine stopped.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.New("engine already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	// State built by Apply before Start belongs to the previous epoch, whose
	// pending extractions are about to become stale.
	e.epoch++
	e.clearState()
	e.running = true
	e.runCtx = runCtx
	e.cancel = cancel
	e.done = make(chan struct{})
	mb := newMailbox()
	e.mbox.Store(mb)
	go e.loop(runCtx, mb, e.epoch, e.done)
	e.mu.Unlock()

	if err := e.provider.Start(runCtx, e); err != nil {
		e.shutdown()
		return fmt.Errorf("start provider: %w: %w", media.ErrProviderUnavailable, err)
	}

	sessions := e.provider.Sessions()
	for _, s := range sessions {
		e.Post(SessionOpened{Session: s})
	}
	e.logger.Info().
		Str("mode", string(e.Policy().Mode)).
		Int("initial_sessions", len(sessions)).
		Msg("Engine started")
	return nil
}

// Stop stops the provider, releases the focus registration, clears both
// tracked sets and invalidates every in-flight extraction. The engine can
// be started again afterwards.
func (e *Engine) Stop() error {
	if !e.shutdown() {
		return nil
	}
	err := e.provider.Stop()
	e.logger.Info().Msg("Engine stopped")
	return err
}

func (e *Engine) shutdown() bool {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return false
	}
	e.running = false
	e.epoch++
	e.cancel()
	e.mbox.Store(nil)
	e.clearState()
	done := e.done
	e.mu.Unlock()

	<-done
	e.extractWG.Wait()
	return true
}

func (e *Engine) clearState() {
	e.focus.Clear()
	e.store.Clear()
	e.art.Clear()
	e.lastEvent = ""
	e.snap = notify.Snapshot{}
	e.obs.Tracked(0, 0)
}

// Post queues ev for the consumer loop. Events posted from one goroutine are
// applied in order. Post never blocks; before Start or after Stop the event
// is dropped.
func (e *Engine) Post(ev Event) {
	mb := e.mbox.Load()
	if mb == nil {
		e.logger.Debug().Str("event", ev.eventName()).Msg("Engine not running, event dropped")
		return
	}
	mb.push(ev)
}

func (e *Engine) loop(ctx context.Context, mb *mailbox, epoch uint64, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-mb.signal:
			for _, ev := range mb.drain() {
				if ctx.Err() != nil {
					return
				}
				e.applyIn(epoch, ev)
			}
		}
	}
}

// Apply processes one event to completion under the engine lock. It works
// with or without Start; extraction results for events applied before Start
// are discarded once the engine starts, because Start begins from a clean
// state.
func (e *Engine) Apply(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.apply(ev)
}

func (e *Engine) applyIn(epoch uint64, ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch {
		return
	}
	e.apply(ev)
}

func (e *Engine) apply(ev Event) {
	switch ev := ev.(type) {
	case SessionOpened:
		e.onOpened(ev.Session)
	case SessionClosed:
		e.onClosed(ev.Session)
	case FocusChanged:
		e.onFocus(ev.Session)
	case PropertiesChanged:
		e.onProperties(ev)
	case PlaybackChanged:
		e.onPlayback(ev)
	case artExtracted:
		e.onArtExtracted(ev)
	default:
		e.logger.Warn().Msgf("Unknown event type %T", ev)
		return
	}
	e.obs.EventApplied(ev.eventName())
	e.refresh()
}

// SetPolicy switches the reconciliation policy and re-derives the snapshot.
func (e *Engine) SetPolicy(p Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p = p.normalized()
	if p == e.policy {
		return
	}
	e.policy = p
	e.logger.Info().
		Str("mode", string(p.Mode)).
		Str("playing_signal", string(p.signal())).
		Msg("Reconcile policy changed")
	e.refresh()
}

func (e *Engine) Policy() Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy
}

// Snapshot returns the aggregate state derived after the last event.
func (e *Engine) Snapshot() notify.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap
}

// SessionIDs returns the tracked session ids in lexical order.
func (e *Engine) SessionIDs() []media.SessionID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.IDs()
}

// ArtSessionIDs returns the art sessions, art head first.
func (e *Engine) ArtSessionIDs() []media.SessionID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.art.IDs()
}

// FocusedID returns the focused session id, or "".
func (e *Engine) FocusedID() media.SessionID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.focus.ID()
}

// SessionView is a read-only description of one tracked session.
type SessionView struct {
	ID         media.SessionID         `json:"id"`
	Generation uint64                  `json:"generation"`
	Focused    bool                    `json:"focused"`
	HasArt     bool                    `json:"hasArt"`
	ArtHead    bool                    `json:"artHead"`
	Playback   *media.PlaybackSnapshot `json:"playback,omitempty"`
	Metadata   session.Metadata        `json:"metadata"`
	Palette    *media.Palette          `json:"palette,omitempty"`
}

func (e *Engine) Sessions() []SessionView {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entries := e.store.All()
	views := make([]SessionView, 0, len(entries))
	for _, entry := range entries {
		id := entry.ID()
		v := SessionView{
			ID:         id,
			Generation: entry.Generation,
			Focused:    e.focus.Is(id),
			HasArt:     e.art.Has(id),
			ArtHead:    e.art.IsHead(id),
			Playback:   entry.Playback,
			Metadata:   entry.Metadata,
		}
		if a, ok := e.art.Get(id); ok {
			v.Palette = a.Palette
		}
		views = append(views, v)
	}
	return views
}

// Verify checks the engine invariants and reports the first violation.
func (e *Engine) Verify() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, id := range e.art.IDs() {
		if !e.store.Has(id) {
			return fmt.Errorf("art session %s missing from store", id)
		}
	}
	cur, focused := e.focus.Current()
	if focused != e.focus.Subscribed() {
		return fmt.Errorf("focus/registration mismatch: focused=%v subscribed=%v", focused, e.focus.Subscribed())
	}
	if focused && !e.store.Has(cur.ID()) {
		return fmt.Errorf("focused session %s missing from store", cur.ID())
	}
	return nil
}

func (e *Engine) publish(n notify.Notification) {
	if e.pub != nil {
		e.pub.Publish(n)
	}
}
