package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediawatch/backend/internal/media"
	"github.com/mediawatch/backend/internal/notify"
)

// regCounter tracks live playback registrations across every fake session.
type regCounter struct {
	mu   sync.Mutex
	live int
	peak int
}

func (c *regCounter) acquire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live++
	if c.live > c.peak {
		c.peak = c.live
	}
}

func (c *regCounter) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live--
}

func (c *regCounter) counts() (live, peak int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live, c.peak
}

type fakeSession struct {
	id   media.SessionID
	regs *regCounter

	mu      sync.Mutex
	valid   bool
	info    media.PlaybackSnapshot
	infoErr error
	subErr  error
	fns     map[int]func(*media.PlaybackSnapshot)
	nextFn  int
}

func (s *fakeSession) ID() media.SessionID { return s.id }

func (s *fakeSession) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid
}

func (s *fakeSession) PlaybackInfo() (media.PlaybackSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.valid {
		return media.PlaybackSnapshot{}, media.ErrStaleHandle
	}
	if s.infoErr != nil {
		return media.PlaybackSnapshot{}, s.infoErr
	}
	return s.info.Clone(), nil
}

func (s *fakeSession) Properties() (media.Properties, error) {
	return media.Properties{}, nil
}

func (s *fakeSession) SubscribePlayback(fn func(*media.PlaybackSnapshot)) (media.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subErr != nil {
		return nil, s.subErr
	}
	key := s.nextFn
	s.nextFn++
	s.fns[key] = fn
	s.regs.acquire()

	return media.ReleaseOnce(func() {
		s.mu.Lock()
		delete(s.fns, key)
		s.mu.Unlock()
		s.regs.release()
	}), nil
}

func (s *fakeSession) setValid(v bool) {
	s.mu.Lock()
	s.valid = v
	s.mu.Unlock()
}

func (s *fakeSession) setInfo(info media.PlaybackSnapshot) {
	s.mu.Lock()
	s.info = info
	s.mu.Unlock()
}

func (s *fakeSession) setInfoErr(err error) {
	s.mu.Lock()
	s.infoErr = err
	s.mu.Unlock()
}

// callbacks returns the currently registered playback callbacks.
func (s *fakeSession) callbacks() []func(*media.PlaybackSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]func(*media.PlaybackSnapshot), 0, len(s.fns))
	for _, fn := range s.fns {
		out = append(out, fn)
	}
	return out
}

func (s *fakeSession) emit(snap *media.PlaybackSnapshot) {
	for _, fn := range s.callbacks() {
		fn(snap)
	}
}

func (s *fakeSession) liveRegs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}

type fakeProvider struct {
	mu       sync.Mutex
	sessions map[media.SessionID]media.Session
	startErr error
	starts   int
	stops    int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{sessions: make(map[media.SessionID]media.Session)}
}

func (p *fakeProvider) Start(ctx context.Context, sink Sink) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return p.startErr
	}
	p.starts++
	return nil
}

func (p *fakeProvider) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	return nil
}

func (p *fakeProvider) Sessions() map[media.SessionID]media.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[media.SessionID]media.Session, len(p.sessions))
	for id, s := range p.sessions {
		out[id] = s
	}
	return out
}

func (p *fakeProvider) enumerate(s media.Session) {
	p.mu.Lock()
	p.sessions[s.ID()] = s
	p.mu.Unlock()
}

func (p *fakeProvider) setStartErr(err error) {
	p.mu.Lock()
	p.startErr = err
	p.mu.Unlock()
}

func (p *fakeProvider) counts() (starts, stops int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts, p.stops
}

type fakeThumb struct {
	name string
	fail bool
}

func (t *fakeThumb) Open(ctx context.Context) (io.ReadCloser, error) {
	if t.fail {
		return nil, errors.New("thumbnail unreadable")
	}
	return io.NopCloser(strings.NewReader(t.name)), nil
}

// fakeExtractor derives a palette from the thumbnail name. A non-nil gate
// holds every extraction until it is closed.
type fakeExtractor struct {
	gate chan struct{}
}

func paletteFor(name string) media.Palette {
	return media.Palette{Dominant: media.Color{R: name[0], G: uint8(len(name))}}
}

func (x *fakeExtractor) Extract(ctx context.Context, thumb media.Thumbnail) (media.Palette, error) {
	if x.gate != nil {
		select {
		case <-x.gate:
		case <-ctx.Done():
			return media.Palette{}, ctx.Err()
		}
	}
	ft := thumb.(*fakeThumb)
	if ft.fail {
		return media.Palette{}, &media.ExtractionError{Op: "decode", Err: errors.New("bad image")}
	}
	return paletteFor(ft.name), nil
}

type recorder struct {
	mu    sync.Mutex
	notes []notify.Notification
}

func (r *recorder) Publish(n notify.Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

func (r *recorder) all() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.notes...)
}

func (r *recorder) arts() []notify.ArtStateChanged {
	var out []notify.ArtStateChanged
	for _, n := range r.all() {
		if n.Kind == notify.KindArtStateChanged {
			out = append(out, *n.Art)
		}
	}
	return out
}

func (r *recorder) focused() []notify.FocusedMediaChanged {
	var out []notify.FocusedMediaChanged
	for _, n := range r.all() {
		if n.Kind == notify.KindFocusedMediaChanged {
			out = append(out, *n.Focused)
		}
	}
	return out
}

func (r *recorder) lastArt() (notify.ArtStateChanged, bool) {
	arts := r.arts()
	if len(arts) == 0 {
		return notify.ArtStateChanged{}, false
	}
	return arts[len(arts)-1], true
}

func (r *recorder) lastFocused() (notify.FocusedMediaChanged, bool) {
	f := r.focused()
	if len(f) == 0 {
		return notify.FocusedMediaChanged{}, false
	}
	return f[len(f)-1], true
}

func (r *recorder) count(kind notify.Kind) int {
	n := 0
	for _, note := range r.all() {
		if note.Kind == kind {
			n++
		}
	}
	return n
}

type recObserver struct {
	mu          sync.Mutex
	applied     map[string]int
	extractions map[string]int
	anomalies   map[string]int
}

func newRecObserver() *recObserver {
	return &recObserver{
		applied:     make(map[string]int),
		extractions: make(map[string]int),
		anomalies:   make(map[string]int),
	}
}

func (o *recObserver) EventApplied(ev string) {
	o.mu.Lock()
	o.applied[ev]++
	o.mu.Unlock()
}

func (o *recObserver) ExtractionFinished(result string) {
	o.mu.Lock()
	o.extractions[result]++
	o.mu.Unlock()
}

func (o *recObserver) Anomaly(kind string) {
	o.mu.Lock()
	o.anomalies[kind]++
	o.mu.Unlock()
}

func (o *recObserver) Tracked(int, int) {}

func (o *recObserver) anomaly(kind string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.anomalies[kind]
}

func (o *recObserver) extraction(result string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.extractions[result]
}

// providerEvents counts applied events other than extraction results.
func (o *recObserver) providerEvents() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for ev, c := range o.applied {
		if ev != "art_extracted" {
			n += c
		}
	}
	return n
}

type harness struct {
	t    *testing.T
	prov *fakeProvider
	ext  *fakeExtractor
	rec  *recorder
	obs  *recObserver
	regs *regCounter
	eng  *Engine
}

func newHarness(t *testing.T, policy Policy) *harness {
	t.Helper()
	h := &harness{
		t:    t,
		prov: newFakeProvider(),
		ext:  &fakeExtractor{},
		rec:  &recorder{},
		obs:  newRecObserver(),
		regs: &regCounter{},
	}
	h.eng = New(h.prov, h.ext, h.rec, Config{Policy: policy, ExtractTimeout: time.Second}, zerolog.Nop(), WithObserver(h.obs))
	return h
}

func (h *harness) session(id media.SessionID, info media.PlaybackSnapshot) *fakeSession {
	return &fakeSession{
		id:    id,
		regs:  h.regs,
		valid: true,
		info:  info,
		fns:   make(map[int]func(*media.PlaybackSnapshot)),
	}
}

func (h *harness) start() {
	h.t.Helper()
	require.NoError(h.t, h.eng.Start(context.Background()))
	h.t.Cleanup(func() { _ = h.eng.Stop() })
}

// apply runs events synchronously and checks the invariants after each.
func (h *harness) apply(evs ...Event) {
	h.t.Helper()
	for _, ev := range evs {
		h.eng.Apply(ev)
		require.NoError(h.t, h.eng.Verify(), "after %s", EventName(ev))
		live, _ := h.regs.counts()
		require.LessOrEqual(h.t, live, 1, "more than one live playback registration")
	}
}

// post queues events and waits until the loop has applied all of them.
func (h *harness) post(evs ...Event) {
	h.t.Helper()
	want := h.obs.providerEvents() + len(evs)
	for _, ev := range evs {
		h.eng.Post(ev)
	}
	require.Eventually(h.t, func() bool {
		return h.obs.providerEvents() >= want
	}, 2*time.Second, 5*time.Millisecond)
	assert.NoError(h.t, h.eng.Verify())
}

func playback(status media.Status, next, prev, play bool) media.PlaybackSnapshot {
	return media.NewPlaybackSnapshot(status, &media.Controls{
		NextEnabled:     next,
		PreviousEnabled: prev,
		PlayEnabled:     play,
	}, media.KindMusic)
}

func withArt(s media.Session, thumb *fakeThumb) PropertiesChanged {
	p := media.Properties{Title: "title-" + string(s.ID())}
	if thumb != nil {
		p.Thumbnail = thumb
	}
	return PropertiesChanged{Session: s, Properties: p}
}
