package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediawatch/backend/internal/engine"
	"github.com/mediawatch/backend/internal/media"
)

type fakeLister struct {
	mu    sync.Mutex
	procs []Proc
	err   error
}

func (f *fakeLister) List(context.Context) ([]Proc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]Proc(nil), f.procs...), nil
}

func (f *fakeLister) set(procs ...Proc) {
	f.mu.Lock()
	f.procs = procs
	f.mu.Unlock()
}

type recordingSink struct {
	evs []engine.Event
}

func (r *recordingSink) Post(ev engine.Event) { r.evs = append(r.evs, ev) }

func (r *recordingSink) take() []engine.Event {
	evs := r.evs
	r.evs = nil
	return evs
}

func names(evs []engine.Event) []string {
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = engine.EventName(ev)
	}
	return out
}

// stepper drives polls with a manual clock.
type stepper struct {
	p     *Provider
	sink  *recordingSink
	clock time.Time
}

func newStepper(t *testing.T, lister Lister, players ...Player) *stepper {
	t.Helper()
	s := &stepper{sink: &recordingSink{}, clock: time.Unix(1700000000, 0)}
	s.p = New(Config{CPUThreshold: 10, Players: players}, lister, zerolog.Nop())
	s.p.now = func() time.Time { return s.clock }
	s.p.sink = s.sink
	return s
}

func (s *stepper) poll(advance time.Duration) []engine.Event {
	s.clock = s.clock.Add(advance)
	s.p.poll(context.Background())
	return s.sink.take()
}

var vlc = Player{ID: "vlc", Title: "VLC", Processes: []string{"vlc", "VLC.exe"}, Kind: media.KindVideo}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "vlc", normalizeName("VLC.exe"))
	assert.Equal(t, "vlc", normalizeName("/usr/bin/vlc"))
	assert.Equal(t, "spotify", normalizeName("Spotify"))
}

func TestCPUPercent(t *testing.T) {
	at := time.Unix(0, 0)
	assert.InDelta(t, 50.0, cpuPercent(cpuSample{1, at}, cpuSample{2, at.Add(2 * time.Second)}), 0.001)
	assert.Zero(t, cpuPercent(cpuSample{2, at}, cpuSample{1, at.Add(time.Second)}), "counter reset")
	assert.Zero(t, cpuPercent(cpuSample{1, at}, cpuSample{2, at}))
}

func TestDiscoverPlayAndExit(t *testing.T) {
	lister := &fakeLister{}
	s := newStepper(t, lister, vlc)

	lister.set(Proc{PID: 10, Name: "vlc", CPUTime: 1}, Proc{PID: 11, Name: "bash", CPUTime: 9})
	evs := s.poll(time.Second)
	assert.Equal(t, []string{"session_opened", "properties_changed"}, names(evs))
	opened := evs[0].(engine.SessionOpened)
	assert.Equal(t, media.SessionID("vlc"), opened.Session.ID())

	lister.set(Proc{PID: 10, Name: "vlc", CPUTime: 2})
	evs = s.poll(2 * time.Second) // 50%
	require.Equal(t, []string{"playback_changed", "focus_changed"}, names(evs))
	pc := evs[0].(engine.PlaybackChanged)
	assert.Equal(t, media.StatusPlaying, pc.Snapshot.Status)
	assert.False(t, pc.Snapshot.Controls.PlayEnabled)

	evs = s.poll(2 * time.Second) // no CPU used
	require.Equal(t, []string{"playback_changed"}, names(evs))
	assert.Equal(t, media.StatusPaused, evs[0].(engine.PlaybackChanged).Snapshot.Status)

	lister.set()
	evs = s.poll(time.Second)
	assert.Equal(t, []string{"session_closed", "focus_changed"}, names(evs))
	assert.False(t, opened.Session.Valid())
	assert.Empty(t, s.p.Sessions())
}

func TestProcessesShareSessionID(t *testing.T) {
	lister := &fakeLister{}
	s := newStepper(t, lister, vlc)

	lister.set(Proc{PID: 1, Name: "vlc", Created: time.Unix(100, 0)}, Proc{PID: 2, Name: "vlc", Created: time.Unix(200, 0)})
	evs := s.poll(time.Second)
	assert.Len(t, evs, 4)

	sessions := s.p.Sessions()
	require.Len(t, sessions, 1)

	// The older process starts playing and wins the enumeration.
	lister.set(Proc{PID: 1, Name: "vlc", CPUTime: 5, Created: time.Unix(100, 0)}, Proc{PID: 2, Name: "vlc", Created: time.Unix(200, 0)})
	s.poll(time.Second)
	info, err := s.p.Sessions()["vlc"].PlaybackInfo()
	require.NoError(t, err)
	assert.Equal(t, media.StatusPlaying, info.Status)

	// Closing it leaves the other process enumerable under the same id.
	lister.set(Proc{PID: 2, Name: "vlc", Created: time.Unix(200, 0)})
	evs = s.poll(time.Second)
	assert.Contains(t, names(evs), "session_closed")
	assert.Len(t, s.p.Sessions(), 1)
}

func TestFocusFollowsLatestPlayer(t *testing.T) {
	spotify := Player{ID: "spotify", Processes: []string{"spotify"}, Kind: media.KindMusic}
	lister := &fakeLister{}
	s := newStepper(t, lister, vlc, spotify)

	lister.set(Proc{PID: 1, Name: "vlc"}, Proc{PID: 2, Name: "spotify"})
	s.poll(time.Second)

	lister.set(Proc{PID: 1, Name: "vlc", CPUTime: 1}, Proc{PID: 2, Name: "spotify"})
	evs := s.poll(time.Second)
	fc := evs[len(evs)-1].(engine.FocusChanged)
	assert.Equal(t, media.SessionID("vlc"), fc.Session.ID())

	lister.set(Proc{PID: 1, Name: "vlc", CPUTime: 2}, Proc{PID: 2, Name: "spotify", CPUTime: 1})
	evs = s.poll(time.Second)
	fc = evs[len(evs)-1].(engine.FocusChanged)
	assert.Equal(t, media.SessionID("spotify"), fc.Session.ID())

	// Everything pauses: focus stays put.
	lister.set(Proc{PID: 1, Name: "vlc", CPUTime: 2}, Proc{PID: 2, Name: "spotify", CPUTime: 1})
	evs = s.poll(time.Second)
	assert.NotContains(t, names(evs), "focus_changed")
}

func TestArtFromFile(t *testing.T) {
	art := filepath.Join(t.TempDir(), "cover.png")
	require.NoError(t, os.WriteFile(art, []byte("png"), 0o644))
	lister := &fakeLister{}
	withArt := vlc
	withArt.Art = art
	missing := Player{ID: "mpv", Processes: []string{"mpv"}, Art: filepath.Join(t.TempDir(), "nope.png")}
	s := newStepper(t, lister, withArt, missing)

	lister.set(Proc{PID: 1, Name: "vlc"}, Proc{PID: 2, Name: "mpv"})
	evs := s.poll(time.Second)

	hasArt := map[media.SessionID]bool{}
	for _, ev := range evs {
		if pc, ok := ev.(engine.PropertiesChanged); ok {
			hasArt[pc.Session.ID()] = pc.HasThumbnail()
		}
	}
	assert.True(t, hasArt["vlc"])
	assert.False(t, hasArt["mpv"])
}

func TestListingHealth(t *testing.T) {
	lister := &fakeLister{err: errors.New("permission denied")}
	s := newStepper(t, lister, vlc)

	s.poll(time.Second)
	assert.Equal(t, StatusDegraded, s.p.Health().Status)
	s.poll(time.Second)
	s.poll(time.Second)
	h := s.p.Health()
	assert.Equal(t, StatusFailed, h.Status)
	assert.Equal(t, 3, h.Failures)
	assert.Equal(t, "permission denied", h.LastErr)

	lister.mu.Lock()
	lister.err = nil
	lister.mu.Unlock()
	s.poll(time.Second)
	assert.Equal(t, StatusHealthy, s.p.Health().Status)
}

func TestSetConfigDropsUnconfiguredPlayers(t *testing.T) {
	lister := &fakeLister{}
	s := newStepper(t, lister, vlc)
	lister.set(Proc{PID: 1, Name: "vlc"})
	s.poll(time.Second)

	s.p.SetConfig(Config{Players: []Player{{ID: "mpv", Processes: []string{"mpv"}}}})
	evs := s.poll(time.Second)

	assert.Equal(t, []string{"session_closed"}, names(evs))
}

func TestStartRequiresPlayersAndListing(t *testing.T) {
	p := New(Config{}, &fakeLister{}, zerolog.Nop())
	assert.Error(t, p.Start(context.Background(), &recordingSink{}))

	p = New(Config{Players: []Player{vlc}}, &fakeLister{err: errors.New("no procfs")}, zerolog.Nop())
	assert.Error(t, p.Start(context.Background(), &recordingSink{}))

	p = New(Config{Players: []Player{vlc}, PollInterval: time.Hour}, &fakeLister{}, zerolog.Nop())
	require.NoError(t, p.Start(context.Background(), &recordingSink{}))
	assert.Error(t, p.Start(context.Background(), &recordingSink{}))
	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())
}
