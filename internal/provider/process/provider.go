// Package process is a session provider backed by the process table. Each
// running process of a configured player becomes one session; processes of
// the same player share the player's session id. A player counts as playing
// while its CPU use stays above a threshold.
package process

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediawatch/backend/internal/engine"
	"github.com/mediawatch/backend/internal/media"
	"github.com/mediawatch/backend/internal/provider"
)

const (
	defaultPollInterval     = 2 * time.Second
	defaultCPUThreshold     = 5.0
	defaultFailureThreshold = 3
)

// Player maps process names onto one session id.
type Player struct {
	ID        string
	Title     string
	Processes []string
	Kind      media.Kind
	Art       string // optional image file used as the session's thumbnail
}

type Config struct {
	PollInterval     time.Duration
	CPUThreshold     float64 // percent of one core
	FailureThreshold int     // consecutive listing failures before the provider reports failed
	Players          []Player
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.CPUThreshold <= 0 {
		c.CPUThreshold = defaultCPUThreshold
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	return c
}

type tracked struct {
	h            *provider.Handle
	player       Player
	sample       cpuSample
	status       media.Status
	created      time.Time
	playingSince time.Time
}

type Provider struct {
	lister Lister
	logger zerolog.Logger
	health *listHealth
	now    func() time.Time

	mu      sync.Mutex
	cfg     Config
	byName  map[string]Player
	tracked map[int32]*tracked
	focused *tracked
	sink    engine.Sink
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	reset   chan time.Duration
}

func New(cfg Config, lister Lister, logger zerolog.Logger) *Provider {
	if lister == nil {
		lister = SystemLister{}
	}
	p := &Provider{
		lister:  lister,
		logger:  logger.With().Str("component", "process-provider").Logger(),
		health:  newListHealth(),
		now:     time.Now,
		tracked: make(map[int32]*tracked),
		reset:   make(chan time.Duration, 1),
	}
	p.applyConfig(cfg)
	return p
}

func (p *Provider) applyConfig(cfg Config) {
	cfg = cfg.withDefaults()
	byName := make(map[string]Player)
	for _, pl := range cfg.Players {
		for _, name := range pl.Processes {
			byName[normalizeName(name)] = pl
		}
	}
	p.cfg = cfg
	p.byName = byName
}

// SetConfig replaces the poll settings and player list. Processes of
// players that are no longer configured are closed on the next poll.
func (p *Provider) SetConfig(cfg Config) {
	p.mu.Lock()
	old := p.cfg.PollInterval
	p.applyConfig(cfg)
	interval := p.cfg.PollInterval
	p.mu.Unlock()

	if interval != old {
		select {
		case p.reset <- interval:
		default:
		}
	}
	p.logger.Info().
		Dur("poll_interval", interval).
		Float64("cpu_threshold", cfg.CPUThreshold).
		Int("players", len(cfg.Players)).
		Msg("Process provider config updated")
}

func (p *Provider) Start(ctx context.Context, sink engine.Sink) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("process provider already running")
	}
	if len(p.cfg.Players) == 0 {
		return errors.New("no players configured")
	}
	if _, err := p.lister.List(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	p.sink = sink
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.cfg.PollInterval, p.done)
	p.logger.Info().
		Dur("poll_interval", p.cfg.PollInterval).
		Int("players", len(p.cfg.Players)).
		Msg("Process provider started")
	return nil
}

func (p *Provider) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.cancel()
	done := p.done
	p.mu.Unlock()

	<-done
	p.mu.Lock()
	for pid, t := range p.tracked {
		t.h.Close()
		delete(p.tracked, pid)
	}
	p.focused = nil
	p.mu.Unlock()
	return nil
}

// Sessions reports one handle per player id, preferring a playing process
// and then the most recently started one.
func (p *Provider) Sessions() map[media.SessionID]media.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	best := make(map[media.SessionID]*tracked)
	for _, t := range p.tracked {
		id := t.h.ID()
		cur, ok := best[id]
		if !ok || better(t, cur) {
			best[id] = t
		}
	}
	out := make(map[media.SessionID]media.Session, len(best))
	for id, t := range best {
		out[id] = t.h
	}
	return out
}

func better(a, b *tracked) bool {
	ap, bp := a.status == media.StatusPlaying, b.status == media.StatusPlaying
	if ap != bp {
		return ap
	}
	return a.created.After(b.created)
}

// Health reports the state of the process listing.
func (p *Provider) Health() Health {
	p.mu.Lock()
	threshold := p.cfg.FailureThreshold
	p.mu.Unlock()
	return p.health.snapshot(threshold)
}

func (p *Provider) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-p.reset:
			ticker.Reset(d)
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Provider) poll(ctx context.Context) {
	p.mu.Lock()
	threshold := p.cfg.FailureThreshold
	p.mu.Unlock()

	procs, err := p.lister.List(ctx)
	if err != nil {
		p.health.recordFailure(err)
		if status, changed := p.health.transition(threshold); changed {
			p.logger.Warn().Err(err).Str("status", string(status)).Msg("Process listing failing")
		}
		return
	}
	p.health.recordSuccess()
	if _, changed := p.health.transition(threshold); changed {
		p.logger.Info().Msg("Process listing recovered")
	}

	actions := p.reconcile(procs)
	for _, fn := range actions {
		fn(p.sink)
	}
}

// reconcile diffs procs against the tracked set and returns the events to
// post once the lock is released.
func (p *Provider) reconcile(procs []Proc) []func(engine.Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	var actions []func(engine.Sink)
	seen := make(map[int32]bool, len(procs))

	for _, pr := range procs {
		pl, ok := p.byName[normalizeName(pr.Name)]
		if !ok {
			continue
		}
		seen[pr.PID] = true
		sample := cpuSample{total: pr.CPUTime, at: now}

		t, ok := p.tracked[pr.PID]
		if !ok {
			t = &tracked{player: pl, sample: sample, status: media.StatusPaused, created: pr.Created}
			props := properties(pl)
			t.h = provider.NewHandle(media.SessionID(pl.ID), snapshot(pl, t.status), props)
			p.tracked[pr.PID] = t
			h := t.h
			actions = append(actions, func(sink engine.Sink) {
				sink.Post(engine.SessionOpened{Session: h})
				sink.Post(engine.PropertiesChanged{Session: h, Properties: props})
			})
			p.logger.Debug().Int32("pid", pr.PID).Str("player", pl.ID).Msg("Player process discovered")
			continue
		}

		pct := cpuPercent(t.sample, sample)
		t.sample = sample
		status := media.StatusPaused
		if pct >= p.cfg.CPUThreshold {
			status = media.StatusPlaying
		}
		if status == t.status {
			continue
		}
		if status == media.StatusPlaying {
			t.playingSince = now
		}
		t.status = status
		h, snap := t.h, snapshot(pl, status)
		actions = append(actions, func(sink engine.Sink) {
			provider.Deliver(sink, h, snap)
		})
	}

	for pid, t := range p.tracked {
		if seen[pid] {
			continue
		}
		delete(p.tracked, pid)
		h := t.h
		actions = append(actions, func(sink engine.Sink) {
			h.Close()
			sink.Post(engine.SessionClosed{Session: h})
		})
		p.logger.Debug().Int32("pid", pid).Str("player", t.player.ID).Msg("Player process exited")
	}

	if next := p.pickFocus(); next != p.focused {
		p.focused = next
		actions = append(actions, func(sink engine.Sink) {
			if next == nil {
				sink.Post(engine.FocusChanged{})
				return
			}
			sink.Post(engine.FocusChanged{Session: next.h})
		})
	}
	return actions
}

// pickFocus selects the process that most recently started playing. With
// nothing playing, focus stays where it was while that process lives.
func (p *Provider) pickFocus() *tracked {
	var best *tracked
	for _, t := range p.tracked {
		if t.status != media.StatusPlaying {
			continue
		}
		if best == nil || t.playingSince.After(best.playingSince) {
			best = t
		}
	}
	if best != nil {
		return best
	}
	if p.focused != nil {
		for _, t := range p.tracked {
			if t == p.focused {
				return t
			}
		}
	}
	return nil
}

func properties(pl Player) media.Properties {
	props := media.Properties{Title: pl.Title, Kind: pl.Kind}
	if props.Title == "" {
		props.Title = pl.ID
	}
	if pl.Art != "" {
		if _, err := os.Stat(pl.Art); err == nil {
			props.Thumbnail = media.FileThumbnail(pl.Art)
		}
	}
	return props
}

func snapshot(pl Player, status media.Status) media.PlaybackSnapshot {
	return media.NewPlaybackSnapshot(status, provider.Controls(status, false), pl.Kind)
}
