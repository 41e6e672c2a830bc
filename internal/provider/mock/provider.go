// Package mock is a scripted session provider. It replays a fixed timeline
// of synthetic players, including two browser tabs that share one session
// id, so the engine can be exercised without an OS session manager.
package mock

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediawatch/backend/internal/engine"
	"github.com/mediawatch/backend/internal/media"
	"github.com/mediawatch/backend/internal/provider"
)

const defaultInterval = 2 * time.Second

type Config struct {
	Interval time.Duration // time between timeline steps
}

type Provider struct {
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	sink    engine.Sink
	live    map[string]*provider.Handle // keyed by script name
	step    int
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(cfg Config, logger zerolog.Logger) *Provider {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Provider{
		interval: cfg.Interval,
		logger:   logger.With().Str("component", "mock-provider").Logger(),
		live:     make(map[string]*provider.Handle),
	}
}

func (p *Provider) Start(ctx context.Context, sink engine.Sink) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("mock provider already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	p.sink = sink
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
	p.logger.Info().Dur("interval", p.interval).Int("steps", len(timeline)).Msg("Mock provider started")
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
	for name, h := range p.live {
		h.Close()
		delete(p.live, name)
	}
	p.step = 0
	p.mu.Unlock()
	return nil
}

// Sessions enumerates one live handle per id. When several tabs share an
// id the most recently opened one is reported.
func (p *Provider) Sessions() map[media.SessionID]media.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[media.SessionID]media.Session, len(p.live))
	for _, name := range openOrder {
		h, ok := p.live[name]
		if !ok || !h.Valid() {
			continue
		}
		out[h.ID()] = h
	}
	return out
}

func (p *Provider) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.advance()
		}
	}
}

// advance runs the next timeline step. Events are gathered under the lock
// and posted after it is released.
func (p *Provider) advance() {
	p.mu.Lock()
	st := timeline[p.step]
	p.step = (p.step + 1) % len(timeline)
	sink := p.sink
	out := &script{p: p}
	st.run(out)
	p.mu.Unlock()

	for _, fn := range out.actions {
		fn(sink)
	}
	p.logger.Debug().Str("step", st.name).Int("events", len(out.actions)).Msg("Mock step")
}

// script collects the effects of one step while the provider lock is held.
type script struct {
	p       *Provider
	actions []func(engine.Sink)
}

func (s *script) open(name string) *provider.Handle {
	def := players[name]
	h := provider.NewHandle(def.id, snapshot(def, def.status), def.properties())
	s.p.live[name] = h
	s.actions = append(s.actions, func(sink engine.Sink) {
		sink.Post(engine.SessionOpened{Session: h})
		sink.Post(engine.PropertiesChanged{Session: h, Properties: def.properties()})
	})
	return h
}

func (s *script) close(name string) {
	h, ok := s.p.live[name]
	if !ok {
		return
	}
	delete(s.p.live, name)
	s.actions = append(s.actions, func(sink engine.Sink) {
		h.Close()
		sink.Post(engine.SessionClosed{Session: h})
	})
}

func (s *script) focus(name string) {
	h := s.p.live[name]
	s.actions = append(s.actions, func(sink engine.Sink) {
		if h == nil {
			sink.Post(engine.FocusChanged{})
			return
		}
		sink.Post(engine.FocusChanged{Session: h})
	})
}

func (s *script) play(name string, status media.Status) {
	h, ok := s.p.live[name]
	if !ok {
		return
	}
	snap := snapshot(players[name], status)
	s.actions = append(s.actions, func(sink engine.Sink) {
		provider.Deliver(sink, h, snap)
	})
}

func (s *script) retitle(name, title string, art media.Thumbnail) {
	h, ok := s.p.live[name]
	if !ok {
		return
	}
	props := players[name].properties()
	props.Title = title
	props.Thumbnail = art
	h.SetProperties(props)
	s.actions = append(s.actions, func(sink engine.Sink) {
		sink.Post(engine.PropertiesChanged{Session: h, Properties: props})
	})
}

func (s *script) closeAll() {
	for _, name := range openOrder {
		s.close(name)
	}
	s.focus("")
}

type player struct {
	id     media.SessionID
	title  string
	artist string
	kind   media.Kind
	status media.Status
	queue  bool
	art    media.Thumbnail
}

func (d player) properties() media.Properties {
	return media.Properties{Title: d.title, Artist: d.artist, Kind: d.kind, Thumbnail: d.art}
}

func snapshot(d player, status media.Status) media.PlaybackSnapshot {
	return media.NewPlaybackSnapshot(status, provider.Controls(status, d.queue), d.kind)
}

var (
	artWarm = solidArt(color.NRGBA{R: 214, G: 84, B: 38, A: 255}, color.NRGBA{R: 60, G: 20, B: 12, A: 255})
	artCool = solidArt(color.NRGBA{R: 32, G: 110, B: 196, A: 255}, color.NRGBA{R: 220, G: 232, B: 245, A: 255})
	artLeaf = solidArt(color.NRGBA{R: 46, G: 160, B: 67, A: 255}, color.NRGBA{R: 18, G: 40, B: 22, A: 255})
)

var players = map[string]player{
	"music": {id: "spotify.exe", title: "Night Drive", artist: "The Synths", kind: media.KindMusic,
		status: media.StatusPlaying, queue: true, art: artWarm},
	"video": {id: "vlc", title: "Documentary", kind: media.KindVideo, status: media.StatusPaused},
	"tab-a": {id: "browser", title: "Lo-fi Radio", artist: "Stream", kind: media.KindMusic,
		status: media.StatusPlaying, art: artCool},
	"tab-b": {id: "browser", title: "Tutorial", kind: media.KindVideo, status: media.StatusPaused},
}

// openOrder fixes enumeration precedence: later entries win for shared ids.
var openOrder = []string{"music", "video", "tab-a", "tab-b"}

type step struct {
	name string
	run  func(s *script)
}

var timeline = []step{
	{"open music", func(s *script) { s.open("music"); s.focus("music") }},
	{"open video", func(s *script) { s.open("video") }},
	{"open first tab", func(s *script) { s.open("tab-a") }},
	{"open second tab", func(s *script) { s.open("tab-b") }},
	{"focus browser", func(s *script) { s.focus("tab-a") }},
	{"next track", func(s *script) { s.retitle("music", "Neon Coast", artLeaf) }},
	{"close first tab", func(s *script) { s.play("tab-a", media.StatusClosed); s.close("tab-a") }},
	{"play video", func(s *script) { s.play("video", media.StatusPlaying) }},
	{"focus music", func(s *script) { s.focus("music") }},
	{"pause music", func(s *script) { s.play("music", media.StatusPaused) }},
	{"close video", func(s *script) { s.close("video") }},
	{"close second tab", func(s *script) { s.close("tab-b") }},
	{"reset", func(s *script) { s.closeAll() }},
}

// solidArt renders a small two-band PNG.
func solidArt(top, bottom color.NRGBA) media.BytesThumbnail {
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		c := top
		if y >= 22 {
			c = bottom
		}
		for x := 0; x < 32; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
