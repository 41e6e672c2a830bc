package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/mediawatch/backend/internal/artcolor"
	"github.com/mediawatch/backend/internal/config"
	"github.com/mediawatch/backend/internal/engine"
	"github.com/mediawatch/backend/internal/logger"
	"github.com/mediawatch/backend/internal/media"
	"github.com/mediawatch/backend/internal/metrics"
	"github.com/mediawatch/backend/internal/notify"
	"github.com/mediawatch/backend/internal/provider/mock"
	"github.com/mediawatch/backend/internal/provider/process"
	"github.com/mediawatch/backend/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	providerKind := flag.String("provider", "", "Override provider kind (mock or process)")
	mode := flag.String("mode", "", "Override reconcile mode (focused_only or any_session)")
	flag.Parse()

	if err := run(*configPath, overrides{port: *port, provider: *providerKind, mode: *mode}); err != nil {
		fmt.Fprintf(os.Stderr, "mediawatch: %v\n", err)
		os.Exit(1)
	}
}

// overrides are command-line values that win over the config file, also
// across hot reloads.
type overrides struct {
	port     int
	provider string
	mode     string
}

func (o overrides) apply(cfg *config.Config) error {
	if o.port > 0 {
		cfg.Server.Port = o.port
	}
	if o.provider != "" {
		cfg.Provider.Kind = o.provider
	}
	if o.mode != "" {
		cfg.Engine.Mode = o.mode
	}
	return cfg.Validate()
}

func run(configPath string, flags overrides) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := flags.apply(cfg); err != nil {
		return err
	}

	logs, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return err
	}
	defer logs.Close()
	log := logs.Component("main")

	m := metrics.New()

	notifier := notify.NewNotifier(logs.Logger)
	notifier.SetDropHook(m.NotificationDropped)
	defer notifier.Close()

	var (
		provider engine.Provider
		procs    *process.Provider
	)
	switch cfg.Provider.Kind {
	case config.ProviderProcess:
		procs = process.New(processConfig(cfg.Provider), nil, logs.Logger)
		provider = procs
	default:
		provider = mock.New(mock.Config{Interval: cfg.Provider.MockInterval}, logs.Logger)
	}
	log.Info().Str("provider", cfg.Provider.Kind).Msg("Session provider selected")

	policy, err := policyFrom(cfg.Engine)
	if err != nil {
		return err
	}
	extractor := artcolor.New(artcolor.Config{MaxBytes: cfg.Engine.MaxThumbnailBytes}, logs.Logger)
	eng := engine.New(provider, extractor, notifier, engine.Config{
		Policy:                   policy,
		ExtractTimeout:           cfg.Engine.ExtractTimeout,
		MaxConcurrentExtractions: cfg.Engine.MaxConcurrentExtractions,
	}, logs.Logger, engine.WithObserver(m))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		return err
	}
	defer eng.Stop()

	rl := &reloader{log: log, eng: eng, procs: procs, flags: flags, last: cfg}
	watcher, err := config.NewWatcher(configPath, 0, func(next *config.Config) {
		rl.apply(next)
	}, logs.Logger)
	if err != nil {
		log.Warn().Err(err).Msg("Config hot reload disabled")
	} else {
		defer watcher.Close()
	}

	broadcaster := ws.NewBroadcaster(eng, notifier, ws.BroadcastConfig{
		Throttle:         cfg.Broadcast.Throttle,
		SnapshotInterval: cfg.Broadcast.SnapshotInterval,
		ClientBuffer:     cfg.Broadcast.ClientBuffer,
	}, m, logs.Logger)
	defer broadcaster.Stop()

	serverCfg := ws.ServerConfig{
		AuthToken:      cfg.Server.AuthToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if cfg.Metrics.Enabled {
		serverCfg.Metrics = m.Handler()
		serverCfg.MetricsPath = cfg.Metrics.Path
	}
	if procs != nil {
		serverCfg.Health = func() any { return procs.Health() }
	}
	server := ws.NewServer(eng, broadcaster, serverCfg, logs.Logger)

	err = ws.ListenAndServe(ctx, cfg.Addr(), server.Handler(), log)
	log.Info().Msg("Shutting down")
	return err
}

// reloader applies the hot-reloadable parts of each reloaded config. Listen
// address, provider kind and extraction limits need a restart.
type reloader struct {
	log   zerolog.Logger
	eng   *engine.Engine
	procs *process.Provider
	flags overrides
	last  *config.Config // last config applied, the startup one at first
}

// apply reports whether next changed a setting that only takes effect after
// a restart. Each such change is reported once.
func (r *reloader) apply(next *config.Config) (restart bool) {
	log := r.log
	if err := r.flags.apply(next); err != nil {
		log.Warn().Err(err).Msg("Reloaded config invalid with flag overrides")
		return false
	}
	if err := logger.SetLevel(next.Logging.Level); err != nil {
		log.Warn().Err(err).Msg("Keeping previous log level")
	}
	if policy, err := policyFrom(next.Engine); err == nil {
		r.eng.SetPolicy(policy)
	}
	if r.procs != nil {
		r.procs.SetConfig(processConfig(next.Provider))
	}
	restart = next.Addr() != r.last.Addr() || next.Provider.Kind != r.last.Provider.Kind
	if restart {
		log.Warn().
			Str("addr", next.Addr()).
			Str("provider", next.Provider.Kind).
			Msg("Listen address and provider kind changes take effect after restart")
	}
	r.last = next
	log.Info().
		Str("mode", next.Engine.Mode).
		Str("level", next.Logging.Level).
		Dur("poll_interval", next.Provider.PollInterval).
		Msg("Config applied")
	return restart
}

func policyFrom(c config.EngineConfig) (engine.Policy, error) {
	mode, err := engine.ParseMode(c.Mode)
	if err != nil {
		return engine.Policy{}, err
	}
	sig, err := engine.ParsePlayingSignal(c.PlayingSignal)
	if err != nil {
		return engine.Policy{}, err
	}
	return engine.Policy{Mode: mode, PlayingSignal: sig}, nil
}

func processConfig(c config.ProviderConfig) process.Config {
	players := make([]process.Player, len(c.Players))
	for i, p := range c.Players {
		players[i] = process.Player{
			ID:        p.ID,
			Title:     p.Title,
			Processes: p.Processes,
			Kind:      media.Kind(p.Kind),
			Art:       p.Art,
		}
	}
	return process.Config{
		PollInterval:     c.PollInterval,
		CPUThreshold:     c.CPUThreshold,
		FailureThreshold: c.FailureThreshold,
		Players:          players,
	}
}
