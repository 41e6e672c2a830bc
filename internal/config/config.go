package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Engine    EngineConfig    `yaml:"engine"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Provider  ProviderConfig  `yaml:"provider"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type EngineConfig struct {
	Mode                     string        `yaml:"mode"`
	PlayingSignal            string        `yaml:"playing_signal"`
	ExtractTimeout           time.Duration `yaml:"extract_timeout"`
	MaxConcurrentExtractions int64         `yaml:"max_concurrent_extractions"`
	MaxThumbnailBytes        int64         `yaml:"max_thumbnail_bytes"`
}

type BroadcastConfig struct {
	Throttle         time.Duration `yaml:"throttle"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	ClientBuffer     int           `yaml:"client_buffer"`
}

type ProviderConfig struct {
	Kind             string         `yaml:"kind"`
	PollInterval     time.Duration  `yaml:"poll_interval"`
	CPUThreshold     float64        `yaml:"cpu_threshold"`
	FailureThreshold int            `yaml:"failure_threshold"`
	MockInterval     time.Duration  `yaml:"mock_interval"`
	Players          []PlayerConfig `yaml:"players"`
}

// PlayerConfig maps a set of process names onto one session.
type PlayerConfig struct {
	ID        string   `yaml:"id"`
	Title     string   `yaml:"title"`
	Processes []string `yaml:"processes"`
	Kind      string   `yaml:"kind"`
	Art       string   `yaml:"art"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
	Pretty  bool   `yaml:"pretty"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

const (
	ProviderMock    = "mock"
	ProviderProcess = "process"
)

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Engine: EngineConfig{
			Mode:                     "focused_only",
			ExtractTimeout:           5 * time.Second,
			MaxConcurrentExtractions: 2,
			MaxThumbnailBytes:        4 << 20,
		},
		Broadcast: BroadcastConfig{
			Throttle:         100 * time.Millisecond,
			SnapshotInterval: 5 * time.Second,
			ClientBuffer:     64,
		},
		Provider: ProviderConfig{
			Kind:             ProviderMock,
			PollInterval:     2 * time.Second,
			CPUThreshold:     5,
			FailureThreshold: 3,
			MockInterval:     2 * time.Second,
			Players: []PlayerConfig{
				{ID: "spotify", Title: "Spotify", Processes: []string{"spotify"}, Kind: "music"},
				{ID: "vlc", Title: "VLC", Processes: []string{"vlc"}, Kind: "video"},
				{ID: "mpv", Title: "mpv", Processes: []string{"mpv"}, Kind: "video"},
			},
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return defaultConfig()
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Engine.Mode {
	case "focused_only", "any_session":
	default:
		errs = append(errs, fmt.Errorf("engine.mode %q: want focused_only or any_session", c.Engine.Mode))
	}
	switch c.Engine.PlayingSignal {
	case "", "status", "play_disabled":
	default:
		errs = append(errs, fmt.Errorf("engine.playing_signal %q: want status or play_disabled", c.Engine.PlayingSignal))
	}
	if c.Engine.ExtractTimeout <= 0 {
		errs = append(errs, errors.New("engine.extract_timeout must be positive"))
	}
	if c.Engine.MaxConcurrentExtractions < 1 {
		errs = append(errs, errors.New("engine.max_concurrent_extractions must be at least 1"))
	}
	if c.Engine.MaxThumbnailBytes < 1 {
		errs = append(errs, errors.New("engine.max_thumbnail_bytes must be positive"))
	}
	if c.Broadcast.Throttle < 0 || c.Broadcast.SnapshotInterval <= 0 {
		errs = append(errs, errors.New("broadcast intervals must be positive"))
	}
	if c.Broadcast.ClientBuffer < 1 {
		errs = append(errs, errors.New("broadcast.client_buffer must be at least 1"))
	}
	switch c.Provider.Kind {
	case ProviderMock:
	case ProviderProcess:
		if len(c.Provider.Players) == 0 {
			errs = append(errs, errors.New("provider.players is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("provider.kind %q: want mock or process", c.Provider.Kind))
	}
	if c.Provider.PollInterval <= 0 {
		errs = append(errs, errors.New("provider.poll_interval must be positive"))
	}
	for i, p := range c.Provider.Players {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("provider.players[%d]: id is required", i))
		}
		if len(p.Processes) == 0 {
			errs = append(errs, fmt.Errorf("provider.players[%d]: processes is empty", i))
		}
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path))
	}
	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
