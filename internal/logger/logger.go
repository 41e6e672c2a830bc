// Package logger builds the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Level   string // trace, debug, info, warn, error
	File    string // optional log file, appended to
	Console bool
	Pretty  bool // human-readable console output
}

type Logger struct {
	zerolog.Logger
	file *os.File
}

// New builds a logger that writes to the console and/or a file. The
// configured level is applied globally so SetLevel affects every derived
// component logger.
func New(cfg Config) (*Logger, error) {
	var writers []io.Writer
	if cfg.Console {
		var w io.Writer = os.Stderr
		if cfg.Pretty {
			w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		}
		writers = append(writers, w)
	}

	var file *os.File
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		writers = append(writers, f)
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = os.Stderr
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}

	if err := SetLevel(cfg.Level); err != nil {
		if file != nil {
			file.Close()
		}
		return nil, err
	}
	zl := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = zl
	return &Logger{Logger: zl, file: file}, nil
}

// SetLevel changes the global log level. An empty level means info.
func SetLevel(level string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
