package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })
}

func TestNewWritesToFile(t *testing.T) {
	restoreLevel(t)
	path := filepath.Join(t.TempDir(), "logs", "mediawatch.log")

	l, err := New(Config{Level: "debug", File: path})
	require.NoError(t, err)
	l.Component("engine").Debug().Str("session", "vlc").Msg("hello")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"engine"`)
	assert.Contains(t, string(data), `"session":"vlc"`)
}

func TestSetLevelGatesDerivedLoggers(t *testing.T) {
	restoreLevel(t)
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(Config{Level: "info", File: path})
	require.NoError(t, err)
	defer l.Close()
	child := l.Component("ws")

	child.Debug().Msg("hidden")
	require.NoError(t, SetLevel("debug"))
	child.Debug().Msg("visible")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "visible")
}

func TestSetLevel(t *testing.T) {
	restoreLevel(t)
	require.NoError(t, SetLevel(""))
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	require.NoError(t, SetLevel("warn"))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	assert.Error(t, SetLevel("loud"))
}

func TestNewRejectsBadLevel(t *testing.T) {
	restoreLevel(t)
	_, err := New(Config{Level: "loud", Console: true})
	assert.Error(t, err)
}
