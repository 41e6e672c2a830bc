package media

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusJSONRoundTrip(t *testing.T) {
	for status := range statusNames {
		data, err := json.Marshal(status)
		require.NoError(t, err)

		var got Status
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, status, got)
	}
}

func TestStatusUnknownName(t *testing.T) {
	assert.Equal(t, "unknown", Status(42).String())

	got := StatusPaused
	err := json.Unmarshal([]byte(`"rewinding"`), &got)
	assert.ErrorContains(t, err, "rewinding")
	assert.Equal(t, StatusPaused, got, "failed decode must not overwrite")
}

func TestReleaseOnce(t *testing.T) {
	calls := 0
	reg := ReleaseOnce(func() { calls++ })
	reg.Release()
	reg.Release()
	assert.Equal(t, 1, calls)
}

func TestPlaybackSnapshotUsable(t *testing.T) {
	tests := []struct {
		name string
		snap PlaybackSnapshot
		want bool
	}{
		{"playing with controls", NewPlaybackSnapshot(StatusPlaying, &Controls{}, KindMusic), true},
		{"paused with controls", NewPlaybackSnapshot(StatusPaused, &Controls{PlayEnabled: true}, ""), true},
		{"closed", NewPlaybackSnapshot(StatusClosed, &Controls{}, ""), false},
		{"no controls", NewPlaybackSnapshot(StatusPlaying, nil, ""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.snap.Usable())
		})
	}
}

func TestNewPlaybackSnapshotCopiesControls(t *testing.T) {
	c := &Controls{NextEnabled: true}
	snap := NewPlaybackSnapshot(StatusPlaying, c, "")
	c.NextEnabled = false

	require.NotNil(t, snap.Controls)
	assert.True(t, snap.Controls.NextEnabled, "snapshot shares caller's controls")

	clone := snap.Clone()
	clone.Controls.NextEnabled = false
	assert.True(t, snap.Controls.NextEnabled, "clone shares controls with original")
}

func TestColorHex(t *testing.T) {
	c := Color{R: 0x12, G: 0xab, B: 0xff}
	assert.Equal(t, "#12abff", c.Hex())

	parsed, err := ParseHex("#12abff")
	require.NoError(t, err)
	assert.Equal(t, c, parsed)

	_, err = ParseHex("#123")
	assert.Error(t, err)
}

func TestExtractionErrorMatching(t *testing.T) {
	cause := errors.New("bad header")
	err := fmt.Errorf("session s1: %w", &ExtractionError{Op: "decode", Err: cause})

	assert.ErrorIs(t, err, ErrExtraction)
	assert.ErrorIs(t, err, cause)

	var ee *ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "decode", ee.Op)
}
