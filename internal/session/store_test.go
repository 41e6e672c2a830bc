package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/mediawatch/backend/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSession struct {
	id media.SessionID
}

func (s stubSession) ID() media.SessionID { return s.id }
func (s stubSession) Valid() bool         { return true }
func (s stubSession) PlaybackInfo() (media.PlaybackSnapshot, error) {
	return media.PlaybackSnapshot{}, nil
}
func (s stubSession) Properties() (media.Properties, error) { return media.Properties{}, nil }
func (s stubSession) SubscribePlayback(func(*media.PlaybackSnapshot)) (media.Registration, error) {
	return media.ReleaseOnce(func() {}), nil
}

func TestNewStore(t *testing.T) {
	s := NewStore()
	require.NotNil(t, s)
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.IDs())
}

func TestAddIsIdempotent(t *testing.T) {
	s := NewStore()

	first, inserted := s.Add(stubSession{id: "a"})
	require.True(t, inserted)

	second, inserted := s.Add(stubSession{id: "a"})
	assert.False(t, inserted, "duplicate id inserted twice")
	assert.Equal(t, first.Generation, second.Generation)
	assert.Equal(t, 1, s.Len())
}

func TestGetMissing(t *testing.T) {
	s := NewStore()
	_, ok := s.Get("nonexistent")
	assert.False(t, ok)
	assert.False(t, s.Has("nonexistent"))
	assert.Zero(t, s.Generation("nonexistent"))
}

func TestRemove(t *testing.T) {
	s := NewStore()
	s.Add(stubSession{id: "a"})

	e, ok := s.Remove("a")
	require.True(t, ok)
	assert.Equal(t, media.SessionID("a"), e.ID())
	assert.False(t, s.Has("a"))

	_, ok = s.Remove("a")
	assert.False(t, ok, "second remove reported success")
}

func TestReinsertGetsFreshGeneration(t *testing.T) {
	s := NewStore()
	first, _ := s.Add(stubSession{id: "x"})
	require.True(t, s.SetPlayback("x", media.NewPlaybackSnapshot(media.StatusPlaying, &media.Controls{NextEnabled: true}, "")))

	s.Remove("x")
	second, inserted := s.Add(stubSession{id: "x"})
	require.True(t, inserted)

	assert.Greater(t, second.Generation, first.Generation)
	assert.Nil(t, second.Playback, "reopened session inherited cached playback")
}

func TestSetPlaybackStoresCopy(t *testing.T) {
	s := NewStore()
	s.Add(stubSession{id: "a"})

	snap := media.NewPlaybackSnapshot(media.StatusPlaying, &media.Controls{NextEnabled: true}, media.KindMusic)
	require.True(t, s.SetPlayback("a", snap))
	snap.Controls.NextEnabled = false

	got, _ := s.Get("a")
	require.NotNil(t, got.Playback)
	assert.True(t, got.Playback.Controls.NextEnabled, "external mutation leaked into store")

	got.Playback.Controls.NextEnabled = false
	again, _ := s.Get("a")
	assert.True(t, again.Playback.Controls.NextEnabled, "Get did not return a copy")
}

func TestSetOnMissingSession(t *testing.T) {
	s := NewStore()
	assert.False(t, s.SetPlayback("ghost", media.PlaybackSnapshot{}))
	assert.False(t, s.SetMetadata("ghost", Metadata{Title: "t"}))
}

func TestIDsSorted(t *testing.T) {
	s := NewStore()
	for _, id := range []media.SessionID{"c", "a", "b"} {
		s.Add(stubSession{id: id})
	}
	assert.Equal(t, []media.SessionID{"a", "b", "c"}, s.IDs())

	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, media.SessionID("a"), all[0].ID())
}

func TestClearKeepsGenerationsMonotonic(t *testing.T) {
	s := NewStore()
	before, _ := s.Add(stubSession{id: "a"})
	s.Clear()
	assert.Equal(t, 0, s.Len())

	after, _ := s.Add(stubSession{id: "a"})
	assert.Greater(t, after.Generation, before.Generation)
}

func TestConcurrentAdds(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Add(stubSession{id: media.SessionID(fmt.Sprintf("s%d", i%10))})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, s.Len())
}
