package session

import (
	"sort"
	"sync"

	"github.com/mediawatch/backend/internal/media"
)

// Entry is the store's record for one logical session instance. Generation
// changes every time an id is (re)inserted, so a reopened id never inherits
// the cached state of the instance that closed before it.
type Entry struct {
	Session    media.Session
	Generation uint64
	Playback   *media.PlaybackSnapshot
	Metadata   Metadata
}

// Metadata is the last properties block seen for the session, minus the
// thumbnail handle.
type Metadata struct {
	Title  string     `json:"title,omitempty"`
	Artist string     `json:"artist,omitempty"`
	Album  string     `json:"album,omitempty"`
	Kind   media.Kind `json:"kind,omitempty"`
}

func (e Entry) ID() media.SessionID {
	return e.Session.ID()
}

func (e Entry) clone() Entry {
	if e.Playback != nil {
		p := e.Playback.Clone()
		e.Playback = &p
	}
	return e
}

// Store is the deduplicated set of known sessions keyed by SessionID.
type Store struct {
	mu       sync.RWMutex
	sessions map[media.SessionID]*Entry
	nextGen  uint64
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[media.SessionID]*Entry),
		nextGen:  1,
	}
}

// Add inserts s unless its id is already present. It returns the entry now
// stored for the id and whether an insert happened.
func (s *Store) Add(sess media.Session) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := sess.ID()
	if existing, ok := s.sessions[id]; ok {
		return existing.clone(), false
	}
	e := &Entry{Session: sess, Generation: s.nextGen}
	s.nextGen++
	s.sessions[id] = e
	return e.clone(), true
}

// Remove deletes the entry for id and returns it.
func (s *Store) Remove(id media.SessionID) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return Entry{}, false
	}
	delete(s.sessions, id)
	return e.clone(), true
}

func (s *Store) Get(id media.SessionID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

func (s *Store) Has(id media.SessionID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

// Generation returns the generation of the entry stored for id, or 0.
func (s *Store) Generation(id media.SessionID) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.sessions[id]; ok {
		return e.Generation
	}
	return 0
}

// SetPlayback caches snap for id. It reports false when id is unknown.
func (s *Store) SetPlayback(id media.SessionID, snap media.PlaybackSnapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return false
	}
	c := snap.Clone()
	e.Playback = &c
	return true
}

// SetMetadata records the latest metadata for id.
func (s *Store) SetMetadata(id media.SessionID, md Metadata) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return false
	}
	e.Metadata = md
	return true
}

// IDs returns the stored ids in lexical order.
func (s *Store) IDs() []media.SessionID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]media.SessionID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// All returns copies of every entry, ordered by id.
func (s *Store) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		result = append(result, e.clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Clear drops every entry. Generations keep increasing across clears.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[media.SessionID]*Entry)
}
