// Package art tracks which sessions currently expose thumbnail art and
// which of them is the art head, the session whose palette consumers see.
package art

import (
	"github.com/mediawatch/backend/internal/media"
)

// Entry is one art-providing session.
type Entry struct {
	ID        media.SessionID
	Thumbnail media.Thumbnail
	Palette   *media.Palette // nil until an extraction for the current thumbnail lands
	request   uint64
}

// Tracker is an ordered set of art sessions. The most recently added or
// refreshed member is the head. It is not safe for concurrent use; the
// engine serializes access.
type Tracker struct {
	order   []media.SessionID // oldest first, head last
	entries map[media.SessionID]*Entry
	seq     uint64
}

func NewTracker() *Tracker {
	return &Tracker{entries: make(map[media.SessionID]*Entry)}
}

// Touch adds id or moves it to the head, replacing its thumbnail. The cached
// palette is dropped because it belonged to the previous thumbnail. It
// reports whether id was newly added.
func (t *Tracker) Touch(id media.SessionID, thumb media.Thumbnail) bool {
	e, ok := t.entries[id]
	if ok {
		t.unlink(id)
		e.Thumbnail = thumb
		e.Palette = nil
	} else {
		e = &Entry{ID: id, Thumbnail: thumb}
		t.entries[id] = e
	}
	t.order = append(t.order, id)
	return !ok
}

// Remove drops id. wasHead reports whether id was the head before removal.
func (t *Tracker) Remove(id media.SessionID) (removed, wasHead bool) {
	if _, ok := t.entries[id]; !ok {
		return false, false
	}
	wasHead = t.order[len(t.order)-1] == id
	t.unlink(id)
	delete(t.entries, id)
	return true, wasHead
}

func (t *Tracker) unlink(id media.SessionID) {
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}

// Head returns the most recently added or refreshed member.
func (t *Tracker) Head() (Entry, bool) {
	if len(t.order) == 0 {
		return Entry{}, false
	}
	return *t.entries[t.order[len(t.order)-1]], true
}

func (t *Tracker) IsHead(id media.SessionID) bool {
	return len(t.order) > 0 && t.order[len(t.order)-1] == id
}

func (t *Tracker) Has(id media.SessionID) bool {
	_, ok := t.entries[id]
	return ok
}

func (t *Tracker) Get(id media.SessionID) (Entry, bool) {
	e, ok := t.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// BeginRequest stamps a new extraction request on id and returns its
// sequence number. Only the latest request for a member can land.
func (t *Tracker) BeginRequest(id media.SessionID) (uint64, bool) {
	e, ok := t.entries[id]
	if !ok {
		return 0, false
	}
	t.seq++
	e.request = t.seq
	return e.request, true
}

// Land stores palette for id if seq is still the member's latest request.
func (t *Tracker) Land(id media.SessionID, seq uint64, palette media.Palette) bool {
	e, ok := t.entries[id]
	if !ok || e.request != seq {
		return false
	}
	p := palette
	e.Palette = &p
	return true
}

// Current reports whether seq is still the latest request for id.
func (t *Tracker) Current(id media.SessionID, seq uint64) bool {
	e, ok := t.entries[id]
	return ok && e.request == seq
}

// IDs returns the members, head first.
func (t *Tracker) IDs() []media.SessionID {
	ids := make([]media.SessionID, len(t.order))
	for i, id := range t.order {
		ids[len(t.order)-1-i] = id
	}
	return ids
}

func (t *Tracker) Len() int { return len(t.order) }

func (t *Tracker) Clear() {
	t.order = nil
	t.entries = make(map[media.SessionID]*Entry)
}
