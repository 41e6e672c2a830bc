// Package notify fans engine notifications out to consumers. Publish never
// blocks: a subscriber whose buffer is full misses the notification.
package notify

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultBuffer = 64

// Publisher is what the engine needs from a notifier.
type Publisher interface {
	Publish(n Notification)
}

type Notifier struct {
	mu      sync.RWMutex
	subs    map[uuid.UUID]*Subscription
	closed  bool
	dropped atomic.Int64
	onDrop  func(Kind)
	logger  zerolog.Logger
}

func NewNotifier(logger zerolog.Logger) *Notifier {
	return &Notifier{
		subs:   make(map[uuid.UUID]*Subscription),
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// SetDropHook installs fn to be called for every dropped notification.
// Must be called before the first Publish.
func (n *Notifier) SetDropHook(fn func(Kind)) {
	n.onDrop = fn
}

// Subscription is a registration token for one consumer. Close releases it;
// C is closed afterwards.
type Subscription struct {
	ID   uuid.UUID
	C    <-chan Notification
	ch   chan Notification
	n    *Notifier
	once sync.Once
}

// Subscribe registers a consumer with a buffer of the given size.
func (n *Notifier) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan Notification, buffer)
	sub := &Subscription{ID: uuid.New(), C: ch, ch: ch, n: n}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		close(ch)
		return sub
	}
	n.subs[sub.ID] = sub
	return sub
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.n.mu.Lock()
		defer s.n.mu.Unlock()
		if _, ok := s.n.subs[s.ID]; ok {
			delete(s.n.subs, s.ID)
			close(s.ch)
		}
	})
}

func (n *Notifier) Publish(note Notification) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, sub := range n.subs {
		select {
		case sub.ch <- note:
		default:
			total := n.dropped.Add(1)
			if n.onDrop != nil {
				n.onDrop(note.Kind)
			}
			n.logger.Debug().
				Str("subscription", sub.ID.String()).
				Str("kind", string(note.Kind)).
				Int64("dropped_total", total).
				Msg("Subscriber too slow, notification dropped")
		}
	}
}

// Dropped returns the number of notifications dropped since creation.
func (n *Notifier) Dropped() int64 {
	return n.dropped.Load()
}

func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// Close releases every subscription. Later Subscribe calls return an
// already-closed subscription.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for id, sub := range n.subs {
		delete(n.subs, id)
		close(sub.ch)
	}
}
