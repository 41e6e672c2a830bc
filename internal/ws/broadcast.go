package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mediawatch/backend/internal/engine"
	"github.com/mediawatch/backend/internal/media"
	"github.com/mediawatch/backend/internal/notify"
)

// ErrTooManyConnections is returned by AddClient once MaxConns clients are
// connected.
var ErrTooManyConnections = errors.New("too many websocket connections")

// ErrStopped is returned by AddClient after Stop.
var ErrStopped = errors.New("broadcaster stopped")

const writeWait = 5 * time.Second

// StateSource is the read side of the engine.
type StateSource interface {
	Snapshot() notify.Snapshot
	Sessions() []engine.SessionView
	SessionIDs() []media.SessionID
	ArtSessionIDs() []media.SessionID
	FocusedID() media.SessionID
	Policy() engine.Policy
}

// Subscriber hands out notification subscriptions.
type Subscriber interface {
	Subscribe(buffer int) *notify.Subscription
}

// ClientObserver is told about client churn.
type ClientObserver interface {
	ClientConnected()
	ClientDisconnected()
}

type nopClientObserver struct{}

func (nopClientObserver) ClientConnected()    {}
func (nopClientObserver) ClientDisconnected() {}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
	once sync.Once
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

type BroadcastConfig struct {
	Throttle         time.Duration // window for coalescing state messages; 0 sends each one
	SnapshotInterval time.Duration
	ClientBuffer     int
	MaxConns         int // 0 means unlimited
}

type Broadcaster struct {
	src    StateSource
	cfg    BroadcastConfig
	obs    ClientObserver
	logger zerolog.Logger

	mu      sync.RWMutex
	clients map[*client]bool

	sub            *notify.Subscription
	snapshotTicker *time.Ticker
	done           chan struct{}
	wg             sync.WaitGroup
	stopOnce       sync.Once

	flushMu      sync.Mutex
	pendingState *notify.Snapshot
	flushTimer   *time.Timer
}

// NewBroadcaster subscribes to n and starts forwarding. obs may be nil.
func NewBroadcaster(src StateSource, n Subscriber, cfg BroadcastConfig, obs ClientObserver, logger zerolog.Logger) *Broadcaster {
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = 64
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = 5 * time.Second
	}
	if obs == nil {
		obs = nopClientObserver{}
	}
	b := &Broadcaster{
		src:            src,
		cfg:            cfg,
		obs:            obs,
		logger:         logger.With().Str("component", "ws").Logger(),
		clients:        make(map[*client]bool),
		sub:            n.Subscribe(cfg.ClientBuffer * 4),
		snapshotTicker: time.NewTicker(cfg.SnapshotInterval),
		done:           make(chan struct{}),
	}
	b.wg.Add(2)
	go b.forwardLoop()
	go b.snapshotLoop()
	return b
}

// AddClient registers conn and queues the current snapshot for it.
func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	c := &client{
		id:   uuid.New(),
		conn: conn,
		b:    b,
		send: make(chan []byte, b.cfg.ClientBuffer),
	}

	data, err := json.Marshal(b.snapshotMessage())
	if err != nil {
		return nil, err
	}
	c.send <- data // fresh buffer, cannot block

	b.mu.Lock()
	select {
	case <-b.done:
		b.mu.Unlock()
		return nil, ErrStopped
	default:
	}
	if b.cfg.MaxConns > 0 && len(b.clients) >= b.cfg.MaxConns {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	b.clients[c] = true
	b.mu.Unlock()
	b.obs.ClientConnected()

	go c.writePump()
	b.logger.Debug().Str("client", c.id.String()).Msg("Client added")
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	_, ok := b.clients[c]
	delete(b.clients, c)
	b.mu.Unlock()
	if ok {
		c.once.Do(func() { close(c.send) })
		b.obs.ClientDisconnected()
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Stop unsubscribes, stops the tickers and disconnects every client.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		close(b.done)
		b.mu.Unlock()
		b.sub.Close()
		b.snapshotTicker.Stop()
		b.wg.Wait()

		b.flushMu.Lock()
		if b.flushTimer != nil {
			b.flushTimer.Stop()
			b.flushTimer = nil
		}
		b.flushMu.Unlock()

		b.mu.RLock()
		clients := make([]*client, 0, len(b.clients))
		for c := range b.clients {
			clients = append(clients, c)
		}
		b.mu.RUnlock()
		for _, c := range clients {
			b.RemoveClient(c)
		}
	})
}

func (b *Broadcaster) snapshotMessage() WSMessage {
	return WSMessage{
		Type: MsgSnapshot,
		Payload: SnapshotPayload{
			State:    b.src.Snapshot(),
			Sessions: b.src.Sessions(),
			Focused:  b.src.FocusedID(),
			Mode:     b.src.Policy().Mode,
		},
	}
}

func (b *Broadcaster) forwardLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case note, ok := <-b.sub.C:
			if !ok {
				return
			}
			b.forward(note)
		}
	}
}

func (b *Broadcaster) forward(note notify.Notification) {
	switch note.Kind {
	case notify.KindFocusedMediaChanged:
		b.broadcast(WSMessage{Type: MsgFocused, Payload: note.Focused})
	case notify.KindArtStateChanged:
		b.broadcast(WSMessage{Type: MsgArt, Payload: note.Art})
	case notify.KindMediaPropertiesChanged:
		b.broadcast(WSMessage{Type: MsgProperties, Payload: note.Properties})
	case notify.KindSnapshotChanged:
		b.queueState(*note.Snapshot)
	}
}

// queueState keeps only the newest snapshot until the throttle window ends.
func (b *Broadcaster) queueState(s notify.Snapshot) {
	if b.cfg.Throttle <= 0 {
		b.broadcast(WSMessage{Type: MsgState, Payload: s})
		return
	}
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	b.pendingState = &s
	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.cfg.Throttle, b.flush)
	}
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	pending := b.pendingState
	b.pendingState = nil
	b.flushTimer = nil
	b.flushMu.Unlock()

	if pending == nil {
		return
	}
	select {
	case <-b.done:
		return
	default:
	}
	b.broadcast(WSMessage{Type: MsgState, Payload: *pending})
}

func (b *Broadcaster) snapshotLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case <-b.snapshotTicker.C:
			if b.ClientCount() > 0 {
				b.broadcast(b.snapshotMessage())
			}
		}
	}
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Str("type", string(msg.Type)).Msg("Broadcast marshal failed")
		return
	}

	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.logger.Warn().Str("client", c.id.String()).Msg("Client too slow, disconnecting")
		b.RemoveClient(c)
	}
}
