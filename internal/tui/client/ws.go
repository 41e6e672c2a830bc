// Package client connects the terminal viewer to the daemon's websocket and
// turns server messages into Bubble Tea messages.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/mediawatch/backend/internal/notify"
	"github.com/mediawatch/backend/internal/ws"
)

const (
	reconnectBaseDelay = 500 * time.Millisecond
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

// WSClient manages the websocket connection to the daemon.
type WSClient struct {
	url   string
	token string

	mu      sync.Mutex
	conn    *websocket.Conn
	delay   time.Duration
	pingCtx context.CancelFunc
}

func NewWSClient(url, token string) *WSClient {
	return &WSClient{url: url, token: token, delay: reconnectBaseDelay}
}

// --- Bubble Tea messages ---

type ConnectedMsg struct{}

type DisconnectedMsg struct{ Err error }

// RetryMsg reports a failed dial and the wait before the next one.
type RetryMsg struct {
	Err   error
	After time.Duration
}

type SnapshotMsg struct{ Payload ws.SnapshotPayload }

type StateMsg struct{ State notify.Snapshot }

type FocusedMsg struct{ Payload notify.FocusedMediaChanged }

type ArtMsg struct{ Payload notify.ArtStateChanged }

type PropertiesMsg struct{ Payload notify.MediaPropertiesChanged }

type wireMessage struct {
	Type    ws.MessageType  `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// nextDelay doubles d up to the reconnect ceiling.
func nextDelay(d time.Duration) time.Duration {
	return min(d*2, reconnectMaxDelay)
}

// Connect returns a command that dials once. On failure it waits out the
// backoff and reports RetryMsg so the model can show the attempt.
func (c *WSClient) Connect(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		header := http.Header{}
		if c.token != "" {
			header.Set("Authorization", "Bearer "+c.token)
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
		if err != nil {
			c.mu.Lock()
			wait := c.delay
			c.delay = nextDelay(c.delay)
			c.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			return RetryMsg{Err: err, After: wait}
		}

		c.mu.Lock()
		if c.pingCtx != nil {
			c.pingCtx()
		}
		pingCtx, cancel := context.WithCancel(ctx)
		c.conn = conn
		c.delay = reconnectBaseDelay
		c.pingCtx = cancel
		c.mu.Unlock()

		go c.pingLoop(pingCtx, conn)
		return ConnectedMsg{}
	}
}

// ReadNext returns a command that blocks for the next recognised message.
func (c *WSClient) ReadNext() tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return DisconnectedMsg{Err: errors.New("not connected")}
		}

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		conn.SetReadDeadline(time.Now().Add(pongTimeout))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.mu.Lock()
				if c.conn == conn {
					c.conn = nil
				}
				c.mu.Unlock()
				conn.Close()
				return DisconnectedMsg{Err: err}
			}
			var msg wireMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if teaMsg := decode(msg); teaMsg != nil {
				return teaMsg
			}
		}
	}
}

func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pingCtx != nil {
		c.pingCtx()
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func decode(msg wireMessage) tea.Msg {
	switch msg.Type {
	case ws.MsgSnapshot:
		var p ws.SnapshotPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			return SnapshotMsg{Payload: p}
		}
	case ws.MsgState:
		var p notify.Snapshot
		if json.Unmarshal(msg.Payload, &p) == nil {
			return StateMsg{State: p}
		}
	case ws.MsgFocused:
		var p notify.FocusedMediaChanged
		if json.Unmarshal(msg.Payload, &p) == nil {
			return FocusedMsg{Payload: p}
		}
	case ws.MsgArt:
		var p notify.ArtStateChanged
		if json.Unmarshal(msg.Payload, &p) == nil {
			return ArtMsg{Payload: p}
		}
	case ws.MsgProperties:
		var p notify.MediaPropertiesChanged
		if json.Unmarshal(msg.Payload, &p) == nil {
			return PropertiesMsg{Payload: p}
		}
	}
	return nil
}
