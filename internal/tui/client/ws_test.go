package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediawatch/backend/internal/media"
	"github.com/mediawatch/backend/internal/notify"
	"github.com/mediawatch/backend/internal/ws"
)

func TestNextDelayCaps(t *testing.T) {
	assert.Equal(t, time.Second, nextDelay(500*time.Millisecond))
	assert.Equal(t, reconnectMaxDelay, nextDelay(20*time.Second))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{"state", `{"type":"state","payload":{"hasMedia":true,"sessionName":"vlc"}}`, StateMsg{}},
		{"focused", `{"type":"focused","payload":{"session":"vlc"}}`, FocusedMsg{}},
		{"art", `{"type":"art","payload":{"session":"vlc"}}`, ArtMsg{}},
		{"properties", `{"type":"properties","payload":{"session":"vlc","hasArt":false}}`, PropertiesMsg{}},
		{"snapshot", `{"type":"snapshot","payload":{"state":{},"sessions":[],"mode":"any_session"}}`, SnapshotMsg{}},
		{"unknown", `{"type":"error","payload":{"message":"x"}}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg wireMessage
			require.NoError(t, jsonUnmarshal(tt.raw, &msg))
			got := decode(msg)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			assert.IsType(t, tt.want, got)
		})
	}
}

func TestConnectAndRead(t *testing.T) {
	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(ws.WSMessage{Type: ws.MsgError, Payload: ws.ErrorPayload{Message: "ignored"}})
		conn.WriteJSON(ws.WSMessage{Type: ws.MsgFocused, Payload: notify.FocusedMediaChanged{Session: "vlc"}})
		conn.ReadMessage() // hold until the client goes away
	}))
	defer srv.Close()

	c := NewWSClient("ws"+strings.TrimPrefix(srv.URL, "http"), "secret")
	defer c.Close()

	require.IsType(t, ConnectedMsg{}, c.Connect(context.Background())())
	assert.Equal(t, "Bearer secret", <-gotAuth)

	msg := c.ReadNext()()
	require.IsType(t, FocusedMsg{}, msg)
	assert.Equal(t, media.SessionID("vlc"), msg.(FocusedMsg).Payload.Session)
}

func TestReadWithoutConnection(t *testing.T) {
	c := NewWSClient("ws://127.0.0.1:1/ws", "")
	assert.IsType(t, DisconnectedMsg{}, c.ReadNext()())
}

func TestConnectFailureBacksOff(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	c := NewWSClient(url, "")
	msg := c.Connect(context.Background())()
	retry, ok := msg.(RetryMsg)
	require.True(t, ok, "got %T", msg)
	assert.Error(t, retry.Err)
	assert.Equal(t, reconnectBaseDelay, retry.After)
	assert.Equal(t, 2*reconnectBaseDelay, c.delay)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Nil(t, c.Connect(ctx)(), "cancelled context stops retrying")
}

func jsonUnmarshal(raw string, v any) error {
	return json.Unmarshal([]byte(raw), v)
}
