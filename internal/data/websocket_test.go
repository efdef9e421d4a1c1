package data

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RelayLane/internal/conf"
	"RelayLane/internal/model"
)

var testUpgrader = websocket.Upgrader{}

// newWSServer starts a websocket test server running handler per connection.
func newWSServer(t *testing.T, handler func(conn *websocket.Conn)) (*httptest.Server, string) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(conn)
	}))
	t.Cleanup(server.Close)
	return server, "ws" + strings.TrimPrefix(server.URL, "http")
}

func newWSTransport(t *testing.T, endpoint string) *WebSocketTransport {
	transport, err := NewWebSocketTransport(&conf.Bridge{
		Primary: &conf.Bridge_Channel{Endpoint: endpoint},
	}, log.NewStdLogger(os.Stdout))
	require.NoError(t, err)
	t.Cleanup(func() { _ = transport.Close() })
	return transport
}

// readLoop keeps the server side reading so control frames are answered.
func readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Test NewWebSocketTransport - Configuration validation
func TestNewWebSocketTransport_Validation(t *testing.T) {
	logger := log.NewStdLogger(os.Stdout)

	_, err := NewWebSocketTransport(nil, logger)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint is required")

	_, err = NewWebSocketTransport(&conf.Bridge{
		Primary: &conf.Bridge_Channel{Endpoint: "http://edge.example.com"},
	}, logger)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid primary endpoint")

	_, err = NewWebSocketTransport(&conf.Bridge{
		Primary: &conf.Bridge_Channel{
			Endpoint: "ws://edge.example.com/bridge",
			ProxyUrl: "ftp://proxy.example.com:1080",
		},
	}, logger)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported proxy scheme")
}

// Test Open/Send - Envelopes arrive at the server as JSON text frames
func TestWebSocketTransport_OpenAndSend(t *testing.T) {
	received := make(chan *model.Envelope, 1)
	_, wsURL := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env model.Envelope
		if json.Unmarshal(data, &env) == nil {
			received <- &env
		}
	})

	transport := newWSTransport(t, wsURL)
	require.NoError(t, transport.Open(context.Background(), nil, nil))

	env := model.NewEnvelope("op-1", json.RawMessage(`{"action":"sync"}`))
	require.NoError(t, transport.Send(context.Background(), env))

	select {
	case got := <-received:
		assert.Equal(t, "op-1", got.ID)
		assert.JSONEq(t, `{"action":"sync"}`, string(got.Payload))
		assert.Greater(t, got.Timestamp, int64(0))
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the envelope")
	}
}

// Test Open - Server-pushed frames reach the event sink
func TestWebSocketTransport_ServerPushReachesSink(t *testing.T) {
	_, wsURL := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"id":"op-1","result":{"applied":true}}`))
		readLoop(conn)
	})

	events := make(chan *model.InboundEvent, 1)
	transport := newWSTransport(t, wsURL)
	require.NoError(t, transport.Open(context.Background(),
		func(ev *model.InboundEvent) { events <- ev }, nil))

	select {
	case ev := <-events:
		assert.Equal(t, "op-1", ev.ID)
		assert.JSONEq(t, `{"applied":true}`, string(ev.Result))
	case <-time.After(2 * time.Second):
		t.Fatal("pushed frame never reached the sink")
	}
}

// Test Open - Undecodable frames are dropped without ending the session
func TestWebSocketTransport_UndecodableFrameDropped(t *testing.T) {
	_, wsURL := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"id":"op-2","result":{}}`))
		readLoop(conn)
	})

	events := make(chan *model.InboundEvent, 2)
	transport := newWSTransport(t, wsURL)
	require.NoError(t, transport.Open(context.Background(),
		func(ev *model.InboundEvent) { events <- ev }, nil))

	select {
	case ev := <-events:
		assert.Equal(t, "op-2", ev.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("valid frame after a bad one never arrived")
	}
}

// Test Ping - Pong from a live server completes the probe
func TestWebSocketTransport_PingPong(t *testing.T) {
	_, wsURL := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		// reading is what answers pings on the server side
		readLoop(conn)
	})

	transport := newWSTransport(t, wsURL)
	require.NoError(t, transport.Open(context.Background(), nil, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, transport.Ping(ctx))
}

// Test Ping - A dead peer fails the probe by timeout
func TestWebSocketTransport_PingDeadPeer(t *testing.T) {
	closed := make(chan struct{})
	_, wsURL := newWSServer(t, func(conn *websocket.Conn) {
		// close the raw connection without reading anything
		conn.Close()
		close(closed)
	})

	transport := newWSTransport(t, wsURL)
	require.NoError(t, transport.Open(context.Background(), nil, nil))
	<-closed

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	assert.Error(t, transport.Ping(ctx))
}

// Test onClose - Remote loss surfaces through the close callback
func TestWebSocketTransport_RemoteCloseFiresCallback(t *testing.T) {
	_, wsURL := newWSServer(t, func(conn *websocket.Conn) {
		// drop the connection abruptly after the handshake
		conn.Close()
	})

	closeErrs := make(chan error, 1)
	transport := newWSTransport(t, wsURL)
	require.NoError(t, transport.Open(context.Background(), nil,
		func(err error) { closeErrs <- err }))

	select {
	case err := <-closeErrs:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("close callback never fired")
	}
}

// Test Close - Local teardown reports no cause and is idempotent
func TestWebSocketTransport_LocalClose(t *testing.T) {
	_, wsURL := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		readLoop(conn)
	})

	closeErrs := make(chan error, 2)
	transport := newWSTransport(t, wsURL)
	require.NoError(t, transport.Open(context.Background(), nil,
		func(err error) { closeErrs <- err }))

	require.NoError(t, transport.Close())
	require.NoError(t, transport.Close())

	select {
	case err := <-closeErrs:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("close callback never fired")
	}
	// the session finishes exactly once
	select {
	case <-closeErrs:
		t.Fatal("close callback fired twice")
	case <-time.After(100 * time.Millisecond):
	}
}

// Test Open - Reopening replaces the previous session cleanly
func TestWebSocketTransport_ReopenReplacesSession(t *testing.T) {
	received := make(chan string, 4)
	_, wsURL := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env model.Envelope
			if json.Unmarshal(data, &env) == nil {
				received <- env.ID
			}
		}
	})

	firstClose := make(chan error, 1)
	transport := newWSTransport(t, wsURL)
	require.NoError(t, transport.Open(context.Background(), nil,
		func(err error) { firstClose <- err }))

	// second dial supersedes the first session without an error cause
	require.NoError(t, transport.Open(context.Background(), nil, nil))

	select {
	case err := <-firstClose:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded session never finished")
	}

	require.NoError(t, transport.Send(context.Background(),
		model.NewEnvelope("op-after", json.RawMessage(`{}`))))
	select {
	case id := <-received:
		assert.Equal(t, "op-after", id)
	case <-time.After(2 * time.Second):
		t.Fatal("send after reopen never arrived")
	}
}

// Test Send/Ping - No session means an immediate error
func TestWebSocketTransport_RequiresOpenSession(t *testing.T) {
	transport := newWSTransport(t, "ws://127.0.0.1:9100/bridge")

	err := transport.Send(context.Background(), model.NewEnvelope("op-1", nil))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "session is not open")

	err = transport.Ping(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "session is not open")
}

// Test Open - An unreachable endpoint reports the dial failure
func TestWebSocketTransport_OpenUnreachable(t *testing.T) {
	transport := newWSTransport(t, "ws://127.0.0.1:1/bridge")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := transport.Open(ctx, nil, nil)
	assert.Error(t, err)
}
