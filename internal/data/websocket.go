package data

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"RelayLane/internal/conf"
	"RelayLane/internal/model"
	"RelayLane/pkg/endpoint"
	pkgerrors "RelayLane/pkg/errors"
	"RelayLane/pkg/httpclient"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/gorilla/websocket"
)

// defaultControlWait bounds control frame writes when the caller's context
// carries no deadline.
const defaultControlWait = 10 * time.Second

// wsSession is one established websocket connection. A new session is built
// per Open so a stale read pump can never touch the current connection.
type wsSession struct {
	conn    *websocket.Conn
	pongCh  chan struct{}
	once    sync.Once
	onClose func(err error)
}

// finish tears the session down exactly once. cause is nil for a local
// close and the classified transport error otherwise.
func (s *wsSession) finish(cause error) {
	s.once.Do(func() {
		_ = s.conn.Close()
		if s.onClose != nil {
			s.onClose(cause)
		}
	})
}

// WebSocketTransport implements biz.Transport over a websocket connection.
// It is the primary channel: full-duplex, with inbound frames pushed by the
// remote peer and liveness probed by ping/pong control frames.
type WebSocketTransport struct {
	endpoint string
	dialer   *websocket.Dialer
	logger   *log.Helper

	mu      sync.Mutex
	writeMu sync.Mutex
	session *wsSession
}

// NewWebSocketTransport creates the primary channel transport from
// configuration. The endpoint must be a ws:// or wss:// URL.
func NewWebSocketTransport(c *conf.Bridge, logger log.Logger) (*WebSocketTransport, error) {
	if c == nil || c.Primary == nil || c.Primary.Endpoint == "" {
		return nil, fmt.Errorf("primary channel endpoint is required")
	}
	if err := endpoint.ValidateWebSocket(c.Primary.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid primary endpoint: %w", err)
	}

	handshakeTimeout := 10 * time.Second
	if c.Primary.HandshakeTimeout != nil {
		handshakeTimeout = c.Primary.HandshakeTimeout.AsDuration()
	}

	helper := log.NewHelper(logger)
	dialer, err := newWSDialer(c.Primary.ProxyUrl, handshakeTimeout)
	if err != nil {
		return nil, err
	}
	if c.Primary.ProxyUrl != "" {
		helper.Infow("msg", "primary channel proxy configured",
			"proxy", endpoint.MaskCredentials(c.Primary.ProxyUrl))
	}

	return &WebSocketTransport{
		endpoint: c.Primary.Endpoint,
		dialer:   dialer,
		logger:   helper,
	}, nil
}

// newWSDialer builds a websocket dialer honoring an optional proxy URL.
// Supports SOCKS5 and HTTP/HTTPS proxies.
func newWSDialer(proxyURL string, handshakeTimeout time.Duration) (*websocket.Dialer, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	if proxyURL == "" {
		return dialer, nil
	}

	parsedProxy, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch parsedProxy.Scheme {
	case "socks5":
		socksDialer, err := httpclient.NewSOCKS5Dialer(parsedProxy)
		if err != nil {
			return nil, err
		}
		dialer.NetDial = socksDialer.Dial
	case "http", "https":
		dialer.Proxy = http.ProxyURL(parsedProxy)
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %s", parsedProxy.Scheme)
	}
	return dialer, nil
}

// Open dials the endpoint and starts the read pump. onClose fires exactly
// once when this session ends for any reason other than a local Close.
func (t *WebSocketTransport) Open(ctx context.Context, onEvent func(ev *model.InboundEvent), onClose func(err error)) error {
	conn, resp, err := t.dialer.DialContext(ctx, t.endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			t.logger.Warnw("websocket handshake rejected",
				"endpoint", t.endpoint,
				"status_code", resp.StatusCode,
				"error", err)
		}
		return pkgerrors.ClassifyTransportError(err)
	}

	session := &wsSession{
		conn:    conn,
		pongCh:  make(chan struct{}, 1),
		onClose: onClose,
	}
	conn.SetPongHandler(func(string) error {
		select {
		case session.pongCh <- struct{}{}:
		default:
		}
		return nil
	})

	t.mu.Lock()
	prev := t.session
	t.session = session
	t.mu.Unlock()
	if prev != nil {
		prev.finish(nil)
	}

	go t.readPump(session, onEvent)
	return nil
}

// readPump delivers inbound frames until the connection dies. Undecodable
// frames are dropped without ending the session.
func (t *WebSocketTransport) readPump(session *wsSession, onEvent func(ev *model.InboundEvent)) {
	for {
		_, data, err := session.conn.ReadMessage()
		if err != nil {
			session.finish(pkgerrors.ClassifyTransportError(err))
			return
		}

		var ev model.InboundEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.logger.Warnw("dropping undecodable inbound frame", "error", err)
			continue
		}
		if onEvent != nil {
			onEvent(&ev)
		}
	}
}

// Send writes one envelope as a JSON text frame.
func (t *WebSocketTransport) Send(ctx context.Context, env *model.Envelope) error {
	session := t.current()
	if session == nil {
		return fmt.Errorf("websocket session is not open")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_ = session.conn.SetWriteDeadline(writeDeadline(ctx))
	if err := session.conn.WriteJSON(env); err != nil {
		return pkgerrors.ClassifyTransportError(err)
	}
	return nil
}

// Ping sends a ping control frame and waits for the pong, or for the
// context to expire. The read pump must be alive for the pong to arrive,
// so a dead connection fails here either way.
func (t *WebSocketTransport) Ping(ctx context.Context) error {
	session := t.current()
	if session == nil {
		return fmt.Errorf("websocket session is not open")
	}

	// drain a stale pong left over from a previous probe
	select {
	case <-session.pongCh:
	default:
	}

	if err := session.conn.WriteControl(websocket.PingMessage, nil, writeDeadline(ctx)); err != nil {
		return pkgerrors.ClassifyTransportError(err)
	}

	select {
	case <-session.pongCh:
		return nil
	case <-ctx.Done():
		return pkgerrors.ClassifyTransportError(ctx.Err())
	}
}

// Close ends the current session. Safe to call at any time, including when
// no session is open or twice in a row.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	session := t.session
	t.session = nil
	t.mu.Unlock()

	if session != nil {
		// best effort notice to the peer before tearing down
		_ = session.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		session.finish(nil)
	}
	return nil
}

func (t *WebSocketTransport) current() *wsSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session
}

func writeDeadline(ctx context.Context) time.Time {
	if deadline, ok := ctx.Deadline(); ok {
		return deadline
	}
	return time.Now().Add(defaultControlWait)
}
