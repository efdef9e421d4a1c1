package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"RelayLane/internal/conf"
	"RelayLane/internal/model"
	"RelayLane/pkg/endpoint"
	pkgerrors "RelayLane/pkg/errors"
	"RelayLane/pkg/httpclient"

	"github.com/go-kratos/kratos/v2/log"
)

const userAgent = "RelayLane/1.0"

// HTTPCallTransport implements biz.CallTransport over plain HTTP POSTs. It
// is the secondary channel: no persistent session, one request per
// operation, liveness probed by GET against the same endpoint. Session loss
// is detected by the heartbeat going stale, so onClose is never invoked.
type HTTPCallTransport struct {
	endpoint string
	client   *http.Client
	logger   *log.Helper

	mu      sync.Mutex
	onEvent func(ev *model.InboundEvent)
}

// NewHTTPCallTransport creates the secondary channel transport from
// configuration. The endpoint must be an http:// or https:// URL.
func NewHTTPCallTransport(c *conf.Bridge, logger log.Logger) (*HTTPCallTransport, error) {
	if c == nil || c.Secondary == nil || c.Secondary.Endpoint == "" {
		return nil, fmt.Errorf("secondary channel endpoint is required")
	}
	if err := endpoint.ValidateHTTP(c.Secondary.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid secondary endpoint: %w", err)
	}

	callTimeout := 15 * time.Second
	if c.Secondary.CallTimeout != nil {
		callTimeout = c.Secondary.CallTimeout.AsDuration()
	}

	helper := log.NewHelper(logger)
	client, err := httpclient.CreateHTTPClient(c.Secondary.ProxyUrl, callTimeout)
	if err != nil {
		return nil, err
	}
	if c.Secondary.ProxyUrl != "" {
		helper.Infow("msg", "secondary channel proxy configured",
			"proxy", endpoint.MaskCredentials(c.Secondary.ProxyUrl))
	}

	return &HTTPCallTransport{
		endpoint: c.Secondary.Endpoint,
		client:   client,
		logger:   helper,
	}, nil
}

// Open probes the endpoint and records the event sink. There is no
// connection to hold, so a successful probe is all "connected" means here.
func (t *HTTPCallTransport) Open(ctx context.Context, onEvent func(ev *model.InboundEvent), onClose func(err error)) error {
	if err := t.probe(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	t.onEvent = onEvent
	t.mu.Unlock()
	return nil
}

// Send posts one envelope without waiting for the operation outcome beyond
// the HTTP exchange. A response body, if present, is handed to the event
// sink like an inbound frame.
func (t *HTTPCallTransport) Send(ctx context.Context, env *model.Envelope) error {
	ev, err := t.post(ctx, env)
	if err != nil {
		return err
	}

	t.mu.Lock()
	sink := t.onEvent
	t.mu.Unlock()
	if sink != nil && ev != nil {
		sink(ev)
	}
	return nil
}

// Call posts one envelope and returns the remote outcome as an inbound
// event. An empty 2xx response is an acknowledgement without a result.
func (t *HTTPCallTransport) Call(ctx context.Context, env *model.Envelope) (*model.InboundEvent, error) {
	return t.post(ctx, env)
}

// Ping probes the endpoint for liveness.
func (t *HTTPCallTransport) Ping(ctx context.Context) error {
	return t.probe(ctx)
}

// Close drops the event sink. Nothing else to tear down.
func (t *HTTPCallTransport) Close() error {
	t.mu.Lock()
	t.onEvent = nil
	t.mu.Unlock()
	return nil
}

// post delivers the envelope and decodes the response.
func (t *HTTPCallTransport) post(ctx context.Context, env *model.Envelope) (*model.InboundEvent, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, pkgerrors.ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.ClassifyTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("remote returned status %d: %s", resp.StatusCode, truncate(data, 256))
	}

	ev := &model.InboundEvent{ID: env.ID}
	if len(data) > 0 {
		if err := json.Unmarshal(data, ev); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return ev, nil
}

// probe checks reachability. Any response below 500 counts as alive; the
// endpoint may well reject a bare GET and still be serving operations.
func (t *HTTPCallTransport) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return pkgerrors.ClassifyTransportError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return fmt.Errorf("endpoint unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
