package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"RelayLane/internal/biz"
	"RelayLane/internal/data"
	"RelayLane/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTransport is a minimal in-memory Transport so the service can sit on a
// real bridge use case without sockets.
type stubTransport struct {
	mu      sync.Mutex
	openErr error
	sendErr error
	sent    []*model.Envelope
}

func (s *stubTransport) Open(ctx context.Context, onEvent func(ev *model.InboundEvent), onClose func(err error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openErr
}

func (s *stubTransport) Send(ctx context.Context, env *model.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, env)
	return nil
}

func (s *stubTransport) Ping(ctx context.Context) error { return nil }

func (s *stubTransport) Close() error { return nil }

func (s *stubTransport) setOpenErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openErr = err
}

func (s *stubTransport) setSendErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = err
}

func (s *stubTransport) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// stubCallTransport adds the synchronous call path; every call succeeds.
type stubCallTransport struct {
	stubTransport
}

func (s *stubCallTransport) Call(ctx context.Context, env *model.Envelope) (*model.InboundEvent, error) {
	return &model.InboundEvent{ID: env.ID, Result: json.RawMessage(`{"ok":true}`)}, nil
}

// memStore is a slice-backed QueueStore so these tests need no Redis.
type memStore struct {
	mu  sync.Mutex
	ops []*model.QueuedOperation
}

func (m *memStore) Append(ctx context.Context, op *model.QueuedOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *op
	m.ops = append(m.ops, &cp)
	return nil
}

func (m *memStore) Peek(ctx context.Context) (*model.QueuedOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ops) == 0 {
		return nil, data.ErrQueueEmpty
	}
	cp := *m.ops[0]
	return &cp, nil
}

func (m *memStore) PopHead(ctx context.Context) (*model.QueuedOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ops) == 0 {
		return nil, data.ErrQueueEmpty
	}
	head := m.ops[0]
	m.ops = m.ops[1:]
	return head, nil
}

func (m *memStore) RemoveHead(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ops) == 0 || m.ops[0].ID != id {
		return data.ErrHeadMismatch
	}
	m.ops = m.ops[1:]
	return nil
}

func (m *memStore) RotateHead(ctx context.Context, op *model.QueuedOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ops) == 0 || m.ops[0].ID != op.ID {
		return data.ErrHeadMismatch
	}
	cp := *op
	m.ops = append(m.ops[1:], &cp)
	return nil
}

func (m *memStore) Len(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ops), nil
}

func (m *memStore) List(ctx context.Context, limit int) ([]*model.QueuedOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.ops)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*model.QueuedOperation, 0, n)
	for _, op := range m.ops[:n] {
		cp := *op
		out = append(out, &cp)
	}
	return out, nil
}

func testServiceChannelOptions() biz.ChannelOptions {
	return biz.ChannelOptions{
		HandshakeTimeout:     time.Second,
		CallTimeout:          time.Second,
		HeartbeatInterval:    time.Hour,
		HeartbeatTimeout:     time.Second,
		MaxReconnectAttempts: 1,
		ReconnectBaseDelay:   5 * time.Millisecond,
		ReconnectMaxDelay:    20 * time.Millisecond,
	}
}

// newTestService wires a BridgeService over a real use case with stub
// transports and an in-memory queue. rdb may be nil.
func newTestService(t *testing.T, rdb *redis.Client) (*BridgeService, *stubTransport, *stubCallTransport) {
	t.Helper()
	logger := log.NewStdLogger(os.Stdout)

	primary := &stubTransport{}
	secondary := &stubCallTransport{}
	opts := &biz.BridgeOptions{
		Primary:   testServiceChannelOptions(),
		Secondary: testServiceChannelOptions(),
		Breaker:   biz.BreakerOptions{FailureThreshold: 2, ResetTimeout: time.Minute, SuccessQuota: 1},
		Queue:     biz.QueueOptions{Capacity: 5, MaxAttempts: 2},
	}

	auditor := data.NewDeliveryAuditLogger(nil, logger)
	queue := biz.NewOfflineQueue(&memStore{}, opts.Queue, auditor, logger)
	uc := biz.NewBridgeUseCase(primary, secondary, queue, biz.NewCorrelator(logger),
		data.NewLogStatusNotifier(logger), auditor, opts, logger)
	t.Cleanup(func() { _ = uc.Stop(context.Background()) })

	d, cleanup, err := data.NewData(nil, logger, rdb, nil)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	return NewBridgeService(uc, d, logger), primary, secondary
}

// setupTestService creates a test BridgeService without backing stores.
func setupTestService(t *testing.T) (*BridgeService, *stubTransport, *stubCallTransport) {
	return newTestService(t, nil)
}

func connectChannel(t *testing.T, svc *BridgeService, channel string) {
	t.Helper()
	resp, err := svc.ReconnectChannel(context.Background(), channel)
	require.NoError(t, err)
	require.Equal(t, "connecting", resp.Status)
}

// Test SubmitOperation - routed over the connected primary channel
func TestSubmitOperation_Primary(t *testing.T) {
	svc, primary, _ := setupTestService(t)
	connectChannel(t, svc, "primary")

	resp, err := svc.SubmitOperation(context.Background(), &SubmitOperationRequest{
		OperationID: "op-1",
		Payload:     json.RawMessage(`{"action":"sync"}`),
	})

	require.NoError(t, err)
	assert.Equal(t, "op-1", resp.OperationID)
	assert.Equal(t, "primary", resp.Route)
	assert.Equal(t, "accepted", resp.Status)
	assert.Zero(t, resp.QueueSize)
	assert.Equal(t, 1, primary.sentCount())
}

// Test SubmitOperation - generates an operation id when the request omits one
func TestSubmitOperation_GeneratedID(t *testing.T) {
	svc, _, _ := setupTestService(t)
	connectChannel(t, svc, "primary")

	resp, err := svc.SubmitOperation(context.Background(), &SubmitOperationRequest{
		Payload: json.RawMessage(`{"action":"sync"}`),
	})

	require.NoError(t, err)
	assert.Regexp(t, `^op-`, resp.OperationID)
}

// Test SubmitOperation - empty payload is rejected
func TestSubmitOperation_EmptyPayload(t *testing.T) {
	svc, _, _ := setupTestService(t)

	resp, err := svc.SubmitOperation(context.Background(), &SubmitOperationRequest{OperationID: "op-1"})

	assert.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "PAYLOAD_REQUIRED")
}

// Test SubmitOperation - secondary channel resolves the call synchronously
func TestSubmitOperation_Secondary(t *testing.T) {
	svc, primary, _ := setupTestService(t)
	connectChannel(t, svc, "secondary")

	resp, err := svc.SubmitOperation(context.Background(), &SubmitOperationRequest{
		OperationID: "op-1",
		Payload:     json.RawMessage(`{"action":"sync"}`),
	})

	require.NoError(t, err)
	assert.Equal(t, "secondary", resp.Route)
	assert.Equal(t, "accepted", resp.Status)
	assert.Zero(t, primary.sentCount())
}

// Test SubmitOperation - falls back to the queue when both channels are down
func TestSubmitOperation_QueuedWhenOffline(t *testing.T) {
	svc, primary, _ := setupTestService(t)

	resp, err := svc.SubmitOperation(context.Background(), &SubmitOperationRequest{
		OperationID: "op-1",
		Payload:     json.RawMessage(`{"action":"sync"}`),
	})

	require.NoError(t, err)
	assert.Equal(t, "queued", resp.Route)
	assert.Equal(t, "queued", resp.Status)
	assert.Equal(t, 1, resp.QueueSize)
	assert.Zero(t, primary.sentCount())
}

// Test SubmitOperation - duplicate ids are rejected while the first is pending
func TestSubmitOperation_Duplicate(t *testing.T) {
	svc, _, _ := setupTestService(t)

	req := &SubmitOperationRequest{
		OperationID: "op-dup",
		Payload:     json.RawMessage(`{"action":"sync"}`),
	}
	_, err := svc.SubmitOperation(context.Background(), req)
	require.NoError(t, err)

	resp, err := svc.SubmitOperation(context.Background(), req)

	assert.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "DUPLICATE_OPERATION")
}

// Test GetQueue - previews entries without exposing payloads
func TestGetQueue(t *testing.T) {
	svc, _, _ := setupTestService(t)

	payload := json.RawMessage(`{"action":"sync","rows":128}`)
	for i := 1; i <= 2; i++ {
		_, err := svc.SubmitOperation(context.Background(), &SubmitOperationRequest{
			OperationID: fmt.Sprintf("op-%d", i),
			Payload:     payload,
		})
		require.NoError(t, err)
	}

	resp, err := svc.GetQueue(context.Background(), 0)

	require.NoError(t, err)
	assert.Equal(t, 2, resp.Size)
	assert.False(t, resp.Draining)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "op-1", resp.Entries[0].OperationID)
	assert.Equal(t, "op-2", resp.Entries[1].OperationID)
	assert.Equal(t, string(model.OperationQueued), resp.Entries[0].Status)
	assert.Equal(t, len(payload), resp.Entries[0].PayloadSize)
	assert.False(t, resp.Entries[0].QueuedAt.IsZero())
}

// Test GetQueue - limit bounds the preview, not the reported size
func TestGetQueue_Limit(t *testing.T) {
	svc, _, _ := setupTestService(t)

	for i := 1; i <= 3; i++ {
		_, err := svc.SubmitOperation(context.Background(), &SubmitOperationRequest{
			OperationID: fmt.Sprintf("op-%d", i),
			Payload:     json.RawMessage(`{"action":"sync"}`),
		})
		require.NoError(t, err)
	}

	resp, err := svc.GetQueue(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, 3, resp.Size)
	assert.Len(t, resp.Entries, 1)
}

// Test TriggerDrain - delivers parked operations over the live channel
func TestTriggerDrain(t *testing.T) {
	svc, primary, _ := setupTestService(t)
	connectChannel(t, svc, "primary")
	time.Sleep(50 * time.Millisecond) // let the reconnect drain pass settle

	primary.setSendErr(fmt.Errorf("wire glitch"))
	_, err := svc.SubmitOperation(context.Background(), &SubmitOperationRequest{
		OperationID: "op-1",
		Payload:     json.RawMessage(`{"action":"sync"}`),
	})
	require.NoError(t, err)
	primary.setSendErr(nil)

	resp, err := svc.TriggerDrain(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, resp.Delivered)
	assert.Zero(t, resp.Requeued)
	assert.Zero(t, resp.Exhausted)
	assert.Zero(t, resp.Dropped)
	assert.GreaterOrEqual(t, resp.DurationMs, int64(0))

	queue, err := svc.GetQueue(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, queue.Size)
}

// Test TriggerDrain - requires a live channel
func TestTriggerDrain_NoChannel(t *testing.T) {
	svc, _, _ := setupTestService(t)

	resp, err := svc.TriggerDrain(context.Background())

	assert.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "NOT_CONNECTED")
}

// Test ReconnectChannel - unknown channel name is a bad request
func TestReconnectChannel_UnknownChannel(t *testing.T) {
	svc, _, _ := setupTestService(t)

	resp, err := svc.ReconnectChannel(context.Background(), "tertiary")

	assert.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "UNKNOWN_CHANNEL")
}

// Test ReconnectChannel - dial failures come back in the response body
func TestReconnectChannel_DialFailure(t *testing.T) {
	svc, primary, _ := setupTestService(t)
	primary.setOpenErr(fmt.Errorf("endpoint unreachable"))

	resp, err := svc.ReconnectChannel(context.Background(), "primary")

	require.NoError(t, err)
	assert.Equal(t, "primary", resp.Channel)
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Message, "CONNECTION_FAILED")
}

// Test DisconnectChannel - deliberate close reports disconnected
func TestDisconnectChannel(t *testing.T) {
	svc, _, _ := setupTestService(t)
	connectChannel(t, svc, "primary")

	resp, err := svc.DisconnectChannel(context.Background(), "primary")

	require.NoError(t, err)
	assert.Equal(t, "primary", resp.Channel)
	assert.Equal(t, "disconnected", resp.Status)

	status, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.AggregateDisconnected, status.Aggregate)
}

// Test DisconnectChannel - unknown channel name is a bad request
func TestDisconnectChannel_UnknownChannel(t *testing.T) {
	svc, _, _ := setupTestService(t)

	resp, err := svc.DisconnectChannel(context.Background(), "backchannel")

	assert.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "UNKNOWN_CHANNEL")
}

// Test GetStatus - reflects channel state, breaker and queue counters
func TestGetStatus(t *testing.T) {
	svc, _, _ := setupTestService(t)

	status, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.AggregateDisconnected, status.Aggregate)
	assert.Equal(t, model.StatusDisconnected, status.Primary.Status)
	assert.Equal(t, model.StatusDisconnected, status.Secondary.Status)
	assert.Equal(t, "closed", status.Breaker.StateName)
	assert.Zero(t, status.QueueSize)
	assert.False(t, status.Draining)

	connectChannel(t, svc, "primary")

	status, err = svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.AggregateConnected, status.Aggregate)
	assert.Equal(t, model.StatusConnected, status.Primary.Status)
}

// Test GetStatus - secondary alone carries traffic as partial
func TestGetStatus_Partial(t *testing.T) {
	svc, _, _ := setupTestService(t)
	connectChannel(t, svc, "secondary")

	status, err := svc.GetStatus(context.Background())

	require.NoError(t, err)
	assert.Equal(t, model.AggregatePartial, status.Aggregate)
}

// Test ResetBreaker - reports the closed state
func TestResetBreaker(t *testing.T) {
	svc, _, _ := setupTestService(t)

	resp, err := svc.ResetBreaker(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "closed", resp.State)
}

// Test GetHealth - backends without clients report disabled
func TestGetHealth_NoBackends(t *testing.T) {
	svc, _, _ := setupTestService(t)

	resp, err := svc.GetHealth(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "disabled", resp.Backends["redis"])
	assert.Equal(t, "disabled", resp.Backends["mysql"])
}

// Test GetHealth - unreachable redis degrades the report
func TestGetHealth_Degraded(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	svc, _, _ := newTestService(t, rdb)
	mr.Close()

	resp, err := svc.GetHealth(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "unreachable", resp.Backends["redis"])
	assert.Equal(t, "disabled", resp.Backends["mysql"])
}
