package biz

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"RelayLane/internal/model"
	pkglog "RelayLane/pkg/log"
)

// Transport is the session port a ConnectionManager drives. Implementations
// live in the data layer (websocket for the primary channel, HTTP for the
// secondary). Open must not invoke onClose for sessions that never opened;
// Close must be safe to call at any time, including twice.
type Transport interface {
	// Open establishes a session. onEvent delivers inbound response and
	// progress frames; onClose fires once when an opened session ends, with
	// the cause (nil for a clean local close). Open returns once the session
	// is usable.
	Open(ctx context.Context, onEvent func(ev *model.InboundEvent), onClose func(err error)) error
	// Send delivers one envelope over the open session.
	Send(ctx context.Context, env *model.Envelope) error
	// Ping sends a liveness probe and blocks until it is acknowledged or the
	// context expires.
	Ping(ctx context.Context) error
	// Close tears the session down.
	Close() error
}

// ChannelOptions carries the tuning knobs for one channel's lifecycle.
type ChannelOptions struct {
	HandshakeTimeout     time.Duration
	CallTimeout          time.Duration
	HeartbeatInterval    time.Duration
	HeartbeatTimeout     time.Duration
	MaxReconnectAttempts int32
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
}

// normalized fills zero values so a sparsely built options struct cannot
// produce a zero-interval ticker or a zero backoff.
func (o ChannelOptions) normalized() ChannelOptions {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 15 * time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = 3 * o.HeartbeatInterval
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = 5
	}
	if o.ReconnectBaseDelay <= 0 {
		o.ReconnectBaseDelay = time.Second
	}
	if o.ReconnectMaxDelay <= 0 {
		o.ReconnectMaxDelay = 60 * time.Second
	}
	return o
}

// StatusChange is delivered to listeners on every channel state transition.
// Listeners may see the same status twice in a row and must stay idempotent.
type StatusChange struct {
	Channel  model.ChannelName
	Status   model.ChannelStatus
	Message  string
	Attempts int32
	Err      error
	At       time.Time
}

// StatusListener observes channel state transitions. Callbacks run on the
// goroutine that performed the transition; long work belongs elsewhere.
type StatusListener func(change StatusChange)

var errHeartbeatTimeout = errors.New("heartbeat timeout: no probe acknowledged within window")

// ConnectionManager owns the lifecycle of a single channel: dialing,
// heartbeat supervision, exponential-backoff reconnects and the terminal
// failed state. All transitions are serialized by one mutex so events for a
// channel are observed in arrival order.
type ConnectionManager struct {
	channel   model.ChannelName
	transport Transport
	opts      ChannelOptions
	onEvent   func(ev *model.InboundEvent)
	helper    *pkglog.LogHelper

	mu                sync.Mutex
	status            model.ChannelStatus
	reconnectAttempts int32
	lastError         error
	lastHeartbeatAt   time.Time
	connectedAt       time.Time
	// generation invalidates callbacks from superseded sessions: a bump makes
	// pending reconnect timers, heartbeat loops and late OnClose calls no-ops.
	generation     uint64
	reconnectTimer *time.Timer
	heartbeatStop  chan struct{}
	listeners      []StatusListener
}

// NewConnectionManager creates a manager for one channel. onEvent receives
// inbound frames from the transport and may be nil for channels that never
// push events.
func NewConnectionManager(channel model.ChannelName, transport Transport, opts ChannelOptions, onEvent func(ev *model.InboundEvent), logger log.Logger) *ConnectionManager {
	return &ConnectionManager{
		channel:   channel,
		transport: transport,
		opts:      opts.normalized(),
		onEvent:   onEvent,
		helper:    pkglog.NewLogHelper(logger),
		status:    model.StatusDisconnected,
	}
}

// Channel returns the channel this manager owns.
func (m *ConnectionManager) Channel() model.ChannelName {
	return m.channel
}

// OnStatusChange registers a listener for state transitions.
func (m *ConnectionManager) OnStatusChange(fn StatusListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Status returns the current lifecycle state.
func (m *ConnectionManager) Status() model.ChannelStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Snapshot returns a point-in-time copy of the channel state.
func (m *ConnectionManager) Snapshot() model.ChannelSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := model.ChannelSnapshot{
		Channel:           m.channel,
		Status:            m.status,
		ReconnectAttempts: m.reconnectAttempts,
		LastHeartbeatAt:   m.lastHeartbeatAt,
		ConnectedAt:       m.connectedAt,
	}
	if m.lastError != nil {
		snap.LastError = m.lastError.Error()
	}
	return snap
}

// Connect establishes the channel. It returns once the session is open or
// with a connection error after the first dial fails; a failed dial still
// schedules background reconnects, so callers may treat the error as
// informational. Connecting from the terminal failed state is the explicit
// external reset: it grants exactly one fresh dial.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.status {
	case model.StatusConnected, model.StatusConnecting:
		m.mu.Unlock()
		return nil
	case model.StatusReconnecting:
		// explicit connect overrides the pending backoff timer
		m.stopReconnectTimerLocked()
	}
	m.generation++
	gen := m.generation
	change := m.transitionLocked(model.StatusConnecting, "establishing connection", nil)
	m.mu.Unlock()
	m.notify(change)

	return m.dial(ctx, gen)
}

// Disconnect closes the channel deliberately: the session is torn down, any
// pending reconnect timer is cleared and no automatic reconnect follows.
func (m *ConnectionManager) Disconnect() error {
	m.mu.Lock()
	m.generation++
	m.stopReconnectTimerLocked()
	m.stopHeartbeatLocked()
	alreadyDown := m.status == model.StatusDisconnected
	var change StatusChange
	if !alreadyDown {
		change = m.transitionLocked(model.StatusDisconnected, "deliberate disconnect", nil)
	}
	m.mu.Unlock()

	err := m.transport.Close()
	if !alreadyDown {
		m.notify(change)
	}
	return err
}

// Send delivers one envelope over the live session. It fails immediately
// when the channel is not connected; a failed write on a live session is
// returned to the caller and the session's own close event drives recovery.
func (m *ConnectionManager) Send(ctx context.Context, env *model.Envelope) error {
	m.mu.Lock()
	if m.status != model.StatusConnected {
		m.mu.Unlock()
		return ErrNotConnected(m.channel)
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.opts.CallTimeout)
	defer cancel()
	return m.transport.Send(ctx, env)
}

// dial opens one session under the given generation. The first dial runs on
// the caller's goroutine; reconnect dials arrive here from timer callbacks.
func (m *ConnectionManager) dial(ctx context.Context, gen uint64) error {
	dialCtx, cancel := context.WithTimeout(ctx, m.opts.HandshakeTimeout)
	defer cancel()

	err := m.transport.Open(dialCtx, m.dispatchEvent,
		func(cause error) { m.handleConnectionLoss(gen, cause) })
	if err != nil {
		m.failDial(gen, err)
		return ErrConnectionFailed(m.channel, err)
	}

	m.mu.Lock()
	if m.generation != gen {
		// a concurrent Disconnect or session loss superseded this dial
		m.mu.Unlock()
		_ = m.transport.Close()
		return ErrConnectionFailed(m.channel, errors.New("session superseded"))
	}
	now := time.Now()
	m.reconnectAttempts = 0
	m.lastError = nil
	m.connectedAt = now
	m.lastHeartbeatAt = now
	stop := make(chan struct{})
	m.heartbeatStop = stop
	change := m.transitionLocked(model.StatusConnected, "connection established", nil)
	m.mu.Unlock()
	m.notify(change)

	go m.heartbeatLoop(gen, stop)
	return nil
}

// failDial records a dial failure and schedules the next attempt, or parks
// the channel in the terminal failed state once the budget is spent.
func (m *ConnectionManager) failDial(gen uint64, cause error) {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return
	}
	m.lastError = cause
	change := m.scheduleRetryLocked(cause)
	m.mu.Unlock()
	m.notify(change)
}

// handleConnectionLoss reacts to an unexpected session end: heartbeat
// timeout, peer close or read error. Deliberate disconnects never reach it
// because Disconnect bumps the generation first. A loss arriving while the
// dial is still settling (status connecting) wins over the pending connected
// transition, which then observes the stale generation and backs out.
func (m *ConnectionManager) handleConnectionLoss(gen uint64, cause error) {
	m.mu.Lock()
	if m.generation != gen ||
		(m.status != model.StatusConnected && m.status != model.StatusConnecting) {
		m.mu.Unlock()
		return
	}
	m.stopHeartbeatLocked()
	m.lastError = cause
	change := m.scheduleRetryLocked(cause)
	m.mu.Unlock()

	_ = m.transport.Close()
	m.notify(change)
}

// scheduleRetryLocked advances the reconnect state machine. Caller holds mu.
func (m *ConnectionManager) scheduleRetryLocked(cause error) StatusChange {
	m.generation++
	gen := m.generation

	if m.reconnectAttempts >= m.opts.MaxReconnectAttempts {
		terminal := ErrMaxReconnectExceeded(m.channel, m.reconnectAttempts)
		return m.transitionLocked(model.StatusFailed,
			fmt.Sprintf("gave up after %d reconnect attempts", m.reconnectAttempts), terminal)
	}

	m.reconnectAttempts++
	attempt := m.reconnectAttempts
	delay := m.backoffDelay(attempt)
	m.reconnectTimer = time.AfterFunc(delay, func() { m.redial(gen) })
	return m.transitionLocked(model.StatusReconnecting,
		fmt.Sprintf("reconnect attempt %d/%d in %s", attempt, m.opts.MaxReconnectAttempts, delay.Round(time.Millisecond)), cause)
}

// redial runs when a backoff timer fires.
func (m *ConnectionManager) redial(gen uint64) {
	m.mu.Lock()
	if m.generation != gen || m.status != model.StatusReconnecting {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	change := m.transitionLocked(model.StatusConnecting,
		fmt.Sprintf("reconnect attempt %d/%d", m.reconnectAttempts, m.opts.MaxReconnectAttempts), nil)
	m.mu.Unlock()
	m.notify(change)

	if err := m.dial(context.Background(), gen); err != nil {
		m.helper.Channel("reconnect dial failed",
			"channel", string(m.channel),
			"attempt", m.reconnectAttempts,
			"error", err)
	}
}

// backoffDelay computes min(base * 2^(attempt-1) + jitter, cap) with up to
// 10% additive jitter so parallel bridge instances do not retry in lockstep.
func (m *ConnectionManager) backoffDelay(attempt int32) time.Duration {
	delay := m.opts.ReconnectBaseDelay
	for i := int32(1); i < attempt; i++ {
		delay *= 2
		if delay >= m.opts.ReconnectMaxDelay {
			return m.opts.ReconnectMaxDelay
		}
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1)) // #nosec G404 -- retry spread, not security
	if delay > m.opts.ReconnectMaxDelay-jitter {
		return m.opts.ReconnectMaxDelay
	}
	return delay + jitter
}

// heartbeatLoop probes the session every interval and treats a stale
// acknowledgment window as an implicit disconnect. One loop runs per session
// and exits when its stop channel closes.
func (m *ConnectionManager) heartbeatLoop(gen uint64, stop chan struct{}) {
	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		if m.generation != gen {
			m.mu.Unlock()
			return
		}
		stale := time.Since(m.lastHeartbeatAt) > m.opts.HeartbeatTimeout
		m.mu.Unlock()

		if stale {
			m.helper.Heartbeat("acknowledgment window expired",
				"channel", string(m.channel),
				"timeout", m.opts.HeartbeatTimeout.String())
			m.handleConnectionLoss(gen, errHeartbeatTimeout)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.opts.HeartbeatInterval)
		err := m.transport.Ping(ctx)
		cancel()

		m.mu.Lock()
		if m.generation == gen && err == nil {
			m.lastHeartbeatAt = time.Now()
		}
		m.mu.Unlock()

		if err != nil {
			m.helper.Heartbeat("probe missed",
				"channel", string(m.channel),
				"error", err)
		} else {
			m.helper.Heartbeat("probe acknowledged", "channel", string(m.channel))
		}
	}
}

// dispatchEvent forwards an inbound frame to the registered handler.
func (m *ConnectionManager) dispatchEvent(ev *model.InboundEvent) {
	if m.onEvent == nil {
		m.helper.Debugw("msg", "inbound frame dropped: no event handler", "id", ev.ID)
		return
	}
	m.onEvent(ev)
}

// transitionLocked mutates status and builds the listener notification.
// Caller holds mu and is responsible for calling notify after unlocking.
func (m *ConnectionManager) transitionLocked(status model.ChannelStatus, msg string, err error) StatusChange {
	m.status = status
	return StatusChange{
		Channel:  m.channel,
		Status:   status,
		Message:  msg,
		Attempts: m.reconnectAttempts,
		Err:      err,
		At:       time.Now(),
	}
}

// notify fans a transition out to listeners without holding the state lock.
func (m *ConnectionManager) notify(change StatusChange) {
	m.mu.Lock()
	listeners := make([]StatusListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	kvs := []interface{}{
		"channel", string(change.Channel),
		"status", string(change.Status),
		"attempts", change.Attempts,
	}
	if change.Err != nil {
		kvs = append(kvs, "error", change.Err.Error())
	}
	m.helper.Channel(change.Message, kvs...)

	for _, fn := range listeners {
		fn(change)
	}
}

// stopReconnectTimerLocked cancels a pending backoff timer. Caller holds mu.
func (m *ConnectionManager) stopReconnectTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// stopHeartbeatLocked ends the session's heartbeat loop. Caller holds mu.
func (m *ConnectionManager) stopHeartbeatLocked() {
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
}
