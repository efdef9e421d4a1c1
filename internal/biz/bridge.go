package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"RelayLane/internal/model"
	pkglog "RelayLane/pkg/log"
)

// CallTransport is a Transport whose sessions also support synchronous
// call-and-response invocation. The secondary channel uses it: one request
// in, one terminal event out.
type CallTransport interface {
	Transport
	// Call delivers the envelope and blocks for its single response event.
	Call(ctx context.Context, env *model.Envelope) (*model.InboundEvent, error)
}

// BridgeOptions aggregates the tuning knobs for the whole bridge.
type BridgeOptions struct {
	Primary   ChannelOptions
	Secondary ChannelOptions
	Breaker   BreakerOptions
	Queue     QueueOptions
}

// SubmitReceipt tells the caller which path accepted an operation. A queued
// route is acceptance for later delivery, explicitly distinct from success.
type SubmitReceipt struct {
	OperationID string      `json:"operation_id"`
	Route       model.Route `json:"route"`
	QueueSize   int         `json:"queue_size,omitempty"`
}

// BridgeStatus is the aggregate health view external callers consume instead
// of the raw per-channel states.
type BridgeStatus struct {
	Aggregate  model.AggregateStatus `json:"aggregate"`
	Primary    model.ChannelSnapshot `json:"primary"`
	Secondary  model.ChannelSnapshot `json:"secondary"`
	Breaker    BreakerStats          `json:"breaker"`
	Correlator CorrelatorStats       `json:"correlator"`
	QueueSize  int                   `json:"queue_size"`
	Draining   bool                  `json:"draining"`
}

// AggregateChange is delivered to bridge-level listeners whenever a channel
// transition may have moved the overall status. Listeners can see the same
// aggregate repeatedly and must stay idempotent.
type AggregateChange struct {
	Aggregate model.AggregateStatus
	Message   string
	Cause     StatusChange
	At        time.Time
}

// AggregateListener observes the bridge's overall status, which is what
// external consumers watch instead of the raw per-channel states.
type AggregateListener func(change AggregateChange)

// channelTrack remembers what the bridge last saw of a channel, for
// recovery notifications and for abandoning in-flight requests on loss.
type channelTrack struct {
	prev      model.ChannelStatus
	downSince time.Time
}

// BridgeUseCase is the orchestrator and single entry point for submitting
// operations. It owns both connection managers, the breaker guarding the
// secondary channel, the offline queue and the correlator, and routes every
// submission primary-first, then secondary behind the breaker, then queue.
type BridgeUseCase struct {
	opts       *BridgeOptions
	primary    *ConnectionManager
	secondary  *ConnectionManager
	secondaryT CallTransport
	breaker    *CircuitBreaker
	queue      *OfflineQueue
	correlator *Correlator
	notifier   StatusNotifier
	auditor    DeliveryAuditor
	helper     *pkglog.LogHelper

	mu           sync.Mutex
	tracks       map[model.ChannelName]*channelTrack
	waiters      map[string]*queuedWaiter
	aggListeners []AggregateListener
}

// queuedWaiter parks continuations for an operation sitting in the offline
// queue until a drain cycle dispatches it.
type queuedWaiter struct {
	respCbs []ResponseCallback
	progCbs []ProgressCallback
}

// NewBridgeUseCase wires the orchestrator. The connection managers are built
// here because their inbound-event path terminates in the bridge's correlator.
func NewBridgeUseCase(
	primary Transport,
	secondary CallTransport,
	queue *OfflineQueue,
	correlator *Correlator,
	notifier StatusNotifier,
	auditor DeliveryAuditor,
	opts *BridgeOptions,
	logger log.Logger,
) *BridgeUseCase {
	uc := &BridgeUseCase{
		opts:       opts,
		secondaryT: secondary,
		queue:      queue,
		correlator: correlator,
		notifier:   notifier,
		auditor:    auditor,
		helper:     pkglog.NewLogHelper(logger),
		tracks: map[model.ChannelName]*channelTrack{
			model.ChannelPrimary:   {prev: model.StatusDisconnected},
			model.ChannelSecondary: {prev: model.StatusDisconnected},
		},
		waiters: make(map[string]*queuedWaiter),
	}

	uc.primary = NewConnectionManager(model.ChannelPrimary, primary, opts.Primary, correlator.HandleEvent, logger)
	uc.secondary = NewConnectionManager(model.ChannelSecondary, secondary, opts.Secondary, correlator.HandleEvent, logger)
	uc.breaker = NewCircuitBreaker(model.ChannelSecondary, opts.Breaker, logger)

	uc.primary.OnStatusChange(uc.onChannelChange)
	uc.secondary.OnStatusChange(uc.onChannelChange)
	uc.breaker.OnStateChange(uc.onBreakerChange)
	uc.queue.OnEvicted(uc.onQueueEvicted)
	uc.queue.OnExhausted(uc.onQueueExhausted)
	uc.queue.OnCorrupted(uc.onQueueCorrupted)

	return uc
}

// Start brings both channels up and replays anything the queue carried over
// from a previous run. A channel that cannot connect right away keeps
// retrying in the background; startup itself never fails on connectivity.
func (uc *BridgeUseCase) Start(ctx context.Context) error {
	uc.helper.Startup("bridge starting",
		"queue_capacity", uc.opts.Queue.Capacity,
		"max_reconnect_attempts", uc.opts.Primary.MaxReconnectAttempts)

	if err := uc.primary.Connect(ctx); err != nil {
		uc.helper.Channel("primary channel not yet available", "error", err)
	}
	if err := uc.secondary.Connect(ctx); err != nil {
		uc.helper.Channel("secondary channel not yet available", "error", err)
	}
	return nil
}

// Stop closes both channels deliberately. In-flight requests are abandoned
// as indeterminate through the normal channel-loss path.
func (uc *BridgeUseCase) Stop(ctx context.Context) error {
	uc.helper.Startup("bridge stopping")
	if err := uc.primary.Disconnect(); err != nil {
		uc.helper.Channel("primary close reported error", "error", err)
	}
	if err := uc.secondary.Disconnect(); err != nil {
		uc.helper.Channel("secondary close reported error", "error", err)
	}
	return nil
}

// Submit routes one operation. Policy, in order: the live primary channel;
// the secondary channel guarded by the breaker; the offline queue. The
// receipt says which path accepted it; results arrive through the callbacks.
func (uc *BridgeUseCase) Submit(ctx context.Context, id string, payload json.RawMessage, onResponse ResponseCallback, onProgress ProgressCallback) (*SubmitReceipt, error) {
	if id == "" {
		id = uc.correlator.GenerateOperationID()
	}
	if uc.correlator.IsPending(id) || uc.hasWaiter(id) {
		return nil, ErrDuplicateOperation(id)
	}

	// 1. primary channel, when live
	if uc.primary.Status() == model.StatusConnected {
		err := uc.dispatchPrimary(ctx, id, payload, onResponse, onProgress)
		if err == nil {
			return &SubmitReceipt{OperationID: id, Route: model.RoutePrimary}, nil
		}
		if IsDuplicateOperation(err) {
			return nil, err
		}
		uc.helper.Dispatch("primary dispatch failed, trying secondary",
			"operation_id", id, "error", err)
	}

	// 2. secondary channel behind the breaker
	if uc.secondary.Status() == model.StatusConnected {
		err := uc.dispatchSecondary(ctx, id, payload, onResponse, onProgress)
		if err == nil {
			return &SubmitReceipt{OperationID: id, Route: model.RouteSecondary}, nil
		}
		if IsDuplicateOperation(err) {
			return nil, err
		}
		if IsCircuitOpen(err) {
			uc.helper.Dispatch("secondary skipped, circuit open", "operation_id", id)
		} else {
			uc.helper.Dispatch("secondary dispatch failed, queueing",
				"operation_id", id, "error", err)
		}
	}

	// 3. accept for later delivery
	return uc.enqueue(ctx, id, payload, onResponse, onProgress)
}

// dispatchPrimary tracks the request and sends its envelope on the primary
// channel. A failed write discards the tracking entry: the envelope never
// left, so there is no outcome to correlate.
func (uc *BridgeUseCase) dispatchPrimary(ctx context.Context, id string, payload json.RawMessage, onResponse ResponseCallback, onProgress ProgressCallback) error {
	if err := uc.correlator.Track(id, payload, model.ChannelPrimary, onResponse, onProgress); err != nil {
		return err
	}
	env := model.NewEnvelope(id, payload)
	if err := uc.primary.Send(ctx, env); err != nil {
		uc.correlator.discard(id)
		return err
	}
	uc.helper.Dispatch("operation dispatched",
		"operation_id", id,
		"channel", string(model.ChannelPrimary))
	return nil
}

// dispatchSecondary runs a call-and-response invocation through the breaker.
// The response event resolves the tracked request before this returns.
func (uc *BridgeUseCase) dispatchSecondary(ctx context.Context, id string, payload json.RawMessage, onResponse ResponseCallback, onProgress ProgressCallback) error {
	if err := uc.correlator.Track(id, payload, model.ChannelSecondary, onResponse, onProgress); err != nil {
		return err
	}
	env := model.NewEnvelope(id, payload)

	err := uc.breaker.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, uc.opts.Secondary.CallTimeout)
		defer cancel()
		ev, callErr := uc.secondaryT.Call(callCtx, env)
		if callErr != nil {
			return callErr
		}
		if ev.ID == "" {
			ev.ID = id
		}
		uc.correlator.HandleEvent(ev)
		return nil
	})
	if err != nil {
		uc.correlator.discard(id)
		return err
	}
	uc.helper.Dispatch("operation dispatched",
		"operation_id", id,
		"channel", string(model.ChannelSecondary))
	return nil
}

// enqueue accepts an operation for later delivery and parks its callbacks
// until a drain cycle dispatches it.
func (uc *BridgeUseCase) enqueue(ctx context.Context, id string, payload json.RawMessage, onResponse ResponseCallback, onProgress ProgressCallback) (*SubmitReceipt, error) {
	op := model.NewQueuedOperation(id, payload)
	uc.parkWaiter(id, onResponse, onProgress)
	if _, err := uc.queue.Enqueue(ctx, op); err != nil {
		uc.dropWaiter(id)
		return nil, fmt.Errorf("enqueue operation %s: %w", id, err)
	}
	size, err := uc.queue.Size(ctx)
	if err != nil {
		size = -1
	}
	return &SubmitReceipt{OperationID: id, Route: model.RouteQueued, QueueSize: size}, nil
}

// aggregate derives the overall status: connected whenever the primary
// channel is live, partial when only the secondary carries traffic,
// disconnected when neither does.
func aggregate(primary, secondary model.ChannelStatus) model.AggregateStatus {
	switch {
	case primary == model.StatusConnected:
		return model.AggregateConnected
	case secondary == model.StatusConnected:
		return model.AggregatePartial
	default:
		return model.AggregateDisconnected
	}
}

// Status returns the full bridge snapshot under the aggregate view.
func (uc *BridgeUseCase) Status(ctx context.Context) *BridgeStatus {
	primary := uc.primary.Snapshot()
	secondary := uc.secondary.Snapshot()

	size, err := uc.queue.Size(ctx)
	if err != nil {
		uc.helper.Queue("queue size unavailable", "error", err)
		size = -1
	}

	return &BridgeStatus{
		Aggregate:  aggregate(primary.Status, secondary.Status),
		Primary:    primary,
		Secondary:  secondary,
		Breaker:    uc.breaker.Stats(),
		Correlator: uc.correlator.Stats(),
		QueueSize:  size,
		Draining:   uc.queue.Draining(),
	}
}

// OnStatusChange registers a listener for the bridge's aggregate status. It
// fires on every underlying channel transition with the aggregate derived at
// that moment.
func (uc *BridgeUseCase) OnStatusChange(fn AggregateListener) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.aggListeners = append(uc.aggListeners, fn)
}

// OnResponse attaches a terminal-outcome listener: to the in-flight request,
// to the parked waiter of a queued operation, or to the completed cache.
func (uc *BridgeUseCase) OnResponse(id string, cb ResponseCallback) {
	if uc.attachToWaiter(id, cb, nil) {
		return
	}
	uc.correlator.OnResponse(id, cb)
}

// OnProgress attaches a progress listener the same way.
func (uc *BridgeUseCase) OnProgress(id string, cb ProgressCallback) {
	if uc.attachToWaiter(id, nil, cb) {
		return
	}
	uc.correlator.OnProgress(id, cb)
}

// Abandon gives up on an in-flight request from the caller side. The bridge
// sets no request timeouts itself; latency policy belongs to the caller.
func (uc *BridgeUseCase) Abandon(id string) bool {
	return uc.correlator.Abandon(id)
}

// TriggerDrain starts a replay cycle on demand, preferring the primary
// channel. It fails when no channel is live or a cycle is already running.
func (uc *BridgeUseCase) TriggerDrain(ctx context.Context) (DrainStats, error) {
	preferred, ok := uc.liveChannel()
	if !ok {
		return DrainStats{}, ErrNotConnected(model.ChannelPrimary)
	}
	stats, err := uc.drain(ctx, preferred)
	if err != nil {
		return stats, err
	}
	if !stats.Ran {
		return stats, ErrDrainInProgress()
	}
	return stats, nil
}

// ReconnectChannel is the explicit external trigger that revives a channel,
// including one parked in the terminal failed state.
func (uc *BridgeUseCase) ReconnectChannel(ctx context.Context, channel model.ChannelName) error {
	mgr, err := uc.manager(channel)
	if err != nil {
		return err
	}
	return mgr.Connect(ctx)
}

// DisconnectChannel closes a channel deliberately; no reconnect follows.
func (uc *BridgeUseCase) DisconnectChannel(channel model.ChannelName) error {
	mgr, err := uc.manager(channel)
	if err != nil {
		return err
	}
	return mgr.Disconnect()
}

// ResetBreaker manually closes the circuit with clean counters.
func (uc *BridgeUseCase) ResetBreaker() {
	uc.breaker.Reset()
	uc.helper.Breaker("circuit manually reset", "channel", string(model.ChannelSecondary))
}

// QueueSnapshot lists queued operations for inspection.
func (uc *BridgeUseCase) QueueSnapshot(ctx context.Context, limit int) ([]*model.QueuedOperation, error) {
	return uc.queue.Pending(ctx, limit)
}

// onChannelChange reacts to channel transitions: loss abandons the channel's
// in-flight requests, recovery triggers a drain and a notification, terminal
// failure notifies outward.
func (uc *BridgeUseCase) onChannelChange(change StatusChange) {
	uc.mu.Lock()
	track := uc.tracks[change.Channel]
	prev := track.prev
	track.prev = change.Status
	wasConnected := prev == model.StatusConnected
	nowConnected := change.Status == model.StatusConnected
	if wasConnected && !nowConnected {
		track.downSince = change.At
	}
	var downtime time.Duration
	if nowConnected && !track.downSince.IsZero() {
		downtime = change.At.Sub(track.downSince)
		track.downSince = time.Time{}
	}
	uc.mu.Unlock()

	if wasConnected && !nowConnected {
		ids := uc.correlator.AbandonChannel(change.Channel)
		for _, id := range ids {
			if uc.auditor != nil {
				uc.auditor.LogIndeterminate(context.Background(), id, change.Channel)
			}
		}
	}

	if nowConnected && !wasConnected {
		if downtime > 0 && uc.notifier != nil {
			event := &model.ChannelRecoveredEvent{
				Channel:     change.Channel,
				Attempts:    change.Attempts,
				Downtime:    downtime,
				RecoveredAt: change.At,
			}
			go uc.notifyRecovered(event)
		}
		// replay whatever accumulated while this channel was away
		go func(preferred model.ChannelName) {
			if _, err := uc.drain(context.Background(), preferred); err != nil {
				uc.helper.Replay("drain after recovery failed", "error", err)
			}
		}(uc.preferredChannel(change.Channel))
	}

	if change.Status == model.StatusFailed && uc.notifier != nil {
		event := &model.ChannelDownEvent{
			Channel:  change.Channel,
			Attempts: change.Attempts,
			FailedAt: change.At,
		}
		if change.Err != nil {
			event.LastError = change.Err.Error()
		}
		go uc.notifyDown(event)
	}

	uc.notifyAggregate(change)
}

// notifyAggregate fans the overall status out to bridge-level listeners.
func (uc *BridgeUseCase) notifyAggregate(cause StatusChange) {
	uc.mu.Lock()
	listeners := make([]AggregateListener, len(uc.aggListeners))
	copy(listeners, uc.aggListeners)
	uc.mu.Unlock()
	if len(listeners) == 0 {
		return
	}

	agg := aggregate(uc.primary.Status(), uc.secondary.Status())
	change := AggregateChange{
		Aggregate: agg,
		Message:   fmt.Sprintf("%s channel %s", cause.Channel, cause.Status),
		Cause:     cause,
		At:        cause.At,
	}
	for _, fn := range listeners {
		fn(change)
	}
}

// onBreakerChange publishes breaker trips outward. It runs under the
// breaker's lock, so all real work leaves on a goroutine.
func (uc *BridgeUseCase) onBreakerChange(from, to BreakerState, stats BreakerStats) {
	if to != BreakerOpen || uc.notifier == nil {
		return
	}
	event := &model.BreakerOpenedEvent{
		Channel:             model.ChannelSecondary,
		ConsecutiveFailures: stats.ConsecutiveFailures,
		OpenedAt:            time.Now(),
	}
	go uc.notifyBreakerOpened(event)
}

// onQueueEvicted settles an evicted operation: parked waiters learn it was
// dropped for capacity, late listeners find the outcome in the cache.
func (uc *BridgeUseCase) onQueueEvicted(op *model.QueuedOperation) {
	outcome := ErrQueueEvicted(op.ID)
	uc.correlator.SettleExternal(op.ID, nil, outcome)
	if w := uc.takeWaiter(op.ID); w != nil {
		for _, cb := range w.respCbs {
			cb(nil, outcome)
		}
	}
}

// onQueueExhausted settles an operation dropped after its last failed replay.
func (uc *BridgeUseCase) onQueueExhausted(op *model.QueuedOperation) {
	outcome := ErrReplayExhausted(op.ID, op.Attempts)
	uc.correlator.SettleExternal(op.ID, nil, outcome)
	if w := uc.takeWaiter(op.ID); w != nil {
		for _, cb := range w.respCbs {
			cb(nil, outcome)
		}
	}
}

// onQueueCorrupted settles an operation whose stored record rotted in the
// queue. A record that lost its identity has no waiter to settle.
func (uc *BridgeUseCase) onQueueCorrupted(id string, cause error) {
	if id == "" {
		return
	}
	outcome := ErrQueueCorrupted(id, cause)
	uc.correlator.SettleExternal(id, nil, outcome)
	if w := uc.takeWaiter(id); w != nil {
		for _, cb := range w.respCbs {
			cb(nil, outcome)
		}
	}
}

// drain runs one queue replay cycle, routing each operation per the normal
// policy at the moment it is sent. The preferred channel only names the
// recovery that triggered the cycle for reporting.
func (uc *BridgeUseCase) drain(ctx context.Context, preferred model.ChannelName) (DrainStats, error) {
	stats, err := uc.queue.Drain(ctx, uc.replayOperation)
	if err != nil {
		return stats, err
	}
	if stats.Ran && (stats.Delivered+stats.Requeued+stats.Exhausted+stats.Dropped) > 0 {
		uc.helper.DrainReport(string(preferred),
			stats.Delivered, stats.Requeued, stats.Exhausted,
			stats.Duration.Milliseconds(),
			"dropped", stats.Dropped)
	}
	return stats, nil
}

// replayOperation re-dispatches one queued operation under its original id,
// attaching any callbacks that were parked while it waited.
func (uc *BridgeUseCase) replayOperation(ctx context.Context, op *model.QueuedOperation) error {
	waiter := uc.takeWaiter(op.ID)
	var onResponse ResponseCallback
	var onProgress ProgressCallback
	if waiter != nil {
		if len(waiter.respCbs) > 0 {
			onResponse = waiter.respCbs[0]
		}
		if len(waiter.progCbs) > 0 {
			onProgress = waiter.progCbs[0]
		}
	}

	var err error
	switch {
	case uc.primary.Status() == model.StatusConnected:
		err = uc.dispatchPrimary(ctx, op.ID, op.Payload, onResponse, onProgress)
	case uc.secondary.Status() == model.StatusConnected:
		err = uc.dispatchSecondary(ctx, op.ID, op.Payload, onResponse, onProgress)
	default:
		err = ErrNotConnected(model.ChannelPrimary)
	}

	if err != nil {
		// delivery failed: the operation stays queued, so its waiters go back
		if waiter != nil {
			uc.restoreWaiter(op.ID, waiter)
		}
		return err
	}

	if waiter != nil {
		// extra parked callbacks beyond the first attach to the live request
		for i, cb := range waiter.respCbs {
			if i > 0 {
				uc.correlator.OnResponse(op.ID, cb)
			}
		}
		for i, cb := range waiter.progCbs {
			if i > 0 {
				uc.correlator.OnProgress(op.ID, cb)
			}
		}
	}
	return nil
}

// liveChannel reports a channel able to carry a drain right now.
func (uc *BridgeUseCase) liveChannel() (model.ChannelName, bool) {
	if uc.primary.Status() == model.StatusConnected {
		return model.ChannelPrimary, true
	}
	if uc.secondary.Status() == model.StatusConnected {
		return model.ChannelSecondary, true
	}
	return "", false
}

// preferredChannel picks the drain channel, preferring the primary when both
// are live.
func (uc *BridgeUseCase) preferredChannel(justRecovered model.ChannelName) model.ChannelName {
	if uc.primary.Status() == model.StatusConnected {
		return model.ChannelPrimary
	}
	return justRecovered
}

func (uc *BridgeUseCase) manager(channel model.ChannelName) (*ConnectionManager, error) {
	switch channel {
	case model.ChannelPrimary:
		return uc.primary, nil
	case model.ChannelSecondary:
		return uc.secondary, nil
	default:
		return nil, fmt.Errorf("unknown channel %q", channel)
	}
}

func (uc *BridgeUseCase) notifyRecovered(event *model.ChannelRecoveredEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := uc.notifier.NotifyChannelRecovered(ctx, event); err != nil {
		uc.helper.Warnw("msg", "recovery notification failed", "error", err)
	}
}

func (uc *BridgeUseCase) notifyDown(event *model.ChannelDownEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := uc.notifier.NotifyChannelDown(ctx, event); err != nil {
		uc.helper.Warnw("msg", "channel-down notification failed", "error", err)
	}
}

func (uc *BridgeUseCase) notifyBreakerOpened(event *model.BreakerOpenedEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := uc.notifier.NotifyBreakerOpened(ctx, event); err != nil {
		uc.helper.Warnw("msg", "breaker notification failed", "error", err)
	}
}

func (uc *BridgeUseCase) parkWaiter(id string, onResponse ResponseCallback, onProgress ProgressCallback) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	w := &queuedWaiter{}
	if onResponse != nil {
		w.respCbs = append(w.respCbs, onResponse)
	}
	if onProgress != nil {
		w.progCbs = append(w.progCbs, onProgress)
	}
	uc.waiters[id] = w
}

func (uc *BridgeUseCase) attachToWaiter(id string, onResponse ResponseCallback, onProgress ProgressCallback) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	w, ok := uc.waiters[id]
	if !ok {
		return false
	}
	if onResponse != nil {
		w.respCbs = append(w.respCbs, onResponse)
	}
	if onProgress != nil {
		w.progCbs = append(w.progCbs, onProgress)
	}
	return true
}

func (uc *BridgeUseCase) takeWaiter(id string) *queuedWaiter {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	w := uc.waiters[id]
	delete(uc.waiters, id)
	return w
}

func (uc *BridgeUseCase) restoreWaiter(id string, w *queuedWaiter) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.waiters[id] = w
}

func (uc *BridgeUseCase) dropWaiter(id string) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	delete(uc.waiters, id)
}

func (uc *BridgeUseCase) hasWaiter(id string) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	_, ok := uc.waiters[id]
	return ok
}
