package biz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"RelayLane/internal/data"
	"RelayLane/internal/model"
	pkglog "RelayLane/pkg/log"
)

// QueueOptions carries the tuning knobs for the offline queue.
type QueueOptions struct {
	// Capacity bounds the queue; enqueueing at capacity evicts the oldest entry.
	Capacity int32
	// MaxAttempts bounds replay retries before an operation is dropped for good.
	MaxAttempts int32
}

func (o QueueOptions) normalized() QueueOptions {
	if o.Capacity <= 0 {
		o.Capacity = 100
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	return o
}

// QueueSender delivers one queued operation during a drain cycle.
type QueueSender func(ctx context.Context, op *model.QueuedOperation) error

// DrainStats summarizes one drain cycle.
type DrainStats struct {
	// Ran is false when another drain was already in progress and this
	// trigger was a no-op.
	Ran       bool `json:"ran"`
	Delivered int  `json:"delivered"`
	Requeued  int  `json:"requeued"`
	Exhausted int  `json:"exhausted"`
	// Dropped counts records removed because they could no longer be decoded.
	Dropped  int           `json:"dropped"`
	Duration time.Duration `json:"-"`
}

// OfflineQueue buffers operations while no channel can carry them. Entries
// are persisted on every mutation, so a process crash loses at most the
// network call that was in flight, never the queue bookkeeping.
type OfflineQueue struct {
	store   data.QueueStore
	opts    QueueOptions
	auditor DeliveryAuditor
	helper  *pkglog.LogHelper

	// enqMu serializes the capacity check against the append so two
	// concurrent enqueues cannot both overshoot the bound.
	enqMu    sync.Mutex
	draining atomic.Bool

	cbMu        sync.Mutex
	onEvicted   []func(op *model.QueuedOperation)
	onExhausted []func(op *model.QueuedOperation)
	onCorrupted []func(id string, cause error)
}

// NewOfflineQueue creates a queue over the given persisted store.
func NewOfflineQueue(store data.QueueStore, opts QueueOptions, auditor DeliveryAuditor, logger log.Logger) *OfflineQueue {
	return &OfflineQueue{
		store:   store,
		opts:    opts.normalized(),
		auditor: auditor,
		helper:  pkglog.NewLogHelper(logger),
	}
}

// OnEvicted registers a callback for capacity evictions. Eviction is an
// observable outcome, never a silent drop.
func (q *OfflineQueue) OnEvicted(fn func(op *model.QueuedOperation)) {
	q.cbMu.Lock()
	defer q.cbMu.Unlock()
	q.onEvicted = append(q.onEvicted, fn)
}

// OnExhausted registers a callback for operations dropped after failing
// every replay attempt.
func (q *OfflineQueue) OnExhausted(fn func(op *model.QueuedOperation)) {
	q.cbMu.Lock()
	defer q.cbMu.Unlock()
	q.onExhausted = append(q.onExhausted, fn)
}

// OnCorrupted registers a callback for records dropped because they could no
// longer be decoded. The id is empty when the record was too damaged to
// identify.
func (q *OfflineQueue) OnCorrupted(fn func(id string, cause error)) {
	q.cbMu.Lock()
	defer q.cbMu.Unlock()
	q.onCorrupted = append(q.onCorrupted, fn)
}

// Enqueue persists an operation for later replay. At capacity the oldest
// entry is evicted first, so admission only fails when the store itself
// fails. Evicted operations are reported through the OnEvicted callbacks
// and returned to the caller.
func (q *OfflineQueue) Enqueue(ctx context.Context, op *model.QueuedOperation) ([]*model.QueuedOperation, error) {
	q.enqMu.Lock()
	defer q.enqMu.Unlock()

	var evicted []*model.QueuedOperation
	size, err := q.store.Len(ctx)
	if err != nil {
		return nil, err
	}
	for size >= int(q.opts.Capacity) {
		old, err := q.store.PopHead(ctx)
		if err != nil {
			var corrupt *data.CorruptEntryError
			if !errors.As(err, &corrupt) {
				return nil, err
			}
			// the pop removed the raw record despite the decode failure;
			// report the drop and keep admitting
			q.noteCorruptDrop(ctx, corrupt)
			size--
			continue
		}
		evicted = append(evicted, old)
		size--
	}

	if err := q.store.Append(ctx, op); err != nil {
		return nil, err
	}

	q.helper.Queue("operation queued",
		"operation_id", op.ID,
		"queue_size", size+1,
		"evicted", len(evicted))
	if q.auditor != nil {
		q.auditor.LogEnqueued(ctx, op)
	}

	for _, old := range evicted {
		q.helper.Queue("oldest entry evicted at capacity",
			"operation_id", old.ID,
			"capacity", q.opts.Capacity)
		if q.auditor != nil {
			q.auditor.LogEvicted(ctx, old)
		}
		q.fireEvicted(old)
	}
	return evicted, nil
}

// Drain replays queued operations in FIFO order through sender. A delivery
// failure increments the operation's attempt count and rotates it to the
// tail for a later cycle, until MaxAttempts is reached and the operation is
// dropped with a ReplayExhausted report. A head record that can no longer be
// decoded is dropped with an audit record instead of wedging the entries
// behind it. Only one drain runs at a time; a concurrent trigger returns
// immediately with Ran=false.
func (q *OfflineQueue) Drain(ctx context.Context, sender QueueSender) (DrainStats, error) {
	if !q.draining.CompareAndSwap(false, true) {
		return DrainStats{Ran: false}, nil
	}
	defer q.draining.Store(false)

	start := time.Now()
	stats := DrainStats{Ran: true}

	// one pass over the entries present at drain start; rotated failures and
	// fresh arrivals wait for the next cycle
	remaining, err := q.store.Len(ctx)
	if err != nil {
		return stats, err
	}

	for i := 0; i < remaining; i++ {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}

		op, err := q.store.Peek(ctx)
		if err == data.ErrQueueEmpty {
			break
		}
		if err != nil {
			var corrupt *data.CorruptEntryError
			if !errors.As(err, &corrupt) {
				stats.Duration = time.Since(start)
				return stats, err
			}
			if err := q.dropCorruptHead(ctx, corrupt); err != nil {
				stats.Duration = time.Since(start)
				return stats, err
			}
			stats.Dropped++
			continue
		}

		op.Status = model.OperationReplaying
		sendErr := sender(ctx, op)
		if sendErr == nil {
			if err := q.store.RemoveHead(ctx, op.ID); err != nil {
				q.helper.Queue("head changed during delivery, skipping removal",
					"operation_id", op.ID, "error", err)
			}
			stats.Delivered++
			q.helper.Replay("queued operation delivered",
				"operation_id", op.ID,
				"attempts", op.Attempts)
			if q.auditor != nil {
				q.auditor.LogDelivered(ctx, op)
			}
			continue
		}

		op.Attempts++
		if op.Attempts >= q.opts.MaxAttempts {
			if err := q.store.RemoveHead(ctx, op.ID); err != nil {
				q.helper.Queue("head changed during delivery, skipping removal",
					"operation_id", op.ID, "error", err)
			}
			op.Status = model.OperationFailed
			stats.Exhausted++
			q.helper.Replay("operation dropped after exhausting replay attempts",
				"operation_id", op.ID,
				"attempts", op.Attempts,
				"error", sendErr)
			if q.auditor != nil {
				q.auditor.LogExhausted(ctx, op)
			}
			q.fireExhausted(op)
			continue
		}

		op.Status = model.OperationQueued
		if err := q.store.RotateHead(ctx, op); err != nil {
			q.helper.Queue("head changed during delivery, skipping rotation",
				"operation_id", op.ID, "error", err)
		}
		stats.Requeued++
		q.helper.Replay("delivery failed, requeued for a later cycle",
			"operation_id", op.ID,
			"attempts", op.Attempts,
			"max_attempts", q.opts.MaxAttempts,
			"error", sendErr)
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

// dropCorruptHead removes a head record that can no longer be decoded. When
// the record's identity survived, removal is guarded by id; ErrHeadMismatch
// then just means an eviction already took it. A record that lost its
// identity is popped blind, which discards the raw bytes even though decoding
// them fails again. Only a store failure is returned.
func (q *OfflineQueue) dropCorruptHead(ctx context.Context, corrupt *data.CorruptEntryError) error {
	if corrupt.ID != "" {
		err := q.store.RemoveHead(ctx, corrupt.ID)
		if err != nil && err != data.ErrQueueEmpty && err != data.ErrHeadMismatch {
			return err
		}
	} else {
		if _, err := q.store.PopHead(ctx); err != nil && err != data.ErrQueueEmpty {
			var again *data.CorruptEntryError
			if !errors.As(err, &again) {
				return err
			}
		}
	}
	q.noteCorruptDrop(ctx, corrupt)
	return nil
}

// noteCorruptDrop reports a record removed because it could not be decoded.
func (q *OfflineQueue) noteCorruptDrop(ctx context.Context, corrupt *data.CorruptEntryError) {
	q.helper.Queue("dropped undecodable queue entry",
		"operation_id", corrupt.ID,
		"error", corrupt.Err)
	if q.auditor != nil {
		q.auditor.LogCorrupted(ctx, corrupt.ID, corrupt.Err)
	}
	q.fireCorrupted(corrupt.ID, corrupt.Err)
}

// Size returns the number of queued operations.
func (q *OfflineQueue) Size(ctx context.Context) (int, error) {
	return q.store.Len(ctx)
}

// Pending lists queued operations in FIFO order, up to limit.
func (q *OfflineQueue) Pending(ctx context.Context, limit int) ([]*model.QueuedOperation, error) {
	return q.store.List(ctx, limit)
}

// Draining reports whether a drain cycle is currently running.
func (q *OfflineQueue) Draining() bool {
	return q.draining.Load()
}

func (q *OfflineQueue) fireEvicted(op *model.QueuedOperation) {
	q.cbMu.Lock()
	callbacks := make([]func(op *model.QueuedOperation), len(q.onEvicted))
	copy(callbacks, q.onEvicted)
	q.cbMu.Unlock()
	for _, fn := range callbacks {
		fn(op)
	}
}

func (q *OfflineQueue) fireExhausted(op *model.QueuedOperation) {
	q.cbMu.Lock()
	callbacks := make([]func(op *model.QueuedOperation), len(q.onExhausted))
	copy(callbacks, q.onExhausted)
	q.cbMu.Unlock()
	for _, fn := range callbacks {
		fn(op)
	}
}

func (q *OfflineQueue) fireCorrupted(id string, cause error) {
	q.cbMu.Lock()
	callbacks := make([]func(id string, cause error), len(q.onCorrupted))
	copy(callbacks, q.onCorrupted)
	q.cbMu.Unlock()
	for _, fn := range callbacks {
		fn(id, cause)
	}
}
