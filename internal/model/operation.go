package model

import (
	"encoding/json"
	"time"
)

// OperationStatus is the lifecycle state of a queued operation.
type OperationStatus string

const (
	// OperationQueued means the operation is waiting in the offline queue.
	OperationQueued OperationStatus = "queued"
	// OperationReplaying means a drain cycle is currently delivering it.
	OperationReplaying OperationStatus = "replaying"
	// OperationFailed means replay was abandoned after max attempts.
	OperationFailed OperationStatus = "failed"
)

// QueuedOperation is one entry of the offline queue. It is persisted on every
// mutation so the queue survives a process restart.
type QueuedOperation struct {
	ID       string          `json:"id"`
	Payload  json.RawMessage `json:"payload"`
	QueuedAt time.Time       `json:"queued_at"`
	Attempts int32           `json:"attempts"`
	Status   OperationStatus `json:"status"`
}

// NewQueuedOperation wraps a payload for queueing.
func NewQueuedOperation(id string, payload json.RawMessage) *QueuedOperation {
	return &QueuedOperation{
		ID:       id,
		Payload:  payload,
		QueuedAt: time.Now(),
		Status:   OperationQueued,
	}
}

// Route says which path accepted a submitted operation.
type Route string

const (
	// RoutePrimary means the operation was dispatched on the live primary channel.
	RoutePrimary Route = "primary"
	// RouteSecondary means the operation was dispatched through the guarded
	// secondary channel.
	RouteSecondary Route = "secondary"
	// RouteQueued means no channel was available and the operation was accepted
	// for later delivery.
	RouteQueued Route = "queued"
)
