package biz

import (
	"context"

	"RelayLane/internal/model"
)

// DeliveryAuditor defines the interface for the delivery audit trail. Every
// operation that leaves the normal dispatch path gets a durable record, so
// an operator can answer "what happened to operation X" after the fact.
type DeliveryAuditor interface {
	// LogEnqueued records an operation admitted to the offline queue
	LogEnqueued(ctx context.Context, op *model.QueuedOperation)

	// LogDelivered records a queued operation that was replayed successfully
	LogDelivered(ctx context.Context, op *model.QueuedOperation)

	// LogEvicted records an operation pushed out by newer arrivals at capacity
	LogEvicted(ctx context.Context, op *model.QueuedOperation)

	// LogExhausted records an operation dropped after failing every replay attempt
	LogExhausted(ctx context.Context, op *model.QueuedOperation)

	// LogIndeterminate records an in-flight request whose channel dropped
	// before any response arrived
	LogIndeterminate(ctx context.Context, operationID string, channel model.ChannelName)

	// LogCorrupted records a stored record dropped because it could no longer
	// be decoded; operationID may be empty when the record lost its identity
	LogCorrupted(ctx context.Context, operationID string, cause error)
}
