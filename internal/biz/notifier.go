package biz

import (
	"context"

	"RelayLane/internal/model"
)

// StatusNotifier defines the interface for outward notifications about
// bridge health. Implementations must swallow their own delivery problems;
// a dead notifier never blocks the bridge.
type StatusNotifier interface {
	// NotifyChannelDown sends notification when a channel reaches the
	// terminal failed state
	NotifyChannelDown(ctx context.Context, event *model.ChannelDownEvent) error

	// NotifyChannelRecovered sends notification when a channel comes back
	NotifyChannelRecovered(ctx context.Context, event *model.ChannelRecoveredEvent) error

	// NotifyBreakerOpened sends notification when the circuit breaker trips
	NotifyBreakerOpened(ctx context.Context, event *model.BreakerOpenedEvent) error
}
