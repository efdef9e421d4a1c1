package data

import (
	"context"

	"RelayLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// LogStatusNotifier reports bridge health changes to the structured log.
// Wiring an HTTP webhook sink in its place is a drop-in swap behind the
// biz.StatusNotifier interface.
type LogStatusNotifier struct {
	logger *log.Helper
}

// NewLogStatusNotifier creates a new log-backed status notifier
func NewLogStatusNotifier(logger log.Logger) *LogStatusNotifier {
	return &LogStatusNotifier{
		logger: log.NewHelper(logger),
	}
}

// NotifyChannelDown logs a channel that exhausted its reconnect attempts
func (s *LogStatusNotifier) NotifyChannelDown(ctx context.Context, event *model.ChannelDownEvent) error {
	s.logger.Errorw("channel down, reconnect attempts exhausted",
		"channel", event.Channel,
		"attempts", event.Attempts,
		"last_error", event.LastError,
		"failed_at", event.FailedAt)
	return nil
}

// NotifyChannelRecovered logs a channel that came back after being down
func (s *LogStatusNotifier) NotifyChannelRecovered(ctx context.Context, event *model.ChannelRecoveredEvent) error {
	s.logger.Infow("channel recovered",
		"channel", event.Channel,
		"attempts", event.Attempts,
		"downtime", event.Downtime,
		"recovered_at", event.RecoveredAt)
	return nil
}

// NotifyBreakerOpened logs a circuit breaker trip on the secondary channel
func (s *LogStatusNotifier) NotifyBreakerOpened(ctx context.Context, event *model.BreakerOpenedEvent) error {
	s.logger.Warnw("circuit breaker opened",
		"channel", event.Channel,
		"consecutive_failures", event.ConsecutiveFailures,
		"opened_at", event.OpenedAt)
	return nil
}
