package model

import "time"

// ChannelDownEvent is emitted when a channel reaches the terminal failed
// state (reconnect attempt ceiling exhausted).
type ChannelDownEvent struct {
	Channel   ChannelName
	LastError string
	Attempts  int32
	FailedAt  time.Time
}

// ChannelRecoveredEvent is emitted when a channel returns to connected after
// having been down.
type ChannelRecoveredEvent struct {
	Channel     ChannelName
	Attempts    int32
	Downtime    time.Duration
	RecoveredAt time.Time
}

// BreakerOpenedEvent is emitted when the circuit breaker guarding the
// secondary channel trips open.
type BreakerOpenedEvent struct {
	Channel             ChannelName
	ConsecutiveFailures int32
	OpenedAt            time.Time
}
