package model

import "time"

// ChannelName identifies one of the two delivery channels.
type ChannelName string

const (
	// ChannelPrimary is the preferred real-time channel.
	ChannelPrimary ChannelName = "primary"
	// ChannelSecondary is the call-and-response fallback channel.
	ChannelSecondary ChannelName = "secondary"
)

// ChannelStatus is the lifecycle state of one channel.
type ChannelStatus string

const (
	StatusDisconnected ChannelStatus = "disconnected"
	StatusConnecting   ChannelStatus = "connecting"
	StatusConnected    ChannelStatus = "connected"
	StatusReconnecting ChannelStatus = "reconnecting"
	// StatusFailed is terminal: the reconnect attempt ceiling was reached and
	// only an explicit external reset leaves it.
	StatusFailed ChannelStatus = "failed"
)

// AggregateStatus is the single user-facing connectivity status derived from
// both channels.
type AggregateStatus string

const (
	// AggregateConnected means the primary channel is connected.
	AggregateConnected AggregateStatus = "connected"
	// AggregatePartial means only the secondary channel is connected.
	AggregatePartial AggregateStatus = "partial"
	// AggregateDisconnected means neither channel is connected.
	AggregateDisconnected AggregateStatus = "disconnected"
)

// ChannelSnapshot is a point-in-time copy of one channel's state, safe to
// hand to callers.
type ChannelSnapshot struct {
	Channel           ChannelName   `json:"channel"`
	Status            ChannelStatus `json:"status"`
	ReconnectAttempts int32         `json:"reconnect_attempts"`
	LastError         string        `json:"last_error,omitempty"`
	LastHeartbeatAt   time.Time     `json:"last_heartbeat_at,omitempty"`
	ConnectedAt       time.Time     `json:"connected_at,omitempty"`
}
