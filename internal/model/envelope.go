// Package model holds the wire and domain structures shared between the
// biz and data layers.
package model

import (
	"encoding/json"
	"time"
)

// Envelope is the outbound wire frame carried by either channel.
// Payload is opaque to the bridge; it is delivered exactly as submitted.
type Envelope struct {
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds
}

// NewEnvelope builds an envelope stamped with the current time.
func NewEnvelope(id string, payload json.RawMessage) *Envelope {
	return &Envelope{
		ID:        id,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// InboundEvent is a frame received from a channel. Exactly one of Result,
// Progress or Error is expected to be set; a frame with Progress set does not
// terminate the request it refers to.
type InboundEvent struct {
	ID       string          `json:"id"`
	Result   json.RawMessage `json:"result,omitempty"`
	Progress json.RawMessage `json:"progress,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// IsProgress reports whether the event is a non-terminal progress update.
func (e *InboundEvent) IsProgress() bool {
	return len(e.Progress) > 0 && len(e.Result) == 0 && e.Error == ""
}
