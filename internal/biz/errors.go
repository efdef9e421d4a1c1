package biz

import (
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/errors"

	"RelayLane/internal/model"
)

// Error reasons returned by bridge operations. The service layer maps these
// onto HTTP responses without re-parsing error messages.
const (
	ReasonNotConnected         = "NOT_CONNECTED"
	ReasonConnectionFailed     = "CONNECTION_FAILED"
	ReasonMaxReconnectExceeded = "MAX_RECONNECT_ATTEMPTS_EXCEEDED"
	ReasonCircuitOpen          = "CIRCUIT_OPEN"
	ReasonQueueEvicted         = "QUEUE_CAPACITY_EVICTED"
	ReasonQueueCorrupted       = "QUEUE_ENTRY_CORRUPTED"
	ReasonIndeterminate        = "INDETERMINATE"
	ReasonReplayExhausted      = "REPLAY_EXHAUSTED"
	ReasonDuplicateOperation   = "DUPLICATE_OPERATION"
	ReasonDrainInProgress      = "DRAIN_IN_PROGRESS"
	ReasonRemoteFailed         = "REMOTE_OPERATION_FAILED"
)

// ErrNotConnected reports a send attempted while the channel has no live session.
func ErrNotConnected(channel model.ChannelName) error {
	return errors.New(503, ReasonNotConnected,
		fmt.Sprintf("channel %s is not connected", channel))
}

// ErrConnectionFailed reports a connect or handshake attempt that did not
// produce a usable session.
func ErrConnectionFailed(channel model.ChannelName, cause error) error {
	return errors.New(503, ReasonConnectionFailed,
		fmt.Sprintf("channel %s connection failed: %v", channel, cause))
}

// ErrMaxReconnectExceeded reports a channel that used up its reconnect budget
// and entered the terminal failed state.
func ErrMaxReconnectExceeded(channel model.ChannelName, attempts int32) error {
	return errors.New(503, ReasonMaxReconnectExceeded,
		fmt.Sprintf("channel %s gave up after %d reconnect attempts", channel, attempts))
}

// ErrCircuitOpen reports a call rejected without touching the network because
// the breaker is open.
func ErrCircuitOpen(channel model.ChannelName, retryAfter time.Duration) error {
	return errors.New(503, ReasonCircuitOpen,
		fmt.Sprintf("channel %s circuit open, retry after %s", channel, retryAfter.Round(time.Second)))
}

// ErrQueueEvicted reports an operation pushed out of the offline queue by
// newer arrivals before it could be replayed.
func ErrQueueEvicted(operationID string) error {
	return errors.New(503, ReasonQueueEvicted,
		fmt.Sprintf("operation %s evicted from offline queue at capacity", operationID))
}

// ErrQueueCorrupted reports a queued operation dropped because its stored
// record could no longer be decoded. The payload is gone; the caller has to
// resubmit.
func ErrQueueCorrupted(operationID string, cause error) error {
	return errors.New(500, ReasonQueueCorrupted,
		fmt.Sprintf("operation %s dropped: stored record is corrupt: %v", operationID, cause))
}

// ErrIndeterminate reports an in-flight request whose channel dropped before
// any response arrived. The operation may or may not have been applied remotely.
func ErrIndeterminate(operationID string) error {
	return errors.New(504, ReasonIndeterminate,
		fmt.Sprintf("operation %s outcome unknown: channel dropped mid-flight", operationID))
}

// ErrReplayExhausted reports a queued operation that failed every replay attempt.
func ErrReplayExhausted(operationID string, attempts int32) error {
	return errors.New(500, ReasonReplayExhausted,
		fmt.Sprintf("operation %s dropped after %d failed replay attempts", operationID, attempts))
}

// ErrDuplicateOperation reports a submission reusing an ID that is still pending.
func ErrDuplicateOperation(operationID string) error {
	return errors.New(409, ReasonDuplicateOperation,
		fmt.Sprintf("operation %s is already pending", operationID))
}

// ErrRemoteFailed reports an error frame the backend returned for an operation.
func ErrRemoteFailed(operationID, remoteMessage string) error {
	return errors.New(500, ReasonRemoteFailed,
		fmt.Sprintf("operation %s failed remotely: %s", operationID, remoteMessage))
}

// ErrDrainInProgress reports a manual drain request while a drain cycle is
// already running.
func ErrDrainInProgress() error {
	return errors.New(409, ReasonDrainInProgress, "queue drain already in progress")
}

// IsNotConnected checks if the error reports a channel without a live session.
func IsNotConnected(err error) bool {
	return errors.Reason(err) == ReasonNotConnected
}

// IsCircuitOpen checks if the error is a breaker fail-fast rejection.
func IsCircuitOpen(err error) bool {
	return errors.Reason(err) == ReasonCircuitOpen
}

// IsIndeterminate checks if the error reports an unknown in-flight outcome.
func IsIndeterminate(err error) bool {
	return errors.Reason(err) == ReasonIndeterminate
}

// IsReplayExhausted checks if the error reports a dropped queued operation.
func IsReplayExhausted(err error) bool {
	return errors.Reason(err) == ReasonReplayExhausted
}

// IsQueueEvicted checks if the error reports a capacity eviction.
func IsQueueEvicted(err error) bool {
	return errors.Reason(err) == ReasonQueueEvicted
}

// IsQueueCorrupted checks if the error reports a dropped corrupt record.
func IsQueueCorrupted(err error) bool {
	return errors.Reason(err) == ReasonQueueCorrupted
}

// IsDuplicateOperation checks if the error reports a reused pending id.
func IsDuplicateOperation(err error) bool {
	return errors.Reason(err) == ReasonDuplicateOperation
}

// IsDrainInProgress checks if the error reports a drain cycle already running.
func IsDrainInProgress(err error) bool {
	return errors.Reason(err) == ReasonDrainInProgress
}
