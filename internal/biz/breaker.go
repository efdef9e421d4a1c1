package biz

import (
	"context"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"RelayLane/internal/model"
	pkglog "RelayLane/pkg/log"
)

// BreakerState represents the state of the circuit breaker.
type BreakerState int

const (
	// BreakerClosed - normal operation, calls pass through.
	BreakerClosed BreakerState = iota
	// BreakerOpen - failing, calls rejected immediately.
	BreakerOpen
	// BreakerHalfOpen - probing recovery, one call allowed at a time.
	BreakerHalfOpen
)

// String returns the string representation of the breaker state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerOptions carries the tuning knobs for one guarded channel.
type BreakerOptions struct {
	// FailureThreshold is the consecutive-failure count that opens the circuit.
	FailureThreshold int32
	// ResetTimeout is the cooldown before an open circuit admits a probe.
	ResetTimeout time.Duration
	// SuccessQuota is the consecutive probe successes required to close again.
	SuccessQuota int32
}

func (o BreakerOptions) normalized() BreakerOptions {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 3
	}
	if o.ResetTimeout <= 0 {
		o.ResetTimeout = 60 * time.Second
	}
	if o.SuccessQuota <= 0 {
		o.SuccessQuota = 3
	}
	return o
}

// BreakerStats is a point-in-time view of the breaker for status reporting.
type BreakerStats struct {
	State               BreakerState  `json:"-"`
	StateName           string        `json:"state"`
	ConsecutiveFailures int32         `json:"consecutive_failures"`
	ProbeSuccesses      int32         `json:"probe_successes"`
	OpenedAt            time.Time     `json:"opened_at,omitempty"`
	RetryAfter          time.Duration `json:"-"`
}

// CircuitBreaker guards the secondary channel. Calls flow through Execute;
// while open they are rejected without touching the network, which is the
// whole point: an unhealthy dependency gets no additional load and the
// caller fails fast instead of waiting out a doomed request.
//
// Success bookkeeping while closed decrements the failure count instead of
// zeroing it, so a dependency that fails two out of every three calls keeps
// drifting toward the threshold instead of being forgiven each time.
type CircuitBreaker struct {
	channel model.ChannelName
	opts    BreakerOptions
	helper  *pkglog.LogHelper

	mu             sync.Mutex
	state          BreakerState
	failures       int32
	probeSuccesses int32
	openedAt       time.Time
	probing        bool
	listeners      []BreakerListener
}

// BreakerListener observes breaker transitions with the counters as they
// stood at the moment of the transition.
type BreakerListener func(from, to BreakerState, stats BreakerStats)

// NewCircuitBreaker creates a breaker for one channel in the closed state.
func NewCircuitBreaker(channel model.ChannelName, opts BreakerOptions, logger log.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		channel: channel,
		opts:    opts.normalized(),
		helper:  pkglog.NewLogHelper(logger),
		state:   BreakerClosed,
	}
}

// OnStateChange registers a listener for breaker transitions. Listeners run
// under the breaker's lock so transitions arrive in order; they must not
// call back into the breaker.
func (cb *CircuitBreaker) OnStateChange(fn BreakerListener) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.listeners = append(cb.listeners, fn)
}

// Execute runs op if the circuit allows it. While open it returns CircuitOpen
// without invoking op; the first call after the cooldown elapses runs as the
// half-open probe. The wrapped operation's own error is returned unchanged.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := op(ctx)
	cb.afterCall(err)
	return err
}

// beforeCall decides whether the call may proceed.
func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		return nil

	case BreakerOpen:
		remaining := cb.opts.ResetTimeout - time.Since(cb.openedAt)
		if remaining > 0 {
			return ErrCircuitOpen(cb.channel, remaining)
		}
		// cooldown elapsed: this call becomes the probe
		cb.setStateLocked(BreakerHalfOpen)
		cb.probeSuccesses = 0
		cb.probing = true
		return nil

	case BreakerHalfOpen:
		if cb.probing {
			return ErrCircuitOpen(cb.channel, time.Second)
		}
		cb.probing = true
		return nil

	default:
		return ErrCircuitOpen(cb.channel, cb.opts.ResetTimeout)
	}
}

// afterCall records the call outcome.
func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false
	if err != nil {
		cb.onFailureLocked()
	} else {
		cb.onSuccessLocked()
	}
}

func (cb *CircuitBreaker) onFailureLocked() {
	switch cb.state {
	case BreakerClosed:
		cb.failures++
		if cb.failures >= cb.opts.FailureThreshold {
			cb.openedAt = time.Now()
			cb.setStateLocked(BreakerOpen)
		}

	case BreakerHalfOpen:
		// failed during probation: reopen and restart the cooldown clock
		cb.failures++
		cb.probeSuccesses = 0
		cb.openedAt = time.Now()
		cb.setStateLocked(BreakerOpen)
	}
}

func (cb *CircuitBreaker) onSuccessLocked() {
	switch cb.state {
	case BreakerClosed:
		if cb.failures > 0 {
			cb.failures--
		}

	case BreakerHalfOpen:
		cb.probeSuccesses++
		if cb.probeSuccesses >= cb.opts.SuccessQuota {
			cb.failures = 0
			cb.probeSuccesses = 0
			cb.setStateLocked(BreakerClosed)
		}
	}
}

// setStateLocked transitions the state and logs it. Caller holds mu.
func (cb *CircuitBreaker) setStateLocked(to BreakerState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to

	cb.helper.Breaker("circuit state changed",
		"channel", string(cb.channel),
		"from", from.String(),
		"to", to.String(),
		"consecutive_failures", cb.failures)

	stats := BreakerStats{
		State:               to,
		StateName:           to.String(),
		ConsecutiveFailures: cb.failures,
		ProbeSuccesses:      cb.probeSuccesses,
		OpenedAt:            cb.openedAt,
	}
	for _, fn := range cb.listeners {
		fn(from, to, stats)
	}
}

// State returns the current breaker state. An elapsed cooldown is not
// reflected here; it materializes when the next Execute admits its probe.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot for status reporting.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	stats := BreakerStats{
		State:               cb.state,
		StateName:           cb.state.String(),
		ConsecutiveFailures: cb.failures,
		ProbeSuccesses:      cb.probeSuccesses,
	}
	if cb.state == BreakerOpen {
		stats.OpenedAt = cb.openedAt
		if remaining := cb.opts.ResetTimeout - time.Since(cb.openedAt); remaining > 0 {
			stats.RetryAfter = remaining
		}
	}
	return stats
}

// Reset manually forces the breaker back to closed with clean counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.probeSuccesses = 0
	cb.probing = false
	cb.setStateLocked(BreakerClosed)
}
