package biz

import (
	"encoding/json"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	lru "github.com/hashicorp/golang-lru/v2"

	"RelayLane/internal/model"
	pkglog "RelayLane/pkg/log"
)

// ResponseCallback receives an operation's terminal outcome exactly once:
// either a result or an error, never both, never twice.
type ResponseCallback func(result json.RawMessage, err error)

// ProgressCallback receives non-terminal progress frames; it may fire any
// number of times before the terminal outcome.
type ProgressCallback func(progress json.RawMessage)

// completedOutcome is cached for a while after resolution so late frames and
// late listener registrations can be answered instead of dropped blind.
type completedOutcome struct {
	result json.RawMessage
	err    error
	at     time.Time
}

// completedCacheSize bounds the recently-completed LRU.
const completedCacheSize = 1024

// pendingRequest is one in-flight operation owned by the correlator from
// dispatch until a terminal event removes it.
type pendingRequest struct {
	id           string
	payload      json.RawMessage
	channel      model.ChannelName
	dispatchedAt time.Time
	respCbs      []ResponseCallback
	progCbs      []ProgressCallback
}

// CorrelatorStats is a point-in-time view for status reporting.
type CorrelatorStats struct {
	InFlight       int   `json:"in_flight"`
	Resolved       int64 `json:"resolved"`
	Abandoned      int64 `json:"abandoned"`
	DuplicateDrops int64 `json:"duplicate_drops"`
}

// Correlator matches inbound response events to the requests that caused
// them. Correlation is local to one bridge instance; ids only need to be
// collision-resistant within a session.
//
// A pending request has no implicit timeout here. The calling layer owns
// latency policy and calls Abandon itself when it gives up waiting.
type Correlator struct {
	helper *pkglog.LogHelper

	mu        sync.Mutex
	pending   map[string]*pendingRequest
	completed *lru.Cache[string, completedOutcome]

	rnd   *rand.Rand
	rndMu sync.Mutex

	resolved       atomic.Int64
	abandoned      atomic.Int64
	duplicateDrops atomic.Int64
}

// NewCorrelator creates an empty correlator.
func NewCorrelator(logger log.Logger) *Correlator {
	completed, _ := lru.New[string, completedOutcome](completedCacheSize)
	return &Correlator{
		helper:    pkglog.NewLogHelper(logger),
		pending:   make(map[string]*pendingRequest),
		completed: completed,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- correlation ids, not security
	}
}

// GenerateOperationID returns a session-unique id: millisecond timestamp in
// base36 plus a random base36 suffix.
func (c *Correlator) GenerateOperationID() string {
	c.rndMu.Lock()
	suffix := c.rnd.Int63n(36 * 36 * 36 * 36 * 36 * 36)
	c.rndMu.Unlock()

	var b strings.Builder
	b.WriteString("op-")
	b.WriteString(strconv.FormatInt(time.Now().UnixMilli(), 36))
	b.WriteString("-")
	s := strconv.FormatInt(suffix, 36)
	for len(s) < 6 {
		s = "0" + s
	}
	b.WriteString(s)
	return b.String()
}

// Track registers an in-flight request before its envelope leaves the
// process, so a fast response cannot beat the bookkeeping. Callbacks are
// attached atomically with the registration.
func (c *Correlator) Track(id string, payload json.RawMessage, channel model.ChannelName, onResponse ResponseCallback, onProgress ProgressCallback) error {
	c.mu.Lock()
	if _, exists := c.pending[id]; exists {
		c.mu.Unlock()
		return ErrDuplicateOperation(id)
	}
	req := &pendingRequest{
		id:           id,
		payload:      payload,
		channel:      channel,
		dispatchedAt: time.Now(),
	}
	if onResponse != nil {
		req.respCbs = append(req.respCbs, onResponse)
	}
	if onProgress != nil {
		req.progCbs = append(req.progCbs, onProgress)
	}
	c.pending[id] = req
	c.mu.Unlock()

	c.helper.Correlate("tracking in-flight request",
		"operation_id", id,
		"channel", string(channel))
	return nil
}

// IsPending reports whether an id is currently in flight. The orchestrator
// consults this to refuse double-submission of the same logical operation.
func (c *Correlator) IsPending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

// OnResponse attaches a terminal-outcome listener to an in-flight id. If the
// id already completed recently, the listener fires immediately with the
// cached outcome; an unknown id is reported back as indeterminate.
func (c *Correlator) OnResponse(id string, cb ResponseCallback) {
	if cb == nil {
		return
	}
	c.mu.Lock()
	if req, ok := c.pending[id]; ok {
		req.respCbs = append(req.respCbs, cb)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if outcome, ok := c.completed.Get(id); ok {
		cb(outcome.result, outcome.err)
		return
	}
	cb(nil, ErrIndeterminate(id))
}

// OnProgress attaches a progress listener to an in-flight id. Listeners on
// unknown ids are dropped.
func (c *Correlator) OnProgress(id string, cb ProgressCallback) {
	if cb == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if req, ok := c.pending[id]; ok {
		req.progCbs = append(req.progCbs, cb)
	}
}

// HandleEvent routes one inbound frame: progress frames fan out to progress
// listeners, anything else resolves the request terminally.
func (c *Correlator) HandleEvent(ev *model.InboundEvent) {
	if ev == nil || ev.ID == "" {
		return
	}
	if ev.IsProgress() {
		c.Progress(ev.ID, ev.Progress)
		return
	}
	if ev.Error != "" {
		c.resolveTerminal(ev.ID, nil, ErrRemoteFailed(ev.ID, ev.Error))
		return
	}
	c.Resolve(ev.ID, ev.Result)
}

// Resolve completes an in-flight request with a result and invokes its
// continuations exactly once. Duplicate resolves are counted and logged,
// never re-invoked.
func (c *Correlator) Resolve(id string, result json.RawMessage) bool {
	return c.resolveTerminal(id, result, nil)
}

// Progress delivers a non-terminal update; the request stays in flight.
func (c *Correlator) Progress(id string, progress json.RawMessage) {
	c.mu.Lock()
	req, ok := c.pending[id]
	var callbacks []ProgressCallback
	if ok {
		callbacks = make([]ProgressCallback, len(req.progCbs))
		copy(callbacks, req.progCbs)
	}
	c.mu.Unlock()

	if !ok {
		c.logUnmatched(id, "progress")
		return
	}
	for _, cb := range callbacks {
		cb(progress)
	}
}

// Abandon marks an in-flight request's outcome as unknown: the carrying
// channel went away before any response. The caller is told indeterminate,
// not success and not failure, because the backend may well have applied it.
func (c *Correlator) Abandon(id string) bool {
	return c.resolveTerminal(id, nil, ErrIndeterminate(id))
}

// AbandonChannel abandons every in-flight request carried by the given
// channel, returning the affected ids.
func (c *Correlator) AbandonChannel(channel model.ChannelName) []string {
	c.mu.Lock()
	var ids []string
	for id, req := range c.pending {
		if req.channel == channel {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.Abandon(id)
	}
	if len(ids) > 0 {
		c.helper.Correlate("abandoned in-flight requests after channel loss",
			"channel", string(channel),
			"count", len(ids))
	}
	return ids
}

// SettleExternal records a terminal outcome for an operation the correlator
// never carried (queued operations evicted or exhausted before dispatch), so
// late listeners still get a truthful answer from the completed cache.
func (c *Correlator) SettleExternal(id string, result json.RawMessage, err error) {
	c.completed.Add(id, completedOutcome{result: result, err: err, at: time.Now()})
}

// discard removes a pending entry without firing its continuations: the
// envelope never left the process, so there is no outcome to report.
func (c *Correlator) discard(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Stats returns correlation counters for status reporting.
func (c *Correlator) Stats() CorrelatorStats {
	c.mu.Lock()
	inFlight := len(c.pending)
	c.mu.Unlock()
	return CorrelatorStats{
		InFlight:       inFlight,
		Resolved:       c.resolved.Load(),
		Abandoned:      c.abandoned.Load(),
		DuplicateDrops: c.duplicateDrops.Load(),
	}
}

// resolveTerminal removes the pending entry and fires its continuations.
// Removal under the lock picks exactly one winner per id.
func (c *Correlator) resolveTerminal(id string, result json.RawMessage, outcome error) bool {
	c.mu.Lock()
	req, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		c.logUnmatched(id, "terminal")
		return false
	}

	c.completed.Add(id, completedOutcome{result: result, err: outcome, at: time.Now()})
	switch {
	case outcome != nil && IsIndeterminate(outcome):
		c.abandoned.Add(1)
		c.helper.Correlate("request abandoned, outcome unknown",
			"operation_id", id,
			"channel", string(req.channel),
			"elapsed_ms", time.Since(req.dispatchedAt).Milliseconds())
	case outcome != nil:
		c.resolved.Add(1)
		c.helper.Correlate("error response matched",
			"operation_id", id,
			"channel", string(req.channel),
			"elapsed_ms", time.Since(req.dispatchedAt).Milliseconds(),
			"error", outcome.Error())
	default:
		c.resolved.Add(1)
		c.helper.Correlate("response matched",
			"operation_id", id,
			"channel", string(req.channel),
			"elapsed_ms", time.Since(req.dispatchedAt).Milliseconds())
	}

	for _, cb := range req.respCbs {
		cb(result, outcome)
	}
	return true
}

// logUnmatched records a frame that found no pending request: either a
// duplicate for an already-settled id or a frame for an id never tracked.
func (c *Correlator) logUnmatched(id, kind string) {
	if _, wasCompleted := c.completed.Get(id); wasCompleted {
		c.duplicateDrops.Add(1)
		c.helper.Correlate("duplicate frame for settled request ignored",
			"operation_id", id,
			"kind", kind)
		return
	}
	c.helper.Warnw("msg", "frame for unknown operation dropped",
		"operation_id", id,
		"kind", kind)
}
