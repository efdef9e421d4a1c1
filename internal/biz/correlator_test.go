package biz

import (
	"encoding/json"
	"os"
	"sync"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RelayLane/internal/model"
)

func newTestCorrelator() *Correlator {
	return NewCorrelator(log.NewStdLogger(os.Stdout))
}

// outcomeRecorder captures a response callback's terminal outcome.
type outcomeRecorder struct {
	mu     sync.Mutex
	fired  int
	result json.RawMessage
	err    error
}

func (r *outcomeRecorder) callback() ResponseCallback {
	return func(result json.RawMessage, err error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.fired++
		r.result = result
		r.err = err
	}
}

func (r *outcomeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fired
}

func (r *outcomeRecorder) lastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *outcomeRecorder) lastResult() json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Test GenerateOperationID - IDs carry the prefix and never collide
func TestCorrelator_GenerateOperationID(t *testing.T) {
	c := newTestCorrelator()

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := c.GenerateOperationID()
		assert.Regexp(t, `^op-[0-9a-z]+-[0-9a-z]{6}$`, id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

// Test Track - Duplicate pending id is rejected
func TestCorrelator_TrackDuplicatePending(t *testing.T) {
	c := newTestCorrelator()

	require.NoError(t, c.Track("op-1", nil, model.ChannelPrimary, nil, nil))
	assert.True(t, c.IsPending("op-1"))

	err := c.Track("op-1", nil, model.ChannelPrimary, nil, nil)
	assert.Error(t, err)
	assert.True(t, IsDuplicateOperation(err))
	assert.Contains(t, err.Error(), "DUPLICATE_OPERATION")
}

// Test Resolve - Callback fires exactly once, duplicates are dropped
func TestCorrelator_ResolveExactlyOnce(t *testing.T) {
	c := newTestCorrelator()
	recorder := &outcomeRecorder{}

	require.NoError(t, c.Track("op-1", nil, model.ChannelPrimary, recorder.callback(), nil))

	result := json.RawMessage(`{"value":42}`)
	assert.True(t, c.Resolve("op-1", result))
	assert.False(t, c.IsPending("op-1"))

	// the duplicate terminal frame is counted, never re-delivered
	assert.False(t, c.Resolve("op-1", json.RawMessage(`{"value":43}`)))
	assert.False(t, c.Abandon("op-1"))

	assert.Equal(t, 1, recorder.count())
	assert.JSONEq(t, `{"value":42}`, string(recorder.lastResult()))
	assert.NoError(t, recorder.lastErr())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Resolved)
	assert.Equal(t, int64(2), stats.DuplicateDrops)
	assert.Equal(t, 0, stats.InFlight)
}

// Test Progress - Progress frames do not terminate the request
func TestCorrelator_ProgressKeepsRequestPending(t *testing.T) {
	c := newTestCorrelator()
	recorder := &outcomeRecorder{}

	var mu sync.Mutex
	var progress []string
	require.NoError(t, c.Track("op-1", nil, model.ChannelPrimary, recorder.callback(),
		func(p json.RawMessage) {
			mu.Lock()
			progress = append(progress, string(p))
			mu.Unlock()
		}))

	c.Progress("op-1", json.RawMessage(`{"pct":30}`))
	c.Progress("op-1", json.RawMessage(`{"pct":70}`))
	assert.True(t, c.IsPending("op-1"))
	assert.Equal(t, 0, recorder.count())

	c.Resolve("op-1", json.RawMessage(`{"done":true}`))
	assert.Equal(t, 1, recorder.count())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{`{"pct":30}`, `{"pct":70}`}, progress)
}

// Test HandleEvent - Frames route by their content
func TestCorrelator_HandleEvent(t *testing.T) {
	t.Run("result frame resolves", func(t *testing.T) {
		c := newTestCorrelator()
		recorder := &outcomeRecorder{}
		require.NoError(t, c.Track("op-1", nil, model.ChannelPrimary, recorder.callback(), nil))

		c.HandleEvent(&model.InboundEvent{ID: "op-1", Result: json.RawMessage(`{"ok":true}`)})

		assert.Equal(t, 1, recorder.count())
		assert.NoError(t, recorder.lastErr())
		assert.False(t, c.IsPending("op-1"))
	})

	t.Run("error frame resolves with remote failure", func(t *testing.T) {
		c := newTestCorrelator()
		recorder := &outcomeRecorder{}
		require.NoError(t, c.Track("op-1", nil, model.ChannelPrimary, recorder.callback(), nil))

		c.HandleEvent(&model.InboundEvent{ID: "op-1", Error: "backend rejected the payload"})

		assert.Equal(t, 1, recorder.count())
		require.Error(t, recorder.lastErr())
		assert.Contains(t, recorder.lastErr().Error(), "REMOTE_OPERATION_FAILED")
		assert.Contains(t, recorder.lastErr().Error(), "backend rejected the payload")
	})

	t.Run("progress frame stays in flight", func(t *testing.T) {
		c := newTestCorrelator()
		recorder := &outcomeRecorder{}
		require.NoError(t, c.Track("op-1", nil, model.ChannelPrimary, recorder.callback(), nil))

		c.HandleEvent(&model.InboundEvent{ID: "op-1", Progress: json.RawMessage(`{"pct":10}`)})

		assert.Equal(t, 0, recorder.count())
		assert.True(t, c.IsPending("op-1"))
	})

	t.Run("frames without an id are dropped", func(t *testing.T) {
		c := newTestCorrelator()
		c.HandleEvent(nil)
		c.HandleEvent(&model.InboundEvent{Result: json.RawMessage(`{}`)})
		assert.Equal(t, 0, c.Stats().InFlight)
	})
}

// Test Abandon - Outcome is reported as indeterminate, not failed
func TestCorrelator_AbandonReportsIndeterminate(t *testing.T) {
	c := newTestCorrelator()
	recorder := &outcomeRecorder{}

	require.NoError(t, c.Track("op-1", nil, model.ChannelPrimary, recorder.callback(), nil))
	assert.True(t, c.Abandon("op-1"))

	require.Error(t, recorder.lastErr())
	assert.True(t, IsIndeterminate(recorder.lastErr()))
	assert.Contains(t, recorder.lastErr().Error(), "INDETERMINATE")
	assert.Equal(t, int64(1), c.Stats().Abandoned)
}

// Test AbandonChannel - Only the lost channel's requests are abandoned
func TestCorrelator_AbandonChannel(t *testing.T) {
	c := newTestCorrelator()

	recorders := map[string]*outcomeRecorder{}
	for _, id := range []string{"op-1", "op-2", "op-3"} {
		r := &outcomeRecorder{}
		recorders[id] = r
		require.NoError(t, c.Track(id, nil, model.ChannelPrimary, r.callback(), nil))
	}
	other := &outcomeRecorder{}
	require.NoError(t, c.Track("op-4", nil, model.ChannelSecondary, other.callback(), nil))

	ids := c.AbandonChannel(model.ChannelPrimary)
	assert.ElementsMatch(t, []string{"op-1", "op-2", "op-3"}, ids)

	for id, r := range recorders {
		assert.Equal(t, 1, r.count(), "callback for %s", id)
		assert.True(t, IsIndeterminate(r.lastErr()), "outcome for %s", id)
	}

	// the other channel's request is untouched
	assert.Equal(t, 0, other.count())
	assert.True(t, c.IsPending("op-4"))
	assert.Equal(t, int64(3), c.Stats().Abandoned)
}

// Test OnResponse - Listener attach works at every request stage
func TestCorrelator_OnResponseStages(t *testing.T) {
	t.Run("pending request gains a listener", func(t *testing.T) {
		c := newTestCorrelator()
		first := &outcomeRecorder{}
		second := &outcomeRecorder{}

		require.NoError(t, c.Track("op-1", nil, model.ChannelPrimary, first.callback(), nil))
		c.OnResponse("op-1", second.callback())

		c.Resolve("op-1", json.RawMessage(`{"ok":true}`))
		assert.Equal(t, 1, first.count())
		assert.Equal(t, 1, second.count())
	})

	t.Run("completed request answers immediately", func(t *testing.T) {
		c := newTestCorrelator()
		require.NoError(t, c.Track("op-1", nil, model.ChannelPrimary, nil, nil))
		c.Resolve("op-1", json.RawMessage(`{"ok":true}`))

		late := &outcomeRecorder{}
		c.OnResponse("op-1", late.callback())
		assert.Equal(t, 1, late.count())
		assert.NoError(t, late.lastErr())
		assert.JSONEq(t, `{"ok":true}`, string(late.lastResult()))
	})

	t.Run("unknown id is reported indeterminate", func(t *testing.T) {
		c := newTestCorrelator()
		unknown := &outcomeRecorder{}
		c.OnResponse("op-never-seen", unknown.callback())
		assert.Equal(t, 1, unknown.count())
		assert.True(t, IsIndeterminate(unknown.lastErr()))
	})
}

// Test SettleExternal - Outcomes recorded outside the correlator are served
func TestCorrelator_SettleExternal(t *testing.T) {
	c := newTestCorrelator()

	c.SettleExternal("op-1", nil, ErrQueueEvicted("op-1"))

	late := &outcomeRecorder{}
	c.OnResponse("op-1", late.callback())
	assert.Equal(t, 1, late.count())
	assert.True(t, IsQueueEvicted(late.lastErr()))
}

// Test discard - Dropped tracking entry fires no callbacks
func TestCorrelator_DiscardFiresNothing(t *testing.T) {
	c := newTestCorrelator()
	recorder := &outcomeRecorder{}

	require.NoError(t, c.Track("op-1", nil, model.ChannelPrimary, recorder.callback(), nil))
	c.discard("op-1")

	assert.False(t, c.IsPending("op-1"))
	assert.Equal(t, 0, recorder.count())

	// the id is reusable after a discard
	assert.NoError(t, c.Track("op-1", nil, model.ChannelSecondary, nil, nil))
}

// Test Stats - Counters reflect the request lifecycle
func TestCorrelator_Stats(t *testing.T) {
	c := newTestCorrelator()

	require.NoError(t, c.Track("op-1", nil, model.ChannelPrimary, nil, nil))
	require.NoError(t, c.Track("op-2", nil, model.ChannelPrimary, nil, nil))
	require.NoError(t, c.Track("op-3", nil, model.ChannelSecondary, nil, nil))
	assert.Equal(t, 3, c.Stats().InFlight)

	c.Resolve("op-1", nil)
	c.Abandon("op-2")

	stats := c.Stats()
	assert.Equal(t, 1, stats.InFlight)
	assert.Equal(t, int64(1), stats.Resolved)
	assert.Equal(t, int64(1), stats.Abandoned)
}
