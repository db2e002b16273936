package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowwatch/flowwatch/internal/clock"
	"github.com/flowwatch/flowwatch/model/status"
	"github.com/flowwatch/flowwatch/progress"
	"github.com/flowwatch/flowwatch/service/event"
	"github.com/flowwatch/flowwatch/tracing"
)

// Poll session state constants
const (
	StatePolling   = "polling"
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
	StateTimedOut  = "timedOut"
)

// Handle represents one active poll session. It owns its timer and flags
// exclusively; no state is shared across sessions.
type Handle struct {
	workflowID  string
	source      Source
	opts        Options
	transitions *event.Publisher[Transition]

	cancelFn context.CancelFunc
	done     chan struct{}

	cancelOnce   sync.Once
	terminalOnce sync.Once
	cancelled    atomic.Bool

	tracker *progress.Progress
	span    *tracing.Span

	mu        sync.RWMutex
	state     string
	lastState status.State
	lastTick  time.Time
	final     *status.Status
	err       error
	lastErr   error
}

// WorkflowID returns the identifier this session polls.
func (h *Handle) WorkflowID() string { return h.workflowID }

// Done is closed once the session reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// State returns the current session state.
func (h *Handle) State() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Err returns the terminal error, nil unless the session failed, timed out
// or was cancelled.
func (h *Handle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Final returns a copy of the terminal status observation when present.
func (h *Handle) Final() *status.Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.final.Clone()
}

// LastTransientError returns the most recent swallowed fetch error.
func (h *Handle) LastTransientError() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastErr
}

// Progress returns a snapshot of the session poll counters.
func (h *Handle) Progress() progress.Progress {
	return h.tracker.Snapshot()
}

// Cancel stops the session. Idempotent; no callback fires on a cancelled
// session and no further status fetches are issued. A response already in
// flight is discarded.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() {
		h.cancelled.Store(true)
		h.cancelFn()
	})
}

// Wait blocks until the session reaches a terminal state and returns the
// final observation. It layers a blocking call over the callback contract;
// the callbacks still fire as configured.
func (h *Handle) Wait(ctx context.Context, timeout time.Duration) (*status.Status, error) {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}
	select {
	case <-h.done:
		h.mu.RLock()
		defer h.mu.RUnlock()
		return h.final.Clone(), h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeoutCh:
		return nil, fmt.Errorf("%w %q after %s", ErrTimeout, h.workflowID, timeout)
	}
}

// run is the session loop. Fetches happen synchronously on this goroutine so
// ticks are serialized per workflow; the ticker drops ticks that fire while
// a slow fetch is still in flight.
func (h *Handle) run(ctx context.Context) {
	deadline := clock.Now().Add(h.opts.Timeout)
	tickCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(h.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-tickCtx.Done():
			if ctx.Err() != nil || h.cancelled.Load() {
				h.finishCancelled()
			} else {
				h.finishFailed(StateTimedOut, nil,
					fmt.Errorf("%w %q after %s", ErrTimeout, h.workflowID, h.opts.Timeout))
			}
			return
		case <-ticker.C:
			if h.tick(tickCtx) {
				return
			}
		}
	}
}

// tick issues one status fetch. It returns true when the session reached a
// terminal state.
func (h *Handle) tick(ctx context.Context) bool {
	h.accountTick()

	observed, err := h.source.Status(ctx, h.workflowID)
	if h.cancelled.Load() {
		// Stale response, the handle was cancelled while the fetch was in
		// flight.
		return false
	}
	if err != nil {
		if ctx.Err() != nil {
			// The deadline or cancellation interrupted the fetch; the outer
			// select resolves the outcome.
			return false
		}
		// Transient miss: swallowed, polling continues up to the timeout.
		progress.UpdateCtx(ctx, progress.Delta{TransientErrors: 1})
		h.mu.Lock()
		h.lastErr = err
		h.mu.Unlock()
		return false
	}

	progress.UpdateCtx(ctx, progress.Delta{Updates: 1})
	h.observe(ctx, observed)
	if h.opts.OnUpdate != nil {
		h.opts.OnUpdate(observed.Clone())
	}

	switch {
	case observed.State.IsCompleted():
		h.finishCompleted(observed)
		return true
	case observed.State.IsFailed():
		h.finishFailed(StateFailed, observed,
			fmt.Errorf("%w: %s", ErrWorkflowFailed, observed.Error))
		return true
	case observed.State == status.StateCancelled:
		h.finishFailed(StateFailed, observed,
			fmt.Errorf("%w: %s", ErrWorkflowCancelled, h.workflowID))
		return true
	}
	return false
}

// accountTick updates tick counters, deriving the number of ticks the ticker
// dropped while the previous fetch was still in flight.
func (h *Handle) accountTick() {
	now := clock.Now()
	h.mu.Lock()
	last := h.lastTick
	h.lastTick = now
	h.mu.Unlock()

	delta := progress.Delta{Ticks: 1}
	if !last.IsZero() {
		if gap := now.Sub(last); gap > h.opts.Interval {
			if skipped := int(gap/h.opts.Interval) - 1; skipped > 0 {
				delta.SkippedTicks = skipped
			}
		}
	}
	h.tracker.Update(delta)
}

// observe records the state transition and publishes it when a transition
// publisher is wired.
func (h *Handle) observe(ctx context.Context, observed *status.Status) {
	h.mu.Lock()
	previous := h.lastState
	h.lastState = observed.State
	h.mu.Unlock()

	if previous == observed.State {
		return
	}
	h.span.AddEvent("workflow.transition", map[string]string{
		"from": string(previous),
		"to":   string(observed.State),
	})
	if h.transitions == nil {
		return
	}
	_ = h.transitions.Publish(ctx, &event.Event[Transition]{
		Context: &event.Context{
			WorkflowID: h.workflowID,
			EventType:  "workflow.transition",
		},
		Data: &Transition{
			WorkflowID: h.workflowID,
			From:       previous,
			To:         observed.State,
			Observed:   observed.Clone(),
		},
	})
}

func (h *Handle) finishCompleted(observed *status.Status) {
	h.terminalOnce.Do(func() {
		h.setFinal(StateCompleted, observed, nil)
		tracing.EndSpan(h.span, nil)
		if h.opts.OnComplete != nil {
			h.opts.OnComplete(observed.Results)
		}
		close(h.done)
	})
}

func (h *Handle) finishFailed(state string, observed *status.Status, err error) {
	h.terminalOnce.Do(func() {
		h.setFinal(state, observed, err)
		tracing.EndSpan(h.span, err)
		if h.opts.OnFailed != nil {
			h.opts.OnFailed(err)
		}
		close(h.done)
	})
}

func (h *Handle) finishCancelled() {
	h.terminalOnce.Do(func() {
		h.setFinal(StateCancelled, nil, ErrCancelled)
		h.span.AddEvent("cancelled", nil)
		tracing.EndSpan(h.span, nil)
		close(h.done)
	})
}

func (h *Handle) setFinal(state string, observed *status.Status, err error) {
	h.mu.Lock()
	h.state = state
	h.final = observed
	h.err = err
	h.mu.Unlock()
}
