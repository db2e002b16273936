// Package progress provides a lightweight tracker that keeps aggregated poll
// counters (ticks issued, skipped ticks, transient errors) for a single poll
// session. The tracker instance lives in the session context so every
// component receiving the context can atomically update the counters via the
// Delta helper without requiring a global registry.

package progress

import (
	"context"
	"sync"
	"time"
)

// Delta represents an incremental counter change emitted by the poll loop.
// The fields are signed and can therefore be either positive (increment) or
// negative (decrement).
type Delta struct {
	Ticks           int
	SkippedTicks    int
	TransientErrors int
	Updates         int
}

// Progress keeps aggregated counters for one poll session. It is safe for
// concurrent use.
type Progress struct {
	// Identification, informative only, filled when the session starts.
	WorkflowID string
	StartedAt  time.Time

	// Counters, modified via Update().
	Ticks           int
	SkippedTicks    int
	TransientErrors int
	Updates         int

	sync.Mutex
	onChange func(Progress)
}

// Update applies the supplied delta to the tracker. It is safe to call from
// multiple goroutines. If an onChange callback has been registered it will be
// invoked with a copy of the updated tracker outside the critical section so
// that the callback can perform slow operations (e.g. JSON encoding, I/O)
// without blocking the poll loop.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}

	p.Lock()

	p.Ticks += d.Ticks
	p.SkippedTicks += d.SkippedTicks
	p.TransientErrors += d.TransientErrors
	p.Updates += d.Updates

	snapshot := *p
	cb := p.onChange

	p.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy of the tracker suitable for read-only inspection.
func (p *Progress) Snapshot() Progress {
	if p == nil {
		return Progress{}
	}
	p.Lock()
	defer p.Unlock()
	return *p
}

// OnChange registers a callback that is invoked after every successful
// Update. Passing nil disables the callback. Only one callback can be
// active; subsequent calls overwrite the previous value.
func (p *Progress) OnChange(cb func(Progress)) {
	if p == nil {
		return
	}
	p.Lock()
	p.onChange = cb
	p.Unlock()
}

type trackerKeyT struct{}

var trackerKey trackerKeyT

// WithNewTracker creates a new Progress tracker, embeds it in a derived
// context and returns both. The caller may optionally pass an onChange
// callback invoked after every counter update.
func WithNewTracker(ctx context.Context, workflowID string, onChange func(Progress)) (context.Context, *Progress) {
	if ctx == nil {
		ctx = context.Background()
	}
	tr := &Progress{
		WorkflowID: workflowID,
		StartedAt:  time.Now(),
		onChange:   onChange,
	}
	return context.WithValue(ctx, trackerKey, tr), tr
}

// FromContext extracts the Progress tracker from ctx. The second return
// value is false when the context carries no tracker.
func FromContext(ctx context.Context) (*Progress, bool) {
	if ctx == nil {
		return nil, false
	}
	tr, ok := ctx.Value(trackerKey).(*Progress)
	return tr, ok
}

// UpdateCtx looks up the tracker in ctx (if any) and applies the supplied
// delta.
func UpdateCtx(ctx context.Context, d Delta) {
	if tr, ok := FromContext(ctx); ok {
		tr.Update(d)
	}
}
