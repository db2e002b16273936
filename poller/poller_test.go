package poller_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowwatch/flowwatch/model/status"
	"github.com/flowwatch/flowwatch/poller"
	"github.com/flowwatch/flowwatch/service/event"
)

// scriptedSource replays a fixed sequence of observations; the last step
// repeats once the script is exhausted.
type scriptedSource struct {
	mu    sync.Mutex
	steps []step
	index int
	calls int32
	// inFlight trips overlap to catch concurrent fetches for the same
	// workflow.
	inFlight int32
	overlap  int32
	delay    time.Duration
}

type step struct {
	state   status.State
	results map[string]interface{}
	errMsg  string
	err     error
}

func (s *scriptedSource) Status(ctx context.Context, workflowID string) (*status.Status, error) {
	if !atomic.CompareAndSwapInt32(&s.inFlight, 0, 1) {
		atomic.AddInt32(&s.overlap, 1)
	}
	defer atomic.StoreInt32(&s.inFlight, 0)
	atomic.AddInt32(&s.calls, 1)

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	current := s.steps[s.index]
	if s.index < len(s.steps)-1 {
		s.index++
	}
	s.mu.Unlock()

	if current.err != nil {
		return nil, current.err
	}
	return &status.Status{
		WorkflowID: workflowID,
		State:      current.state,
		Results:    current.results,
		Error:      current.errMsg,
	}, nil
}

func (s *scriptedSource) callCount() int32 {
	return atomic.LoadInt32(&s.calls)
}

func TestPollerCompletes(t *testing.T) {
	source := &scriptedSource{steps: []step{
		{state: status.StatePending},
		{state: status.StateRunning},
		{state: status.StateCompleted, results: map[string]interface{}{"blocks": 3}},
	}}
	p, err := poller.New(source)
	require.NoError(t, err)

	var completed int32
	var failed int32
	resultsCh := make(chan map[string]interface{}, 1)

	handle, err := p.Start(context.Background(), "wf-1",
		poller.WithInterval(10*time.Millisecond),
		poller.WithTimeout(2*time.Second),
		poller.WithOnComplete(func(results map[string]interface{}) {
			atomic.AddInt32(&completed, 1)
			resultsCh <- results
		}),
		poller.WithOnFailed(func(error) {
			atomic.AddInt32(&failed, 1)
		}),
	)
	require.NoError(t, err)

	final, err := handle.Wait(context.Background(), 2*time.Second)
	assert.NoError(t, err)
	require.NotNil(t, final)
	assert.Equal(t, status.StateCompleted, final.State)

	select {
	case results := <-resultsCh:
		assert.Equal(t, 3, results["blocks"])
	case <-time.After(time.Second):
		t.Fatal("OnComplete did not fire")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&completed))
	assert.Equal(t, int32(0), atomic.LoadInt32(&failed))
	assert.Equal(t, poller.StateCompleted, handle.State())

	// No further fetches once terminal.
	callsAtTerminal := source.callCount()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, callsAtTerminal, source.callCount())
}

func TestPollerFailure(t *testing.T) {
	source := &scriptedSource{steps: []step{
		{state: status.StateRunning},
		{state: status.StateFailed, errMsg: "generation blew up"},
	}}
	p, err := poller.New(source)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	handle, err := p.Start(context.Background(), "wf-failed",
		poller.WithInterval(10*time.Millisecond),
		poller.WithOnFailed(func(err error) { errCh <- err }),
	)
	require.NoError(t, err)

	_, waitErr := handle.Wait(context.Background(), 2*time.Second)
	assert.True(t, errors.Is(waitErr, poller.ErrWorkflowFailed))
	assert.Contains(t, waitErr.Error(), "generation blew up")

	select {
	case cbErr := <-errCh:
		assert.True(t, errors.Is(cbErr, poller.ErrWorkflowFailed))
	case <-time.After(time.Second):
		t.Fatal("OnFailed did not fire")
	}
	assert.Equal(t, poller.StateFailed, handle.State())
	require.NotNil(t, handle.Final())
	assert.Equal(t, "generation blew up", handle.Final().Error)
}

func TestPollerTransientErrorsRetried(t *testing.T) {
	source := &scriptedSource{steps: []step{
		{err: errors.New("connection refused")},
		{err: errors.New("503 service unavailable")},
		{state: status.StateCompleted, results: map[string]interface{}{"ok": true}},
	}}
	p, err := poller.New(source)
	require.NoError(t, err)

	handle, err := p.Start(context.Background(), "wf-flaky",
		poller.WithInterval(10*time.Millisecond),
		poller.WithTimeout(2*time.Second),
	)
	require.NoError(t, err)

	final, err := handle.Wait(context.Background(), 2*time.Second)
	assert.NoError(t, err)
	require.NotNil(t, final)
	assert.Equal(t, status.StateCompleted, final.State)
	assert.Equal(t, 2, handle.Progress().TransientErrors)
	assert.Error(t, handle.LastTransientError())
}

func TestPollerTimeout(t *testing.T) {
	source := &scriptedSource{steps: []step{
		{state: status.StateRunning},
	}}
	p, err := poller.New(source)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	handle, err := p.Start(context.Background(), "wf-stuck",
		poller.WithInterval(10*time.Millisecond),
		poller.WithTimeout(80*time.Millisecond),
		poller.WithOnFailed(func(err error) { errCh <- err }),
	)
	require.NoError(t, err)

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, poller.ErrTimeout))
	case <-time.After(2 * time.Second):
		t.Fatal("OnFailed did not fire on timeout")
	}
	assert.Equal(t, poller.StateTimedOut, handle.State())

	callsAtTimeout := source.callCount()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, callsAtTimeout, source.callCount())
}

func TestPollerCancelBeforeFirstTick(t *testing.T) {
	source := &scriptedSource{steps: []step{
		{state: status.StateRunning},
	}}
	p, err := poller.New(source)
	require.NoError(t, err)

	var callbacks int32
	handle, err := p.Start(context.Background(), "wf-cancel",
		poller.WithInterval(200*time.Millisecond),
		poller.WithOnComplete(func(map[string]interface{}) { atomic.AddInt32(&callbacks, 1) }),
		poller.WithOnFailed(func(error) { atomic.AddInt32(&callbacks, 1) }),
	)
	require.NoError(t, err)

	handle.Cancel()

	_, waitErr := handle.Wait(context.Background(), time.Second)
	assert.True(t, errors.Is(waitErr, poller.ErrCancelled))

	// Cancelled before the first tick: no fetch was ever issued and no
	// callback fires.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(0), source.callCount())
	assert.Equal(t, int32(0), atomic.LoadInt32(&callbacks))
	assert.Equal(t, poller.StateCancelled, handle.State())
}

func TestPollerCancelIdempotent(t *testing.T) {
	source := &scriptedSource{steps: []step{{state: status.StateRunning}}}
	p, err := poller.New(source)
	require.NoError(t, err)

	handle, err := p.Start(context.Background(), "wf-twice",
		poller.WithInterval(20*time.Millisecond))
	require.NoError(t, err)

	handle.Cancel()
	handle.Cancel()

	_, waitErr := handle.Wait(context.Background(), time.Second)
	assert.True(t, errors.Is(waitErr, poller.ErrCancelled))
	assert.Equal(t, poller.StateCancelled, handle.State())
}

func TestPollerContextCancellation(t *testing.T) {
	source := &scriptedSource{steps: []step{{state: status.StateRunning}}}
	p, err := poller.New(source)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var callbacks int32
	handle, err := p.Start(ctx, "wf-ctx",
		poller.WithInterval(10*time.Millisecond),
		poller.WithOnFailed(func(error) { atomic.AddInt32(&callbacks, 1) }),
	)
	require.NoError(t, err)

	time.Sleep(35 * time.Millisecond)
	cancel()

	_, waitErr := handle.Wait(context.Background(), time.Second)
	assert.True(t, errors.Is(waitErr, poller.ErrCancelled))
	assert.Equal(t, int32(0), atomic.LoadInt32(&callbacks))
}

func TestPollerValidation(t *testing.T) {
	_, err := poller.New(nil)
	assert.True(t, errors.Is(err, poller.ErrSourceRequired))

	source := &scriptedSource{steps: []step{{state: status.StateRunning}}}
	p, err := poller.New(source)
	require.NoError(t, err)
	_, err = p.Start(context.Background(), "")
	assert.True(t, errors.Is(err, poller.ErrInvalidWorkflowID))
}

func TestPollerSerializesTicks(t *testing.T) {
	// A fetch three times slower than the interval: ticks that fire while a
	// fetch is in flight are dropped, never overlapped.
	source := &scriptedSource{
		delay: 35 * time.Millisecond,
		steps: []step{
			{state: status.StateRunning},
			{state: status.StateRunning},
			{state: status.StateCompleted},
		},
	}
	p, err := poller.New(source)
	require.NoError(t, err)

	handle, err := p.Start(context.Background(), "wf-slow",
		poller.WithInterval(10*time.Millisecond),
		poller.WithTimeout(2*time.Second),
	)
	require.NoError(t, err)

	_, waitErr := handle.Wait(context.Background(), 2*time.Second)
	assert.NoError(t, waitErr)
	assert.Equal(t, int32(0), atomic.LoadInt32(&source.overlap))
	assert.Equal(t, int32(3), source.callCount())
}

func TestPollerOnUpdate(t *testing.T) {
	source := &scriptedSource{steps: []step{
		{state: status.StatePending},
		{state: status.StateRunning},
		{state: status.StateCompleted},
	}}
	p, err := poller.New(source)
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []status.State
	handle, err := p.Start(context.Background(), "wf-updates",
		poller.WithInterval(10*time.Millisecond),
		poller.WithOnUpdate(func(observed *status.Status) {
			mu.Lock()
			seen = append(seen, observed.State)
			mu.Unlock()
		}),
	)
	require.NoError(t, err)

	_, waitErr := handle.Wait(context.Background(), 2*time.Second)
	assert.NoError(t, waitErr)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []status.State{status.StatePending, status.StateRunning, status.StateCompleted}, seen)
}

func TestPollerTransitionEvents(t *testing.T) {
	source := &scriptedSource{steps: []step{
		{state: status.StateRunning},
		{state: status.StateCompleted},
	}}
	events := event.New()
	transitions := make(chan poller.Transition, 4)
	event.SetListenerOf[poller.Transition](events, func(e *event.Event[poller.Transition]) {
		if e != nil && e.Data != nil {
			transitions <- *e.Data
		}
	})

	p, err := poller.New(source,
		poller.WithTransitionPublisher(event.PublisherOf[poller.Transition](events)))
	require.NoError(t, err)

	handle, err := p.Start(context.Background(), "wf-events",
		poller.WithInterval(10*time.Millisecond))
	require.NoError(t, err)
	_, waitErr := handle.Wait(context.Background(), 2*time.Second)
	require.NoError(t, waitErr)

	var observed []status.State
	deadline := time.After(time.Second)
	for len(observed) < 2 {
		select {
		case transition := <-transitions:
			observed = append(observed, transition.To)
		case <-deadline:
			t.Fatalf("expected 2 transitions, got %v", observed)
		}
	}
	assert.Equal(t, []status.State{status.StateRunning, status.StateCompleted}, observed)
}
