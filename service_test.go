package flowwatch_test

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "github.com/viant/afs/embed"

	"github.com/flowwatch/flowwatch"
	"github.com/flowwatch/flowwatch/model/job"
	"github.com/flowwatch/flowwatch/model/status"
	"github.com/flowwatch/flowwatch/poller"
	"github.com/flowwatch/flowwatch/service/event"
)

//go:embed testdata/*
var embedFS embed.FS

func newTestService(t *testing.T, options ...flowwatch.Option) *flowwatch.Service {
	t.Helper()
	options = append(options, flowwatch.WithPollOptions(
		poller.WithInterval(10*time.Millisecond),
		poller.WithTimeout(5*time.Second)))
	srv, err := flowwatch.New(options...)
	require.NoError(t, err)
	require.NotNil(t, srv.Runner())

	ctx := context.Background()
	require.NoError(t, srv.Start(ctx))
	t.Cleanup(func() { _ = srv.Shutdown(ctx) })
	return srv
}

func TestServiceWorkflowCompletes(t *testing.T) {
	srv := newTestService(t)
	srv.Runner().Register("content/publish", func(ctx context.Context, aJob *job.Job) (map[string]interface{}, error) {
		return map[string]interface{}{"pages": 3, "site": aJob.Input["site"]}, nil
	})

	var mu sync.Mutex
	var completions []map[string]interface{}
	ctx := context.Background()
	aJob := &job.Job{Kind: "content/publish", Input: map[string]interface{}{"site": "acme"}}
	workflowID, handle, err := srv.StartWorkflow(ctx, aJob,
		poller.WithOnComplete(func(results map[string]interface{}) {
			mu.Lock()
			completions = append(completions, results)
			mu.Unlock()
		}))
	require.NoError(t, err)
	require.NotNil(t, handle)
	assert.Equal(t, workflowID, handle.WorkflowID())

	final, err := handle.Wait(ctx, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, final)
	assert.Equal(t, status.StateCompleted, final.State)
	assert.Equal(t, "acme", final.Results["site"])
	assert.Equal(t, poller.StateCompleted, handle.State())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, completions, 1)
	assert.Equal(t, "acme", completions[0]["site"])
}

func TestServiceWorkflowFails(t *testing.T) {
	srv := newTestService(t)
	srv.Runner().Register("content/publish", func(ctx context.Context, aJob *job.Job) (map[string]interface{}, error) {
		return nil, fmt.Errorf("render stage aborted")
	})

	failed := make(chan error, 1)
	ctx := context.Background()
	_, handle, err := srv.StartWorkflow(ctx, &job.Job{Kind: "content/publish"},
		poller.WithOnFailed(func(err error) { failed <- err }))
	require.NoError(t, err)

	_, err = handle.Wait(ctx, 5*time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, poller.ErrWorkflowFailed))
	assert.Contains(t, err.Error(), "render stage aborted")
	assert.Equal(t, poller.StateFailed, handle.State())

	select {
	case cbErr := <-failed:
		assert.True(t, errors.Is(cbErr, poller.ErrWorkflowFailed))
	case <-time.After(time.Second):
		t.Fatal("failure callback never fired")
	}
}

func TestServiceTransitionEvents(t *testing.T) {
	srv := newTestService(t)
	srv.Runner().Register("content/publish", func(ctx context.Context, aJob *job.Job) (map[string]interface{}, error) {
		return map[string]interface{}{}, nil
	})

	var mu sync.Mutex
	var seen []poller.Transition
	event.SetListenerOf[poller.Transition](srv.Events(), func(e *event.Event[poller.Transition]) {
		mu.Lock()
		seen = append(seen, *e.Data)
		mu.Unlock()
	})

	ctx := context.Background()
	workflowID, handle, err := srv.StartWorkflow(ctx, &job.Job{Kind: "content/publish"})
	require.NoError(t, err)
	_, err = handle.Wait(ctx, 5*time.Second)
	require.NoError(t, err)

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		var last *poller.Transition
		if len(seen) > 0 {
			last = &seen[len(seen)-1]
		}
		mu.Unlock()
		if last != nil && last.To == status.StateCompleted {
			assert.Equal(t, workflowID, last.WorkflowID)
			return
		}
		select {
		case <-deadline:
			t.Fatal("completed transition event never observed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestServiceCancelWorkflow(t *testing.T) {
	srv := newTestService(t)
	started := make(chan struct{})
	srv.Runner().Register("content/publish", func(ctx context.Context, aJob *job.Job) (map[string]interface{}, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx := context.Background()
	_, handle, err := srv.StartWorkflow(ctx, &job.Job{Kind: "content/publish"})
	require.NoError(t, err)
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("handler never started")
	}

	require.NoError(t, srv.CancelWorkflow(ctx, handle))

	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("cancelled session never settled")
	}
	assert.Equal(t, poller.StateCancelled, handle.State())
	assert.True(t, errors.Is(handle.Err(), poller.ErrCancelled))

	// Repeat cancellation stays a no-op.
	require.NoError(t, srv.CancelWorkflow(ctx, handle))
}

func TestServiceLoadJob(t *testing.T) {
	os.Setenv("FLOWWATCH_SITE", "acme")
	defer os.Unsetenv("FLOWWATCH_SITE")

	srv, err := flowwatch.New(
		flowwatch.WithMetaBaseURL("embed:///testdata"),
		flowwatch.WithMetaFsOptions(&embedFS))
	require.NoError(t, err)

	ctx := context.Background()
	aJob, err := srv.LoadJob(ctx, "publish")
	require.NoError(t, err)
	assert.Equal(t, "content/publish", aJob.Kind)
	assert.Equal(t, "acme-release", aJob.Name)
	assert.Equal(t, "acme", aJob.Input["site"])
	assert.Equal(t, 30, aJob.TimeoutSec)

	// Cached until refreshed.
	os.Setenv("FLOWWATCH_SITE", "globex")
	cached, err := srv.LoadJob(ctx, "publish")
	require.NoError(t, err)
	assert.Equal(t, "acme-release", cached.Name)

	srv.RefreshJob("publish")
	reloaded, err := srv.LoadJob(ctx, "publish")
	require.NoError(t, err)
	assert.Equal(t, "globex-release", reloaded.Name)
}

func TestServiceWatch(t *testing.T) {
	srv := newTestService(t)
	srv.Runner().Register("content/publish", func(ctx context.Context, aJob *job.Job) (map[string]interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	})

	ctx := context.Background()
	workflowID, err := srv.Runner().Start(ctx, &job.Job{Kind: "content/publish"})
	require.NoError(t, err)

	handle, err := srv.Watch(ctx, workflowID)
	require.NoError(t, err)
	final, err := handle.Wait(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, status.StateCompleted, final.State)
}
