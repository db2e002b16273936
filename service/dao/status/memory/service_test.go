package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowwatch/flowwatch/model/status"
	"github.com/flowwatch/flowwatch/service/dao"
)

func TestServiceCRUD(t *testing.T) {
	srv := New()
	ctx := context.Background()

	assert.True(t, errors.Is(srv.Save(ctx, nil), dao.ErrNilEntity))
	assert.True(t, errors.Is(srv.Save(ctx, &status.Status{}), dao.ErrInvalidID))

	observed := &status.Status{
		WorkflowID: "wf-1",
		State:      status.StateRunning,
	}
	assert.NoError(t, srv.Save(ctx, observed))

	// Stored copies are isolated from caller mutations.
	observed.State = status.StateFailed
	loaded, err := srv.Load(ctx, "wf-1")
	assert.NoError(t, err)
	assert.Equal(t, status.StateRunning, loaded.State)

	_, err = srv.Load(ctx, "missing")
	assert.True(t, errors.Is(err, dao.ErrNotFound))

	assert.NoError(t, srv.Delete(ctx, "wf-1"))
	assert.True(t, errors.Is(srv.Delete(ctx, "wf-1"), dao.ErrNotFound))
}

func TestServiceListFilter(t *testing.T) {
	srv := New()
	ctx := context.Background()

	assert.NoError(t, srv.Save(ctx, &status.Status{WorkflowID: "a", State: status.StateRunning}))
	assert.NoError(t, srv.Save(ctx, &status.Status{WorkflowID: "b", State: status.StateCompleted}))
	assert.NoError(t, srv.Save(ctx, &status.Status{WorkflowID: "c", State: status.StateRunning}))

	all, err := srv.List(ctx)
	assert.NoError(t, err)
	assert.Len(t, all, 3)

	running, err := srv.List(ctx, dao.NewParameter("state", string(status.StateRunning)))
	assert.NoError(t, err)
	assert.Len(t, running, 2)
}
