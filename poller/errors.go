package poller

import "errors"

// Sentinel errors reported through OnFailed or Wait. Callers distinguish the
// outcome kinds via errors.Is.

var (
	// ErrTimeout indicates that no terminal status was observed within the
	// configured timeout bound.
	ErrTimeout = errors.New("poller: timeout waiting for workflow")

	// ErrCancelled is returned from Wait when the handle was cancelled before
	// a terminal status was observed. Callbacks never fire on cancellation.
	ErrCancelled = errors.New("poller: cancelled")

	// ErrWorkflowFailed wraps the backend-reported failure message of a
	// workflow that reached the failed state.
	ErrWorkflowFailed = errors.New("poller: workflow failed")

	// ErrWorkflowCancelled indicates the backend reported the workflow as
	// cancelled server-side.
	ErrWorkflowCancelled = errors.New("poller: workflow cancelled")

	// ErrInvalidWorkflowID indicates an empty workflow identifier.
	ErrInvalidWorkflowID = errors.New("poller: workflow id is empty")

	// ErrSourceRequired indicates the poller has no status source to query.
	ErrSourceRequired = errors.New("poller: status source is required")
)
