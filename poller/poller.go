package poller

import (
	"context"

	"github.com/flowwatch/flowwatch/model/status"
	"github.com/flowwatch/flowwatch/progress"
	"github.com/flowwatch/flowwatch/service/event"
	"github.com/flowwatch/flowwatch/tracing"
)

// Source provides workflow status observations. It is implemented by the
// HTTP client and by the in-process runner.
type Source interface {
	Status(ctx context.Context, workflowID string) (*status.Status, error)
}

// Transition is published for every observed workflow state change.
type Transition struct {
	WorkflowID string        `json:"workflowID"`
	From       status.State  `json:"from"`
	To         status.State  `json:"to"`
	Observed   *status.Status `json:"observed,omitempty"`
}

// Poller drives poll sessions against a status source. One Poller can serve
// any number of concurrent sessions; each returned Handle owns its own timer
// and flags exclusively.
type Poller struct {
	source      Source
	defaults    []Option
	transitions *event.Publisher[Transition]
}

// New creates a poller over the supplied status source.
func New(source Source, options ...PollerOption) (*Poller, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	ret := &Poller{source: source}
	for _, option := range options {
		option(ret)
	}
	return ret, nil
}

// Start begins polling the workflow until a terminal status is observed, the
// timeout elapses, or the handle is cancelled. Exactly one of
// OnComplete/OnFailed fires, exactly once; neither fires after Cancel.
// Cancelling the supplied ctx is equivalent to calling Cancel on the handle.
func (p *Poller) Start(ctx context.Context, workflowID string, options ...Option) (*Handle, error) {
	if workflowID == "" {
		return nil, ErrInvalidWorkflowID
	}
	opts := Options{}
	opts.apply(append(append([]Option{}, p.defaults...), options...))

	runCtx, cancel := context.WithCancel(ctx)
	handle := &Handle{
		workflowID:  workflowID,
		source:      p.source,
		opts:        opts,
		transitions: p.transitions,
		cancelFn:    cancel,
		done:        make(chan struct{}),
		state:       StatePolling,
	}
	runCtx, handle.tracker = progress.WithNewTracker(runCtx, workflowID, nil)
	runCtx, handle.span = tracing.StartSpan(runCtx, "poller.poll "+workflowID, "CLIENT")
	handle.span.WithAttributes(map[string]string{"workflow.id": workflowID})

	go handle.run(runCtx)
	return handle, nil
}
