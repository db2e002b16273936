package status

import "time"

// State represents the current state of a workflow as reported by the
// status endpoint.
type State string

// Workflow state constants
const (
	StatePending   State = "pending"
	StateScheduled State = "scheduled"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// IsCompleted reports whether the workflow finished successfully.
func (s State) IsCompleted() bool { return s == StateCompleted }

// IsFailed reports whether the workflow terminated with an error.
func (s State) IsFailed() bool { return s == StateFailed }

// Status is a single observation of a workflow reported by the backend.
// Results is populated only for completed workflows, Error only for failed
// ones.
type Status struct {
	WorkflowID string                 `json:"workflow_id"`
	State      State                  `json:"status"`
	Results    map[string]interface{} `json:"results,omitempty"`
	Error      string                 `json:"error,omitempty"`
	UpdatedAt  time.Time              `json:"updatedAt,omitempty"`
}

// Clone returns a deep-enough copy so that callers may mutate the result
// without affecting stored observations.
func (s *Status) Clone() *Status {
	if s == nil {
		return nil
	}
	clone := *s
	if s.Results != nil {
		clone.Results = make(map[string]interface{}, len(s.Results))
		for k, v := range s.Results {
			clone.Results[k] = v
		}
	}
	return &clone
}
