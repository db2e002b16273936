package event

import "time"

// Context identifies the workflow and poll session an event belongs to.
type Context struct {
	WorkflowID  string `json:"workflowID"`
	Kind        string `json:"kind,omitempty"`
	EventType   string `json:"eventType"`
	TimeTakenMs int    `json:"timeTakenMs,omitempty"`
}

// Event carries a typed payload together with its context.
type Event[T any] struct {
	Context   *Context               `json:"context"`
	CreatedAt time.Time              `json:"createdAt"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Data      *T                     `json:"data"`
}
