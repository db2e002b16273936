package client

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Status when the backend does not know the
// workflow identifier.
var ErrNotFound = errors.New("client: workflow not found")

// APIError carries a non-2xx backend response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: backend returned %d: %s", e.StatusCode, e.Message)
}
