package memory

import (
	"context"
	"sync"

	"github.com/flowwatch/flowwatch/model/status"
	"github.com/flowwatch/flowwatch/service/dao"
)

// Service implements in-memory storage of workflow status observations. All
// operations are thread-safe and return copies of the underlying objects to
// prevent data races when callers mutate the returned instances.
type Service struct {
	statuses map[string]*status.Status
	mux      sync.RWMutex
}

// Compile-time check that Service implements the generic DAO interface.
var _ dao.Service[string, status.Status] = (*Service)(nil)

// Save persists (a clone of) the supplied status.
func (s *Service) Save(_ context.Context, st *status.Status) error {
	if st == nil {
		return dao.ErrNilEntity
	}
	if st.WorkflowID == "" {
		return dao.ErrInvalidID
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	s.statuses[st.WorkflowID] = st.Clone()
	return nil
}

// Load retrieves a copy of the latest status or dao.ErrNotFound.
func (s *Service) Load(_ context.Context, id string) (*status.Status, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}

	s.mux.RLock()
	st, ok := s.statuses[id]
	s.mux.RUnlock()

	if !ok {
		return nil, dao.ErrNotFound
	}
	return st.Clone(), nil
}

// Delete removes a status record.
func (s *Service) Delete(_ context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	if _, ok := s.statuses[id]; !ok {
		return dao.ErrNotFound
	}
	delete(s.statuses, id)
	return nil
}

// List returns copies of all stored statuses. A "state" parameter narrows the
// result to workflows currently in that state.
func (s *Service) List(_ context.Context, parameters ...*dao.Parameter) ([]*status.Status, error) {
	var stateFilter status.State
	for _, p := range parameters {
		if p != nil && p.Name == "state" {
			if v, ok := p.Value.(string); ok {
				stateFilter = status.State(v)
			}
		}
	}

	s.mux.RLock()
	defer s.mux.RUnlock()

	out := make([]*status.Status, 0, len(s.statuses))
	for _, st := range s.statuses {
		if stateFilter != "" && st.State != stateFilter {
			continue
		}
		out = append(out, st.Clone())
	}
	return out, nil
}

// New constructor.
func New() *Service {
	return &Service{statuses: map[string]*status.Status{}}
}
