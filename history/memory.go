package history

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/opmesh/core"
)

// DefaultMaxEntries bounds an InMemoryStore created with a non-positive limit.
const DefaultMaxEntries = 1000

// InMemoryStore is a bounded, concurrency-safe core.ExecutionStore.
// Executions are stored as clones; callers never share memory with it.
type InMemoryStore struct {
	mu         sync.RWMutex
	maxEntries int
	byID       map[string]*core.WorkflowExecution
	order      []string // insertion order, oldest first
}

// NewInMemoryStore creates a store holding at most maxEntries executions.
func NewInMemoryStore(maxEntries int) *InMemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &InMemoryStore{
		maxEntries: maxEntries,
		byID:       make(map[string]*core.WorkflowExecution),
	}
}

// Save stores a copy of exec, replacing any execution with the same id.
func (s *InMemoryStore) Save(_ context.Context, exec *core.WorkflowExecution) error {
	if exec == nil || exec.ID == "" {
		return fmt.Errorf("history: execution without id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[exec.ID]; !exists {
		s.order = append(s.order, exec.ID)
	}
	s.byID[exec.ID] = exec.Clone()

	for len(s.order) > s.maxEntries {
		delete(s.byID, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

// Get returns the execution with the given id or core.ErrExecutionNotFound.
func (s *InMemoryStore) Get(_ context.Context, id string) (*core.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrExecutionNotFound, id)
	}
	return exec.Clone(), nil
}

// ListBySession returns the executions of a session, most recent first.
// A non-positive limit returns all of them.
func (s *InMemoryStore) ListBySession(_ context.Context, sessionID string, limit int) ([]*core.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.WorkflowExecution
	for i := len(s.order) - 1; i >= 0; i-- {
		exec := s.byID[s.order[i]]
		if exec.SessionID != sessionID {
			continue
		}
		out = append(out, exec.Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of stored executions.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

var _ core.ExecutionStore = (*InMemoryStore)(nil)
