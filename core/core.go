package core

import (
	"context"
	"time"
)

// Executor performs a single provider call. Implementations may fail with any
// error; callers treat every failure the same way.
type Executor interface {
	Execute(ctx context.Context, provider string, op Operation) (Result, error)
}

// EventSink is notified about step and workflow completion. Notify is fire and
// forget from the caller's point of view; delivery policy belongs to the sink.
type EventSink interface {
	Notify(ctx context.Context, ev Event)
}

// Clock supplies wall-clock time. Inject a fake to make circuit timing and
// session expiry deterministic in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current local time.
func (SystemClock) Now() time.Time { return time.Now() }

// ResilientExecutor executes an operation through circuit breaking, retry and
// failover. resilience.Manager is the default implementation.
type ResilientExecutor interface {
	ExecuteWithResilience(ctx context.Context, provider string, op Operation) (Result, error)
}

// ContextStore keeps the bounded per-session operation history consulted and
// appended to by the engine. session.Store is the default implementation.
type ContextStore interface {
	GetRelevantContext(sessionID string, op Operation) []OperationRecord
	AddOperationResult(sessionID string, op Operation, result Result) (string, error)
}

// ExecutionStore persists finished workflow executions for later lookup.
type ExecutionStore interface {
	Save(ctx context.Context, exec *WorkflowExecution) error
	Get(ctx context.Context, id string) (*WorkflowExecution, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*WorkflowExecution, error)
}
