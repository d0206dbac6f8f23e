package core

import (
	"time"

	"github.com/google/uuid"
)

// EventKind distinguishes step from workflow completion notifications.
type EventKind string

const (
	// EventKindStep is emitted after every executed step.
	EventKindStep EventKind = "step"

	// EventKindWorkflow is emitted once per workflow execution.
	EventKindWorkflow EventKind = "workflow"
)

// Event is the notification handed to an EventSink. After emission it should
// be treated as immutable.
//
// ID is the workflow execution id for both kinds; Step names the step for
// step events.
type Event struct {
	Kind      EventKind       `json:"kind"`
	ID        string          `json:"id"`
	Workflow  string          `json:"workflow"`
	SessionID string          `json:"session_id"`
	Step      string          `json:"step,omitempty"`
	Status    ExecutionStatus `json:"status"`
	Result    any             `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewStepEvent builds the notification for a settled step.
func NewStepEvent(exec *WorkflowExecution, step StepResult, at time.Time) Event {
	ev := Event{
		Kind:      EventKindStep,
		ID:        exec.ID,
		Workflow:  exec.WorkflowName,
		SessionID: exec.SessionID,
		Step:      step.Name,
		Status:    StatusCompleted,
		Result:    step.Result,
		Timestamp: at.UTC(),
	}
	if !step.Success {
		ev.Status = StatusFailed
		ev.Error = step.Error
	}
	return ev
}

// NewWorkflowEvent builds the notification for a finished execution.
func NewWorkflowEvent(exec *WorkflowExecution, at time.Time) Event {
	return Event{
		Kind:      EventKindWorkflow,
		ID:        exec.ID,
		Workflow:  exec.WorkflowName,
		SessionID: exec.SessionID,
		Status:    exec.Status,
		Result:    exec.Steps,
		Error:     exec.Error,
		Timestamp: at.UTC(),
	}
}

// NewID returns a random identifier (UUID v4 string) used for records and
// executions.
func NewID() string { return uuid.NewString() }
