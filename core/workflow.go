package core

import (
	"maps"
	"slices"
	"time"
)

// StepDefinition binds one unit of work to a provider, action and type.
// Condition is optional; see engine.EvaluateCondition for its grammar.
type StepDefinition struct {
	Name       string         `json:"name" yaml:"name"`
	Provider   string         `json:"provider" yaml:"provider"`
	Action     string         `json:"action" yaml:"action"`
	Type       string         `json:"type,omitempty" yaml:"type,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Condition  string         `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Operation converts the step into an operation descriptor.
func (s StepDefinition) Operation() Operation {
	return NewOperation(s.Provider, s.Action, s.Type, s.Parameters)
}

// WorkflowOptions tunes how a workflow runs.
type WorkflowOptions struct {
	// Parallel dispatches every step concurrently and waits for all of them.
	Parallel bool `json:"parallel" yaml:"parallel"`

	// RetryOnFailure dispatches a failed step once more before recording it.
	RetryOnFailure bool `json:"retryOnFailure" yaml:"retry_on_failure"`

	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// WorkflowDefinition is a named, reusable ordered list of steps.
type WorkflowDefinition struct {
	Name    string           `json:"name"`
	Steps   []StepDefinition `json:"steps"`
	Options WorkflowOptions  `json:"options"`
}

// Clone returns a copy that shares nothing mutable with the receiver.
func (d WorkflowDefinition) Clone() WorkflowDefinition {
	steps := make([]StepDefinition, len(d.Steps))
	for i, s := range d.Steps {
		s.Parameters = maps.Clone(s.Parameters)
		steps[i] = s
	}
	d.Steps = steps
	return d
}

// ExecutionStatus is the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
)

// StepResult is the outcome of one executed step.
type StepResult struct {
	Name       string `json:"name"`
	Success    bool   `json:"success"`
	Result     Result `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// WorkflowExecution records one run of a workflow. It is mutated only by the
// engine that created it and must be treated as immutable once Status has
// left StatusRunning.
type WorkflowExecution struct {
	ID           string          `json:"id"`
	WorkflowName string          `json:"workflowName"`
	SessionID    string          `json:"sessionId"`
	Parameters   map[string]any  `json:"parameters,omitempty"`
	StartedAt    time.Time       `json:"startedAt"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
	Status       ExecutionStatus `json:"status"`
	Steps        []StepResult    `json:"steps"`
	Error        string          `json:"error,omitempty"`
}

// Done reports whether the execution reached a terminal status.
func (e *WorkflowExecution) Done() bool {
	return e.Status != StatusRunning
}

// Step returns the result recorded under name.
func (e *WorkflowExecution) Step(name string) (StepResult, bool) {
	for _, s := range e.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// Clone returns a copy of the execution with its own slices and maps.
// Result values inside the steps are shared.
func (e *WorkflowExecution) Clone() *WorkflowExecution {
	c := *e
	c.Parameters = maps.Clone(e.Parameters)
	c.Steps = slices.Clone(e.Steps)
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
