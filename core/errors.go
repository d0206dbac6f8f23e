package core

import "errors"

// Sentinel errors shared by all components. Components wrap them with %w so
// callers can match with errors.Is.
var (
	// ErrProviderUnavailable is returned when the provider circuit is open and
	// no failover candidate exists.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrMaxRetriesExceeded is returned when every attempt failed. The error
	// also wraps the last executor failure.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// ErrWorkflowNotFound is returned when executing an unregistered workflow.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrStepExecution marks a failure captured while executing a single step.
	ErrStepExecution = errors.New("step execution failed")

	// ErrInvalidWorkflow is returned by DefineWorkflow for malformed definitions.
	ErrInvalidWorkflow = errors.New("invalid workflow definition")

	// ErrExecutionNotFound is returned by execution lookups with an unknown id.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrInvalidConfig is returned when configuration fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")
)
