// Package engine implements the orchestration layer of opmesh.
//
// The Engine owns a registry of named workflow definitions and runs them on
// behalf of caller sessions. Every step is dispatched through a
// core.ResilientExecutor, so circuit breaking, retry and failover apply to
// each provider call, and its result is recorded into a core.ContextStore
// where later steps can find it.
//
// # Execution modes
//
// Sequential workflows run their steps strictly in order. After each step a
// step event is emitted and the step's own condition is evaluated against
// its own result; a false condition stops the workflow early. Stopping
// early is not a failure.
//
// Parallel workflows dispatch every step at once (optionally bounded by
// MaxParallelism) and wait for all of them. A failing step never cancels
// its siblings, and results are reported in definition order.
//
// # Failures
//
// Step failures are captured in the StepResult and never abort the
// workflow. Only engine-level problems do: an unknown workflow name
// (core.ErrWorkflowNotFound) or cancellation of the caller's context
// between sequential steps, which marks the execution failed.
//
// # Conditions
//
//	success          continue when the step succeeded
//	failure          continue when the step failed
//	result.a.b.0     continue when the value at that path is truthy
//	anything else    continue
//
// # Events
//
// A core.EventSink receives one step event per executed step and one
// workflow event per execution. SinkFunc, MultiSink, LoggingSink and
// NoOpSink cover the common cases.
package engine
