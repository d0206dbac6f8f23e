// Package core provides the foundational domain types and collaborator
// interfaces used by opmesh. It defines the shared abstractions for:
//
//   - Operations (immutable descriptors of a provider call)
//   - Sessions (caller-scoped logs of recent operation results)
//   - Workflows (named step definitions and their executions)
//   - Events (step / workflow completion notifications)
//   - Pluggable executors, event sinks, clocks and execution stores
//
// The package keeps implementation concerns (circuit breaking, context
// bounding, orchestration, persistence) out of scope and exposes small
// interfaces so the resilience manager, context store and engine can be
// wired together or replaced by fakes in tests.
package core
