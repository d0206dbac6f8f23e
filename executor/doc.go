// Package executor provides core.Executor implementations and adapters.
//
// The orchestration core never talks to a backend directly; it hands every
// operation to a core.Executor. This package supplies the building blocks
// for wiring real backends and for testing resilience behavior without them:
//
//   - Func adapts a plain function.
//   - Router dispatches by provider name to per-provider executors.
//   - Mock returns canned results keyed by provider and action.
//   - FaultInjector wraps another executor and fails a configurable share
//     of calls. It is a test double and must not be used in production.
//
// LLM-backed executors live in the anthropic and openai subpackages. They
// render the operation as a JSON prompt and decode the model's reply with
// ParseResult.
package executor
