// Package logging provides a minimal logging interface and adapters for opmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the resilience manager, context store and engine use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - MeshLogger with component / session scoped attributes
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - ProviderCall, CircuitTransition, Step and Workflow domain helpers
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	mgr := resilience.New(exec, func(o *resilience.Options) { o.Logger = logger })
//
// The design keeps the interface minimal so any structured logger can be plugged in.
package logging
