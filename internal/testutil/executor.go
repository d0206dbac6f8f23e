package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/opmesh/core"
)

// Call is one invocation observed by ScriptedExecutor.
type Call struct {
	Provider  string
	Operation core.Operation
}

// HandlerFunc scripts the outcome of a call.
type HandlerFunc func(ctx context.Context, op core.Operation) (core.Result, error)

// ScriptedExecutor is a core.Executor whose behavior is scripted per
// provider. Unscripted providers fail.
type ScriptedExecutor struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	calls    []Call
}

// NewScriptedExecutor creates an executor with no scripted providers.
func NewScriptedExecutor() *ScriptedExecutor {
	return &ScriptedExecutor{handlers: map[string]HandlerFunc{}}
}

// On scripts provider with fn (chainable).
func (e *ScriptedExecutor) On(provider string, fn HandlerFunc) *ScriptedExecutor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[provider] = fn
	return e
}

// Succeed scripts provider to always return result (chainable).
func (e *ScriptedExecutor) Succeed(provider string, result core.Result) *ScriptedExecutor {
	return e.On(provider, func(context.Context, core.Operation) (core.Result, error) { return result, nil })
}

// Fail scripts provider to always return err (chainable).
func (e *ScriptedExecutor) Fail(provider string, err error) *ScriptedExecutor {
	return e.On(provider, func(context.Context, core.Operation) (core.Result, error) { return nil, err })
}

// Execute implements core.Executor.
func (e *ScriptedExecutor) Execute(ctx context.Context, provider string, op core.Operation) (core.Result, error) {
	e.mu.Lock()
	e.calls = append(e.calls, Call{Provider: provider, Operation: op.Clone()})
	fn, ok := e.handlers[provider]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no script for provider %q", provider)
	}
	return fn(ctx, op)
}

// Calls returns every observed call in order.
func (e *ScriptedExecutor) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// CallCount returns how many calls targeted provider.
func (e *ScriptedExecutor) CallCount(provider string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c.Provider == provider {
			n++
		}
	}
	return n
}
