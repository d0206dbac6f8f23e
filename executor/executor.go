package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/opmesh/core"
)

// Func adapts an ordinary function to core.Executor.
type Func func(ctx context.Context, provider string, op core.Operation) (core.Result, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, provider string, op core.Operation) (core.Result, error) {
	return f(ctx, provider, op)
}

// Router dispatches each call to the executor registered for its provider,
// falling back to a default executor when one is set.
type Router struct {
	mu       sync.RWMutex
	routes   map[string]core.Executor
	fallback core.Executor
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[string]core.Executor)}
}

// Handle routes provider to exec (chainable). A later call replaces the route.
func (r *Router) Handle(provider string, exec core.Executor) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[provider] = exec
	return r
}

// Fallback sets the executor for providers without a route (chainable).
func (r *Router) Fallback(exec core.Executor) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = exec
	return r
}

// Providers returns the routed provider names in sorted order.
func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute implements core.Executor.
func (r *Router) Execute(ctx context.Context, provider string, op core.Operation) (core.Result, error) {
	r.mu.RLock()
	exec, ok := r.routes[provider]
	if !ok {
		exec = r.fallback
	}
	r.mu.RUnlock()

	if exec == nil {
		return nil, fmt.Errorf("no executor for provider %q", provider)
	}
	return exec.Execute(ctx, provider, op)
}

// Mock returns canned results keyed by provider and action. Calls without a
// canned result echo the operation back.
type Mock struct {
	mu        sync.RWMutex
	responses map[string]core.Result
}

// NewMock creates a mock with no canned results.
func NewMock() *Mock {
	return &Mock{responses: make(map[string]core.Result)}
}

// AddResponse registers the result returned for provider and action.
func (m *Mock) AddResponse(provider, action string, result core.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[provider+"/"+action] = result
}

// Execute implements core.Executor.
func (m *Mock) Execute(ctx context.Context, provider string, op core.Operation) (core.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	res, ok := m.responses[provider+"/"+op.Action]
	m.mu.RUnlock()
	if ok {
		return res, nil
	}
	return map[string]any{
		"provider": provider,
		"action":   op.Action,
		"type":     op.Type,
		"status":   "ok",
	}, nil
}

var (
	_ core.Executor = Func(nil)
	_ core.Executor = (*Router)(nil)
	_ core.Executor = (*Mock)(nil)
)
