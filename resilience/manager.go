package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/opmesh/core"
	"github.com/hupe1980/opmesh/logging"
)

// Options configures a Manager.
type Options struct {
	// Threshold is the number of consecutive failures that opens a circuit.
	Threshold uint

	// ResetTimeout is the cool-down after the last failure before an open
	// circuit may be probed again (half_open).
	ResetTimeout time.Duration

	// MaxRetries bounds the executor invocations of one call, across every
	// provider visited during failover.
	MaxRetries int

	// BaseDelay and MaxDelay shape the backoff: min(BaseDelay*2^attempt, MaxDelay).
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Providers are registered up front. Registration order is the order in
	// which failover candidates are tried.
	Providers []string

	// Clock defaults to core.SystemClock.
	Clock core.Clock

	// Sleep waits between attempts. Defaults to SleepContext.
	Sleep func(ctx context.Context, d time.Duration) error

	// Logger defaults to a NoOp logger.
	Logger logging.Logger
}

// DefaultOptions returns the stock breaker and retry settings.
func DefaultOptions() Options {
	return Options{
		Threshold:    5,
		ResetTimeout: 60 * time.Second,
		MaxRetries:   3,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		Clock:        core.SystemClock{},
		Sleep:        SleepContext,
		Logger:       logging.NoOpLogger{},
	}
}

// Manager tracks provider health and executes operations with circuit
// breaking, retry with backoff and failover. It is safe for concurrent use:
// every read-modify-write of a provider record happens under one mutex, and
// the executor is always invoked without holding it.
type Manager struct {
	executor core.Executor
	opts     Options

	mu        sync.Mutex
	providers map[string]*Provider
	order     []string
}

// New creates a Manager dispatching to executor.
func New(executor core.Executor, optFns ...func(o *Options)) *Manager {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Threshold == 0 {
		opts.Threshold = 1
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultOptions().MaxDelay
	}
	if opts.Clock == nil {
		opts.Clock = core.SystemClock{}
	}
	if opts.Sleep == nil {
		opts.Sleep = SleepContext
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	m := &Manager{
		executor:  executor,
		opts:      opts,
		providers: map[string]*Provider{},
	}
	m.RegisterProvider(opts.Providers...)
	return m
}

// RegisterProvider adds providers with a closed circuit. Already known names
// are left untouched.
func (m *Manager) RegisterProvider(names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range names {
		m.providerLocked(name)
	}
}

// Provider returns a snapshot of the named provider record.
func (m *Manager) Provider(name string) (Provider, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[name]
	if !ok {
		return Provider{}, false
	}
	return p.snapshot(), true
}

// Providers returns snapshots of every provider in registration order.
func (m *Manager) Providers() []Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Provider, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.providers[name].snapshot())
	}
	return out
}

// Reset force-closes the named circuit and clears its failure history.
// It reports whether the provider was known.
func (m *Manager) Reset(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[name]
	if !ok {
		return false
	}
	m.transitionLocked(p, StateClosed)
	p.ConsecutiveFailures = 0
	p.LastFailureAt = nil
	return true
}

// Backoff returns the delay inserted after the given 0-based failed attempt.
func (m *Manager) Backoff(attempt int) time.Duration {
	return Backoff(m.opts.BaseDelay, m.opts.MaxDelay, attempt)
}

// ExecuteWithResilience runs op against provider.
//
// Before each attempt the current provider's circuit is consulted. An open
// circuit whose cool-down has elapsed moves to half_open and is probed;
// otherwise the first other registered provider whose circuit is not open
// becomes current. With no candidate the call fails immediately with
// core.ErrProviderUnavailable. Failed attempts are followed by a backoff
// sleep; after MaxRetries failures the call fails with
// core.ErrMaxRetriesExceeded wrapping the last executor error.
func (m *Manager) ExecuteWithResilience(ctx context.Context, provider string, op core.Operation) (core.Result, error) {
	m.RegisterProvider(provider)

	current := provider
	var lastErr error
	for attempt := 0; attempt < m.opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next, err := m.admit(current)
		if err != nil {
			m.opts.Logger.Warn("Provider unavailable", "provider", current, "attempt", attempt)
			return nil, err
		}
		if next != current {
			m.opts.Logger.Info("Failing over", "from", current, "to", next, "attempt", attempt)
			current = next
		}

		start := time.Now()
		result, err := m.executor.Execute(ctx, current, op.WithProvider(current))
		logging.ProviderCall(m.opts.Logger, current, attempt, time.Since(start), err)
		if err == nil {
			m.recordSuccess(current)
			return result, nil
		}

		lastErr = err
		m.recordFailure(current)

		if attempt == m.opts.MaxRetries-1 {
			break
		}
		delay := m.Backoff(attempt)
		m.opts.Logger.Debug("Retrying after backoff", "provider", current, "attempt", attempt, "delay", delay)
		if err := m.opts.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: provider %s failed %d attempts: %w", core.ErrMaxRetriesExceeded, current, m.opts.MaxRetries, lastErr)
}

// admit decides which provider serves the next attempt.
func (m *Manager) admit(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.providerLocked(name)
	if p.State != StateOpen {
		return name, nil
	}

	if p.LastFailureAt == nil || !m.opts.Clock.Now().Before(p.LastFailureAt.Add(m.opts.ResetTimeout)) {
		m.transitionLocked(p, StateHalfOpen)
		return name, nil
	}

	for _, candidate := range m.order {
		if candidate == name {
			continue
		}
		if m.providers[candidate].State != StateOpen {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s circuit is open and no failover candidate exists", core.ErrProviderUnavailable, name)
}

func (m *Manager) recordSuccess(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.providerLocked(name)
	p.ConsecutiveFailures = 0
	if p.State != StateClosed {
		m.transitionLocked(p, StateClosed)
	}
}

func (m *Manager) recordFailure(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.providerLocked(name)
	p.ConsecutiveFailures++
	now := m.opts.Clock.Now()
	p.LastFailureAt = &now
	if p.ConsecutiveFailures >= m.opts.Threshold && p.State != StateOpen {
		m.transitionLocked(p, StateOpen)
	}
}

// providerLocked returns the record for name, registering it when unknown.
// Caller must hold m.mu.
func (m *Manager) providerLocked(name string) *Provider {
	p, ok := m.providers[name]
	if !ok {
		p = &Provider{Name: name, State: StateClosed}
		m.providers[name] = p
		m.order = append(m.order, name)
	}
	return p
}

// transitionLocked changes p's state and logs the change. Caller must hold m.mu.
func (m *Manager) transitionLocked(p *Provider, to CircuitState) {
	if p.State == to {
		return
	}
	from := p.State
	p.State = to
	logging.CircuitTransition(m.opts.Logger, p.Name, string(from), string(to), p.ConsecutiveFailures)
}

var _ core.ResilientExecutor = (*Manager)(nil)
