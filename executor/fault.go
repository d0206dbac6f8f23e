package executor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hupe1980/opmesh/core"
)

// ErrInjectedFault is returned (wrapped) by FaultInjector for simulated failures.
var ErrInjectedFault = errors.New("injected fault")

// FaultOptions configures a FaultInjector.
type FaultOptions struct {
	// FailureRate is the probability in [0, 1] that a call fails.
	FailureRate float64

	// Latency is added before every call. The wait honors ctx.
	Latency time.Duration

	// Seed makes the failure sequence reproducible.
	Seed uint64

	// Providers limits injection to these providers. Empty means all.
	Providers []string
}

// FaultInjector wraps an executor and fails a share of calls at random.
type FaultInjector struct {
	next    core.Executor
	opts    FaultOptions
	targets map[string]bool

	mu   sync.Mutex
	rng  *rand.Rand
	down map[string]bool
}

// NewFaultInjector wraps next.
func NewFaultInjector(next core.Executor, optFns ...func(o *FaultOptions)) *FaultInjector {
	opts := FaultOptions{FailureRate: 0.1, Seed: 1}
	for _, fn := range optFns {
		fn(&opts)
	}
	targets := make(map[string]bool, len(opts.Providers))
	for _, p := range opts.Providers {
		targets[p] = true
	}
	return &FaultInjector{
		next:    next,
		opts:    opts,
		targets: targets,
		rng:     rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		down:    make(map[string]bool),
	}
}

// SetDown forces every call to provider to fail until cleared.
func (f *FaultInjector) SetDown(provider string, down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if down {
		f.down[provider] = true
	} else {
		delete(f.down, provider)
	}
}

// Execute implements core.Executor.
func (f *FaultInjector) Execute(ctx context.Context, provider string, op core.Operation) (core.Result, error) {
	if f.opts.Latency > 0 {
		t := time.NewTimer(f.opts.Latency)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if f.shouldFail(provider) {
		return nil, fmt.Errorf("%w: provider %s action %s", ErrInjectedFault, provider, op.Action)
	}
	return f.next.Execute(ctx, provider, op)
}

func (f *FaultInjector) shouldFail(provider string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[provider] {
		return true
	}
	if len(f.targets) > 0 && !f.targets[provider] {
		return false
	}
	return f.rng.Float64() < f.opts.FailureRate
}

var _ core.Executor = (*FaultInjector)(nil)
