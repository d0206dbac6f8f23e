// Package opmesh wires the resilience manager, context store, workflow
// engine, execution history and background scheduler into one object.
//
// Most programs only need this package plus an executor:
//
//	mesh, err := opmesh.New(executor.NewMock())
//	if err != nil { ... }
//	defer mesh.Close()
//
//	_ = mesh.DefineWorkflow("provision", steps, core.WorkflowOptions{})
//	exec, err := mesh.ExecuteWorkflow(ctx, "provision", "session-1", nil)
//
// The individual components remain reachable through accessors for callers
// that need finer control.
package opmesh

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/opmesh/config"
	"github.com/hupe1980/opmesh/core"
	"github.com/hupe1980/opmesh/engine"
	"github.com/hupe1980/opmesh/history"
	"github.com/hupe1980/opmesh/history/sqlite"
	"github.com/hupe1980/opmesh/logging"
	"github.com/hupe1980/opmesh/resilience"
	"github.com/hupe1980/opmesh/scheduler"
	"github.com/hupe1980/opmesh/session"
)

// Names of the background tasks registered by Start.
const (
	TaskSessionCleanup = "session-cleanup"
	TaskHistoryPrune   = "history-prune"
)

// Options configures a Mesh.
type Options struct {
	// Config supplies every tunable. Defaults to config.Default().
	Config config.Config

	// Sink receives step and workflow events.
	Sink core.EventSink

	// History overrides the store selected by Config.History.
	History core.ExecutionStore

	Clock  core.Clock
	Logger logging.Logger
}

// Mesh is the assembled orchestrator.
type Mesh struct {
	cfg    config.Config
	clock  core.Clock
	logger logging.Logger

	resilience *resilience.Manager
	contexts   *session.Store
	engine     *engine.Engine
	history    core.ExecutionStore
	scheduler  *scheduler.Scheduler

	closeHistory func() error
}

// New assembles a Mesh dispatching provider calls to exec.
func New(exec core.Executor, optFns ...func(o *Options)) (*Mesh, error) {
	if exec == nil {
		return nil, fmt.Errorf("opmesh: nil executor")
	}
	opts := Options{
		Config: config.Default(),
		Sink:   engine.NoOpSink{},
		Clock:  core.SystemClock{},
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = core.SystemClock{}
	}
	cfg := opts.Config
	logger := logging.OrNoOp(opts.Logger)

	m := &Mesh{cfg: cfg, clock: opts.Clock, logger: logger, closeHistory: func() error { return nil }}

	m.history = opts.History
	if m.history == nil {
		switch cfg.History.Driver {
		case "sqlite":
			store, err := sqlite.Open(cfg.History.Path)
			if err != nil {
				return nil, fmt.Errorf("open history: %w", err)
			}
			m.history = store
			m.closeHistory = store.Close
		default:
			m.history = history.NewInMemoryStore(cfg.History.MaxEntries)
		}
	}

	m.resilience = resilience.New(exec, func(o *resilience.Options) {
		o.Threshold = cfg.Resilience.FailureThreshold
		o.ResetTimeout = cfg.Resilience.ResetTimeout.Std()
		o.MaxRetries = cfg.Resilience.MaxRetries
		o.BaseDelay = cfg.Resilience.BaseDelay.Std()
		o.MaxDelay = cfg.Resilience.MaxDelay.Std()
		o.Providers = cfg.Resilience.Providers
		o.Clock = opts.Clock
		o.Logger = component(logger, "resilience")
	})

	m.contexts = session.NewStore(func(o *session.Options) {
		o.MaxContextSize = cfg.Context.MaxContextSize
		o.CompressionThreshold = cfg.Context.CompressionThreshold
		o.RelevantLimit = cfg.Context.RelevantLimit
		o.MaxAge = cfg.Context.SessionMaxAge.Std()
		o.Clock = opts.Clock
		o.Logger = component(logger, "session")
	})

	m.engine = engine.New(m.resilience, func(o *engine.Options) {
		o.Contexts = m.contexts
		o.Sink = opts.Sink
		o.History = m.history
		o.MaxParallelism = cfg.Engine.MaxParallelism
		o.Clock = opts.Clock
		o.Logger = component(logger, "engine")
	})

	m.scheduler = scheduler.New(func(o *scheduler.Options) {
		o.Logger = component(logger, "scheduler")
	})

	return m, nil
}

// component scopes l to a component name when it supports it.
func component(l logging.Logger, name string) logging.Logger {
	if ml, ok := l.(*logging.MeshLogger); ok {
		return ml.WithComponent(name)
	}
	return l
}

// Start schedules the background maintenance tasks: expiring idle sessions
// every context.cleanup_interval and, for stores that support it, pruning
// history older than history.retention. Tasks stop when ctx is done or on
// Close.
func (m *Mesh) Start(ctx context.Context) error {
	if interval := m.cfg.Context.CleanupInterval.Std(); interval > 0 {
		err := m.scheduler.Every(ctx, TaskSessionCleanup, interval, func(context.Context) error {
			m.contexts.CleanupExpiredSessions(m.cfg.Context.SessionMaxAge.Std())
			return nil
		})
		if err != nil {
			return err
		}
	}

	if pruner, ok := m.history.(interface {
		DeleteBefore(ctx context.Context, t time.Time) (int64, error)
	}); ok && m.cfg.History.Retention > 0 {
		interval := m.cfg.Context.CleanupInterval.Std()
		if interval <= 0 {
			interval = time.Hour
		}
		err := m.scheduler.Every(ctx, TaskHistoryPrune, interval, func(ctx context.Context) error {
			n, err := pruner.DeleteBefore(ctx, m.clock.Now().Add(-m.cfg.History.Retention.Std()))
			if n > 0 {
				m.logger.Info("History pruned", "executions", n)
			}
			return err
		})
		if err != nil {
			return err
		}
	}

	m.logger.Info("Mesh started", "tasks", m.scheduler.Tasks())
	return nil
}

// Close stops background tasks and releases the history store.
func (m *Mesh) Close() error {
	m.scheduler.Stop()
	return m.closeHistory()
}

// DefineWorkflow registers a workflow. See engine.Engine.DefineWorkflow.
func (m *Mesh) DefineWorkflow(name string, steps []core.StepDefinition, options core.WorkflowOptions) error {
	return m.engine.DefineWorkflow(name, steps, options)
}

// ExecuteWorkflow runs a registered workflow. See engine.Engine.ExecuteWorkflow.
func (m *Mesh) ExecuteWorkflow(ctx context.Context, name, sessionID string, params map[string]any) (*core.WorkflowExecution, error) {
	return m.engine.ExecuteWorkflow(ctx, name, sessionID, params)
}

// Execute sends a single operation through the resilience layer and records
// its result in the session, outside any workflow.
func (m *Mesh) Execute(ctx context.Context, sessionID string, op core.Operation) (core.Result, error) {
	result, err := m.resilience.ExecuteWithResilience(ctx, op.Provider, op)
	if err != nil {
		return nil, err
	}
	if _, err := m.contexts.AddOperationResult(sessionID, op, result); err != nil {
		return nil, fmt.Errorf("record result: %w", err)
	}
	return result, nil
}

// Execution looks up a running or finished execution.
func (m *Mesh) Execution(ctx context.Context, id string) (*core.WorkflowExecution, error) {
	return m.engine.Execution(ctx, id)
}

// Session returns a snapshot of a session's operation log.
func (m *Mesh) Session(id string) (core.Session, bool) {
	return m.contexts.Session(id)
}

// Providers returns the health of every known provider.
func (m *Mesh) Providers() []resilience.Provider {
	return m.resilience.Providers()
}

// Resilience returns the resilience manager.
func (m *Mesh) Resilience() *resilience.Manager { return m.resilience }

// Contexts returns the context store.
func (m *Mesh) Contexts() *session.Store { return m.contexts }

// Engine returns the workflow engine.
func (m *Mesh) Engine() *engine.Engine { return m.engine }

// History returns the execution history store.
func (m *Mesh) History() core.ExecutionStore { return m.history }

// Scheduler returns the background task scheduler.
func (m *Mesh) Scheduler() *scheduler.Scheduler { return m.scheduler }
