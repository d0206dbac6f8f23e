package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/opmesh/core"
	"github.com/hupe1980/opmesh/history"
	"github.com/hupe1980/opmesh/logging"
	"github.com/hupe1980/opmesh/session"
)

// Options configures an Engine.
type Options struct {
	// Contexts receives step results and supplies relevant context to later
	// steps. Defaults to a session.Store with default limits.
	Contexts core.ContextStore

	// Sink receives step and workflow events. Defaults to NoOpSink.
	Sink core.EventSink

	// History keeps finished executions. Defaults to a history.InMemoryStore.
	History core.ExecutionStore

	// MaxParallelism bounds concurrently running steps of one parallel
	// workflow. Zero means unbounded.
	MaxParallelism int

	Clock  core.Clock
	Logger logging.Logger
}

// Engine runs workflows. It exclusively owns its workflow definitions and is
// safe for concurrent use.
type Engine struct {
	resilience     core.ResilientExecutor
	contexts       core.ContextStore
	sink           core.EventSink
	history        core.ExecutionStore
	maxParallelism int
	clock          core.Clock
	logger         logging.Logger

	mu        sync.RWMutex
	workflows map[string]core.WorkflowDefinition

	activeMu sync.RWMutex
	active   map[string]*run
}

// New creates an engine dispatching every step through resilient.
func New(resilient core.ResilientExecutor, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Sink:   NoOpSink{},
		Clock:  core.SystemClock{},
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Contexts == nil {
		opts.Contexts = session.NewStore(func(o *session.Options) { o.Logger = opts.Logger })
	}
	if opts.Sink == nil {
		opts.Sink = NoOpSink{}
	}
	if opts.History == nil {
		opts.History = history.NewInMemoryStore(history.DefaultMaxEntries)
	}
	if opts.Clock == nil {
		opts.Clock = core.SystemClock{}
	}

	return &Engine{
		resilience:     resilient,
		contexts:       opts.Contexts,
		sink:           opts.Sink,
		history:        opts.History,
		maxParallelism: opts.MaxParallelism,
		clock:          opts.Clock,
		logger:         logging.OrNoOp(opts.Logger),
		workflows:      make(map[string]core.WorkflowDefinition),
		active:         make(map[string]*run),
	}
}

// DefineWorkflow registers a workflow under name. Registering an existing
// name replaces the previous definition.
func (e *Engine) DefineWorkflow(name string, steps []core.StepDefinition, options core.WorkflowOptions) error {
	def := core.WorkflowDefinition{Name: name, Steps: steps, Options: options}
	if err := validate(def); err != nil {
		return err
	}
	def = def.Clone()

	e.mu.Lock()
	_, replaced := e.workflows[name]
	e.workflows[name] = def
	e.mu.Unlock()

	if replaced {
		e.logger.Warn("Workflow redefined", "workflow", name, "steps", len(steps))
	} else {
		e.logger.Debug("Workflow defined", "workflow", name, "steps", len(steps), "parallel", options.Parallel)
	}
	return nil
}

// RemoveWorkflow unregisters a workflow and reports whether it existed.
// Running executions of it are not affected.
func (e *Engine) RemoveWorkflow(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.workflows[name]
	delete(e.workflows, name)
	return ok
}

// Workflow returns a copy of the named definition.
func (e *Engine) Workflow(name string) (core.WorkflowDefinition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	def, ok := e.workflows[name]
	if !ok {
		return core.WorkflowDefinition{}, false
	}
	return def.Clone(), true
}

// Workflows returns the registered workflow names in sorted order.
func (e *Engine) Workflows() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := slices.Collect(maps.Keys(e.workflows))
	sort.Strings(names)
	return names
}

// ExecuteWorkflow runs the named workflow for sessionID with params layered
// over every step's own parameters.
//
// The returned execution is complete even when steps failed; inspect its
// StepResults. An error is returned only for engine-level failures: an
// unknown workflow (nil execution, core.ErrWorkflowNotFound) or ctx being
// cancelled before the workflow finished (status failed).
func (e *Engine) ExecuteWorkflow(ctx context.Context, name, sessionID string, params map[string]any) (*core.WorkflowExecution, error) {
	def, ok := e.Workflow(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrWorkflowNotFound, name)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	exec := &core.WorkflowExecution{
		ID:           core.NewID(),
		WorkflowName: name,
		SessionID:    sessionID,
		Parameters:   maps.Clone(params),
		StartedAt:    e.clock.Now(),
		Status:       core.StatusRunning,
		Steps:        make([]core.StepResult, 0, len(def.Steps)),
	}
	r := &run{exec: exec, cancel: cancel}

	e.track(r)
	defer e.untrack(exec.ID)

	e.logger.Info("Workflow started",
		"workflow", name,
		"execution_id", exec.ID,
		"session_id", sessionID,
		"steps", len(def.Steps),
		"parallel", def.Options.Parallel,
	)

	var runErr error
	if def.Options.Parallel {
		runErr = e.runParallel(runCtx, def, r)
	} else {
		runErr = e.runSequential(runCtx, def, r)
	}

	finished := e.clock.Now()
	final := r.finish(runErr, finished)

	e.sink.Notify(ctx, core.NewWorkflowEvent(final, finished))

	if err := e.history.Save(context.WithoutCancel(ctx), final); err != nil {
		e.logger.Error("Execution not saved", "execution_id", final.ID, "error", err)
	}

	logging.Workflow(e.logger, name, len(final.Steps), finished.Sub(final.StartedAt), string(final.Status), final.Error)

	return final, runErr
}

// Execution returns a snapshot of a running execution or, failing that, the
// stored record of a finished one.
func (e *Engine) Execution(ctx context.Context, id string) (*core.WorkflowExecution, error) {
	e.activeMu.RLock()
	r, ok := e.active[id]
	e.activeMu.RUnlock()
	if ok {
		return r.snapshot(), nil
	}

	exec, err := e.history.Get(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrExecutionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load execution %s: %w", id, err)
	}
	return exec, nil
}

// Active returns snapshots of the executions currently running, oldest first.
func (e *Engine) Active() []*core.WorkflowExecution {
	e.activeMu.RLock()
	out := make([]*core.WorkflowExecution, 0, len(e.active))
	for _, r := range e.active {
		out = append(out, r.snapshot())
	}
	e.activeMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Cancel stops a running execution. Steps already in flight observe the
// cancellation through their context; no further sequential step starts.
func (e *Engine) Cancel(id string) error {
	e.activeMu.RLock()
	r, ok := e.active[id]
	e.activeMu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrExecutionNotFound, id)
	}
	r.cancel()
	return nil
}

func (e *Engine) track(r *run) {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	e.active[r.exec.ID] = r
}

func (e *Engine) untrack(id string) {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	delete(e.active, id)
}

func (e *Engine) emitStep(ctx context.Context, r *run, sr core.StepResult) {
	e.sink.Notify(ctx, core.NewStepEvent(r.exec, sr, e.clock.Now()))
}

func validate(def core.WorkflowDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("%w: empty name", core.ErrInvalidWorkflow)
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("%w: workflow %s has no steps", core.ErrInvalidWorkflow, def.Name)
	}
	seen := make(map[string]bool, len(def.Steps))
	for i, s := range def.Steps {
		if s.Name == "" {
			return fmt.Errorf("%w: workflow %s step %d has no name", core.ErrInvalidWorkflow, def.Name, i)
		}
		if s.Provider == "" {
			return fmt.Errorf("%w: workflow %s step %s has no provider", core.ErrInvalidWorkflow, def.Name, s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: workflow %s has duplicate step %s", core.ErrInvalidWorkflow, def.Name, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// run is the engine-side state of one execution. Only the goroutine running
// ExecuteWorkflow and the step goroutines it spawns write to exec, always
// under mu.
type run struct {
	mu     sync.Mutex
	exec   *core.WorkflowExecution
	cancel context.CancelFunc
}

func (r *run) append(sr core.StepResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exec.Steps = append(r.exec.Steps, sr)
}

func (r *run) setSteps(results []core.StepResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exec.Steps = results
}

func (r *run) snapshot() *core.WorkflowExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exec.Clone()
}

// finish sets the terminal status and returns the final snapshot.
func (r *run) finish(err error, at time.Time) *core.WorkflowExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exec.CompletedAt = &at
	if err != nil {
		r.exec.Status = core.StatusFailed
		r.exec.Error = err.Error()
	} else {
		r.exec.Status = core.StatusCompleted
	}
	return r.exec.Clone()
}
