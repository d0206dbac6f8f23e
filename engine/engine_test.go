package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/opmesh/core"
	"github.com/hupe1980/opmesh/internal/testutil"
	"github.com/hupe1980/opmesh/resilience"
	"github.com/hupe1980/opmesh/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type harness struct {
	engine   *Engine
	executor *testutil.ScriptedExecutor
	contexts *session.Store
	sink     *testutil.RecordingSink
}

func newHarness(t *testing.T, optFns ...func(o *Options)) *harness {
	t.Helper()
	clock := testutil.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	sleeper := &testutil.SleepRecorder{Clock: clock}
	exec := testutil.NewScriptedExecutor()
	manager := resilience.New(exec, func(o *resilience.Options) {
		o.MaxRetries = 1
		o.Clock = clock
		o.Sleep = sleeper.Sleep
	})
	contexts := session.NewStore(func(o *session.Options) { o.Clock = clock })
	sink := &testutil.RecordingSink{}

	fns := append([]func(o *Options){func(o *Options) {
		o.Contexts = contexts
		o.Sink = sink
		o.Clock = clock
	}}, optFns...)

	return &harness{
		engine:   New(manager, fns...),
		executor: exec,
		contexts: contexts,
		sink:     sink,
	}
}

func stepNames(exec *core.WorkflowExecution) []string {
	names := make([]string, len(exec.Steps))
	for i, s := range exec.Steps {
		names[i] = s.Name
	}
	return names
}

func TestEngine_ProvisionScenario(t *testing.T) {
	h := newHarness(t)
	h.executor.Succeed("alpha", map[string]any{"id": 1}).Succeed("beta", map[string]any{"ok": true})

	require.NoError(t, h.engine.DefineWorkflow("provision", []core.StepDefinition{
		testutil.NewStep("step1").Provider("alpha").Action("create").Build(),
		testutil.NewStep("step2").Provider("beta").Action("verify").Condition("result.id").Build(),
	}, core.WorkflowOptions{}))

	exec, err := h.engine.ExecuteWorkflow(context.Background(), "provision", "s1", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, exec.Status)
	require.Len(t, exec.Steps, 2)
	assert.True(t, exec.Steps[0].Success)
	assert.True(t, exec.Steps[1].Success)
	assert.Equal(t, map[string]any{"id": 1}, exec.Steps[0].Result)
	assert.NotNil(t, exec.CompletedAt)
	assert.Empty(t, exec.Error)

	sess, ok := h.contexts.Session("s1")
	require.True(t, ok)
	assert.Len(t, sess.Operations, 2)
}

func TestEngine_SequentialShortCircuit(t *testing.T) {
	h := newHarness(t)
	h.executor.Succeed("a", "done").Succeed("b", "done").Succeed("c", "done")

	require.NoError(t, h.engine.DefineWorkflow("w", []core.StepDefinition{
		testutil.NewStep("A").Provider("a").Action("create").Condition("failure").Build(),
		testutil.NewStep("B").Provider("b").Action("create").Build(),
		testutil.NewStep("C").Provider("c").Action("create").Build(),
	}, core.WorkflowOptions{}))

	exec, err := h.engine.ExecuteWorkflow(context.Background(), "w", "s1", nil)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, exec.Status)
	assert.Equal(t, []string{"A"}, stepNames(exec))
	assert.Zero(t, h.executor.CallCount("b"))
	assert.Zero(t, h.executor.CallCount("c"))
	assert.Len(t, h.sink.ByKind(core.EventKindStep), 1)
}

func TestEngine_SequentialContinuesPastFailedStep(t *testing.T) {
	h := newHarness(t)
	h.executor.Fail("a", errBoom).Succeed("b", "ok")

	require.NoError(t, h.engine.DefineWorkflow("w", []core.StepDefinition{
		testutil.NewStep("A").Provider("a").Action("create").Build(),
		testutil.NewStep("B").Provider("b").Action("create").Build(),
	}, core.WorkflowOptions{}))

	exec, err := h.engine.ExecuteWorkflow(context.Background(), "w", "s1", nil)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, exec.Status)
	require.Len(t, exec.Steps, 2)
	assert.False(t, exec.Steps[0].Success)
	assert.Contains(t, exec.Steps[0].Error, "boom")
	assert.Contains(t, exec.Steps[0].Error, "step A")
	assert.Nil(t, exec.Steps[0].Result)
	assert.True(t, exec.Steps[1].Success)
}

func TestEngine_ParallelCompleteness(t *testing.T) {
	h := newHarness(t)
	h.executor.Succeed("x", "x-ok").Fail("y", errBoom).Succeed("z", "z-ok")

	require.NoError(t, h.engine.DefineWorkflow("w2", []core.StepDefinition{
		testutil.NewStep("X").Provider("x").Action("create").Build(),
		testutil.NewStep("Y").Provider("y").Action("create").Condition("success").Build(),
		testutil.NewStep("Z").Provider("z").Action("create").Build(),
	}, core.WorkflowOptions{Parallel: true}))

	exec, err := h.engine.ExecuteWorkflow(context.Background(), "w2", "s1", nil)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, exec.Status)
	assert.Equal(t, []string{"X", "Y", "Z"}, stepNames(exec))
	assert.True(t, exec.Steps[0].Success)
	assert.False(t, exec.Steps[1].Success)
	assert.True(t, exec.Steps[2].Success)
	assert.Equal(t, "x-ok", exec.Steps[0].Result)
	assert.Equal(t, "z-ok", exec.Steps[2].Result)
	assert.Len(t, h.sink.ByKind(core.EventKindStep), 3)
}

func TestEngine_ParallelDispatchesConcurrently(t *testing.T) {
	h := newHarness(t)
	var started sync.WaitGroup
	started.Add(3)
	release := make(chan struct{})
	block := func(ctx context.Context, op core.Operation) (core.Result, error) {
		started.Done()
		<-release
		return op.Action, nil
	}
	h.executor.On("x", block).On("y", block).On("z", block)

	require.NoError(t, h.engine.DefineWorkflow("w", []core.StepDefinition{
		testutil.NewStep("X").Provider("x").Action("a").Build(),
		testutil.NewStep("Y").Provider("y").Action("b").Build(),
		testutil.NewStep("Z").Provider("z").Action("c").Build(),
	}, core.WorkflowOptions{Parallel: true}))

	done := make(chan *core.WorkflowExecution)
	go func() {
		exec, _ := h.engine.ExecuteWorkflow(context.Background(), "w", "s1", nil)
		done <- exec
	}()

	started.Wait() // every step is in flight before any finishes
	close(release)
	exec := <-done
	assert.Len(t, exec.Steps, 3)
}

func TestEngine_MaxParallelism(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.MaxParallelism = 2 })
	var inFlight, peak int32
	handler := func(context.Context, core.Operation) (core.Result, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return "ok", nil
	}

	var steps []core.StepDefinition
	for _, p := range []string{"p1", "p2", "p3", "p4", "p5"} {
		h.executor.On(p, handler)
		steps = append(steps, testutil.NewStep(p).Provider(p).Action("get").Build())
	}
	require.NoError(t, h.engine.DefineWorkflow("w", steps, core.WorkflowOptions{Parallel: true}))

	exec, err := h.engine.ExecuteWorkflow(context.Background(), "w", "s1", nil)
	require.NoError(t, err)
	assert.Len(t, exec.Steps, 5)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestEngine_WorkflowNotFound(t *testing.T) {
	h := newHarness(t)
	exec, err := h.engine.ExecuteWorkflow(context.Background(), "missing", "s1", nil)
	assert.Nil(t, exec)
	assert.ErrorIs(t, err, core.ErrWorkflowNotFound)
	assert.Empty(t, h.sink.Events())
}

func TestEngine_ParameterLayering(t *testing.T) {
	h := newHarness(t)
	h.executor.Succeed("alpha", "first").Succeed("beta", "second")

	require.NoError(t, h.engine.DefineWorkflow("w", []core.StepDefinition{
		testutil.NewStep("one").Provider("alpha").Action("create").Type("vm").Param("size", "s").Param("zone", "a").Build(),
		testutil.NewStep("two").Provider("alpha").Action("update").Type("vm").Build(),
	}, core.WorkflowOptions{}))

	_, err := h.engine.ExecuteWorkflow(context.Background(), "w", "s1", map[string]any{"zone": "b"})
	require.NoError(t, err)

	calls := h.executor.Calls()
	require.Len(t, calls, 2)
	first := calls[0].Operation
	assert.Equal(t, "create", first.Action)
	assert.Equal(t, "vm", first.Type)
	assert.Equal(t, "s", first.Parameters["size"])
	assert.Equal(t, "b", first.Parameters["zone"], "execution parameters win")
	assert.Empty(t, first.Parameters[ContextParam])

	second := calls[1].Operation
	relevant, ok := second.Parameters[ContextParam].([]core.OperationRecord)
	require.True(t, ok)
	require.Len(t, relevant, 1)
	assert.Equal(t, "create", relevant[0].Action)

	sess, _ := h.contexts.Session("s1")
	for _, rec := range sess.Operations {
		assert.NotContains(t, rec.Operation.Parameters, ContextParam)
	}
}

func TestEngine_RetryOnFailure(t *testing.T) {
	h := newHarness(t)
	var calls int32
	h.executor.On("flaky", func(context.Context, core.Operation) (core.Result, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errBoom
		}
		return "recovered", nil
	})

	require.NoError(t, h.engine.DefineWorkflow("w", []core.StepDefinition{
		testutil.NewStep("s").Provider("flaky").Action("create").Build(),
	}, core.WorkflowOptions{RetryOnFailure: true}))

	exec, err := h.engine.ExecuteWorkflow(context.Background(), "w", "s1", nil)
	require.NoError(t, err)
	require.Len(t, exec.Steps, 1)
	assert.True(t, exec.Steps[0].Success)
	assert.Equal(t, "recovered", exec.Steps[0].Result)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEngine_ExecutorPanicBecomesStepFailure(t *testing.T) {
	h := newHarness(t)
	h.executor.On("bad", func(context.Context, core.Operation) (core.Result, error) {
		panic("kaboom")
	}).Succeed("good", "ok")

	require.NoError(t, h.engine.DefineWorkflow("w", []core.StepDefinition{
		testutil.NewStep("bad").Provider("bad").Action("create").Build(),
		testutil.NewStep("good").Provider("good").Action("create").Build(),
	}, core.WorkflowOptions{Parallel: true}))

	exec, err := h.engine.ExecuteWorkflow(context.Background(), "w", "s1", nil)
	require.NoError(t, err)
	assert.False(t, exec.Steps[0].Success)
	assert.Contains(t, exec.Steps[0].Error, "kaboom")
	assert.True(t, exec.Steps[1].Success)
}

func TestEngine_UnencodableResultFailsStep(t *testing.T) {
	h := newHarness(t)
	h.executor.Succeed("alpha", make(chan int))

	require.NoError(t, h.engine.DefineWorkflow("w", []core.StepDefinition{
		testutil.NewStep("s").Provider("alpha").Action("create").Build(),
	}, core.WorkflowOptions{}))

	exec, err := h.engine.ExecuteWorkflow(context.Background(), "w", "s1", nil)
	require.NoError(t, err)
	assert.False(t, exec.Steps[0].Success)
	assert.Contains(t, exec.Steps[0].Error, "record result")
}

func TestEngine_CancelledBetweenSteps(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.executor.On("a", func(context.Context, core.Operation) (core.Result, error) {
		cancel()
		return "ok", nil
	}).Succeed("b", "ok")

	require.NoError(t, h.engine.DefineWorkflow("w", []core.StepDefinition{
		testutil.NewStep("A").Provider("a").Action("create").Build(),
		testutil.NewStep("B").Provider("b").Action("create").Build(),
	}, core.WorkflowOptions{}))

	exec, err := h.engine.ExecuteWorkflow(ctx, "w", "s1", nil)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, exec)
	assert.Equal(t, core.StatusFailed, exec.Status)
	assert.NotEmpty(t, exec.Error)
	assert.Equal(t, []string{"A"}, stepNames(exec))
	assert.Zero(t, h.executor.CallCount("b"))

	wf := h.sink.ByKind(core.EventKindWorkflow)
	require.Len(t, wf, 1)
	assert.Equal(t, core.StatusFailed, wf[0].Status)
}

func TestEngine_ActiveAndCancel(t *testing.T) {
	h := newHarness(t)
	var seen []*core.WorkflowExecution
	h.executor.On("a", func(context.Context, core.Operation) (core.Result, error) {
		seen = h.engine.Active()
		require.Len(t, seen, 1)
		require.NoError(t, h.engine.Cancel(seen[0].ID))
		return "ok", nil
	}).Succeed("b", "ok")

	require.NoError(t, h.engine.DefineWorkflow("w", []core.StepDefinition{
		testutil.NewStep("A").Provider("a").Action("create").Build(),
		testutil.NewStep("B").Provider("b").Action("create").Build(),
	}, core.WorkflowOptions{}))

	exec, err := h.engine.ExecuteWorkflow(context.Background(), "w", "s1", nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, core.StatusRunning, seen[0].Status)
	assert.Equal(t, exec.ID, seen[0].ID)
	assert.Equal(t, core.StatusFailed, exec.Status)
	assert.Empty(t, h.engine.Active())

	assert.ErrorIs(t, h.engine.Cancel(exec.ID), core.ErrExecutionNotFound)
}

func TestEngine_ExecutionLookupFromHistory(t *testing.T) {
	h := newHarness(t)
	h.executor.Succeed("alpha", "ok")
	require.NoError(t, h.engine.DefineWorkflow("w", []core.StepDefinition{
		testutil.NewStep("s").Provider("alpha").Action("create").Build(),
	}, core.WorkflowOptions{}))

	exec, err := h.engine.ExecuteWorkflow(context.Background(), "w", "s1", nil)
	require.NoError(t, err)

	got, err := h.engine.Execution(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, exec.ID, got.ID)
	assert.Equal(t, core.StatusCompleted, got.Status)

	_, err = h.engine.Execution(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrExecutionNotFound)
}

func TestEngine_Events(t *testing.T) {
	h := newHarness(t)
	h.executor.Succeed("alpha", map[string]any{"id": 7}).Fail("beta", errBoom)
	require.NoError(t, h.engine.DefineWorkflow("w", []core.StepDefinition{
		testutil.NewStep("one").Provider("alpha").Action("create").Build(),
		testutil.NewStep("two").Provider("beta").Action("verify").Build(),
	}, core.WorkflowOptions{}))

	exec, err := h.engine.ExecuteWorkflow(context.Background(), "w", "s1", nil)
	require.NoError(t, err)

	events := h.sink.Events()
	require.Len(t, events, 3)
	assert.Equal(t, core.EventKindStep, events[0].Kind)
	assert.Equal(t, "one", events[0].Step)
	assert.Equal(t, core.StatusCompleted, events[0].Status)
	assert.Equal(t, exec.ID, events[0].ID)

	assert.Equal(t, "two", events[1].Step)
	assert.Equal(t, core.StatusFailed, events[1].Status)
	assert.Contains(t, events[1].Error, "boom")

	assert.Equal(t, core.EventKindWorkflow, events[2].Kind)
	assert.Equal(t, core.StatusCompleted, events[2].Status)
	assert.Equal(t, "s1", events[2].SessionID)
}

func TestEngine_DefineWorkflowValidation(t *testing.T) {
	h := newHarness(t)
	valid := testutil.NewStep("s").Provider("alpha").Action("create").Build()

	tests := []struct {
		name  string
		wf    string
		steps []core.StepDefinition
	}{
		{"empty name", "", []core.StepDefinition{valid}},
		{"no steps", "w", nil},
		{"unnamed step", "w", []core.StepDefinition{testutil.NewStep("").Provider("alpha").Build()}},
		{"no provider", "w", []core.StepDefinition{testutil.NewStep("s").Build()}},
		{"duplicate step", "w", []core.StepDefinition{valid, valid}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.engine.DefineWorkflow(tt.wf, tt.steps, core.WorkflowOptions{})
			assert.ErrorIs(t, err, core.ErrInvalidWorkflow)
		})
	}
	assert.Empty(t, h.engine.Workflows())
}

func TestEngine_WorkflowRegistry(t *testing.T) {
	h := newHarness(t)
	steps := []core.StepDefinition{testutil.NewStep("s").Provider("alpha").Param("k", "v").Build()}

	require.NoError(t, h.engine.DefineWorkflow("b", steps, core.WorkflowOptions{}))
	require.NoError(t, h.engine.DefineWorkflow("a", steps, core.WorkflowOptions{}))
	steps[0].Parameters["k"] = "mutated"

	assert.Equal(t, []string{"a", "b"}, h.engine.Workflows())
	def, ok := h.engine.Workflow("a")
	require.True(t, ok)
	assert.Equal(t, "v", def.Steps[0].Parameters["k"])

	require.NoError(t, h.engine.DefineWorkflow("a", steps, core.WorkflowOptions{Parallel: true}))
	def, _ = h.engine.Workflow("a")
	assert.True(t, def.Options.Parallel, "redefinition replaces")

	assert.True(t, h.engine.RemoveWorkflow("a"))
	assert.False(t, h.engine.RemoveWorkflow("a"))
	_, ok = h.engine.Workflow("a")
	assert.False(t, ok)
}
