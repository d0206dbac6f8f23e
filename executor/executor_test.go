package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/opmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunc(t *testing.T) {
	f := Func(func(_ context.Context, provider string, op core.Operation) (core.Result, error) {
		return provider + ":" + op.Action, nil
	})
	res, err := f.Execute(context.Background(), "alpha", core.Operation{Action: "create"})
	require.NoError(t, err)
	assert.Equal(t, "alpha:create", res)
}

func TestRouter(t *testing.T) {
	named := func(name string) core.Executor {
		return Func(func(context.Context, string, core.Operation) (core.Result, error) { return name, nil })
	}
	r := NewRouter().Handle("beta", named("b")).Handle("alpha", named("a"))
	assert.Equal(t, []string{"alpha", "beta"}, r.Providers())

	res, err := r.Execute(context.Background(), "alpha", core.Operation{})
	require.NoError(t, err)
	assert.Equal(t, "a", res)

	_, err = r.Execute(context.Background(), "gamma", core.Operation{})
	assert.Error(t, err)

	r.Fallback(named("fallback"))
	res, err = r.Execute(context.Background(), "gamma", core.Operation{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", res)
}

func TestMock(t *testing.T) {
	m := NewMock()
	m.AddResponse("alpha", "create", map[string]any{"id": 1})

	res, err := m.Execute(context.Background(), "alpha", core.Operation{Action: "create"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": 1}, res)

	res, err = m.Execute(context.Background(), "beta", core.Operation{Action: "verify", Type: "vm"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"provider": "beta", "action": "verify", "type": "vm", "status": "ok"}, res)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Execute(ctx, "alpha", core.Operation{Action: "create"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFaultInjector_Rates(t *testing.T) {
	ctx := context.Background()
	op := core.Operation{Action: "create"}

	always := NewFaultInjector(NewMock(), func(o *FaultOptions) { o.FailureRate = 1 })
	_, err := always.Execute(ctx, "alpha", op)
	assert.ErrorIs(t, err, ErrInjectedFault)

	never := NewFaultInjector(NewMock(), func(o *FaultOptions) { o.FailureRate = 0 })
	_, err = never.Execute(ctx, "alpha", op)
	assert.NoError(t, err)
}

func TestFaultInjector_Deterministic(t *testing.T) {
	run := func() []bool {
		f := NewFaultInjector(NewMock(), func(o *FaultOptions) {
			o.FailureRate = 0.5
			o.Seed = 42
		})
		out := make([]bool, 50)
		for i := range out {
			_, err := f.Execute(context.Background(), "alpha", core.Operation{})
			out[i] = err != nil
		}
		return out
	}
	first := run()
	assert.Equal(t, first, run())
	assert.Contains(t, first, true)
	assert.Contains(t, first, false)
}

func TestFaultInjector_TargetsAndDown(t *testing.T) {
	ctx := context.Background()
	f := NewFaultInjector(NewMock(), func(o *FaultOptions) {
		o.FailureRate = 1
		o.Providers = []string{"alpha"}
	})

	_, err := f.Execute(ctx, "beta", core.Operation{})
	assert.NoError(t, err, "untargeted providers pass through")

	f.SetDown("beta", true)
	_, err = f.Execute(ctx, "beta", core.Operation{})
	assert.ErrorIs(t, err, ErrInjectedFault)

	f.SetDown("beta", false)
	_, err = f.Execute(ctx, "beta", core.Operation{})
	assert.NoError(t, err)
}

func TestFaultInjector_LatencyHonorsContext(t *testing.T) {
	f := NewFaultInjector(NewMock(), func(o *FaultOptions) {
		o.FailureRate = 0
		o.Latency = time.Hour
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Execute(ctx, "alpha", core.Operation{})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestPrompt(t *testing.T) {
	op := core.NewOperation("ignored", "create", "vm", map[string]any{"size": "<large>"})
	prompt, err := Prompt("alpha", op)
	require.NoError(t, err)
	assert.Contains(t, prompt, `"provider": "alpha"`)
	assert.Contains(t, prompt, `"size": "<large>"`)
	assert.Equal(t, "ignored", op.Provider)

	_, err = Prompt("alpha", core.NewOperation("a", "b", "c", map[string]any{"bad": make(chan int)}))
	assert.Error(t, err)
}

func TestParseResult(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  core.Result
	}{
		{"object", `{"id": 1}`, map[string]any{"id": 1.0}},
		{"fenced", "```json\n{\"ok\": true}\n```", map[string]any{"ok": true}},
		{"array", `[1, 2]`, []any{1.0, 2.0}},
		{"plain text", "created the vm", map[string]any{"text": "created the vm"}},
		{"empty", "  ", map[string]any{"text": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseResult(tt.reply))
		})
	}
}
