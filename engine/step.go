package engine

import (
	"context"
	"fmt"

	"github.com/hupe1980/opmesh/core"
	"github.com/hupe1980/opmesh/logging"
)

// ContextParam is the parameter key under which relevant session history is
// handed to the executor.
const ContextParam = "context"

// executeStep runs one step and always returns a StepResult; failures are
// captured, never returned.
//
// The dispatched operation carries the step's parameters overlaid with the
// execution parameters and the relevant session context. The operation
// recorded into the context store is the same without the context key.
func (e *Engine) executeStep(ctx context.Context, step core.StepDefinition, exec *core.WorkflowExecution, opts core.WorkflowOptions) core.StepResult {
	start := e.clock.Now()

	op := step.Operation().WithParameters(exec.Parameters)
	relevant := e.contexts.GetRelevantContext(exec.SessionID, op)
	call := op.WithParameters(map[string]any{ContextParam: relevant})

	result, err := e.dispatch(ctx, step, call)
	if err != nil && opts.RetryOnFailure && ctx.Err() == nil {
		e.logger.Debug("Retrying failed step", "step", step.Name, "provider", step.Provider, "error", err)
		result, err = e.dispatch(ctx, step, call)
	}
	if err == nil {
		if _, recErr := e.contexts.AddOperationResult(exec.SessionID, op, result); recErr != nil {
			err = fmt.Errorf("record result: %w", recErr)
		}
	}

	elapsed := e.clock.Now().Sub(start)
	sr := core.StepResult{Name: step.Name, DurationMs: elapsed.Milliseconds()}
	if err != nil {
		sr.Error = (&StepError{Step: step.Name, Provider: step.Provider, Err: err}).Error()
	} else {
		sr.Success = true
		sr.Result = result
	}

	logging.Step(e.logger, step.Name, elapsed, sr.Success, sr.Error)
	return sr
}

// dispatch calls the resilient executor, turning a panic into an error so a
// misbehaving executor cannot take down sibling steps.
func (e *Engine) dispatch(ctx context.Context, step core.StepDefinition, op core.Operation) (result core.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("executor panic: %v", rec)
		}
	}()
	return e.resilience.ExecuteWithResilience(ctx, step.Provider, op)
}
