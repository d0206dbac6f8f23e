package engine

import (
	"context"
	"fmt"

	"github.com/hupe1980/opmesh/core"
)

// runSequential executes steps one after another. A step whose condition
// evaluates false against its own result ends the workflow without error.
func (e *Engine) runSequential(ctx context.Context, def core.WorkflowDefinition, r *run) error {
	for i, step := range def.Steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("workflow %s interrupted before step %s (%d/%d): %w", def.Name, step.Name, i+1, len(def.Steps), err)
		}

		sr := e.executeStep(ctx, step, r.exec, def.Options)
		r.append(sr)
		e.emitStep(ctx, r, sr)

		if step.Condition != "" && !EvaluateCondition(step.Condition, sr) {
			e.logger.Debug("Workflow stopped by condition",
				"workflow", def.Name,
				"execution_id", r.exec.ID,
				"step", step.Name,
				"condition", step.Condition,
				"skipped", len(def.Steps)-i-1,
			)
			return nil
		}
	}
	return nil
}
