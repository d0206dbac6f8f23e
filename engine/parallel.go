package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/opmesh/core"
)

// runParallel dispatches every step concurrently and waits for all of them.
// Each branch writes only its own result slot; failures stay in that slot.
// Conditions are not evaluated.
func (e *Engine) runParallel(ctx context.Context, def core.WorkflowDefinition, r *run) error {
	results := make([]core.StepResult, len(def.Steps))

	var sem chan struct{}
	if e.maxParallelism > 0 {
		sem = make(chan struct{}, e.maxParallelism)
	}

	var wg sync.WaitGroup
	for i, step := range def.Steps {
		wg.Add(1)
		go func(i int, step core.StepDefinition) {
			defer wg.Done()

			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}

			sr := e.executeStep(ctx, step, r.exec, def.Options)
			results[i] = sr
			e.emitStep(ctx, r, sr)
		}(i, step)
	}

	wg.Wait()
	r.setSteps(results)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("workflow %s interrupted: %w", def.Name, err)
	}
	return nil
}
