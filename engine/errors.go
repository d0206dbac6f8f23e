package engine

import (
	"fmt"

	"github.com/hupe1980/opmesh/core"
)

// StepError describes why a single step failed. Its message is what ends up
// in StepResult.Error.
type StepError struct {
	Step     string
	Provider string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s (provider %s): %v", e.Step, e.Provider, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Is makes every StepError match core.ErrStepExecution.
func (e *StepError) Is(target error) bool { return target == core.ErrStepExecution }
