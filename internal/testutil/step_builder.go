package testutil

import "github.com/hupe1980/opmesh/core"

// StepBuilder helps construct step definitions with fluent chaining for tests.
// Example:
//
//	step := NewStep("create").Provider("alpha").Action("create").Condition("success").Build()
type StepBuilder struct {
	step core.StepDefinition
}

// NewStep creates a builder for a step with the given name.
func NewStep(name string) *StepBuilder {
	return &StepBuilder{step: core.StepDefinition{Name: name, Parameters: map[string]any{}}}
}

// Provider sets the target provider (chainable).
func (b *StepBuilder) Provider(p string) *StepBuilder { b.step.Provider = p; return b }

// Action sets the action (chainable).
func (b *StepBuilder) Action(a string) *StepBuilder { b.step.Action = a; return b }

// Type sets the operation type (chainable).
func (b *StepBuilder) Type(t string) *StepBuilder { b.step.Type = t; return b }

// Condition sets the continuation condition (chainable).
func (b *StepBuilder) Condition(c string) *StepBuilder { b.step.Condition = c; return b }

// Param sets a step parameter (chainable).
func (b *StepBuilder) Param(key string, val any) *StepBuilder {
	b.step.Parameters[key] = val
	return b
}

// Build returns the step definition.
func (b *StepBuilder) Build() core.StepDefinition { return b.step }
