package dsl

import (
	"time"

	"github.com/aretw0/advisor/internal/runtime"
	"github.com/aretw0/advisor/pkg/domain"
)

// StepBuilder provides a fluent API for configuring a step.
type StepBuilder struct {
	step    runtime.Step
	minSet  bool
	builder *Builder
}

// Title sets the label shown while the step runs.
func (s *StepBuilder) Title(title string) *StepBuilder {
	s.step.Title = title
	return s
}

// MinDuration sets how long the step stays visible at least.
func (s *StepBuilder) MinDuration(d time.Duration) *StepBuilder {
	s.step.MinDuration = d
	s.minSet = true
	return s
}

// Progress sets the overall progress reached when the step completes.
func (s *StepBuilder) Progress(target int) *StepBuilder {
	s.step.ProgressTarget = target
	return s
}

// Remote makes the step compute a category through the scoring service.
func (s *StepBuilder) Remote(c domain.Category) *StepBuilder {
	s.step.Remote = c
	return s
}

// Then appends the next step.
func (s *StepBuilder) Then(id string) *StepBuilder {
	return s.builder.Step(id)
}

// Build compiles the plan the step belongs to.
func (s *StepBuilder) Build() (runtime.Plan, error) {
	return s.builder.Build()
}
