package dsl

import (
	"fmt"
	"time"

	"github.com/aretw0/advisor/internal/runtime"
)

// DefaultMinDuration is the hold time of steps that do not set one.
const DefaultMinDuration = 2 * time.Second

// Builder assembles a guided plan. Steps run in the order they were added.
type Builder struct {
	order  []string
	steps  map[string]*StepBuilder
	settle time.Duration
	minDur time.Duration
}

// New creates a new plan builder.
func New() *Builder {
	return &Builder{
		steps:  make(map[string]*StepBuilder),
		minDur: DefaultMinDuration,
	}
}

// Step appends a step to the plan.
// If the step already exists, it returns the existing builder.
func (b *Builder) Step(id string) *StepBuilder {
	if sb, ok := b.steps[id]; ok {
		return sb
	}
	sb := &StepBuilder{
		step:    runtime.Step{ID: id},
		builder: b,
	}
	b.steps[id] = sb
	b.order = append(b.order, id)
	return sb
}

// SettleDelay sets the pause observed after the last step.
func (b *Builder) SettleDelay(d time.Duration) *Builder {
	b.settle = d
	return b
}

// MinDuration sets the hold time of steps that do not override it.
func (b *Builder) MinDuration(d time.Duration) *Builder {
	b.minDur = d
	return b
}

// Build compiles and validates the plan.
func (b *Builder) Build() (runtime.Plan, error) {
	plan := runtime.Plan{SettleDelay: b.settle}
	for _, id := range b.order {
		st := b.steps[id].step
		if !b.steps[id].minSet {
			st.MinDuration = b.minDur
		}
		if st.Title == "" {
			st.Title = st.ID
		}
		plan.Steps = append(plan.Steps, st)
	}
	if err := plan.Validate(); err != nil {
		return runtime.Plan{}, fmt.Errorf("invalid plan: %w", err)
	}
	return plan, nil
}

// MustBuild is Build for static plans; it panics on an invalid plan.
func (b *Builder) MustBuild() runtime.Plan {
	plan, err := b.Build()
	if err != nil {
		panic(err)
	}
	return plan
}
