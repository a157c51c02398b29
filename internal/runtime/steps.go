package runtime

import (
	"fmt"
	"time"

	"github.com/aretw0/advisor/pkg/domain"
)

// Step is one stage of the guided pipeline.
type Step struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	// MinDuration is how long the step stays visible at least.
	MinDuration time.Duration `json:"min_duration" yaml:"min_duration"`
	// ProgressTarget is the overall progress (0-100) once the step completes.
	ProgressTarget int `json:"progress_target" yaml:"progress_target"`
	// Remote is the category computed by this step; empty for local steps.
	Remote domain.Category `json:"remote,omitempty" yaml:"remote,omitempty"`
}

// Plan is an ordered list of steps plus the pause the caller observes after
// the last one.
type Plan struct {
	Steps       []Step        `json:"steps" yaml:"steps"`
	SettleDelay time.Duration `json:"settle_delay" yaml:"settle_delay"`
}

// DefaultPlan is the six-step guided analysis.
func DefaultPlan() Plan {
	return DefaultPlanWith(2*time.Second, 2*time.Second)
}

// DefaultPlanWith is DefaultPlan with other step and settle durations.
func DefaultPlanWith(stepMin, settle time.Duration) Plan {
	return Plan{
		Steps: []Step{
			{ID: "validate", Title: "Validating investment inputs", MinDuration: stepMin, ProgressTarget: 10},
			{ID: "portfolio", Title: "Generating AI portfolio", MinDuration: stepMin, ProgressTarget: 35, Remote: domain.CategoryAllocation},
			{ID: "performance", Title: "Computing performance history", MinDuration: stepMin, ProgressTarget: 55, Remote: domain.CategoryPerformance},
			{ID: "correlation", Title: "Analyzing correlations", MinDuration: stepMin, ProgressTarget: 70, Remote: domain.CategoryCorrelation},
			{ID: "riskReturn", Title: "Analyzing risk and return", MinDuration: stepMin, ProgressTarget: 85, Remote: domain.CategoryRiskReturn},
			{ID: "explanation", Title: "Generating explanation", MinDuration: stepMin, ProgressTarget: 100, Remote: domain.CategoryExplanation},
		},
		SettleDelay: settle,
	}
}

// TotalMinDuration is the lower bound of a run of p.
func (p Plan) TotalMinDuration() time.Duration {
	var total time.Duration
	for _, s := range p.Steps {
		total += s.MinDuration
	}
	return total
}

// Validate checks the structure of the plan: unique ids, known categories,
// non-negative durations and progress targets that never go backwards.
func (p Plan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	if p.SettleDelay < 0 {
		return fmt.Errorf("negative settle delay %v", p.SettleDelay)
	}
	ids := make(map[string]bool, len(p.Steps))
	last := 0
	for i, s := range p.Steps {
		if s.ID == "" {
			return fmt.Errorf("step %d has no id", i)
		}
		if ids[s.ID] {
			return fmt.Errorf("duplicate step id %q", s.ID)
		}
		ids[s.ID] = true
		if s.MinDuration < 0 {
			return fmt.Errorf("step %q has negative min duration", s.ID)
		}
		if s.ProgressTarget < last || s.ProgressTarget > 100 {
			return fmt.Errorf("step %q progress target %d out of order (previous %d)", s.ID, s.ProgressTarget, last)
		}
		last = s.ProgressTarget
		if s.Remote != "" && !s.Remote.Valid() {
			return fmt.Errorf("step %q: %w: %q", s.ID, domain.ErrUnknownCategory, s.Remote)
		}
	}
	return nil
}
