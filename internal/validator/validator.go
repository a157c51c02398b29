package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/advisor/internal/runtime"
	"github.com/aretw0/advisor/pkg/domain"
)

// Finding is one problem of a plan that does not make it invalid but makes
// a guided run degrade or leave categories pending.
type Finding struct {
	StepID  string
	Message string
}

func (f Finding) String() string {
	if f.StepID == "" {
		return f.Message
	}
	return fmt.Sprintf("step '%s': %s", f.StepID, f.Message)
}

// ValidatePlan checks the structure of plan and then walks its steps in
// order, the way the sequencer will:
//   - a dependent category computed before the allocation always degrades;
//   - a category computed twice only keeps the last answer;
//   - a category no step computes stays pending after the run.
//
// The structural error is returned; the walk produces findings.
func ValidatePlan(plan runtime.Plan) ([]Finding, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	var findings []Finding
	seen := make(map[domain.Category]string)
	for _, step := range plan.Steps {
		c := step.Remote
		if c == "" {
			continue
		}
		if prev, ok := seen[c]; ok {
			findings = append(findings, Finding{
				StepID:  step.ID,
				Message: fmt.Sprintf("%s is already computed by step '%s'", c, prev),
			})
		}
		if c.DependsOnAllocation() {
			if _, ok := seen[domain.CategoryAllocation]; !ok {
				findings = append(findings, Finding{
					StepID:  step.ID,
					Message: fmt.Sprintf("%s runs before the allocation is available and will degrade", c),
				})
			}
		}
		seen[c] = step.ID
	}

	var missing []string
	for _, c := range domain.Categories() {
		if _, ok := seen[c]; !ok {
			missing = append(missing, string(c))
		}
	}
	if len(missing) > 0 {
		findings = append(findings, Finding{
			Message: fmt.Sprintf("no step computes %s; those categories stay pending", strings.Join(missing, ", ")),
		})
	}
	return findings, nil
}
