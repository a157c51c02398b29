package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// RiskTolerance is the investor profile sent to the scoring service.
type RiskTolerance string

const (
	RiskConservative RiskTolerance = "conservative"
	RiskModerate     RiskTolerance = "moderate"
	RiskAggressive   RiskTolerance = "aggressive"
)

// ParseRiskTolerance accepts either the profile name or a 1-10 score.
func ParseRiskTolerance(s string) (RiskTolerance, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch RiskTolerance(v) {
	case RiskConservative, RiskModerate, RiskAggressive:
		return RiskTolerance(v), nil
	}
	if score, err := strconv.Atoi(v); err == nil {
		return RiskFromScore(score), nil
	}
	return "", fmt.Errorf("%w: unknown risk tolerance %q", ErrInvalidContext, s)
}

// RiskFromScore maps the onboarding slider (1-10) to a profile.
func RiskFromScore(score int) RiskTolerance {
	switch {
	case score <= 3:
		return RiskConservative
	case score <= 6:
		return RiskModerate
	default:
		return RiskAggressive
	}
}

// ExplanationMode selects how the explanation is computed remotely.
type ExplanationMode string

const (
	ModeFast     ExplanationMode = "fast"
	ModeAccurate ExplanationMode = "accurate"
)

// ParseExplanationMode defaults to fast for an empty string.
func ParseExplanationMode(s string) (ExplanationMode, error) {
	switch ExplanationMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeFast:
		return ModeFast, nil
	case ModeAccurate:
		return ModeAccurate, nil
	}
	return "", fmt.Errorf("%w: unknown explanation mode %q", ErrInvalidContext, s)
}

// HorizonFromPeriod converts the onboarding period choice to months.
// Unknown periods fall back to one year.
func HorizonFromPeriod(period string) int {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "3years":
		return 36
	case "5years":
		return 60
	case "10years":
		return 120
	default:
		return 12
	}
}

// AnalysisContext is the immutable set of user inputs that parameterizes a run.
type AnalysisContext struct {
	Amount          float64         `json:"amount" yaml:"amount"`
	RiskTolerance   RiskTolerance   `json:"risk_tolerance" yaml:"risk_tolerance"`
	HorizonMonths   int             `json:"horizon_months" yaml:"horizon_months"`
	ExplanationMode ExplanationMode `json:"explanation_mode" yaml:"explanation_mode"`
}

// Validate enforces the input constraints of a run.
func (c AnalysisContext) Validate() error {
	if !(c.Amount > 0) {
		return fmt.Errorf("%w: amount must be positive, got %v", ErrInvalidContext, c.Amount)
	}
	switch c.RiskTolerance {
	case RiskConservative, RiskModerate, RiskAggressive:
	default:
		return fmt.Errorf("%w: risk tolerance %q", ErrInvalidContext, c.RiskTolerance)
	}
	if c.HorizonMonths <= 0 {
		return fmt.Errorf("%w: horizon must be a positive number of months, got %d", ErrInvalidContext, c.HorizonMonths)
	}
	switch c.ExplanationMode {
	case ModeFast, ModeAccurate:
	default:
		return fmt.Errorf("%w: explanation mode %q", ErrInvalidContext, c.ExplanationMode)
	}
	return nil
}

// WithMode returns a copy of the context using another explanation mode.
func (c AnalysisContext) WithMode(mode ExplanationMode) AnalysisContext {
	c.ExplanationMode = mode
	return c
}
