package runner

import (
	"log/slog"

	"github.com/aretw0/advisor/internal/runtime"
	"github.com/aretw0/advisor/pkg/ports"
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithStore persists every presented result set under sessionID.
func WithStore(store ports.SnapshotStore, sessionID string) Option {
	return func(r *Runner) {
		r.Store = store
		r.SessionID = sessionID
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}

// WithInputHandler configures a custom IOHandler.
func WithInputHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.Handler = handler
	}
}

// WithHeadless skips the retry prompt after the run.
func WithHeadless(headless bool) Option {
	return func(r *Runner) {
		r.Headless = headless
	}
}

// WithPlan replaces the default guided plan.
func WithPlan(plan runtime.Plan) Option {
	return func(r *Runner) {
		r.Plan = plan
	}
}
