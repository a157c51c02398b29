package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/advisor/pkg/domain"
)

// LoggingHooks writes one structured record per lifecycle event.
// Task updates and attempts log at debug level, steps at info.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTaskUpdate: func(ctx context.Context, e *domain.TaskEvent) {
			logger.DebugContext(ctx, "task_update",
				"category", e.Task.Category,
				"status", e.Task.Status,
				"progress", e.Task.Progress,
				"generation", e.Generation,
			)
		},
		OnAttempt: func(ctx context.Context, e *domain.AttemptEvent) {
			attrs := []any{"endpoint", e.Endpoint, "attempt", e.Attempt, "duration", e.Duration}
			if e.Err != nil {
				attrs = append(attrs, "err", e.Err)
			}
			logger.DebugContext(ctx, "attempt", attrs...)
		},
		OnStepEnter: func(ctx context.Context, e *domain.StepEvent) {
			logger.InfoContext(ctx, "step_enter", "step", e.StepID, "index", e.StepIndex, "progress", e.Progress)
		},
		OnStepLeave: func(ctx context.Context, e *domain.StepEvent) {
			logger.InfoContext(ctx, "step_leave",
				"step", e.StepID,
				"progress", e.Progress,
				"elapsed", e.Elapsed,
				"degraded", e.Degraded,
			)
		},
	}
}
