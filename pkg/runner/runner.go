package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aretw0/advisor/internal/runtime"
	"github.com/aretw0/advisor/pkg/domain"
	"github.com/aretw0/advisor/pkg/ports"
)

// Runner drives one guided analysis through an IOHandler.
type Runner struct {
	// Handler is the strategy for IO. If nil, a TextHandler on Stdin/Stdout is used.
	Handler IOHandler

	// Logger is used for internal debug logging.
	// If nil, a no-op logger is used.
	Logger *slog.Logger

	// Store keeps the presented result sets. If nil, runs are ephemeral.
	Store     ports.SnapshotStore
	SessionID string

	// Headless skips the retry prompt.
	Headless bool

	Plan runtime.Plan

	engine *runtime.Engine
}

// NewRunner creates a Runner for engine using the default plan.
func NewRunner(engine *runtime.Engine, opts ...Option) *Runner {
	r := &Runner{
		engine: engine,
		Plan:   runtime.DefaultPlan(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Logger == nil {
		r.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if r.Handler == nil {
		r.Handler = NewTextHandler(os.Stdin, os.Stdout)
	}
	return r
}

// Run walks the plan for ac and presents the result set. Remote failures
// never fail the run; only a structural fault of the plan or a cancelled
// context does. Unless headless, a fault can be retried as a whole run, and
// the user is then offered to retry the failed categories until none is
// left or the input ends.
func (r *Runner) Run(ctx context.Context, ac domain.AnalysisContext) (*domain.ResultSet, error) {
	rs, err := r.engine.Guided(ctx, ac, r.Plan, func(p runtime.Progress) {
		if err := r.Handler.Progress(ctx, p); err != nil {
			r.Logger.Warn("Progress output failed", "error", err)
		}
	})
	if err != nil {
		var fault *domain.PipelineFault
		if r.Headless || ctx.Err() != nil || !errors.As(err, &fault) {
			return rs, err
		}
		if rs, err = r.recoverFault(ctx, rs, fault); err != nil {
			return rs, err
		}
	}
	if err := r.present(ctx, rs); err != nil {
		return rs, err
	}
	if r.Headless {
		return rs, nil
	}
	return r.retryLoop(ctx, rs)
}

func (r *Runner) present(ctx context.Context, rs *domain.ResultSet) error {
	if r.Store != nil {
		id := r.SessionID
		if id == "" {
			id = rs.SessionID
		}
		if err := r.Store.Save(ctx, id, rs); err != nil {
			return fmt.Errorf("save result set: %w", err)
		}
		r.Logger.Debug("Result set saved", "session_id", id, "generation", rs.Generation)
	}
	if err := r.Handler.Result(ctx, rs); err != nil {
		return fmt.Errorf("output error: %w", err)
	}
	return nil
}

func (r *Runner) retryLoop(ctx context.Context, rs *domain.ResultSet) (*domain.ResultSet, error) {
	for {
		failed := FailedCategories(rs)
		if len(failed) == 0 {
			return rs, nil
		}

		names := make([]string, len(failed))
		for i, c := range failed {
			names[i] = string(c)
		}
		msg := fmt.Sprintf("%d of %d categories failed (%s). Enter a category to retry, 'all' to rerun the analysis, or press enter to finish.",
			len(failed), len(domain.Categories()), strings.Join(names, ", "))
		if err := r.Handler.SystemOutput(ctx, msg); err != nil {
			return rs, err
		}

		answer, err := r.Handler.Input(ctx)
		if errors.Is(err, io.EOF) {
			return rs, nil
		}
		if err != nil {
			return rs, err
		}

		next, err := r.retry(ctx, strings.ToLower(strings.TrimSpace(answer)))
		if errors.Is(err, errDone) {
			return rs, nil
		}
		if errors.Is(err, domain.ErrUnknownCategory) || errors.Is(err, runtime.ErrMissingAllocation) {
			_ = r.Handler.SystemOutput(ctx, err.Error())
			continue
		}
		if err != nil {
			return rs, err
		}

		rs = next
		if err := r.present(ctx, rs); err != nil {
			return rs, err
		}
	}
}

// recoverFault offers to run the whole plan again after a fault, for as long
// as the user asks for it and the plan keeps failing.
func (r *Runner) recoverFault(ctx context.Context, rs *domain.ResultSet, fault *domain.PipelineFault) (*domain.ResultSet, error) {
	for {
		msg := fmt.Sprintf("Analysis failed: %v. Enter 'retry' to run it again, or press enter to give up.", fault)
		if err := r.Handler.SystemOutput(ctx, msg); err != nil {
			return rs, err
		}

		answer, err := r.Handler.Input(ctx)
		if errors.Is(err, io.EOF) {
			return rs, fault
		}
		if err != nil {
			return rs, err
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "retry", "r", "y", "yes", "all":
		default:
			return rs, fault
		}

		r.Logger.Info("Retrying guided analysis after fault", "step", fault.Step)
		next, err := r.engine.RetryGuided(ctx)
		if err == nil {
			return next, nil
		}
		rs = next
		if ctx.Err() != nil || !errors.As(err, &fault) {
			return rs, err
		}
	}
}

var errDone = errors.New("done")

func (r *Runner) retry(ctx context.Context, answer string) (*domain.ResultSet, error) {
	switch answer {
	case "", "q", "quit", "n", "no":
		return nil, errDone
	case "all":
		r.Logger.Info("Retrying guided analysis")
		return r.engine.RetryGuided(ctx)
	}

	c, err := domain.ParseCategory(answer)
	if err != nil {
		return nil, err
	}
	r.Logger.Info("Retrying category", "category", c)
	if err := r.engine.RetryCategory(ctx, c); err != nil {
		return nil, err
	}
	if err := r.engine.Wait(ctx); err != nil {
		return nil, err
	}
	return r.engine.Snapshot(), nil
}

// FailedCategories lists the categories in error, in dispatch order.
func FailedCategories(rs *domain.ResultSet) []domain.Category {
	var failed []domain.Category
	for _, c := range domain.Categories() {
		if rs.Task(c).Status == domain.StatusError {
			failed = append(failed, c)
		}
	}
	return failed
}
