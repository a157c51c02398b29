package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aretw0/advisor"
	"github.com/aretw0/advisor/internal/presentation/tui"
	"github.com/aretw0/advisor/pkg/domain"
	"github.com/aretw0/advisor/pkg/observability"
	"github.com/aretw0/advisor/pkg/runner"
	"github.com/google/uuid"
)

// AnalyzeOptions contains all the configuration for the analyze command.
type AnalyzeOptions struct {
	ConfigPath string
	PlanFile   string

	Amount  float64
	Risk    string
	Horizon int
	// Period is the onboarding choice (1year, 3years...) used when Horizon is 0.
	Period string
	Mode   string

	// SessionID persists the result set under this id. Empty runs are ephemeral.
	SessionID string
	JSON      bool
	Headless  bool
	Debug     bool

	Stdin  io.Reader
	Stdout io.Writer
}

// Context validates the flags into an analysis context.
func (o AnalyzeOptions) Context() (domain.AnalysisContext, error) {
	risk, err := domain.ParseRiskTolerance(o.Risk)
	if err != nil {
		return domain.AnalysisContext{}, err
	}
	mode, err := domain.ParseExplanationMode(o.Mode)
	if err != nil {
		return domain.AnalysisContext{}, err
	}
	horizon := o.Horizon
	if horizon == 0 {
		horizon = domain.HorizonFromPeriod(o.Period)
	}
	ac := domain.AnalysisContext{
		Amount:          o.Amount,
		RiskTolerance:   risk,
		HorizonMonths:   horizon,
		ExplanationMode: mode,
	}
	return ac, ac.Validate()
}

// RunAnalyze executes one guided analysis in the terminal.
func RunAnalyze(opts AnalyzeOptions) error {
	ac, err := opts.Context()
	if err != nil {
		return err
	}

	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.PlanFile != "" {
		cfg.Analysis.PlanFile = opts.PlanFile
	}

	stdin, stdout := opts.Stdin, opts.Stdout
	if stdin == nil {
		stdin = os.Stdin
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	quiet := opts.JSON || opts.Headless

	logger := CreateLogger(opts.Debug, "")
	appOpts := []advisor.Option{advisor.WithLogger(logger)}
	if opts.Debug {
		appOpts = append(appOpts, advisor.WithLifecycleHooks(observability.LoggingHooks(logger)))
	}
	app, err := advisor.New(cfg, appOpts...)
	if err != nil {
		return err
	}
	defer app.Close()

	plan, err := app.Plan()
	if err != nil {
		return fmt.Errorf("failed to load plan: %w", err)
	}

	if !quiet {
		tui.PrintBanner(stdout, advisor.Version)
	}

	var handler runner.IOHandler
	if opts.JSON {
		handler = runner.NewJSONHandler(stdin, stdout)
	} else {
		handler = runner.NewTextHandler(stdin, stdout,
			runner.WithTextHandlerRenderer(tui.NewRenderer(terminalWidth(stdout))))
	}

	sessionID := opts.SessionID
	runnerOpts := []runner.Option{
		runner.WithLogger(logger),
		runner.WithHeadless(opts.Headless),
		runner.WithInputHandler(handler),
		runner.WithPlan(plan),
	}
	if sessionID != "" {
		runnerOpts = append(runnerOpts, runner.WithStore(app.Store, sessionID))
		if !quiet {
			printSystemMessage(stdout, "Session '%s' active.", sessionID)
		}
	} else {
		sessionID = uuid.NewString()
	}
	logger.Info("Analysis started", "session_id", sessionID, "steps", len(plan.Steps))

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	engine := app.NewEngine(sessionID)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := engine.Close(ctx); err != nil {
			logger.Warn("Engine did not drain", "err", err)
		}
	}()

	rs, runErr := runner.NewRunner(engine, runnerOpts...).Run(sigCtx, ac)

	// If context was canceled (signal received), ensure runErr reflects it if it doesn't already
	if sigCtx.Err() != nil && runErr == nil {
		runErr = sigCtx.Err()
	}

	logCompletion(stdout, rs, runErr, quiet, sigCtx.Signal())

	return handleExecutionError(runErr)
}
