package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"github.com/aretw0/advisor/pkg/clock"
	"github.com/aretw0/advisor/pkg/domain"
	"github.com/aretw0/advisor/pkg/gateway"
)

// Variables set on every spawned process.
const (
	EnvEndpoint = "ADVISOR_ENDPOINT"
	EnvAttempt  = "ADVISOR_ATTEMPT"
)

const (
	maxStderr = 512
	// waitDelay bounds how long Run waits on pipes held by orphaned children.
	waitDelay = time.Second
)

// Runner answers scoring calls by running a local program once per attempt.
// The payload is written to stdin as JSON and the answer is read from stdout.
// Arguments never come from the payload, so nothing a caller sends can turn
// into a flag.
type Runner struct {
	cfg    Config
	policy gateway.Policy
	clock  clock.Clock
	hooks  domain.LifecycleHooks
	logger *slog.Logger
}

var _ gateway.Caller = (*Runner)(nil)

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithPolicy sets the retry policy applied to each call.
func WithPolicy(p gateway.Policy) RunnerOption {
	return func(r *Runner) {
		r.policy = p
	}
}

// WithClock sets the clock used between attempts.
func WithClock(c clock.Clock) RunnerOption {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithLifecycleHooks reports every attempt to hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) RunnerOption {
	return func(r *Runner) {
		r.hooks = hooks
	}
}

// WithLogger sets the logger for failed attempts and undecodable output.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a runner for cfg. It fails when cfg is invalid or the
// command cannot be found.
func NewRunner(cfg Config, opts ...RunnerOption) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := exec.LookPath(cfg.Command); err != nil {
		return nil, fmt.Errorf("process command %q: %w", cfg.Command, err)
	}
	r := &Runner{
		cfg:    cfg,
		policy: gateway.DefaultPolicy(),
		clock:  clock.Real{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r, nil
}

// Call runs the program for endpoint with the same retry rules as the HTTP
// gateway: a non-zero exit or a timeout is retried until the attempt cap.
func (r *Runner) Call(ctx context.Context, endpoint string, payload any, opts ...gateway.CallOption) (any, error) {
	p := r.policy
	for _, opt := range opts {
		opt(&p)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", endpoint, err)
	}

	return gateway.Retry(ctx, p, r.clock, func(ctx context.Context, attempt int) (any, error) {
		start := time.Now()
		v, err := r.run(ctx, p.PerAttemptTimeout, endpoint, attempt, body)
		r.observe(ctx, endpoint, attempt, time.Since(start), err)
		return v, err
	})
}

func (r *Runner) run(ctx context.Context, timeout time.Duration, endpoint string, attempt int, body []byte) (any, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.cfg.Command, r.cfg.Args...)
	cmd.Dir = r.cfg.Dir
	cmd.WaitDelay = waitDelay
	cmd.Env = append(cmd.Environ(), r.cfg.environ()...)
	cmd.Env = append(cmd.Env,
		EnvEndpoint+"="+endpoint,
		EnvAttempt+"="+strconv.Itoa(attempt+1),
	)
	cmd.Stdin = bytes.NewReader(body)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, &domain.TransientError{
			Endpoint: endpoint,
			Err:      fmt.Errorf("execution failed: %w. Stderr: %s", err, gateway.Truncate(string(bytes.TrimSpace(stderr.Bytes())), maxStderr)),
		}
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(out, &v); err != nil {
		r.logger.Warn("Undecodable process output", "endpoint", endpoint, "err", err)
		return nil, nil
	}
	return v, nil
}

func (r *Runner) observe(ctx context.Context, endpoint string, attempt int, d time.Duration, err error) {
	if err != nil {
		r.logger.Debug("Attempt failed", "endpoint", endpoint, "attempt", attempt+1, "duration", d, "err", err)
	}
	if r.hooks.OnAttempt != nil {
		r.hooks.OnAttempt(ctx, &domain.AttemptEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventAttempt},
			Endpoint:  endpoint,
			Attempt:   attempt + 1,
			Duration:  d,
			Err:       err,
		})
	}
}
