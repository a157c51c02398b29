package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/advisor/pkg/clock"
	"github.com/aretw0/advisor/pkg/domain"
)

// Phase is the state of a Sequencer.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseCompleted
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseCompleted:
		return "completed"
	case PhaseError:
		return "error"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText lets progress reports serialize the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Progress is reported to the observer on every visible change.
type Progress struct {
	Phase     Phase  `json:"phase"`
	StepIndex int    `json:"step_index"`
	StepID    string `json:"step_id,omitempty"`
	Title     string `json:"title,omitempty"`
	Progress  int    `json:"progress"`
	Err       string `json:"error,omitempty"`
}

// RemoteFunc performs the remote part of a step. A returned error is
// swallowed by the sequencer and recorded as a nil contribution.
type RemoteFunc func(ctx context.Context, step Step) (any, error)

// ErrAlreadyRunning is returned when Run is called on a running sequencer.
var ErrAlreadyRunning = errors.New("sequencer already running")

// Sequencer walks the steps of a plan strictly one after another, holding
// each for at least its minimum duration.
//
// Idle -> Running(i) -> Completed, with Error reachable only from a
// structural fault.
type Sequencer struct {
	plan     Plan
	remote   RemoteFunc
	clock    clock.Clock
	observer func(Progress)
	hooks    domain.LifecycleHooks
	logger   *slog.Logger

	generation atomic.Uint64

	mu      sync.Mutex
	phase   Phase
	index   int
	results map[string]any
	fault   error
}

// SequencerOption configures a Sequencer.
type SequencerOption func(*Sequencer)

// WithSequencerClock sets the scheduler. Tests use clock.Fake.
func WithSequencerClock(c clock.Clock) SequencerOption {
	return func(s *Sequencer) {
		s.clock = c
	}
}

// WithObserver registers a progress callback. It is called synchronously.
func WithObserver(fn func(Progress)) SequencerOption {
	return func(s *Sequencer) {
		s.observer = fn
	}
}

// WithSequencerHooks registers the step hooks.
func WithSequencerHooks(h domain.LifecycleHooks) SequencerOption {
	return func(s *Sequencer) {
		s.hooks = h
	}
}

// WithSequencerLogger sets a custom structured logger.
func WithSequencerLogger(l *slog.Logger) SequencerOption {
	return func(s *Sequencer) {
		s.logger = l
	}
}

// SetGeneration tags the step events of the next run.
func (s *Sequencer) SetGeneration(gen uint64) {
	s.generation.Store(gen)
}

// NewSequencer creates an idle sequencer for plan.
func NewSequencer(plan Plan, remote RemoteFunc, opts ...SequencerOption) *Sequencer {
	s := &Sequencer{
		plan:   plan,
		remote: remote,
		clock:  clock.Real{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// State returns the phase and the index of the current step.
func (s *Sequencer) State() (Phase, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase, s.index
}

// Err returns the fault that moved the sequencer to PhaseError.
func (s *Sequencer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault
}

// Results returns the per-step contributions of the last run. Failed or
// skipped remote steps map to nil.
func (s *Sequencer) Results() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}

// Run executes the plan from step 0. Only structural problems (an invalid
// plan, a panic inside a step, a cancelled context) return an error, always
// as a *domain.PipelineFault.
func (s *Sequencer) Run(ctx context.Context) (map[string]any, error) {
	s.mu.Lock()
	if s.phase == PhaseRunning {
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	s.phase = PhaseRunning
	s.index = 0
	s.results = make(map[string]any, len(s.plan.Steps))
	s.fault = nil
	s.mu.Unlock()

	if err := s.plan.Validate(); err != nil {
		return nil, s.fail("", 0, err)
	}
	if s.remote == nil {
		for _, st := range s.plan.Steps {
			if st.Remote != "" {
				return nil, s.fail(st.ID, 0, errors.New("plan has remote steps but no remote func"))
			}
		}
	}

	start := 0
	for i, step := range s.plan.Steps {
		if err := ctx.Err(); err != nil {
			return nil, s.fail(step.ID, start, err)
		}
		s.mu.Lock()
		s.index = i
		s.mu.Unlock()

		if err := s.runStep(ctx, i, step, start); err != nil {
			return nil, s.fail(step.ID, start, err)
		}
		start = step.ProgressTarget
	}

	s.mu.Lock()
	s.phase = PhaseCompleted
	last := len(s.plan.Steps) - 1
	s.mu.Unlock()
	s.emit(Progress{Phase: PhaseCompleted, StepIndex: last, StepID: s.plan.Steps[last].ID, Progress: start})

	return s.Results(), nil
}

// Retry resets all step state and runs the plan again from step 0.
func (s *Sequencer) Retry(ctx context.Context) (map[string]any, error) {
	s.mu.Lock()
	if s.phase == PhaseRunning {
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	s.phase = PhaseIdle
	s.index = 0
	s.results = nil
	s.fault = nil
	s.mu.Unlock()
	return s.Run(ctx)
}

func (s *Sequencer) runStep(ctx context.Context, i int, step Step, from int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	began := s.clock.Now()
	s.stepEvent(ctx, domain.EventStepEnter, i, step, from, 0, false)
	s.emit(Progress{Phase: PhaseRunning, StepIndex: i, StepID: step.ID, Title: step.Title, Progress: from})

	band := step.ProgressTarget - from
	degraded := false
	if step.Remote != "" {
		s.emit(Progress{Phase: PhaseRunning, StepIndex: i, StepID: step.ID, Title: step.Title, Progress: from + band*3/10})

		result, rerr := s.remote(ctx, step)
		if rerr != nil {
			s.logger.Warn("Step remote call failed, continuing", "step", step.ID, "err", rerr)
			result = nil
			degraded = true
		} else {
			s.emit(Progress{Phase: PhaseRunning, StepIndex: i, StepID: step.ID, Title: step.Title, Progress: from + band*8/10})
		}
		s.mu.Lock()
		s.results[step.ID] = result
		s.mu.Unlock()
	}

	remaining := step.MinDuration - clock.Since(s.clock, began)
	if remaining > 0 {
		// Pacing pauses always run to completion.
		_ = s.clock.Sleep(context.WithoutCancel(ctx), remaining)
	}

	s.emit(Progress{Phase: PhaseRunning, StepIndex: i, StepID: step.ID, Title: step.Title, Progress: step.ProgressTarget})
	s.stepEvent(ctx, domain.EventStepLeave, i, step, step.ProgressTarget, clock.Since(s.clock, began), degraded)
	return nil
}

func (s *Sequencer) fail(stepID string, progress int, cause error) error {
	fault := &domain.PipelineFault{Step: stepID, Cause: cause}
	s.mu.Lock()
	s.phase = PhaseError
	s.fault = fault
	idx := s.index
	s.mu.Unlock()

	s.logger.Error("Guided pipeline aborted", "step", stepID, "err", cause)
	s.emit(Progress{Phase: PhaseError, StepIndex: idx, StepID: stepID, Progress: progress, Err: fault.Error()})
	return fault
}

func (s *Sequencer) emit(p Progress) {
	if s.observer != nil {
		s.observer(p)
	}
}

func (s *Sequencer) stepEvent(ctx context.Context, typ domain.EventType, i int, step Step, progress int, elapsed time.Duration, degraded bool) {
	hook := s.hooks.OnStepEnter
	if typ == domain.EventStepLeave {
		hook = s.hooks.OnStepLeave
	}
	if hook == nil {
		return
	}
	hook(ctx, &domain.StepEvent{
		EventBase: domain.EventBase{Timestamp: s.clock.Now(), Type: typ, Generation: s.generation.Load()},
		StepID:    step.ID,
		StepIndex: i,
		Progress:  progress,
		Elapsed:   elapsed,
		Degraded:  degraded,
	})
}
