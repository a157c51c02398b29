package runtime

import (
	"context"
	"sync/atomic"

	"github.com/aretw0/advisor/pkg/domain"
)

// guidedRun ties a sequencer to the run its steps currently write to.
type guidedRun struct {
	seq  *Sequencer
	plan Plan
	ac   domain.AnalysisContext
	run  atomic.Pointer[run]
}

// Guided runs plan step by step under a new generation, storing every remote
// result in the task store. Remote failures degrade the step and the run
// continues; only a structural fault returns an error. After the last step
// it observes the plan's settle delay before returning the final snapshot.
func (e *Engine) Guided(ctx context.Context, ac domain.AnalysisContext, plan Plan, observer func(Progress)) (*domain.ResultSet, error) {
	if err := ac.Validate(); err != nil {
		return nil, err
	}

	gr := &guidedRun{plan: plan, ac: ac}
	gr.seq = NewSequencer(plan, func(ctx context.Context, step Step) (any, error) {
		r := gr.run.Load()
		r.acquire()
		defer r.release()
		return e.execute(ctx, r, step.Remote, nil)
	},
		WithSequencerClock(e.clock),
		WithObserver(observer),
		WithSequencerHooks(e.hooks),
		WithSequencerLogger(e.logger),
	)

	e.mu.Lock()
	e.guided = gr
	e.mu.Unlock()

	return e.runGuided(ctx, gr, false)
}

// RetryGuided resets the last guided run and replays it from step 0 under a
// fresh generation.
func (e *Engine) RetryGuided(ctx context.Context) (*domain.ResultSet, error) {
	e.mu.Lock()
	gr := e.guided
	e.mu.Unlock()
	if gr == nil {
		return nil, domain.ErrNoActiveRun
	}
	return e.runGuided(ctx, gr, true)
}

func (e *Engine) runGuided(ctx context.Context, gr *guidedRun, retry bool) (*domain.ResultSet, error) {
	r := e.begin(ctx, gr.ac)
	gr.run.Store(r)
	gr.seq.SetGeneration(r.gen)
	e.logger.Info("Guided analysis started", "generation", r.gen, "steps", len(gr.plan.Steps), "retry", retry)

	var err error
	if retry {
		_, err = gr.seq.Retry(ctx)
	} else {
		_, err = gr.seq.Run(ctx)
	}
	if err != nil {
		return e.store.Snapshot(), err
	}

	if gr.plan.SettleDelay > 0 {
		if err := e.clock.Sleep(ctx, gr.plan.SettleDelay); err != nil {
			return e.store.Snapshot(), err
		}
	}
	return e.store.Snapshot(), nil
}

// GuidedState reports the phase of the last guided run.
func (e *Engine) GuidedState() (Phase, int) {
	e.mu.Lock()
	gr := e.guided
	e.mu.Unlock()
	if gr == nil {
		return PhaseIdle, 0
	}
	return gr.seq.State()
}
