package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/aretw0/advisor/pkg/clock"
	"github.com/aretw0/advisor/pkg/domain"
	"github.com/aretw0/advisor/pkg/gateway"
	"github.com/aretw0/advisor/pkg/schema"
	"golang.org/x/sync/errgroup"
)

// Engine orchestrates the five categories of one analysis session.
//
// Categories are dispatched concurrently and joined with settle-all
// semantics: a failing category never cancels its siblings. Every write is
// tagged with the generation it belongs to, so a run superseded by
// RetryPipeline can no longer touch the store.
type Engine struct {
	gw       gateway.Caller
	store    *TaskStore
	resolver *Resolver
	agg      *Aggregator
	clock    clock.Clock
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	period   string
	callOpts []gateway.CallOption

	sessionID string

	mu      sync.Mutex
	current *run
	runs    []*run
	guided  *guidedRun
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom structured logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithLifecycleHooks registers observability hooks for task updates and
// guided steps.
func WithLifecycleHooks(h domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = h
	}
}

// WithClock sets the scheduler for step pacing.
func WithClock(c clock.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithSessionID labels the result set.
func WithSessionID(id string) EngineOption {
	return func(e *Engine) {
		e.sessionID = id
	}
}

// WithPeriod sets the look-back window of dependent requests.
func WithPeriod(p string) EngineOption {
	return func(e *Engine) {
		if p != "" {
			e.period = p
		}
	}
}

// WithAggregator replaces the default result aggregator.
func WithAggregator(a *Aggregator) EngineOption {
	return func(e *Engine) {
		e.agg = a
	}
}

// WithCallOptions applies per-call gateway options to every request.
func WithCallOptions(opts ...gateway.CallOption) EngineOption {
	return func(e *Engine) {
		e.callOpts = append(e.callOpts, opts...)
	}
}

// NewEngine creates an engine calling the scoring service through gw.
func NewEngine(gw gateway.Caller, opts ...EngineOption) *Engine {
	e := &Engine{
		gw:       gw,
		resolver: NewResolver(),
		agg:      NewAggregator(),
		clock:    clock.Real{},
		period:   DefaultPeriod,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.sessionID != "" {
		e.logger = e.logger.With("session", e.sessionID)
	}
	e.store = NewTaskStore(e.sessionID,
		WithStoreHooks(e.hooks),
		WithStoreClock(e.clock),
		WithStoreLogger(e.logger),
	)
	return e
}

// Store exposes the task store for readers and persistence.
func (e *Engine) Store() *TaskStore {
	return e.store
}

// Snapshot returns a copy of the current result set.
func (e *Engine) Snapshot() *domain.ResultSet {
	return e.store.Snapshot()
}

// Subscribe streams snapshots after every accepted write.
func (e *Engine) Subscribe() (<-chan *domain.ResultSet, func()) {
	return e.store.Subscribe()
}

// Start begins a new generation for ac and dispatches the independent
// categories. The dependent ones stay pending until the allocation succeeds;
// the resolver then dispatches them within the same join.
func (e *Engine) Start(ctx context.Context, ac domain.AnalysisContext) (uint64, error) {
	if err := ac.Validate(); err != nil {
		return 0, err
	}
	r := e.begin(ctx, ac)
	e.logger.Info("Analysis started", "generation", r.gen, "amount", ac.Amount, "risk", ac.RiskTolerance, "horizon", ac.HorizonMonths)

	e.settle(r, func(g *errgroup.Group) {
		for _, c := range domain.Categories() {
			if c.DependsOnAllocation() {
				continue
			}
			g.Go(func() error {
				e.execute(r.ctx, r, c, g)
				return nil
			})
		}
	})
	return r.gen, nil
}

// Restore makes a persisted snapshot the active run, so single categories
// can be retried without starting over. Tasks that were in flight when the
// snapshot was taken stay as they are until retried.
func (e *Engine) Restore(ctx context.Context, rs *domain.ResultSet) {
	if rs == nil {
		return
	}
	e.store.Restore(rs)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := newRun(runCtx, cancel, rs.Generation, rs.Context)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs = append(e.runs, r)
	e.current = r
}

// Wait blocks until every task dispatched for the active generation settled.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	r := e.current
	e.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.wait(ctx)
}

// Drain waits for the work of every generation, including superseded ones.
func (e *Engine) Drain(ctx context.Context) error {
	e.mu.Lock()
	runs := append([]*run(nil), e.runs...)
	e.mu.Unlock()
	for _, r := range runs {
		if err := r.wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close cancels the requests of every run and waits for them to return.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	for _, r := range e.runs {
		r.cancel()
	}
	e.mu.Unlock()
	return e.Drain(ctx)
}

// RetryCategory re-dispatches one category within the active generation.
func (e *Engine) RetryCategory(ctx context.Context, c domain.Category) error {
	if !c.Valid() {
		return domain.ErrUnknownCategory
	}
	r, err := e.active()
	if err != nil {
		return err
	}
	if c.DependsOnAllocation() && len(e.store.Snapshot().Allocation()) == 0 {
		return ErrMissingAllocation
	}
	e.logger.Info("Retrying category", "category", c, "generation", r.gen)
	e.settle(r, func(g *errgroup.Group) {
		g.Go(func() error {
			e.execute(r.ctx, r, c, g)
			return nil
		})
	})
	return nil
}

// RetryPipeline restarts the whole analysis under a fresh generation.
func (e *Engine) RetryPipeline(ctx context.Context) (uint64, error) {
	r, err := e.active()
	if err != nil {
		return 0, err
	}
	return e.Start(ctx, r.context())
}

// SetExplanationMode regenerates only the explanation with another method.
// The generation is kept.
func (e *Engine) SetExplanationMode(ctx context.Context, mode domain.ExplanationMode) error {
	if _, err := domain.ParseExplanationMode(string(mode)); err != nil {
		return err
	}
	r, err := e.active()
	if err != nil {
		return err
	}
	ac := r.context().WithMode(mode)
	if err := e.store.SetContext(r.gen, ac); err != nil {
		return err
	}
	r.setContext(ac)
	e.logger.Info("Explanation mode changed", "mode", mode, "generation", r.gen)

	e.settle(r, func(g *errgroup.Group) {
		g.Go(func() error {
			e.execute(r.ctx, r, domain.CategoryExplanation, nil)
			return nil
		})
	})
	return nil
}

func (e *Engine) active() (*run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil, domain.ErrNoActiveRun
	}
	return e.current, nil
}

func (e *Engine) begin(ctx context.Context, ac domain.AnalysisContext) *run {
	gen := e.store.Begin(ac)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := newRun(runCtx, cancel, gen, ac)

	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.runs[:0]
	for _, old := range e.runs {
		if !old.idleNow() {
			kept = append(kept, old)
		} else {
			old.cancel()
		}
	}
	e.runs = append(kept, r)
	e.current = r
	return r
}

// settle runs fn's goroutines on a fresh errgroup and tracks it on r until
// all of them returned.
func (e *Engine) settle(r *run, fn func(g *errgroup.Group)) {
	r.acquire()
	go func() {
		defer r.release()
		var g errgroup.Group
		fn(&g)
		_ = g.Wait()
	}()
}

// execute runs category c for run r and stores the outcome. When g is not
// nil a successful allocation may dispatch the dependents on it.
func (e *Engine) execute(ctx context.Context, r *run, c domain.Category, g *errgroup.Group) (any, error) {
	ac := r.context()
	snap := e.store.Snapshot()
	if snap.Generation != r.gen {
		return nil, e.dropped(c, r.gen, domain.ErrStaleGeneration)
	}

	req, ok := buildRequest(c, ac, snap.Allocation(), e.period)
	if !ok {
		return nil, ErrMissingAllocation
	}
	seq := r.dispatch(c)
	cp := checkpoints[c]
	if _, err := e.update(r, c, seq, domain.Loading(cp.dispatched)); err != nil {
		return nil, e.dropped(c, r.gen, err)
	}

	if req.local != nil {
		if _, err := e.update(r, c, seq, domain.Succeeded(req.local)); err != nil {
			return nil, e.dropped(c, r.gen, err)
		}
		e.logger.Debug("Category settled without a call", "category", c)
		return req.local, nil
	}

	raw, err := e.gw.Call(ctx, req.endpoint, req.payload, e.callOpts...)
	if err != nil {
		e.logger.Warn("Category failed", "category", c, "generation", r.gen, "err", err)
		if _, uerr := e.update(r, c, seq, domain.Failed(err)); uerr != nil {
			return nil, e.dropped(c, r.gen, uerr)
		}
		return nil, err
	}

	if cp.received > 0 {
		if _, err := e.update(r, c, seq, domain.Progressed(cp.received)); err != nil {
			return nil, e.dropped(c, r.gen, err)
		}
	}

	if err := schema.Check(c, raw); err != nil {
		e.logger.Warn("Response does not match its contract", "category", c, "err", err)
	}
	result := e.agg.Normalize(c, raw, ac)
	task, err := e.update(r, c, seq, domain.Succeeded(result))
	if err != nil {
		return nil, e.dropped(c, r.gen, err)
	}
	e.logger.Debug("Category succeeded", "category", c, "generation", r.gen)

	if c == domain.CategoryAllocation && g != nil {
		e.resolve(r, g, task)
	}
	return result, nil
}

func (e *Engine) resolve(r *run, g *errgroup.Group, allocation domain.Task) {
	alloc, ok := e.resolver.Observe(r.gen, allocation)
	if !ok {
		return
	}
	e.logger.Debug("Allocation available, dispatching dependents", "holdings", len(alloc), "generation", r.gen)
	for _, c := range domain.DependentCategories() {
		g.Go(func() error {
			e.execute(r.ctx, r, c, nil)
			return nil
		})
	}
}

// update writes p unless a newer dispatch of c took over within the run.
func (e *Engine) update(r *run, c domain.Category, seq uint64, p domain.TaskPatch) (domain.Task, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if r.seq[c] != seq {
		return domain.Task{}, ErrSuperseded
	}
	return e.store.Update(r.gen, c, p)
}

func (e *Engine) dropped(c domain.Category, gen uint64, err error) error {
	switch {
	case errors.Is(err, domain.ErrStaleGeneration):
		e.logger.Debug("Dropped stale write", "category", c, "generation", gen)
	case errors.Is(err, ErrSuperseded):
		e.logger.Debug("Dropped superseded write", "category", c, "generation", gen)
	}
	return err
}

// run is the bookkeeping of one generation.
type run struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	ac       domain.AnalysisContext
	inflight int
	idle     chan struct{}

	// writeMu serialises dispatch stamps with the writes they guard.
	writeMu sync.Mutex
	seq     map[domain.Category]uint64
}

func newRun(ctx context.Context, cancel context.CancelFunc, gen uint64, ac domain.AnalysisContext) *run {
	idle := make(chan struct{})
	close(idle)
	return &run{gen: gen, ctx: ctx, cancel: cancel, ac: ac, idle: idle, seq: make(map[domain.Category]uint64)}
}

// dispatch stamps a new request for c; writes of older stamps are dropped.
func (r *run) dispatch(c domain.Category) uint64 {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.seq[c]++
	return r.seq[c]
}

func (r *run) context() domain.AnalysisContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ac
}

func (r *run) setContext(ac domain.AnalysisContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ac = ac
}

func (r *run) acquire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight == 0 {
		r.idle = make(chan struct{})
	}
	r.inflight++
}

func (r *run) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight--
	if r.inflight == 0 {
		close(r.idle)
	}
}

func (r *run) idleNow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inflight == 0
}

func (r *run) wait(ctx context.Context) error {
	r.mu.Lock()
	ch := r.idle
	r.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
