package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/advisor/pkg/clock"
	"github.com/aretw0/advisor/pkg/domain"
)

// TaskStore owns the per-category task records of one analysis.
//
// Every write goes through Update, which applies domain.Merge to the current
// record. The mutex only guards the swap-in of the merged copy; a write
// tagged with a superseded generation is rejected.
type TaskStore struct {
	mu     sync.Mutex
	set    *domain.ResultSet
	subs   map[int]chan *domain.ResultSet
	nextID int

	clock  clock.Clock
	hooks  domain.LifecycleHooks
	logger *slog.Logger
}

// StoreOption configures a TaskStore.
type StoreOption func(*TaskStore)

// WithStoreHooks registers the OnTaskUpdate hook.
func WithStoreHooks(h domain.LifecycleHooks) StoreOption {
	return func(s *TaskStore) {
		s.hooks = h
	}
}

// WithStoreClock sets the clock used for UpdatedAt stamps.
func WithStoreClock(c clock.Clock) StoreOption {
	return func(s *TaskStore) {
		s.clock = c
	}
}

// WithStoreLogger sets a custom structured logger.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *TaskStore) {
		s.logger = l
	}
}

// NewTaskStore creates an empty store at generation 0.
func NewTaskStore(sessionID string, opts ...StoreOption) *TaskStore {
	s := &TaskStore{
		set:   domain.NewResultSet(sessionID, 0, domain.AnalysisContext{}),
		subs:  make(map[int]chan *domain.ResultSet),
		clock: clock.Real{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// Begin starts a new generation for ac. All tasks return to pending and any
// write still in flight for an older generation will be rejected.
func (s *TaskStore) Begin(ac domain.AnalysisContext) uint64 {
	s.mu.Lock()
	gen := s.set.Generation + 1
	s.set = domain.NewResultSet(s.set.SessionID, gen, ac)
	s.set.UpdatedAt = s.clock.Now()
	snap := s.set.Clone()
	s.publishLocked(snap)
	s.mu.Unlock()

	s.logger.Debug("Generation started", "generation", gen)
	return gen
}

// Restore replaces the current state with a persisted snapshot.
func (s *TaskStore) Restore(rs *domain.ResultSet) {
	if rs == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := rs.Clone()
	if next.SessionID == "" {
		next.SessionID = s.set.SessionID
	}
	s.set = next
	s.publishLocked(next.Clone())
}

// Generation returns the active generation.
func (s *TaskStore) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Generation
}

// IsCurrent reports whether gen is still the active generation.
func (s *TaskStore) IsCurrent(gen uint64) bool {
	return s.Generation() == gen
}

// Context returns the inputs of the active generation.
func (s *TaskStore) Context() domain.AnalysisContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Context
}

// SetContext replaces the inputs of gen, e.g. after an explanation mode change.
func (s *TaskStore) SetContext(gen uint64, ac domain.AnalysisContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.set.Generation {
		return fmt.Errorf("%w: %d (active %d)", domain.ErrStaleGeneration, gen, s.set.Generation)
	}
	s.set.Context = ac
	return nil
}

// Update merges p into the record of category c. Other categories are left
// untouched.
func (s *TaskStore) Update(gen uint64, c domain.Category, p domain.TaskPatch) (domain.Task, error) {
	if !c.Valid() {
		return domain.Task{}, fmt.Errorf("%w: %q", domain.ErrUnknownCategory, c)
	}

	s.mu.Lock()
	if gen != s.set.Generation {
		active := s.set.Generation
		s.mu.Unlock()
		return domain.Task{}, fmt.Errorf("%w: %d (active %d)", domain.ErrStaleGeneration, gen, active)
	}
	next := domain.Merge(s.set.Task(c), p)
	s.set.Tasks[c] = next
	s.set.UpdatedAt = s.clock.Now()
	snap := s.set.Clone()
	s.publishLocked(snap)
	s.mu.Unlock()

	if s.hooks.OnTaskUpdate != nil {
		s.hooks.OnTaskUpdate(context.Background(), &domain.TaskEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventTaskUpdate, Generation: gen},
			Task:      next,
		})
	}
	return next, nil
}

// Task returns the current record of c.
func (s *TaskStore) Task(c domain.Category) domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Task(c)
}

// Snapshot returns a copy of the full result set.
func (s *TaskStore) Snapshot() *domain.ResultSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Clone()
}

// Subscribe returns a channel that receives a snapshot after every accepted
// write. Slow readers only see the latest snapshot. Call the returned func to
// unsubscribe.
func (s *TaskStore) Subscribe() (<-chan *domain.ResultSet, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan *domain.ResultSet, 1)
	ch <- s.set.Clone()
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// publishLocked must be called with s.mu held. It is the only sender on the
// subscriber channels, so a drain followed by a send never blocks.
func (s *TaskStore) publishLocked(snap *domain.ResultSet) {
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
