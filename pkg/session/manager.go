package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/advisor/internal/logging"
	"github.com/aretw0/advisor/internal/runtime"
	"github.com/aretw0/advisor/pkg/domain"
	"github.com/aretw0/advisor/pkg/ports"
	"github.com/google/uuid"
)

// DefaultLockTTL bounds how long a crashed replica can hold a session.
const DefaultLockTTL = 30 * time.Second

// EngineFactory creates the engine of a new or revived session.
type EngineFactory func(sessionID string) *runtime.Engine

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// live is a session whose engine runs in this process.
type live struct {
	engine *runtime.Engine
	stop   func()
	done   chan struct{}
}

// Manager owns the analyses served by this process. Every accepted write of
// a live engine is persisted to the store, so a session can be read (and
// revived) after a restart.
type Manager struct {
	factory EngineFactory
	store   ports.SnapshotStore

	mu       sync.Mutex
	locks    map[string]*lockEntry
	sessions map[string]*live

	locker  ports.DistributedLocker
	lockTTL time.Duration
	newID   func() string
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithIDGenerator replaces the UUID session IDs.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		m.newID = fn
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a session manager persisting to store.
func NewManager(factory EngineFactory, store ports.SnapshotStore, opts ...Option) *Manager {
	m := &Manager{
		factory:  factory,
		store:    store,
		locks:    make(map[string]*lockEntry),
		sessions: make(map[string]*live),
		lockTTL:  DefaultLockTTL,
		newID:    uuid.NewString,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ ports.Analyzer = (*Manager)(nil)

// Start opens a session for ac and dispatches its analysis.
func (m *Manager) Start(ctx context.Context, ac domain.AnalysisContext) (string, error) {
	if err := ac.Validate(); err != nil {
		return "", err
	}
	id := m.newID()
	e := m.factory(id)
	if _, err := e.Start(ctx, ac); err != nil {
		_ = e.Close(ctx)
		return "", err
	}
	m.track(id, e)
	m.logger.Info("Session started", "session_id", id)
	return id, nil
}

// Engine returns the live engine of a session, reviving a persisted one.
func (m *Manager) Engine(ctx context.Context, sessionID string) (*runtime.Engine, error) {
	m.mu.Lock()
	l, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if ok {
		return l.engine, nil
	}

	var e *runtime.Engine
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		// Another caller may have revived it while we waited.
		m.mu.Lock()
		l, ok := m.sessions[sessionID]
		m.mu.Unlock()
		if ok {
			e = l.engine
			return nil
		}

		rs, err := m.store.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		e = m.factory(sessionID)
		e.Restore(ctx, rs)
		m.track(sessionID, e)
		m.logger.Info("Session revived", "session_id", sessionID, "generation", rs.Generation)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Snapshot returns the latest result set of a session. Sessions that are not
// live are read from the store without reviving them.
func (m *Manager) Snapshot(ctx context.Context, sessionID string) (*domain.ResultSet, error) {
	m.mu.Lock()
	l, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if ok {
		return l.engine.Snapshot(), nil
	}

	var rs *domain.ResultSet
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		rs, err = m.store.Load(ctx, sessionID)
		return err
	})
	return rs, err
}

// Wait blocks until the active generation of a live session settled.
func (m *Manager) Wait(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	l, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	return l.engine.Wait(ctx)
}

// RetryTask re-dispatches one category within the current generation.
func (m *Manager) RetryTask(ctx context.Context, sessionID string, c domain.Category) error {
	e, err := m.Engine(ctx, sessionID)
	if err != nil {
		return err
	}
	return e.RetryCategory(ctx, c)
}

// RetryAnalysis restarts every category under a fresh generation.
func (m *Manager) RetryAnalysis(ctx context.Context, sessionID string) (uint64, error) {
	e, err := m.Engine(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return e.RetryPipeline(ctx)
}

// SetExplanationMode regenerates the explanation with another method.
func (m *Manager) SetExplanationMode(ctx context.Context, sessionID string, mode domain.ExplanationMode) error {
	e, err := m.Engine(ctx, sessionID)
	if err != nil {
		return err
	}
	return e.SetExplanationMode(ctx, mode)
}

// Watch streams the changes of a session, starting with a full diff, until
// ctx is done.
func (m *Manager) Watch(ctx context.Context, sessionID string) (<-chan *domain.SnapshotDiff, error) {
	e, err := m.Engine(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	snaps, stop := e.Subscribe()
	out := make(chan *domain.SnapshotDiff, 8)
	go func() {
		defer close(out)
		defer stop()

		var prev *domain.ResultSet
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-snaps:
				if !ok {
					return
				}
				diff := domain.Diff(prev, snap)
				prev = snap
				if diff == nil {
					continue
				}
				select {
				case out <- diff:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// List returns the live and persisted sessions.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	stored, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(stored))
	ids := make([]string, 0, len(stored))
	for _, id := range stored {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	m.mu.Lock()
	for id := range m.sessions {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	sort.Strings(ids)
	return ids, nil
}

// Save persists a snapshot under the session lock.
func (m *Manager) Save(ctx context.Context, sessionID string, rs *domain.ResultSet) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Save(ctx, sessionID, rs)
	})
}

// Delete stops a live session and removes it from the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	l, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if ok {
		if err := m.shutdown(ctx, l); err != nil {
			return err
		}
	}
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// Close stops every live session after persisting its final snapshot.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*live)
	m.mu.Unlock()

	var errs []error
	for id, l := range sessions {
		if err := m.shutdown(ctx, l); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Store returns the underlying snapshot store.
func (m *Manager) Store() ports.SnapshotStore {
	return m.store
}

// track registers e and persists its snapshots until shutdown.
func (m *Manager) track(sessionID string, e *runtime.Engine) {
	snaps, stop := e.Subscribe()
	l := &live{engine: e, stop: stop, done: make(chan struct{})}

	m.mu.Lock()
	m.sessions[sessionID] = l
	m.mu.Unlock()

	go func() {
		defer close(l.done)
		for snap := range snaps {
			if err := m.Save(context.Background(), sessionID, snap); err != nil {
				m.logger.Warn("Failed to persist snapshot", "session_id", sessionID, "generation", snap.Generation, "err", err)
			}
		}
	}()
}

// shutdown waits for in-flight work, then lets the persister flush the last
// snapshot.
func (m *Manager) shutdown(ctx context.Context, l *live) error {
	err := l.engine.Close(ctx)
	l.stop()
	select {
	case <-l.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes fn while holding the local and, if configured, the
// distributed lock of the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
