package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/advisor/internal/runtime"
	"github.com/aretw0/advisor/internal/testutils"
	"github.com/aretw0/advisor/pkg/adapters/memory"
	"github.com/aretw0/advisor/pkg/adapters/redis"
	"github.com/aretw0/advisor/pkg/clock"
	"github.com/aretw0/advisor/pkg/domain"
	"github.com/aretw0/advisor/pkg/gateway"
	"github.com/aretw0/advisor/pkg/ports"
	"github.com/aretw0/advisor/pkg/session"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func factory(svc *testutils.ScoringService) session.EngineFactory {
	return func(id string) *runtime.Engine {
		fake := clock.NewFake()
		gw := gateway.New(svc.URL, gateway.WithClock(fake))
		return runtime.NewEngine(gw, runtime.WithSessionID(id), runtime.WithClock(fake))
	}
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("s%d", n)
	}
}

func newManager(t *testing.T, svc *testutils.ScoringService, store ports.SnapshotStore, opts ...session.Option) *session.Manager {
	t.Helper()
	opts = append([]session.Option{session.WithIDGenerator(sequentialIDs())}, opts...)
	mgr := session.NewManager(factory(svc), store, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Close(ctx)
	})
	return mgr
}

func ctxTimeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestManager_StartPersistsSnapshots(t *testing.T) {
	svc := testutils.NewScoringService(t)
	store := memory.NewStore()
	mgr := newManager(t, svc, store)
	ctx := ctxTimeout(t)

	id, err := mgr.Start(ctx, testutils.Context())
	require.NoError(t, err)
	assert.Equal(t, "s1", id)
	require.NoError(t, mgr.Wait(ctx, id))

	snap, err := mgr.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.True(t, snap.Settled())
	assert.Equal(t, id, snap.SessionID)

	require.NoError(t, mgr.Close(ctx))
	stored, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.True(t, stored.Settled(), "the final snapshot is flushed on close")
}

func TestManager_RejectsInvalidContext(t *testing.T) {
	svc := testutils.NewScoringService(t)
	mgr := newManager(t, svc, memory.NewStore())

	_, err := mgr.Start(context.Background(), domain.AnalysisContext{Amount: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidContext)

	ids, err := mgr.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestManager_UnknownSession(t *testing.T) {
	svc := testutils.NewScoringService(t)
	mgr := newManager(t, svc, memory.NewStore())
	ctx := context.Background()

	_, err := mgr.Snapshot(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, mgr.RetryTask(ctx, "nope", domain.CategoryAllocation), domain.ErrSessionNotFound)
	_, err = mgr.Watch(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, mgr.Wait(ctx, "nope"), domain.ErrSessionNotFound)
}

func TestManager_RevivesPersistedSession(t *testing.T) {
	svc := testutils.NewScoringService(t)
	svc.Fail(gateway.EndpointCorrelation, 503)
	store := memory.NewStore()
	ctx := ctxTimeout(t)

	first := session.NewManager(factory(svc), store, session.WithIDGenerator(sequentialIDs()))
	id, err := first.Start(ctx, testutils.Context())
	require.NoError(t, err)
	require.NoError(t, first.Wait(ctx, id))
	require.NoError(t, first.Close(ctx))

	// A new process serves the stored snapshot.
	svc.Respond(gateway.EndpointCorrelation, 200, testutils.DefaultResponses()[gateway.EndpointCorrelation])
	second := newManager(t, svc, store)

	snap, err := second.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, snap.Task(domain.CategoryCorrelation).Status)
	gen := snap.Generation

	require.NoError(t, second.RetryTask(ctx, id, domain.CategoryCorrelation))
	require.NoError(t, second.Wait(ctx, id))

	snap, err = second.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, gen, snap.Generation)
	assert.Equal(t, domain.StatusSuccess, snap.Task(domain.CategoryCorrelation).Status)
	assert.Len(t, snap.Correlations(), 1)
	assert.Equal(t, 1, svc.Calls(gateway.EndpointPredict), "reviving does not re-run the allocation")

	next, err := second.RetryAnalysis(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, gen+1, next)
}

func TestManager_Watch(t *testing.T) {
	svc := testutils.NewScoringService(t)
	mgr := newManager(t, svc, memory.NewStore())
	ctx := ctxTimeout(t)

	id, err := mgr.Start(ctx, testutils.Context())
	require.NoError(t, err)
	require.NoError(t, mgr.Wait(ctx, id))

	watchCtx, cancel := context.WithCancel(ctx)
	diffs, err := mgr.Watch(watchCtx, id)
	require.NoError(t, err)

	initial := <-diffs
	require.NotNil(t, initial)
	assert.False(t, initial.Reset)
	assert.Len(t, initial.Tasks, len(domain.Categories()))

	require.NoError(t, mgr.SetExplanationMode(ctx, id, domain.ModeAccurate))

	var last *domain.SnapshotDiff
	for d := range diffs {
		for c := range d.Tasks {
			assert.Equal(t, domain.CategoryExplanation, c, "only the explanation changes")
		}
		last = d
		if d.Tasks[domain.CategoryExplanation].Status == domain.StatusSuccess {
			break
		}
	}
	require.NotNil(t, last)
	assert.Equal(t, 100, last.Tasks[domain.CategoryExplanation].Progress)

	cancel()
	for range diffs {
	}
}

func TestManager_ListAndDelete(t *testing.T) {
	svc := testutils.NewScoringService(t)
	store := memory.NewStore()
	ctx := ctxTimeout(t)
	require.NoError(t, store.Save(ctx, "old", domain.NewResultSet("old", 1, testutils.Context())))

	mgr := newManager(t, svc, store)
	id, err := mgr.Start(ctx, testutils.Context())
	require.NoError(t, err)

	ids, err := mgr.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"old", id}, ids)

	require.NoError(t, mgr.Delete(ctx, id))
	require.NoError(t, mgr.Delete(ctx, "old"))
	ids, err = mgr.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	*memory.Store
	mu      sync.Mutex
	active  int
	maxSeen int
}

func (s *SlowStore) Save(ctx context.Context, sessionID string, rs *domain.ResultSet) error {
	s.mu.Lock()
	s.active++
	if s.active > s.maxSeen {
		s.maxSeen = s.active
	}
	s.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	return s.Store.Save(ctx, sessionID, rs)
}

func TestManager_Locking(t *testing.T) {
	store := &SlowStore{Store: memory.NewStore()}
	manager := session.NewManager(nil, store)
	ctx := context.Background()
	id := "race-test"

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(gen uint64) {
			defer wg.Done()
			assert.NoError(t, manager.Save(ctx, id, domain.NewResultSet(id, gen, domain.AnalysisContext{})))
		}(uint64(i))
	}
	wg.Wait()

	assert.Equal(t, 1, store.maxSeen, "saves of one session must be serialized")
}

func TestManager_DistributedLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	defer client.Close()

	svc := testutils.NewScoringService(t)
	store := memory.NewStore()
	mgr := newManager(t, svc, store, session.WithLocker(redis.NewLocker(client, "advisor:")), session.WithLockTTL(time.Second))
	ctx := ctxTimeout(t)

	id, err := mgr.Start(ctx, testutils.Context())
	require.NoError(t, err)
	require.NoError(t, mgr.Wait(ctx, id))
	require.NoError(t, mgr.Close(ctx))

	_, err = store.Load(ctx, id)
	require.NoError(t, err)
	assert.False(t, mr.Exists("advisor:lock:"+id), "locks are released after every save")
}
