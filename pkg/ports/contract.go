package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/advisor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSnapshotStoreContract runs a suite of tests to verify that a
// SnapshotStore implementation adheres to the interface contract.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		rs := contractSnapshot(sessionID)

		err := store.Save(ctx, sessionID, rs)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, rs.Generation, loaded.Generation)
		assert.Equal(t, rs.Context, loaded.Context)
		assert.Equal(t, domain.StatusError, loaded.Task(domain.CategoryCorrelation).Status)
		assert.Equal(t, "status 502", loaded.Task(domain.CategoryCorrelation).Error)

		// Payloads come back typed, not as generic maps.
		p, ok := loaded.Portfolio()
		require.True(t, ok, "allocation payload should decode to a Portfolio")
		require.Len(t, p.Holdings, 2)
		assert.Equal(t, "AAPL", p.Holdings[0].Symbol)
	})

	t.Run("Save overwrites", func(t *testing.T) {
		rs := contractSnapshot(sessionID)
		rs.Generation = 7
		require.NoError(t, store.Save(ctx, sessionID, rs))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), loaded.Generation)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, contractSnapshot(sessionID))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, contractSnapshot(id1))
		_ = store.Save(ctx, id2, contractSnapshot(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}

func contractSnapshot(sessionID string) *domain.ResultSet {
	rs := domain.NewResultSet(sessionID, 3, domain.AnalysisContext{
		Amount:          500000,
		RiskTolerance:   domain.RiskModerate,
		HorizonMonths:   12,
		ExplanationMode: domain.ModeFast,
	})
	rs.Tasks[domain.CategoryAllocation] = domain.Task{
		Category: domain.CategoryAllocation,
		Status:   domain.StatusSuccess,
		Progress: 100,
		Result: domain.Portfolio{
			Holdings: []domain.Holding{
				{Symbol: "AAPL", Weight: 0.5, Percentage: 50, Amount: 250000},
				{Symbol: "MSFT", Weight: 0.5, Percentage: 50, Amount: 250000},
			},
		},
	}
	rs.Tasks[domain.CategoryCorrelation] = domain.Task{
		Category: domain.CategoryCorrelation,
		Status:   domain.StatusError,
		Error:    "status 502",
	}
	return rs
}
