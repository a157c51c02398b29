package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/advisor/pkg/adapters/memory"
	"github.com/aretw0/advisor/pkg/domain"
	"github.com/aretw0/advisor/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunSnapshotStoreContract(t, store)
}

func TestMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	rs := domain.NewResultSet("s1", 1, domain.AnalysisContext{Amount: 1})
	require.NoError(t, store.Save(ctx, "s1", rs))

	rs.Tasks[domain.CategoryAllocation] = domain.Task{Status: domain.StatusError}
	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, loaded.Task(domain.CategoryAllocation).Status)

	loaded.Tasks[domain.CategoryExplanation] = domain.Task{Status: domain.StatusSuccess}
	again, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, again.Task(domain.CategoryExplanation).Status)
}
