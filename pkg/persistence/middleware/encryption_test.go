package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/advisor/pkg/domain"
	"github.com/aretw0/advisor/pkg/persistence/middleware"
	"github.com/aretw0/advisor/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func snapshot(id string) *domain.ResultSet {
	rs := domain.NewResultSet(id, 4, domain.AnalysisContext{
		Amount:          750000,
		RiskTolerance:   domain.RiskAggressive,
		HorizonMonths:   36,
		ExplanationMode: domain.ModeFast,
	})
	rs.Tasks[domain.CategoryAllocation] = domain.Task{
		Category: domain.CategoryAllocation,
		Status:   domain.StatusSuccess,
		Progress: 100,
		Result: domain.Portfolio{Holdings: []domain.Holding{
			{Symbol: "NVDA", Weight: 1, Percentage: 100, Amount: 750000},
		}},
	}
	return rs
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ports.RunSnapshotStoreContract(t, mw(NewMockStore()))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := NewMockStore()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	ctx := context.Background()

	require.NoError(t, secure.Save(ctx, "s1", snapshot("s1")))

	raw := underlying.Raw("s1")
	assert.NotContains(t, raw, "NVDA")
	assert.NotContains(t, raw, "750000")
	assert.Contains(t, raw, `"sealed"`)

	envelope, err := underlying.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), envelope.Generation)
	assert.Empty(t, envelope.Tasks)

	loaded, err := secure.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 750000.0, loaded.Context.Amount)
	p, ok := loaded.Portfolio()
	require.True(t, ok)
	assert.Equal(t, "NVDA", p.Holdings[0].Symbol)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := NewMockStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	secureOld := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	require.NoError(t, secureOld.Save(ctx, "rot", snapshot("rot")))

	secureNew := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)

	loaded, err := secureNew.Load(ctx, "rot")
	require.NoError(t, err, "fallback key should decrypt")

	loaded.Generation = 5
	require.NoError(t, secureNew.Save(ctx, "rot", loaded))

	_, err = secureOld.Load(ctx, "rot")
	assert.Error(t, err, "old key alone cannot read snapshots sealed with the new key")
}

func TestEncryptionMiddleware_RejectsPlainSnapshots(t *testing.T) {
	underlying := NewMockStore()
	ctx := context.Background()
	require.NoError(t, underlying.Save(ctx, "plain", snapshot("plain")))

	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	_, err := secure.Load(ctx, "plain")
	assert.ErrorIs(t, err, middleware.ErrNotSealed)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	assert.Error(t, middleware.EncryptionConfig{ActiveKey: []byte("short-key")}.Validate())
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	})
}
