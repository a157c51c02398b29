package middleware

import (
	"context"

	"github.com/aretw0/advisor/pkg/domain"
	"github.com/aretw0/advisor/pkg/ports"
)

type redactionMiddleware struct {
	next ports.SnapshotStore
}

// NewRedactionMiddleware drops the invested amount from persisted snapshots.
// The context amount and every holding amount are zeroed; weights and
// percentages are kept, so a loaded snapshot still renders the allocation.
func NewRedactionMiddleware() Middleware {
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &redactionMiddleware{next: next}
	}
}

func (m *redactionMiddleware) Save(ctx context.Context, sessionID string, rs *domain.ResultSet) error {
	// The live set is shared with the engine; redact a copy.
	cloned := rs.Clone()
	cloned.Context.Amount = 0

	if alloc, ok := cloned.Tasks[domain.CategoryAllocation]; ok {
		if p, ok := alloc.Result.(domain.Portfolio); ok {
			holdings := make([]domain.Holding, len(p.Holdings))
			for i, h := range p.Holdings {
				h.Amount = 0
				holdings[i] = h
			}
			p.Holdings = holdings
			alloc.Result = p
			cloned.Tasks[domain.CategoryAllocation] = alloc
		}
	}
	return m.next.Save(ctx, sessionID, cloned)
}

func (m *redactionMiddleware) Load(ctx context.Context, sessionID string) (*domain.ResultSet, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *redactionMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *redactionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
