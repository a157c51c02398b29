package ports

import (
	"context"

	"github.com/aretw0/advisor/pkg/domain"
)

// SnapshotStore persists the result set of an analysis session, so a
// finished or interrupted analysis can be served again after a restart.
type SnapshotStore interface {
	// Save persists the snapshot for a given session ID.
	Save(ctx context.Context, sessionID string, rs *domain.ResultSet) error

	// Load retrieves the snapshot for a given session ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.ResultSet, error)

	// Delete removes the snapshot for a given session ID.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of every stored session.
	List(ctx context.Context) ([]string, error)
}
