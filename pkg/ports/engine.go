package ports

import (
	"context"

	"github.com/aretw0/advisor/pkg/domain"
)

// Analyzer is what the outer surfaces (HTTP, MCP) need from the session
// layer. It only exposes snapshot reads and the retry operations.
type Analyzer interface {
	// Start opens a new session and dispatches its analysis.
	Start(ctx context.Context, ac domain.AnalysisContext) (sessionID string, err error)

	// Snapshot returns the latest result set of a session.
	Snapshot(ctx context.Context, sessionID string) (*domain.ResultSet, error)

	// List returns the IDs of the known sessions.
	List(ctx context.Context) ([]string, error)

	// RetryTask re-dispatches one category within the current generation.
	RetryTask(ctx context.Context, sessionID string, c domain.Category) error

	// RetryAnalysis restarts every category under a fresh generation.
	RetryAnalysis(ctx context.Context, sessionID string) (uint64, error)

	// SetExplanationMode regenerates the explanation with another method.
	SetExplanationMode(ctx context.Context, sessionID string, mode domain.ExplanationMode) error

	// Watch streams snapshot diffs of a session until ctx is done.
	Watch(ctx context.Context, sessionID string) (<-chan *domain.SnapshotDiff, error)
}
