// Package store is the optional run ledger: one row per extraction run and
// one row per processed chunk. It is write-only from the pipeline's point of
// view and never feeds extraction.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gri-cli/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// RunCompletion is the final state of a run.
type RunCompletion struct {
	Status model.RunStatus
	Stats  *model.RunStats
	Report []byte
	Error  string
}

// Store defines the persistence interface for the run ledger.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, input model.RunInput) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, c RunCompletion) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Chunks
	RecordChunk(ctx context.Context, runID string, seq int, res model.ChunkResult) error
	ListChunkResults(ctx context.Context, runID string) ([]model.ChunkResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
