package store

import (
	"context"
	"time"

	"github.com/cognicore/docasm/pkg/docasm/ingest"
)

// Store persists assembled runs and their annotations
type Store interface {
	Close() error

	// Runs
	CreateRun(ctx context.Context, r Run) error
	GetRun(ctx context.Context, id string) (Run, bool, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// PutRun records a run with the annotations of every row in one step.
	// rows[i] maps output column to annotations for row i. On error
	// neither the run nor any of its annotations is stored.
	PutRun(ctx context.Context, r Run, rows []map[string][]ingest.Annotation) error

	// Annotations, keyed by run, row index and output column
	PutAnnotations(ctx context.Context, runID string, row int, column string, anns []ingest.Annotation) error
	GetAnnotations(ctx context.Context, runID string, row int, column string) ([]ingest.Annotation, error)
}

// Run describes one batch passed through the assembler
type Run struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	CleanupMode string    `json:"cleanup_mode"`
	Columns     []string  `json:"columns"` // output columns
	Rows        int       `json:"rows"`
}
