package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cognicore/docasm/pkg/docasm/ingest"
	"github.com/cognicore/docasm/pkg/docasm/internalerr"
	"github.com/cognicore/docasm/pkg/docasm/store"
)

// Store is an in-memory implementation of store.Store for tests.
type Store struct {
	mu   sync.RWMutex
	runs map[string]store.Run
	anns map[annKey][]ingest.Annotation
}

type annKey struct {
	run    string
	row    int
	column string
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		runs: make(map[string]store.Run),
		anns: make(map[annKey][]ingest.Annotation),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// CreateRun records a run, replacing one with the same ID.
func (s *Store) CreateRun(ctx context.Context, r store.Run) error {
	if r.ID == "" {
		return fmt.Errorf("%w: run id is required", internalerr.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = copyRun(r)
	return nil
}

// PutRun records a run and all its annotations under one lock.
func (s *Store) PutRun(ctx context.Context, r store.Run, rows []map[string][]ingest.Annotation) error {
	if r.ID == "" {
		return fmt.Errorf("%w: run id is required", internalerr.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.anns {
		if k.run == r.ID {
			delete(s.anns, k)
		}
	}
	s.runs[r.ID] = copyRun(r)
	for i, cols := range rows {
		for column, anns := range cols {
			s.anns[annKey{run: r.ID, row: i, column: column}] = copyAnnotations(anns)
		}
	}
	return nil
}

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (store.Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.runs[id]; ok {
		return copyRun(r), true, nil
	}
	return store.Run{}, false, nil
}

// ListRuns returns the newest runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	out := make([]store.Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, copyRun(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PutAnnotations replaces the annotations stored for one row and column.
func (s *Store) PutAnnotations(ctx context.Context, runID string, row int, column string, anns []ingest.Annotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return fmt.Errorf("%w: run %q", internalerr.ErrNotFound, runID)
	}
	s.anns[annKey{run: runID, row: row, column: column}] = copyAnnotations(anns)
	return nil
}

// GetAnnotations returns the annotations for one row and column. Missing
// entries yield an empty slice.
func (s *Store) GetAnnotations(ctx context.Context, runID string, row int, column string) ([]ingest.Annotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyAnnotations(s.anns[annKey{run: runID, row: row, column: column}]), nil
}

func copyRun(r store.Run) store.Run {
	cols := make([]string, len(r.Columns))
	copy(cols, r.Columns)
	r.Columns = cols
	return r
}

func copyAnnotations(in []ingest.Annotation) []ingest.Annotation {
	out := make([]ingest.Annotation, len(in))
	for i, a := range in {
		a.Metadata = a.Metadata.Clone()
		emb := make([]float32, len(a.Embeddings))
		copy(emb, a.Embeddings)
		a.Embeddings = emb
		out[i] = a
	}
	return out
}
