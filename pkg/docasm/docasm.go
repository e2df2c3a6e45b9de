package docasm

import (
	"context"
	"fmt"
	"time"

	"github.com/cognicore/docasm/pkg/docasm/assembler"
	"github.com/cognicore/docasm/pkg/docasm/dataset"
	"github.com/cognicore/docasm/pkg/docasm/ingest"
	"github.com/cognicore/docasm/pkg/docasm/store"
)

// Engine binds an assembler to a store and records each batch as a run
type Engine struct {
	asm     *assembler.Assembler
	store   store.Store
	ids     *store.IDs
	workers int
	now     func() time.Time
}

// Options configures an Engine
type Options struct {
	Assembler *assembler.Assembler
	Store     store.Store
	Workers   int
	Now       func() time.Time
}

// New creates an Engine with the given dependencies
func New(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		asm:     opts.Assembler,
		store:   opts.Store,
		ids:     store.NewIDs(),
		workers: opts.Workers,
		now:     now,
	}
}

// Close cleanly shuts down the Engine
func (e *Engine) Close() error {
	return e.store.Close()
}

// Assembler returns the assembler the engine runs.
func (e *Engine) Assembler() *assembler.Assembler { return e.asm }

// Store returns the backing store.
func (e *Engine) Store() store.Store { return e.store }

// RunResult is the outcome of one Process call
type RunResult struct {
	Run  store.Run
	Rows []assembler.Columns
}

// Process assembles rows and stores the run with every output column.
// Either the whole run is stored or none of it is.
func (e *Engine) Process(ctx context.Context, rows []dataset.Row) (RunResult, error) {
	out, err := e.asm.TransformBatch(ctx, rows, e.workers)
	if err != nil {
		return RunResult{}, fmt.Errorf("transform: %w", err)
	}

	created := e.now()
	run := store.Run{
		ID:          e.ids.Next(created),
		CreatedAt:   created,
		CleanupMode: string(e.asm.Mode()),
		Columns:     e.asm.OutputCols(),
		Rows:        len(rows),
	}
	perRow := make([]map[string][]ingest.Annotation, len(out))
	for i, cols := range out {
		perRow[i] = cols
	}
	if err := e.store.PutRun(ctx, run, perRow); err != nil {
		return RunResult{}, fmt.Errorf("store run: %w", err)
	}

	return RunResult{Run: run, Rows: out}, nil
}
