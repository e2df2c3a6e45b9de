package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/docasm/pkg/docasm/ingest"
	"github.com/cognicore/docasm/pkg/docasm/internalerr"
	"github.com/cognicore/docasm/pkg/docasm/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode and foreign keys
// enabled on every pooled connection.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// dsn carries the pragmas in the connection string so the driver applies
// them to each new connection, not only the first.
func dsn(path string) string {
	return "file:" + path +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)"
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	cleanup_mode TEXT,
	columns TEXT,
	row_count INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS annotations (
	run_id TEXT NOT NULL,
	row_idx INTEGER NOT NULL,
	column_name TEXT NOT NULL,
	seq INTEGER NOT NULL,
	kind TEXT NOT NULL,
	begin_pos INTEGER NOT NULL,
	end_pos INTEGER NOT NULL,
	text TEXT NOT NULL,
	metadata TEXT NOT NULL,
	PRIMARY KEY(run_id, row_idx, column_name, seq),
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreateRun inserts or replaces a run
func (s *sqliteStore) CreateRun(ctx context.Context, r store.Run) error {
	return upsertRun(ctx, s.db, r)
}

func upsertRun(ctx context.Context, db execer, r store.Run) error {
	if r.ID == "" {
		return fmt.Errorf("%w: run id is required", internalerr.ErrInvalidInput)
	}

	cols, err := json.Marshal(r.Columns)
	if err != nil {
		return err
	}

	const stmt = `
INSERT INTO runs (id, created_at, cleanup_mode, columns, row_count)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	created_at=excluded.created_at,
	cleanup_mode=excluded.cleanup_mode,
	columns=excluded.columns,
	row_count=excluded.row_count;
`
	_, err = db.ExecContext(
		ctx,
		stmt,
		r.ID,
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
		r.CleanupMode,
		string(cols),
		r.Rows,
	)
	return err
}

// PutRun writes the run and every row's annotations in one transaction
func (s *sqliteStore) PutRun(ctx context.Context, r store.Run, rows []map[string][]ingest.Annotation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := upsertRun(ctx, tx, r); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM annotations WHERE run_id = ?`, r.ID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, insertAnnotation)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, cols := range rows {
		for column, anns := range cols {
			if err := insertAnnotations(ctx, stmt, r.ID, i, column, anns); err != nil {
				return fmt.Errorf("row %d column %s: %w", i, column, err)
			}
		}
	}

	return tx.Commit()
}

// GetRun returns a run by ID
func (s *sqliteStore) GetRun(ctx context.Context, id string) (store.Run, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, cleanup_mode, columns, row_count FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Run{}, false, nil
	}
	if err != nil {
		return store.Run{}, false, err
	}
	return r, true, nil
}

// ListRuns returns the newest runs first
func (s *sqliteStore) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, cleanup_mode, columns, row_count FROM runs
		 ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (store.Run, error) {
	var (
		r       store.Run
		created string
		mode    sql.NullString
		cols    sql.NullString
	)
	if err := sc.Scan(&r.ID, &created, &mode, &cols, &r.Rows); err != nil {
		return store.Run{}, err
	}

	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return store.Run{}, fmt.Errorf("run %s: created_at: %w", r.ID, err)
	}
	r.CreatedAt = t
	r.CleanupMode = mode.String

	if cols.Valid && cols.String != "" {
		if err := json.Unmarshal([]byte(cols.String), &r.Columns); err != nil {
			return store.Run{}, fmt.Errorf("run %s: columns: %w", r.ID, err)
		}
	}
	return r, nil
}

// PutAnnotations replaces the annotations stored for one row and column
func (s *sqliteStore) PutAnnotations(ctx context.Context, runID string, row int, column string, anns []ingest.Annotation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: run %q", internalerr.ErrNotFound, runID)
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM annotations WHERE run_id = ? AND row_idx = ? AND column_name = ?`,
		runID, row, column); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, insertAnnotation)
	if err != nil {
		return err
	}
	defer stmt.Close()

	if err := insertAnnotations(ctx, stmt, runID, row, column, anns); err != nil {
		return err
	}

	return tx.Commit()
}

const insertAnnotation = `
INSERT INTO annotations (run_id, row_idx, column_name, seq, kind, begin_pos, end_pos, text, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func insertAnnotations(ctx context.Context, stmt *sql.Stmt, runID string, row int, column string, anns []ingest.Annotation) error {
	for seq, a := range anns {
		meta, err := json.Marshal(a.Metadata)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, runID, row, column, seq, a.Kind, a.Begin, a.End, a.Text, string(meta)); err != nil {
			return err
		}
	}
	return nil
}

// GetAnnotations returns the annotations for one row and column in order
func (s *sqliteStore) GetAnnotations(ctx context.Context, runID string, row int, column string) ([]ingest.Annotation, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT kind, begin_pos, end_pos, text, metadata FROM annotations
WHERE run_id = ? AND row_idx = ? AND column_name = ?
ORDER BY seq`, runID, row, column)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	anns := []ingest.Annotation{}
	for rows.Next() {
		var (
			a    ingest.Annotation
			meta string
		)
		if err := rows.Scan(&a.Kind, &a.Begin, &a.End, &a.Text, &meta); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &a.Metadata); err != nil {
			return nil, fmt.Errorf("annotation metadata: %w", err)
		}
		a.Embeddings = []float32{}
		anns = append(anns, a)
	}
	return anns, rows.Err()
}
