package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cognicore/docasm/pkg/docasm/ingest"
	"github.com/cognicore/docasm/pkg/docasm/internalerr"
	"github.com/cognicore/docasm/pkg/docasm/store"
)

func openTemp(t *testing.T) store.Store {
	t.Helper()
	st, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// TestSQLiteIntegrationBasic tests run and annotation round trips
func TestSQLiteIntegrationBasic(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := store.Run{
		ID:          "01HZY0000000000000000000AA",
		CreatedAt:   created,
		CleanupMode: "shrink_full",
		Columns:     []string{"document", "sentences"},
		Rows:        2,
	}
	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, found, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !found {
		t.Fatal("Run should be found")
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt mismatch: got %v, want %v", got.CreatedAt, created)
	}
	if got.CleanupMode != "shrink_full" || got.Rows != 2 {
		t.Errorf("Unexpected run %+v", got)
	}
	if len(got.Columns) != 2 || got.Columns[1] != "sentences" {
		t.Errorf("Columns mismatch: %v", got.Columns)
	}

	meta := ingest.NewMetadata(ingest.MetaSentence, "0", ingest.MetaID, "row42")
	meta.Merge(map[string]string{"lang": "en"})
	first, _ := ingest.NewDocument("Hello world.", meta)
	second, _ := ingest.NewDocument("Bye.", ingest.NewMetadata(ingest.MetaSentence, "2"))

	if err := st.PutAnnotations(ctx, run.ID, 0, "document", []ingest.Annotation{first, second}); err != nil {
		t.Fatalf("PutAnnotations: %v", err)
	}

	anns, err := st.GetAnnotations(ctx, run.ID, 0, "document")
	if err != nil {
		t.Fatalf("GetAnnotations: %v", err)
	}
	if len(anns) != 2 {
		t.Fatalf("Expected 2 annotations, got %d", len(anns))
	}
	if anns[0].Text != "Hello world." || anns[0].End != 11 || anns[0].Kind != ingest.DocumentKind {
		t.Errorf("Unexpected first annotation %+v", anns[0])
	}
	keys := anns[0].Metadata.Keys()
	if len(keys) != 3 || keys[0] != "sentence" || keys[1] != "id" || keys[2] != "lang" {
		t.Errorf("Metadata order lost: %v", keys)
	}
	if anns[1].Text != "Bye." {
		t.Errorf("Order mismatch: %+v", anns[1])
	}
	if err := anns[1].Validate(); err != nil {
		t.Errorf("Loaded annotation invalid: %v", err)
	}
}

func TestSQLitePutReplaces(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)

	_ = st.CreateRun(ctx, store.Run{ID: "r1", CreatedAt: time.Now()})
	a, _ := ingest.NewDocument("one", ingest.NewMetadata(ingest.MetaSentence, "0"))
	b, _ := ingest.NewDocument("two", ingest.NewMetadata(ingest.MetaSentence, "1"))

	if err := st.PutAnnotations(ctx, "r1", 0, "doc", []ingest.Annotation{a, b}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutAnnotations(ctx, "r1", 0, "doc", []ingest.Annotation{b}); err != nil {
		t.Fatal(err)
	}

	anns, _ := st.GetAnnotations(ctx, "r1", 0, "doc")
	if len(anns) != 1 || anns[0].Text != "two" {
		t.Errorf("Second put should replace the first, got %+v", anns)
	}

	if err := st.PutAnnotations(ctx, "r1", 1, "doc", nil); err != nil {
		t.Fatal(err)
	}
	empty, err := st.GetAnnotations(ctx, "r1", 1, "doc")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("Expected empty slice, got %v, %v", empty, err)
	}
}

func TestSQLiteUnknownRun(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)

	a, _ := ingest.NewDocument("x", ingest.Metadata{})
	err := st.PutAnnotations(ctx, "missing", 0, "doc", []ingest.Annotation{a})
	if !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if _, found, err := st.GetRun(ctx, "missing"); found || err != nil {
		t.Errorf("Missing run: found=%v err=%v", found, err)
	}

	if err := st.CreateRun(ctx, store.Run{}); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestSQLiteListRuns(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		r := store.Run{ID: fmt.Sprintf("run-%d", i), CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := st.CreateRun(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := st.ListRuns(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 {
		t.Fatalf("Expected 3 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-4" || runs[2].ID != "run-2" {
		t.Errorf("Expected newest first, got %s..%s", runs[0].ID, runs[2].ID)
	}
}

func TestSQLiteConcurrentPuts(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)
	_ = st.CreateRun(ctx, store.Run{ID: "r1", CreatedAt: time.Now()})

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(row int) {
			defer wg.Done()
			a, _ := ingest.NewDocument(fmt.Sprintf("row %d", row), ingest.NewMetadata(ingest.MetaSentence, "0"))
			errs <- st.PutAnnotations(ctx, "r1", row, "doc", []ingest.Annotation{a})
		}(i)
	}
	wg.Wait()
	close(errs)

	failed := 0
	for err := range errs {
		if err != nil {
			failed++
		}
	}
	// SQLite serializes writers; busy errors are acceptable but most writes land
	if failed == 20 {
		t.Fatal("All concurrent writes failed")
	}
}

func rowsOf(texts ...string) []map[string][]ingest.Annotation {
	out := make([]map[string][]ingest.Annotation, len(texts))
	for i, text := range texts {
		anns := []ingest.Annotation{}
		if a, ok := ingest.NewDocument(text, ingest.NewMetadata(ingest.MetaSentence, "0")); ok {
			anns = append(anns, a)
		}
		out[i] = map[string][]ingest.Annotation{"doc": anns}
	}
	return out
}

func TestSQLitePutRun(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)

	run := store.Run{ID: "r1", CreatedAt: time.Now(), Columns: []string{"doc"}, Rows: 3}
	if err := st.PutRun(ctx, run, rowsOf("one", "", "three")); err != nil {
		t.Fatalf("PutRun: %v", err)
	}

	if _, found, _ := st.GetRun(ctx, "r1"); !found {
		t.Fatal("Run should be stored")
	}
	anns, _ := st.GetAnnotations(ctx, "r1", 2, "doc")
	if len(anns) != 1 || anns[0].Text != "three" {
		t.Errorf("Unexpected row 2 annotations %+v", anns)
	}

	// A second write of the same run replaces all its rows
	run.Rows = 1
	if err := st.PutRun(ctx, run, rowsOf("again")); err != nil {
		t.Fatal(err)
	}
	if anns, _ := st.GetAnnotations(ctx, "r1", 2, "doc"); len(anns) != 0 {
		t.Errorf("Stale row 2 should be gone, got %+v", anns)
	}
}

func TestSQLitePutRunRollsBack(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)
	db := st.(*sqliteStore).db

	_, err := db.ExecContext(ctx, `
CREATE TRIGGER reject_row_two BEFORE INSERT ON annotations
WHEN NEW.row_idx = 2
BEGIN
	SELECT RAISE(ABORT, 'row two rejected');
END;`)
	if err != nil {
		t.Fatal(err)
	}

	run := store.Run{ID: "r1", CreatedAt: time.Now(), Columns: []string{"doc"}, Rows: 3}
	if err := st.PutRun(ctx, run, rowsOf("one", "two", "three")); err == nil {
		t.Fatal("PutRun should fail when an insert is rejected")
	}

	if _, found, err := st.GetRun(ctx, "r1"); found || err != nil {
		t.Errorf("Run must not survive a failed write: found=%v err=%v", found, err)
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM annotations`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("Expected no annotations after rollback, got %d", n)
	}
}

func TestSQLiteForeignKeysOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)
	db := st.(*sqliteStore).db

	// Hold two connections at once so the pool has to open a second one
	c1, err := db.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer c1.Close()
	c2, err := db.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()

	for i, c := range []*sql.Conn{c1, c2} {
		var on int
		if err := c.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&on); err != nil {
			t.Fatal(err)
		}
		if on != 1 {
			t.Errorf("Connection %d: foreign_keys = %d, want 1", i, on)
		}
	}
}

func TestSQLiteDeleteRunCascades(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)
	db := st.(*sqliteStore).db

	run := store.Run{ID: "r1", CreatedAt: time.Now(), Columns: []string{"doc"}, Rows: 2}
	if err := st.PutRun(ctx, run, rowsOf("one", "two")); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, "r1"); err != nil {
		t.Fatal(err)
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM annotations WHERE run_id = ?`, "r1").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("Annotations should cascade with their run, %d left", n)
	}
}
