package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/docasm/pkg/docasm"
	"github.com/cognicore/docasm/pkg/docasm/assembler"
	"github.com/cognicore/docasm/pkg/docasm/dataset"
	"github.com/cognicore/docasm/pkg/docasm/ingest"
	"github.com/cognicore/docasm/pkg/docasm/store/memstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, opts Options) http.Handler {
	t.Helper()
	schema, err := dataset.NewSchema(
		dataset.Field{Name: "text", Type: dataset.TypeString, Nullable: true},
		dataset.Field{Name: "id", Type: dataset.TypeString},
		dataset.Field{Name: "meta", Type: dataset.TypeStringMap},
	)
	require.NoError(t, err)

	asm, err := assembler.New(assembler.Config{
		InputCols:   []string{"text"},
		OutputCols:  []string{"document"},
		IDCol:       "id",
		MetadataCol: "meta",
		CleanupMode: ingest.ModeShrink,
	}, schema, assembler.WithLogger(log.New(io.Discard, "", 0)))
	require.NoError(t, err)

	opts.Engine = docasm.New(docasm.Options{Assembler: asm, Store: memstore.New()})
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(opts).Router()
}

func do(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type annotationJSON struct {
	AnnotatorType string            `json:"annotatorType"`
	Begin         int               `json:"begin"`
	End           int               `json:"end"`
	Result        string            `json:"result"`
	Metadata      map[string]string `json:"metadata"`
	Embeddings    []float32         `json:"embeddings"`
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, Options{})
	w := do(h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestIDEchoed(t *testing.T) {
	h := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestModes(t *testing.T) {
	h := newTestServer(t, Options{})
	w := do(h, http.MethodGet, "/v1/modes", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Modes    []string      `json:"modes"`
		Active   string        `json:"active"`
		Bindings []bindingView `json:"bindings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Modes, 8)
	assert.Equal(t, "shrink", body.Active)
	require.Len(t, body.Bindings, 1)
	assert.Equal(t, "scalar_full", body.Bindings[0].Variant)
}

func TestAssembleAndFetch(t *testing.T) {
	h := newTestServer(t, Options{})

	w := do(h, http.MethodPost, "/v1/assemble", map[string]any{
		"rows": []map[string]any{
			{"text": "  Hello   world ", "id": "row42", "meta": map[string]string{"lang": "en"}},
			{"text": ""},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		RunID string                        `json:"run_id"`
		Rows  []map[string][]annotationJSON `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RunID)
	require.Len(t, resp.Rows, 2)

	first := resp.Rows[0]["document"]
	require.Len(t, first, 1)
	assert.Equal(t, "Hello world", first[0].Result)
	assert.Equal(t, "document", first[0].AnnotatorType)
	assert.Equal(t, 10, first[0].End)
	assert.Equal(t, map[string]string{"sentence": "0", "id": "row42", "lang": "en"}, first[0].Metadata)
	assert.NotNil(t, first[0].Embeddings)

	second, ok := resp.Rows[1]["document"]
	assert.True(t, ok)
	assert.Empty(t, second)

	w = do(h, http.MethodGet, "/v1/runs/"+resp.RunID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var run struct {
		ID   string `json:"id"`
		Rows int    `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, resp.RunID, run.ID)
	assert.Equal(t, 2, run.Rows)

	w = do(h, http.MethodGet, "/v1/runs/"+resp.RunID+"/rows/0/document", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fetched struct {
		Annotations []annotationJSON `json:"annotations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	require.Len(t, fetched.Annotations, 1)
	assert.Equal(t, "Hello world", fetched.Annotations[0].Result)

	w = do(h, http.MethodGet, "/v1/runs", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAssembleBadRequests(t *testing.T) {
	h := newTestServer(t, Options{MaxRows: 2})

	req := httptest.NewRequest(http.MethodPost, "/v1/assemble", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(h, http.MethodPost, "/v1/assemble", map[string]any{"rows": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(h, http.MethodPost, "/v1/assemble", map[string]any{"rows": []any{nil}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(h, http.MethodPost, "/v1/assemble", map[string]any{
		"rows": []map[string]any{{"text": "a"}, {"text": "b"}, {"text": "c"}},
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestLookupErrors(t *testing.T) {
	h := newTestServer(t, Options{})

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/v1/runs/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/v1/runs/nope/rows/0/document", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/v1/runs/nope/rows/x/document", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/v1/runs?limit=-1", nil).Code)

	w := do(h, http.MethodPost, "/v1/assemble", map[string]any{"rows": []map[string]any{{"text": "a"}}})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/v1/runs/"+resp.RunID+"/rows/5/document", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/v1/runs/"+resp.RunID+"/rows/0/other", nil).Code)
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, Options{RateLimit: 0.001, Burst: 2})

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(h, http.MethodGet, "/healthz", nil).Code)
}
