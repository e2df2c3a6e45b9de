package server

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cognicore/docasm/pkg/docasm"
	"github.com/cognicore/docasm/pkg/docasm/assembler"
	"github.com/cognicore/docasm/pkg/docasm/dataset"
	"github.com/cognicore/docasm/pkg/docasm/ingest"
	"github.com/cognicore/docasm/pkg/docasm/internalerr"
)

// Options configures the HTTP server
type Options struct {
	Engine    *docasm.Engine
	Logger    *slog.Logger
	RateLimit float64 // requests per second; 0 disables limiting
	Burst     int
	MaxRows   int
}

// Server exposes an Engine over HTTP
type Server struct {
	engine  *docasm.Engine
	logger  *slog.Logger
	limiter *rate.Limiter
	maxRows int
}

// New creates a Server
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return &Server{
		engine:  opts.Engine,
		logger:  logger,
		limiter: limiter,
		maxRows: opts.MaxRows,
	}
}

// Router builds the gin engine with middleware and routes
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(s.logger), RateLimit(s.limiter))

	r.GET("/healthz", s.health)

	v1 := r.Group("/v1")
	v1.GET("/modes", s.modes)
	v1.POST("/assemble", s.assemble)
	v1.GET("/runs", s.listRuns)
	v1.GET("/runs/:id", s.getRun)
	v1.GET("/runs/:id/rows/:row/:column", s.getAnnotations)

	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type bindingView struct {
	Input   string `json:"input"`
	Output  string `json:"output"`
	Variant string `json:"variant"`
}

func (s *Server) modes(c *gin.Context) {
	asm := s.engine.Assembler()
	bindings := make([]bindingView, 0)
	for _, b := range asm.Bindings() {
		bindings = append(bindings, bindingView{Input: b.Input, Output: b.Output, Variant: b.Variant.String()})
	}
	c.JSON(http.StatusOK, gin.H{
		"modes":    ingest.Modes(),
		"active":   asm.Mode(),
		"bindings": bindings,
	})
}

type assembleRequest struct {
	Rows []dataset.Row `json:"rows"`
}

type assembleResponse struct {
	RunID string              `json:"run_id"`
	Rows  []assembler.Columns `json:"rows"`
}

func (s *Server) assemble(c *gin.Context) {
	var req assembleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
		return
	}
	if len(req.Rows) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rows must not be empty"})
		return
	}
	if s.maxRows > 0 && len(req.Rows) > s.maxRows {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too many rows", "max_rows": s.maxRows})
		return
	}
	for i, row := range req.Rows {
		if row == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "row " + strconv.Itoa(i) + " is null"})
			return
		}
	}

	res, err := s.engine.Process(c.Request.Context(), req.Rows)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "assembly failed"})
		return
	}
	c.JSON(http.StatusOK, assembleResponse{RunID: res.Run.ID, Rows: res.Rows})
}

func (s *Server) listRuns(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	runs, err := s.engine.Store().ListRuns(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list runs failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) getRun(c *gin.Context) {
	run, found, err := s.engine.Store().GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get run failed"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) getAnnotations(c *gin.Context) {
	row, err := strconv.Atoi(c.Param("row"))
	if err != nil || row < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "row must be a non-negative integer"})
		return
	}

	ctx := c.Request.Context()
	column := c.Param("column")
	run, found, err := s.engine.Store().GetRun(ctx, c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get run failed"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if row >= run.Rows {
		c.JSON(http.StatusNotFound, gin.H{"error": "row out of range"})
		return
	}
	if !slices.Contains(run.Columns, column) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown column"})
		return
	}

	anns, err := s.engine.Store().GetAnnotations(ctx, run.ID, row, column)
	if errors.Is(err, internalerr.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "annotations not found"})
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get annotations failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": run.ID, "row": row, "column": column, "annotations": anns})
}
