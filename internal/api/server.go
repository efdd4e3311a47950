// Package api exposes run management over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/engine"
	"backtest-lab/internal/orchestrator"
	"backtest-lab/internal/reporting"
	"backtest-lab/internal/scheduler"
	"backtest-lab/internal/storage"
)

// DefaultStreamInterval is how often the progress stream pushes a snapshot.
const DefaultStreamInterval = 500 * time.Millisecond

// RunService is the run lifecycle surface served over HTTP.
type RunService interface {
	StartRun(ctx context.Context, cfg domain.RunConfig) (*domain.Run, error)
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	GetProgress(ctx context.Context, runID string) (*orchestrator.Progress, error)
	GetResult(ctx context.Context, runID string) (*domain.RunResult, error)
	CancelRun(ctx context.Context, runID string) (*domain.Run, error)
	ListRuns(ctx context.Context, filter storage.RunFilter) ([]*domain.Run, error)
}

// SchedulerStatus reports admission occupancy.
type SchedulerStatus interface {
	Status(ctx context.Context) (scheduler.Status, error)
}

// Options configures a Server.
type Options struct {
	Runs           RunService
	Scheduler      SchedulerStatus
	Metrics        http.Handler // served at /metrics when set
	Logger         *zap.Logger
	StreamInterval time.Duration
}

// Server holds the HTTP handlers.
type Server struct {
	runs           RunService
	sched          SchedulerStatus
	metrics        http.Handler
	logger         *zap.Logger
	streamInterval time.Duration
	upgrader       websocket.Upgrader
}

// NewServer creates a Server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := opts.StreamInterval
	if interval <= 0 {
		interval = DefaultStreamInterval
	}
	return &Server{
		runs:           opts.Runs,
		sched:          opts.Scheduler,
		metrics:        opts.Metrics,
		logger:         logger.Named("api"),
		streamInterval: interval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the gin engine with all routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.handleHealth)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := r.Group("/api/v1")
	{
		api.POST("/runs", s.handleStartRun)
		api.GET("/runs", s.handleListRuns)
		api.GET("/runs/:id", s.handleGetRun)
		api.GET("/runs/:id/progress", s.handleGetProgress)
		api.GET("/runs/:id/result", s.handleGetResult)
		api.GET("/runs/:id/report", s.handleGetReport)
		api.POST("/runs/:id/cancel", s.handleCancelRun)
		api.GET("/runs/:id/stream", s.handleStream)
		api.GET("/scheduler", s.handleSchedulerStatus)
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleStartRun(c *gin.Context) {
	var cfg domain.RunConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	run, err := s.runs.StartRun(c.Request.Context(), cfg)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, startRunResponse{
		RunID:         run.ID,
		Status:        run.Status,
		QueuePosition: run.QueuePosition,
	})
}

func (s *Server) handleListRuns(c *gin.Context) {
	filter := storage.RunFilter{
		Status:      domain.RunStatus(c.Query("status")),
		TradingPair: c.Query("pair"),
	}

	var err error
	if filter.Limit, err = intQuery(c, "limit"); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if filter.Offset, err = intQuery(c, "offset"); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	runs, err := s.runs.ListRuns(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}

	out := make([]runResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, toRunResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

func (s *Server) handleGetRun(c *gin.Context) {
	run, err := s.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRunResponse(run))
}

func (s *Server) handleGetProgress(c *gin.Context) {
	p, err := s.runs.GetProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleGetResult(c *gin.Context) {
	result, err := s.runs.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleGetReport serves the Markdown report, or the trades / equity CSV
// when format=trades or format=equity.
func (s *Server) handleGetReport(c *gin.Context) {
	result, err := s.runs.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	switch c.DefaultQuery("format", "markdown") {
	case "markdown":
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(reporting.RenderMarkdown(result, time.Now())))
	case "trades":
		c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(reporting.RenderTradesCSV(result.Trades)))
	case "equity":
		c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(reporting.RenderEquityCSV(result.EquityCurve)))
	default:
		c.JSON(http.StatusBadRequest, errorResponse{Error: "format must be markdown, trades or equity"})
	}
}

func (s *Server) handleCancelRun(c *gin.Context) {
	run, err := s.runs.CancelRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRunResponse(run))
}

func (s *Server) handleSchedulerStatus(c *gin.Context) {
	status, err := s.sched.Status(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// writeError maps domain errors to HTTP status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	var notReady *orchestrator.NotReadyError

	switch {
	case errors.As(err, &notReady):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error(), Status: notReady.Status})
	case errors.Is(err, engine.ErrConfig):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "run not found"})
	case errors.Is(err, orchestrator.ErrInvalidTransition):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, scheduler.ErrStopped), errors.Is(err, orchestrator.ErrShuttingDown):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}
