// Package api exposes the operational HTTP surface: health, discharge
// analysis, and call schedule management.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chriscow/livekit-postop-sub000/pkg/analyzer"
	"github.com/chriscow/livekit-postop-sub000/pkg/scheduler"
	"github.com/chriscow/livekit-postop-sub000/pkg/store"
	"github.com/chriscow/livekit-postop-sub000/pkg/worker"
)

// PoolHealthReporter is the subset of the worker pool the API needs.
type PoolHealthReporter interface {
	Health() *worker.PoolHealth
}

// Server is the HTTP API server.
type Server struct {
	store     *store.Store
	scheduler *scheduler.Scheduler
	analyzer  *analyzer.Analyzer
	pool      PoolHealthReporter
}

// NewServer creates an API server. pool may be nil on scheduler-only
// deployments; the health check then skips the pool section.
func NewServer(st *store.Store, sched *scheduler.Scheduler, an *analyzer.Analyzer, pool PoolHealthReporter) *Server {
	return &Server{store: st, scheduler: sched, analyzer: an, pool: pool}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/discharges/:id/analyze", s.analyzeDischarge)
		v1.POST("/calls", s.scheduleCalls)
		v1.GET("/calls/pending", s.pendingCalls)
		v1.GET("/calls/:id", s.getCall)
		v1.DELETE("/calls/:id", s.cancelCall)
		v1.GET("/patients/:id/calls", s.patientCalls)
	}
	return r
}

// abortStoreError maps store-layer errors to HTTP error responses.
func abortStoreError(c *gin.Context, err error) {
	var corrupt *store.CorruptError
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &corrupt):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "record is corrupt"})
	default:
		slog.Error("Unexpected store error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
