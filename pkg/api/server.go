// Package api exposes the engine's external HTTP interface (§6): trigger,
// get, list, and cancel executions, plus a supplemented health endpoint.
//
// Grounded on the teacher's pkg/api/server.go route-registration shape.
// The teacher's own package imports `labstack/echo/v5`, but its go.mod
// requires `gin-gonic/gin` and not echo at all — go.mod is authoritative
// over a retrieval artifact, so this server is built on gin, translating
// the teacher's route layout and health-endpoint composition idiom rather
// than its literal echo calls.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ctihunt/workflowengine/pkg/queue"
	"github.com/ctihunt/workflowengine/pkg/workflow"
)

// Server is the HTTP API server fronting the Engine.
type Server struct {
	engine     *workflow.Engine
	router     *gin.Engine
	httpServer *http.Server
	pool       *queue.Pool // nil until wired; reported in /workflow/healthz
}

// NewServer builds a Server with all §6 routes registered.
func NewServer(engine *workflow.Engine) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{engine: engine, router: router}
	s.setupRoutes()
	return s
}

// SetPool attaches the worker pool for health reporting.
func (s *Server) SetPool(pool *queue.Pool) {
	s.pool = pool
}

// Router exposes the underlying gin engine so callers can register
// supplemented routes (e.g. /metrics) alongside the §6 endpoints.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/workflow/healthz", s.healthHandler)

	v1 := s.router.Group("/workflow")
	v1.POST("/articles/:id/trigger", s.triggerHandler)
	v1.GET("/executions/:id", s.getExecutionHandler)
	v1.GET("/executions", s.listExecutionsHandler)
	v1.POST("/executions/:id/cancel", s.cancelHandler)
}

// Start runs the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles GET /workflow/healthz.
func (s *Server) healthHandler(c *gin.Context) {
	resp := HealthResponse{Status: "healthy"}
	if s.pool != nil {
		resp.Workers = s.pool.Health()
	}
	c.JSON(http.StatusOK, resp)
}
