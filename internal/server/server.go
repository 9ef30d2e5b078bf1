// Package server exposes the ingestion and chat endpoints over HTTP.
// This layer only maps requests and failures; every decision about what
// to ingest or answer lives in the pipeline and answer packages.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger reports reachability of a backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker is implemented by the vector index.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server holds the wired dependencies behind the HTTP boundary.
type Server struct {
	engine   *gin.Engine
	handlers *Handlers
}

// New creates the gin engine with all routes registered.
func New(h *Handlers) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.POST("/ingest", h.IngestPatient)
	engine.POST("/chat", h.Chat)
	engine.GET("/health", h.HealthCheck)

	return &Server{engine: engine, handlers: h}
}

// Run starts the HTTP server and blocks until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Engine exposes the router for handler tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
