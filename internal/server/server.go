// Package server exposes the build core over HTTP: the webhook endpoint,
// a JSON API for repositories and builds, and an SSE log stream.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/roundhouse/internal/registry"
	"github.com/zulandar/roundhouse/internal/scheduler"
)

// StartOpts holds configuration for the HTTP server.
type StartOpts struct {
	Registry  *registry.Registry
	Scheduler *scheduler.Scheduler
	Host      string
	Port      int
	Out       io.Writer
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Registry == nil {
		return fmt.Errorf("server: registry is required")
	}
	if opts.Scheduler == nil {
		return fmt.Errorf("server: scheduler is required")
	}
	if opts.Port <= 0 {
		opts.Port = 4042
	}

	router := NewRouter(opts.Registry, opts.Scheduler)

	addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Roundhouse listening on http://%s\n", addr)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(reg *registry.Registry, sched *scheduler.Scheduler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, reg, sched)
	return router
}
