// Package server runs an HTTP handler until its context is cancelled.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"todo-sync/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

// New returns an http.Server with the timeouts every process here uses.
// WriteTimeout stays zero: websocket handlers own their connection.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// Run serves srv and shuts it down gracefully once ctx is done. It returns
// nil after a clean shutdown.
func Run(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(ctx, "HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	err := g.Wait()
	logger.Info(ctx, "Server stopped")
	return err
}
