// Package server wraps an HTTP server with signal-driven graceful shutdown.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// GracefulServer runs an HTTP server until SIGINT/SIGTERM, then drains
// in-flight requests before returning.
type GracefulServer struct {
	server       *http.Server
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	timeout      time.Duration
}

// NewGracefulServer creates a graceful HTTP server on addr.
func NewGracefulServer(addr string, handler http.Handler, shutdownTimeout time.Duration) *GracefulServer {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	return &GracefulServer{
		server: &http.Server{
			Addr:           addr,
			Handler:        handler,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    120 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
		shutdownCh: make(chan struct{}),
		timeout:    shutdownTimeout,
	}
}

// Start serves until shutdown completes. It returns nil after a clean
// drain.
func (gs *GracefulServer) Start() error {
	go gs.handleSignals()

	if err := gs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-gs.shutdownCh
	return nil
}

// Shutdown drains in-flight requests, bounded by the configured timeout.
func (gs *GracefulServer) Shutdown() error {
	var err error
	gs.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
		defer cancel()
		err = gs.server.Shutdown(ctx)
		close(gs.shutdownCh)
	})
	return err
}

func (gs *GracefulServer) handleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	gs.Shutdown()
}
