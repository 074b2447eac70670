package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

const shutdownTimeout = 10 * time.Second

// Server wraps an http.Server with graceful shutdown. Components with
// background work of their own (the upload tracker's worker pool)
// register OnShutdown hooks, which run after the listener has drained
// so no new work arrives while they wind down.
type Server struct {
	srv   *http.Server
	hooks []func()
}

// New creates a Server that listens on addr and routes to handler.
// No WriteTimeout is set: upload forwarding legitimately holds
// connections longer than any fixed bound we would pick here.
func New(addr string, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// OnShutdown registers fn to run after the HTTP listener has shut
// down. Hooks run in registration order. Not safe to call once Run has
// returned.
func (s *Server) OnShutdown(fn func()) {
	s.hooks = append(s.hooks, fn)
}

// Run starts the server and blocks until ctx is cancelled, then
// gracefully shuts down the listener and runs the shutdown hooks.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.srv.Shutdown(shutdownCtx)

	for _, fn := range s.hooks {
		fn()
	}
	return err
}
