// Package mhttp serves the operator-facing status HTTP endpoint
// for a running monarch node.
package mhttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/mux"
)

// Status is the payload served at /status.
type Status struct {
	Role    string `json:"role"`
	Moniker string `json:"moniker"`

	// Detail is the role-specific snapshot:
	// msched.Snapshot for a producer, mrelay.Snapshot for a follower.
	Detail any `json:"detail"`
}

// Config holds the listener and the snapshot source for a [Server].
type Config struct {
	Listener net.Listener

	// Snapshot is polled on every /status request.
	// It must be safe for concurrent use.
	Snapshot func() Status
}

// Server is the status HTTP server.
type Server struct {
	done chan struct{}
}

// NewServer starts serving immediately on the configured listener.
// The server shuts down when ctx is canceled.
func NewServer(ctx context.Context, log *slog.Logger, cfg Config) *Server {
	srv := &http.Server{
		Handler: newMux(log, cfg),

		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	s := &Server{
		done: make(chan struct{}),
	}
	go s.serve(log, cfg.Listener, srv)
	go s.waitForShutdown(ctx, srv)

	return s
}

// Wait blocks until the server has stopped serving.
func (s *Server) Wait() {
	<-s.done
}

func (s *Server) waitForShutdown(ctx context.Context, srv *http.Server) {
	select {
	case <-s.done:
		// serve returned on its own, nothing left to do here.
		return
	case <-ctx.Done():
		_ = srv.Close()
	}
}

func (s *Server) serve(log *slog.Logger, ln net.Listener, srv *http.Server) {
	defer close(s.done)

	if err := srv.Serve(ln); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
			log.Info("Status server shutting down")
		} else {
			log.Info("Status server shutting down due to error", "err", err)
		}
	}
}

func newMux(log *slog.Logger, cfg Config) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/status", handleStatus(log, cfg)).Methods("GET")

	return r
}

func handleStatus(log *slog.Logger, cfg Config) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(cfg.Snapshot()); err != nil {
			log.Warn("Failed to write status response", "err", err)
		}
	}
}
