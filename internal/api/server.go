// Package api exposes a read-only HTTP status surface over a second unix
// socket, for humans and scripts that prefer curl over the wire protocol.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"watchmand/internal/command"
	"watchmand/internal/log"
)

// HealthResponse is the payload of GET /v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// StatusResponse is the payload of GET /v1/status.
type StatusResponse struct {
	Version        string `json:"version"`
	PID            int    `json:"pid"`
	Sockname       string `json:"sockname"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	CommandsOK     int64  `json:"commands_ok"`
	CommandsFailed int64  `json:"commands_failed"`
}

// Server is the HTTP status server.
type Server struct {
	version   string
	socket    string
	sockname  string
	startedAt time.Time
	journal   command.JournalReader
	logger    *slog.Logger
	server    *http.Server
}

// New creates a status server listening on the unix socket at socketPath.
// journal may be nil when journaling is disabled.
func New(version, socketPath, daemonSockname string, startedAt time.Time, jnl command.JournalReader) *Server {
	return &Server{
		version:   version,
		socket:    socketPath,
		sockname:  daemonSockname,
		startedAt: startedAt,
		journal:   jnl,
		logger:    log.WithComponent("api"),
	}
}

// Start serves HTTP until ctx is cancelled. Blocking.
func (s *Server) Start(ctx context.Context) error {
	if info, err := os.Lstat(s.socket); err == nil {
		if info.Mode()&os.ModeSocket == 0 {
			return fmt.Errorf("status socket path %s exists and is not a socket", s.socket)
		}
		if err := os.Remove(s.socket); err != nil {
			return fmt.Errorf("remove stale status socket: %w", err)
		}
	}

	listener, err := net.Listen("unix", s.socket)
	if err != nil {
		return fmt.Errorf("listen on status socket %s: %w", s.socket, err)
	}

	s.server = &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("status server starting", "socket", s.socket)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("status server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("status server shutdown failed: %w", err)
		}
		_ = os.Remove(s.socket)
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("status server error: %w", err)
	}
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/v1/health", s.handleHealth)
	r.Get("/v1/status", s.handleStatus)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: s.version})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Version:       s.version,
		PID:           os.Getpid(),
		Sockname:      s.sockname,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}

	if s.journal != nil {
		okCount, failed, err := s.journal.Counts(r.Context())
		if err != nil {
			s.logger.Warn("journal counts failed", "error", err)
			http.Error(w, "journal unavailable", http.StatusInternalServerError)
			return
		}
		resp.CommandsOK = okCount
		resp.CommandsFailed = failed
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}
