// Package server implements the watchmand daemon: a unix-socket listener
// that validates and dispatches client commands, reporting failures as data
// on the response stream rather than as process faults.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"watchmand/internal/command"
	"watchmand/internal/config"
	"watchmand/internal/journal"
	"watchmand/internal/log"
	"watchmand/internal/sockname"
)

// Server owns the unix socket listener and the command dispatch loop.
type Server struct {
	version  string
	paths    *sockname.Paths
	cfg      *config.Config
	registry *command.Registry
	journal  *journal.Store
	logger   *slog.Logger

	startedAt time.Time

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a Server. journal may be nil when journaling is disabled.
func New(version string, paths *sockname.Paths, cfg *config.Config, reg *command.Registry, jnl *journal.Store) *Server {
	return &Server{
		version:  version,
		paths:    paths,
		cfg:      cfg,
		registry: reg,
		journal:  jnl,
		logger:   log.WithComponent("server"),
		conns:    make(map[net.Conn]struct{}),
		stopCh:   make(chan struct{}),
	}
}

// Start listens on the instance socket and serves until ctx is cancelled or
// a shutdown-server command is received. Blocking.
func (s *Server) Start(ctx context.Context) error {
	if err := s.paths.EnsureRoot(); err != nil {
		return err
	}

	// A previous unclean shutdown can leave the socket file behind; the
	// pidlock already guarantees no live instance owns it.
	if info, err := os.Lstat(s.paths.Socket); err == nil {
		if info.Mode()&os.ModeSocket == 0 {
			return fmt.Errorf("socket path %s exists and is not a socket", s.paths.Socket)
		}
		if err := os.Remove(s.paths.Socket); err != nil {
			return fmt.Errorf("remove stale socket: %w", err)
		}
	}

	listener, err := net.Listen("unix", s.paths.Socket)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.paths.Socket, err)
	}

	s.startedAt = time.Now()
	s.logger.Info("listener ready", "sockname", s.paths.Socket, "version", s.version)

	var wg sync.WaitGroup
	acceptErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				// Listener closed during shutdown is not a fault.
				select {
				case <-ctx.Done():
				case <-s.stopCh:
				default:
					acceptErr <- err
				}
				return
			}

			s.trackConn(conn, true)
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer s.trackConn(conn, false)
				defer conn.Close()
				s.serveConn(ctx, conn)
			}()
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case <-s.stopCh:
		s.logger.Info("shutdown requested by command")
	case err := <-acceptErr:
		runErr = fmt.Errorf("accept: %w", err)
	}

	_ = listener.Close()
	s.closeConns()
	wg.Wait()
	_ = os.Remove(s.paths.Socket)

	s.logger.Info("listener stopped")
	return runErr
}

// Stop asks the server to shut down after in-flight responses are flushed.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Server) trackConn(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

// stopping reports whether shutdown has been requested.
func (s *Server) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// isConnDone matches both deadline expiry and a connection closed mid-read.
func isConnDone(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
