package server

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"watchmand/internal/command"
	"watchmand/internal/journal"
	"watchmand/internal/log"
	"watchmand/internal/protocol"
)

// maxRequestBytes caps a single request line.
const maxRequestBytes = 1 << 20

// serveConn reads newline-delimited JSON requests until the client hangs up,
// the idle deadline passes, or shutdown begins. The connection stays usable
// after a validation failure: rejection is a normal response, not a fault.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestBytes)

	for {
		if s.cfg.IdleConnTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleConnTimeout))
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && !isConnDone(err) {
				s.logger.Warn("connection read failed", "error", err)
			}
			return
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		s.serveRequest(ctx, conn, line)

		if s.stopping(ctx) {
			return
		}
	}
}

// serveRequest handles one request line end to end: decode, validate,
// dispatch, respond. Every failure mode is reported in-band through the
// response's error field.
func (s *Server) serveRequest(ctx context.Context, conn net.Conn, line []byte) {
	received := time.Now()

	req, err := protocol.DecodeRequest(line)
	if err != nil {
		s.logger.Debug("rejecting malformed request", "error", err)
		s.writeResponse(conn, &protocol.Response{
			Version: s.version,
			Error:   fmt.Sprintf("failed to parse command: %v", err),
		}, false)
		return
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	logger := log.WithRequest(req.ID).With("command", req.Command)

	resp := &protocol.Response{Version: s.version, ID: req.ID}

	var shutdownAfterFlush bool
	if verr := s.registry.Validate(req.Command); verr != nil {
		// Unknown command: reported as data, never dispatched, nothing
		// written to any diagnostic stream on the client's behalf.
		resp.Error = verr.Error()
		logger.Debug("command validation failed")
	} else {
		handler, _ := s.registry.Lookup(req.Command)
		rt := s.runtime()
		rt.Shutdown = func() { shutdownAfterFlush = true }

		fields, err := s.dispatch(ctx, handler, rt, req.Args)
		if err != nil {
			resp.Error = err.Error()
			logger.Warn("command failed", "error", err)
		} else {
			resp.Fields = fields
			logger.Debug("command served")
		}
	}

	s.writeResponse(conn, resp, req.Pretty)
	s.record(ctx, req, resp, received)

	if shutdownAfterFlush {
		s.Stop()
	}
}

// dispatch runs a handler, converting a panic into an in-band error so one
// broken command cannot take the daemon down.
func (s *Server) dispatch(ctx context.Context, handler command.Handler, rt *command.Runtime, args []any) (fields map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: command handler panicked: %v", r)
		}
	}()
	return handler(ctx, rt, args)
}

func (s *Server) writeResponse(conn net.Conn, resp *protocol.Response, pretty bool) {
	if err := protocol.EncodeResponse(conn, resp, pretty); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

// record journals the served command. Journal failures are logged, never
// surfaced to the client: the response has already been flushed.
func (s *Server) record(ctx context.Context, req *protocol.Request, resp *protocol.Response, received time.Time) {
	if s.journal == nil {
		return
	}

	outcome := journal.OutcomeOK
	if resp.IsError() {
		outcome = journal.OutcomeError
	}
	entry := journal.Entry{
		ID:         req.ID,
		Command:    req.Command,
		Outcome:    outcome,
		Error:      resp.Error,
		ReceivedAt: received,
	}
	if err := s.journal.Record(ctx, entry); err != nil {
		s.logger.Warn("journal write failed", "error", err)
	}
}

// runtime snapshots the daemon facts handlers may report on.
func (s *Server) runtime() *command.Runtime {
	rt := &command.Runtime{
		Version:    s.version,
		Sockname:   s.paths.Socket,
		LogFile:    s.paths.LogFile,
		ConfigPath: s.cfg.Path,
		ConfigHash: s.cfg.Hash,
		StartedAt:  s.startedAt,
		Registry:   s.registry,
	}
	if s.journal != nil {
		rt.Journal = s.journal
	}
	return rt
}
