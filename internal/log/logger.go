package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu     sync.Mutex
	logger *slog.Logger

	// discard serves callers before Setup succeeds, including the client
	// path which never calls Setup at all.
	discard = slog.New(slog.NewJSONHandler(io.Discard, nil))
)

// Setup initializes the global logger writing JSON lines to the file at
// path. The daemon never logs to its stdio streams: clients relay socket
// bytes only, and the diagnostic stream stays silent by contract.
// A failed Setup leaves the logger unconfigured so a retry can succeed;
// further calls after success are no-ops.
// logic: default to INFO. If level is invalid, fallback to INFO.
func Setup(level, path string) error {
	mu.Lock()
	defer mu.Unlock()
	if logger != nil {
		return nil
	}

	var l slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		l = slog.LevelDebug
	case "WARN":
		l = slog.LevelWarn
	case "ERROR":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	var w io.Writer = io.Discard
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		w = f
	}

	opts := &slog.HandlerOptions{Level: l}
	logger = slog.New(slog.NewJSONHandler(w, opts))
	return nil
}

// Get returns the configured logger, or a discard logger while Setup has not
// succeeded. Never nil.
func Get() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		return discard
	}
	return logger
}

// WithComponent returns a logger with the component field set.
func WithComponent(name string) *slog.Logger {
	return Get().With(slog.String("component", name))
}

// WithRequest returns a logger with the request_id field set.
func WithRequest(id string) *slog.Logger {
	return Get().With(slog.String("request_id", id))
}
