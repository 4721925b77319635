// Package command holds the daemon's command registry, the validation step
// every incoming request passes through, and the builtin command handlers.
package command

import (
	"context"
	"fmt"
	"sort"
	"time"

	"watchmand/internal/journal"
)

// Handler executes one validated command and returns its payload fields.
// A returned error is reported to the client in-band, as data.
type Handler func(ctx context.Context, rt *Runtime, args []any) (map[string]any, error)

// JournalReader is the slice of the journal the builtin handlers need.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
	Counts(ctx context.Context) (ok int64, failed int64, err error)
}

// Runtime exposes the running daemon's identity to command handlers.
type Runtime struct {
	Version    string
	Sockname   string
	LogFile    string
	ConfigPath string
	ConfigHash string
	StartedAt  time.Time

	// Registry the daemon dispatches from; handlers use it for capability
	// listing only.
	Registry *Registry

	// Journal is nil when journaling is disabled.
	Journal JournalReader

	// Shutdown asks the daemon to stop after the current response is
	// flushed. Nil outside a running server (e.g. in tests).
	Shutdown func()
}

// Registry maps command names to handlers. Registration happens during
// daemon startup; afterwards the registry is read-only, so concurrent
// lookups need no locking.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler under name. Names are matched exactly and
// case-sensitively; registering a duplicate is a programming error.
func (r *Registry) Register(name string, h Handler) error {
	if name == "" {
		return fmt.Errorf("command name is empty")
	}
	if h == nil {
		return fmt.Errorf("handler for %q is nil", name)
	}
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("command %q already registered", name)
	}
	r.handlers[name] = h
	return nil
}

// Deregister removes a command. Used at startup to honor the
// disabled_commands config list; never called on a serving registry.
func (r *Registry) Deregister(name string) {
	delete(r.handlers, name)
}

// Lookup returns the handler for name, if registered.
func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns all registered command names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
