package client

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"watchmand/internal/protocol"
)

// Dispatcher forwards commands to a running daemon instance. It is a
// transparent relay: response bytes pass through byte for byte, and in-band
// failures (the error field) are the caller's to interpret.
type Dispatcher struct {
	transport Transport
}

// NewDispatcher creates a Dispatcher over the given transport.
func NewDispatcher(t Transport) *Dispatcher {
	return &Dispatcher{transport: t}
}

// Dispatch sends one command and returns the daemon's raw response bytes
// unmodified. The command name travels verbatim: no trimming, no case
// folding. A non-nil error is always transport-level; a daemon that
// rejected the command still yields (bytes, nil).
func (d *Dispatcher) Dispatch(ctx context.Context, commandName string, args []any, pretty bool) ([]byte, error) {
	req := &protocol.Request{
		Protocol: protocol.ProtocolVersion,
		ID:       uuid.NewString(),
		Command:  commandName,
		Args:     args,
		Pretty:   pretty,
	}

	data, err := d.transport.RoundTrip(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("dispatch %q: %w", commandName, err)
	}
	return data, nil
}

// Query is Dispatch plus decoding, for callers (monitor TUI, status API)
// that consume the response in-process instead of relaying it.
func (d *Dispatcher) Query(ctx context.Context, commandName string, args []any) (*protocol.Response, error) {
	data, err := d.Dispatch(ctx, commandName, args, false)
	if err != nil {
		return nil, err
	}
	resp, err := protocol.DecodeResponse(data)
	if err != nil {
		return nil, fmt.Errorf("dispatch %q: %w", commandName, err)
	}
	return resp, nil
}
