// Package client implements the command-line side of the wire contract: it
// forwards one command to a running daemon and relays the raw response bytes
// without reinterpreting them.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"watchmand/internal/protocol"
)

// ErrDaemonUnreachable marks transport-level faults: the daemon could not be
// dialed or the connection died mid-exchange. Distinct from an in-band
// validation error, which arrives as ordinary response data.
var ErrDaemonUnreachable = errors.New("watchmand daemon unreachable")

//go:generate mockgen -destination=mocks/mock_transport.go -package=mocks watchmand/internal/client Transport

// Transport performs one synchronous request/response exchange.
type Transport interface {
	RoundTrip(ctx context.Context, req *protocol.Request) ([]byte, error)
}

// SocketTransport dials the daemon's unix socket per exchange. One request,
// one response document, then the write side is closed so the daemon
// releases the connection.
type SocketTransport struct {
	Sockname string

	// Timeout bounds the whole exchange. Zero means rely on ctx alone.
	Timeout time.Duration
}

// RoundTrip sends req and returns the daemon's complete raw response bytes.
func (t *SocketTransport) RoundTrip(ctx context.Context, req *protocol.Request) ([]byte, error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", t.Sockname)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrDaemonUnreachable, t.Sockname, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := protocol.EncodeRequest(conn, req); err != nil {
		return nil, fmt.Errorf("send command: %w", err)
	}

	// Half-close tells the daemon this client sends nothing further; the
	// daemon replies and closes, turning the read loop into a plain
	// read-to-EOF.
	if uc, ok := conn.(*net.UnixConn); ok {
		if err := uc.CloseWrite(); err != nil {
			return nil, fmt.Errorf("%w: close write side: %v", ErrDaemonUnreachable, err)
		}
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrDaemonUnreachable, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: daemon closed connection without responding", ErrDaemonUnreachable)
	}

	return data, nil
}
