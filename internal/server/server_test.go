package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"watchmand/internal/command"
	"watchmand/internal/config"
	"watchmand/internal/journal"
	"watchmand/internal/sockname"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testDaemon struct {
	paths  *sockname.Paths
	srv    *Server
	cancel context.CancelFunc

	done     chan error
	waitOnce sync.Once
	runErr   error
	timedOut bool
}

// waitStopped blocks until Start returns, at most once.
func (d *testDaemon) waitStopped(t *testing.T) error {
	t.Helper()
	d.waitOnce.Do(func() {
		select {
		case d.runErr = <-d.done:
		case <-time.After(3 * time.Second):
			d.timedOut = true
		}
	})
	if d.timedOut {
		t.Fatal("timeout waiting for server shutdown")
	}
	return d.runErr
}

func startTestDaemon(t *testing.T, mutate func(cfg *config.Config)) *testDaemon {
	t.Helper()

	paths, err := sockname.Resolve(filepath.Join(t.TempDir(), "w.sock"))
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.IdleConnTimeout = 5 * time.Second
	if mutate != nil {
		mutate(cfg)
	}

	reg := command.NewRegistry()
	require.NoError(t, command.RegisterBuiltins(reg))
	for _, name := range cfg.DisabledCommands {
		reg.Deregister(name)
	}

	var jnl *journal.Store
	if cfg.Journal.Enabled {
		jnl, err = journal.Open(context.Background(), paths.Journal)
		require.NoError(t, err)
		t.Cleanup(func() { _ = jnl.Close() })
	}

	srv := New("0.1.0-test", paths, cfg, reg, jnl)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	waitForSocket(t, paths.Socket)

	d := &testDaemon{paths: paths, srv: srv, cancel: cancel, done: done}
	t.Cleanup(func() {
		cancel()
		_ = d.waitStopped(t)
	})
	return d
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("unix", path); err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket %s never came up", path)
}

// roundTrip sends one raw request line and returns the raw response document.
func roundTrip(t *testing.T, conn net.Conn, line string) []byte {
	t.Helper()
	_, err := conn.Write([]byte(line + "\n"))
	require.NoError(t, err)

	// Responses may be pretty-printed, so read until the JSON document
	// balances rather than until the first newline.
	reader := bufio.NewReader(conn)
	var buf []byte
	depth := 0
	inString := false
	escaped := false
	for {
		b, err := reader.ReadByte()
		require.NoError(t, err)
		buf = append(buf, b)
		switch {
		case escaped:
			escaped = false
		case b == '\\' && inString:
			escaped = true
		case b == '"':
			inString = !inString
		case !inString && b == '{':
			depth++
		case !inString && b == '}':
			depth--
			if depth == 0 {
				return buf
			}
		}
	}
}

// decodeDoc parses one response document into a fresh map. Unmarshal into a
// reused map merges keys from earlier responses, so every decode gets its own.
func decodeDoc(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	doc := make(map[string]any)
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc
}

func TestUnknownCommandReportsValidationErrorAsData(t *testing.T) {
	d := startTestDaemon(t, nil)

	conn, err := net.Dial("unix", d.paths.Socket)
	require.NoError(t, err)
	defer conn.Close()

	doc := decodeDoc(t, roundTrip(t, conn, `{"protocol":1,"command":"unknown-command"}`))
	assert.Equal(t,
		"watchman::CommandValidationError: failed to validate command: unknown command unknown-command",
		doc["error"])

	// The failure is data, not a fault: the same connection serves the
	// next request, and its response carries no error key at all.
	doc = decodeDoc(t, roundTrip(t, conn, `{"protocol":1,"command":"get-pid"}`))
	assert.Equal(t, float64(os.Getpid()), doc["pid"])
	assert.NotContains(t, doc, "error")
}

func TestUnknownCommandIsIdempotent(t *testing.T) {
	d := startTestDaemon(t, nil)

	conn, err := net.Dial("unix", d.paths.Socket)
	require.NoError(t, err)
	defer conn.Close()

	var previous string
	for i := 0; i < 3; i++ {
		raw := roundTrip(t, conn, `{"protocol":1,"command":"nope"}`)
		var doc map[string]string
		require.NoError(t, json.Unmarshal(raw, &doc))
		if previous != "" {
			assert.Equal(t, previous, doc["error"])
		}
		previous = doc["error"]
	}
	assert.Equal(t,
		"watchman::CommandValidationError: failed to validate command: unknown command nope",
		previous)
}

func TestPrettyResponseIsIndentedSingleDocument(t *testing.T) {
	d := startTestDaemon(t, nil)

	conn, err := net.Dial("unix", d.paths.Socket)
	require.NoError(t, err)
	defer conn.Close()

	raw := roundTrip(t, conn, `{"protocol":1,"command":"unknown-command","pretty":true}`)
	assert.Contains(t, string(raw), "\n    ")

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t,
		"watchman::CommandValidationError: failed to validate command: unknown command unknown-command",
		doc["error"])
}

func TestBuiltinCommands(t *testing.T) {
	d := startTestDaemon(t, nil)

	conn, err := net.Dial("unix", d.paths.Socket)
	require.NoError(t, err)
	defer conn.Close()

	doc := decodeDoc(t, roundTrip(t, conn, `{"protocol":1,"command":"version"}`))
	assert.Equal(t, "0.1.0-test", doc["version"])
	assert.NotContains(t, doc, "error")

	doc = decodeDoc(t, roundTrip(t, conn, `{"protocol":1,"command":"get-sockname"}`))
	assert.Equal(t, d.paths.Socket, doc["sockname"])
	assert.NotContains(t, doc, "error")

	doc = decodeDoc(t, roundTrip(t, conn, `{"protocol":1,"command":"list-capabilities"}`))
	caps, ok := doc["capabilities"].([]any)
	require.True(t, ok)
	assert.Contains(t, caps, "cmd-version")
	assert.NotContains(t, doc, "error")
}

func TestDebugStatusReportsJournal(t *testing.T) {
	d := startTestDaemon(t, nil)

	conn, err := net.Dial("unix", d.paths.Socket)
	require.NoError(t, err)
	defer conn.Close()

	roundTrip(t, conn, `{"protocol":1,"command":"version"}`)
	roundTrip(t, conn, `{"protocol":1,"command":"bogus"}`)

	raw := roundTrip(t, conn, `{"protocol":1,"command":"debug-status"}`)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.GreaterOrEqual(t, doc["commands_ok"], float64(1))
	assert.GreaterOrEqual(t, doc["commands_failed"], float64(1))
	recent, ok := doc["recent"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, recent)
}

func TestDisabledCommandBecomesUnknown(t *testing.T) {
	d := startTestDaemon(t, func(cfg *config.Config) {
		cfg.DisabledCommands = []string{"shutdown-server"}
	})

	conn, err := net.Dial("unix", d.paths.Socket)
	require.NoError(t, err)
	defer conn.Close()

	raw := roundTrip(t, conn, `{"protocol":1,"command":"shutdown-server"}`)
	var doc map[string]string
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t,
		"watchman::CommandValidationError: failed to validate command: unknown command shutdown-server",
		doc["error"])
}

func TestMalformedRequestGetsErrorAsData(t *testing.T) {
	d := startTestDaemon(t, nil)

	conn, err := net.Dial("unix", d.paths.Socket)
	require.NoError(t, err)
	defer conn.Close()

	raw := roundTrip(t, conn, `this is not json`)
	var doc map[string]string
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.True(t, strings.HasPrefix(doc["error"], "failed to parse command:"), "got %q", doc["error"])
}

func TestShutdownServerCommandStopsDaemon(t *testing.T) {
	d := startTestDaemon(t, nil)

	conn, err := net.Dial("unix", d.paths.Socket)
	require.NoError(t, err)
	defer conn.Close()

	raw := roundTrip(t, conn, `{"protocol":1,"command":"shutdown-server"}`)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, true, doc["shutdown-server"])

	assert.NoError(t, d.waitStopped(t))

	_, err = os.Stat(d.paths.Socket)
	assert.True(t, os.IsNotExist(err), "socket file should be removed on shutdown")
}
