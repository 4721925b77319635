package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The logger is a process-wide singleton, so these tests run in file order:
// the failing Setup first, which must leave the logger retryable, then the
// successful one.

func TestFailedSetupLeavesLoggerUsableAndRetryable(t *testing.T) {
	// A directory cannot be opened as a log file.
	require.Error(t, Setup("INFO", t.TempDir()))

	require.NotNil(t, Get())
	assert.NotPanics(t, func() {
		WithComponent("server").Info("should be discarded")
		WithRequest("req-0").Debug("should be discarded")
	})
}

func TestSetupWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchmand.log")
	require.NoError(t, Setup("DEBUG", path))

	WithComponent("server").Info("listener ready", "sockname", "/tmp/w.sock")
	WithRequest("req-1").Debug("dispatching", "command", "version")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	assert.Equal(t, "listener ready", first["msg"])
	assert.Equal(t, "server", first["component"])

	var second map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "req-1", second["request_id"])
}
