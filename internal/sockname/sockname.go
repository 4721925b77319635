// Package sockname resolves where a daemon instance lives on disk: the unix
// socket clients dial, and the pidfile, log file, and journal that belong to
// the same instance. Client and daemon must agree on these paths, so both
// resolve them through this package.
package sockname

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// EnvSock overrides the socket path when set, for both client and daemon.
const EnvSock = "WATCHMAND_SOCK"

// Paths holds every per-instance filesystem location.
type Paths struct {
	Root    string
	Socket  string
	PIDFile string
	LogFile string
	Journal string
}

// Resolve computes instance paths. An explicit sockname (flag or config)
// wins over the environment; the environment wins over the per-user default.
// All sibling files are derived from the socket's directory so one instance
// keeps its artifacts together.
func Resolve(explicitSock string) (*Paths, error) {
	sock := explicitSock
	if sock == "" {
		sock = os.Getenv(EnvSock)
	}

	var root string
	if sock != "" {
		abs, err := filepath.Abs(sock)
		if err != nil {
			return nil, fmt.Errorf("resolve sockname %q: %w", sock, err)
		}
		sock = abs
		root = filepath.Dir(abs)
	} else {
		root = defaultRoot()
		sock = filepath.Join(root, "watchmand.sock")
	}

	return &Paths{
		Root:    root,
		Socket:  sock,
		PIDFile: filepath.Join(root, "watchmand.pid"),
		LogFile: filepath.Join(root, "watchmand.log"),
		Journal: filepath.Join(root, "journal.db"),
	}, nil
}

// EnsureRoot creates the instance directory, private to the owning user:
// the socket inherits connection authorization from directory permissions.
func (p *Paths) EnsureRoot() error {
	if err := os.MkdirAll(p.Root, 0o700); err != nil {
		return fmt.Errorf("create instance directory: %w", err)
	}
	return nil
}

func defaultRoot() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "watchmand")
	}
	return filepath.Join(os.TempDir(), "watchmand-"+strconv.Itoa(os.Getuid()))
}
