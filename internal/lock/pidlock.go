// Package lock guarantees a single daemon instance per socket directory via
// a pidfile held under flock(2).
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDLock is a single-instance lock. The lock lives as long as the file
// descriptor stays open; the pidfile content is advisory, for tooling.
type PIDLock struct {
	path string
	f    *os.File
}

// Acquire takes an exclusive non-blocking lock at pidPath and writes the
// current PID into the file. A second daemon pointed at the same instance
// directory fails here instead of stealing the socket.
func Acquire(pidPath string) (*PIDLock, error) {
	if pidPath == "" {
		return nil, fmt.Errorf("pidfile path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(pidPath), 0o700); err != nil {
		return nil, fmt.Errorf("create pidfile directory: %w", err)
	}

	f, err := os.OpenFile(pidPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open pidfile: %w", err)
	}

	cleanup := func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("another instance holds %s: %w", pidPath, err)
	}

	if err := f.Truncate(0); err != nil {
		cleanup()
		return nil, fmt.Errorf("truncate pidfile: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		cleanup()
		return nil, fmt.Errorf("seek pidfile: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		cleanup()
		return nil, fmt.Errorf("write pid: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return nil, fmt.Errorf("sync pidfile: %w", err)
	}

	return &PIDLock{path: pidPath, f: f}, nil
}

func (l *PIDLock) Path() string { return l.path }

// Release drops the lock and removes the pidfile.
func (l *PIDLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	_ = os.Remove(l.path)
	return err
}

// ReadPID reads the advisory PID from a pidfile left by a running daemon.
func ReadPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, fmt.Errorf("read pidfile: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pidfile %s: %w", pidPath, err)
	}
	return pid, nil
}
