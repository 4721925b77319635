package lock

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireWritesPID(t *testing.T) {
	t.Parallel()

	pidPath := filepath.Join(t.TempDir(), "watchmand.pid")
	l, err := Acquire(pidPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = l.Release() })

	pid, err := ReadPID(pidPath)
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("pidfile pid = %d, want %d", pid, os.Getpid())
	}
}

func TestAcquireIsExclusive(t *testing.T) {
	t.Parallel()

	pidPath := filepath.Join(t.TempDir(), "watchmand.pid")
	l, err := Acquire(pidPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = l.Release() })

	if _, err := Acquire(pidPath); err == nil {
		t.Fatalf("second Acquire should fail while lock is held")
	}
}

func TestReleaseRemovesPidfile(t *testing.T) {
	t.Parallel()

	pidPath := filepath.Join(t.TempDir(), "watchmand.pid")
	l, err := Acquire(pidPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatalf("pidfile should be removed after release")
	}

	// Lock can be re-acquired after release.
	l2, err := Acquire(pidPath)
	if err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	_ = l2.Release()
}
