// Package lockfile keeps two discussd processes from serving the same store
// file.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	ErrLockAcquired = errors.New("lock already acquired")
	ErrLocked       = errors.New("store is in use by another process")
)

// Lockfile is an exclusive-create lock file holding the owner's PID.
type Lockfile struct {
	path   string
	file   *os.File
	pid    int
	locked bool
}

// New creates a lockfile at path.
func New(path string) *Lockfile {
	return &Lockfile{path: path}
}

// ForStore returns the lockfile guarding the database at dbPath.
func ForStore(dbPath string) *Lockfile {
	return New(dbPath + ".lock")
}

// TryAcquire takes the lock. A lock left behind by a process that is no
// longer running is replaced.
func (l *Lockfile) TryAcquire() error {
	if l.locked {
		return ErrLockAcquired
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lockfile directory: %w", err)
	}

	err := l.create()
	if err == nil || !os.IsExist(err) {
		return err
	}

	stale, reason, err := l.checkStale()
	if err != nil {
		return fmt.Errorf("failed to check lockfile staleness: %w", err)
	}
	if !stale {
		return fmt.Errorf("%w: %s", ErrLocked, reason)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale lockfile (%s): %w", reason, err)
	}
	if err := l.create(); err != nil {
		return fmt.Errorf("failed to create lockfile after removing stale one: %w", err)
	}
	return nil
}

func (l *Lockfile) create() error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	l.file = file
	l.pid = os.Getpid()
	l.locked = true

	content := fmt.Sprintf("%d\n%s\n", l.pid, time.Now().Format(time.RFC3339))
	if _, err := l.file.WriteString(content); err != nil {
		l.Release()
		return fmt.Errorf("failed to write to lockfile: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		l.Release()
		return fmt.Errorf("failed to sync lockfile: %w", err)
	}
	return nil
}

// checkStale reports whether the existing lockfile belongs to a process that
// is gone. A lock held by this very process is not stale.
func (l *Lockfile) checkStale() (bool, string, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, "lockfile vanished", nil
		}
		return false, "", err
	}

	first, _, _ := strings.Cut(strings.TrimSpace(string(data)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil || pid <= 0 {
		return true, "invalid PID in lockfile", nil
	}
	if pid == os.Getpid() {
		return false, "held by this process", nil
	}

	if running, reason := isProcessRunning(pid); !running {
		return true, reason, nil
	}
	return false, fmt.Sprintf("process with PID %d is running", pid), nil
}

// Release releases the lock
func (l *Lockfile) Release() error {
	if !l.locked {
		return nil
	}

	var errs []error
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			errs = append(errs, err)
		}
		l.file = nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("failed to remove lockfile: %w", err))
	}

	l.locked = false
	return errors.Join(errs...)
}

// PID returns the PID that acquired the lock
func (l *Lockfile) PID() int {
	return l.pid
}

// Locked returns true if the lock is held
func (l *Lockfile) Locked() bool {
	return l.locked
}

// Path returns the lockfile path
func (l *Lockfile) Path() string {
	return l.path
}
