package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// Lock is the content of the controller lock file.
type Lock struct {
	PID       int       `json:"pid"`
	Host      string    `json:"host,omitempty"`
	StartedAt time.Time `json:"started_at"`
	RunID     string    `json:"run_id"`
}

// ErrLockHeld means another controller owns the device.
var ErrLockHeld = errors.New("acqctl lock is held")

// stale reports whether the lock was left by a process on this host that
// has since exited.
func (l *Lock) stale(host string) bool {
	if l.PID <= 0 {
		return false
	}
	if l.Host != "" && l.Host != host {
		return false
	}
	return !processAlive(l.PID)
}

// AcquireLock takes the single-controller lock for runID and returns the
// function that releases it. A lock left by a dead process is replaced once.
func (w *Writer) AcquireLock(runID string) (func() error, error) {
	host, _ := os.Hostname()
	l := Lock{PID: os.Getpid(), Host: host, StartedAt: time.Now(), RunID: runID}

	err := w.createLock(l)
	if errors.Is(err, os.ErrExist) {
		existing, readErr := readJSON[Lock](w.LockPath)
		switch {
		case readErr != nil || existing == nil:
			return nil, fmt.Errorf("%w (lock file exists)", ErrLockHeld)
		case !existing.stale(host):
			return nil, fmt.Errorf("%w by pid %d (run_id=%s)", ErrLockHeld, existing.PID, existing.RunID)
		}
		if rmErr := os.Remove(w.LockPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", rmErr)
		}
		err = w.createLock(l)
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w (lost race for stale lock)", ErrLockHeld)
		}
	}
	if err != nil {
		return nil, err
	}

	return func() error { return os.Remove(w.LockPath) }, nil
}

// createLock writes l with O_EXCL so only one controller can succeed.
func (w *Writer) createLock(l Lock) error {
	data, err := json.MarshalIndent(l, "", "    ")
	if err != nil {
		return err
	}
	f, err := os.OpenFile(w.LockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(w.LockPath)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(w.LockPath)
		return err
	}
	return nil
}

func processAlive(pid int) bool {
	// Signal 0 checks existence without delivering anything.
	return syscall.Kill(pid, 0) == nil
}
