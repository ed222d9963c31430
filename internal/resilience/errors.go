package resilience

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
)

var (
	// ErrWaitTimeout reports that a run did not reach a terminal phase before
	// its deadline.
	ErrWaitTimeout = errors.New("acquisition wait timed out")

	// ErrWaitCanceled reports that the caller gave up on a run.
	ErrWaitCanceled = errors.New("acquisition wait canceled")
)

// PermanentError wraps an error to mark it as non-retryable.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError wraps an error to indicate it should not be retried.
func NewPermanentError(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// TransientError wraps an error to mark it as retryable.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error to explicitly indicate it should be retried.
func NewTransientError(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// FromContext translates a context error into ErrWaitTimeout or
// ErrWaitCanceled, keeping the original in the chain. Other errors are
// returned unchanged.
func FromContext(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrWaitTimeout), errors.Is(err, ErrWaitCanceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrWaitTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrWaitCanceled, err)
	default:
		return err
	}
}

// IsWaitError reports whether err is one of the wait kinds.
func IsWaitError(err error) bool {
	return errors.Is(err, ErrWaitTimeout) || errors.Is(err, ErrWaitCanceled)
}

// IsPermanentError checks if an error is marked as permanent (non-retryable).
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}

	var permErr *PermanentError
	if errors.As(err, &permErr) {
		return true
	}

	var transErr *TransientError
	if errors.As(err, &transErr) {
		return false
	}

	// A run that was abandoned will not come back by trying again.
	if IsWaitError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return classifyError(err)
}

// IsTransientError checks if an error is transient (retryable).
func IsTransientError(err error) bool {
	return err != nil && !IsPermanentError(err)
}

// classifyError decides whether an untagged device or filesystem error is
// permanent.
func classifyError(err error) bool {
	// Missing or unwritable saving directories do not fix themselves.
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		if errors.Is(pathErr.Err, syscall.EACCES) || errors.Is(pathErr.Err, syscall.EPERM) ||
			errors.Is(pathErr.Err, syscall.ENOENT) || errors.Is(pathErr.Err, syscall.ENOTDIR) {
			return true
		}
	}

	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		switch sysErr {
		case syscall.EACCES, syscall.EPERM, syscall.ENOENT, syscall.ENOTDIR, syscall.ENODEV, syscall.EINVAL:
			return true
		case syscall.EBUSY, syscall.EAGAIN, syscall.EINTR, syscall.ETIMEDOUT:
			return false
		}
	}

	return false
}
