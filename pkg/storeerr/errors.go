// Package storeerr defines the closed set of errors surfaced by the record
// store, object storage, and ingestion pipeline. Callers should compare with
// errors.Is against the sentinel values below; StoreError carries optional
// operational context without breaking that comparison.
package storeerr

import (
	"errors"
	"fmt"
)

// Sentinel errors. This set is closed: the core never returns an error
// outside of it (wrapped or not).
var (
	// ErrNotFound indicates the requested record, folder, or task is absent.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates a record id already exists.
	ErrDuplicate = errors.New("duplicate id")

	// ErrChecksumConflict indicates an advisory-unique checksum collided.
	ErrChecksumConflict = errors.New("checksum conflict")

	// ErrChecksumMismatch indicates a declared checksum disagreed with the
	// computed one.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrInconsistent indicates startup recovery found unrepairable state.
	ErrInconsistent = errors.New("inconsistent store state")

	// ErrCorrupt indicates an on-disk artifact failed its self-check.
	ErrCorrupt = errors.New("corrupt artifact")

	// ErrLockUnavailable indicates the advisory lock could not be acquired
	// before the timeout elapsed.
	ErrLockUnavailable = errors.New("lock unavailable")

	// ErrLockUnsupported indicates the host OS denied file locking.
	ErrLockUnsupported = errors.New("locking not supported")

	// ErrBackend indicates an object-storage transport or transient failure.
	ErrBackend = errors.New("object storage backend error")

	// ErrQueueFull indicates the ingestion queue high-water mark was
	// exceeded.
	ErrQueueFull = errors.New("ingestion queue full")

	// ErrCancelled indicates an operation was aborted cooperatively.
	ErrCancelled = errors.New("cancelled")
)

// StoreError wraps a sentinel error with the operation and identifier that
// failed, so log lines and returned errors carry enough context to act on
// without losing errors.Is/errors.As compatibility with the sentinel.
type StoreError struct {
	Op  string // operation name, e.g. "create", "get", "compact"
	ID  string // record id, folder path, or task id, if applicable
	Err error  // one of the sentinels above
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Wrap constructs a StoreError. Err should be one of the sentinels in this
// package (possibly itself wrapped further down the stack).
func Wrap(op, id string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, ID: id, Err: err}
}

// Retryable reports whether a failed task is worth retrying. Backend and
// LockUnavailable are transient; everything else is terminal.
func Retryable(err error) bool {
	return errors.Is(err, ErrBackend) || errors.Is(err, ErrLockUnavailable)
}
