// Package filelock provides a cross-platform advisory lock on a sentinel
// file, with stale-holder detection, grounding the single global lock used
// to serialize index and WAL mutations.
package filelock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/marmos91/docstore/pkg/storeerr"
)

// StaleGracePeriod is the minimum age a breadcrumb must reach before a lock
// holder that appears dead may be reclaimed.
const StaleGracePeriod = 30 * time.Second

// breadcrumb is written into the lock file on every successful acquire.
type breadcrumb struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Lock is a held advisory lock. The zero value is not usable; obtain one
// from Acquire.
type Lock struct {
	path string
	f    *os.File
}

// Acquire blocks, polling at a short interval, until the lock at path is
// held, ctx is cancelled, or timeout elapses (timeout <= 0 means no
// timeout beyond ctx). Acquire is safe to call from multiple goroutines in
// the same process; only one will win per path per host.
func Acquire(ctx context.Context, path string, timeout time.Duration) (*Lock, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		f, err := tryOpen(path)
		if err == nil {
			l := &Lock{path: path, f: f}
			if lockErr := lockFile(f); lockErr != nil {
				f.Close()
				if lockErr == errLockHeld {
					if waitErr := waitOrStale(ctx, path, deadline); waitErr != nil {
						return nil, waitErr
					}
					continue
				}
				return nil, storeerr.Wrap("acquire", path, fmt.Errorf("%w: %v", storeerr.ErrLockUnsupported, lockErr))
			}
			if err := l.writeBreadcrumb(); err != nil {
				unlockFile(f)
				f.Close()
				return nil, storeerr.Wrap("acquire", path, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
			}
			return l, nil
		}
		return nil, storeerr.Wrap("acquire", path, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
}

func tryOpen(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
}

func waitOrStale(ctx context.Context, path string, deadline time.Time) error {
	const pollInterval = 50 * time.Millisecond
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return storeerr.Wrap("acquire", path, storeerr.ErrCancelled)
		case <-ticker.C:
			if !deadline.IsZero() && time.Now().After(deadline) {
				return storeerr.Wrap("acquire", path, storeerr.ErrLockUnavailable)
			}
			if stale, bc := isStale(path); stale {
				reclaim(path, bc)
			}
			return nil
		}
	}
}

func isStale(path string) (bool, *breadcrumb) {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return false, nil
	}
	var bc breadcrumb
	if err := json.Unmarshal(data, &bc); err != nil {
		return false, nil
	}
	if time.Since(bc.AcquiredAt) < StaleGracePeriod {
		return false, &bc
	}
	if processAlive(bc.PID) {
		return false, &bc
	}
	return true, &bc
}

// reclaim best-effort clears a breadcrumb known to belong to a dead holder.
// The next Acquire loop iteration will attempt the real OS-level lock; if
// another process beat us to it, the lock syscall will simply fail again.
func reclaim(path string, _ *breadcrumb) {
	_ = os.Truncate(path, 0)
}

func (l *Lock) writeBreadcrumb() error {
	hostname, _ := os.Hostname()
	bc := breadcrumb{PID: os.Getpid(), Hostname: hostname, AcquiredAt: time.Now()}
	data, err := json.Marshal(bc)
	if err != nil {
		return err
	}
	if err := l.f.Truncate(0); err != nil {
		return err
	}
	if _, err := l.f.WriteAt(data, 0); err != nil {
		return err
	}
	return l.f.Sync()
}

// Release unlocks and closes the lock file. Release is idempotent.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlockFile(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if err != nil {
		return err
	}
	return closeErr
}
