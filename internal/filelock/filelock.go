// Package filelock implements FileLock: a scoped, cross-process exclusive
// lock tied to a path, built on the OS advisory lock (flock) rather than a
// hand-rolled pidfile protocol.
package filelock

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/leandroasilva/lmcs-db/internal/errs"
)

// Options configures acquisition retry behavior.
type Options struct {
	Retries  int           // max acquisition attempts; default 5
	StaleMs  time.Duration // total time after which retrying stops; default 5s (a held lock is never taken over)
	BaseWait time.Duration // base exponential-backoff wait; default 100ms
}

// DefaultOptions matches spec.md §4.2's defaults: 5 retries, 5s stale
// timeout.
func DefaultOptions() Options {
	return Options{
		Retries:  5,
		StaleMs:  5 * time.Second,
		BaseWait: 100 * time.Millisecond,
	}
}

// FileLock brackets a critical section for the lifetime of a Database
// handle, granting cross-process mutual exclusion via flock(2).
type FileLock struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	acquired bool
}

// New returns an unacquired FileLock for path. path's directory is created
// on Acquire if absent.
func New(path string) *FileLock {
	return &FileLock{path: path}
}

// Acquire blocks (with exponential backoff) until the lock is obtained or
// the retry budget is exhausted, in which case it returns a LockError.
func (l *FileLock) Acquire(opts Options) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.acquired {
		return nil
	}

	if opts.Retries <= 0 {
		opts.Retries = DefaultOptions().Retries
	}
	if opts.BaseWait <= 0 {
		opts.BaseWait = DefaultOptions().BaseWait
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return errs.WrapLock("lock.mkdir", "failed to create lock directory", err)
	}

	file, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return errs.WrapLock("lock.open", "failed to open lock file", err)
	}

	var lastErr error
	deadline := time.Now().Add(opts.StaleMs)
	for attempt := 0; attempt < opts.Retries; attempt++ {
		err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			l.file = file
			l.acquired = true
			_ = file.Truncate(0)
			_, _ = file.WriteAt([]byte(fmt.Sprintf("%d", os.Getpid())), 0)
			return nil
		}
		lastErr = err

		if time.Now().After(deadline) {
			break
		}

		wait := opts.BaseWait * time.Duration(math.Pow(2, float64(attempt)))
		time.Sleep(wait)
	}

	_ = file.Close()
	return errs.WrapLock("lock.exhausted", fmt.Sprintf("failed to acquire lock on %s after %d attempts", l.path, opts.Retries), lastErr)
}

// Release deletes the lock file and drops the advisory lock. Safe to call
// multiple times.
func (l *FileLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.acquired || l.file == nil {
		return nil
	}

	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	_ = l.file.Close()
	_ = os.Remove(l.path)
	l.acquired = false
	l.file = nil
	return nil
}

// WithLock acquires the lock, runs fn, and releases the lock unconditionally
// before returning fn's error (or the acquisition error).
func WithLock(path string, opts Options, fn func() error) error {
	lock := New(path)
	if err := lock.Acquire(opts); err != nil {
		return err
	}
	defer lock.Release()
	return fn()
}
