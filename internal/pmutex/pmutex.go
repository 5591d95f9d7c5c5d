// Package pmutex implements a mutex with a microsecond-granularity
// acquisition timeout, the kind process-level and I2C-driver-level locking
// in this kernel use in place of an unbounded blocking lock: a caller that
// cannot make progress within its budget gets kerr.Timeout back instead of
// hanging forever with interrupts masked.
package pmutex

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/badgeos-go/kernel/internal/kerr"
)

// ProcMutexTimeout is the default acquisition budget process-level
// resource mutexes use, matching process/types.h's PROC_MTX_TIMEOUT.
const ProcMutexTimeout = 50 * time.Millisecond

// Mutex is a lock that can be acquired with a bounded wait instead of
// blocking indefinitely.
type Mutex struct {
	loc kerr.Location

	mu   sync.Mutex
	held bool
}

// New creates an unlocked mutex. loc is attached to any kerr.Timeout this
// mutex reports, identifying which subsystem's lock timed out.
func New(loc kerr.Location) *Mutex {
	return &Mutex{loc: loc}
}

// TryLock attempts to acquire the mutex without blocking, returning
// whether it succeeded.
func (m *Mutex) TryLock() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.held {
		return false
	}
	m.held = true

	return true
}

// Unlock releases the mutex. Unlocking an already-unlocked mutex asserts
// in debug builds.
func (m *Mutex) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()

	kerr.AssertDebug(m.held, "pmutex: unlock of unheld mutex")
	m.held = false
}

// Lock blocks, retrying with exponential backoff, until the mutex is
// acquired or timeout elapses, in which case it returns kerr.Timeout.
// A timeout of zero blocks without bound, the same as an ordinary mutex.
func (m *Mutex) Lock(timeout time.Duration) *kerr.Error {
	if timeout <= 0 {
		for !m.TryLock() {
			runtime.Gosched()
		}

		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	b := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(10*time.Microsecond),
		backoff.WithMaxInterval(time.Millisecond),
	), ctx)

	err := backoff.Retry(func() error {
		if m.TryLock() {
			return nil
		}

		return errBusy
	}, b)

	if err != nil {
		return kerr.New(kerr.Timeout, m.loc)
	}

	return nil
}

var errBusy = errors.New("pmutex: busy")
