package pmutex

import (
	"testing"
	"time"

	"github.com/badgeos-go/kernel/internal/kerr"
)

func TestLockUnlockRoundTrip(t *testing.T) {
	m := New(kerr.Process)

	if err := m.Lock(time.Second); err != nil {
		t.Fatalf("lock: %v", err)
	}
	m.Unlock()

	if err := m.Lock(time.Second); err != nil {
		t.Fatalf("relock: %v", err)
	}
	m.Unlock()
}

func TestLockTimesOutWhenHeld(t *testing.T) {
	m := New(kerr.I2C)

	if err := m.Lock(time.Second); err != nil {
		t.Fatalf("initial lock: %v", err)
	}
	defer m.Unlock()

	err := m.Lock(5 * time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error acquiring held mutex")
	}
	if !errorsIsTimeout(err) {
		t.Fatalf("expected kerr.Timeout, got %v", err)
	}
}

func errorsIsTimeout(err *kerr.Error) bool {
	return err.Kind == kerr.Timeout
}

func TestTryLockDoesNotBlock(t *testing.T) {
	m := New(kerr.GPIO)

	if !m.TryLock() {
		t.Fatal("expected first TryLock to succeed")
	}
	if m.TryLock() {
		t.Fatal("expected second TryLock on held mutex to fail")
	}
	m.Unlock()
	if !m.TryLock() {
		t.Fatal("expected TryLock to succeed after unlock")
	}
}
