package i2c

import (
	"context"
	"sync"
	"testing"

	"github.com/badgeos-go/kernel/internal/kerr"
)

func TestRunDrainsReadIntoBuffer(t *testing.T) {
	m := NewMaster()

	trans := NewTrans()
	trans.Start()
	trans.Addr(0x42, true)
	buf := make([]byte, 4)
	trans.Read(buf)
	trans.Stop()

	n, err := m.Run(trans)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("expected %d bytes exchanged, got %d", len(buf), n)
	}
}

func TestRunCountsWriteBytes(t *testing.T) {
	m := NewMaster()

	trans := NewTrans()
	trans.Start()
	trans.Addr(0x10, false)
	trans.Write([]byte{1, 2, 3})
	trans.Stop()

	n, err := m.Run(trans)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 bytes exchanged, got %d", n)
	}
}

func TestCallbackFiresWithByteCount(t *testing.T) {
	m := NewMaster()

	trans := NewTrans()
	buf := make([]byte, 2)
	trans.Read(buf)

	var got int
	var wg sync.WaitGroup
	wg.Add(1)
	trans.SetCallback(func(err *kerr.Error, n int) {
		got = n
		wg.Done()
	})

	if _, err := m.Run(trans); err != nil {
		t.Fatalf("run: %v", err)
	}
	wg.Wait()

	if got != 2 {
		t.Fatalf("expected callback byte count 2, got %d", got)
	}
}

func TestRunAsyncSerializesAgainstBusyMaster(t *testing.T) {
	m := NewMaster()

	var first, second []byte = make([]byte, 4), make([]byte, 4)
	t1 := NewTrans()
	t1.Read(first)
	t2 := NewTrans()
	t2.Read(second)

	if err := m.RunAsync(context.Background(), t1, t2); err != nil {
		t.Fatalf("runasync: %v", err)
	}
}
