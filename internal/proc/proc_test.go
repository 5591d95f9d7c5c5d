package proc

import (
	"testing"

	"github.com/badgeos-go/kernel/internal/vfs"
)

func TestNewProcessReservesLowFDs(t *testing.T) {
	p := New(1, []string{"init"})

	fs := vfs.New()
	f, err := fs.Open("/tmp/x", vfs.OpenRead|vfs.OpenWrite|vfs.OpenCreate)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	virt, err := p.OpenFD(f)
	if err != nil {
		t.Fatalf("openfd: %v", err)
	}
	if virt < 3 {
		t.Fatalf("expected first allocated fd to be >= 3, got %d", virt)
	}
}

func TestFDLookupAndClose(t *testing.T) {
	p := New(1, nil)
	fs := vfs.New()
	f, _ := fs.Open("/a", vfs.OpenRead|vfs.OpenWrite|vfs.OpenCreate)

	virt, err := p.OpenFD(f)
	if err != nil {
		t.Fatalf("openfd: %v", err)
	}

	if got, err := p.FD(virt); err != nil || got != f {
		t.Fatalf("expected lookup to return the same file handle, got %v err=%v", got, err)
	}

	if err := p.CloseFD(virt); err != nil {
		t.Fatalf("closefd: %v", err)
	}

	if _, err := p.FD(virt); err == nil {
		t.Fatal("expected lookup to fail after close")
	}
}

func TestSigHandlerSlotZeroReservedSeparately(t *testing.T) {
	p := New(1, nil)

	if err := p.SetSigHandler(0, 0xdead); err == nil {
		t.Fatal("expected signum 0 to be rejected via SetSigHandler")
	}

	p.SetSigRetAddr(0xdead)
	if p.SigRetAddr() != 0xdead {
		t.Fatalf("expected sigret address to round trip, got %x", p.SigRetAddr())
	}

	if err := p.SetSigHandler(5, 0xbeef); err != nil {
		t.Fatalf("sethandler: %v", err)
	}
	if p.SigHandler(5) != 0xbeef {
		t.Fatalf("expected handler 5 to round trip, got %x", p.SigHandler(5))
	}
}

func TestQueueAndPopSignalsFIFO(t *testing.T) {
	p := New(1, nil)

	if err := p.QueueSignal(2); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := p.QueueSignal(9); err != nil {
		t.Fatalf("queue: %v", err)
	}

	first, ok := p.NextSignal()
	if !ok || first.Signum != 2 {
		t.Fatalf("expected first signal 2, got %+v ok=%v", first, ok)
	}

	second, ok := p.NextSignal()
	if !ok || second.Signum != 9 {
		t.Fatalf("expected second signal 9, got %+v ok=%v", second, ok)
	}

	if _, ok := p.NextSignal(); ok {
		t.Fatal("expected no signal left queued")
	}
}

func TestExitSetsFlagAndCode(t *testing.T) {
	p := New(1, nil)

	p.Exit(7)

	if !p.HasFlag(FlagExiting) {
		t.Fatal("expected FlagExiting set after Exit")
	}
	if p.ExitCode != 7 {
		t.Fatalf("expected exit code 7, got %d", p.ExitCode)
	}
}
