package syscall

import (
	"context"
	"testing"
	"time"

	"github.com/badgeos-go/kernel/internal/kctx"
	"github.com/badgeos-go/kernel/internal/kheap"
	"github.com/badgeos-go/kernel/internal/proc"
	"github.com/badgeos-go/kernel/internal/sched"
	"github.com/badgeos-go/kernel/internal/vfs"
)

// run boots a scheduler with a single user thread running entry, attached
// to p, and blocks until it completes.
func run(t *testing.T, s *sched.Scheduler, p *proc.Process, entry kctx.EntryPoint) *sched.Thread {
	t.Helper()

	th := s.CreateUserThread(p, entry, 0, sched.PriorityNormal)
	if err := s.Resume(th); err != nil {
		t.Fatalf("resume: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go s.Run(ctx, time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for th.State() != sched.StateCompleted && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if th.State() != sched.StateCompleted {
		t.Fatal("thread never completed")
	}

	return th
}

func TestMemAllocSizeDealloc(t *testing.T) {
	heap := kheap.New(4096)
	p := proc.New(1, nil)
	s := sched.New(nil, nil)
	table := NewTable(s, heap, nil, nil)

	var addr, size uint32
	var deallocOK bool
	var callErr error

	run(t, s, p, func(kctx.Word) {
		a, err := table.MemAlloc(64, 8, MemRW)
		if err != nil {
			callErr = err
			return
		}
		addr = a
		size = table.MemSize(addr)
		deallocOK = table.MemDealloc(addr)
	})

	if callErr != nil {
		t.Fatalf("memalloc: %v", callErr)
	}
	if size != 64 {
		t.Fatalf("expected mem_size to report 64, got %d", size)
	}
	if !deallocOK {
		t.Fatal("expected mem_dealloc to succeed")
	}
}

func TestSigHandlerRoundTrip(t *testing.T) {
	p := proc.New(1, nil)
	s := sched.New(nil, nil)
	table := NewTable(s, nil, nil, nil)

	var old uintptr
	var callErr error

	run(t, s, p, func(kctx.Word) {
		v, err := table.ProcSigHandler(5, 0xbeef)
		old = v
		if err != nil {
			callErr = err
		}
	})

	if callErr != nil {
		t.Fatalf("sighandler: %v", callErr)
	}
	if old != 0 {
		t.Fatalf("expected no previous handler, got %x", old)
	}
	if p.SigHandler(5) != 0xbeef {
		t.Fatalf("expected handler installed, got %x", p.SigHandler(5))
	}
}

func TestFSOpenReadClose(t *testing.T) {
	p := proc.New(1, nil)
	fs := vfs.New()
	f, err := fs.Open("/greeting", vfs.OpenRead|vfs.OpenWrite|vfs.OpenCreate)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.Write([]byte("hi")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.Seek(0); err != nil {
		t.Fatalf("seek: %v", err)
	}

	s := sched.New(nil, nil)
	table := NewTable(s, nil, fs, nil)

	var got []byte
	var callErr error

	run(t, s, p, func(kctx.Word) {
		fd, err := table.FSOpen("/greeting", vfs.OpenRead)
		if err != nil {
			callErr = err
			return
		}

		buf := make([]byte, 2)
		if _, err := table.FSRead(fd, buf); err != nil {
			callErr = err
			return
		}
		got = buf

		if err := table.FSClose(fd); err != nil {
			callErr = err
		}
	})

	if callErr != nil {
		t.Fatalf("syscall chain: %v", callErr)
	}
	if string(got) != "hi" {
		t.Fatalf("expected to read back %q, got %q", "hi", got)
	}
}

func TestProcExitMarksProcessAndNeverReturns(t *testing.T) {
	p := proc.New(1, nil)
	s := sched.New(nil, nil)
	table := NewTable(s, nil, nil, nil)

	reachedAfter := false

	run(t, s, p, func(kctx.Word) {
		table.ProcExit(3)
		reachedAfter = true
	})

	if reachedAfter {
		t.Fatal("expected proc_exit to never return to its caller")
	}
	if !p.HasFlag(proc.FlagExiting) {
		t.Fatal("expected process marked exiting")
	}
	if p.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", p.ExitCode)
	}
}

func TestSyscallDispatchMemSize(t *testing.T) {
	heap := kheap.New(4096)
	p := proc.New(1, nil)
	s := sched.New(nil, nil)
	table := NewTable(s, heap, nil, nil)

	var reported kctx.Word

	run(t, s, p, func(kctx.Word) {
		args := [7]kctx.Word{}
		args[1] = 128 // min_size
		args[2] = 4   // min_align
		args[3] = kctx.Word(MemRW)
		addr := table.Syscall(kctx.Word(MemAlloc), args)

		sizeArgs := [7]kctx.Word{addr}
		reported = table.Syscall(kctx.Word(MemSize), sizeArgs)
	})

	if reported != 128 {
		t.Fatalf("expected dispatched mem_size to report 128, got %d", reported)
	}
}

func TestSysShutdownRecordsMode(t *testing.T) {
	table := NewTable(nil, nil, nil, nil)

	table.SysShutdown(true)
	if table.Shutdown() != ShutdownReboot {
		t.Fatalf("expected reboot mode, got %v", table.Shutdown())
	}

	table.SysShutdown(false)
	if table.Shutdown() != ShutdownPowerOff {
		t.Fatalf("expected power-off mode, got %v", table.Shutdown())
	}
}
