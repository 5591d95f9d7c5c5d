// Package proc implements the process abstraction: the argv/fd/thread
// bundle a user program runs as, its memory map, its signal state, and
// the mutex-guarded bookkeeping syscalls mutate. It is grounded on
// process/types.h's process_t, generalized from that struct's fixed
// C arrays to Go slices and maps where the original's bound was just a
// static buffer size rather than a meaningful invariant.
package proc

import (
	"sync/atomic"

	"github.com/badgeos-go/kernel/internal/dlist"
	"github.com/badgeos-go/kernel/internal/kerr"
	"github.com/badgeos-go/kernel/internal/pmutex"
	"github.com/badgeos-go/kernel/internal/procmm"
	"github.com/badgeos-go/kernel/internal/sched"
	"github.com/badgeos-go/kernel/internal/vfs"
)

// SignalCount bounds the signal handler table; slot 0 is reserved for the
// trampoline a thread returns to after running a handler, matching
// process_t's sighandlers[SIG_COUNT] with slot 0 reserved for sigret.
const SignalCount = 32

// Flag is a bit in a process's atomic status word.
type Flag uint32

const (
	// FlagExiting is set once proc_exit has been requested but threads are
	// still being torn down.
	FlagExiting Flag = 1 << iota
	// FlagZombie is set once every thread has completed and only the exit
	// code remains to be reaped by a parent.
	FlagZombie
)

// FD is one entry in a process's file descriptor table: the small
// per-process integer a program uses, mapped to the open vfs handle it
// refers to, mirroring proc_fd_t's virt/real split.
type FD struct {
	Virt int
	Real *vfs.File
}

// SigPending is one queued, not-yet-delivered signal, mirroring
// sigpending_t.
type SigPending struct {
	Signum int
}

// Process is a running program: its arguments, open files, threads,
// memory map, and signal state, all guarded by a single timeout-bounded
// mutex the way process_t's mtx guards the whole struct.
type Process struct {
	PID  int
	Argv []string

	MemMap *procmm.MemMap

	mtx     *pmutex.Mutex
	fds     map[int]FD
	nextFD  int
	threads []*sched.Thread

	flags atomic.Uint32

	sigPending dlist.List[SigPending]
	sigHandler [SignalCount]uintptr

	ExitCode int
}

// New creates a process with the given pid and argv, ready to have
// threads and file descriptors attached to it.
func New(pid int, argv []string) *Process {
	return &Process{
		PID:    pid,
		Argv:   argv,
		MemMap: procmm.New(),
		mtx:    pmutex.New(kerr.Process),
		fds:    make(map[int]FD),
		nextFD: 3, // 0-2 reserved for stdin/stdout/stderr, as in the source
	}
}

// ID satisfies sched.ProcessRef.
func (p *Process) ID() int { return p.PID }

// AddThread attaches an already-created thread to this process's thread
// list, under the process mutex.
func (p *Process) AddThread(t *sched.Thread) *kerr.Error {
	if err := p.mtx.Lock(pmutex.ProcMutexTimeout); err != nil {
		return err
	}
	defer p.mtx.Unlock()

	p.threads = append(p.threads, t)

	return nil
}

// Threads returns a snapshot of the process's thread list.
func (p *Process) Threads() []*sched.Thread {
	if err := p.mtx.Lock(pmutex.ProcMutexTimeout); err != nil {
		return nil
	}
	defer p.mtx.Unlock()

	out := make([]*sched.Thread, len(p.threads))
	copy(out, p.threads)

	return out
}

// OpenFD installs an open file under the next available descriptor
// number and returns it.
func (p *Process) OpenFD(f *vfs.File) (int, *kerr.Error) {
	if err := p.mtx.Lock(pmutex.ProcMutexTimeout); err != nil {
		return 0, err
	}
	defer p.mtx.Unlock()

	virt := p.nextFD
	p.nextFD++
	p.fds[virt] = FD{Virt: virt, Real: f}

	return virt, nil
}

// FD looks up an open file descriptor by its process-local number.
func (p *Process) FD(virt int) (*vfs.File, *kerr.Error) {
	if err := p.mtx.Lock(pmutex.ProcMutexTimeout); err != nil {
		return nil, err
	}
	defer p.mtx.Unlock()

	fd, ok := p.fds[virt]
	if !ok {
		return nil, kerr.New(kerr.NotFound, kerr.Process)
	}

	return fd.Real, nil
}

// CloseFD removes a descriptor from the table and closes the underlying
// file handle.
func (p *Process) CloseFD(virt int) *kerr.Error {
	if err := p.mtx.Lock(pmutex.ProcMutexTimeout); err != nil {
		return err
	}
	defer p.mtx.Unlock()

	fd, ok := p.fds[virt]
	if !ok {
		return kerr.New(kerr.NotFound, kerr.Process)
	}

	fd.Real.Close()
	delete(p.fds, virt)

	return nil
}

// SetFlag atomically sets bit f in the process's status word.
func (p *Process) SetFlag(f Flag) {
	for {
		old := p.flags.Load()
		if old&uint32(f) != 0 {
			return
		}
		if p.flags.CompareAndSwap(old, old|uint32(f)) {
			return
		}
	}
}

// HasFlag reports whether bit f is currently set.
func (p *Process) HasFlag(f Flag) bool {
	return p.flags.Load()&uint32(f) != 0
}

// SetSigHandler installs the handler address for signum, returning Param
// if signum is out of range or zero (slot 0 is reserved for sigret).
func (p *Process) SetSigHandler(signum int, handler uintptr) *kerr.Error {
	if signum <= 0 || signum >= SignalCount {
		return kerr.New(kerr.Param, kerr.Process)
	}

	if err := p.mtx.Lock(pmutex.ProcMutexTimeout); err != nil {
		return err
	}
	defer p.mtx.Unlock()

	p.sigHandler[signum] = handler

	return nil
}

// SigHandler returns the installed handler address for signum, or 0 if
// none is installed.
func (p *Process) SigHandler(signum int) uintptr {
	if signum <= 0 || signum >= SignalCount {
		return 0
	}

	return p.sigHandler[signum]
}

// SigRetAddr returns the reserved slot-0 trampoline address a thread
// resumes at after a signal handler returns.
func (p *Process) SigRetAddr() uintptr {
	return p.sigHandler[0]
}

// SetSigRetAddr installs the slot-0 trampoline address.
func (p *Process) SetSigRetAddr(addr uintptr) {
	p.sigHandler[0] = addr
}

// QueueSignal appends a pending signal to the process's queue.
func (p *Process) QueueSignal(signum int) *kerr.Error {
	if err := p.mtx.Lock(pmutex.ProcMutexTimeout); err != nil {
		return err
	}
	defer p.mtx.Unlock()

	p.sigPending.Append(&dlist.Node[SigPending]{Value: SigPending{Signum: signum}})

	return nil
}

// NextSignal pops the oldest pending signal, reporting ok=false if none
// is queued.
func (p *Process) NextSignal() (SigPending, bool) {
	if err := p.mtx.Lock(pmutex.ProcMutexTimeout); err != nil {
		return SigPending{}, false
	}
	defer p.mtx.Unlock()

	node := p.sigPending.PopFront()
	if node == nil {
		return SigPending{}, false
	}

	return node.Value, true
}

// Exit marks the process exiting with the given code; it does not itself
// tear down threads, leaving that to the caller (the syscall/scheduler
// layer), the same separation of concerns process_exit keeps in the
// source between marking state and actually unwinding.
func (p *Process) Exit(code int) {
	p.ExitCode = code
	p.SetFlag(FlagExiting)
}
