// Package syscall implements the kernel's system call table: a set of
// numbered operations, each taking up to seven argument words and
// returning one, dispatched by internal/trapio's syscall short-path.
// It is grounded on process/syscall_impl.c and kernel/src/main.c's
// syscall_sys_shutdown.
package syscall

import (
	"github.com/badgeos-go/kernel/internal/kctx"
	"github.com/badgeos-go/kernel/internal/kerr"
	"github.com/badgeos-go/kernel/internal/kheap"
	"github.com/badgeos-go/kernel/internal/log"
	"github.com/badgeos-go/kernel/internal/proc"
	"github.com/badgeos-go/kernel/internal/procmm"
	"github.com/badgeos-go/kernel/internal/sched"
	"github.com/badgeos-go/kernel/internal/vfs"
)

// Num identifies one entry in the syscall table.
type Num int

const (
	ProcExit Num = iota
	MemAlloc
	MemSize
	MemDealloc
	ProcSigHandler
	ProcSigRet
	SysShutdown
	TempWrite
	FSOpen
	FSRead
	FSClose
	numSyscalls
)

// MemFlag mirrors mem_alloc's flags argument.
type MemFlag uint32

const (
	MemRW MemFlag = 1 << iota
	MemRX
	MemRWX
)

// ShutdownMode is the value syscall_sys_shutdown stores into the
// kernel's shutdown flag.
type ShutdownMode int32

const (
	ShutdownNone ShutdownMode = iota
	ShutdownPowerOff
	ShutdownReboot
)

// Table wires the syscall numbers to the kernel services they operate
// on: the scheduler (for proc_exit), the heap (for mem_alloc family), a
// filesystem (for fs_open/read/close), and the logger (for temp_write).
type Table struct {
	sched    *sched.Scheduler
	heap     *kheap.Heap
	fs       *vfs.FS
	log      *log.Logger
	shutdown ShutdownMode
}

// NewTable assembles a syscall table over the given kernel services.
func NewTable(s *sched.Scheduler, heap *kheap.Heap, fs *vfs.FS, logger *log.Logger) *Table {
	return &Table{sched: s, heap: heap, fs: fs, log: logger}
}

// currentProcess returns the process owning the scheduler's current
// thread, or nil for a kernel thread with no owning process.
func (t *Table) currentProcess() *proc.Process {
	cur := t.sched.Current()
	if cur == nil || cur.Process == nil {
		return nil
	}

	p, _ := cur.Process.(*proc.Process)

	return p
}

// ProcExit implements the proc_exit syscall: it does not return to the
// caller. The calling thread's process is marked exiting and the thread
// itself is torn down via the scheduler, exactly as sched_exit never
// returns to its caller's stack frame.
func (t *Table) ProcExit(code int) {
	if p := t.currentProcess(); p != nil {
		p.Exit(code)
	}
	t.sched.Exit(code)
}

// MemAlloc implements mem_alloc: it asks the heap for min_size bytes
// aligned to min_align, then records the mapping in the calling
// process's memory map so mem_size/mem_dealloc can find it again.
func (t *Table) MemAlloc(minSize, minAlign uint32, flags MemFlag) (uint32, *kerr.Error) {
	p := t.currentProcess()
	if p == nil {
		return 0, kerr.New(kerr.Illegal, kerr.Process)
	}

	addr, err := t.heap.Alloc(minSize, minAlign)
	if err != nil {
		return 0, err
	}

	region := procmm.Region{
		Base:  uint64(addr),
		Size:  uint64(minSize),
		Write: flags&(MemRW|MemRWX) != 0,
		Exec:  flags&(MemRX|MemRWX) != 0,
	}
	if err := p.MemMap.Map(region); err != nil {
		t.heap.Free(addr)
		return 0, err
	}

	return uint32(addr), nil
}

// MemSize implements mem_size: the size of the region containing addr,
// or 0 if addr is not the base of any mapped region, matching the
// source's "res = 0" default when no matching region is found.
func (t *Table) MemSize(addr uint32) uint32 {
	p := t.currentProcess()
	if p == nil {
		return 0
	}

	region, ok := p.MemMap.Lookup(uint64(addr))
	if !ok || region.Base != uint64(addr) {
		return 0
	}

	return uint32(region.Size)
}

// MemDealloc implements mem_dealloc: unmaps addr from the calling
// process and frees the backing heap allocation, returning whether it
// succeeded.
func (t *Table) MemDealloc(addr uint32) bool {
	p := t.currentProcess()
	if p == nil {
		return false
	}

	if err := p.MemMap.Unmap(uint64(addr)); err != nil {
		return false
	}

	t.heap.Free(kheap.Addr(addr))

	return true
}

// ProcSigHandler implements proc_sighandler: installs newHandler for
// signum and returns the previously installed handler. An out-of-range
// signum is a programming error in the caller, mirroring the source's
// proc_sigsys_handler dispatch; here it is reported as kerr.Range
// instead of raising SIGSYS, since this port has no signal-delivery
// path of its own to raise one through.
func (t *Table) ProcSigHandler(signum int, newHandler uintptr) (uintptr, *kerr.Error) {
	p := t.currentProcess()
	if p == nil {
		return 0, kerr.New(kerr.Illegal, kerr.Process)
	}

	if signum <= 0 || signum >= proc.SignalCount {
		return 0, kerr.New(kerr.Range, kerr.Process)
	}

	old := p.SigHandler(signum)
	if err := p.SetSigHandler(signum, newHandler); err != nil {
		return 0, err
	}

	return old, nil
}

// ProcSigRet implements proc_sigret: delivered by the signal-return
// trampoline, it resumes the thread's pre-signal context. This port has
// no separate signal-delivery context to restore, so it is a no-op
// recorded for the syscall table's completeness; internal/trapio's
// signal-delivery path, when built, is where the saved context would
// actually be restored.
func (t *Table) ProcSigRet() {}

// SysShutdown implements sys_shutdown: stores the requested shutdown
// mode for the boot sequence's idle loop to observe, mirroring
// kernel_shutdown_mode.
func (t *Table) SysShutdown(isReboot bool) {
	mode := ShutdownPowerOff
	if isReboot {
		mode = ShutdownReboot
	}

	if t.log != nil {
		if isReboot {
			t.log.Info("reboot requested")
		} else {
			t.log.Info("shutdown requested")
		}
	}

	t.shutdown = mode
}

// Shutdown returns the most recently requested shutdown mode.
func (t *Table) Shutdown() ShutdownMode {
	return t.shutdown
}

// TempWrite implements temp_write: a raw character sink used by early
// userland before a real console driver exists, writing buf's bytes to
// the kernel log at Info level.
func (t *Table) TempWrite(buf []byte) int {
	if t.log != nil {
		t.log.Info(string(buf))
	}

	return len(buf)
}

// FSOpen implements fs_open, delegating to the VFS and installing the
// resulting handle into the calling process's descriptor table.
func (t *Table) FSOpen(path string, flags vfs.OpenFlag) (int, *kerr.Error) {
	p := t.currentProcess()
	if p == nil {
		return 0, kerr.New(kerr.Illegal, kerr.Process)
	}

	f, err := t.fs.Open(path, flags)
	if err != nil {
		return 0, err
	}

	return p.OpenFD(f)
}

// FSRead implements fs_read, delegating to the open file behind fd.
func (t *Table) FSRead(fd int, buf []byte) (int, *kerr.Error) {
	p := t.currentProcess()
	if p == nil {
		return 0, kerr.New(kerr.Illegal, kerr.Process)
	}

	f, err := p.FD(fd)
	if err != nil {
		return 0, err
	}

	return f.Read(buf)
}

// FSClose implements fs_close, closing fd and removing it from the
// process's descriptor table.
func (t *Table) FSClose(fd int) *kerr.Error {
	p := t.currentProcess()
	if p == nil {
		return kerr.New(kerr.Illegal, kerr.Process)
	}

	return p.CloseFD(fd)
}

// Syscall implements internal/trapio's Syscalls interface, the word-in/
// word-out ABI the syscall short-path actually calls through. It covers
// every syscall whose arguments and result fit that ABI directly
// (proc_exit, the mem_* family, proc_sighandler/sigret, sys_shutdown).
// fs_open/fs_read/fs_close and temp_write take a buffer or a
// path string, which this port has no real user address space to
// resolve a pointer argument against; they are called directly as Go
// methods by whatever stands in for userland in this port (see
// internal/boot), not through this numbered table.
func (t *Table) Syscall(num kctx.Word, args [7]kctx.Word) kctx.Word {
	switch Num(num) {
	case ProcExit:
		t.ProcExit(int(int32(args[0])))
		return 0 // unreachable: ProcExit never returns to its caller

	case MemAlloc:
		addr, err := t.MemAlloc(uint32(args[1]), uint32(args[2]), MemFlag(args[3]))
		if err != nil {
			return 0
		}

		return kctx.Word(addr)

	case MemSize:
		return kctx.Word(t.MemSize(uint32(args[0])))

	case MemDealloc:
		if t.MemDealloc(uint32(args[0])) {
			return 1
		}

		return 0

	case ProcSigHandler:
		old, err := t.ProcSigHandler(int(args[0]), uintptr(args[1]))
		if err != nil {
			return 0
		}

		return kctx.Word(old)

	case ProcSigRet:
		t.ProcSigRet()
		return 0

	case SysShutdown:
		t.SysShutdown(args[0] != 0)
		return 0

	default:
		kerr.AssertAlways(false, "syscall: unknown or unsupported syscall number for the word ABI")

		return 0
	}
}
