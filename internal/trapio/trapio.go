// Package trapio implements the trap/interrupt entry-and-exit path: cause
// classification, dispatch to the interrupt controller or the syscall
// table, and the trap-exit context-switch consumption. It is grounded on
// cpu/rv32imac/src/isr.c's __trap_handler/__syscall_handler, generalized
// from that file's always-fatal placeholder into a real classify-and-
// dispatch path, while keeping its double-trap and trap-name-table
// behavior.
package trapio

import (
	"fmt"

	"github.com/badgeos-go/kernel/internal/intrctl"
	"github.com/badgeos-go/kernel/internal/kctx"
	"github.com/badgeos-go/kernel/internal/kerr"
	"github.com/badgeos-go/kernel/internal/log"
)

// Cause is a raw MCAUSE value: the top bit distinguishes an asynchronous
// interrupt from a synchronous trap, and the remaining bits index the
// handler table.
type Cause uint32

const asyncBit Cause = 1 << 31

// IsInterrupt reports whether this cause is an asynchronous interrupt as
// opposed to a synchronous exception.
func (c Cause) IsInterrupt() bool { return c&asyncBit != 0 }

// Code returns the cause's low bits, the trap/interrupt number.
func (c Cause) Code() uint32 { return uint32(c &^ asyncBit) }

// Synchronous exception codes, matching isr.c's trapnames table.
const (
	ExcInstrMisaligned Cause = 0x00
	ExcInstrFault      Cause = 0x01
	ExcIllegalInstr    Cause = 0x02
	ExcBreakpoint      Cause = 0x03
	ExcLoadMisaligned  Cause = 0x04
	ExcLoadFault       Cause = 0x05
	ExcStoreMisaligned Cause = 0x06
	ExcStoreFault      Cause = 0x07
	ExcECallU          Cause = 0x08
	ExcECallS          Cause = 0x09
	ExcECallM          Cause = 0x0B
	ExcInstrPageFault  Cause = 0x0C
	ExcLoadPageFault   Cause = 0x0D
	ExcStorePageFault  Cause = 0x0F
)

// excNames mirrors isr.c's trapnames array.
var excNames = map[Cause]string{
	ExcInstrMisaligned: "Instruction address misaligned",
	ExcInstrFault:      "Instruction access fault",
	ExcIllegalInstr:    "Illegal instruction",
	ExcBreakpoint:      "Breakpoint",
	ExcLoadMisaligned:  "Load address misaligned",
	ExcLoadFault:       "Load access fault",
	ExcStoreMisaligned: "Store address misaligned",
	ExcStoreFault:      "Store access fault",
	ExcECallU:          "ECALL from U-mode",
	ExcECallS:          "ECALL from S-mode",
	ExcECallM:          "ECALL from M-mode",
	ExcInstrPageFault:  "Instruction page fault",
	ExcLoadPageFault:   "Load page fault",
	ExcStorePageFault:  "Store page fault",
}

// Name returns the human-readable exception name, or "" if c is not a
// recognized synchronous exception code.
func (c Cause) Name() string {
	return excNames[c]
}

// IsECall reports whether c is any of the three ECALL exception codes,
// the syscall short-path's trigger.
func (c Cause) IsECall() bool {
	return c == ExcECallU || c == ExcECallS || c == ExcECallM
}

// Syscalls is the dispatch target the syscall short-path calls into. It
// is an interface, not a direct import of package syscall, so that
// trapio has no dependency on the syscall table's own dependencies
// (scheduler, heap, vfs); only internal/boot wires the two together.
type Syscalls interface {
	Syscall(num kctx.Word, args [7]kctx.Word) kctx.Word
}

// Router is the kernel's single trap/interrupt entry point: it
// classifies a cause, dispatches synchronously (syscall, fault) or
// asynchronously (interrupt controller), and on return hands back
// whatever context-switch request the handler deposited.
type Router struct {
	intc     *intrctl.Controller
	syscalls Syscalls
	log      *log.Logger

	active bool
}

// New builds a trap router over an interrupt controller and a syscall
// dispatcher. Either may be nil; a nil intc makes every asynchronous
// cause fatal, a nil syscalls makes every ECALL fatal.
func New(intc *intrctl.Controller, syscalls Syscalls, logger *log.Logger) *Router {
	return &Router{intc: intc, syscalls: syscalls, log: logger}
}

// Handle is the trap entry-and-exit path. It must be called with the
// interrupted thread's register file and context block already
// available -- this port has no real CSR-swap prologue, so the caller
// (internal/boot's user-thread exit hook, or a test) supplies mepc and
// mtval directly instead of reading MEPC/MTVAL itself.
//
// On return, it reports the context block to resume: either blk itself
// (no switch requested) or the block blk.CtxSwitch named, exactly as
// the trap-exit path's ctxswitch inspection does.
func (r *Router) Handle(cause Cause, mepc, mtval kctx.Word, blk *kctx.Block) *kctx.Block {
	if r.active {
		r.fatalDoubleTrap(cause, mepc, mtval)
	}
	r.active = true
	defer func() { r.active = false }()

	switch {
	case cause.IsInterrupt():
		r.handleInterrupt(cause)
	case cause.IsECall():
		r.handleSyscall(blk)
	default:
		r.handleFault(cause, mepc, mtval)
	}

	if next := blk.TakeSwitch(); next != nil {
		return next
	}

	return blk
}

// handleInterrupt dispatches an asynchronous cause through the
// interrupt controller's Pending/Dispatch pair.
func (r *Router) handleInterrupt(cause Cause) {
	if r.intc == nil {
		kerr.AssertAlways(false, "trapio: interrupt with no interrupt controller installed")
		return
	}

	irq, ok := r.intc.Pending()
	if !ok {
		// Spurious: no enabled line is pending. Nothing to
		// dispatch; the interrupt controller's own bookkeeping is the
		// source of truth, not the raw cause code.
		return
	}

	r.intc.Dispatch(irq)
}

// handleSyscall is the syscall short-path: it reads the seven argument
// slots and the syscall number straight out of the register file (the
// only registers the short-path preserves), calls the dispatcher, and
// writes the 32-bit result back to A0.
func (r *Router) handleSyscall(blk *kctx.Block) {
	if r.syscalls == nil {
		kerr.AssertAlways(false, "trapio: ecall with no syscall dispatcher installed")
		return
	}

	args, sysno := blk.Regs.SyscallArgs()
	result := r.syscalls.Syscall(sysno, args)
	blk.Regs.SetSyscallResult(result)
}

// handleFault reports an unhandled synchronous exception. Matching the
// source's placeholder trap handler, every synchronous fault in kernel
// mode is fatal until a user-mode fault policy exists.
func (r *Router) handleFault(cause Cause, mepc, mtval kctx.Word) {
	msg := fmt.Sprintf("trap 0x%02x (%s) at pc 0x%08x, mtval 0x%08x", cause.Code(), cause.Name(), mepc, mtval)

	if r.log != nil {
		r.log.Error(msg)
	}

	kerr.AssertAlways(false, msg)
}

// fatalDoubleTrap mirrors __trap_handler's "DOUBLE TRAP!!" halt: a trap
// arriving while this router is still servicing a previous one.
func (r *Router) fatalDoubleTrap(cause Cause, mepc, mtval kctx.Word) {
	msg := fmt.Sprintf("DOUBLE TRAP!! (cause 0x%02x at pc 0x%08x, mtval 0x%08x)", cause.Code(), mepc, mtval)

	if r.log != nil {
		r.log.Error(msg)
	}

	kerr.AssertAlways(false, msg)
}
