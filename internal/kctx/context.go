package kctx

// Block is the per-thread kernel context block: the scratch words the
// trap-entry assembly uses before it has anywhere else to put values, the
// pointer to the thread's saved register file, the context-switch request
// the trap-exit path consults, and the handoff primitive the trap-exit
// path uses to actually perform a switch.
//
// Lifetime: created with the thread, destroyed when the thread is freed.
// On real hardware, the "current context" is kept in MSCRATCH; in this
// port the scheduler's own current-thread field plays that role, and the
// same rule applies -- it and Regs always agree outside the trap
// prologue/epilogue.
type Block struct {
	scratch [8]Word

	// Regs is the owning pointer to this thread's register file.
	Regs *RegisterFile

	// CtxSwitch is read by the trap-exit path; if non-nil, the exit path
	// swaps the current-context pointer to it and clears it back to nil.
	CtxSwitch *Block

	proceed chan struct{}
}

// NewBlock allocates a context block around a zeroed register file.
func NewBlock() *Block {
	return &Block{Regs: &RegisterFile{}, proceed: make(chan struct{})}
}

// Resume hands this context's goroutine the processor: the trap-exit
// path's half of a switch, performed only after TakeSwitch has named this
// block as the one to resume.
func (b *Block) Resume() {
	b.proceed <- struct{}{}
}

// WaitTurn blocks the calling goroutine until Resume is called for this
// context -- the other half of the handoff, parking a context that has
// been switched away from.
func (b *Block) WaitTurn() {
	<-b.proceed
}

// Scratch returns the i-th scratch word reserved for the trap-entry path.
func (b *Block) Scratch(i int) Word { return b.scratch[i] }

// SetScratch sets the i-th scratch word.
func (b *Block) SetScratch(i int, v Word) { b.scratch[i] = v }

// RequestSwitch deposits a context-switch request into the block. It does
// not itself perform any switch -- only the trap-exit path does that -- so
// a scheduler can be built and unit tested without any real trap path at
// all.
func (b *Block) RequestSwitch(next *Block) {
	b.CtxSwitch = next
}

// TakeSwitch reads and clears the pending context-switch request, the same
// read-then-clear the trap-exit path performs atomically with interrupts
// masked on real hardware.
func (b *Block) TakeSwitch() *Block {
	next := b.CtxSwitch
	b.CtxSwitch = nil

	return next
}

// EntryPoint is a freshly created thread's starting function. Since this
// port has no real instruction stream to jump into, EntryPoint stands in
// for the trampoline's ultimate call: it receives the argument word given
// at thread-creation time, which the scheduler keeps on the Thread; A1 in
// the register file is not set to it.
type EntryPoint func(arg Word)

// TrampolinePC is a sentinel PC value recorded in a fresh thread's register
// file. There is no code at this address to execute -- in this port, the
// scheduler runs EntryPoint directly as the trampoline's body -- but the
// field is still set so register-file assertions and dumps see the same
// shape a real trap-entry path would.
const TrampolinePC Word = 0x0000_0001

// NewKernelContext builds the context block for a freshly created kernel
// thread: PC points at the trampoline, SP is the stack's highest aligned
// address, and GP/TP are copied from the creator so the new thread
// inherits the kernel's addressing globals. A real trampoline would carry
// the entry point and argument across the trap boundary in A0 and A1;
// this port has no code at TrampolinePC to read them back out, so the
// scheduler instead keeps entry and argument on the Thread struct and
// calls the entry point directly.
func NewKernelContext(stack Stack, gp, tp Word) *Block {
	b := NewBlock()

	b.Regs.PC = TrampolinePC
	b.Regs.SP = stack.AlignedTop()
	b.Regs.GP = gp
	b.Regs.TP = tp

	return b
}

// NewUserContext builds the context block for a freshly created user
// thread. SP, GP, TP and RA are deliberately poisoned: user code that
// fails to establish its own environment before touching them faults
// immediately instead of running on garbage.
func NewUserContext() *Block {
	b := NewBlock()

	b.Regs.PC = TrampolinePC
	b.Regs.SP = PoisonWord
	b.Regs.GP = PoisonWord
	b.Regs.TP = PoisonWord
	b.Regs.RA = PoisonWord

	return b
}
