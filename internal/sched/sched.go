package sched

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/badgeos-go/kernel/internal/dlist"
	"github.com/badgeos-go/kernel/internal/kctx"
	"github.com/badgeos-go/kernel/internal/kerr"
	"github.com/badgeos-go/kernel/internal/log"
)

// Scheduler owns the one global runqueue and the idle task, and drives
// every thread-lifecycle transition: create, resume, suspend, detach,
// destroy, yield, exit, and tick-driven preemption.
type Scheduler struct {
	mu   sync.Mutex
	runq dlist.List[*Thread]

	current *Thread
	idle    *Thread
	byCtx   map[*kctx.Block]*Thread

	onFree   func(*Thread)
	log      *log.Logger
	userExit UserExit
}

// UserExit drives a user thread's implicit exit(0) through the real trap
// path instead of a direct kernel-mode call, the same boundary its other
// syscalls cross. internal/boot installs one once the trap router and
// syscall table exist; kernel threads never use it, since kernel-mode
// code needs no trap to reach the scheduler.
type UserExit func(code int)

// SetUserExit installs fn as the scheduler's user-thread exit path.
func (s *Scheduler) SetUserExit(fn UserExit) {
	s.mu.Lock()
	s.userExit = fn
	s.mu.Unlock()
}

// exitViaTrap calls the installed UserExit hook, falling back to a direct
// Exit if none has been installed (e.g. in unit tests that exercise the
// scheduler without a full boot.Kernel around it).
func (s *Scheduler) exitViaTrap(code int) {
	s.mu.Lock()
	fn := s.userExit
	s.mu.Unlock()

	if fn == nil {
		s.Exit(code)
		return
	}

	fn(code)
}

// New builds a scheduler with its idle task created but not yet running.
// onFree, if non-nil, is called synchronously whenever a thread's
// resources are reaped -- either because it exits detached or because
// Destroy collects it -- the hook tests install to observe frees.
func New(logger *log.Logger, onFree func(*Thread)) *Scheduler {
	s := &Scheduler{onFree: onFree, log: logger, byCtx: make(map[*kctx.Block]*Thread)}
	s.idle = s.newIdle()
	s.register(s.idle)

	return s
}

// register records the context-to-thread mapping the trap-exit path uses
// to turn a TakeSwitch result back into the goroutine it must resume.
func (s *Scheduler) register(t *Thread) {
	s.mu.Lock()
	s.byCtx[t.Ctx] = t
	s.mu.Unlock()
}

func (s *Scheduler) newIdle() *Thread {
	stack, err := kctx.NewStack(0, kctx.StackAlign)
	kerr.AssertAlways(err == nil, "sched: idle stack must be well formed")

	ctx := kctx.NewKernelContext(stack, 0, 0)
	t := newThread(nil, 0, stack, ctx, PriorityLow, nil, false)
	t.entry = func(kctx.Word) {
		for {
			s.waitForInterrupt()
		}
	}

	return t
}

// CreateKernelThread allocates a kernel thread with its own stack and
// registers it in the New state; it must be resumed before it runs.
func (s *Scheduler) CreateKernelThread(entry kctx.EntryPoint, arg kctx.Word, stackBottom, stackSize kctx.Word, priority Priority) (*Thread, *kerr.Error) {
	stack, err := kctx.NewStack(stackBottom, stackSize)
	if err != nil {
		return nil, err
	}

	gp, tp := s.inheritedGPTP()
	ctx := kctx.NewKernelContext(stack, gp, tp)
	t := newThread(entry, arg, stack, ctx, priority, nil, false)
	s.register(t)

	return t, nil
}

// CreateUserThread allocates a user thread belonging to proc. User threads
// manage their own stack; the kernel context's SP/GP/TP/RA start poisoned.
func (s *Scheduler) CreateUserThread(proc ProcessRef, entry kctx.EntryPoint, arg kctx.Word, priority Priority) *Thread {
	ctx := kctx.NewUserContext()
	t := newThread(entry, arg, kctx.Stack{}, ctx, priority, proc, true)
	s.register(t)

	return t
}

func (s *Scheduler) inheritedGPTP() (gp, tp kctx.Word) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return 0, 0
	}

	return s.current.Ctx.Regs.GP, s.current.Ctx.Regs.TP
}

// Current returns the thread currently holding the baton, or nil before
// the scheduler's first dispatch.
func (s *Scheduler) Current() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current
}

// Resume makes a New or Suspended thread runnable, appending it to the
// tail of the runqueue. It is idempotent on an already-runnable or
// already-running thread and rejects a completed one.
func (s *Scheduler) Resume(t *Thread) *kerr.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch t.state {
	case StateCompleted:
		return kerr.New(kerr.Illegal, kerr.Threads)
	case StateRunnable, StateRunning:
		return nil
	default:
		t.state = StateRunnable
		t.ticksLeft = t.Priority.quantum()
		s.runq.Append(t.node)

		return nil
	}
}

// Suspend removes a thread from scheduling. A nil argument suspends the
// calling thread and yields control away immediately, same as the
// scheduler's own operation does for the current thread. A non-nil,
// non-current thread is simply unlinked from the runqueue if present.
func (s *Scheduler) Suspend(t *Thread) *kerr.Error {
	s.mu.Lock()

	if t == nil {
		cur := s.current
		kerr.AssertAlways(cur != nil, "sched: suspend(nil) with no current thread")
		cur.state = StateSuspended
		next := s.selectNextLocked()
		s.dispatchLocked(next)

		return nil
	}

	if t.state == StateCompleted {
		s.mu.Unlock()
		return kerr.New(kerr.Illegal, kerr.Threads)
	}

	if t.node.Linked() {
		s.runq.Remove(t.node)
	}
	t.state = StateSuspended

	s.mu.Unlock()

	return nil
}

// Detach marks a thread so that its resources are freed automatically the
// moment it completes, rather than waiting for an explicit Destroy.
func (s *Scheduler) Detach(t *Thread) {
	s.mu.Lock()
	t.status |= StatusDetached
	s.mu.Unlock()
}

// Destroy cancels and reaps a thread. A nil argument, or the current
// thread itself, marks it detached and completed and yields away from it
// permanently. A non-current thread may only be destroyed while New or
// Suspended; a running or runnable thread must be suspended first.
func (s *Scheduler) Destroy(t *Thread) *kerr.Error {
	s.mu.Lock()

	if t == nil || t == s.current {
		cur := s.current
		kerr.AssertAlways(cur != nil, "sched: destroy(nil) with no current thread")
		cur.status |= StatusDetached | StatusCompleted
		cur.state = StateCompleted
		next := s.selectNextLocked()
		s.dispatchLocked(next)

		return nil
	}

	if t.state != StateSuspended && t.state != StateNew {
		s.mu.Unlock()
		return kerr.New(kerr.Illegal, kerr.Threads)
	}

	if t.node.Linked() {
		s.runq.Remove(t.node)
	}
	t.state = StateCompleted

	s.mu.Unlock()
	s.reap(t)

	return nil
}

// Yield requests an immediate software task switch: the calling thread
// (which must be the current one) is requeued at the tail of the runqueue
// -- unless it is the idle task, which is never queued -- and the next
// runnable thread, or idle if none, takes over.
func (s *Scheduler) Yield() {
	s.mu.Lock()

	cur := s.current
	kerr.AssertAlways(cur != nil, "sched: yield with no current thread")
	assertStackSane(cur)

	if cur != s.idle {
		cur.state = StateRunnable
		s.runq.Append(cur.node)
	}

	next := s.selectNextLocked()
	s.dispatchLocked(next)

	assertStackSane(cur)
}

// Exit marks the calling thread completed with the given exit code and
// switches away from it permanently. If the thread has been detached, its
// resources are reaped as soon as the successor's context is live, never
// while the exiting thread is still current.
func (s *Scheduler) Exit(code int) {
	s.mu.Lock()

	cur := s.current
	kerr.AssertAlways(cur != nil, "sched: exit with no current thread")
	cur.ExitCode = code
	cur.status |= StatusCompleted
	cur.state = StateCompleted

	next := s.selectNextLocked()
	s.dispatchLocked(next)
}

// CheckPoint is the cooperative preemption checkpoint a thread's loop body
// calls, on its own goroutine, to act on a quantum Tick has flagged as
// expired. Only the thread holding the baton may safely hand it off, so
// CheckPoint -- never Tick -- is what actually requeues the current thread
// and dispatches its successor.
func (s *Scheduler) CheckPoint() {
	s.mu.Lock()

	cur := s.current
	if cur == nil || cur == s.idle || !cur.preempted {
		s.mu.Unlock()
		return
	}

	cur.preempted = false
	cur.state = StateRunnable
	cur.ticksLeft = cur.Priority.quantum()
	s.runq.Append(cur.node)

	next := s.selectNextLocked()
	s.dispatchLocked(next)
}

// Tick accounts one unit of elapsed time against the current thread's
// quantum -- the scheduler's tick entry, called by a simulated periodic
// timer interrupt. It only ever touches mutex-guarded bookkeeping: when
// the quantum runs out it flags the current thread as preempted rather
// than dispatching a successor itself, since Tick is called from a
// dedicated ticker goroutine that is not the current thread's own and so
// may not safely hand off a baton it does not hold. The flag is consumed
// by the current thread's own next CheckPoint call. A thread that never
// yields and never calls CheckPoint keeps its goroutine running regardless
// of how many ticks accumulate against it -- a soft guarantee of forward
// progress, not real-time preemption.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current
	if cur == nil || cur == s.idle {
		return
	}

	cur.ticksLeft--
	if cur.ticksLeft <= 0 {
		cur.preempted = true
	}
}

// Run starts the scheduler's first dispatch if nothing is current yet,
// then drives Tick on a fixed quantum interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, quantum time.Duration) error {
	s.mu.Lock()
	if s.current == nil {
		next := s.selectNextLocked()
		s.dispatchLocked(next)
	} else {
		s.mu.Unlock()
	}

	ticker := time.NewTicker(quantum)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick()
		}
	}
}

// waitForInterrupt is the idle task's loop body. With nothing runnable it
// sleeps briefly and rechecks, standing in for a real WFI instruction that
// wakes on any interrupt; once something is runnable it hands off to it
// without ever placing itself on the runqueue.
func (s *Scheduler) waitForInterrupt() {
	s.mu.Lock()

	if s.runq.Len() == 0 {
		s.mu.Unlock()
		time.Sleep(time.Millisecond)

		return
	}

	next := s.selectNextLocked()
	s.dispatchLocked(next)
}

// selectNextLocked pops the runqueue's front, or returns the idle task if
// it is empty. Callers must hold s.mu.
func (s *Scheduler) selectNextLocked() *Thread {
	if node := s.runq.PopFront(); node != nil {
		t := node.Value
		t.ticksLeft = t.Priority.quantum()

		return t
	}

	return s.idle
}

// dispatchLocked decides the next thread to run and deposits the
// context-switch request against the outgoing thread's context block,
// exactly as the scheduler's §4.3 contract requires. Callers must hold
// s.mu on entry; it returns with s.mu unlocked. The actual handoff is left
// to trapExit, which runs after the lock is released, with two
// exceptions: on the very first dispatch (no outgoing thread) it resumes
// next directly, and when next is the outgoing thread itself nothing is
// switched and the caller keeps running.
func (s *Scheduler) dispatchLocked(next *Thread) {
	prev := s.current
	s.current = next
	next.state = StateRunning

	if prev != nil {
		prev.status &^= StatusRunning
	}
	next.status |= StatusRunning

	if prev == next {
		s.mu.Unlock()
		return
	}

	if prev != nil {
		prev.Ctx.RequestSwitch(next.Ctx)
	}

	s.startIfNeeded(next)
	s.mu.Unlock()

	if prev == nil {
		next.Ctx.Resume()
		return
	}

	s.trapExit(prev)
}

// trapExit is the trap-exit path's share of a context switch: it consumes
// the request dispatchLocked deposited -- the same read-then-clear
// TakeSwitch performs with interrupts masked on real hardware -- maps the
// named context back to the thread that owns it, and resumes that
// thread's goroutine. It then parks the outgoing thread, unless it has
// completed, in which case its goroutine simply ends.
func (s *Scheduler) trapExit(prev *Thread) {
	next := prev.Ctx.TakeSwitch()
	kerr.AssertAlways(next != nil, "sched: trap exit with no pending context-switch request")

	s.mu.Lock()
	nextThread := s.byCtx[next]
	s.mu.Unlock()

	kerr.AssertAlways(nextThread != nil, "sched: context-switch request names an unregistered context")

	nextThread.Ctx.Resume()

	if prev.status&StatusCompleted != 0 {
		if prev.status&StatusDetached != 0 {
			s.reap(prev)
		}

		runtime.Goexit()
	}

	prev.Ctx.WaitTurn()
}

func (s *Scheduler) startIfNeeded(t *Thread) {
	if t.started {
		return
	}

	t.started = true
	go t.run(s)
}

func (s *Scheduler) reap(t *Thread) {
	if s.onFree != nil {
		s.onFree(t)
	}
}

func assertStackSane(t *Thread) {
	if t.user || t.Stack.Size == 0 {
		return
	}

	sp := t.Ctx.Regs.SP
	kerr.AssertDebug(t.Stack.Contains(sp), "sched: stack pointer out of bounds across switch")
}
