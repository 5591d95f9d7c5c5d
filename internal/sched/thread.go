// Package sched implements the cooperative-preemptive thread scheduler: one
// global runqueue, thread lifecycle transitions, and the idle task.
//
// Go has no fiber or coroutine primitive that lets one goroutine forcibly
// suspend another at an arbitrary point, the way a real timer ISR preempts
// whatever instruction the CPU happens to be executing. This package
// simulates that boundary in software instead: each thread is backed by
// its own goroutine, and control passes between them through a rendezvous
// channel on the thread's context block ("the baton"). Exactly one
// thread's goroutine is ever unblocked at a time; every other thread,
// including the idle task, sits parked on its own channel. A scheduler
// method is always called from the one goroutine currently holding the
// baton (or, for Tick, from a dedicated ticker goroutine that only ever
// touches mutex-guarded bookkeeping), so the "single processor" invariant
// holds by construction rather than by luck.
package sched

import (
	"github.com/badgeos-go/kernel/internal/dlist"
	"github.com/badgeos-go/kernel/internal/kctx"
)

// Priority is one of the three priority classes a thread is created with.
// Treated as an opaque label, not a weight -- the underlying SCHED_PRIO_*
// values a caller might map these to vary across sources and carry no
// numeric meaning of their own; quantum below is the only place priority
// actually has numeric meaning in this package.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// quantum returns the number of preemption ticks a priority class runs
// before the scheduler reconsiders: strictly increasing, low < normal <
// high.
func (p Priority) quantum() int {
	switch p {
	case PriorityHigh:
		return 4
	case PriorityNormal:
		return 2
	default:
		return 1
	}
}

// Status is the bitmap of flags carried alongside a thread's lifecycle
// State: whether it is the one currently running, whether it has
// completed, and whether it has been detached.
type Status uint8

const (
	StatusRunning Status = 1 << iota
	StatusCompleted
	StatusDetached
)

// State is a thread's position in its lifecycle:
// New -> (resume) Runnable <-> Running -> (suspend) Suspended
//
//	-> (exit) Completed -> (if detached) freed, else reaped by Destroy.
type State uint8

const (
	StateNew State = iota
	StateRunnable
	StateRunning
	StateSuspended
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRunnable:
		return "runnable"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateCompleted:
		return "completed"
	default:
		return "?"
	}
}

// ProcessRef is the minimal view a Thread needs of the process that owns
// it. package proc implements this so sched need not import proc (which
// in turn holds *Thread values).
type ProcessRef interface {
	ID() int
}

// Thread is one schedulable unit of execution: its association to a
// process (or none, for kernel threads), its stack region, its priority,
// its lifecycle state and status flags, its runqueue node, its exit code,
// and its kernel context block.
type Thread struct {
	Process  ProcessRef
	Stack    kctx.Stack
	Priority Priority
	Ctx      *kctx.Block
	ExitCode int

	status    Status
	state     State
	ticksLeft int
	user      bool
	started   bool
	preempted bool

	node  *dlist.Node[*Thread]
	entry kctx.EntryPoint
	arg   kctx.Word
}

// Status returns the thread's current status bitmap.
func (t *Thread) Status() Status { return t.status }

// State returns the thread's current lifecycle state.
func (t *Thread) State() State { return t.state }

// Detached reports whether the thread has been detached.
func (t *Thread) Detached() bool { return t.status&StatusDetached != 0 }

// Completed reports whether the thread has run to exit.
func (t *Thread) Completed() bool { return t.status&StatusCompleted != 0 }

func newThread(entry kctx.EntryPoint, arg kctx.Word, stack kctx.Stack, ctx *kctx.Block, priority Priority, proc ProcessRef, user bool) *Thread {
	t := &Thread{
		Process:  proc,
		Stack:    stack,
		Priority: priority,
		Ctx:      ctx,
		state:    StateNew,
		entry:    entry,
		arg:      arg,
		user:     user,
	}
	t.node = &dlist.Node[*Thread]{Value: t}

	return t
}

// run is the body every thread's goroutine executes: wait for the baton,
// run the entry point, and if it returns, exit. A user thread exits
// through the scheduler's real ECALL path, the same boundary its syscalls
// cross; a kernel thread calls the scheduler directly, since kernel-mode
// code needs no trap to reach it.
func (t *Thread) run(s *Scheduler) {
	t.Ctx.WaitTurn()
	t.entry(t.arg)

	if t.user {
		s.exitViaTrap(0)
		return
	}

	s.Exit(0)
}
