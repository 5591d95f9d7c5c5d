// Package boot assembles the kernel: it wires together the scheduler,
// the device-tree-driven driver registry, the interrupt controller, the
// heap, the filesystem, the syscall table and the trap router into one
// running system, and drives the boot sequence that starts userland and
// waits for a shutdown request. It is grounded on kernel/src/main.c's
// basic_runtime_init/kernel_init/userland_init/kernel_lifetime_func, and
// on internal/vm's two-phase OptionFn assembly pattern (vm.New), which
// this package generalizes from a single machine struct to the whole set
// of kernel services.
package boot

import (
	"context"
	"time"

	"github.com/badgeos-go/kernel/internal/dtb"
	"github.com/badgeos-go/kernel/internal/driver"
	"github.com/badgeos-go/kernel/internal/intrctl"
	"github.com/badgeos-go/kernel/internal/kctx"
	"github.com/badgeos-go/kernel/internal/kerr"
	"github.com/badgeos-go/kernel/internal/kheap"
	"github.com/badgeos-go/kernel/internal/log"
	"github.com/badgeos-go/kernel/internal/proc"
	"github.com/badgeos-go/kernel/internal/sched"
	syscalltab "github.com/badgeos-go/kernel/internal/syscall"
	"github.com/badgeos-go/kernel/internal/trapio"
	"github.com/badgeos-go/kernel/internal/vfs"
)

// defaultHeapSize is used when no WithHeapSize option is given.
const defaultHeapSize = 1 << 20

// Kernel is the fully assembled system: every service internal/syscall
// and internal/trapio need, plus the device tree and driver registry
// that bound them at boot.
type Kernel struct {
	Log      *log.Logger
	DTB      *dtb.Handle
	Drivers  *driver.Registry
	Intr     *intrctl.Controller
	Heap     *kheap.Heap
	FS       *vfs.FS
	Sched    *sched.Scheduler
	Syscalls *syscalltab.Table
	Trap     *trapio.Router

	SMP int

	dtbRaw      []byte
	heapSize    uint32
	initArgv    []string
	initEntry   kctx.EntryPoint
	initProcess *proc.Process
}

// OptionFn configures a Kernel during New. Like vm.OptionFn, each
// function runs twice: once early, before the device tree is parsed and
// drivers are bound, and once late, after binding completes and the
// scheduler exists. A driver must register in the early pass to have any
// chance of matching a device-tree node; an init program must be named
// in the late pass, since it needs a scheduler to run on.
type OptionFn func(k *Kernel, late bool)

// WithLogger installs the kernel-wide logger. Early-only: log lines from
// driver binding want it in place from the start.
func WithLogger(logger *log.Logger) OptionFn {
	return func(k *Kernel, late bool) {
		if !late {
			k.Log = logger
		}
	}
}

// WithDeviceTree supplies the raw flattened device tree blob the boot
// sequence parses and binds drivers against. Early-only.
func WithDeviceTree(raw []byte) OptionFn {
	return func(k *Kernel, late bool) {
		if !late {
			k.dtbRaw = raw
		}
	}
}

// WithDriver registers a driver in the static registry. Must run early:
// binding happens between the early and late passes.
func WithDriver(d driver.Driver) OptionFn {
	return func(k *Kernel, late bool) {
		if !late {
			k.Drivers.Register(d)
		}
	}
}

// WithHeapSize overrides the kernel heap's byte size. Early-only.
func WithHeapSize(size uint32) OptionFn {
	return func(k *Kernel, late bool) {
		if !late {
			k.heapSize = size
		}
	}
}

// WithInitProgram names the program userland_init starts as pid 1: its
// argv and its entry point, since this port has no ELF loader of its
// own yet to read one off the bound filesystem. Late-only: it needs the
// scheduler New has built by then.
func WithInitProgram(argv []string, entry kctx.EntryPoint) OptionFn {
	return func(k *Kernel, late bool) {
		if late {
			k.initArgv = argv
			k.initEntry = entry
		}
	}
}

// New assembles a Kernel, running every option twice as basic_runtime_init
// and kernel_init together do: early options configure what the device
// tree is and which drivers exist, then the tree is parsed and bound,
// then late options run against the fully wired kernel.
func New(opts ...OptionFn) (*Kernel, *kerr.Error) {
	k := &Kernel{
		Drivers:  driver.NewRegistry(nil),
		Intr:     intrctl.New(),
		FS:       vfs.New(),
		heapSize: defaultHeapSize,
	}

	for _, fn := range opts {
		fn(k, false)
	}
	k.Drivers.SetLogger(k.Log)

	if k.dtbRaw != nil {
		h, err := dtb.Open(k.dtbRaw)
		if err != nil {
			return nil, err
		}
		k.DTB = h

		root := h.RootNode()
		k.SMP = driver.SMPDetect(h, root)

		if soc := h.FindNode("/soc"); soc.Valid {
			for _, result := range k.Drivers.Bind(h, soc) {
				if result.Err != nil && k.Log != nil {
					k.Log.Error("driver bind failed", log.String("node", result.Node.Name), log.String("err", result.Err.Error()))
				}
			}
		}
	} else {
		k.SMP = 1
	}

	k.Heap = kheap.New(k.heapSize)
	k.Sched = sched.New(k.Log, nil)
	k.Syscalls = syscalltab.NewTable(k.Sched, k.Heap, k.FS, k.Log)
	k.Trap = trapio.New(k.Intr, k.Syscalls, k.Log)

	// A user thread's implicit exit(0) on return goes through the same
	// ECALL boundary its other syscalls would cross, rather than calling
	// the scheduler directly: it loads proc_exit's argument and syscall
	// number into the register slots the short-path reads and hands the
	// cause to the trap router, which dispatches into the syscall table.
	k.Sched.SetUserExit(func(code int) {
		cur := k.Sched.Current()
		if cur == nil {
			return
		}

		cur.Ctx.Regs.SetSyscallArgs([7]kctx.Word{kctx.Word(int32(code))}, kctx.Word(syscalltab.ProcExit))
		k.Trap.Handle(trapio.ExcECallU, cur.Ctx.Regs.PC, 0, cur.Ctx)
	})

	for _, fn := range opts {
		fn(k, true)
	}

	if k.initEntry != nil {
		p := proc.New(1, k.initArgv)
		k.initProcess = p

		th := k.Sched.CreateUserThread(p, k.initEntry, 0, sched.PriorityNormal)
		if err := p.AddThread(th); err != nil {
			return nil, err
		}
		if err := k.Sched.Resume(th); err != nil {
			return nil, err
		}
	}

	return k, nil
}

// InitProcess returns the pid-1 process userland_init started, or nil if
// no WithInitProgram option was given.
func (k *Kernel) InitProcess() *proc.Process {
	return k.initProcess
}

// Run drives the kernel's lifetime after boot: the scheduler ticks on
// its own goroutine while this one polls for a shutdown request,
// mirroring kernel_lifetime_func's sched_yield loop that polls
// kernel_shutdown_mode. It returns when ctx is cancelled or a shutdown
// mode has been recorded.
func (k *Kernel) Run(ctx context.Context, quantum time.Duration) error {
	if k.Log != nil {
		k.Log.Info("kernel initialized")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	schedErr := make(chan error, 1)
	go func() { schedErr <- k.Sched.Run(runCtx, quantum) }()

	poll := time.NewTicker(quantum)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-schedErr:
			return err
		case <-poll.C:
			if mode := k.Syscalls.Shutdown(); mode != syscalltab.ShutdownNone {
				if k.Log != nil {
					k.Log.Info("shutdown procedure", log.String("mode", shutdownName(mode)))
				}
				cancel()
				<-schedErr
				return nil
			}
		}
	}
}

func shutdownName(mode syscalltab.ShutdownMode) string {
	switch mode {
	case syscalltab.ShutdownReboot:
		return "reboot"
	default:
		return "power-off"
	}
}
