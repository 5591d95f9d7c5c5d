package trapio

import (
	"testing"

	"github.com/badgeos-go/kernel/internal/intrctl"
	"github.com/badgeos-go/kernel/internal/kctx"
)

type fakeSyscalls struct {
	gotNum  kctx.Word
	gotArgs [7]kctx.Word
	result  kctx.Word
}

func (f *fakeSyscalls) Syscall(num kctx.Word, args [7]kctx.Word) kctx.Word {
	f.gotNum = num
	f.gotArgs = args

	return f.result
}

func TestHandleSyscallWritesResultToA0(t *testing.T) {
	sc := &fakeSyscalls{result: 42}
	r := New(nil, sc, nil)

	blk := kctx.NewBlock()
	blk.Regs.A0 = 1
	blk.Regs.A1 = 2
	blk.Regs.A7 = 7 // syscall number

	next := r.Handle(ExcECallU, 0x1000, 0, blk)

	if next != blk {
		t.Fatal("expected no context switch for a plain syscall")
	}
	if sc.gotNum != 7 {
		t.Fatalf("expected syscall number 7, got %d", sc.gotNum)
	}
	if sc.gotArgs[0] != 1 || sc.gotArgs[1] != 2 {
		t.Fatalf("expected args [1,2,...], got %v", sc.gotArgs)
	}
	if blk.Regs.A0 != 42 {
		t.Fatalf("expected result 42 written to A0, got %d", blk.Regs.A0)
	}
}

func TestHandleInterruptDispatchesPendingLine(t *testing.T) {
	intc := intrctl.New()
	intc.ChRoute(0, 5)
	intc.ChEnable(5, true)

	fired := false
	intc.ChSetISR(5, func(irq int) { fired = true })
	intc.Raise(5)

	r := New(intc, nil, nil)
	blk := kctx.NewBlock()

	r.Handle(Cause(1<<31)|5, 0, 0, blk)

	if !fired {
		t.Fatal("expected interrupt handler to be invoked")
	}
}

func TestHandleConsumesContextSwitchRequest(t *testing.T) {
	sc := &fakeSyscalls{}
	r := New(nil, sc, nil)

	cur := kctx.NewBlock()
	next := kctx.NewBlock()
	cur.RequestSwitch(next)

	got := r.Handle(ExcECallU, 0, 0, cur)

	if got != next {
		t.Fatal("expected Handle to return the requested next context")
	}
	if cur.CtxSwitch != nil {
		t.Fatal("expected ctxswitch cleared after being taken")
	}
}

func TestCauseClassification(t *testing.T) {
	sync := Cause(ExcIllegalInstr)
	if sync.IsInterrupt() {
		t.Fatal("expected synchronous cause to not be classified as an interrupt")
	}

	async := Cause(1<<31) | 11
	if !async.IsInterrupt() {
		t.Fatal("expected top-bit-set cause to be classified as an interrupt")
	}
	if async.Code() != 11 {
		t.Fatalf("expected code 11, got %d", async.Code())
	}
}

func TestDoubleTrapIsFatal(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic on double trap")
		}
	}()

	r := New(nil, &fakeSyscalls{}, nil)
	r.active = true

	blk := kctx.NewBlock()
	r.Handle(ExcIllegalInstr, 0, 0, blk)
}

func TestUnhandledFaultIsFatal(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic on an unhandled synchronous fault")
		}
	}()

	r := New(nil, nil, nil)
	blk := kctx.NewBlock()
	r.Handle(ExcIllegalInstr, 0x2000, 0, blk)
}
