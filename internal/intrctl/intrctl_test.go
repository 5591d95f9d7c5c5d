package intrctl

import "testing"

func TestChEnableReturnsPreviousState(t *testing.T) {
	c := New()

	prev := c.ChEnable(3, true)
	if prev != false {
		t.Fatalf("expected initial state false, got %v", prev)
	}

	prev = c.ChEnable(3, false)
	if prev != true {
		t.Fatalf("expected previous state true, got %v", prev)
	}
}

func TestDispatchAcksBeforeInvokingHandler(t *testing.T) {
	c := New()
	c.ChEnable(5, true)
	c.Raise(5)

	var sawPendingDuringHandler bool
	c.ChSetISR(5, func(irq int) {
		_, pending := c.Pending()
		sawPendingDuringHandler = pending
	})

	c.Dispatch(5)

	if sawPendingDuringHandler {
		t.Fatal("expected line acknowledged before handler runs")
	}
}

func TestPendingPicksHighestPriority(t *testing.T) {
	c := New()

	c.ChEnable(1, true)
	c.ChPrio(1, 10)
	c.Raise(1)

	c.ChEnable(2, true)
	c.ChPrio(2, 200)
	c.Raise(2)

	irq, ok := c.Pending()
	if !ok || irq != 2 {
		t.Fatalf("expected line 2 (higher priority) pending, got irq=%d ok=%v", irq, ok)
	}
}

func TestPendingIgnoresDisabledLines(t *testing.T) {
	c := New()

	c.ChEnable(4, false)
	c.Raise(4)

	if _, ok := c.Pending(); ok {
		t.Fatal("expected no pending line when disabled")
	}
}

func TestGlobalEnableReturnsPreviousState(t *testing.T) {
	c := New()

	prev := c.GlobalEnable(true)
	if prev != false {
		t.Fatalf("expected initial global state false, got %v", prev)
	}
	if !c.GlobalEnabled() {
		t.Fatal("expected global interrupts enabled")
	}
}

func TestInitResetsRoutingAndState(t *testing.T) {
	c := New()
	c.ChEnable(7, true)
	c.Raise(7)
	c.GlobalEnable(true)

	c.Init()

	if c.GlobalEnabled() {
		t.Fatal("expected global enable reset after Init")
	}
	if _, ok := c.Pending(); ok {
		t.Fatal("expected no pending lines after Init")
	}
}
