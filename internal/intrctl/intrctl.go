// Package intrctl abstracts the interrupt controller: routing a platform
// interrupt line to one of the CPU's internal lines, installing a handler,
// masking/unmasking, prioritizing, and acknowledging it. The central trap
// handler in package trapio looks up and invokes handlers by internal-irq
// number through this package.
package intrctl

import (
	"sync"

	"github.com/badgeos-go/kernel/internal/kerr"
)

// NumInternal is the number of internal interrupt lines the CPU exposes,
// numbered 1..31; line 0 is reserved (never routed, never enabled).
const NumInternal = 32

// Handler services one internal interrupt line.
type Handler func(internalIRQ int)

type channel struct {
	routed  bool
	extIRQ  int
	enabled bool
	prio    uint8
	pending bool
	handler Handler
}

// Controller is a single CPU's interrupt controller: a routing table from
// external platform lines to the CPU's 1..31 internal lines, each with an
// installed handler, priority, and enable state.
type Controller struct {
	mu       sync.Mutex
	channels [NumInternal]channel

	globalEnabled bool
}

// New creates a controller with routing masked and nothing enabled.
func New() *Controller {
	return &Controller{}
}

// Init sets up routing table, masking everything -- the state New already
// returns, kept as an explicit operation to mirror the source's irq_init.
func (c *Controller) Init() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.channels = [NumInternal]channel{}
	c.globalEnabled = false
}

func validInternal(irq int) bool {
	return irq >= 1 && irq < NumInternal
}

// ChRoute connects a platform interrupt line to one of the CPU's internal
// lines. Outside [1,31], it asserts in debug builds and is a no-op in
// release.
func (c *Controller) ChRoute(externalIRQ, internalIRQ int) {
	if !validInternal(internalIRQ) {
		kerr.AssertDebug(false, "intrctl: internal irq out of range")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.channels[internalIRQ].routed = true
	c.channels[internalIRQ].extIRQ = externalIRQ
}

// ChSetISR installs a handler for an internal interrupt line.
func (c *Controller) ChSetISR(internalIRQ int, handler Handler) {
	if !validInternal(internalIRQ) {
		kerr.AssertDebug(false, "intrctl: internal irq out of range")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.channels[internalIRQ].handler = handler
}

// ChEnable masks or unmasks an internal interrupt line and returns its
// previous enabled state. The source has this return either bool or void
// depending on the file; this port always returns the previous state
// because it composes cleanly with scoped enable/disable.
func (c *Controller) ChEnable(internalIRQ int, enable bool) bool {
	if !validInternal(internalIRQ) {
		kerr.AssertDebug(false, "intrctl: internal irq out of range")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.channels[internalIRQ].enabled
	c.channels[internalIRQ].enabled = enable

	return prev
}

// ChPrio sets an internal line's relative priority, 0..255, linearly mapped
// onto whatever priority levels the hardware actually offers.
func (c *Controller) ChPrio(internalIRQ int, prio uint8) {
	if !validInternal(internalIRQ) {
		kerr.AssertDebug(false, "intrctl: internal irq out of range")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.channels[internalIRQ].prio = prio
}

// ChAck acknowledges an edge-triggered line's pending bit.
func (c *Controller) ChAck(internalIRQ int) {
	if !validInternal(internalIRQ) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.channels[internalIRQ].pending = false
}

// Raise marks an internal line pending. Test and driver code use this to
// simulate a device asserting its interrupt line.
func (c *Controller) Raise(internalIRQ int) {
	if !validInternal(internalIRQ) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.channels[internalIRQ].pending = true
}

// GlobalEnable enables or disables interrupts on this CPU and returns the
// previous state.
func (c *Controller) GlobalEnable(enable bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.globalEnabled
	c.globalEnabled = enable

	return prev
}

// GlobalEnabled reports whether interrupts are currently enabled on this
// CPU.
func (c *Controller) GlobalEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.globalEnabled
}

// Dispatch invokes the handler for internalIRQ, acknowledging it first. A
// missing handler is fatal, per the central trap handler's contract.
func (c *Controller) Dispatch(internalIRQ int) {
	c.mu.Lock()
	ch := c.channels[internalIRQ]
	c.mu.Unlock()

	kerr.AssertAlways(ch.handler != nil, "intrctl: no handler installed for internal irq")

	c.ChAck(internalIRQ)
	ch.handler(internalIRQ)
}

// Pending returns the highest-priority internal line that is enabled and
// pending; whether the line is routed is not checked, and among equal
// priorities the lowest-numbered line wins. It is the primitive the trap
// path's interrupt-classification step polls.
func (c *Controller) Pending() (internalIRQ int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	best := -1

	for i := 1; i < NumInternal; i++ {
		ch := c.channels[i]
		if ch.enabled && ch.pending {
			if best == -1 || ch.prio > c.channels[best].prio {
				best = i
			}
		}
	}

	if best == -1 {
		return 0, false
	}

	return best, true
}
