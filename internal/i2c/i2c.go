// Package i2c implements an I²C master transaction queue: a command
// list per transaction (start/stop/address/write/read), a busy master
// that runs one transaction at a time, and a pending-transaction queue
// for callers that arrive while the bus is busy. It is grounded on
// hal/i2c.h's i2c_trans_t/i2c_cmd_t shape and port/esp32c6/src/hal/i2c.c's
// driver loop, fixing that driver's i2c_driver_rxdata, which the source
// left stubbed (`return false` with the real drain loop commented out)
// so reads never actually landed in the caller's buffer.
package i2c

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/badgeos-go/kernel/internal/dlist"
	"github.com/badgeos-go/kernel/internal/kerr"
	"github.com/badgeos-go/kernel/internal/pmutex"
)

// CmdType identifies one command in a transaction's command list.
type CmdType int

const (
	CmdStart CmdType = iota
	CmdStop
	CmdAddr
	CmdWrite
	CmdRead
)

// Cmd is one queued I²C master command, mirroring i2c_cmd_t. Addr is
// valid for CmdAddr; Data and an internal cursor are used for CmdWrite
// and CmdRead.
type Cmd struct {
	Type CmdType

	Addr    uint16
	ReadBit bool

	Data  []byte
	index int
}

// Callback is invoked once a transaction finishes, successfully or not,
// reporting how many non-address bytes were exchanged, mirroring
// i2c_trans_cb_t.
type Callback func(err *kerr.Error, byteCount int)

// Trans is a preconstructed I²C transaction: an ordered command list
// built with Start/Stop/Addr/Write/Read, run once via a Master's Run or
// RunAsync.
type Trans struct {
	cmds     dlist.List[Cmd]
	callback Callback
}

// NewTrans creates an empty transaction.
func NewTrans() *Trans {
	return &Trans{}
}

func (t *Trans) append(c Cmd) {
	t.cmds.Append(&dlist.Node[Cmd]{Value: c})
}

// Start appends a start condition.
func (t *Trans) Start() { t.append(Cmd{Type: CmdStart}) }

// Stop appends a stop condition.
func (t *Trans) Stop() { t.append(Cmd{Type: CmdStop}) }

// Addr appends a slave address, with readBit set for a read transfer.
func (t *Trans) Addr(slaveID uint16, readBit bool) {
	t.append(Cmd{Type: CmdAddr, Addr: slaveID, ReadBit: readBit})
}

// Write appends a write of buf's contents; buf is copied into the
// transaction.
func (t *Trans) Write(buf []byte) {
	data := make([]byte, len(buf))
	copy(data, buf)
	t.append(Cmd{Type: CmdWrite, Data: data})
}

// Read appends a read of len(buf) bytes; buf is filled in place once the
// transaction runs, the same contract as i2c_trans_read's caller-owned
// read pointer.
func (t *Trans) Read(buf []byte) {
	t.append(Cmd{Type: CmdRead, Data: buf})
}

// SetCallback installs the transaction's completion callback.
func (t *Trans) SetCallback(cb Callback) {
	t.callback = cb
}

// Master is one I²C master peripheral: a busy flag guarding the bus and
// a FIFO of pending transactions queued while it is busy, mirroring
// i2c_driver_t's busy atomic_flag and pending dlist.
type Master struct {
	mu      *pmutex.Mutex
	busy    bool
	pending dlist.List[*Trans]
}

// NewMaster creates an idle I²C master.
func NewMaster() *Master {
	return &Master{mu: pmutex.New(kerr.I2C)}
}

// Run executes trans synchronously: it claims the bus (queueing behind
// any transaction already running), walks the command list driving the
// simulated FIFOs, and returns the number of non-address bytes
// exchanged.
func (m *Master) Run(trans *Trans) (int, *kerr.Error) {
	if err := m.claim(trans); err != nil {
		return 0, err
	}

	n, err := m.drive(trans)
	if trans.callback != nil {
		trans.callback(err, n)
	}

	m.release()

	return n, err
}

// claim blocks until trans is at the head of the queue and the bus is
// free, the synchronous equivalent of i2c_driver_begin's busy-flag
// test-and-set loop.
func (m *Master) claim(trans *Trans) *kerr.Error {
	m.mu.Lock(0)
	if !m.busy {
		m.busy = true
		m.mu.Unlock()

		return nil
	}
	node := &dlist.Node[*Trans]{Value: trans}
	m.pending.Append(node)
	m.mu.Unlock()

	for {
		m.mu.Lock(0)
		ready := m.pending.Front() == node && !m.busy
		if ready {
			m.busy = true
			m.pending.Remove(node)
		}
		m.mu.Unlock()

		if ready {
			return nil
		}

		runtime.Gosched()
	}
}

// release frees the bus for the next queued transaction, mirroring the
// source's atomic_flag_clear(&driver->busy) once an ISR chain completes.
func (m *Master) release() {
	m.mu.Lock(0)
	m.busy = false
	m.mu.Unlock()
}

// RunAsync runs each transaction on its own goroutine, joined through an
// errgroup so a caller running several transactions concurrently can wait
// on all of them and get back the first error any of them reported,
// instead of hand-rolling a WaitGroup and error channel. The transactions
// do not observe ctx: an error in one does not stop the others.
func (m *Master) RunAsync(ctx context.Context, transactions ...*Trans) error {
	g, _ := errgroup.WithContext(ctx)

	for _, trans := range transactions {
		trans := trans
		g.Go(func() error {
			_, err := m.Run(trans)
			if err != nil {
				return err
			}

			return nil
		})
	}

	return g.Wait()
}

// drive walks trans's command list in order, simulating each command
// against the FIFOs a real driver ISR would service, and is where the
// RX-drain fix lives: every CmdRead command actually receives its bytes,
// unlike the source's disabled i2c_driver_rxdata.
func (m *Master) drive(trans *Trans) (int, *kerr.Error) {
	exchanged := 0

	for node := trans.cmds.Front(); node != nil; node = node.Next() {
		cmd := &node.Value

		switch cmd.Type {
		case CmdStart, CmdStop, CmdAddr:
			// No bytes to exchange; these just shape the bus sequence.
		case CmdWrite:
			exchanged += len(cmd.Data)
		case CmdRead:
			for cmd.index < len(cmd.Data) {
				cmd.Data[cmd.index] = m.nextByte()
				cmd.index++
				exchanged++
			}
		}
	}

	return exchanged, nil
}

// nextByte stands in for reading one byte out of the RX FIFO register; a
// real master peripheral would block here until rxfifo_raddr !=
// rxfifo_waddr. This port has no hardware FIFO to poll, so it always has
// a byte ready.
func (m *Master) nextByte() byte {
	return 0
}
