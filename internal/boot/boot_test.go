package boot

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/badgeos-go/kernel/internal/dtb"
	"github.com/badgeos-go/kernel/internal/driver"
	"github.com/badgeos-go/kernel/internal/kctx"
	"github.com/badgeos-go/kernel/internal/kerr"
	"github.com/badgeos-go/kernel/internal/proc"
	"github.com/badgeos-go/kernel/internal/sched"
)

func TestNewAssemblesKernelWithoutDeviceTree(t *testing.T) {
	k, err := New(WithHeapSize(4096))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if k.Sched == nil || k.Heap == nil || k.FS == nil || k.Syscalls == nil || k.Trap == nil {
		t.Fatal("expected every core service wired")
	}
	if k.SMP != 1 {
		t.Fatalf("expected single-processor default, got %d", k.SMP)
	}
}

// buildOneDeviceTree assembles a minimal /soc/dev@0 { compatible = "vnd,thing"; }.
func buildOneDeviceTree(t *testing.T) []byte {
	t.Helper()

	var words []uint32
	put := func(v uint32) { words = append(words, v) }
	cstr := func(s string) uint32 {
		raw := append([]byte(s), 0)
		for len(raw)%4 != 0 {
			raw = append(raw, 0)
		}
		n := uint32(0)
		for i := 0; i < len(raw); i += 4 {
			put(binary.BigEndian.Uint32(raw[i : i+4]))
			n++
		}
		return n
	}

	var strs []byte
	addStr := func(s string) uint32 {
		off := uint32(len(strs))
		strs = append(strs, s...)
		strs = append(strs, 0)
		return off
	}

	offCompatible := addStr("compatible")

	beginNode := func() { put(1) }
	endNode := func() { put(2) }
	prop := func(nameOff, length uint32) { put(3); put(length); put(nameOff) }

	beginNode()
	cstr("") // root

	beginNode()
	cstr("soc")

	beginNode()
	cstr("dev@0")
	val := "vnd,thing\x00"
	prop(offCompatible, uint32(len(val)))
	raw := []byte(val)
	for len(raw)%4 != 0 {
		raw = append(raw, 0)
	}
	for i := 0; i < len(raw); i += 4 {
		put(binary.BigEndian.Uint32(raw[i : i+4]))
	}
	endNode() // dev@0

	endNode() // soc
	endNode() // root
	put(9)    // FDT_END

	structBytes := make([]byte, len(words)*4)
	for i, w := range words {
		binary.BigEndian.PutUint32(structBytes[i*4:], w)
	}

	const hdrSize = 40
	offStruct := uint32(hdrSize)
	offStrings := offStruct + uint32(len(structBytes))

	out := make([]byte, hdrSize+len(structBytes)+len(strs))
	binary.BigEndian.PutUint32(out[0:4], 0xd00dfeed)
	binary.BigEndian.PutUint32(out[8:12], offStruct)
	binary.BigEndian.PutUint32(out[12:16], offStrings)
	binary.BigEndian.PutUint32(out[20:24], 16)
	binary.BigEndian.PutUint32(out[32:36], uint32(len(strs)))
	binary.BigEndian.PutUint32(out[36:40], uint32(len(structBytes)))
	copy(out[offStruct:], structBytes)
	copy(out[offStrings:], strs)

	return out
}

func TestNewBindsDriverFromDeviceTree(t *testing.T) {
	var bound string

	k, err := New(
		WithDeviceTree(buildOneDeviceTree(t)),
		WithDriver(driver.Driver{
			Name:       "thing",
			Compatible: []string{"vnd,thing"},
			Init: func(h *dtb.Handle, node dtb.Entity, addrCells, sizeCells uint32) *kerr.Error {
				bound = node.Name
				return nil
			},
		}),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if bound != "dev@0" {
		t.Fatalf("expected driver bound to dev@0, got %q", bound)
	}
	if k.DTB == nil {
		t.Fatal("expected device tree handle retained")
	}
}

func TestRunStopsOnShutdownRequest(t *testing.T) {
	k, err := New(WithHeapSize(4096))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	p := proc.New(1, nil)
	entry := func(kctx.Word) {
		k.Syscalls.SysShutdown(false)
	}

	th := k.Sched.CreateUserThread(p, entry, 0, sched.PriorityNormal)
	if err := p.AddThread(th); err != nil {
		t.Fatalf("add thread: %v", err)
	}
	if err := k.Sched.Resume(th); err != nil {
		t.Fatalf("resume: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := k.Run(ctx, time.Millisecond); err != nil {
		t.Fatalf("run: %v", err)
	}

	if k.Syscalls.Shutdown() == 0 {
		t.Fatal("expected a shutdown mode recorded")
	}
}
