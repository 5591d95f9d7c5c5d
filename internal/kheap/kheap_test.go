package kheap

import "testing"

func TestAllocFreeRoundTrip(t *testing.T) {
	h := New(1024)

	a, err := h.Alloc(64, 8)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if uint32(a)%8 != 0 {
		t.Fatalf("expected 8-byte aligned address, got %d", a)
	}

	h.Free(a)

	if got := h.Largest(); got != 1024 {
		t.Fatalf("expected full coalesced heap after free, got %d", got)
	}
}

func TestAllocZeroSizeIsParam(t *testing.T) {
	h := New(1024)

	if _, err := h.Alloc(0, 4); err == nil {
		t.Fatal("expected error allocating zero bytes")
	}
}

func TestAllocExhaustionLeavesHeapUnchanged(t *testing.T) {
	h := New(128)

	a, err := h.Alloc(128, 1)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}

	before := h.Largest()

	_, err = h.Alloc(1, 1)
	if err == nil {
		t.Fatal("expected NoMem allocating beyond capacity")
	}

	if after := h.Largest(); after != before {
		t.Fatalf("expected heap unchanged after failed alloc, before=%d after=%d", before, after)
	}

	h.Free(a)
	if got := h.Largest(); got != 128 {
		t.Fatalf("expected full heap reclaimed, got %d", got)
	}
}

func TestFreeHookFires(t *testing.T) {
	h := New(256)

	var freedAt Addr
	var allocSize uint32
	h.SetHooks(func(a Addr, size uint32) { allocSize = size }, func(a Addr) { freedAt = a })

	a, err := h.Alloc(32, 4)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if allocSize != 32 {
		t.Fatalf("expected alloc hook to observe size 32, got %d", allocSize)
	}

	h.Free(a)
	if freedAt != a {
		t.Fatalf("expected free hook to observe address %d, got %d", a, freedAt)
	}
}

func TestCoalesceAcrossThreeBlocks(t *testing.T) {
	h := New(96)

	a, _ := h.Alloc(32, 1)
	b, _ := h.Alloc(32, 1)
	c, _ := h.Alloc(32, 1)

	h.Free(a)
	h.Free(c)
	h.Free(b)

	if got := h.Largest(); got != 96 {
		t.Fatalf("expected all three blocks to coalesce into 96, got %d", got)
	}
}
