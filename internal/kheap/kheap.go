// Package kheap implements the kernel's dynamic memory allocator: a
// free-list allocator over a fixed-size backing arena, the same role
// mem_alloc/mem_dealloc play for the kernel and, indirectly, for a
// process's mem_alloc syscall.
package kheap

import (
	"sync"

	"github.com/badgeos-go/kernel/internal/kerr"
)

// Addr is an offset into the heap's backing arena.
type Addr uint32

type block struct {
	offset Addr
	size   uint32
	free   bool
}

// Heap is a free-list allocator over an arena of a fixed size, carved out
// once at creation. It never grows; NoMem is a first-class outcome, not a
// bug, since the kernel runs on a microcontroller with no virtual memory
// to fall back on.
type Heap struct {
	mu     sync.Mutex
	size   uint32
	blocks []block // ordered by offset, coalesced on free

	onAlloc func(Addr, uint32)
	onFree  func(Addr)
}

// New creates a heap managing an arena of size bytes, entirely free.
func New(size uint32) *Heap {
	return &Heap{
		size:   size,
		blocks: []block{{offset: 0, size: size, free: true}},
	}
}

// SetHooks installs observers used by tests to assert on allocator
// behaviour -- when and where an alloc or free happened -- without
// inspecting internal block state directly.
func (h *Heap) SetHooks(onAlloc func(Addr, uint32), onFree func(Addr)) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.onAlloc = onAlloc
	h.onFree = onFree
}

// Size returns the total arena size.
func (h *Heap) Size() uint32 { return h.size }

// Alloc reserves size bytes, first-fit among free blocks, aligned to
// align bytes (rounded up to a power of two boundary the caller chooses,
// typically 4 or 8). It returns kerr.Param for a zero size and kerr.NoMem
// when no free block is large enough to serve the aligned request; in
// the NoMem case, the heap is left completely unchanged.
func (h *Heap) Alloc(size, align uint32) (Addr, *kerr.Error) {
	if size == 0 {
		return 0, kerr.New(kerr.Param, kerr.Memory)
	}
	if align == 0 {
		align = 1
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for i, b := range h.blocks {
		if !b.free {
			continue
		}

		aligned := alignUp(b.offset, align)
		pad := uint32(aligned - b.offset)
		if pad+size > b.size {
			continue
		}

		h.splitAt(i, pad, size)

		if h.onAlloc != nil {
			h.onAlloc(aligned, size)
		}

		return aligned, nil
	}

	return 0, kerr.New(kerr.NoMem, kerr.Memory)
}

// splitAt carves an allocation of `size` bytes, `pad` bytes into the free
// block at index i, leaving any leading padding and trailing remainder as
// separate free blocks.
func (h *Heap) splitAt(i int, pad, size uint32) {
	b := h.blocks[i]

	var replacement []block
	if pad > 0 {
		replacement = append(replacement, block{offset: b.offset, size: pad, free: true})
	}

	replacement = append(replacement, block{offset: b.offset + Addr(pad), size: size, free: false})

	remainder := b.size - pad - size
	if remainder > 0 {
		replacement = append(replacement, block{offset: b.offset + Addr(pad) + Addr(size), size: remainder, free: true})
	}

	h.blocks = append(h.blocks[:i], append(replacement, h.blocks[i+1:]...)...)
}

// Free releases the allocation at addr, coalescing it with adjacent free
// blocks. Freeing an address that is not a live allocation asserts in
// debug builds and is a silent no-op in release.
func (h *Heap) Free(addr Addr) {
	h.mu.Lock()
	defer h.mu.Unlock()

	i := h.indexOf(addr)
	if i < 0 {
		kerr.AssertDebug(false, "kheap: free of address not currently allocated")
		return
	}

	h.blocks[i].free = true
	h.coalesce(i)

	if h.onFree != nil {
		h.onFree(addr)
	}
}

func (h *Heap) indexOf(addr Addr) int {
	for i, b := range h.blocks {
		if b.offset == addr && !b.free {
			return i
		}
	}

	return -1
}

func (h *Heap) coalesce(i int) {
	if i+1 < len(h.blocks) && h.blocks[i+1].free {
		h.blocks[i].size += h.blocks[i+1].size
		h.blocks = append(h.blocks[:i+1], h.blocks[i+2:]...)
	}
	if i > 0 && h.blocks[i-1].free {
		h.blocks[i-1].size += h.blocks[i].size
		h.blocks = append(h.blocks[:i], h.blocks[i+1:]...)
	}
}

// Largest returns the size of the largest contiguous free block, useful
// for a syscall that wants to report available memory without handing
// out an actual allocation.
func (h *Heap) Largest() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()

	var best uint32
	for _, b := range h.blocks {
		if b.free && b.size > best {
			best = b.size
		}
	}

	return best
}

func alignUp(addr Addr, align uint32) Addr {
	a := uint32(addr)
	rem := a % align
	if rem == 0 {
		return addr
	}

	return Addr(a + (align - rem))
}
