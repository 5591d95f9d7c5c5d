// Package procmm manages a process's memory map: the set of regions it
// has mapped, each carrying its own write/exec permissions, kept sorted
// by base address so the hardware's memory protection unit can be
// regenerated from it directly.
package procmm

import (
	"github.com/google/btree"

	"github.com/badgeos-go/kernel/internal/kerr"
)

// MaxRegions bounds how many regions a single process may map, mirroring
// a platform-defined MPU region count limit (real MPUs have a handful of
// hardware region slots, not an arbitrary number).
const MaxRegions = 8

// Region describes one mapped address range.
type Region struct {
	Base  uint64
	Size  uint64
	Write bool
	Exec  bool
}

func (r Region) end() uint64 { return r.Base + r.Size }

func (r Region) Less(than btree.Item) bool {
	return r.Base < than.(Region).Base
}

func (r Region) overlaps(o Region) bool {
	return r.Base < o.end() && o.Base < r.end()
}

// MemMap is a process's memory map: a base-address-sorted set of
// regions, regenerated into an MPU configuration every time it changes.
type MemMap struct {
	regions *btree.BTree
	count   int
	mpu     []Region // the "MPU configuration cache", a flat sorted copy
}

// New creates an empty memory map.
func New() *MemMap {
	return &MemMap{regions: btree.New(4)}
}

// Regions returns a snapshot of the current region set, sorted by base
// address -- this is also what a real MPU reprogram call would be handed.
func (m *MemMap) Regions() []Region {
	out := make([]Region, len(m.mpu))
	copy(out, m.mpu)

	return out
}

// Map adds a region to the map. It is rejected with kerr.InUse if it
// overlaps an existing region, and with kerr.NoSpace if the process has
// already reached MaxRegions; in both cases the map is left unchanged.
func (m *MemMap) Map(r Region) *kerr.Error {
	if m.count >= MaxRegions {
		return kerr.New(kerr.NoSpace, kerr.Memory)
	}

	var conflict bool
	m.regions.Ascend(func(item btree.Item) bool {
		if item.(Region).overlaps(r) {
			conflict = true
			return false
		}
		return true
	})
	if conflict {
		return kerr.New(kerr.InUse, kerr.Memory)
	}

	m.regions.ReplaceOrInsert(r)
	m.count++
	m.regenerate()

	return nil
}

// Unmap removes the region based at base. It reports kerr.NotFound if no
// region starts there.
func (m *MemMap) Unmap(base uint64) *kerr.Error {
	removed := m.regions.Delete(Region{Base: base})
	if removed == nil {
		return kerr.New(kerr.NotFound, kerr.Memory)
	}

	m.count--
	m.regenerate()

	return nil
}

func (m *MemMap) regenerate() {
	m.mpu = m.mpu[:0]
	m.regions.Ascend(func(item btree.Item) bool {
		m.mpu = append(m.mpu, item.(Region))
		return true
	})
}

// Lookup returns the region containing addr, if any.
func (m *MemMap) Lookup(addr uint64) (Region, bool) {
	for _, r := range m.mpu {
		if addr >= r.Base && addr < r.end() {
			return r, true
		}
	}

	return Region{}, false
}
