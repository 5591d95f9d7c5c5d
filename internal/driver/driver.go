// Package driver implements the static driver registry and the device-tree
// binder: walking the tree under /soc, resolving each node's compatible
// strings against registered drivers, and calling the first match's init
// function. Binding is deliberately sequential and first-match-wins, never
// parallelized -- device probing order matters (a bus must exist before
// anything hanging off it can be bound) and most init routines are not
// safe to call concurrently against shared MMIO anyway.
package driver

import (
	"strings"

	"github.com/badgeos-go/kernel/internal/dtb"
	"github.com/badgeos-go/kernel/internal/kerr"
	"github.com/badgeos-go/kernel/internal/log"
)

// InitFunc binds a driver to a specific device-tree node.
type InitFunc func(h *dtb.Handle, node dtb.Entity, addrCells, sizeCells uint32) *kerr.Error

// Driver is one entry in the static registry: the "compatible" strings it
// claims to support, and the function that sets it up against a matching
// node.
type Driver struct {
	Name       string
	Compatible []string
	Init       InitFunc
}

// Registry is an ordered list of drivers. For each node, binding takes
// the node's compatible strings in listed order and, for each string,
// searches the drivers in registration order; the first match is bound
// and the search stops, the same first-match-wins contract the source's
// `drivers[]` array implements by linear scan.
type Registry struct {
	drivers []Driver
	log     *log.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *log.Logger) *Registry {
	return &Registry{log: logger}
}

// Register appends a driver to the registry. Order matters: earlier
// registrations win ties on overlapping compatible strings.
func (r *Registry) Register(d Driver) {
	r.drivers = append(r.drivers, d)
}

// SetLogger installs a logger after construction, for callers that learn
// the registry's logger only after registering its first drivers.
func (r *Registry) SetLogger(logger *log.Logger) {
	r.log = logger
}

func (r *Registry) find(compatible string) (Driver, bool) {
	for _, d := range r.drivers {
		for _, c := range d.Compatible {
			if c == compatible {
				return d, true
			}
		}
	}

	return Driver{}, false
}

// cellCounts resolves #address-cells and #size-cells for node's children,
// defaulting to 2 and 1 respectively when the properties are absent, the
// conventional device-tree defaults.
func cellCounts(h *dtb.Handle, node dtb.Entity) (addrCells, sizeCells uint32) {
	addrCells, sizeCells = 2, 1

	if prop := h.GetProp(node, "#address-cells"); prop.Valid {
		if v, err := h.PropReadUint(prop); err == nil {
			addrCells = uint32(v)
		}
	}
	if prop := h.GetProp(node, "#size-cells"); prop.Valid {
		if v, err := h.PropReadUint(prop); err == nil {
			sizeCells = uint32(v)
		}
	}

	return addrCells, sizeCells
}

// compatibleStrings splits a "compatible" property's value -- a sequence
// of NUL-terminated strings -- into its component strings, in listed
// order (most-specific first, by device-tree convention).
func compatibleStrings(h *dtb.Handle, prop dtb.Entity) []string {
	content, err := h.PropContent(prop)
	if err != nil {
		return nil
	}

	var out []string
	start := 0
	for i, b := range content {
		if b == 0 {
			if i > start {
				out = append(out, string(content[start:i]))
			}
			start = i + 1
		}
	}

	return out
}

// BindResult records the outcome of binding one node.
type BindResult struct {
	Node  dtb.Entity
	Bound bool
	Err   *kerr.Error
}

// Bind walks every child of soc in document order, resolves its
// "compatible" strings against the registry, and calls the first
// match's Init. A node with no compatible driver is recorded as unbound,
// not an error: an unrecognized peripheral is expected on a
// partially-supported board.
func (r *Registry) Bind(h *dtb.Handle, soc dtb.Entity) []BindResult {
	var results []BindResult

	addrCells, sizeCells := cellCounts(h, soc)

	for node := h.FirstNode(soc); node.Valid; node = h.NextNode(node) {
		results = append(results, r.bindNode(h, node, addrCells, sizeCells))
	}

	return results
}

func (r *Registry) bindNode(h *dtb.Handle, node dtb.Entity, addrCells, sizeCells uint32) BindResult {
	prop := h.GetProp(node, "compatible")
	if !prop.Valid {
		return BindResult{Node: node, Bound: false}
	}

	for _, compatible := range compatibleStrings(h, prop) {
		d, ok := r.find(compatible)
		if !ok {
			continue
		}

		if r.log != nil {
			r.log.Info("binding driver", log.String("driver", d.Name), log.String("node", node.Name), log.String("compatible", compatible))
		}

		err := d.Init(h, node, addrCells, sizeCells)

		return BindResult{Node: node, Bound: err == nil, Err: err}
	}

	return BindResult{Node: node, Bound: false}
}

// SMPDetect reports the number of CPUs described under the /cpus node,
// a minimal stand-in for the source's SMP bring-up sequence: this port
// has no way to actually start additional harts, so it only surfaces the
// count for callers that want to know the machine is (or isn't)
// single-processor.
func SMPDetect(h *dtb.Handle, root dtb.Entity) int {
	cpus := h.GetNode(root, "cpus")
	if !cpus.Valid {
		return 1
	}

	count := 0
	for node := h.FirstNode(cpus); node.Valid; node = h.NextNode(node) {
		if node.Name == "cpu" || strings.HasPrefix(node.Name, "cpu@") {
			count++
		}
	}

	if count == 0 {
		return 1
	}

	return count
}
