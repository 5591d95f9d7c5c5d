// Package dtb reads a flattened device tree (FDT/DTB) blob: the binary
// format a bootloader hands the kernel describing what hardware exists,
// which the boot sequence walks to bind drivers.
//
// The format is big-endian, word (4-byte) oriented, and self-describing
// via a string table; there is no length-prefixed tree, only a stream of
// FDT_BEGIN_NODE/FDT_END_NODE/FDT_PROP/FDT_NOP/FDT_END tokens that a
// cursor walks forward through, the same shape a recursive-descent parser
// over a token stream would use.
package dtb

import (
	"encoding/binary"

	"github.com/google/btree"

	"github.com/badgeos-go/kernel/internal/kerr"
)

const (
	headerSize  = 40
	magicValue  = 0xd00dfeed
	versionMin  = 16
	versionMax  = 16
)

type token uint32

const (
	tokenBeginNode token = 1
	tokenEndNode   token = 2
	tokenProp      token = 3
	tokenNop       token = 4
	tokenEnd       token = 9
)

// Entity is a cursor onto one node or property in the tree. The zero
// value is an invalid entity, matching dtb_entity_t's all-zero sentinel.
type Entity struct {
	Valid   bool
	IsNode  bool
	Depth   uint8
	Content uint32 // word offset into the struct block
	PropLen uint32 // property value length in bytes; 0 for nodes
	Name    string
}

type phandleEntry struct {
	phandle uint32
	node    Entity
}

func (a phandleEntry) Less(b btree.Item) bool {
	return a.phandle < b.(phandleEntry).phandle
}

// Handle is an opened device tree: the decoded header, the struct and
// string blocks, and the phandle/parent indexes built once at Open time.
type Handle struct {
	structBytes []byte
	stringBytes []byte

	hasErrors bool

	phandles *btree.BTree
	parents  map[uint32]Entity
}

// HasErrors reports whether the tree failed header validation. A tree
// with errors should not be read further; every cursor operation on it
// returns invalid entities.
func (h *Handle) HasErrors() bool { return h.hasErrors }

// Open interprets a raw FDT blob's header and indexes its phandles and
// parent relationships. A malformed header (bad magic or unsupported
// version) is reported both as a kerr.Error and by HasErrors; callers
// that ignore the error still get a safely-inert Handle back.
func Open(raw []byte) (*Handle, *kerr.Error) {
	if len(raw) < headerSize {
		return &Handle{hasErrors: true, phandles: btree.New(8)}, kerr.New(kerr.Param, kerr.DeviceTree)
	}

	magic := binary.BigEndian.Uint32(raw[0:4])
	version := binary.BigEndian.Uint32(raw[20:24])
	offStruct := binary.BigEndian.Uint32(raw[8:12])
	offStrings := binary.BigEndian.Uint32(raw[12:16])
	sizeStrings := binary.BigEndian.Uint32(raw[32:36])
	sizeStruct := binary.BigEndian.Uint32(raw[36:40])

	h := &Handle{parents: make(map[uint32]Entity), phandles: btree.New(8)}

	if magic != magicValue {
		h.hasErrors = true
		return h, kerr.New(kerr.Param, kerr.DeviceTree)
	}
	if version < versionMin || version > versionMax {
		h.hasErrors = true
		return h, kerr.New(kerr.Unsupported, kerr.DeviceTree)
	}

	structEnd := uint64(offStruct) + uint64(sizeStruct)
	stringEnd := uint64(offStrings) + uint64(sizeStrings)
	if structEnd > uint64(len(raw)) || stringEnd > uint64(len(raw)) {
		h.hasErrors = true
		return h, kerr.New(kerr.Param, kerr.DeviceTree)
	}

	h.structBytes = raw[offStruct:structEnd]
	h.stringBytes = raw[offStrings:stringEnd]

	root := h.RootNode()
	if root.Valid {
		h.indexSubtree(root)
	}

	return h, nil
}

func (h *Handle) word(i uint32) (uint32, bool) {
	off := uint64(i) * 4
	if off+4 > uint64(len(h.structBytes)) {
		return 0, false
	}

	return binary.BigEndian.Uint32(h.structBytes[off:]), true
}

// cstringAt reads a NUL-terminated string starting at word index i and
// returns it along with the number of whole words it occupies, rounded
// up, matching (len+3)/4 in the source.
func (h *Handle) cstringAt(i uint32) (string, uint32) {
	start := uint64(i) * 4
	if start >= uint64(len(h.structBytes)) {
		return "", 0
	}

	end := start
	for end < uint64(len(h.structBytes)) && h.structBytes[end] != 0 {
		end++
	}

	s := string(h.structBytes[start:end])
	words := (uint32(len(s)) + 1 + 3) / 4

	return s, words
}

func (h *Handle) skipNops(i uint32) uint32 {
	for {
		w, ok := h.word(i)
		if !ok || token(w) != tokenNop {
			return i
		}
		i++
	}
}

// RootNode returns the tree's single top-level node.
func (h *Handle) RootNode() Entity {
	i := h.skipNops(0)

	w, ok := h.word(i)
	if !ok || token(w) != tokenBeginNode {
		return Entity{}
	}

	name, nameWords := h.cstringAt(i + 1)

	return Entity{
		Valid:   true,
		IsNode:  true,
		Depth:   0,
		Content: i + 1 + nameWords,
		Name:    name,
	}
}

// FirstNode returns parent's first child node, skipping over its
// properties, or an invalid Entity if it has none.
func (h *Handle) FirstNode(parent Entity) Entity {
	i := h.skipPropsAndNops(parent.Content)

	w, ok := h.word(i)
	if !ok || token(w) != tokenBeginNode {
		return Entity{}
	}

	name, nameWords := h.cstringAt(i + 1)

	return Entity{
		Valid:   true,
		IsNode:  true,
		Depth:   parent.Depth + 1,
		Content: i + 1 + nameWords,
		Name:    name,
	}
}

// FirstProp returns parent's first property, or an invalid Entity if its
// first non-NOP token is not a property (i.e. it has none).
func (h *Handle) FirstProp(parent Entity) Entity {
	i := h.skipNops(parent.Content)

	w, ok := h.word(i)
	if !ok || token(w) != tokenProp {
		return Entity{}
	}

	length, _ := h.word(i + 1)
	nameOff, _ := h.word(i + 2)

	return Entity{
		Valid:   true,
		IsNode:  false,
		Depth:   parent.Depth + 1,
		Content: i + 3,
		PropLen: length,
		Name:    h.stringAt(nameOff),
	}
}

func (h *Handle) skipPropsAndNops(i uint32) uint32 {
	i = h.skipNops(i)

	for {
		w, ok := h.word(i)
		if !ok || token(w) != tokenProp {
			return i
		}

		length, _ := h.word(i + 1)
		i += 3 + (length+3)/4
		i = h.skipNops(i)
	}
}

// NextNode returns the next sibling of from at the same depth, or an
// invalid Entity once the parent's children are exhausted.
func (h *Handle) NextNode(from Entity) Entity {
	if !from.Valid || !from.IsNode {
		return Entity{}
	}

	i := h.skipToEndOfSubtree(from)

	w, ok := h.word(i)
	if !ok || token(w) != tokenBeginNode {
		return Entity{}
	}

	name, nameWords := h.cstringAt(i + 1)

	return Entity{
		Valid:   true,
		IsNode:  true,
		Depth:   from.Depth,
		Content: i + 1 + nameWords,
		Name:    name,
	}
}

// skipToEndOfSubtree walks past from's own properties and descendants to
// the token immediately following its closing FDT_END_NODE.
func (h *Handle) skipToEndOfSubtree(from Entity) uint32 {
	i := from.Content
	depth := 1 // already inside from's node body

	for depth > 0 {
		i = h.skipNops(i)

		w, ok := h.word(i)
		if !ok {
			return i
		}

		switch token(w) {
		case tokenProp:
			length, _ := h.word(i + 1)
			i += 3 + (length+3)/4
		case tokenBeginNode:
			_, nameWords := h.cstringAt(i + 1)
			i += 1 + nameWords
			depth++
		case tokenEndNode:
			i++
			depth--
		default:
			return i
		}
	}

	return i
}

// NextProp returns the next property in from's node.
func (h *Handle) NextProp(from Entity) Entity {
	if !from.Valid || from.IsNode {
		return Entity{}
	}

	i := h.skipNops(from.Content + (from.PropLen+3)/4)

	w, ok := h.word(i)
	if !ok || token(w) != tokenProp {
		return Entity{}
	}

	length, _ := h.word(i + 1)
	nameOff, _ := h.word(i + 2)

	return Entity{
		Valid:   true,
		IsNode:  false,
		Depth:   from.Depth,
		Content: i + 3,
		PropLen: length,
		Name:    h.stringAt(nameOff),
	}
}

// WalkNext advances from one step: for a node, to its first property,
// else its first child node, else its next sibling; for a property, to
// the next property of the same node. It does not leave the node it
// starts in: a property with no following property yields an invalid
// Entity (the node's child nodes are not reached from it), and so does a
// node with no property, no child and no following sibling (the walk
// does not climb back up to an ancestor's sibling).
func (h *Handle) WalkNext(from Entity) Entity {
	if !from.Valid {
		return Entity{}
	}

	if !from.IsNode {
		if next := h.NextProp(from); next.Valid {
			return next
		}
		return Entity{}
	}

	if first := h.FirstProp(from); first.Valid {
		return first
	}
	if first := h.FirstNode(from); first.Valid {
		return first
	}

	return h.NextNode(from)
}

func (h *Handle) stringAt(off uint32) string {
	if uint64(off) >= uint64(len(h.stringBytes)) {
		return ""
	}

	end := off
	for int(end) < len(h.stringBytes) && h.stringBytes[end] != 0 {
		end++
	}

	return string(h.stringBytes[off:end])
}

// GetNode returns parent's child node named name, an exact match, not a
// prefix match.
func (h *Handle) GetNode(parent Entity, name string) Entity {
	for node := h.FirstNode(parent); node.Valid; node = h.NextNode(node) {
		if node.Name == name {
			return node
		}
	}

	return Entity{}
}

// GetProp returns parent's property named name, an exact match.
func (h *Handle) GetProp(parent Entity, name string) Entity {
	for prop := h.FirstProp(parent); prop.Valid; prop = h.NextProp(prop) {
		if prop.Name == name {
			return prop
		}
	}

	return Entity{}
}

// FindNode resolves a "/"-separated absolute path to a node, e.g.
// "/soc/i2c@1000".
func (h *Handle) FindNode(path string) Entity {
	node := h.RootNode()

	start := 0
	for start < len(path) && path[start] == '/' {
		start++
	}

	for start < len(path) && node.Valid {
		end := start
		for end < len(path) && path[end] != '/' {
			end++
		}

		node = h.GetNode(node, path[start:end])

		start = end
		for start < len(path) && path[start] == '/' {
			start++
		}
	}

	return node
}

// FindParent returns the immediate enclosing node of ent, whether ent is
// itself a node or a property.
func (h *Handle) FindParent(ent Entity) Entity {
	if !ent.Valid {
		return Entity{}
	}

	parent, ok := h.parents[ent.Content]
	if !ok {
		return Entity{}
	}

	return parent
}

// PhandleNode resolves a phandle reference to the node that declared it.
func (h *Handle) PhandleNode(phandle uint32) Entity {
	item := h.phandles.Get(phandleEntry{phandle: phandle})
	if item == nil {
		return Entity{}
	}

	return item.(phandleEntry).node
}

// PropContent returns the raw bytes backing prop's value.
func (h *Handle) PropContent(prop Entity) ([]byte, *kerr.Error) {
	if !prop.Valid || prop.IsNode {
		return nil, kerr.New(kerr.Param, kerr.DeviceTree)
	}

	start := uint64(prop.Content) * 4
	end := start + uint64(prop.PropLen)
	if end > uint64(len(h.structBytes)) {
		return nil, kerr.New(kerr.Range, kerr.DeviceTree)
	}

	return h.structBytes[start:end], nil
}

// PropReadCell reads the cellIdx-th 32-bit big-endian cell from prop.
func (h *Handle) PropReadCell(prop Entity, cellIdx uint32) (uint32, *kerr.Error) {
	content, err := h.PropContent(prop)
	if err != nil {
		return 0, err
	}

	off := uint64(cellIdx) * 4
	if off+4 > uint64(len(content)) {
		return 0, kerr.New(kerr.Range, kerr.DeviceTree)
	}

	return binary.BigEndian.Uint32(content[off:]), nil
}

// PropReadCells reads cellCount consecutive cells starting at cellIdx and
// combines them big-endian into a single value, the way a 64-bit
// #address-cells=2 reg entry is assembled from two 32-bit cells.
func (h *Handle) PropReadCells(prop Entity, cellIdx, cellCount uint32) (uint64, *kerr.Error) {
	var val uint64

	for n := uint32(0); n < cellCount; n++ {
		cell, err := h.PropReadCell(prop, cellIdx+n)
		if err != nil {
			return 0, err
		}
		val = (val << 32) | uint64(cell)
	}

	return val, nil
}

// PropReadUint reads a whole property as a single big-endian unsigned
// integer, sized by its byte length (4 or 8 bytes are the only sizes the
// tree format actually produces).
func (h *Handle) PropReadUint(prop Entity) (uint64, *kerr.Error) {
	content, err := h.PropContent(prop)
	if err != nil {
		return 0, err
	}

	switch len(content) {
	case 4:
		return uint64(binary.BigEndian.Uint32(content)), nil
	case 8:
		return binary.BigEndian.Uint64(content), nil
	default:
		return 0, kerr.New(kerr.Unsupported, kerr.DeviceTree)
	}
}

func (h *Handle) indexSubtree(node Entity) {
	for prop := h.FirstProp(node); prop.Valid; prop = h.NextProp(prop) {
		h.parents[prop.Content] = node

		if prop.Name == "phandle" || prop.Name == "linux,phandle" {
			if val, err := h.PropReadUint(prop); err == nil {
				h.phandles.ReplaceOrInsert(phandleEntry{phandle: uint32(val), node: node})
			}
		}
	}

	for child := h.FirstNode(node); child.Valid; child = h.NextNode(child) {
		h.parents[child.Content] = node
		h.indexSubtree(child)
	}
}
