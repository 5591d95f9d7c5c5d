package dtb

import (
	"encoding/binary"
	"testing"
)

type treeBuilder struct {
	words []uint32
}

func (b *treeBuilder) word(w uint32) { b.words = append(b.words, w) }

// cstring appends s NUL-terminated and zero-padded to a whole number of
// words, returning how many words it occupied -- mirrors (len+3)/4 in the
// format itself.
func (b *treeBuilder) cstring(s string) uint32 {
	raw := append([]byte(s), 0)
	for len(raw)%4 != 0 {
		raw = append(raw, 0)
	}

	n := uint32(0)
	for i := 0; i < len(raw); i += 4 {
		b.word(binary.BigEndian.Uint32(raw[i : i+4]))
		n++
	}

	return n
}

// buildTestTree hand-assembles a small, valid FDT blob:
//
//	/ {
//	    foo = "bar";
//	    soc {
//	        phandle = <5>;
//	    };
//	};
func buildTestTree() []byte {
	const (
		fooOff      = 0
		phandleOff  = 4
		stringBlock = "foo\x00phandle\x00"
	)

	b := &treeBuilder{}

	b.word(uint32(tokenBeginNode))
	b.cstring("") // root node name

	b.word(uint32(tokenProp))
	b.word(4) // len("bar\x00")
	b.word(fooOff)
	b.word(binary.BigEndian.Uint32([]byte("bar\x00")))

	b.word(uint32(tokenBeginNode))
	b.cstring("soc")

	b.word(uint32(tokenProp))
	b.word(4)
	b.word(phandleOff)
	b.word(5) // phandle value

	b.word(uint32(tokenEndNode)) // closes soc
	b.word(uint32(tokenEndNode)) // closes root
	b.word(uint32(tokenEnd))

	structBytes := make([]byte, len(b.words)*4)
	for i, w := range b.words {
		binary.BigEndian.PutUint32(structBytes[i*4:], w)
	}

	stringBytes := []byte(stringBlock)

	const hdrSize = 40
	offStruct := uint32(hdrSize)
	offStrings := offStruct + uint32(len(structBytes))

	raw := make([]byte, hdrSize+len(structBytes)+len(stringBytes))
	binary.BigEndian.PutUint32(raw[0:4], magicValue)
	binary.BigEndian.PutUint32(raw[8:12], offStruct)
	binary.BigEndian.PutUint32(raw[12:16], offStrings)
	binary.BigEndian.PutUint32(raw[20:24], 16) // version
	binary.BigEndian.PutUint32(raw[32:36], uint32(len(stringBytes)))
	binary.BigEndian.PutUint32(raw[36:40], uint32(len(structBytes)))

	copy(raw[offStruct:], structBytes)
	copy(raw[offStrings:], stringBytes)

	return raw
}

func TestOpenValidTree(t *testing.T) {
	h, err := Open(buildTestTree())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if h.HasErrors() {
		t.Fatal("expected no errors on a well-formed tree")
	}
}

func TestOpenBadMagic(t *testing.T) {
	raw := buildTestTree()
	raw[0] = 0

	h, err := Open(raw)
	if err == nil {
		t.Fatal("expected error on bad magic")
	}
	if !h.HasErrors() {
		t.Fatal("expected HasErrors true on bad magic")
	}
}

func TestOpenTruncated(t *testing.T) {
	_, err := Open([]byte{1, 2, 3})
	if err == nil {
		t.Fatal("expected error opening a truncated blob")
	}
}

func TestRootNodeAndChildWalk(t *testing.T) {
	h, err := Open(buildTestTree())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	root := h.RootNode()
	if !root.Valid || !root.IsNode {
		t.Fatal("expected a valid root node")
	}

	foo := h.FirstProp(root)
	if !foo.Valid || foo.Name != "foo" {
		t.Fatalf("expected first property named foo, got %+v", foo)
	}

	content, err := h.PropContent(foo)
	if err != nil {
		t.Fatalf("prop content: %v", err)
	}
	if string(content) != "bar\x00" {
		t.Fatalf("expected prop content %q, got %q", "bar\x00", content)
	}

	next := h.NextProp(foo)
	if next.Valid {
		t.Fatalf("expected no second property, got %+v", next)
	}

	soc := h.FirstNode(root)
	if !soc.Valid || soc.Name != "soc" {
		t.Fatalf("expected child node soc, got %+v", soc)
	}

	if sibling := h.NextNode(soc); sibling.Valid {
		t.Fatalf("expected soc to have no sibling, got %+v", sibling)
	}
}

func TestGetNodeExactMatch(t *testing.T) {
	h, err := Open(buildTestTree())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	root := h.RootNode()

	if n := h.GetNode(root, "so"); n.Valid {
		t.Fatal("expected prefix \"so\" not to match node \"soc\"")
	}
	if n := h.GetNode(root, "soc"); !n.Valid {
		t.Fatal("expected exact match \"soc\" to find the node")
	}
}

func TestFindNode(t *testing.T) {
	h, err := Open(buildTestTree())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	soc := h.FindNode("/soc")
	if !soc.Valid || soc.Name != "soc" {
		t.Fatalf("expected /soc to resolve, got %+v", soc)
	}
}

func TestPhandleIndex(t *testing.T) {
	h, err := Open(buildTestTree())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	node := h.PhandleNode(5)
	if !node.Valid || node.Name != "soc" {
		t.Fatalf("expected phandle 5 to resolve to soc, got %+v", node)
	}

	if n := h.PhandleNode(999); n.Valid {
		t.Fatal("expected unknown phandle to be invalid")
	}
}

func TestPropReadUint(t *testing.T) {
	h, err := Open(buildTestTree())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	soc := h.FindNode("/soc")
	phandleProp := h.GetProp(soc, "phandle")
	if !phandleProp.Valid {
		t.Fatal("expected to find phandle property")
	}

	val, err := h.PropReadUint(phandleProp)
	if err != nil {
		t.Fatalf("read uint: %v", err)
	}
	if val != 5 {
		t.Fatalf("expected phandle value 5, got %d", val)
	}
}

func TestFindParent(t *testing.T) {
	h, err := Open(buildTestTree())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	root := h.RootNode()
	soc := h.FindNode("/soc")

	parent := h.FindParent(soc)
	if !parent.Valid || parent.Content != root.Content {
		t.Fatalf("expected soc's parent to be root, got %+v", parent)
	}
}
