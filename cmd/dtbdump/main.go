// dtbdump is a developer tool that parses a flattened device tree blob
// and prints its node/property structure, for inspecting the tree a
// board description feeds to the boot sequence's driver binder.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/badgeos-go/kernel/internal/dtb"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out *os.File) int {
	fs := flag.NewFlagSet("dtbdump", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "log progress to stderr")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: dtbdump [-v] FILE.dtb")
		return 2
	}

	path := fs.Arg(0)
	log.WithField("path", path).Debug("reading device tree blob")

	raw, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).Error("failed to read device tree blob")
		return 1
	}

	h, derr := dtb.Open(raw)
	if derr != nil {
		log.WithError(derr).Error("failed to parse device tree header")
		return 1
	}
	if h.HasErrors() {
		log.Error("device tree header failed validation")
		return 1
	}

	log.WithField("bytes", len(raw)).Debug("parsed device tree header")

	root := h.RootNode()
	if !root.Valid {
		fmt.Fprintln(out, "(empty tree)")
		return 0
	}

	dumpNode(out, h, root, 0)

	return 0
}

func dumpNode(out *os.File, h *dtb.Handle, node dtb.Entity, depth int) {
	indent := strings.Repeat("  ", depth)
	name := node.Name
	if name == "" {
		name = "/"
	}
	fmt.Fprintf(out, "%s%s {\n", indent, name)

	for prop := h.FirstProp(node); prop.Valid; prop = h.NextProp(prop) {
		fmt.Fprintf(out, "%s  %s = %s;\n", indent, prop.Name, formatProp(h, prop))
	}

	for child := h.FirstNode(node); child.Valid; child = h.NextNode(child) {
		dumpNode(out, h, child, depth+1)
	}

	fmt.Fprintf(out, "%s};\n", indent)
}

// formatProp renders a property value the way a .dts source file would:
// a quoted string if the bytes look like one, a bracketed cell list if
// the length is a multiple of 4, otherwise a raw hex dump.
func formatProp(h *dtb.Handle, prop dtb.Entity) string {
	content, err := h.PropContent(prop)
	if err != nil {
		return "<unreadable>"
	}
	if len(content) == 0 {
		return "<empty>"
	}

	if isPrintableCString(content) {
		return strconv.Quote(strings.TrimRight(string(content), "\x00"))
	}

	if len(content)%4 == 0 {
		var cells []string
		for i := 0; i < len(content); i += 4 {
			v, err := h.PropReadCells(prop, uint32(i/4), 1)
			if err != nil {
				break
			}
			cells = append(cells, fmt.Sprintf("0x%x", v))
		}
		if len(cells) == len(content)/4 {
			return "<" + strings.Join(cells, " ") + ">"
		}
	}

	return "[" + hex.EncodeToString(content) + "]"
}

func isPrintableCString(b []byte) bool {
	if b[len(b)-1] != 0 {
		return false
	}
	for _, c := range b[:len(b)-1] {
		if c == 0 {
			continue
		}
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}
