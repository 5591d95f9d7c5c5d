package kerr

import (
	"fmt"
	"runtime"
)

// AssertAlways panics with the failing condition, caller file, line and
// function when cond is false. It exists for conditions the kernel refuses
// to continue past regardless of build mode -- double trap, an unhandled
// synchronous fault, an interrupt line with no handler, an unknown
// syscall number, a broken scheduler invariant.
func AssertAlways(cond bool, msg string) {
	if cond {
		return
	}

	pc, file, line, _ := runtime.Caller(1)
	fn := runtime.FuncForPC(pc)
	name := "?"

	if fn != nil {
		name = fn.Name()
	}

	panic(fmt.Sprintf("assertion failed: %s (%s:%d in %s)", msg, file, line, name))
}

// debug gates AssertDebug; set by test code that wants debug assertions live.
// Release builds of the kernel never flip it, matching the source's
// assert_dev_drop, which compiles to nothing outside debug builds.
var debug = false

// SetDebug turns debug-only assertions on or off. Tests call this to exercise
// checks that only fire in debug builds, e.g. dlist.Append asserting a node
// is not already linked into a list.
func SetDebug(on bool) { debug = on }

// Debug reports whether debug-only assertions are currently enabled.
func Debug() bool { return debug }

// AssertDebug panics like AssertAlways, but only when debug assertions are
// enabled; it is a no-op in a release build.
func AssertDebug(cond bool, msg string) {
	if !debug {
		return
	}

	AssertAlways(cond, msg)
}
