// Package kerr defines the kernel's error taxonomy: a (Kind, Location) pair
// every non-trivial public operation reports through an optional
// error-output parameter, in place of exceptions.
package kerr

import "fmt"

// Kind enumerates the ways an operation can fail.
type Kind uint8

const (
	Ok Kind = iota
	Unknown
	Param      // bad argument
	Range      // out of bounds
	NoMem
	NotFound
	InUse
	IsFile
	IsDir
	Perm
	Unsupported
	Illegal // state violation
	ReadOnly
	NoSpace
	TooLong
	Unavail
	Timeout
)

func (k Kind) String() string {
	switch k {
	case Ok:
		return "ok"
	case Unknown:
		return "unknown"
	case Param:
		return "bad parameter"
	case Range:
		return "out of range"
	case NoMem:
		return "out of memory"
	case NotFound:
		return "not found"
	case InUse:
		return "in use"
	case IsFile:
		return "is a file"
	case IsDir:
		return "is a directory"
	case Perm:
		return "permission denied"
	case Unsupported:
		return "unsupported"
	case Illegal:
		return "illegal state"
	case ReadOnly:
		return "read-only"
	case NoSpace:
		return "no space"
	case TooLong:
		return "too long"
	case Unavail:
		return "unavailable"
	case Timeout:
		return "timed out"
	default:
		return "unknown error kind"
	}
}

// Location identifies the subsystem that reported an Error.
type Location uint8

const (
	Unknown_ Location = iota
	I2C
	SPI
	DMA
	GPIO
	PLIC
	Filesystem
	Threads
	Process
	DeviceTree
	Memory
	Syscall
	Boot
)

func (l Location) String() string {
	switch l {
	case I2C:
		return "i2c"
	case SPI:
		return "spi"
	case DMA:
		return "dma"
	case GPIO:
		return "gpio"
	case PLIC:
		return "plic"
	case Filesystem:
		return "filesystem"
	case Threads:
		return "threads"
	case Process:
		return "process"
	case DeviceTree:
		return "devicetree"
	case Memory:
		return "memory"
	case Syscall:
		return "syscall"
	case Boot:
		return "boot"
	default:
		return "unknown"
	}
}

// Error pairs a Kind with the Location that raised it. It is the kernel's
// single error type; callers inspect both fields rather than unwind on a
// taxonomy of Go error types.
type Error struct {
	Kind Kind
	Loc  Location
}

// New builds an Error. A Kind of Ok is a valid, non-error value: callers
// that receive an *Error out-parameter check Kind == Ok for success, the
// same way the source checks `ec->kind == BADGE_ENOTHING`.
func New(kind Kind, loc Location) *Error {
	return &Error{Kind: kind, Loc: loc}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Loc, e.Kind)
}

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, kerr.New(kerr.NotFound, 0)) style checks, or compare
// only the Kind by leaving Loc at its zero value -- Is ignores Loc when the
// target's Loc is the zero Location.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}

	if other.Loc != Unknown_ && other.Loc != e.Loc {
		return false
	}

	return other.Kind == e.Kind
}

// OK reports whether the error represents success.
func (e *Error) OK() bool {
	return e == nil || e.Kind == Ok
}

// Out writes an error into an optional out-parameter. When ec is nil, the
// error is dropped and the operation proceeds best-effort, per the
// error-output-parameter convention: every public operation takes an
// optional *Error and reduces to silent best-effort when it is not given
// one.
func Out(ec *Error, kind Kind, loc Location) {
	if ec == nil {
		return
	}

	ec.Kind = kind
	ec.Loc = loc
}

// OutOK records success into an optional out-parameter.
func OutOK(ec *Error) {
	Out(ec, Ok, Unknown_)
}
