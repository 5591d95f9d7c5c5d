package kctx

import "github.com/badgeos-go/kernel/internal/kerr"

// Stack describes the memory region backing one thread's stack. It grows
// down from Top towards Bottom.
type Stack struct {
	Bottom Word
	Top    Word
	Size   Word
}

// NewStack validates and builds a Stack description. Size must be a
// multiple of StackAlign; a bad size is reported as kerr.Param, never
// silently rounded.
func NewStack(bottom, size Word) (Stack, *kerr.Error) {
	if size == 0 || size%StackAlign != 0 {
		return Stack{}, kerr.New(kerr.Param, kerr.Threads)
	}

	return Stack{
		Bottom: bottom,
		Top:    bottom + size,
		Size:   size,
	}, nil
}

// AlignedTop returns the highest address in the stack aligned down to
// StackAlign, the initial value a fresh thread's SP is given.
func (s Stack) AlignedTop() Word {
	return s.Top &^ (StackAlign - 1)
}

// Contains reports whether sp falls within the half-open-above range the
// stack-pointer sanity check requires: stack_bottom < sp <= stack_top.
func (s Stack) Contains(sp Word) bool {
	return sp > s.Bottom && sp <= s.Top
}
