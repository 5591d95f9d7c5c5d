// Package kctx defines the rv32 register file, the per-thread kernel
// context block the trap path saves into and restores from, and the stack
// layout a freshly created thread starts with.
package kctx

import "fmt"

// Word is the base data type of the machine: a 32-bit integer register,
// memory cell, or address.
type Word uint32

func (w Word) String() string {
	return fmt.Sprintf("%0#8x", uint32(w))
}

// PoisonWord is written into SP, GP, TP and RA when a user thread is
// created. User code must establish its own stack, globals and return
// address before it touches them; touching a poisoned register faults
// immediately instead of silently running on garbage.
const PoisonWord Word = 0xDEADC0DE

// StackAlign is the minimum power-of-two alignment every thread stack must
// satisfy, and the size every stack region's length must be a multiple of.
const StackAlign = 16
