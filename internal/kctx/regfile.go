package kctx

import "unsafe"

// RegisterFile holds the complete integer register state of one thread: PC
// plus the 31 general-purpose rv32 registers, named by their ABI mnemonics.
// Only the trap-entry assembly stub and the context-switch code are meant to
// touch fields directly by offset; any other caller goes through Get/Set so
// the layout can change without breaking callers.
type RegisterFile struct {
	PC Word

	RA Word // x1
	SP Word // x2
	GP Word // x3
	TP Word // x4

	T0, T1, T2 Word // x5-x7
	S0, S1     Word // x8-x9 (S0 doubles as the frame pointer)

	A0, A1, A2, A3, A4, A5, A6, A7 Word // x10-x17

	S2, S3, S4, S5, S6, S7, S8, S9, S10, S11 Word // x18-x27

	T3, T4, T5, T6 Word // x28-x31
}

// Name identifies one register in a RegisterFile for the Get/Set accessors.
type Name uint8

const (
	NamePC Name = iota
	NameRA
	NameSP
	NameGP
	NameTP
	NameT0
	NameT1
	NameT2
	NameS0
	NameS1
	NameA0
	NameA1
	NameA2
	NameA3
	NameA4
	NameA5
	NameA6
	NameA7
	NameS2
	NameS3
	NameS4
	NameS5
	NameS6
	NameS7
	NameS8
	NameS9
	NameS10
	NameS11
	NameT3
	NameT4
	NameT5
	NameT6

	numNames
)

// Get reads a named register from the file.
func (rf *RegisterFile) Get(name Name) Word {
	switch name {
	case NamePC:
		return rf.PC
	case NameRA:
		return rf.RA
	case NameSP:
		return rf.SP
	case NameGP:
		return rf.GP
	case NameTP:
		return rf.TP
	case NameT0:
		return rf.T0
	case NameT1:
		return rf.T1
	case NameT2:
		return rf.T2
	case NameS0:
		return rf.S0
	case NameS1:
		return rf.S1
	case NameA0:
		return rf.A0
	case NameA1:
		return rf.A1
	case NameA2:
		return rf.A2
	case NameA3:
		return rf.A3
	case NameA4:
		return rf.A4
	case NameA5:
		return rf.A5
	case NameA6:
		return rf.A6
	case NameA7:
		return rf.A7
	case NameS2:
		return rf.S2
	case NameS3:
		return rf.S3
	case NameS4:
		return rf.S4
	case NameS5:
		return rf.S5
	case NameS6:
		return rf.S6
	case NameS7:
		return rf.S7
	case NameS8:
		return rf.S8
	case NameS9:
		return rf.S9
	case NameS10:
		return rf.S10
	case NameS11:
		return rf.S11
	case NameT3:
		return rf.T3
	case NameT4:
		return rf.T4
	case NameT5:
		return rf.T5
	case NameT6:
		return rf.T6
	default:
		return 0
	}
}

// Set writes a named register in the file.
func (rf *RegisterFile) Set(name Name, val Word) {
	switch name {
	case NamePC:
		rf.PC = val
	case NameRA:
		rf.RA = val
	case NameSP:
		rf.SP = val
	case NameGP:
		rf.GP = val
	case NameTP:
		rf.TP = val
	case NameT0:
		rf.T0 = val
	case NameT1:
		rf.T1 = val
	case NameT2:
		rf.T2 = val
	case NameS0:
		rf.S0 = val
	case NameS1:
		rf.S1 = val
	case NameA0:
		rf.A0 = val
	case NameA1:
		rf.A1 = val
	case NameA2:
		rf.A2 = val
	case NameA3:
		rf.A3 = val
	case NameA4:
		rf.A4 = val
	case NameA5:
		rf.A5 = val
	case NameA6:
		rf.A6 = val
	case NameA7:
		rf.A7 = val
	case NameS2:
		rf.S2 = val
	case NameS3:
		rf.S3 = val
	case NameS4:
		rf.S4 = val
	case NameS5:
		rf.S5 = val
	case NameS6:
		rf.S6 = val
	case NameS7:
		rf.S7 = val
	case NameS8:
		rf.S8 = val
	case NameS9:
		rf.S9 = val
	case NameS10:
		rf.S10 = val
	case NameS11:
		rf.S11 = val
	case NameT3:
		rf.T3 = val
	case NameT4:
		rf.T4 = val
	case NameT5:
		rf.T5 = val
	case NameT6:
		rf.T6 = val
	}
}

// SyscallArgs returns the seven argument slots (A0..A6) and the syscall
// number (A7), the layout the syscall short-path in the trap-entry path
// preserves across a trap.
func (rf *RegisterFile) SyscallArgs() (args [7]Word, sysno Word) {
	return [7]Word{rf.A0, rf.A1, rf.A2, rf.A3, rf.A4, rf.A5, rf.A6}, rf.A7
}

// SetSyscallArgs loads the seven argument slots and the syscall number,
// the ECALL-side counterpart to SyscallArgs: whatever issues a trap on a
// thread's behalf sets these before handing the cause to the trap router.
func (rf *RegisterFile) SetSyscallArgs(args [7]Word, sysno Word) {
	rf.A0, rf.A1, rf.A2, rf.A3, rf.A4, rf.A5, rf.A6 = args[0], args[1], args[2], args[3], args[4], args[5], args[6]
	rf.A7 = sysno
}

// SetSyscallResult writes a syscall's 32-bit return value back to A0.
func (rf *RegisterFile) SetSyscallResult(val Word) {
	rf.A0 = val
}

// offsets is the explicit byte-offset table for each named register,
// computed once from the struct layout. The trap stub and context-switch
// code are the only consumers; everything else should use Get/Set.
var offsets = [numNames]uintptr{
	NamePC: unsafe.Offsetof(RegisterFile{}.PC),
	NameRA: unsafe.Offsetof(RegisterFile{}.RA),
	NameSP: unsafe.Offsetof(RegisterFile{}.SP),
	NameGP: unsafe.Offsetof(RegisterFile{}.GP),
	NameTP: unsafe.Offsetof(RegisterFile{}.TP),
	NameT0: unsafe.Offsetof(RegisterFile{}.T0),
	NameT1: unsafe.Offsetof(RegisterFile{}.T1),
	NameT2: unsafe.Offsetof(RegisterFile{}.T2),
	NameS0: unsafe.Offsetof(RegisterFile{}.S0),
	NameS1: unsafe.Offsetof(RegisterFile{}.S1),
	NameA0: unsafe.Offsetof(RegisterFile{}.A0),
	NameA1: unsafe.Offsetof(RegisterFile{}.A1),
	NameA2: unsafe.Offsetof(RegisterFile{}.A2),
	NameA3: unsafe.Offsetof(RegisterFile{}.A3),
	NameA4: unsafe.Offsetof(RegisterFile{}.A4),
	NameA5: unsafe.Offsetof(RegisterFile{}.A5),
	NameA6: unsafe.Offsetof(RegisterFile{}.A6),
	NameA7: unsafe.Offsetof(RegisterFile{}.A7),
	NameS2: unsafe.Offsetof(RegisterFile{}.S2),
	NameS3: unsafe.Offsetof(RegisterFile{}.S3),
	NameS4: unsafe.Offsetof(RegisterFile{}.S4),
	NameS5: unsafe.Offsetof(RegisterFile{}.S5),
	NameS6: unsafe.Offsetof(RegisterFile{}.S6),
	NameS7: unsafe.Offsetof(RegisterFile{}.S7),
	NameS8: unsafe.Offsetof(RegisterFile{}.S8),
	NameS9: unsafe.Offsetof(RegisterFile{}.S9),
	NameS10: unsafe.Offsetof(RegisterFile{}.S10),
	NameS11: unsafe.Offsetof(RegisterFile{}.S11),
	NameT3: unsafe.Offsetof(RegisterFile{}.T3),
	NameT4: unsafe.Offsetof(RegisterFile{}.T4),
	NameT5: unsafe.Offsetof(RegisterFile{}.T5),
	NameT6: unsafe.Offsetof(RegisterFile{}.T6),
}

// Offset returns the byte offset of a named register within RegisterFile.
func Offset(name Name) uintptr {
	return offsets[name]
}

// SyscallPreserved lists the registers the syscall short-path saves and
// restores across an ECALL trap: t0-t3, sp, gp, tp, ra, plus a0..a7. Every
// other register is free for the handler to clobber.
var SyscallPreserved = [...]Name{
	NameT0, NameT1, NameT2, NameT3,
	NameSP, NameGP, NameTP, NameRA,
	NameA0, NameA1, NameA2, NameA3, NameA4, NameA5, NameA6, NameA7,
}
