// Package codegen encodes the x86-64 instructions the VFPU translator emits.
package codegen

// Reg is an x86-64 general register with its encoding bits. Operand size is
// chosen by the emitting method, not the register.
type Reg struct {
	Name    string
	RegBits byte // 3-bit code for ModRM/SIB
	REXBit  byte // 1 if register index >= 8
}

var (
	RAX = Reg{"rax", 0, 0}
	RCX = Reg{"rcx", 1, 0}
	RDX = Reg{"rdx", 2, 0}
	RBX = Reg{"rbx", 3, 0}
	RSP = Reg{"rsp", 4, 0}
	RBP = Reg{"rbp", 5, 0}
	RSI = Reg{"rsi", 6, 0}
	RDI = Reg{"rdi", 7, 0}
	R8  = Reg{"r8", 0, 1}
	R9  = Reg{"r9", 1, 1}
	R10 = Reg{"r10", 2, 1}
	R11 = Reg{"r11", 3, 1}
	R12 = Reg{"r12", 4, 1}
	R13 = Reg{"r13", 5, 1}
	R14 = Reg{"r14", 6, 1}
	R15 = Reg{"r15", 7, 1}
)

// Register convention of generated code.
var (
	CtxReg  = R12 // CPU context block
	RAMReg  = R13 // host base of guest RAM
	Scratch = RAX // guest address, host pointer, branch result
	Element = RCX
)

func (r Reg) String() string { return r.Name }

// Condition codes for Jcc (low nibble of 0F 8x).
type Cond byte

const (
	CondNE Cond = 0x5
	CondA  Cond = 0x7 // unsigned above
)
