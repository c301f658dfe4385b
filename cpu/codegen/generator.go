package codegen

import (
	"encoding/binary"
	"fmt"
)

// Label marks a position in the code stream. It is created unbound and bound
// exactly once; rel32 references to it are patched by Finalize.
type Label struct {
	Name   string
	offset int
}

func (l *Label) Bound() bool { return l.offset >= 0 }

// Offset is the bound position, or -1.
func (l *Label) Offset() int { return l.offset }

type fixup struct {
	at    int // position of the rel32 field
	label *Label
}

// Generator appends x86-64 machine code to an in-memory buffer.
type Generator struct {
	code   []byte
	labels []*Label
	fixups []fixup
}

func NewGenerator() *Generator {
	return &Generator{code: make([]byte, 0, 256)}
}

func (g *Generator) Len() int { return len(g.code) }

// Bytes returns the code emitted so far, with rel32 fields unpatched.
func (g *Generator) Bytes() []byte { return g.code }

func (g *Generator) NewLabel(name string) *Label {
	l := &Label{Name: name, offset: -1}
	g.labels = append(g.labels, l)
	return l
}

// Bind binds l at the current offset. Binding a label twice panics.
func (g *Generator) Bind(l *Label) {
	if l.Bound() {
		panic(fmt.Sprintf("label %s bound twice", l.Name))
	}
	l.offset = len(g.code)
}

// Finalize patches every rel32 reference and returns the code.
func (g *Generator) Finalize() ([]byte, error) {
	for _, f := range g.fixups {
		if !f.label.Bound() {
			return nil, fmt.Errorf("label %s referenced at 0x%04x is never bound", f.label.Name, f.at)
		}
		rel := int32(f.label.offset - (f.at + 4))
		binary.LittleEndian.PutUint32(g.code[f.at:], uint32(rel))
	}
	return g.code, nil
}

func (g *Generator) emit(b ...byte) {
	g.code = append(g.code, b...)
}

func (g *Generator) emitU32(v uint32) {
	g.code = binary.LittleEndian.AppendUint32(g.code, v)
}

// rex emits a REX prefix when any bit beyond the fixed 0100 pattern is needed.
func (g *Generator) rex(w bool, reg, base Reg) {
	rex := byte(X86_REX)
	if w {
		rex |= X86_REX_W
	}
	rex |= reg.REXBit << 2
	rex |= base.REXBit
	if rex != X86_REX {
		g.emit(rex)
	}
}

// memOperand emits ModRM (mod=10), the SIB byte for rsp/r12 bases, and disp32.
func (g *Generator) memOperand(regField byte, base Reg, disp int32) {
	g.emit(X86_MOD_INDIRECT_DISP32<<6 | (regField&7)<<3 | base.RegBits)
	if base.RegBits == 4 {
		g.emit(X86_SIB_NO_INDEX | 0x04)
	}
	g.emitU32(uint32(disp))
}

func regModRM(regField byte, rm Reg) byte {
	return X86_MOD_REGISTER<<6 | (regField&7)<<3 | rm.RegBits
}

// MovRegMem32 emits: mov dst32, dword [base+disp]
func (g *Generator) MovRegMem32(dst, base Reg, disp int32) {
	g.rex(false, dst, base)
	g.emit(X86_OP_MOV_R_RM)
	g.memOperand(dst.RegBits, base, disp)
}

// MovMemReg32 emits: mov dword [base+disp], src32
func (g *Generator) MovMemReg32(base Reg, disp int32, src Reg) {
	g.rex(false, src, base)
	g.emit(X86_OP_MOV_RM_R)
	g.memOperand(src.RegBits, base, disp)
}

// MovMemImm32 emits: mov dword [base+disp], imm32
func (g *Generator) MovMemImm32(base Reg, disp int32, imm uint32) {
	g.rex(false, Reg{}, base)
	g.emit(X86_OP_MOV_RM_IMM)
	g.memOperand(0, base, disp)
	g.emitU32(imm)
}

// MovRegImm64 emits: mov dst, imm64
func (g *Generator) MovRegImm64(dst Reg, imm uint64) {
	g.rex(true, Reg{}, dst)
	g.emit(X86_OP_MOV_R_IMM + dst.RegBits)
	g.code = binary.LittleEndian.AppendUint64(g.code, imm)
}

func (g *Generator) group1(digit byte, dst Reg, imm uint32) {
	g.rex(false, Reg{}, dst)
	g.emit(X86_OP_GROUP1_RM_IMM, regModRM(digit, dst))
	g.emitU32(imm)
}

// AddRegImm32 emits: add dst32, imm32
func (g *Generator) AddRegImm32(dst Reg, imm uint32) { g.group1(X86_G1_ADD, dst, imm) }

// SubRegImm32 emits: sub dst32, imm32
func (g *Generator) SubRegImm32(dst Reg, imm uint32) { g.group1(X86_G1_SUB, dst, imm) }

// AndRegImm32 emits: and dst32, imm32
func (g *Generator) AndRegImm32(dst Reg, imm uint32) { g.group1(X86_G1_AND, dst, imm) }

// XorRegImm32 emits: xor dst32, imm32
func (g *Generator) XorRegImm32(dst Reg, imm uint32) { g.group1(X86_G1_XOR, dst, imm) }

// CmpRegImm32 emits: cmp dst32, imm32
func (g *Generator) CmpRegImm32(dst Reg, imm uint32) { g.group1(X86_G1_CMP, dst, imm) }

// TestRegImm32 emits: test dst32, imm32
func (g *Generator) TestRegImm32(dst Reg, imm uint32) {
	g.rex(false, Reg{}, dst)
	g.emit(X86_OP_GROUP3_RM_IMM, regModRM(X86_G3_TEST, dst))
	g.emitU32(imm)
}

// ShrRegImm8 emits: shr dst32, n
func (g *Generator) ShrRegImm8(dst Reg, n byte) {
	g.rex(false, Reg{}, dst)
	g.emit(X86_OP_GROUP2_RM_IB, regModRM(X86_G2_SHR, dst), n)
}

// AddReg64 emits: add dst, src
func (g *Generator) AddReg64(dst, src Reg) {
	g.rex(true, src, dst)
	g.emit(X86_OP_ADD_RM_R, regModRM(src.RegBits, dst))
}

// PushImm32 emits: push imm32 (sign-extended to 64 bits on the stack)
func (g *Generator) PushImm32(imm uint32) {
	g.emit(X86_OP_PUSH_IMM32)
	g.emitU32(imm)
}

func (g *Generator) Push(r Reg) {
	g.rex(false, Reg{}, r)
	g.emit(X86_OP_PUSH_R + r.RegBits)
}

// CallReg emits: call r
func (g *Generator) CallReg(r Reg) {
	g.rex(false, Reg{}, r)
	g.emit(X86_OP_GROUP5_RM, regModRM(X86_G5_CALL, r))
}

// AddRSPImm8 emits: add rsp, n
func (g *Generator) AddRSPImm8(n int8) {
	g.emit(X86_REX|X86_REX_W, X86_OP_GROUP1_RM_IB, regModRM(X86_G1_ADD, RSP), byte(n))
}

// CmpMemImm8 emits: cmp dword [base+disp], imm8
func (g *Generator) CmpMemImm8(base Reg, disp int32, imm int8) {
	g.rex(false, Reg{}, base)
	g.emit(X86_OP_GROUP1_RM_IB)
	g.memOperand(X86_G1_CMP, base, disp)
	g.emit(byte(imm))
}

// Jcc emits a conditional rel32 jump to l.
func (g *Generator) Jcc(cc Cond, l *Label) {
	g.emit(X86_OP_2BYTE, X86_OP2_JCC_REL32+byte(cc))
	g.rel32(l)
}

// Jmp emits an unconditional rel32 jump to l.
func (g *Generator) Jmp(l *Label) {
	g.emit(X86_OP_JMP_REL32)
	g.rel32(l)
}

func (g *Generator) rel32(l *Label) {
	g.fixups = append(g.fixups, fixup{at: len(g.code), label: l})
	g.emitU32(0)
}

func (g *Generator) Ret() { g.emit(X86_OP_RET) }
