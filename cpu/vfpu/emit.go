package vfpu

import (
	"math"

	"github.com/noxa-emu/psp/cpu"
	"github.com/noxa-emu/psp/cpu/codegen"
)

// AddressLookup emits code turning the guest address in EAX into a host
// pointer in RAX for an access of size bytes. Addresses it cannot resolve
// jump to fault.
type AddressLookup interface {
	EmitLookup(g *codegen.Generator, size int, fault *codegen.Label)
}

// FlatLookup maps the guest region [Base, Base+Size) onto the host block
// held in R13. It rejects the same accesses as cpu.RAM.Translate: unaligned
// ones and those not wholly inside the region.
type FlatLookup struct {
	Base uint32
	Size uint32
}

func (f FlatLookup) EmitLookup(g *codegen.Generator, size int, fault *codegen.Label) {
	g.TestRegImm32(codegen.Scratch, 3)
	g.Jcc(codegen.CondNE, fault)
	if f.Base != 0 {
		// addresses below Base wrap to large offsets and fail the range check
		g.SubRegImm32(codegen.Scratch, f.Base)
	}
	if uint32(size) > f.Size {
		g.Jmp(fault)
		return
	}
	g.CmpRegImm32(codegen.Scratch, f.Size-uint32(size))
	g.Jcc(codegen.CondA, fault)
	g.AddReg64(codegen.Scratch, codegen.RAMReg)
}

// EmitRead copies the view of r into memory at [RAX] through ECX.
func EmitRead(g *codegen.Generator, w Width, r int, stride int) {
	for _, c := range Layout(w, r, stride) {
		g.MovRegMem32(codegen.Element, codegen.CtxReg, cpu.VfpuOffset(c.Reg))
		g.MovMemReg32(codegen.Scratch, int32(c.Slot*4), codegen.Element)
	}
}

// EmitWrite copies memory at [RAX] into the view of r through ECX.
func EmitWrite(g *codegen.Generator, w Width, r int, stride int) {
	for _, c := range Layout(w, r, stride) {
		g.MovRegMem32(codegen.Element, codegen.Scratch, int32(c.Slot*4))
		g.MovMemReg32(codegen.CtxReg, cpu.VfpuOffset(c.Reg), codegen.Element)
	}
}

// emitBranchCC leaves 1 in EAX when the tested condition bit equals want.
func emitBranchCC(want uint32) Emitter {
	return func(c *GenerationContext, address, code uint32) {
		g := c.Generator
		g.MovRegMem32(codegen.Scratch, codegen.CtxReg, cpu.OffsetVfpuCC)
		if bit := ccBit(code); bit != 0 {
			g.ShrRegImm8(codegen.Scratch, byte(bit))
		}
		g.AndRegImm32(codegen.Scratch, 1)
		if want == 0 {
			g.XorRegImm32(codegen.Scratch, 1)
		}
	}
}

func emitMFV(c *GenerationContext, address, code uint32) {
	if rt(code) == 0 {
		return
	}
	g := c.Generator
	g.MovRegMem32(codegen.Scratch, codegen.CtxReg, cpu.VfpuOffset(vrd(code)))
	g.MovMemReg32(codegen.CtxReg, cpu.GPROffset(rt(code)), codegen.Scratch)
}

func emitMTV(c *GenerationContext, address, code uint32) {
	g := c.Generator
	g.MovRegMem32(codegen.Scratch, codegen.CtxReg, cpu.GPROffset(rt(code)))
	g.MovMemReg32(codegen.CtxReg, cpu.VfpuOffset(vrd(code)), codegen.Scratch)
}

// emitEffectiveAddress leaves the host pointer for rs+offset in RAX. A
// failed lookup leaves the block through the fault stub of this instruction.
func emitEffectiveAddress(c *GenerationContext, w Width, address, code uint32) {
	g := c.Generator
	g.MovRegMem32(codegen.Scratch, codegen.CtxReg, cpu.GPROffset(rs(code)))
	if imm := lsOffset(code); imm != 0 {
		g.AddRegImm32(codegen.Scratch, uint32(imm))
	}
	c.Lookup.EmitLookup(g, 4*bufferLen(w, 0), c.FaultLabel(address-4))
}

// lv.s transfers a single cell with the matrix stride of 4; the quad forms
// are flat.
func loadStoreStride(w Width) int {
	if w == Single {
		return 4
	}
	return 0
}

func emitLoad(w Width) Emitter {
	return func(c *GenerationContext, address, code uint32) {
		emitEffectiveAddress(c, w, address, code)
		EmitWrite(c.Generator, w, lsvt(code), loadStoreStride(w))
	}
}

func emitStore(w Width) Emitter {
	return func(c *GenerationContext, address, code uint32) {
		emitEffectiveAddress(c, w, address, code)
		EmitRead(c.Generator, w, lsvt(code), 0)
	}
}

func emitVPFX(c *GenerationContext, address, code uint32) {
	set := int((code >> 24) & 3)
	c.Generator.MovMemImm32(codegen.CtxReg, cpu.PfxOffset(set), code&0xFFFFF)
}

type immediateKind int

const (
	intImmediate immediateKind = iota
	halfImmediate
)

func immediateValue(kind immediateKind, code uint32) float32 {
	if kind == halfImmediate {
		return Float16ToFloat32(uint16(code))
	}
	return float32(imm16(code))
}

// immediateSlots lists the consecutive slots written by viim/vfim.
func immediateSlots(code uint32) []int {
	vt := vrt(code)
	n := vwidth(code).Size()
	slots := make([]int, n)
	for i := range slots {
		slots[i] = (vt + i) & 0x7F
	}
	return slots
}

func emitImmediate(kind immediateKind) Emitter {
	return func(c *GenerationContext, address, code uint32) {
		bits := math.Float32bits(immediateValue(kind, code))
		for _, slot := range immediateSlots(code) {
			c.Generator.MovMemImm32(codegen.CtxReg, cpu.VfpuOffset(slot), bits)
		}
	}
}
