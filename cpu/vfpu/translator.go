package vfpu

import (
	"fmt"

	"github.com/noxa-emu/psp/cpu"
	"github.com/noxa-emu/psp/cpu/codegen"
	"github.com/noxa-emu/psp/log"
)

// TryEmit classifies code and, in pass 1, emits it. Pass 0 must have run over
// the whole instruction stream before pass 1 runs over the same stream.
// address is the address of the instruction following code (its delay slot
// for branches).
func TryEmit(c *GenerationContext, pass int, address, code uint32) GenerationResult {
	d, index, ok := Lookup(code)
	if !ok {
		return Invalid
	}

	if pass == 0 && log.TraceEnabled(log.VfpuGen) {
		log.Trace(log.VfpuGen, "decode", "pc", fmt.Sprintf("0x%08x", address-4),
			"word", fmt.Sprintf("%08x", code), "inst", Disasm(address, code))
	}

	result := Success
	if d.Attributes.Has(AttrBranch) {
		result = Branch
	} else if d.Attributes.Has(AttrBranchLikely) {
		result = BranchAndNullifyDelay
	}
	isBranch := result != Success

	switch pass {
	case 0:
		if isBranch {
			c.DefineBranchTarget(BranchTarget(address, code))
		}
		return result
	case 1:
	default:
		return Invalid
	}

	if isBranch {
		target := BranchTarget(address, code)
		label, ok := c.BranchLabels[target]
		if !ok {
			panic(fmt.Errorf("branch at 0x%08x to 0x%08x has no label: %w", address-4, target, cpu.ErrConsistencyFault))
		}
		c.BranchTarget = label
	}

	g := c.Generator
	if d.Native() {
		d.Emit(c, address, code)
	} else {
		emitFallbackCall(c, index, address, code)
	}

	emitPrefixReset(g, d.Attributes)

	if isBranch {
		// EAX holds the branch result
		g.MovMemReg32(codegen.CtxReg, cpu.OffsetPCValid, codegen.Scratch)
		if result == BranchAndNullifyDelay {
			g.XorRegImm32(codegen.Scratch, 1)
			g.MovMemReg32(codegen.CtxReg, cpu.OffsetNullDelay, codegen.Scratch)
		}
	}
	return result
}

// emitFallbackCall pushes code, address and the context pointer and calls the
// descriptor's thunk.
func emitFallbackCall(c *GenerationContext, index int, address, code uint32) {
	g := c.Generator
	g.PushImm32(code)
	g.PushImm32(address)
	g.Push(codegen.CtxReg)
	g.MovRegImm64(codegen.Scratch, c.Thunks.Address(index))
	g.CallReg(codegen.Scratch)
	g.AddRSPImm8(24)
}

func emitPrefixReset(g *codegen.Generator, attr Attributes) {
	if attr.Has(AttrPfx) {
		g.MovMemImm32(codegen.CtxReg, cpu.PfxOffset(cpu.PfxS), cpu.PfxSourceReset)
		g.MovMemImm32(codegen.CtxReg, cpu.PfxOffset(cpu.PfxT), cpu.PfxSourceReset)
		g.MovMemImm32(codegen.CtxReg, cpu.PfxOffset(cpu.PfxD), cpu.PfxDestReset)
		return
	}
	if attr.Has(AttrPfxS) {
		g.MovMemImm32(codegen.CtxReg, cpu.PfxOffset(cpu.PfxS), cpu.PfxSourceReset)
	}
	if attr.Has(AttrPfxT) {
		g.MovMemImm32(codegen.CtxReg, cpu.PfxOffset(cpu.PfxT), cpu.PfxSourceReset)
	}
	if attr.Has(AttrPfxD) {
		g.MovMemImm32(codegen.CtxReg, cpu.PfxOffset(cpu.PfxD), cpu.PfxDestReset)
	}
}

func resetPrefixes(ctx *cpu.Context, attr Attributes) {
	if attr.Has(AttrPfx) {
		ctx.ResetPrefixes()
		return
	}
	if attr.Has(AttrPfxS) {
		ctx.Pfx[cpu.PfxS] = cpu.PfxSourceReset
	}
	if attr.Has(AttrPfxT) {
		ctx.Pfx[cpu.PfxT] = cpu.PfxSourceReset
	}
	if attr.Has(AttrPfxD) {
		ctx.Pfx[cpu.PfxD] = cpu.PfxDestReset
	}
}
