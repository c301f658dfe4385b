package vfpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/noxa-emu/psp/cpu"
	"github.com/noxa-emu/psp/log"
)

// Step executes a single instruction without generated code: it runs the
// descriptor's entry point, then resets the prefixes the instruction consumes.
// Branches leave their outcome in PCValid (and NullDelay for the likely kind).
func Step(ctx *cpu.Context, mem cpu.Memory, address, code uint32) error {
	d, _, ok := Lookup(code)
	if !ok {
		return fmt.Errorf("word 0x%08x at 0x%08x: %w", code, address-4, cpu.ErrInvalidInstruction)
	}
	if err := d.Exec(ctx, mem, address, code); err != nil {
		return fmt.Errorf("%s at 0x%08x: %w", d.Name, address-4, err)
	}
	resetPrefixes(ctx, d.Attributes)
	return nil
}

func execBranchCC(want uint32, likely bool) ExecFunc {
	return func(ctx *cpu.Context, mem cpu.Memory, address, code uint32) error {
		var taken uint32
		if (ctx.VfpuCC>>ccBit(code))&1 == want {
			taken = 1
		}
		ctx.PCValid = taken
		if likely {
			ctx.NullDelay = taken ^ 1
		}
		return nil
	}
}

func execMFV(ctx *cpu.Context, mem cpu.Memory, address, code uint32) error {
	if r := rt(code); r != 0 {
		ctx.GPR[r] = ctx.Vfpu[vrd(code)]
	}
	return nil
}

func execMTV(ctx *cpu.Context, mem cpu.Memory, address, code uint32) error {
	ctx.Vfpu[vrd(code)] = ctx.GPR[rt(code)]
	return nil
}

func effectiveAddress(ctx *cpu.Context, code uint32) uint32 {
	return ctx.GPR[rs(code)] + uint32(lsOffset(code))
}

func execLoad(w Width) ExecFunc {
	return func(ctx *cpu.Context, mem cpu.Memory, address, code uint32) error {
		stride := loadStoreStride(w)
		buf, err := mem.Translate(effectiveAddress(ctx, code), 4*bufferLen(w, 0))
		if err != nil {
			return err
		}
		for _, c := range Layout(w, lsvt(code), stride) {
			ctx.Vfpu[c.Reg] = binary.LittleEndian.Uint32(buf[4*c.Slot:])
		}
		return nil
	}
}

func execStore(w Width) ExecFunc {
	return func(ctx *cpu.Context, mem cpu.Memory, address, code uint32) error {
		buf, err := mem.Translate(effectiveAddress(ctx, code), 4*bufferLen(w, 0))
		if err != nil {
			return err
		}
		for _, c := range Layout(w, lsvt(code), 0) {
			binary.LittleEndian.PutUint32(buf[4*c.Slot:], ctx.Vfpu[c.Reg])
		}
		return nil
	}
}

func execVPFX(ctx *cpu.Context, mem cpu.Memory, address, code uint32) error {
	ctx.Pfx[(code>>24)&3] = code & 0xFFFFF
	return nil
}

func execImmediate(kind immediateKind) ExecFunc {
	return func(ctx *cpu.Context, mem cpu.Memory, address, code uint32) error {
		bits := math.Float32bits(immediateValue(kind, code))
		for _, slot := range immediateSlots(code) {
			ctx.Vfpu[slot] = bits
		}
		return nil
	}
}

// execVSCL scales a vector by the float in slot vt. The Single width has no
// defined effect and leaves the source untouched apart from prefixes.
func execVSCL(ctx *cpu.Context, mem cpu.Memory, address, code uint32) error {
	width := vwidth(code)
	var s [4]float32
	GetVector(ctx, width, vrs(code), s[:], 0)
	ApplyPrefix(ctx, cpu.PfxS, width, s[:])
	scale := ctx.Float(vrt(code))
	switch width {
	case Pair, Triple, Quad:
		for n := 0; n < width.Size(); n++ {
			s[n] *= scale
		}
	}
	ApplyPrefix(ctx, cpu.PfxD, width, s[:])
	SetVector(ctx, width, vrd(code), s[:], 0)
	return nil
}

const halfPi = float32(math.Pi / 2)

var log2Of2 = float32(math.Log(2))

func unaryOp(sub uint32, x float32) float32 {
	switch sub {
	case subVMOV:
		return x
	case subVABS:
		return abs32(x)
	case subVNEG:
		return -x
	case subVSAT0:
		return maxOf(0, minOf(x, 1))
	case subVSAT1:
		return maxOf(-1, minOf(x, 1))
	case subVRCP:
		return 1 / x
	case subVRSQ:
		return 1 / float32(math.Sqrt(float64(x)))
	case subVSIN:
		return float32(math.Sin(float64(halfPi * x)))
	case subVCOS:
		return float32(math.Cos(float64(halfPi * x)))
	case subVEXP2:
		return float32(math.Pow(2, float64(x)))
	case subVLOG2:
		return float32(math.Log(float64(x))) / log2Of2
	case subVSQRT:
		return float32(math.Sqrt(float64(x)))
	}
	panic(fmt.Errorf("sub-opcode %d: %w", sub, cpu.ErrUnsupportedSubOperation))
}

func execArith(ctx *cpu.Context, mem cpu.Memory, address, code uint32) error {
	width := vwidth(code)
	sub := (code >> 16) & 0x1F
	var s [4]float32
	GetVector(ctx, width, vrs(code), s[:], 0)
	ApplyPrefix(ctx, cpu.PfxS, width, s[:])
	for n := 0; n < width.Size(); n++ {
		s[n] = unaryOp(sub, s[n])
	}
	ApplyPrefix(ctx, cpu.PfxD, width, s[:])
	SetVector(ctx, width, vrd(code), s[:], 0)
	log.Trace(log.VfpuExec, "arith", "sub", sub, "width", width, "vd", vrd(code), "result", s[:width.Size()])
	return nil
}

// Interpret executes words located at start with the control flow a
// translated block has: delay slots run after their branch unless nullified,
// and leaving the block stores the next address into ctx.PC. An address
// translation failure leaves PC at the faulting word and sets Fault, as the
// fault stub of a translated block does. maxSteps bounds the number of
// executed words; zero means no bound.
func Interpret(ctx *cpu.Context, mem cpu.Memory, start uint32, words []uint32, maxSteps int) error {
	end := start + uint32(4*len(words))
	step := func(at, code uint32) error {
		err := Step(ctx, mem, at+4, code)
		if errors.Is(err, cpu.ErrAddressTranslation) {
			ctx.PC, ctx.Fault = at, 1
		}
		return err
	}
	pc := start
	for steps := 0; ; steps++ {
		if pc < start || pc >= end {
			ctx.PC = pc
			return nil
		}
		if maxSteps > 0 && steps >= maxSteps {
			return fmt.Errorf("step limit %d reached at 0x%08x", maxSteps, pc)
		}
		i := int(pc-start) / 4
		code := words[i]
		d, _, ok := Lookup(code)
		if !ok {
			return fmt.Errorf("word 0x%08x at 0x%08x: %w", code, pc, cpu.ErrInvalidInstruction)
		}
		if err := step(pc, code); err != nil {
			return err
		}
		if !d.Attributes.IsBranch() {
			pc += 4
			continue
		}
		if i+1 >= len(words) {
			return fmt.Errorf("branch at 0x%08x: %w", pc, cpu.ErrMissingDelaySlot)
		}
		taken := ctx.PCValid != 0
		if !(d.Attributes.Has(AttrBranchLikely) && ctx.NullDelay != 0) {
			if err := step(pc+4, words[i+1]); err != nil {
				return err
			}
		}
		if taken {
			pc = BranchTarget(pc+4, code)
		} else {
			pc += 8
		}
	}
}
