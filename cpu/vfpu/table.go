package vfpu

import (
	"fmt"
	"strings"

	"github.com/noxa-emu/psp/cpu"
)

// Attributes describe control flow and prefix consumption of an instruction.
type Attributes uint32

const (
	AttrNormal       Attributes = 0x00
	AttrBranch       Attributes = 0x01
	AttrBranchLikely Attributes = 0x02
	AttrPfxS         Attributes = 0x04
	AttrPfxT         Attributes = 0x08
	AttrPfxD         Attributes = 0x10
	AttrPfx          Attributes = 0x20 // consumes all three prefixes
)

func (a Attributes) Has(f Attributes) bool { return a&f == f }

func (a Attributes) IsBranch() bool { return a.Has(AttrBranch) || a.Has(AttrBranchLikely) }

func (a Attributes) String() string {
	if a == AttrNormal {
		return "normal"
	}
	var parts []string
	for _, f := range []struct {
		bit  Attributes
		name string
	}{
		{AttrBranch, "branch"},
		{AttrBranchLikely, "branch-likely"},
		{AttrPfxS, "pfx-s"},
		{AttrPfxT, "pfx-t"},
		{AttrPfxD, "pfx-d"},
		{AttrPfx, "pfx"},
	} {
		if a.Has(f.bit) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// Emitter produces native code for one instruction during the emission pass.
type Emitter func(c *GenerationContext, address, code uint32)

// ExecFunc executes one instruction against a live context. address is the
// delay-slot address, as for TryEmit.
type ExecFunc func(ctx *cpu.Context, mem cpu.Memory, address, code uint32) error

// Descriptor is one entry of the instruction table. A nil Emit selects the
// fallback call into Exec.
type Descriptor struct {
	Name       string
	Arguments  string
	Match      uint32
	Mask       uint32
	Attributes Attributes
	HasWidth   bool
	Emit       Emitter
	Exec       ExecFunc
}

func (d *Descriptor) Native() bool { return d.Emit != nil }

// Matches reports whether code is an encoding of d.
func (d *Descriptor) Matches(code uint32) bool { return code&d.Mask == d.Match }

// Unary arithmetic sub-opcodes, bits 16..20 of the word.
const (
	subVMOV  = 0
	subVABS  = 1
	subVNEG  = 2
	subVSAT0 = 4
	subVSAT1 = 5
	subVRCP  = 16
	subVRSQ  = 17
	subVSIN  = 18
	subVCOS  = 19
	subVEXP2 = 20
	subVLOG2 = 21
	subVSQRT = 22
)

func arith(name string, sub uint32) Descriptor {
	return Descriptor{
		Name:       name,
		Arguments:  "%vd, %vs",
		Match:      0xD0000000 | sub<<16,
		Mask:       0xFFFF0000,
		Attributes: AttrPfx,
		HasWidth:   true,
		Exec:       execArith,
	}
}

// descriptors is scanned in order; the first match wins.
var descriptors = []Descriptor{
	{Name: "bvf", Arguments: "%cc, %target", Match: 0x49000000, Mask: 0xFFE30000, Attributes: AttrBranch, Emit: emitBranchCC(0), Exec: execBranchCC(0, false)},
	{Name: "bvt", Arguments: "%cc, %target", Match: 0x49010000, Mask: 0xFFE30000, Attributes: AttrBranch, Emit: emitBranchCC(1), Exec: execBranchCC(1, false)},
	{Name: "bvfl", Arguments: "%cc, %target", Match: 0x49020000, Mask: 0xFFE30000, Attributes: AttrBranchLikely, Emit: emitBranchCC(0), Exec: execBranchCC(0, true)},
	{Name: "bvtl", Arguments: "%cc, %target", Match: 0x49030000, Mask: 0xFFE30000, Attributes: AttrBranchLikely, Emit: emitBranchCC(1), Exec: execBranchCC(1, true)},

	{Name: "mfv", Arguments: "%rt, %vd", Match: 0x48600000, Mask: 0xFFE0FF80, Emit: emitMFV, Exec: execMFV},
	{Name: "mtv", Arguments: "%rt, %vd", Match: 0x48E00000, Mask: 0xFFE0FF80, Emit: emitMTV, Exec: execMTV},

	{Name: "lv.s", Arguments: "%lvt, %off(%rs)", Match: 0xC8000000, Mask: 0xFC000000, Emit: emitLoad(Single), Exec: execLoad(Single)},
	{Name: "sv.s", Arguments: "%lvt, %off(%rs)", Match: 0xE8000000, Mask: 0xFC000000, Emit: emitStore(Single), Exec: execStore(Single)},
	{Name: "lv.q", Arguments: "%lvt, %off(%rs)", Match: 0xD8000000, Mask: 0xFC000002, Emit: emitLoad(Quad), Exec: execLoad(Quad)},
	{Name: "sv.q", Arguments: "%lvt, %off(%rs)", Match: 0xF8000000, Mask: 0xFC000002, Emit: emitStore(Quad), Exec: execStore(Quad)},

	{Name: "vpfxs", Arguments: "%pfx", Match: 0xDC000000, Mask: 0xFF000000, Emit: emitVPFX, Exec: execVPFX},
	{Name: "vpfxt", Arguments: "%pfx", Match: 0xDD000000, Mask: 0xFF000000, Emit: emitVPFX, Exec: execVPFX},
	{Name: "vpfxd", Arguments: "%pfx", Match: 0xDE000000, Mask: 0xFF000000, Emit: emitVPFX, Exec: execVPFX},

	{Name: "viim", Arguments: "%vt, %imm", Match: 0xDF000000, Mask: 0xFF800000, HasWidth: true, Emit: emitImmediate(intImmediate), Exec: execImmediate(intImmediate)},
	{Name: "vfim", Arguments: "%vt, %half", Match: 0xDF800000, Mask: 0xFF800000, HasWidth: true, Emit: emitImmediate(halfImmediate), Exec: execImmediate(halfImmediate)},

	{Name: "vscl", Arguments: "%vd, %vs, %vt", Match: 0x65000000, Mask: 0xFF800000, Attributes: AttrPfx, HasWidth: true, Exec: execVSCL},

	arith("vmov", subVMOV),
	arith("vabs", subVABS),
	arith("vneg", subVNEG),
	arith("vsat0", subVSAT0),
	arith("vsat1", subVSAT1),
	arith("vrcp", subVRCP),
	arith("vrsq", subVRSQ),
	arith("vsin", subVSIN),
	arith("vcos", subVCOS),
	arith("vexp2", subVEXP2),
	arith("vlog2", subVLOG2),
	arith("vsqrt", subVSQRT),
}

// Lookup returns the first descriptor matching code and its table index.
func Lookup(code uint32) (*Descriptor, int, bool) {
	for n := range descriptors {
		if descriptors[n].Matches(code) {
			return &descriptors[n], n, true
		}
	}
	return nil, -1, false
}

// Descriptors returns the table in lookup order.
func Descriptors() []Descriptor {
	out := make([]Descriptor, len(descriptors))
	copy(out, descriptors)
	return out
}

// Disasm renders code in assembler form. address is the delay-slot address
// and only affects branch targets.
func Disasm(address, code uint32) string {
	d, _, ok := Lookup(code)
	if !ok {
		return fmt.Sprintf(".word 0x%08x", code)
	}
	name := d.Name
	if d.HasWidth {
		name += vwidth(code).Suffix()
	}
	args := strings.NewReplacer(
		"%vd", regName(vrd(code)),
		"%vs", regName(vrs(code)),
		"%vt", regName(vrt(code)),
		"%lvt", regName(lsvt(code)),
		"%rt", gprName(rt(code)),
		"%rs", gprName(rs(code)),
		"%off", fmt.Sprintf("%d", lsOffset(code)),
		"%imm", fmt.Sprintf("%d", imm16(code)),
		"%half", fmt.Sprintf("%g", Float16ToFloat32(uint16(code))),
		"%pfx", fmt.Sprintf("0x%05x", code&0xFFFFF),
		"%cc", fmt.Sprintf("%d", ccBit(code)),
		"%target", fmt.Sprintf("0x%08x", BranchTarget(address, code)),
	).Replace(d.Arguments)
	return name + " " + args
}
