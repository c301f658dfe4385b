package vfpu

import (
	"errors"
	"testing"

	"github.com/noxa-emu/psp/cpu"
	"github.com/noxa-emu/psp/cpu/codegen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"
)

func newTestGenContext() *GenerationContext {
	return NewGenerationContext(FlatLookup{Base: 0x08000000, Size: 0x02000000}, ThunkTable{Base: DefaultThunkBase})
}

func decodeCode(t *testing.T, code []byte) []x86asm.Inst {
	t.Helper()
	var out []x86asm.Inst
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 64)
		require.NoError(t, err, "offset 0x%x", off)
		out = append(out, inst)
		off += inst.Len
	}
	return out
}

func ctxMem(disp int32) x86asm.Mem {
	return x86asm.Mem{Base: x86asm.R12, Scale: 1, Disp: int64(disp)}
}

func TestTwoPassBranchResolution(t *testing.T) {
	gc := newTestGenContext()
	words := []uint32{
		encVFIM(5, 0x3C00),
		encBranch(1, false, 0, -2), // back to the first word
		encVSCL(Quad, 1, 0, 5),
		encBranch(0, true, 2, 3), // forward, past the block
		encArith(subVNEG, Quad, 1, 1),
	}
	want := []GenerationResult{Success, Branch, Success, BranchAndNullifyDelay, Success}

	for i, w := range words {
		assert.Equal(t, want[i], TryEmit(gc, 0, testPC+uint32(4*i)+4, w), "word %d", i)
	}
	assert.Zero(t, gc.Generator.Len(), "discovery emits nothing")
	require.Len(t, gc.BranchLabels, 2)
	back := BranchTarget(testPC+8, words[1])
	fwd := BranchTarget(testPC+16, words[3])
	assert.Equal(t, uint32(testPC), back)
	assert.Equal(t, uint32(testPC+28), fwd)
	assert.Contains(t, gc.BranchLabels, back)
	assert.Contains(t, gc.BranchLabels, fwd)

	for i, w := range words {
		assert.NotPanics(t, func() {
			assert.Equal(t, want[i], TryEmit(gc, 1, testPC+uint32(4*i)+4, w))
		})
		switch i {
		case 1:
			assert.Same(t, gc.BranchLabels[back], gc.BranchTarget)
		case 3:
			assert.Same(t, gc.BranchLabels[fwd], gc.BranchTarget)
		}
	}
	assert.NotZero(t, gc.Generator.Len())
}

func TestInvalidLeavesStateUntouched(t *testing.T) {
	gc := newTestGenContext()
	for _, pass := range []int{0, 1} {
		assert.Equal(t, Invalid, TryEmit(gc, pass, testPC+4, 0x00000000))
		assert.Equal(t, Invalid, TryEmit(gc, pass, testPC+4, 0xFFFFFFFF))
	}
	assert.Empty(t, gc.BranchLabels)
	assert.Zero(t, gc.Generator.Len())
	assert.Nil(t, gc.BranchTarget)
}

func TestUnknownPassIsInvalid(t *testing.T) {
	gc := newTestGenContext()
	assert.Equal(t, Invalid, TryEmit(gc, 2, testPC+4, encVFIM(5, 0x4000)))
	assert.Equal(t, Invalid, TryEmit(gc, -1, testPC+4, encBranch(1, false, 0, 4)))
	assert.Empty(t, gc.BranchLabels)
	assert.Zero(t, gc.Generator.Len())
}

func TestEmissionWithoutDiscoveryPanics(t *testing.T) {
	gc := newTestGenContext()
	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, cpu.ErrConsistencyFault))
	}()
	TryEmit(gc, 1, testPC+4, encBranch(1, false, 0, 4))
}

func TestFallbackCallSequence(t *testing.T) {
	gc := newTestGenContext()
	code := encVSCL(Quad, 1, 0, 5)
	require.Equal(t, Success, TryEmit(gc, 1, testPC+4, code))

	_, index, ok := Lookup(code)
	require.True(t, ok)

	insts := decodeCode(t, gc.Generator.Bytes())
	require.Len(t, insts, 9)
	assert.Equal(t, x86asm.PUSH, insts[0].Op)
	assert.Equal(t, x86asm.Imm(code), insts[0].Args[0])
	assert.Equal(t, x86asm.PUSH, insts[1].Op)
	assert.Equal(t, x86asm.Imm(testPC+4), insts[1].Args[0])
	assert.Equal(t, x86asm.PUSH, insts[2].Op)
	assert.Equal(t, x86asm.R12, insts[2].Args[0])
	assert.Equal(t, x86asm.MOV, insts[3].Op)
	assert.Equal(t, x86asm.Imm(gc.Thunks.Address(index)), insts[3].Args[1])
	assert.Equal(t, x86asm.CALL, insts[4].Op)
	assert.Equal(t, x86asm.ADD, insts[5].Op)
	assert.Equal(t, x86asm.Imm(24), insts[5].Args[1])

	// all three prefixes are reset
	for i, role := range []int{cpu.PfxS, cpu.PfxT, cpu.PfxD} {
		inst := insts[6+i]
		assert.Equal(t, x86asm.MOV, inst.Op)
		assert.Equal(t, ctxMem(cpu.PfxOffset(role)), inst.Args[0])
	}
	assert.Equal(t, x86asm.Imm(0xE4), insts[6].Args[1])
	assert.Equal(t, x86asm.Imm(0xE4), insts[7].Args[1])
	assert.Equal(t, x86asm.Imm(0), insts[8].Args[1])
}

func TestPrefixResetPerRole(t *testing.T) {
	for _, c := range []struct {
		attr  Attributes
		roles []int
	}{
		{AttrNormal, nil},
		{AttrPfxS, []int{cpu.PfxS}},
		{AttrPfxT | AttrPfxD, []int{cpu.PfxT, cpu.PfxD}},
		{AttrPfx, []int{cpu.PfxS, cpu.PfxT, cpu.PfxD}},
		{AttrPfx | AttrPfxS, []int{cpu.PfxS, cpu.PfxT, cpu.PfxD}},
	} {
		g := codegen.NewGenerator()
		emitPrefixReset(g, c.attr)
		insts := decodeCode(t, g.Bytes())
		require.Len(t, insts, len(c.roles), "attr %s", c.attr)
		for i, role := range c.roles {
			assert.Equal(t, ctxMem(cpu.PfxOffset(role)), insts[i].Args[0])
		}

		ctx := cpu.NewContext()
		ctx.Pfx = [3]uint32{1, 2, 3}
		resetPrefixes(ctx, c.attr)
		want := [3]uint32{1, 2, 3}
		reset := [3]uint32{0xE4, 0xE4, 0}
		for _, role := range c.roles {
			want[role] = reset[role]
		}
		assert.Equal(t, want, ctx.Pfx, "attr %s", c.attr)
	}
}

func TestBranchEmission(t *testing.T) {
	gc := newTestGenContext()
	code := encBranch(0, true, 3, 8)
	require.Equal(t, BranchAndNullifyDelay, TryEmit(gc, 0, testPC+4, code))
	require.Equal(t, BranchAndNullifyDelay, TryEmit(gc, 1, testPC+4, code))

	insts := decodeCode(t, gc.Generator.Bytes())
	ops := make([]x86asm.Op, len(insts))
	for i, inst := range insts {
		ops[i] = inst.Op
	}
	assert.Equal(t, []x86asm.Op{
		x86asm.MOV, x86asm.SHR, x86asm.AND, x86asm.XOR, // eax = !cc[3]
		x86asm.MOV,             // pc valid
		x86asm.XOR, x86asm.MOV, // null delay
	}, ops)
	assert.Equal(t, ctxMem(cpu.OffsetVfpuCC), insts[0].Args[1])
	assert.Equal(t, x86asm.Imm(3), insts[1].Args[1])
	assert.Equal(t, ctxMem(cpu.OffsetPCValid), insts[4].Args[0])
	assert.Equal(t, ctxMem(cpu.OffsetNullDelay), insts[6].Args[0])
}

func TestNativeImmediateEmission(t *testing.T) {
	gc := newTestGenContext()
	require.Equal(t, Success, TryEmit(gc, 1, testPC+4, encVFIM(5, 0x4000)))
	insts := decodeCode(t, gc.Generator.Bytes())
	require.Len(t, insts, 1)
	assert.Equal(t, ctxMem(cpu.VfpuOffset(5)), insts[0].Args[0])
	assert.Equal(t, x86asm.Imm(0x40000000), insts[0].Args[1])
}

func TestLoadStoreEmissionFollowsLayout(t *testing.T) {
	gc := newTestGenContext()
	code := encLVQ(4, 0x21, 0x10)
	require.Equal(t, Success, TryEmit(gc, 1, testPC+4, code))
	insts := decodeCode(t, gc.Generator.Bytes())
	// mov eax,[gpr]; add eax,imm; test eax,3; jne; sub eax,base; cmp; ja;
	// add rax,r13; 4 x (load, store)
	require.Len(t, insts, 8+8)
	assert.Equal(t, ctxMem(cpu.GPROffset(4)), insts[0].Args[1])
	assert.Equal(t, x86asm.Imm(0x10), insts[1].Args[1])
	assert.Equal(t, x86asm.TEST, insts[2].Op)
	assert.Equal(t, x86asm.Imm(3), insts[2].Args[1])
	assert.Equal(t, x86asm.JNE, insts[3].Op)
	assert.Equal(t, x86asm.SUB, insts[4].Op)
	assert.Equal(t, x86asm.CMP, insts[5].Op)
	assert.Equal(t, x86asm.Imm(0x02000000-16), insts[5].Args[1])
	assert.Equal(t, x86asm.JA, insts[6].Op)
	assert.Equal(t, x86asm.R13, insts[7].Args[1])
	for n, c := range Layout(Quad, 0x21, 0) {
		load, store := insts[8+2*n], insts[9+2*n]
		assert.Equal(t, x86asm.Mem{Base: x86asm.RAX, Disp: int64(4 * c.Slot)}, load.Args[1])
		assert.Equal(t, ctxMem(cpu.VfpuOffset(c.Reg)), store.Args[0])
	}
	require.Contains(t, gc.FaultLabels, uint32(testPC))
}

func TestFaultStubs(t *testing.T) {
	gc := newTestGenContext()
	require.Equal(t, Success, TryEmit(gc, 1, testPC+4, encLVS(4, 5, 0)))
	require.Equal(t, Success, TryEmit(gc, 1, testPC+8, encSVS(4, 5, 4)))
	require.Len(t, gc.FaultLabels, 2)

	body := gc.Generator.Len()
	gc.EmitFaultStubs()
	code, err := gc.Generator.Finalize()
	require.NoError(t, err)

	first := gc.FaultLabels[testPC]
	second := gc.FaultLabels[testPC+4]
	assert.Equal(t, body, first.Offset())
	assert.Less(t, first.Offset(), second.Offset())

	stub := decodeCode(t, code[first.Offset():second.Offset()])
	require.Len(t, stub, 3)
	assert.Equal(t, ctxMem(cpu.OffsetPC), stub[0].Args[0])
	assert.Equal(t, x86asm.Imm(testPC), stub[0].Args[1])
	assert.Equal(t, ctxMem(cpu.OffsetFault), stub[1].Args[0])
	assert.Equal(t, x86asm.Imm(1), stub[1].Args[1])
	assert.Equal(t, x86asm.RET, stub[2].Op)

	// the range check of lv.s and sv.s admits the last word of RAM
	for _, inst := range decodeCode(t, code[:body]) {
		if inst.Op == x86asm.CMP {
			assert.Equal(t, x86asm.Imm(0x02000000-4), inst.Args[1])
		}
	}
}

func TestLookupSmallerThanAccess(t *testing.T) {
	g := codegen.NewGenerator()
	fault := g.NewLabel("fault")
	FlatLookup{Base: 0x08000000, Size: 8}.EmitLookup(g, 16, fault)
	g.Bind(fault)
	g.Ret()
	code, err := g.Finalize()
	require.NoError(t, err)
	insts := decodeCode(t, code)
	require.Len(t, insts, 5)
	assert.Equal(t, x86asm.JMP, insts[3].Op)
	assert.Equal(t, x86asm.Rel(0), insts[3].Args[0])
}
