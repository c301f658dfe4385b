//go:build unicorn

package sandbox

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/noxa-emu/psp/cpu"
	"github.com/noxa-emu/psp/cpu/vfpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ramBase = 0x08000000
	ramSize = 0x1000
	blockPC = 0x08800000
	quad    = 0x00008080
)

func vfim(vt int, half uint16) uint32 { return 0xDF800000 | uint32(vt)<<16 | uint32(half) }
func viim(vt int, imm int16) uint32   { return 0xDF000000 | uint32(vt)<<16 | uint32(uint16(imm)) }
func mtv(rt, vd int) uint32           { return 0x48E00000 | uint32(rt)<<16 | uint32(vd) }
func mfv(rt, vd int) uint32           { return 0x48600000 | uint32(rt)<<16 | uint32(vd) }

func vscl(vd, vs, vt int) uint32 {
	return 0x65000000 | quad | uint32(vt)<<16 | uint32(vs)<<8 | uint32(vd)
}

func arith(sub uint32, vd, vs int) uint32 {
	return 0xD0000000 | quad | sub<<16 | uint32(vs)<<8 | uint32(vd)
}

func loadStore(op uint32, rs, vt int, offset int16) uint32 {
	return op | uint32(rs)<<21 | uint32(vt&0x1F)<<16 | uint32(uint16(offset))&0xFFFC | uint32(vt>>5)
}

func branch(tf uint32, likely bool, cc uint32, offset int16) uint32 {
	w := 0x49000000 | tf<<16 | cc<<18 | uint32(uint16(offset))
	if likely {
		w |= 0x00020000
	}
	return w
}

func newRAM() *cpu.RAM {
	ram := cpu.NewRAM(ramBase, ramSize)
	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint32(ram.Bytes()[0x100+4*i:], math.Float32bits(float32(i)+0.5))
	}
	return ram
}

func newContext() *cpu.Context {
	ctx := cpu.NewContext()
	ctx.GPR[4] = ramBase + 0x100
	ctx.GPR[5] = math.Float32bits(3)
	ctx.VfpuCC = 0x5
	return ctx
}

// runBothErr executes words natively in the sandbox and through the
// interpreter, requires both to fail or succeed alike, and requires identical
// contexts and RAM.
func runBothErr(t *testing.T, setup func(*cpu.Context), words []uint32) (*cpu.Context, *cpu.RAM, error) {
	t.Helper()
	nativeRAM := newRAM()
	sb, err := New(nativeRAM)
	require.NoError(t, err)
	defer sb.Close()

	blk, err := vfpu.NewBlockTranslator(sb.Lookup(), sb.Thunks()).Translate(context.Background(), blockPC, words)
	require.NoError(t, err)

	nativeCtx := newContext()
	setup(nativeCtx)
	nativeErr := sb.Run(nativeCtx, blk)

	interpRAM := newRAM()
	interpCtx := newContext()
	setup(interpCtx)
	interpErr := vfpu.Interpret(interpCtx, interpRAM, blockPC, words, 1000)

	assert.Equal(t, cpu.ErrorName(interpErr), cpu.ErrorName(nativeErr))
	diff, differ, err := cpu.Diff(interpCtx, nativeCtx, false)
	require.NoError(t, err)
	assert.False(t, differ, diff)
	assert.Equal(t, interpRAM.Bytes(), nativeRAM.Bytes())
	return nativeCtx, nativeRAM, nativeErr
}

func runBoth(t *testing.T, words []uint32) (*cpu.Context, *cpu.RAM) {
	t.Helper()
	ctx, ram, err := runBothErr(t, func(*cpu.Context) {}, words)
	require.NoError(t, err)
	return ctx, ram
}

func TestStraightLine(t *testing.T) {
	words := []uint32{
		vfim(3, 0x4000),                  // s003 = 2
		loadStore(0xD8000000, 4, 4, 16),  // v4..7 = 4.5 5.5 6.5 7.5
		vscl(8, 4, 3),                    // fallback through a thunk
		arith(2, 12, 8),                  // vneg.q
		arith(16, 16, 12),                // vrcp.q
		loadStore(0xF8000000, 4, 16, 64), // sv.q
		mtv(5, 20),                       // v20 = r5
		mfv(6, 3),                        // r6 = v3
		loadStore(0xC8000000, 4, 36, 8),  // v36 = 2.5
		loadStore(0xE8000000, 4, 36, 132),
	}
	ctx, ram := runBoth(t, words)
	assert.Equal(t, float32(3), ctx.Float(20))
	assert.Equal(t, math.Float32bits(2), ctx.GPR[6])
	assert.Equal(t, [3]uint32{0xE4, 0xE4, 0}, ctx.Pfx)
	assert.Equal(t, uint32(blockPC+4*len(words)), ctx.PC)
	assert.Equal(t, math.Float32bits(float32(-1)/9), binary.LittleEndian.Uint32(ram.Bytes()[0x140:]))
	assert.Equal(t, math.Float32bits(2.5), binary.LittleEndian.Uint32(ram.Bytes()[0x184:]))
}

func TestBranches(t *testing.T) {
	words := []uint32{
		branch(1, false, 0, 2), // bvt, cc0 set: taken
		viim(6, 1),             // delay slot
		viim(7, 2),             // skipped
		branch(0, true, 1, 2),  // bvfl, cc1 clear: taken
		viim(8, 3),             // delay slot
		viim(9, 4),             // skipped
		branch(1, true, 2, 64), // bvtl, cc2 set: leaves the block
		viim(10, 5),            // delay slot
		viim(11, 6),
	}
	ctx, _ := runBoth(t, words)
	assert.Equal(t, float32(1), ctx.Float(6))
	assert.Equal(t, uint32(0), ctx.Vfpu[7])
	assert.Equal(t, float32(3), ctx.Float(8))
	assert.Equal(t, uint32(0), ctx.Vfpu[9])
	assert.Equal(t, float32(5), ctx.Float(10))
	assert.Equal(t, uint32(0), ctx.Vfpu[11])
	assert.Equal(t, uint32(blockPC+28+256), ctx.PC)
}

func TestNullifiedDelaySlot(t *testing.T) {
	ctx, _ := runBoth(t, []uint32{
		branch(1, true, 1, 4), // bvtl, cc1 clear: not taken
		viim(6, 1),            // nullified
		viim(7, 2),
	})
	assert.Equal(t, uint32(0), ctx.Vfpu[6])
	assert.Equal(t, float32(2), ctx.Float(7))
	assert.Equal(t, uint32(1), ctx.NullDelay)
	assert.Equal(t, uint32(blockPC+12), ctx.PC)
}

func TestRunAfterInterpreterFault(t *testing.T) {
	ram := newRAM()
	sb, err := New(ram)
	require.NoError(t, err)
	defer sb.Close()

	// a faulting step leaves the context usable for the native path
	ctx := newContext()
	err = vfpu.Step(ctx, ram, blockPC+4, loadStore(0xD8000000, 4, 0, 0x7FF0))
	assert.ErrorIs(t, err, cpu.ErrAddressTranslation)

	blk, err := vfpu.NewBlockTranslator(sb.Lookup(), sb.Thunks()).Translate(context.Background(), blockPC, []uint32{vscl(8, 4, 3)})
	require.NoError(t, err)
	require.NoError(t, sb.Run(ctx, blk))
	assert.Equal(t, uint32(blockPC+4), ctx.PC)
}

func TestBranchIntoDelaySlot(t *testing.T) {
	ctx, _ := runBoth(t, []uint32{
		branch(1, false, 0, 0), // bvt, cc0 set: taken, targets its own delay slot
		viim(6, 1),
		viim(7, 2),
	})
	assert.Equal(t, float32(1), ctx.Float(6))
	assert.Equal(t, float32(2), ctx.Float(7))
	assert.Equal(t, uint32(1), ctx.PCValid)
	assert.Equal(t, uint32(blockPC+12), ctx.PC)

	// entering a delay slot with a stale taken flag from another branch
	ctx, _ = runBoth(t, []uint32{
		branch(1, false, 0, 3), // bvt, cc0 set: taken into the slot of word 3
		viim(6, 1),
		viim(7, 2),              // skipped
		branch(0, false, 0, 64), // bvf, cc0 set: not taken
		viim(8, 3),
		viim(9, 4),
	})
	assert.Equal(t, float32(1), ctx.Float(6))
	assert.Equal(t, uint32(0), ctx.Vfpu[7])
	assert.Equal(t, float32(3), ctx.Float(8))
	assert.Equal(t, float32(4), ctx.Float(9))
	assert.Equal(t, uint32(blockPC+24), ctx.PC)
}

func TestAddressFault(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*cpu.Context)
		word  uint32
	}{
		{"beyond end", func(*cpu.Context) {}, loadStore(0xD8000000, 4, 0, 0x7FF0)},
		{"last quad straddles end", func(*cpu.Context) {}, loadStore(0xF8000000, 4, 0, ramSize-0x100-8)},
		{"below base", func(c *cpu.Context) { c.GPR[4] = ramBase - 0x100 }, loadStore(0xC8000000, 4, 0, 0)},
		{"unaligned", func(c *cpu.Context) { c.GPR[4] = ramBase + 0x102 }, loadStore(0xE8000000, 4, 0, 0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, _, err := runBothErr(t, tc.setup, []uint32{viim(6, 1), tc.word, viim(7, 2)})
			assert.ErrorIs(t, err, cpu.ErrAddressTranslation)
			assert.Equal(t, uint32(1), ctx.Fault)
			assert.Equal(t, uint32(blockPC+4), ctx.PC)
			assert.Equal(t, float32(1), ctx.Float(6))
			assert.Equal(t, uint32(0), ctx.Vfpu[7])
		})
	}

	// the last whole quad of RAM is still reachable
	_, ram, err := runBothErr(t, func(c *cpu.Context) { c.SetFloat(0, 9) },
		[]uint32{loadStore(0xF8000000, 4, 0, ramSize-0x100-16)})
	require.NoError(t, err)
	assert.Equal(t, math.Float32bits(9), binary.LittleEndian.Uint32(ram.Bytes()[ramSize-16:]))
}
