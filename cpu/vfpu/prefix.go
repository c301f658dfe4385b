package vfpu

import (
	"math"

	"github.com/noxa-emu/psp/cpu"
	"golang.org/x/exp/constraints"
)

var prefixConstants = [8]float32{0, 1, 2, 0.5, 3, 1.0 / 3.0, 1.0 / 4.0, 1.0 / 6.0}

// maxOf and minOf keep the operand-order semantics of the hardware clamp: the
// second operand wins whenever the comparison is false, NaN included.
func maxOf[T constraints.Float](a, b T) T {
	if a > b {
		return a
	}
	return b
}

func minOf[T constraints.Float](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func abs32(f float32) float32 {
	return math.Float32frombits(math.Float32bits(f) &^ (1 << 31))
}

// ApplyPrefix applies the prefix role's control word from ctx to the first
// w.Size() elements of p.
func ApplyPrefix(ctx *cpu.Context, role int, w Width, p []float32) {
	ApplyPrefixWord(ctx.Pfx[role], role, w, p)
}

// ApplyPrefixWord applies control word pfx in the given role.
func ApplyPrefixWord(pfx uint32, role int, w Width, p []float32) {
	n := w.Size()
	if role == cpu.PfxS || role == cpu.PfxT {
		if pfx == cpu.PfxSourceReset {
			return
		}
		for i := 0; i < n; i++ {
			abs := (pfx >> (8 + i)) & 1
			if (pfx>>(12+i))&1 == 0 {
				// element stays in place; the swizzle field is not honored
				if abs == 1 {
					p[i] = abs32(p[i])
				}
			} else {
				p[i] = prefixConstants[((pfx>>(2*i))&3)+(abs<<2)]
			}
			if (pfx>>(16+i))&1 == 1 {
				p[i] = -p[i]
			}
		}
		return
	}

	if pfx == cpu.PfxDestReset {
		return
	}
	for i := 0; i < n; i++ {
		switch (pfx >> (2 * i)) & 3 {
		case 1:
			p[i] = maxOf(0, minOf(1, p[i]))
		case 3:
			p[i] = maxOf(-1, minOf(1, p[i]))
		}
	}
}
