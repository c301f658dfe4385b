package vfpu

import "github.com/noxa-emu/psp/cpu"

// Cell pairs a physical register-file slot with its position in a flat
// element buffer.
type Cell struct {
	Reg  int
	Slot int
}

// Layout maps selector r at width w onto the register file. stride is the
// buffer distance between successive j columns: 0 for flat vectors, the
// matrix width for matrix transfers. Both the interpreter and the native
// emitters walk this list, in this order.
func Layout(w Width, r int, stride int) []Cell {
	mtx := (r >> 2) & 7
	idx := r & 3
	transpose := (r >> 5) & 1
	fsl, k, l := w.shape(r)

	cells := make([]Cell, 0, k*l)
	for i := 0; i < k; i++ {
		for j := 0; j < l; j++ {
			var phys int
			if transpose == 1 {
				phys = mtx*4 + ((idx + i) & 3) + ((fsl+j)&3)*32
			} else {
				phys = mtx*4 + ((idx + j) & 3) + ((fsl+i)&3)*32
			}
			cells = append(cells, Cell{Reg: phys, Slot: j*stride + i})
		}
	}
	return cells
}

// GetVector reads the view into p.
func GetVector(ctx *cpu.Context, w Width, r int, p []float32, stride int) {
	for _, c := range Layout(w, r, stride) {
		p[c.Slot] = ctx.Float(c.Reg)
	}
}

// SetVector writes p into the view.
func SetVector(ctx *cpu.Context, w Width, r int, p []float32, stride int) {
	for _, c := range Layout(w, r, stride) {
		ctx.SetFloat(c.Reg, p[c.Slot])
	}
}

// bufferLen is the number of buffer slots a view touches.
func bufferLen(w Width, stride int) int {
	_, k, l := w.shape(0)
	n := (l-1)*stride + k
	if n < w.Size() {
		n = w.Size()
	}
	return n
}
