package vfpu

import (
	"fmt"
	"sort"

	"github.com/noxa-emu/psp/cpu"
	"github.com/noxa-emu/psp/cpu/codegen"
)

// GenerationResult is the outcome of TryEmit for one instruction.
type GenerationResult int

const (
	Invalid GenerationResult = iota
	Success
	Branch
	BranchAndNullifyDelay
)

func (r GenerationResult) String() string {
	switch r {
	case Invalid:
		return "Invalid"
	case Success:
		return "Success"
	case Branch:
		return "Branch"
	case BranchAndNullifyDelay:
		return "BranchAndNullifyDelay"
	}
	return fmt.Sprintf("GenerationResult(%d)", int(r))
}

func (r GenerationResult) IsBranch() bool { return r == Branch || r == BranchAndNullifyDelay }

// GenerationContext is the per-block translation state shared by both
// passes.
type GenerationContext struct {
	Generator    *codegen.Generator
	BranchLabels map[uint32]*codegen.Label
	// BranchTarget is the label resolved for the branch being emitted.
	BranchTarget *codegen.Label
	Lookup       AddressLookup
	Thunks       ThunkTable
	// FaultLabels maps the pc of a load/store to the stub reporting its
	// address translation failure.
	FaultLabels map[uint32]*codegen.Label
}

func NewGenerationContext(lookup AddressLookup, thunks ThunkTable) *GenerationContext {
	return &GenerationContext{
		Generator:    codegen.NewGenerator(),
		BranchLabels: make(map[uint32]*codegen.Label),
		FaultLabels:  make(map[uint32]*codegen.Label),
		Lookup:       lookup,
		Thunks:       thunks,
	}
}

// DefineBranchTarget registers a label for a guest target address. Defining
// the same target twice returns the existing label.
func (c *GenerationContext) DefineBranchTarget(target uint32) *codegen.Label {
	if l, ok := c.BranchLabels[target]; ok {
		return l
	}
	l := c.Generator.NewLabel(fmt.Sprintf("L%08x", target))
	c.BranchLabels[target] = l
	return l
}

// FaultLabel returns the fault stub label for the instruction at pc.
func (c *GenerationContext) FaultLabel(pc uint32) *codegen.Label {
	if l, ok := c.FaultLabels[pc]; ok {
		return l
	}
	l := c.Generator.NewLabel(fmt.Sprintf("fault%08x", pc))
	c.FaultLabels[pc] = l
	return l
}

// EmitFaultStubs binds every pending fault label to a stub that records the
// faulting pc, raises Fault and returns.
func (c *GenerationContext) EmitFaultStubs() {
	pcs := make([]uint32, 0, len(c.FaultLabels))
	for pc, l := range c.FaultLabels {
		if !l.Bound() {
			pcs = append(pcs, pc)
		}
	}
	sort.Slice(pcs, func(i, j int) bool { return pcs[i] < pcs[j] })
	g := c.Generator
	for _, pc := range pcs {
		g.Bind(c.FaultLabels[pc])
		g.MovMemImm32(codegen.CtxReg, cpu.OffsetPC, pc)
		g.MovMemImm32(codegen.CtxReg, cpu.OffsetFault, 1)
		g.Ret()
	}
}
