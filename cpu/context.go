package cpu

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Prefix roles, indexes into Context.Pfx.
const (
	PfxS = 0
	PfxT = 1
	PfxD = 2
)

// Prefix reset values; a role holding its reset value modifies nothing.
const (
	PfxSourceReset uint32 = 0xE4
	PfxDestReset   uint32 = 0x0
)

const VfpuRegisterCount = 128

// Byte offsets of the context block as seen by generated code (R12 points at
// offset 0).
const (
	OffsetGPR       = 0
	OffsetVfpu      = 128
	OffsetPfx       = 640
	OffsetVfpuCC    = 652
	OffsetPCValid   = 656
	OffsetNullDelay = 660
	OffsetPC        = 664
	OffsetFault     = 668
	ContextSize     = 672
)

// Context is the CPU execution state touched by the VFPU core. Vfpu holds
// raw bits; the scalar, vector and matrix views are index computations over
// the same 128 slots.
type Context struct {
	GPR       [32]uint32                `json:"gpr"`
	Vfpu      [VfpuRegisterCount]uint32 `json:"vfpu"`
	Pfx       [3]uint32                 `json:"pfx"`
	VfpuCC    uint32                    `json:"vfpu_cc"`
	PCValid   uint32                    `json:"pc_valid"`
	NullDelay uint32                    `json:"null_delay"`
	PC        uint32                    `json:"pc"`
	// Fault is set by generated code when a load or store address cannot be
	// translated; PC then holds the faulting instruction.
	Fault uint32 `json:"fault"`
}

func NewContext() *Context {
	c := &Context{}
	c.ResetPrefixes()
	return c
}

func (c *Context) ResetPrefixes() {
	c.Pfx[PfxS] = PfxSourceReset
	c.Pfx[PfxT] = PfxSourceReset
	c.Pfx[PfxD] = PfxDestReset
}

func (c *Context) Float(i int) float32 {
	return math.Float32frombits(c.Vfpu[i])
}

func (c *Context) SetFloat(i int, f float32) {
	c.Vfpu[i] = math.Float32bits(f)
}

func GPROffset(i int) int32  { return int32(OffsetGPR + 4*i) }
func VfpuOffset(i int) int32 { return int32(OffsetVfpu + 4*i) }
func PfxOffset(i int) int32  { return int32(OffsetPfx + 4*i) }

// MarshalBinary encodes the context in the layout generated code addresses.
func (c *Context) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ContextSize)
	if _, err := binary.Encode(buf, binary.LittleEndian, c); err != nil {
		return nil, fmt.Errorf("encode context: %w", err)
	}
	return buf, nil
}

func (c *Context) UnmarshalBinary(data []byte) error {
	if len(data) < ContextSize {
		return fmt.Errorf("context block too short: %d < %d", len(data), ContextSize)
	}
	if _, err := binary.Decode(data, binary.LittleEndian, c); err != nil {
		return fmt.Errorf("decode context: %w", err)
	}
	return nil
}
