package vfpu

import "fmt"

func vrt(code uint32) int { return int((code >> 16) & 0x7F) }
func vrs(code uint32) int { return int((code >> 8) & 0x7F) }
func vrd(code uint32) int { return int(code & 0x7F) }
func rs(code uint32) int  { return int((code >> 21) & 0x1F) }
func rt(code uint32) int  { return int((code >> 16) & 0x1F) }

// vwidth reads the two width bits at 7 and 15. Only Single..Quad are
// encodable this way.
func vwidth(code uint32) Width {
	return Width(((code >> 7) & 1) | (((code >> 15) & 1) << 1))
}

// lsvt is the register selector of lv/sv, whose top two bits sit in the low
// bits of the word.
func lsvt(code uint32) int {
	return int(((code >> 16) & 0x1F) | ((code & 3) << 5))
}

func imm16(code uint32) int32 { return int32(int16(code & 0xFFFF)) }

// lsOffset is the lv/sv displacement; its low two bits belong to the
// register selector.
func lsOffset(code uint32) int32 { return imm16(code) &^ 3 }

// ccBit is the condition bit tested by bvf/bvt.
func ccBit(code uint32) uint32 { return (code >> 18) & 7 }

// BranchTarget computes the target of a branch whose delay slot is at
// address.
func BranchTarget(address, code uint32) uint32 {
	return address + uint32(imm16(code)<<2)
}

func regName(r int) string { return fmt.Sprintf("$v%03d", r) }
func gprName(r int) string { return fmt.Sprintf("$r%d", r) }
