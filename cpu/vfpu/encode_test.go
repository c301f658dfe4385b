package vfpu

// Instruction word builders shared by the package tests.

func widthBits(w Width) uint32 {
	return (uint32(w)&1)<<7 | (uint32(w)>>1)<<15
}

func encVSCL(w Width, vd, vs, vt int) uint32 {
	return 0x65000000 | uint32(vt)<<16 | uint32(vs)<<8 | uint32(vd) | widthBits(w)
}

func encArith(sub uint32, w Width, vd, vs int) uint32 {
	return 0xD0000000 | sub<<16 | uint32(vs)<<8 | uint32(vd) | widthBits(w)
}

func encVFIM(vt int, half uint16) uint32 {
	return 0xDF800000 | uint32(vt)<<16 | uint32(half)
}

func encVIIM(vt int, imm int16) uint32 {
	return 0xDF000000 | uint32(vt)<<16 | uint32(uint16(imm))
}

func encVPFX(set int, value uint32) uint32 {
	return 0xDC000000 | uint32(set)<<24 | value&0xFFFFF
}

func encMTV(rt, vd int) uint32 { return 0x48E00000 | uint32(rt)<<16 | uint32(vd) }
func encMFV(rt, vd int) uint32 { return 0x48600000 | uint32(rt)<<16 | uint32(vd) }

func encLS(op uint32, rs, vt int, offset int16) uint32 {
	return op | uint32(rs)<<21 | uint32(vt&0x1F)<<16 | uint32(uint16(offset))&0xFFFC | uint32(vt>>5)
}

func encLVS(rs, vt int, offset int16) uint32 { return encLS(0xC8000000, rs, vt, offset) }
func encSVS(rs, vt int, offset int16) uint32 { return encLS(0xE8000000, rs, vt, offset) }

// the quad forms keep bit 1 clear
func encLVQ(rs, vt int, offset int16) uint32 { return encLS(0xD8000000, rs, vt&0x3F, offset) }
func encSVQ(rs, vt int, offset int16) uint32 { return encLS(0xF8000000, rs, vt&0x3F, offset) }

// encBranch builds bvf (tf=0, likely=false), bvt, bvfl or bvtl.
func encBranch(tf uint32, likely bool, cc uint32, offset int16) uint32 {
	w := 0x49000000 | tf<<16 | cc<<18 | uint32(uint16(offset))
	if likely {
		w |= 0x00020000
	}
	return w
}
