package vfpu

import "math"

const (
	float16ExpMax  = 0x1F
	float16SignSh  = 15
	float16ExpSh   = 10
	float16ExpMask = 0x1F
	float16Frac    = 0x3FF
)

// Float16ToFloat32 decodes a half-precision bit pattern. Subnormals are
// normalized by shifting until the implicit bit appears and are then rebiased
// like normal numbers, so 0x0001 decodes to 2^-25.
func Float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>float16SignSh) & 1
	exponent := int32(h>>float16ExpSh) & float16ExpMask
	fraction := uint32(h) & float16Frac

	switch {
	case exponent == float16ExpMax:
		if fraction == 0 {
			if sign == 1 {
				return float32(math.Inf(-1))
			}
			return float32(math.Inf(1))
		}
		return math.Float32frombits(0x7FC00000)
	case exponent == 0 && fraction == 0:
		return math.Float32frombits(sign << 31)
	}

	if exponent == 0 {
		for {
			fraction <<= 1
			exponent--
			if fraction&(float16Frac+1) != 0 {
				break
			}
		}
		fraction &= float16Frac
	}

	bits := sign << 31
	bits |= uint32(exponent+112) << 23
	bits |= fraction << 13
	return math.Float32frombits(bits)
}
