package cpu

import "fmt"

// Memory resolves guest addresses to host memory.
type Memory interface {
	// Translate returns a slice aliasing size bytes of guest memory at addr.
	Translate(addr uint32, size int) ([]byte, error)
}

// RAM is a single flat guest RAM region.
type RAM struct {
	base uint32
	data []byte
}

func NewRAM(base uint32, size int) *RAM {
	return &RAM{base: base, data: make([]byte, size)}
}

func (r *RAM) Base() uint32  { return r.base }
func (r *RAM) Size() int     { return len(r.data) }
func (r *RAM) Bytes() []byte { return r.data }

func (r *RAM) Translate(addr uint32, size int) ([]byte, error) {
	if addr&3 != 0 {
		return nil, fmt.Errorf("unaligned access at 0x%08x: %w", addr, ErrAddressTranslation)
	}
	if addr < r.base {
		return nil, fmt.Errorf("access at 0x%08x below RAM base 0x%08x: %w", addr, r.base, ErrAddressTranslation)
	}
	off := uint64(addr - r.base)
	if size < 0 || off+uint64(size) > uint64(len(r.data)) {
		return nil, fmt.Errorf("access at 0x%08x+%d beyond RAM end: %w", addr, size, ErrAddressTranslation)
	}
	return r.data[off : off+uint64(size)], nil
}
