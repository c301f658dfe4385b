//go:build linux

package codegen

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ExecBuffer holds finalized code in an anonymous read+exec mapping.
type ExecBuffer struct {
	mem []byte
}

func NewExecBuffer(code []byte) (*ExecBuffer, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("empty code")
	}
	size := (len(code) + unix.Getpagesize() - 1) &^ (unix.Getpagesize() - 1)
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	copy(mem, code)
	// trap on any fall-off past the emitted code
	for i := len(code); i < size; i++ {
		mem[i] = X86_OP_INT3
	}
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		return nil, fmt.Errorf("mprotect failed: %w", err)
	}
	return &ExecBuffer{mem: mem}, nil
}

func (b *ExecBuffer) Addr() uintptr { return uintptr(unsafe.Pointer(&b.mem[0])) }

// Bytes exposes the mapping read-only; writing to it faults.
func (b *ExecBuffer) Bytes() []byte { return b.mem }

func (b *ExecBuffer) Close() error {
	if b.mem == nil {
		return nil
	}
	err := unix.Munmap(b.mem)
	b.mem = nil
	return err
}
