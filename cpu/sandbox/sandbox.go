//go:build unicorn

// Package sandbox runs translated VFPU blocks inside a unicorn x86-64
// instance. Fallback calls land on a thunk page whose hook runs the
// interpreter entry point against the synchronized context and RAM.
package sandbox

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/noxa-emu/psp/cpu"
	"github.com/noxa-emu/psp/cpu/vfpu"
	"github.com/noxa-emu/psp/log"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
)

const (
	pageSize    = 0x1000
	codeBase    = 0x10000000
	codeSize    = 0x100000
	ctxBase     = 0x30000000
	stackBase   = 0x40000000
	stackSize   = 0x10000
	stackTop    = stackBase + stackSize
	ramHostBase = 0x50000000
	exitAddr    = 0x60000000
)

func alignUp(n uint64) uint64 { return (n + pageSize - 1) &^ (pageSize - 1) }

// Sandbox owns one unicorn instance with the context block, guest RAM, the
// thunk page and a stack mapped.
type Sandbox struct {
	mu     uc.Unicorn
	ram    *cpu.RAM
	thunks vfpu.ThunkTable
	ctx    *cpu.Context
	err    error
}

func New(ram *cpu.RAM) (*Sandbox, error) {
	mu, err := uc.NewUnicorn(uc.ARCH_X86, uc.MODE_64)
	if err != nil {
		return nil, fmt.Errorf("create unicorn: %w", err)
	}
	s := &Sandbox{mu: mu, ram: ram, thunks: vfpu.ThunkTable{Base: vfpu.DefaultThunkBase}}

	thunkSize := alignUp(uint64(s.thunks.Size()))
	regions := []struct {
		name string
		base uint64
		size uint64
		prot int
	}{
		{"code", codeBase, codeSize, uc.PROT_ALL},
		{"thunks", s.thunks.Base, thunkSize, uc.PROT_ALL},
		{"context", ctxBase, alignUp(cpu.ContextSize), uc.PROT_READ | uc.PROT_WRITE},
		{"stack", stackBase, stackSize, uc.PROT_READ | uc.PROT_WRITE},
		{"guest RAM", ramHostBase, alignUp(uint64(ram.Size())), uc.PROT_READ | uc.PROT_WRITE},
		{"exit", exitAddr, pageSize, uc.PROT_ALL},
	}
	for _, r := range regions {
		if err := mu.MemMap(r.base, r.size); err != nil {
			mu.Close()
			return nil, fmt.Errorf("map %s: %w", r.name, err)
		}
		if err := mu.MemProtect(r.base, r.size, r.prot); err != nil {
			mu.Close()
			return nil, fmt.Errorf("protect %s: %w", r.name, err)
		}
	}

	// every thunk is a bare ret; the hook does the work before it executes
	rets := make([]byte, thunkSize)
	for i := range rets {
		rets[i] = 0xC3
	}
	if err := mu.MemWrite(s.thunks.Base, rets); err != nil {
		mu.Close()
		return nil, fmt.Errorf("write thunks: %w", err)
	}

	if _, err := mu.HookAdd(uc.HOOK_CODE, s.onThunk, s.thunks.Base, s.thunks.Base+thunkSize-1); err != nil {
		mu.Close()
		return nil, fmt.Errorf("add thunk hook: %w", err)
	}
	if _, err := mu.HookAdd(uc.HOOK_MEM_READ_UNMAPPED|uc.HOOK_MEM_WRITE_UNMAPPED|uc.HOOK_MEM_FETCH_UNMAPPED,
		func(mu uc.Unicorn, access int, addr uint64, size int, value int64) bool {
			log.Warn(log.VfpuSandbox, "unmapped access", "access", access, "addr", fmt.Sprintf("0x%x", addr), "size", size)
			return false
		}, 1, 0); err != nil {
		mu.Close()
		return nil, fmt.Errorf("add unmapped hook: %w", err)
	}
	return s, nil
}

// Lookup is the address lookup matching the sandbox's guest RAM mapping.
func (s *Sandbox) Lookup() vfpu.FlatLookup {
	return vfpu.FlatLookup{Base: s.ram.Base(), Size: uint32(s.ram.Size())}
}

func (s *Sandbox) Thunks() vfpu.ThunkTable { return s.thunks }

func (s *Sandbox) Close() error { return s.mu.Close() }

// Run executes blk against ctx and the sandbox RAM. Both are copied in before
// and out after the run. A block leaving through a fault stub returns
// cpu.ErrAddressTranslation with ctx.PC at the faulting instruction.
func (s *Sandbox) Run(ctx *cpu.Context, blk *vfpu.Block) error {
	if uint64(len(blk.Code)) > codeSize {
		return fmt.Errorf("block of %d bytes exceeds the code region", len(blk.Code))
	}
	if err := s.mu.MemWrite(codeBase, blk.Code); err != nil {
		return fmt.Errorf("write code: %w", err)
	}
	ctx.Fault = 0
	if err := s.pushState(ctx); err != nil {
		return err
	}

	ret := make([]byte, 8)
	binary.LittleEndian.PutUint64(ret, exitAddr)
	if err := s.mu.MemWrite(stackTop-8, ret); err != nil {
		return fmt.Errorf("write return address: %w", err)
	}
	for _, r := range []struct {
		reg int
		val uint64
	}{
		{uc.X86_REG_RSP, stackTop - 8},
		{uc.X86_REG_R12, ctxBase},
		{uc.X86_REG_R13, ramHostBase},
	} {
		if err := s.mu.RegWrite(r.reg, r.val); err != nil {
			return fmt.Errorf("set register %d: %w", r.reg, err)
		}
	}

	s.ctx, s.err = ctx, nil
	log.Debug(log.VfpuSandbox, "run block", "start", fmt.Sprintf("0x%08x", blk.Start), "bytes", len(blk.Code))
	if err := s.mu.Start(codeBase, exitAddr); err != nil {
		return fmt.Errorf("emulation failed: %w", errors.Join(err, s.err))
	}
	if s.err != nil {
		return s.err
	}
	if err := s.pullState(ctx); err != nil {
		return err
	}
	if ctx.Fault != 0 {
		return fmt.Errorf("load/store at 0x%08x: %w", ctx.PC, cpu.ErrAddressTranslation)
	}
	return nil
}

func (s *Sandbox) pushState(ctx *cpu.Context) error {
	block, err := ctx.MarshalBinary()
	if err != nil {
		return err
	}
	if err := s.mu.MemWrite(ctxBase, block); err != nil {
		return fmt.Errorf("write context: %w", err)
	}
	if err := s.mu.MemWrite(ramHostBase, s.ram.Bytes()); err != nil {
		return fmt.Errorf("write guest RAM: %w", err)
	}
	return nil
}

func (s *Sandbox) pullState(ctx *cpu.Context) error {
	block, err := s.mu.MemRead(ctxBase, cpu.ContextSize)
	if err != nil {
		return fmt.Errorf("read context: %w", err)
	}
	if err := ctx.UnmarshalBinary(block); err != nil {
		return err
	}
	mem, err := s.mu.MemRead(ramHostBase, uint64(s.ram.Size()))
	if err != nil {
		return fmt.Errorf("read guest RAM: %w", err)
	}
	copy(s.ram.Bytes(), mem)
	return nil
}

// onThunk runs before the ret of a thunk: the stack holds the return
// address, the context pointer, the instruction address and the word.
func (s *Sandbox) onThunk(mu uc.Unicorn, addr uint64, size uint32) {
	fail := func(err error) {
		s.err = err
		log.Error(log.VfpuSandbox, "thunk failed", "addr", fmt.Sprintf("0x%x", addr), "err", err)
		_ = mu.Stop()
	}
	defer func() {
		if r := recover(); r != nil {
			fail(fmt.Errorf("thunk panic: %v", r))
		}
	}()

	d, ok := s.thunks.Resolve(addr)
	if !ok {
		fail(fmt.Errorf("call into thunk page at unaligned 0x%x", addr))
		return
	}
	rsp, err := mu.RegRead(uc.X86_REG_RSP)
	if err != nil {
		fail(err)
		return
	}
	frame, err := mu.MemRead(rsp, 32)
	if err != nil {
		fail(fmt.Errorf("read call frame: %w", err))
		return
	}
	ctxPtr := binary.LittleEndian.Uint64(frame[8:])
	address := uint32(binary.LittleEndian.Uint64(frame[16:]))
	code := uint32(binary.LittleEndian.Uint64(frame[24:]))
	if ctxPtr != ctxBase {
		fail(fmt.Errorf("thunk called with context 0x%x", ctxPtr))
		return
	}

	if err := s.pullState(s.ctx); err != nil {
		fail(err)
		return
	}
	log.Trace(log.VfpuSandbox, "thunk", "inst", d.Name, "address", fmt.Sprintf("0x%08x", address), "word", fmt.Sprintf("%08x", code))
	if err := d.Exec(s.ctx, s.ram, address, code); err != nil {
		fail(err)
		return
	}
	if err := s.pushState(s.ctx); err != nil {
		fail(err)
	}
}
