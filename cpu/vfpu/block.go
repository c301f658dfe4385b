package vfpu

import (
	"context"
	"fmt"
	"sort"

	"github.com/noxa-emu/psp/cpu"
	"github.com/noxa-emu/psp/cpu/codegen"
	"github.com/noxa-emu/psp/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/noxa-emu/psp/cpu/vfpu"

// Block is the native translation of a run of guest words.
type Block struct {
	Start uint32
	Words int
	Code  []byte
	// Exits lists the guest addresses the block can leave to, fall-through
	// first.
	Exits []uint32
	// Labels maps in-block branch targets to code offsets.
	Labels map[uint32]int
}

// End is the guest address after the last word.
func (b *Block) End() uint32 { return b.Start + uint32(4*b.Words) }

// BlockTranslator drives TryEmit over a run of VFPU words. Every exit stores
// the next guest PC into the context and returns; a failed load/store address
// lookup returns with Fault set and PC at the faulting instruction.
type BlockTranslator struct {
	Lookup AddressLookup
	Thunks ThunkTable
	tracer trace.Tracer
}

func NewBlockTranslator(lookup AddressLookup, thunks ThunkTable) *BlockTranslator {
	return &BlockTranslator{
		Lookup: lookup,
		Thunks: thunks,
		tracer: otel.Tracer(tracerName),
	}
}

// Translate translates words located at start.
func (b *BlockTranslator) Translate(ctx context.Context, start uint32, words []uint32) (blk *Block, err error) {
	_, span := b.tracer.Start(ctx, "vfpu.TranslateBlock", trace.WithAttributes(
		attribute.String("start", fmt.Sprintf("0x%08x", start)),
		attribute.Int("words", len(words)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if blk != nil {
			span.SetAttributes(attribute.Int("code_size", len(blk.Code)))
		}
		span.End()
	}()

	gc := NewGenerationContext(b.Lookup, b.Thunks)
	pc := func(i int) uint32 { return start + uint32(4*i) }

	// discovery
	results := make([]GenerationResult, len(words))
	for i, w := range words {
		r := TryEmit(gc, 0, pc(i)+4, w)
		if r == Invalid {
			return nil, fmt.Errorf("word 0x%08x at 0x%08x: %w", w, pc(i), cpu.ErrInvalidInstruction)
		}
		if r.IsBranch() {
			if i+1 >= len(words) {
				return nil, fmt.Errorf("branch at 0x%08x: %w", pc(i), cpu.ErrMissingDelaySlot)
			}
			if d, _, ok := Lookup(words[i+1]); ok && d.Attributes.IsBranch() {
				return nil, fmt.Errorf("branch at 0x%08x: %w", pc(i), cpu.ErrBranchInDelaySlot)
			}
		}
		results[i] = r
	}

	// emission
	g := gc.Generator
	bind := func(addr uint32) {
		if l, ok := gc.BranchLabels[addr]; ok && !l.Bound() {
			g.Bind(l)
		}
	}
	for i := 0; i < len(words); i++ {
		bind(pc(i))
		r := TryEmit(gc, 1, pc(i)+4, words[i])
		if r != results[i] {
			panic(fmt.Errorf("0x%08x emitted as %s after discovery as %s: %w", pc(i), r, results[i], cpu.ErrConsistencyFault))
		}
		if !r.IsBranch() {
			continue
		}
		target := gc.BranchTarget
		i++
		skip := g.NewLabel(fmt.Sprintf("delay%08x", pc(i)))
		if r == BranchAndNullifyDelay {
			g.CmpMemImm8(codegen.CtxReg, cpu.OffsetNullDelay, 0)
			g.Jcc(codegen.CondNE, skip)
		}
		TryEmit(gc, 1, pc(i)+4, words[i])
		g.Bind(skip)
		g.CmpMemImm8(codegen.CtxReg, cpu.OffsetPCValid, 0)
		g.Jcc(codegen.CondNE, target)

		// a jump into the delay slot runs it as an ordinary instruction, so
		// the label gets its own copy without the guard and the PCValid test
		if entry, ok := gc.BranchLabels[pc(i)]; ok && !entry.Bound() {
			next := g.NewLabel(fmt.Sprintf("after%08x", pc(i)))
			g.Jmp(next)
			g.Bind(entry)
			TryEmit(gc, 1, pc(i)+4, words[i])
			g.Bind(next)
		}
	}

	blk = &Block{Start: start, Words: len(words), Labels: make(map[uint32]int)}
	bind(pc(len(words)))
	g.MovMemImm32(codegen.CtxReg, cpu.OffsetPC, pc(len(words)))
	g.Ret()
	blk.Exits = append(blk.Exits, pc(len(words)))

	targets := make([]uint32, 0, len(gc.BranchLabels))
	for addr := range gc.BranchLabels {
		targets = append(targets, addr)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	for _, addr := range targets {
		l := gc.BranchLabels[addr]
		if l.Bound() {
			if addr != pc(len(words)) {
				blk.Labels[addr] = l.Offset()
			}
			continue
		}
		g.Bind(l)
		g.MovMemImm32(codegen.CtxReg, cpu.OffsetPC, addr)
		g.Ret()
		blk.Exits = append(blk.Exits, addr)
	}

	gc.EmitFaultStubs()

	code, err := g.Finalize()
	if err != nil {
		return nil, err
	}
	blk.Code = code

	log.Debug(log.VfpuGen, "translated block", "start", fmt.Sprintf("0x%08x", start),
		"words", len(words), "bytes", len(code), "exits", len(blk.Exits))
	if codegen.ShowDisassembly() {
		log.Info(log.VfpuGen, "block disassembly", "start", fmt.Sprintf("0x%08x", start), "code", "\n"+codegen.Disassemble(code))
	}
	return blk, nil
}
