package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/noxa-emu/psp/config"
	"github.com/noxa-emu/psp/cpu"
	"github.com/noxa-emu/psp/cpu/codegen"
	"github.com/noxa-emu/psp/cpu/vfpu"
	log "github.com/noxa-emu/psp/log"
	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"
)

// parseHex reads an instruction word or half pattern. Words are always hex,
// with or without 0x, so 49010002 is not taken for a decimal.
func parseHex(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	return uint32(v), err
}

func parseWords(args []string) ([]uint32, error) {
	words := make([]uint32, 0, len(args))
	for _, a := range args {
		w, err := parseHex(a)
		if err != nil {
			return nil, fmt.Errorf("word %q: %w", a, err)
		}
		words = append(words, w)
	}
	return words, nil
}

func writeDecode(w io.Writer, start uint32, words []uint32) {
	for i, code := range words {
		pc := start + uint32(4*i)
		d, index, ok := vfpu.Lookup(code)
		if !ok {
			fmt.Fprintf(w, "0x%08x: %08x  %s\n", pc, code, vfpu.Disasm(pc+4, code))
			continue
		}
		path := "fallback"
		if d.Native() {
			path = "native"
		}
		fmt.Fprintf(w, "0x%08x: %08x  %-32s ; #%d %s %s\n", pc, code, vfpu.Disasm(pc+4, code), index, d.Attributes, path)
	}
}

func newDecodeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "decode WORD...",
		Short: "Disassemble instruction words",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			words, err := parseWords(args)
			if err != nil {
				return err
			}
			start, err := opts.startAddress()
			if err != nil {
				return err
			}
			writeDecode(cmd.OutOrStdout(), start, words)
			return nil
		},
	}
}

// descriptorTree groups the descriptor table by attribute set, keeping table
// order inside each group.
func descriptorTree() treeprint.Tree {
	tree := treeprint.NewWithRoot("vfpu")
	groups := make(map[vfpu.Attributes]treeprint.Tree)
	for i, d := range vfpu.Descriptors() {
		g, ok := groups[d.Attributes]
		if !ok {
			g = tree.AddBranch(d.Attributes.String())
			groups[d.Attributes] = g
		}
		path := "fallback"
		if d.Native() {
			path = "native"
		}
		g.AddMetaNode(fmt.Sprintf("#%02d", i), fmt.Sprintf("%-6s match=%08x mask=%08x %s", d.Name, d.Match, d.Mask, path))
	}
	return tree
}

func newTableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "table",
		Short: "Print the descriptor table grouped by attributes",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), descriptorTree().String())
		},
	}
}

func translate(cmd *cobra.Command, opts *options, words []uint32) (*vfpu.Block, error) {
	start, err := opts.startAddress()
	if err != nil {
		return nil, err
	}
	bt := vfpu.NewBlockTranslator(vfpu.FlatLookup{Base: opts.cfg.RAMBase, Size: uint32(opts.cfg.RAMSize)}, vfpu.ThunkTable{Base: vfpu.DefaultThunkBase})
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return bt.Translate(ctx, start, words)
}

func writeBlock(w io.Writer, blk *vfpu.Block) {
	fmt.Fprintf(w, "block 0x%08x..0x%08x, %d bytes\n", blk.Start, blk.End(), len(blk.Code))
	exits := make([]string, len(blk.Exits))
	for i, e := range blk.Exits {
		exits[i] = fmt.Sprintf("0x%08x", e)
	}
	fmt.Fprintf(w, "exits: %s\n", strings.Join(exits, " "))
	fmt.Fprint(w, codegen.Disassemble(blk.Code))
}

func newTranslateCmd(opts *options) *cobra.Command {
	var mapCode bool
	cmd := &cobra.Command{
		Use:   "translate WORD...",
		Short: "Translate a block of words to x86-64 and print the disassembly",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			words, err := parseWords(args)
			if err != nil {
				return err
			}
			blk, err := translate(cmd, opts, words)
			if err != nil {
				return err
			}
			writeBlock(cmd.OutOrStdout(), blk)
			if !mapCode {
				return nil
			}
			buf, err := codegen.NewExecBuffer(blk.Code)
			if err != nil {
				return err
			}
			defer buf.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "mapped at 0x%x (%d bytes, r-x)\n", buf.Addr(), len(buf.Bytes()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&mapCode, "map", false, "map the translated code into an executable buffer")
	return cmd
}

// parseAssignments reads "index=value" pairs such as 4=0x08000100.
func parseAssignments(list []string, limit int) (map[int]uint32, error) {
	out := make(map[int]uint32, len(list))
	for _, a := range list {
		k, v, ok := strings.Cut(a, "=")
		if !ok {
			return nil, fmt.Errorf("%q: want index=value", a)
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(k), "r"))
		if err != nil || idx < 0 || idx >= limit {
			return nil, fmt.Errorf("%q: index out of range", a)
		}
		val, err := config.ParseUint32(v)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", a, err)
		}
		out[idx] = val
	}
	return out, nil
}

func newStepCmd(opts *options) *cobra.Command {
	var (
		gprs     []string
		vfprs    []string
		cc       string
		maxSteps int
	)
	cmd := &cobra.Command{
		Use:   "step WORD...",
		Short: "Run words through the interpreter and diff the context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			words, err := parseWords(args)
			if err != nil {
				return err
			}
			start, err := opts.startAddress()
			if err != nil {
				return err
			}
			ctx := cpu.NewContext()
			g, err := parseAssignments(gprs, len(ctx.GPR))
			if err != nil {
				return err
			}
			for i, v := range g {
				ctx.GPR[i] = v
			}
			vr, err := parseAssignments(vfprs, len(ctx.Vfpu))
			if err != nil {
				return err
			}
			for i, v := range vr {
				ctx.Vfpu[i] = v
			}
			if cc != "" {
				if ctx.VfpuCC, err = config.ParseUint32(cc); err != nil {
					return fmt.Errorf("cc: %w", err)
				}
			}

			before := *ctx
			ram := cpu.NewRAM(opts.cfg.RAMBase, opts.cfg.RAMSize)
			log.Debug(log.CliModule, "interpret", "start", fmt.Sprintf("0x%08x", start), "words", len(words))
			if err := vfpu.Interpret(ctx, ram, start, words, maxSteps); err != nil {
				return err
			}
			out, changed, err := cpu.Diff(&before, ctx, true)
			if err != nil {
				return err
			}
			if !changed {
				fmt.Fprintln(cmd.OutOrStdout(), "context unchanged")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&gprs, "gpr", nil, "initial GPR values, e.g. --gpr 4=0x08000100")
	f.StringSliceVar(&vfprs, "vfpr", nil, "initial VFPU register bits, e.g. --vfpr 5=0x3f800000")
	f.StringVar(&cc, "cc", "", "initial VFPU condition bits")
	f.IntVar(&maxSteps, "max-steps", 10000, "step bound for looping blocks (0 disables)")
	return cmd
}

func newHalfCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "half HEX...",
		Short: "Convert half-precision bit patterns to float32",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, a := range args {
				v, err := parseHex(a)
				if err != nil {
					return fmt.Errorf("half %q: %w", a, err)
				}
				if v > 0xFFFF {
					return fmt.Errorf("%q does not fit in 16 bits", a)
				}
				f := vfpu.Float16ToFloat32(uint16(v))
				fmt.Fprintf(cmd.OutOrStdout(), "0x%04x -> %g (0x%08x)\n", v, f, math.Float32bits(f))
			}
			return nil
		},
	}
}
