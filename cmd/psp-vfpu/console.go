package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/dop251/goja"
	"github.com/noxa-emu/psp/cpu"
	"github.com/noxa-emu/psp/cpu/vfpu"
	"github.com/spf13/cobra"
)

// console wraps a goja runtime exposing the decoder, translator and
// interpreter. Words are passed as numbers or hex strings.
type console struct {
	vm   *goja.Runtime
	cmd  *cobra.Command
	opts *options
	ctx  *cpu.Context
	ram  *cpu.RAM
}

func newConsole(cmd *cobra.Command, opts *options) (*console, error) {
	c := &console{
		vm:   goja.New(),
		cmd:  cmd,
		opts: opts,
		ctx:  cpu.NewContext(),
		ram:  cpu.NewRAM(opts.cfg.RAMBase, opts.cfg.RAMSize),
	}
	bindings := map[string]any{
		"decode":    c.decode,
		"translate": c.translate,
		"step":      c.step,
		"half":      func(h uint16) float32 { return vfpu.Float16ToFloat32(h) },
		"ctx":       func() *cpu.Context { return c.ctx },
		"gpr":       func(i int) uint32 { return c.ctx.GPR[i&31] },
		"vreg":      func(i int) uint32 { return c.ctx.Vfpu[i&127] },
		"reset": func() {
			c.ctx = cpu.NewContext()
			c.ram = cpu.NewRAM(opts.cfg.RAMBase, opts.cfg.RAMSize)
		},
		"print": func(args ...goja.Value) {
			for _, arg := range args {
				fmt.Fprintln(cmd.OutOrStdout(), arg.Export())
			}
		},
	}
	for name, fn := range bindings {
		if err := c.vm.Set(name, fn); err != nil {
			return nil, fmt.Errorf("bind %s: %w", name, err)
		}
	}
	return c, nil
}

func (c *console) words(args []goja.Value) []uint32 {
	strs := make([]string, len(args))
	for i, a := range args {
		switch v := a.Export().(type) {
		case int64:
			strs[i] = fmt.Sprintf("0x%x", uint32(v))
		case float64:
			strs[i] = fmt.Sprintf("0x%x", uint32(v))
		default:
			strs[i] = a.String()
		}
	}
	words, err := parseWords(strs)
	if err != nil {
		panic(c.vm.NewGoError(err))
	}
	return words
}

func (c *console) decode(args ...goja.Value) string {
	start, err := c.opts.startAddress()
	if err != nil {
		panic(c.vm.NewGoError(err))
	}
	var b bytes.Buffer
	writeDecode(&b, start, c.words(args))
	return b.String()
}

func (c *console) translate(args ...goja.Value) string {
	blk, err := translate(c.cmd, c.opts, c.words(args))
	if err != nil {
		panic(c.vm.NewGoError(err))
	}
	var b bytes.Buffer
	writeBlock(&b, blk)
	return b.String()
}

// step interprets the words against the console's context and returns the
// diff of what changed.
func (c *console) step(args ...goja.Value) string {
	start, err := c.opts.startAddress()
	if err != nil {
		panic(c.vm.NewGoError(err))
	}
	before := *c.ctx
	if err := vfpu.Interpret(c.ctx, c.ram, start, c.words(args), 10000); err != nil {
		panic(c.vm.NewGoError(err))
	}
	out, changed, err := cpu.Diff(&before, c.ctx, false)
	if err != nil {
		panic(c.vm.NewGoError(err))
	}
	if !changed {
		return "context unchanged"
	}
	return out
}

func (c *console) eval(line string) (goja.Value, error) {
	return c.vm.RunString(line)
}

func newConsoleCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "JavaScript console over the decoder, translator and interpreter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newConsole(cmd, opts)
			if err != nil {
				return err
			}
			rl, err := readline.NewEx(&readline.Config{
				Prompt:      "vfpu> ",
				HistoryFile: filepath.Join(os.TempDir(), "psp_vfpu_history.txt"),
			})
			if err != nil {
				return fmt.Errorf("start readline: %w", err)
			}
			defer rl.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "functions: decode, translate, step, half, ctx, gpr, vreg, reset, print")
			fmt.Fprintln(out, "e.g. step('df858000', 'd0100405'); type 'exit' to quit.")
			for {
				line, err := rl.Readline()
				if err != nil {
					return nil
				}
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if line == "exit" {
					return nil
				}
				v, err := c.eval(line)
				if err != nil {
					fmt.Fprintln(out, "error:", err)
					continue
				}
				if v != nil && !goja.IsUndefined(v) {
					fmt.Fprintln(out, v)
				}
			}
		},
	}
}
