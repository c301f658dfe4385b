// psp-vfpu inspects, translates and interprets VFPU instruction words.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/noxa-emu/psp/config"
	"github.com/noxa-emu/psp/cpu"
	"github.com/noxa-emu/psp/cpu/codegen"
	log "github.com/noxa-emu/psp/log"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

type options struct {
	cfg        config.Config
	logLevel   string
	logModules string
	showDisasm bool
	start      string
}

func (o *options) startAddress() (uint32, error) {
	if o.start == "" {
		return defaultStart, nil
	}
	return config.ParseUint32(o.start)
}

const defaultStart = 0x08800000

func newRootCmd() *cobra.Command {
	opts := &options{}
	var shutdown func(context.Context) error

	rootCmd := &cobra.Command{
		Use:           "psp-vfpu",
		Short:         "VFPU decoder, translator and reference interpreter",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			// flags win over the environment
			if !cmd.Flags().Changed("log-level") {
				opts.logLevel = cfg.LogLevel
			}
			if !cmd.Flags().Changed("log-modules") {
				opts.logModules = cfg.LogModules
			}
			if !cmd.Flags().Changed("show-disasm") {
				opts.showDisasm = cfg.ShowDisasm
			}
			opts.cfg = cfg

			log.InitLogger(opts.logLevel)
			log.EnableModules(opts.logModules)
			codegen.SetShowDisassembly(opts.showDisasm)

			shutdown, err = setupTracing(cmd.Context(), cfg.OTLPEndpoint)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(cmd.Context())
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.StringVar(&opts.logModules, "log-modules", "", "comma separated modules to enable (vfpu_gen,vfpu_exec,vfpu_sandbox,cli)")
	flags.BoolVar(&opts.showDisasm, "show-disasm", false, "log the disassembly of every translated block")
	flags.StringVar(&opts.start, "start", "", "guest address of the first word (default 0x08800000)")

	rootCmd.AddCommand(
		newDecodeCmd(opts),
		newTableCmd(),
		newTranslateCmd(opts),
		newStepCmd(opts),
		newHalfCmd(),
		newConsoleCmd(opts),
	)
	return rootCmd
}

// formatError prefixes errors wrapping a translation sentinel with its code
// and name.
func formatError(err error) string {
	if code := cpu.ErrorCode(err); code != "" {
		return fmt.Sprintf("Error [%s %s]: %v", code, cpu.ErrorName(err), err)
	}
	return fmt.Sprintf("Error: %v", err)
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
		os.Exit(1)
	}
}
