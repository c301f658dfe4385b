// Package config collects the process-wide settings of the emulator core
// from the environment.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xyproto/env/v2"
)

const (
	DefaultRAMBase = 0x08000000
	DefaultRAMSize = 0x02000000
)

type Config struct {
	LogLevel     string
	LogModules   string
	ShowDisasm   bool
	RAMBase      uint32
	RAMSize      int
	OTLPEndpoint string
}

// Load reads PSP_* variables; unset variables fall back to defaults.
func Load() (Config, error) {
	cfg := Config{
		LogLevel:     env.Str("PSP_LOG_LEVEL", "info"),
		LogModules:   env.Str("PSP_LOG_MODULES"),
		ShowDisasm:   env.Bool("PSP_SHOW_DISASM"),
		RAMSize:      env.Int("PSP_RAM_SIZE", DefaultRAMSize),
		OTLPEndpoint: env.Str("PSP_OTLP_ENDPOINT"),
		RAMBase:      DefaultRAMBase,
	}
	if s := env.Str("PSP_RAM_BASE"); s != "" {
		base, err := ParseUint32(s)
		if err != nil {
			return cfg, fmt.Errorf("PSP_RAM_BASE: %w", err)
		}
		cfg.RAMBase = base
	}
	if cfg.RAMSize <= 0 || cfg.RAMSize%4 != 0 {
		return cfg, fmt.Errorf("PSP_RAM_SIZE must be a positive multiple of 4, got %d", cfg.RAMSize)
	}
	return cfg, nil
}

// ParseUint32 accepts decimal or 0x-prefixed hexadecimal.
func ParseUint32(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		// bare hex words are common when pasting instruction dumps
		if v2, err2 := strconv.ParseUint(s, 16, 32); err2 == nil {
			return uint32(v2), nil
		}
		return 0, err
	}
	return uint32(v), nil
}
