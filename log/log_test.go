package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"trace":   LevelTrace,
		"DEBUG":   LevelDebug,
		"info":    LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"crit":    LevelCrit,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestModuleGating(t *testing.T) {
	prev := Root()
	defer SetDefault(prev)

	var buf bytes.Buffer
	SetDefault(NewLogger(NewTerminalHandlerWithLevel(&buf, LevelTrace)))

	DisableModule(VfpuGen)
	Debug(VfpuGen, "hidden")
	assert.Empty(t, buf.String())
	assert.False(t, TraceEnabled(VfpuGen))

	EnableModules("vfpu_gen, cli")
	defer DisableModule(VfpuGen)
	defer DisableModule(CliModule)
	assert.True(t, TraceEnabled(VfpuGen))
	Trace(VfpuGen, "decoded", "name", "vscl")
	out := buf.String()
	assert.Contains(t, out, "TRACE")
	assert.Contains(t, out, "module=vfpu_gen")
	assert.Contains(t, out, "name=vscl")

	buf.Reset()
	Info(VfpuExec, "always")
	assert.Contains(t, buf.String(), "always")
}

func TestTraceEnabledFollowsLevel(t *testing.T) {
	prev := Root()
	defer SetDefault(prev)

	var buf bytes.Buffer
	SetDefault(NewLogger(NewTerminalHandlerWithLevel(&buf, LevelInfo)))
	EnableModule(VfpuGen)
	defer DisableModule(VfpuGen)
	assert.False(t, TraceEnabled(VfpuGen))

	SetDefault(NewLogger(NewTerminalHandlerWithLevel(&buf, LevelTrace)))
	assert.True(t, TraceEnabled(VfpuGen))
}
