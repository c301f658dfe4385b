//go:build !linux

package codegen

import (
	"fmt"
	"runtime"
)

type ExecBuffer struct{}

func NewExecBuffer(code []byte) (*ExecBuffer, error) {
	_ = code
	return nil, fmt.Errorf(
		"executable buffers are not supported on this platform (GOOS=%s, GOARCH=%s). "+
			"Use the sandbox path instead.",
		runtime.GOOS, runtime.GOARCH,
	)
}

func (b *ExecBuffer) Addr() uintptr { return 0 }
func (b *ExecBuffer) Bytes() []byte { return nil }
func (b *ExecBuffer) Close() error  { return nil }
