package codegen

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

var showDisassembly = false

func SetShowDisassembly(show bool) { showDisassembly = show }
func ShowDisassembly() bool        { return showDisassembly }

// Disassemble renders 64-bit code in Intel syntax, one instruction per line
// with its offset and bytes.
func Disassemble(code []byte) string {
	var sb strings.Builder
	offset := 0
	for offset < len(code) {
		inst, err := x86asm.Decode(code[offset:], 64)
		length := inst.Len
		if err != nil {
			sb.WriteString(fmt.Sprintf("0x%04x: db 0x%02x\n", offset, code[offset]))
			offset++
			continue
		}

		var hexBytes []string
		for i := 0; i < length; i++ {
			hexBytes = append(hexBytes, fmt.Sprintf("%02x", code[offset+i]))
		}
		sb.WriteString(fmt.Sprintf(
			"0x%04x: %-16s %s\n",
			offset,
			strings.Join(hexBytes, " "),
			x86asm.IntelSyntax(inst, uint64(offset), nil),
		))
		offset += length
	}
	return sb.String()
}
