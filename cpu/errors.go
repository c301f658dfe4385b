package cpu

import (
	"errors"
	"strings"
)

// Translation and execution errors
var (
	ErrInvalidInstruction      = errors.New("V1|InvalidInstruction: No descriptor matches the instruction word.")
	ErrConsistencyFault        = errors.New("V2|ConsistencyFault: Emission pass disagrees with the discovery pass over the same stream.")
	ErrUnsupportedSubOperation = errors.New("V3|UnsupportedSubOperation: Arithmetic sub-opcode is not recognized.")
	ErrAddressTranslation      = errors.New("V4|AddressTranslation: Guest address cannot be resolved to host memory.")
	ErrMissingDelaySlot        = errors.New("V5|MissingDelaySlot: Branch is the last word of the block.")
	ErrBranchInDelaySlot       = errors.New("V6|BranchInDelaySlot: Delay slot holds another branch.")
)

var sentinels = []error{
	ErrInvalidInstruction,
	ErrConsistencyFault,
	ErrUnsupportedSubOperation,
	ErrAddressTranslation,
	ErrMissingDelaySlot,
	ErrBranchInDelaySlot,
}

// sentinelText returns the text of the sentinel err wraps, or err's own text.
func sentinelText(err error) string {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return err.Error()
}

// ErrorName extracts the error name, e.g. "AddressTranslation".
func ErrorName(err error) string {
	if err == nil {
		return "No Error"
	}
	errStr := sentinelText(err)
	if !strings.Contains(errStr, "|") || !strings.Contains(errStr, ":") {
		return errStr
	}
	parts := strings.SplitN(errStr, "|", 2)
	nameParts := strings.SplitN(parts[1], ":", 2)
	return strings.TrimSpace(nameParts[0])
}

// ErrorCode extracts the error code, e.g. "V4".
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	errStr := sentinelText(err)
	if !strings.Contains(errStr, "|") {
		return ""
	}
	return strings.TrimSpace(strings.SplitN(errStr, "|", 2)[0])
}
