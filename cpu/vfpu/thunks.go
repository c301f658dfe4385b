package vfpu

// DefaultThunkBase is where the sandbox maps the thunk page.
const DefaultThunkBase uint64 = 0x20000000

// ThunkStride is the distance between consecutive thunk entries.
const ThunkStride = 16

// ThunkTable gives every descriptor a distinct call address. Generated code
// calls the thunk of an instruction without a native emitter; the host routes
// calls landing there to the descriptor's ExecFunc.
type ThunkTable struct {
	Base uint64
}

func (t ThunkTable) Address(index int) uint64 {
	return t.Base + uint64(index)*ThunkStride
}

// Size is the byte length of the table.
func (t ThunkTable) Size() int { return len(descriptors) * ThunkStride }

// Resolve maps a thunk address back to its descriptor.
func (t ThunkTable) Resolve(addr uint64) (*Descriptor, bool) {
	if addr < t.Base || (addr-t.Base)%ThunkStride != 0 {
		return nil, false
	}
	index := int((addr - t.Base) / ThunkStride)
	if index >= len(descriptors) {
		return nil, false
	}
	return &descriptors[index], true
}
