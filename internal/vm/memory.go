package vm

const addrMask = MemorySize - 1

// memory is the flat 4 KiB address space. Addresses wrap at MemorySize.
type memory [MemorySize]uint8

func wrapAddr(addr uint16) uint16 {
	return addr & addrMask
}

func (m *memory) read(addr uint16) uint8 {
	return m[wrapAddr(addr)]
}

func (m *memory) write(addr uint16, v uint8) {
	m[wrapAddr(addr)] = v
}
