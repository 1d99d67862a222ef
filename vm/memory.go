package vm

import "encoding/binary"

// PageSize is the size in bytes of one memory page.
const PageSize = 65536

// Memory is a linear memory. It outlives instances, so successive modules
// of one session share their globals through it.
type Memory struct {
	data []byte
}

// NewMemory allocates a zeroed memory of the given number of pages.
func NewMemory(pages int) *Memory {
	return &Memory{data: make([]byte, pages*PageSize)}
}

// Pages returns the size of the memory in pages.
func (m *Memory) Pages() int {
	return len(m.data) / PageSize
}

// Load reads the little-endian word at addr.
func (m *Memory) Load(addr uint32) (int32, error) {
	if uint64(addr)+4 > uint64(len(m.data)) {
		return 0, &Trap{Msg: "out of bounds memory access"}
	}
	return int32(binary.LittleEndian.Uint32(m.data[addr:])), nil
}

// Store writes the little-endian word v at addr.
func (m *Memory) Store(addr uint32, v int32) error {
	if uint64(addr)+4 > uint64(len(m.data)) {
		return &Trap{Msg: "out of bounds memory access"}
	}
	binary.LittleEndian.PutUint32(m.data[addr:], uint32(v))
	return nil
}

// Snapshot copies the memory contents.
func (m *Memory) Snapshot() []byte {
	return append([]byte(nil), m.data...)
}

// Restore replaces the memory contents with a snapshot of the same size.
func (m *Memory) Restore(snap []byte) {
	if len(snap) != len(m.data) {
		m.data = make([]byte, len(snap))
	}
	copy(m.data, snap)
}
