package vm

import "fmt"

// DefaultMemoryCapacity is the number of cells a VM allocates when no
// capacity is configured.
const DefaultMemoryCapacity = 1000

// Memory is the flat cell store shared by every activation.
// Frames are laid out contiguously; slots are resolved against the
// current frame base by the VM, so Memory itself only knows absolute
// addresses.
type Memory struct {
	cells []int64
}

// NewMemory creates a zeroed memory of the given capacity.
func NewMemory(capacity int) *Memory {
	if capacity < 0 {
		capacity = 0
	}
	return &Memory{cells: make([]int64, capacity)}
}

// Capacity returns the number of cells.
func (m *Memory) Capacity() int {
	return len(m.cells)
}

// Get returns the value at an absolute address.
//
// Parameters:
//   - addr: The absolute cell address
//
// Returns:
//   - int64: The cell value
//   - error: A non-nil error if addr is outside the store
func (m *Memory) Get(addr int) (int64, error) {
	if addr < 0 || addr >= len(m.cells) {
		return 0, fmt.Errorf("address %d out of range (capacity %d)", addr, len(m.cells))
	}
	return m.cells[addr], nil
}

// Set stores a value at an absolute address.
func (m *Memory) Set(addr int, value int64) error {
	if addr < 0 || addr >= len(m.cells) {
		return fmt.Errorf("address %d out of range (capacity %d)", addr, len(m.cells))
	}
	m.cells[addr] = value
	return nil
}

// Clear zeroes the cells in [from, to).
func (m *Memory) Clear(from, to int) {
	if from < 0 {
		from = 0
	}
	if to > len(m.cells) {
		to = len(m.cells)
	}
	for i := from; i < to; i++ {
		m.cells[i] = 0
	}
}

// Snapshot returns a copy of all cells.
func (m *Memory) Snapshot() []int64 {
	out := make([]int64, len(m.cells))
	copy(out, m.cells)
	return out
}
