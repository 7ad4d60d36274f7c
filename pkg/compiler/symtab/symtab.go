// Package symtab maps variable names to frame slots during lowering.
//
// A Scope is the frame image of one activation: the global scope or a single
// function body. Slots are handed out in first-declaration order starting at 0,
// and there is no lookup fallback to an enclosing scope.
package symtab

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/zurustar/cfgvm/pkg/opcode"
)

// DefaultCapacity matches the default flat memory size of the VM.
const DefaultCapacity = 1000

// ErrCapacity is returned when a declaration would not fit in memory.
var ErrCapacity = errors.New("memory capacity exceeded")

// Scope is a single open naming scope.
type Scope struct {
	name     string
	capacity int
	locals   []opcode.Local
	index    map[string]opcode.Slot
}

// New creates an empty scope. name is only used for diagnostics
// ("global" or the function name). A capacity <= 0 selects DefaultCapacity.
func New(name string, capacity int) *Scope {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Scope{
		name:     name,
		capacity: capacity,
		index:    make(map[string]opcode.Slot),
	}
}

// Name returns the scope name.
func (s *Scope) Name() string {
	return s.name
}

// Declare allocates a slot for name with the given initial value.
// Declaring a name that already exists returns its slot and leaves the
// initial value untouched.
func (s *Scope) Declare(name string, init int64) (opcode.Slot, error) {
	if slot, ok := s.index[name]; ok {
		return slot, nil
	}
	if len(s.locals) >= s.capacity {
		return opcode.NoSlot, fmt.Errorf("%w: scope %s needs more than %d cells", ErrCapacity, s.name, s.capacity)
	}
	slot := opcode.Slot(len(s.locals))
	s.locals = append(s.locals, opcode.Local{Name: name, Init: init})
	s.index[name] = slot
	return slot, nil
}

// DeclareLiteral declares a numeric literal as a pseudo-variable named by its
// text, so every use of the same text shares one slot.
func (s *Scope) DeclareLiteral(text string) (opcode.Slot, error) {
	value, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return opcode.NoSlot, fmt.Errorf("invalid integer literal %q: %w", text, err)
	}
	return s.Declare(text, value)
}

// Lookup returns the slot of name in this scope.
func (s *Scope) Lookup(name string) (opcode.Slot, bool) {
	slot, ok := s.index[name]
	return slot, ok
}

// Len returns the number of allocated slots (the frame size).
func (s *Scope) Len() int {
	return len(s.locals)
}

// Locals returns a copy of the frame image in slot order.
func (s *Scope) Locals() []opcode.Local {
	out := make([]opcode.Local, len(s.locals))
	copy(out, s.locals)
	return out
}
