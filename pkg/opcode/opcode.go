// Package opcode defines the instruction graph executed by the cfgvm virtual machine.
// This package is the foundation that both the compiler and VM depend on.
// The compiler builds a Graph of instruction nodes, and the VM walks it.
package opcode

import "fmt"

// Slot is an offset into flat memory relative to the current frame base.
type Slot int

// NoSlot marks an absent slot (e.g. the result of a call used as a statement).
const NoSlot Slot = -1

// Kind identifies an instruction variant.
type Kind string

// Instruction kinds.
const (
	KindNoop     Kind = "noop"
	KindPrint    Kind = "print"
	KindAssign   Kind = "assign"
	KindJump     Kind = "jump"
	KindCondJump Kind = "cjump"
	KindCall     Kind = "call"
)

// ArithOp is the operator of an Assign instruction.
type ArithOp int

const (
	OpNone ArithOp = iota
	OpPlus
	OpMinus
	OpMult
	OpDiv
)

func (op ArithOp) String() string {
	switch op {
	case OpNone:
		return ""
	case OpPlus:
		return "+"
	case OpMinus:
		return "-"
	case OpMult:
		return "*"
	case OpDiv:
		return "/"
	default:
		return fmt.Sprintf("ArithOp(%d)", int(op))
	}
}

// RelOp is the relation tested by a CondJump instruction.
type RelOp int

const (
	CondGreater RelOp = iota
	CondLess
	CondNotEqual
)

func (op RelOp) String() string {
	switch op {
	case CondGreater:
		return ">"
	case CondLess:
		return "<"
	case CondNotEqual:
		return "!="
	default:
		return fmt.Sprintf("RelOp(%d)", int(op))
	}
}

// Holds reports whether a op b is true.
func (op RelOp) Holds(a, b int64) bool {
	switch op {
	case CondGreater:
		return a > b
	case CondLess:
		return a < b
	case CondNotEqual:
		return a != b
	}
	return false
}

// Instruction is the payload of a graph node. The set of implementations is
// closed: Noop, Print, Assign, Jump, CondJump and Call.
type Instruction interface {
	Kind() Kind
	instruction()
}

// Noop is a pure control-flow marker (merge or exit point).
type Noop struct{}

// Print writes the integer stored at Slot.
type Print struct {
	Slot Slot
}

// Assign stores Src1 (Op == OpNone) or Src1 Op Src2 into Dest.
type Assign struct {
	Dest Slot
	Op   ArithOp
	Src1 Slot
	Src2 Slot // ignored when Op == OpNone
}

// Jump transfers control to Target unconditionally.
type Jump struct {
	Target NodeID
}

// CondJump falls through to the node's Next when Src1 Op Src2 holds,
// and transfers control to Target otherwise.
type CondJump struct {
	Op     RelOp
	Src1   Slot
	Src2   Slot
	Target NodeID
}

// Call activates Func with Args (caller slots) bound positionally to the
// callee's parameter slots. On return the callee's result cell is copied to
// the caller's Result slot unless Result is NoSlot.
type Call struct {
	Func   FuncID
	Args   []Slot
	Result Slot
}

func (*Noop) Kind() Kind     { return KindNoop }
func (*Print) Kind() Kind    { return KindPrint }
func (*Assign) Kind() Kind   { return KindAssign }
func (*Jump) Kind() Kind     { return KindJump }
func (*CondJump) Kind() Kind { return KindCondJump }
func (*Call) Kind() Kind     { return KindCall }

func (*Noop) instruction()     {}
func (*Print) instruction()    {}
func (*Assign) instruction()   {}
func (*Jump) instruction()     {}
func (*CondJump) instruction() {}
func (*Call) instruction()     {}
