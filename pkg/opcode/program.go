package opcode

// FuncID indexes Program.Functions.
type FuncID int

// Local is one cell of a frame image: its name and initial value.
type Local struct {
	Name string
	Init int64
}

// ResultSlot is the callee slot holding a function's result. It is named
// after the function, so a body "returns" by assigning to its own name.
const ResultSlot Slot = 0

// Function is a user-defined function. Its frame image starts with the
// result cell, then Params parameters, then header locals and literals.
type Function struct {
	Name   string
	Params int
	Locals []Local
	Entry  NodeID
	Line   int
}

// ParamSlot returns the callee slot of the i-th (0-based) parameter.
func (f *Function) ParamSlot(i int) Slot {
	return Slot(1 + i)
}

// FrameSize returns the number of cells one activation occupies,
// excluding the dynamic link.
func (f *Function) FrameSize() int {
	return len(f.Locals)
}

// Program is the output of lowering: the graph, its root, the global frame
// image and the function table in declaration order.
type Program struct {
	Graph     *Graph
	Entry     NodeID
	Globals   []Local
	Functions []*Function

	funcIndex map[string]FuncID
}

// NewProgram creates an empty program around a fresh graph.
func NewProgram() *Program {
	return &Program{
		Graph:     NewGraph(),
		Entry:     NoNode,
		funcIndex: make(map[string]FuncID),
	}
}

// AddFunction registers fn and returns its id. Redefinition is rejected by
// returning false.
func (p *Program) AddFunction(fn *Function) (FuncID, bool) {
	if _, exists := p.funcIndex[fn.Name]; exists {
		return 0, false
	}
	id := FuncID(len(p.Functions))
	p.Functions = append(p.Functions, fn)
	p.funcIndex[fn.Name] = id
	return id, true
}

// LookupFunction finds a function by name.
func (p *Program) LookupFunction(name string) (FuncID, *Function, bool) {
	id, ok := p.funcIndex[name]
	if !ok {
		return 0, nil, false
	}
	return id, p.Functions[id], true
}

// Function returns the function with the given id, or nil.
func (p *Program) Function(id FuncID) *Function {
	if id < 0 || int(id) >= len(p.Functions) {
		return nil
	}
	return p.Functions[id]
}
