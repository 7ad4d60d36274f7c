// Package dump renders lowered programs for inspection: as YAML for
// tooling and as a text listing for debug logs.
package dump

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zurustar/cfgvm/pkg/opcode"
)

// Document is the YAML form of an opcode.Program.
type Document struct {
	Entry     int        `yaml:"entry"`
	Globals   []Cell     `yaml:"globals"`
	Functions []Function `yaml:"functions,omitempty"`
	Nodes     []Node     `yaml:"nodes"`
}

// Cell is one slot of a frame image.
type Cell struct {
	Slot int    `yaml:"slot"`
	Name string `yaml:"name"`
	Init int64  `yaml:"init"`
}

// Function describes one entry of the function table.
type Function struct {
	Name   string `yaml:"name"`
	Params int    `yaml:"params"`
	Entry  int    `yaml:"entry"`
	Line   int    `yaml:"line"`
	Locals []Cell `yaml:"locals"`
}

// Node is one instruction. Fields that do not apply to Kind are omitted.
type Node struct {
	ID     int    `yaml:"id"`
	Kind   string `yaml:"kind"`
	Line   int    `yaml:"line"`
	Next   int    `yaml:"next"`
	Target *int   `yaml:"target,omitempty"`
	Op     string `yaml:"op,omitempty"`
	Dest   *int   `yaml:"dest,omitempty"`
	Src    []int  `yaml:"src,flow,omitempty"`
	Func   string `yaml:"func,omitempty"`
	Args   []int  `yaml:"args,flow,omitempty"`
	Result *int   `yaml:"result,omitempty"`
}

// Build converts prog into its document form.
func Build(prog *opcode.Program) *Document {
	doc := &Document{
		Entry:   int(prog.Entry),
		Globals: cells(prog.Globals),
	}
	for _, fn := range prog.Functions {
		doc.Functions = append(doc.Functions, Function{
			Name:   fn.Name,
			Params: fn.Params,
			Entry:  int(fn.Entry),
			Line:   fn.Line,
			Locals: cells(fn.Locals),
		})
	}
	prog.Graph.Each(func(id opcode.NodeID, n *opcode.Node) {
		doc.Nodes = append(doc.Nodes, node(prog, id, n))
	})
	return doc
}

// Write encodes prog as YAML to w.
func Write(w io.Writer, prog *opcode.Program) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Build(prog)); err != nil {
		return fmt.Errorf("dump: marshal: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("dump: encoder close: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("dump: write: %w", err)
	}
	return nil
}

// Read decodes a document previously produced by Write.
func Read(r io.Reader) (*Document, error) {
	var doc Document
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("dump: parse: %w", err)
	}
	return &doc, nil
}

func cells(locals []opcode.Local) []Cell {
	out := make([]Cell, len(locals))
	for i, l := range locals {
		out[i] = Cell{Slot: i, Name: l.Name, Init: l.Init}
	}
	return out
}

func node(prog *opcode.Program, id opcode.NodeID, n *opcode.Node) Node {
	out := Node{ID: int(id), Line: n.Line, Next: int(n.Next)}
	if n.Inst == nil {
		out.Kind = "invalid"
		return out
	}
	out.Kind = string(n.Inst.Kind())

	switch inst := n.Inst.(type) {
	case *opcode.Print:
		out.Src = []int{int(inst.Slot)}
	case *opcode.Assign:
		out.Dest = intPtr(int(inst.Dest))
		out.Src = []int{int(inst.Src1)}
		if inst.Op != opcode.OpNone {
			out.Op = inst.Op.String()
			out.Src = append(out.Src, int(inst.Src2))
		}
	case *opcode.Jump:
		out.Target = intPtr(int(inst.Target))
	case *opcode.CondJump:
		out.Op = inst.Op.String()
		out.Src = []int{int(inst.Src1), int(inst.Src2)}
		out.Target = intPtr(int(inst.Target))
	case *opcode.Call:
		out.Func = funcName(prog, inst.Func)
		out.Args = make([]int, len(inst.Args))
		for i, a := range inst.Args {
			out.Args[i] = int(a)
		}
		if inst.Result != opcode.NoSlot {
			out.Result = intPtr(int(inst.Result))
		}
	}
	return out
}

func intPtr(v int) *int {
	return &v
}

func funcName(prog *opcode.Program, id opcode.FuncID) string {
	if fn := prog.Function(id); fn != nil {
		return fn.Name
	}
	return fmt.Sprintf("#%d", id)
}

// Disassemble renders prog as a text listing, one node per line:
//
//	4  L3  assign  [0] = [1] + [2]  -> 5
func Disassemble(prog *opcode.Program) string {
	var b strings.Builder

	fmt.Fprintf(&b, "entry %s\n", ref(prog.Entry))
	fmt.Fprintf(&b, "globals %s\n", frame(prog.Globals))
	for _, fn := range prog.Functions {
		fmt.Fprintf(&b, "func %s/%d entry %s frame %s\n", fn.Name, fn.Params, ref(fn.Entry), frame(fn.Locals))
	}

	prog.Graph.Each(func(id opcode.NodeID, n *opcode.Node) {
		kind := "invalid"
		if n.Inst != nil {
			kind = string(n.Inst.Kind())
		}
		fmt.Fprintf(&b, "%4d  L%-3d %-7s %-24s -> %s\n", id, n.Line, kind, operands(prog, n.Inst), ref(n.Next))
	})
	return b.String()
}

func operands(prog *opcode.Program, inst opcode.Instruction) string {
	switch inst := inst.(type) {
	case *opcode.Print:
		return slot(inst.Slot)
	case *opcode.Assign:
		if inst.Op == opcode.OpNone {
			return fmt.Sprintf("%s = %s", slot(inst.Dest), slot(inst.Src1))
		}
		return fmt.Sprintf("%s = %s %s %s", slot(inst.Dest), slot(inst.Src1), inst.Op, slot(inst.Src2))
	case *opcode.Jump:
		return "goto " + ref(inst.Target)
	case *opcode.CondJump:
		return fmt.Sprintf("%s %s %s else %s", slot(inst.Src1), inst.Op, slot(inst.Src2), ref(inst.Target))
	case *opcode.Call:
		args := make([]string, len(inst.Args))
		for i, a := range inst.Args {
			args[i] = slot(a)
		}
		call := fmt.Sprintf("%s(%s)", funcName(prog, inst.Func), strings.Join(args, ", "))
		if inst.Result != opcode.NoSlot {
			return fmt.Sprintf("%s = %s", slot(inst.Result), call)
		}
		return call
	}
	return ""
}

func slot(s opcode.Slot) string {
	return fmt.Sprintf("[%d]", s)
}

func ref(id opcode.NodeID) string {
	if id == opcode.NoNode {
		return "-"
	}
	return fmt.Sprintf("%d", id)
}

func frame(locals []opcode.Local) string {
	parts := make([]string, len(locals))
	for i, l := range locals {
		parts[i] = fmt.Sprintf("%s=%d", l.Name, l.Init)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
