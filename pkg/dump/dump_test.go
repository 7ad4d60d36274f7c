package dump

import (
	"bytes"
	"strings"
	"testing"

	"github.com/zurustar/cfgvm/pkg/compiler/lexer"
	"github.com/zurustar/cfgvm/pkg/compiler/parser"
	"github.com/zurustar/cfgvm/pkg/opcode"
)

const sample = `var x, r;
double(v) { double = v * 2; }
{
	x = 3;
	while x > 0 {
		r = double(x);
		print r;
		x = x - 1;
	}
}`

func lower(t *testing.T, src string) *opcode.Program {
	t.Helper()
	prog, err := parser.New(lexer.New(src)).ParseProgram()
	if err != nil {
		t.Fatalf("lowering failed: %v", err)
	}
	return prog
}

func TestWriteAndRead(t *testing.T) {
	prog := lower(t, sample)

	var buf bytes.Buffer
	if err := Write(&buf, prog); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	doc, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if doc.Entry != int(prog.Entry) {
		t.Errorf("entry = %d, want %d", doc.Entry, prog.Entry)
	}
	if len(doc.Nodes) != prog.Graph.Len() {
		t.Fatalf("expected %d nodes, got %d", prog.Graph.Len(), len(doc.Nodes))
	}
	if len(doc.Globals) != len(prog.Globals) {
		t.Errorf("expected %d globals, got %d", len(prog.Globals), len(doc.Globals))
	}
	if len(doc.Functions) != 1 || doc.Functions[0].Name != "double" || doc.Functions[0].Params != 1 {
		t.Errorf("unexpected functions: %+v", doc.Functions)
	}

	kinds := map[string]int{}
	for _, n := range doc.Nodes {
		kinds[n.Kind]++
		switch n.Kind {
		case "cjump", "jump":
			if n.Target == nil {
				t.Errorf("node %d (%s) has no target", n.ID, n.Kind)
			}
		case "call":
			if n.Func != "double" || len(n.Args) != 1 || n.Result == nil {
				t.Errorf("unexpected call node: %+v", n)
			}
		case "print":
			if n.Target != nil || n.Dest != nil {
				t.Errorf("print node should only carry a source slot: %+v", n)
			}
		}
	}
	for _, k := range []string{"assign", "cjump", "jump", "call", "print", "noop"} {
		if kinds[k] == 0 {
			t.Errorf("expected at least one %s node", k)
		}
	}
}

func TestWriteIsYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, lower(t, `var x; { x = 1; print x; }`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"entry: 0", "globals:", "- slot: 0", "name: x", "kind: assign", "src: [1]", "next: -1"} {
		if !strings.Contains(out, want) {
			t.Errorf("YAML output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "functions:") {
		t.Error("empty function table should be omitted")
	}
}

func TestReadRejectsUnknownFields(t *testing.T) {
	if _, err := Read(strings.NewReader("entry: 0\nbogus: 1\n")); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestDisassemble(t *testing.T) {
	listing := Disassemble(lower(t, sample))

	for _, want := range []string{
		"entry ",
		"globals [x=0 r=0",
		"func double/1 entry",
		"[0] = [1] * [2]",
		"double([0])",
		"goto ",
		" else ",
	} {
		if !strings.Contains(listing, want) {
			t.Errorf("listing missing %q:\n%s", want, listing)
		}
	}
}

func TestDisassembleUnsetEdges(t *testing.T) {
	prog := opcode.NewProgram()
	prog.Entry = prog.Graph.Emit(&opcode.Jump{Target: opcode.NoNode}, 1)
	listing := Disassemble(prog)
	if !strings.Contains(listing, "goto -") {
		t.Errorf("unset target should render as '-':\n%s", listing)
	}
}
