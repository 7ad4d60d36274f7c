package opcode

import "testing"

func TestGraphEmit(t *testing.T) {
	g := NewGraph()
	a := g.Emit(&Noop{}, 1)
	b := g.Emit(&Print{Slot: 2}, 3)

	if a != 0 || b != 1 {
		t.Fatalf("expected sequential ids 0 and 1, got %d and %d", a, b)
	}
	if g.Len() != 2 {
		t.Errorf("expected 2 nodes, got %d", g.Len())
	}
	if n := g.Node(b); n.Next != NoNode || n.Line != 3 || n.Inst.Kind() != KindPrint {
		t.Errorf("unexpected node: %+v", n)
	}

	g.SetNext(a, b)
	if g.Node(a).Next != b {
		t.Errorf("SetNext did not link %d -> %d", a, b)
	}
}

func TestGraphSetTarget(t *testing.T) {
	t.Run("patches jump and conditional jump", func(t *testing.T) {
		g := NewGraph()
		exit := g.Emit(&Noop{}, 1)
		j := g.Emit(&Jump{Target: NoNode}, 1)
		cj := g.Emit(&CondJump{Op: CondLess, Target: NoNode}, 1)

		if err := g.SetTarget(j, exit); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := g.SetTarget(cj, exit); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if g.Node(j).Inst.(*Jump).Target != exit {
			t.Error("jump target not patched")
		}
		if g.Node(cj).Inst.(*CondJump).Target != exit {
			t.Error("conditional jump target not patched")
		}
	})

	t.Run("rejects nodes without a target", func(t *testing.T) {
		g := NewGraph()
		p := g.Emit(&Print{}, 1)
		if err := g.SetTarget(p, p); err == nil {
			t.Error("expected error for print node")
		}
	})
}

func TestGraphInvalidHandle(t *testing.T) {
	g := NewGraph()
	if g.Valid(NoNode) || g.Valid(0) {
		t.Fatal("empty graph should have no valid handles")
	}
	defer func() {
		if recover() == nil {
			t.Error("expected panic for invalid handle")
		}
	}()
	g.Node(3)
}

func TestRelOpHolds(t *testing.T) {
	tests := []struct {
		op   RelOp
		a, b int64
		want bool
	}{
		{CondGreater, 2, 1, true},
		{CondGreater, 1, 1, false},
		{CondLess, 1, 2, true},
		{CondLess, 2, 2, false},
		{CondNotEqual, 1, 2, true},
		{CondNotEqual, 2, 2, false},
	}
	for _, tt := range tests {
		if got := tt.op.Holds(tt.a, tt.b); got != tt.want {
			t.Errorf("%d %s %d = %v, want %v", tt.a, tt.op, tt.b, got, tt.want)
		}
	}
}

func TestProgramFunctionTable(t *testing.T) {
	p := NewProgram()
	f := &Function{Name: "f", Params: 1}
	g := &Function{Name: "g"}

	fid, ok := p.AddFunction(f)
	if !ok || fid != 0 {
		t.Fatalf("AddFunction(f) = %d, %v", fid, ok)
	}
	gid, ok := p.AddFunction(g)
	if !ok || gid != 1 {
		t.Fatalf("AddFunction(g) = %d, %v", gid, ok)
	}
	if _, ok := p.AddFunction(&Function{Name: "f"}); ok {
		t.Error("expected duplicate registration to fail")
	}

	id, fn, ok := p.LookupFunction("g")
	if !ok || id != gid || fn != g {
		t.Errorf("LookupFunction(g) = %d, %v, %v", id, fn, ok)
	}
	if _, _, ok := p.LookupFunction("h"); ok {
		t.Error("expected h to be missing")
	}
	if p.Function(5) != nil {
		t.Error("expected nil for out-of-range id")
	}
	if f.ParamSlot(0) != 1 {
		t.Errorf("first parameter should follow the result cell, got %d", f.ParamSlot(0))
	}
}
