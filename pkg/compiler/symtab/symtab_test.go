package symtab

import (
	"errors"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/zurustar/cfgvm/pkg/opcode"
)

func TestDeclareAssignsSequentialSlots(t *testing.T) {
	s := New("global", 0)
	for i, name := range []string{"a", "b", "c"} {
		slot, err := s.Declare(name, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if slot != opcode.Slot(i) {
			t.Errorf("Declare(%q) = %d, want %d", name, slot, i)
		}
	}
	if s.Len() != 3 {
		t.Errorf("expected 3 slots, got %d", s.Len())
	}
}

func TestDeclareIsIdempotent(t *testing.T) {
	s := New("global", 0)
	first, _ := s.Declare("x", 7)
	second, _ := s.Declare("x", 99)

	if first != second {
		t.Errorf("redeclaration moved slot: %d -> %d", first, second)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 slot, got %d", s.Len())
	}
	if got := s.Locals()[0].Init; got != 7 {
		t.Errorf("redeclaration changed initial value to %d", got)
	}
}

func TestDeclareLiteral(t *testing.T) {
	s := New("f", 0)
	s.Declare("f", 0)

	slot, err := s.DeclareLiteral("42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	again, _ := s.DeclareLiteral("42")
	if slot != again {
		t.Errorf("same literal text got two slots: %d and %d", slot, again)
	}
	locals := s.Locals()
	if locals[slot].Name != "42" || locals[slot].Init != 42 {
		t.Errorf("unexpected literal cell: %+v", locals[slot])
	}

	if _, err := s.DeclareLiteral("99999999999999999999"); err == nil {
		t.Error("expected error for out-of-range literal")
	}
}

func TestLookupIsScopeLocal(t *testing.T) {
	global := New("global", 0)
	global.Declare("g", 0)

	fn := New("f", 0)
	fn.Declare("f", 0)

	if _, ok := fn.Lookup("g"); ok {
		t.Error("function scope must not see globals")
	}
	if slot, ok := fn.Lookup("f"); !ok || slot != 0 {
		t.Errorf("Lookup(f) = %d, %v", slot, ok)
	}
	if _, ok := global.Lookup("missing"); ok {
		t.Error("expected missing name to be absent")
	}
}

func TestCapacity(t *testing.T) {
	s := New("global", 2)
	s.Declare("a", 0)
	s.Declare("b", 0)

	// existing names still resolve at capacity
	if _, err := s.Declare("a", 0); err != nil {
		t.Fatalf("redeclaration at capacity failed: %v", err)
	}
	_, err := s.Declare("c", 0)
	if !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
}

func TestLocalsReturnsCopy(t *testing.T) {
	s := New("global", 0)
	s.Declare("a", 1)
	locals := s.Locals()
	locals[0].Init = 100
	if s.Locals()[0].Init != 1 {
		t.Error("Locals must not expose internal state")
	}
}

// TestPropertyDeclareIdempotence checks that declaring a sequence of names
// (with repeats) yields one slot per distinct name, in first-declaration
// order, and that lookups after repeated declaration are stable.
func TestPropertyDeclareIdempotence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("redeclaration never allocates a second slot", prop.ForAll(
		func(names []string) bool {
			s := New("global", 0)
			first := make(map[string]opcode.Slot)
			var order []string
			for _, name := range names {
				slot, err := s.Declare(name, 0)
				if err != nil {
					return false
				}
				if prev, seen := first[name]; seen {
					if prev != slot {
						return false
					}
					continue
				}
				first[name] = slot
				order = append(order, name)
			}
			if s.Len() != len(order) {
				return false
			}
			for i, name := range order {
				slot, ok := s.Lookup(name)
				if !ok || slot != opcode.Slot(i) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(sampleNames)-1).Map(func(i int) string {
			return sampleNames[i]
		})),
	))

	properties.Property("literal slots are shared by text", prop.ForAll(
		func(n int64) bool {
			s := New("global", 0)
			text := strconv.FormatInt(n, 10)
			a, err := s.DeclareLiteral(text)
			if err != nil {
				return false
			}
			b, _ := s.DeclareLiteral(text)
			return a == b && s.Len() == 1 && s.Locals()[a].Init == n
		},
		gen.Int64Range(0, 1<<40),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

var sampleNames = []string{"a", "b", "c", "d", "x", "y", "tmp"}
