package vm

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/zurustar/cfgvm/pkg/compiler/lexer"
	"github.com/zurustar/cfgvm/pkg/compiler/parser"
)

// execute compiles and runs src, returning output and error.
func execute(src string) (string, error) {
	prog, err := parser.New(lexer.New(src)).ParseProgram()
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	err = New(prog, WithOutput(&out)).Run()
	return out.String(), err
}

// TestPropertyArithmetic checks that every binary operator agrees with
// Go's int64 arithmetic.
func TestPropertyArithmetic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	ops := []struct {
		sym  string
		eval func(a, b int64) int64
	}{
		{"+", func(a, b int64) int64 { return a + b }},
		{"-", func(a, b int64) int64 { return a - b }},
		{"*", func(a, b int64) int64 { return a * b }},
		{"/", func(a, b int64) int64 { return a / b }},
	}

	properties.Property("x = a op b prints the int64 result", prop.ForAll(
		func(a, b int64, opIndex int) bool {
			op := ops[opIndex]
			if op.sym == "/" && b == 0 {
				return true
			}
			src := fmt.Sprintf("var x; { x = %d %s %d; print x; }", a, op.sym, b)
			out, err := execute(src)
			if err != nil {
				return false
			}
			return out == fmt.Sprintf("%d ", op.eval(a, b))
		},
		gen.Int64Range(0, 1<<31),
		gen.Int64Range(0, 1<<31),
		gen.IntRange(0, len(ops)-1),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// TestPropertyLoopCount checks that for and while loops run their body
// exactly n times.
func TestPropertyLoopCount(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("for loop prints 0..n-1", prop.ForAll(
		func(n int) bool {
			src := fmt.Sprintf("var i; { for (i = 0; i < %d; i = i + 1) { print i; } }", n)
			out, err := execute(src)
			if err != nil {
				return false
			}
			var want strings.Builder
			for i := 0; i < n; i++ {
				fmt.Fprintf(&want, "%d ", i)
			}
			return out == want.String()
		},
		gen.IntRange(0, 50),
	))

	properties.Property("while loop counts down from n", prop.ForAll(
		func(n int) bool {
			src := fmt.Sprintf("var i, c; { i = %d; while i > 0 { i = i - 1; c = c + 1; } print c; }", n)
			out, err := execute(src)
			return err == nil && out == fmt.Sprintf("%d ", n)
		},
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// TestPropertySwitch checks that exactly one branch of a switch runs.
func TestPropertySwitch(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("matching case or default runs once", prop.ForAll(
		func(subject int) bool {
			src := fmt.Sprintf(`var x, r; {
	x = %d;
	switch x {
	case 1: { r = 10; print r; }
	case 2: { r = 20; print r; }
	case 3: { r = 30; print r; }
	default: { r = 0; print r; }
	}
}`, subject)
			out, err := execute(src)
			if err != nil {
				return false
			}
			want := "0 "
			if subject >= 1 && subject <= 3 {
				want = fmt.Sprintf("%d ", subject*10)
			}
			return out == want
		},
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// TestPropertyRecursionIsolation checks that recursive activations do not
// disturb each other's locals or the caller's variables.
func TestPropertyRecursionIsolation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("recursive sum equals n(n+1)/2 and globals survive", prop.ForAll(
		func(n int, keep int) bool {
			src := fmt.Sprintf(`var r, k;
sum(n) {
	var m, s;
	sum = 0;
	if n > 0 { m = n - 1; s = sum(m); sum = n + s; }
}
{ k = %d; r = sum(%d); print r; print k; }`, keep, n)
			out, err := execute(src)
			if err != nil {
				return false
			}
			return out == fmt.Sprintf("%d %d ", n*(n+1)/2, keep)
		},
		gen.IntRange(0, 40),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
