package parser

import (
	"fmt"

	"github.com/zurustar/cfgvm/pkg/compiler/token"
)

// ErrorKind classifies a lowering failure.
type ErrorKind string

const (
	ErrSyntax            ErrorKind = "syntax error"
	ErrUndeclared        ErrorKind = "undeclared variable"
	ErrUnknownFunction   ErrorKind = "unknown function"
	ErrDuplicateFunction ErrorKind = "duplicate function"
	ErrDuplicateParam    ErrorKind = "duplicate parameter"
	ErrArity             ErrorKind = "argument count mismatch"
	ErrCapacity          ErrorKind = "memory capacity exceeded"
)

// ParserError represents the first error found while lowering a program.
// Lowering stops at the first error; there is no recovery.
type ParserError struct {
	Kind    ErrorKind
	Message string
	Line    int
	Column  int

	// Expected and Actual are set for syntax errors.
	Expected string
	Actual   token.Token
}

// Error implements the error interface.
func (e *ParserError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s at line %d, column %d: %s", e.Kind, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, tok token.Token, format string, args ...any) *ParserError {
	return &ParserError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Line:    tok.Line,
		Column:  tok.Column,
		Actual:  tok,
	}
}

func syntaxError(expected string, actual token.Token) *ParserError {
	err := newError(ErrSyntax, actual, "expected %s, got %s", expected, actual)
	err.Expected = expected
	return err
}
