// This file defines the CompileError type for structured error reporting.
package compiler

import (
	"fmt"
	"strings"

	"github.com/zurustar/cfgvm/pkg/compiler/parser"
)

// CompileError represents a structured compilation error with location information.
// It implements the error interface and provides detailed context about where
// the error occurred in the source code.
type CompileError struct {
	// Phase indicates which compilation phase generated the error.
	// Valid values: "load", "parser"
	Phase string

	// Message is the human-readable error description.
	Message string

	// Line is the 1-indexed line number where the error occurred.
	Line int

	// Column is the 1-indexed column number where the error occurred.
	Column int

	// Context contains the source code around the error location.
	// This includes 2 lines before and after the error line,
	// with a pointer (^) indicating the error column.
	Context string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
// It returns a formatted error message including phase, location, message, and context.
func (e *CompileError) Error() string {
	if e.Line <= 0 {
		return fmt.Sprintf("%s error: %s", e.Phase, e.Message)
	}
	if e.Context != "" {
		return fmt.Sprintf("%s error at line %d, column %d: %s\n%s",
			e.Phase, e.Line, e.Column, e.Message, e.Context)
	}
	return fmt.Sprintf("%s error at line %d, column %d: %s",
		e.Phase, e.Line, e.Column, e.Message)
}

// Unwrap returns the underlying error.
func (e *CompileError) Unwrap() error {
	return e.Err
}

// NewParserErrorWithContext creates a new CompileError for parser phase errors with source context.
//
// Parameters:
//   - err: The parser error
//   - source: The full source code for generating context
//
// Returns:
//   - *CompileError: A new parser error with context
func NewParserErrorWithContext(err *parser.ParserError, source string) *CompileError {
	return &CompileError{
		Phase:   "parser",
		Message: fmt.Sprintf("%s: %s", err.Kind, err.Message),
		Line:    err.Line,
		Column:  err.Column,
		Context: GenerateErrorContext(source, err.Line, err.Column),
		Err:     err,
	}
}

// NewLoadError creates a new CompileError for failures reading or decoding the source.
func NewLoadError(path string, err error) *CompileError {
	return &CompileError{
		Phase:   "load",
		Message: fmt.Sprintf("%s: %v", path, err),
		Err:     err,
	}
}

// GenerateErrorContext generates source code context around an error location.
// It includes 2 lines before and 2 lines after the error line, with line numbers
// and a pointer (^) indicating the error column.
//
// Parameters:
//   - source: The full source code
//   - line: The 1-indexed line number of the error
//   - column: The 1-indexed column number of the error
//
// Returns:
//   - string: Formatted context string with line numbers and error pointer
//
// Example output:
//
//	  2 | var x;
//	  3 | {
//	> 4 |  x = 3 print x;
//	             ^
//	  5 | }
func GenerateErrorContext(source string, line, column int) string {
	if source == "" || line <= 0 {
		return ""
	}

	lines := strings.Split(source, "\n")
	if line > len(lines) {
		return ""
	}

	// Calculate the range of lines to show (2 before and 2 after)
	start := line - 3 // 2 lines before (0-indexed: line-1-2 = line-3)
	if start < 0 {
		start = 0
	}
	end := line + 2 // 2 lines after (0-indexed: line-1+2+1 = line+2)
	if end > len(lines) {
		end = len(lines)
	}

	var buf strings.Builder

	// Calculate the width needed for line numbers
	maxLineNum := end
	lineNumWidth := len(fmt.Sprintf("%d", maxLineNum))

	for i := start; i < end; i++ {
		lineNum := i + 1 // Convert to 1-indexed
		lineContent := lines[i]

		if lineNum == line {
			// Error line - mark with >
			buf.WriteString(fmt.Sprintf("> %*d | %s\n", lineNumWidth, lineNum, lineContent))
			// Add pointer line
			// Calculate spaces: "> " + lineNumWidth + " | " + (column-1) spaces + "^"
			pointerIndent := 2 + lineNumWidth + 3 // "> " + lineNumWidth + " | "
			if column > 0 {
				buf.WriteString(fmt.Sprintf("%s%s^\n", strings.Repeat(" ", pointerIndent), strings.Repeat(" ", column-1)))
			} else {
				buf.WriteString(fmt.Sprintf("%s^\n", strings.Repeat(" ", pointerIndent)))
			}
		} else {
			// Context line
			buf.WriteString(fmt.Sprintf("  %*d | %s\n", lineNumWidth, lineNum, lineContent))
		}
	}

	return buf.String()
}
