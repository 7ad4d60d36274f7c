// Package vm provides error handling for the cfgvm virtual machine.
package vm

import (
	"fmt"
)

// ErrorType represents the type of runtime error.
type ErrorType string

const (
	ErrorDivisionByZero     ErrorType = "DIVISION_BY_ZERO"
	ErrorOutOfMemory        ErrorType = "OUT_OF_MEMORY"
	ErrorInvalidTarget      ErrorType = "INVALID_TARGET"
	ErrorInvalidInstruction ErrorType = "INVALID_INSTRUCTION"
)

// RuntimeError represents a runtime error in the VM.
type RuntimeError struct {
	Type    ErrorType
	Message string
	Line    int // Line number if available, -1 otherwise
	Node    int // Graph node being executed, -1 if none
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Line >= 0 {
		return fmt.Sprintf("[%s] %s at line %d", e.Type, e.Message, e.Line)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// IsFatal returns true if the error is fatal and execution should stop.
// Every runtime error of this machine stops execution.
func (e *RuntimeError) IsFatal() bool {
	switch e.Type {
	case ErrorDivisionByZero, ErrorOutOfMemory, ErrorInvalidTarget, ErrorInvalidInstruction:
		return true
	default:
		return false
	}
}

// NewRuntimeError creates a new RuntimeError.
func NewRuntimeError(errType ErrorType, message string) *RuntimeError {
	return &RuntimeError{
		Type:    errType,
		Message: message,
		Line:    -1,
		Node:    -1,
	}
}

// NewRuntimeErrorWithLine creates a new RuntimeError with line information.
func NewRuntimeErrorWithLine(errType ErrorType, message string, line int) *RuntimeError {
	return &RuntimeError{
		Type:    errType,
		Message: message,
		Line:    line,
		Node:    -1,
	}
}

// NewDivisionByZeroError creates a division by zero error.
func NewDivisionByZeroError() *RuntimeError {
	return NewRuntimeError(ErrorDivisionByZero, "division by zero")
}

// NewOutOfMemoryError creates an error for a frame that does not fit in memory.
func NewOutOfMemoryError(function string, need, capacity int) *RuntimeError {
	return NewRuntimeError(ErrorOutOfMemory,
		fmt.Sprintf("calling %s needs %d cells, memory capacity is %d", function, need, capacity))
}

// NewInvalidTargetError creates an error for a jump whose target is unset or out of range.
func NewInvalidTargetError(target int) *RuntimeError {
	return NewRuntimeError(ErrorInvalidTarget, fmt.Sprintf("invalid jump target %d", target))
}

// NewInvalidInstructionError creates an error for an instruction the VM cannot execute.
func NewInvalidInstructionError(inst any) *RuntimeError {
	return NewRuntimeError(ErrorInvalidInstruction, fmt.Sprintf("cannot execute %T", inst))
}
