// Package vm provides the virtual machine that executes lowered cfgvm
// programs. It implements a stack machine over flat memory:
// - Instruction graph traversal (Next / Target edges)
// - Frame management (dynamic link, frame base, frame size)
// - Call records for returns
// - Timeout and cancellation
package vm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/zurustar/cfgvm/pkg/logger"
	"github.com/zurustar/cfgvm/pkg/opcode"
)

// State is the execution state of a VM.
type State int

const (
	StateRunning State = iota
	StateHalted
	StateFatal
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateHalted:
		return "halted"
	case StateFatal:
		return "fatal"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// callRecord remembers where to resume after a callee returns.
type callRecord struct {
	node opcode.NodeID
	call *opcode.Call
	next opcode.NodeID
}

// VM executes an opcode.Program.
//
// Registers: pc is the current node, fp the base of the current frame and
// sp the number of cells the current frame occupies. Slots are resolved as
// fp+slot. A callee frame starts one cell above the caller's frame end; that
// cell holds the caller's fp.
type VM struct {
	prog *opcode.Program
	mem  *Memory

	pc    opcode.NodeID
	fp    int
	sp    int
	stack []callRecord
	state State
	steps int64

	// Configuration
	out      io.Writer
	capacity int
	timeout  time.Duration

	// Execution control
	running bool
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc

	log *slog.Logger
}

// Option is a functional option for configuring the VM.
type Option func(*VM)

// WithOutput sets the writer print instructions write to. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(vm *VM) {
		vm.out = w
	}
}

// WithMemoryCapacity sets the number of memory cells.
func WithMemoryCapacity(cells int) Option {
	return func(vm *VM) {
		vm.capacity = cells
	}
}

// WithTimeout sets the execution timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(vm *VM) {
		vm.timeout = timeout
	}
}

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(vm *VM) {
		vm.log = log
	}
}

// New creates a new VM for prog with the given options.
func New(prog *opcode.Program, opts ...Option) *VM {
	ctx, cancel := context.WithCancel(context.Background())

	vm := &VM{
		prog:     prog,
		pc:       opcode.NoNode,
		state:    StateRunning,
		out:      os.Stdout,
		capacity: DefaultMemoryCapacity,
		ctx:      ctx,
		cancel:   cancel,
		log:      logger.GetLogger(),
	}

	for _, opt := range opts {
		opt(vm)
	}

	vm.mem = NewMemory(vm.capacity)
	return vm
}

// Run executes the program from its entry node until it halts, hits a
// fatal error, times out or is stopped.
//
// Returns:
//   - error: a *RuntimeError on fatal errors, a wrapped context error when
//     interrupted, nil on a normal halt
func (vm *VM) Run() error {
	vm.mu.Lock()
	if vm.running {
		vm.mu.Unlock()
		return fmt.Errorf("VM is already running")
	}
	vm.running = true
	vm.mu.Unlock()

	defer func() {
		vm.mu.Lock()
		vm.running = false
		vm.mu.Unlock()
	}()

	ctx := vm.ctx
	if vm.timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, vm.timeout)
		defer timeoutCancel()
	}

	vm.log.Debug("VM started",
		"nodes", vm.prog.Graph.Len(),
		"functions", len(vm.prog.Functions),
		"capacity", vm.mem.Capacity(),
		"timeout", vm.timeout)

	if err := vm.reset(); err != nil {
		return vm.fail(err, opcode.NoNode)
	}

	for {
		select {
		case <-ctx.Done():
			vm.state = StateStopped
			if ctx.Err() == context.DeadlineExceeded {
				vm.log.Info("VM execution timed out", "steps", vm.steps)
			} else {
				vm.log.Info("VM execution cancelled", "steps", vm.steps)
			}
			return fmt.Errorf("execution interrupted: %w", ctx.Err())
		default:
		}

		if vm.pc == opcode.NoNode {
			if len(vm.stack) == 0 {
				vm.state = StateHalted
				vm.log.Debug("VM halted", "steps", vm.steps)
				return nil
			}
			if err := vm.ret(); err != nil {
				return vm.fail(err, opcode.NoNode)
			}
			continue
		}

		pc := vm.pc
		if err := vm.step(); err != nil {
			return vm.fail(err, pc)
		}
		vm.steps++
	}
}

// reset loads the global frame image and points pc at the entry node.
func (vm *VM) reset() error {
	vm.mem.Clear(0, vm.mem.Capacity())
	vm.stack = vm.stack[:0]
	vm.steps = 0
	vm.state = StateRunning

	if len(vm.prog.Globals) > vm.mem.Capacity() {
		return NewOutOfMemoryError("global scope", len(vm.prog.Globals), vm.mem.Capacity())
	}
	for i, g := range vm.prog.Globals {
		vm.mem.cells[i] = g.Init
	}
	vm.fp = 0
	vm.sp = len(vm.prog.Globals)
	vm.pc = vm.prog.Entry
	return nil
}

// step executes the node at pc and advances pc.
func (vm *VM) step() error {
	if !vm.prog.Graph.Valid(vm.pc) {
		return NewInvalidTargetError(int(vm.pc))
	}
	node := vm.prog.Graph.Node(vm.pc)

	switch inst := node.Inst.(type) {
	case *opcode.Noop:
		vm.pc = node.Next

	case *opcode.Print:
		v, err := vm.load(inst.Slot)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(vm.out, "%d ", v); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		vm.pc = node.Next

	case *opcode.Assign:
		v, err := vm.evaluate(inst)
		if err != nil {
			return err
		}
		if err := vm.store(inst.Dest, v); err != nil {
			return err
		}
		vm.pc = node.Next

	case *opcode.Jump:
		if !vm.prog.Graph.Valid(inst.Target) {
			return NewInvalidTargetError(int(inst.Target))
		}
		vm.pc = inst.Target

	case *opcode.CondJump:
		if !vm.prog.Graph.Valid(inst.Target) {
			return NewInvalidTargetError(int(inst.Target))
		}
		a, err := vm.load(inst.Src1)
		if err != nil {
			return err
		}
		b, err := vm.load(inst.Src2)
		if err != nil {
			return err
		}
		if inst.Op.Holds(a, b) {
			vm.pc = node.Next
		} else {
			vm.pc = inst.Target
		}

	case *opcode.Call:
		return vm.call(inst, node)

	default:
		return NewInvalidInstructionError(node.Inst)
	}

	vm.log.Debug("Executed instruction", "kind", node.Inst.Kind(), "line", node.Line, "next", vm.pc, "fp", vm.fp, "sp", vm.sp)
	return nil
}

func (vm *VM) evaluate(inst *opcode.Assign) (int64, error) {
	a, err := vm.load(inst.Src1)
	if err != nil {
		return 0, err
	}
	if inst.Op == opcode.OpNone {
		return a, nil
	}
	b, err := vm.load(inst.Src2)
	if err != nil {
		return 0, err
	}
	switch inst.Op {
	case opcode.OpPlus:
		return a + b, nil
	case opcode.OpMinus:
		return a - b, nil
	case opcode.OpMult:
		return a * b, nil
	case opcode.OpDiv:
		if b == 0 {
			return 0, NewDivisionByZeroError()
		}
		return a / b, nil
	}
	return 0, NewInvalidInstructionError(inst)
}

// call pushes a frame for the callee:
// [dynamic link][result][params...][locals and literals...]
func (vm *VM) call(inst *opcode.Call, node *opcode.Node) error {
	fn := vm.prog.Function(inst.Func)
	if fn == nil {
		return NewRuntimeErrorWithLine(ErrorInvalidInstruction, fmt.Sprintf("call to unknown function %d", inst.Func), node.Line)
	}
	if len(inst.Args) != fn.Params {
		return NewRuntimeErrorWithLine(ErrorInvalidInstruction,
			fmt.Sprintf("%s takes %d argument(s), call passes %d", fn.Name, fn.Params, len(inst.Args)), node.Line)
	}

	link := vm.fp + vm.sp
	need := link + 1 + fn.FrameSize()
	if need > vm.mem.Capacity() {
		return NewOutOfMemoryError(fn.Name, need, vm.mem.Capacity())
	}

	args := make([]int64, len(inst.Args))
	for i, slot := range inst.Args {
		v, err := vm.load(slot)
		if err != nil {
			return err
		}
		args[i] = v
	}

	vm.mem.cells[link] = int64(vm.fp)
	vm.stack = append(vm.stack, callRecord{node: vm.pc, call: inst, next: node.Next})

	vm.fp = link + 1
	vm.sp = 0
	for _, l := range fn.Locals {
		vm.mem.cells[vm.fp+vm.sp] = l.Init
		vm.sp++
	}
	for i, v := range args {
		vm.mem.cells[vm.fp+int(fn.ParamSlot(i))] = v
	}

	vm.log.Debug("Frame pushed", "function", fn.Name, "fp", vm.fp, "sp", vm.sp, "depth", len(vm.stack))
	vm.pc = fn.Entry
	return nil
}

// ret pops the current frame and resumes the caller after its call node.
func (vm *VM) ret() error {
	rec := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]

	callerFP := int(vm.mem.cells[vm.fp-1])
	value := vm.mem.cells[vm.fp+int(opcode.ResultSlot)]

	vm.mem.Clear(vm.fp-1, vm.fp+vm.sp)
	vm.sp = vm.fp - 1 - callerFP
	vm.fp = callerFP

	if rec.call.Result != opcode.NoSlot {
		if err := vm.store(rec.call.Result, value); err != nil {
			return err
		}
	}

	vm.log.Debug("Frame popped", "call", rec.node, "fp", vm.fp, "sp", vm.sp, "depth", len(vm.stack), "value", value)
	vm.pc = rec.next
	return nil
}

func (vm *VM) load(slot opcode.Slot) (int64, error) {
	v, err := vm.mem.Get(vm.fp + int(slot))
	if err != nil {
		return 0, NewRuntimeError(ErrorOutOfMemory, fmt.Sprintf("slot %d: %v", slot, err))
	}
	return v, nil
}

func (vm *VM) store(slot opcode.Slot, v int64) error {
	if err := vm.mem.Set(vm.fp+int(slot), v); err != nil {
		return NewRuntimeError(ErrorOutOfMemory, fmt.Sprintf("slot %d: %v", slot, err))
	}
	return nil
}

// fail marks the VM fatal and attaches the source line of node to runtime errors.
func (vm *VM) fail(err error, node opcode.NodeID) error {
	vm.state = StateFatal
	if rerr, ok := err.(*RuntimeError); ok && node != opcode.NoNode && vm.prog.Graph.Valid(node) {
		rerr.Node = int(node)
		if rerr.Line < 0 {
			rerr.Line = vm.prog.Graph.Node(node).Line
		}
	}
	vm.log.Error("VM execution failed", "node", node, "steps", vm.steps, "error", err)
	return err
}

// Stop stops the VM execution.
func (vm *VM) Stop() {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if vm.running {
		vm.cancel()
		vm.log.Info("VM stop requested")
	}
}

// IsRunning returns whether the VM is currently running.
func (vm *VM) IsRunning() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.running
}

// State returns the execution state.
func (vm *VM) State() State {
	return vm.state
}

// Memory returns a copy of all memory cells.
func (vm *VM) Memory() []int64 {
	return vm.mem.Snapshot()
}

// Steps returns the number of instructions executed by the last Run.
func (vm *VM) Steps() int64 {
	return vm.steps
}

// GetStackDepth returns the current call depth.
func (vm *VM) GetStackDepth() int {
	return len(vm.stack)
}
