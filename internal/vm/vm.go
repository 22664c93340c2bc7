// Package vm interprets method bodies of a loaded module. It runs woven and
// unwoven modules alike, which is how weaving is checked for behavioral
// equivalence.
package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/funvibe/funweave/internal/metadata"
)

var (
	ErrStackUnderflow   = errors.New("stack underflow")
	ErrStackOverflow    = errors.New("stack overflow")
	ErrUnknownNative    = errors.New("unknown native")
	ErrUnresolvedMethod = errors.New("unresolved method")
	ErrNotWoven         = errors.New("resolution primitive called at run time: module was not woven")
	ErrNullReference    = errors.New("null reference")
	ErrInvalidCast      = errors.New("invalid cast")
	ErrInvalidProgram   = errors.New("invalid program")
	ErrIndexOutOfRange  = errors.New("index out of range")
)

// Maximum call depth to catch runaway recursion.
const MaxFrameCount = 1024

// Initial operand stack size; the stack grows on demand.
const InitialStackSize = 256

// CallFrame is one method activation.
type CallFrame struct {
	method *metadata.MethodDef
	ctx    genericContext
	args   []Value
	locals []Value
	ip     int
	base   int // operand stack height at entry
}

// VM executes methods of one module and the modules it references.
type VM struct {
	module *metadata.Module

	stack []Value
	sp    int

	frames []*CallFrame

	// branch targets per body, built on first execution
	labels map[*metadata.Body]map[*metadata.Instruction]int
	core   map[string]*metadata.TypeDef
}

// RuntimeError is an execution failure with the call stack at the point it
// happened, innermost frame first.
type RuntimeError struct {
	Err   error
	Trace []string
}

func (e *RuntimeError) Error() string {
	var sb strings.Builder
	sb.WriteString("runtime error: ")
	sb.WriteString(e.Err.Error())
	for _, t := range e.Trace {
		sb.WriteString("\n  at ")
		sb.WriteString(t)
	}
	return sb.String()
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// New creates a VM over m.
func New(m *metadata.Module) *VM {
	return &VM{
		module: m,
		stack:  make([]Value, InitialStackSize),
		labels: make(map[*metadata.Body]map[*metadata.Instruction]int),
		core:   make(map[string]*metadata.TypeDef),
	}
}

// Call runs the static method of typeName with the given name and arity.
func (vm *VM) Call(typeName, method string, args ...Value) (Value, error) {
	def := vm.module.FindType(typeName)
	if def == nil {
		return nil, fmt.Errorf("type %s not found", typeName)
	}
	target := findByArity(def, method, len(args), true)
	if target == nil {
		return nil, fmt.Errorf("%w: static %s::%s with %d arguments", ErrUnresolvedMethod, typeName, method, len(args))
	}
	return vm.enter(func() (Value, error) {
		return vm.invoke(target, genericContext{}, nil, args)
	})
}

// Construct creates an instance of t, running the constructor whose arity
// matches args. t may be a generic instance.
func (vm *VM) Construct(t metadata.TypeRef, args ...Value) (Value, error) {
	def := metadata.ElementDef(t)
	if def == nil {
		return nil, fmt.Errorf("cannot construct %s", refName(t))
	}
	ctor := findByArity(def, ".ctor", len(args), false)
	if ctor == nil {
		return nil, fmt.Errorf("%w: %s has no constructor with %d arguments", ErrUnresolvedMethod, def.FullName(), len(args))
	}
	return vm.enter(func() (Value, error) {
		return vm.construct(def, instanceArgs(t), ctor, args)
	})
}

// CallMethod dispatches the virtual or instance method name on this.
func (vm *VM) CallMethod(this Value, name string, args ...Value) (Value, error) {
	recv := deref(this)
	if recv == nil {
		return nil, ErrNullReference
	}
	def, typeArgs := vm.runtimeType(recv)
	for def != nil {
		if m := findByArity(def, name, len(args), false); m != nil {
			return vm.enter(func() (Value, error) {
				return vm.invoke(m, genericContext{typeArgs: typeArgs}, this, args)
			})
		}
		def, typeArgs = baseOf(def, typeArgs)
	}
	return nil, fmt.Errorf("%w: %s has no method %s with %d arguments", ErrUnresolvedMethod, Format(recv), name, len(args))
}

// enter runs f as an outermost call, turning stack panics into errors and
// resetting the machine afterwards.
func (vm *VM) enter(f func() (Value, error)) (result Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(error)
			if !ok {
				panic(r)
			}
			result, err = nil, vm.fail(e)
		}
		vm.frames = vm.frames[:0]
		vm.sp = 0
	}()
	return f()
}

// fail attaches the current call stack to err once.
func (vm *VM) fail(err error) error {
	var re *RuntimeError
	if errors.As(err, &re) {
		return err
	}
	re = &RuntimeError{Err: err}
	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := vm.frames[i]
		re.Trace = append(re.Trace, fmt.Sprintf("%s IL_%04d", f.method.FullName(), max(f.ip-1, 0)))
	}
	return re
}

func (vm *VM) push(v Value) {
	if vm.sp >= len(vm.stack) {
		grown := make([]Value, 2*len(vm.stack))
		copy(grown, vm.stack[:vm.sp])
		vm.stack = grown
	}
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() Value {
	if vm.sp <= vm.frameBase() {
		panic(ErrStackUnderflow)
	}
	vm.sp--
	v := vm.stack[vm.sp]
	vm.stack[vm.sp] = nil
	return v
}

func (vm *VM) peek() Value {
	if vm.sp <= vm.frameBase() {
		panic(ErrStackUnderflow)
	}
	return vm.stack[vm.sp-1]
}

// popN pops n values and returns them in push order.
func (vm *VM) popN(n int) []Value {
	out := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = vm.pop()
	}
	return out
}

func (vm *VM) frameBase() int {
	if len(vm.frames) == 0 {
		return 0
	}
	return vm.frames[len(vm.frames)-1].base
}
