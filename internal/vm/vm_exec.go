package vm

import (
	"errors"
	"fmt"

	"github.com/funvibe/funweave/internal/config"
	"github.com/funvibe/funweave/internal/metadata"
)

// execute runs frame until ret.
func (vm *VM) execute(frame *CallFrame) (Value, error) {
	body := frame.method.Body
	code := body.Instructions
	for frame.ip < len(code) {
		ins := code[frame.ip]
		frame.ip++
		if err := vm.executeOne(frame, ins); err != nil {
			if err == errReturn {
				return vm.ret(frame), nil
			}
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s falls off the end of its body", ErrInvalidProgram, frame.method.FullName())
}

// errReturn signals ret from executeOne.
var errReturn = errors.New("return")

func (vm *VM) ret(frame *CallFrame) Value {
	ret := frame.method.ReturnType
	if metadata.IsVoid(ret) {
		return nil
	}
	v := vm.pop()
	if ret.FullName() == config.BoolTypeName {
		return truthy(v)
	}
	return v
}

func (vm *VM) executeOne(frame *CallFrame, ins *metadata.Instruction) error {
	switch ins.OpCode {
	case metadata.OP_NOP, metadata.OP_CONSTRAINED:
		// constrained. only matters for the callvirt that follows, and
		// invoke already dereferences managed pointers.

	case metadata.OP_LDARG:
		v, err := slot(frame.args, ins)
		if err != nil {
			return err
		}
		if ins.Operand.(int) == 0 && !frame.method.IsStatic() {
			// this of a value type is its address, not a copy
			vm.push(*v)
		} else {
			vm.push(copyValue(*v))
		}

	case metadata.OP_LDARGA:
		v, err := slot(frame.args, ins)
		if err != nil {
			return err
		}
		vm.push(&Ref{slot: v})

	case metadata.OP_STARG:
		v, err := slot(frame.args, ins)
		if err != nil {
			return err
		}
		*v = vm.pop()

	case metadata.OP_LDLOC:
		v, err := slot(frame.locals, ins)
		if err != nil {
			return err
		}
		vm.push(copyValue(*v))

	case metadata.OP_LDLOCA:
		v, err := slot(frame.locals, ins)
		if err != nil {
			return err
		}
		vm.push(&Ref{slot: v})

	case metadata.OP_STLOC:
		v, err := slot(frame.locals, ins)
		if err != nil {
			return err
		}
		*v = vm.pop()

	case metadata.OP_LDC_I4:
		vm.push(int32(ins.Operand.(int)))

	case metadata.OP_LDSTR:
		vm.push(ins.Operand.(string))

	case metadata.OP_LDNULL:
		vm.push(nil)

	case metadata.OP_LDFLD:
		f := ins.Operand.(*metadata.FieldRef)
		obj, err := vm.object(vm.pop(), f)
		if err != nil {
			return err
		}
		v, ok := obj.Fields[f.Name]
		if !ok {
			return fmt.Errorf("%w: %s has no field %s", ErrInvalidProgram, Format(obj), f.Name)
		}
		vm.push(copyValue(v))

	case metadata.OP_STFLD:
		f := ins.Operand.(*metadata.FieldRef)
		v := vm.pop()
		obj, err := vm.object(vm.pop(), f)
		if err != nil {
			return err
		}
		if _, ok := obj.Fields[f.Name]; !ok {
			return fmt.Errorf("%w: %s has no field %s", ErrInvalidProgram, Format(obj), f.Name)
		}
		obj.Fields[f.Name] = v

	case metadata.OP_CALL:
		return vm.call(ins.Operand.(metadata.MethodOperand), frame, false)

	case metadata.OP_CALLVIRT:
		return vm.call(ins.Operand.(metadata.MethodOperand), frame, true)

	case metadata.OP_NEWOBJ:
		return vm.newobj(ins.Operand.(metadata.MethodOperand), frame)

	case metadata.OP_RET:
		return errReturn

	case metadata.OP_POP:
		vm.pop()

	case metadata.OP_DUP:
		vm.push(vm.peek())

	case metadata.OP_BOX, metadata.OP_UNBOX_ANY:
		vm.push(copyValue(deref(vm.pop())))

	case metadata.OP_INITOBJ:
		r, ok := vm.pop().(*Ref)
		if !ok {
			return fmt.Errorf("%w: initobj expects an address", ErrInvalidProgram)
		}
		r.Store(vm.zero(frame.ctx.subst(ins.Operand.(metadata.TypeRef))))

	case metadata.OP_CASTCLASS:
		target := frame.ctx.subst(ins.Operand.(metadata.TypeRef))
		if v := vm.peek(); v != nil && !vm.assignable(v, target) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidCast, Format(v), target.FullName())
		}

	case metadata.OP_ADD, metadata.OP_SUB, metadata.OP_MUL:
		b, a := vm.pop(), vm.pop()
		x, okA := asInt(a)
		y, okB := asInt(b)
		if !okA || !okB {
			return fmt.Errorf("%w: %s on %s and %s", ErrInvalidProgram, ins.OpCode, Format(a), Format(b))
		}
		switch ins.OpCode {
		case metadata.OP_ADD:
			vm.push(x + y)
		case metadata.OP_SUB:
			vm.push(x - y)
		default:
			vm.push(x * y)
		}

	case metadata.OP_CEQ:
		b, a := vm.pop(), vm.pop()
		if x, ok := asInt(a); ok {
			y, ok := asInt(b)
			vm.push(ok && x == y)
		} else {
			vm.push(a == b)
		}

	case metadata.OP_CGT, metadata.OP_CLT:
		b, a := vm.pop(), vm.pop()
		x, okA := asInt(a)
		y, okB := asInt(b)
		if !okA || !okB {
			return fmt.Errorf("%w: %s on %s and %s", ErrInvalidProgram, ins.OpCode, Format(a), Format(b))
		}
		if ins.OpCode == metadata.OP_CGT {
			vm.push(x > y)
		} else {
			vm.push(x < y)
		}

	case metadata.OP_BR:
		return vm.jump(frame, ins)

	case metadata.OP_BRTRUE:
		if truthy(vm.pop()) {
			return vm.jump(frame, ins)
		}

	case metadata.OP_BRFALSE:
		if !truthy(vm.pop()) {
			return vm.jump(frame, ins)
		}

	default:
		return fmt.Errorf("%w: unknown opcode %s", ErrInvalidProgram, ins.OpCode)
	}
	return nil
}

func slot(slots []Value, ins *metadata.Instruction) (*Value, error) {
	n := ins.Operand.(int)
	if n < 0 || n >= len(slots) {
		return nil, fmt.Errorf("%w: %s out of range", ErrInvalidProgram, ins)
	}
	return &slots[n], nil
}

// object is the instance a field instruction operates on.
func (vm *VM) object(v Value, f *metadata.FieldRef) (*Object, error) {
	switch o := deref(v).(type) {
	case nil:
		return nil, fmt.Errorf("%w: accessing %s", ErrNullReference, f.Name)
	case *Object:
		return o, nil
	}
	return nil, fmt.Errorf("%w: %s has no fields", ErrInvalidProgram, Format(v))
}

func (vm *VM) jump(frame *CallFrame, ins *metadata.Instruction) error {
	body := frame.method.Body
	labels, ok := vm.labels[body]
	if !ok {
		labels = make(map[*metadata.Instruction]int, len(body.Instructions))
		for i, cur := range body.Instructions {
			labels[cur] = i
		}
		vm.labels[body] = labels
	}
	target, ok := labels[ins.Operand.(*metadata.Instruction)]
	if !ok {
		return fmt.Errorf("%w: branch target outside %s", ErrInvalidProgram, frame.method.FullName())
	}
	frame.ip = target
	return nil
}

// assignable reports whether v can be viewed as target: its runtime type
// or one of its bases is target's definition, or it implements target.
func (vm *VM) assignable(v Value, target metadata.TypeRef) bool {
	want := metadata.ElementDef(target)
	if want == nil || want.FullName() == config.ObjectTypeName {
		return true
	}
	def, args := vm.runtimeType(v)
	for def != nil {
		if def == want || def.Implements(want) {
			return true
		}
		def, args = baseOf(def, args)
	}
	return false
}
