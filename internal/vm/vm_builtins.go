package vm

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// nativeFn implements a core library member. this is already dereferenced.
type nativeFn func(vm *VM, ctx genericContext, this Value, args []Value) (Value, error)

// natives are keyed by MethodDef.Native.
var natives map[string]nativeFn

func init() {
	natives = map[string]nativeFn{
		"Object::.ctor": func(vm *VM, ctx genericContext, this Value, args []Value) (Value, error) {
			return nil, nil
		},
		"Object::Equals": func(vm *VM, ctx genericContext, this Value, args []Value) (Value, error) {
			return valuesEqual(this, deref(args[0])), nil
		},
		"Object::ToString":  toString,
		"Int32::ToString":   toString,
		"Boolean::ToString": toString,
		"String::Concat": func(vm *VM, ctx genericContext, this Value, args []Value) (Value, error) {
			var sb strings.Builder
			for _, a := range args {
				sb.WriteString(Format(a))
			}
			return sb.String(), nil
		},
		"String::get_Length": func(vm *VM, ctx genericContext, this Value, args []Value) (Value, error) {
			s, ok := this.(string)
			if !ok {
				return nil, fmt.Errorf("%w: get_Length on %s", ErrInvalidProgram, Format(this))
			}
			return int32(utf8.RuneCountInString(s)), nil
		},
		"List::.ctor": func(vm *VM, ctx genericContext, this Value, args []Value) (Value, error) {
			l := &List{}
			if len(ctx.typeArgs) > 0 {
				l.ElemType = ctx.typeArgs[0]
			}
			return l, nil
		},
		"List::Add": func(vm *VM, ctx genericContext, this Value, args []Value) (Value, error) {
			l, err := asList(this)
			if err != nil {
				return nil, err
			}
			l.Items = append(l.Items, args[0])
			return nil, nil
		},
		"List::get_Count": func(vm *VM, ctx genericContext, this Value, args []Value) (Value, error) {
			l, err := asList(this)
			if err != nil {
				return nil, err
			}
			return int32(len(l.Items)), nil
		},
		"List::get_Item": func(vm *VM, ctx genericContext, this Value, args []Value) (Value, error) {
			l, err := asList(this)
			if err != nil {
				return nil, err
			}
			i, ok := args[0].(int32)
			if !ok || i < 0 || int(i) >= len(l.Items) {
				return nil, fmt.Errorf("%w: %s of %d", ErrIndexOutOfRange, Format(args[0]), len(l.Items))
			}
			return copyValue(l.Items[i]), nil
		},
		"Implicitly::Resolve": func(vm *VM, ctx genericContext, this Value, args []Value) (Value, error) {
			requested := "?"
			if len(ctx.methodArgs) > 0 {
				requested = ctx.methodArgs[0].FullName()
			}
			return nil, fmt.Errorf("%w (requested %s)", ErrNotWoven, requested)
		},
	}
}

func toString(vm *VM, ctx genericContext, this Value, args []Value) (Value, error) {
	return Format(this), nil
}

func asList(v Value) (*List, error) {
	l, ok := v.(*List)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a list", ErrInvalidProgram, Format(v))
	}
	return l, nil
}
