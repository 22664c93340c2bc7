package vm

import (
	"fmt"

	"github.com/funvibe/funweave/internal/config"
	"github.com/funvibe/funweave/internal/metadata"
)

// genericContext binds the type parameters (!n) and method parameters
// (!!n) visible in a frame.
type genericContext struct {
	typeArgs   []metadata.TypeRef
	methodArgs []metadata.TypeRef
}

// subst replaces the parameters ctx binds. Unbound parameters are kept.
func (ctx genericContext) subst(t metadata.TypeRef) metadata.TypeRef {
	switch r := t.(type) {
	case *metadata.GenericParam:
		args := ctx.typeArgs
		if r.IsMethodParam() {
			args = ctx.methodArgs
		}
		if r.Position < len(args) {
			return args[r.Position]
		}
		return r
	case *metadata.GenericInstance:
		out := &metadata.GenericInstance{Element: r.Element, Args: make([]metadata.TypeRef, len(r.Args))}
		for i, a := range r.Args {
			out.Args[i] = ctx.subst(a)
		}
		return out
	}
	return t
}

func instanceArgs(t metadata.TypeRef) []metadata.TypeRef {
	if gi, ok := t.(*metadata.GenericInstance); ok {
		return gi.Args
	}
	return nil
}

// baseOf returns the base definition of def with its arguments expressed
// in terms of typeArgs.
func baseOf(def *metadata.TypeDef, typeArgs []metadata.TypeRef) (*metadata.TypeDef, []metadata.TypeRef) {
	if def.BaseType == nil {
		return nil, nil
	}
	base := genericContext{typeArgs: typeArgs}.subst(def.BaseType)
	return metadata.ElementDef(base), instanceArgs(base)
}

func findByArity(def *metadata.TypeDef, name string, arity int, static bool) *metadata.MethodDef {
	for _, m := range def.MethodsNamed(name) {
		if len(m.Params) == arity && m.IsStatic() == static {
			return m
		}
	}
	return nil
}

// resolve finds the definition an operand names on decl, falling back to a
// name and arity match when signatures cannot be compared.
func resolve(decl *metadata.TypeDef, ref *metadata.MethodRef) *metadata.MethodDef {
	if m := metadata.FindMethod(decl, ref); m != nil {
		return m
	}
	var found *metadata.MethodDef
	for _, m := range decl.MethodsNamed(ref.Name) {
		if len(m.Params) != len(ref.Params) || len(m.GenericParams) != len(ref.GenericParams) {
			continue
		}
		if found != nil {
			return nil
		}
		found = m
	}
	return found
}

func (vm *VM) coreType(name string) *metadata.TypeDef {
	if t, ok := vm.core[name]; ok {
		return t
	}
	t := vm.module.FindType(name)
	vm.core[name] = t
	return t
}

// runtimeType is the definition virtual dispatch starts from.
func (vm *VM) runtimeType(v Value) (*metadata.TypeDef, []metadata.TypeRef) {
	switch n := v.(type) {
	case int32:
		return vm.coreType(config.Int32TypeName), nil
	case bool:
		return vm.coreType(config.BoolTypeName), nil
	case string:
		return vm.coreType(config.StringTypeName), nil
	case *List:
		return vm.coreType(config.ListTypeName), []metadata.TypeRef{n.ElemType}
	case *Object:
		return n.Type, n.TypeArgs
	}
	return vm.coreType(config.ObjectTypeName), nil
}

// dispatch finds the override of target for the runtime type of recv.
func (vm *VM) dispatch(recv Value, target *metadata.MethodDef) (*metadata.MethodDef, []metadata.TypeRef) {
	def, typeArgs := vm.runtimeType(recv)
	for def != nil {
		for _, m := range def.MethodsNamed(target.Name) {
			if m.IsAbstract() || m.IsStatic() || (m.Body == nil && m.Native == "") {
				continue
			}
			if len(m.Params) == len(target.Params) && len(m.GenericParams) == len(target.GenericParams) {
				return m, typeArgs
			}
		}
		def, typeArgs = baseOf(def, typeArgs)
	}
	return nil, nil
}

// invoke runs method in a new frame. this is nil for static methods.
func (vm *VM) invoke(method *metadata.MethodDef, ctx genericContext, this Value, args []Value) (Value, error) {
	if len(vm.frames) >= MaxFrameCount {
		return nil, vm.fail(ErrStackOverflow)
	}
	if r, ok := this.(*Ref); ok {
		this = r.Load()
	}
	if method.Native != "" {
		fn, ok := natives[method.Native]
		if !ok {
			return nil, vm.fail(fmt.Errorf("%w: %s", ErrUnknownNative, method.Native))
		}
		v, err := fn(vm, ctx, this, args)
		if err != nil {
			return nil, vm.fail(fmt.Errorf("%s: %w", method.FullName(), err))
		}
		return v, nil
	}
	if method.Body == nil {
		return nil, vm.fail(fmt.Errorf("%w: %s has no body", ErrUnresolvedMethod, method.FullName()))
	}

	frame := &CallFrame{method: method, ctx: ctx, base: vm.sp}
	if method.IsStatic() {
		frame.args = append([]Value(nil), args...)
	} else {
		frame.args = append([]Value{this}, args...)
	}
	frame.locals = make([]Value, len(method.Body.Variables))
	for i, v := range method.Body.Variables {
		frame.locals[i] = vm.zero(ctx.subst(v.Type))
	}

	vm.frames = append(vm.frames, frame)
	result, err := vm.execute(frame)
	if err != nil {
		return nil, vm.fail(err)
	}
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.sp = frame.base
	return result, nil
}

// call handles call and callvirt.
func (vm *VM) call(op metadata.MethodOperand, caller *CallFrame, virtual bool) error {
	ref := op.ElementMethod()
	decl := caller.ctx.subst(ref.DeclaringType)
	def := metadata.ElementDef(decl)
	if def == nil {
		return fmt.Errorf("%w: %s", ErrUnresolvedMethod, op)
	}
	target := resolve(def, ref)
	if target == nil {
		return fmt.Errorf("%w: %s", ErrUnresolvedMethod, op)
	}

	ctx := genericContext{typeArgs: instanceArgs(decl)}
	if gim, ok := op.(*metadata.GenericInstanceMethod); ok {
		ctx.methodArgs = make([]metadata.TypeRef, len(gim.Args))
		for i, a := range gim.Args {
			ctx.methodArgs[i] = caller.ctx.subst(a)
		}
	}

	args := vm.popN(len(target.Params))
	var this Value
	if !target.IsStatic() {
		this = vm.pop()
		recv := deref(this)
		if recv == nil {
			return fmt.Errorf("%w: calling %s", ErrNullReference, target.FullName())
		}
		if virtual && target.Attributes&metadata.MethodVirtual != 0 {
			m, typeArgs := vm.dispatch(recv, target)
			if m == nil {
				return fmt.Errorf("%w: no implementation of %s on %s", ErrUnresolvedMethod, target.FullName(), Format(recv))
			}
			target, ctx.typeArgs = m, typeArgs
		}
	}

	result, err := vm.invoke(target, ctx, this, args)
	if err != nil {
		return err
	}
	if !metadata.IsVoid(target.ReturnType) {
		vm.push(result)
	}
	return nil
}

// newobj allocates an instance of the operand's declaring type and runs
// the constructor on it.
func (vm *VM) newobj(op metadata.MethodOperand, caller *CallFrame) error {
	ref := op.ElementMethod()
	decl := caller.ctx.subst(ref.DeclaringType)
	def := metadata.ElementDef(decl)
	if def == nil {
		return fmt.Errorf("%w: %s", ErrUnresolvedMethod, op)
	}
	ctor := resolve(def, ref)
	if ctor == nil {
		return fmt.Errorf("%w: %s", ErrUnresolvedMethod, op)
	}
	obj, err := vm.construct(def, instanceArgs(decl), ctor, vm.popN(len(ctor.Params)))
	if err != nil {
		return err
	}
	vm.push(obj)
	return nil
}

func (vm *VM) construct(def *metadata.TypeDef, typeArgs []metadata.TypeRef, ctor *metadata.MethodDef, args []Value) (Value, error) {
	ctx := genericContext{typeArgs: typeArgs}
	if ctor.Native != "" {
		// core constructors may allocate their own representation
		if v, err := vm.invoke(ctor, ctx, nil, args); err != nil || v != nil {
			return v, err
		}
	}
	obj := vm.newObject(def, typeArgs)
	if _, err := vm.invoke(ctor, ctx, obj, args); err != nil {
		return nil, err
	}
	return obj, nil
}

// newObject allocates def with every instance field, inherited ones
// included, set to its zero value.
func (vm *VM) newObject(def *metadata.TypeDef, typeArgs []metadata.TypeRef) *Object {
	obj := &Object{Type: def, TypeArgs: typeArgs, Fields: make(map[string]Value)}
	for cur, args := def, typeArgs; cur != nil; cur, args = baseOf(cur, args) {
		ctx := genericContext{typeArgs: args}
		for _, f := range cur.Fields {
			if f.Static {
				continue
			}
			if _, shadowed := obj.Fields[f.Name]; !shadowed {
				obj.Fields[f.Name] = vm.zero(ctx.subst(f.Type))
			}
		}
	}
	return obj
}

// zero is the default value of a slot of type t.
func (vm *VM) zero(t metadata.TypeRef) Value {
	def := metadata.ElementDef(t)
	if def == nil {
		return nil
	}
	switch def.FullName() {
	case config.Int32TypeName:
		return int32(0)
	case config.BoolTypeName:
		return false
	case config.VoidTypeName:
		return nil
	}
	if def.IsValueType() {
		return vm.newObject(def, instanceArgs(t))
	}
	return nil
}
