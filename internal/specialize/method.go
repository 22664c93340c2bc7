package specialize

import (
	"fmt"

	"github.com/funvibe/funweave/internal/diagnostics"
	"github.com/funvibe/funweave/internal/metadata"
)

// transformer maps references found in an original member onto the clone:
// scope substitution, redirection of family instances to their clones, then
// rebinding of leftover type and method parameters.
type transformer struct {
	run   *run
	scope *Scope
	from  *metadata.MethodDef
	to    *metadata.MethodDef
}

func (t *transformer) typeRef(ref metadata.TypeRef) (metadata.TypeRef, error) {
	if ref == nil {
		return nil, nil
	}
	out := t.scope.Resolve(ref)
	out, err := redirect(out, t.run.family)
	if err != nil {
		return nil, err
	}
	out = t.scope.RebindScoped(out)
	if t.from != nil {
		out = Rebind(out, t.from, t.to, 0)
	}
	return out, nil
}

func (t *transformer) typeRefs(refs []metadata.TypeRef) ([]metadata.TypeRef, error) {
	out := make([]metadata.TypeRef, len(refs))
	for i, r := range refs {
		var err error
		if out[i], err = t.typeRef(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// method maps a method operand. Members of a type being cloned in this run
// are taken from the method mapping and referenced through the clone;
// other members keep their signature on the substituted declaring type.
func (t *transformer) method(op metadata.MethodOperand) (metadata.MethodOperand, error) {
	ref := op.ElementMethod()
	decl, err := t.typeRef(ref.DeclaringType)
	if err != nil {
		return nil, err
	}

	var out *metadata.MethodRef
	switch def := metadata.ElementDef(decl); {
	case def != nil && t.run.isProduced(def):
		original := metadata.FindMethod(metadata.ElementDef(ref.DeclaringType), ref)
		if original == nil {
			return nil, diagnostics.NewError(diagnostics.ErrW006, t.site(),
				fmt.Sprintf("method %s not found", ref))
		}
		clone, ok := t.run.methods[original]
		if !ok {
			return nil, diagnostics.NewError(diagnostics.ErrW006, t.site(),
				fmt.Sprintf("no clone of %s", original.FullName()))
		}
		out = clone.RefOn(decl)
	case decl != ref.DeclaringType:
		out = ref.WithDeclaringType(decl)
	default:
		out = ref
	}

	gim, ok := op.(*metadata.GenericInstanceMethod)
	if !ok {
		return out, nil
	}
	args, err := t.typeRefs(gim.Args)
	if err != nil {
		return nil, err
	}
	inst, err := metadata.MakeGenericInstanceMethod(out, args...)
	if err != nil {
		return nil, diagnostics.Wrap(diagnostics.ErrW002, t.site(), err)
	}
	return inst, nil
}

// field maps a field operand. Fields of clones are located by name.
func (t *transformer) field(f *metadata.FieldRef) (*metadata.FieldRef, error) {
	decl, err := t.typeRef(f.DeclaringType)
	if err != nil {
		return nil, err
	}
	if def := metadata.ElementDef(decl); def != nil && t.run.isProduced(def) {
		fd := def.Field(f.Name)
		if fd == nil {
			return nil, diagnostics.NewError(diagnostics.ErrW006, t.site(),
				fmt.Sprintf("field %s not found on %s", f.Name, def.FullName()))
		}
		return &metadata.FieldRef{Name: f.Name, FieldType: fd.Type, DeclaringType: decl}, nil
	}
	if decl == f.DeclaringType {
		return f, nil
	}
	return &metadata.FieldRef{Name: f.Name, FieldType: f.FieldType, DeclaringType: decl}, nil
}

func (t *transformer) site() string {
	if t.to != nil {
		return t.to.FullName()
	}
	return t.scope.Produced.FullName()
}

// declareMethod clones a method signature onto the clone of its type.
func (r *run) declareMethod(m *metadata.MethodDef, p *pendingClone) (*metadata.MethodDef, error) {
	clone := &metadata.MethodDef{
		Name:       m.Name,
		Attributes: m.Attributes,
		Native:     m.Native,
	}
	p.clone.AddMethod(clone)

	names := make([]string, len(m.GenericParams))
	for i, gp := range m.GenericParams {
		names[i] = gp.Name
	}
	clone.DeclareGenericParams(names...)

	tr := &transformer{run: r, scope: p.scope, from: m, to: clone}
	var err error
	if clone.ReturnType, err = tr.typeRef(m.ReturnType); err != nil {
		return nil, err
	}
	for _, param := range m.Params {
		pt, err := tr.typeRef(param.Type)
		if err != nil {
			return nil, err
		}
		clone.Params = append(clone.Params, &metadata.Param{Name: param.Name, Type: pt})
	}
	return clone, nil
}

// fillBody clones the body of m into clone instruction by instruction.
// Branch targets are remapped by position.
func (r *run) fillBody(m, clone *metadata.MethodDef, scope *Scope) error {
	if m.IsAbstract() || m.Body == nil {
		return nil
	}
	tr := &transformer{run: r, scope: scope, from: m, to: clone}
	body := &metadata.Body{InitLocals: m.Body.InitLocals}

	for _, v := range m.Body.Variables {
		vt, err := tr.typeRef(v.Type)
		if err != nil {
			return err
		}
		body.AddVariable(vt)
	}

	index := make(map[*metadata.Instruction]int, len(m.Body.Instructions))
	for i, ins := range m.Body.Instructions {
		index[ins] = i
	}

	for _, ins := range m.Body.Instructions {
		cloned := &metadata.Instruction{OpCode: ins.OpCode, Operand: ins.Operand}
		var err error
		switch op := ins.Operand.(type) {
		case metadata.TypeRef:
			cloned.Operand, err = tr.typeRef(op)
		case metadata.MethodOperand:
			cloned.Operand, err = tr.method(op)
		case *metadata.FieldRef:
			cloned.Operand, err = tr.field(op)
		}
		if err != nil {
			return err
		}
		body.Append(cloned)
	}

	for i, ins := range body.Instructions {
		target, ok := ins.Operand.(*metadata.Instruction)
		if !ok {
			continue
		}
		j, ok := index[target]
		if !ok {
			return diagnostics.NewError(diagnostics.ErrW007, clone.FullName(),
				fmt.Sprintf("instruction %d branches outside of the body", i))
		}
		ins.Operand = body.Instructions[j]
	}

	clone.Body = body
	return nil
}
