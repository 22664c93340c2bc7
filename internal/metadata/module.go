package metadata

import (
	"github.com/google/uuid"
)

// Module is the unit the weaver loads, rewrites and emits. Types holds the
// top-level collection; nested types hang off their declaring types.
type Module struct {
	Name       string
	Mvid       uuid.UUID
	References []*Module

	types []*TypeDef
}

// NewModule creates an empty module referencing refs.
func NewModule(name string, refs ...*Module) *Module {
	return &Module{Name: name, Mvid: uuid.New(), References: refs}
}

// Types returns the top-level types in declaration order.
func (m *Module) Types() []*TypeDef {
	out := make([]*TypeDef, len(m.types))
	copy(out, m.types)
	return out
}

// AddType appends t to the top-level collection. Types generated by the
// weaver are added here even when they carry a declaring type.
func (m *Module) AddType(t *TypeDef) *TypeDef {
	t.Module = m
	for _, n := range t.NestedTypes {
		setModule(n, m)
	}
	m.types = append(m.types, t)
	return t
}

func setModule(t *TypeDef, m *Module) {
	t.Module = m
	for _, n := range t.NestedTypes {
		setModule(n, m)
	}
}

// AllTypes returns every type of the module, nested ones right after their
// declaring type.
func (m *Module) AllTypes() []*TypeDef {
	var out []*TypeDef
	var walk func(t *TypeDef)
	walk = func(t *TypeDef) {
		out = append(out, t)
		for _, n := range t.NestedTypes {
			walk(n)
		}
	}
	for _, t := range m.types {
		walk(t)
	}
	return out
}

// FindType looks a type up by full name in this module, then in its
// references.
func (m *Module) FindType(fullName string) *TypeDef {
	if t := m.findOwnType(fullName); t != nil {
		return t
	}
	for _, ref := range m.References {
		if t := ref.findOwnType(fullName); t != nil {
			return t
		}
	}
	return nil
}

func (m *Module) findOwnType(fullName string) *TypeDef {
	for _, t := range m.AllTypes() {
		if t.FullName() == fullName {
			return t
		}
	}
	return nil
}

// ResolveType returns the definition a reference names, or nil for generic
// parameters.
func (m *Module) ResolveType(ref TypeRef) *TypeDef {
	return ElementDef(ref)
}

// ResolveMethod finds the definition a method operand names: same name,
// generic arity, parameter count and positional signature on the declaring
// type's definition.
func (m *Module) ResolveMethod(op MethodOperand) *MethodDef {
	if op == nil {
		return nil
	}
	ref := op.ElementMethod()
	decl := ElementDef(ref.DeclaringType)
	if decl == nil {
		return nil
	}
	return FindMethod(decl, ref)
}

// FindMethod looks for the method of decl matching ref's signature.
func FindMethod(decl *TypeDef, ref *MethodRef) *MethodDef {
	for _, cand := range decl.Methods {
		if cand.Name != ref.Name ||
			len(cand.Params) != len(ref.Params) ||
			len(cand.GenericParams) != len(ref.GenericParams) {
			continue
		}
		match := true
		for i, p := range cand.Params {
			if !sameSignatureType(p.Type, ref.Params[i]) {
				match = false
				break
			}
		}
		if match {
			return cand
		}
	}
	return nil
}

// ResolveField finds the field definition a field reference names.
func (m *Module) ResolveField(ref *FieldRef) *FieldDef {
	decl := ElementDef(ref.DeclaringType)
	if decl == nil {
		return nil
	}
	return decl.Field(ref.Name)
}

// ImportType brings a reference that may originate in another module into
// this module's reference space, recording the source module as a
// reference.
func (m *Module) ImportType(ref TypeRef) TypeRef {
	switch x := ref.(type) {
	case *TypeDef:
		m.addReference(x.Module)
	case *GenericInstance:
		m.addReference(x.Element.Module)
		for _, a := range x.Args {
			m.ImportType(a)
		}
	}
	return ref
}

// ImportMethod imports the declaring type and signature of a method operand.
func (m *Module) ImportMethod(op MethodOperand) MethodOperand {
	ref := op.ElementMethod()
	m.ImportType(ref.DeclaringType)
	m.ImportType(ref.ReturnType)
	for _, p := range ref.Params {
		m.ImportType(p)
	}
	if gim, ok := op.(*GenericInstanceMethod); ok {
		for _, a := range gim.Args {
			m.ImportType(a)
		}
	}
	return op
}

func (m *Module) addReference(other *Module) {
	if other == nil || other == m {
		return
	}
	for _, r := range m.References {
		if r == other {
			return
		}
	}
	m.References = append(m.References, other)
}
