package metadata

import "strings"

// TypeAttributes are the declaration flags of a type.
type TypeAttributes uint32

const (
	TypePublic TypeAttributes = 1 << iota
	TypeInterface
	TypeAbstract
	TypeSealed
	TypeValueType
)

var typeAttributeNames = []struct {
	flag TypeAttributes
	name string
}{
	{TypePublic, "public"},
	{TypeInterface, "interface"},
	{TypeAbstract, "abstract"},
	{TypeSealed, "sealed"},
	{TypeValueType, "valuetype"},
}

func (a TypeAttributes) Names() []string {
	var names []string
	for _, n := range typeAttributeNames {
		if a&n.flag != 0 {
			names = append(names, n.name)
		}
	}
	return names
}

// ParseTypeAttribute maps a flag name back to its bit.
func ParseTypeAttribute(name string) (TypeAttributes, bool) {
	for _, n := range typeAttributeNames {
		if n.name == name {
			return n.flag, true
		}
	}
	return 0, false
}

// MethodAttributes are the declaration flags of a method.
type MethodAttributes uint32

const (
	MethodPublic MethodAttributes = 1 << iota
	MethodPrivate
	MethodStatic
	MethodVirtual
	MethodAbstract
	MethodSpecialName
)

var methodAttributeNames = []struct {
	flag MethodAttributes
	name string
}{
	{MethodPublic, "public"},
	{MethodPrivate, "private"},
	{MethodStatic, "static"},
	{MethodVirtual, "virtual"},
	{MethodAbstract, "abstract"},
	{MethodSpecialName, "specialname"},
}

func (a MethodAttributes) Names() []string {
	var names []string
	for _, n := range methodAttributeNames {
		if a&n.flag != 0 {
			names = append(names, n.name)
		}
	}
	return names
}

// ParseMethodAttribute maps a flag name back to its bit.
func ParseMethodAttribute(name string) (MethodAttributes, bool) {
	for _, n := range methodAttributeNames {
		if n.name == name {
			return n.flag, true
		}
	}
	return 0, false
}

// CustomAttribute is a marker annotation. Args holds constructor arguments;
// type arguments are TypeRefs.
type CustomAttribute struct {
	Type *TypeDef
	Args []any
}

// TypeDef is a type declaration.
//
// Nested types re-declare the generic parameters of their enclosing types
// first, followed by their own, so parameter 0 of a nested type stands for
// the outermost enclosing parameter.
type TypeDef struct {
	Namespace        string
	Name             string
	Attributes       TypeAttributes
	BaseType         TypeRef
	Interfaces       []TypeRef
	GenericParams    []*GenericParam
	Fields           []*FieldDef
	Methods          []*MethodDef
	NestedTypes      []*TypeDef
	DeclaringType    *TypeDef
	CustomAttributes []*CustomAttribute
	Module           *Module
}

func (*TypeDef) typeRef() {}

func (t *TypeDef) GenericParameters() []*GenericParam { return t.GenericParams }

func (*TypeDef) isMethodOwner() bool { return false }

func (t *TypeDef) FullName() string {
	if t.DeclaringType != nil {
		return t.DeclaringType.FullName() + "/" + t.Name
	}
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

func (t *TypeDef) String() string { return t.FullName() }

func (t *TypeDef) HasGenericParams() bool { return len(t.GenericParams) > 0 }

func (t *TypeDef) IsInterface() bool { return t.Attributes&TypeInterface != 0 }

func (t *TypeDef) IsAbstract() bool { return t.Attributes&(TypeAbstract|TypeInterface) != 0 }

func (t *TypeDef) IsValueType() bool { return t.Attributes&TypeValueType != 0 }

// DeclareGenericParams replaces the type's parameter list.
func (t *TypeDef) DeclareGenericParams(names ...string) {
	t.GenericParams = NewGenericParams(t, names...)
}

func (t *TypeDef) AddField(f *FieldDef) *FieldDef {
	f.DeclaringType = t
	t.Fields = append(t.Fields, f)
	return f
}

func (t *TypeDef) AddMethod(m *MethodDef) *MethodDef {
	m.DeclaringType = t
	t.Methods = append(t.Methods, m)
	return m
}

func (t *TypeDef) AddNestedType(n *TypeDef) *TypeDef {
	n.DeclaringType = t
	n.Module = t.Module
	t.NestedTypes = append(t.NestedTypes, n)
	return n
}

func (t *TypeDef) Field(name string) *FieldDef {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// MethodsNamed returns the type's own methods with the given name.
func (t *TypeDef) MethodsNamed(name string) []*MethodDef {
	var out []*MethodDef
	for _, m := range t.Methods {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// HasAttribute reports whether a custom attribute of the given full name is
// applied to the type.
func (t *TypeDef) HasAttribute(fullName string) bool {
	return len(t.AttributesOf(fullName)) > 0
}

func (t *TypeDef) AttributesOf(fullName string) []*CustomAttribute {
	var out []*CustomAttribute
	for _, ca := range t.CustomAttributes {
		if ca.Type != nil && ca.Type.FullName() == fullName {
			out = append(out, ca)
		}
	}
	return out
}

// Implements reports whether the type (or one of its bases) lists an
// interface whose definition is iface.
func (t *TypeDef) Implements(iface *TypeDef) bool {
	for cur := t; cur != nil; cur = ElementDef(cur.BaseType) {
		for _, i := range cur.Interfaces {
			if d := ElementDef(i); d != nil && AreSame(d, iface) {
				return true
			}
		}
	}
	return false
}

// FieldDef is a field declaration.
type FieldDef struct {
	Name          string
	Type          TypeRef
	Static        bool
	DeclaringType *TypeDef
}

// Ref returns a field reference naming this definition on its declaring
// type (instantiated over its own parameters when generic).
func (f *FieldDef) Ref() *FieldRef {
	return &FieldRef{Name: f.Name, FieldType: f.Type, DeclaringType: selfReference(f.DeclaringType)}
}

// Param is a method parameter.
type Param struct {
	Name string
	Type TypeRef
}

// MethodDef is a method declaration. Native names an interpreter intrinsic
// for methods whose body lives outside the module.
type MethodDef struct {
	Name          string
	Attributes    MethodAttributes
	ReturnType    TypeRef
	Params        []*Param
	GenericParams []*GenericParam
	Body          *Body
	DeclaringType *TypeDef
	Native        string
}

func (m *MethodDef) GenericParameters() []*GenericParam { return m.GenericParams }

func (*MethodDef) isMethodOwner() bool { return true }

func (m *MethodDef) IsStatic() bool { return m.Attributes&MethodStatic != 0 }

func (m *MethodDef) IsAbstract() bool { return m.Attributes&MethodAbstract != 0 }

func (m *MethodDef) IsConstructor() bool {
	return m.Attributes&MethodSpecialName != 0 && m.Name == ".ctor"
}

func (m *MethodDef) HasBody() bool { return m.Body != nil }

// DeclareGenericParams replaces the method's parameter list.
func (m *MethodDef) DeclareGenericParams(names ...string) {
	m.GenericParams = NewGenericParams(m, names...)
}

// ParamTypes returns the parameter types in order.
func (m *MethodDef) ParamTypes() []TypeRef {
	out := make([]TypeRef, len(m.Params))
	for i, p := range m.Params {
		out[i] = p.Type
	}
	return out
}

func (m *MethodDef) FullName() string {
	var sb strings.Builder
	if m.DeclaringType != nil {
		sb.WriteString(m.DeclaringType.FullName())
		sb.WriteString("::")
	}
	sb.WriteString(m.Name)
	if len(m.GenericParams) > 0 {
		names := make([]string, len(m.GenericParams))
		for i, p := range m.GenericParams {
			names[i] = p.Name
		}
		sb.WriteString("<" + strings.Join(names, ", ") + ">")
	}
	sb.WriteString("(" + joinRefs(m.ParamTypes(), TypeRef.FullName) + ")")
	return sb.String()
}

func (m *MethodDef) String() string { return m.FullName() }

// Ref builds a method reference to this definition through its declaring
// type instantiated over its own parameters. The reference gets its own
// copies of the method's generic parameters.
func (m *MethodDef) Ref() *MethodRef {
	return m.RefOn(selfReference(m.DeclaringType))
}

// RefOn builds a method reference to this definition with an explicit
// declaring type (e.g. a concrete instance of the definition's type).
func (m *MethodDef) RefOn(declaring TypeRef) *MethodRef {
	ref := &MethodRef{
		Name:          m.Name,
		DeclaringType: declaring,
		HasThis:       !m.IsStatic(),
	}
	names := make([]string, len(m.GenericParams))
	for i, p := range m.GenericParams {
		names[i] = p.Name
	}
	ref.GenericParams = NewGenericParams(ref, names...)
	ref.ReturnType = rebindParams(m.ReturnType, m, ref)
	ref.Params = make([]TypeRef, len(m.Params))
	for i, p := range m.Params {
		ref.Params[i] = rebindParams(p.Type, m, ref)
	}
	return ref
}

// selfReference is the type as seen from inside its own body: the bare
// definition, or the definition applied to its own parameters.
func selfReference(t *TypeDef) TypeRef {
	if t == nil || !t.HasGenericParams() {
		return t
	}
	args := make([]TypeRef, len(t.GenericParams))
	for i, p := range t.GenericParams {
		args[i] = p
	}
	return &GenericInstance{Element: t, Args: args}
}

// SelfReference exposes selfReference for callers outside the package.
func SelfReference(t *TypeDef) TypeRef { return selfReference(t) }

// rebindParams moves parameters owned by from onto the
// positional equivalents owned by to.
func rebindParams(t TypeRef, from, to GenericOwner) TypeRef {
	switch x := t.(type) {
	case *GenericParam:
		if x.Owner == from {
			params := to.GenericParameters()
			if x.Position < len(params) {
				return params[x.Position]
			}
		}
	case *GenericInstance:
		args := make([]TypeRef, len(x.Args))
		changed := false
		for i, a := range x.Args {
			args[i] = rebindParams(a, from, to)
			changed = changed || args[i] != a
		}
		if changed {
			return &GenericInstance{Element: x.Element, Args: args}
		}
	}
	return t
}

// RebindOwner moves parameters owned by from onto the positional
// equivalents owned by to, inside generic instances too.
func RebindOwner(t TypeRef, from, to GenericOwner) TypeRef {
	return rebindParams(t, from, to)
}
