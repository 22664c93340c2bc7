// Package metadata models a compiled module: type and method definitions,
// references to them, generic parameters and stack-machine instruction
// streams. It is the host container the weaver reads and rewrites.
package metadata

import (
	"strconv"
	"strings"
)

// TypeRef is anything that can stand where a type is expected:
// a definition, a generic parameter or an instantiated generic type.
type TypeRef interface {
	// FullName is the human readable name (parameters by name).
	FullName() string
	// String is the syntax form used by the module text format
	// (parameters as !n / !!n).
	String() string
	typeRef()
}

// GenericOwner is a declaration that introduces generic parameters.
type GenericOwner interface {
	GenericParameters() []*GenericParam
	isMethodOwner() bool
}

// GenericParam is an unresolved type placeholder. It is identified by its
// owner and position; the name is informational.
type GenericParam struct {
	Name     string
	Position int
	Owner    GenericOwner
}

func (*GenericParam) typeRef() {}

func (p *GenericParam) FullName() string { return p.Name }

func (p *GenericParam) String() string {
	if p.IsMethodParam() {
		return "!!" + strconv.Itoa(p.Position)
	}
	return "!" + strconv.Itoa(p.Position)
}

// IsMethodParam reports whether the parameter was introduced by a method.
func (p *GenericParam) IsMethodParam() bool {
	return p.Owner != nil && p.Owner.isMethodOwner()
}

// NewGenericParams declares fresh parameters with the given names on owner.
func NewGenericParams(owner GenericOwner, names ...string) []*GenericParam {
	params := make([]*GenericParam, len(names))
	for i, name := range names {
		params[i] = &GenericParam{Name: name, Position: i, Owner: owner}
	}
	return params
}

// GenericInstance is a generic type definition applied to type arguments,
// e.g. List<System.String>.
type GenericInstance struct {
	Element *TypeDef
	Args    []TypeRef
}

func (*GenericInstance) typeRef() {}

func (g *GenericInstance) FullName() string {
	return g.Element.FullName() + "<" + joinRefs(g.Args, TypeRef.FullName) + ">"
}

func (g *GenericInstance) String() string {
	return g.Element.String() + "<" + joinRefs(g.Args, TypeRef.String) + ">"
}

// MakeGenericInstance applies args to def. The argument count must match the
// definition's parameter count.
func MakeGenericInstance(def *TypeDef, args ...TypeRef) (*GenericInstance, error) {
	if len(def.GenericParams) != len(args) {
		return nil, &ParamCountError{What: def.FullName(), Expected: len(def.GenericParams), Got: len(args)}
	}
	copied := make([]TypeRef, len(args))
	copy(copied, args)
	return &GenericInstance{Element: def, Args: copied}, nil
}

// ParamCountError reports a generic argument list whose length disagrees
// with the parameter list of the provider.
type ParamCountError struct {
	What     string
	Expected int
	Got      int
}

func (e *ParamCountError) Error() string {
	return "generic parameter count mismatch for " + e.What +
		": expecting " + strconv.Itoa(e.Expected) + ", got " + strconv.Itoa(e.Got)
}

func joinRefs(refs []TypeRef, f func(TypeRef) string) string {
	parts := make([]string, len(refs))
	for i, r := range refs {
		if r == nil {
			parts[i] = "?"
			continue
		}
		parts[i] = f(r)
	}
	return strings.Join(parts, ", ")
}

// AreSame compares two type references structurally: definitions by full
// name, parameters by owner and position, instances element and
// argument-wise.
func AreSame(a, b TypeRef) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *TypeDef:
		y, ok := b.(*TypeDef)
		return ok && (x == y || x.FullName() == y.FullName())
	case *GenericParam:
		y, ok := b.(*GenericParam)
		return ok && (x == y || (x.Owner == y.Owner && x.Position == y.Position))
	case *GenericInstance:
		y, ok := b.(*GenericInstance)
		if !ok || !AreSame(x.Element, y.Element) || len(x.Args) != len(y.Args) {
			return false
		}
		for i := range x.Args {
			if !AreSame(x.Args[i], y.Args[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// sameSignatureType compares types as they appear in member signatures,
// where generic parameters are positional: !0 of a reference matches !0 of
// the definition it names.
func sameSignatureType(a, b TypeRef) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *GenericParam:
		y, ok := b.(*GenericParam)
		return ok && x.Position == y.Position && x.IsMethodParam() == y.IsMethodParam()
	case *GenericInstance:
		y, ok := b.(*GenericInstance)
		if !ok || !AreSame(x.Element, y.Element) || len(x.Args) != len(y.Args) {
			return false
		}
		for i := range x.Args {
			if !sameSignatureType(x.Args[i], y.Args[i]) {
				return false
			}
		}
		return true
	}
	return AreSame(a, b)
}

// ContainsGenericParams reports whether t mentions any generic parameter.
func ContainsGenericParams(t TypeRef) bool {
	switch x := t.(type) {
	case *GenericParam:
		return true
	case *GenericInstance:
		for _, a := range x.Args {
			if ContainsGenericParams(a) {
				return true
			}
		}
	}
	return false
}

// ElementDef returns the definition behind a reference: the definition
// itself, or the element of a generic instance. Parameters have none.
func ElementDef(t TypeRef) *TypeDef {
	switch x := t.(type) {
	case *TypeDef:
		return x
	case *GenericInstance:
		return x.Element
	}
	return nil
}
