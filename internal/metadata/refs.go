package metadata

import (
	"strconv"
	"strings"
)

// MethodOperand is what call-like instructions carry: a plain method
// reference or a generic method instantiation.
type MethodOperand interface {
	// ElementMethod is the uninstantiated reference.
	ElementMethod() *MethodRef
	String() string
}

// MethodRef names a method through a declaring type. Signature types are
// expressed over the open declaring type (!n) and the reference's own
// generic parameters (!!n), as in member reference signatures.
type MethodRef struct {
	Name          string
	DeclaringType TypeRef
	ReturnType    TypeRef
	Params        []TypeRef
	GenericParams []*GenericParam
	HasThis       bool
}

func (r *MethodRef) ElementMethod() *MethodRef { return r }

func (r *MethodRef) GenericParameters() []*GenericParam { return r.GenericParams }

func (*MethodRef) isMethodOwner() bool { return true }

func (r *MethodRef) String() string {
	var sb strings.Builder
	sb.WriteString(refString(r.ReturnType))
	sb.WriteByte(' ')
	sb.WriteString(refString(r.DeclaringType))
	sb.WriteString("::")
	sb.WriteString(r.Name)
	if len(r.GenericParams) > 0 {
		sb.WriteString("``" + strconv.Itoa(len(r.GenericParams)))
	}
	sb.WriteString("(" + joinRefs(r.Params, TypeRef.String) + ")")
	return sb.String()
}

// WithDeclaringType clones the reference onto another declaring type,
// giving the clone fresh method-level parameters.
func (r *MethodRef) WithDeclaringType(declaring TypeRef) *MethodRef {
	clone := &MethodRef{Name: r.Name, DeclaringType: declaring, HasThis: r.HasThis}
	names := make([]string, len(r.GenericParams))
	for i, p := range r.GenericParams {
		names[i] = p.Name
	}
	clone.GenericParams = NewGenericParams(clone, names...)
	clone.ReturnType = rebindParams(r.ReturnType, r, clone)
	clone.Params = make([]TypeRef, len(r.Params))
	for i, p := range r.Params {
		clone.Params[i] = rebindParams(p, r, clone)
	}
	return clone
}

// GenericInstanceMethod is a generic method applied to type arguments.
type GenericInstanceMethod struct {
	Method *MethodRef
	Args   []TypeRef
}

func (g *GenericInstanceMethod) ElementMethod() *MethodRef { return g.Method }

func (g *GenericInstanceMethod) String() string {
	m := g.Method
	var sb strings.Builder
	sb.WriteString(refString(m.ReturnType))
	sb.WriteByte(' ')
	sb.WriteString(refString(m.DeclaringType))
	sb.WriteString("::")
	sb.WriteString(m.Name)
	sb.WriteString("<" + joinRefs(g.Args, TypeRef.String) + ">")
	sb.WriteString("(" + joinRefs(m.Params, TypeRef.String) + ")")
	return sb.String()
}

// MakeGenericInstanceMethod applies args to a generic method reference.
func MakeGenericInstanceMethod(m *MethodRef, args ...TypeRef) (*GenericInstanceMethod, error) {
	if len(m.GenericParams) != len(args) {
		return nil, &ParamCountError{What: m.Name, Expected: len(m.GenericParams), Got: len(args)}
	}
	copied := make([]TypeRef, len(args))
	copy(copied, args)
	return &GenericInstanceMethod{Method: m, Args: copied}, nil
}

// FieldRef names a field through a declaring type; FieldType is expressed
// over the open declaring type.
type FieldRef struct {
	Name          string
	FieldType     TypeRef
	DeclaringType TypeRef
}

func (f *FieldRef) String() string {
	return refString(f.FieldType) + " " + refString(f.DeclaringType) + "::" + f.Name
}

func refString(t TypeRef) string {
	if t == nil {
		return "System.Void"
	}
	return t.String()
}
