package vm

import (
	"strconv"
	"strings"

	"github.com/funvibe/funweave/internal/config"
	"github.com/funvibe/funweave/internal/metadata"
)

// Value is a runtime value: int32, bool, string, nil, *Object, *List or a
// managed pointer (*Ref) produced by ldloca/ldarga.
type Value any

// Object is an instance of a module type. Instances of value types are
// copied whenever they are loaded, boxed or unboxed.
type Object struct {
	Type     *metadata.TypeDef
	TypeArgs []metadata.TypeRef
	Fields   map[string]Value
}

// List backs System.Collections.Generic.List<T>.
type List struct {
	ElemType metadata.TypeRef
	Items    []Value
}

// Ref is a managed pointer to an argument or local slot.
type Ref struct {
	slot *Value
}

func (r *Ref) Load() Value   { return *r.slot }
func (r *Ref) Store(v Value) { *r.slot = v }

func deref(v Value) Value {
	if r, ok := v.(*Ref); ok {
		return r.Load()
	}
	return v
}

// copyValue gives value-type instances copy semantics.
func copyValue(v Value) Value {
	obj, ok := v.(*Object)
	if !ok || !obj.Type.IsValueType() {
		return v
	}
	out := &Object{Type: obj.Type, TypeArgs: obj.TypeArgs, Fields: make(map[string]Value, len(obj.Fields))}
	for k, f := range obj.Fields {
		out.Fields[k] = copyValue(f)
	}
	return out
}

// valuesEqual is Object::Equals: field-wise for value types, identity for
// reference types.
func valuesEqual(a, b Value) bool {
	oa, okA := a.(*Object)
	ob, okB := b.(*Object)
	if okA && okB && oa.Type.IsValueType() {
		if oa.Type != ob.Type {
			return false
		}
		for k, f := range oa.Fields {
			if !valuesEqual(f, ob.Fields[k]) {
				return false
			}
		}
		return true
	}
	if ia, ok := asInt(a); ok {
		ib, ok := asInt(b)
		return ok && ia == ib
	}
	return a == b
}

func asInt(v Value) (int32, bool) {
	switch n := v.(type) {
	case int32:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func truthy(v Value) bool {
	switch n := v.(type) {
	case nil:
		return false
	case bool:
		return n
	case int32:
		return n != 0
	}
	return true
}

// Format renders v the way ToString would.
func Format(v Value) string {
	switch n := deref(v).(type) {
	case nil:
		return ""
	case int32:
		return strconv.Itoa(int(n))
	case bool:
		if n {
			return "True"
		}
		return "False"
	case string:
		return n
	case *Object:
		return typeName(n.Type, n.TypeArgs)
	case *List:
		return config.ListTypeName + "<" + refName(n.ElemType) + ">"
	}
	return "?"
}

func typeName(def *metadata.TypeDef, args []metadata.TypeRef) string {
	if len(args) == 0 {
		return def.FullName()
	}
	names := make([]string, len(args))
	for i, a := range args {
		names[i] = refName(a)
	}
	return def.FullName() + "<" + strings.Join(names, ", ") + ">"
}

func refName(t metadata.TypeRef) string {
	if t == nil {
		return config.ObjectTypeName
	}
	return t.FullName()
}
