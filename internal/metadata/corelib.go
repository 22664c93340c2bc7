package metadata

import (
	"strings"

	"github.com/funvibe/funweave/internal/config"
)

// CoreLibrary builds the module every woven module references: the base
// types, List<T> and the weaver support types. Members without bodies are
// bound to interpreter natives by their Native key.
func CoreLibrary() *Module {
	m := NewModule(config.CoreModuleName)

	object := m.AddType(newType(config.ObjectTypeName, TypePublic))
	valueType := m.AddType(newType(config.ValueTypeName, TypePublic|TypeAbstract))
	valueType.BaseType = object
	void := m.AddType(newType(config.VoidTypeName, TypePublic|TypeSealed|TypeValueType))
	void.BaseType = valueType
	boolean := m.AddType(newType(config.BoolTypeName, TypePublic|TypeSealed|TypeValueType))
	boolean.BaseType = valueType
	int32 := m.AddType(newType(config.Int32TypeName, TypePublic|TypeSealed|TypeValueType))
	int32.BaseType = valueType
	str := m.AddType(newType(config.StringTypeName, TypePublic|TypeSealed))
	str.BaseType = object

	object.AddMethod(nativeMethod(config.ConstructorName, MethodPublic|MethodSpecialName, void, "Object::.ctor"))
	object.AddMethod(nativeMethod(config.EqualsName, MethodPublic|MethodVirtual, boolean, "Object::Equals", object))
	object.AddMethod(nativeMethod(config.ToStringName, MethodPublic|MethodVirtual, str, "Object::ToString"))
	boolean.AddMethod(nativeMethod(config.ToStringName, MethodPublic|MethodVirtual, str, "Boolean::ToString"))
	int32.AddMethod(nativeMethod(config.ToStringName, MethodPublic|MethodVirtual, str, "Int32::ToString"))
	str.AddMethod(nativeMethod("Concat", MethodPublic|MethodStatic, str, "String::Concat", str, str))
	str.AddMethod(nativeMethod("Concat", MethodPublic|MethodStatic, str, "String::Concat", str, str, str))
	str.AddMethod(nativeMethod("get_Length", MethodPublic, int32, "String::get_Length"))

	enumerable := m.AddType(newType(config.EnumerableName, TypePublic|TypeInterface|TypeAbstract))
	enumerable.DeclareGenericParams("T")

	list := m.AddType(newType(config.ListTypeName, TypePublic))
	list.BaseType = object
	list.DeclareGenericParams("T")
	list.Interfaces = []TypeRef{&GenericInstance{Element: enumerable, Args: []TypeRef{list.GenericParams[0]}}}
	list.AddMethod(nativeMethod(config.ConstructorName, MethodPublic|MethodSpecialName, void, "List::.ctor"))
	list.AddMethod(nativeMethod("Add", MethodPublic, void, "List::Add", list.GenericParams[0]))
	list.AddMethod(nativeMethod("get_Count", MethodPublic, int32, "List::get_Count"))
	list.AddMethod(nativeMethod("get_Item", MethodPublic, list.GenericParams[0], "List::get_Item", int32))

	attribute := m.AddType(newType(config.AttributeName, TypePublic|TypeAbstract))
	attribute.BaseType = object
	for _, name := range []string{
		config.GenerateSpecializationAttribute,
		config.InjectSpecializationsAttribute,
		config.TypeclassAttribute,
	} {
		marker := m.AddType(newType(name, TypePublic|TypeSealed))
		marker.BaseType = attribute
	}

	implicitly := m.AddType(newType(config.ImplicitlyTypeName, TypePublic|TypeAbstract|TypeSealed))
	implicitly.BaseType = object
	resolve := implicitly.AddMethod(&MethodDef{
		Name:       config.ResolveMethodName,
		Attributes: MethodPublic | MethodStatic,
		Native:     "Implicitly::Resolve",
	})
	resolve.DeclareGenericParams("TC")
	resolve.ReturnType = resolve.GenericParams[0]
	resolveValue := implicitly.AddMethod(&MethodDef{
		Name:       config.ResolveMethodName,
		Attributes: MethodPublic | MethodStatic,
		Native:     "Implicitly::Resolve",
		Params:     []*Param{{Name: "value", Type: object}},
	})
	resolveValue.DeclareGenericParams("TC")
	resolveValue.ReturnType = resolveValue.GenericParams[0]

	return m
}

func newType(fullName string, attrs TypeAttributes) *TypeDef {
	ns, name := SplitFullName(fullName)
	return &TypeDef{Namespace: ns, Name: name, Attributes: attrs}
}

func nativeMethod(name string, attrs MethodAttributes, ret TypeRef, native string, params ...TypeRef) *MethodDef {
	m := &MethodDef{Name: name, Attributes: attrs, ReturnType: ret, Native: native}
	for i, p := range params {
		m.Params = append(m.Params, &Param{Name: "arg" + string(rune('0'+i)), Type: p})
	}
	return m
}

// SplitFullName splits "Ns.Sub.Name" into namespace and simple name.
func SplitFullName(fullName string) (namespace, name string) {
	if i := strings.LastIndexByte(fullName, '.'); i >= 0 {
		return fullName[:i], fullName[i+1:]
	}
	return "", fullName
}

// IsVoid reports whether t is absent or names System.Void.
func IsVoid(t TypeRef) bool {
	return t == nil || t.FullName() == config.VoidTypeName
}
