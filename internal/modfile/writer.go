package modfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/funvibe/funweave/internal/config"
	"github.com/funvibe/funweave/internal/metadata"
)

// Build converts a module to its document form.
func Build(m *metadata.Module) *Document {
	doc := &Document{Module: m.Name, Mvid: m.Mvid.String()}
	for _, t := range m.Types() {
		td := buildType(m, t)
		if t.DeclaringType != nil {
			td.Namespace = ""
			td.Declaring = t.DeclaringType.FullName()
		}
		doc.Types = append(doc.Types, td)
	}
	return doc
}

// Marshal renders a module in the YAML text format.
func Marshal(m *metadata.Module) ([]byte, error) {
	data, err := yaml.Marshal(Build(m))
	if err != nil {
		return nil, fmt.Errorf("encoding module %s: %w", m.Name, err)
	}
	return data, nil
}

// WriteFile saves a module to path, choosing the format by extension.
func WriteFile(path string, m *metadata.Module) error {
	var data []byte
	var err error
	if strings.HasSuffix(path, config.BinaryModuleExt) {
		data, err = Encode(m)
	} else {
		data, err = Marshal(m)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func buildType(m *metadata.Module, t *metadata.TypeDef) *TypeDoc {
	td := &TypeDoc{
		Namespace: t.Namespace,
		Name:      t.Name,
		Flags:     t.Attributes.Names(),
		Generics:  paramNames(t.GenericParams),
	}
	if t.BaseType != nil && !metadata.AreSame(t.BaseType, defaultBase(m, t)) {
		td.Base = t.BaseType.String()
	}
	for _, i := range t.Interfaces {
		td.Interfaces = append(td.Interfaces, i.String())
	}
	for _, ca := range t.CustomAttributes {
		ad := &AttributeDoc{Type: ca.Type.FullName()}
		for _, a := range ca.Args {
			ad.Args = append(ad.Args, attributeArg(a))
		}
		td.Attributes = append(td.Attributes, ad)
	}
	for _, f := range t.Fields {
		td.Fields = append(td.Fields, &FieldDoc{Name: f.Name, Type: f.Type.String(), Static: f.Static})
	}
	for _, md := range t.Methods {
		td.Methods = append(td.Methods, buildMethod(md))
	}
	for _, n := range t.NestedTypes {
		td.Nested = append(td.Nested, buildType(m, n))
	}
	return td
}

func buildMethod(md *metadata.MethodDef) *MethodDoc {
	doc := &MethodDoc{
		Name:     md.Name,
		Flags:    md.Attributes.Names(),
		Generics: paramNames(md.GenericParams),
		Native:   md.Native,
	}
	if !metadata.IsVoid(md.ReturnType) {
		doc.Returns = md.ReturnType.String()
	}
	for _, p := range md.Params {
		doc.Params = append(doc.Params, &ParamDoc{Name: p.Name, Type: p.Type.String()})
	}
	if md.Body == nil {
		return doc
	}

	doc.InitLocals = md.Body.InitLocals
	for _, v := range md.Body.Variables {
		doc.Locals = append(doc.Locals, v.Type.String())
	}
	labels := make(map[*metadata.Instruction]string)
	for _, ins := range md.Body.Instructions {
		if target, ok := ins.Operand.(*metadata.Instruction); ok {
			labels[target] = "IL_" + fmt.Sprintf("%04d", md.Body.IndexOf(target))
		}
	}
	for _, ins := range md.Body.Instructions {
		if label, ok := labels[ins]; ok {
			doc.Body = append(doc.Body, ".label "+label)
		}
		doc.Body = append(doc.Body, instructionText(ins, labels))
	}
	return doc
}

func instructionText(ins *metadata.Instruction, labels map[*metadata.Instruction]string) string {
	name := ins.OpCode.String()
	switch op := ins.Operand.(type) {
	case nil:
		return name
	case int:
		return name + " " + strconv.Itoa(op)
	case string:
		return name + " " + strconv.Quote(op)
	case *metadata.Instruction:
		return name + " " + labels[op]
	case fmt.Stringer:
		return name + " " + op.String()
	}
	return name
}

func attributeArg(a any) string {
	switch v := a.(type) {
	case metadata.TypeRef:
		return "typeof(" + v.String() + ")"
	case string:
		return strconv.Quote(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	}
	return fmt.Sprint(a)
}

func paramNames(params []*metadata.GenericParam) []string {
	if len(params) == 0 {
		return nil
	}
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return names
}
