package modfile

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/funvibe/funweave/internal/config"
	"github.com/funvibe/funweave/internal/diagnostics"
	"github.com/funvibe/funweave/internal/metadata"
)

// ReadFile loads a module from path, choosing the format by extension.
// When refs is empty the module references a fresh core library.
func ReadFile(path string, refs ...*metadata.Module) (*metadata.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading module %s: %w", path, err)
	}
	if strings.HasSuffix(path, config.BinaryModuleExt) {
		return Decode(data, refs...)
	}
	return Parse(data, path, refs...)
}

// Parse links a module from its YAML text form. The path argument is used
// only for error messages.
func Parse(data []byte, path string, refs ...*metadata.Module) (*metadata.Module, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, diagnostics.Wrap(diagnostics.ErrW007, path, err)
	}
	return Link(&doc, refs...)
}

type pendingType struct {
	doc *TypeDoc
	def *metadata.TypeDef
}

type pendingMethod struct {
	doc *MethodDoc
	def *metadata.MethodDef
}

// Link builds a module from a document. Linking runs in phases: type
// shells first, then signatures, then bodies, so any member can refer to
// any type or member of the document.
func Link(doc *Document, refs ...*metadata.Module) (*metadata.Module, error) {
	if doc.Module == "" {
		return nil, diagnostics.NewError(diagnostics.ErrW007, "", "module name is missing")
	}
	if len(refs) == 0 {
		refs = []*metadata.Module{metadata.CoreLibrary()}
	}
	m := metadata.NewModule(doc.Module, refs...)
	if doc.Mvid != "" {
		id, err := uuid.Parse(doc.Mvid)
		if err != nil {
			return nil, diagnostics.Wrap(diagnostics.ErrW007, doc.Module, fmt.Errorf("mvid: %w", err))
		}
		m.Mvid = id
	}

	l := &linker{module: m, parser: &syntaxParser{module: m}}
	if err := l.declareTypes(doc.Types); err != nil {
		return nil, err
	}
	if err := l.declareMembers(); err != nil {
		return nil, err
	}
	if err := l.fillBodies(); err != nil {
		return nil, err
	}
	return m, nil
}

type linker struct {
	module  *metadata.Module
	parser  *syntaxParser
	types   []pendingType
	methods []pendingMethod
}

func (l *linker) fail(site string, format string, args ...any) error {
	return diagnostics.NewError(diagnostics.ErrW007, site, fmt.Sprintf(format, args...))
}

func (l *linker) declareTypes(docs []*TypeDoc) error {
	var generated []pendingType
	for _, td := range docs {
		def, err := l.declareType(td, nil)
		if err != nil {
			return err
		}
		l.module.AddType(def)
		if td.Declaring != "" {
			generated = append(generated, pendingType{doc: td, def: def})
		}
	}
	for _, g := range generated {
		parent := l.module.FindType(g.doc.Declaring)
		if parent == nil {
			return l.fail(g.doc.Name, "unknown declaring type %q", g.doc.Declaring)
		}
		g.def.DeclaringType = parent
	}

	seen := make(map[string]bool)
	for _, t := range l.module.AllTypes() {
		name := t.FullName()
		if seen[name] {
			return l.fail(name, "type declared twice")
		}
		seen[name] = true
	}
	return nil
}

func (l *linker) declareType(td *TypeDoc, declaring *metadata.TypeDef) (*metadata.TypeDef, error) {
	if td.Name == "" {
		return nil, l.fail(td.Namespace, "type without a name")
	}
	def := &metadata.TypeDef{Namespace: td.Namespace, Name: td.Name}
	for _, f := range td.Flags {
		flag, ok := metadata.ParseTypeAttribute(f)
		if !ok {
			return nil, l.fail(td.Name, "unknown type flag %q", f)
		}
		def.Attributes |= flag
	}
	def.DeclareGenericParams(td.Generics...)
	if declaring != nil {
		declaring.AddNestedType(def)
	}
	l.types = append(l.types, pendingType{doc: td, def: def})

	for _, nd := range td.Nested {
		if nd.Declaring != "" {
			return nil, l.fail(nd.Name, "nested type cannot name a declaring type")
		}
		if _, err := l.declareType(nd, def); err != nil {
			return nil, err
		}
	}
	return def, nil
}

func (l *linker) declareMembers() error {
	for _, pt := range l.types {
		td, def := pt.doc, pt.def
		site := def.FullName()
		scope := paramScope{typeParams: def.GenericParams}

		if td.Base != "" {
			base, err := l.parser.parseType(td.Base, scope)
			if err != nil {
				return l.fail(site, "base type: %v", err)
			}
			def.BaseType = base
		} else {
			def.BaseType = defaultBase(l.module, def)
		}
		for _, it := range td.Interfaces {
			iface, err := l.parser.parseType(it, scope)
			if err != nil {
				return l.fail(site, "interface: %v", err)
			}
			def.Interfaces = append(def.Interfaces, iface)
		}
		for _, ad := range td.Attributes {
			attrType, err := l.parser.lookup(ad.Type)
			if err != nil {
				return l.fail(site, "attribute: %v", err)
			}
			ca := &metadata.CustomAttribute{Type: attrType}
			for _, a := range ad.Args {
				v, err := l.parser.parseAttributeArg(a)
				if err != nil {
					return l.fail(site, "attribute %s: %v", ad.Type, err)
				}
				ca.Args = append(ca.Args, v)
			}
			def.CustomAttributes = append(def.CustomAttributes, ca)
		}
		for _, fd := range td.Fields {
			ft, err := l.parser.parseType(fd.Type, scope)
			if err != nil {
				return l.fail(site, "field %s: %v", fd.Name, err)
			}
			def.AddField(&metadata.FieldDef{Name: fd.Name, Type: ft, Static: fd.Static})
		}
		for _, md := range td.Methods {
			method, err := l.declareMethod(def, md)
			if err != nil {
				return err
			}
			l.methods = append(l.methods, pendingMethod{doc: md, def: method})
		}
	}
	return nil
}

func (l *linker) declareMethod(def *metadata.TypeDef, md *MethodDoc) (*metadata.MethodDef, error) {
	method := &metadata.MethodDef{Name: md.Name, Native: md.Native}
	for _, f := range md.Flags {
		flag, ok := metadata.ParseMethodAttribute(f)
		if !ok {
			return nil, l.fail(def.FullName()+"::"+md.Name, "unknown method flag %q", f)
		}
		method.Attributes |= flag
	}
	if md.Name == config.ConstructorName {
		method.Attributes |= metadata.MethodSpecialName
	}
	def.AddMethod(method)
	method.DeclareGenericParams(md.Generics...)

	scope := paramScope{typeParams: def.GenericParams, methodParams: method.GenericParams}
	if md.Returns != "" {
		rt, err := l.parser.parseType(md.Returns, scope)
		if err != nil {
			return nil, l.fail(method.FullName(), "return type: %v", err)
		}
		if !metadata.IsVoid(rt) {
			method.ReturnType = rt
		}
	}
	for _, pd := range md.Params {
		pt, err := l.parser.parseType(pd.Type, scope)
		if err != nil {
			return nil, l.fail(method.FullName(), "parameter %s: %v", pd.Name, err)
		}
		method.Params = append(method.Params, &metadata.Param{Name: pd.Name, Type: pt})
	}
	return method, nil
}

func (l *linker) fillBodies() error {
	for _, pm := range l.methods {
		md, method := pm.doc, pm.def
		if len(md.Body) == 0 && len(md.Locals) == 0 {
			continue
		}
		if method.IsAbstract() || method.Native != "" {
			return l.fail(method.FullName(), "abstract or native method with a body")
		}
		site := method.FullName()
		scope := paramScope{typeParams: method.DeclaringType.GenericParams, methodParams: method.GenericParams}
		body := &metadata.Body{InitLocals: md.InitLocals}

		for _, lt := range md.Locals {
			t, err := l.parser.parseType(lt, scope)
			if err != nil {
				return l.fail(site, "local %d: %v", len(body.Variables), err)
			}
			body.AddVariable(t)
		}

		labels := make(map[string]int)
		branches := make(map[*metadata.Instruction]string)
		for _, line := range md.Body {
			line = strings.TrimSpace(line)
			if name, ok := strings.CutPrefix(line, ".label "); ok {
				name = strings.TrimSpace(name)
				if _, dup := labels[name]; dup {
					return l.fail(site, "label %s defined twice", name)
				}
				labels[name] = len(body.Instructions)
				continue
			}
			ins, label, err := l.parser.parseInstruction(line, scope)
			if err != nil {
				return l.fail(site, "%q: %v", line, err)
			}
			if label != "" {
				branches[ins] = label
			}
			body.Append(ins)
		}
		for ins, label := range branches {
			idx, ok := labels[label]
			if !ok || idx >= len(body.Instructions) {
				return l.fail(site, "branch to undefined label %s", label)
			}
			ins.Operand = body.Instructions[idx]
		}
		method.Body = body
	}
	return nil
}

// defaultBase is the base type assumed when a document omits it.
func defaultBase(m *metadata.Module, def *metadata.TypeDef) metadata.TypeRef {
	name := config.ObjectTypeName
	switch {
	case def.IsInterface() || def.FullName() == config.ObjectTypeName:
		return nil
	case def.IsValueType():
		name = config.ValueTypeName
	}
	if base := m.FindType(name); base != nil {
		return base
	}
	return nil
}
