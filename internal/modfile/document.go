// Package modfile reads and writes modules in the YAML text format
// (.fwm.yaml) and the gob binary format (.fwm).
package modfile

// Document is the serialized shape of a module. The same structure backs
// both the YAML and the binary format.
type Document struct {
	Module string     `yaml:"module"`
	Mvid   string     `yaml:"mvid,omitempty"`
	Types  []*TypeDoc `yaml:"types"`
}

// TypeDoc describes one type declaration. Nested types appear under their
// declaring type; generated types whose declaring type is itself a
// top-level entry name it in Declaring.
type TypeDoc struct {
	Namespace  string          `yaml:"namespace,omitempty"`
	Name       string          `yaml:"name"`
	Declaring  string          `yaml:"declaring,omitempty"`
	Flags      []string        `yaml:"flags,omitempty,flow"`
	Generics   []string        `yaml:"generics,omitempty,flow"`
	Base       string          `yaml:"base,omitempty"`
	Interfaces []string        `yaml:"interfaces,omitempty"`
	Attributes []*AttributeDoc `yaml:"attributes,omitempty"`
	Fields     []*FieldDoc     `yaml:"fields,omitempty"`
	Methods    []*MethodDoc    `yaml:"methods,omitempty"`
	Nested     []*TypeDoc      `yaml:"nested,omitempty"`
}

// AttributeDoc is a custom attribute. Arguments are written typeof(T) for
// type arguments and as quoted strings otherwise.
type AttributeDoc struct {
	Type string   `yaml:"type"`
	Args []string `yaml:"args,omitempty,flow"`
}

type FieldDoc struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Static bool   `yaml:"static,omitempty"`
}

type ParamDoc struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// MethodDoc describes a method. Body lines are instructions in
// "opcode operand" form; ".label NAME" lines name the next instruction.
type MethodDoc struct {
	Name       string      `yaml:"name"`
	Flags      []string    `yaml:"flags,omitempty,flow"`
	Generics   []string    `yaml:"generics,omitempty,flow"`
	Returns    string      `yaml:"returns,omitempty"`
	Params     []*ParamDoc `yaml:"params,omitempty"`
	Native     string      `yaml:"native,omitempty"`
	InitLocals bool        `yaml:"init_locals,omitempty"`
	Locals     []string    `yaml:"locals,omitempty"`
	Body       []string    `yaml:"body,omitempty"`
}
