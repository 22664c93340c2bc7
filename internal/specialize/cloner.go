package specialize

import (
	"fmt"

	"github.com/funvibe/funweave/internal/config"
	"github.com/funvibe/funweave/internal/diagnostics"
	"github.com/funvibe/funweave/internal/metadata"
)

// Options controls how clones are named and decorated.
type Options struct {
	// Delimiter separates the original name from the argument's full name.
	Delimiter string
	// DropAttributes lists attribute types not copied onto clones.
	DropAttributes []string
}

// Cloner produces specialized clones of generic types inside a module.
type Cloner struct {
	module *metadata.Module
	opts   Options
}

func NewCloner(m *metadata.Module, opts Options) *Cloner {
	if opts.Delimiter == "" {
		opts.Delimiter = config.SpecializationDelimiter
	}
	return &Cloner{module: m, opts: opts}
}

// Module returns the module clones are added to.
func (c *Cloner) Module() *metadata.Module { return c.module }

// Specialize clones def with its first generic parameter bound to arg.
// Nested types are cloned alongside under a chained scope. Every produced
// type is appended to the module's top-level collection.
func (c *Cloner) Specialize(def *metadata.TypeDef, arg metadata.TypeRef) (*Entry, error) {
	return c.specialize(def, arg, false)
}

func (c *Cloner) specialize(def *metadata.TypeDef, arg metadata.TypeRef, isNested bool) (*Entry, error) {
	if !def.HasGenericParams() {
		return nil, diagnostics.NewError(diagnostics.ErrW001, def.FullName(),
			"type has no generic parameters to specialize")
	}
	if !isNested && len(def.GenericParams) > 1 {
		return nil, diagnostics.NewError(diagnostics.ErrW003, def.FullName(),
			fmt.Sprintf("specializing a type with %d generic parameters is not implemented", len(def.GenericParams)))
	}
	if arg == nil || metadata.ContainsGenericParams(arg) {
		return nil, diagnostics.NewError(diagnostics.ErrW001, def.FullName(),
			fmt.Sprintf("specialization argument %v is not a concrete type", arg))
	}

	r := &run{cloner: c, methods: make(map[*metadata.MethodDef]*metadata.MethodDef)}
	entry := r.declareShell(def, arg, nil, nil)
	for _, p := range r.types {
		if err := r.declareMembers(p); err != nil {
			return nil, err
		}
	}
	for _, p := range r.types {
		if err := r.fillBodies(p); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

type pendingClone struct {
	original *metadata.TypeDef
	clone    *metadata.TypeDef
	scope    *Scope
	entry    *Entry
}

// run holds the state of one Specialize call: every scope of the family
// of clones being produced and the method mapping across all of them.
type run struct {
	cloner  *Cloner
	family  []*Scope
	types   []*pendingClone
	methods map[*metadata.MethodDef]*metadata.MethodDef
}

// declareShell creates the clone of def and, recursively, of its nested
// types. Members are added in a later phase once all shells exist.
func (r *run) declareShell(def *metadata.TypeDef, arg metadata.TypeRef, outer *Scope, parent *metadata.TypeDef) *Entry {
	clone := &metadata.TypeDef{
		Namespace:  def.Namespace,
		Name:       def.Name,
		Attributes: def.Attributes,
	}
	if parent == nil {
		clone.Name = def.Name + r.cloner.opts.Delimiter + arg.FullName()
		clone.DeclaringType = def.DeclaringType
	} else {
		clone.Namespace = ""
		clone.DeclaringType = parent
	}

	names := make([]string, 0, len(def.GenericParams)-1)
	for _, p := range def.GenericParams[1:] {
		names = append(names, p.Name)
	}
	clone.DeclareGenericParams(names...)
	r.cloner.module.AddType(clone)

	scope := NewScope(def, arg, clone, outer)
	r.family = append(r.family, scope)
	entry := &Entry{
		Generic:     def,
		Argument:    arg,
		Specialized: clone,
		Methods:     make(map[*metadata.MethodDef]*metadata.MethodDef, len(def.Methods)),
	}
	r.types = append(r.types, &pendingClone{original: def, clone: clone, scope: scope, entry: entry})

	for _, nested := range def.NestedTypes {
		if !nested.HasGenericParams() {
			continue
		}
		entry.Nested = append(entry.Nested, r.declareShell(nested, arg, scope, clone))
	}
	return entry
}

func (r *run) isProduced(def *metadata.TypeDef) bool {
	for _, s := range r.family {
		if s.Produced == def {
			return true
		}
	}
	return false
}

func (r *run) dropped(ca *metadata.CustomAttribute) bool {
	for _, name := range r.cloner.opts.DropAttributes {
		if ca.Type != nil && ca.Type.FullName() == name {
			return true
		}
	}
	return false
}

// declareMembers fills in the base type, interfaces, attributes, fields and
// method signatures of a clone.
func (r *run) declareMembers(p *pendingClone) error {
	tr := &transformer{run: r, scope: p.scope}
	var err error

	if p.clone.BaseType, err = tr.typeRef(p.original.BaseType); err != nil {
		return err
	}
	for _, iface := range p.original.Interfaces {
		t, err := tr.typeRef(iface)
		if err != nil {
			return err
		}
		p.clone.Interfaces = append(p.clone.Interfaces, t)
	}
	for _, ca := range p.original.CustomAttributes {
		if !r.dropped(ca) {
			p.clone.CustomAttributes = append(p.clone.CustomAttributes, ca)
		}
	}
	for _, f := range p.original.Fields {
		t, err := tr.typeRef(f.Type)
		if err != nil {
			return err
		}
		p.clone.AddField(&metadata.FieldDef{Name: f.Name, Type: t, Static: f.Static})
	}
	for _, m := range p.original.Methods {
		clone, err := r.declareMethod(m, p)
		if err != nil {
			return err
		}
		p.entry.Methods[m] = clone
		r.methods[m] = clone
	}
	return nil
}

func (r *run) fillBodies(p *pendingClone) error {
	for _, m := range p.original.Methods {
		if err := r.fillBody(m, p.entry.Methods[m], p.scope); err != nil {
			return err
		}
	}
	return nil
}
