// Package implicit replaces calls to the resolution primitive with direct
// construction of the typeclass implementation registered for the
// requested instance type.
package implicit

import (
	"github.com/funvibe/funweave/internal/metadata"
	"github.com/funvibe/funweave/internal/specialize"
)

// Declaration records that Implementation implements Marker<InstanceType>.
// For generic implementations InstanceType is a pattern over the
// implementation's parameters, e.g. List<!0>.
type Declaration struct {
	Marker         *metadata.TypeDef
	Implementation *metadata.TypeDef
	InstanceType   metadata.TypeRef

	specializations []*specialize.Entry
}

// Generic reports whether the implementation must be specialized before use.
func (d *Declaration) Generic() bool { return d.Implementation.HasGenericParams() }

func (d *Declaration) String() string {
	return d.Implementation.FullName() + ": " + d.Marker.FullName() + "<" + d.InstanceType.FullName() + ">"
}

// Index holds every typeclass declaration of a module, split by whether
// the implementation is generic.
type Index struct {
	Declarations []*Declaration
	Generic      []*Declaration
}

// Collect scans every non-abstract type of m, nested ones included, for
// interfaces whose definition carries the typeclass marker.
func Collect(m *metadata.Module, marker string) *Index {
	idx := &Index{}
	for _, t := range m.AllTypes() {
		if t.IsAbstract() {
			continue
		}
		for _, iface := range t.Interfaces {
			gi, ok := iface.(*metadata.GenericInstance)
			if !ok || len(gi.Args) != 1 || !gi.Element.HasAttribute(marker) {
				continue
			}
			d := &Declaration{Marker: gi.Element, Implementation: t, InstanceType: gi.Args[0]}
			if d.Generic() {
				idx.Generic = append(idx.Generic, d)
			} else {
				idx.Declarations = append(idx.Declarations, d)
			}
		}
	}
	return idx
}

// Len is the number of declarations in both indexes.
func (idx *Index) Len() int { return len(idx.Declarations) + len(idx.Generic) }

// IsTypeclass reports whether def is a marker interface with at least one
// implementation.
func (idx *Index) IsTypeclass(def *metadata.TypeDef) bool {
	for _, list := range [][]*Declaration{idx.Declarations, idx.Generic} {
		for _, d := range list {
			if d.Marker == def {
				return true
			}
		}
	}
	return false
}

// genericRoot reports whether t is a generic implementation or is nested
// inside one. Such types are only woven through their specializations.
func (idx *Index) genericRoot(t *metadata.TypeDef) bool {
	for cur := t; cur != nil; cur = cur.DeclaringType {
		for _, d := range idx.Generic {
			if d.Implementation == cur {
				return true
			}
		}
	}
	return false
}

// lookup returns the non-generic implementations of marker for instance.
func (idx *Index) lookup(marker *metadata.TypeDef, instance metadata.TypeRef) []*Declaration {
	var out []*Declaration
	for _, d := range idx.Declarations {
		if d.Marker == marker && metadata.AreSame(d.InstanceType, instance) {
			out = append(out, d)
		}
	}
	return out
}

// genericMatch is a generic implementation together with the argument its
// first parameter must be bound to.
type genericMatch struct {
	decl     *Declaration
	argument metadata.TypeRef
}

// lookupGeneric returns the generic implementations of marker whose
// instance pattern unifies with instance.
func (idx *Index) lookupGeneric(marker *metadata.TypeDef, instance metadata.TypeRef) []genericMatch {
	var out []genericMatch
	for _, d := range idx.Generic {
		if d.Marker != marker {
			continue
		}
		bindings := make(map[int]metadata.TypeRef)
		if !unify(d.InstanceType, instance, d.Implementation, bindings) {
			continue
		}
		if arg, ok := bindings[0]; ok {
			out = append(out, genericMatch{decl: d, argument: arg})
		}
	}
	return out
}

// unify matches pattern against a concrete type, binding parameters owned
// by owner by position. A parameter bound twice must bind the same type.
func unify(pattern, actual metadata.TypeRef, owner *metadata.TypeDef, bindings map[int]metadata.TypeRef) bool {
	switch p := pattern.(type) {
	case *metadata.GenericParam:
		if p.Owner != owner {
			return metadata.AreSame(p, actual)
		}
		if prev, ok := bindings[p.Position]; ok {
			return metadata.AreSame(prev, actual)
		}
		bindings[p.Position] = actual
		return true
	case *metadata.GenericInstance:
		a, ok := actual.(*metadata.GenericInstance)
		if !ok || !metadata.AreSame(p.Element, a.Element) || len(p.Args) != len(a.Args) {
			return false
		}
		for i := range p.Args {
			if !unify(p.Args[i], a.Args[i], owner, bindings) {
				return false
			}
		}
		return true
	}
	return metadata.AreSame(pattern, actual)
}
