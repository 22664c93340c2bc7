// Package specialize generates non-generic clones of generic types for a
// fixed concrete argument and records them in a registry.
package specialize

import (
	"github.com/funvibe/funweave/internal/diagnostics"
	"github.com/funvibe/funweave/internal/metadata"
)

// Scope binds one generic parameter to a concrete type. Scopes are
// immutable and chain from the innermost nesting level outwards.
type Scope struct {
	Source      *metadata.GenericParam
	Target      metadata.TypeRef
	Outer       *Scope
	SourceOwner *metadata.TypeDef
	Produced    *metadata.TypeDef
}

// NewScope binds the first parameter of sourceOwner to target. The clone
// receiving the substitution is produced.
func NewScope(sourceOwner *metadata.TypeDef, target metadata.TypeRef, produced *metadata.TypeDef, outer *Scope) *Scope {
	return &Scope{
		Source:      sourceOwner.GenericParams[0],
		Target:      target,
		Outer:       outer,
		SourceOwner: sourceOwner,
		Produced:    produced,
	}
}

// Resolve substitutes every parameter bound somewhere on the chain.
// Parameters bound nowhere are returned unchanged.
func (s *Scope) Resolve(ref metadata.TypeRef) metadata.TypeRef {
	switch x := ref.(type) {
	case *metadata.GenericParam:
		for cur := s; cur != nil; cur = cur.Outer {
			if cur.Source == x {
				return cur.Target
			}
		}
	case *metadata.GenericInstance:
		args := make([]metadata.TypeRef, len(x.Args))
		changed := false
		for i, a := range x.Args {
			args[i] = s.Resolve(a)
			changed = changed || args[i] != a
		}
		if changed {
			return &metadata.GenericInstance{Element: x.Element, Args: args}
		}
	}
	return ref
}

// RebindScoped moves the leftover parameters of every original type on the
// chain onto the clone produced for it. The clone's parameter list omits the
// consumed leading parameter, so positions shift down by one.
func (s *Scope) RebindScoped(ref metadata.TypeRef) metadata.TypeRef {
	for cur := s; cur != nil; cur = cur.Outer {
		ref = Rebind(ref, cur.SourceOwner, cur.Produced, 1)
	}
	return ref
}

// Depth is the number of scopes on the chain.
func (s *Scope) Depth() int {
	n := 0
	for cur := s; cur != nil; cur = cur.Outer {
		n++
	}
	return n
}

// Rebind remaps parameters owned by from onto the parameters of to at
// position-skip, inside generic instances too.
func Rebind(ref metadata.TypeRef, from, to metadata.GenericOwner, skip int) metadata.TypeRef {
	if from == nil || to == nil {
		return ref
	}
	switch x := ref.(type) {
	case *metadata.GenericParam:
		if x.Owner == from {
			params := to.GenericParameters()
			if i := x.Position - skip; i >= 0 && i < len(params) {
				return params[i]
			}
		}
	case *metadata.GenericInstance:
		args := make([]metadata.TypeRef, len(x.Args))
		changed := false
		for i, a := range x.Args {
			args[i] = Rebind(a, from, to, skip)
			changed = changed || args[i] != a
		}
		if changed {
			return &metadata.GenericInstance{Element: x.Element, Args: args}
		}
	}
	return ref
}

// redirect rewrites instances of an original type whose first argument is
// the concrete type it is being specialized for to the produced clone,
// re-applying the trailing arguments.
func redirect(ref metadata.TypeRef, family []*Scope) (metadata.TypeRef, error) {
	gi, ok := ref.(*metadata.GenericInstance)
	if !ok {
		return ref, nil
	}

	args := make([]metadata.TypeRef, len(gi.Args))
	changed := false
	for i, a := range gi.Args {
		r, err := redirect(a, family)
		if err != nil {
			return nil, err
		}
		args[i] = r
		changed = changed || r != a
	}

	for _, s := range family {
		if s.SourceOwner != gi.Element || !metadata.AreSame(args[0], s.Target) {
			continue
		}
		if len(args) == 1 && !s.Produced.HasGenericParams() {
			return s.Produced, nil
		}
		inst, err := metadata.MakeGenericInstance(s.Produced, args[1:]...)
		if err != nil {
			return nil, diagnostics.Wrap(diagnostics.ErrW002, s.Produced.FullName(), err)
		}
		return inst, nil
	}

	if changed {
		return &metadata.GenericInstance{Element: gi.Element, Args: args}, nil
	}
	return ref, nil
}
