package specialize

import (
	"fmt"

	"github.com/funvibe/funweave/internal/diagnostics"
	"github.com/funvibe/funweave/internal/metadata"
)

// Entry records one generated specialization: the generic type, the
// argument its first parameter was bound to, the clone, and the mapping
// from every original method to its clone.
type Entry struct {
	Generic     *metadata.TypeDef
	Argument    metadata.TypeRef
	Specialized *metadata.TypeDef
	Methods     map[*metadata.MethodDef]*metadata.MethodDef
	Nested      []*Entry
}

// Matches reports whether the entry was generated for def at arg.
func (e *Entry) Matches(def *metadata.TypeDef, arg metadata.TypeRef) bool {
	return e.Generic == def && metadata.AreSame(e.Argument, arg)
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s[%s] -> %s", e.Generic.FullName(), e.Argument.FullName(), e.Specialized.FullName())
}

// Flatten returns the entry followed by its nested entries, depth first.
func (e *Entry) Flatten() []*Entry {
	return flatten([]*Entry{e}, nil)
}

func flatten(entries []*Entry, out []*Entry) []*Entry {
	for _, e := range entries {
		out = append(out, e)
		out = flatten(e.Nested, out)
	}
	return out
}

// Registry collects entries while specializations are generated. It only
// accepts additions; queries go through the Sealed view returned by Seal.
type Registry struct {
	entries []*Entry
	sealed  bool
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends an entry. Adding a (type, argument) pair that is already
// present, at any nesting level, is an error.
func (r *Registry) Add(e *Entry) error {
	if r.sealed {
		return fmt.Errorf("registry is sealed")
	}
	existing := flatten(r.entries, nil)
	for _, candidate := range flatten([]*Entry{e}, nil) {
		for _, have := range existing {
			if have.Matches(candidate.Generic, candidate.Argument) {
				return diagnostics.NewError(diagnostics.ErrW005, candidate.Generic.FullName(),
					fmt.Sprintf("specialization for %s registered twice", candidate.Argument.FullName()))
			}
		}
	}
	r.entries = append(r.entries, e)
	return nil
}

// Len returns the number of top-level entries.
func (r *Registry) Len() int { return len(r.entries) }

// Seal ends the build phase. The registry rejects further additions.
func (r *Registry) Seal() *Sealed {
	r.sealed = true
	entries := make([]*Entry, len(r.entries))
	copy(entries, r.entries)
	return &Sealed{entries: entries, flat: flatten(entries, nil)}
}

// Sealed is the read-only view of a finished registry.
type Sealed struct {
	entries []*Entry
	flat    []*Entry
}

// Entries returns the top-level entries in generation order.
func (s *Sealed) Entries() []*Entry {
	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Flatten returns every entry, nested entries right after their parent.
func (s *Sealed) Flatten() []*Entry {
	out := make([]*Entry, len(s.flat))
	copy(out, s.flat)
	return out
}

// Lookup finds the entry generated for def at arg. More than one match is
// reported as AmbiguousSpecialization.
func (s *Sealed) Lookup(def *metadata.TypeDef, arg metadata.TypeRef) (*Entry, bool, error) {
	var found *Entry
	for _, e := range s.flat {
		if !e.Matches(def, arg) {
			continue
		}
		if found != nil {
			return nil, false, ambiguous(def, arg)
		}
		found = e
	}
	return found, found != nil, nil
}

// LookupMethod finds the clone of original in the entry generated for arg.
func (s *Sealed) LookupMethod(original *metadata.MethodDef, arg metadata.TypeRef) (*metadata.MethodDef, *Entry, bool, error) {
	var found *metadata.MethodDef
	var owner *Entry
	for _, e := range s.flat {
		if !metadata.AreSame(e.Argument, arg) {
			continue
		}
		m, ok := e.Methods[original]
		if !ok {
			continue
		}
		if found != nil {
			return nil, nil, false, ambiguous(original.DeclaringType, arg)
		}
		found, owner = m, e
	}
	return found, owner, found != nil, nil
}

func ambiguous(def *metadata.TypeDef, arg metadata.TypeRef) error {
	return diagnostics.NewError(diagnostics.ErrW005, def.FullName(),
		fmt.Sprintf("more than one specialization matches %s", arg.FullName()))
}
