package implicit

import (
	"fmt"
	"io"
	"log"

	"github.com/funvibe/funweave/internal/config"
	"github.com/funvibe/funweave/internal/diagnostics"
	"github.com/funvibe/funweave/internal/metadata"
	"github.com/funvibe/funweave/internal/specialize"
)

// Report summarizes a resolution run.
type Report struct {
	CallSites       int
	Specializations []*specialize.Entry
}

// Resolver rewrites resolution call sites across a module.
type Resolver struct {
	module    *metadata.Module
	index     *Index
	cloner    *specialize.Cloner
	marker    string
	primitive config.Resolver
	logger    *log.Logger
	report    *Report
	queue     []*metadata.TypeDef
}

// New indexes the typeclasses of m.
func New(m *metadata.Module, cfg *config.WeaveConfig, logger *log.Logger) *Resolver {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Resolver{
		module:    m,
		index:     Collect(m, cfg.Markers.Typeclass),
		cloner:    specialize.NewCloner(m, specialize.Options{Delimiter: cfg.Delimiter}),
		marker:    cfg.Markers.Typeclass,
		primitive: cfg.Resolver,
		logger:    logger,
		report:    &Report{},
	}
}

// Index returns the typeclass declarations found in the module.
func (r *Resolver) Index() *Index { return r.index }

// Run weaves every type except generic implementations, then the
// specializations generated along the way. The first unresolved call site
// aborts the run.
func (r *Resolver) Run() (*Report, error) {
	for _, t := range r.module.AllTypes() {
		if !r.index.genericRoot(t) {
			r.queue = append(r.queue, t)
		}
	}
	for i := 0; i < len(r.queue); i++ {
		for _, m := range r.queue[i].Methods {
			if err := r.weaveMethod(m); err != nil {
				return nil, err
			}
		}
	}
	return r.report, nil
}

// Resolve returns the implementation of typeclass, a marker interface
// applied to an instance type, specializing a generic implementation if
// needed.
func (r *Resolver) Resolve(typeclass metadata.TypeRef) (*metadata.TypeDef, error) {
	gi, ok := typeclass.(*metadata.GenericInstance)
	if !ok || len(gi.Args) != 1 || !gi.Element.HasAttribute(r.marker) {
		return nil, diagnostics.NewError(diagnostics.ErrW004, typeclass.FullName(),
			"not a typeclass instance")
	}
	marker, instance := gi.Element, gi.Args[0]

	switch found := r.index.lookup(marker, instance); len(found) {
	case 0:
	case 1:
		return found[0].Implementation, nil
	default:
		return nil, diagnostics.NewError(diagnostics.ErrW005, typeclass.FullName(),
			fmt.Sprintf("%d implementations match", len(found)))
	}

	matches := r.index.lookupGeneric(marker, instance)
	switch len(matches) {
	case 0:
		return nil, diagnostics.NewError(diagnostics.ErrW004, typeclass.FullName(),
			"no implementation found")
	case 1:
		return r.specialization(matches[0])
	default:
		return nil, diagnostics.NewError(diagnostics.ErrW005, typeclass.FullName(),
			fmt.Sprintf("%d generic implementations match", len(matches)))
	}
}

// specialization returns the memoized clone of a generic implementation
// for the matched argument, generating it on first use. Generated types
// join the weave queue.
func (r *Resolver) specialization(gm genericMatch) (*metadata.TypeDef, error) {
	d := gm.decl
	for _, e := range d.specializations {
		if metadata.AreSame(e.Argument, gm.argument) {
			return e.Specialized, nil
		}
	}
	entry, err := r.cloner.Specialize(d.Implementation, gm.argument)
	if err != nil {
		return nil, err
	}
	d.specializations = append(d.specializations, entry)
	r.report.Specializations = append(r.report.Specializations, entry)
	for _, e := range entry.Flatten() {
		r.queue = append(r.queue, e.Specialized)
	}
	r.logger.Printf("specialized typeclass %s for %s", d.Implementation.FullName(), gm.argument.FullName())
	return entry.Specialized, nil
}

// isPrimitive reports whether op calls the resolution primitive.
func (r *Resolver) isPrimitive(op metadata.MethodOperand) (*metadata.GenericInstanceMethod, bool) {
	gim, ok := op.(*metadata.GenericInstanceMethod)
	if !ok {
		return nil, false
	}
	ref := gim.Method
	if ref.Name != r.primitive.Method || ref.DeclaringType == nil ||
		ref.DeclaringType.FullName() != r.primitive.Type || len(gim.Args) != 1 {
		return nil, false
	}
	return gim, true
}

func (r *Resolver) weaveMethod(m *metadata.MethodDef) error {
	if m.Body == nil {
		return nil
	}
	snapshot := make([]*metadata.Instruction, len(m.Body.Instructions))
	copy(snapshot, m.Body.Instructions)

	for _, ins := range snapshot {
		if ins.OpCode != metadata.OP_CALL {
			continue
		}
		op, ok := ins.Operand.(metadata.MethodOperand)
		if !ok {
			continue
		}
		gim, ok := r.isPrimitive(op)
		if !ok {
			continue
		}
		typeclass := gim.Args[0]
		if metadata.ContainsGenericParams(typeclass) {
			// Resolved in the specializations of the enclosing generic.
			r.logger.Printf("%s: skipping open request %s", m.FullName(), typeclass.FullName())
			continue
		}
		impl, err := r.Resolve(typeclass)
		if err != nil {
			return siteError(err, m.FullName())
		}
		if len(gim.Method.Params) == 0 {
			err = r.replaceInstance(m, ins, impl)
		} else {
			err = r.replaceWithValue(m, ins, impl, typeclass.(*metadata.GenericInstance).Args[0])
		}
		if err != nil {
			return err
		}
		r.report.CallSites++
		r.logger.Printf("%s: resolved %s to %s", m.FullName(), typeclass.FullName(), impl.FullName())
	}
	return nil
}

// replaceInstance swaps the call for a default-constructed implementation:
// an initialized local boxed for value types, newobj otherwise.
func (r *Resolver) replaceInstance(m *metadata.MethodDef, call *metadata.Instruction, impl *metadata.TypeDef) error {
	body := m.Body
	if !impl.IsValueType() {
		ctor := findConstructor(impl)
		if ctor == nil {
			return diagnostics.NewError(diagnostics.ErrW006, m.FullName(),
				fmt.Sprintf("%s has no parameterless constructor", impl.FullName()))
		}
		return body.Replace(call, metadata.MustCreate(metadata.OP_NEWOBJ, ctor.RefOn(impl)))
	}

	v := body.AddVariable(impl)
	body.InitLocals = true
	seq := []*metadata.Instruction{
		metadata.MustCreate(metadata.OP_LDLOCA, v.Index),
		metadata.MustCreate(metadata.OP_INITOBJ, impl),
		metadata.MustCreate(metadata.OP_LDLOC, v.Index),
		metadata.MustCreate(metadata.OP_BOX, impl),
	}
	if err := body.Replace(call, seq[0]); err != nil {
		return err
	}
	for i := 1; i < len(seq); i++ {
		if err := body.InsertAfter(seq[i-1], seq[i]); err != nil {
			return err
		}
	}
	return nil
}

// replaceWithValue handles Resolve<M<X>>(value): the box staging the value
// is dropped and the implementation is constructed around it.
func (r *Resolver) replaceWithValue(m *metadata.MethodDef, call *metadata.Instruction, impl *metadata.TypeDef, instance metadata.TypeRef) error {
	body := m.Body
	ctor := findConstructor(impl, instance)
	if ctor == nil {
		return diagnostics.NewError(diagnostics.ErrW006, m.FullName(),
			fmt.Sprintf("%s has no constructor taking %s", impl.FullName(), instance.FullName()))
	}
	if prev := body.Previous(call); prev != nil && prev.OpCode == metadata.OP_BOX {
		if err := body.Remove(prev); err != nil {
			return err
		}
	}
	newobj := metadata.MustCreate(metadata.OP_NEWOBJ, ctor.RefOn(impl))
	if err := body.Replace(call, newobj); err != nil {
		return err
	}
	if impl.IsValueType() {
		return body.InsertAfter(newobj, metadata.MustCreate(metadata.OP_BOX, impl))
	}
	return nil
}

// findConstructor returns the instance constructor of t with the given
// parameter types.
func findConstructor(t *metadata.TypeDef, params ...metadata.TypeRef) *metadata.MethodDef {
	for _, m := range t.MethodsNamed(config.ConstructorName) {
		if m.IsStatic() || len(m.Params) != len(params) {
			continue
		}
		match := true
		for i, p := range m.Params {
			if !metadata.AreSame(p.Type, params[i]) {
				match = false
				break
			}
		}
		if match {
			return m
		}
	}
	return nil
}

// siteError moves a diagnostic onto the method being woven, keeping the
// original site in the message.
func siteError(err error, site string) error {
	de := diagnostics.AsDiagnostic(err, diagnostics.ErrW004)
	if de.Site == site {
		return de
	}
	msg := de.Message
	if de.Site != "" {
		msg = de.Site + ": " + msg
	}
	return &diagnostics.DiagnosticError{Code: de.Code, Site: site, Message: msg, Err: err}
}
