// Package inject rewires consumer method bodies from generic instances to
// the specialized clones recorded in a sealed registry.
package inject

import (
	"fmt"
	"io"
	"log"

	"github.com/funvibe/funweave/internal/config"
	"github.com/funvibe/funweave/internal/diagnostics"
	"github.com/funvibe/funweave/internal/metadata"
	"github.com/funvibe/funweave/internal/specialize"
)

// MethodReport counts the rewrites made in one method.
type MethodReport struct {
	Method   string
	Locals   int
	Operands int
}

// Report summarizes an injection run.
type Report struct {
	Types   int
	Methods []MethodReport
}

// Rewrites returns the total number of replaced locals and operands.
func (r *Report) Rewrites() int {
	n := 0
	for _, m := range r.Methods {
		n += m.Locals + m.Operands
	}
	return n
}

// Injector rewrites operands in place. Instructions are never added,
// removed or reordered.
type Injector struct {
	registry *specialize.Sealed
	marker   string
	logger   *log.Logger
}

func New(registry *specialize.Sealed, cfg *config.WeaveConfig, logger *log.Logger) *Injector {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Injector{registry: registry, marker: cfg.Markers.InjectSpecializations, logger: logger}
}

// Run injects into every top-level type of m carrying the consumer marker.
func (in *Injector) Run(m *metadata.Module) (*Report, error) {
	var consumers []*metadata.TypeDef
	for _, t := range m.Types() {
		if t.HasAttribute(in.marker) {
			consumers = append(consumers, t)
		}
	}
	return in.Inject(consumers)
}

// Inject rewrites every method body of the given consumer types.
func (in *Injector) Inject(types []*metadata.TypeDef) (*Report, error) {
	report := &Report{}
	for _, t := range types {
		report.Types++
		for _, m := range t.Methods {
			mr, err := in.injectMethod(m)
			if err != nil {
				return nil, err
			}
			if mr.Locals+mr.Operands > 0 {
				in.logger.Printf("injected %s: %d locals, %d operands", mr.Method, mr.Locals, mr.Operands)
			}
			report.Methods = append(report.Methods, mr)
		}
	}
	return report, nil
}

func (in *Injector) injectMethod(m *metadata.MethodDef) (MethodReport, error) {
	mr := MethodReport{Method: m.FullName()}
	if m.Body == nil {
		return mr, nil
	}

	for _, v := range m.Body.Variables {
		t, err := in.typeRef(v.Type, mr.Method)
		if err != nil {
			return mr, err
		}
		if t != v.Type {
			v.Type = t
			mr.Locals++
		}
	}

	for _, ins := range m.Body.Instructions {
		var (
			out any
			err error
		)
		switch op := ins.Operand.(type) {
		case metadata.TypeRef:
			out, err = in.typeRef(op, mr.Method)
		case metadata.MethodOperand:
			out, err = in.method(op, mr.Method)
		case *metadata.FieldRef:
			out, err = in.field(op, mr.Method)
		default:
			continue
		}
		if err != nil {
			return mr, err
		}
		if out != ins.Operand {
			ins.Operand = out
			mr.Operands++
		}
	}
	return mr, nil
}

// typeRef replaces a single-argument generic instance by its unique
// specialization. Anything else is returned unchanged.
func (in *Injector) typeRef(ref metadata.TypeRef, site string) (metadata.TypeRef, error) {
	gi, ok := ref.(*metadata.GenericInstance)
	if !ok || len(gi.Args) != 1 {
		return ref, nil
	}
	entry, ok, err := in.registry.Lookup(gi.Element, gi.Args[0])
	if err != nil {
		return nil, siteError(err, site)
	}
	if !ok {
		return ref, nil
	}
	return entry.Specialized, nil
}

// method maps a call on a generic instance to the clone's method, keeping
// the declaring type's trailing arguments on the clone.
func (in *Injector) method(op metadata.MethodOperand, site string) (metadata.MethodOperand, error) {
	ref := op.ElementMethod()
	gi, ok := ref.DeclaringType.(*metadata.GenericInstance)
	if !ok {
		return op, nil
	}
	original := metadata.FindMethod(gi.Element, ref)
	if original == nil {
		return op, nil
	}
	clone, entry, ok, err := in.registry.LookupMethod(original, gi.Args[0])
	if err != nil {
		return nil, siteError(err, site)
	}
	if !ok {
		return op, nil
	}

	var decl metadata.TypeRef = entry.Specialized
	if len(gi.Args) > 1 {
		inst, err := metadata.MakeGenericInstance(entry.Specialized, gi.Args[1:]...)
		if err != nil {
			return nil, diagnostics.Wrap(diagnostics.ErrW002, site, err)
		}
		decl = inst
	}
	out := clone.RefOn(decl)

	gim, ok := op.(*metadata.GenericInstanceMethod)
	if !ok {
		return out, nil
	}
	args := make([]metadata.TypeRef, len(gim.Args))
	for i, a := range gim.Args {
		if args[i], err = in.typeRef(a, site); err != nil {
			return nil, err
		}
	}
	inst, err := metadata.MakeGenericInstanceMethod(out, args...)
	if err != nil {
		return nil, diagnostics.Wrap(diagnostics.ErrW002, site, err)
	}
	return inst, nil
}

// field redirects a field access on a specialized instance to the field of
// the same name on the clone.
func (in *Injector) field(f *metadata.FieldRef, site string) (*metadata.FieldRef, error) {
	decl, err := in.typeRef(f.DeclaringType, site)
	if err != nil {
		return nil, err
	}
	if decl == f.DeclaringType {
		return f, nil
	}
	def := metadata.ElementDef(decl)
	fd := def.Field(f.Name)
	if fd == nil {
		return nil, diagnostics.NewError(diagnostics.ErrW006, site,
			fmt.Sprintf("field %s not found on %s", f.Name, def.FullName()))
	}
	return &metadata.FieldRef{Name: f.Name, FieldType: fd.Type, DeclaringType: decl}, nil
}

// siteError moves a registry diagnostic onto the method being rewritten.
func siteError(err error, site string) error {
	de := diagnostics.AsDiagnostic(err, diagnostics.ErrW005)
	msg := de.Message
	if de.Site != "" {
		msg = de.Site + ": " + msg
	}
	return &diagnostics.DiagnosticError{Code: de.Code, Site: site, Message: msg, Err: err}
}
