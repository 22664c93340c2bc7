package specialize

import (
	"fmt"
	"io"
	"log"

	"github.com/funvibe/funweave/internal/config"
	"github.com/funvibe/funweave/internal/diagnostics"
	"github.com/funvibe/funweave/internal/metadata"
)

// Specializer is the registry-building pass: it clones every top-level
// type carrying the generate-specialization marker once per marker
// argument.
type Specializer struct {
	cloner   *Cloner
	marker   string
	registry *Registry
	memo     []*Entry
	logger   *log.Logger
}

// NewSpecializer creates the pass for m. A nil logger discards output.
func NewSpecializer(m *metadata.Module, cfg *config.WeaveConfig, logger *log.Logger) *Specializer {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Specializer{
		cloner: NewCloner(m, Options{
			Delimiter:      cfg.Delimiter,
			DropAttributes: []string{cfg.Markers.GenerateSpecialization},
		}),
		marker:   cfg.Markers.GenerateSpecialization,
		registry: NewRegistry(),
		logger:   logger,
	}
}

// Specialize returns the entry for def at arg, generating it on first use.
// Asking again for the same pair returns the same entry.
func (s *Specializer) Specialize(def *metadata.TypeDef, arg metadata.TypeRef) (*Entry, error) {
	for _, e := range s.memo {
		if e.Matches(def, arg) {
			return e, nil
		}
	}
	entry, err := s.cloner.Specialize(def, arg)
	if err != nil {
		return nil, err
	}
	if err := s.registry.Add(entry); err != nil {
		return nil, err
	}
	s.memo = append(s.memo, entry)
	s.logger.Printf("specialized %s for %s as %s (%d nested)",
		def.FullName(), arg.FullName(), entry.Specialized.FullName(), len(entry.Nested))
	return entry, nil
}

// Run scans the module's top-level types and seals the registry. Types
// generated during the scan are not scanned themselves.
func (s *Specializer) Run() (*Sealed, error) {
	for _, t := range s.cloner.Module().Types() {
		for _, ca := range t.AttributesOf(s.marker) {
			arg, err := markerArgument(t, ca)
			if err != nil {
				return nil, err
			}
			if _, err := s.Specialize(t, arg); err != nil {
				return nil, err
			}
		}
	}
	return s.registry.Seal(), nil
}

func markerArgument(t *metadata.TypeDef, ca *metadata.CustomAttribute) (metadata.TypeRef, error) {
	if len(ca.Args) != 1 {
		return nil, diagnostics.NewError(diagnostics.ErrW007, t.FullName(),
			fmt.Sprintf("%s expects one type argument, got %d", ca.Type.FullName(), len(ca.Args)))
	}
	arg, ok := ca.Args[0].(metadata.TypeRef)
	if !ok {
		return nil, diagnostics.NewError(diagnostics.ErrW007, t.FullName(),
			fmt.Sprintf("%s argument %v is not a type", ca.Type.FullName(), ca.Args[0]))
	}
	return arg, nil
}
