package pipeline

import (
	"strings"

	"github.com/google/uuid"

	"github.com/funvibe/funweave/internal/config"
	"github.com/funvibe/funweave/internal/diagnostics"
	"github.com/funvibe/funweave/internal/implicit"
	"github.com/funvibe/funweave/internal/inject"
	"github.com/funvibe/funweave/internal/modfile"
	"github.com/funvibe/funweave/internal/specialize"
)

// LoadProcessor reads the module named by the context.
type LoadProcessor struct{}

func (lp *LoadProcessor) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Failed() || ctx.Module != nil {
		return ctx
	}
	var err error
	switch {
	case ctx.Source != nil && strings.HasSuffix(ctx.FilePath, config.BinaryModuleExt):
		ctx.Module, err = modfile.Decode(ctx.Source)
	case ctx.Source != nil:
		ctx.Module, err = modfile.Parse(ctx.Source, ctx.FilePath)
	default:
		ctx.Module, err = modfile.ReadFile(ctx.FilePath)
	}
	if err != nil {
		ctx.Errors = append(ctx.Errors, siteFile(err, ctx.FilePath))
		return ctx
	}
	ctx.Logger.Printf("loaded %s: %d types", ctx.Module.Name, len(ctx.Module.AllTypes()))
	return ctx
}

// SpecializeProcessor clones every marked generic type and seals the
// resulting registry.
type SpecializeProcessor struct{}

func (sp *SpecializeProcessor) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Failed() || !ctx.Config.PassEnabled(config.PassSpecialize) {
		return ctx
	}
	sealed, err := specialize.NewSpecializer(ctx.Module, ctx.Config, ctx.Logger).Run()
	if err != nil {
		ctx.Errors = append(ctx.Errors, err)
		return ctx
	}
	ctx.Registry = sealed
	return ctx
}

// InjectProcessor rewrites consumer types against the sealed registry.
type InjectProcessor struct{}

func (ip *InjectProcessor) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Failed() || !ctx.Config.PassEnabled(config.PassInject) {
		return ctx
	}
	if ctx.Registry == nil {
		ctx.Errors = append(ctx.Errors, diagnostics.NewError(diagnostics.ErrW008, ctx.FilePath,
			"injection requires the specialize pass to run first"))
		return ctx
	}
	report, err := inject.New(ctx.Registry, ctx.Config, ctx.Logger).Run(ctx.Module)
	if err != nil {
		ctx.Errors = append(ctx.Errors, err)
		return ctx
	}
	ctx.Injection = report
	return ctx
}

// ImplicitProcessor replaces resolution call sites.
type ImplicitProcessor struct{}

func (ip *ImplicitProcessor) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Failed() || !ctx.Config.PassEnabled(config.PassImplicit) {
		return ctx
	}
	report, err := implicit.New(ctx.Module, ctx.Config, ctx.Logger).Run()
	if err != nil {
		ctx.Errors = append(ctx.Errors, err)
		return ctx
	}
	ctx.Typeclasses = report
	return ctx
}

// EmitProcessor serializes the woven module under a fresh identity. Nothing
// is emitted once an error has been recorded, or in test mode.
type EmitProcessor struct{}

func (ep *EmitProcessor) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Failed() || ctx.Module == nil || config.IsTestMode {
		return ctx
	}
	ctx.Module.Mvid = uuid.New()

	target := ctx.OutputPath
	if target == "" {
		target = ctx.FilePath
	}
	var err error
	if strings.HasSuffix(target, config.BinaryModuleExt) {
		ctx.Output, err = modfile.Encode(ctx.Module)
	} else {
		ctx.Output, err = modfile.Marshal(ctx.Module)
	}
	if err != nil {
		ctx.Errors = append(ctx.Errors, diagnostics.Wrap(diagnostics.ErrW007, target, err))
	}
	return ctx
}

// siteFile attaches the file path to a diagnostic that has no site.
func siteFile(err error, path string) error {
	de := diagnostics.AsDiagnostic(err, diagnostics.ErrW007)
	if de.Site == "" {
		de.Site = path
	}
	return de
}
