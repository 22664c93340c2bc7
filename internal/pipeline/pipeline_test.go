package pipeline

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/kr/pretty"
	"golang.org/x/tools/txtar"

	"github.com/funvibe/funweave/internal/config"
	"github.com/funvibe/funweave/internal/diagnostics"
	"github.com/funvibe/funweave/internal/metadata"
	"github.com/funvibe/funweave/internal/modfile"
)

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	ar, err := txtar.ParseFile(filepath.Join("testdata", "weave.txtar"))
	if err != nil {
		t.Fatalf("failed to read fixtures: %v", err)
	}
	for _, f := range ar.Files {
		if f.Name == name {
			return f.Data
		}
	}
	t.Fatalf("fixture %s not found", name)
	return nil
}

func runPipeline(t *testing.T, name string, cfg *config.WeaveConfig) *PipelineContext {
	t.Helper()
	ctx := NewPipelineContext(name, cfg)
	ctx.Source = fixture(t, name)
	return Default().Run(ctx)
}

func TestPipeline_Weave(t *testing.T) {
	ctx := runPipeline(t, "app.fwm.yaml", nil)
	if ctx.Failed() {
		t.Fatalf("unexpected errors: %v", ctx.Errors)
	}
	if len(ctx.Registry.Entries()) != 1 {
		t.Errorf("expected one specialization, got %d", len(ctx.Registry.Entries()))
	}
	if ctx.Injection.Types != 1 || ctx.Injection.Rewrites() != 3 {
		t.Errorf("unexpected injection report %# v", pretty.Formatter(ctx.Injection))
	}
	if ctx.Typeclasses.CallSites != 1 {
		t.Errorf("expected one resolved call site, got %d", ctx.Typeclasses.CallSites)
	}

	woven, err := modfile.Parse(ctx.Output, "woven.fwm.yaml")
	if err != nil {
		t.Fatalf("emitted module does not load: %v", err)
	}
	if woven.FindType("Demo.Box$specialized$System.Int32") == nil {
		t.Error("specialized type missing from output")
	}
	main := woven.FindType("Demo.Program").MethodsNamed("Main")[0]
	var got []string
	for _, ins := range main.Body.Instructions {
		got = append(got, ins.OpCode.String())
	}
	want := []string{"ldc.i4", "newobj", "stloc", "ldloca", "initobj", "ldloc", "box", "ldloc", "call", "callvirt", "ret"}
	if diff := pretty.Diff(got, want); len(diff) > 0 {
		t.Errorf("unexpected woven body: %v", diff)
	}
}

func TestPipeline_FreshIdentity(t *testing.T) {
	src := fixture(t, "app.fwm.yaml")
	before, err := modfile.Parse(src, "app.fwm.yaml")
	if err != nil {
		t.Fatal(err)
	}
	ctx := NewPipelineContext("app.fwm.yaml", nil)
	ctx.Module = before
	mvid := before.Mvid
	ctx = Default().Run(ctx)
	if ctx.Failed() {
		t.Fatal(ctx.Errors)
	}
	if ctx.Module.Mvid == mvid {
		t.Error("module identity not regenerated")
	}
}

func TestPipeline_BinaryOutput(t *testing.T) {
	ctx := NewPipelineContext("app.fwm.yaml", nil)
	ctx.Source = fixture(t, "app.fwm.yaml")
	ctx.OutputPath = "app" + config.BinaryModuleExt
	ctx = Default().Run(ctx)
	if ctx.Failed() {
		t.Fatal(ctx.Errors)
	}
	if !bytes.HasPrefix(ctx.Output, []byte("FWMB")) {
		t.Fatalf("expected binary output, got %q", ctx.Output[:8])
	}
	m, err := modfile.Decode(ctx.Output)
	if err != nil {
		t.Fatalf("binary output does not decode: %v", err)
	}
	if m.Mvid != ctx.Module.Mvid {
		t.Error("identity lost in binary output")
	}
}

func TestPipeline_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target error
		site   string
	}{
		{"unresolved.fwm.yaml", diagnostics.ErrUnresolvedTypeclass, "Demo.Program::Main()"},
		{"broken.fwm.yaml", diagnostics.ErrInvalidModule, "broken.fwm.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := runPipeline(t, tt.name, nil)
			if len(ctx.Errors) != 1 {
				t.Fatalf("expected exactly one error, got %v", ctx.Errors)
			}
			if !errors.Is(ctx.Errors[0], tt.target) {
				t.Errorf("expected %v, got %v", tt.target, ctx.Errors[0])
			}
			var de *diagnostics.DiagnosticError
			if !errors.As(ctx.Errors[0], &de) || de.Site != tt.site {
				t.Errorf("expected site %s, got %v", tt.site, ctx.Errors[0])
			}
			if ctx.Output != nil {
				t.Error("output emitted after an error")
			}
		})
	}
}

func TestPipeline_PassSelection(t *testing.T) {
	cfg, err := config.ParseConfig(fixture(t, "specialize-only.yaml"), "specialize-only.yaml")
	if err != nil {
		t.Fatal(err)
	}
	ctx := runPipeline(t, "app.fwm.yaml", cfg)
	if ctx.Failed() {
		t.Fatal(ctx.Errors)
	}
	if ctx.Registry == nil || ctx.Injection != nil || ctx.Typeclasses != nil {
		t.Errorf("only specialization should have run: %# v", pretty.Formatter(ctx))
	}
	call := ctx.Module.FindType("Demo.Program").MethodsNamed("Main")[0].Body.Instructions[3]
	if op, ok := call.Operand.(*metadata.GenericInstanceMethod); !ok || op.Method.Name != config.ResolveMethodName {
		t.Errorf("resolution call rewritten: %s", call)
	}
}

func TestInjectProcessor_RequiresRegistry(t *testing.T) {
	cfg := config.Default()
	cfg.Passes = []string{config.PassInject}
	ctx := runPipeline(t, "app.fwm.yaml", cfg)
	if len(ctx.Errors) != 1 || !errors.Is(ctx.Errors[0], diagnostics.ErrConfig) {
		t.Errorf("expected a configuration error, got %v", ctx.Errors)
	}
}

func TestEmitProcessor_TestMode(t *testing.T) {
	config.IsTestMode = true
	defer func() { config.IsTestMode = false }()

	ctx := runPipeline(t, "app.fwm.yaml", nil)
	if ctx.Failed() {
		t.Fatal(ctx.Errors)
	}
	if ctx.Output != nil {
		t.Error("module emitted in test mode")
	}
	if ctx.Typeclasses == nil || ctx.Typeclasses.CallSites != 1 {
		t.Error("passes should still run in test mode")
	}
}
