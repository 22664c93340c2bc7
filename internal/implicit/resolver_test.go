package implicit

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kr/pretty"
	"golang.org/x/tools/txtar"

	"github.com/funvibe/funweave/internal/config"
	"github.com/funvibe/funweave/internal/diagnostics"
	"github.com/funvibe/funweave/internal/metadata"
	"github.com/funvibe/funweave/internal/modfile"
)

// loadProgram parses common.yaml followed by the named section.
func loadProgram(t *testing.T, section string) *metadata.Module {
	t.Helper()
	ar, err := txtar.ParseFile(filepath.Join("testdata", "typeclasses.txtar"))
	if err != nil {
		t.Fatalf("failed to read fixtures: %v", err)
	}
	files := make(map[string][]byte)
	for _, f := range ar.Files {
		files[f.Name] = f.Data
	}
	src := append(append([]byte{}, files["common.yaml"]...), files[section]...)
	m, err := modfile.Parse(src, section)
	if err != nil {
		t.Fatalf("failed to parse %s: %v", section, err)
	}
	return m
}

func opcodes(b *metadata.Body) []string {
	out := make([]string, len(b.Instructions))
	for i, ins := range b.Instructions {
		out[i] = ins.OpCode.String()
	}
	return out
}

func programBody(t *testing.T, m *metadata.Module, name string) *metadata.Body {
	t.Helper()
	ms := m.FindType("Demo.Program").MethodsNamed(name)
	if len(ms) != 1 {
		t.Fatalf("Demo.Program::%s not found", name)
	}
	return ms[0].Body
}

func TestCollect(t *testing.T) {
	m := loadProgram(t, "program.yaml")
	idx := Collect(m, config.TypeclassAttribute)

	var names []string
	for _, d := range idx.Declarations {
		names = append(names, d.Implementation.Name)
	}
	want := []string{"StrShowable", "IntShowable", "StrDisplay", "IntDisplay"}
	if diff := pretty.Diff(names, want); len(diff) > 0 {
		t.Errorf("unexpected declarations: %v", diff)
	}
	if len(idx.Generic) != 1 || idx.Generic[0].Implementation.Name != "ListShowable" {
		t.Fatalf("expected ListShowable as the only generic declaration, got %v", idx.Generic)
	}
	if got := idx.Generic[0].InstanceType.FullName(); got != "System.Collections.Generic.List<T>" {
		t.Errorf("unexpected instance pattern %s", got)
	}
	if !idx.IsTypeclass(m.FindType("Demo.IShowable")) || idx.IsTypeclass(m.FindType("Demo.Program")) {
		t.Error("IsTypeclass misreports")
	}
}

func TestResolver_Run(t *testing.T) {
	m := loadProgram(t, "program.yaml")
	report, err := New(m, config.Default(), nil).Run()
	if err != nil {
		t.Fatalf("resolution failed: %v", err)
	}
	// Six call sites in Program, one in the generated list implementation.
	if report.CallSites != 7 {
		t.Errorf("expected 7 call sites, got %d", report.CallSites)
	}
	if len(report.Specializations) != 1 {
		t.Fatalf("expected one generated implementation, got %d", len(report.Specializations))
	}

	for _, ty := range m.AllTypes() {
		if ty.HasGenericParams() {
			continue
		}
		for _, method := range ty.Methods {
			if method.Body == nil {
				continue
			}
			for _, ins := range method.Body.Instructions {
				if op, ok := ins.Operand.(metadata.MethodOperand); ok && op.ElementMethod().Name == config.ResolveMethodName {
					t.Errorf("%s still calls %s", method.FullName(), op)
				}
			}
		}
	}
}

func TestResolver_ValueTypeInstance(t *testing.T) {
	m := loadProgram(t, "program.yaml")
	if _, err := New(m, config.Default(), nil).Run(); err != nil {
		t.Fatal(err)
	}
	impl := m.FindType("Demo.StrShowable")
	b := programBody(t, m, "ShowString")

	want := []string{"ldloca", "initobj", "ldloc", "box", "ldstr", "callvirt", "ret"}
	if diff := pretty.Diff(opcodes(b), want); len(diff) > 0 {
		t.Fatalf("unexpected body: %v", diff)
	}
	if len(b.Variables) != 1 || b.Variables[0].Type != impl || !b.InitLocals {
		t.Errorf("expected an initialized local of %s, got %# v", impl, pretty.Formatter(b.Variables))
	}
	if b.Instructions[1].Operand != impl || b.Instructions[3].Operand != impl {
		t.Errorf("initobj/box should name %s", impl)
	}
	if b.Instructions[0].Operand != 0 || b.Instructions[2].Operand != 0 {
		t.Errorf("ldloca/ldloc should use local 0")
	}
}

func TestResolver_GenericImplementation(t *testing.T) {
	m := loadProgram(t, "program.yaml")
	report, err := New(m, config.Default(), nil).Run()
	if err != nil {
		t.Fatal(err)
	}
	clone := m.FindType("Demo.ListShowable$specialized$System.String")
	if clone == nil {
		t.Fatal("list implementation not specialized")
	}
	if report.Specializations[0].Specialized != clone {
		t.Error("report does not name the generated type")
	}
	if got := clone.Interfaces[0].FullName(); got != "Demo.IShowable<System.Collections.Generic.List<System.String>>" {
		t.Errorf("clone implements %s", got)
	}

	for _, name := range []string{"ShowList", "ShowListAgain"} {
		b := programBody(t, m, name)
		var newobj *metadata.Instruction
		for _, ins := range b.Instructions {
			if op, ok := ins.Operand.(*metadata.MethodRef); ok && ins.OpCode == metadata.OP_NEWOBJ && op.DeclaringType == clone {
				newobj = ins
			}
		}
		if newobj == nil {
			t.Errorf("%s does not construct %s", name, clone)
		}
	}

	show := clone.MethodsNamed("Show")[0]
	strShowable := m.FindType("Demo.StrShowable")
	found := false
	for _, ins := range show.Body.Instructions {
		if ins.OpCode == metadata.OP_INITOBJ && ins.Operand == strShowable {
			found = true
		}
	}
	if !found {
		t.Error("element typeclass not resolved inside the generated implementation")
	}

	original := m.FindType("Demo.ListShowable").MethodsNamed("Show")[0]
	if original.Body.Variables[len(original.Body.Variables)-1].Type.FullName() != config.Int32TypeName {
		t.Error("generic implementation was woven")
	}
}

func TestResolver_ValueForm(t *testing.T) {
	m := loadProgram(t, "program.yaml")
	if _, err := New(m, config.Default(), nil).Run(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		method string
		impl   string
		want   []string
	}{
		{"DisplayString", "Demo.StrDisplay", []string{"ldstr", "newobj", "callvirt", "ret"}},
		{"DisplayInt", "Demo.IntDisplay", []string{"ldc.i4", "newobj", "box", "callvirt", "ret"}},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			b := programBody(t, m, tt.method)
			if diff := pretty.Diff(opcodes(b), tt.want); len(diff) > 0 {
				t.Fatalf("unexpected body: %v", diff)
			}
			ctor := b.Instructions[1].Operand.(*metadata.MethodRef)
			if ctor.DeclaringType.FullName() != tt.impl || ctor.Name != config.ConstructorName || len(ctor.Params) != 1 {
				t.Errorf("unexpected constructor %s", ctor)
			}
		})
	}
}

func TestResolver_Errors(t *testing.T) {
	tests := []struct {
		section string
		target  error
		mention string
	}{
		{"unresolved.yaml", diagnostics.ErrUnresolvedTypeclass, "Demo.IShowable<System.Boolean>"},
		{"ambiguous.yaml", diagnostics.ErrAmbiguousSpecialization, "Demo.IShowable<System.String>"},
	}
	for _, tt := range tests {
		t.Run(tt.section, func(t *testing.T) {
			m := loadProgram(t, tt.section)
			_, err := New(m, config.Default(), nil).Run()
			if !errors.Is(err, tt.target) {
				t.Fatalf("expected %v, got %v", tt.target, err)
			}
			if !strings.Contains(err.Error(), "Demo.Program::") {
				t.Errorf("error should name the method: %v", err)
			}
			if !strings.Contains(err.Error(), tt.mention) {
				t.Errorf("error should mention %s: %v", tt.mention, err)
			}
		})
	}
}

func TestResolver_OpenRequestsAreLeft(t *testing.T) {
	m := loadProgram(t, "open.yaml")
	report, err := New(m, config.Default(), nil).Run()
	if err != nil {
		t.Fatalf("resolution failed: %v", err)
	}
	if report.CallSites != 0 {
		t.Errorf("expected no rewrites, got %d", report.CallSites)
	}
	show := m.FindType("Demo.Wrapper").MethodsNamed("Show")[0]
	if show.Body.Instructions[0].OpCode != metadata.OP_CALL {
		t.Error("open request rewritten")
	}
}

func TestUnify(t *testing.T) {
	core := metadata.CoreLibrary()
	list := core.FindType(config.ListTypeName)
	str := core.FindType(config.StringTypeName)
	i32 := core.FindType(config.Int32TypeName)

	impl := &metadata.TypeDef{Namespace: "Demo", Name: "PairShowable"}
	impl.DeclareGenericParams("A")
	a := impl.GenericParams[0]
	listOf := func(arg metadata.TypeRef) metadata.TypeRef {
		return &metadata.GenericInstance{Element: list, Args: []metadata.TypeRef{arg}}
	}

	tests := []struct {
		name    string
		pattern metadata.TypeRef
		actual  metadata.TypeRef
		ok      bool
		bound   string
	}{
		{"parameter", a, str, true, "System.String"},
		{"instance", listOf(a), listOf(i32), true, "System.Int32"},
		{"nested", listOf(listOf(a)), listOf(listOf(str)), true, "System.String"},
		{"shape mismatch", listOf(a), str, false, ""},
		{"closed match", listOf(str), listOf(str), true, ""},
		{"closed mismatch", listOf(str), listOf(i32), false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bindings := make(map[int]metadata.TypeRef)
			if ok := unify(tt.pattern, tt.actual, impl, bindings); ok != tt.ok {
				t.Fatalf("expected %v, got %v", tt.ok, ok)
			}
			if tt.bound == "" {
				return
			}
			if b, ok := bindings[0]; !ok || b.FullName() != tt.bound {
				t.Errorf("expected binding %s, got %v", tt.bound, bindings)
			}
		})
	}
}
