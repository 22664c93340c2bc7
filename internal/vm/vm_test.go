package vm

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"

	"github.com/funvibe/funweave/internal/metadata"
	"github.com/funvibe/funweave/internal/modfile"
	"github.com/funvibe/funweave/internal/pipeline"
)

func load(t *testing.T, archive string) *metadata.Module {
	t.Helper()
	ar, err := txtar.ParseFile(filepath.Join("testdata", archive))
	if err != nil {
		t.Fatalf("failed to read fixtures: %v", err)
	}
	f := ar.Files[0]
	m, err := modfile.Parse(f.Data, f.Name)
	if err != nil {
		t.Fatalf("failed to parse %s: %v", f.Name, err)
	}
	return m
}

// weave runs the full pipeline and reloads the emitted module, so the
// tests execute what would be written to disk.
func weave(t *testing.T, m *metadata.Module) *metadata.Module {
	t.Helper()
	ctx := pipeline.NewPipelineContext(m.Name+".fwm.yaml", nil)
	ctx.Module = m
	ctx = pipeline.Default().Run(ctx)
	if ctx.Failed() {
		t.Fatalf("weaving failed: %v", ctx.Errors)
	}
	woven, err := modfile.Parse(ctx.Output, ctx.FilePath)
	if err != nil {
		t.Fatalf("emitted module does not load: %v", err)
	}
	return woven
}

var roundTripCases = []struct {
	method string
	args   []Value
	want   Value
}{
	{"Identity_Int", []Value{int32(42)}, int32(42)},
	{"Identity_String", []Value{"Test"}, "Test"},
	{"Equality_Int", []Value{int32(1), int32(2)}, false},
	{"Equality_Int", []Value{int32(1), int32(1)}, true},
	{"Equality_String", []Value{"a", "a"}, true},
	{"Equality_String", []Value{"a", "b"}, false},
	{"Default_Int", nil, int32(0)},
	{"Repeat_String", []Value{"x", int32(3)}, int32(3)},
	{"Overlap_String", []Value{"foobar"}, "foobar"},
	{"Overlap_Outer", []Value{int32(7)}, int32(7)},
	{"PairEquality_IntInt", []Value{int32(5), int32(5)}, true},
	{"PairEquality_IntInt", []Value{int32(5), int32(6)}, false},
	{"PairEquality_IntString", []Value{int32(1), "1"}, false},
}

func TestRoundTrip(t *testing.T) {
	modules := map[string]*metadata.Module{
		"NotSpecialized": load(t, "roundtrip.txtar"),
		"Specialized":    weave(t, load(t, "roundtrip.txtar")),
	}
	for variant, m := range modules {
		machine := New(m)
		for _, tt := range roundTripCases {
			t.Run(variant+"/"+tt.method, func(t *testing.T) {
				got, err := machine.Call("Demo.Program", tt.method, tt.args...)
				if err != nil {
					t.Fatalf("call failed: %v", err)
				}
				if got != tt.want {
					t.Errorf("%s%v: expected %#v, got %#v", tt.method, tt.args, tt.want, got)
				}
			})
		}
	}
}

func TestRoundTrip_ConsumersUseClones(t *testing.T) {
	m := weave(t, load(t, "roundtrip.txtar"))
	for _, method := range m.FindType("Demo.Program").Methods {
		for _, ins := range method.Body.Instructions {
			if ins.OpCode != metadata.OP_NEWOBJ {
				continue
			}
			decl := ins.Operand.(metadata.MethodOperand).ElementMethod().DeclaringType
			if !strings.Contains(metadata.ElementDef(decl).FullName(), "$specialized$") {
				t.Errorf("%s still constructs %s", method.FullName(), decl.FullName())
			}
		}
	}
}

func TestRoundTrip_CloneDirectly(t *testing.T) {
	m := weave(t, load(t, "roundtrip.txtar"))
	machine := New(m)

	tests := []struct {
		clone  string
		method string
		args   []Value
		want   Value
	}{
		{"Demo.GenericClass$specialized$System.String", "Method_AcceptsT_ReturnsT", []Value{"Test"}, "Test"},
		{"Demo.GenericClass$specialized$System.Int32", "Method_AcceptsT_ReturnsT", []Value{int32(9)}, int32(9)},
		{"Demo.GenericClass$specialized$System.Int32", "Method_AcceptsTwoT_ReturnsEquality", []Value{int32(1), int32(2)}, false},
		{"Demo.GenericClass$specialized$System.Int32", "Method_AcceptsTwoT_ReturnsEquality", []Value{int32(1), int32(1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.clone+"::"+tt.method, func(t *testing.T) {
			def := m.FindType(tt.clone)
			if def == nil {
				t.Fatalf("%s not generated", tt.clone)
			}
			obj, err := machine.Construct(def)
			if err != nil {
				t.Fatal(err)
			}
			got, err := machine.CallMethod(obj, tt.method, tt.args...)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func TestRoundTrip_NestedCloneKeepsOwnParameter(t *testing.T) {
	m := weave(t, load(t, "roundtrip.txtar"))
	machine := New(m)
	pair := m.FindType("Demo.GenericClass$specialized$System.Int32/Pair")
	if pair == nil || len(pair.GenericParams) != 1 {
		t.Fatalf("expected Pair clone with one parameter, got %v", pair)
	}
	for _, arg := range []string{"System.Int32", "System.String"} {
		inst := &metadata.GenericInstance{Element: pair, Args: []metadata.TypeRef{m.FindType(arg)}}
		obj, err := machine.Construct(inst)
		if err != nil {
			t.Fatal(err)
		}
		got, err := machine.CallMethod(obj, "Method_AcceptsTAndT2_ReturnsEquality", int32(3), int32(3))
		if err != nil {
			t.Fatal(err)
		}
		if got != true {
			t.Errorf("Pair<%s>: expected equal arguments to compare equal", arg)
		}
	}
}

func TestShowable(t *testing.T) {
	machine := New(weave(t, load(t, "showable.txtar")))
	tests := []struct {
		method string
		want   string
	}{
		{"ShowString", `"Hello!"`},
		{"ShowInt", "1337"},
		{"ShowList", `["foo", "bar", "baz"]`},
		{"ShowListAgain", "[]"},
		{"DisplayString", "Hello!"},
		{"DisplayInt", "1337"},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got, err := machine.Call("Demo.Program", tt.method)
			if err != nil {
				t.Fatalf("call failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, Format(got))
			}
		})
	}
}

func TestShowable_NotWoven(t *testing.T) {
	machine := New(load(t, "showable.txtar"))
	_, err := machine.Call("Demo.Program", "ShowString")
	if !errors.Is(err, ErrNotWoven) {
		t.Fatalf("expected ErrNotWoven, got %v", err)
	}
	var re *RuntimeError
	if !errors.As(err, &re) || len(re.Trace) == 0 || !strings.HasPrefix(re.Trace[0], "Demo.Program::ShowString()") {
		t.Errorf("expected a trace through ShowString, got %v", err)
	}
}

func TestRuntimeErrors(t *testing.T) {
	machine := New(load(t, "roundtrip.txtar"))
	tests := []struct {
		method string
		target error
	}{
		{"Recurse", ErrStackOverflow},
		{"NullField", ErrNullReference},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			_, err := machine.Call("Demo.Program", tt.method)
			if !errors.Is(err, tt.target) {
				t.Fatalf("expected %v, got %v", tt.target, err)
			}
		})
	}

	if _, err := machine.Call("Demo.Program", "Identity_Int", int32(1)); err != nil {
		t.Errorf("machine not usable after an error: %v", err)
	}
	if _, err := machine.Call("Demo.Program", "Missing"); !errors.Is(err, ErrUnresolvedMethod) {
		t.Errorf("expected ErrUnresolvedMethod, got %v", err)
	}
}

func TestValueTypeCopies(t *testing.T) {
	m := load(t, "showable.txtar")
	def := m.FindType("Demo.IntDisplay")
	machine := New(m)

	v, err := machine.Construct(def, int32(5))
	if err != nil {
		t.Fatal(err)
	}
	obj := v.(*Object)
	copied := copyValue(obj).(*Object)
	copied.Fields["value"] = int32(6)
	if obj.Fields["value"] != int32(5) {
		t.Error("copy aliases the original")
	}
	if !valuesEqual(obj, copyValue(obj)) || valuesEqual(obj, copied) {
		t.Error("value types should compare field-wise")
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{int32(-3), "-3"},
		{true, "True"},
		{"s", "s"},
		{nil, ""},
		{&List{}, "System.Collections.Generic.List<System.Object>"},
	}
	for _, tt := range tests {
		if got := Format(tt.v); got != tt.want {
			t.Errorf("Format(%#v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}
