package modfile

import (
	"errors"
	"strings"
	"testing"

	"github.com/funvibe/funweave/internal/diagnostics"
	"github.com/funvibe/funweave/internal/metadata"
)

const sampleModule = `
module: Sample
mvid: 6f1c2a3e-9b7d-4c1e-8f00-1234567890ab
types:
  - namespace: Sample
    name: Box
    flags: [public]
    generics: [T]
    attributes:
      - type: Funweave.GenerateSpecializationAttribute
        args: ["typeof(System.Int32)"]
    fields:
      - name: value
        type: "!0"
    methods:
      - name: .ctor
        flags: [public]
        body:
          - ldarg 0
          - call System.Void System.Object::.ctor()
          - ret
      - name: Get
        flags: [public]
        returns: "!0"
        body:
          - ldarg 0
          - ldfld !0 Sample.Box<!0>::value
          - ret
      - name: Same
        flags: [public]
        generics: [U]
        returns: System.Boolean
        params:
          - {name: a, type: "!0"}
          - {name: b, type: "!!0"}
        body:
          - ldarga 1
          - ldarg 2
          - box !!0
          - constrained. !0
          - callvirt System.Boolean System.Object::Equals(System.Object)
          - ret
    nested:
      - name: Inner
        flags: [public]
        generics: [T, V]
        methods:
          - name: Second
            flags: [public, static]
            returns: "!1"
            params:
              - {name: v, type: "!1"}
            body:
              - ldarg 0
              - ret
  - namespace: Sample
    name: Program
    flags: [public]
    methods:
      - name: Count
        flags: [public, static]
        returns: System.Int32
        params:
          - {name: n, type: System.Int32}
        locals: [System.Int32]
        body:
          - ldc.i4 0
          - stloc 0
          - .label loop
          - ldloc 0
          - ldarg 0
          - clt
          - brfalse done
          - ldloc 0
          - ldc.i4 1
          - add
          - stloc 0
          - br loop
          - .label done
          - ldloc 0
          - ret
      - name: Use
        flags: [public, static]
        returns: System.Boolean
        body:
          - newobj System.Void Sample.Box<System.String>::.ctor()
          - ldstr "a b"
          - ldc.i4 3
          - call System.Boolean Sample.Box<System.String>::Same<System.Int32>(!0, !!0)
          - ret
`

func parseSample(t *testing.T) *metadata.Module {
	t.Helper()
	m, err := Parse([]byte(sampleModule), "sample.fwm.yaml")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return m
}

func TestParse_Structure(t *testing.T) {
	m := parseSample(t)

	box := m.FindType("Sample.Box")
	if box == nil {
		t.Fatal("Sample.Box not found")
	}
	if m.Mvid.String() != "6f1c2a3e-9b7d-4c1e-8f00-1234567890ab" {
		t.Errorf("mvid not preserved: %s", m.Mvid)
	}
	if box.BaseType == nil || box.BaseType.FullName() != "System.Object" {
		t.Errorf("expected default base System.Object, got %v", box.BaseType)
	}
	attrs := box.AttributesOf("Funweave.GenerateSpecializationAttribute")
	if len(attrs) != 1 {
		t.Fatalf("expected one marker, got %d", len(attrs))
	}
	if arg, ok := attrs[0].Args[0].(metadata.TypeRef); !ok || arg.FullName() != "System.Int32" {
		t.Errorf("unexpected marker argument %v", attrs[0].Args[0])
	}

	inner := m.FindType("Sample.Box/Inner")
	if inner == nil || inner.DeclaringType != box {
		t.Fatal("nested type not linked to its declaring type")
	}

	same := box.MethodsNamed("Same")[0]
	if p := same.Params[1].Type.(*metadata.GenericParam); p.Owner != same {
		t.Error("!!0 in a signature must bind to the method's own parameter")
	}
	if p := same.Params[0].Type.(*metadata.GenericParam); p.Owner != box {
		t.Error("!0 in a signature must bind to the type's parameter")
	}

	count := m.FindType("Sample.Program").MethodsNamed("Count")[0]
	brfalse := count.Body.Instructions[5]
	if brfalse.OpCode != metadata.OP_BRFALSE {
		t.Fatalf("expected brfalse at 5, got %s", brfalse.OpCode)
	}
	if target := brfalse.Operand.(*metadata.Instruction); count.Body.IndexOf(target) != 11 {
		t.Errorf("brfalse should target instruction 11, got %d", count.Body.IndexOf(target))
	}
}

func TestParse_GenericInstanceMethodOperand(t *testing.T) {
	m := parseSample(t)
	use := m.FindType("Sample.Program").MethodsNamed("Use")[0]

	call, ok := use.Body.Instructions[3].Operand.(*metadata.GenericInstanceMethod)
	if !ok {
		t.Fatalf("expected generic instance method, got %T", use.Body.Instructions[3].Operand)
	}
	if call.Args[0].FullName() != "System.Int32" {
		t.Errorf("unexpected method argument %s", call.Args[0])
	}
	if !call.Method.HasThis {
		t.Error("instance method reference should have HasThis")
	}
	if m.ResolveMethod(call) != m.FindType("Sample.Box").MethodsNamed("Same")[0] {
		t.Error("operand does not resolve to its definition")
	}
	if got := use.Body.Instructions[1].Operand.(string); got != "a b" {
		t.Errorf("string operand = %q", got)
	}
}

func TestRoundTrip_Text(t *testing.T) {
	m := parseSample(t)
	data, err := Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	again, err := Parse(data, "again.fwm.yaml")
	if err != nil {
		t.Fatalf("reparse: %v\n%s", err, data)
	}
	if a, b := metadata.Disassemble(m), metadata.Disassemble(again); a != b {
		t.Errorf("text round trip changed the module:\n%s\n---\n%s", a, b)
	}
}

func TestRoundTrip_Binary(t *testing.T) {
	m := parseSample(t)
	data, err := Encode(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data[:4]) != "FWMB" || data[4] != binaryVersionV1 {
		t.Fatalf("unexpected header % x", data[:5])
	}
	again, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if again.Mvid != m.Mvid {
		t.Error("mvid not preserved")
	}
	if a, b := metadata.Disassemble(m), metadata.Disassemble(again); a != b {
		t.Errorf("binary round trip changed the module:\n%s\n---\n%s", a, b)
	}
}

func TestRoundTrip_GeneratedNestedType(t *testing.T) {
	m := parseSample(t)
	parent := m.AddType(&metadata.TypeDef{Namespace: "Sample", Name: "Box$specialized$System.Int32", Attributes: metadata.TypePublic})
	child := m.AddType(&metadata.TypeDef{Name: "Inner", Attributes: metadata.TypePublic})
	child.DeclaringType = parent
	child.DeclareGenericParams("V")

	data, err := Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	again, err := Parse(data, "gen.fwm.yaml")
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	got := again.FindType("Sample.Box$specialized$System.Int32/Inner")
	if got == nil || got.DeclaringType == nil || len(got.GenericParams) != 1 {
		t.Fatalf("generated nested type not restored: %v", got)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown opcode", "- jump 3", "unknown opcode"},
		{"undefined label", "- br nowhere", "undefined label"},
		{"unknown type", "- box Sample.Nope", "unknown type"},
		{"unresolved method", "- call System.Void System.Object::Nope()", "unresolved method"},
		{"bad string", "- ldstr unquoted", "ldstr"},
		{"parameter out of range", "- box !3", "out of range"},
		{"arity mismatch", "- box System.Collections.Generic.List<System.Int32, System.Int32>", "mismatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "module: Bad\ntypes:\n  - name: T\n    methods:\n      - name: M\n        body:\n          " + tt.body + "\n"
			_, err := Parse([]byte(src), "bad.fwm.yaml")
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, diagnostics.ErrInvalidModule) {
				t.Errorf("expected an invalid module diagnostic, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestDecode_BadHeader(t *testing.T) {
	if _, err := Decode([]byte("FXYB\x01....")); err == nil {
		t.Error("expected magic number error")
	}
	if _, err := Decode([]byte("FWMB\x09....")); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("expected version error, got %v", err)
	}
	if _, err := Decode([]byte("FW")); err == nil {
		t.Error("expected short data error")
	}
}
