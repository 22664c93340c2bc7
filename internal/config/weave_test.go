package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("verbose: true\n"), "funweave.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Verbose {
		t.Error("expected verbose to be true")
	}
	if cfg.Markers.GenerateSpecialization != GenerateSpecializationAttribute {
		t.Errorf("generate marker = %q, want %q", cfg.Markers.GenerateSpecialization, GenerateSpecializationAttribute)
	}
	if cfg.Resolver.Method != ResolveMethodName {
		t.Errorf("resolver method = %q, want %q", cfg.Resolver.Method, ResolveMethodName)
	}
	if cfg.Delimiter != SpecializationDelimiter {
		t.Errorf("delimiter = %q, want %q", cfg.Delimiter, SpecializationDelimiter)
	}
	if len(cfg.Passes) != 3 {
		t.Fatalf("expected 3 default passes, got %v", cfg.Passes)
	}
}

func TestParseConfig_CustomMarkers(t *testing.T) {
	yaml := `
markers:
  typeclass: My.TypeclassAttribute
resolver:
  type: My.Implicit
  method: Summon
passes: [implicit]
`
	cfg, err := ParseConfig([]byte(yaml), "funweave.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Markers.Typeclass != "My.TypeclassAttribute" {
		t.Errorf("typeclass marker = %q", cfg.Markers.Typeclass)
	}
	if cfg.Resolver.Type != "My.Implicit" || cfg.Resolver.Method != "Summon" {
		t.Errorf("resolver = %+v", cfg.Resolver)
	}
	if cfg.PassEnabled(PassSpecialize) {
		t.Error("specialize pass should be disabled")
	}
	if !cfg.PassEnabled(PassImplicit) {
		t.Error("implicit pass should be enabled")
	}
}

func TestParseConfig_TOML(t *testing.T) {
	src := `
delimiter = "__"
passes = ["specialize", "inject"]

[markers]
typeclass = "My.TypeclassAttribute"
`
	cfg, err := ParseConfig([]byte(src), "funweave.toml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Delimiter != "__" || cfg.Markers.Typeclass != "My.TypeclassAttribute" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.PassEnabled(PassImplicit) {
		t.Error("implicit pass should be disabled")
	}
	if cfg.Resolver.Type != ImplicitlyTypeName {
		t.Errorf("resolver type = %q, want default", cfg.Resolver.Type)
	}

	if _, err := ParseConfig([]byte("passes = [\"inject\"]\n"), "funweave.toml"); err == nil {
		t.Error("expected validation to apply to TOML")
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown pass", "passes: [specialize, optimize]\n"},
		{"duplicate pass", "passes: [specialize, specialize]\n"},
		{"inject without specialize", "passes: [inject]\n"},
		{"inject before specialize", "passes: [inject, specialize]\n"},
		{"reserved delimiter", "delimiter: \"<x>\"\n"},
		{"bad marker", "markers:\n  typeclass: \"Show<T>\"\n"},
		{"malformed yaml", "passes: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(tt.yaml), "funweave.yaml"); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestFindConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(root, "funweave.yaml")
	if err := os.WriteFile(path, []byte("verbose: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	found, err := FindConfig(nested)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != path {
		t.Errorf("found = %q, want %q", found, path)
	}

	cfg, err := LoadConfig(found)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Verbose {
		t.Error("expected verbose false")
	}
}

func TestTrimModuleExt(t *testing.T) {
	if got := TrimModuleExt("dir/app.fwm.yaml"); got != "dir/app" {
		t.Errorf("TrimModuleExt = %q", got)
	}
	if got := TrimModuleExt("app.fwm"); got != "app" {
		t.Errorf("TrimModuleExt = %q", got)
	}
	if got := TrimModuleExt("app.txt"); got != "app.txt" {
		t.Errorf("TrimModuleExt = %q", got)
	}
}
