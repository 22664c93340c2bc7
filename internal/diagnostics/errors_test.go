package diagnostics

import (
	"errors"
	"fmt"
	"testing"
)

func TestDiagnosticError_Is(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		sentinel error
	}{
		{ErrW001, ErrUnsupportedKind},
		{ErrW002, ErrParameterCountMismatch},
		{ErrW003, ErrNotImplemented},
		{ErrW004, ErrUnresolvedTypeclass},
		{ErrW005, ErrAmbiguousSpecialization},
		{ErrW006, ErrMemberNotFound},
		{ErrW007, ErrInvalidModule},
		{ErrW008, ErrConfig},
	}
	for _, tt := range tests {
		err := fmt.Errorf("weaving: %w", NewError(tt.code, "Site", "msg"))
		if !errors.Is(err, tt.sentinel) {
			t.Errorf("%s: expected errors.Is to match %v", tt.code, tt.sentinel)
		}
		if tt.code != ErrW004 && errors.Is(err, ErrUnresolvedTypeclass) {
			t.Errorf("%s: unexpected match with ErrUnresolvedTypeclass", tt.code)
		}
	}
}

func TestDiagnosticError_Format(t *testing.T) {
	err := NewError(ErrW004, "Demo.Test::Run", "no implementation for Demo.Showable<System.Boolean>")
	want := "Demo.Test::Run: error [W004]: no implementation for Demo.Showable<System.Boolean>"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
	if got := NewError(ErrW008, "", "bad").Error(); got != "error [W008]: bad" {
		t.Errorf("got %q", got)
	}
}

func TestAsDiagnostic(t *testing.T) {
	cause := errors.New("boom")
	de := AsDiagnostic(cause, ErrW007)
	if de.Code != ErrW007 || !errors.Is(de, cause) {
		t.Errorf("unexpected diagnostic %+v", de)
	}

	orig := NewError(ErrW001, "X", "y")
	if AsDiagnostic(fmt.Errorf("ctx: %w", orig), ErrW007) != orig {
		t.Error("expected the wrapped diagnostic to be returned")
	}
}
