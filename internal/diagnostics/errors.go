// Package diagnostics defines the error codes and error values reported by
// the weaver.
package diagnostics

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a class of weaving failure.
type ErrorCode string

const (
	ErrW001 ErrorCode = "W001" // type has no generic parameters to specialize
	ErrW002 ErrorCode = "W002" // generic argument count mismatch
	ErrW003 ErrorCode = "W003" // more than one generic parameter on a top-level target
	ErrW004 ErrorCode = "W004" // no typeclass implementation for an instance type
	ErrW005 ErrorCode = "W005" // more than one registry entry matches
	ErrW006 ErrorCode = "W006" // referenced member not found
	ErrW007 ErrorCode = "W007" // malformed module
	ErrW008 ErrorCode = "W008" // configuration
)

// Sentinels matched with errors.Is against any DiagnosticError of the
// corresponding code.
var (
	ErrUnsupportedKind         = errors.New("unsupported kind")
	ErrParameterCountMismatch  = errors.New("generic parameter count mismatch")
	ErrNotImplemented          = errors.New("not implemented")
	ErrUnresolvedTypeclass     = errors.New("unresolved typeclass")
	ErrAmbiguousSpecialization = errors.New("ambiguous specialization")
	ErrMemberNotFound          = errors.New("member not found")
	ErrInvalidModule           = errors.New("invalid module")
	ErrConfig                  = errors.New("invalid configuration")
)

var sentinels = map[ErrorCode]error{
	ErrW001: ErrUnsupportedKind,
	ErrW002: ErrParameterCountMismatch,
	ErrW003: ErrNotImplemented,
	ErrW004: ErrUnresolvedTypeclass,
	ErrW005: ErrAmbiguousSpecialization,
	ErrW006: ErrMemberNotFound,
	ErrW007: ErrInvalidModule,
	ErrW008: ErrConfig,
}

// DiagnosticError is a weaving failure. Site names the type, method or
// file where it was detected.
type DiagnosticError struct {
	Code    ErrorCode
	Site    string
	Message string
	Err     error
}

// NewError creates a diagnostic with the given code.
func NewError(code ErrorCode, site string, msg string) *DiagnosticError {
	return &DiagnosticError{Code: code, Site: site, Message: msg}
}

// Wrap creates a diagnostic carrying an underlying cause.
func Wrap(code ErrorCode, site string, err error) *DiagnosticError {
	return &DiagnosticError{Code: code, Site: site, Message: err.Error(), Err: err}
}

func (e *DiagnosticError) Error() string {
	if e.Site == "" {
		return fmt.Sprintf("error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: error [%s]: %s", e.Site, e.Code, e.Message)
}

func (e *DiagnosticError) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's code.
func (e *DiagnosticError) Is(target error) bool {
	if s, ok := sentinels[e.Code]; ok && s == target {
		return true
	}
	return false
}

// AsDiagnostic converts any error to a DiagnosticError, keeping one if it is
// already there and otherwise using the fallback code.
func AsDiagnostic(err error, fallback ErrorCode) *DiagnosticError {
	var de *DiagnosticError
	if errors.As(err, &de) {
		return de
	}
	return Wrap(fallback, "", err)
}
