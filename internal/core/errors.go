package core

import (
	"errors"
	"fmt"

	"c3ffi/internal/toolchain"
)

// Error kinds. Match with errors.Is against a *CompileError or any error
// wrapping one.
var (
	ErrToolchainNotFound           = toolchain.ErrNotFound
	ErrToolchainVersionUnsupported = toolchain.ErrVersionUnsupported
	ErrPathNotFound                = errors.New("path not found")
	ErrEmptySourceSet              = errors.New("empty source set")
	ErrSpawn                       = errors.New("spawn error")
	ErrDuplicateOutputPath         = errors.New("duplicate output path")
	ErrCompilationFailed           = errors.New("compilation failed")
	ErrInvalidRequest              = errors.New("invalid request")
)

// CompileError is the single error shape returned by the compile pipeline.
//
// Diagnostics is populated for ErrCompilationFailed. Cause carries the
// underlying OS or toolchain error when there is one.
type CompileError struct {
	Kind        error
	Msg         string
	Diagnostics []Diagnostic
	Cause       error
}

func (e *CompileError) Error() string {
	if e == nil {
		return ""
	}
	var msg string
	if e.Cause != nil && errors.Is(e.Cause, e.Kind) {
		// The cause already names the kind.
		msg = e.Cause.Error()
		if e.Msg != "" {
			msg = fmt.Sprintf("%s: %s", e.Msg, msg)
		}
	} else {
		msg = e.Kind.Error()
		if e.Msg != "" {
			msg = fmt.Sprintf("%s: %s", msg, e.Msg)
		}
		if e.Cause != nil {
			msg = fmt.Sprintf("%s: %v", msg, e.Cause)
		}
	}
	if n := countErrors(e.Diagnostics); n > 0 {
		msg = fmt.Sprintf("%s (%d error diagnostic(s))", msg, n)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *CompileError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// DiagnosticsOf returns the diagnostics attached to err, if any.
func DiagnosticsOf(err error) []Diagnostic {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Diagnostics
	}
	return nil
}

func invalidf(format string, args ...any) error {
	return &CompileError{Kind: ErrInvalidRequest, Msg: fmt.Sprintf(format, args...)}
}

func pathNotFound(path string, cause error) error {
	return &CompileError{Kind: ErrPathNotFound, Msg: path, Cause: cause}
}

func spawnError(msg string, cause error) error {
	return &CompileError{Kind: ErrSpawn, Msg: msg, Cause: cause}
}

func duplicateOutput(path string) error {
	return &CompileError{Kind: ErrDuplicateOutputPath, Msg: path}
}

func compilationFailed(msg string, diags []Diagnostic) error {
	return &CompileError{Kind: ErrCompilationFailed, Msg: msg, Diagnostics: diags}
}

// toolchainError keeps the locator's message while classifying it.
func toolchainError(err error) error {
	var ce *CompileError
	if errors.As(err, &ce) {
		return err
	}
	kind := ErrToolchainNotFound
	if errors.Is(err, toolchain.ErrVersionUnsupported) {
		kind = ErrToolchainVersionUnsupported
	}
	return &CompileError{Kind: kind, Cause: err}
}
