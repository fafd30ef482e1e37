package core

import (
	"fmt"
	"strings"
)

// OutputKind selects what the toolchain produces.
type OutputKind string

const (
	KindObject OutputKind = "object"
	KindStatic OutputKind = "static"
	KindShared OutputKind = "shared"
)

// ParseOutputKind accepts the canonical names plus the c3c command spellings.
func ParseOutputKind(raw string) (OutputKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "static", "static-lib", "staticlib":
		return KindStatic, nil
	case "shared", "dynamic", "dynamic-lib", "dylib", "cdylib":
		return KindShared, nil
	case "object", "obj", "compile-only":
		return KindObject, nil
	default:
		return "", fmt.Errorf("unknown output kind %q (expected object|static|shared)", raw)
	}
}

// IsLibrary reports whether the kind yields something a linker consumes by name.
func (k OutputKind) IsLibrary() bool {
	return k == KindStatic || k == KindShared
}

// OptLevel is a c3c optimization level.
type OptLevel string

const (
	// Safe, no optimizations.
	O0 OptLevel = "O0"
	// Safe, high optimization.
	O1 OptLevel = "O1"
	// Unsafe, high optimization.
	O2 OptLevel = "O2"
	// Unsafe, high optimization, single module.
	O3 OptLevel = "O3"
	// Unsafe, highest optimization, relaxed maths, no panic messages.
	O4 OptLevel = "O4"
	// Unsafe, highest optimization, fast maths, no panic messages, no backtrace.
	O5 OptLevel = "O5"
	// Small code.
	Os OptLevel = "Os"
	// Tiny code.
	Oz OptLevel = "Oz"

	OptNone    = O0
	OptDebug   = O1
	OptRelease = O3
)

// ParseOptLevel accepts none|debug|release as well as the raw c3c levels.
func ParseOptLevel(raw string) (OptLevel, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "-")
	switch strings.ToLower(s) {
	case "", "none":
		return OptNone, nil
	case "debug":
		return OptDebug, nil
	case "release":
		return OptRelease, nil
	}
	switch OptLevel(s) {
	case O0, O1, O2, O3, O4, O5, Os, Oz:
		return OptLevel(s), nil
	}
	return "", fmt.Errorf("unknown optimization level %q", raw)
}

// ExportMode controls symbol visibility of the produced artifact.
type ExportMode string

const (
	// ExportExplicit keeps only symbols marked @export.
	ExportExplicit ExportMode = "explicit"
	// ExportAll keeps every public symbol available for external linkage.
	ExportAll ExportMode = "all"
)

// ParseExportMode accepts "all" or "explicit" (default).
func ParseExportMode(raw string) (ExportMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "explicit":
		return ExportExplicit, nil
	case "all", "export-all":
		return ExportAll, nil
	default:
		return "", fmt.Errorf("unknown export mode %q (expected all|explicit)", raw)
	}
}

// Request describes one compilation.
//
// A Request is owned by the caller until it is handed to the Compiler, which
// treats it as read-only.
type Request struct {
	// Name is the library (or object) name, without "lib" prefix or extension.
	Name string `json:"name" yaml:"name"`

	// Sources are files, directories or glob patterns, in significant order.
	Sources []string `json:"sources" yaml:"sources"`

	// Exclude drops resolved sources matching any of these glob patterns.
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`

	// BaseDir anchors relative Sources. Defaults to the process working directory.
	BaseDir string `json:"base_dir,omitempty" yaml:"base_dir,omitempty"`

	Kind OutputKind `json:"kind" yaml:"kind"`

	// OutputDir receives the artifact.
	OutputDir string `json:"out_dir" yaml:"out_dir"`

	// Target is a c3c target or an LLVM/Rust triple. Empty means the host.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`

	Opt OptLevel `json:"optimization,omitempty" yaml:"optimization,omitempty"`

	// DebugInfo toggles -g / -g0.
	DebugInfo bool `json:"debug_info" yaml:"debug_info"`

	// Defines are feature flags passed as -D. Order does not matter.
	Defines []string `json:"defines,omitempty" yaml:"defines,omitempty"`

	// IncludePaths are C3 library search directories (--libdir). Order matters.
	IncludePaths []string `json:"include_paths,omitempty" yaml:"include_paths,omitempty"`

	// C3Libs are C3 libraries to link (--lib).
	C3Libs []string `json:"c3_libs,omitempty" yaml:"c3_libs,omitempty"`

	// LibDirs are directories of compiled native libraries (-L).
	LibDirs []string `json:"lib_dirs,omitempty" yaml:"lib_dirs,omitempty"`

	// Libs are compiled native libraries (-l).
	Libs []string `json:"libs,omitempty" yaml:"libs,omitempty"`

	// LinkerArgs are forwarded to the linker (-z).
	LinkerArgs []string `json:"linker_args,omitempty" yaml:"linker_args,omitempty"`

	Export ExportMode `json:"export,omitempty" yaml:"export,omitempty"`

	// Args are extra raw compiler arguments placed before the sources.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Env overrides environment variables for the toolchain process.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// Compiler overrides toolchain discovery with an explicit executable.
	Compiler string `json:"compiler,omitempty" yaml:"compiler,omitempty"`
}

// Validate checks the fields the pipeline cannot default.
func (r *Request) Validate() error {
	if r == nil {
		return invalidf("request is nil")
	}
	if strings.TrimSpace(r.Name) == "" {
		return invalidf("name is required")
	}
	if strings.ContainsAny(r.Name, `/\`) {
		return invalidf("name %q must not contain path separators", r.Name)
	}
	if strings.TrimSpace(r.OutputDir) == "" {
		return invalidf("output directory is required")
	}
	if _, err := ParseOutputKind(string(r.Kind)); err != nil {
		return invalidf("%v", err)
	}
	if _, err := ParseOptLevel(string(r.Opt)); err != nil {
		return invalidf("%v", err)
	}
	if _, err := ParseExportMode(string(r.Export)); err != nil {
		return invalidf("%v", err)
	}
	return nil
}

// normalized returns a copy with defaults applied to the enumerated fields.
func (r Request) normalized() Request {
	r.Kind, _ = ParseOutputKind(string(r.Kind))
	r.Opt, _ = ParseOptLevel(string(r.Opt))
	r.Export, _ = ParseExportMode(string(r.Export))
	return r
}
