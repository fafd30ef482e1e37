// Package ffi compiles C3 sources from a host build script and tells the host
// linker how to consume the result.
//
// A typical build script:
//
//	func main() {
//		b := &ffi.Build{Files: []string{"c3/mathx"}, Kind: ffi.Static, Opt: "release"}
//		b.Run("mathx")
//	}
//
// Run prints linkage directives (cargo format by default) to stdout and
// exits non-zero on failure, so the host build aborts. Compile is the
// non-exiting form.
//
// Settings left empty fall back to the environment: C3C for the compiler,
// OUT_DIR for the output directory, TARGET for the target, and the C3FFI_*
// variables for caching, logging and the directive format.
package ffi

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"c3ffi/internal/config"
	"c3ffi/internal/core"
	"c3ffi/internal/logger"
	"c3ffi/internal/toolchain"
)

type (
	Output       = core.CompiledOutput
	Artifact     = core.Artifact
	Linkage      = core.Linkage
	Diagnostic   = core.Diagnostic
	Kind         = core.OutputKind
	OptLevel     = core.OptLevel
	CompileError = core.CompileError
)

const (
	Object = core.KindObject
	Static = core.KindStatic
	Shared = core.KindShared
)

var (
	ErrToolchainNotFound           = core.ErrToolchainNotFound
	ErrToolchainVersionUnsupported = core.ErrToolchainVersionUnsupported
	ErrPathNotFound                = core.ErrPathNotFound
	ErrEmptySourceSet              = core.ErrEmptySourceSet
	ErrSpawn                       = core.ErrSpawn
	ErrDuplicateOutputPath         = core.ErrDuplicateOutputPath
	ErrCompilationFailed           = core.ErrCompilationFailed
	ErrInvalidRequest              = core.ErrInvalidRequest
)

// Build configures one C3 compilation. The zero value compiles a static
// library with default optimization and debug info; only Files is required.
type Build struct {
	// Compiler is the c3c executable. Empty means C3C, then discovery.
	Compiler string

	Kind Kind

	// Opt is an optimization level: none, debug, release or O0..O5, Os, Oz.
	Opt OptLevel

	// NoDebugInfo compiles with -g0. Debug info is on by default.
	NoDebugInfo bool

	// Files are source files, directories or glob patterns.
	Files []string

	// Exclude drops sources matching these patterns.
	Exclude []string

	// BaseDir anchors relative Files. Empty means the working directory.
	BaseDir string

	Defines []string

	// Args are passed to c3c verbatim, before the sources.
	Args []string

	// Env overrides variables for the c3c process.
	Env map[string]string

	LinkerArgs []string

	// LibDirs and Libs name native libraries the artifact links against.
	LibDirs []string
	Libs    []string

	// C3LibDirs and C3Libs name C3 libraries.
	C3LibDirs []string
	C3Libs    []string

	// Target is a c3c target or LLVM triple. Empty means TARGET, then host.
	Target string

	// OutDir receives the artifact. Empty means OUT_DIR.
	OutDir string

	// ExportAll keeps every public symbol, not only @export ones.
	ExportAll bool
}

// Request converts b into a compile request named name, filling empty
// settings from cfg.
func (b *Build) Request(name string, cfg config.Config) core.Request {
	export := core.ExportExplicit
	if b.ExportAll {
		export = core.ExportAll
	}
	return core.Request{
		Name:         name,
		Sources:      b.Files,
		Exclude:      b.Exclude,
		BaseDir:      b.BaseDir,
		Kind:         b.Kind,
		OutputDir:    firstNonEmpty(b.OutDir, cfg.OutDir),
		Target:       firstNonEmpty(b.Target, cfg.Target),
		Opt:          b.Opt,
		DebugInfo:    !b.NoDebugInfo,
		Defines:      b.Defines,
		IncludePaths: b.C3LibDirs,
		C3Libs:       b.C3Libs,
		LibDirs:      b.LibDirs,
		Libs:         b.Libs,
		LinkerArgs:   b.LinkerArgs,
		Export:       export,
		Args:         b.Args,
		Env:          b.Env,
		Compiler:     firstNonEmpty(b.Compiler, cfg.Compiler),
	}
}

// session is shared by every Build in the process: one toolchain lookup, one
// artifact registry, one cache.
type session struct {
	cfg      config.Config
	compiler *core.Compiler
}

var (
	sessionOnce sync.Once
	shared      *session
	sessionErr  error
)

func defaultSession() (*session, error) {
	sessionOnce.Do(func() {
		if err := config.LoadEnv(); err != nil {
			sessionErr = err
			return
		}
		cfg, err := config.FromEnv()
		if err != nil {
			sessionErr = err
			return
		}
		if err := logger.Init(cfg.Log); err != nil {
			sessionErr = err
			return
		}
		cache, err := cfg.Cache.OpenCache()
		if err != nil {
			sessionErr = fmt.Errorf("opening cache: %w", err)
			return
		}
		shared = &session{
			cfg:      cfg,
			compiler: core.NewCompiler(toolchain.NewSession(nil), cache),
		}
	})
	return shared, sessionErr
}

// Compile builds the artifact named name.
//
// Errors are *CompileError values; match kinds with errors.Is, for example
// errors.Is(err, ffi.ErrCompilationFailed), and read diagnostics with
// Diagnostics.
func (b *Build) Compile(ctx context.Context, name string) (*Output, error) {
	s, err := defaultSession()
	if err != nil {
		return nil, err
	}
	return s.compiler.Compile(ctx, b.Request(name, s.cfg))
}

// Run compiles name and emits linkage directives to stdout. On failure it
// prints diagnostics to stderr and exits with status 1.
func (b *Build) Run(name string) {
	if err := b.Emit(context.Background(), name, os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// Emit is Run without the exit: directives go to stdout, diagnostics and
// errors to stderr.
func (b *Build) Emit(ctx context.Context, name string, stdout, stderr io.Writer) error {
	s, err := defaultSession()
	if err != nil {
		fmt.Fprintf(stderr, "c3ffi: %v\n", err)
		return err
	}
	out, err := s.compiler.Compile(ctx, b.Request(name, s.cfg))
	if err != nil {
		for _, d := range Diagnostics(err) {
			fmt.Fprintln(stderr, d.String())
		}
		fmt.Fprintf(stderr, "c3ffi: %s: %v\n", name, err)
		return err
	}
	if s.cfg.Linkage == core.FormatCargo {
		// Cargo hides build-script stderr on success.
		for _, d := range out.Diagnostics {
			if d.Severity == core.SeverityWarning {
				fmt.Fprintf(stdout, "cargo:warning=%s\n", d.String())
			}
		}
	} else {
		for _, d := range out.Diagnostics {
			fmt.Fprintln(stderr, d.String())
		}
	}
	return core.NewLinkageWriter(stdout, s.cfg.Linkage).Write(out)
}

// Diagnostics returns the toolchain diagnostics carried by err, if any.
func Diagnostics(err error) []Diagnostic {
	return core.DiagnosticsOf(err)
}

// Artifacts lists every artifact built by this process so far.
func Artifacts() []Artifact {
	s, err := defaultSession()
	if err != nil {
		return nil
	}
	return s.compiler.Artifacts()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
