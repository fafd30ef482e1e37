package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"c3ffi/internal/config"
	"c3ffi/internal/core"
	"c3ffi/internal/logger"
	"c3ffi/internal/toolchain"
	"c3ffi/internal/trace"
)

// Version is the c3ffi release, set at link time.
var Version = "dev"

// Env carries the process boundary into Execute so tests can replace it.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer

	// Lookup reads configuration variables. Defaults to os.LookupEnv.
	Lookup config.Lookup

	// Locate finds the toolchain. Defaults to toolchain.NewLocator().Locate.
	Locate toolchain.LocateFunc

	// Runner executes compiles. Defaults to core.NewExecutor.
	Runner core.ProcessRunner
}

func (e Env) withDefaults() Env {
	if e.Stdout == nil {
		e.Stdout = os.Stdout
	}
	if e.Stderr == nil {
		e.Stderr = os.Stderr
	}
	if e.Lookup == nil {
		e.Lookup = os.LookupEnv
	}
	if e.Locate == nil {
		e.Locate = toolchain.NewLocator().Locate
	}
	return e
}

type CLIResult struct {
	ExitCode int

	// Outputs holds one entry per manifest library, nil where it failed.
	Outputs []*core.CompiledOutput

	// TraceHash is the hash of the written trace, when tracing is on.
	TraceHash string
}

// Execute runs a canonical invocation.
//
// Responsibilities:
//   - Layer configuration: flags over environment over .env file.
//   - Initialize the trace file before compiling and finalize it after,
//     even on panic or failure.
//   - Print linkage directives to stdout and diagnostics to stderr.
//   - Translate outcomes to semantic exit codes.
func Execute(ctx context.Context, inv CLIInvocation, env Env) (res CLIResult, execErr error) {
	res.ExitCode = ExitInternalError
	env = env.withDefaults()

	defer func() {
		if r := recover(); r != nil {
			res.ExitCode = ExitInternalError
			execErr = fmt.Errorf("panic: %v", r)
		}
	}()

	cfg, err := loadConfig(inv, env)
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}
	cfg.Log.Output = env.Stderr
	if err := logger.Init(cfg.Log); err != nil {
		res.ExitCode = ExitConfigError
		return res, fmt.Errorf("init logger: %w", err)
	}

	switch inv.Command {
	case CommandVersion:
		fmt.Fprintf(env.Stdout, "c3ffi %s\n", Version)
		res.ExitCode = ExitSuccess
		return res, nil
	case CommandLocate:
		return locate(ctx, cfg, env)
	case CommandBuild:
		return build(ctx, inv, cfg, env)
	default:
		res.ExitCode = ExitInvalidInvocation
		return res, invalidInvocationf("unknown command %q", inv.Command)
	}
}

func loadConfig(inv CLIInvocation, env Env) (config.Config, error) {
	lookup := env.Lookup
	if inv.EnvFile != "" {
		var err error
		if lookup, err = config.FileLookup(lookup, inv.EnvFile); err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.FromLookup(lookup)
	if err != nil {
		return config.Config{}, err
	}
	if inv.Compiler != "" {
		cfg.Compiler = inv.Compiler
	}
	if inv.Target != "" {
		cfg.Target = inv.Target
	}
	if inv.OutDir != "" {
		cfg.OutDir = inv.OutDir
	}
	if inv.Format != "" {
		cfg.Linkage = inv.Format
	}
	return cfg, nil
}

func locate(ctx context.Context, cfg config.Config, env Env) (CLIResult, error) {
	info, err := env.Locate(ctx, cfg.Compiler)
	if err != nil {
		return CLIResult{ExitCode: ExitConfigError}, err
	}
	logger.LogToolchain(info.Path, info.Version.String())
	fmt.Fprintf(env.Stdout, "%s\t%s\n", info.Path, info.Version)
	return CLIResult{ExitCode: ExitSuccess}, nil
}

func build(ctx context.Context, inv CLIInvocation, cfg config.Config, env Env) (res CLIResult, err error) {
	res.ExitCode = ExitInternalError

	manifest, err := config.LoadManifest(inv.ManifestPath)
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}
	cache, err := cfg.Cache.OpenCache()
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, fmt.Errorf("opening cache: %w", err)
	}

	rec := trace.NewRecorder()
	traceWriter, err := newTraceWriter(inv)
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}
	defer func() {
		// Always finalize trace output, even after a failed build.
		hash, ferr := traceWriter.Finalize(rec.Trace())
		if ferr != nil && err == nil {
			res.ExitCode = ExitInternalError
			err = ferr
		}
		res.TraceHash = hash
	}()

	compiler := core.NewCompiler(toolchain.NewSession(env.Locate), cache)
	if env.Runner != nil {
		compiler.Runner = env.Runner
	}
	compiler.Trace = rec
	logger.Debug("build session", "session", compiler.SessionID, "manifest", inv.ManifestPath)

	outs, buildErr := compiler.CompileAll(ctx, manifest.Requests(cfg))
	res.Outputs = outs

	render := NewRenderer(env.Stderr, !inv.NoColor)
	links := core.NewLinkageWriter(env.Stdout, cfg.Linkage)
	for _, out := range outs {
		if out == nil {
			continue
		}
		render.Diagnostics(out.Diagnostics)
		if werr := links.Write(out); werr != nil {
			return res, fmt.Errorf("writing linkage: %w", werr)
		}
		render.Built(out)
	}
	render.Failures(buildErr)
	render.Summary(outs)

	res.ExitCode = translateBuildErrorToExitCode(buildErr)
	return res, buildErr
}

// translateBuildErrorToExitCode maps compile error kinds to exit codes.
// Setup problems outrank compile failures.
func translateBuildErrorToExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, core.ErrToolchainNotFound),
		errors.Is(err, core.ErrToolchainVersionUnsupported),
		errors.Is(err, core.ErrInvalidRequest),
		errors.Is(err, core.ErrDuplicateOutputPath):
		return ExitConfigError
	default:
		return ExitBuildFailure
	}
}

type traceFileWriter struct {
	enabled bool
	path    string
}

func newTraceWriter(inv CLIInvocation) (*traceFileWriter, error) {
	if !inv.Trace.Enabled {
		return &traceFileWriter{enabled: false}, nil
	}
	if inv.Trace.Path == "" {
		return nil, fmt.Errorf("trace enabled but path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(inv.Trace.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	// Reserve the destination with an empty trace so even a panic leaves a
	// valid file behind.
	w := &traceFileWriter{enabled: true, path: inv.Trace.Path}
	_, err := w.Finalize(trace.BuildTrace{})
	return w, err
}

// Finalize writes t and returns its hash.
func (w *traceFileWriter) Finalize(t trace.BuildTrace) (string, error) {
	if w == nil || !w.enabled {
		return "", nil
	}
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(w.path, b, 0o644); err != nil {
		return "", fmt.Errorf("write trace: %w", err)
	}
	return trace.ComputeTraceHash(b), nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
