package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"c3ffi/internal/core"
)

const (
	ExitSuccess           = 0
	ExitBuildFailure      = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

type Command string

const (
	CommandBuild   Command = "build"
	CommandLocate  Command = "locate"
	CommandVersion Command = "version"
)

type TraceConfig struct {
	Enabled bool
	Path    string
}

// CLIInvocation is the canonical description of one run.
//
// All paths are cleaned and relative ones are resolved against WorkDir, which
// is always absolute. Settings left empty here fall back to the environment.
type CLIInvocation struct {
	Command Command
	WorkDir string

	ManifestPath string
	EnvFile      string

	// Overrides for the environment configuration.
	Compiler string
	Target   string
	OutDir   string
	Format   core.LinkageFormat

	Trace   TraceConfig
	NoColor bool
}

type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// Usage is printed for invalid invocations.
const Usage = `usage: c3ffi <command> [flags]

commands:
  build     compile every library in the manifest and print linkage directives
  locate    print the c3c toolchain that would be used
  version   print the c3ffi version`

// ParseInvocation parses args (without argv[0]) into a canonical CLIInvocation.
//
// workDir anchors relative paths and must be absolute. ParseInvocation does
// not read the environment; that happens in Execute.
func ParseInvocation(args []string, workDir string) (CLIInvocation, error) {
	if len(args) == 0 {
		return CLIInvocation{}, invalidInvocationf("missing command\n%s", Usage)
	}
	workDir = filepath.Clean(workDir)
	if !filepath.IsAbs(workDir) {
		return CLIInvocation{}, invalidInvocationf("working directory must be absolute (got %q)", workDir)
	}

	inv := CLIInvocation{Command: Command(strings.ToLower(args[0])), WorkDir: workDir}

	fs := flag.NewFlagSet("c3ffi "+args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard) // parsing errors are returned, not printed

	var manifest, envFile, tracePath, format string
	fs.StringVar(&inv.Compiler, "compiler", "", "Path to c3c (overrides C3C and discovery).")
	fs.StringVar(&envFile, "env-file", ".env", "Optional .env file with configuration.")

	switch inv.Command {
	case CommandBuild:
		fs.StringVar(&manifest, "manifest", "c3ffi.yaml", "Build manifest path.")
		fs.StringVar(&inv.Target, "target", "", "Default target for libraries that name none.")
		fs.StringVar(&inv.OutDir, "out-dir", "", "Default output directory (overrides OUT_DIR).")
		fs.StringVar(&format, "format", "", "Linkage directive format: cargo|ldflags|cgo.")
		fs.StringVar(&tracePath, "trace", "", "Trace output path (optional).")
		fs.BoolVar(&inv.NoColor, "no-color", false, "Disable colored diagnostics.")
	case CommandLocate, CommandVersion:
	default:
		return CLIInvocation{}, invalidInvocationf("unknown command %q\n%s", args[0], Usage)
	}

	if err := fs.Parse(args[1:]); err != nil {
		return CLIInvocation{}, invalidInvocationf("%v", err)
	}
	if fs.NArg() != 0 {
		return CLIInvocation{}, invalidInvocationf("unexpected positional arguments: %q", strings.Join(fs.Args(), " "))
	}

	if format != "" {
		f, err := core.ParseLinkageFormat(format)
		if err != nil {
			return CLIInvocation{}, invalidInvocationf("invalid --format: %v", err)
		}
		inv.Format = f
	}

	var err error
	if strings.TrimSpace(envFile) != "" {
		if inv.EnvFile, err = resolveUnderWorkDir(workDir, envFile); err != nil {
			return CLIInvocation{}, err
		}
	}
	if inv.Command != CommandBuild {
		return inv, nil
	}

	if inv.ManifestPath, err = resolveUnderWorkDir(workDir, manifest); err != nil {
		return CLIInvocation{}, err
	}
	if inv.OutDir != "" {
		if inv.OutDir, err = resolveUnderWorkDir(workDir, inv.OutDir); err != nil {
			return CLIInvocation{}, err
		}
	}
	if strings.TrimSpace(tracePath) != "" {
		resolved, err := resolveUnderWorkDir(workDir, tracePath)
		if err != nil {
			return CLIInvocation{}, err
		}
		inv.Trace = TraceConfig{Enabled: true, Path: resolved}
	}
	return inv, nil
}

func resolveUnderWorkDir(workDir, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", invalidInvocationf("path must not be empty")
	}
	clean := filepath.Clean(p)
	if clean == "." {
		return "", invalidInvocationf("path must not be '.'")
	}
	if filepath.IsAbs(clean) {
		return clean, nil
	}
	return filepath.Clean(filepath.Join(workDir, clean)), nil
}

// ExitCode extracts a semantic exit code from a ParseInvocation error.
// If the error is not a known invocation error, it returns ExitInternalError.
func ExitCode(err error) int {
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	if err == nil {
		return ExitSuccess
	}
	return ExitInternalError
}
