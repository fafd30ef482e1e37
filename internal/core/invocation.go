package core

import (
	"path/filepath"
	"sort"
	"strings"

	"c3ffi/internal/toolchain"
)

// Invocation is one fully constructed toolchain run.
type Invocation struct {
	// Executable is the toolchain path.
	Executable string

	// Args excludes the executable itself.
	Args []string

	// WorkDir is the process working directory. Empty means inherit.
	WorkDir string

	// Env holds overrides layered on top of the allow-listed host environment.
	Env map[string]string

	// OutputPath is where the toolchain is told to write the artifact.
	OutputPath string

	// Sources are the resolved inputs, in argument order.
	Sources []string
}

// Argv returns the executable followed by its arguments.
func (inv Invocation) Argv() []string {
	return append([]string{inv.Executable}, inv.Args...)
}

// String renders the command line for logs. Arguments containing spaces are quoted.
func (inv Invocation) String() string {
	argv := inv.Argv()
	parts := make([]string, len(argv))
	for i, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\"") {
			parts[i] = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
		} else {
			parts[i] = a
		}
	}
	return strings.Join(parts, " ")
}

// commandFor maps an output kind to the c3c subcommand.
func commandFor(kind OutputKind) string {
	switch kind {
	case KindObject:
		return "compile-only"
	case KindShared:
		return "dynamic-lib"
	default:
		return "static-lib"
	}
}

// BuildInvocation constructs the argument vector for req. It is a pure
// function of its inputs: equal requests (up to the order of Defines) yield
// byte-identical argument lists.
//
// Argument order:
//
//	<command> --output-dir <dir> -o <stem> [--target <t>] -O<n> -g|-g0
//	-D <def>... --libdir <dir>... --lib <l>... -L <dir>... -l <l>... -z <arg>...
//	[--no-strip-unused] <args>... <sources>...
func BuildInvocation(req Request, sources []string, tc toolchain.Info) Invocation {
	req = req.normalized()
	target := toolchain.MapTarget(req.Target)

	args := []string{commandFor(req.Kind)}
	args = append(args, "--output-dir", req.OutputDir, "-o", OutputStem(req.Name, req.Kind, targetOS(target, tc)))

	if target != "" {
		args = append(args, "--target", target)
	}

	args = append(args, "-"+string(req.Opt))
	if req.DebugInfo {
		args = append(args, "-g")
	} else {
		args = append(args, "-g0")
	}

	for _, d := range sortedUnique(req.Defines) {
		args = append(args, "-D", d)
	}
	for _, dir := range orderedUnique(req.IncludePaths) {
		args = append(args, "--libdir", dir)
	}
	for _, l := range orderedUnique(req.C3Libs) {
		args = append(args, "--lib", l)
	}
	for _, dir := range orderedUnique(req.LibDirs) {
		args = append(args, "-L", dir)
	}
	for _, l := range orderedUnique(req.Libs) {
		args = append(args, "-l", l)
	}
	for _, z := range req.LinkerArgs {
		args = append(args, "-z", z)
	}

	if req.Export == ExportAll {
		args = append(args, "--no-strip-unused")
	}

	args = append(args, req.Args...)
	args = append(args, sources...)

	var env map[string]string
	if len(req.Env) > 0 {
		env = make(map[string]string, len(req.Env))
		for k, v := range req.Env {
			env[k] = v
		}
	}

	return Invocation{
		Executable: tc.Path,
		Args:       args,
		WorkDir:    req.BaseDir,
		Env:        env,
		OutputPath: OutputPath(req, tc),
		Sources:    append([]string(nil), sources...),
	}
}

// OutputPath returns the artifact path the toolchain will write for req.
func OutputPath(req Request, tc toolchain.Info) string {
	req = req.normalized()
	goos := targetOS(toolchain.MapTarget(req.Target), tc)
	return filepath.Join(req.OutputDir, OutputStem(req.Name, req.Kind, goos)+OutputExt(req.Kind, goos))
}

// OutputStem returns the file name without extension: "lib<name>" for
// libraries on non-Windows platforms, name otherwise.
func OutputStem(name string, kind OutputKind, goos string) string {
	if kind.IsLibrary() && goos != "windows" {
		return "lib" + name
	}
	return name
}

// OutputExt returns the artifact extension for kind on goos.
func OutputExt(kind OutputKind, goos string) string {
	switch kind {
	case KindObject:
		if goos == "windows" {
			return ".obj"
		}
		return ".o"
	case KindShared:
		switch goos {
		case "windows", "mingw":
			return ".dll"
		case "darwin", "ios":
			return ".dylib"
		case "wasm":
			return ".wasm"
		default:
			return ".so"
		}
	default:
		if goos == "windows" {
			return ".lib"
		}
		return ".a"
	}
}

func targetOS(target string, tc toolchain.Info) string {
	if target != "" {
		return toolchain.TargetOS(target)
	}
	return tc.HostOS
}

func sortedUnique(in []string) []string {
	out := orderedUnique(in)
	sort.Strings(out)
	return out
}

func orderedUnique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
