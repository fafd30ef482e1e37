// Package toolchain discovers and validates the c3c compiler.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

var (
	ErrNotFound           = errors.New("toolchain not found")
	ErrVersionUnsupported = errors.New("toolchain version unsupported")
)

// Executable is the compiler binary name searched on PATH.
const Executable = "c3c"

// Info describes a located toolchain. It is immutable once returned.
type Info struct {
	// Path is the absolute path of the compiler executable.
	Path string

	Version Version

	// Targets lists the target names the toolchain accepts.
	Targets []string

	// HostOS is the platform the toolchain runs on (runtime.GOOS). The
	// invocation builder uses it for artifact naming when no target is set.
	HostOS string
}

// SupportsTarget reports whether target (c3c-native or mapped triple) is known.
func (i Info) SupportsTarget(target string) bool {
	mapped := MapTarget(target)
	for _, t := range i.Targets {
		if t == mapped {
			return true
		}
	}
	return false
}

// VersionProber runs the version query against a candidate executable and
// returns its combined output.
type VersionProber func(ctx context.Context, path string) (string, error)

// Locator finds a usable compiler.
type Locator struct {
	// Candidates returns the conventional install locations searched after PATH.
	Candidates func() []string

	// LookPath resolves the executable on the process search path.
	LookPath func(name string) (string, error)

	// Probe queries a candidate's version.
	Probe VersionProber

	// Minimum is the oldest accepted version.
	Minimum Version
}

// NewLocator returns a Locator with the platform defaults.
func NewLocator() *Locator {
	return &Locator{
		Candidates: DefaultCandidates,
		LookPath:   exec.LookPath,
		Probe:      ProbeVersion,
		Minimum:    MinimumVersion,
	}
}

// Locate returns the first candidate that runs and satisfies the minimum version.
//
// An explicit preferred path is authoritative: when it is set, no other
// location is considered.
//
// Errors:
//   - ErrNotFound when no candidate executable exists or none can be run
//   - ErrVersionUnsupported when a candidate runs but is too old
func (l *Locator) Locate(ctx context.Context, preferred string) (Info, error) {
	var candidates []string
	if strings.TrimSpace(preferred) != "" {
		p, err := l.resolvePreferred(preferred)
		if err != nil {
			return Info{}, err
		}
		candidates = []string{p}
	} else {
		candidates = l.searchOrder()
	}

	var unsupported error
	var lastErr error
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		abs, err := filepath.Abs(c)
		if err != nil {
			continue
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if !IsExecutable(abs) {
			continue
		}

		out, err := l.Probe(ctx, abs)
		if err != nil {
			lastErr = err
			continue
		}
		v, err := ParseVersion(out)
		if err != nil {
			if unsupported == nil {
				unsupported = fmt.Errorf("%w: %s: %v", ErrVersionUnsupported, abs, err)
			}
			continue
		}
		if !v.AtLeast(l.Minimum) {
			if unsupported == nil {
				unsupported = fmt.Errorf("%w: %s reports %s, need >= %s", ErrVersionUnsupported, abs, v, l.Minimum)
			}
			continue
		}

		return Info{
			Path:    abs,
			Version: v,
			Targets: append([]string(nil), KnownTargets...),
			HostOS:  runtime.GOOS,
		}, nil
	}

	if unsupported != nil {
		return Info{}, unsupported
	}
	if strings.TrimSpace(preferred) != "" {
		if lastErr != nil {
			return Info{}, fmt.Errorf("%w: %s: %v", ErrNotFound, preferred, lastErr)
		}
		return Info{}, fmt.Errorf("%w: %s is not an executable file", ErrNotFound, preferred)
	}
	if lastErr != nil {
		return Info{}, fmt.Errorf("%w: %s could not be run: %v", ErrNotFound, Executable, lastErr)
	}
	return Info{}, fmt.Errorf("%w: %s is not on PATH or in any conventional location", ErrNotFound, Executable)
}

// resolvePreferred looks up a bare command name ("c3c", "c3c-0.7") on the
// search path. Anything containing a separator is used as a path.
func (l *Locator) resolvePreferred(preferred string) (string, error) {
	if strings.ContainsAny(preferred, `/\`) || l.LookPath == nil {
		return preferred, nil
	}
	p, err := l.LookPath(preferred)
	if err != nil {
		return "", fmt.Errorf("%w: %s is not on PATH: %v", ErrNotFound, preferred, err)
	}
	return p, nil
}

func (l *Locator) searchOrder() []string {
	var out []string
	if l.LookPath != nil {
		if p, err := l.LookPath(Executable); err == nil && p != "" {
			out = append(out, p)
		}
	}
	if l.Candidates != nil {
		out = append(out, l.Candidates()...)
	}
	return out
}

// DefaultCandidates lists the conventional c3c install locations for this platform.
func DefaultCandidates() []string {
	home, _ := os.UserHomeDir()
	if runtime.GOOS == "windows" {
		var out []string
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			out = append(out, filepath.Join(local, "c3", "c3c.exe"))
		}
		if home != "" {
			out = append(out, filepath.Join(home, "c3", "c3c.exe"))
		}
		return append(out, `C:\c3\c3c.exe`, `C:\Program Files\c3\c3c.exe`)
	}

	var out []string
	if home != "" {
		out = append(out, filepath.Join(home, ".local", "bin", Executable))
		out = append(out, filepath.Join(home, "c3", Executable))
	}
	return append(out,
		"/usr/local/bin/"+Executable,
		"/usr/bin/"+Executable,
		"/opt/c3/"+Executable,
		"/opt/homebrew/bin/"+Executable,
	)
}

// ProbeVersion runs `<path> --version` and returns its combined output.
func ProbeVersion(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "--version")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s --version: %w", path, err)
	}
	return string(out), nil
}

// IsExecutable reports whether path is a regular file the current user can run.
func IsExecutable(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		ext := strings.ToLower(filepath.Ext(path))
		return ext == ".exe" || ext == ".cmd" || ext == ".bat"
	}
	return info.Mode()&0o111 != 0
}
