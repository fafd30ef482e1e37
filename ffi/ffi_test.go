package ffi

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"c3ffi/internal/c3ctest"
	"c3ffi/internal/config"
	"c3ffi/internal/core"
)

// TestBuild_RequestMapping verifies every field reaches the request and
// environment defaults fill only the gaps.
func TestBuild_RequestMapping(t *testing.T) {
	b := &Build{
		Kind:        Shared,
		Opt:         "release",
		NoDebugInfo: true,
		Files:       []string{"c3/a.c3"},
		Exclude:     []string{"*_test.c3"},
		Defines:     []string{"X"},
		Args:        []string{"--safe=no"},
		Env:         map[string]string{"K": "V"},
		LinkerArgs:  []string{"now"},
		LibDirs:     []string{"/usr/lib"},
		Libs:        []string{"m"},
		C3LibDirs:   []string{"deps"},
		C3Libs:      []string{"raylib"},
		Target:      "wasm32",
		ExportAll:   true,
	}
	req := b.Request("thing", config.Config{Compiler: "/env/c3c", OutDir: "/env/out", Target: "ignored"})

	assert.Equal(t, "thing", req.Name)
	assert.Equal(t, core.KindShared, req.Kind)
	assert.Equal(t, "/env/out", req.OutputDir)
	assert.Equal(t, "wasm32", req.Target)
	assert.Equal(t, "/env/c3c", req.Compiler)
	assert.Equal(t, core.ExportAll, req.Export)
	assert.False(t, req.DebugInfo)
	assert.Equal(t, []string{"deps"}, req.IncludePaths)
	assert.Equal(t, []string{"raylib"}, req.C3Libs)
	assert.Equal(t, []string{"m"}, req.Libs)
	assert.Equal(t, map[string]string{"K": "V"}, req.Env)
	require.NoError(t, req.Validate())

	zero := (&Build{Files: []string{"x"}}).Request("z", config.Config{OutDir: "/o"})
	assert.Equal(t, core.ExportExplicit, zero.Export)
	assert.True(t, zero.DebugInfo, "debug info is on unless disabled")
	require.NoError(t, zero.Validate())
}

func fakeBuild(t *testing.T) *Build {
	t.Helper()
	dir := t.TempDir()
	c3ctest.WriteSource(t, dir, "c3/geo/point.c3", "")
	c3ctest.WriteSource(t, dir, "c3/geo/line.c3", "")
	return &Build{
		Compiler: c3ctest.WriteFakeCompiler(t, t.TempDir()),
		Files:    []string{"c3/geo"},
		BaseDir:  dir,
		OutDir:   filepath.Join(dir, "out"),
	}
}

// TestBuild_CompileStaticLibrary runs a full compile against the fake c3c.
func TestBuild_CompileStaticLibrary(t *testing.T) {
	b := fakeBuild(t)

	out, err := b.Compile(context.Background(), "geo")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(b.OutDir, "libgeo.a"), out.Artifact.Path)
	require.NotNil(t, out.Linkage)
	assert.True(t, out.Linkage.Static)
	assert.Equal(t, "geo", out.Linkage.LibName)

	data, err := os.ReadFile(out.Artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, "static-lib:libgeo", string(data))

	found := false
	for _, a := range Artifacts() {
		if a.Path == out.Artifact.Path {
			found = true
		}
	}
	assert.True(t, found, "artifact should be registered in the process session")
}

// TestBuild_EmitCargoDirectives verifies stdout carries only directives.
func TestBuild_EmitCargoDirectives(t *testing.T) {
	b := fakeBuild(t)
	b.Kind = Shared
	b.Libs = []string{"m"}

	var stdout, stderr bytes.Buffer
	require.NoError(t, b.Emit(context.Background(), "geoshared", &stdout, &stderr))

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "cargo:rerun-if-changed="))
	assert.True(t, strings.HasPrefix(lines[1], "cargo:rerun-if-changed="))
	assert.Equal(t, "cargo:rustc-link-search=native="+b.OutDir, lines[2])
	assert.Equal(t, "cargo:rustc-link-lib=dylib=geoshared", lines[3])
	assert.Empty(t, stderr.String())
}

// TestBuild_EmitFailureReportsDiagnostics verifies a broken source produces
// diagnostics on stderr and no directives.
func TestBuild_EmitFailureReportsDiagnostics(t *testing.T) {
	b := fakeBuild(t)
	c3ctest.WriteSource(t, b.BaseDir, "c3/geo/bad.c3", c3ctest.BrokenMarker)

	var stdout, stderr bytes.Buffer
	err := b.Emit(context.Background(), "geobad", &stdout, &stderr)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCompilationFailed))
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "error: unexpected token")
	assert.Contains(t, stderr.String(), "c3ffi: geobad:")

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.NotEmpty(t, Diagnostics(err))
}

// TestBuild_EmptySourceSet verifies a build without sources never runs c3c.
func TestBuild_EmptySourceSet(t *testing.T) {
	b := fakeBuild(t)
	require.NoError(t, os.MkdirAll(filepath.Join(b.BaseDir, "empty"), 0o755))
	b.Files = []string{"empty"}

	_, err := b.Compile(context.Background(), "nothing")
	assert.ErrorIs(t, err, ErrEmptySourceSet)
}
