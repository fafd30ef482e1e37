package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"c3ffi/internal/c3ctest"
	"c3ffi/internal/toolchain"
)

type project struct {
	workDir  string
	compiler string
	stdout   bytes.Buffer
	stderr   bytes.Buffer
	vars     map[string]string
}

// newProject lays out a two-library manifest with a fake compiler.
func newProject(t *testing.T) *project {
	t.Helper()
	p := &project{workDir: t.TempDir()}
	p.compiler = c3ctest.WriteFakeCompiler(t, t.TempDir())
	p.vars = map[string]string{"C3C": p.compiler}

	c3ctest.WriteSource(t, p.workDir, "src/mathx/add.c3", "")
	c3ctest.WriteSource(t, p.workDir, "src/mathx/mul.c3", "")
	c3ctest.WriteSource(t, p.workDir, "src/strs/join.c3", "")
	p.writeManifest(t, `
out_dir: out
libraries:
  - name: mathx
    sources: [src/mathx]
  - name: strs
    sources: [src/strs]
    libs: [m]
`)
	return p
}

func (p *project) writeManifest(t *testing.T, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(p.workDir, "c3ffi.yaml"), []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func (p *project) env() Env {
	p.stdout.Reset()
	p.stderr.Reset()
	return Env{
		Stdout: &p.stdout,
		Stderr: &p.stderr,
		Lookup: func(key string) (string, bool) {
			v, ok := p.vars[key]
			return v, ok
		},
	}
}

func (p *project) run(t *testing.T, args ...string) CLIResult {
	t.Helper()
	res, _ := Run(context.Background(), args, p.workDir, p.env())
	return res
}

func TestExecute_BuildPrintsCargoDirectives(t *testing.T) {
	p := newProject(t)

	res := p.run(t, "build", "--no-color")
	if res.ExitCode != ExitSuccess {
		t.Fatalf("expected success, got %d\nstderr:\n%s", res.ExitCode, p.stderr.String())
	}

	outDir := filepath.Join(p.workDir, "out")
	stdout := p.stdout.String()
	for _, want := range []string{
		"cargo:rustc-link-search=native=" + outDir,
		"cargo:rustc-link-lib=static=mathx",
		"cargo:rustc-link-lib=static=strs",
		"cargo:rustc-link-lib=m",
		"cargo:rerun-if-changed=",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
	if strings.Contains(stdout, "built") {
		t.Errorf("human output leaked to stdout:\n%s", stdout)
	}
	if !strings.Contains(p.stderr.String(), "2 built (0 cached") {
		t.Errorf("unexpected summary:\n%s", p.stderr.String())
	}

	data, err := os.ReadFile(filepath.Join(outDir, "libmathx.a"))
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if string(data) != "static-lib:libmathx" {
		t.Fatalf("unexpected artifact content %q", data)
	}
	if len(res.Outputs) != 2 || res.Outputs[0] == nil || res.Outputs[1] == nil {
		t.Fatalf("expected two outputs, got %#v", res.Outputs)
	}
}

func TestExecute_FormatFlagOverridesEnv(t *testing.T) {
	p := newProject(t)
	p.vars["C3FFI_LINKAGE_FORMAT"] = "cargo"

	res := p.run(t, "build", "--format", "cgo")
	if res.ExitCode != ExitSuccess {
		t.Fatalf("expected success, got %d\n%s", res.ExitCode, p.stderr.String())
	}
	if !strings.HasPrefix(p.stdout.String(), "#cgo LDFLAGS: -L") {
		t.Fatalf("expected cgo directives, got:\n%s", p.stdout.String())
	}
}

func TestExecute_CompileFailureExitCode(t *testing.T) {
	p := newProject(t)
	broken := c3ctest.WriteSource(t, p.workDir, "src/strs/bad.c3", "fn void "+c3ctest.BrokenMarker+"(")

	res := p.run(t, "build", "--no-color")
	if res.ExitCode != ExitBuildFailure {
		t.Fatalf("expected exit %d, got %d\n%s", ExitBuildFailure, res.ExitCode, p.stderr.String())
	}

	stderr := p.stderr.String()
	realBroken, _ := filepath.EvalSymlinks(broken)
	if !strings.Contains(stderr, realBroken+":1:1: error: unexpected token") {
		t.Errorf("diagnostic not rendered:\n%s", stderr)
	}
	if !strings.Contains(stderr, "1 built (0 cached") || !strings.Contains(stderr, "1 failed") {
		t.Errorf("unexpected summary:\n%s", stderr)
	}
	if !strings.Contains(p.stdout.String(), "static=mathx") || strings.Contains(p.stdout.String(), "static=strs") {
		t.Errorf("expected directives for the good library only:\n%s", p.stdout.String())
	}
	if _, err := os.Stat(filepath.Join(p.workDir, "out", "libstrs.a")); !os.IsNotExist(err) {
		t.Errorf("failed library left an artifact behind: %v", err)
	}
}

func TestExecute_MissingManifestIsConfigError(t *testing.T) {
	p := newProject(t)
	res := p.run(t, "build", "--manifest", "nope.yaml")
	if res.ExitCode != ExitConfigError {
		t.Fatalf("expected exit %d, got %d", ExitConfigError, res.ExitCode)
	}
}

func TestExecute_MissingToolchainIsConfigError(t *testing.T) {
	p := newProject(t)
	p.vars["C3C"] = filepath.Join(t.TempDir(), "missing-c3c")

	res := p.run(t, "build")
	if res.ExitCode != ExitConfigError {
		t.Fatalf("expected exit %d, got %d\n%s", ExitConfigError, res.ExitCode, p.stderr.String())
	}
	if p.stdout.Len() != 0 {
		t.Fatalf("expected no directives, got:\n%s", p.stdout.String())
	}
}

func TestExecute_BadEnvironmentIsConfigError(t *testing.T) {
	p := newProject(t)
	p.vars["C3FFI_CACHE"] = "redis"

	res := p.run(t, "build")
	if res.ExitCode != ExitConfigError {
		t.Fatalf("expected exit %d, got %d", ExitConfigError, res.ExitCode)
	}
}

func TestExecute_EnvFileSuppliesCompiler(t *testing.T) {
	p := newProject(t)
	delete(p.vars, "C3C")
	if err := os.WriteFile(filepath.Join(p.workDir, ".env"), []byte("C3C="+p.compiler+"\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	res := p.run(t, "locate")
	if res.ExitCode != ExitSuccess {
		t.Fatalf("expected success, got %d\n%s", res.ExitCode, p.stderr.String())
	}
	if got := p.stdout.String(); got != p.compiler+"\t"+c3ctest.Version+"\n" {
		t.Fatalf("unexpected locate output %q", got)
	}
}

func TestExecute_Version(t *testing.T) {
	p := newProject(t)
	res := p.run(t, "version")
	if res.ExitCode != ExitSuccess {
		t.Fatalf("expected success, got %d", res.ExitCode)
	}
	if got := p.stdout.String(); got != "c3ffi "+Version+"\n" {
		t.Fatalf("unexpected version output %q", got)
	}
}

func TestExecute_TraceIsDeterministic(t *testing.T) {
	p := newProject(t)
	tracePath := filepath.Join(p.workDir, "trace.json")

	res1 := p.run(t, "build", "--trace", "trace.json")
	if res1.ExitCode != ExitSuccess {
		t.Fatalf("run1 exit %d\n%s", res1.ExitCode, p.stderr.String())
	}
	tr1, err := os.ReadFile(tracePath)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}

	res2 := p.run(t, "build", "--trace", "trace.json")
	if res2.ExitCode != ExitSuccess {
		t.Fatalf("run2 exit %d", res2.ExitCode)
	}
	tr2, err := os.ReadFile(tracePath)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}

	if !bytes.Equal(tr1, tr2) {
		t.Fatalf("trace differs between identical runs:\n%s\n%s", tr1, tr2)
	}
	if res1.TraceHash == "" || res1.TraceHash != res2.TraceHash {
		t.Fatalf("trace hash unstable: %q vs %q", res1.TraceHash, res2.TraceHash)
	}
	if !bytes.Contains(tr1, []byte(`"toolchain":"`+c3ctest.Version+`"`)) {
		t.Fatalf("trace lacks toolchain version: %s", tr1)
	}
}

func TestExecute_DiskCacheSecondRunIsCached(t *testing.T) {
	p := newProject(t)
	p.vars["C3FFI_CACHE"] = "disk"
	p.vars["C3FFI_CACHE_DIR"] = filepath.Join(t.TempDir(), "cache")

	if res := p.run(t, "build"); res.ExitCode != ExitSuccess {
		t.Fatalf("run1 exit %d\n%s", res.ExitCode, p.stderr.String())
	}
	first := p.stdout.String()

	res := p.run(t, "build", "--no-color")
	if res.ExitCode != ExitSuccess {
		t.Fatalf("run2 exit %d\n%s", res.ExitCode, p.stderr.String())
	}
	for i, out := range res.Outputs {
		if out == nil || !out.CacheHit {
			t.Fatalf("output %d was not served from cache", i)
		}
	}
	if p.stdout.String() != first {
		t.Fatalf("directives differ between cold and warm runs:\n%s\n%s", first, p.stdout.String())
	}
	if !strings.Contains(p.stderr.String(), "2 built (2 cached") {
		t.Fatalf("unexpected summary:\n%s", p.stderr.String())
	}
}

func TestExecute_PanicMapsToInternalError(t *testing.T) {
	p := newProject(t)
	inv, err := ParseInvocation([]string{"locate"}, p.workDir)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	env := p.env()
	env.Locate = func(context.Context, string) (toolchain.Info, error) {
		panic("boom")
	}

	res, execErr := Execute(context.Background(), inv, env)
	if res.ExitCode != ExitInternalError {
		t.Fatalf("expected exit %d, got %d", ExitInternalError, res.ExitCode)
	}
	if execErr == nil || !strings.Contains(execErr.Error(), "panic") {
		t.Fatalf("expected panic error, got %v", execErr)
	}
}

func TestExecute_TraceWrittenOnFailure(t *testing.T) {
	p := newProject(t)
	c3ctest.WriteSource(t, p.workDir, "src/mathx/bad.c3", c3ctest.BrokenMarker)

	res := p.run(t, "build", "--trace", "out/trace.json")
	if res.ExitCode != ExitBuildFailure {
		t.Fatalf("expected exit %d, got %d", ExitBuildFailure, res.ExitCode)
	}
	data, err := os.ReadFile(filepath.Join(p.workDir, "out", "trace.json"))
	if err != nil {
		t.Fatalf("trace missing after failure: %v", err)
	}
	if !bytes.Contains(data, []byte(`"kind":"Failed"`)) {
		t.Fatalf("trace does not record the failure: %s", data)
	}
}
