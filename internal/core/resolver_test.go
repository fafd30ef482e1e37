package core

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeSource(t *testing.T, dir, rel string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("module "+filepath.Base(rel)+";\n"), 0644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	canon, err := filepath.EvalSymlinks(path)
	if err != nil {
		t.Fatalf("eval symlinks: %v", err)
	}
	return canon
}

func assertPaths(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d paths, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

// TestResolve_FilesKeepGivenOrder verifies explicit files are not re-sorted.
func TestResolve_FilesKeepGivenOrder(t *testing.T) {
	dir := t.TempDir()
	z := writeSource(t, dir, "zebra.c3")
	a := writeSource(t, dir, "apple.c3")

	got, err := NewSourceResolver(dir, nil).Resolve([]string{"zebra.c3", "apple.c3"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	assertPaths(t, got, []string{z, a})
}

// TestResolve_DirectoryWalkIsLexicalAndFiltered verifies a directory input
// yields only C3 sources, recursively, in lexical order.
func TestResolve_DirectoryWalkIsLexicalAndFiltered(t *testing.T) {
	dir := t.TempDir()
	b := writeSource(t, dir, "src/b.c3")
	a := writeSource(t, dir, "src/a.c3")
	nested := writeSource(t, dir, "src/net/http.c3")
	iface := writeSource(t, dir, "src/api.c3i")
	if err := os.WriteFile(filepath.Join(dir, "src", "README.md"), []byte("docs"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := NewSourceResolver(dir, nil).Resolve([]string{"src"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	assertPaths(t, got, []string{a, iface, b, nested})
}

// TestResolve_DeduplicatesKeepingFirstSeen verifies that a file reached by
// several inputs appears once, at its first position.
func TestResolve_DeduplicatesKeepingFirstSeen(t *testing.T) {
	dir := t.TempDir()
	a := writeSource(t, dir, "src/a.c3")
	b := writeSource(t, dir, "src/b.c3")
	main := writeSource(t, dir, "main.c3")

	got, err := NewSourceResolver(dir, nil).Resolve([]string{
		"src/b.c3",
		"main.c3",
		"src",
		"./src/../src/a.c3",
		"main.c3",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	assertPaths(t, got, []string{b, main, a})
}

// TestResolve_SymlinkCollapsesToTarget verifies canonical-path identity.
func TestResolve_SymlinkCollapsesToTarget(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	target := writeSource(t, dir, "real.c3")
	if err := os.Symlink(target, filepath.Join(dir, "alias.c3")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	got, err := NewSourceResolver(dir, nil).Resolve([]string{"alias.c3", "real.c3"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	assertPaths(t, got, []string{target})
}

// TestResolve_GlobAndExclude verifies doublestar patterns and exclusions.
func TestResolve_GlobAndExclude(t *testing.T) {
	dir := t.TempDir()
	a := writeSource(t, dir, "src/a.c3")
	writeSource(t, dir, "src/a_test.c3")
	deep := writeSource(t, dir, "src/deep/x.c3")
	writeSource(t, dir, "src/gen/skip.c3")

	r := NewSourceResolver(dir, []string{"*_test.c3", "src/gen/**"})
	got, err := r.Resolve([]string{"src/**/*.c3"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	assertPaths(t, got, []string{a, deep})
}

// TestResolve_ExistingPathWithPatternCharsIsWalked verifies a real directory
// whose name looks like a pattern is walked rather than globbed.
func TestResolve_ExistingPathWithPatternCharsIsWalked(t *testing.T) {
	dir := t.TempDir()
	a := writeSource(t, dir, "src/[legacy]/a.c3")
	b := writeSource(t, dir, "src/{old}/b.c3")

	got, err := NewSourceResolver(dir, nil).Resolve([]string{"src/[legacy]", "src/{old}"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	assertPaths(t, got, []string{a, b})
}

// TestResolve_MissingPathIsPathNotFound verifies explicit inputs must exist.
func TestResolve_MissingPathIsPathNotFound(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "a.c3")

	_, err := NewSourceResolver(dir, nil).Resolve([]string{"a.c3", "missing.c3"})
	if !errors.Is(err, ErrPathNotFound) {
		t.Fatalf("expected ErrPathNotFound, got %v", err)
	}
}

// TestResolve_EmptySet verifies every way of ending up with zero files.
func TestResolve_EmptySet(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "empty"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeSource(t, dir, "only.c3")

	cases := map[string]struct {
		inputs  []string
		exclude []string
	}{
		"no inputs":         {inputs: nil},
		"empty directory":   {inputs: []string{"empty"}},
		"glob with no hits": {inputs: []string{"nothing/**/*.c3"}},
		"all excluded":      {inputs: []string{"only.c3"}, exclude: []string{"only.c3"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewSourceResolver(dir, tc.exclude).Resolve(tc.inputs)
			if !errors.Is(err, ErrEmptySourceSet) {
				t.Fatalf("expected ErrEmptySourceSet, got %v", err)
			}
		})
	}
}

// TestResolve_DeterministicAcrossRuns verifies repeated resolution is stable.
func TestResolve_DeterministicAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"e.c3", "c.c3", "a.c3", "d.c3", "b.c3"} {
		writeSource(t, dir, filepath.Join("src", name))
	}

	r := NewSourceResolver(dir, nil)
	first, err := r.Resolve([]string{"src"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := r.Resolve([]string{"src"})
		if err != nil {
			t.Fatalf("Resolve iteration %d failed: %v", i, err)
		}
		assertPaths(t, again, first)
	}
}
