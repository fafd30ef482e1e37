package core

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"
)

// SourceExtensions are the file suffixes collected when an input is a directory.
var SourceExtensions = []string{".c3", ".c3i"}

// SourceResolver expands declared source inputs into an ordered, duplicate-free
// list of source files.
//
// Each input is one of:
//   - a file, taken as-is
//   - a directory, walked recursively for SourceExtensions in lexical order
//   - a glob pattern (doublestar syntax, "src/**/*.c3"), matches sorted;
//     an existing path is never treated as a pattern, so "src/[legacy]" walks
//     that directory
//
// Inputs are processed in the order given. A file reached twice (through a
// symlink, a second pattern, or an overlapping directory) keeps its first position.
type SourceResolver struct {
	// BaseDir anchors relative inputs and exclude patterns.
	BaseDir string

	// Exclude drops any resolved file matching one of these patterns.
	Exclude []string
}

// NewSourceResolver creates a SourceResolver rooted at baseDir.
func NewSourceResolver(baseDir string, exclude []string) *SourceResolver {
	return &SourceResolver{BaseDir: baseDir, Exclude: exclude}
}

// Resolve returns canonical (absolute, symlink-free) source paths.
//
// Errors:
//   - ErrPathNotFound when an explicit file or directory input does not exist
//   - ErrEmptySourceSet when nothing remains after expansion and exclusion
func (r *SourceResolver) Resolve(inputs []string) ([]string, error) {
	base, err := r.baseDir()
	if err != nil {
		return nil, err
	}

	excludes := make([]string, 0, len(r.Exclude))
	for _, ex := range r.Exclude {
		if strings.TrimSpace(ex) == "" {
			continue
		}
		excludes = append(excludes, ex)
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(path string) error {
		canon, err := canonicalPath(path)
		if err != nil {
			return err
		}
		if _, ok := seen[canon]; ok {
			return nil
		}
		if r.excluded(base, canon, path, excludes) {
			return nil
		}
		seen[canon] = struct{}{}
		out = append(out, canon)
		return nil
	}

	for _, input := range inputs {
		if strings.TrimSpace(input) == "" {
			continue
		}
		full := input
		if !filepath.IsAbs(full) {
			full = filepath.Join(base, input)
		}

		info, statErr := os.Stat(full)
		if statErr != nil && containsGlobChar(input) {
			matches, err := expandGlob(full)
			if err != nil {
				return nil, invalidf("source pattern %q: %v", input, err)
			}
			for _, m := range matches {
				if err := add(m); err != nil {
					return nil, err
				}
			}
			continue
		}

		if statErr != nil {
			return nil, pathNotFound(input, statErr)
		}
		if !info.IsDir() {
			if err := add(full); err != nil {
				return nil, err
			}
			continue
		}

		files, err := walkSources(full)
		if err != nil {
			return nil, fmt.Errorf("walking %q: %w", input, err)
		}
		for _, f := range files {
			if err := add(f); err != nil {
				return nil, err
			}
		}
	}

	if len(out) == 0 {
		return nil, &CompileError{
			Kind: ErrEmptySourceSet,
			Msg:  fmt.Sprintf("no source files in %d input(s)", len(inputs)),
		}
	}
	return out, nil
}

func (r *SourceResolver) baseDir() (string, error) {
	if r.BaseDir != "" {
		return filepath.Abs(r.BaseDir)
	}
	return os.Getwd()
}

func (r *SourceResolver) excluded(base, canon, original string, patterns []string) bool {
	for _, p := range patterns {
		full := p
		if !filepath.IsAbs(full) {
			full = filepath.Join(base, p)
		}
		for _, candidate := range []string{canon, filepath.Clean(original)} {
			if ok, _ := doublestar.PathMatch(full, candidate); ok {
				return true
			}
		}
		// A bare name pattern ("*_test.c3") matches the file name anywhere.
		if !strings.ContainsAny(p, `/\`) {
			if ok, _ := doublestar.PathMatch(p, filepath.Base(canon)); ok {
				return true
			}
		}
	}
	return false
}

// walkSources lists source files under dir. WalkDir visits entries in
// lexical order, which fixes the order regardless of the filesystem.
func walkSources(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if isSourceFile(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func isSourceFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range SourceExtensions {
		if ext == want {
			return true
		}
	}
	return false
}

// expandGlob returns regular files matching pattern, sorted.
func expandGlob(pattern string) ([]string, error) {
	matches, err := doublestar.Glob(pattern)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)
	return files, nil
}

// canonicalPath returns the absolute, cleaned, symlink-resolved form of path.
func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", pathNotFound(path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", pathNotFound(path, err)
	}
	return filepath.Clean(resolved), nil
}

func containsGlobChar(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
