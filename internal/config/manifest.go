package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"c3ffi/internal/core"
)

// Manifest describes the libraries of one project.
//
//	compiler: /opt/c3/c3c     # optional
//	out_dir: build            # default for every library
//	target: wasm32
//	libraries:
//	  - name: mathx
//	    sources: [src/mathx]
//	    kind: static
type Manifest struct {
	Compiler  string         `yaml:"compiler,omitempty"`
	OutDir    string         `yaml:"out_dir,omitempty"`
	Target    string         `yaml:"target,omitempty"`
	Defines   []string       `yaml:"defines,omitempty"`
	Libraries []core.Request `yaml:"libraries"`

	// Dir is the directory the manifest was read from.
	Dir string `yaml:"-"`
}

// LoadManifest reads and decodes the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	m.Dir = filepath.Dir(abs)
	return m, nil
}

// ParseManifest decodes data. Unknown keys are rejected.
func ParseManifest(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest is empty")
		}
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if len(m.Libraries) == 0 {
		return nil, fmt.Errorf("manifest declares no libraries")
	}
	seen := make(map[string]bool, len(m.Libraries))
	for i, lib := range m.Libraries {
		if lib.Name == "" {
			return nil, fmt.Errorf("libraries[%d]: name is required", i)
		}
		if seen[lib.Name] {
			return nil, fmt.Errorf("libraries[%d]: duplicate name %q", i, lib.Name)
		}
		seen[lib.Name] = true
	}
	return &m, nil
}

// Requests expands the manifest into compile requests. Manifest-level
// settings fill in what a library leaves empty, then cfg fills in the rest.
func (m *Manifest) Requests(cfg Config) []core.Request {
	out := make([]core.Request, 0, len(m.Libraries))
	for _, lib := range m.Libraries {
		req := lib
		if req.BaseDir == "" {
			req.BaseDir = m.Dir
		}
		req.OutputDir = firstNonEmpty(req.OutputDir, m.OutDir, cfg.OutDir)
		req.Target = firstNonEmpty(req.Target, m.Target, cfg.Target)
		req.Compiler = firstNonEmpty(req.Compiler, m.Compiler, cfg.Compiler)
		req.Defines = append(append([]string(nil), m.Defines...), lib.Defines...)
		out = append(out, req)
	}
	return out
}
