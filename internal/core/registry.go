package core

import (
	"path/filepath"
	"sync"
)

// Registry tracks artifacts produced in one session and the output paths
// currently being written.
//
// At most one compile may target a given output path at a time. A later
// compile of the same path replaces the earlier artifact.
type Registry struct {
	mu        sync.Mutex
	claims    map[string]struct{}
	artifacts map[string]Artifact
	order     []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		claims:    make(map[string]struct{}),
		artifacts: make(map[string]Artifact),
	}
}

// Claim reserves path for one in-flight compile. The returned release must
// be called when the compile finishes, whatever its outcome.
//
// A second Claim on a path that is still held fails with ErrDuplicateOutputPath.
func (r *Registry) Claim(path string) (release func(), err error) {
	key := registryKey(path)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.claims[key]; held {
		return nil, duplicateOutput(path)
	}
	r.claims[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.claims, key)
			r.mu.Unlock()
		})
	}, nil
}

// Register records a.
func (r *Registry) Register(a Artifact) {
	key := registryKey(a.Path)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.artifacts[key]; !ok {
		r.order = append(r.order, key)
	}
	r.artifacts[key] = a
}

// Forget drops the artifact at path, if any. Used when a recompile fails and
// the file is gone.
func (r *Registry) Forget(path string) {
	key := registryKey(path)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.artifacts[key]; !ok {
		return
	}
	delete(r.artifacts, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Lookup returns the artifact registered at path.
func (r *Registry) Lookup(path string) (Artifact, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.artifacts[registryKey(path)]
	return a, ok
}

// Artifacts returns every registered artifact in first-registration order.
func (r *Registry) Artifacts() []Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Artifact, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.artifacts[k])
	}
	return out
}

func registryKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
