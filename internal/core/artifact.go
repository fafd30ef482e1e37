package core

// Artifact is a file produced by a successful compile and registered in the
// session.
type Artifact struct {
	// Name is the library name the request asked for.
	Name string `json:"name"`

	Kind OutputKind `json:"kind"`

	// Path is the absolute artifact path.
	Path string `json:"path"`

	// Size is the artifact size in bytes.
	Size int64 `json:"size"`

	// CacheKey identifies the compile that produced it. Empty when caching is off.
	CacheKey CacheKey `json:"cache_key,omitempty"`

	// Request is the originating request.
	Request Request `json:"-"`
}

// Linkage is what a host linker needs to consume a library artifact.
type Linkage struct {
	// SearchDir is the directory holding the library.
	SearchDir string `json:"search_dir"`

	// LibName is the name passed to the linker (no "lib" prefix, no extension).
	LibName string `json:"lib_name"`

	// Static is true for static libraries, false for shared ones.
	Static bool `json:"static"`
}

// LinkKind renders Static the way cargo spells it.
func (l Linkage) LinkKind() string {
	if l.Static {
		return "static"
	}
	return "dylib"
}
