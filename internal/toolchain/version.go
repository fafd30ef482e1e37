package toolchain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// MinimumVersion is the oldest c3c release whose command-line contract the
// invocation builder targets.
var MinimumVersion = Version{Major: 0, Minor: 6, Patch: 0}

// Version is a parsed toolchain version.
type Version struct {
	Major int
	Minor int
	Patch int
	// Pre is the optional pre-release tag ("dev", "rc.1").
	Pre string
	// Raw is the matched substring of the version output.
	Raw string
}

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?(?:[-+]([0-9A-Za-z][0-9A-Za-z.\-]*))?`)

// ParseVersion extracts a version from free-form `--version` output.
//
// The pattern is tolerant: major.minor with optional patch and optional
// pre-release tag. A line mentioning the compiler wins over other version-like
// lines (c3c also prints its LLVM version).
func ParseVersion(output string) (Version, error) {
	lines := strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n")

	var fallback []string
	for _, line := range lines {
		m := versionPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "c3") || strings.Contains(lower, "compiler") {
			return versionFromMatch(m)
		}
		if fallback == nil {
			fallback = m
		}
	}
	if fallback != nil {
		return versionFromMatch(fallback)
	}
	return Version{}, fmt.Errorf("no version found in %q", strings.TrimSpace(output))
}

func versionFromMatch(m []string) (Version, error) {
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return Version{}, err
	}
	minor, err := strconv.Atoi(m[2])
	if err != nil {
		return Version{}, err
	}
	patch := 0
	if m[3] != "" {
		patch, err = strconv.Atoi(m[3])
		if err != nil {
			return Version{}, err
		}
	}
	return Version{Major: major, Minor: minor, Patch: patch, Pre: m[4], Raw: m[0]}, nil
}

// Semver renders v in golang.org/x/mod/semver form ("v0.7.6-dev").
func (v Version) Semver() string {
	s := fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
	if pre := sanitizePre(v.Pre); pre != "" {
		s += "-" + pre
	}
	return s
}

// AtLeast reports whether v satisfies min. Pre-releases sort before their release.
func (v Version) AtLeast(min Version) bool {
	return semver.Compare(v.Semver(), min.Semver()) >= 0
}

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Pre != "" {
		s += "-" + v.Pre
	}
	return s
}

func sanitizePre(pre string) string {
	pre = strings.Trim(pre, ".-")
	if pre == "" {
		return ""
	}
	parts := strings.Split(pre, ".")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ".")
}
