package core

import (
	"fmt"
	"io"
	"strings"
)

// LinkageFormat selects how directives are rendered for the host build.
type LinkageFormat string

const (
	// FormatCargo emits cargo build-script instructions.
	FormatCargo LinkageFormat = "cargo"
	// FormatLDFlags emits a single line of linker flags.
	FormatLDFlags LinkageFormat = "ldflags"
	// FormatCgo emits a "#cgo LDFLAGS:" preamble line.
	FormatCgo LinkageFormat = "cgo"
)

// ParseLinkageFormat accepts cargo (default), ldflags or cgo.
func ParseLinkageFormat(raw string) (LinkageFormat, error) {
	switch f := LinkageFormat(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FormatCargo, nil
	case FormatCargo, FormatLDFlags, FormatCgo:
		return f, nil
	default:
		return "", fmt.Errorf("unknown linkage format %q (expected cargo|ldflags|cgo)", raw)
	}
}

// LinkageWriter renders CompiledOutputs as linkage directives.
type LinkageWriter struct {
	Format LinkageFormat
	W      io.Writer

	// RerunIfChanged adds cargo rerun-if-changed lines for every source.
	RerunIfChanged bool
}

// NewLinkageWriter creates a writer for format.
func NewLinkageWriter(w io.Writer, format LinkageFormat) *LinkageWriter {
	return &LinkageWriter{Format: format, W: w, RerunIfChanged: format == FormatCargo}
}

// Write emits the directives for out.
func (lw *LinkageWriter) Write(out *CompiledOutput) error {
	if out == nil {
		return nil
	}
	var lines []string
	switch lw.Format {
	case FormatLDFlags:
		if f := ldflags(out, "-L ", "-l"); f != "" {
			lines = append(lines, f)
		}
	case FormatCgo:
		if f := ldflags(out, "-L", "-l"); f != "" {
			lines = append(lines, "#cgo LDFLAGS: "+f)
		}
	default:
		lines = cargoLines(out, lw.RerunIfChanged)
	}

	for _, l := range lines {
		if _, err := fmt.Fprintln(lw.W, l); err != nil {
			return err
		}
	}
	return nil
}

func cargoLines(out *CompiledOutput, rerun bool) []string {
	var lines []string
	if rerun {
		for _, src := range out.Sources {
			lines = append(lines, "cargo:rerun-if-changed="+src)
		}
	}
	if out.Linkage == nil {
		lines = append(lines, "cargo:rustc-link-arg="+out.Artifact.Path)
		return lines
	}
	lines = append(lines,
		"cargo:rustc-link-search=native="+out.Linkage.SearchDir,
		fmt.Sprintf("cargo:rustc-link-lib=%s=%s", out.Linkage.LinkKind(), out.Linkage.LibName),
	)
	if out.Linkage.Static {
		// A static archive does not carry its own dependencies.
		for _, dir := range orderedUnique(out.Artifact.Request.LibDirs) {
			lines = append(lines, "cargo:rustc-link-search=native="+dir)
		}
		for _, lib := range orderedUnique(out.Artifact.Request.Libs) {
			lines = append(lines, "cargo:rustc-link-lib="+lib)
		}
	}
	return lines
}

func ldflags(out *CompiledOutput, searchFlag, libFlag string) string {
	if out.Linkage == nil {
		return out.Artifact.Path
	}
	parts := []string{searchFlag + out.Linkage.SearchDir, libFlag + out.Linkage.LibName}
	if out.Linkage.Static {
		for _, dir := range orderedUnique(out.Artifact.Request.LibDirs) {
			parts = append(parts, searchFlag+dir)
		}
		for _, lib := range orderedUnique(out.Artifact.Request.Libs) {
			parts = append(parts, libFlag+lib)
		}
	}
	return strings.Join(parts, " ")
}
