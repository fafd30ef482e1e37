package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gookit/color"

	"c3ffi/internal/core"
)

// Renderer prints human-facing build output. Stdout stays reserved for
// linkage directives, so a Renderer normally writes to stderr.
type Renderer struct {
	W     io.Writer
	Color bool
}

func NewRenderer(w io.Writer, useColor bool) *Renderer {
	return &Renderer{W: w, Color: useColor}
}

func (r *Renderer) paint(theme *color.Theme, s string) string {
	if !r.Color {
		return s
	}
	return theme.Sprint(s)
}

// Diagnostics prints one line per diagnostic.
func (r *Renderer) Diagnostics(diags []core.Diagnostic) {
	for _, d := range diags {
		r.diagnostic(d)
	}
}

func (r *Renderer) diagnostic(d core.Diagnostic) {
	var sev string
	switch d.Severity {
	case core.SeverityError:
		sev = r.paint(color.Danger, "error")
	case core.SeverityWarning:
		sev = r.paint(color.Warn, "warning")
	default:
		sev = r.paint(color.Info, "info")
	}

	var loc string
	switch {
	case d.File != "" && d.Line > 0 && d.Column > 0:
		loc = fmt.Sprintf("%s:%d:%d: ", d.File, d.Line, d.Column)
	case d.File != "" && d.Line > 0:
		loc = fmt.Sprintf("%s:%d: ", d.File, d.Line)
	case d.File != "":
		loc = d.File + ": "
	}
	fmt.Fprintf(r.W, "%s%s: %s\n", loc, sev, d.Message)
}

// Built prints a one-line summary of a finished compile.
func (r *Renderer) Built(out *core.CompiledOutput) {
	how := "compiled"
	if out.CacheHit {
		how = "cached"
	}
	fmt.Fprintf(r.W, "%s %s (%s, %s, %s)\n",
		r.paint(color.Success, "built"),
		filepath.Base(out.Artifact.Path),
		humanize.Bytes(uint64(out.Artifact.Size)),
		out.Duration.Round(time.Millisecond),
		how,
	)
}

// Failures prints every compile failure joined into err, with its
// diagnostics.
func (r *Renderer) Failures(err error) {
	for _, e := range flatten(err) {
		diags := core.DiagnosticsOf(e)
		r.Diagnostics(diags)
		fmt.Fprintf(r.W, "%s %v\n", r.paint(color.Danger, "failed"), e)
	}
}

// Summary prints the totals line.
func (r *Renderer) Summary(outs []*core.CompiledOutput) {
	var built, failed, cached int
	var bytes uint64
	for _, out := range outs {
		if out == nil {
			failed++
			continue
		}
		built++
		bytes += uint64(out.Artifact.Size)
		if out.CacheHit {
			cached++
		}
	}
	line := fmt.Sprintf("%d built (%d cached, %s), %d failed", built, cached, humanize.Bytes(bytes), failed)
	if failed > 0 {
		line = r.paint(color.Danger, line)
	}
	fmt.Fprintln(r.W, line)
}

// flatten splits an errors.Join tree into its leaves. A *core.CompileError
// is a leaf even though it unwraps to several errors.
func flatten(err error) []error {
	if err == nil {
		return nil
	}
	if _, leaf := err.(*core.CompileError); !leaf {
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			var out []error
			for _, e := range joined.Unwrap() {
				out = append(out, flatten(e)...)
			}
			return out
		}
	}
	return []error{err}
}
