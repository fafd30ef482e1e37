package cli

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"c3ffi/internal/core"
)

func TestRenderer_DiagnosticsPlain(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, false)
	r.Diagnostics([]core.Diagnostic{
		{Severity: core.SeverityError, File: "src/a.c3", Line: 4, Column: 9, Message: "Expected ';'"},
		{Severity: core.SeverityWarning, File: "src/b.c3", Line: 2, Message: "unused"},
		{Severity: core.SeverityInfo, Message: "Program linked"},
	})

	want := "src/a.c3:4:9: error: Expected ';'\n" +
		"src/b.c3:2: warning: unused\n" +
		"info: Program linked\n"
	if buf.String() != want {
		t.Fatalf("unexpected rendering:\n%q\nwant:\n%q", buf.String(), want)
	}
}

func TestRenderer_BuiltAndSummary(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, false)
	outs := []*core.CompiledOutput{
		{Artifact: core.Artifact{Path: "/o/liba.a", Size: 2048}, Duration: 1500 * time.Millisecond},
		{Artifact: core.Artifact{Path: "/o/libb.so", Size: 1000}, CacheHit: true},
		nil,
	}
	r.Built(outs[0])
	r.Built(outs[1])
	r.Summary(outs)

	got := buf.String()
	for _, want := range []string{
		"built liba.a (2.0 kB, 1.5s, compiled)\n",
		"built libb.so (1.0 kB, 0s, cached)\n",
		"2 built (1 cached, 3.0 kB), 1 failed\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
}

func TestRenderer_FailuresSplitsJoinedErrors(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, false)

	fail := &core.CompileError{
		Kind: core.ErrCompilationFailed,
		Msg:  "strs (exit status 1)",
		Diagnostics: []core.Diagnostic{
			{Severity: core.SeverityError, File: "x.c3", Line: 1, Column: 1, Message: "boom"},
		},
	}
	missing := &core.CompileError{Kind: core.ErrPathNotFound, Msg: "src/gone"}
	r.Failures(errors.Join(fmt.Errorf("strs: %w", fail), fmt.Errorf("mathx: %w", missing)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), buf.String())
	}
	if lines[0] != "x.c3:1:1: error: boom" {
		t.Errorf("unexpected diagnostic line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "failed strs: ") || !strings.HasPrefix(lines[2], "failed mathx: ") {
		t.Errorf("unexpected failure lines:\n%s", buf.String())
	}
}
