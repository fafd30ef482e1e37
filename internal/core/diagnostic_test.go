package core

import (
	"reflect"
	"testing"
)

// TestParseDiagnostics_RecognizedForms covers every line shape the parser knows.
func TestParseDiagnostics_RecognizedForms(t *testing.T) {
	cases := []struct {
		name string
		line string
		want Diagnostic
	}{
		{
			name: "gnu style",
			line: "src/main.c3:12:5: error: expected ';'",
			want: Diagnostic{Severity: SeverityError, File: "src/main.c3", Line: 12, Column: 5, Message: "expected ';'"},
		},
		{
			name: "gnu style without column",
			line: "src/main.c3:7: warning: unused variable 'x'",
			want: Diagnostic{Severity: SeverityWarning, File: "src/main.c3", Line: 7, Message: "unused variable 'x'"},
		},
		{
			name: "c3c parenthesized location",
			line: "(/work/src/foo.c3:3:14) Error: 'int' cannot be converted to 'bool'.",
			want: Diagnostic{Severity: SeverityError, File: "/work/src/foo.c3", Line: 3, Column: 14, Message: "'int' cannot be converted to 'bool'."},
		},
		{
			name: "c3c warning",
			line: "(/work/src/foo.c3:9:2) Warning: Unreachable code.",
			want: Diagnostic{Severity: SeverityWarning, File: "/work/src/foo.c3", Line: 9, Column: 2, Message: "Unreachable code."},
		},
		{
			name: "note becomes info",
			line: "src/a.c3:1:1: note: declared here",
			want: Diagnostic{Severity: SeverityInfo, File: "src/a.c3", Line: 1, Column: 1, Message: "declared here"},
		},
		{
			name: "bare prefix is case insensitive",
			line: "ERROR: could not open output file",
			want: Diagnostic{Severity: SeverityError, Message: "could not open output file"},
		},
		{
			name: "windows drive letter",
			line: `C:\proj\src\a.c3:4:2: error: bad`,
			want: Diagnostic{Severity: SeverityError, File: `C:\proj\src\a.c3`, Line: 4, Column: 2, Message: "bad"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseDiagnostics(tc.line)
			if len(got) != 1 {
				t.Fatalf("expected 1 diagnostic, got %d: %+v", len(got), got)
			}
			if !reflect.DeepEqual(got[0], tc.want) {
				t.Fatalf("unexpected diagnostic\nwant=%+v\ngot =%+v", tc.want, got[0])
			}
		})
	}
}

// TestParseDiagnostics_ContinuationAndOrphans verifies the fallback rules.
func TestParseDiagnostics_ContinuationAndOrphans(t *testing.T) {
	raw := "Compiling project\n" +
		"\n" +
		"src/a.c3:2:3: error: bad token\n" +
		"    int x = ;\n" +
		"            ^\n" +
		"   \n" +
		"warning: something else\n"

	got := ParseDiagnostics(raw)
	want := []Diagnostic{
		{Severity: SeverityInfo, Message: "Compiling project"},
		{Severity: SeverityError, File: "src/a.c3", Line: 2, Column: 3, Message: "bad token\n    int x = ;\n            ^"},
		{Severity: SeverityWarning, Message: "something else"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected diagnostics\nwant=%+v\ngot =%+v", want, got)
	}
}

// TestParseDiagnostics_NormalizesCRLFAndColor verifies output is cleaned first.
func TestParseDiagnostics_NormalizesCRLFAndColor(t *testing.T) {
	raw := "\x1b[1;31mERROR\x1b[0m: colored failure\r\n" +
		"\x1b[33msrc/b.c3:4:1: warning:\x1b[0m shadowed\r\n"

	got := ParseDiagnostics(raw)
	want := []Diagnostic{
		{Severity: SeverityError, Message: "colored failure"},
		{Severity: SeverityWarning, File: "src/b.c3", Line: 4, Column: 1, Message: "shadowed"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected diagnostics\nwant=%+v\ngot =%+v", want, got)
	}
}

// TestParseDiagnostics_NeverFails verifies empty and junk input.
func TestParseDiagnostics_NeverFails(t *testing.T) {
	if got := ParseDiagnostics(""); len(got) != 0 {
		t.Errorf("expected no diagnostics for empty input, got %+v", got)
	}
	if got := ParseDiagnostics("\n\n  \n"); len(got) != 0 {
		t.Errorf("expected no diagnostics for blank input, got %+v", got)
	}
	got := ParseDiagnostics("\x00\x01 garbage : : :")
	if len(got) != 1 || got[0].Severity != SeverityInfo {
		t.Errorf("expected one info diagnostic, got %+v", got)
	}
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{Severity: SeverityError, File: "a.c3", Line: 1, Column: 2, Message: "boom"}
	if got := d.String(); got != "a.c3:1:2: error: boom" {
		t.Errorf("unexpected rendering %q", got)
	}
	if got := (Diagnostic{Severity: SeverityInfo, Message: "hi"}).String(); got != "info: hi" {
		t.Errorf("unexpected rendering %q", got)
	}
}

func TestHasErrors(t *testing.T) {
	if HasErrors([]Diagnostic{{Severity: SeverityWarning}, {Severity: SeverityInfo}}) {
		t.Error("warnings and infos are not errors")
	}
	if !HasErrors([]Diagnostic{{Severity: SeverityWarning}, {Severity: SeverityError}}) {
		t.Error("expected error to be detected")
	}
}
