package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Severity classifies a Diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic is one message reported by the toolchain.
// Line and Column are zero when the toolchain gave no location.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
	Message  string   `json:"message"`
}

func (d Diagnostic) String() string {
	var loc string
	switch {
	case d.File != "" && d.Line > 0 && d.Column > 0:
		loc = fmt.Sprintf("%s:%d:%d: ", d.File, d.Line, d.Column)
	case d.File != "" && d.Line > 0:
		loc = fmt.Sprintf("%s:%d: ", d.File, d.Line)
	case d.File != "":
		loc = d.File + ": "
	}
	return fmt.Sprintf("%s%s: %s", loc, d.Severity, d.Message)
}

// HasErrors reports whether any diagnostic has SeverityError.
func HasErrors(diags []Diagnostic) bool {
	return countErrors(diags) > 0
}

func countErrors(diags []Diagnostic) int {
	n := 0
	for _, d := range diags {
		if d.Severity == SeverityError {
			n++
		}
	}
	return n
}

// lineForm is one recognized diagnostic line shape. Each pattern names the
// groups it captures; absent groups leave the field empty.
type lineForm struct {
	re *regexp.Regexp
}

const severityWords = `(?i:error|warning|note|info)`

var lineForms = []lineForm{
	// (path/file.c3:12:5) Error: message
	{regexp.MustCompile(`^\s*\((?P<file>.+?):(?P<line>\d+):(?P<col>\d+)\)\s*(?P<sev>` + severityWords + `)\s*:\s*(?P<msg>.*)$`)},
	// path/file.c3:12:5: error: message   (column optional)
	{regexp.MustCompile(`^\s*(?P<file>[^\s:][^:]*?|[A-Za-z]:[^:]*?):(?P<line>\d+)(?::(?P<col>\d+))?:\s*(?P<sev>` + severityWords + `)\s*:\s*(?P<msg>.*)$`)},
	// error: message
	{regexp.MustCompile(`^\s*(?P<sev>` + severityWords + `)\s*:\s*(?P<msg>.*)$`)},
}

// ParseDiagnostics classifies raw toolchain output into diagnostics. It
// never fails; unrecognized text is preserved.
//
// Rules:
//   - a recognized line starts a new diagnostic ("note" becomes info)
//   - an unrecognized line continues the previous diagnostic's message
//   - an unrecognized line with nothing before it becomes an info diagnostic
//   - blank lines are skipped
func ParseDiagnostics(raw string) []Diagnostic {
	text := string(DefaultNormalizer.Normalize([]byte(raw)))

	var out []Diagnostic
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if d, ok := parseLine(line); ok {
			out = append(out, d)
			continue
		}
		if len(out) == 0 {
			out = append(out, Diagnostic{Severity: SeverityInfo, Message: strings.TrimRight(line, " \t")})
			continue
		}
		last := &out[len(out)-1]
		last.Message += "\n" + strings.TrimRight(line, " \t")
	}
	return out
}

func parseLine(line string) (Diagnostic, bool) {
	for _, form := range lineForms {
		m := form.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		var d Diagnostic
		for i, name := range form.re.SubexpNames() {
			switch name {
			case "file":
				d.File = strings.TrimSpace(m[i])
			case "line":
				d.Line, _ = strconv.Atoi(m[i])
			case "col":
				d.Column, _ = strconv.Atoi(m[i])
			case "sev":
				d.Severity = severityOf(m[i])
			case "msg":
				d.Message = strings.TrimSpace(m[i])
			}
		}
		return d, true
	}
	return Diagnostic{}, false
}

func severityOf(word string) Severity {
	switch strings.ToLower(word) {
	case "error":
		return SeverityError
	case "warning":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
