// Package c3ctest provides a scriptable stand-in for the c3c executable.
package c3ctest

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// Version is what the fake compiler reports for --version.
const Version = "0.7.6"

// BrokenMarker makes the fake compiler fail when any source contains it.
const BrokenMarker = "BROKEN"

// script understands the subset of the command line the orchestrator emits:
// it writes "<command>:<stem>" to <output-dir>/<stem><ext> and reports a
// c3c-style error for any source containing BrokenMarker.
const script = `#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "C3 Compiler Version:       ` + Version + `"
  echo "LLVM version:              17.0.6"
  exit 0
fi
cmd="$1"; shift
out=""; stem=""; status=0
while [ $# -gt 0 ]; do
  case "$1" in
    --output-dir) out="$2"; shift 2 ;;
    -o) stem="$2"; shift 2 ;;
    --target|-D|--libdir|--lib|-L|-l|-z) shift 2 ;;
    *.c3|*.c3i)
      if grep -q "` + BrokenMarker + `" "$1"; then
        echo "($1:1:1) Error: unexpected token" >&2
        status=1
      fi
      shift ;;
    *) shift ;;
  esac
done
if [ "$status" -ne 0 ]; then exit "$status"; fi
case "$cmd" in
  compile-only) ext=".o" ;;
  dynamic-lib)
    case "$(uname)" in
      Darwin) ext=".dylib" ;;
      *) ext=".so" ;;
    esac ;;
  *) ext=".a" ;;
esac
printf '%s:%s' "$cmd" "$stem" > "$out/$stem$ext"
`

// WriteFakeCompiler installs the fake compiler in dir and returns its path.
// Tests are skipped where no POSIX shell is available.
func WriteFakeCompiler(tb testing.TB, dir string) string {
	tb.Helper()
	if runtime.GOOS == "windows" {
		tb.Skip("fake compiler needs a POSIX shell")
	}
	path := filepath.Join(dir, "c3c")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		tb.Fatalf("writing fake compiler: %v", err)
	}
	return path
}

// WriteSource creates a C3 source file under dir and returns its path.
func WriteSource(tb testing.TB, dir, name, body string) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("mkdir: %v", err)
	}
	if body == "" {
		body = "module " + trimExt(filepath.Base(name)) + ";\nfn int answer() @export => 42;\n"
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		tb.Fatalf("writing source: %v", err)
	}
	return path
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
