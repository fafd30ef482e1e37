package toolchain

import "strings"

// KnownTargets lists the c3c target identifiers of the supported release line.
var KnownTargets = []string{
	"android-aarch64",
	"android-x86_64",
	"elf-aarch64",
	"elf-riscv32",
	"elf-riscv64",
	"elf-x86",
	"elf-x64",
	"freebsd-x64",
	"freebsd-x86",
	"ios-aarch64",
	"linux-aarch64",
	"linux-riscv32",
	"linux-riscv64",
	"linux-x86",
	"linux-x64",
	"macos-aarch64",
	"macos-x64",
	"mingw-x64",
	"netbsd-x64",
	"netbsd-x86",
	"openbsd-x64",
	"openbsd-x86",
	"wasm32",
	"wasm64",
	"windows-aarch64",
	"windows-x64",
}

// IsKnownTarget reports whether target is a c3c-native target name.
func IsKnownTarget(target string) bool {
	for _, t := range KnownTargets {
		if t == target {
			return true
		}
	}
	return false
}

// MapTarget converts an LLVM/Rust style triple into the c3c target name.
//
//	x86_64-unknown-linux-gnu -> linux-x64
//	aarch64-apple-darwin     -> macos-aarch64
//	x86_64-pc-windows-gnu    -> mingw-x64
//
// c3c-native names and anything unrecognized are returned unchanged so the
// toolchain can report the problem itself.
func MapTarget(triple string) string {
	triple = strings.TrimSpace(triple)
	if triple == "" || IsKnownTarget(triple) {
		return triple
	}
	parts := strings.Split(strings.ToLower(triple), "-")
	if len(parts) < 2 {
		return triple
	}

	arch := mapArch(parts[0])
	if arch == "wasm32" || arch == "wasm64" {
		return arch
	}

	var os, abi string
	for i, p := range parts[1:] {
		switch p {
		case "linux", "windows", "freebsd", "netbsd", "openbsd", "ios":
			os = p
		case "darwin", "macos", "macosx":
			os = "macos"
		case "none", "elf":
			if os == "" {
				os = "elf"
			}
		default:
			continue
		}
		if rest := parts[i+2:]; len(rest) > 0 {
			abi = rest[0]
		}
	}
	if os == "linux" && strings.HasPrefix(abi, "android") {
		os = "android"
	}
	if os == "windows" && (abi == "gnu" || abi == "gnullvm") {
		os = "mingw"
	}
	if os == "" || arch == "" {
		return triple
	}
	if os == "android" && arch == "x64" {
		return "android-x86_64"
	}
	return os + "-" + arch
}

func mapArch(a string) string {
	switch {
	case a == "x86_64" || a == "amd64" || a == "x64":
		return "x64"
	case a == "i386" || a == "i586" || a == "i686" || a == "x86":
		return "x86"
	case a == "aarch64" || a == "arm64":
		return "aarch64"
	case strings.HasPrefix(a, "riscv64"):
		return "riscv64"
	case strings.HasPrefix(a, "riscv32"):
		return "riscv32"
	case a == "wasm32" || a == "wasm64":
		return a
	default:
		return ""
	}
}

// TargetOS returns the platform family of a c3c target, using the same
// names as runtime.GOOS where one exists ("linux", "darwin", "windows").
// MinGW targets report "mingw": GNU archive naming with Windows DLLs.
func TargetOS(target string) string {
	switch {
	case strings.HasPrefix(target, "windows-"):
		return "windows"
	case strings.HasPrefix(target, "mingw-"):
		return "mingw"
	case strings.HasPrefix(target, "macos-"), strings.HasPrefix(target, "ios-"):
		return "darwin"
	case strings.HasPrefix(target, "wasm"):
		return "wasm"
	case target == "":
		return ""
	default:
		if i := strings.IndexByte(target, '-'); i > 0 {
			return target[:i]
		}
		return target
	}
}
