package core

import (
	"bytes"
	"regexp"
)

// OutputNormalizer rewrites captured toolchain output before it is classified.
type OutputNormalizer interface {
	Normalize(content []byte) []byte
}

// ansiEscape matches CSI sequences (colors, cursor movement) and OSC
// hyperlinks terminated by BEL or ST.
var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)`)

// ANSINormalizer strips terminal escape sequences.
type ANSINormalizer struct{}

func (ANSINormalizer) Normalize(content []byte) []byte {
	if bytes.IndexByte(content, 0x1b) < 0 {
		return content
	}
	return ansiEscape.ReplaceAll(content, nil)
}

// StreamNormalizer converts line endings to LF and then applies Inner.
type StreamNormalizer struct {
	Inner OutputNormalizer
}

// NewStreamNormalizer creates a normalizer that standardizes line endings.
func NewStreamNormalizer(inner OutputNormalizer) *StreamNormalizer {
	return &StreamNormalizer{Inner: inner}
}

func (n *StreamNormalizer) Normalize(content []byte) []byte {
	result := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	result = bytes.ReplaceAll(result, []byte("\r"), []byte("\n"))
	if n.Inner != nil {
		result = n.Inner.Normalize(result)
	}
	return result
}

// DefaultNormalizer is applied to toolchain output before diagnostics are parsed.
var DefaultNormalizer OutputNormalizer = NewStreamNormalizer(ANSINormalizer{})
