package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"sort"
)

// CacheKey identifies a compile result: equal keys mean the toolchain would be
// given the same arguments, environment overrides and unchanged sources.
type CacheKey string

func (k CacheKey) String() string {
	return string(k)
}

// SourceStamp is the change-detection identity of one source file.
type SourceStamp struct {
	Path    string
	ModTime int64 // UnixNano
	Size    int64
}

// StampSources stats each source. A missing source is ErrPathNotFound.
func StampSources(sources []string) ([]SourceStamp, error) {
	stamps := make([]SourceStamp, 0, len(sources))
	for _, src := range sources {
		info, err := os.Stat(src)
		if err != nil {
			return nil, pathNotFound(src, err)
		}
		stamps = append(stamps, SourceStamp{
			Path:    src,
			ModTime: info.ModTime().UnixNano(),
			Size:    info.Size(),
		})
	}
	return stamps, nil
}

// KeyHasher computes cache keys.
//
// The key covers, in order:
//  1. Full argv (executable included)
//  2. Environment overrides, sorted by key
//  3. For each source in argument order: path, mtime, size
//
// Every field is length-prefixed so adjacent fields cannot run together.
// Source contents are not read; touching a file invalidates its entries.
type KeyHasher struct{}

// NewKeyHasher creates a KeyHasher.
func NewKeyHasher() *KeyHasher {
	return &KeyHasher{}
}

// Key hashes inv together with the current stamps of its sources.
func (h *KeyHasher) Key(inv Invocation) (CacheKey, error) {
	stamps, err := StampSources(inv.Sources)
	if err != nil {
		return "", err
	}
	return h.KeyFromStamps(inv.Argv(), inv.Env, stamps), nil
}

// KeyFromStamps is the pure part of Key.
func (h *KeyHasher) KeyFromStamps(argv []string, env map[string]string, stamps []SourceStamp) CacheKey {
	sum := sha256.New()

	writeCount(sum, len(argv))
	for _, a := range argv {
		writeField(sum, []byte(a))
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writeCount(sum, len(keys))
	for _, k := range keys {
		writeField(sum, []byte(k))
		writeField(sum, []byte(env[k]))
	}

	writeCount(sum, len(stamps))
	for _, s := range stamps {
		writeField(sum, []byte(s.Path))
		writeField(sum, []byte(fmt.Sprintf("%d/%d", s.ModTime, s.Size)))
	}

	return CacheKey(hex.EncodeToString(sum.Sum(nil)))
}

func writeCount(h hash.Hash, n int) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	h.Write(b[:])
}

func writeField(h hash.Hash, data []byte) {
	writeCount(h, len(data))
	h.Write(data)
}
