package core

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Replayer puts cached artifacts back on disk.
type Replayer struct{}

// NewReplayer creates a Replayer.
func NewReplayer() *Replayer {
	return &Replayer{}
}

// Restore makes the file at entry.OutputPath hold entry.Content.
//
// An existing file with identical bytes is left untouched, so its mtime does
// not change and the host build sees nothing new. Otherwise the content is
// written atomically. It reports whether a write happened.
func (r *Replayer) Restore(entry *CacheEntry) (bool, error) {
	if entry == nil {
		return false, fmt.Errorf("cache entry is nil")
	}
	if entry.OutputPath == "" {
		return false, fmt.Errorf("cache entry %s: output path is empty", shortKey(entry.Key))
	}
	if entry.Content == nil {
		return false, fmt.Errorf("cache entry %s: missing artifact content", shortKey(entry.Key))
	}

	want := sha256Hex(entry.Content)
	have, ok, err := fileSHA256HexIfExists(entry.OutputPath)
	if err != nil {
		return false, fmt.Errorf("hashing existing artifact %q: %w", entry.OutputPath, err)
	}
	if ok && have == want {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(entry.OutputPath), 0755); err != nil {
		return false, fmt.Errorf("creating output directory: %w", err)
	}
	if err := writeFileAtomic(entry.OutputPath, entry.Content, 0644); err != nil {
		return false, fmt.Errorf("restoring artifact %q: %w", entry.OutputPath, err)
	}
	return true, nil
}

func shortKey(k CacheKey) string {
	if len(k) > 12 {
		return string(k[:12])
	}
	return string(k)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func fileSHA256HexIfExists(path string) (hash string, exists bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", true, err
	}
	return hex.EncodeToString(h.Sum(nil)), true, nil
}
