package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
)

// CacheEntry is a stored successful compile.
//
// Only zero-exit results with a present artifact are ever stored, so a hit
// can always be replayed as a success.
type CacheEntry struct {
	Key        CacheKey   `json:"key"`
	OutputPath string     `json:"output_path"`
	Kind       OutputKind `json:"kind"`

	// Stdout and Stderr are kept so warnings are reported again on a hit.
	Stdout []byte `json:"stdout,omitempty"`
	Stderr []byte `json:"stderr,omitempty"`

	// Content is the artifact bytes. FileCache stores it outside the metadata.
	Content []byte `json:"content,omitempty"`
}

func (e *CacheEntry) clone() *CacheEntry {
	if e == nil {
		return nil
	}
	c := *e
	c.Stdout = append([]byte(nil), e.Stdout...)
	c.Stderr = append([]byte(nil), e.Stderr...)
	c.Content = append([]byte(nil), e.Content...)
	return &c
}

// Cache stores compile results by key.
//
// A cache is optional: a cold cache and no cache behave the same, only
// slower. Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, key CacheKey) (*CacheEntry, error)
	Put(ctx context.Context, entry *CacheEntry) error
}

// DefaultMemoryEntries bounds a MemoryCache created with size <= 0.
const DefaultMemoryEntries = 64

// MemoryCache is a bounded in-process LRU cache.
type MemoryCache struct {
	entries *lru.Cache[CacheKey, *CacheEntry]
}

// NewMemoryCache creates a MemoryCache holding at most size entries.
func NewMemoryCache(size int) *MemoryCache {
	if size <= 0 {
		size = DefaultMemoryEntries
	}
	entries, _ := lru.New[CacheKey, *CacheEntry](size)
	return &MemoryCache{entries: entries}
}

func (c *MemoryCache) Get(_ context.Context, key CacheKey) (*CacheEntry, error) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, nil
	}
	return entry.clone(), nil
}

func (c *MemoryCache) Put(_ context.Context, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is nil")
	}
	c.entries.Add(entry.Key, entry.clone())
	return nil
}

// Len returns the number of stored entries.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}

// zstd encoders and decoders are safe for concurrent EncodeAll / DecodeAll.
var (
	blobEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	blobDecoder, _ = zstd.NewReader(nil)
)

// FileCache stores entries on disk.
//
// Structure:
//
//	{CacheDir}/
//	  {key[0:2]}/
//	    {key}/
//	      metadata.json   (everything but the artifact bytes)
//	      artifact.zst    (zstd-compressed artifact)
//
// An entry directory is assembled under a temporary name and renamed into
// place, so readers never observe a partial entry.
type FileCache struct {
	CacheDir string
}

// NewFileCache creates a filesystem cache rooted at cacheDir.
func NewFileCache(cacheDir string) *FileCache {
	return &FileCache{CacheDir: cacheDir}
}

func (c *FileCache) Get(_ context.Context, key CacheKey) (*CacheEntry, error) {
	entryDir := c.entryPath(key)

	data, err := os.ReadFile(filepath.Join(entryDir, "metadata.json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache metadata: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parsing cache metadata: %w", err)
	}

	blob, err := os.ReadFile(filepath.Join(entryDir, "artifact.zst"))
	if err != nil {
		return nil, fmt.Errorf("reading cached artifact: %w", err)
	}
	content, err := blobDecoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing cached artifact: %w", err)
	}
	entry.Content = content
	return &entry, nil
}

func (c *FileCache) Put(_ context.Context, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is nil")
	}

	entryDir := c.entryPath(entry.Key)
	parentDir := filepath.Dir(entryDir)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmpDir, err := os.MkdirTemp(parentDir, "tmp-entry-")
	if err != nil {
		return fmt.Errorf("creating temp cache entry dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmpDir)
		}
	}()

	// Blob first, so metadata only exists once the artifact does.
	blob := blobEncoder.EncodeAll(entry.Content, nil)
	if err := writeFileAtomic(filepath.Join(tmpDir, "artifact.zst"), blob, 0644); err != nil {
		return fmt.Errorf("writing cached artifact: %w", err)
	}

	metadata := *entry
	metadata.Content = nil
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache metadata: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(tmpDir, "metadata.json"), data, 0644); err != nil {
		return fmt.Errorf("writing cache metadata: %w", err)
	}

	// A crash between remove and rename yields a miss, not corruption.
	_ = os.RemoveAll(entryDir)
	if err := os.Rename(tmpDir, entryDir); err != nil {
		return fmt.Errorf("committing cache entry: %w", err)
	}
	committed = true
	return nil
}

func (c *FileCache) entryPath(key CacheKey) string {
	k := string(key)
	if len(k) < 2 {
		return filepath.Join(c.CacheDir, k)
	}
	return filepath.Join(c.CacheDir, k[:2], k)
}

// TieredCache reads through a fast local Front to a shared Back.
// Back hits are copied into Front; writes go to both.
type TieredCache struct {
	Front Cache
	Back  Cache
}

// NewTieredCache layers front over back.
func NewTieredCache(front, back Cache) *TieredCache {
	return &TieredCache{Front: front, Back: back}
}

func (c *TieredCache) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	entry, frontErr := c.Front.Get(ctx, key)
	if entry != nil {
		return entry, nil
	}
	entry, err := c.Back.Get(ctx, key)
	if err != nil {
		return nil, errors.Join(frontErr, err)
	}
	if entry != nil {
		_ = c.Front.Put(ctx, entry)
	}
	return entry, nil
}

func (c *TieredCache) Put(ctx context.Context, entry *CacheEntry) error {
	return errors.Join(c.Front.Put(ctx, entry), c.Back.Put(ctx, entry))
}

// writeFileAtomic writes data to a temp file in the same directory and
// renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
