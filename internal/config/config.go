// Package config gathers orchestrator settings from the environment, an
// optional .env file and the YAML build manifest.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"c3ffi/internal/core"
	"c3ffi/internal/logger"
)

// CacheMode selects the compile cache backend.
type CacheMode string

const (
	CacheOff    CacheMode = "off"
	CacheMemory CacheMode = "memory"
	CacheDisk   CacheMode = "disk"
	CacheS3     CacheMode = "s3"
)

// ParseCacheMode accepts off (default), memory, disk or s3.
func ParseCacheMode(raw string) (CacheMode, error) {
	switch m := CacheMode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "", "none", "false", "0":
		return CacheOff, nil
	case CacheOff, CacheMemory, CacheDisk, CacheS3:
		return m, nil
	default:
		return "", fmt.Errorf("unknown cache mode %q (expected off|memory|disk|s3)", raw)
	}
}

type Config struct {
	// Compiler is an explicit c3c path or command name. Empty means discovery.
	Compiler string

	// OutDir is the default artifact directory (cargo's OUT_DIR).
	OutDir string

	// Target is the default target when a request names none.
	Target string

	Cache   CacheConfig
	Log     logger.Config
	Linkage core.LinkageFormat
}

type CacheConfig struct {
	Mode CacheMode

	// Dir roots the disk cache. Also the local front when Mode is s3.
	Dir string

	// Entries bounds the memory cache.
	Entries int

	S3 core.S3Config
}

// Lookup reads one variable. os.LookupEnv is the production implementation.
type Lookup func(key string) (string, bool)

// LoadEnv loads .env files into the process environment without overriding
// variables that are already set. Missing files are skipped.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// FileLookup layers the variables of an .env file under base: a variable
// set in base wins over the file. A missing file yields base unchanged.
func FileLookup(base Lookup, path string) (Lookup, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return base, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return func(key string) (string, bool) {
		if v, ok := base(key); ok {
			return v, true
		}
		v, ok := vars[key]
		return v, ok
	}, nil
}

// FromEnv builds a Config from the process environment.
func FromEnv() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from lookup.
func FromLookup(lookup Lookup) (Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	cfg := Config{
		Compiler: get("C3C"),
		OutDir:   get("OUT_DIR"),
		Target:   get("TARGET"),
		Log:      logger.DefaultConfig(),
	}
	cfg.Log.Level = logger.ParseLevel(get("C3FFI_LOG_LEVEL"), cfg.Log.Level)
	if f := strings.ToLower(get("C3FFI_LOG_FORMAT")); f != "" {
		if f != "text" && f != "json" {
			return Config{}, fmt.Errorf("C3FFI_LOG_FORMAT: unknown format %q (expected text|json)", f)
		}
		cfg.Log.Format = f
	}
	cfg.Log.LogFile = get("C3FFI_LOG_FILE")

	var err error
	if cfg.Linkage, err = core.ParseLinkageFormat(get("C3FFI_LINKAGE_FORMAT")); err != nil {
		return Config{}, fmt.Errorf("C3FFI_LINKAGE_FORMAT: %w", err)
	}

	if cfg.Cache.Mode, err = ParseCacheMode(get("C3FFI_CACHE")); err != nil {
		return Config{}, fmt.Errorf("C3FFI_CACHE: %w", err)
	}
	cfg.Cache.Dir = get("C3FFI_CACHE_DIR")
	if raw := get("C3FFI_CACHE_ENTRIES"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("C3FFI_CACHE_ENTRIES: expected a positive integer, got %q", raw)
		}
		cfg.Cache.Entries = n
	}
	cfg.Cache.S3 = core.S3Config{
		Endpoint:  get("C3FFI_S3_ENDPOINT"),
		Region:    firstNonEmpty(get("C3FFI_S3_REGION"), "us-east-1"),
		AccessKey: firstNonEmpty(get("C3FFI_S3_ACCESS_KEY"), get("AWS_ACCESS_KEY_ID")),
		SecretKey: firstNonEmpty(get("C3FFI_S3_SECRET_KEY"), get("AWS_SECRET_ACCESS_KEY")),
		Bucket:    firstNonEmpty(get("C3FFI_S3_BUCKET"), "c3ffi-cache"),
		Prefix:    get("C3FFI_S3_PREFIX"),
		UseSSL:    parseBool(get("C3FFI_S3_USE_SSL"), true),
	}
	return cfg, nil
}

// OpenCache builds the backend c selects. A nil cache with a nil error
// means caching is off.
func (c CacheConfig) OpenCache() (core.Cache, error) {
	switch c.Mode {
	case CacheOff, "":
		return nil, nil
	case CacheMemory:
		return core.NewMemoryCache(c.Entries), nil
	case CacheDisk:
		dir, err := c.dir()
		if err != nil {
			return nil, err
		}
		return core.NewFileCache(dir), nil
	case CacheS3:
		remote, err := core.NewS3Cache(c.S3)
		if err != nil {
			return nil, err
		}
		if c.Dir == "" {
			return core.NewTieredCache(core.NewMemoryCache(c.Entries), remote), nil
		}
		return core.NewTieredCache(core.NewFileCache(c.Dir), remote), nil
	default:
		return nil, fmt.Errorf("unknown cache mode %q", c.Mode)
	}
}

func (c CacheConfig) dir() (string, error) {
	if c.Dir != "" {
		return c.Dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("C3FFI_CACHE_DIR is unset and no user cache dir: %w", err)
	}
	return filepath.Join(base, "c3ffi"), nil
}

func parseBool(raw string, def bool) bool {
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
