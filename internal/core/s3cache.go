package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config addresses a bucket on S3 or any S3-compatible store (MinIO).
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	// Prefix namespaces the cache inside a shared bucket.
	Prefix string
	UseSSL bool
}

// S3Cache shares compile results between machines through an object store.
// Each entry is one object: the JSON-encoded CacheEntry, zstd-compressed.
type S3Cache struct {
	client *minio.Client
	bucket string
	region string
	prefix string

	initOnce sync.Once
	initErr  error
}

// NewS3Cache validates cfg and creates the client. No network traffic
// happens until the first Get or Put.
func NewS3Cache(cfg S3Config) (*S3Cache, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	prefix := strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Cache{client: client, bucket: bucket, region: region, prefix: prefix}, nil
}

func (c *S3Cache) ensureBucket(ctx context.Context) error {
	c.initOnce.Do(func() {
		exists, err := c.client.BucketExists(ctx, c.bucket)
		if err != nil {
			c.initErr = err
			return
		}
		if exists {
			return
		}
		c.initErr = c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: c.region})
	})
	return c.initErr
}

func (c *S3Cache) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	if err := c.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	obj, err := c.client.GetObject(ctx, c.bucket, c.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	blob, err := io.ReadAll(obj)
	if err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "NoSuchKey" || code == "NoSuchBucket" {
			return nil, nil
		}
		return nil, err
	}

	data, err := blobDecoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing cache object: %w", err)
	}
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parsing cache object: %w", err)
	}
	if entry.Key != key {
		return nil, nil
	}
	return &entry, nil
}

func (c *S3Cache) Put(ctx context.Context, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is nil")
	}
	if err := c.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	blob := blobEncoder.EncodeAll(data, nil)

	_, err = c.client.PutObject(ctx, c.bucket, c.objectKey(entry.Key), bytes.NewReader(blob), int64(len(blob)), minio.PutObjectOptions{
		ContentType: "application/zstd",
	})
	return err
}

func (c *S3Cache) objectKey(key CacheKey) string {
	k := string(key)
	if len(k) < 2 {
		return c.prefix + k + ".json.zst"
	}
	return c.prefix + k[:2] + "/" + k + ".json.zst"
}
