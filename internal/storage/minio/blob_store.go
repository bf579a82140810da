// Package minio provides a BlobStore backed by MinIO or any S3-compatible
// endpoint reachable through minio-go.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/JakeFAU/roastd/internal/roast"
	"github.com/JakeFAU/roastd/internal/storage"
)

const (
	refScheme         = "minio"
	defaultPresignTTL = 24 * time.Hour
)

// Config captures MinIO connection settings.
type Config struct {
	Endpoint      string        `mapstructure:"endpoint"`
	Region        string        `mapstructure:"region"`
	Bucket        string        `mapstructure:"bucket"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	CreateBucket  bool          `mapstructure:"create_bucket"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
	PresignTTL    time.Duration `mapstructure:"presign_ttl"`
}

// BlobStore writes artifacts to a MinIO bucket.
type BlobStore struct {
	client *minio.Client
	cfg    Config
}

// New connects to MinIO and, when asked, makes sure the bucket exists.
func New(ctx context.Context, cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = defaultPresignTTL
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	if cfg.CreateBucket {
		exists, err := client.BucketExists(ctx, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
				return nil, fmt.Errorf("make bucket %q: %w", cfg.Bucket, err)
			}
		}
	}
	return &BlobStore{client: client, cfg: cfg}, nil
}

// Upload puts data into the bucket and returns a minio:// reference.
func (s *BlobStore) Upload(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return fmt.Sprintf("%s://%s/%s", refScheme, s.cfg.Bucket, key), nil
}

// ResolveURL returns a public or presigned GET URL for a minio:// reference.
func (s *BlobStore) ResolveURL(ctx context.Context, ref string) (string, error) {
	bucket, key, ok := storage.SplitRef(ref, refScheme)
	if !ok || bucket != s.cfg.Bucket {
		return "", fmt.Errorf("%w: %s", roast.ErrNotResolvable, ref)
	}
	if s.cfg.PublicBaseURL != "" {
		return storage.JoinPublicURL(s.cfg.PublicBaseURL, key)
	}
	u, err := s.client.PresignedGetObject(ctx, bucket, key, s.cfg.PresignTTL, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", ref, err)
	}
	return u.String(), nil
}
