// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/roastd/internal/roast"
	roaststorage "github.com/JakeFAU/roastd/internal/storage"
)

const defaultSignedURLTTL = 24 * time.Hour

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string `mapstructure:"bucket"`
	// PublicBaseURL, when set, is used instead of signed URLs (public buckets or a CDN).
	PublicBaseURL string        `mapstructure:"public_base_url"`
	SignedURLTTL  time.Duration `mapstructure:"signed_url_ttl"`
}

// BlobStore writes artifacts to a configured GCS bucket.
type BlobStore struct {
	client *storage.Client
	cfg    Config
	now    func() time.Time
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedURLTTL
	}
	return &BlobStore{client: client, cfg: cfg, now: time.Now}, nil
}

// VerifyBucket fails when the bucket is missing or not readable.
func (s *BlobStore) VerifyBucket(ctx context.Context) error {
	if _, err := s.client.Bucket(s.cfg.Bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("get bucket %q attributes: %w", s.cfg.Bucket, err)
	}
	return nil
}

// Upload writes data to the configured bucket and returns a gs:// URI.
func (s *BlobStore) Upload(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	writer := s.client.Bucket(s.cfg.Bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := writer.Write(data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.cfg.Bucket, key), nil
}

// ResolveURL returns a public or V4-signed GET URL for a gs:// reference.
func (s *BlobStore) ResolveURL(_ context.Context, ref string) (string, error) {
	bucket, key, ok := roaststorage.SplitRef(ref, "gs")
	if !ok || bucket != s.cfg.Bucket {
		return "", fmt.Errorf("%w: %s", roast.ErrNotResolvable, ref)
	}
	if s.cfg.PublicBaseURL != "" {
		return roaststorage.JoinPublicURL(s.cfg.PublicBaseURL, key)
	}
	signed, err := s.client.Bucket(bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: s.now().Add(s.cfg.SignedURLTTL),
	})
	if err != nil {
		return "", fmt.Errorf("sign url for %s: %w", ref, err)
	}
	return signed, nil
}
