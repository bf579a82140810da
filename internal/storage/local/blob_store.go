// Package local implements a local filesystem blob store.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/roastd/internal/roast"
	"github.com/JakeFAU/roastd/internal/storage"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory where blobs will be stored.
	BaseDir string `mapstructure:"base_dir"`
	// PublicBaseURL is where BaseDir is served over HTTP. Empty means stored
	// files are not resolvable to URLs.
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// BlobStore writes artifacts to the local filesystem.
type BlobStore struct {
	baseDir   string
	publicURL string
}

// New creates a new local filesystem-backed blob store.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	baseDir, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	info, err := os.Stat(baseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(baseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &BlobStore{baseDir: baseDir, publicURL: cfg.PublicBaseURL}, nil
}

// BaseDir reports the absolute root directory.
func (s *BlobStore) BaseDir() string {
	return s.baseDir
}

// Upload writes data under BaseDir and returns a file:// URI.
func (s *BlobStore) Upload(_ context.Context, key string, _ string, data []byte) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	fullPath, err := s.pathFor(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return "file://" + fullPath, nil
}

// ResolveURL maps a file:// reference under BaseDir onto PublicBaseURL.
func (s *BlobStore) ResolveURL(_ context.Context, ref string) (string, error) {
	fullPath, ok := strings.CutPrefix(ref, "file://")
	if !ok || s.publicURL == "" {
		return "", fmt.Errorf("%w: %s", roast.ErrNotResolvable, ref)
	}
	rel, err := filepath.Rel(s.baseDir, fullPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %s is outside %s", roast.ErrNotResolvable, ref, s.baseDir)
	}
	return storage.JoinPublicURL(s.publicURL, filepath.ToSlash(rel))
}

// pathFor joins key onto BaseDir, rejecting traversal out of it.
func (s *BlobStore) pathFor(key string) (string, error) {
	fullPath := filepath.Clean(filepath.Join(s.baseDir, key))
	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}
