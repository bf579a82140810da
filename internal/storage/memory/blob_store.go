// Package memory keeps blobs and content records in-process for development
// and tests.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/JakeFAU/roastd/internal/roast"
)

const refScheme = "memory://"

type object struct {
	contentType string
	data        []byte
}

// BlobStore stores artifacts in-memory and returns pseudo URIs.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]object
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string]object)}
}

// Upload keeps a copy of data and returns a memory:// reference.
func (s *BlobStore) Upload(_ context.Context, key string, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{contentType: contentType, data: append([]byte(nil), data...)}
	return refScheme + key, nil
}

// ResolveURL always fails: in-memory objects have no fetchable URL.
func (s *BlobStore) ResolveURL(_ context.Context, ref string) (string, error) {
	return "", fmt.Errorf("%w: %s", roast.ErrNotResolvable, ref)
}

// Object returns a stored object by reference.
func (s *BlobStore) Object(ref string) ([]byte, string, bool) {
	key, ok := strings.CutPrefix(ref, refScheme)
	if !ok {
		return nil, "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), obj.data...), obj.contentType, true
}
