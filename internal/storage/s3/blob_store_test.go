package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/roastd/internal/roast"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
	status  int
}

func (f *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}
	if r.Method == http.MethodPut {
		f.objects[r.URL.Path] = string(body)
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
	}
	w.Header().Set("ETag", `"etag"`)
	w.WriteHeader(http.StatusOK)
}

func newTestStore(t *testing.T, cfg Config) (*BlobStore, *fakeBucket) {
	t.Helper()
	fake := &fakeBucket{objects: map[string]string{}, types: map[string]string{}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	cfg.Bucket = "shots"
	cfg.Region = "us-east-1"
	cfg.Endpoint = server.URL
	cfg.UsePathStyle = true
	cfg.AccessKeyID = "AKIDEXAMPLE"
	cfg.SecretAccessKey = "secret"
	store, err := New(context.Background(), cfg)
	require.NoError(t, err)
	return store, fake
}

func TestNewRequiresBucket(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

func TestUploadAndPresign(t *testing.T) {
	t.Parallel()

	store, fake := newTestStore(t, Config{})
	ctx := context.Background()

	ref, err := store.Upload(ctx, "screenshots/a.jpg", "image/jpeg", []byte("jpeg-bytes"))
	require.NoError(t, err)
	require.Equal(t, "s3://shots/screenshots/a.jpg", ref)

	fake.mu.Lock()
	require.Equal(t, "jpeg-bytes", fake.objects["/shots/screenshots/a.jpg"])
	require.Equal(t, "image/jpeg", fake.types["/shots/screenshots/a.jpg"])
	fake.mu.Unlock()

	signed, err := store.ResolveURL(ctx, ref)
	require.NoError(t, err)
	require.Contains(t, signed, "/shots/screenshots/a.jpg")
	require.Contains(t, signed, "X-Amz-Signature=")

	_, err = store.ResolveURL(ctx, "s3://elsewhere/a.jpg")
	require.ErrorIs(t, err, roast.ErrNotResolvable)
}

func TestUploadFailure(t *testing.T) {
	t.Parallel()

	store, fake := newTestStore(t, Config{})
	fake.mu.Lock()
	fake.status = http.StatusForbidden
	fake.mu.Unlock()

	_, err := store.Upload(context.Background(), "screenshots/a.jpg", "image/jpeg", []byte("x"))
	require.Error(t, err)
	_, err = store.Upload(context.Background(), "", "image/jpeg", []byte("x"))
	require.Error(t, err)
}

func TestResolveURLPublicBase(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, Config{PublicBaseURL: "https://pub.r2.dev"})
	got, err := store.ResolveURL(context.Background(), "s3://shots/screenshots/a.jpg")
	require.NoError(t, err)
	require.Equal(t, "https://pub.r2.dev/screenshots/a.jpg", got)
}
