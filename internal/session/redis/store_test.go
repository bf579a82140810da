package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/roastd/internal/roast"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestStore(t *testing.T, cfg Config) (*Store, *miniredis.Miniredis, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	clock := &fakeClock{now: time.UnixMilli(1700000000000).UTC()}
	return NewStore(client, cfg, clock, nil), mr, clock
}

func TestStoreCreateGetUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, mr, clock := newTestStore(t, Config{})

	store.Create(ctx, "s1", roast.WithURL("https://example.com"))
	require.True(t, mr.Exists("roast:session:s1"))
	require.Equal(t, time.Hour, mr.TTL("roast:session:s1"))

	got, ok := store.Get(ctx, "s1")
	require.True(t, ok)
	require.Equal(t, roast.StatusProcessing, got.Status)
	require.Equal(t, "https://example.com", got.URL)
	require.Equal(t, clock.Now(), got.Timestamp)

	store.Update(ctx, "s1", roast.Checkpoint(roast.ProgressNavigate))
	got, _ = store.Get(ctx, "s1")
	require.Equal(t, 30, got.Progress)
	require.Equal(t, time.Hour, mr.TTL("roast:session:s1"))
}

func TestStoreUpdateMissingAndTerminal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, mr, _ := newTestStore(t, Config{})

	store.Update(ctx, "ghost", roast.Checkpoint(10))
	require.False(t, mr.Exists("roast:session:ghost"))

	store.Create(ctx, "s1", roast.SessionPatch{})
	store.Update(ctx, "s1", roast.Completed(roast.Critique{Result: roast.AnalysisResult{OverallRating: 3}}, "img"))
	store.Update(ctx, "s1", roast.Failed())

	got, ok := store.Get(ctx, "s1")
	require.True(t, ok)
	require.Equal(t, roast.StatusComplete, got.Status)
	require.Equal(t, 100, got.Progress)
	require.Equal(t, 3, got.Analysis.OverallRating)
}

func TestStoreRemoveAndCorruptEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, mr, _ := newTestStore(t, Config{KeyPrefix: "test:"})

	store.Create(ctx, "s1", roast.SessionPatch{})
	store.Remove(ctx, "s1")
	_, ok := store.Get(ctx, "s1")
	require.False(t, ok)

	require.NoError(t, mr.Set("test:bad", "{not json"))
	_, ok = store.Get(ctx, "bad")
	require.False(t, ok)
}

func TestStoreSweepRemovesExpiredSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _, clock := newTestStore(t, Config{Retention: time.Hour})
	start := clock.Now()

	store.Create(ctx, "old", roast.SessionPatch{})
	clock.set(start.Add(45 * time.Minute))
	store.Create(ctx, "fresh", roast.SessionPatch{})
	clock.set(start.Add(61 * time.Minute))

	require.Equal(t, 1, store.Sweep(ctx))
	_, ok := store.Get(ctx, "old")
	require.False(t, ok)
	_, ok = store.Get(ctx, "fresh")
	require.True(t, ok)
}

func TestStoreGetWhenBackendDown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, mr, _ := newTestStore(t, Config{})
	store.Create(ctx, "s1", roast.SessionPatch{})
	mr.Close()

	_, ok := store.Get(ctx, "s1")
	require.False(t, ok)
	store.Update(ctx, "s1", roast.Checkpoint(10))
	require.Zero(t, store.Sweep(ctx))
}
