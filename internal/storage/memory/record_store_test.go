package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/roastd/internal/roast"
)

type fakeIDGen struct {
	mu   sync.Mutex
	next int
	err  error
}

func (f *fakeIDGen) NewID() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.next++
	return fmt.Sprintf("rec-%d", f.next), nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func TestRecordStoreListRecentNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRecordStore(&fakeIDGen{}, &fakeClock{now: time.Unix(0, 0)})

	for _, u := range []string{"https://a", "https://b", "https://c"} {
		_, err := store.CreateRecord(ctx, roast.ContentRecord{URL: u, StorageRef: "memory://" + u})
		require.NoError(t, err)
	}
	_, err := store.CreateRecord(ctx, roast.ContentRecord{URL: "https://failed", Status: roast.RecordFailed})
	require.NoError(t, err)

	got, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "https://c", got[0].URL)
	require.Equal(t, "https://b", got[1].URL)
	require.Equal(t, "rec-3", got[0].ID)
	require.Equal(t, roast.RecordCompleted, got[0].Status)

	all, err := store.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestRecordStoreIDFailure(t *testing.T) {
	t.Parallel()

	store := NewRecordStore(&fakeIDGen{err: errors.New("entropy")}, &fakeClock{})
	_, err := store.CreateRecord(context.Background(), roast.ContentRecord{URL: "https://a"})
	require.ErrorContains(t, err, "entropy")
}
