package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScreenshotKey(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, time.March, 7, 23, 30, 0, 0, time.FixedZone("X", -2*3600))
	require.Equal(t, "screenshots/2025/03/08/abc.jpg", ScreenshotKey("", "abc", at))
	require.Equal(t, "roasts/screenshots/2025/03/08/abc.jpg", ScreenshotKey("/roasts/", "abc", at))
}

func TestSplitRef(t *testing.T) {
	t.Parallel()

	bucket, key, ok := SplitRef("gs://shots/screenshots/a.jpg", "gs")
	require.True(t, ok)
	require.Equal(t, "shots", bucket)
	require.Equal(t, "screenshots/a.jpg", key)

	for _, ref := range []string{"s3://shots/a.jpg", "gs://shots", "gs:///a.jpg", "gs://shots/"} {
		_, _, ok := SplitRef(ref, "gs")
		require.False(t, ok, ref)
	}
}

func TestJoinPublicURL(t *testing.T) {
	t.Parallel()

	got, err := JoinPublicURL("https://cdn.example.com/media/", "screenshots/a.jpg")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/media/screenshots/a.jpg", got)

	_, err = JoinPublicURL("cdn.example.com", "a.jpg")
	require.Error(t, err)
}
