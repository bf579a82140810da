package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/roastd/internal/roast"
)

func TestLauncherDefaultsAndFlags(t *testing.T) {
	t.Parallel()

	l := NewLauncher(Config{}, nil)
	require.Equal(t, defaultSettleDelay, l.cfg.SettleDelay)
	base := len(l.allocatorOptions())

	sandboxed := NewLauncher(Config{NoSandbox: true, ExecPath: "/usr/bin/chromium"}, nil)
	require.Len(t, sandboxed.allocatorOptions(), base+3)
}

func TestCaptureRequestDefaults(t *testing.T) {
	t.Parallel()

	require.Equal(t, 30*time.Second, navigationTimeout(roast.CaptureRequest{}))
	require.Equal(t, time.Second, navigationTimeout(roast.CaptureRequest{NavigationTimeout: time.Second}))
	require.Equal(t, 40, quality(roast.CaptureRequest{}))
	require.Equal(t, 40, quality(roast.CaptureRequest{Quality: 101}))
	require.Equal(t, 80, quality(roast.CaptureRequest{Quality: 80}))
}

func TestDimensionsReadsJPEGHeader(t *testing.T) {
	t.Parallel()

	img := image.NewRGBA(image.Rect(0, 0, 32, 48))
	img.Set(1, 1, color.White)
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 40}))

	w, h, err := dimensions(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, 32, w)
	require.Equal(t, 48, h)

	_, _, err = dimensions([]byte("not an image"))
	require.Error(t, err)
}

func TestDocumentMetaIgnoresSubresources(t *testing.T) {
	t.Parallel()

	meta := &documentMeta{}
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404, URL: "https://example.com/logo.png"},
	})
	status, _ := meta.snapshot()
	require.Zero(t, status)

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 503, URL: "https://example.com/"},
	})
	status, url := meta.snapshot()
	require.EqualValues(t, 503, status)
	require.Equal(t, "https://example.com/", url)
}

func TestBrowserCloseRunsOnce(t *testing.T) {
	t.Parallel()

	shutdowns, releases := 0, 0
	b := &Browser{
		shutdown: func() error {
			shutdowns++
			return errors.New("already gone")
		},
		release: func() { releases++ },
	}

	err := b.Close()
	require.ErrorContains(t, err, "already gone")
	require.Equal(t, err, b.Close())
	require.Equal(t, 1, shutdowns)
	require.Equal(t, 1, releases)
}

func TestNoopLauncher(t *testing.T) {
	t.Parallel()

	_, err := NewNoop().Launch(context.Background())
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestChromeCaptureIntegration(t *testing.T) {
	if os.Getenv("ROASTD_CHROME_TESTS") == "" {
		t.Skip("set ROASTD_CHROME_TESTS=1 to run against a local Chrome")
	}

	ctx := context.Background()
	browser, err := NewLauncher(Config{NoSandbox: true}, nil).Launch(ctx)
	require.NoError(t, err)
	defer func() { require.NoError(t, browser.Close()) }()

	raster, err := browser.Capture(ctx, roast.CaptureRequest{
		URL:      "data:text/html,<html><body><h1>hello</h1></body></html>",
		Viewport: roast.Viewport{Width: 800, Height: 600},
		Quality:  40,
	})
	require.NoError(t, err)
	require.Equal(t, "image/jpeg", raster.ContentType)
	require.Equal(t, 800, raster.Width)
}
