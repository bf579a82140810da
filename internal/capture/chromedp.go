// Package capture rasterizes web pages with headless Chrome.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // register the decoder used by DecodeConfig
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/roastd/internal/roast"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultSettleDelay       = 500 * time.Millisecond
	defaultQuality           = 40
)

// Config controls how Chrome is started and how pages are captured.
type Config struct {
	ExecPath    string        `mapstructure:"exec_path"`
	UserAgent   string        `mapstructure:"user_agent"`
	NoSandbox   bool          `mapstructure:"no_sandbox"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// Launcher starts one Chrome process per Launch call.
type Launcher struct {
	cfg    Config
	logger *zap.Logger
}

// NewLauncher constructs a chromedp-backed roast.BrowserLauncher.
func NewLauncher(cfg Config, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	return &Launcher{cfg: cfg, logger: logger.Named("capture")}
}

func (l *Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if l.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox, chromedp.Flag("disable-setuid-sandbox", true))
	}
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	return opts
}

// Launch starts a dedicated browser. The returned Browser owns the process
// until Close is called.
func (l *Launcher) Launch(ctx context.Context) (roast.Browser, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, l.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return &Browser{
		ctx:      browserCtx,
		cfg:      l.cfg,
		logger:   l.logger,
		shutdown: func() error { return chromedp.Cancel(browserCtx) },
		release: func() {
			browserCancel()
			allocCancel()
		},
	}, nil
}

// Browser is one running Chrome instance.
type Browser struct {
	ctx      context.Context
	cfg      Config
	logger   *zap.Logger
	shutdown func() error
	release  func()

	closeOnce sync.Once
	closeErr  error
}

// Capture opens a tab, navigates to req.URL and returns a full-page JPEG.
func (b *Browser) Capture(ctx context.Context, req roast.CaptureRequest) (roast.Raster, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.ctx)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	if err := chromedp.Run(tabCtx); err != nil {
		return roast.Raster{}, fmt.Errorf("open tab: %w", err)
	}

	meta := &documentMeta{}
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	navCtx, navCancel := context.WithTimeout(tabCtx, navigationTimeout(req))
	defer navCancel()
	err := chromedp.Run(navCtx,
		b.networkSetupAction(),
		chromedp.EmulateViewport(int64(req.Viewport.Width), int64(req.Viewport.Height)),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.cfg.SettleDelay),
	)
	if err != nil {
		return roast.Raster{}, fmt.Errorf("navigate %s: %w", req.URL, err)
	}
	if status, url := meta.snapshot(); status >= 400 {
		b.logger.Warn("page answered with error status",
			zap.String("url", url),
			zap.Int64("status", status),
		)
	}

	var buf []byte
	if err := chromedp.Run(tabCtx, chromedp.FullScreenshot(&buf, quality(req))); err != nil {
		return roast.Raster{}, fmt.Errorf("screenshot: %w", err)
	}
	width, height, err := dimensions(buf)
	if err != nil {
		return roast.Raster{}, err
	}
	return roast.Raster{
		Data:        buf,
		ContentType: "image/jpeg",
		Width:       width,
		Height:      height,
	}, nil
}

// Close shuts the browser down. Only the first call does any work.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		if b.shutdown != nil {
			if err := b.shutdown(); err != nil {
				b.closeErr = fmt.Errorf("close chrome: %w", err)
			}
		}
		if b.release != nil {
			b.release()
		}
	})
	return b.closeErr
}

func (b *Browser) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

type documentMeta struct {
	mu     sync.Mutex
	status int64
	url    string
}

func (m *documentMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = resp.Response.Status
	m.url = resp.Response.URL
}

func (m *documentMeta) snapshot() (int64, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.url
}

func navigationTimeout(req roast.CaptureRequest) time.Duration {
	if req.NavigationTimeout > 0 {
		return req.NavigationTimeout
	}
	return defaultNavigationTimeout
}

func quality(req roast.CaptureRequest) int {
	if req.Quality > 0 && req.Quality <= 100 {
		return req.Quality
	}
	return defaultQuality
}

func dimensions(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode screenshot header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
