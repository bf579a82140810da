package capture

import (
	"context"
	"errors"

	"github.com/JakeFAU/roastd/internal/roast"
)

// ErrNotConfigured is returned by Noop when no browser backend is available.
var ErrNotConfigured = errors.New("headless browser not configured")

// Noop implements roast.BrowserLauncher but always fails to launch.
type Noop struct{}

// NewNoop creates a new Noop launcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Launch returns ErrNotConfigured.
func (Noop) Launch(context.Context) (roast.Browser, error) {
	return nil, ErrNotConfigured
}
