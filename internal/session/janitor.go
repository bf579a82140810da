// Package session holds helpers shared by the session store backends.
package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/roastd/internal/metrics"
	"github.com/JakeFAU/roastd/internal/roast"
)

// DefaultSweepInterval is how often RunJanitor sweeps when no interval is given.
const DefaultSweepInterval = 15 * time.Minute

// RunJanitor sweeps store on every tick until ctx is done.
func RunJanitor(ctx context.Context, store roast.SessionStore, interval time.Duration, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	logger = logger.Named("janitor")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("janitor stopped")
			return
		case <-ticker.C:
			removed := store.Sweep(ctx)
			metrics.ObserveSwept(removed)
			if removed > 0 {
				logger.Info("swept expired sessions", zap.Int("removed", removed))
			}
		}
	}
}
