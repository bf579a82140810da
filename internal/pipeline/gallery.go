package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/roastd/internal/roast"
)

// Gallery limits.
const (
	DefaultGalleryLimit = 24
	MaxGalleryLimit     = 100
	resolveConcurrency  = 8
)

// Gallery lists the most recent captures with fetchable screenshot URLs.
// Records whose reference cannot be resolved are left out.
func (o *Orchestrator) Gallery(ctx context.Context, limit int) ([]roast.GalleryEntry, error) {
	switch {
	case limit <= 0:
		limit = DefaultGalleryLimit
	case limit > MaxGalleryLimit:
		limit = MaxGalleryLimit
	}

	records, err := o.deps.Records.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent records: %w", err)
	}

	resolved := make([]string, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, rec := range records {
		g.Go(func() error {
			u, err := o.deps.Blobs.ResolveURL(gctx, rec.StorageRef)
			if err != nil {
				o.logger.Debug("gallery skipping record",
					zap.String("record_id", rec.ID),
					zap.String("ref", rec.StorageRef),
					zap.Error(err),
				)
				return nil
			}
			resolved[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve gallery urls: %w", err)
	}

	entries := make([]roast.GalleryEntry, 0, len(records))
	for i, rec := range records {
		if resolved[i] == "" {
			continue
		}
		entries = append(entries, roast.GalleryEntry{ContentRecord: rec, ScreenshotURL: resolved[i]})
	}
	return entries, nil
}
