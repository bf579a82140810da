package roast

import (
	"context"
	"time"
)

// SessionStore is the keyed registry of job state. Mutations never surface
// errors: unknown ids degrade to not-found or no-op.
type SessionStore interface {
	Create(ctx context.Context, id string, patch SessionPatch)
	Get(ctx context.Context, id string) (Session, bool)
	Update(ctx context.Context, id string, patch SessionPatch)
	Remove(ctx context.Context, id string)
	Sweep(ctx context.Context) int
}

// BrowserLauncher starts a browser instance scoped to one job.
type BrowserLauncher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser rasterizes pages. Close must be called exactly once.
type Browser interface {
	Capture(ctx context.Context, req CaptureRequest) (Raster, error)
	Close() error
}

// BlobStore writes rasters to durable storage and resolves references to
// publicly fetchable URLs.
type BlobStore interface {
	Upload(ctx context.Context, key string, contentType string, data []byte) (string, error)
	ResolveURL(ctx context.Context, ref string) (string, error)
}

// RecordStore persists content records.
type RecordStore interface {
	CreateRecord(ctx context.Context, record ContentRecord) (string, error)
	ListRecent(ctx context.Context, limit int) ([]ContentRecord, error)
}

// VisionModel sends an image plus prompt to a vision-capable model and
// returns its free-text reply.
type VisionModel interface {
	Critique(ctx context.Context, image Raster, prompt string) (string, error)
}

// Analyzer turns a raster into a structured critique.
type Analyzer interface {
	Analyze(ctx context.Context, image Raster) (Critique, error)
}

// ReportRenderer renders a finished analysis into a downloadable document.
type ReportRenderer interface {
	Render(input ReportInput) ([]byte, error)
}

// Publisher pushes job completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces session and record IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher fingerprints raster bytes for content records.
type Hasher interface {
	Hash(data []byte) (string, error)
}
