package roast

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status represents the lifecycle state of a roast session.
type Status string

// Session status values.
const (
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Terminal reports whether no further mutation may happen in this status.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Progress checkpoints written by the orchestrator, in order.
const (
	ProgressQueued    = 0
	ProgressLaunching = 10
	ProgressNavigate  = 30
	ProgressCaptured  = 50
	ProgressAnalyzing = 70
	ProgressDone      = 100
)

// Severity grades a design flaw.
type Severity string

// Severity values accepted from the model.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	default:
		return false
	}
}

// BoundingBox locates a flaw in the capture's pixel space. Coordinates are
// relative to the reference viewport width used at capture time.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DesignFlaw is a single critique item.
type DesignFlaw struct {
	Issue          string      `json:"issue"`
	Severity       Severity    `json:"severity"`
	Coordinates    BoundingBox `json:"coordinates"`
	Roast          string      `json:"roast"`
	Recommendation string      `json:"recommendation"`
}

// AnalysisResult is the structured critique produced from a raster.
type AnalysisResult struct {
	OverallRating    int          `json:"overall_rating"`
	RoastSummary     string       `json:"roast_summary"`
	KarenOpeningLine string       `json:"karen_opening_line"`
	DesignFlaws      []DesignFlaw `json:"design_flaws"`
	PositiveAspects  []string     `json:"positive_aspects"`
}

// Clone returns a deep copy.
func (a AnalysisResult) Clone() AnalysisResult {
	cp := a
	if a.DesignFlaws != nil {
		cp.DesignFlaws = append([]DesignFlaw(nil), a.DesignFlaws...)
	}
	if a.PositiveAspects != nil {
		cp.PositiveAspects = append([]string(nil), a.PositiveAspects...)
	}
	return cp
}

// Critique is what the analysis stage hands back to the orchestrator.
// Degraded is set when Result is the built-in fallback rather than a parsed
// model reply.
type Critique struct {
	Result   AnalysisResult
	Degraded bool
}

// Session is the tracked state of one roast job.
type Session struct {
	SessionID  string          `json:"sessionId"`
	Status     Status          `json:"status"`
	Progress   int             `json:"progress"`
	URL        string          `json:"url"`
	Screenshot string          `json:"screenshot,omitempty"`
	Analysis   *AnalysisResult `json:"analysis,omitempty"`
	Degraded   bool            `json:"degraded,omitempty"`
	Timestamp  time.Time       `json:"-"`
}

// Clone returns a deep copy so callers never share the analysis slices.
func (s Session) Clone() Session {
	cp := s
	if s.Analysis != nil {
		a := s.Analysis.Clone()
		cp.Analysis = &a
	}
	return cp
}

// MarshalJSON renders the timestamp as epoch milliseconds.
func (s Session) MarshalJSON() ([]byte, error) {
	type alias Session
	data, err := json.Marshal(struct {
		alias
		Timestamp int64 `json:"timestamp"`
	}{
		alias:     alias(s),
		Timestamp: s.Timestamp.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	return data, nil
}

// UnmarshalJSON reverses MarshalJSON.
func (s *Session) UnmarshalJSON(data []byte) error {
	type alias Session
	aux := struct {
		*alias
		Timestamp int64 `json:"timestamp"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("unmarshal session: %w", err)
	}
	s.Timestamp = time.UnixMilli(aux.Timestamp).UTC()
	return nil
}

// SessionPatch carries the fields a checkpoint changes. Nil fields are left
// untouched when the patch is applied.
type SessionPatch struct {
	Status     *Status
	Progress   *int
	URL        *string
	Screenshot *string
	Analysis   *AnalysisResult
	Degraded   *bool
}

// Apply merges the patch over s and returns the result.
func (p SessionPatch) Apply(s Session) Session {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.Progress != nil {
		s.Progress = *p.Progress
	}
	if p.URL != nil {
		s.URL = *p.URL
	}
	if p.Screenshot != nil {
		s.Screenshot = *p.Screenshot
	}
	if p.Analysis != nil {
		a := p.Analysis.Clone()
		s.Analysis = &a
	}
	if p.Degraded != nil {
		s.Degraded = *p.Degraded
	}
	return s
}

// NewSession builds a session from the store defaults with patch merged over them.
func NewSession(id string, now time.Time, patch SessionPatch) Session {
	base := Session{
		SessionID: id,
		Status:    StatusProcessing,
		Progress:  ProgressQueued,
		Timestamp: now,
	}
	return patch.Apply(base)
}

// WithURL is the creation patch for a freshly submitted target.
func WithURL(url string) SessionPatch {
	return SessionPatch{URL: &url}
}

// Checkpoint records stage progress.
func Checkpoint(progress int) SessionPatch {
	return SessionPatch{Progress: &progress}
}

// Completed is the terminal success patch.
func Completed(critique Critique, screenshot string) SessionPatch {
	status := StatusComplete
	progress := ProgressDone
	result := critique.Result
	degraded := critique.Degraded
	return SessionPatch{
		Status:     &status,
		Progress:   &progress,
		Screenshot: &screenshot,
		Analysis:   &result,
		Degraded:   &degraded,
	}
}

// Failed is the terminal error patch; progress is cleared to zero.
func Failed() SessionPatch {
	status := StatusError
	progress := ProgressQueued
	return SessionPatch{Status: &status, Progress: &progress}
}

// Viewport is the browser window size used for a capture.
type Viewport struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// CaptureRequest captures everything needed to rasterize a page.
type CaptureRequest struct {
	URL               string
	Viewport          Viewport
	NavigationTimeout time.Duration
	Quality           int
}

// Raster is a captured full-page image.
type Raster struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// RecordStatus is the state of a persisted content record.
type RecordStatus string

// Record status values.
const (
	RecordCompleted RecordStatus = "completed"
	RecordFailed    RecordStatus = "failed"
)

// ContentRecord links a submitted URL to its stored raster.
type ContentRecord struct {
	ID          string       `json:"id"`
	URL         string       `json:"url"`
	StorageRef  string       `json:"storageRef"`
	ContentHash string       `json:"contentHash,omitempty"`
	Status      RecordStatus `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// GalleryEntry is a content record with a fetchable screenshot URL.
type GalleryEntry struct {
	ContentRecord
	ScreenshotURL string `json:"screenshotUrl"`
}

// ReportInput is what the report renderer needs from a finished session.
type ReportInput struct {
	SessionID string
	URL       string
	Analysis  AnalysisResult
	Degraded  bool
}
