// Package pipeline runs roast jobs: capture, persistence and analysis, with
// every checkpoint written to the session store.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/roastd/internal/metrics"
	"github.com/JakeFAU/roastd/internal/roast"
	"github.com/JakeFAU/roastd/internal/storage"
)

// Event types published after a job reaches a terminal state.
const (
	EventCompleted = "roast.completed"
	EventFailed    = "roast.failed"
)

const defaultPublishTimeout = 10 * time.Second

var tracer = otel.Tracer("github.com/JakeFAU/roastd/internal/pipeline")

// Config tunes a job run. Zero values fall back to DefaultConfig.
// Capture settings, the key prefix and the event topic are filled in from
// their own config sections.
type Config struct {
	Viewport          roast.Viewport `mapstructure:"-"`
	NavigationTimeout time.Duration  `mapstructure:"-"`
	JPEGQuality       int            `mapstructure:"-"`
	KeyPrefix         string         `mapstructure:"-"`
	EventTopic        string         `mapstructure:"-"`
	PersistTimeout    time.Duration  `mapstructure:"persist_timeout"`
	AnalysisTimeout   time.Duration  `mapstructure:"analysis_timeout"`
	PersistRetry      RetryPolicy    `mapstructure:"persist_retry"`
	AnalysisRetry     RetryPolicy    `mapstructure:"analysis_retry"`
}

// DefaultConfig mirrors the capture settings the critique prompt assumes.
func DefaultConfig() Config {
	return Config{
		Viewport:          roast.Viewport{Width: 1920, Height: 1080},
		NavigationTimeout: 30 * time.Second,
		JPEGQuality:       40,
		PersistTimeout:    30 * time.Second,
		AnalysisTimeout:   2 * time.Minute,
		PersistRetry:      NoRetry(),
		AnalysisRetry:     NoRetry(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		c.Viewport = def.Viewport
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = def.NavigationTimeout
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = def.JPEGQuality
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = def.PersistTimeout
	}
	if c.AnalysisTimeout <= 0 {
		c.AnalysisTimeout = def.AnalysisTimeout
	}
	if c.PersistRetry.MaxAttempts <= 0 {
		c.PersistRetry.MaxAttempts = 1
	}
	if c.AnalysisRetry.MaxAttempts <= 0 {
		c.AnalysisRetry.MaxAttempts = 1
	}
	return c
}

// Deps are the collaborators a job needs. Publisher is optional.
type Deps struct {
	Sessions  roast.SessionStore
	Launcher  roast.BrowserLauncher
	Blobs     roast.BlobStore
	Records   roast.RecordStore
	Analyzer  roast.Analyzer
	Hasher    roast.Hasher
	Publisher roast.Publisher
	IDs       roast.IDGenerator
	Clock     roast.Clock
}

func (d Deps) validate() error {
	switch {
	case d.Sessions == nil:
		return errors.New("session store is required")
	case d.Launcher == nil:
		return errors.New("browser launcher is required")
	case d.Blobs == nil:
		return errors.New("blob store is required")
	case d.Records == nil:
		return errors.New("record store is required")
	case d.Analyzer == nil:
		return errors.New("analyzer is required")
	case d.Hasher == nil:
		return errors.New("hasher is required")
	case d.IDs == nil:
		return errors.New("id generator is required")
	case d.Clock == nil:
		return errors.New("clock is required")
	}
	return nil
}

// Event is the payload published when a job finishes.
type Event struct {
	Type       string       `json:"type"`
	SessionID  string       `json:"sessionId"`
	URL        string       `json:"url"`
	Status     roast.Status `json:"status"`
	Stage      roast.Stage  `json:"stage,omitempty"`
	Error      string       `json:"error,omitempty"`
	StorageRef string       `json:"storageRef,omitempty"`
	Rating     int          `json:"rating,omitempty"`
	Degraded   bool         `json:"degraded,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

// EventType lets brokers tag the message without decoding it.
func (e Event) EventType() string { return e.Type }

// Orchestrator owns the lifecycle of roast jobs.
type Orchestrator struct {
	deps     Deps
	cfg      Config
	logger   *zap.Logger
	validate *validator.Validate
	wg       sync.WaitGroup
}

// New wires an Orchestrator.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		deps:     deps,
		cfg:      cfg.withDefaults(),
		logger:   logger.Named("pipeline"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// Submit validates rawURL, registers a session and starts the job in the
// background. Job failures are only visible through Status.
func (o *Orchestrator) Submit(ctx context.Context, rawURL string) (string, error) {
	target, err := o.normalizeURL(rawURL)
	if err != nil {
		return "", err
	}
	id, err := o.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	o.deps.Sessions.Create(ctx, id, roast.WithURL(target))

	o.wg.Add(1)
	go o.run(context.WithoutCancel(ctx), id, target)

	o.logger.Info("roast submitted", zap.String("session_id", id), zap.String("url", target))
	return id, nil
}

func (o *Orchestrator) normalizeURL(rawURL string) (string, error) {
	target := strings.TrimSpace(rawURL)
	if err := o.validate.Var(target, "required,url"); err != nil {
		return "", fmt.Errorf("%w: url must be a valid absolute URL", roast.ErrInvalidInput)
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("%w: %v", roast.ErrInvalidInput, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: url scheme must be http or https", roast.ErrInvalidInput)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: url must include a host", roast.ErrInvalidInput)
	}
	return target, nil
}

// Status returns a snapshot of the session.
func (o *Orchestrator) Status(ctx context.Context, id string) (roast.Session, error) {
	sess, ok := o.deps.Sessions.Get(ctx, id)
	if !ok {
		return roast.Session{}, roast.ErrNotFound
	}
	return sess, nil
}

// ReportInput returns the data needed to render a report for a finished session.
func (o *Orchestrator) ReportInput(ctx context.Context, id string) (roast.ReportInput, error) {
	sess, err := o.Status(ctx, id)
	if err != nil {
		return roast.ReportInput{}, err
	}
	if sess.Status != roast.StatusComplete || sess.Analysis == nil {
		return roast.ReportInput{}, roast.ErrNotComplete
	}
	return roast.ReportInput{
		SessionID: sess.SessionID,
		URL:       sess.URL,
		Analysis:  sess.Analysis.Clone(),
		Degraded:  sess.Degraded,
	}, nil
}

// Wait blocks until every submitted job has finished or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for roast jobs: %w", ctx.Err())
	}
}

type outcome struct {
	ref      string
	critique roast.Critique
}

func (o *Orchestrator) run(ctx context.Context, id, target string) {
	defer o.wg.Done()
	metrics.IncJobsInFlight()
	defer metrics.DecJobsInFlight()

	ctx, span := tracer.Start(ctx, "roast.job", trace.WithAttributes(
		attribute.String("roast.session_id", id),
		attribute.String("url.full", target),
	))
	defer span.End()

	logger := o.logger.With(zap.String("session_id", id), zap.String("url", target))
	start := time.Now()

	res, err := o.execute(ctx, id, target, logger)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		o.deps.Sessions.Update(ctx, id, roast.Failed())
		metrics.ObserveJob(string(roast.StatusError))
		logger.Error("roast failed",
			zap.String("stage", string(roast.StageOf(err))),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		o.publish(ctx, logger, Event{
			Type:      EventFailed,
			SessionID: id,
			URL:       target,
			Status:    roast.StatusError,
			Stage:     roast.StageOf(err),
			Error:     err.Error(),
			Timestamp: o.deps.Clock.Now(),
		})
		return
	}

	metrics.ObserveJob(string(roast.StatusComplete))
	logger.Info("roast complete",
		zap.Int("rating", res.critique.Result.OverallRating),
		zap.Bool("degraded", res.critique.Degraded),
		zap.Duration("elapsed", time.Since(start)),
	)
	o.publish(ctx, logger, Event{
		Type:       EventCompleted,
		SessionID:  id,
		URL:        target,
		Status:     roast.StatusComplete,
		StorageRef: res.ref,
		Rating:     res.critique.Result.OverallRating,
		Degraded:   res.critique.Degraded,
		Timestamp:  o.deps.Clock.Now(),
	})
}

func (o *Orchestrator) execute(ctx context.Context, id, target string, logger *zap.Logger) (res outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("roast job panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	raster, err := o.capture(ctx, id, target, logger)
	if err != nil {
		return outcome{}, &roast.StageError{Stage: roast.StageCapture, Err: err}
	}

	ref, err := o.persist(ctx, id, target, raster)
	if err != nil {
		return outcome{}, &roast.StageError{Stage: roast.StagePersistence, Err: err}
	}

	critique, err := o.analyze(ctx, id, raster)
	if err != nil {
		return outcome{}, &roast.StageError{Stage: roast.StageAnalysis, Err: err}
	}

	screenshot := o.screenshotURL(ctx, ref, raster, logger)
	o.deps.Sessions.Update(ctx, id, roast.Completed(critique, screenshot))
	return outcome{ref: ref, critique: critique}, nil
}

func (o *Orchestrator) capture(ctx context.Context, id, target string, logger *zap.Logger) (_ roast.Raster, err error) {
	ctx, done := startStage(ctx, roast.StageCapture)
	defer func() { done(err) }()

	o.deps.Sessions.Update(ctx, id, roast.Checkpoint(roast.ProgressLaunching))
	browser, err := o.deps.Launcher.Launch(ctx)
	if err != nil {
		return roast.Raster{}, fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if cerr := browser.Close(); cerr != nil {
			logger.Warn("browser release failed", zap.Error(cerr))
		}
	}()

	o.deps.Sessions.Update(ctx, id, roast.Checkpoint(roast.ProgressNavigate))
	raster, err := browser.Capture(ctx, roast.CaptureRequest{
		URL:               target,
		Viewport:          o.cfg.Viewport,
		NavigationTimeout: o.cfg.NavigationTimeout,
		Quality:           o.cfg.JPEGQuality,
	})
	if err != nil {
		return roast.Raster{}, fmt.Errorf("capture page: %w", err)
	}
	if len(raster.Data) == 0 {
		return roast.Raster{}, errors.New("capture page: empty raster")
	}
	if raster.ContentType == "" {
		raster.ContentType = "image/jpeg"
	}
	o.deps.Sessions.Update(ctx, id, roast.Checkpoint(roast.ProgressCaptured))
	return raster, nil
}

func (o *Orchestrator) persist(ctx context.Context, id, target string, raster roast.Raster) (_ string, err error) {
	ctx, done := startStage(ctx, roast.StagePersistence)
	defer func() { done(err) }()

	hash, err := o.deps.Hasher.Hash(raster.Data)
	if err != nil {
		return "", fmt.Errorf("hash raster: %w", err)
	}
	key := storage.ScreenshotKey(o.cfg.KeyPrefix, id, o.deps.Clock.Now())

	var ref string
	err = o.cfg.PersistRetry.Do(ctx, func(ctx context.Context) error {
		uctx, cancel := context.WithTimeout(ctx, o.cfg.PersistTimeout)
		defer cancel()
		r, err := o.deps.Blobs.Upload(uctx, key, raster.ContentType, raster.Data)
		if err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		ref = r
		return nil
	})
	if err != nil {
		return "", err
	}

	err = o.cfg.PersistRetry.Do(ctx, func(ctx context.Context) error {
		rctx, cancel := context.WithTimeout(ctx, o.cfg.PersistTimeout)
		defer cancel()
		_, err := o.deps.Records.CreateRecord(rctx, roast.ContentRecord{
			URL:         target,
			StorageRef:  ref,
			ContentHash: hash,
			Status:      roast.RecordCompleted,
		})
		if err != nil {
			return fmt.Errorf("create content record: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}

func (o *Orchestrator) analyze(ctx context.Context, id string, raster roast.Raster) (_ roast.Critique, err error) {
	ctx, done := startStage(ctx, roast.StageAnalysis)
	defer func() { done(err) }()

	o.deps.Sessions.Update(ctx, id, roast.Checkpoint(roast.ProgressAnalyzing))
	var critique roast.Critique
	err = o.cfg.AnalysisRetry.Do(ctx, func(ctx context.Context) error {
		actx, cancel := context.WithTimeout(ctx, o.cfg.AnalysisTimeout)
		defer cancel()
		c, err := o.deps.Analyzer.Analyze(actx, raster)
		if err != nil {
			return err
		}
		critique = c
		return nil
	})
	if err != nil {
		return roast.Critique{}, err
	}
	return critique, nil
}

// screenshotURL resolves ref, falling back to an inline data URI.
func (o *Orchestrator) screenshotURL(ctx context.Context, ref string, raster roast.Raster, logger *zap.Logger) string {
	resolved, err := o.deps.Blobs.ResolveURL(ctx, ref)
	if err == nil && resolved != "" {
		return resolved
	}
	if err != nil && !errors.Is(err, roast.ErrNotResolvable) {
		logger.Warn("resolve screenshot url failed, inlining raster", zap.String("ref", ref), zap.Error(err))
	}
	return DataURI(raster)
}

func (o *Orchestrator) publish(ctx context.Context, logger *zap.Logger, ev Event) {
	if o.deps.Publisher == nil || o.cfg.EventTopic == "" {
		return
	}
	// Runs after the terminal write, outside execute's recover.
	defer func() {
		if r := recover(); r != nil {
			metrics.ObservePublishFailure()
			logger.Error("publish roast event panicked", zap.String("type", ev.Type), zap.Any("panic", r))
		}
	}()
	pctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	if _, err := o.deps.Publisher.Publish(pctx, o.cfg.EventTopic, ev); err != nil {
		metrics.ObservePublishFailure()
		logger.Warn("publish roast event failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

// DataURI inlines a raster as a base64 data URI.
func DataURI(raster roast.Raster) string {
	contentType := raster.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(raster.Data)
}

// startStage opens a span for stage; the returned func ends it and records
// the stage duration.
func startStage(ctx context.Context, stage roast.Stage) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "roast."+string(stage))
	return ctx, func(err error) {
		metrics.ObserveStage(string(stage), time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
