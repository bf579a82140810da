// Package server builds the roastd dependency graph and runs the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/roastd/internal/analysis"
	"github.com/JakeFAU/roastd/internal/api"
	"github.com/JakeFAU/roastd/internal/capture"
	"github.com/JakeFAU/roastd/internal/clock/system"
	"github.com/JakeFAU/roastd/internal/config"
	"github.com/JakeFAU/roastd/internal/hash/sha256"
	"github.com/JakeFAU/roastd/internal/id/uuid"
	"github.com/JakeFAU/roastd/internal/logging"
	"github.com/JakeFAU/roastd/internal/metrics"
	"github.com/JakeFAU/roastd/internal/pipeline"
	memorypublisher "github.com/JakeFAU/roastd/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/roastd/internal/publisher/pubsub"
	"github.com/JakeFAU/roastd/internal/ratelimit"
	"github.com/JakeFAU/roastd/internal/report"
	"github.com/JakeFAU/roastd/internal/roast"
	"github.com/JakeFAU/roastd/internal/session"
	memorysession "github.com/JakeFAU/roastd/internal/session/memory"
	redissession "github.com/JakeFAU/roastd/internal/session/redis"
	gcsstorage "github.com/JakeFAU/roastd/internal/storage/gcs"
	localstorage "github.com/JakeFAU/roastd/internal/storage/local"
	memorystorage "github.com/JakeFAU/roastd/internal/storage/memory"
	miniostorage "github.com/JakeFAU/roastd/internal/storage/minio"
	pgstore "github.com/JakeFAU/roastd/internal/storage/postgres"
	s3storage "github.com/JakeFAU/roastd/internal/storage/s3"
	"github.com/JakeFAU/roastd/internal/storage/sqldb"
	"github.com/JakeFAU/roastd/internal/telemetry"
	"github.com/JakeFAU/roastd/internal/voice"
)

const limiterPruneInterval = time.Minute

type closer struct {
	name string
	fn   func() error
}

// App contains the application's dependencies.
type App struct {
	cfg               config.Config
	logger            *zap.Logger
	sessions          roast.SessionStore
	orchestrator      *pipeline.Orchestrator
	apiServer         *api.Server
	limiter           *ratelimit.Limiter
	events            *memorypublisher.Publisher
	readiness         map[string]api.ReadinessCheck
	closers           []closer
	telemetryShutdown telemetry.Shutdown
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Build creates the application's dependencies. On error everything opened so
// far is closed again.
func Build(ctx context.Context, cfg config.Config, version string) (_ *App, err error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{
		cfg:       cfg,
		logger:    logger,
		readiness: make(map[string]api.ReadinessCheck),
	}
	defer func() {
		if err != nil {
			app.closeInfrastructure()
			app.closeObservability(context.WithoutCancel(ctx))
		}
	}()

	app.telemetryShutdown, err = telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry init failed: %w", err)
	}

	app.logger.Info("building application dependencies",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
	)
	ids := uuid.New()
	clock := system.New()

	app.sessions = setupSessions(ctx, app, clock)

	blobs, mediaDir, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}
	records, err := setupRecords(ctx, app, ids, clock)
	if err != nil {
		return nil, err
	}
	analyzer, err := setupAnalysis(app)
	if err != nil {
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}

	pipelineCfg := cfg.PipelineConfig()
	pipelineCfg.AnalysisRetry.Retryable = analysis.Transient
	app.orchestrator, err = pipeline.New(pipeline.Deps{
		Sessions:  app.sessions,
		Launcher:  setupCapture(app),
		Blobs:     blobs,
		Records:   records,
		Analyzer:  analyzer,
		Hasher:    sha256.New(),
		Publisher: publisher,
		IDs:       ids,
		Clock:     clock,
	}, pipelineCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}

	if cfg.RateLimit.Enabled {
		app.limiter = ratelimit.New(cfg.RateLimit)
		app.logger.Info("submit rate limiter enabled",
			zap.Float64("rps", cfg.RateLimit.RPS),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
	}

	voiceClient := voice.NewClient(cfg.Voice, nil)
	if !voiceClient.Configured() {
		app.logger.Warn("voice agent not configured, signed url requests will fail")
	}

	app.apiServer = api.NewServer(app.orchestrator, report.NewRenderer(), voiceClient, api.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		CORS:           cfg.CORS,
		SubmitLimiter:  app.limiter,
		MediaDir:       mediaDir,
		MediaPrefix:    cfg.Server.MediaPrefix,
		Readiness:      app.readiness,
	}, logger)

	return app, nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func setupSessions(ctx context.Context, app *App, clock roast.Clock) roast.SessionStore {
	cfg := app.cfg.Session
	if cfg.Backend != "redis" {
		app.logger.Info("using in-memory session store", zap.Duration("retention", cfg.Retention))
		return memorysession.NewStore(memorysession.Config{Retention: cfg.Retention}, clock)
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	app.addCloser("redis client", client.Close)
	app.readiness["redis"] = func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		// The store degrades to not-found while Redis is away; readiness reports it.
		app.logger.Warn("redis not reachable at startup", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	app.logger.Info("using redis session store",
		zap.String("addr", cfg.Redis.Addr),
		zap.String("key_prefix", cfg.Redis.KeyPrefix),
	)
	return redissession.NewStore(client, redissession.Config{
		KeyPrefix: cfg.Redis.KeyPrefix,
		Retention: cfg.Retention,
	}, clock, app.logger)
}

func setupCapture(app *App) roast.BrowserLauncher {
	if app.cfg.Capture.Backend == "noop" {
		app.logger.Warn("capture disabled, every roast will fail at the capture stage")
		return capture.NewNoop()
	}
	app.logger.Info("using headless chrome capture",
		zap.Bool("no_sandbox", app.cfg.Capture.Chrome.NoSandbox),
		zap.Int("viewport_width", app.cfg.Capture.Viewport.Width),
		zap.Int("viewport_height", app.cfg.Capture.Viewport.Height),
	)
	return capture.NewLauncher(app.cfg.Capture.Chrome, app.logger)
}

func setupStorage(ctx context.Context, app *App) (roast.BlobStore, string, error) {
	cfg := app.cfg.Storage
	switch cfg.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("gcs client init failed: %w", err)
		}
		app.addCloser("gcs client", client.Close)
		blobs, err := gcsstorage.New(client, cfg.GCS)
		if err != nil {
			return nil, "", fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.readiness["gcs"] = blobs.VerifyBucket
		app.logger.Info("using GCS storage backend", zap.String("bucket", cfg.GCS.Bucket))
		return blobs, "", nil
	case "minio":
		blobs, err := miniostorage.New(ctx, cfg.MinIO)
		if err != nil {
			return nil, "", fmt.Errorf("minio blob store init failed: %w", err)
		}
		app.logger.Info("using MinIO storage backend",
			zap.String("endpoint", cfg.MinIO.Endpoint),
			zap.String("bucket", cfg.MinIO.Bucket),
		)
		return blobs, "", nil
	case "s3":
		blobs, err := s3storage.New(ctx, cfg.S3)
		if err != nil {
			return nil, "", fmt.Errorf("s3 blob store init failed: %w", err)
		}
		app.logger.Info("using S3 storage backend", zap.String("bucket", cfg.S3.Bucket))
		return blobs, "", nil
	case "local":
		blobs, err := localstorage.New(cfg.Local)
		if err != nil {
			return nil, "", fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("using local storage backend",
			zap.String("path", blobs.BaseDir()),
			zap.String("media_prefix", app.cfg.Server.MediaPrefix),
		)
		return blobs, blobs.BaseDir(), nil
	default:
		app.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), "", nil
	}
}

func setupRecords(ctx context.Context, app *App, ids roast.IDGenerator, clock roast.Clock) (roast.RecordStore, error) {
	cfg := app.cfg.Records
	switch cfg.Backend {
	case "postgres":
		records, err := pgstore.NewRecordStore(ctx, cfg.Postgres, ids, clock)
		if err != nil {
			return nil, fmt.Errorf("postgres record store init failed: %w", err)
		}
		app.addCloser("postgres pool", func() error {
			records.Close()
			return nil
		})
		if cfg.EnsureSchema {
			if err := records.EnsureSchema(ctx); err != nil {
				return nil, err
			}
		}
		app.readiness["postgres"] = records.Ping
		app.logger.Info("using postgres record store", zap.String("table", cfg.Postgres.Table))
		return records, nil
	case "sql":
		records, err := sqldb.Open(ctx, cfg.SQL, ids, clock)
		if err != nil {
			return nil, fmt.Errorf("sql record store init failed: %w", err)
		}
		app.addCloser("sql database", records.Close)
		if cfg.EnsureSchema {
			if err := records.EnsureSchema(ctx); err != nil {
				return nil, err
			}
		}
		app.readiness[cfg.SQL.Driver] = records.Ping
		app.logger.Info("using sql record store",
			zap.String("driver", cfg.SQL.Driver),
			zap.String("table", cfg.SQL.Table),
		)
		return records, nil
	default:
		app.logger.Info("using in-memory record store")
		return memorystorage.NewRecordStore(ids, clock), nil
	}
}

func setupAnalysis(app *App) (roast.Analyzer, error) {
	if app.cfg.Analysis.Backend == "fallback" {
		app.logger.Warn("vision model disabled, every roast uses the fallback critique")
		return analysis.NewAnalyzer(analysis.Offline{}, "", app.logger), nil
	}
	model, err := analysis.NewOpenAIVision(app.cfg.Analysis.OpenAI)
	if err != nil {
		return nil, fmt.Errorf("vision model init failed: %w", err)
	}
	app.logger.Info("using openai vision model", zap.String("model", app.cfg.Analysis.OpenAI.Model))
	return analysis.NewAnalyzer(model, "", app.logger), nil
}

func setupPublisher(ctx context.Context, app *App) (roast.Publisher, error) {
	cfg := app.cfg.PubSub
	switch cfg.Backend {
	case "pubsub":
		publisher, err := gcppublisher.Dial(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		app.addCloser("pubsub publisher", publisher.Close)
		app.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", cfg.ProjectID),
			zap.String("topic", cfg.TopicName),
		)
		return publisher, nil
	case "memory":
		app.events = memorypublisher.New()
		app.addCloser("memory publisher", app.events.Close)
		app.logger.Info("using in-memory publisher", zap.String("topic", cfg.TopicName))
		return app.events, nil
	default:
		app.logger.Info("event publishing disabled")
		return nil, nil
	}
}

// Run starts the application and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the background loops and the HTTP server on ln until ctx is done,
// then drains in-flight roasts and releases every dependency.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go session.RunJanitor(ctx, a.sessions, a.cfg.Session.SweepInterval, a.logger)
	if a.limiter != nil {
		go a.pruneLimiter(ctx)
	}
	if a.events != nil {
		go a.logEvents(ctx, a.events.Subscribe(a.cfg.PubSub.TopicName, 64))
	}

	srv := &http.Server{
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if err := a.orchestrator.Wait(shutdownCtx); err != nil {
		a.logger.Warn("roasts still running at shutdown", zap.Error(err))
	}
	a.Close(shutdownCtx)

	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}

// Close releases infrastructure and flushes observability.
func (a *App) Close(ctx context.Context) {
	a.closeInfrastructure()
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn(c.name+" close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) closeObservability(ctx context.Context) {
	if a.telemetryShutdown != nil {
		if err := a.telemetryShutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func (a *App) pruneLimiter(ctx context.Context) {
	ticker := time.NewTicker(limiterPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.limiter.Prune(); n > 0 {
				a.logger.Debug("pruned idle rate limit buckets", zap.Int("removed", n))
			}
		}
	}
}

func (a *App) logEvents(ctx context.Context, events <-chan memorypublisher.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			a.logger.Info("roast event", zap.String("topic", msg.Topic), zap.ByteString("payload", msg.Data))
		}
	}
}
