package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/JakeFAU/roastd/internal/metrics"
	"github.com/JakeFAU/roastd/internal/ratelimit"
	"github.com/JakeFAU/roastd/internal/roast"
)

// Service is the roast pipeline as seen by HTTP handlers.
type Service interface {
	Submit(ctx context.Context, rawURL string) (string, error)
	Status(ctx context.Context, id string) (roast.Session, error)
	ReportInput(ctx context.Context, id string) (roast.ReportInput, error)
	Gallery(ctx context.Context, limit int) ([]roast.GalleryEntry, error)
}

// VoiceBridge hands out voice agent conversation URLs.
type VoiceBridge interface {
	SignedURL(ctx context.Context) (string, error)
}

// ReadinessCheck reports whether a downstream dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// CORSConfig lists what browsers may call the API from.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxAge         int      `mapstructure:"max_age"`
}

// Options configures optional server behaviour.
type Options struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	CORS           CORSConfig
	// SubmitLimiter throttles POST /roast when set.
	SubmitLimiter *ratelimit.Limiter
	// MediaDir is served under MediaPrefix for the local blob backend.
	MediaDir    string
	MediaPrefix string
	Readiness   map[string]ReadinessCheck
}

// Server wires HTTP handlers to the roast service.
type Server struct {
	router   chi.Router
	svc      Service
	renderer roast.ReportRenderer
	voice    VoiceBridge
	opts     Options
	logger   *zap.Logger
	validate *validator.Validate
}

// NewServer constructs a Server with middleware and routes. voice may be nil.
func NewServer(svc Service, renderer roast.ReportRenderer, voice VoiceBridge, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	s := &Server{
		svc:      svc,
		renderer: renderer,
		voice:    voice,
		opts:     opts,
		logger:   logger.Named("api"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	if len(opts.CORS.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORS.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"Content-Disposition", "X-Request-ID"},
			MaxAge:         opts.CORS.MaxAge,
		}))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(opts.RequestTimeout))
		r.Use(bodyLimitMiddleware(opts.MaxBodyBytes))

		submit := r.With()
		if opts.SubmitLimiter != nil {
			submit = r.With(opts.SubmitLimiter.Middleware(func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusTooManyRequests, "Too many roasts, slow down")
			}))
		}
		submit.Post("/roast", s.submitRoast)
		r.Route("/roast/{sessionId}", func(r chi.Router) {
			r.Get("/status", s.getStatus)
			r.Post("/report", s.getReport)
		})
		r.Get("/roasts/gallery", s.getGallery)
		r.Route("/voice", func(r chi.Router) {
			r.Get("/signed-url", s.getSignedURL)
			r.Post("/context", s.postContext)
		})
	})

	if opts.MediaDir != "" {
		prefix := "/" + strings.Trim(opts.MediaPrefix, "/")
		if prefix == "/" {
			prefix = "/media"
		}
		r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(opts.MediaDir))))
	}

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	failures := map[string]string{}
	for name, check := range s.opts.Readiness {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		s.logger.Warn("readiness check failed", zap.Any("failures", failures))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, roast.ErrInvalidInput), errors.Is(err, roast.ErrNotComplete):
		return http.StatusBadRequest
	case errors.Is(err, roast.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
