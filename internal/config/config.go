// Package config loads and validates roastd configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/roastd/internal/analysis"
	"github.com/JakeFAU/roastd/internal/api"
	"github.com/JakeFAU/roastd/internal/capture"
	"github.com/JakeFAU/roastd/internal/pipeline"
	"github.com/JakeFAU/roastd/internal/ratelimit"
	"github.com/JakeFAU/roastd/internal/roast"
	"github.com/JakeFAU/roastd/internal/storage/gcs"
	"github.com/JakeFAU/roastd/internal/storage/local"
	"github.com/JakeFAU/roastd/internal/storage/minio"
	"github.com/JakeFAU/roastd/internal/storage/postgres"
	"github.com/JakeFAU/roastd/internal/storage/s3"
	"github.com/JakeFAU/roastd/internal/storage/sqldb"
	"github.com/JakeFAU/roastd/internal/voice"
)

// EnvPrefix namespaces environment overrides, e.g. ROASTD_SERVER_PORT.
const EnvPrefix = "ROASTD"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Telemetry TelemetryConfig  `mapstructure:"telemetry"`
	Session   SessionConfig    `mapstructure:"session"`
	Capture   CaptureConfig    `mapstructure:"capture"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Records   RecordsConfig    `mapstructure:"records"`
	Analysis  AnalysisConfig   `mapstructure:"analysis"`
	Pipeline  pipeline.Config  `mapstructure:"pipeline"`
	PubSub    PubSubConfig     `mapstructure:"pubsub"`
	Voice     voice.Config     `mapstructure:"voice"`
	RateLimit ratelimit.Config `mapstructure:"ratelimit"`
	CORS      api.CORSConfig   `mapstructure:"cors"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	MediaPrefix     string        `mapstructure:"media_prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig points tracing at an OTLP/HTTP collector. Empty endpoint
// disables export.
type TelemetryConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

// SessionConfig selects the session registry.
type SessionConfig struct {
	Backend       string        `mapstructure:"backend"`
	Retention     time.Duration `mapstructure:"retention"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Redis         RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds connection details for the redis session backend.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// CaptureConfig controls the headless browser and capture geometry.
type CaptureConfig struct {
	Backend           string         `mapstructure:"backend"`
	Viewport          roast.Viewport `mapstructure:"viewport"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout"`
	JPEGQuality       int            `mapstructure:"jpeg_quality"`
	Chrome            capture.Config `mapstructure:"chrome"`
}

// StorageConfig selects where rasters are written.
type StorageConfig struct {
	Backend string       `mapstructure:"backend"`
	Prefix  string       `mapstructure:"prefix"`
	Local   local.Config `mapstructure:"local"`
	GCS     gcs.Config   `mapstructure:"gcs"`
	MinIO   minio.Config `mapstructure:"minio"`
	S3      s3.Config    `mapstructure:"s3"`
}

// RecordsConfig selects the content record store.
type RecordsConfig struct {
	Backend      string          `mapstructure:"backend"`
	EnsureSchema bool            `mapstructure:"ensure_schema"`
	Postgres     postgres.Config `mapstructure:"postgres"`
	SQL          sqldb.Config    `mapstructure:"sql"`
}

// AnalysisConfig configures the vision model client.
type AnalysisConfig struct {
	Backend string                `mapstructure:"backend"`
	OpenAI  analysis.OpenAIConfig `mapstructure:"openai"`
}

// PubSubConfig holds metadata for completion event publishing.
type PubSubConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Redacted replaces credential values in Effective output.
const Redacted = "********"

var secretKeys = []string{
	"session.redis.password",
	"storage.minio.access_key",
	"storage.minio.secret_key",
	"storage.s3.access_key_id",
	"storage.s3.secret_access_key",
	"records.postgres.dsn",
	"records.sql.dsn",
	"analysis.openai.api_key",
	"voice.api_key",
}

var (
	sessionBackends   = []string{"memory", "redis"}
	captureBackends   = []string{"chrome", "noop"}
	storageBackends   = []string{"memory", "local", "gcs", "minio", "s3"}
	recordBackends    = []string{"memory", "postgres", "sql"}
	analysisBackends  = []string{"openai", "fallback"}
	publisherBackends = []string{"none", "memory", "pubsub"}
)

// Load builds a Config from an optional .env file, an optional config file
// and the environment.
func Load(path string) (Config, error) {
	v, err := newViper(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORS.AllowedOrigins = splitList(cfg.CORS.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Effective returns the merged settings as nested maps, with credentials
// masked, for printing.
func Effective(path string) (map[string]any, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	settings := v.AllSettings()
	for _, key := range secretKeys {
		redact(settings, strings.Split(key, "."))
	}
	return settings, nil
}

func newViper(path string) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// setDefaults registers every key so environment overrides are picked up by
// Unmarshal even when no config file mentions them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.media_prefix", "/media")

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.service_name", "roastd")

	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.retention", 60*time.Minute)
	v.SetDefault("session.sweep_interval", 15*time.Minute)
	v.SetDefault("session.redis.addr", "localhost:6379")
	v.SetDefault("session.redis.password", "")
	v.SetDefault("session.redis.db", 0)
	v.SetDefault("session.redis.key_prefix", "roast:session:")

	v.SetDefault("capture.backend", "chrome")
	v.SetDefault("capture.viewport.width", 1920)
	v.SetDefault("capture.viewport.height", 1080)
	v.SetDefault("capture.navigation_timeout", 30*time.Second)
	v.SetDefault("capture.jpeg_quality", 40)
	v.SetDefault("capture.chrome.exec_path", "")
	v.SetDefault("capture.chrome.user_agent", "")
	v.SetDefault("capture.chrome.no_sandbox", true)
	v.SetDefault("capture.chrome.settle_delay", 500*time.Millisecond)

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.local.base_dir", "./data/blobs")
	v.SetDefault("storage.local.public_base_url", "")
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.gcs.public_base_url", "")
	v.SetDefault("storage.gcs.signed_url_ttl", 24*time.Hour)
	v.SetDefault("storage.minio.endpoint", "")
	v.SetDefault("storage.minio.region", "us-east-1")
	v.SetDefault("storage.minio.bucket", "")
	v.SetDefault("storage.minio.access_key", "")
	v.SetDefault("storage.minio.secret_key", "")
	v.SetDefault("storage.minio.use_ssl", true)
	v.SetDefault("storage.minio.create_bucket", false)
	v.SetDefault("storage.minio.public_base_url", "")
	v.SetDefault("storage.minio.presign_ttl", 24*time.Hour)
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "auto")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.use_path_style", false)
	v.SetDefault("storage.s3.public_base_url", "")
	v.SetDefault("storage.s3.presign_ttl", 24*time.Hour)

	v.SetDefault("records.backend", "memory")
	v.SetDefault("records.ensure_schema", true)
	v.SetDefault("records.postgres.dsn", "")
	v.SetDefault("records.postgres.table", "roasts")
	v.SetDefault("records.postgres.max_conns", 4)
	v.SetDefault("records.postgres.min_conns", 0)
	v.SetDefault("records.postgres.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("records.sql.driver", "sqlite")
	v.SetDefault("records.sql.dsn", "")
	v.SetDefault("records.sql.table", "roasts")
	v.SetDefault("records.sql.max_open_conns", 4)
	v.SetDefault("records.sql.max_idle_conns", 2)
	v.SetDefault("records.sql.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("analysis.backend", "openai")
	v.SetDefault("analysis.openai.api_key", "")
	v.SetDefault("analysis.openai.base_url", "")
	v.SetDefault("analysis.openai.model", "gpt-4o")
	v.SetDefault("analysis.openai.max_tokens", 2048)
	v.SetDefault("analysis.openai.timeout", 90*time.Second)

	v.SetDefault("pipeline.persist_timeout", 30*time.Second)
	v.SetDefault("pipeline.analysis_timeout", 2*time.Minute)
	v.SetDefault("pipeline.persist_retry.max_attempts", 1)
	v.SetDefault("pipeline.persist_retry.base_delay", 250*time.Millisecond)
	v.SetDefault("pipeline.persist_retry.max_delay", 5*time.Second)
	v.SetDefault("pipeline.analysis_retry.max_attempts", 1)
	v.SetDefault("pipeline.analysis_retry.base_delay", time.Second)
	v.SetDefault("pipeline.analysis_retry.max_delay", 10*time.Second)

	v.SetDefault("pubsub.backend", "none")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "roast-events")

	v.SetDefault("voice.api_key", "")
	v.SetDefault("voice.agent_id", "")
	v.SetDefault("voice.base_url", "")
	v.SetDefault("voice.timeout", 10*time.Second)

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.rps", 0.2)
	v.SetDefault("ratelimit.burst", 3)
	v.SetDefault("ratelimit.max_idle", 10*time.Minute)
	v.SetDefault("ratelimit.trust_forwarded_for", false)

	v.SetDefault("cors.allowed_origins", []string{})
	v.SetDefault("cors.max_age", 300)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if err := oneOf("session.backend", c.Session.Backend, sessionBackends); err != nil {
		return err
	}
	if c.Session.Retention <= 0 {
		return fmt.Errorf("session.retention must be > 0")
	}
	if c.Session.Backend == "redis" && c.Session.Redis.Addr == "" {
		return fmt.Errorf("session.redis.addr is required for the redis backend")
	}
	if err := oneOf("capture.backend", c.Capture.Backend, captureBackends); err != nil {
		return err
	}
	if c.Capture.Viewport.Width <= 0 || c.Capture.Viewport.Height <= 0 {
		return fmt.Errorf("capture.viewport must be positive")
	}
	if c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100 {
		return fmt.Errorf("capture.jpeg_quality must be within 1..100")
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateRecords(); err != nil {
		return err
	}
	if err := oneOf("analysis.backend", c.Analysis.Backend, analysisBackends); err != nil {
		return err
	}
	if c.Analysis.Backend == "openai" && c.Analysis.OpenAI.APIKey == "" {
		return fmt.Errorf("analysis.openai.api_key is required for the openai backend")
	}
	if c.Pipeline.PersistRetry.MaxAttempts < 1 || c.Pipeline.AnalysisRetry.MaxAttempts < 1 {
		return fmt.Errorf("pipeline retry max_attempts must be >= 1")
	}
	if err := oneOf("pubsub.backend", c.PubSub.Backend, publisherBackends); err != nil {
		return err
	}
	if c.PubSub.Backend == "pubsub" && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name are required for the pubsub backend")
	}
	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		return fmt.Errorf("ratelimit.rps must be > 0 when rate limiting is enabled")
	}
	return nil
}

func (c Config) validateStorage() error {
	if err := oneOf("storage.backend", c.Storage.Backend, storageBackends); err != nil {
		return err
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local backend")
		}
	case "gcs":
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket is required for the gcs backend")
		}
	case "minio":
		if c.Storage.MinIO.Endpoint == "" || c.Storage.MinIO.Bucket == "" {
			return fmt.Errorf("storage.minio.endpoint and storage.minio.bucket are required for the minio backend")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
	}
	return nil
}

func (c Config) validateRecords() error {
	if err := oneOf("records.backend", c.Records.Backend, recordBackends); err != nil {
		return err
	}
	switch c.Records.Backend {
	case "postgres":
		if c.Records.Postgres.DSN == "" {
			return fmt.Errorf("records.postgres.dsn is required for the postgres backend")
		}
	case "sql":
		if c.Records.SQL.DSN == "" || c.Records.SQL.Driver == "" {
			return fmt.Errorf("records.sql.driver and records.sql.dsn are required for the sql backend")
		}
	}
	return nil
}

// PipelineConfig merges the capture and storage sections into the pipeline's
// own settings.
func (c Config) PipelineConfig() pipeline.Config {
	pc := c.Pipeline
	pc.Viewport = c.Capture.Viewport
	pc.NavigationTimeout = c.Capture.NavigationTimeout
	pc.JPEGQuality = c.Capture.JPEGQuality
	pc.KeyPrefix = c.Storage.Prefix
	if c.PubSub.Backend != "none" {
		pc.EventTopic = c.PubSub.TopicName
	}
	return pc
}

func oneOf(key, value string, allowed []string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), value)
}

// splitList accepts both YAML lists and a single comma separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func redact(m map[string]any, path []string) {
	if len(path) == 0 {
		return
	}
	if len(path) == 1 {
		if v, ok := m[path[0]]; ok && fmt.Sprint(v) != "" {
			m[path[0]] = Redacted
		}
		return
	}
	if child, ok := m[path[0]].(map[string]any); ok {
		redact(child, path[1:])
	}
}
