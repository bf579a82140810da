// Package main hosts the roastd service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server accepts roast submissions, answers status polls, renders PDF reports, lists
//     the gallery and brokers voice agent sessions. Request IDs, zap access logs, Prometheus metrics and an optional
//     per-client submit limiter wrap every route.
//   - Pipeline: internal/pipeline.Orchestrator runs one detached goroutine per roast. Each job launches its own
//     headless Chrome, captures a full-page JPEG, uploads it to the configured BlobStore, writes a content record
//     and asks the vision model for a critique. Progress checkpoints (10, 30, 50, 70, 100) land in the session store.
//   - Sessions: in memory by default, or Redis when several replicas must answer polls for the same job. A janitor
//     sweeps sessions older than the retention window.
//   - Persistence: rasters go to memory, local disk, GCS, MinIO or S3; content records go to memory, Postgres (pgx)
//     or any database/sql driver (MySQL, Postgres via lib/pq, SQLite).
//   - Events: a terminal event per job is published to Pub/Sub or an in-process publisher when a topic is set.
//   - Configuration & plumbing: Viper loads YAML plus ROASTD_* env vars (and a .env file); zap provides structured
//     logging; OpenTelemetry spans cover each job and export over OTLP/HTTP when an endpoint is set.
//
// Operational notes:
//   - Jobs are not cancelled when the submitting request ends. On SIGTERM the server stops accepting requests and
//     waits up to server.shutdown_timeout for in-flight roasts.
//   - Sessions live only as long as the backing store keeps them; the memory backend forgets everything on restart.
//
// Quick checklist:
//   - Set ROASTD_ANALYSIS_OPENAI_API_KEY (or analysis.backend=fallback for offline runs).
//   - Run locally: go run ./cmd/roastd serve --config config.yaml
//   - Inspect the merged configuration: go run ./cmd/roastd config
package main
