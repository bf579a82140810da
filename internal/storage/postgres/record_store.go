// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/roastd/internal/roast"
)

const defaultTable = "roasts"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for content records.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Ping(context.Context) error
	Close()
}

// RecordStore writes content records into Postgres.
type RecordStore struct {
	pool  pool
	table string
	ids   roast.IDGenerator
	clock roast.Clock
}

// NewRecordStore opens a pgx pool and wraps it in a RecordStore.
func NewRecordStore(ctx context.Context, cfg Config, ids roast.IDGenerator, clock roast.Clock) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("records.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewRecordStoreWithPool(p, cfg.Table, ids, clock)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(p pool, table string, ids roast.IDGenerator, clock roast.Clock) (*RecordStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RecordStore{pool: p, table: table, ids: ids, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks that the pool can reach Postgres.
func (s *RecordStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the records table and its listing index when missing.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id           TEXT PRIMARY KEY,
	url          TEXT NOT NULL,
	storage_ref  TEXT NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_status_created_idx ON %[1]s (status, created_at DESC);`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure %s schema: %w", s.table, err)
	}
	return nil
}

// CreateRecord inserts a content record and returns its ID.
func (s *RecordStore) CreateRecord(ctx context.Context, record roast.ContentRecord) (string, error) {
	if record.ID == "" {
		id, err := s.ids.NewID()
		if err != nil {
			return "", fmt.Errorf("generate record id: %w", err)
		}
		record.ID = id
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.clock.Now().UTC()
	}
	if record.Status == "" {
		record.Status = roast.RecordCompleted
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, url, storage_ref, content_hash, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6)`, s.table)
	_, err := s.pool.Exec(ctx, query,
		record.ID,
		record.URL,
		record.StorageRef,
		record.ContentHash,
		string(record.Status),
		record.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert record: %w", err)
	}
	return record.ID, nil
}

// ListRecent returns up to limit completed records, newest first.
func (s *RecordStore) ListRecent(ctx context.Context, limit int) ([]roast.ContentRecord, error) {
	query := fmt.Sprintf(`
SELECT id, url, storage_ref, content_hash, status, created_at
FROM %s
WHERE status = $1
ORDER BY created_at DESC
LIMIT $2`, s.table)
	rows, err := s.pool.Query(ctx, query, string(roast.RecordCompleted), limit)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []roast.ContentRecord
	for rows.Next() {
		var (
			rec    roast.ContentRecord
			status string
		)
		if err := rows.Scan(&rec.ID, &rec.URL, &rec.StorageRef, &rec.ContentHash, &status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Status = roast.RecordStatus(status)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}
