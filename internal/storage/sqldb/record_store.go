// Package sqldb stores content records through database/sql, for deployments
// that already run MySQL, SQLite or a Postgres reached via lib/pq.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // registers "mysql"
	_ "github.com/lib/pq"              // registers "postgres"
	_ "modernc.org/sqlite"             // registers "sqlite"

	"github.com/JakeFAU/roastd/internal/roast"
)

const defaultTable = "roasts"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config describes the database connection.
type Config struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type dialect struct {
	numbered bool
	idType   string
	// MySQL has no CREATE INDEX IF NOT EXISTS; its index is declared inline.
	inlineIndex bool
}

var dialects = map[string]dialect{
	"mysql":    {idType: "VARCHAR(64)", inlineIndex: true},
	"sqlite":   {idType: "TEXT"},
	"postgres": {numbered: true, idType: "TEXT"},
}

// RecordStore implements roast.RecordStore on a *sql.DB.
type RecordStore struct {
	db      *sql.DB
	dialect dialect
	table   string
	ids     roast.IDGenerator
	clock   roast.Clock
}

// Open connects using cfg and verifies the connection.
func Open(ctx context.Context, cfg Config, ids roast.IDGenerator, clock roast.Clock) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("sql dsn is required")
	}
	if _, ok := dialects[cfg.Driver]; !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	store, err := New(db, cfg.Driver, cfg.Table, ids, clock)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an open database handle.
func New(db *sql.DB, driver, table string, ids roast.IDGenerator, clock roast.Clock) (*RecordStore, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	if table == "" {
		table = defaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if ids == nil || clock == nil {
		return nil, errors.New("id generator and clock are required")
	}
	return &RecordStore{db: db, dialect: d, table: table, ids: ids, clock: clock}, nil
}

// Close releases the database handle.
func (s *RecordStore) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *RecordStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates the records table and its recency index.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	index := ""
	if s.dialect.inlineIndex {
		index = fmt.Sprintf(",\n\tINDEX %s_status_created_idx (status, created_at)", s.table)
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id %s PRIMARY KEY,
	url TEXT NOT NULL,
	storage_ref TEXT NOT NULL,
	content_hash TEXT,
	status VARCHAR(16) NOT NULL,
	created_at BIGINT NOT NULL%s
)`, s.table, s.dialect.idType, index),
	}
	if !s.dialect.inlineIndex {
		stmts = append(stmts, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s_status_created_idx ON %s (status, created_at)`, s.table, s.table))
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// CreateRecord inserts record and returns its id.
func (s *RecordStore) CreateRecord(ctx context.Context, record roast.ContentRecord) (string, error) {
	if record.ID == "" {
		id, err := s.ids.NewID()
		if err != nil {
			return "", fmt.Errorf("generate record id: %w", err)
		}
		record.ID = id
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.clock.Now()
	}
	if record.Status == "" {
		record.Status = roast.RecordCompleted
	}

	q := fmt.Sprintf(`INSERT INTO %s (id, url, storage_ref, content_hash, status, created_at) VALUES (%s)`,
		s.table, s.placeholders(1, 6))
	_, err := s.db.ExecContext(ctx, q,
		record.ID, record.URL, record.StorageRef, record.ContentHash, string(record.Status),
		record.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("insert content record: %w", err)
	}
	return record.ID, nil
}

// ListRecent returns completed records, newest first.
func (s *RecordStore) ListRecent(ctx context.Context, limit int) ([]roast.ContentRecord, error) {
	if limit <= 0 {
		limit = 24
	}
	q := fmt.Sprintf(`SELECT id, url, storage_ref, content_hash, status, created_at FROM %s
WHERE status = %s ORDER BY created_at DESC LIMIT %s`, s.table, s.placeholder(1), s.placeholder(2))
	rows, err := s.db.QueryContext(ctx, q, string(roast.RecordCompleted), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent records: %w", err)
	}
	defer rows.Close()

	var out []roast.ContentRecord
	for rows.Next() {
		var (
			rec     roast.ContentRecord
			hash    sql.NullString
			status  string
			created int64
		)
		if err := rows.Scan(&rec.ID, &rec.URL, &rec.StorageRef, &hash, &status, &created); err != nil {
			return nil, fmt.Errorf("scan content record: %w", err)
		}
		rec.ContentHash = hash.String
		rec.Status = roast.RecordStatus(status)
		rec.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content records: %w", err)
	}
	return out, nil
}

func (s *RecordStore) placeholder(n int) string {
	if s.dialect.numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (s *RecordStore) placeholders(from, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = s.placeholder(from + i)
	}
	return strings.Join(parts, ", ")
}
