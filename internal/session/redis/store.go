// Package redis stores roast sessions in Redis so several API replicas can
// answer status polls for the same job.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/roastd/internal/roast"
)

const (
	defaultKeyPrefix = "roast:session:"
	defaultRetention = 60 * time.Minute
	scanBatch        = 100
)

// Config controls key layout and expiry.
type Config struct {
	KeyPrefix string        `mapstructure:"key_prefix"`
	Retention time.Duration `mapstructure:"retention"`
}

// Store is a roast.SessionStore backed by Redis. Backend errors are logged and
// degrade to not-found or no-op.
type Store struct {
	client    goredis.UniversalClient
	clock     roast.Clock
	logger    *zap.Logger
	prefix    string
	retention time.Duration
}

// NewStore wires a Store around an existing client.
func NewStore(client goredis.UniversalClient, cfg Config, clock roast.Clock, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	return &Store{
		client:    client,
		clock:     clock,
		logger:    logger.Named("session_redis"),
		prefix:    cfg.KeyPrefix,
		retention: cfg.Retention,
	}
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

// Create writes a fresh session with the retention window as its TTL.
func (s *Store) Create(ctx context.Context, id string, patch roast.SessionPatch) {
	session := roast.NewSession(id, s.clock.Now(), patch)
	data, err := json.Marshal(session)
	if err != nil {
		s.logger.Error("encode session failed", zap.String("session_id", id), zap.Error(err))
		return
	}
	if err := s.client.Set(ctx, s.key(id), data, s.retention).Err(); err != nil {
		s.logger.Error("create session failed", zap.String("session_id", id), zap.Error(err))
	}
}

// Get loads a session.
func (s *Store) Get(ctx context.Context, id string) (roast.Session, bool) {
	session, err := s.load(ctx, s.client, id)
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			s.logger.Warn("get session failed", zap.String("session_id", id), zap.Error(err))
		}
		return roast.Session{}, false
	}
	return session, true
}

// Update merges patch into an existing, non-terminal session. The read-modify-write
// runs under WATCH so a concurrent Remove is not resurrected.
func (s *Store) Update(ctx context.Context, id string, patch roast.SessionPatch) {
	key := s.key(id)
	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		session, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if session.Status.Terminal() {
			return nil
		}
		data, err := json.Marshal(patch.Apply(session))
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.SetArgs(ctx, key, data, goredis.SetArgs{KeepTTL: true})
			return nil
		})
		return err
	}, key)
	if err != nil && !errors.Is(err, goredis.Nil) {
		s.logger.Warn("update session failed", zap.String("session_id", id), zap.Error(err))
	}
}

// Remove deletes a session.
func (s *Store) Remove(ctx context.Context, id string) {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		s.logger.Warn("remove session failed", zap.String("session_id", id), zap.Error(err))
	}
}

// Sweep deletes sessions older than the retention window. Keys normally expire
// on their own; this catches entries whose TTL was lost or extended.
func (s *Store) Sweep(ctx context.Context) int {
	cutoff := s.clock.Now().Add(-s.retention)
	removed := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		id := key[len(s.prefix):]
		session, err := s.load(ctx, s.client, id)
		if err != nil {
			continue
		}
		if !session.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.client.Del(ctx, key).Err(); err != nil {
			s.logger.Warn("sweep delete failed", zap.String("session_id", id), zap.Error(err))
			continue
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn("sweep scan failed", zap.Error(err))
	}
	return removed
}

func (s *Store) load(ctx context.Context, cmd goredis.Cmdable, id string) (roast.Session, error) {
	data, err := cmd.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		return roast.Session{}, err
	}
	var session roast.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return roast.Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return session, nil
}
