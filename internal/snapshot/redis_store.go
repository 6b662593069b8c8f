package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

// RedisStore keeps snapshots as JSON strings that expire with the recovery window.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates a RedisStore. ttl <= 0 stores without expiry.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, examID uuid.UUID, userID int, snap model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.SnapshotKey(examID, userID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, examID uuid.UUID, userID int) (model.Snapshot, bool, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.SnapshotKey(examID, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Snapshot{}, false, nil
	}
	if err != nil {
		return model.Snapshot{}, false, fmt.Errorf("loading snapshot: %w", err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return snap, true, nil
}

func (s *RedisStore) Clear(ctx context.Context, examID uuid.UUID, userID int) error {
	if err := s.rdb.Del(ctx, config.CacheKey.SnapshotKey(examID, userID)).Err(); err != nil {
		return fmt.Errorf("clearing snapshot: %w", err)
	}
	return nil
}
