package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"anime-notifier/internal/models"
)

const snapshotKeyPrefix = "anime-notifier:snapshot:"

// RedisSnapshotStore keeps schedule snapshots as JSON documents in Redis.
// Each write is a single SET, so a snapshot is replaced whole or not at all.
type RedisSnapshotStore struct {
	rdb goredis.UniversalClient
	ttl time.Duration
}

// NewRedisSnapshotStore connects to Redis and checks the connection.
// A zero ttl keeps snapshots until overwritten.
func NewRedisSnapshotStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisSnapshotStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisSnapshotStore{rdb: rdb, ttl: ttl}, nil
}

func snapshotKey(showID int) string {
	return snapshotKeyPrefix + strconv.Itoa(showID)
}

// GetSnapshot returns the cached snapshot for a show.
func (s *RedisSnapshotStore) GetSnapshot(ctx context.Context, showID int) (*models.ScheduleSnapshot, bool, error) {
	payload, err := s.rdb.Get(ctx, snapshotKey(showID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var snap models.ScheduleSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached snapshot for show %d: %w", showID, err)
	}
	return &snap, true, nil
}

// UpsertSnapshot replaces the cached snapshot for a show.
func (s *RedisSnapshotStore) UpsertSnapshot(ctx context.Context, snap *models.ScheduleSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return s.rdb.Set(ctx, snapshotKey(snap.ShowID), payload, s.ttl).Err()
}

// Close closes the Redis connection.
func (s *RedisSnapshotStore) Close() error {
	return s.rdb.Close()
}
