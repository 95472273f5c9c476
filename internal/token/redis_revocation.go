package token

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "taskflow:blacklist:"

// RedisRevocationStore is a shared blacklist for multi-node deployments.
// Entries expire through per-key TTLs, so Sweep is a no-op.
type RedisRevocationStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisRevocationStore builds a Redis-backed store.
func NewRedisRevocationStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisRevocationStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRevocationStore{client: client, ttl: ttl, logger: logger}
}

// Revoke stores the token fingerprint with the configured TTL.
func (s *RedisRevocationStore) Revoke(ctx context.Context, rawToken string) error {
	fp := Fingerprint(rawToken)
	if err := s.client.Set(ctx, redisKeyPrefix+fp, 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.logger.Info("token blacklisted", zap.String("fingerprint", truncFingerprint(fp)))
	return nil
}

// IsRevoked checks for the fingerprint key.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, rawToken string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKeyPrefix+Fingerprint(rawToken)).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}

// Sweep is a no-op; Redis expires keys on its own.
func (s *RedisRevocationStore) Sweep(ctx context.Context) (int, error) {
	return 0, nil
}

// Len reports the approximate number of blacklist keys. Used for gauges only.
func (s *RedisRevocationStore) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var count int
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	return count
}
