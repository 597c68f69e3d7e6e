package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DedupStore implements ports.DedupStore using Redis SET NX.
type DedupStore struct {
	client *goredis.Client
	prefix string
}

// NewDedupStore creates a new Redis-backed dedup store.
func NewDedupStore(client *goredis.Client) *DedupStore {
	return &DedupStore{
		client: client,
		prefix: "dedup:",
	}
}

// Reserve atomically claims key within scope for ttl.
// Returns true if the key was free, false if it is already held.
func (s *DedupStore) Reserve(ctx context.Context, scope, key string, ttl time.Duration) (bool, error) {
	redisKey := s.prefix + scope + ":" + key
	result, err := s.client.SetArgs(ctx, redisKey, time.Now().Unix(), goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis dedup reserve: %w", err)
	}
	return result == "OK", nil
}
