package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a cache engine backed by a Redis server. The record envelope
// carries its own expiry so reads can distinguish fresh from stale; the
// Redis key TTL is stretched by graceRatio to keep stale payloads
// available for a while after logical expiry.
type Redis struct {
	client     *redis.Client
	graceRatio float64
	now        func() time.Time
}

// NewRedis creates a redis cache engine from a connection URL
func NewRedis(url string, graceRatio float64) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if graceRatio < 1 {
		graceRatio = 1
	}
	return &Redis{
		client:     redis.NewClient(opts),
		graceRatio: graceRatio,
		now:        time.Now,
	}, nil
}

// Ping verifies the connection
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client
func (r *Redis) Close() error {
	return r.client.Close()
}

// Get returns the payload for key, honoring the stale grace window
func (r *Redis) Get(ctx context.Context, key string, allowStale bool) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		// Corrupted envelope counts as a miss
		_ = r.client.Del(ctx, key).Err()
		return nil, ErrMiss
	}

	if r.now().Unix() >= rec.ExpiresAt && !allowStale {
		return nil, ErrMiss
	}

	return rec.Payload, nil
}

// Set stores payload under key with the given TTL
func (r *Redis) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	now := r.now().Unix()
	rec := Record{
		Payload:   payload,
		CachedAt:  now,
		ExpiresAt: now + int64(ttl.Seconds()),
	}
	if rec.ExpiresAt <= rec.CachedAt {
		rec.ExpiresAt = rec.CachedAt + 1
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal cache record: %w", err)
	}

	hardTTL := time.Duration(float64(ttl) * r.graceRatio)
	if err := r.client.Set(ctx, key, data, hardTTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Remove deletes a key
func (r *Redis) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// RemoveByPrefix deletes every key under a prefix
func (r *Redis) RemoveByPrefix(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del failed: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}
	return nil
}

// IsStale reports whether key is expired. Absent keys are stale.
func (r *Redis) IsStale(ctx context.Context, key string) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return true, nil
	}
	return r.now().Unix() >= rec.ExpiresAt, nil
}
