package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMiss is returned when a key is absent, expired beyond its stale grace,
// or its payload cannot be decoded.
var ErrMiss = errors.New("cache miss")

// Store is a keyed, TTL-aware store for serialized collections.
// Get with allowStale returns expired payloads that are still within the
// engine's stale grace window, letting callers show old data while a
// refresh is in flight.
type Store interface {
	Get(ctx context.Context, key string, allowStale bool) ([]byte, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
	RemoveByPrefix(ctx context.Context, prefix string) error
	IsStale(ctx context.Context, key string) (bool, error)
}

// Record is the stored envelope around a payload
type Record struct {
	Payload   []byte `json:"payload"`
	CachedAt  int64  `json:"cached_at"`
	ExpiresAt int64  `json:"expires_at"`
	DataType  string `json:"data_type,omitempty"`
}

// Feed-scoped key conventions. Everything under one prefix so a whole
// class of entries can be dropped together.
const (
	FeedPrefix    = "feed:"
	ProfilePrefix = "profile:"
	ThreadPrefix  = "thread:"
)

func FeedGlobalKey() string              { return FeedPrefix + "global" }
func FeedTagKey(tag string) string       { return FeedPrefix + "tag:" + tag }
func FeedAuthorKey(pubkey string) string { return FeedPrefix + "author:" + pubkey }
func FeedFollowingKey(owner string) string {
	return FeedPrefix + "following:" + owner
}
func ProfileKey(pubkey string) string { return ProfilePrefix + pubkey }
func ThreadKey(id string) string      { return ThreadPrefix + id }

// SetJSON marshals a value and stores it under key
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal cache payload: %w", err)
	}
	return s.Set(ctx, key, payload, ttl)
}

// GetJSON reads and unmarshals a value. A payload that fails to decode is
// treated as a miss, never an error that reaches a feed.
func GetJSON[T any](ctx context.Context, s Store, key string, allowStale bool) (T, error) {
	var zero T

	payload, err := s.Get(ctx, key, allowStale)
	if err != nil {
		return zero, err
	}

	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return zero, ErrMiss
	}
	return v, nil
}
