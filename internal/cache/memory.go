package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process cache engine. Records remain stale-readable for
// graceRatio times their TTL, then become misses and are purged.
type Memory struct {
	mu         sync.RWMutex
	records    map[string]Record
	graceRatio float64
	now        func() time.Time
}

// NewMemory creates a memory cache engine
func NewMemory(graceRatio float64) *Memory {
	if graceRatio < 1 {
		graceRatio = 1
	}
	return &Memory{
		records:    make(map[string]Record),
		graceRatio: graceRatio,
		now:        time.Now,
	}
}

// Get returns the payload for key. Expired records are misses unless
// allowStale is set and the record is within its grace window.
func (m *Memory) Get(ctx context.Context, key string, allowStale bool) ([]byte, error) {
	m.mu.RLock()
	rec, ok := m.records[key]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrMiss
	}

	now := m.now().Unix()
	if now >= m.hardExpiry(rec) {
		m.mu.Lock()
		delete(m.records, key)
		m.mu.Unlock()
		return nil, ErrMiss
	}

	if now >= rec.ExpiresAt && !allowStale {
		return nil, ErrMiss
	}

	return rec.Payload, nil
}

// Set stores payload under key with the given TTL
func (m *Memory) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	now := m.now().Unix()
	rec := Record{
		Payload:   payload,
		CachedAt:  now,
		ExpiresAt: now + int64(ttl.Seconds()),
	}
	if rec.ExpiresAt <= rec.CachedAt {
		rec.ExpiresAt = rec.CachedAt + 1
	}

	m.mu.Lock()
	m.records[key] = rec
	m.mu.Unlock()
	return nil
}

// Remove deletes a key
func (m *Memory) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.records, key)
	m.mu.Unlock()
	return nil
}

// RemoveByPrefix deletes every key under a prefix
func (m *Memory) RemoveByPrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	for key := range m.records {
		if strings.HasPrefix(key, prefix) {
			delete(m.records, key)
		}
	}
	m.mu.Unlock()
	return nil
}

// IsStale reports whether key is expired. Absent keys are stale.
func (m *Memory) IsStale(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	rec, ok := m.records[key]
	m.mu.RUnlock()

	if !ok {
		return true, nil
	}
	return m.now().Unix() >= rec.ExpiresAt, nil
}

// StartJanitor purges hard-expired records until ctx is done
func (m *Memory) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.purge()
			}
		}
	}()
}

func (m *Memory) purge() {
	now := m.now().Unix()
	m.mu.Lock()
	for key, rec := range m.records {
		if now >= m.hardExpiry(rec) {
			delete(m.records, key)
		}
	}
	m.mu.Unlock()
}

func (m *Memory) hardExpiry(rec Record) int64 {
	ttl := rec.ExpiresAt - rec.CachedAt
	return rec.CachedAt + int64(float64(ttl)*m.graceRatio)
}
