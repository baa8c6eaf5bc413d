package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testClock(start time.Time) (*time.Time, func() time.Time) {
	now := start
	return &now, func() time.Time { return now }
}

func TestMemory_SetGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(4)

	if err := m.Set(ctx, "feed:global", []byte("payload"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := m.Get(ctx, "feed:global", false)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("Expected 'payload', got %q", got)
	}
}

func TestMemory_MissOnAbsentKey(t *testing.T) {
	m := NewMemory(4)

	_, err := m.Get(context.Background(), "feed:nope", true)
	if !errors.Is(err, ErrMiss) {
		t.Errorf("Expected ErrMiss, got %v", err)
	}
}

func TestMemory_ExpiredIsMissUnlessStaleAllowed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(4)
	now, clock := testClock(time.Unix(1000, 0))
	m.now = clock

	if err := m.Set(ctx, "k", []byte("v"), 10*time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	*now = time.Unix(1015, 0) // expired, within grace

	if _, err := m.Get(ctx, "k", false); !errors.Is(err, ErrMiss) {
		t.Errorf("Expected ErrMiss for expired read, got %v", err)
	}

	got, err := m.Get(ctx, "k", true)
	if err != nil {
		t.Fatalf("Expected stale read to succeed, got %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Expected stale payload, got %q", got)
	}
}

func TestMemory_BeyondGraceIsAlwaysMiss(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	now, clock := testClock(time.Unix(1000, 0))
	m.now = clock

	if err := m.Set(ctx, "k", []byte("v"), 10*time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	*now = time.Unix(1025, 0) // past ttl*grace

	if _, err := m.Get(ctx, "k", true); !errors.Is(err, ErrMiss) {
		t.Errorf("Expected ErrMiss beyond grace, got %v", err)
	}
}

func TestMemory_Remove(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(4)

	_ = m.Set(ctx, "k", []byte("v"), time.Minute)
	if err := m.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := m.Get(ctx, "k", true); !errors.Is(err, ErrMiss) {
		t.Errorf("Expected ErrMiss after remove, got %v", err)
	}
}

func TestMemory_RemoveByPrefix(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(4)

	_ = m.Set(ctx, "feed:global", []byte("a"), time.Minute)
	_ = m.Set(ctx, "feed:tag:nostr", []byte("b"), time.Minute)
	_ = m.Set(ctx, "profile:pk", []byte("c"), time.Minute)

	if err := m.RemoveByPrefix(ctx, "feed:"); err != nil {
		t.Fatalf("RemoveByPrefix() error = %v", err)
	}

	if _, err := m.Get(ctx, "feed:global", true); !errors.Is(err, ErrMiss) {
		t.Errorf("Expected feed:global removed")
	}
	if _, err := m.Get(ctx, "feed:tag:nostr", true); !errors.Is(err, ErrMiss) {
		t.Errorf("Expected feed:tag:nostr removed")
	}
	if _, err := m.Get(ctx, "profile:pk", true); err != nil {
		t.Errorf("Expected profile:pk to survive, got %v", err)
	}
}

func TestMemory_IsStale(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(4)
	now, clock := testClock(time.Unix(1000, 0))
	m.now = clock

	stale, err := m.IsStale(ctx, "absent")
	if err != nil || !stale {
		t.Errorf("Expected absent key to be stale, got %v %v", stale, err)
	}

	_ = m.Set(ctx, "k", []byte("v"), 10*time.Second)

	if stale, _ := m.IsStale(ctx, "k"); stale {
		t.Errorf("Expected fresh key not stale")
	}

	*now = time.Unix(1011, 0)
	if stale, _ := m.IsStale(ctx, "k"); !stale {
		t.Errorf("Expected expired key stale")
	}
}

func TestGetJSON_CorruptPayloadIsMiss(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(4)

	_ = m.Set(ctx, "k", []byte("{not json"), time.Minute)

	_, err := GetJSON[[]string](ctx, m, "k", false)
	if !errors.Is(err, ErrMiss) {
		t.Errorf("Expected corrupt payload to read as miss, got %v", err)
	}
}

func TestSetGetJSON_Roundtrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(4)

	type entry struct {
		ID string `json:"id"`
		TS int64  `json:"ts"`
	}

	in := []entry{{ID: "a", TS: 1}, {ID: "b", TS: 2}}
	if err := SetJSON(ctx, m, "k", in, time.Minute); err != nil {
		t.Fatalf("SetJSON() error = %v", err)
	}

	out, err := GetJSON[[]entry](ctx, m, "k", false)
	if err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if len(out) != 2 || out[0].ID != "a" || out[1].TS != 2 {
		t.Errorf("Unexpected roundtrip result: %+v", out)
	}
}

func TestFeedKeys(t *testing.T) {
	if FeedGlobalKey() != "feed:global" {
		t.Errorf("Unexpected global key: %s", FeedGlobalKey())
	}
	if FeedTagKey("nostr") != "feed:tag:nostr" {
		t.Errorf("Unexpected tag key: %s", FeedTagKey("nostr"))
	}
	if FeedAuthorKey("pk") != "feed:author:pk" {
		t.Errorf("Unexpected author key: %s", FeedAuthorKey("pk"))
	}
	if ProfileKey("pk") != "profile:pk" {
		t.Errorf("Unexpected profile key: %s", ProfileKey("pk"))
	}
}
