package profile

import (
	"context"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/samber/lo"

	"github.com/plumefeed/plume/internal/cache"
	"github.com/plumefeed/plume/internal/ops"
	"github.com/plumefeed/plume/internal/timeline"
)

// Querier is the slice of the event source the batcher needs
type Querier interface {
	QueryEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
}

// Batcher performs batched author metadata lookups. This is advisory
// data: every failure degrades to an empty result and is never surfaced
// to the feed that requested it.
type Batcher struct {
	source     Querier
	store      cache.Store
	ttl        time.Duration
	batchLimit int
	log        *ops.Logger
}

// NewBatcher creates a profile batcher
func NewBatcher(source Querier, store cache.Store, ttl time.Duration, batchLimit int, log *ops.Logger) *Batcher {
	if batchLimit <= 0 {
		batchLimit = 100
	}
	return &Batcher{
		source:     source,
		store:      store,
		ttl:        ttl,
		batchLimit: batchLimit,
		log:        log.WithComponent("profile"),
	}
}

// Enrich resolves profiles for the given authors: cached entries are
// reused, the rest are fetched in one batched kind-0 query and cached.
// The error return is advisory; the map is always usable.
func (b *Batcher) Enrich(ctx context.Context, authors []string) (map[string]Profile, error) {
	authors = lo.Uniq(authors)
	resolved := make(map[string]Profile, len(authors))

	missing := make([]string, 0, len(authors))
	for _, pk := range authors {
		if p, err := cache.GetJSON[Profile](ctx, b.store, cache.ProfileKey(pk), true); err == nil {
			resolved[pk] = p
		} else {
			missing = append(missing, pk)
		}
	}

	if len(missing) == 0 {
		return resolved, nil
	}
	if len(missing) > b.batchLimit {
		b.log.Debug("profile batch truncated",
			"missing", len(missing),
			"dropped", len(missing)-b.batchLimit)
		missing = missing[:b.batchLimit]
	}

	filter := nostr.Filter{
		Kinds:   []int{nostr.KindProfileMetadata},
		Authors: missing,
		Limit:   len(missing),
	}

	events, err := b.source.QueryEvents(ctx, filter)
	if err != nil {
		b.log.LogEnrichment(len(missing), 0, err)
		return resolved, err
	}

	fetched := 0
	for _, ev := range events {
		p, ok := FromEvent(ev)
		if !ok {
			continue
		}
		// Keep the newest metadata per author
		if prev, seen := resolved[p.PubKey]; seen && prev.FetchedAt >= p.FetchedAt {
			continue
		}
		resolved[p.PubKey] = p
		fetched++

		if err := cache.SetJSON(ctx, b.store, cache.ProfileKey(p.PubKey), p, b.ttl); err != nil {
			b.log.Debug("profile cache write failed", "pubkey", p.PubKey, "error", err)
		}
	}

	b.log.LogEnrichment(len(missing), fetched, nil)
	return resolved, nil
}

// EnrichItems resolves profiles for every distinct author in a batch of items
func (b *Batcher) EnrichItems(ctx context.Context, items []timeline.Item) (map[string]Profile, error) {
	return b.Enrich(ctx, timeline.Authors(items))
}

// Go runs EnrichItems in the background. Errors are swallowed; this must
// never block or fail the feed that spawned it.
func (b *Batcher) Go(ctx context.Context, items []timeline.Item) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				b.log.Warn("profile enrichment panicked", "panic", r)
			}
		}()
		_, _ = b.EnrichItems(ctx, items)
	}()
}

// Lookup returns the cached profile for one author, or a zero profile
// whose DisplayLabel falls back to the truncated npub
func (b *Batcher) Lookup(ctx context.Context, pubkey string) Profile {
	if p, err := cache.GetJSON[Profile](ctx, b.store, cache.ProfileKey(pubkey), true); err == nil {
		return p
	}
	return Profile{PubKey: pubkey}
}
