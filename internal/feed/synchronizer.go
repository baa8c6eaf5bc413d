package feed

import (
	"context"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/plumefeed/plume/internal/cache"
	"github.com/plumefeed/plume/internal/config"
	"github.com/plumefeed/plume/internal/ops"
	"github.com/plumefeed/plume/internal/timeline"
)

// Source is the slice of the event source a feed needs
type Source interface {
	Query(ctx context.Context, filter nostr.Filter) ([]timeline.Item, error)
}

// Enricher requests background author metadata for a batch of items
type Enricher interface {
	Go(ctx context.Context, items []timeline.Item)
}

// Observer receives state snapshots
type Observer func(State)

// Synchronizer keeps one logical feed fresh: cache-first display, a
// background network refresh merged in without blocking the first paint,
// and cursor-based pagination with a memory ceiling.
//
// Each synchronizer is a single-writer state machine. In-flight guards
// (IsLoadingMore, IsRefreshingInBackground) make concurrent callers
// no-op, and a fetch generation counter discards results of a refresh
// that was superseded by a newer Load or Refresh.
type Synchronizer struct {
	scope    Scope
	source   Source
	store    cache.Store
	enricher Enricher
	cfg      config.Feeds
	log      *ops.Logger

	mu          sync.Mutex
	state       State
	generation  uint64
	observers   []Observer
	notifyQueue []State
	notifying   bool
}

// NewSynchronizer creates the synchronizer for one feed scope.
// The enricher may be nil.
func NewSynchronizer(scope Scope, source Source, store cache.Store, enricher Enricher, cfg config.Feeds, log *ops.Logger) *Synchronizer {
	return &Synchronizer{
		scope:    scope,
		source:   source,
		store:    store,
		enricher: enricher,
		cfg:      cfg,
		log:      log.WithComponent("feed").WithFields("feed", scope.CacheKey()),
		state:    State{Phase: PhaseInitial, HasMore: true},
	}
}

// Scope returns the feed's scope
func (s *Synchronizer) Scope() Scope {
	return s.scope
}

// State returns a snapshot of the current state
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers an observer and immediately delivers the current
// state to it
func (s *Synchronizer) Subscribe(fn Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	snapshot := s.state.clone()
	s.mu.Unlock()
	fn(snapshot)
}

// Load performs the cache-first load: publish cached items (stale
// allowed) or Loading immediately, then refresh from the network in the
// background. Returns after the first emission; it never blocks the
// initial paint on network completion.
func (s *Synchronizer) Load(ctx context.Context) {
	if s.scope.Empty() {
		// Nothing to follow; querying would hit the relay unconstrained
		s.mu.Lock()
		s.generation++
		s.state = State{Phase: PhaseLoaded, Items: []timeline.Item{}}
		s.publishLocked()
		s.mu.Unlock()
		return
	}

	cached := s.readCache(ctx)

	s.mu.Lock()
	s.generation++
	gen := s.generation

	if len(cached) > 0 {
		timeline.SortByCreatedAtDesc(cached)
		s.state = State{
			Phase:                    PhaseLoaded,
			Items:                    cached,
			HasMore:                  true,
			OldestTimestamp:          timeline.OldestTimestamp(cached),
			IsRefreshingInBackground: true,
		}
	} else {
		s.state = State{Phase: PhaseLoading, HasMore: true}
	}
	s.publishLocked()
	s.mu.Unlock()

	go s.refresh(ctx, gen)
}

// Refresh re-runs Load from scratch: pagination state and the sticky
// HasMore are reset, pending items are dropped.
func (s *Synchronizer) Refresh(ctx context.Context) {
	s.mu.Lock()
	s.state.PendingItems = nil
	s.state.PendingCount = 0
	s.state.IsLoadingMore = false
	s.state.HasMore = true
	s.mu.Unlock()

	s.Load(ctx)
}

// refresh queries the recent window and merges the result. A completing
// refresh whose generation is no longer current is discarded wholesale;
// that closes the stale-overwrites-fresh race without touching the
// merge's last-write-wins rule.
func (s *Synchronizer) refresh(ctx context.Context, gen uint64) {
	filter := s.scope.Filter()
	since := nostr.Timestamp(time.Now().Add(-time.Duration(s.cfg.InitialWindowHours) * time.Hour).Unix())
	filter.Since = &since
	filter.Limit = s.cfg.InitialBatchSize

	fresh, err := s.source.Query(ctx, filter)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.log.Debug("discarding superseded refresh", "generation", gen)
		return
	}

	if err != nil {
		if s.state.Phase == PhaseLoaded {
			// Keep showing what we had
			s.state.IsRefreshingInBackground = false
		} else {
			s.state = State{Phase: PhaseError, ErrorMessage: err.Error()}
		}
		s.publishLocked()
		s.mu.Unlock()
		return
	}

	if len(fresh) == 0 {
		if s.state.Phase != PhaseLoaded {
			// Absence of recent items does not mean absence of history
			s.state = State{Phase: PhaseLoaded, Items: []timeline.Item{}, HasMore: true}
		} else {
			s.state.IsRefreshingInBackground = false
		}
		s.publishLocked()
		s.mu.Unlock()
		return
	}

	if s.scope.DeferredMerge() && s.state.Phase == PhaseLoaded && len(s.state.Items) > 0 {
		s.deferFreshLocked(ctx, fresh)
	} else {
		s.mergeFreshLocked(ctx, fresh)
	}
	s.publishLocked()
	s.mu.Unlock()

	if s.enricher != nil {
		s.enricher.Go(ctx, fresh)
	}
}

// mergeFreshLocked applies the eager merge policy: fresh items replace
// cached copies by id, newest-first, capped, re-cached.
func (s *Synchronizer) mergeFreshLocked(ctx context.Context, fresh []timeline.Item) {
	hadPrior := s.state.Phase == PhaseLoaded
	merged := timeline.Merge(s.state.Items, fresh)
	timeline.SortByCreatedAtDesc(merged)
	merged = s.capped(merged)

	hasMore := s.state.HasMore
	if !hadPrior {
		hasMore = len(fresh) >= s.cfg.PageBatchSize
	}

	s.state = State{
		Phase:           PhaseLoaded,
		Items:           merged,
		HasMore:         hasMore,
		OldestTimestamp: timeline.OldestTimestamp(merged),
		// A page fetch may still be in flight; its guard must survive
		// the refresh completing first
		IsLoadingMore: s.state.IsLoadingMore,
		PendingItems:  s.state.PendingItems,
		PendingCount:  s.state.PendingCount,
	}

	s.persistAsync(ctx, merged)
}

// deferFreshLocked applies the deferred merge policy: fresh items not
// already visible are held in pending until RevealPending.
func (s *Synchronizer) deferFreshLocked(ctx context.Context, fresh []timeline.Item) {
	visible := make(map[string]bool, len(s.state.Items))
	for _, item := range s.state.Items {
		visible[item.ID] = true
	}

	arrived := make([]timeline.Item, 0, len(fresh))
	for _, item := range fresh {
		if !visible[item.ID] {
			arrived = append(arrived, item)
		}
	}

	pending := timeline.Merge(s.state.PendingItems, arrived)
	timeline.SortByCreatedAtDesc(pending)

	s.state.PendingItems = pending
	s.state.PendingCount = len(pending)
	s.state.IsRefreshingInBackground = false

	// TTL refresh for the visible list; fire-and-forget
	s.persistAsync(ctx, s.state.Items)
}

// RevealPending merges held items to the front of the visible list,
// re-sorts, re-caps, and re-caches. No-op when nothing is pending.
func (s *Synchronizer) RevealPending(ctx context.Context) {
	s.mu.Lock()
	if s.state.Phase != PhaseLoaded || len(s.state.PendingItems) == 0 {
		s.mu.Unlock()
		return
	}

	merged := timeline.Merge(s.state.Items, s.state.PendingItems)
	timeline.SortByCreatedAtDesc(merged)
	merged = s.capped(merged)

	s.state.Items = merged
	s.state.OldestTimestamp = timeline.OldestTimestamp(merged)
	s.state.PendingItems = nil
	s.state.PendingCount = 0

	s.persistAsync(ctx, merged)
	s.publishLocked()
	s.mu.Unlock()
}

// LoadMore pages older items below the current cursor. No-op unless the
// feed is Loaded with a known cursor, more data is expected, and no page
// fetch is already in flight.
func (s *Synchronizer) LoadMore(ctx context.Context) {
	s.mu.Lock()
	if s.state.Phase != PhaseLoaded || s.state.IsLoadingMore || !s.state.HasMore || s.state.OldestTimestamp == 0 {
		s.mu.Unlock()
		return
	}
	s.state.IsLoadingMore = true
	gen := s.generation
	cursor := s.state.OldestTimestamp
	s.publishLocked()
	s.mu.Unlock()

	filter := s.scope.Filter()
	// Strict exclusivity keeps the boundary item from being re-fetched
	until := nostr.Timestamp(cursor - 1)
	filter.Until = &until
	filter.Limit = s.cfg.PageBatchSize

	fetched, err := s.source.Query(ctx, filter)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}

	if err != nil {
		// No data loss on a failed page fetch
		s.state.IsLoadingMore = false
		s.publishLocked()
		s.mu.Unlock()
		return
	}

	if len(fetched) == 0 {
		s.state.HasMore = false
		s.state.IsLoadingMore = false
		s.publishLocked()
		s.mu.Unlock()
		return
	}

	merged := timeline.Merge(s.state.Items, fetched)
	timeline.SortByCreatedAtDesc(merged)
	merged = s.capped(merged)

	s.state.Items = merged
	s.state.OldestTimestamp = timeline.OldestTimestamp(merged)
	s.state.HasMore = len(fetched) >= s.cfg.PageBatchSize
	s.state.IsLoadingMore = false

	s.persistAsync(ctx, merged)
	s.publishLocked()
	s.mu.Unlock()

	if s.enricher != nil {
		s.enricher.Go(ctx, fetched)
	}
}

// capped truncates a newest-first collection to the memory ceiling,
// discarding the oldest overflow
func (s *Synchronizer) capped(items []timeline.Item) []timeline.Item {
	if s.cfg.MaxItemsInMemory > 0 && len(items) > s.cfg.MaxItemsInMemory {
		return items[:s.cfg.MaxItemsInMemory]
	}
	return items
}

// readCache performs the stale-allowed cache read. Any failure,
// including a corrupt payload, is a miss.
func (s *Synchronizer) readCache(ctx context.Context) []timeline.Item {
	items, err := cache.GetJSON[[]timeline.Item](ctx, s.store, s.scope.CacheKey(), true)
	if err != nil {
		s.log.LogCacheOperation("get", s.scope.CacheKey(), false)
		return nil
	}
	s.log.LogCacheOperation("get", s.scope.CacheKey(), true)
	return items
}

// persistAsync writes the collection back with the feed's TTL. Errors
// are logged and swallowed; a failed cache write must never reach the
// feed's state.
func (s *Synchronizer) persistAsync(ctx context.Context, items []timeline.Item) {
	snapshot := make([]timeline.Item, len(items))
	copy(snapshot, items)

	go func() {
		if err := cache.SetJSON(ctx, s.store, s.scope.CacheKey(), snapshot, s.scope.TTL(s.cfg.TTL)); err != nil {
			s.log.Debug("cache write failed", "key", s.scope.CacheKey(), "error", err)
		}
	}()
}

// publishLocked queues the current state for observers. Callers hold the
// mutex; delivery happens off the lock, in publish order, on snapshots so
// observers cannot see a mid-mutation state.
func (s *Synchronizer) publishLocked() {
	snapshot := s.state.clone()
	s.log.LogFeedTransition(s.scope.CacheKey(), string(snapshot.Phase), len(snapshot.Items), snapshot.PendingCount)

	s.notifyQueue = append(s.notifyQueue, snapshot)
	if !s.notifying {
		s.notifying = true
		go s.drainNotifications()
	}
}

func (s *Synchronizer) drainNotifications() {
	for {
		s.mu.Lock()
		if len(s.notifyQueue) == 0 {
			s.notifying = false
			s.mu.Unlock()
			return
		}
		snapshot := s.notifyQueue[0]
		s.notifyQueue = s.notifyQueue[1:]
		observers := make([]Observer, len(s.observers))
		copy(observers, s.observers)
		s.mu.Unlock()

		for _, fn := range observers {
			fn(snapshot)
		}
	}
}
