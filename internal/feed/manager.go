package feed

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/plumefeed/plume/internal/cache"
	"github.com/plumefeed/plume/internal/config"
	"github.com/plumefeed/plume/internal/ops"
)

// Manager owns one synchronizer per feed key, created on demand.
// Lookups for an already-known feed always return the same instance, so
// the single-writer discipline holds across callers.
type Manager struct {
	source   Source
	store    cache.Store
	enricher Enricher
	cfg      config.Feeds
	log      *ops.Logger

	feeds *xsync.MapOf[string, *Synchronizer]
}

// NewManager creates a feed manager
func NewManager(source Source, store cache.Store, enricher Enricher, cfg config.Feeds, log *ops.Logger) *Manager {
	return &Manager{
		source:   source,
		store:    store,
		enricher: enricher,
		cfg:      cfg,
		log:      log,
		feeds:    xsync.NewMapOf[string, *Synchronizer](),
	}
}

// Feed returns the synchronizer for a scope, constructing it on first use
func (m *Manager) Feed(scope Scope) *Synchronizer {
	sync, _ := m.feeds.LoadOrCompute(scope.CacheKey(), func() *Synchronizer {
		return NewSynchronizer(scope, m.source, m.store, m.enricher, m.cfg, m.log)
	})
	return sync
}

// Forget drops a feed's synchronizer. The cached collection stays until
// its TTL runs out, so a re-created feed still paints instantly.
func (m *Manager) Forget(scope Scope) {
	m.feeds.Delete(scope.CacheKey())
}

// Len returns the number of live feeds
func (m *Manager) Len() int {
	return m.feeds.Size()
}
