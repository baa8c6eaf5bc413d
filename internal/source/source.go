package source

import (
	"context"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/plumefeed/plume/internal/config"
	"github.com/plumefeed/plume/internal/ops"
	"github.com/plumefeed/plume/internal/timeline"
)

// RelaySource talks to the configured relays through a shared pool.
// Queries carry a timeout from config unless the caller already set a
// deadline; search-style queries get the shorter search timeout.
type RelaySource struct {
	pool   *nostr.SimplePool
	relays []string
	policy config.RelayPolicy
	nsec   string
	log    *ops.Logger
}

// New creates a relay-backed event source
func New(ctx context.Context, cfg *config.Relays, nsec string, log *ops.Logger) *RelaySource {
	return &RelaySource{
		pool:   nostr.NewSimplePool(ctx),
		relays: cfg.URLs,
		policy: cfg.Policy,
		nsec:   nsec,
		log:    log.WithComponent("source"),
	}
}

// Relays returns the configured relay URLs
func (s *RelaySource) Relays() []string {
	return s.relays
}

// QueryEvents fetches raw events matching the filter, waiting for EOSE
// from each relay
func (s *RelaySource) QueryEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	ctx, cancel := s.withTimeout(ctx, filter)
	defer cancel()

	start := time.Now()
	events := make([]*nostr.Event, 0)
	for relayEvent := range s.pool.SubManyEose(ctx, s.relays, nostr.Filters{filter}) {
		if relayEvent.Event != nil {
			events = append(events, relayEvent.Event)
		}
	}

	if err := ctx.Err(); err != nil && err != context.Canceled && len(events) == 0 {
		s.log.LogRelayQuery("query", 0, time.Since(start), err)
		return nil, fmt.Errorf("relay query timed out: %w", err)
	}

	s.log.LogRelayQuery("query", len(events), time.Since(start), nil)
	return events, nil
}

// Query fetches events and converts them to timeline items, skipping
// events that fail conversion individually
func (s *RelaySource) Query(ctx context.Context, filter nostr.Filter) ([]timeline.Item, error) {
	events, err := s.QueryEvents(ctx, filter)
	if err != nil {
		return nil, err
	}
	return timeline.FromEvents(events), nil
}

// Stream subscribes to a live filter. The returned channel closes when
// ctx is done.
func (s *RelaySource) Stream(ctx context.Context, filter nostr.Filter) (<-chan timeline.Item, error) {
	out := make(chan timeline.Item, 100)

	go func() {
		defer close(out)
		for relayEvent := range s.pool.SubMany(ctx, s.relays, nostr.Filters{filter}) {
			if relayEvent.Event == nil {
				continue
			}
			item, ok := timeline.FromEvent(relayEvent.Event)
			if !ok {
				continue
			}
			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Publish signs a text note with the configured key and submits it.
// Success means at least one relay accepted it.
func (s *RelaySource) Publish(ctx context.Context, content string, tags nostr.Tags) (*timeline.Item, error) {
	if s.nsec == "" {
		return nil, fmt.Errorf("no signing key configured")
	}

	prefix, decoded, err := nip19.Decode(s.nsec)
	if err != nil || prefix != "nsec" {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}
	sk := decoded.(string)

	event := nostr.Event{
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindTextNote,
		Tags:      tags,
		Content:   content,
	}
	if err := event.Sign(sk); err != nil {
		return nil, fmt.Errorf("failed to sign event: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx, nostr.Filter{})
	defer cancel()

	successCount := 0
	var lastErr error
	for result := range s.pool.PublishMany(ctx, s.relays, event) {
		if result.Error != nil {
			lastErr = result.Error
		} else {
			successCount++
		}
	}

	if successCount == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("failed to publish to any relay: %w", lastErr)
		}
		return nil, fmt.Errorf("failed to publish to any relay")
	}

	item, ok := timeline.FromEvent(&event)
	if !ok {
		return nil, fmt.Errorf("published event is not a timeline item")
	}
	return &item, nil
}

func (s *RelaySource) withTimeout(ctx context.Context, filter nostr.Filter) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}

	timeout := time.Duration(s.policy.QueryTimeoutMs) * time.Millisecond
	if filter.Search != "" {
		timeout = time.Duration(s.policy.SearchTimeoutMs) * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}
