package feed

import (
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/plumefeed/plume/internal/cache"
	"github.com/plumefeed/plume/internal/config"
)

// ScopeKind names the feed variants
type ScopeKind string

const (
	ScopeGlobal    ScopeKind = "global"
	ScopeTag       ScopeKind = "tag"
	ScopeAuthor    ScopeKind = "author"
	ScopeFollowing ScopeKind = "following"
)

// Scope defines one logical feed: the filter constraints that select its
// items, its cache key, and its merge policy.
type Scope struct {
	Kind     ScopeKind
	Tag      string
	Author   string
	Owner    string
	Contacts []string
}

// Global is the firehose feed over all authors
func Global() Scope {
	return Scope{Kind: ScopeGlobal}
}

// Tag is a hashtag-scoped feed. Hashtags are case-insensitive; the
// lowercase form is canonical for both filters and cache keys.
func Tag(tag string) Scope {
	return Scope{Kind: ScopeTag, Tag: strings.ToLower(tag)}
}

// Author is a single-author feed
func Author(pubkey string) Scope {
	return Scope{Kind: ScopeAuthor, Author: pubkey}
}

// Following is the feed over a contact list
func Following(owner string, contacts []string) Scope {
	return Scope{Kind: ScopeFollowing, Owner: owner, Contacts: contacts}
}

// CacheKey returns the feed-scoped cache key
func (s Scope) CacheKey() string {
	switch s.Kind {
	case ScopeTag:
		return cache.FeedTagKey(s.Tag)
	case ScopeAuthor:
		return cache.FeedAuthorKey(s.Author)
	case ScopeFollowing:
		return cache.FeedFollowingKey(s.Owner)
	default:
		return cache.FeedGlobalKey()
	}
}

// Filter returns the feed-defining filter constraints. Time bounds and
// limits are layered on by the synchronizer per request.
func (s Scope) Filter() nostr.Filter {
	filter := nostr.Filter{
		Kinds: []int{nostr.KindTextNote},
	}
	switch s.Kind {
	case ScopeTag:
		filter.Tags = nostr.TagMap{"t": []string{s.Tag}}
	case ScopeAuthor:
		filter.Authors = []string{s.Author}
	case ScopeFollowing:
		filter.Authors = s.Contacts
	}
	return filter
}

// Empty reports whether the scope cannot match anything. A following
// feed with no contacts would otherwise become an unconstrained filter,
// since a relay treats an absent author list as matching every author.
func (s Scope) Empty() bool {
	return s.Kind == ScopeFollowing && len(s.Contacts) == 0
}

// DeferredMerge reports whether fresh background results are held in
// pending rather than merged into the visible list. Tag feeds defer so a
// reader's scroll position survives a refresh.
func (s Scope) DeferredMerge() bool {
	return s.Kind == ScopeTag
}

// TTL returns the cache TTL configured for this feed kind
func (s Scope) TTL(cfg config.TTL) time.Duration {
	seconds := cfg.Global
	switch s.Kind {
	case ScopeTag:
		seconds = cfg.Tag
	case ScopeAuthor:
		seconds = cfg.Author
	case ScopeFollowing:
		seconds = cfg.Following
	}
	return time.Duration(seconds) * time.Second
}
