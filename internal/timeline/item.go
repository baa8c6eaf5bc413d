package timeline

import (
	"sort"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/samber/lo"
)

// Item is one unit of timeline content. Items are value types; collections
// copy them freely and no two collections share underlying state.
type Item struct {
	ID        string     `json:"id"`
	AuthorID  string     `json:"author_id"`
	Content   string     `json:"content"`
	CreatedAt int64      `json:"created_at"`
	ReplyToID string     `json:"reply_to_id,omitempty"`
	RootID    string     `json:"root_id,omitempty"`
	Tags      nostr.Tags `json:"tags,omitempty"`
}

// IsReply returns true if this item replies to another item
func (it Item) IsReply() bool {
	return it.ReplyToID != ""
}

// FromEvent converts a Nostr event into an Item.
// Returns false for events that cannot be represented (wrong kind, missing
// identity); callers skip those individually rather than failing a batch.
func FromEvent(ev *nostr.Event) (Item, bool) {
	if ev == nil || ev.ID == "" || ev.PubKey == "" {
		return Item{}, false
	}
	if !isTimelineKind(ev.Kind) {
		return Item{}, false
	}

	item := Item{
		ID:        ev.ID,
		AuthorID:  ev.PubKey,
		Content:   ev.Content,
		CreatedAt: int64(ev.CreatedAt),
		Tags:      ev.Tags,
	}

	refs := ParseThreadRefs(ev.Tags)
	item.ReplyToID = refs.ReplyToID
	item.RootID = refs.RootID

	return item, true
}

// FromEvents converts a batch of events, skipping ones that fail conversion
func FromEvents(events []*nostr.Event) []Item {
	items := make([]Item, 0, len(events))
	for _, ev := range events {
		if item, ok := FromEvent(ev); ok {
			items = append(items, item)
		}
	}
	return items
}

func isTimelineKind(kind int) bool {
	return kind == nostr.KindTextNote
}

// Hashtags returns the lowercased hashtags attached to an item
func Hashtags(item Item) []string {
	tags := make([]string, 0)
	for _, tag := range item.Tags {
		if len(tag) >= 2 && tag[0] == "t" && tag[1] != "" {
			tags = append(tags, strings.ToLower(tag[1]))
		}
	}
	return lo.Uniq(tags)
}

// Authors returns the unique author ids over a collection, in first-seen order
func Authors(items []Item) []string {
	return lo.Uniq(lo.Map(items, func(it Item, _ int) string {
		return it.AuthorID
	}))
}

// Merge combines two collections into one with each id present exactly once.
// The first collection is inserted, then the second overwrites, so callers
// control precedence by argument order. Output order is unspecified;
// callers sort afterwards.
func Merge(a, b []Item) []Item {
	byID := make(map[string]Item, len(a)+len(b))
	order := make([]string, 0, len(a)+len(b))

	for _, item := range a {
		if _, seen := byID[item.ID]; !seen {
			order = append(order, item.ID)
		}
		byID[item.ID] = item
	}
	for _, item := range b {
		if _, seen := byID[item.ID]; !seen {
			order = append(order, item.ID)
		}
		byID[item.ID] = item
	}

	merged := make([]Item, 0, len(byID))
	for _, id := range order {
		merged = append(merged, byID[id])
	}
	return merged
}

// SortByCreatedAtDesc sorts newest-first, with id as a stable tie-break
func SortByCreatedAtDesc(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt != items[j].CreatedAt {
			return items[i].CreatedAt > items[j].CreatedAt
		}
		return items[i].ID < items[j].ID
	})
}

// OldestTimestamp returns the minimum CreatedAt over a collection, 0 if empty
func OldestTimestamp(items []Item) int64 {
	if len(items) == 0 {
		return 0
	}
	oldest := items[0].CreatedAt
	for _, item := range items[1:] {
		if item.CreatedAt < oldest {
			oldest = item.CreatedAt
		}
	}
	return oldest
}
