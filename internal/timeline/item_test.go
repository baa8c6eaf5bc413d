package timeline

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

func item(id string, ts int64) Item {
	return Item{ID: id, AuthorID: "author-" + id, Content: "content " + id, CreatedAt: ts}
}

func TestMerge_DedupsById(t *testing.T) {
	a := []Item{item("a", 100), item("b", 200)}
	b := []Item{item("b", 200), item("c", 300)}

	merged := Merge(a, b)

	if len(merged) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(merged))
	}

	seen := map[string]int{}
	for _, it := range merged {
		seen[it.ID]++
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("Expected id %s exactly once, got %d", id, count)
		}
	}
}

func TestMerge_SecondArgumentWins(t *testing.T) {
	stale := Item{ID: "x", Content: "old content", CreatedAt: 100}
	fresh := Item{ID: "x", Content: "new content", CreatedAt: 100}

	merged := Merge([]Item{stale}, []Item{fresh})

	if len(merged) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(merged))
	}
	if merged[0].Content != "new content" {
		t.Errorf("Expected later-supplied item to win, got %q", merged[0].Content)
	}
}

func TestMerge_EmptyInputs(t *testing.T) {
	if got := Merge(nil, nil); len(got) != 0 {
		t.Errorf("Expected empty merge, got %d items", len(got))
	}

	only := []Item{item("a", 1)}
	if got := Merge(only, nil); len(got) != 1 {
		t.Errorf("Expected 1 item, got %d", len(got))
	}
	if got := Merge(nil, only); len(got) != 1 {
		t.Errorf("Expected 1 item, got %d", len(got))
	}
}

func TestSortByCreatedAtDesc(t *testing.T) {
	items := []Item{item("a", 100), item("c", 300), item("b", 200)}

	SortByCreatedAtDesc(items)

	for i := 0; i < len(items)-1; i++ {
		if items[i].CreatedAt < items[i+1].CreatedAt {
			t.Errorf("Sort invariant violated at %d: %d < %d", i, items[i].CreatedAt, items[i+1].CreatedAt)
		}
	}
	if items[0].ID != "c" {
		t.Errorf("Expected newest first, got %s", items[0].ID)
	}
}

func TestOldestTimestamp(t *testing.T) {
	if got := OldestTimestamp(nil); got != 0 {
		t.Errorf("Expected 0 for empty collection, got %d", got)
	}

	items := []Item{item("a", 300), item("b", 100), item("c", 200)}
	if got := OldestTimestamp(items); got != 100 {
		t.Errorf("Expected 100, got %d", got)
	}
}

func TestFromEvent_TextNote(t *testing.T) {
	ev := &nostr.Event{
		ID:        "event-id",
		PubKey:    "pubkey",
		Kind:      nostr.KindTextNote,
		Content:   "hello",
		CreatedAt: nostr.Timestamp(1234),
		Tags: nostr.Tags{
			{"e", "root-id", "", "root"},
			{"e", "parent-id", "", "reply"},
		},
	}

	it, ok := FromEvent(ev)
	if !ok {
		t.Fatal("Expected conversion to succeed")
	}
	if it.ID != "event-id" || it.AuthorID != "pubkey" || it.CreatedAt != 1234 {
		t.Errorf("Unexpected item: %+v", it)
	}
	if it.RootID != "root-id" || it.ReplyToID != "parent-id" {
		t.Errorf("Expected thread refs parsed, got root=%s reply=%s", it.RootID, it.ReplyToID)
	}
}

func TestFromEvents_SkipsBadEventsIndividually(t *testing.T) {
	events := []*nostr.Event{
		{ID: "good", PubKey: "pk", Kind: nostr.KindTextNote, CreatedAt: 1},
		{ID: "", PubKey: "pk", Kind: nostr.KindTextNote, CreatedAt: 2},
		nil,
		{ID: "wrong-kind", PubKey: "pk", Kind: nostr.KindProfileMetadata, CreatedAt: 3},
		{ID: "good2", PubKey: "pk", Kind: nostr.KindTextNote, CreatedAt: 4},
	}

	items := FromEvents(events)

	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if items[0].ID != "good" || items[1].ID != "good2" {
		t.Errorf("Unexpected items: %+v", items)
	}
}

func TestHashtags(t *testing.T) {
	it := Item{Tags: nostr.Tags{
		{"t", "Nostr"},
		{"t", "golang"},
		{"t", "nostr"},
		{"e", "some-event"},
		{"t", ""},
	}}

	tags := Hashtags(it)
	if len(tags) != 2 {
		t.Fatalf("Expected 2 unique hashtags, got %v", tags)
	}
	if tags[0] != "nostr" || tags[1] != "golang" {
		t.Errorf("Expected lowercased unique tags, got %v", tags)
	}
}

func TestAuthors(t *testing.T) {
	items := []Item{
		{ID: "a", AuthorID: "pk1"},
		{ID: "b", AuthorID: "pk2"},
		{ID: "c", AuthorID: "pk1"},
	}

	authors := Authors(items)
	if len(authors) != 2 {
		t.Fatalf("Expected 2 unique authors, got %v", authors)
	}
	if authors[0] != "pk1" || authors[1] != "pk2" {
		t.Errorf("Expected first-seen order, got %v", authors)
	}
}
