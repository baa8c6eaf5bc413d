package timeline

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

func TestParseThreadRefs_MarkedFormat(t *testing.T) {
	tags := nostr.Tags{
		{"e", "root-event-id", "", "root"},
		{"e", "parent-event-id", "", "reply"},
		{"e", "mention-event-id", "", "mention"},
	}

	refs := ParseThreadRefs(tags)

	if refs.RootID != "root-event-id" {
		t.Errorf("Expected root 'root-event-id', got %s", refs.RootID)
	}
	if refs.ReplyToID != "parent-event-id" {
		t.Errorf("Expected reply 'parent-event-id', got %s", refs.ReplyToID)
	}
	if len(refs.MentionIDs) != 1 || refs.MentionIDs[0] != "mention-event-id" {
		t.Errorf("Expected mention 'mention-event-id', got %v", refs.MentionIDs)
	}
}

func TestParseThreadRefs_MarkedRootOnly(t *testing.T) {
	tags := nostr.Tags{
		{"e", "root-id", "", "root"},
	}

	refs := ParseThreadRefs(tags)

	if refs.RootID != "root-id" {
		t.Errorf("Expected root 'root-id', got %s", refs.RootID)
	}
	if refs.ReplyToID != "root-id" {
		t.Errorf("Expected direct reply to root, got %s", refs.ReplyToID)
	}
}

func TestParseThreadRefs_PositionalFormat_OneTag(t *testing.T) {
	tags := nostr.Tags{
		{"e", "parent-id"},
	}

	refs := ParseThreadRefs(tags)

	if refs.RootID != "parent-id" {
		t.Errorf("Expected root 'parent-id', got %s", refs.RootID)
	}
	if refs.ReplyToID != "parent-id" {
		t.Errorf("Expected reply 'parent-id', got %s", refs.ReplyToID)
	}
}

func TestParseThreadRefs_PositionalFormat_TwoTags(t *testing.T) {
	tags := nostr.Tags{
		{"e", "root-id"},
		{"e", "parent-id"},
	}

	refs := ParseThreadRefs(tags)

	if refs.RootID != "root-id" {
		t.Errorf("Expected root 'root-id', got %s", refs.RootID)
	}
	if refs.ReplyToID != "parent-id" {
		t.Errorf("Expected reply 'parent-id', got %s", refs.ReplyToID)
	}
}

func TestParseThreadRefs_PositionalFormat_ManyTags(t *testing.T) {
	tags := nostr.Tags{
		{"e", "root-id"},
		{"e", "mention-1"},
		{"e", "mention-2"},
		{"e", "parent-id"},
	}

	refs := ParseThreadRefs(tags)

	if refs.RootID != "root-id" {
		t.Errorf("Expected root 'root-id', got %s", refs.RootID)
	}
	if refs.ReplyToID != "parent-id" {
		t.Errorf("Expected reply 'parent-id', got %s", refs.ReplyToID)
	}
	if len(refs.MentionIDs) != 2 {
		t.Errorf("Expected 2 mentions, got %v", refs.MentionIDs)
	}
}

func TestParseThreadRefs_NotAReply(t *testing.T) {
	refs := ParseThreadRefs(nostr.Tags{{"p", "some-pubkey"}})

	if refs.RootID != "" || refs.ReplyToID != "" {
		t.Errorf("Expected no thread refs for a root post, got %+v", refs)
	}
}

func TestReplyTags_ReplyToNestedItem(t *testing.T) {
	tags := ReplyTags("parent-id", "parent-author", "root-id", "root-author")

	if len(tags) != 4 {
		t.Fatalf("Expected 4 tags, got %d: %v", len(tags), tags)
	}
	if tags[0][0] != "e" || tags[0][1] != "root-id" || tags[0][3] != "root" {
		t.Errorf("Expected root marker first, got %v", tags[0])
	}
	if tags[1][0] != "e" || tags[1][1] != "parent-id" || tags[1][3] != "reply" {
		t.Errorf("Expected reply marker, got %v", tags[1])
	}
	if tags[2][0] != "p" || tags[2][1] != "root-author" {
		t.Errorf("Expected root author p tag, got %v", tags[2])
	}
	if tags[3][0] != "p" || tags[3][1] != "parent-author" {
		t.Errorf("Expected parent author p tag, got %v", tags[3])
	}
}

func TestReplyTags_ReplyDirectlyToRootCollapses(t *testing.T) {
	tags := ReplyTags("root-id", "root-author", "root-id", "root-author")

	eTags := 0
	pTags := 0
	for _, tag := range tags {
		switch tag[0] {
		case "e":
			eTags++
			if tag[3] != "root" {
				t.Errorf("Expected single root marker, got %v", tag)
			}
		case "p":
			pTags++
		}
	}
	if eTags != 1 {
		t.Errorf("Expected exactly one e tag, got %d", eTags)
	}
	if pTags != 1 {
		t.Errorf("Expected deduplicated p tags, got %d", pTags)
	}
}
