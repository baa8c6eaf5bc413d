package timeline

import (
	"github.com/nbd-wtf/go-nostr"
)

// ThreadRefs contains thread relationship information extracted from an
// event's e tags
type ThreadRefs struct {
	RootID     string   // The root item of the thread
	ReplyToID  string   // The direct parent being replied to
	MentionIDs []string // Other items referenced without thread meaning
}

// ParseThreadRefs extracts NIP-10 thread references from a tag set.
// The marked format (root/reply/mention markers) is preferred; the
// deprecated positional format is the fallback.
func ParseThreadRefs(tags nostr.Tags) ThreadRefs {
	eTags := make([]nostr.Tag, 0)
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == "e" {
			eTags = append(eTags, tag)
		}
	}

	if len(eTags) == 0 {
		// Not a reply, it's a root post
		return ThreadRefs{}
	}

	if hasMarkedTags(eTags) {
		return parseMarkedFormat(eTags)
	}

	return parsePositionalFormat(eTags)
}

// hasMarkedTags checks if any e tag carries a marker (root/reply/mention)
func hasMarkedTags(eTags []nostr.Tag) bool {
	for _, tag := range eTags {
		if len(tag) >= 4 && tag[3] != "" {
			return true
		}
	}
	return false
}

// parseMarkedFormat parses NIP-10 marked e tags (preferred format)
func parseMarkedFormat(eTags []nostr.Tag) ThreadRefs {
	refs := ThreadRefs{}

	for _, tag := range eTags {
		id := tag[1]
		marker := ""
		if len(tag) >= 4 {
			marker = tag[3]
		}

		switch marker {
		case "root":
			refs.RootID = id
		case "reply":
			refs.ReplyToID = id
		case "mention":
			refs.MentionIDs = append(refs.MentionIDs, id)
		default:
			// No marker - treat as mention
			refs.MentionIDs = append(refs.MentionIDs, id)
		}
	}

	// A reply directly to the root carries only the root marker
	if refs.RootID != "" && refs.ReplyToID == "" {
		refs.ReplyToID = refs.RootID
	}
	// A reply with no root marker roots at its parent
	if refs.ReplyToID != "" && refs.RootID == "" {
		refs.RootID = refs.ReplyToID
	}

	return refs
}

// parsePositionalFormat parses the deprecated positional e tag format
func parsePositionalFormat(eTags []nostr.Tag) ThreadRefs {
	refs := ThreadRefs{}

	switch len(eTags) {
	case 1:
		// Single e tag: reply to this item, which is also the root
		refs.RootID = eTags[0][1]
		refs.ReplyToID = eTags[0][1]

	case 2:
		// Two e tags: [root, reply]
		refs.RootID = eTags[0][1]
		refs.ReplyToID = eTags[1][1]

	default:
		// Many e tags: [root, ...mentions, reply]
		refs.RootID = eTags[0][1]
		refs.ReplyToID = eTags[len(eTags)-1][1]

		for i := 1; i < len(eTags)-1; i++ {
			refs.MentionIDs = append(refs.MentionIDs, eTags[i][1])
		}
	}

	return refs
}

// ReplyTags builds the NIP-10 tag set for a reply. When the reply target is
// the thread root, a single root marker is emitted. Author p tags are
// included for both the root and reply authors, deduplicated.
func ReplyTags(replyToID, replyToAuthor, rootID, rootAuthor string) nostr.Tags {
	tags := nostr.Tags{}

	if rootID == "" || rootID == replyToID {
		tags = append(tags, nostr.Tag{"e", replyToID, "", "root"})
	} else {
		tags = append(tags, nostr.Tag{"e", rootID, "", "root"})
		tags = append(tags, nostr.Tag{"e", replyToID, "", "reply"})
	}

	seen := map[string]bool{}
	for _, pk := range []string{rootAuthor, replyToAuthor} {
		if pk != "" && !seen[pk] {
			tags = append(tags, nostr.Tag{"p", pk})
			seen[pk] = true
		}
	}

	return tags
}
