package profile

import (
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/tidwall/gjson"
)

// Profile is the author metadata carried by a kind-0 event
type Profile struct {
	PubKey      string `json:"pubkey"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	About       string `json:"about,omitempty"`
	Picture     string `json:"picture,omitempty"`
	NIP05       string `json:"nip05,omitempty"`
	FetchedAt   int64  `json:"fetched_at"`
}

// FromEvent extracts a profile from a kind-0 metadata event. The content
// is JSON but frequently malformed in the wild, so fields are pulled
// individually and whatever parses is kept.
func FromEvent(ev *nostr.Event) (Profile, bool) {
	if ev == nil || ev.Kind != nostr.KindProfileMetadata || ev.PubKey == "" {
		return Profile{}, false
	}

	p := Profile{
		PubKey:      ev.PubKey,
		Name:        gjson.Get(ev.Content, "name").String(),
		DisplayName: gjson.Get(ev.Content, "display_name").String(),
		About:       gjson.Get(ev.Content, "about").String(),
		Picture:     gjson.Get(ev.Content, "picture").String(),
		NIP05:       gjson.Get(ev.Content, "nip05").String(),
		FetchedAt:   int64(ev.CreatedAt),
	}
	return p, true
}

// DisplayLabel returns the best available name for an author, falling
// back to a truncated npub when no metadata is known
func (p Profile) DisplayLabel() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Name != "" {
		return p.Name
	}
	return TruncatedLabel(p.PubKey)
}

// TruncatedLabel renders a pubkey as a short npub for display
func TruncatedLabel(pubkey string) string {
	npub, err := nip19.EncodePublicKey(pubkey)
	if err != nil {
		if len(pubkey) > 16 {
			return pubkey[:16] + "..."
		}
		return pubkey
	}
	if len(npub) > 16 {
		return npub[:16] + "..."
	}
	return npub
}
