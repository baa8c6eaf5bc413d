package feed

import (
	"github.com/plumefeed/plume/internal/timeline"
)

// Phase is the lifecycle stage of a feed
type Phase string

const (
	PhaseInitial Phase = "initial"
	PhaseLoading Phase = "loading"
	PhaseLoaded  Phase = "loaded"
	PhaseError   Phase = "error"
)

// State is the observable state of one logical feed. It is mutated only
// by the owning Synchronizer; observers receive defensive copies.
//
// Invariants: OldestTimestamp equals the minimum CreatedAt over Items
// whenever Items is non-empty, and HasMore=false is sticky until a full
// refresh resets it.
type State struct {
	Phase                    Phase
	Items                    []timeline.Item
	IsLoadingMore            bool
	HasMore                  bool
	OldestTimestamp          int64
	IsRefreshingInBackground bool
	PendingItems             []timeline.Item
	PendingCount             int
	ErrorMessage             string
}

// clone returns a deep-enough copy for handing to observers
func (s State) clone() State {
	out := s
	if s.Items != nil {
		out.Items = make([]timeline.Item, len(s.Items))
		copy(out.Items, s.Items)
	}
	if s.PendingItems != nil {
		out.PendingItems = make([]timeline.Item, len(s.PendingItems))
		copy(out.PendingItems, s.PendingItems)
	}
	return out
}
