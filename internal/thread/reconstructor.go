package thread

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/plumefeed/plume/internal/cache"
	"github.com/plumefeed/plume/internal/config"
	"github.com/plumefeed/plume/internal/ops"
	"github.com/plumefeed/plume/internal/profile"
	"github.com/plumefeed/plume/internal/timeline"
)

// Source is the slice of the event source a thread needs
type Source interface {
	Query(ctx context.Context, filter nostr.Filter) ([]timeline.Item, error)
	Publish(ctx context.Context, content string, tags nostr.Tags) (*timeline.Item, error)
}

// Enricher resolves author metadata for a batch of items. Unlike feed
// enrichment this one is awaited: author names render inline the moment
// a thread appears.
type Enricher interface {
	EnrichItems(ctx context.Context, items []timeline.Item) (map[string]profile.Profile, error)
}

// Phase is the lifecycle stage of a thread view
type Phase string

const (
	PhaseInitial Phase = "initial"
	PhaseLoading Phase = "loading"
	PhaseLoaded  Phase = "loaded"
	PhaseError   Phase = "error"
)

// State is the observable state of one thread view
type State struct {
	Phase          Phase
	Root           *timeline.Item
	ParentChain    []timeline.Item // root down to, excluding, the target
	Entries        []FlattenedEntry
	Profiles       map[string]profile.Profile
	RepliesLoading bool
	ErrorMessage   string
}

// Observer receives state snapshots
type Observer func(State)

// Reconstructor rebuilds the thread around one target item: the root,
// the ancestor chain between root and target, and the full reply tree
// flattened for display. One instance per target id.
type Reconstructor struct {
	targetID string
	source   Source
	store    cache.Store
	enricher Enricher
	cfg      config.Threads
	ttl      time.Duration
	log      *ops.Logger

	mu          sync.Mutex
	state       State
	generation  uint64
	observers   []Observer
	notifyQueue []State
	notifying   bool
}

// NewReconstructor creates the reconstructor for one target item id
func NewReconstructor(targetID string, source Source, store cache.Store, enricher Enricher, cfg config.Threads, ttl time.Duration, log *ops.Logger) *Reconstructor {
	return &Reconstructor{
		targetID: targetID,
		source:   source,
		store:    store,
		enricher: enricher,
		cfg:      cfg,
		ttl:      ttl,
		log:      log.WithComponent("thread").WithFields("target", targetID),
		state:    State{Phase: PhaseInitial},
	}
}

// State returns a snapshot of the current state
func (r *Reconstructor) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

// Subscribe registers an observer and immediately delivers the current
// state to it
func (r *Reconstructor) Subscribe(fn Observer) {
	r.mu.Lock()
	r.observers = append(r.observers, fn)
	snapshot := r.state.clone()
	r.mu.Unlock()
	fn(snapshot)
}

// Load fetches and publishes the full thread. Blocking; the enrichment
// batch completes before the loaded state is published.
func (r *Reconstructor) Load(ctx context.Context) error {
	r.mu.Lock()
	r.generation++
	gen := r.generation
	if r.state.Phase != PhaseLoaded {
		r.state = State{Phase: PhaseLoading}
		r.publishLocked()
	}
	r.mu.Unlock()

	return r.reconstruct(ctx, gen, nil)
}

// LoadWithInitial publishes a known item as the thread root immediately,
// with replies still loading, then completes the reconstruction in the
// background. Avoids a loading spinner for data the caller already has.
func (r *Reconstructor) LoadWithInitial(ctx context.Context, initial timeline.Item) {
	r.mu.Lock()
	r.generation++
	gen := r.generation
	item := initial
	r.state = State{
		Phase:          PhaseLoaded,
		Root:           &item,
		RepliesLoading: true,
	}
	r.publishLocked()
	r.mu.Unlock()

	go func() {
		if err := r.reconstruct(ctx, gen, &initial); err != nil {
			r.log.Debug("thread reconstruction failed", "error", err)
		}
	}()
}

// PublishReply signs and submits a reply, then re-runs the full thread
// load so the view reflects the authoritative state. No optimistic
// insert. Returns false on publish failure; no automatic retry.
func (r *Reconstructor) PublishReply(ctx context.Context, content, replyToID, replyToAuthor, rootID, rootAuthor string) bool {
	tags := timeline.ReplyTags(replyToID, replyToAuthor, rootID, rootAuthor)

	if _, err := r.source.Publish(ctx, content, tags); err != nil {
		r.log.Warn("reply publish failed", "error", err)
		return false
	}

	if err := r.Load(ctx); err != nil {
		r.log.Debug("thread reload after reply failed", "error", err)
	}
	return true
}

// reconstruct performs the fetch-and-rebuild. initial, when non-nil, is
// the already-known target item from a two-phase load.
func (r *Reconstructor) reconstruct(ctx context.Context, gen uint64, initial *timeline.Item) error {
	target, err := r.fetchTarget(ctx, initial)
	if err != nil {
		r.fail(gen, err)
		return err
	}

	ancestors, err := r.walkAncestors(ctx, target)
	if err != nil {
		r.fail(gen, err)
		return err
	}

	root := target
	if len(ancestors) > 0 {
		root = ancestors[0]
	}

	descendants, err := r.fetchDescendants(ctx, root.ID)
	if err != nil {
		r.fail(gen, err)
		return err
	}

	all := timeline.Merge(append(ancestors, target), descendants)

	// Author names are shown inline immediately; wait for the batch
	profiles := map[string]profile.Profile{}
	if r.enricher != nil {
		withRoot := append([]timeline.Item{root}, all...)
		if resolved, err := r.enricher.EnrichItems(ctx, withRoot); err == nil {
			profiles = resolved
		}
	}

	tree := BuildTree(root, all)
	entries := Flatten(tree, r.cfg.MaxDisplayDepth)

	// Ancestor chain from root down to, but excluding, the target
	chain := make([]timeline.Item, 0, len(ancestors))
	chain = append(chain, ancestors...)

	r.mu.Lock()
	if gen != r.generation {
		r.mu.Unlock()
		return nil
	}
	rootCopy := root
	r.state = State{
		Phase:       PhaseLoaded,
		Root:        &rootCopy,
		ParentChain: chain,
		Entries:     entries,
		Profiles:    profiles,
	}
	r.publishLocked()
	r.mu.Unlock()

	r.persistAsync(ctx, root.ID, all)
	return nil
}

// fetchTarget resolves the target item, reusing a known copy if present
func (r *Reconstructor) fetchTarget(ctx context.Context, initial *timeline.Item) (timeline.Item, error) {
	if initial != nil && initial.ID == r.targetID {
		return *initial, nil
	}

	items, err := r.source.Query(ctx, nostr.Filter{
		IDs:   []string{r.targetID},
		Kinds: []int{nostr.KindTextNote},
		Limit: 1,
	})
	if err != nil {
		return timeline.Item{}, fmt.Errorf("failed to fetch thread target: %w", err)
	}
	if len(items) == 0 {
		return timeline.Item{}, fmt.Errorf("thread target not found: %s", r.targetID)
	}
	return items[0], nil
}

// walkAncestors follows ReplyToID edges from the target to the thread
// root and returns the chain ordered root-first, excluding the target.
// Already-visited ids stop the walk; reply edges point at older items so
// a revisit means malformed data, not a real cycle.
func (r *Reconstructor) walkAncestors(ctx context.Context, target timeline.Item) ([]timeline.Item, error) {
	chain := make([]timeline.Item, 0)
	visited := map[string]bool{target.ID: true}

	current := target
	for current.ReplyToID != "" && len(chain) < r.cfg.MaxAncestorWalk {
		if visited[current.ReplyToID] {
			break
		}
		visited[current.ReplyToID] = true

		items, err := r.source.Query(ctx, nostr.Filter{
			IDs:   []string{current.ReplyToID},
			Kinds: []int{nostr.KindTextNote},
			Limit: 1,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch ancestor: %w", err)
		}
		if len(items) == 0 {
			// Parent missing from every relay; treat what we have as root
			break
		}

		parent := items[0]
		chain = append([]timeline.Item{parent}, chain...)
		current = parent
	}

	return chain, nil
}

// fetchDescendants pulls every reply referencing the root
func (r *Reconstructor) fetchDescendants(ctx context.Context, rootID string) ([]timeline.Item, error) {
	items, err := r.source.Query(ctx, nostr.Filter{
		Kinds: []int{nostr.KindTextNote},
		Tags:  nostr.TagMap{"e": []string{rootID}},
		Limit: r.cfg.DescendantsLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thread replies: %w", err)
	}
	return items, nil
}

func (r *Reconstructor) fail(gen uint64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.generation {
		return
	}
	if r.state.Phase == PhaseLoaded && r.state.Root != nil {
		// Keep showing what we had
		r.state.RepliesLoading = false
	} else {
		r.state = State{Phase: PhaseError, ErrorMessage: err.Error()}
	}
	r.publishLocked()
}

// persistAsync caches the thread's item set; errors are swallowed
func (r *Reconstructor) persistAsync(ctx context.Context, rootID string, items []timeline.Item) {
	if r.store == nil {
		return
	}
	snapshot := make([]timeline.Item, len(items))
	copy(snapshot, items)

	go func() {
		if err := cache.SetJSON(ctx, r.store, cache.ThreadKey(rootID), snapshot, r.ttl); err != nil {
			r.log.Debug("thread cache write failed", "root", rootID, "error", err)
		}
	}()
}

func (s State) clone() State {
	out := s
	if s.Root != nil {
		root := *s.Root
		out.Root = &root
	}
	if s.ParentChain != nil {
		out.ParentChain = make([]timeline.Item, len(s.ParentChain))
		copy(out.ParentChain, s.ParentChain)
	}
	if s.Entries != nil {
		out.Entries = make([]FlattenedEntry, len(s.Entries))
		copy(out.Entries, s.Entries)
	}
	return out
}

func (r *Reconstructor) publishLocked() {
	snapshot := r.state.clone()
	r.notifyQueue = append(r.notifyQueue, snapshot)
	if !r.notifying {
		r.notifying = true
		go r.drainNotifications()
	}
}

func (r *Reconstructor) drainNotifications() {
	for {
		r.mu.Lock()
		if len(r.notifyQueue) == 0 {
			r.notifying = false
			r.mu.Unlock()
			return
		}
		snapshot := r.notifyQueue[0]
		r.notifyQueue = r.notifyQueue[1:]
		observers := make([]Observer, len(r.observers))
		copy(observers, r.observers)
		r.mu.Unlock()

		for _, fn := range observers {
			fn(snapshot)
		}
	}
}
