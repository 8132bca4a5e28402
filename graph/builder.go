package graph

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/zapabug/madtrips-sub000/cache"
	"github.com/zapabug/madtrips-sub000/config"
	"github.com/zapabug/madtrips-sub000/errors"
	"github.com/zapabug/madtrips-sub000/metrics"
	"github.com/zapabug/madtrips-sub000/nostr"
	"github.com/zapabug/madtrips-sub000/trust"
)

// Fetcher is the slice of the record fetcher the builder depends on.
type Fetcher interface {
	Fetch(ctx context.Context, filter nostr.Filter, forceFresh bool) []*nostr.Event
}

// Options tunes one build. Zero values fall back to the configured defaults.
type Options struct {
	MaxCoreNodes         int
	ShowSecondDegree     bool
	MaxSecondDegreeNodes int
	// ForceFresh skips the graph cache (manual refresh, seed registration).
	ForceFresh bool
}

// Builder assembles social graphs from contact-list and profile records.
// Concurrent Build calls for the same key are coalesced onto one in-flight
// computation; every caller receives the shared result.
type Builder struct {
	fetcher Fetcher
	graphs  *cache.Cache[*SocialGraph]
	scorer  *trust.Scorer
	cfg     config.GraphConfig
	logger  *zap.SugaredLogger

	group singleflight.Group
	phase atomic.Int32

	mu           sync.Mutex
	state        *graphState
	contactLists map[string][]string
	seeds        []string
	buildKey     string
	expanding    bool

	subMu   sync.Mutex
	subs    map[int]func(*SocialGraph)
	nextSub int

	// test hook, invoked after the detached second-degree profile fill
	onProfileFill func()
}

// NewBuilder creates a graph builder over the given collaborators.
func NewBuilder(fetcher Fetcher, graphs *cache.Cache[*SocialGraph], scorer *trust.Scorer, cfg config.GraphConfig, logger *zap.SugaredLogger) *Builder {
	return &Builder{
		fetcher:      fetcher,
		graphs:       graphs,
		scorer:       scorer,
		cfg:          cfg,
		logger:       logger.Named("graph.builder"),
		contactLists: make(map[string][]string),
		subs:         make(map[int]func(*SocialGraph)),
	}
}

// Phase returns the current build phase for status displays.
func (b *Builder) Phase() Phase {
	return Phase(b.phase.Load())
}

// BuildKey derives the graph cache key from the sorted seed list and the
// second-degree flag: equivalent requests collide regardless of seed order.
func BuildKey(seeds []string, showSecondDegree bool) string {
	return "seeds=" + strings.Join(nostr.DedupSorted(seeds), ",") +
		"|2nd=" + strconv.FormatBool(showSecondDegree)
}

// Build assembles the graph for the given seed identities. Seeds may be
// npub or hex; malformed ones are rejected up front. The build never aborts
// on partial data: missing profiles leave bare nodes, missing contact lists
// leave nodes without edges.
func (b *Builder) Build(ctx context.Context, seedInputs []string, opts Options) (*SocialGraph, error) {
	opts = b.withDefaults(opts)

	seeds := make([]string, 0, len(seedInputs))
	for _, input := range seedInputs {
		id, err := nostr.NormalizeIdentity(input)
		if err != nil {
			b.logger.Debugw("Rejecting malformed seed", "input", input)
			continue
		}
		seeds = append(seeds, id)
	}
	if len(seeds) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidIdentity, "no valid seed identities")
	}
	seeds = nostr.DedupSorted(seeds)
	if len(seeds) > opts.MaxCoreNodes {
		seeds = seeds[:opts.MaxCoreNodes]
	}

	key := BuildKey(seeds, opts.ShowSecondDegree)

	result, _, shared := b.group.Do(key, func() (interface{}, error) {
		if !opts.ForceFresh {
			if cached, ok := b.graphs.Get(key); ok {
				metrics.GraphBuilds.WithLabelValues("cached").Inc()
				return cached, nil
			}
		}
		metrics.GraphBuilds.WithLabelValues("built").Inc()
		return b.doBuild(ctx, seeds, opts, key), nil
	})
	if shared {
		metrics.GraphBuilds.WithLabelValues("coalesced").Inc()
	}
	return result.(*SocialGraph), nil
}

func (b *Builder) withDefaults(opts Options) Options {
	if opts.MaxCoreNodes <= 0 {
		opts.MaxCoreNodes = b.cfg.MaxCoreNodes
	}
	if opts.MaxSecondDegreeNodes <= 0 {
		opts.MaxSecondDegreeNodes = b.cfg.MaxSecondDegreeNodes
	}
	return opts
}

// doBuild runs the build pipeline:
//
//	FetchingSeedProfiles -> FetchingContactLists -> MergingGraph -> Done
//
// with the second-degree profile fill detached after Done.
func (b *Builder) doBuild(ctx context.Context, seeds []string, opts Options, key string) *SocialGraph {
	defer b.phase.Store(int32(PhaseDone))
	started := time.Now()

	state := newGraphState(b.cfg.MaxNodes, b.cfg.MaxEdges)
	contactLists := make(map[string][]string)

	// Seed profiles: one query for all seeds, best effort. Absent metadata
	// leaves a bare node, not an error.
	b.phase.Store(int32(PhaseFetchingSeedProfiles))
	profiles := b.fetchProfiles(ctx, seeds)
	for _, seed := range seeds {
		node := IdentityNode{ID: seed, IsCoreNode: true}
		if p, ok := profiles[seed]; ok {
			node.DisplayName = displayName(p)
			node.AvatarURL = p.Picture
		}
		state.addNode(node)
	}

	// Contact lists: batches processed strictly sequentially, bounded
	// concurrency inside each batch. Results merge in completion order,
	// which the id-keyed dedup makes safe.
	b.phase.Store(int32(PhaseFetchingContactLists))
	var mergeMu sync.Mutex
	for _, batch := range chunk(seeds, b.cfg.BatchSize) {
		g, batchCtx := errgroup.WithContext(ctx)
		g.SetLimit(b.cfg.BatchConcurrency)
		for _, seed := range batch {
			seed := seed
			g.Go(func() error {
				contacts := b.fetchContacts(batchCtx, seed)
				if contacts == nil {
					return nil
				}
				if batchCtx.Err() != nil {
					// Caller gave up; drop the result instead of merging
					// into state it no longer wants.
					return nil
				}
				mergeMu.Lock()
				defer mergeMu.Unlock()
				contactLists[seed] = contacts
				b.mergeContacts(state, seed, contacts, opts)
				return nil
			})
		}
		_ = g.Wait()
	}

	b.phase.Store(int32(PhaseMergingGraph))
	state.markMutuals()
	state.applyScores(b.scorer.Score(contactLists, seeds))

	snap := state.snapshot(time.Now())

	if ctx.Err() != nil {
		// The caller gave up mid-build, so the per-seed merges above were
		// dropped and this snapshot is degraded. Hand it back without
		// touching the shared cache, the current graph, or subscribers: the
		// next healthy Build must start from nothing, not from this.
		b.logger.Debugw("Graph build canceled, dropping result",
			"seeds", len(seeds),
			"nodes", len(snap.Nodes),
			"edges", len(snap.Edges),
		)
		return snap
	}

	b.graphs.Set(key, snap)

	b.mu.Lock()
	b.state = state
	b.contactLists = contactLists
	b.seeds = seeds
	b.buildKey = key
	b.mu.Unlock()

	b.logger.Infow("Graph build complete",
		"seeds", len(seeds),
		"nodes", len(snap.Nodes),
		"edges", len(snap.Edges),
		"second_degree", opts.ShowSecondDegree,
		"took", time.Since(started),
	)

	b.notify(snap)
	go b.fillSecondDegreeProfiles(key)
	return snap
}

// mergeContacts folds one identity's contact list into the graph. Known
// contacts gain an edge only; unknown ones become second-degree nodes while
// the cap allows, and are silently dropped after (no node, no edge).
func (b *Builder) mergeContacts(state *graphState, seed string, contacts []string, opts Options) {
	for _, contact := range contacts {
		if state.node(contact) != nil {
			state.addEdge(seed, contact)
			continue
		}
		if !opts.ShowSecondDegree || state.secondDegree >= opts.MaxSecondDegreeNodes {
			continue
		}
		if state.secondDegree == 0 {
			// First stranger entering the graph marks the start of the
			// expansion phase.
			b.phase.Store(int32(PhaseExpandingSecondDegree))
		}
		// Lazily created without profile data; a background pass fills
		// names and avatars in later.
		if state.addNode(IdentityNode{ID: contact, IsSecondDegree: true}) {
			state.addEdge(seed, contact)
		}
	}
}

// fetchProfiles queries kind-0 metadata for a set of identities and returns
// the newest decoded profile per identity.
func (b *Builder) fetchProfiles(ctx context.Context, ids []string) map[string]nostr.ProfileRecord {
	events := b.fetcher.Fetch(ctx, nostr.Filter{
		Kinds:   []int{nostr.KindProfileMetadata},
		Authors: ids,
		Limit:   len(ids) * 2,
	}, false)

	profiles := make(map[string]nostr.ProfileRecord)
	for id, ev := range nostr.LatestByAuthor(events) {
		rec, err := nostr.Decode(ev)
		if err != nil {
			b.logger.Debugw("Skipping malformed profile event", "pubkey", id)
			continue
		}
		if p, ok := rec.(nostr.ProfileRecord); ok {
			profiles[id] = p
		}
	}
	return profiles
}

// fetchContacts returns the contacts from one identity's most recent
// contact list, or nil if none could be fetched. Older contact lists still
// floating around slower relays are ignored.
func (b *Builder) fetchContacts(ctx context.Context, id string) []string {
	events := b.fetcher.Fetch(ctx, nostr.Filter{
		Kinds:   []int{nostr.KindContactList},
		Authors: []string{id},
	}, false)

	ev, ok := nostr.LatestByAuthor(events)[id]
	if !ok {
		return nil
	}
	rec, err := nostr.Decode(ev)
	if err != nil {
		b.logger.Debugw("Skipping malformed contact list", "pubkey", id)
		return nil
	}
	cl, ok := rec.(nostr.ContactListRecord)
	if !ok {
		return nil
	}
	return cl.Contacts
}

// fillSecondDegreeProfiles back-fills names and avatars for nodes created
// bare during expansion: batches of 5, sequential, fully detached from the
// build that spawned it. Consumers hear about the update via OnGraphChange.
func (b *Builder) fillSecondDegreeProfiles(key string) {
	defer func() {
		if b.onProfileFill != nil {
			b.onProfileFill()
		}
	}()

	b.mu.Lock()
	var missing []string
	if b.state != nil {
		for i := 0; i < b.state.nodes.Len(); i++ {
			n := b.state.nodes.At(i)
			if n.IsSecondDegree && n.DisplayName == "" {
				missing = append(missing, n.ID)
			}
		}
	}
	b.mu.Unlock()
	if len(missing) == 0 {
		return
	}

	filled := 0
	for _, batch := range chunk(missing, b.cfg.BatchSize) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		profiles := b.fetchProfiles(ctx, batch)
		cancel()

		b.mu.Lock()
		if b.state == nil || b.buildKey != key {
			// A newer build replaced this graph; results are stale.
			b.mu.Unlock()
			return
		}
		for id, p := range profiles {
			if n := b.state.node(id); n != nil {
				n.DisplayName = displayName(p)
				n.AvatarURL = p.Picture
				filled++
			}
		}
		b.mu.Unlock()
	}
	if filled == 0 {
		return
	}

	b.mu.Lock()
	snap := b.state.snapshot(time.Now())
	b.mu.Unlock()
	b.graphs.Set(key, snap)
	b.notify(snap)
	b.logger.Debugw("Second-degree profile fill complete", "filled", filled)
}

// CurrentGraph returns a snapshot of the most recently built graph, or nil
// if nothing has been built yet.
func (b *Builder) CurrentGraph() *SocialGraph {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == nil {
		return nil
	}
	return b.state.snapshot(time.Now())
}

// Reset discards the assembled graph and its cache entries. Used by manual
// refresh: the next Build starts from nothing.
func (b *Builder) Reset() {
	b.mu.Lock()
	b.state = nil
	b.contactLists = make(map[string][]string)
	b.seeds = nil
	b.buildKey = ""
	b.mu.Unlock()
	b.graphs.Clear()
}

// OnGraphChange registers an observer for graph updates (builds, expansion,
// background profile fills) and returns its unsubscribe function.
func (b *Builder) OnGraphChange(fn func(*SocialGraph)) func() {
	b.subMu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	b.subMu.Unlock()

	return func() {
		b.subMu.Lock()
		delete(b.subs, id)
		b.subMu.Unlock()
	}
}

func (b *Builder) notify(g *SocialGraph) {
	b.subMu.Lock()
	fns := make([]func(*SocialGraph), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.subMu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Warnw("Graph observer panicked", "panic", r)
				}
			}()
			fn(g)
		}()
	}
}

func displayName(p nostr.ProfileRecord) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

func chunk(items []string, size int) [][]string {
	if size <= 0 {
		size = len(items)
	}
	var out [][]string
	for len(items) > 0 {
		n := size
		if n > len(items) {
			n = len(items)
		}
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}
