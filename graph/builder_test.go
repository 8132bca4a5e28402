package graph

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zapabug/madtrips-sub000/cache"
	"github.com/zapabug/madtrips-sub000/config"
	"github.com/zapabug/madtrips-sub000/errors"
	"github.com/zapabug/madtrips-sub000/nostr"
	"github.com/zapabug/madtrips-sub000/trust"
)

var (
	idA = fmt.Sprintf("%064d", 1)
	idB = fmt.Sprintf("%064d", 2)
	idC = fmt.Sprintf("%064d", 3)
)

func pubkeyN(n int) string {
	return fmt.Sprintf("%064d", n)
}

var eventSeq int

func contactListEvent(author string, contacts ...string) *nostr.Event {
	eventSeq++
	tags := make([][]string, len(contacts))
	for i, c := range contacts {
		tags[i] = []string{"p", c}
	}
	return &nostr.Event{
		ID:        fmt.Sprintf("%064x", eventSeq),
		PubKey:    author,
		CreatedAt: 1700000000 + int64(eventSeq),
		Kind:      nostr.KindContactList,
		Tags:      tags,
	}
}

func profileEvent(author, name string) *nostr.Event {
	eventSeq++
	return &nostr.Event{
		ID:        fmt.Sprintf("%064x", eventSeq),
		PubKey:    author,
		CreatedAt: 1700000000 + int64(eventSeq),
		Kind:      nostr.KindProfileMetadata,
		Content:   fmt.Sprintf(`{"name":%q,"picture":"https://m.example/%s.png"}`, name, name),
	}
}

// fakeFetcher serves canned events, optionally with random completion
// jitter to exercise completion-order independence.
type fakeFetcher struct {
	mu      sync.Mutex
	events  []*nostr.Event
	jitter  time.Duration
	calls   int
	onFetch func(filter nostr.Filter)
}

func (f *fakeFetcher) Fetch(ctx context.Context, filter nostr.Filter, forceFresh bool) []*nostr.Event {
	f.mu.Lock()
	f.calls++
	events := append([]*nostr.Event{}, f.events...)
	jitter := f.jitter
	hook := f.onFetch
	f.mu.Unlock()

	if hook != nil {
		hook(filter)
	}

	if jitter > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(jitter))))
	}

	var out []*nostr.Event
	for _, e := range events {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testGraphConfig() config.GraphConfig {
	return config.GraphConfig{
		MaxCoreNodes:         25,
		MaxSecondDegreeNodes: 50,
		MaxNodes:             5000,
		MaxEdges:             10000,
		BatchSize:            5,
		BatchConcurrency:     3,
		ExpandContactLimit:   30,
	}
}

func newTestBuilder(t *testing.T, fetcher *fakeFetcher) *Builder {
	t.Helper()
	return newTestBuilderWithConfig(t, fetcher, testGraphConfig())
}

func newTestBuilderWithConfig(t *testing.T, fetcher *fakeFetcher, cfg config.GraphConfig) *Builder {
	t.Helper()
	graphs := cache.New[*SocialGraph]("graphs_test", 10*time.Minute, 10)
	scorer := trust.NewScorer(config.Default().Trust)
	return NewBuilder(fetcher, graphs, scorer, cfg, zap.NewNop().Sugar())
}

func findEdge(g *SocialGraph, source, target string) *FollowEdge {
	for i := range g.Edges {
		if g.Edges[i].Source == source && g.Edges[i].Target == target {
			return &g.Edges[i]
		}
	}
	return nil
}

func TestBuildScenarioWithExpansion(t *testing.T) {
	fetcher := &fakeFetcher{events: []*nostr.Event{
		contactListEvent(idA, idB, idC),
		contactListEvent(idB, idA, idC),
		contactListEvent(idC, idA),
	}}
	builder := newTestBuilder(t, fetcher)

	g, err := builder.Build(context.Background(), []string{idA, idB},
		Options{ShowSecondDegree: true})
	require.NoError(t, err)
	require.Len(t, g.Nodes, 3)

	// A<->B mutual from the core expansion alone.
	require.NotNil(t, findEdge(g, idA, idB))
	assert.Equal(t, EdgeMutual, findEdge(g, idA, idB).Kind)
	assert.Equal(t, mutualWeight, findEdge(g, idA, idB).Weight)
	assert.Equal(t, EdgeMutual, findEdge(g, idB, idA).Kind)

	// C's own list is not fetched during the core build: A->C and B->C
	// are still single direction.
	assert.Equal(t, EdgeFollows, findEdge(g, idA, idC).Kind)
	assert.Equal(t, EdgeFollows, findEdge(g, idB, idC).Kind)

	// On-demand expansion of C brings C->A in and upgrades A<->C.
	builder.ExpandNode(context.Background(), idC)
	expanded := builder.CurrentGraph()
	require.NotNil(t, expanded)

	require.NotNil(t, findEdge(expanded, idC, idA))
	assert.Equal(t, EdgeMutual, findEdge(expanded, idC, idA).Kind)
	assert.Equal(t, EdgeMutual, findEdge(expanded, idA, idC).Kind)
	assert.Equal(t, mutualWeight, findEdge(expanded, idA, idC).Weight)
	// B->C stays single direction: C does not follow B.
	assert.Equal(t, EdgeFollows, findEdge(expanded, idB, idC).Kind)
}

func TestBuildIdempotentAcrossCompletionOrder(t *testing.T) {
	seeds := []string{pubkeyN(1), pubkeyN(2), pubkeyN(3), pubkeyN(4), pubkeyN(5), pubkeyN(6)}
	var events []*nostr.Event
	for i, s := range seeds {
		events = append(events, contactListEvent(s, seeds[(i+1)%len(seeds)], pubkeyN(100+i)))
	}

	var snapshots []*SocialGraph
	for run := 0; run < 3; run++ {
		fetcher := &fakeFetcher{events: events, jitter: 5 * time.Millisecond}
		builder := newTestBuilder(t, fetcher)
		g, err := builder.Build(context.Background(), seeds, Options{ShowSecondDegree: true})
		require.NoError(t, err)
		snapshots = append(snapshots, g)
	}

	for i := 1; i < len(snapshots); i++ {
		assert.Equal(t, snapshots[0].Nodes, snapshots[i].Nodes, "run %d nodes differ", i)
		assert.Equal(t, snapshots[0].Edges, snapshots[i].Edges, "run %d edges differ", i)
	}
}

func TestMutualNeverMarkedOnSingleDirection(t *testing.T) {
	fetcher := &fakeFetcher{events: []*nostr.Event{
		contactListEvent(idA, idB),
	}}
	builder := newTestBuilder(t, fetcher)

	g, err := builder.Build(context.Background(), []string{idA, idB}, Options{})
	require.NoError(t, err)

	e := findEdge(g, idA, idB)
	require.NotNil(t, e)
	assert.Equal(t, EdgeFollows, e.Kind)
	assert.Equal(t, followWeight, e.Weight)
	assert.Nil(t, findEdge(g, idB, idA))
}

func TestSecondDegreeCapDropsExcessContacts(t *testing.T) {
	contacts := make([]string, 10)
	for i := range contacts {
		contacts[i] = pubkeyN(100 + i)
	}
	fetcher := &fakeFetcher{events: []*nostr.Event{
		contactListEvent(idA, contacts...),
	}}
	cfg := testGraphConfig()
	cfg.MaxSecondDegreeNodes = 3
	builder := newTestBuilderWithConfig(t, fetcher, cfg)

	g, err := builder.Build(context.Background(), []string{idA},
		Options{ShowSecondDegree: true, MaxSecondDegreeNodes: 3})
	require.NoError(t, err)

	// 1 core + 3 second degree; the rest dropped whole, no dangling edges.
	assert.Len(t, g.Nodes, 4)
	assert.Len(t, g.Edges, 3)
	for _, e := range g.Edges {
		assert.Equal(t, idA, e.Source)
	}
}

func TestSecondDegreeDisabledAddsNoStrangers(t *testing.T) {
	fetcher := &fakeFetcher{events: []*nostr.Event{
		contactListEvent(idA, idB, idC),
	}}
	builder := newTestBuilder(t, fetcher)

	g, err := builder.Build(context.Background(), []string{idA, idB}, Options{})
	require.NoError(t, err)

	assert.Len(t, g.Nodes, 2, "C is not added without second-degree expansion")
	assert.NotNil(t, findEdge(g, idA, idB))
	assert.Nil(t, findEdge(g, idA, idC))
}

func TestBuildServedFromCacheOnRepeat(t *testing.T) {
	fetcher := &fakeFetcher{events: []*nostr.Event{contactListEvent(idA, idB)}}
	builder := newTestBuilder(t, fetcher)

	_, err := builder.Build(context.Background(), []string{idA, idB}, Options{})
	require.NoError(t, err)
	callsAfterFirst := fetcher.callCount()

	// Same seeds in different order: same key, cache hit, no new fetches.
	_, err = builder.Build(context.Background(), []string{idB, idA}, Options{})
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, fetcher.callCount())
}

func TestBuildForceFreshBypassesGraphCache(t *testing.T) {
	fetcher := &fakeFetcher{events: []*nostr.Event{contactListEvent(idA, idB)}}
	builder := newTestBuilder(t, fetcher)

	_, err := builder.Build(context.Background(), []string{idA, idB}, Options{})
	require.NoError(t, err)
	callsAfterFirst := fetcher.callCount()

	_, err = builder.Build(context.Background(), []string{idA, idB}, Options{ForceFresh: true})
	require.NoError(t, err)
	assert.Greater(t, fetcher.callCount(), callsAfterFirst)
}

func TestBuildRejectsWhenNoValidSeeds(t *testing.T) {
	builder := newTestBuilder(t, &fakeFetcher{})

	_, err := builder.Build(context.Background(), []string{"garbage", "npub1zzz"}, Options{})
	assert.True(t, errors.Is(err, errors.ErrInvalidIdentity))
}

func TestBuildCapsCoreNodes(t *testing.T) {
	seeds := make([]string, 30)
	for i := range seeds {
		seeds[i] = pubkeyN(i + 1)
	}
	builder := newTestBuilder(t, &fakeFetcher{})

	g, err := builder.Build(context.Background(), seeds, Options{})
	require.NoError(t, err)
	assert.Equal(t, 25, g.CoreCount())
}

func TestBuildDegradesGracefullyOnNoData(t *testing.T) {
	builder := newTestBuilder(t, &fakeFetcher{}) // fetcher has nothing

	g, err := builder.Build(context.Background(), []string{idA, idB}, Options{ShowSecondDegree: true})
	require.NoError(t, err, "empty relays never abort a build")

	assert.Len(t, g.Nodes, 2, "bare nodes survive")
	assert.Empty(t, g.Edges)
	assert.Equal(t, PhaseDone, builder.Phase())
	for _, n := range g.Nodes {
		assert.Empty(t, n.DisplayName)
	}
}

func TestSecondDegreeProfilesFilledInBackground(t *testing.T) {
	fetcher := &fakeFetcher{events: []*nostr.Event{
		contactListEvent(idA, idC),
		profileEvent(idC, "carol"),
	}}
	builder := newTestBuilder(t, fetcher)

	filled := make(chan struct{})
	builder.onProfileFill = func() { close(filled) }

	var notified *SocialGraph
	var notifyMu sync.Mutex
	builder.OnGraphChange(func(g *SocialGraph) {
		notifyMu.Lock()
		notified = g
		notifyMu.Unlock()
	})

	g, err := builder.Build(context.Background(), []string{idA}, Options{ShowSecondDegree: true})
	require.NoError(t, err)

	// Second-degree node starts bare.
	for _, n := range g.Nodes {
		if n.ID == idC {
			assert.Empty(t, n.DisplayName)
		}
	}

	select {
	case <-filled:
	case <-time.After(2 * time.Second):
		t.Fatal("background profile fill never ran")
	}

	notifyMu.Lock()
	defer notifyMu.Unlock()
	require.NotNil(t, notified)
	var carol *IdentityNode
	for i := range notified.Nodes {
		if notified.Nodes[i].ID == idC {
			carol = &notified.Nodes[i]
		}
	}
	require.NotNil(t, carol)
	assert.Equal(t, "carol", carol.DisplayName)
	assert.NotEmpty(t, carol.AvatarURL)
}

func TestRelevanceScoresAppliedToNodes(t *testing.T) {
	fetcher := &fakeFetcher{events: []*nostr.Event{
		contactListEvent(idA, idB),
		contactListEvent(idB, idA),
	}}
	builder := newTestBuilder(t, fetcher)

	g, err := builder.Build(context.Background(), []string{idA, idB}, Options{})
	require.NoError(t, err)

	for _, n := range g.Nodes {
		assert.Greater(t, n.RelevanceScore, 0.0, "seed %s should be scored", n.ID)
	}
}

func TestBuildCanceledCallerDoesNotCorruptSharedState(t *testing.T) {
	fetcher := &fakeFetcher{events: []*nostr.Event{
		contactListEvent(idA, idB),
		contactListEvent(idB, idA),
	}}
	builder := newTestBuilder(t, fetcher)

	notifies := 0
	builder.OnGraphChange(func(*SocialGraph) { notifies++ })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The canceled caller gets its degraded snapshot back: the per-seed
	// merges were dropped, so nodes survive but edges do not.
	g, err := builder.Build(ctx, []string{idA, idB}, Options{})
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 2)
	assert.Empty(t, g.Edges)

	// Nothing shared was touched: no current graph, no notification.
	assert.Nil(t, builder.CurrentGraph())
	assert.Equal(t, 0, notifies)

	// A healthy caller rebuilds from nothing instead of being served the
	// canceled build's edge-less graph from the cache.
	healthy, err := builder.Build(context.Background(), []string{idA, idB}, Options{})
	require.NoError(t, err)
	require.NotNil(t, findEdge(healthy, idA, idB))
	assert.Equal(t, EdgeMutual, findEdge(healthy, idA, idB).Kind)
	assert.Equal(t, EdgeMutual, findEdge(healthy, idB, idA).Kind)
	assert.Equal(t, 1, notifies)
}

func TestContactListPhaseObservableWithSecondDegree(t *testing.T) {
	fetcher := &fakeFetcher{events: []*nostr.Event{
		contactListEvent(idA, idC),
	}}
	builder := newTestBuilder(t, fetcher)

	var phaseMu sync.Mutex
	var contactPhases []Phase
	fetcher.onFetch = func(filter nostr.Filter) {
		for _, k := range filter.Kinds {
			if k == nostr.KindContactList {
				phaseMu.Lock()
				contactPhases = append(contactPhases, builder.Phase())
				phaseMu.Unlock()
			}
		}
	}

	_, err := builder.Build(context.Background(), []string{idA}, Options{ShowSecondDegree: true})
	require.NoError(t, err)

	phaseMu.Lock()
	defer phaseMu.Unlock()
	require.NotEmpty(t, contactPhases)
	for _, p := range contactPhases {
		assert.Equal(t, PhaseFetchingContactLists, p,
			"expansion must not be announced before any contact list arrives")
	}
}

func TestExpandingPhaseStartsWithFirstStranger(t *testing.T) {
	builder := newTestBuilder(t, &fakeFetcher{})
	state := newGraphState(100, 100)
	state.addNode(IdentityNode{ID: idA, IsCoreNode: true})
	builder.phase.Store(int32(PhaseFetchingContactLists))

	opts := Options{ShowSecondDegree: true, MaxSecondDegreeNodes: 5}
	builder.mergeContacts(state, idA, []string{idC}, opts)
	assert.Equal(t, PhaseExpandingSecondDegree, builder.Phase())

	// With expansion off the phase is untouched.
	builder.phase.Store(int32(PhaseFetchingContactLists))
	other := newGraphState(100, 100)
	other.addNode(IdentityNode{ID: idA, IsCoreNode: true})
	builder.mergeContacts(other, idA, []string{idC}, Options{})
	assert.Equal(t, PhaseFetchingContactLists, builder.Phase())
}

func TestOnGraphChangeUnsubscribe(t *testing.T) {
	fetcher := &fakeFetcher{events: []*nostr.Event{contactListEvent(idA, idB)}}
	builder := newTestBuilder(t, fetcher)

	calls := 0
	unsubscribe := builder.OnGraphChange(func(*SocialGraph) { calls++ })
	unsubscribe()

	_, err := builder.Build(context.Background(), []string{idA, idB}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
}
