// Package fetch issues filtered queries against the relay pool, merges
// responses across whichever endpoints answer, and layers the raw-event
// cache with stale-while-revalidate semantics on top.
package fetch

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/zapabug/madtrips-sub000/cache"
	"github.com/zapabug/madtrips-sub000/config"
	"github.com/zapabug/madtrips-sub000/metrics"
	"github.com/zapabug/madtrips-sub000/nostr"
	"github.com/zapabug/madtrips-sub000/relay"
)

// Pool is the slice of the relay pool the fetcher depends on.
type Pool interface {
	Conns() []relay.Conn
	Reconnect(ctx context.Context) bool
}

// Fetcher resolves filters to merged event sets. It never returns an error
// to callers: partial data always beats a hard failure for this subsystem.
type Fetcher struct {
	pool     Pool
	rawCache *cache.Cache[[]*nostr.Event]
	cfg      config.FetchConfig
	logger   *zap.SugaredLogger

	group singleflight.Group // coalesces concurrent identical live fetches

	mu         sync.Mutex
	refreshing map[string]bool // keys with a detached refresh in flight

	// test hook, invoked after a background refresh completes
	onRefresh func(key string)
}

// New creates a fetcher over the given pool and raw-event cache.
func New(pool Pool, rawCache *cache.Cache[[]*nostr.Event], cfg config.FetchConfig, logger *zap.SugaredLogger) *Fetcher {
	return &Fetcher{
		pool:       pool,
		rawCache:   rawCache,
		cfg:        cfg,
		logger:     logger.Named("fetch"),
		refreshing: make(map[string]bool),
	}
}

// Key derives the cache key for a filter deterministically: equivalent
// filters collide on the same key regardless of construction order because
// identity and tag lists are sorted before joining.
func Key(f nostr.Filter) string {
	kinds := append([]int{}, f.Kinds...)
	sort.Ints(kinds)
	kindStrs := make([]string, len(kinds))
	for i, k := range kinds {
		kindStrs[i] = strconv.Itoa(k)
	}

	var b strings.Builder
	b.WriteString("kinds=")
	b.WriteString(strings.Join(kindStrs, ","))
	b.WriteString("|authors=")
	b.WriteString(strings.Join(nostr.DedupSorted(f.Authors), ","))
	b.WriteString("|p=")
	b.WriteString(strings.Join(nostr.DedupSorted(f.PTags), ","))
	return b.String()
}

// Fetch resolves a filter, preferring cache tiers over the network:
//
//	age <= freshness threshold   -> cached, no network
//	age <= stale window          -> cached now, detached refresh in background
//	otherwise                    -> live fetch
//
// forceFresh skips the cache entirely. The freshness threshold is looser for
// profile queries (profiles change rarely) than for contact lists and notes.
func (f *Fetcher) Fetch(ctx context.Context, filter nostr.Filter, forceFresh bool) []*nostr.Event {
	key := Key(filter)

	if !forceFresh {
		if cached, ok := f.rawCache.Get(key); ok {
			age, _ := f.rawCache.Age(key)
			if age <= f.freshness(filter) {
				return cached
			}
			if age <= f.cfg.StaleWindow {
				f.refreshInBackground(filter, key)
				return cached
			}
		}
	}

	events := f.fetchLive(ctx, filter)
	if events != nil {
		f.rawCache.Set(key, events)
	}
	return events
}

func (f *Fetcher) freshness(filter nostr.Filter) time.Duration {
	for _, k := range filter.Kinds {
		if k == nostr.KindProfileMetadata {
			return f.cfg.ProfileFreshness
		}
	}
	return f.cfg.DefaultFreshness
}

// refreshInBackground schedules a detached live fetch that silently updates
// the cache. At most one refresh per key is in flight; the serving caller is
// never blocked by it.
func (f *Fetcher) refreshInBackground(filter nostr.Filter, key string) {
	f.mu.Lock()
	if f.refreshing[key] {
		f.mu.Unlock()
		return
	}
	f.refreshing[key] = true
	f.mu.Unlock()

	go func() {
		defer func() {
			f.mu.Lock()
			delete(f.refreshing, key)
			f.mu.Unlock()
			if f.onRefresh != nil {
				f.onRefresh(key)
			}
		}()

		// Detached from the caller's context on purpose: the caller was
		// already served from cache.
		ctx, cancel := context.WithTimeout(context.Background(), f.cfg.QueryTimeout)
		defer cancel()

		if events := f.fetchLive(ctx, filter); events != nil {
			f.rawCache.Set(key, events)
			f.logger.Debugw("Background refresh completed", "key", key, "events", len(events))
		}
	}()
}

// fetchLive queries every connected endpoint, merging responses in
// completion order and deduplicating by event id. A total failure (no
// endpoints, or every endpoint erroring) triggers one reconnect and one
// retry before degrading to an empty result.
func (f *Fetcher) fetchLive(ctx context.Context, filter nostr.Filter) []*nostr.Event {
	key := Key(filter)
	result, _, _ := f.group.Do(key, func() (interface{}, error) {
		events, failed := f.queryAll(ctx, filter)
		if failed {
			f.logger.Debugw("All endpoints failed, reconnecting once", "key", key)
			f.pool.Reconnect(ctx)
			events, _ = f.queryAll(ctx, filter)
		}
		return events, nil
	})

	events, _ := result.([]*nostr.Event)
	return events
}

// queryAll fans one query out to every connected endpoint. failed is true
// only when zero endpoints produced a response at all.
func (f *Fetcher) queryAll(ctx context.Context, filter nostr.Filter) (events []*nostr.Event, failed bool) {
	conns := f.pool.Conns()
	if len(conns) == 0 {
		return nil, true
	}

	metrics.RelayQueries.Inc()
	ctx, cancel := context.WithTimeout(ctx, f.cfg.QueryTimeout)
	defer cancel()

	type response struct {
		events []*nostr.Event
		err    error
	}
	responses := make(chan response, len(conns))
	for _, conn := range conns {
		go func(conn relay.Conn) {
			evs, err := conn.Query(ctx, []nostr.Filter{filter})
			responses <- response{events: evs, err: err}
		}(conn)
	}

	seen := make(map[string]bool)
	merged := []*nostr.Event{}
	succeeded := 0
	for range conns {
		resp := <-responses
		if resp.err != nil {
			// Endpoint-level failure is absorbed; the pool throttles the
			// logging of repeated failures.
			continue
		}
		succeeded++
		for _, e := range resp.events {
			if !seen[e.ID] {
				seen[e.ID] = true
				merged = append(merged, e)
			}
		}
	}

	if succeeded == 0 {
		return nil, true
	}
	return merged, false
}
