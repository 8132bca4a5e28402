package commands

import (
	"context"
	"database/sql"
	"time"

	"github.com/spf13/cobra"

	"github.com/zapabug/madtrips-sub000/cache"
	"github.com/zapabug/madtrips-sub000/config"
	"github.com/zapabug/madtrips-sub000/feed"
	"github.com/zapabug/madtrips-sub000/fetch"
	"github.com/zapabug/madtrips-sub000/graph"
	"github.com/zapabug/madtrips-sub000/logger"
	"github.com/zapabug/madtrips-sub000/media"
	"github.com/zapabug/madtrips-sub000/nostr"
	"github.com/zapabug/madtrips-sub000/relay"
	"github.com/zapabug/madtrips-sub000/social"
	"github.com/zapabug/madtrips-sub000/store"
	"github.com/zapabug/madtrips-sub000/trust"
)

// app is the assembled engine: every component constructed once and handed
// its collaborators explicitly.
type app struct {
	cfg     *config.Config
	pool    *relay.Pool
	fetcher *fetch.Fetcher
	builder *graph.Builder
	social  *social.Manager
	feed    *feed.Service
	avatars *media.Avatars
	seeds   *store.SeedStore
	db      *sql.DB

	graphs   *cache.Cache[*graph.SocialGraph]
	raw      *cache.Cache[[]*nostr.Event]
	profiles *cache.Cache[nostr.ProfileRecord]
	notes    *cache.Cache[[]nostr.ContentRecord]
	images   *cache.Cache[media.Image]
}

// loadConfig resolves configuration for a command: an explicit --config path
// wins, otherwise the default search (working directory, ~/.config/madtrips,
// environment).
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// newApp wires the engine. withStore controls whether the SQLite seed
// registry is opened; one-shot commands that take seeds on the command line
// skip it.
func newApp(cfg *config.Config, withStore bool) (*app, error) {
	log := logger.Logger

	a := &app{
		cfg:      cfg,
		graphs:   cache.New[*graph.SocialGraph]("graphs", cfg.Cache.Graphs.TTL, cfg.Cache.Graphs.MaxSize),
		raw:      cache.New[[]*nostr.Event]("raw_events", cfg.Cache.RawEvents.TTL, cfg.Cache.RawEvents.MaxSize),
		profiles: cache.New[nostr.ProfileRecord]("profiles", cfg.Cache.Profiles.TTL, cfg.Cache.Profiles.MaxSize),
		notes:    cache.New[[]nostr.ContentRecord]("content", cfg.Cache.Content.TTL, cfg.Cache.Content.MaxSize),
		images:   cache.New[media.Image]("images", cfg.Cache.Images.TTL, cfg.Cache.Images.MaxSize),
	}

	a.pool = relay.NewPool(cfg.Relays, relay.DialWebsocket, log)
	a.fetcher = fetch.New(a.pool, a.raw, cfg.Fetch, log)

	scorer := trust.NewScorer(cfg.Trust)
	a.builder = graph.NewBuilder(a.fetcher, a.graphs, scorer, cfg.Graph, log)

	a.social = social.NewManager(a.fetcher, a.pool, cfg.Keys, a.builder.Reset, log)
	a.feed = feed.New(a.fetcher, a.profiles, a.notes, log)
	a.avatars = media.New(a.images, log)

	if withStore {
		db, err := store.Open(cfg.Database.Path, log)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.seeds = store.NewSeedStore(db, log)
	}
	return a, nil
}

// start connects the pool and launches the background loops: relay health
// monitoring and cache pruning. Returns once at least an attempt to connect
// has been made; a fully dead relay set degrades to reconnect attempts, not
// a startup failure.
func (a *app) start(ctx context.Context) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	a.pool.Initialize(connectCtx)
	cancel()

	go a.pool.Run(ctx)
	go cache.RunPruner(ctx, a.cfg.Cache.PruneEvery, logger.Logger, a.graphs, a.raw, a.profiles, a.notes, a.images)
}

func (a *app) close() {
	a.pool.Close()
	if a.db != nil {
		a.db.Close()
	}
}
