package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.listen", ":8787")
	v.SetDefault("server.json_logs", false)
	v.SetDefault("server.max_clients", 64)

	// Relay endpoint groups. Primary relays are well-operated high-uptime
	// relays; community relays skew toward travel/Madeira operators.
	v.SetDefault("relays.primary", []string{
		"wss://relay.damus.io",
		"wss://nos.lol",
		"wss://relay.primal.net",
	})
	v.SetDefault("relays.secondary", []string{
		"wss://relay.nostr.band",
		"wss://nostr.wine",
		"wss://relay.snort.social",
	})
	v.SetDefault("relays.backup", []string{
		"wss://offchain.pub",
		"wss://nostr.mom",
	})
	v.SetDefault("relays.community", []string{
		"wss://purplepag.es",
		"wss://nostr-pub.wellorder.net",
	})
	v.SetDefault("relays.initial_endpoints", 3)       // seed 2-4 prioritized endpoints
	v.SetDefault("relays.connect_timeout", "10s")     // overall bound, success on >=1
	v.SetDefault("relays.reconnect_interval", "5s")   // minimum gap between reconnects
	v.SetDefault("relays.health_interval", "10s")     // health monitor tick
	v.SetDefault("relays.error_throttle", "2m")       // per endpoint+message log window
	v.SetDefault("relays.max_tracked_endpoints", 50)

	// Cache policies per data class
	v.SetDefault("cache.profiles.ttl", "15m")
	v.SetDefault("cache.profiles.max_size", 300)
	v.SetDefault("cache.content.ttl", "5m")
	v.SetDefault("cache.content.max_size", 2000)
	v.SetDefault("cache.graphs.ttl", "10m")
	v.SetDefault("cache.graphs.max_size", 10)
	v.SetDefault("cache.images.ttl", "30m")
	v.SetDefault("cache.images.max_size", 150)
	v.SetDefault("cache.raw_events.ttl", "10m")
	v.SetDefault("cache.raw_events.max_size", 1500)
	v.SetDefault("cache.prune_every", "5m")

	// Fetch bounds
	v.SetDefault("fetch.query_timeout", "6s")
	v.SetDefault("fetch.profile_freshness", "5m")
	v.SetDefault("fetch.default_freshness", "2m")
	v.SetDefault("fetch.stale_window", "10m") // serve-stale-and-revalidate cutoff

	// Graph build caps
	v.SetDefault("graph.max_core_nodes", 25)
	v.SetDefault("graph.max_second_degree_nodes", 50)
	v.SetDefault("graph.max_nodes", 5000)
	v.SetDefault("graph.max_edges", 10000)
	v.SetDefault("graph.batch_size", 5)
	v.SetDefault("graph.batch_concurrency", 3)
	v.SetDefault("graph.expand_contact_limit", 30)

	// Trust scoring constants (empirically tuned, see TrustConfig)
	v.SetDefault("trust.mutual_weight", 3.0)
	v.SetDefault("trust.seed_bonus", 10.0)
	v.SetDefault("trust.follow_norm_low", 50)
	v.SetDefault("trust.follow_norm_high", 200)
	v.SetDefault("trust.follow_norm_max", 5.0)

	// Database defaults
	v.SetDefault("database.path", "madtrips.db")
}
