package config

import "time"

// Config is the root madtrips configuration, loaded by Load().
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Relays   RelayConfig    `mapstructure:"relays"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Graph    GraphConfig    `mapstructure:"graph"`
	Trust    TrustConfig    `mapstructure:"trust"`
	Keys     KeysConfig     `mapstructure:"keys"`
	Database DatabaseConfig `mapstructure:"database"`
}

// ServerConfig controls the HTTP/WebSocket surface.
type ServerConfig struct {
	Listen     string `mapstructure:"listen"`
	JSONLogs   bool   `mapstructure:"json_logs"`
	MaxClients int    `mapstructure:"max_clients"`
}

// RelayConfig holds the endpoint groups and connection bounds for the pool.
// Groups are tried in tiers: primary first, then shuffled
// secondary/backup/community on reconnect, then the full union.
type RelayConfig struct {
	Primary   []string `mapstructure:"primary"`
	Secondary []string `mapstructure:"secondary"`
	Backup    []string `mapstructure:"backup"`
	Community []string `mapstructure:"community"`

	InitialEndpoints    int           `mapstructure:"initial_endpoints"`
	ConnectTimeout      time.Duration `mapstructure:"connect_timeout"`
	ReconnectInterval   time.Duration `mapstructure:"reconnect_interval"`
	HealthInterval      time.Duration `mapstructure:"health_interval"`
	ErrorThrottle       time.Duration `mapstructure:"error_throttle"`
	MaxTrackedEndpoints int           `mapstructure:"max_tracked_endpoints"`
}

// AllGroups returns the union of all endpoint groups, primary first,
// without duplicates.
func (r RelayConfig) AllGroups() []string {
	seen := make(map[string]bool)
	var all []string
	for _, group := range [][]string{r.Primary, r.Secondary, r.Backup, r.Community} {
		for _, url := range group {
			if !seen[url] {
				seen[url] = true
				all = append(all, url)
			}
		}
	}
	return all
}

// CachePolicy is the TTL/capacity pair for one named cache instance.
type CachePolicy struct {
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

// CacheConfig holds the per-instance policies plus the prune sweep interval.
type CacheConfig struct {
	Profiles   CachePolicy   `mapstructure:"profiles"`
	Content    CachePolicy   `mapstructure:"content"`
	Graphs     CachePolicy   `mapstructure:"graphs"`
	Images     CachePolicy   `mapstructure:"images"`
	RawEvents  CachePolicy   `mapstructure:"raw_events"`
	PruneEvery time.Duration `mapstructure:"prune_every"`
}

// FetchConfig bounds record fetches against the pool.
type FetchConfig struct {
	QueryTimeout     time.Duration `mapstructure:"query_timeout"`
	ProfileFreshness time.Duration `mapstructure:"profile_freshness"`
	DefaultFreshness time.Duration `mapstructure:"default_freshness"`
	StaleWindow      time.Duration `mapstructure:"stale_window"`
}

// GraphConfig caps graph builds.
type GraphConfig struct {
	MaxCoreNodes         int `mapstructure:"max_core_nodes"`
	MaxSecondDegreeNodes int `mapstructure:"max_second_degree_nodes"`
	MaxNodes             int `mapstructure:"max_nodes"`
	MaxEdges             int `mapstructure:"max_edges"`
	BatchSize            int `mapstructure:"batch_size"`
	BatchConcurrency     int `mapstructure:"batch_concurrency"`
	ExpandContactLimit   int `mapstructure:"expand_contact_limit"`
}

// TrustConfig holds the empirically tuned scoring constants. They are
// configuration rather than code on purpose: the weights were tuned against
// live data, not derived.
type TrustConfig struct {
	MutualWeight    float64 `mapstructure:"mutual_weight"`
	SeedBonus       float64 `mapstructure:"seed_bonus"`
	FollowNormLow   int     `mapstructure:"follow_norm_low"`
	FollowNormHigh  int     `mapstructure:"follow_norm_high"`
	FollowNormMax   float64 `mapstructure:"follow_norm_max"`
}

// KeysConfig carries the optional signing key for publishing follow updates.
// When SecretKey is empty, follow/unfollow operations report failure instead
// of publishing.
type KeysConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

// DatabaseConfig locates the seed-identity registry.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}
