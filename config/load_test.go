package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsUnmarshal(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)

	assert.Equal(t, 3, cfg.Relays.InitialEndpoints)
	assert.Equal(t, 10*time.Second, cfg.Relays.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.Relays.ReconnectInterval)
	assert.Equal(t, 2*time.Minute, cfg.Relays.ErrorThrottle)

	assert.Equal(t, 15*time.Minute, cfg.Cache.Profiles.TTL)
	assert.Equal(t, 300, cfg.Cache.Profiles.MaxSize)
	assert.Equal(t, 10, cfg.Cache.Graphs.MaxSize)
	assert.Equal(t, 1500, cfg.Cache.RawEvents.MaxSize)

	assert.Equal(t, 25, cfg.Graph.MaxCoreNodes)
	assert.Equal(t, 5000, cfg.Graph.MaxNodes)
	assert.Equal(t, 3.0, cfg.Trust.MutualWeight)
}

func TestAllGroupsDeduplicates(t *testing.T) {
	r := RelayConfig{
		Primary:   []string{"wss://a", "wss://b"},
		Secondary: []string{"wss://b", "wss://c"},
		Community: []string{"wss://a"},
	}

	all := r.AllGroups()
	assert.Equal(t, []string{"wss://a", "wss://b", "wss://c"}, all)
}

func TestAllGroupsKeepsPrimaryFirst(t *testing.T) {
	cfg := Default()
	all := cfg.Relays.AllGroups()
	require.NotEmpty(t, all)
	assert.Equal(t, cfg.Relays.Primary[0], all[0])
}
