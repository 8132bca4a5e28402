// Package social implements follow-list mutations: reading an identity's
// contact list and publishing signed updates to it. Every operation is best
// effort and returns a plain success flag; a missing key, an empty pool, or
// a rejecting relay degrades to false, never a panic or a partial write.
package social

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zapabug/madtrips-sub000/config"
	"github.com/zapabug/madtrips-sub000/nostr"
	"github.com/zapabug/madtrips-sub000/relay"
)

// Fetcher is the slice of the record fetcher follow operations depend on.
type Fetcher interface {
	Fetch(ctx context.Context, filter nostr.Filter, forceFresh bool) []*nostr.Event
}

// Publisher is the slice of the relay pool follow operations depend on.
type Publisher interface {
	Publish(ctx context.Context, publish func(ctx context.Context, c relay.Conn) error) int
}

// Manager mutates contact lists on behalf of the configured identity.
type Manager struct {
	fetcher Fetcher
	pool    Publisher
	logger  *zap.SugaredLogger

	secretKey string
	pubKey    string // derived from secretKey; empty when unsigned

	// invalidate is called after a successful publish so stale graphs are
	// rebuilt rather than served.
	invalidate func()

	now func() time.Time
}

// NewManager creates a follow manager. When cfg carries no secret key the
// manager is read-only: IsFollowing and Following work, mutations report
// failure. invalidate may be nil.
func NewManager(fetcher Fetcher, pool Publisher, cfg config.KeysConfig, invalidate func(), logger *zap.SugaredLogger) *Manager {
	m := &Manager{
		fetcher:    fetcher,
		pool:       pool,
		logger:     logger.Named("social"),
		secretKey:  cfg.SecretKey,
		invalidate: invalidate,
		now:        time.Now,
	}
	if cfg.SecretKey != "" {
		pub, err := nostr.PubKeyFromSecret(cfg.SecretKey)
		if err != nil {
			m.logger.Warnw("Configured secret key is unusable, follow operations disabled")
			m.secretKey = ""
		} else {
			m.pubKey = pub
		}
	}
	return m
}

// Follow adds to to from's contact list and publishes the updated list.
// Already-following is success. Returns false when from is not the
// configured identity, no key is configured, or no relay accepts the event.
func (m *Manager) Follow(ctx context.Context, from, to string) bool {
	return m.mutate(ctx, from, to, true)
}

// Unfollow removes to from from's contact list and publishes the updated
// list. Not-following is success.
func (m *Manager) Unfollow(ctx context.Context, from, to string) bool {
	return m.mutate(ctx, from, to, false)
}

// IsFollowing reports whether from's latest known contact list contains to.
// Read-only; served from cache when fresh.
func (m *Manager) IsFollowing(ctx context.Context, from, to string) bool {
	from, to, ok := m.normalizePair(from, to)
	if !ok {
		return false
	}
	for _, c := range m.following(ctx, from, false) {
		if c == to {
			return true
		}
	}
	return false
}

// Following returns from's latest known contact list, nil when none exists.
func (m *Manager) Following(ctx context.Context, from string) []string {
	id, err := nostr.NormalizeIdentity(from)
	if err != nil {
		return nil
	}
	return m.following(ctx, id, false)
}

func (m *Manager) mutate(ctx context.Context, from, to string, add bool) bool {
	from, to, ok := m.normalizePair(from, to)
	if !ok {
		return false
	}
	if m.secretKey == "" {
		m.logger.Debugw("Follow mutation without a configured key", "from", from)
		return false
	}
	if from != m.pubKey {
		m.logger.Warnw("Follow mutation for an identity we cannot sign for", "from", from)
		return false
	}
	if from == to {
		return false
	}

	// Mutate against the freshest list we can get: a stale base would
	// silently drop follows added elsewhere since our cache filled.
	prev := m.latestContactList(ctx, from, true)

	tags, changed := rewriteContactTags(prev, to, add)
	if !changed {
		return true
	}

	ev := &nostr.Event{
		CreatedAt: m.now().Unix(),
		Kind:      nostr.KindContactList,
		Tags:      tags,
	}
	if prev != nil {
		// NIP-02 allows relay hints in content; carry them forward.
		ev.Content = prev.Content
	}
	if err := ev.Sign(m.secretKey); err != nil {
		m.logger.Errorw("Failed to sign contact list", "error", err)
		return false
	}

	accepted := m.pool.Publish(ctx, func(ctx context.Context, c relay.Conn) error {
		return c.Publish(ctx, ev)
	})
	if accepted == 0 {
		m.logger.Warnw("No relay accepted contact list update", "from", from)
		return false
	}

	m.logger.Infow("Contact list updated",
		"from", from, "target", to, "add", add, "accepted", accepted)
	if m.invalidate != nil {
		m.invalidate()
	}
	return true
}

// latestContactList fetches from's newest kind-3 event, or nil.
func (m *Manager) latestContactList(ctx context.Context, from string, forceFresh bool) *nostr.Event {
	events := m.fetcher.Fetch(ctx, nostr.Filter{
		Kinds:   []int{nostr.KindContactList},
		Authors: []string{from},
	}, forceFresh)
	return nostr.LatestByAuthor(events)[from]
}

func (m *Manager) following(ctx context.Context, from string, forceFresh bool) []string {
	ev := m.latestContactList(ctx, from, forceFresh)
	if ev == nil {
		return nil
	}
	rec, err := nostr.Decode(ev)
	if err != nil {
		return nil
	}
	cl, ok := rec.(nostr.ContactListRecord)
	if !ok {
		return nil
	}
	return cl.Contacts
}

func (m *Manager) normalizePair(from, to string) (string, string, bool) {
	f, err := nostr.NormalizeIdentity(from)
	if err != nil {
		return "", "", false
	}
	t, err := nostr.NormalizeIdentity(to)
	if err != nil {
		return "", "", false
	}
	return f, t, true
}

// rewriteContactTags returns the previous event's tags with target added or
// removed as a "p" tag, preserving non-p tags and tag order, and reports
// whether anything changed.
func rewriteContactTags(prev *nostr.Event, target string, add bool) ([][]string, bool) {
	var tags [][]string
	present := false
	if prev != nil {
		for _, tag := range prev.Tags {
			if len(tag) >= 2 && tag[0] == "p" && tag[1] == target {
				if !add {
					present = true
					continue
				}
				if present {
					// duplicate of an occurrence already kept
					continue
				}
				present = true
			}
			tags = append(tags, tag)
		}
	}
	if add && !present {
		return append(tags, []string{"p", target}), true
	}
	return tags, !add && present
}
