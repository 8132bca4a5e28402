package graph

import (
	"context"
	"time"

	"github.com/zapabug/madtrips-sub000/nostr"
)

// ExpandNode fetches up to the configured limit of one existing node's
// contacts and merges the new nodes and edges into the graph in place,
// using the same id-keyed dedup as a full build. Safe to call while a build
// is in flight; re-entrant calls are silently ignored rather than queued.
func (b *Builder) ExpandNode(ctx context.Context, nodeID string) {
	id, err := nostr.NormalizeIdentity(nodeID)
	if err != nil {
		b.logger.Debugw("Rejecting malformed expansion target", "input", nodeID)
		return
	}

	b.mu.Lock()
	if b.expanding || b.state == nil || b.state.node(id) == nil {
		b.mu.Unlock()
		return
	}
	b.expanding = true
	key := b.buildKey
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.expanding = false
		b.mu.Unlock()
	}()

	contacts := b.fetchContacts(ctx, id)
	if len(contacts) > b.cfg.ExpandContactLimit {
		contacts = contacts[:b.cfg.ExpandContactLimit]
	}
	if len(contacts) == 0 || ctx.Err() != nil {
		return
	}

	b.mu.Lock()
	if b.state == nil || b.buildKey != key {
		// A rebuild replaced the graph while we were fetching.
		b.mu.Unlock()
		return
	}
	b.contactLists[id] = contacts
	for _, contact := range contacts {
		if b.state.node(contact) == nil {
			// Hard node/edge ceilings still apply through the bounded
			// collections; overflow drops the contact whole.
			if !b.state.addNode(IdentityNode{ID: contact, IsSecondDegree: true}) {
				continue
			}
		}
		b.state.addEdge(id, contact)
	}
	b.state.markMutuals()
	b.state.applyScores(b.scorer.Score(b.contactLists, b.seeds))
	snap := b.state.snapshot(time.Now())
	b.mu.Unlock()

	b.graphs.Set(key, snap)
	b.notify(snap)
	b.logger.Debugw("Node expansion merged", "node", id, "contacts", len(contacts))
}
