// Package feed serves typed profile and note lookups for the booking
// frontend: profile cards for graph nodes and recent text notes per
// identity, each behind its own cache.
package feed

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/zapabug/madtrips-sub000/cache"
	"github.com/zapabug/madtrips-sub000/errors"
	"github.com/zapabug/madtrips-sub000/nostr"
)

// Fetcher is the slice of the record fetcher the feed depends on.
type Fetcher interface {
	Fetch(ctx context.Context, filter nostr.Filter, forceFresh bool) []*nostr.Event
}

// DefaultNoteLimit bounds a notes query when the caller does not.
const DefaultNoteLimit = 20

// Service answers profile and note queries from cache first, relays second.
type Service struct {
	fetcher  Fetcher
	profiles *cache.Cache[nostr.ProfileRecord]
	notes    *cache.Cache[[]nostr.ContentRecord]
	logger   *zap.SugaredLogger
}

// New creates a feed service over the given caches.
func New(fetcher Fetcher, profiles *cache.Cache[nostr.ProfileRecord], notes *cache.Cache[[]nostr.ContentRecord], logger *zap.SugaredLogger) *Service {
	return &Service{
		fetcher:  fetcher,
		profiles: profiles,
		notes:    notes,
		logger:   logger.Named("feed"),
	}
}

// Profile returns the newest known profile for an identity (npub or hex).
// ErrNotFound when no relay has metadata for it.
func (s *Service) Profile(ctx context.Context, identity string) (nostr.ProfileRecord, error) {
	id, err := nostr.NormalizeIdentity(identity)
	if err != nil {
		return nostr.ProfileRecord{}, err
	}

	if p, ok := s.profiles.Get(id); ok {
		return p, nil
	}

	events := s.fetcher.Fetch(ctx, nostr.Filter{
		Kinds:   []int{nostr.KindProfileMetadata},
		Authors: []string{id},
	}, false)

	ev, ok := nostr.LatestByAuthor(events)[id]
	if !ok {
		return nostr.ProfileRecord{}, errors.Wrapf(errors.ErrNotFound, "no profile for %s", id)
	}
	rec, err := nostr.Decode(ev)
	if err != nil {
		return nostr.ProfileRecord{}, err
	}
	p, ok := rec.(nostr.ProfileRecord)
	if !ok {
		return nostr.ProfileRecord{}, errors.Wrapf(errors.ErrInvalidRecord, "event for %s is not a profile", id)
	}

	s.profiles.Set(id, p)
	return p, nil
}

// Notes returns up to limit of an identity's text notes, newest first.
// Missing notes are an empty slice, not an error.
func (s *Service) Notes(ctx context.Context, identity string, limit int) ([]nostr.ContentRecord, error) {
	id, err := nostr.NormalizeIdentity(identity)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultNoteLimit
	}

	if cached, ok := s.notes.Get(id); ok {
		return clampNotes(cached, limit), nil
	}

	events := s.fetcher.Fetch(ctx, nostr.Filter{
		Kinds:   []int{nostr.KindTextNote},
		Authors: []string{id},
		Limit:   limit,
	}, false)

	notes := make([]nostr.ContentRecord, 0, len(events))
	for _, ev := range events {
		rec, err := nostr.Decode(ev)
		if err != nil {
			s.logger.Debugw("Skipping malformed note", "id", ev.ID)
			continue
		}
		if n, ok := rec.(nostr.ContentRecord); ok {
			notes = append(notes, n)
		}
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].CreatedAt > notes[j].CreatedAt })

	s.notes.Set(id, notes)
	return clampNotes(notes, limit), nil
}

func clampNotes(notes []nostr.ContentRecord, limit int) []nostr.ContentRecord {
	if len(notes) > limit {
		notes = notes[:limit]
	}
	return notes
}
