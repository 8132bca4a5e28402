package store

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/zapabug/madtrips-sub000/errors"
	"github.com/zapabug/madtrips-sub000/nostr"
)

// Seed is one registered seed identity.
type Seed struct {
	PubKey  string    `json:"pubkey"`
	AddedAt time.Time `json:"addedAt"`
}

// SeedStore is the registry of seed identities graphs are built around.
type SeedStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewSeedStore wraps an opened database.
func NewSeedStore(db *sql.DB, logger *zap.SugaredLogger) *SeedStore {
	return &SeedStore{db: db, logger: logger.Named("store.seeds")}
}

// Add registers a seed identity, accepted as npub or hex. Re-adding an
// existing seed is a no-op.
func (s *SeedStore) Add(ctx context.Context, identity string) error {
	id, err := nostr.NormalizeIdentity(identity)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO seeds (pubkey) VALUES (?) ON CONFLICT(pubkey) DO NOTHING", id)
	if err != nil {
		return errors.Wrapf(err, "failed to add seed %s", id)
	}
	s.logger.Infow("Seed registered", "pubkey", id)
	return nil
}

// Remove deletes a seed identity. Removing an unknown seed returns
// ErrNotFound.
func (s *SeedStore) Remove(ctx context.Context, identity string) error {
	id, err := nostr.NormalizeIdentity(identity)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM seeds WHERE pubkey = ?", id)
	if err != nil {
		return errors.Wrapf(err, "failed to remove seed %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "seed %s", id)
	}
	s.logger.Infow("Seed removed", "pubkey", id)
	return nil
}

// List returns all seeds ordered by registration time, oldest first.
func (s *SeedStore) List(ctx context.Context) ([]Seed, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT pubkey, added_at FROM seeds ORDER BY added_at, pubkey")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list seeds")
	}
	defer rows.Close()

	var seeds []Seed
	for rows.Next() {
		var seed Seed
		if err := rows.Scan(&seed.PubKey, &seed.AddedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan seed")
		}
		seeds = append(seeds, seed)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "seed iteration")
	}
	return seeds, nil
}

// PubKeys returns just the seed identities, in List order.
func (s *SeedStore) PubKeys(ctx context.Context) ([]string, error) {
	seeds, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(seeds))
	for i, seed := range seeds {
		keys[i] = seed.PubKey
	}
	return keys, nil
}
