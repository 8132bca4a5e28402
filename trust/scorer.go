// Package trust derives a relevance score per identity from raw contact-list
// data. Scoring is a pure function of its inputs: no fetch-order dependence,
// no hidden state.
package trust

import (
	"sort"

	"github.com/zapabug/madtrips-sub000/config"
)

// Entry is the scored view of one identity.
type Entry struct {
	Identity       string   `json:"identity"`
	Follows        []string `json:"follows"`
	RelevanceScore float64  `json:"relevanceScore"`
}

// Scorer computes relevance scores. The weights are empirically tuned
// constants carried in configuration; see config.TrustConfig.
type Scorer struct {
	cfg config.TrustConfig
}

// NewScorer creates a scorer with the given weights.
func NewScorer(cfg config.TrustConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes a relevance score for every identity with a known contact
// list:
//
//	score = mutualWeight * |follows ∩ union(other identities' follows)|
//	      + seedBonus if the identity is a seed
//	      + followCountNormalization(|follows|)
//
// clamped non-negative. The same input map always yields the same result
// regardless of insertion order.
func (s *Scorer) Score(contactLists map[string][]string, seeds []string) map[string]float64 {
	seedSet := make(map[string]bool, len(seeds))
	for _, seed := range seeds {
		seedSet[seed] = true
	}

	// union of follows per identity excluding the identity's own list,
	// computed via total counts minus own contribution
	followedBy := make(map[string]map[string]bool)
	for identity, follows := range contactLists {
		for _, target := range follows {
			if followedBy[target] == nil {
				followedBy[target] = make(map[string]bool)
			}
			followedBy[target][identity] = true
		}
	}

	scores := make(map[string]float64, len(contactLists))
	for identity, follows := range contactLists {
		mutual := 0
		seen := make(map[string]bool, len(follows))
		for _, target := range follows {
			if seen[target] {
				continue
			}
			seen[target] = true
			// target is in the union of the other identities' follow sets
			// when anyone besides this identity follows it.
			for follower := range followedBy[target] {
				if follower != identity {
					mutual++
					break
				}
			}
		}

		score := s.cfg.MutualWeight * float64(mutual)
		if seedSet[identity] {
			score += s.cfg.SeedBonus
		}
		score += s.followNorm(len(seen))

		if score < 0 {
			score = 0
		}
		scores[identity] = score
	}
	return scores
}

// followNorm rewards identities with a plausible organic follow count
// (roughly low..high) and penalizes mass-followers, clamped to [0, max].
func (s *Scorer) followNorm(follows int) float64 {
	low := float64(s.cfg.FollowNormLow)
	high := float64(s.cfg.FollowNormHigh)
	max := s.cfg.FollowNormMax

	switch {
	case follows <= 0:
		return 0
	case float64(follows) < low:
		return max * float64(follows) / low
	case float64(follows) <= high:
		return max
	default:
		// Decays toward zero as the follow count balloons past high.
		v := max * high / float64(follows)
		if v < 0 {
			return 0
		}
		return v
	}
}

// Entries returns the scored identities as a slice sorted by descending
// score, ties broken by identity for stable output.
func (s *Scorer) Entries(contactLists map[string][]string, seeds []string) []Entry {
	scores := s.Score(contactLists, seeds)

	entries := make([]Entry, 0, len(scores))
	for identity, score := range scores {
		entries = append(entries, Entry{
			Identity:       identity,
			Follows:        contactLists[identity],
			RelevanceScore: score,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RelevanceScore != entries[j].RelevanceScore {
			return entries[i].RelevanceScore > entries[j].RelevanceScore
		}
		return entries[i].Identity < entries[j].Identity
	})
	return entries
}
