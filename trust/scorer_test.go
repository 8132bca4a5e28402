package trust

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapabug/madtrips-sub000/config"
)

func testScorer() *Scorer {
	return NewScorer(config.TrustConfig{
		MutualWeight:   3.0,
		SeedBonus:      10.0,
		FollowNormLow:  50,
		FollowNormHigh: 200,
		FollowNormMax:  5.0,
	})
}

func TestScoreDeterministicAcrossInsertionOrder(t *testing.T) {
	scorer := testScorer()
	seeds := []string{"A", "B"}

	forward := map[string][]string{
		"A": {"B", "C"},
		"B": {"A", "C"},
		"C": {"A"},
	}
	reverse := map[string][]string{
		"C": {"A"},
		"B": {"A", "C"},
		"A": {"B", "C"},
	}

	assert.Equal(t, scorer.Score(forward, seeds), scorer.Score(reverse, seeds))
}

func TestScoreScenarioABC(t *testing.T) {
	scorer := testScorer()
	contactLists := map[string][]string{
		"A": {"B", "C"},
		"B": {"A", "C"},
		"C": {"A"},
	}
	scores := scorer.Score(contactLists, []string{"A", "B"})
	require.Len(t, scores, 3)

	// C follows only A, and A is also followed by B: one overlap. No seed
	// bonus, but the score must exceed an identity following nobody.
	loner := scorer.Score(map[string][]string{
		"C": {"A"},
		"X": {},
		"A": {"B", "C"},
		"B": {"A", "C"},
	}, []string{"A", "B"})
	assert.Greater(t, loner["C"], loner["X"])
	assert.Equal(t, 0.0, loner["X"])

	// Seeds pick up the membership bonus.
	assert.GreaterOrEqual(t, scores["A"], 10.0)
	assert.GreaterOrEqual(t, scores["B"], 10.0)
	assert.Greater(t, scores["A"], scores["C"])
}

func TestScoreMutualOverlapCounting(t *testing.T) {
	scorer := testScorer()
	// B's only follow, C, is also followed by A: mutual overlap 1.
	scores := scorer.Score(map[string][]string{
		"A": {"C"},
		"B": {"C"},
	}, nil)

	// 3*1 + 0 + followNorm(1): identical inputs, identical scores.
	assert.Equal(t, scores["A"], scores["B"])
	assert.Greater(t, scores["A"], 3.0)
}

func TestScoreNeverNegative(t *testing.T) {
	scorer := NewScorer(config.TrustConfig{
		MutualWeight:   -100, // pathological config still clamps
		SeedBonus:      0,
		FollowNormLow:  50,
		FollowNormHigh: 200,
		FollowNormMax:  5,
	})
	scores := scorer.Score(map[string][]string{
		"A": {"C"},
		"B": {"C"},
	}, nil)
	assert.GreaterOrEqual(t, scores["A"], 0.0)
}

func TestFollowNormShape(t *testing.T) {
	scorer := testScorer()

	assert.Equal(t, 0.0, scorer.followNorm(0))
	assert.InDelta(t, 2.5, scorer.followNorm(25), 0.001) // ramping up
	assert.Equal(t, 5.0, scorer.followNorm(50))          // sweet spot begins
	assert.Equal(t, 5.0, scorer.followNorm(200))         // sweet spot ends
	assert.InDelta(t, 1.0, scorer.followNorm(1000), 0.001)
	assert.Less(t, scorer.followNorm(20000), 0.1) // mass-follower penalized
}

func TestEntriesSortedByScore(t *testing.T) {
	scorer := testScorer()
	contactLists := map[string][]string{
		"A": {"B", "C"},
		"B": {"A", "C"},
		"C": {"A"},
	}

	entries := scorer.Entries(contactLists, []string{"A"})
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		assert.GreaterOrEqual(t, entries[i-1].RelevanceScore, entries[i].RelevanceScore,
			fmt.Sprintf("entry %d out of order", i))
	}
	assert.Equal(t, "A", entries[0].Identity, "seed with mutuals ranks first")
}

func TestFollowsDeduplicatedBeforeCounting(t *testing.T) {
	scorer := testScorer()
	a := scorer.Score(map[string][]string{
		"A": {"C", "C", "C"},
		"B": {"C"},
	}, nil)
	b := scorer.Score(map[string][]string{
		"A": {"C"},
		"B": {"C"},
	}, nil)
	assert.Equal(t, b["A"], a["A"])
}
