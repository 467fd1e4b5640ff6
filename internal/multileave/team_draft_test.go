package multileave

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(seed int64) Option {
	return WithRand(rand.New(rand.NewSource(seed)))
}

func TestMultileaveEmptyInput(t *testing.T) {
	m := New(10, 3, seeded(1))

	ranking, credit := m.Multileave(map[int64][]string{})

	assert.Empty(t, ranking)
	assert.Empty(t, credit)
}

func TestMultileaveDistinctness(t *testing.T) {
	m := New(10, 3, seeded(2))

	ranking, _ := m.Multileave(map[int64][]string{
		1: {"a", "b", "c", "d"},
		2: {"b", "a", "e", "c"},
		3: {"c", "b", "a", "f"},
	})

	seen := make(map[string]bool)
	for _, item := range ranking {
		assert.False(t, seen[item], "item %q appears twice", item)
		seen[item] = true
	}
}

func TestMultileaveCreditAttribution(t *testing.T) {
	rankings := map[int64][]string{
		1: {"a", "b", "c"},
		2: {"d", "e", "f"},
		3: {"a", "d", "g"},
	}
	m := New(9, 3, seeded(3))

	ranking, credit := m.Multileave(rankings)

	require.Equal(t, len(ranking), len(credit))
	for i, system := range credit {
		require.NotEqual(t, NoCredit, system)
		assert.Contains(t, rankings[system], ranking[i],
			"position %d credited to system %d which never proposed %q", i, system, ranking[i])
	}
}

func TestMultileaveLengthBounds(t *testing.T) {
	rankings := map[int64][]string{
		1: {"a", "b", "c"},
		2: {"b", "c", "d"},
	}

	t.Run("capped by target length", func(t *testing.T) {
		m := New(2, 2, seeded(4))
		ranking, credit := m.Multileave(rankings)
		assert.Len(t, ranking, 2)
		assert.Len(t, credit, 2)
	})

	t.Run("ends at distinct item count", func(t *testing.T) {
		m := New(100, 2, seeded(5))
		ranking, _ := m.Multileave(rankings)
		assert.Len(t, ranking, 4) // a, b, c, d
	})
}

func TestMultileaveOrderPreservation(t *testing.T) {
	rankings := map[int64][]string{
		1: {"a", "b", "c", "d", "e"},
		2: {"v", "w", "x", "y", "z"},
	}
	m := New(10, 2, seeded(6))

	ranking, credit := m.Multileave(rankings)

	// Items credited to a system must appear in that system's input order.
	position := make(map[string]int)
	for i, item := range ranking {
		position[item] = i
	}
	for system, list := range rankings {
		last := -1
		for _, item := range list {
			pos, ok := position[item]
			if !ok {
				continue
			}
			if creditFor(ranking, credit, item) != system {
				continue
			}
			assert.Greater(t, pos, last, "system %d item %q out of order", system, item)
			last = pos
		}
	}
}

func creditFor(ranking []string, credit []int64, item string) int64 {
	for i, r := range ranking {
		if r == item {
			return credit[i]
		}
	}
	return NoCredit
}

func TestMultileaveRoundWindows(t *testing.T) {
	// Disjoint equal-length lists keep all systems active to the end, so
	// every window of len(systems) positions holds each system exactly once.
	rankings := map[int64][]string{
		1: {"a1", "a2", "a3", "a4"},
		2: {"b1", "b2", "b3", "b4"},
		3: {"c1", "c2", "c3", "c4"},
	}

	for seed := int64(0); seed < 50; seed++ {
		m := New(12, 3, seeded(seed))
		_, credit := m.Multileave(rankings)
		require.Len(t, credit, 12)

		for start := 0; start+3 <= len(credit); start += 3 {
			window := credit[start : start+3]
			counts := make(map[int64]int)
			for _, s := range window {
				counts[s]++
			}
			for s, c := range counts {
				assert.Equal(t, 1, c, "seed %d: system %d drafted %d times in round starting at %d", seed, s, c, start)
			}
		}
	}
}

func TestMultileaveCommonPrefix(t *testing.T) {
	rankings := map[int64][]string{
		1: {"x", "y", "a", "b"},
		2: {"x", "y", "b", "c"},
		3: {"x", "y", "d"},
	}
	m := New(8, 3, WithCommonPrefix(), seeded(7))

	ranking, credit := m.Multileave(rankings)

	require.GreaterOrEqual(t, len(ranking), 2)
	assert.Equal(t, []string{"x", "y"}, ranking[:2])
	assert.Equal(t, NoCredit, credit[0])
	assert.Equal(t, NoCredit, credit[1])

	// Positions after the prefix are interleaved and credited as usual.
	for i := 2; i < len(ranking); i++ {
		require.NotEqual(t, NoCredit, credit[i])
		assert.Contains(t, rankings[credit[i]], ranking[i])
		assert.NotContains(t, []string{"x", "y"}, ranking[i])
	}
}

func TestMultileaveWithoutCommonPrefixFlag(t *testing.T) {
	rankings := map[int64][]string{
		1: {"x", "a"},
		2: {"x", "b"},
	}
	m := New(4, 2, seeded(8))

	ranking, credit := m.Multileave(rankings)

	// The shared head item is still drafted, but credited to a system.
	require.Equal(t, "x", ranking[0])
	assert.NotEqual(t, NoCredit, credit[0])
}

func TestMultileavePositionDistribution(t *testing.T) {
	// With two single-item lists, each system should win the top position
	// about half the time.
	const runs = 10000
	m := New(2, 2, seeded(9))

	first := 0
	for i := 0; i < runs; i++ {
		ranking, _ := m.Multileave(map[int64][]string{
			1: {"x"},
			2: {"y"},
		})
		require.Len(t, ranking, 2)
		if ranking[0] == "x" {
			first++
		}
	}

	freq := float64(first) / runs
	assert.InDelta(t, 0.5, freq, 0.025)
}

func TestSelectSystemsFewerThanMax(t *testing.T) {
	m := New(3, 3, seeded(10))

	selected := m.SelectSystems([]int64{7, 8})

	assert.ElementsMatch(t, []int64{7, 8}, selected)
	assert.Equal(t, map[int64]int{7: 1, 8: 1}, m.Impressions())
}

func TestSelectSystemsCapped(t *testing.T) {
	m := New(3, 2, seeded(11))

	selected := m.SelectSystems([]int64{1, 2, 3, 4})

	assert.Len(t, selected, 2)
	seen := make(map[int64]bool)
	for _, s := range selected {
		assert.False(t, seen[s])
		seen[s] = true
	}
}

func TestSelectSystemsFairness(t *testing.T) {
	// Five systems competing for three slots per invocation: over 1000
	// invocations every system lands within 5% of the expected 600 draws.
	const (
		invocations = 1000
		expected    = 600.0
	)
	systems := []int64{1, 2, 3, 4, 5}
	lists := map[int64][]string{
		1: {"a"}, 2: {"b"}, 3: {"c"}, 4: {"d"}, 5: {"e"},
	}

	m := New(3, 3, seeded(12))
	for i := 0; i < invocations; i++ {
		selected := m.SelectSystems(systems)
		require.Len(t, selected, 3)

		subset := make(map[int64][]string, len(selected))
		for _, s := range selected {
			subset[s] = lists[s]
		}
		ranking, _ := m.Multileave(subset)
		require.Len(t, ranking, 3)
	}

	counts := m.Impressions()
	for _, s := range systems {
		assert.InDelta(t, expected, float64(counts[s]), expected*0.05,
			fmt.Sprintf("system %d selected %d times", s, counts[s]))
	}
}

func TestMultileaveMaxSystemsViaSelection(t *testing.T) {
	lists := map[int64][]string{
		1: {"a", "b"}, 2: {"c", "d"}, 3: {"e", "f"}, 4: {"g", "h"}, 5: {"i", "j"},
	}
	m := New(10, 3, seeded(13))

	selected := m.SelectSystems([]int64{1, 2, 3, 4, 5})
	subset := make(map[int64][]string, len(selected))
	for _, s := range selected {
		subset[s] = lists[s]
	}
	_, credit := m.Multileave(subset)

	distinct := make(map[int64]bool)
	for _, s := range credit {
		if s != NoCredit {
			distinct[s] = true
		}
	}
	assert.LessOrEqual(t, len(distinct), 3)
}
