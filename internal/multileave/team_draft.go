// Package multileave implements team-draft multileaving: fusing ranked lists
// from competing recommender systems into a single list while recording which
// system contributed each position.
package multileave

import (
	"math/rand"
	"sort"
	"time"
)

// NoCredit marks a fused position that no system gets credit for (the common
// prefix of all input lists).
const NoCredit int64 = 0

// Multileaver fuses up to maxSystems ranked lists into one list of at most
// length items. It keeps a per-instance impression counter so that over many
// calls on the same instance, systems are drafted into interleavings an
// approximately equal number of times. The counter is never persisted;
// construct one instance per batch run.
//
// A Multileaver is not safe for concurrent use.
type Multileaver struct {
	length       int
	maxSystems   int
	commonPrefix bool
	impressions  map[int64]int
	rng          *rand.Rand
}

// Option configures a Multileaver.
type Option func(*Multileaver)

// WithCommonPrefix keeps the longest prefix shared by all input lists at the
// head of the fused ranking, credited to no system.
func WithCommonPrefix() Option {
	return func(m *Multileaver) { m.commonPrefix = true }
}

// WithRand sets the random source. Tests use this for reproducible draws.
func WithRand(rng *rand.Rand) Option {
	return func(m *Multileaver) { m.rng = rng }
}

// New creates a Multileaver producing rankings of at most length items drawn
// from at most maxSystems systems per interleaving.
func New(length, maxSystems int, opts ...Option) *Multileaver {
	m := &Multileaver{
		length:      length,
		maxSystems:  maxSystems,
		impressions: make(map[int64]int),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SelectSystems picks at most the configured maximum out of the given
// systems, repeatedly drawing uniformly at random from the subset with the
// fewest accumulated impressions. Every draw increments the drawn system's
// impression count, which equalises participation across systems over many
// invocations.
func (m *Multileaver) SelectSystems(systems []int64) []int64 {
	n := m.maxSystems
	if len(systems) < n {
		n = len(systems)
	}

	selected := make([]int64, 0, n)
	taken := make(map[int64]bool, n)

	for len(selected) < n {
		candidates := m.minImpressionCandidates(systems, taken)
		chosen := candidates[m.rng.Intn(len(candidates))]
		m.impressions[chosen]++
		taken[chosen] = true
		selected = append(selected, chosen)
	}

	return selected
}

// minImpressionCandidates returns the not-yet-taken systems whose impression
// count equals the current minimum, in stable (sorted) order.
func (m *Multileaver) minImpressionCandidates(systems []int64, taken map[int64]bool) []int64 {
	min := -1
	for _, s := range systems {
		if taken[s] {
			continue
		}
		if c := m.impressions[s]; min < 0 || c < min {
			min = c
		}
	}

	var candidates []int64
	for _, s := range systems {
		if !taken[s] && m.impressions[s] == min {
			candidates = append(candidates, s)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
	return candidates
}

// Multileave fuses the given rankings into one list of at most the configured
// length. The returned credit slice has the same length as the ranking;
// credit[i] names the system whose list contributed ranking[i], or NoCredit
// for common-prefix positions.
//
// Fusion proceeds in rounds. Each round visits the currently active systems
// in a fresh random order; each visited system contributes the highest-ranked
// item of its list that is not already part of the ranking. A system whose
// list is exhausted drops out. Rounds continue until the ranking is full or
// no systems remain.
func (m *Multileaver) Multileave(rankings map[int64][]string) (ranking []string, credit []int64) {
	ranking = []string{}
	credit = []int64{}
	if len(rankings) == 0 {
		return ranking, credit
	}

	included := make(map[string]bool)

	if m.commonPrefix {
		for _, item := range commonPrefix(rankings) {
			if len(ranking) >= m.length {
				break
			}
			ranking = append(ranking, item)
			credit = append(credit, NoCredit)
			included[item] = true
		}
	}

	// Cursor into each system's remaining list.
	next := make(map[int64]int, len(rankings))

	active := make([]int64, 0, len(rankings))
	for s, list := range rankings {
		if len(list) > 0 {
			active = append(active, s)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i] < active[j] })

	var roundQueue []int64
	for len(ranking) < m.length && len(active) > 0 {
		if len(roundQueue) == 0 {
			roundQueue = m.permute(active)
		}
		system := roundQueue[0]
		roundQueue = roundQueue[1:]

		list := rankings[system]
		i := next[system]
		for i < len(list) && included[list[i]] {
			i++
		}

		if i < len(list) {
			item := list[i]
			ranking = append(ranking, item)
			credit = append(credit, system)
			included[item] = true
			i++
		}
		next[system] = i

		if i >= len(list) {
			active = remove(active, system)
		}
	}

	return ranking, credit
}

// Impressions returns a copy of the per-system impression counter.
func (m *Multileaver) Impressions() map[int64]int {
	out := make(map[int64]int, len(m.impressions))
	for s, c := range m.impressions {
		out[s] = c
	}
	return out
}

func (m *Multileaver) permute(systems []int64) []int64 {
	out := make([]int64, len(systems))
	for i, j := range m.rng.Perm(len(systems)) {
		out[i] = systems[j]
	}
	return out
}

func remove(systems []int64, system int64) []int64 {
	for i, s := range systems {
		if s == system {
			return append(systems[:i], systems[i+1:]...)
		}
	}
	return systems
}

// commonPrefix returns the longest prefix shared by every list in rankings.
func commonPrefix(rankings map[int64][]string) []string {
	var lists [][]string
	for _, list := range rankings {
		lists = append(lists, list)
	}

	var prefix []string
	for i := 0; ; i++ {
		for _, list := range lists {
			if i >= len(list) || list[i] != lists[0][i] {
				return prefix
			}
		}
		prefix = append(prefix, lists[0][i])
	}
}
