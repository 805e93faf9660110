// Package consensus turns the raw candidates of one scan pass into a bounded,
// ranked set and splits the pass risk budget across it.
package consensus

import (
	"sort"

	"github.com/rustyeddy/signalgov/market"
)

// Rank drops candidates scoring below minScore, orders the rest by score
// (ties keep their input order) and admits at most maxPerSymbol per symbol.
// The input slice is not modified.
func Rank(cands []market.Candidate, minScore float64, maxPerSymbol int) []market.Candidate {
	kept := make([]market.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Score >= minScore {
			kept = append(kept, c)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})

	seen := make(map[string]int, len(kept))
	out := kept[:0]
	for _, c := range kept {
		seen[c.Symbol]++
		if seen[c.Symbol] <= maxPerSymbol {
			out = append(out, c)
		}
	}
	return out
}
