package search

import "sort"

// DefaultKRRF is the Reciprocal Rank Fusion constant (standard value from
// Cormack et al. 2009).
const DefaultKRRF = 60

// fusedHit is one id with its fused score.
type fusedHit struct {
	id    string
	score float64
	both  bool
}

// fuseRRF merges two ranked id lists via Reciprocal Rank Fusion.
// score(id) = sum of 1/(kRRF + rank_i(id)) over the lists where id appears,
// ranks 1-based. Ties sort ids present in both lists first, then id asc.
func fuseRRF(dense, sparse []string, kRRF int) []fusedHit {
	type entry struct {
		score float64
		lists int
	}
	merged := make(map[string]*entry, len(dense)+len(sparse))

	for rank, id := range dense {
		merged[id] = &entry{score: 1.0 / float64(kRRF+rank+1), lists: 1}
	}
	for rank, id := range sparse {
		s := 1.0 / float64(kRRF+rank+1)
		if e, ok := merged[id]; ok {
			e.score += s
			e.lists++
		} else {
			merged[id] = &entry{score: s, lists: 1}
		}
	}

	out := make([]fusedHit, 0, len(merged))
	for id, e := range merged {
		out = append(out, fusedHit{id: id, score: e.score, both: e.lists > 1})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].both != out[j].both {
			return out[i].both
		}
		return out[i].id < out[j].id
	})
	return out
}
