package rag

import "sort"

// FuseReciprocal merges ranked result lists with reciprocal rank fusion.
// Each list contributes 1/(k+rank+1) per item, ranks are zero-based.
// Ties keep first-seen order across lists, so earlier lists win them.
func FuseReciprocal(lists [][]RetrievedChunk, k, topN int) []RetrievedChunk {
	if k <= 0 {
		k = 60
	}

	type fused struct {
		item  RetrievedChunk
		score float64
	}

	index := make(map[string]int)
	entries := make([]fused, 0)

	for _, list := range lists {
		for rank, item := range list {
			contribution := 1.0 / float64(k+rank+1)
			if i, ok := index[item.ChunkID]; ok {
				entries[i].score += contribution
				continue
			}
			index[item.ChunkID] = len(entries)
			entries = append(entries, fused{item: item, score: contribution})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].score > entries[j].score
	})

	if topN > 0 && len(entries) > topN {
		entries = entries[:topN]
	}

	out := make([]RetrievedChunk, len(entries))
	for i, e := range entries {
		out[i] = e.item
		out[i].Score = e.score
	}
	return out
}
