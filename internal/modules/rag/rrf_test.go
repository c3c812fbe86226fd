package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunk(id string) RetrievedChunk {
	return RetrievedChunk{ChunkID: id, ChunkText: "text-" + id}
}

func ids(chunks []RetrievedChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.ChunkID
	}
	return out
}

func TestFuseReciprocalScores(t *testing.T) {
	vector := []RetrievedChunk{chunk("a"), chunk("b")}
	keyword := []RetrievedChunk{chunk("a")}

	fused := FuseReciprocal([][]RetrievedChunk{vector, keyword}, 60, 0)
	require.Len(t, fused, 2)

	// "a" appears at rank 0 in both lists: 2/61. "b" only in one: 1/62.
	assert.Equal(t, "a", fused[0].ChunkID)
	assert.InDelta(t, 2.0/61.0, fused[0].Score, 1e-12)
	assert.Equal(t, "b", fused[1].ChunkID)
	assert.InDelta(t, 1.0/62.0, fused[1].Score, 1e-12)
}

func TestFuseReciprocalCrossListBoost(t *testing.T) {
	vector := []RetrievedChunk{chunk("a"), chunk("b"), chunk("c")}
	keyword := []RetrievedChunk{chunk("b"), chunk("d")}

	fused := FuseReciprocal([][]RetrievedChunk{vector, keyword}, 60, 0)

	// "b" gains from both lists (1/62 + 1/61) and overtakes "a" (1/61).
	// "d" at keyword rank 1 (1/62) outranks "c" at vector rank 2 (1/63).
	assert.Equal(t, []string{"b", "a", "d", "c"}, ids(fused))
}

func TestFuseReciprocalTieStability(t *testing.T) {
	// "a" and "b" both score exactly 1/61; the vector list was iterated
	// first, so "a" keeps its earlier position.
	vector := []RetrievedChunk{chunk("a")}
	keyword := []RetrievedChunk{chunk("b")}

	fused := FuseReciprocal([][]RetrievedChunk{vector, keyword}, 60, 0)
	assert.Equal(t, []string{"a", "b"}, ids(fused))
}

func TestFuseReciprocalTruncation(t *testing.T) {
	var vector []RetrievedChunk
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"} {
		vector = append(vector, chunk(id))
	}

	fused := FuseReciprocal([][]RetrievedChunk{vector}, 60, 7)
	assert.Len(t, fused, 7)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g"}, ids(fused))
}

func TestFuseReciprocalEmptyInputs(t *testing.T) {
	assert.Empty(t, FuseReciprocal(nil, 60, 7))
	assert.Empty(t, FuseReciprocal([][]RetrievedChunk{{}, {}}, 60, 7))
}

func TestFuseReciprocalDefaultK(t *testing.T) {
	fused := FuseReciprocal([][]RetrievedChunk{{chunk("a")}}, 0, 0)
	require.Len(t, fused, 1)
	assert.InDelta(t, 1.0/61.0, fused[0].Score, 1e-12)
}
