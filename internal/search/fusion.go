package search

import (
	"math"
	"sort"
)

// candidate is a chunk with fused lexical and vector contributions.
type candidate struct {
	ChunkID  int64
	Score    float64
	LexScore float64
	VecScore float64
}

// CosineSimilarity returns the cosine of the angle between two vectors, or
// 0 when either is empty, zero-length, or of mismatched dimension.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// normalizeByMax divides every score by the maximum in the set. A zero or
// negative maximum yields zero contributions rather than a division by zero
// (or a sign flip).
func normalizeByMax(scores map[int64]float64) map[int64]float64 {
	normalized := make(map[int64]float64, len(scores))
	var max float64
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	for id, s := range scores {
		if max > 0 {
			normalized[id] = s / max
		} else {
			normalized[id] = 0
		}
	}
	return normalized
}

// fuse unions lexical and vector score maps keyed by chunk ID, normalizes
// each side by its own maximum, and blends with the given weights. A chunk
// present on only one side contributes 0 on the missing side. The returned
// slice is sorted by fused score descending with chunk ID as tiebreak, so
// the ordering depends only on scores, never on input order.
func fuse(lexical, vector map[int64]float64, lexWeight, vecWeight float64) []candidate {
	lexNorm := normalizeByMax(lexical)
	vecNorm := normalizeByMax(vector)

	merged := make(map[int64]*candidate, len(lexNorm)+len(vecNorm))
	for id, s := range lexNorm {
		merged[id] = &candidate{ChunkID: id, LexScore: s}
	}
	for id, s := range vecNorm {
		if c, ok := merged[id]; ok {
			c.VecScore = s
		} else {
			merged[id] = &candidate{ChunkID: id, VecScore: s}
		}
	}
	result := make([]candidate, 0, len(merged))
	for _, c := range merged {
		c.Score = lexWeight*c.LexScore + vecWeight*c.VecScore
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].ChunkID < result[j].ChunkID
	})
	return result
}
