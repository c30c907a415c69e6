package search

import (
	"math"
	"reflect"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors: %f, want 1", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal vectors: %f, want 0", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{-1, 0}); math.Abs(got+1) > 1e-9 {
		t.Errorf("opposite vectors: %f, want -1", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}); got != 0 {
		t.Errorf("dimension mismatch should score 0, got %f", got)
	}
	if got := CosineSimilarity([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Errorf("zero vector should score 0, got %f", got)
	}
}

func TestFuse_EqualWeightBlend(t *testing.T) {
	lex := map[int64]float64{1: 4, 2: 2}
	vec := map[int64]float64{2: 0.8, 3: 0.4}
	fused := fuse(lex, vec, 0.5, 0.5)

	scores := make(map[int64]float64)
	for _, c := range fused {
		scores[c.ChunkID] = c.Score
	}
	// Chunk 1: lexical max (1.0), no vector side -> 0.5.
	// Chunk 2: lexical 0.5, vector max (1.0) -> 0.75.
	// Chunk 3: vector 0.5, no lexical side -> 0.25.
	want := map[int64]float64{1: 0.5, 2: 0.75, 3: 0.25}
	for id, w := range want {
		if math.Abs(scores[id]-w) > 1e-9 {
			t.Errorf("chunk %d: score %f, want %f", id, scores[id], w)
		}
	}
	if fused[0].ChunkID != 2 {
		t.Errorf("top candidate = %d, want 2", fused[0].ChunkID)
	}
}

func TestFuse_OrderIndependence(t *testing.T) {
	// The fused ranking depends only on scores, not on the order the score
	// maps were built in.
	lexA := map[int64]float64{1: 3, 2: 1, 3: 2}
	vecA := map[int64]float64{4: 0.9, 2: 0.7}
	lexB := map[int64]float64{3: 2, 1: 3, 2: 1}
	vecB := map[int64]float64{2: 0.7, 4: 0.9}

	a := fuse(lexA, vecA, 0.5, 0.5)
	b := fuse(lexB, vecB, 0.5, 0.5)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("fused rankings differ:\n%v\n%v", a, b)
	}
}

func TestFuse_ZeroMaxGuard(t *testing.T) {
	// A side whose maximum is not positive contributes zero instead of
	// dividing by zero.
	fused := fuse(map[int64]float64{1: 0}, map[int64]float64{1: 0.5}, 0.5, 0.5)
	if len(fused) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(fused))
	}
	if fused[0].LexScore != 0 {
		t.Errorf("lexical contribution = %f, want 0", fused[0].LexScore)
	}
	if math.Abs(fused[0].Score-0.5) > 1e-9 {
		t.Errorf("score = %f, want 0.5", fused[0].Score)
	}
}

func TestFuse_Empty(t *testing.T) {
	if got := fuse(nil, nil, 0.5, 0.5); len(got) != 0 {
		t.Errorf("expected no candidates, got %v", got)
	}
}
