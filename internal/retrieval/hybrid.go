package retrieval

import (
	"math"
	"sort"
)

// Fuse blends normalized keyword scores with semantic similarity per candidate id:
// (1-w)*keyword/maxKeyword + w*semantic. Candidates without a semantic score count as zero.
// With no semantic scores or w <= 0 the results are returned unchanged.
func Fuse(results []Result, semantic map[string]float64, w float64) []Result {
	if len(results) == 0 || len(semantic) == 0 || w <= 0 {
		return results
	}
	if w > 1 {
		w = 1
	}
	top := 0.0
	for _, r := range results {
		top = math.Max(top, r.Score)
	}
	if top <= 0 {
		return results
	}

	out := make([]Result, len(results))
	copy(out, results)
	for i := range out {
		sem := math.Min(math.Max(semantic[out[i].Candidate.ID], 0), 1)
		out[i].Score = (1-w)*(out[i].Score/top) + w*sem
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// CosineSimilarity returns 0 for empty or mismatched vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
