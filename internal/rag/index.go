package rag

import (
	"errors"
	"math"
	"sort"
)

// SearchResult pairs a chunk with its similarity score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Index is a transient in-memory similarity index over chunk vectors. It is
// built for one retrieval request and discarded afterwards; it never outlives
// a single student's grading attempt.
type Index struct {
	chunks  []Chunk
	vectors [][]float32
}

// NewIndex builds an index over the given chunks. Vectors are L2-normalized
// on insert so search reduces to an inner product (cosine similarity).
func NewIndex(chunks []Chunk, vectors [][]float32) (*Index, error) {
	if len(chunks) != len(vectors) {
		return nil, errors.New("chunks and vectors length mismatch")
	}

	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		normalized[i] = normalize(v)
	}

	return &Index{chunks: chunks, vectors: normalized}, nil
}

// Search returns up to topK chunks ranked by descending cosine similarity to
// the query vector.
func (idx *Index) Search(query []float32, topK int) []SearchResult {
	if topK <= 0 || len(idx.vectors) == 0 {
		return nil
	}

	q := normalize(query)
	results := make([]SearchResult, 0, len(idx.vectors))
	for i, v := range idx.vectors {
		results = append(results, SearchResult{Chunk: idx.chunks[i], Score: dot(v, q)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK]
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
