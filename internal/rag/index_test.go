package rag_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geomark-lab/geomark-api/internal/rag"
)

func TestNewIndex_LengthMismatchRejected(t *testing.T) {
	chunks := []rag.Chunk{{Source: "a.txt", Text: "alpha"}}
	_, err := rag.NewIndex(chunks, [][]float32{{1, 0}, {0, 1}})
	require.Error(t, err)
}

func TestIndex_SearchRanksByCosineSimilarity(t *testing.T) {
	chunks := []rag.Chunk{
		{Source: "a.txt", SequenceID: 0, Text: "east"},
		{Source: "a.txt", SequenceID: 1, Text: "north"},
		{Source: "b.txt", SequenceID: 0, Text: "northeast"},
	}
	vectors := [][]float32{
		{1, 0},
		{0, 1},
		{1, 1},
	}

	index, err := rag.NewIndex(chunks, vectors)
	require.NoError(t, err)

	results := index.Search([]float32{0, 2}, 2)
	require.Len(t, results, 2)
	require.Equal(t, "north", results[0].Chunk.Text)
	require.Equal(t, "northeast", results[1].Chunk.Text)
	require.Greater(t, results[0].Score, results[1].Score)
}

func TestIndex_SearchClampsTopK(t *testing.T) {
	chunks := []rag.Chunk{{Text: "only"}}
	index, err := rag.NewIndex(chunks, [][]float32{{1, 0}})
	require.NoError(t, err)

	require.Len(t, index.Search([]float32{1, 0}, 10), 1)
	require.Nil(t, index.Search([]float32{1, 0}, 0))
}

func TestIndex_MagnitudeDoesNotAffectRanking(t *testing.T) {
	chunks := []rag.Chunk{
		{Text: "long vector, same direction"},
		{Text: "short vector, other direction"},
	}
	vectors := [][]float32{
		{100, 0},
		{0, 0.1},
	}

	index, err := rag.NewIndex(chunks, vectors)
	require.NoError(t, err)

	results := index.Search([]float32{1, 0}, 1)
	require.Len(t, results, 1)
	require.Equal(t, "long vector, same direction", results[0].Chunk.Text)
	require.InDelta(t, 1.0, results[0].Score, 1e-6)
}
