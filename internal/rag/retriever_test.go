package rag_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/geomark-lab/geomark-api/internal/models"
	"github.com/geomark-lab/geomark-api/internal/rag"
)

type stubExtractor struct {
	err   error
	texts map[string]string
}

func (s *stubExtractor) Extract(name string, data []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if text, ok := s.texts[name]; ok {
		return text, nil
	}
	return string(data), nil
}

func newTestRetriever(t *testing.T, embedder rag.Embedder, extractor *stubExtractor) *rag.Retriever {
	t.Helper()

	provider := rag.NewProvider(func() (rag.Embedder, error) {
		if embedder == nil {
			return nil, errors.New("no embedder")
		}
		return embedder, nil
	})

	retriever, err := rag.NewRetriever(provider, extractor, rag.RetrieverConfig{
		MaxDocsPerStudent: 5,
		ChunksPerDocLimit: 20,
		ChunkSize:         500,
		ChunkOverlap:      50,
	}, zerolog.New(io.Discard))
	require.NoError(t, err)
	return retriever
}

func corpusOf(docs ...string) []models.ReferenceDocument {
	corpus := make([]models.ReferenceDocument, 0, len(docs))
	for i, text := range docs {
		corpus = append(corpus, models.ReferenceDocument{
			Name: string(rune('a'+i)) + ".txt",
			Data: []byte(text),
		})
	}
	return corpus
}

func TestRetriever_ReturnsRankedPassages(t *testing.T) {
	embedder := &stubEmbedder{vectors: [][]float32{
		{1, 0}, // chunk from a.txt
		{0, 1}, // chunk from b.txt
		{0, 1}, // query, nearest to b.txt
	}}
	retriever := newTestRetriever(t, embedder, &stubExtractor{})

	passages := retriever.Retrieve(context.Background(), corpusOf("plate tectonics", "river deltas"), "deltas form at river mouths", 1)
	require.Equal(t, []string{"river deltas"}, passages)
	require.Equal(t, 1, embedder.calls)
}

func TestRetriever_EmptyInputsYieldNothing(t *testing.T) {
	embedder := &stubEmbedder{}
	retriever := newTestRetriever(t, embedder, &stubExtractor{})

	require.Nil(t, retriever.Retrieve(context.Background(), nil, "answer", 3))
	require.Nil(t, retriever.Retrieve(context.Background(), corpusOf("doc"), "", 3))
	require.Nil(t, retriever.Retrieve(context.Background(), corpusOf("doc"), "answer", 0))
	require.Zero(t, embedder.calls)
}

func TestRetriever_EmbedderInitFailureDegrades(t *testing.T) {
	retriever := newTestRetriever(t, nil, &stubExtractor{})

	passages := retriever.Retrieve(context.Background(), corpusOf("some text"), "answer", 3)
	require.Nil(t, passages)
}

func TestRetriever_EmbeddingFailureDegrades(t *testing.T) {
	embedder := &stubEmbedder{err: errors.New("backend down")}
	retriever := newTestRetriever(t, embedder, &stubExtractor{})

	passages := retriever.Retrieve(context.Background(), corpusOf("some text"), "answer", 3)
	require.Nil(t, passages)
}

func TestRetriever_UnreadableDocumentsSkipped(t *testing.T) {
	retriever := newTestRetriever(t, &stubEmbedder{}, &stubExtractor{err: errors.New("binary blob")})

	passages := retriever.Retrieve(context.Background(), corpusOf("doc one", "doc two"), "answer", 3)
	require.Nil(t, passages)
}

func TestRetriever_DocumentCapIsOrderPreserving(t *testing.T) {
	embedder := &stubEmbedder{}
	provider := rag.NewProvider(func() (rag.Embedder, error) { return embedder, nil })

	retriever, err := rag.NewRetriever(provider, &stubExtractor{}, rag.RetrieverConfig{
		MaxDocsPerStudent: 2,
		ChunksPerDocLimit: 20,
		ChunkSize:         500,
		ChunkOverlap:      50,
	}, zerolog.New(io.Discard))
	require.NoError(t, err)

	passages := retriever.Retrieve(context.Background(), corpusOf("first", "second", "third"), "answer", 10)
	require.Len(t, passages, 2)
	require.NotContains(t, passages, "third")
}
