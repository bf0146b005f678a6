package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// ErrModelUnavailable indicates the embedding model could not be constructed.
// Callers must treat it as non-retryable and grade without retrieved context.
var ErrModelUnavailable = errors.New("embedding model unavailable")

// Embedder turns texts into vectors suitable for similarity comparison.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Provider hands out a process-wide shared Embedder. The underlying model is
// constructed at most once per process lifetime, no matter how many batches
// request it, and stays resident afterwards: the load cost is paid once
// instead of per student.
type Provider struct {
	factory func() (Embedder, error)

	mu       sync.Mutex
	embedder Embedder
}

// NewProvider wraps the given factory in a once-initialized shared handle.
func NewProvider(factory func() (Embedder, error)) *Provider {
	return &Provider{factory: factory}
}

// Get returns the shared embedder, constructing it on first use. Safe under
// concurrent calls from multiple batches: the factory runs at most once.
// Construction failures are not cached, but callers must not retry them.
func (p *Provider) Get() (Embedder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.embedder != nil {
		return p.embedder, nil
	}

	embedder, err := p.factory()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	p.embedder = embedder
	return p.embedder, nil
}

// OpenAIEmbedder implements Embedder against the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder builds an embeddings client for the given model.
func NewOpenAIEmbedder(apiKey, model string) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	return &OpenAIEmbedder{
		client: openai.NewClient(apiKey),
		model:  openai.EmbeddingModel(model),
	}, nil
}

// Embed requests embeddings for all texts in a single call and returns the
// vectors in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: want %d, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}
