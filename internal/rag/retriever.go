package rag

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/geomark-lab/geomark-api/internal/extract"
	"github.com/geomark-lab/geomark-api/internal/models"
)

var (
	retrievalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "geomark",
		Subsystem: "rag",
		Name:      "retrieval_duration_seconds",
		Help:      "Duration of reference retrieval per student",
	})

	retrievalFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geomark",
		Subsystem: "rag",
		Name:      "retrieval_failures_total",
		Help:      "Number of retrieval attempts degraded to empty context",
	}, []string{"stage"})
)

// RetrieverConfig bounds the per-student retrieval work.
type RetrieverConfig struct {
	MaxDocsPerStudent int
	ChunksPerDocLimit int
	ChunkSize         int
	ChunkOverlap      int
}

// Retriever selects reference passages relevant to one student answer.
// It holds no chunk or embedding cache between invocations: every request
// rebuilds its index from scratch and discards it, trading recomputation for
// flat peak memory. The only shared state is the embedding Provider.
type Retriever struct {
	provider  *Provider
	extractor extract.Extractor
	chunker   *Chunker
	cfg       RetrieverConfig
	logger    zerolog.Logger
}

// NewRetriever wires the retrieval pipeline. The embedding provider is
// injected so all retrievers in the process share one model instance.
func NewRetriever(provider *Provider, extractor extract.Extractor, cfg RetrieverConfig, logger zerolog.Logger) (*Retriever, error) {
	chunker, err := NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	if cfg.MaxDocsPerStudent <= 0 {
		cfg.MaxDocsPerStudent = 5
	}
	if cfg.ChunksPerDocLimit <= 0 {
		cfg.ChunksPerDocLimit = 20
	}

	return &Retriever{
		provider:  provider,
		extractor: extractor,
		chunker:   chunker,
		cfg:       cfg,
		logger:    logger.With().Str("component", "retriever").Logger(),
	}, nil
}

// Retrieve returns up to topK reference passages ranked by similarity to the
// student answer, or nil when nothing relevant could be retrieved. It never
// fails: extraction, embedding and index errors all degrade to an empty
// result with a logged warning, because missing context must not sink a
// student's grading.
func (r *Retriever) Retrieve(ctx context.Context, corpus []models.ReferenceDocument, answer string, topK int) []string {
	if len(corpus) == 0 || answer == "" || topK <= 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		retrievalDuration.Observe(time.Since(start).Seconds())
	}()

	embedder, err := r.provider.Get()
	if err != nil {
		r.logger.Warn().Err(err).Msg("embedding model unavailable, grading without context")
		retrievalFailures.WithLabelValues("embedder_init").Inc()
		return nil
	}

	// Order-preserving prefix cap: documents are not re-ranked, only bounded.
	selected := corpus
	if len(selected) > r.cfg.MaxDocsPerStudent {
		selected = selected[:r.cfg.MaxDocsPerStudent]
	}

	var chunks []Chunk
	for _, doc := range selected {
		text, err := r.extractor.Extract(doc.Name, doc.Data)
		if err != nil {
			r.logger.Warn().Err(err).Str("document", doc.Name).Msg("skipping unreadable reference document")
			retrievalFailures.WithLabelValues("extract").Inc()
			continue
		}

		docChunks := r.chunker.Chunk(doc.Name, text)
		if len(docChunks) > r.cfg.ChunksPerDocLimit {
			docChunks = docChunks[:r.cfg.ChunksPerDocLimit]
		}
		chunks = append(chunks, docChunks...)
	}

	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, 0, len(chunks)+1)
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	texts = append(texts, answer)

	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		r.logger.Warn().Err(err).Int("chunks", len(chunks)).Msg("embedding failed, grading without context")
		retrievalFailures.WithLabelValues("embed").Inc()
		return nil
	}

	index, err := NewIndex(chunks, vectors[:len(chunks)])
	if err != nil {
		r.logger.Warn().Err(err).Msg("index build failed, grading without context")
		retrievalFailures.WithLabelValues("index").Inc()
		return nil
	}

	results := index.Search(vectors[len(chunks)], topK)
	passages := make([]string, 0, len(results))
	for _, res := range results {
		passages = append(passages, res.Chunk.Text)
	}
	return passages
}
