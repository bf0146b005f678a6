package rag

import "fmt"

// Chunk is a contiguous span of extracted document text tagged with its
// source and position.
type Chunk struct {
	Source     string
	SequenceID int
	Text       string
}

// Chunker splits extracted text into fixed-size overlapping chunks.
// Deterministic: the same text and parameters always produce the same chunks.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker validates the chunking parameters once, at construction.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must be non-negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Chunk splits text into rune-based chunks of the configured size, each
// overlapping the next by the configured overlap. Consecutive chunks cover
// the whole text with no gaps: concatenating them with the overlap trimmed
// reproduces the input exactly. Text shorter than the chunk size yields a
// single chunk; empty text yields none.
func (c *Chunker) Chunk(source, text string) []Chunk {
	if len(text) == 0 {
		return nil
	}

	runes := []rune(text)
	step := c.size - c.overlap

	var chunks []Chunk
	for start, seq := 0, 0; ; start, seq = start+step, seq+1 {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			Source:     source,
			SequenceID: seq,
			Text:       string(runes[start:end]),
		})
		if end == len(runes) {
			return chunks
		}
	}
}
