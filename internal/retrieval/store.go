// Package retrieval turns user queries into ranked knowledge-base passages.
package retrieval

import "context"

// Passage is a retrieved text fragment with provenance. Smaller Distance
// means a closer match.
type Passage struct {
	Text     string  `json:"text"`
	Source   string  `json:"source"`
	Distance float32 `json:"distance"`
}

// Entry is a chunk of source text together with its embedding vector.
type Entry struct {
	Text   string
	Source string
	Vector []float32
}

// DocumentInfo summarises one ingested source.
type DocumentInfo struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}

// VectorStore indexes embedded chunks and answers nearest-neighbour
// queries. Implementations must be safe for concurrent use.
type VectorStore interface {
	Upsert(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, vector []float32, topK int) ([]Passage, error)
	Documents(ctx context.Context) ([]DocumentInfo, error)
	// DeleteSource removes every chunk ingested under the source and
	// reports how many were removed.
	DeleteSource(ctx context.Context, source string) (int, error)
}
