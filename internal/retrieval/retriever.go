package retrieval

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

const defaultTopK = 3

// Embedder produces one vector per input text. Satisfied by the inference
// client; swapped for a fake in tests.
type Embedder interface {
	Embeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever embeds queries and ranks knowledge-base passages against them.
type Retriever struct {
	embedder   Embedder
	store      VectorStore
	topK       int
	chunkChars int
	log        zerolog.Logger
}

func NewRetriever(embedder Embedder, store VectorStore, topK, chunkChars int, log zerolog.Logger) *Retriever {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Retriever{embedder: embedder, store: store, topK: topK, chunkChars: chunkChars, log: log}
}

// Retrieve returns the passages most relevant to the query. Retrieval is
// best-effort: embedding or search failures are logged and yield an empty
// result so the caller can fall back to an unaugmented answer.
func (r *Retriever) Retrieve(ctx context.Context, query string) []Passage {
	vecs, err := r.embedder.Embeddings(ctx, []string{query})
	if err != nil {
		r.log.Warn().Err(err).Msg("query embedding failed, answering without context")
		return nil
	}
	if len(vecs) != 1 {
		r.log.Warn().Int("count", len(vecs)).Msg("unexpected embedding count, answering without context")
		return nil
	}
	passages, err := r.store.Search(ctx, vecs[0], r.topK)
	if err != nil {
		r.log.Warn().Err(err).Msg("vector search failed, answering without context")
		return nil
	}
	return passages
}

// Ingest chunks a document, embeds every chunk in one batch, and indexes
// the result under the given source identifier. Unlike Retrieve, ingestion
// errors are returned: a silently empty knowledge base helps nobody.
func (r *Retriever) Ingest(ctx context.Context, source, text string) (int, error) {
	chunks := ChunkText(text, r.chunkChars)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("document %q contains no text", source)
	}
	vecs, err := r.embedder.Embeddings(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed %q: %w", source, err)
	}
	if len(vecs) != len(chunks) {
		return 0, fmt.Errorf("embed %q: got %d vectors for %d chunks", source, len(vecs), len(chunks))
	}
	entries := make([]Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = Entry{Text: c, Source: source, Vector: vecs[i]}
	}
	if err := r.store.Upsert(ctx, entries); err != nil {
		return 0, fmt.Errorf("index %q: %w", source, err)
	}
	r.log.Info().Str("source", source).Int("chunks", len(chunks)).Msg("document ingested")
	return len(chunks), nil
}

// Documents lists the ingested sources and their chunk counts.
func (r *Retriever) Documents(ctx context.Context) ([]DocumentInfo, error) {
	return r.store.Documents(ctx)
}

// DeleteDocument removes every chunk ingested under the source and
// reports how many were removed. Zero means the source was never
// ingested.
func (r *Retriever) DeleteDocument(ctx context.Context, source string) (int, error) {
	removed, err := r.store.DeleteSource(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("delete %q: %w", source, err)
	}
	if removed > 0 {
		r.log.Info().Str("source", source).Int("chunks", removed).Msg("document removed")
	}
	return removed, nil
}
