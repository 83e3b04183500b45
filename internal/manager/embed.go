package manager

import (
	"context"
	"fmt"
)

// EmbedBatch returns one vector per text, in input order. The whole call
// fails when no embedding model is loaded or when the runtime misbehaves;
// partial batches are never returned.
func (m *Manager) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	h, err := m.acquireEmbedding()
	if err != nil {
		return nil, err
	}
	defer h.release()

	vectors, err := h.rt.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding runtime returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}
