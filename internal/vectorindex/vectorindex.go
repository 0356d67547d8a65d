// Package vectorindex is the semantic-recall adapter: embeddings
// are stored against an insight id and retrieved by cosine similarity,
// scoped per user via metadata filtering. Grounded on the Qdrant provider
// in kadirpekel-hector/pkg/vector/qdrant.go.
package vectorindex

import "context"

// Hit is a single similarity-search result.
type Hit struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// SimilarityThreshold is the minimum cosine score a hit must clear to be
// considered relevant recall rather than noise.
const SimilarityThreshold = 0.5

// Index stores and retrieves embeddings for insights.
type Index interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error
	Search(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]Hit, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
