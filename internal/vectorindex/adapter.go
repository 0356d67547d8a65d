package vectorindex

import (
	"context"
	"fmt"
	"strings"

	"convograph/internal/observability"
)

// Embedder turns text into a vector. Defined locally (rather than importing
// internal/llm) so the vector adapter's only dependency on the embedding
// provider is this one-method shape.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SearchResult is the vector adapter's public search shape:
// { id, content, topics, score }.
type SearchResult struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Topics  []string `json:"topics"`
	Score   float64  `json:"score"`
}

const metaContent = "content"
const metaUserID = "userId"
const metaTopics = "topics"
const metaCreatedAt = "createdAt"

// Adapter is the thin "auto-embeds on write" layer over a raw Index.
type Adapter struct {
	index    Index
	embedder Embedder
}

// NewAdapter wraps an Index with an Embedder to satisfy the store/search/
// delete contract.
func NewAdapter(index Index, embedder Embedder) *Adapter {
	return &Adapter{index: index, embedder: embedder}
}

// Store upserts content under id, embedding it first and carrying userId,
// joined topics and createdAt in the point's metadata.
func (a *Adapter) Store(ctx context.Context, id, content, userID string, topics []string, createdAt int64) error {
	vector, err := a.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embed content: %w", err)
	}
	metadata := map[string]any{
		metaContent:   content,
		metaUserID:    userID,
		metaTopics:    strings.Join(topics, ","),
		metaCreatedAt: createdAt,
	}
	return a.index.Upsert(ctx, id, vector, metadata)
}

// Search embeds query and returns the topK closest hits, optionally filtered
// to userID. All failures are non-fatal for the caller — callers
// should log and fall through to graph-only context rather than fail.
func (a *Adapter) Search(ctx context.Context, query, userID string, topK int) ([]SearchResult, error) {
	vector, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	var filter map[string]any
	if userID != "" {
		filter = map[string]any{metaUserID: userID}
	}
	hits, err := a.index.Search(ctx, vector, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		result := SearchResult{ID: h.ID, Score: h.Score}
		if content, ok := h.Metadata[metaContent].(string); ok {
			result.Content = content
		}
		if topics, ok := h.Metadata[metaTopics].(string); ok && topics != "" {
			result.Topics = strings.Split(topics, ",")
		}
		results = append(results, result)
	}
	return results, nil
}

// Delete removes id from the index.
func (a *Adapter) Delete(ctx context.Context, id string) error {
	return a.index.Delete(ctx, id)
}

// SafeSearch runs Search but never returns an error: any failure is logged
// and an empty result set is returned, so semantic recall degrades silently
// instead of failing the chat turn.
func (a *Adapter) SafeSearch(ctx context.Context, query, userID string, topK int) []SearchResult {
	results, err := a.Search(ctx, query, userID, topK)
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("vector_search_degraded")
		return nil
	}
	return results
}
