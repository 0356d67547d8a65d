package chatpipeline

import (
	"convograph/internal/llm"
	"convograph/internal/store"
	"convograph/internal/vectorindex"
)

// Pipeline wires the graph store, LLM adapter and vector adapter into the
// single-turn orchestration. One Pipeline is constructed at startup from
// injected configuration and reused across requests as a process-wide
// singleton; it holds no per-request mutable state of its own.
type Pipeline struct {
	store  store.GraphStore
	llm    llm.Adapter
	vector *vectorindex.Adapter // nil disables semantic recall entirely
}

// New constructs a Pipeline. vector may be nil to run graph-only (no
// semantic recall), the same degraded mode a vector adapter falls back to
// on search failure.
func New(graphStore store.GraphStore, llmAdapter llm.Adapter, vectorAdapter *vectorindex.Adapter) *Pipeline {
	return &Pipeline{store: graphStore, llm: llmAdapter, vector: vectorAdapter}
}
