// Package httpapi exposes the endpoints over net/http's pattern router.
package httpapi

import (
	"net/http"

	"convograph/internal/chatpipeline"
	"convograph/internal/processor"
	"convograph/internal/store"
	"convograph/internal/vectorindex"
)

// Server wires the chat pipeline, processor, graph store and vector adapter
// into the HTTP surface.
type Server struct {
	pipeline  *chatpipeline.Pipeline
	processor *processor.Processor
	store     store.GraphStore
	vector    *vectorindex.Adapter
	mux       *http.ServeMux
}

// NewServer constructs the HTTP API server. vector may be nil.
func NewServer(pipeline *chatpipeline.Pipeline, proc *processor.Processor, graphStore store.GraphStore, vector *vectorindex.Adapter) *Server {
	s := &Server{pipeline: pipeline, processor: proc, store: graphStore, vector: vector, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	// Chat
	s.mux.HandleFunc("POST /api/chat/send", s.handleChatSend)
	s.mux.HandleFunc("POST /api/chat/stream", s.handleChatStream)
	s.mux.HandleFunc("POST /api/chat/pii-consent", s.handlePIIConsent)
	s.mux.HandleFunc("GET /api/chat/history/{userId}", s.handleChatHistory)
	s.mux.HandleFunc("GET /api/chat/context/{userId}", s.handleChatContext)
	s.mux.HandleFunc("GET /api/chat/status/{conversationId}", s.handleChatStatus)
	s.mux.HandleFunc("DELETE /api/chat/{conversationId}", s.handleChatDelete)

	// Graph
	s.mux.HandleFunc("GET /api/graph/user/{userId}/map", s.handleUserMap)
	s.mux.HandleFunc("GET /api/graph/user/{userId}/topics", s.handleUserTopics)
	s.mux.HandleFunc("GET /api/graph/user/{userId}/full", s.handleUserMap)
	s.mux.HandleFunc("GET /api/graph/global", s.handleGlobalMap)
	s.mux.HandleFunc("GET /api/graph/suggestions", s.handleSuggestions)
	s.mux.HandleFunc("POST /api/graph/link-topics", s.handleLinkTopics)

	// Knowledge (vector)
	s.mux.HandleFunc("POST /api/knowledge/search", s.handleKnowledgeSearch)
	s.mux.HandleFunc("POST /api/knowledge/add", s.handleKnowledgeAdd)
	s.mux.HandleFunc("DELETE /api/knowledge/{insightId}", s.handleKnowledgeDelete)
	s.mux.HandleFunc("GET /api/knowledge/stats/{userId}", s.handleKnowledgeStats)

	// Processor
	s.mux.HandleFunc("POST /api/processor/run", s.handleProcessorRun)
	s.mux.HandleFunc("GET /api/processor/pending", s.handleProcessorPending)
	s.mux.HandleFunc("GET /api/processor/logs", s.handleProcessorLogs)
	s.mux.HandleFunc("GET /api/processor/stats", s.handleProcessorStats)

	// Health
	s.mux.HandleFunc("GET /api/ping", s.handlePing)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
}
