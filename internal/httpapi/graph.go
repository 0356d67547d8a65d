package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"convograph/internal/graphmodel"
	"convograph/internal/store"
)

// graphMapResponse nests nodes/edges under a "graph" key per its literal
// response shape, which differs from the internal store.KnowledgeMap's flat
// Nodes/Edges fields — this is the one place that restructuring happens.
type graphMapResponse struct {
	Stats         store.GraphStats          `json:"stats"`
	Graph         graphNodesEdges           `json:"graph"`
	Topics        []graphmodel.Topic        `json:"topics"`
	Relations     []graphmodel.TopicRelation `json:"relations"`
	Insights      []graphmodel.Insight      `json:"insights"`
	Conversations []graphmodel.Conversation `json:"conversations"`
}

type graphNodesEdges struct {
	Nodes []store.GraphNode `json:"nodes"`
	Edges []store.GraphEdge `json:"edges"`
}

func toMapResponse(km store.KnowledgeMap) graphMapResponse {
	return graphMapResponse{
		Stats:         km.Stats,
		Graph:         graphNodesEdges{Nodes: km.Nodes, Edges: km.Edges},
		Topics:        km.Topics,
		Relations:     km.Relations,
		Insights:      km.Insights,
		Conversations: km.Conversations,
	}
}

func (s *Server) handleUserMap(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	km, err := s.store.GetUserKnowledgeMap(r.Context(), userID)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, toMapResponse(km))
}

func (s *Server) handleUserTopics(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	topics, err := s.store.GetAllUserTopics(r.Context(), userID)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"topics": topics})
}

func (s *Server) handleGlobalMap(w http.ResponseWriter, r *http.Request) {
	km, err := s.store.GetGlobalKnowledgeMap(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, toMapResponse(km))
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("topics")
	ctx := r.Context()
	var topicIDs []string
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		topic, err := s.store.GetOrCreateTopic(ctx, name)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		topicIDs = append(topicIDs, topic.ID)
	}
	limit := parseLimit(r, 10)
	suggested, err := s.store.GetSuggestedTopics(ctx, topicIDs, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"topics": suggested})
}

type linkTopicsBody struct {
	Topic1   string   `json:"topic1"`
	Topic2   string   `json:"topic2"`
	Strength *float64 `json:"strength"`
}

func (s *Server) handleLinkTopics(w http.ResponseWriter, r *http.Request) {
	var body linkTopicsBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if body.Topic1 == "" || body.Topic2 == "" {
		respondError(w, http.StatusBadRequest, errors.New("topic1 and topic2 are required"))
		return
	}
	strength := graphmodel.DefaultRelationStrength
	if body.Strength != nil {
		strength = *body.Strength
	}

	ctx := r.Context()
	t1, err := s.store.GetOrCreateTopic(ctx, body.Topic1)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	t2, err := s.store.GetOrCreateTopic(ctx, body.Topic2)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	relation, err := s.store.LinkTopics(ctx, t1.ID, t2.ID, strength)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, relation)
}
