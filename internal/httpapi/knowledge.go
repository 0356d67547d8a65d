package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"convograph/internal/graphmodel"
	"convograph/internal/store"
)

// nowUnix is UNIX seconds, the timestamp unit used for persisted state.
func nowUnix() int64 { return time.Now().UTC().Unix() }

type knowledgeSearchBody struct {
	Query  string `json:"query"`
	UserID string `json:"userId"`
	TopK   int    `json:"topK"`
}

func (s *Server) handleKnowledgeSearch(w http.ResponseWriter, r *http.Request) {
	if s.vector == nil {
		respondJSON(w, http.StatusOK, map[string]any{"results": []any{}})
		return
	}
	var body knowledgeSearchBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if body.TopK <= 0 {
		body.TopK = 10
	}
	results, err := s.vector.Search(r.Context(), body.Query, body.UserID, body.TopK)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

type knowledgeAddBody struct {
	Content string   `json:"content"`
	UserID  string   `json:"userId"`
	Topics  []string `json:"topics"`
}

func (s *Server) handleKnowledgeAdd(w http.ResponseWriter, r *http.Request) {
	var body knowledgeAddBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if body.Content == "" || body.UserID == "" {
		respondError(w, http.StatusBadRequest, errors.New("content and userId are required"))
		return
	}

	ctx := r.Context()
	user, err := s.store.GetOrCreateUser(ctx, body.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	// Externally ingested insights still need an owning conversation; a
	// dedicated one-message conversation stands in for the email/ingestion
	// collaborator that produced them.
	conv, err := s.store.CreateConversation(ctx, body.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if _, err := s.store.AddMessage(ctx, conv.ID, graphmodel.RoleUser, body.Content); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	topicIDs := make([]string, 0, len(body.Topics))
	for _, name := range body.Topics {
		topic, err := s.store.GetOrCreateTopic(ctx, name)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		topicIDs = append(topicIDs, topic.ID)
		if err := s.store.LinkConversationToTopics(ctx, conv.ID, []string{topic.ID}); err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
	}

	id := uuid.NewString()
	if s.vector != nil {
		if err := s.vector.Store(ctx, id, body.Content, body.UserID, body.Topics, nowUnix()); err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
	}

	in := graphmodel.Insight{
		ID:              id,
		ConversationID:  conv.ID,
		UserID:          body.UserID,
		Content:         body.Content,
		ImportanceScore: graphmodel.InsightImportanceIngested,
	}
	saved, err := s.store.SaveInsight(ctx, in, topicIDs)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	// The topics and insight are already written above; stamp the
	// conversation processed so the deferred processor never re-analyzes
	// and re-promotes content that arrived through direct ingestion.
	promotion := store.Promotion{
		ConversationID:   conv.ID,
		UserID:           body.UserID,
		Summary:          body.Content,
		ConsentGlobal:    user.ConsentGlobal,
		UsefulnessReason: "externally ingested",
	}
	if err := s.store.PromoteConversation(ctx, promotion); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleKnowledgeDelete(w http.ResponseWriter, r *http.Request) {
	insightID := r.PathValue("insightId")
	if s.vector != nil {
		if err := s.vector.Delete(r.Context(), insightID); err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleKnowledgeStats(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	insights, err := s.store.GetRecentUserInsights(r.Context(), userID, 0)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"insightCount": len(insights)})
}
