package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"convograph/internal/chatpipeline"
	"convograph/internal/llm"
)

func jsonMarshalFrame(frame chatpipeline.StreamFrame) ([]byte, error) {
	return json.Marshal(frame)
}

type sendRequestBody struct {
	UserID               string        `json:"userId"`
	ConversationID       string        `json:"conversationId"`
	Messages             []llm.Message `json:"messages"`
	GlobalSharingConsent *bool         `json:"globalSharingConsent"`
}

func (b sendRequestBody) toPipelineRequest() chatpipeline.SendRequest {
	return chatpipeline.SendRequest{
		UserID:               b.UserID,
		ConversationID:       b.ConversationID,
		Messages:             b.Messages,
		GlobalSharingConsent: b.GlobalSharingConsent,
	}
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var body sendRequestBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.pipeline.Send(r.Context(), body.toPipelineRequest())
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// sseFrameWriter adapts an http.ResponseWriter to chatpipeline.FrameWriter,
// framing each record as `data: <json>\n\n` and flushing immediately.
type sseFrameWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseFrameWriter) WriteFrame(frame chatpipeline.StreamFrame) error {
	data, err := jsonMarshalFrame(frame)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var body sendRequestBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	writer := &sseFrameWriter{w: w, flusher: flusher}

	if err := s.pipeline.Stream(r.Context(), body.toPipelineRequest(), writer); err != nil {
		_ = writer.WriteFrame(chatpipeline.StreamFrame{Error: err.Error()})
	}
}

type piiConsentBody struct {
	ConversationID string `json:"conversationId"`
	Consent        bool   `json:"consent"`
}

func (s *Server) handlePIIConsent(w http.ResponseWriter, r *http.Request) {
	var body piiConsentBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if body.ConversationID == "" {
		respondError(w, http.StatusBadRequest, errors.New("conversationId is required"))
		return
	}
	blocked, err := s.pipeline.ApplyPIIConsent(r.Context(), body.ConversationID, body.Consent)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "globalSharingBlocked": blocked})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	limit := parseLimit(r, 50)
	conversations, err := s.store.GetUserActiveConversations(r.Context(), userID, limit)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

// handleChatContext is a debug endpoint exposing the raw graph state a turn
// would be grounded on, without running a completion.
func (s *Server) handleChatContext(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	ctx := r.Context()

	personalInsights, err := s.store.GetRecentUserInsights(ctx, userID, 15)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	globalSummaries, err := s.store.GetGlobalConversationSummaries(ctx, userID, 15)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	globalInsights, err := s.store.GetGlobalInsights(ctx, userID, 15)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"personalInsights": personalInsights,
		"globalSummaries":  globalSummaries,
		"globalInsights":   globalInsights,
	})
}

func (s *Server) handleChatStatus(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("conversationId")
	conv, err := s.store.GetConversationStatus(r.Context(), conversationID)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	payload := map[string]any{
		"processed":        conv.Processed,
		"isUseful":         conv.IsUseful,
		"usefulnessReason": conv.UsefulnessReason,
	}
	if log, found, err := s.store.GetLatestProcessingLog(r.Context(), conversationID); err == nil && found {
		payload["processingLog"] = log
	}
	respondJSON(w, http.StatusOK, payload)
}

type deleteConversationBody struct {
	UserID string `json:"userId"`
}

func (s *Server) handleChatDelete(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("conversationId")
	var body deleteConversationBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.DeleteConversationFromUserGraph(r.Context(), conversationID, body.UserID); err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
