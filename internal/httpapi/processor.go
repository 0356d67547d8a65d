package httpapi

import (
	"errors"
	"net/http"

	procpkg "convograph/internal/processor"
)

func (s *Server) handleProcessorRun(w http.ResponseWriter, r *http.Request) {
	result, err := s.processor.Run(r.Context())
	if err != nil {
		if errors.Is(err, procpkg.ErrRunInProgress) {
			respondJSON(w, http.StatusAccepted, map[string]any{"message": "a processor run is already in progress"})
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleProcessorPending(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetProcessorStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"pending": stats.PendingCount})
}

func (s *Server) handleProcessorLogs(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50)
	logs, err := s.store.GetProcessingLogs(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (s *Server) handleProcessorStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetProcessorStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
