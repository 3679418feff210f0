package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"classdesk/internal/countdown"
	"classdesk/internal/domain"
)

func (s *Server) handleStartDelete(w http.ResponseWriter, r *http.Request) {
	var req domain.StartDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	window := time.Duration(req.DurationSeconds) * time.Second
	err := s.controller.Start(r.Context(), req.TargetID, domain.Scope(req.Scope), req.Message, window)
	if err != nil {
		switch {
		case errors.Is(err, countdown.ErrInvalidTarget):
			s.respondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, countdown.ErrBusy):
			s.respondWithError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("failed to start countdown", zap.Error(err))
			s.respondWithError(w, http.StatusInternalServerError, "Could not start countdown")
		}
		return
	}

	s.respondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Deletion scheduled"})
}

func (s *Server) handleGetPending(w http.ResponseWriter, r *http.Request) {
	st := s.controller.Status()
	if st.State == countdown.StateIdle {
		s.respondWithError(w, http.StatusNotFound, "No pending delete")
		return
	}
	s.respondWithJSON(w, http.StatusOK, domain.PendingDeleteResponse{
		State:         st.State.String(),
		TargetID:      st.Record.TargetID,
		Scope:         string(st.Record.Scope),
		Message:       st.Record.Message,
		EndsAtEpochMs: st.Record.EndsAtEpochMs,
		SecondsLeft:   st.SecondsLeft,
		Error:         st.Err,
	})
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Undo(r.Context()); err != nil {
		if errors.Is(err, countdown.ErrNoPending) {
			s.respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("failed to undo countdown", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not undo")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents streams refresh signals to the UI as server-sent events.
// Each signal means "re-fetch your data"; there is no payload.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondWithError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	signals, cancel := s.signals.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-signals:
			if _, err := w.Write([]byte("event: refresh\ndata: {}\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	healthStatus := map[string]string{"store": "healthy"}
	if err := s.store.Ping(ctx); err != nil {
		healthStatus["store"] = "unhealthy"
		s.logger.Error("health check failed for store", zap.Error(err))
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}

	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

// --- Helper Functions ---

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
