package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type executeReadingRequest struct {
	FortuneTypeKey string         `json:"fortune_type_key"`
	Input          map[string]any `json:"input,omitempty"`
}

type executeReadingBatchRequest struct {
	FortuneTypeKeys []string       `json:"fortune_type_keys"`
	Input           map[string]any `json:"input,omitempty"`
}

type acceptWarningRequest struct {
	FortuneTypeKey string `json:"fortune_type_key"`
}

func (s *Server) handleExecuteReading(w http.ResponseWriter, r *http.Request) {
	var req executeReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FortuneTypeKey == "" {
		respondWithError(w, http.StatusBadRequest, "fortune_type_key is required")
		return
	}

	reading, err := s.readingSvc.ResolveAndExecute(r.Context(), userID(r), req.FortuneTypeKey, req.Input)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, reading)
}

func (s *Server) handleExecuteReadingBatch(w http.ResponseWriter, r *http.Request) {
	var req executeReadingBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	readings, err := s.readingSvc.ResolveAndExecuteBatch(r.Context(), userID(r), req.FortuneTypeKeys, req.Input)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]any{"readings": readings})
}

func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	readings, err := s.readingSvc.ListReadings(r.Context(), userID(r), limit)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"readings": readings})
}

func (s *Server) handleGetReading(w http.ResponseWriter, r *http.Request) {
	reading, err := s.readingSvc.GetReading(r.Context(), userID(r), chi.URLParam(r, "readingID"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, reading)
}

func (s *Server) handleAcceptWarning(w http.ResponseWriter, r *http.Request) {
	var req acceptWarningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FortuneTypeKey == "" {
		respondWithError(w, http.StatusBadRequest, "fortune_type_key is required")
		return
	}

	acceptance, err := s.readingSvc.AcceptWarning(r.Context(), userID(r), req.FortuneTypeKey)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, acceptance)
}
