package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleSaveInterpretationInput(w http.ResponseWriter, r *http.Request) {
	var extra map[string]any
	if err := json.NewDecoder(r.Body).Decode(&extra); err != nil && err != io.EOF {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input, err := s.interpService.SaveInput(r.Context(), userID(r), chi.URLParam(r, "readingID"), extra)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"input": input})
}

func (s *Server) handleGenerateInterpretation(w http.ResponseWriter, r *http.Request) {
	version, err := s.interpService.Generate(r.Context(), userID(r), chi.URLParam(r, "readingID"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, version)
}

func (s *Server) handleGetInterpretation(w http.ResponseWriter, r *http.Request) {
	in, err := s.interpService.Get(r.Context(), userID(r), chi.URLParam(r, "readingID"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, in)
}

func (s *Server) handleInterpretationHistory(w http.ResponseWriter, r *http.Request) {
	versions, err := s.interpService.History(r.Context(), userID(r), chi.URLParam(r, "readingID"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"versions": versions})
}
