package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"tarot-backend/internal/apperr"
)

type errorResponse struct {
	Error string `json:"error"`
}

// Helper functions for JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, errorResponse{Error: message})
}

// respondAppError maps the service error taxonomy onto HTTP statuses.
// Errors outside the taxonomy are internal failures and stay opaque.
func respondAppError(w http.ResponseWriter, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		respondWithError(w, http.StatusNotFound, err.Error())
	case apperr.KindForbidden:
		respondWithError(w, http.StatusForbidden, err.Error())
	case apperr.KindConflict:
		respondWithError(w, http.StatusConflict, err.Error())
	case apperr.KindRateLimited:
		respondWithError(w, http.StatusTooManyRequests, err.Error())
	case apperr.KindInvalidArgument:
		respondWithError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("Internal error")
		respondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}
