package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type contextKey string

const userIDKey contextKey = "user_id"

// userID returns the authenticated user ID from the request context.
func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

// identity authenticates the caller from the X-User-ID header (the
// gateway in front of this service has already verified it) and ensures
// the account and its life balance exist before any handler runs.
func (s *Server) identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-User-ID")
		if id == "" {
			respondWithError(w, http.StatusUnauthorized, "missing X-User-ID header")
			return
		}

		if _, _, err := s.lifeService.EnsureUser(r.Context(), id); err != nil {
			log.Error().Err(err).Str("user_id", id).Msg("Failed to ensure user")
			respondWithError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger logs one line per request through the structured logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
