// Package server exposes the HTTP API: reading execution, life balance,
// reward ads, warnings, billing, and interpretations.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tarot-backend/internal/pkg/db"
	"tarot-backend/internal/service"
)

// Server wires services into the HTTP router.
type Server struct {
	pool          *db.Pool
	readingSvc    *service.ReadingService
	lifeService   *service.LifeService
	billingSvc    *service.BillingService
	interpService *service.InterpretationService
}

// NewServer creates a new Server instance.
func NewServer(
	pool *db.Pool,
	readingSvc *service.ReadingService,
	lifeService *service.LifeService,
	billingSvc *service.BillingService,
	interpService *service.InterpretationService,
) *Server {
	return &Server{
		pool:          pool,
		readingSvc:    readingSvc,
		lifeService:   lifeService,
		billingSvc:    billingSvc,
		interpService: interpService,
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.identity)

		r.Route("/readings", func(r chi.Router) {
			r.Post("/execute", s.handleExecuteReading)
			r.Post("/execute-batch", s.handleExecuteReadingBatch)
			r.Get("/", s.handleListReadings)
			r.Get("/{readingID}", s.handleGetReading)

			r.Route("/{readingID}/interpretation", func(r chi.Router) {
				r.Get("/", s.handleGetInterpretation)
				r.Post("/input", s.handleSaveInterpretationInput)
				r.Post("/generate", s.handleGenerateInterpretation)
				r.Get("/history", s.handleInterpretationHistory)
			})
		})

		r.Route("/life", func(r chi.Router) {
			r.Get("/", s.handleGetLife)
			r.Post("/consume", s.handleConsumeLife)
			r.Get("/events", s.handleLifeEvents)
		})

		r.Post("/ads/reward/complete", s.handleRewardAdComplete)
		r.Post("/warnings/accept", s.handleAcceptWarning)

		r.Route("/billing", func(r chi.Router) {
			r.Post("/purchases", s.handleRecordPurchase)
			r.Post("/subscriptions", s.handleRecordSubscription)
			r.Get("/status", s.handleBillingStatus)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.pool.HealthCheck(r.Context()); err != nil {
		respondWithError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
