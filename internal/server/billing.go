package server

import (
	"encoding/json"
	"net/http"
	"time"

	"tarot-backend/internal/service"
)

type recordPurchaseRequest struct {
	Platform           string `json:"platform"`
	StoreTransactionID string `json:"store_transaction_id"`
	ProductKey         string `json:"product_key"`
	Status             string `json:"status,omitempty"`
}

type recordSubscriptionRequest struct {
	Platform            string    `json:"platform"`
	StoreSubscriptionID string    `json:"store_subscription_id"`
	Status              string    `json:"status"`
	PeriodStart         time.Time `json:"period_start"`
	PeriodEnd           time.Time `json:"period_end"`
	AutoRenew           bool      `json:"auto_renew"`
}

func (s *Server) handleRecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req recordPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	purchase, err := s.billingSvc.RecordPurchase(r.Context(), userID(r), service.PurchaseFact{
		Platform:           req.Platform,
		StoreTransactionID: req.StoreTransactionID,
		ProductKey:         req.ProductKey,
		Status:             req.Status,
	})
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, purchase)
}

func (s *Server) handleRecordSubscription(w http.ResponseWriter, r *http.Request) {
	var req recordSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := s.billingSvc.RecordSubscription(r.Context(), userID(r), service.SubscriptionFact{
		Platform:            req.Platform,
		StoreSubscriptionID: req.StoreSubscriptionID,
		Status:              req.Status,
		PeriodStart:         req.PeriodStart,
		PeriodEnd:           req.PeriodEnd,
		AutoRenew:           req.AutoRenew,
	})
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sub)
}

func (s *Server) handleBillingStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.billingSvc.Status(r.Context(), userID(r))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}
