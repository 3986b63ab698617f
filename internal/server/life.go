package server

import (
	"encoding/json"
	"net/http"
	"strconv"
)

type consumeLifeRequest struct {
	Reason string `json:"reason,omitempty"`
}

type rewardAdRequest struct {
	Provider  string `json:"provider"`
	Placement string `json:"placement"`
	Amount    int    `json:"amount"`
}

func (s *Server) handleGetLife(w http.ResponseWriter, r *http.Request) {
	balance, err := s.lifeService.GetBalance(r.Context(), userID(r))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, balance)
}

func (s *Server) handleConsumeLife(w http.ResponseWriter, r *http.Request) {
	var req consumeLifeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}

	balance, err := s.lifeService.Debit(r.Context(), userID(r), req.Reason)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, balance)
}

func (s *Server) handleLifeEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := s.lifeService.ListEvents(r.Context(), userID(r), limit)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleRewardAdComplete(w http.ResponseWriter, r *http.Request) {
	var req rewardAdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Amount == 0 {
		req.Amount = 1
	}

	balance, err := s.lifeService.RewardAd(r.Context(), userID(r), req.Provider, req.Placement, req.Amount)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, balance)
}
