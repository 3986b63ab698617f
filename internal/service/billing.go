package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"tarot-backend/internal/apperr"
	"tarot-backend/internal/model"
	"tarot-backend/internal/repository"
)

// PurchaseFact is an externally-verified purchase, supplied by the
// receipt-verification collaborator.
type PurchaseFact struct {
	Platform           string
	StoreTransactionID string
	ProductKey         string
	Status             string
}

// SubscriptionFact is an externally-verified subscription.
type SubscriptionFact struct {
	Platform            string
	StoreSubscriptionID string
	Status              string
	PeriodStart         time.Time
	PeriodEnd           time.Time
	AutoRenew           bool
}

// BillingStatus summarizes a user's subscription state for clients.
type BillingStatus struct {
	SubscriptionActive    bool       `json:"subscription_active"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
	AdsDisabled           bool       `json:"ads_disabled"`
}

// BillingService reconciles verified purchase/subscription facts into the
// entitlement store. Both operations are idempotent upserts keyed by the
// platform-scoped store identity, so client retries after a dropped
// response are safe no-ops rather than duplicate grants.
type BillingService struct {
	catalogRepo  *repository.CatalogRepository
	purchaseRepo *repository.PurchaseRepository
	subRepo      *repository.SubscriptionRepository
}

// NewBillingService creates a new BillingService instance.
func NewBillingService(
	catalogRepo *repository.CatalogRepository,
	purchaseRepo *repository.PurchaseRepository,
	subRepo *repository.SubscriptionRepository,
) *BillingService {
	return &BillingService{
		catalogRepo:  catalogRepo,
		purchaseRepo: purchaseRepo,
		subRepo:      subRepo,
	}
}

// RecordPurchase idempotently records a verified purchase fact.
func (s *BillingService) RecordPurchase(ctx context.Context, userID string, fact PurchaseFact) (*model.Purchase, error) {
	if fact.Platform != "ios" && fact.Platform != "android" {
		return nil, apperr.InvalidArgument("invalid platform: %s", fact.Platform)
	}
	if fact.StoreTransactionID == "" {
		return nil, apperr.InvalidArgument("missing store transaction id")
	}
	if fact.Status == "" {
		fact.Status = model.PurchaseVerified
	}

	product, err := s.catalogRepo.GetProduct(ctx, fact.ProductKey, fact.Platform)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, apperr.NotFound("product not found: %s", fact.ProductKey)
		}
		return nil, err
	}

	purchase, err := s.purchaseRepo.Upsert(ctx, userID, product.ID, fact.Platform, fact.StoreTransactionID, fact.Status)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID).
		Str("platform", fact.Platform).
		Str("store_transaction_id", fact.StoreTransactionID).
		Str("status", purchase.Status).
		Msg("Purchase recorded")

	return purchase, nil
}

// RecordSubscription idempotently records a verified subscription fact.
func (s *BillingService) RecordSubscription(ctx context.Context, userID string, fact SubscriptionFact) (*model.Subscription, error) {
	if fact.Platform != "ios" && fact.Platform != "android" {
		return nil, apperr.InvalidArgument("invalid platform: %s", fact.Platform)
	}
	if fact.StoreSubscriptionID == "" {
		return nil, apperr.InvalidArgument("missing store subscription id")
	}
	if fact.PeriodStart.IsZero() || fact.PeriodEnd.IsZero() {
		return nil, apperr.InvalidArgument("missing subscription period")
	}

	sub, err := s.subRepo.Upsert(ctx, userID, fact.Platform, fact.StoreSubscriptionID, fact.Status, fact.PeriodStart, fact.PeriodEnd, fact.AutoRenew)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID).
		Str("platform", fact.Platform).
		Str("store_subscription_id", fact.StoreSubscriptionID).
		Str("status", sub.Status).
		Time("period_end", sub.PeriodEnd).
		Msg("Subscription recorded")

	return sub, nil
}

// Status returns the user's current subscription summary.
func (s *BillingService) Status(ctx context.Context, userID string) (*BillingStatus, error) {
	sub, err := s.subRepo.GetActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &BillingStatus{}
	if sub != nil {
		status.SubscriptionActive = true
		status.SubscriptionExpiresAt = &sub.PeriodEnd
		status.AdsDisabled = true
	}
	return status, nil
}
