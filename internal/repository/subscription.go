package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tarot-backend/internal/model"
)

// SubscriptionRepository handles subscription persistence. Re-verification
// upserts by (platform, store_subscription_id): a last-write-wins merge
// keyed by store identity, not by user, so replays from any source are
// idempotent.
type SubscriptionRepository struct {
	db Querier
}

// NewSubscriptionRepository creates a new SubscriptionRepository instance.
func NewSubscriptionRepository(db Querier) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *SubscriptionRepository) WithTx(tx pgx.Tx) *SubscriptionRepository {
	return &SubscriptionRepository{db: tx}
}

// Upsert records an externally-verified subscription fact.
func (r *SubscriptionRepository) Upsert(ctx context.Context, userID, platform, storeSubscriptionID, status string, periodStart, periodEnd time.Time, autoRenew bool) (*model.Subscription, error) {
	const query = `
		INSERT INTO subscriptions (id, user_id, platform, store_subscription_id, status, current_period_start, current_period_end, auto_renew, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (platform, store_subscription_id)
		DO UPDATE SET
			status = EXCLUDED.status,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			auto_renew = EXCLUDED.auto_renew,
			verified_at = EXCLUDED.verified_at
		RETURNING id, user_id, platform, store_subscription_id, status, current_period_start, current_period_end, auto_renew, verified_at
	`

	var sub model.Subscription
	err := r.db.QueryRow(ctx, query, uuid.NewString(), userID, platform, storeSubscriptionID, status, periodStart, periodEnd, autoRenew).Scan(
		&sub.ID,
		&sub.UserID,
		&sub.Platform,
		&sub.StoreSubscriptionID,
		&sub.Status,
		&sub.PeriodStart,
		&sub.PeriodEnd,
		&sub.AutoRenew,
		&sub.VerifiedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return &sub, nil
}

// HasActive reports whether the user holds a subscription with status
// active and a period end in the future.
func (r *SubscriptionRepository) HasActive(ctx context.Context, userID string) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM subscriptions
			WHERE user_id = $1 AND status = $2 AND current_period_end > NOW()
		)
	`

	var active bool
	err := r.db.QueryRow(ctx, query, userID, model.SubscriptionActive).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("failed to check active subscription: %w", err)
	}
	return active, nil
}

// GetActive returns the active subscription expiring last, or nil when
// the user holds none.
func (r *SubscriptionRepository) GetActive(ctx context.Context, userID string) (*model.Subscription, error) {
	const query = `
		SELECT id, user_id, platform, store_subscription_id, status, current_period_start, current_period_end, auto_renew, verified_at
		FROM subscriptions
		WHERE user_id = $1 AND status = $2 AND current_period_end > NOW()
		ORDER BY current_period_end DESC
		LIMIT 1
	`

	var sub model.Subscription
	err := r.db.QueryRow(ctx, query, userID, model.SubscriptionActive).Scan(
		&sub.ID,
		&sub.UserID,
		&sub.Platform,
		&sub.StoreSubscriptionID,
		&sub.Status,
		&sub.PeriodStart,
		&sub.PeriodEnd,
		&sub.AutoRenew,
		&sub.VerifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active subscription: %w", err)
	}
	return &sub, nil
}
