package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tarot-backend/internal/model"
)

// AdEventRepository handles reward-ad event persistence. Events are
// append-only; the throttle only counts them inside rolling windows.
type AdEventRepository struct {
	db Querier
}

// NewAdEventRepository creates a new AdEventRepository instance.
func NewAdEventRepository(db Querier) *AdEventRepository {
	return &AdEventRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *AdEventRepository) WithTx(tx pgx.Tx) *AdEventRepository {
	return &AdEventRepository{db: tx}
}

// CountRewardsSince counts reward events for (user, placement) newer than
// the given instant.
func (r *AdEventRepository) CountRewardsSince(ctx context.Context, userID, placement string, since time.Time) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM ad_events
		WHERE user_id = $1 AND ad_type = $2 AND placement = $3 AND event_time > $4
	`

	var count int
	err := r.db.QueryRow(ctx, query, userID, model.AdTypeReward, placement, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ad events: %w", err)
	}
	return count, nil
}

// Insert records one completed reward ad.
func (r *AdEventRepository) Insert(ctx context.Context, userID, provider, placement string, amount int) (*model.AdRewardEvent, error) {
	const query = `
		INSERT INTO ad_events (id, user_id, ad_type, provider, placement, rewarded, reward_amount, event_time)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, NOW())
		RETURNING id, user_id, ad_type, provider, placement, rewarded, reward_amount, event_time
	`

	var event model.AdRewardEvent
	err := r.db.QueryRow(ctx, query, uuid.NewString(), userID, model.AdTypeReward, provider, placement, amount).Scan(
		&event.ID,
		&event.UserID,
		&event.AdType,
		&event.Provider,
		&event.Placement,
		&event.Rewarded,
		&event.Amount,
		&event.EventTime,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ad event: %w", err)
	}
	return &event, nil
}
