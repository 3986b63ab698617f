package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tarot-backend/internal/model"
)

// LifeRepository handles the per-user life balance and its event log.
// Balance mutations are read-modify-write and must run on a transaction
// Querier after GetForUpdate has taken the row lock.
type LifeRepository struct {
	db Querier
}

// NewLifeRepository creates a new LifeRepository instance.
func NewLifeRepository(db Querier) *LifeRepository {
	return &LifeRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *LifeRepository) WithTx(tx pgx.Tx) *LifeRepository {
	return &LifeRepository{db: tx}
}

// GetBalance retrieves a user's life balance without locking.
func (r *LifeRepository) GetBalance(ctx context.Context, userID string) (*model.LifeBalance, error) {
	const query = `
		SELECT user_id, current_life, max_life, updated_at
		FROM user_lives
		WHERE user_id = $1
	`
	return r.scanBalance(r.db.QueryRow(ctx, query, userID))
}

// GetForUpdate locks the user's life row for the remainder of the
// enclosing transaction and returns the current balance.
func (r *LifeRepository) GetForUpdate(ctx context.Context, userID string) (*model.LifeBalance, error) {
	const query = `
		SELECT user_id, current_life, max_life, updated_at
		FROM user_lives
		WHERE user_id = $1
		FOR UPDATE
	`
	return r.scanBalance(r.db.QueryRow(ctx, query, userID))
}

// Decrement subtracts one life. Callers must hold the row lock and have
// verified the balance is positive.
func (r *LifeRepository) Decrement(ctx context.Context, userID string) (*model.LifeBalance, error) {
	const query = `
		UPDATE user_lives
		SET current_life = current_life - 1, updated_at = NOW()
		WHERE user_id = $1
		RETURNING user_id, current_life, max_life, updated_at
	`
	return r.scanBalance(r.db.QueryRow(ctx, query, userID))
}

// CreditClamped adds amount to the balance, clamped to max. Callers must
// hold the row lock.
func (r *LifeRepository) CreditClamped(ctx context.Context, userID string, amount int) (*model.LifeBalance, error) {
	const query = `
		UPDATE user_lives
		SET current_life = LEAST(current_life + $2, max_life), updated_at = NOW()
		WHERE user_id = $1
		RETURNING user_id, current_life, max_life, updated_at
	`
	return r.scanBalance(r.db.QueryRow(ctx, query, userID, amount))
}

// AppendEvent writes one ledger event. Called in the same transaction as
// the balance mutation it records, never independently.
func (r *LifeRepository) AppendEvent(ctx context.Context, userID, eventType string, amount int, reason string, adEventID *string) (*model.LifeEvent, error) {
	const query = `
		INSERT INTO life_events (id, user_id, event_type, amount, reason, related_ad_event_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, user_id, event_type, amount, reason, related_ad_event_id, created_at
	`

	var event model.LifeEvent
	err := r.db.QueryRow(ctx, query, uuid.NewString(), userID, eventType, amount, reason, adEventID).Scan(
		&event.ID,
		&event.UserID,
		&event.EventType,
		&event.Amount,
		&event.Reason,
		&event.AdEventID,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append life event: %w", err)
	}
	return &event, nil
}

// ListEvents returns a user's most recent ledger events.
func (r *LifeRepository) ListEvents(ctx context.Context, userID string, limit int) ([]*model.LifeEvent, error) {
	const query = `
		SELECT id, user_id, event_type, amount, reason, related_ad_event_id, created_at
		FROM life_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list life events: %w", err)
	}
	defer rows.Close()

	var events []*model.LifeEvent
	for rows.Next() {
		var event model.LifeEvent
		err := rows.Scan(
			&event.ID,
			&event.UserID,
			&event.EventType,
			&event.Amount,
			&event.Reason,
			&event.AdEventID,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan life event: %w", err)
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating life events: %w", err)
	}
	return events, nil
}

func (r *LifeRepository) scanBalance(row pgx.Row) (*model.LifeBalance, error) {
	var balance model.LifeBalance
	err := row.Scan(
		&balance.UserID,
		&balance.Current,
		&balance.Max,
		&balance.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLifeNotFound
		}
		return nil, fmt.Errorf("failed to scan life balance: %w", err)
	}
	return &balance, nil
}
