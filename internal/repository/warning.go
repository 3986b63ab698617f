package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tarot-backend/internal/model"
)

// WarningRepository handles warning-acceptance consent records.
type WarningRepository struct {
	db Querier
}

// NewWarningRepository creates a new WarningRepository instance.
func NewWarningRepository(db Querier) *WarningRepository {
	return &WarningRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *WarningRepository) WithTx(tx pgx.Tx) *WarningRepository {
	return &WarningRepository{db: tx}
}

// Insert records a warning acceptance for (user, fortune type).
func (r *WarningRepository) Insert(ctx context.Context, userID, fortuneTypeID string) (*model.WarningAcceptance, error) {
	const query = `
		INSERT INTO warnings_acceptance (id, user_id, fortune_type_id, accepted_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, user_id, fortune_type_id, accepted_at
	`

	var wa model.WarningAcceptance
	err := r.db.QueryRow(ctx, query, uuid.NewString(), userID, fortuneTypeID).Scan(
		&wa.ID,
		&wa.UserID,
		&wa.FortuneTypeID,
		&wa.AcceptedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert warning acceptance: %w", err)
	}
	return &wa, nil
}

// HasRecent reports whether an acceptance exists for (user, fortune type)
// at or after the given instant. Acceptances do not carry over across
// unrelated fortune types.
func (r *WarningRepository) HasRecent(ctx context.Context, userID, fortuneTypeID string, since time.Time) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM warnings_acceptance
			WHERE user_id = $1 AND fortune_type_id = $2 AND accepted_at > $3
		)
	`

	var ok bool
	err := r.db.QueryRow(ctx, query, userID, fortuneTypeID, since).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check warning acceptance: %w", err)
	}
	return ok, nil
}
