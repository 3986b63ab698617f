package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tarot-backend/internal/model"
)

// PurchaseRepository handles one-time purchase persistence. Upserts are
// keyed by (platform, store_transaction_id) so repeated verification
// calls merge instead of duplicating grants.
type PurchaseRepository struct {
	db Querier
}

// NewPurchaseRepository creates a new PurchaseRepository instance.
func NewPurchaseRepository(db Querier) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *PurchaseRepository) WithTx(tx pgx.Tx) *PurchaseRepository {
	return &PurchaseRepository{db: tx}
}

// Upsert records an externally-verified purchase fact. An existing row
// for the same store identity has its mutable fields overwritten.
func (r *PurchaseRepository) Upsert(ctx context.Context, userID, productID, platform, storeTransactionID, status string) (*model.Purchase, error) {
	const query = `
		INSERT INTO purchases (id, user_id, product_id, platform, store_transaction_id, status, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (platform, store_transaction_id)
		DO UPDATE SET status = EXCLUDED.status, verified_at = EXCLUDED.verified_at
		RETURNING id, user_id, product_id, platform, store_transaction_id, status, verified_at
	`
	return r.scanPurchase(r.db.QueryRow(ctx, query, uuid.NewString(), userID, productID, platform, storeTransactionID, status))
}

// LockOldestVerified locks the oldest unconsumed verified purchase whose
// product unlocks the given fortune type. Tie-break: earliest
// verification time, then identifier. The lock holds until the enclosing
// transaction ends so a concurrent request cannot consume the same row.
func (r *PurchaseRepository) LockOldestVerified(ctx context.Context, userID, fortuneTypeID string) (*model.Purchase, error) {
	const query = `
		SELECT p.id, p.user_id, p.product_id, p.platform, p.store_transaction_id, p.status, p.verified_at
		FROM purchases p
		JOIN products pr ON p.product_id = pr.id
		WHERE p.user_id = $1 AND p.status = $2 AND pr.fortune_type_id = $3
		ORDER BY p.verified_at ASC NULLS LAST, p.id ASC
		LIMIT 1
		FOR UPDATE OF p
	`

	purchase, err := r.scanPurchase(r.db.QueryRow(ctx, query, userID, model.PurchaseVerified, fortuneTypeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoVerifiedPurchase
		}
		return nil, err
	}
	return purchase, nil
}

// MarkConsumed transitions a locked purchase to consumed. The single
// verified->consumed transition is what makes a one-time good one-time.
func (r *PurchaseRepository) MarkConsumed(ctx context.Context, purchaseID string) error {
	const query = `UPDATE purchases SET status = $2 WHERE id = $1 AND status = $3`

	tag, err := r.db.Exec(ctx, query, purchaseID, model.PurchaseConsumed, model.PurchaseVerified)
	if err != nil {
		return fmt.Errorf("failed to mark purchase consumed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoVerifiedPurchase
	}
	return nil
}

// GetByID retrieves a purchase.
func (r *PurchaseRepository) GetByID(ctx context.Context, purchaseID string) (*model.Purchase, error) {
	const query = `
		SELECT id, user_id, product_id, platform, store_transaction_id, status, verified_at
		FROM purchases
		WHERE id = $1
	`
	return r.scanPurchase(r.db.QueryRow(ctx, query, purchaseID))
}

func (r *PurchaseRepository) scanPurchase(row pgx.Row) (*model.Purchase, error) {
	var p model.Purchase
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.ProductID,
		&p.Platform,
		&p.StoreTransactionID,
		&p.Status,
		&p.VerifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan purchase: %w", err)
	}
	return &p, nil
}
