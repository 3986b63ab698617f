package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tarot-backend/internal/model"
)

// UserRepository handles user and life-balance row creation.
type UserRepository struct {
	db Querier
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(db Querier) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	return &UserRepository{db: tx}
}

// GetByID retrieves a user by ID. Returns ErrUserNotFound if absent.
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*model.User, error) {
	const query = `SELECT id, created_at FROM users WHERE id = $1`

	var user model.User
	err := r.db.QueryRow(ctx, query, userID).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// GetOrCreate ensures a user exists, creating the account and its life
// balance in one statement pair. New accounts start with the configured
// initial balance. Returns whether the user was newly created.
func (r *UserRepository) GetOrCreate(ctx context.Context, userID string, initialLife, maxLife int) (*model.User, bool, error) {
	user, err := r.GetByID(ctx, userID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	const insertUser = `
		INSERT INTO users (id, created_at)
		VALUES ($1, NOW())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, insertUser, userID); err != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	// Life row is created alongside the user and mutated only through
	// the ledger afterwards.
	const insertLife = `
		INSERT INTO user_lives (user_id, current_life, max_life, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, insertLife, userID, initialLife, maxLife); err != nil {
		return nil, false, fmt.Errorf("failed to create life balance: %w", err)
	}

	user, err = r.GetByID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// Exists checks if a user with the given ID exists.
func (r *UserRepository) Exists(ctx context.Context, userID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}
