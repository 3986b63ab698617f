package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tarot-backend/internal/model"
)

// ReadingRepository handles reading persistence. Readings are immutable
// once created.
type ReadingRepository struct {
	db Querier
}

// NewReadingRepository creates a new ReadingRepository instance.
func NewReadingRepository(db Querier) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *ReadingRepository) WithTx(tx pgx.Tx) *ReadingRepository {
	return &ReadingRepository{db: tx}
}

// Insert persists a new reading.
func (r *ReadingRepository) Insert(ctx context.Context, readingID, userID, fortuneTypeID, accessTypeUsed string, input map[string]any, result any, seed string) (*model.Reading, error) {
	const query = `
		INSERT INTO readings (id, user_id, fortune_type_id, access_type, input_json, result_json, seed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, user_id, fortune_type_id, access_type, input_json, result_json, seed, created_at
	`
	if input == nil {
		input = map[string]any{}
	}
	return r.scanReading(r.db.QueryRow(ctx, query, readingID, userID, fortuneTypeID, accessTypeUsed, input, result, seed))
}

// LatestSince returns the newest reading for (user, fortune type) created
// at or after the given boundary, or ErrReadingNotFound. This is the
// daily-idempotency cache lookup.
func (r *ReadingRepository) LatestSince(ctx context.Context, userID, fortuneTypeID string, boundary time.Time) (*model.Reading, error) {
	const query = `
		SELECT id, user_id, fortune_type_id, access_type, input_json, result_json, seed, created_at
		FROM readings
		WHERE user_id = $1 AND fortune_type_id = $2 AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanReading(r.db.QueryRow(ctx, query, userID, fortuneTypeID, boundary))
}

// GetByID retrieves a reading. An empty userID skips the ownership filter
// (administrative access).
func (r *ReadingRepository) GetByID(ctx context.Context, userID, readingID string) (*model.Reading, error) {
	const query = `
		SELECT id, user_id, fortune_type_id, access_type, input_json, result_json, seed, created_at
		FROM readings
		WHERE id = $1 AND ($2 = '' OR user_id = $2)
	`
	return r.scanReading(r.db.QueryRow(ctx, query, readingID, userID))
}

// ListByUser returns a user's readings, newest first. An empty userID
// lists across all users (administrative access).
func (r *ReadingRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Reading, error) {
	const query = `
		SELECT id, user_id, fortune_type_id, access_type, input_json, result_json, seed, created_at
		FROM readings
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	defer rows.Close()

	var readings []*model.Reading
	for rows.Next() {
		var reading model.Reading
		err := rows.Scan(
			&reading.ID,
			&reading.UserID,
			&reading.FortuneTypeID,
			&reading.AccessTypeUsed,
			&reading.Input,
			&reading.Result,
			&reading.Seed,
			&reading.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, &reading)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating readings: %w", err)
	}
	return readings, nil
}

func (r *ReadingRepository) scanReading(row pgx.Row) (*model.Reading, error) {
	var reading model.Reading
	err := row.Scan(
		&reading.ID,
		&reading.UserID,
		&reading.FortuneTypeID,
		&reading.AccessTypeUsed,
		&reading.Input,
		&reading.Result,
		&reading.Seed,
		&reading.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReadingNotFound
		}
		return nil, fmt.Errorf("failed to scan reading: %w", err)
	}
	return &reading, nil
}
