package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tarot-backend/internal/model"
)

// InterpretationRepository handles narrative interpretation persistence.
// Generated narratives are versioned per reading; the interpretation row
// always mirrors the latest output.
type InterpretationRepository struct {
	db Querier
}

// NewInterpretationRepository creates a new InterpretationRepository instance.
func NewInterpretationRepository(db Querier) *InterpretationRepository {
	return &InterpretationRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *InterpretationRepository) WithTx(tx pgx.Tx) *InterpretationRepository {
	return &InterpretationRepository{db: tx}
}

// UpsertInput stores the enriched interpretation input for a reading.
func (r *InterpretationRepository) UpsertInput(ctx context.Context, readingID string, input map[string]any) error {
	const query = `
		INSERT INTO reading_interpretations (reading_id, input_json)
		VALUES ($1, $2)
		ON CONFLICT (reading_id) DO UPDATE SET input_json = EXCLUDED.input_json, updated_at = NOW()
	`
	if input == nil {
		input = map[string]any{}
	}
	if _, err := r.db.Exec(ctx, query, readingID, input); err != nil {
		return fmt.Errorf("failed to upsert interpretation input: %w", err)
	}
	return nil
}

// SetOutput updates the latest narrative text for a reading.
func (r *InterpretationRepository) SetOutput(ctx context.Context, readingID, outputText string) error {
	const query = `
		INSERT INTO reading_interpretations (reading_id, output_text)
		VALUES ($1, $2)
		ON CONFLICT (reading_id) DO UPDATE SET output_text = EXCLUDED.output_text, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, readingID, outputText); err != nil {
		return fmt.Errorf("failed to set interpretation output: %w", err)
	}
	return nil
}

// Get retrieves a reading's interpretation.
func (r *InterpretationRepository) Get(ctx context.Context, readingID string) (*model.Interpretation, error) {
	const query = `
		SELECT reading_id, input_json, output_text, created_at, updated_at
		FROM reading_interpretations
		WHERE reading_id = $1
	`

	var in model.Interpretation
	err := r.db.QueryRow(ctx, query, readingID).Scan(
		&in.ReadingID,
		&in.Input,
		&in.OutputText,
		&in.CreatedAt,
		&in.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInterpretationNotFound
		}
		return nil, fmt.Errorf("failed to get interpretation: %w", err)
	}
	return &in, nil
}

// NextVersion returns the next version number for a reading's narratives.
func (r *InterpretationRepository) NextVersion(ctx context.Context, readingID string) (int, error) {
	const query = `SELECT COALESCE(MAX(version), 0) + 1 FROM interpretation_versions WHERE reading_id = $1`

	var next int
	if err := r.db.QueryRow(ctx, query, readingID).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to get next interpretation version: %w", err)
	}
	return next, nil
}

// InsertVersion records one generated narrative.
func (r *InterpretationRepository) InsertVersion(ctx context.Context, readingID string, version int, prompt, outputText, modelName string) (*model.InterpretationVersion, error) {
	const query = `
		INSERT INTO interpretation_versions (reading_id, version, prompt, output_text, model, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING reading_id, version, prompt, output_text, model, created_at
	`

	var v model.InterpretationVersion
	err := r.db.QueryRow(ctx, query, readingID, version, prompt, outputText, modelName).Scan(
		&v.ReadingID,
		&v.Version,
		&v.Prompt,
		&v.OutputText,
		&v.Model,
		&v.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert interpretation version: %w", err)
	}
	return &v, nil
}

// HasVersion reports whether any narrative was already generated for the
// reading. Gates one_time readings to a single generation.
func (r *InterpretationRepository) HasVersion(ctx context.Context, readingID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM interpretation_versions WHERE reading_id = $1)`

	var ok bool
	if err := r.db.QueryRow(ctx, query, readingID).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check interpretation version: %w", err)
	}
	return ok, nil
}

// HasVersionInWindow reports whether any narrative was generated for
// (user, fortune type key) at or after the daily boundary. Gates daily
// families to one generation per window.
func (r *InterpretationRepository) HasVersionInWindow(ctx context.Context, userID, fortuneTypeKey string, boundary time.Time) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1
			FROM interpretation_versions iv
			JOIN readings rd ON rd.id = iv.reading_id
			JOIN fortune_types ft ON ft.id = rd.fortune_type_id
			WHERE rd.user_id = $1 AND ft.key = $2 AND iv.created_at >= $3
		)
	`

	var ok bool
	if err := r.db.QueryRow(ctx, query, userID, fortuneTypeKey, boundary).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check interpretation window: %w", err)
	}
	return ok, nil
}

// History returns all generated narratives for a reading, newest first.
func (r *InterpretationRepository) History(ctx context.Context, readingID string) ([]*model.InterpretationVersion, error) {
	const query = `
		SELECT reading_id, version, prompt, output_text, model, created_at
		FROM interpretation_versions
		WHERE reading_id = $1
		ORDER BY version DESC
	`

	rows, err := r.db.Query(ctx, query, readingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get interpretation history: %w", err)
	}
	defer rows.Close()

	var versions []*model.InterpretationVersion
	for rows.Next() {
		var v model.InterpretationVersion
		err := rows.Scan(&v.ReadingID, &v.Version, &v.Prompt, &v.OutputText, &v.Model, &v.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interpretation version: %w", err)
		}
		versions = append(versions, &v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating interpretation versions: %w", err)
	}
	return versions, nil
}
