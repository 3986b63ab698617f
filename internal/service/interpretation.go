package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"tarot-backend/internal/apperr"
	"tarot-backend/internal/cards"
	"tarot-backend/internal/model"
	"tarot-backend/internal/pkg/window"
	"tarot-backend/internal/repository"
	"tarot-backend/internal/textgen"
)

// InterpretationService produces narrative interpretations for readings.
// Generation limits follow the fortune type's access class: one-time
// readings get a single narrative ever, daily families one per daily
// window.
type InterpretationService struct {
	pool        *pgxpool.Pool
	readingRepo *repository.ReadingRepository
	catalogRepo *repository.CatalogRepository
	interpRepo  *repository.InterpretationRepository
	generator   textgen.Generator
	policy      AccessPolicy
}

// NewInterpretationService creates a new InterpretationService instance.
func NewInterpretationService(
	pool *pgxpool.Pool,
	readingRepo *repository.ReadingRepository,
	catalogRepo *repository.CatalogRepository,
	interpRepo *repository.InterpretationRepository,
	generator textgen.Generator,
	policy AccessPolicy,
) *InterpretationService {
	return &InterpretationService{
		pool:        pool,
		readingRepo: readingRepo,
		catalogRepo: catalogRepo,
		interpRepo:  interpRepo,
		generator:   generator,
		policy:      policy,
	}
}

// SaveInput enriches a reading's drawn cards with meanings and the
// client-supplied question/context, and stores the result as the
// interpretation input. Idempotent per reading.
func (s *InterpretationService) SaveInput(ctx context.Context, userID, readingID string, extra map[string]any) (map[string]any, error) {
	reading, err := s.getOwnedReading(ctx, userID, readingID)
	if err != nil {
		return nil, err
	}

	input := buildInterpretationInput(reading, extra)
	if err := s.interpRepo.UpsertInput(ctx, readingID, input); err != nil {
		return nil, err
	}
	return input, nil
}

// Generate produces a new narrative version for a reading. The text
// generator is called outside any transaction; only the persistence of
// the produced narrative is transactional.
func (s *InterpretationService) Generate(ctx context.Context, userID, readingID string) (*model.InterpretationVersion, error) {
	reading, err := s.getOwnedReading(ctx, userID, readingID)
	if err != nil {
		return nil, err
	}

	fortuneTypeKey, _ := reading.Result["fortune_type_key"].(string)
	if fortuneTypeKey == "" {
		return nil, fmt.Errorf("reading %s has no fortune type key", readingID)
	}

	ft, err := s.catalogRepo.GetFortuneTypeByKey(ctx, fortuneTypeKey)
	if err != nil {
		if errors.Is(err, repository.ErrFortuneTypeNotFound) {
			return nil, apperr.NotFound("fortune type not found: %s", fortuneTypeKey)
		}
		return nil, err
	}

	now := time.Now()
	switch {
	case ft.AccessType == model.AccessOneTime:
		done, err := s.interpRepo.HasVersion(ctx, readingID)
		if err != nil {
			return nil, err
		}
		if done {
			return nil, apperr.Conflict("interpretation already generated")
		}
	case isDailyIdempotent(fortuneTypeKey):
		done, err := s.interpRepo.HasVersionInWindow(ctx, userID, fortuneTypeKey, window.Start(now))
		if err != nil {
			return nil, err
		}
		if done {
			return nil, apperr.Conflict("interpretation already generated today")
		}
	}

	input, err := s.inputFor(ctx, reading)
	if err != nil {
		return nil, err
	}

	prompt := textgen.BuildPrompt(input)
	text, modelName, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate interpretation: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	interpRepo := s.interpRepo.WithTx(tx)

	version, err := interpRepo.NextVersion(ctx, readingID)
	if err != nil {
		return nil, err
	}
	v, err := interpRepo.InsertVersion(ctx, readingID, version, prompt, text, modelName)
	if err != nil {
		return nil, err
	}
	if err := interpRepo.SetOutput(ctx, readingID, text); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Str("user_id", userID).
		Str("reading_id", readingID).
		Int("version", version).
		Str("model", modelName).
		Msg("Interpretation generated")

	return v, nil
}

// Get returns a reading's current interpretation (input and latest text).
func (s *InterpretationService) Get(ctx context.Context, userID, readingID string) (*model.Interpretation, error) {
	if _, err := s.getOwnedReading(ctx, userID, readingID); err != nil {
		return nil, err
	}

	in, err := s.interpRepo.Get(ctx, readingID)
	if err != nil {
		if errors.Is(err, repository.ErrInterpretationNotFound) {
			return nil, apperr.NotFound("interpretation not found")
		}
		return nil, err
	}
	return in, nil
}

// History returns all generated narrative versions, newest first.
func (s *InterpretationService) History(ctx context.Context, userID, readingID string) ([]*model.InterpretationVersion, error) {
	if _, err := s.getOwnedReading(ctx, userID, readingID); err != nil {
		return nil, err
	}
	return s.interpRepo.History(ctx, readingID)
}

// getOwnedReading loads a reading enforcing ownership; privileged users
// can address any reading.
func (s *InterpretationService) getOwnedReading(ctx context.Context, userID, readingID string) (*model.Reading, error) {
	scope := userID
	if s.policy.IsPrivileged(userID) {
		scope = ""
	}

	reading, err := s.readingRepo.GetByID(ctx, scope, readingID)
	if err != nil {
		if errors.Is(err, repository.ErrReadingNotFound) {
			return nil, apperr.NotFound("reading not found")
		}
		return nil, err
	}
	return reading, nil
}

// inputFor returns the stored interpretation input, building and storing
// it on the fly when SaveInput was never called for the reading.
func (s *InterpretationService) inputFor(ctx context.Context, reading *model.Reading) (map[string]any, error) {
	in, err := s.interpRepo.Get(ctx, reading.ID)
	if err == nil && len(in.Input) > 0 {
		return in.Input, nil
	}
	if err != nil && !errors.Is(err, repository.ErrInterpretationNotFound) {
		return nil, err
	}

	input := buildInterpretationInput(reading, nil)
	if err := s.interpRepo.UpsertInput(ctx, reading.ID, input); err != nil {
		return nil, err
	}
	return input, nil
}

// buildInterpretationInput flattens a reading's slots into card entries
// enriched with catalog meanings, merging any client-supplied fields.
func buildInterpretationInput(reading *model.Reading, extra map[string]any) map[string]any {
	input := map[string]any{
		"reading_id": reading.ID,
	}
	if t, ok := reading.Result["type"].(string); ok {
		input["type"] = t
	}
	if key, ok := reading.Result["fortune_type_key"].(string); ok {
		input["fortune_type_key"] = key
	}

	var cardEntries []any
	if slots, ok := reading.Result["slots"].([]any); ok {
		for _, raw := range slots {
			slot, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			card, ok := slot["card"].(map[string]any)
			if !ok {
				continue
			}
			name, _ := card["name"].(string)

			var upright *bool
			if u, ok := card["upright"].(bool); ok {
				upright = &u
			}

			meaning := cards.Lookup(name, upright)
			keywords := make([]any, 0, len(meaning.Keywords))
			for _, kw := range meaning.Keywords {
				keywords = append(keywords, kw)
			}

			entry := map[string]any{
				"position":      slot["position"],
				"card_name":     name,
				"meaning_short": meaning.Short,
				"keywords":      keywords,
			}
			if upright != nil {
				entry["upright"] = *upright
			}
			cardEntries = append(cardEntries, entry)
		}
	}
	input["cards"] = cardEntries

	for _, key := range []string{"question", "context"} {
		if v, ok := extra[key].(string); ok && v != "" {
			input[key] = v
		}
	}
	return input
}
