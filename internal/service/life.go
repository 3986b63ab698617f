package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"tarot-backend/internal/apperr"
	"tarot-backend/internal/model"
	"tarot-backend/internal/repository"
)

// LifeService handles the consumable life balance: reads, manual debits,
// and reward-ad credits gated by the throttle.
type LifeService struct {
	pool       *pgxpool.Pool
	userRepo   *repository.UserRepository
	lifeRepo   *repository.LifeRepository
	adRepo     *repository.AdEventRepository
	initialCur int
	initialMax int
	maxPerHour int
	maxPerDay  int
}

// NewLifeService creates a new LifeService instance.
func NewLifeService(
	pool *pgxpool.Pool,
	userRepo *repository.UserRepository,
	lifeRepo *repository.LifeRepository,
	adRepo *repository.AdEventRepository,
	initialCurrent, initialMax int,
	maxPerHour, maxPerDay int,
) *LifeService {
	return &LifeService{
		pool:       pool,
		userRepo:   userRepo,
		lifeRepo:   lifeRepo,
		adRepo:     adRepo,
		initialCur: initialCurrent,
		initialMax: initialMax,
		maxPerHour: maxPerHour,
		maxPerDay:  maxPerDay,
	}
}

// EnsureUser ensures the account and its life balance exist. Called by
// the identity layer on every authenticated request.
func (s *LifeService) EnsureUser(ctx context.Context, userID string) (*model.User, bool, error) {
	user, created, err := s.userRepo.GetOrCreate(ctx, userID, s.initialCur, s.initialMax)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure user: %w", err)
	}
	if created {
		log.Info().Str("user_id", userID).Int("life", s.initialCur).Msg("User created")
	}
	return user, created, nil
}

// GetBalance retrieves a user's current life balance for display.
func (s *LifeService) GetBalance(ctx context.Context, userID string) (*model.LifeBalance, error) {
	balance, err := s.lifeRepo.GetBalance(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrLifeNotFound) {
			return nil, apperr.NotFound("life balance not found")
		}
		return nil, err
	}
	return balance, nil
}

// Debit consumes one life outside the resolver path (manual consume).
// Lock, validate, decrement, and log in one transaction.
func (s *LifeService) Debit(ctx context.Context, userID, reason string) (*model.LifeBalance, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	lifeRepo := s.lifeRepo.WithTx(tx)

	balance, err := lifeRepo.GetForUpdate(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrLifeNotFound) {
			return nil, apperr.NotFound("life balance not found")
		}
		return nil, err
	}
	if balance.Current <= 0 {
		return nil, apperr.Conflict("balance empty")
	}

	balance, err = lifeRepo.Decrement(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := lifeRepo.AppendEvent(ctx, userID, model.LifeEventConsume, -1, reason, nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return balance, nil
}

// Credit adds lives up to max and logs the actual amount granted.
func (s *LifeService) Credit(ctx context.Context, userID string, amount int, reason string, adEventID *string) (*model.LifeBalance, error) {
	if amount <= 0 {
		return nil, apperr.InvalidArgument("credit amount must be positive")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	balance, err := s.creditTx(ctx, tx, userID, amount, reason, adEventID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return balance, nil
}

// RewardAd records a completed reward ad and credits the balance in one
// transaction. Hourly and daily ceilings are independent; either at or
// above its limit rejects.
func (s *LifeService) RewardAd(ctx context.Context, userID, provider, placement string, amount int) (*model.LifeBalance, error) {
	if amount <= 0 {
		return nil, apperr.InvalidArgument("reward amount must be positive")
	}
	if provider == "" {
		return nil, apperr.InvalidArgument("missing ad provider")
	}
	if placement == "" {
		return nil, apperr.InvalidArgument("missing placement")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	adRepo := s.adRepo.WithTx(tx)
	now := time.Now()

	hourly, err := adRepo.CountRewardsSince(ctx, userID, placement, now.Add(-time.Hour))
	if err != nil {
		return nil, err
	}
	if hourly >= s.maxPerHour {
		return nil, apperr.RateLimited("too many reward ads (hourly)")
	}

	daily, err := adRepo.CountRewardsSince(ctx, userID, placement, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	if daily >= s.maxPerDay {
		return nil, apperr.RateLimited("too many reward ads (daily)")
	}

	event, err := adRepo.Insert(ctx, userID, provider, placement, amount)
	if err != nil {
		return nil, err
	}

	balance, err := s.creditTx(ctx, tx, userID, amount, "reward_ad", &event.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Str("user_id", userID).
		Str("placement", placement).
		Str("ad_event_id", event.ID).
		Int("amount", amount).
		Int("balance", balance.Current).
		Msg("Reward ad credited")

	return balance, nil
}

// creditTx locks the balance row, applies the clamped credit, and appends
// the matching recover event on the caller's transaction.
func (s *LifeService) creditTx(ctx context.Context, tx repository.Querier, userID string, amount int, reason string, adEventID *string) (*model.LifeBalance, error) {
	lifeRepo := repository.NewLifeRepository(tx)

	if _, err := lifeRepo.GetForUpdate(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrLifeNotFound) {
			return nil, apperr.NotFound("life balance not found")
		}
		return nil, err
	}

	balance, err := lifeRepo.CreditClamped(ctx, userID, amount)
	if err != nil {
		return nil, err
	}
	if _, err := lifeRepo.AppendEvent(ctx, userID, model.LifeEventRecover, amount, reason, adEventID); err != nil {
		return nil, err
	}
	return balance, nil
}

// ListEvents returns a user's recent ledger events.
func (s *LifeService) ListEvents(ctx context.Context, userID string, limit int) ([]*model.LifeEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.lifeRepo.ListEvents(ctx, userID, limit)
}
