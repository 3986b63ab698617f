// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"tarot-backend/internal/apperr"
	"tarot-backend/internal/draw"
	"tarot-backend/internal/model"
	"tarot-backend/internal/pkg/window"
	"tarot-backend/internal/repository"
)

// AccessPolicy decides whether a user bypasses entitlement checks.
// Substitutable in tests; the production implementation is config-backed.
type AccessPolicy interface {
	IsPrivileged(userID string) bool
}

// ReadingService is the entitlement resolver: it decides access for a
// requested fortune type, charges the correct entitlement exactly once,
// and produces the reading, all inside one transaction per call.
type ReadingService struct {
	pool          *pgxpool.Pool
	catalogRepo   *repository.CatalogRepository
	lifeRepo      *repository.LifeRepository
	subRepo       *repository.SubscriptionRepository
	purchaseRepo  *repository.PurchaseRepository
	warningRepo   *repository.WarningRepository
	readingRepo   *repository.ReadingRepository
	policy        AccessPolicy
	warningWindow time.Duration
}

// NewReadingService creates a new ReadingService instance.
func NewReadingService(
	pool *pgxpool.Pool,
	catalogRepo *repository.CatalogRepository,
	lifeRepo *repository.LifeRepository,
	subRepo *repository.SubscriptionRepository,
	purchaseRepo *repository.PurchaseRepository,
	warningRepo *repository.WarningRepository,
	readingRepo *repository.ReadingRepository,
	policy AccessPolicy,
	warningWindow time.Duration,
) *ReadingService {
	return &ReadingService{
		pool:          pool,
		catalogRepo:   catalogRepo,
		lifeRepo:      lifeRepo,
		subRepo:       subRepo,
		purchaseRepo:  purchaseRepo,
		warningRepo:   warningRepo,
		readingRepo:   readingRepo,
		policy:        policy,
		warningWindow: warningWindow,
	}
}

// ResolveAndExecute resolves entitlement for one fortune type and
// executes the draw. Any check failure aborts the transaction, leaving
// no partial ledger mutation.
func (s *ReadingService) ResolveAndExecute(ctx context.Context, userID, fortuneTypeKey string, input map[string]any) (*model.Reading, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	reading, err := s.resolveOne(ctx, tx, userID, fortuneTypeKey, input)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return reading, nil
}

// ResolveAndExecuteBatch applies the resolution independently per key
// inside one outer transaction: a failure in any key aborts the whole
// batch, leaving no committed partial state.
func (s *ReadingService) ResolveAndExecuteBatch(ctx context.Context, userID string, fortuneTypeKeys []string, input map[string]any) ([]*model.Reading, error) {
	if len(fortuneTypeKeys) == 0 {
		return nil, apperr.InvalidArgument("missing fortune type keys")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	readings := make([]*model.Reading, 0, len(fortuneTypeKeys))
	for _, key := range fortuneTypeKeys {
		reading, err := s.resolveOne(ctx, tx, userID, key, input)
		if err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return readings, nil
}

// resolveOne runs the full decision/charge/generate sequence for one key
// on the caller's transaction.
func (s *ReadingService) resolveOne(ctx context.Context, tx pgx.Tx, userID, fortuneTypeKey string, input map[string]any) (*model.Reading, error) {
	ft, err := s.catalogRepo.WithTx(tx).GetFortuneTypeByKey(ctx, fortuneTypeKey)
	if err != nil {
		if errors.Is(err, repository.ErrFortuneTypeNotFound) {
			return nil, apperr.NotFound("fortune type not found: %s", fortuneTypeKey)
		}
		return nil, err
	}

	admin := s.policy.IsPrivileged(userID)

	// Free resources are life-gated, not unconditionally free.
	accessType := ft.AccessType
	if accessType == model.AccessFree {
		accessType = model.AccessLife
	}

	now := time.Now()

	// Daily-idempotent families replay the existing reading verbatim.
	// The lookup runs before any entitlement charge, so a cached hit
	// never re-charges.
	if isDailyIdempotent(fortuneTypeKey) {
		existing, err := s.readingRepo.WithTx(tx).LatestSince(ctx, userID, ft.ID, window.Start(now))
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, repository.ErrReadingNotFound) {
			return nil, err
		}
	}

	if ft.RequiresWarning && !admin {
		ok, err := s.warningRepo.WithTx(tx).HasRecent(ctx, userID, ft.ID, now.Add(-s.warningWindow))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.Conflict("warning acceptance required")
		}
	}

	accessTypeUsed := accessType
	consumedPurchaseID := ""

	if !admin {
		switch accessType {
		case model.AccessSubscription:
			active, err := s.subRepo.WithTx(tx).HasActive(ctx, userID)
			if err != nil {
				return nil, err
			}
			if !active {
				return nil, apperr.Forbidden("subscription required")
			}

		case model.AccessOneTime:
			purchase, err := s.purchaseRepo.WithTx(tx).LockOldestVerified(ctx, userID, ft.ID)
			if err != nil {
				if errors.Is(err, repository.ErrNoVerifiedPurchase) {
					return nil, apperr.Forbidden("purchase required")
				}
				return nil, err
			}
			consumedPurchaseID = purchase.ID

		case model.AccessLife:
			active, err := s.subRepo.WithTx(tx).HasActive(ctx, userID)
			if err != nil {
				return nil, err
			}
			if active {
				// Subscription covers the action; no debit.
				accessTypeUsed = model.AccessSubscription
			} else {
				if err := s.debitLife(ctx, tx, userID, "execute:"+fortuneTypeKey); err != nil {
					return nil, err
				}
			}

		default:
			return nil, fmt.Errorf("unknown access type %q for fortune type %s", accessType, fortuneTypeKey)
		}
	}

	result, err := draw.Generate(userID, fortuneTypeKey, window.CivilDate(now), input)
	if err != nil {
		// Deck exhaustion is a resolver/generator contract violation,
		// not a user error; propagate it untranslated.
		return nil, err
	}

	reading, err := s.readingRepo.WithTx(tx).Insert(ctx, uuid.NewString(), userID, ft.ID, accessTypeUsed, input, result, result.Seed)
	if err != nil {
		return nil, err
	}

	// The one-time good transitions verified->consumed at the end of the
	// request, in the same transaction that recorded the reading.
	if consumedPurchaseID != "" {
		if err := s.purchaseRepo.WithTx(tx).MarkConsumed(ctx, consumedPurchaseID); err != nil {
			return nil, err
		}
	}

	log.Info().
		Str("user_id", userID).
		Str("fortune_type", fortuneTypeKey).
		Str("access_type_used", accessTypeUsed).
		Str("reading_id", reading.ID).
		Bool("admin_override", admin).
		Msg("Reading executed")

	return reading, nil
}

// debitLife locks the balance row, validates, decrements, and appends the
// matching ledger event. Lock-then-mutate keeps concurrent debits from
// both observing a positive balance.
func (s *ReadingService) debitLife(ctx context.Context, tx pgx.Tx, userID, reason string) error {
	lifeRepo := s.lifeRepo.WithTx(tx)

	balance, err := lifeRepo.GetForUpdate(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrLifeNotFound) {
			return apperr.Conflict("balance empty")
		}
		return err
	}
	if balance.Current <= 0 {
		return apperr.Conflict("balance empty")
	}

	if _, err := lifeRepo.Decrement(ctx, userID); err != nil {
		return err
	}
	if _, err := lifeRepo.AppendEvent(ctx, userID, model.LifeEventConsume, -1, reason, nil); err != nil {
		return err
	}
	return nil
}

// GetReading retrieves one reading; privileged users can read any user's.
func (s *ReadingService) GetReading(ctx context.Context, userID, readingID string) (*model.Reading, error) {
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

// ListReadings returns recent readings; privileged users see all users'.
func (s *ReadingService) ListReadings(ctx context.Context, userID string, limit int) ([]*model.Reading, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	scope := userID
	if s.policy.IsPrivileged(userID) {
		scope = ""
	}
	return s.readingRepo.ListByUser(ctx, scope, limit)
}

// AcceptWarning records consent for a warning-gated fortune type.
func (s *ReadingService) AcceptWarning(ctx context.Context, userID, fortuneTypeKey string) (*model.WarningAcceptance, error) {
	ft, err := s.catalogRepo.GetFortuneTypeByKey(ctx, fortuneTypeKey)
	if err != nil {
		if errors.Is(err, repository.ErrFortuneTypeNotFound) {
			return nil, apperr.NotFound("fortune type not found: %s", fortuneTypeKey)
		}
		return nil, err
	}
	return s.warningRepo.Insert(ctx, userID, ft.ID)
}

// isDailyIdempotent reports whether a fortune-type family produces at
// most one reading per user per daily window.
func isDailyIdempotent(fortuneTypeKey string) bool {
	return strings.HasPrefix(fortuneTypeKey, "today_") || fortuneTypeKey == "week_one"
}
