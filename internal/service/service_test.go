// Service tests run the full resolution stack against a real PostgreSQL
// instance using testcontainers-go. They are skipped when Docker is
// unavailable.
package service

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"tarot-backend/internal/model"
	"tarot-backend/internal/pkg/db"
	"tarot-backend/internal/repository"
	"tarot-backend/internal/textgen"
)

// staticPolicy grants the privilege bypass to a fixed ID list.
type staticPolicy []string

func (p staticPolicy) IsPrivileged(userID string) bool {
	for _, id := range p {
		if id == userID {
			return true
		}
	}
	return false
}

// testEnv bundles the services under test with their backing pool.
type testEnv struct {
	pool    *pgxpool.Pool
	reading *ReadingService
	life    *LifeService
	billing *BillingService
	interp  *InterpretationService

	catalogRepo  *repository.CatalogRepository
	lifeRepo     *repository.LifeRepository
	purchaseRepo *repository.PurchaseRepository
	subRepo      *repository.SubscriptionRepository
	readingRepo  *repository.ReadingRepository
}

func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupEnv creates a PostgreSQL container with the full schema and wires
// the services the way main does, with admin-user as the only
// privileged ID and a 5-reward-per-hour, 20-per-day ad throttle.
func setupEnv(t *testing.T) (*testEnv, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, db.Migrate(ctx, pool))

	userRepo := repository.NewUserRepository(pool)
	lifeRepo := repository.NewLifeRepository(pool)
	adRepo := repository.NewAdEventRepository(pool)
	catalogRepo := repository.NewCatalogRepository(pool)
	purchaseRepo := repository.NewPurchaseRepository(pool)
	subRepo := repository.NewSubscriptionRepository(pool)
	warningRepo := repository.NewWarningRepository(pool)
	readingRepo := repository.NewReadingRepository(pool)
	interpRepo := repository.NewInterpretationRepository(pool)

	policy := staticPolicy{"admin-user"}

	env := &testEnv{
		pool:         pool,
		catalogRepo:  catalogRepo,
		lifeRepo:     lifeRepo,
		purchaseRepo: purchaseRepo,
		subRepo:      subRepo,
		readingRepo:  readingRepo,
	}

	env.life = NewLifeService(pool, userRepo, lifeRepo, adRepo, 5, 5, 5, 20)
	env.reading = NewReadingService(pool, catalogRepo, lifeRepo, subRepo, purchaseRepo, warningRepo, readingRepo, policy, 5*time.Minute)
	env.billing = NewBillingService(catalogRepo, purchaseRepo, subRepo)
	env.interp = NewInterpretationService(pool, readingRepo, catalogRepo, interpRepo, textgen.StaticGenerator{}, policy)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return env, cleanup
}

// ensureUser creates the account with the default 5/5 balance.
func (e *testEnv) ensureUser(t *testing.T, userID string) {
	t.Helper()
	_, _, err := e.life.EnsureUser(context.Background(), userID)
	require.NoError(t, err)
}

// drainLives debits the balance down to zero.
func (e *testEnv) drainLives(t *testing.T, userID string) {
	t.Helper()
	ctx := context.Background()
	for {
		balance, err := e.life.GetBalance(ctx, userID)
		require.NoError(t, err)
		if balance.Current == 0 {
			return
		}
		_, err = e.life.Debit(ctx, userID, "test drain")
		require.NoError(t, err)
	}
}

// grantPurchase records a verified purchase unlocking the given one-time
// fortune type.
func (e *testEnv) grantPurchase(t *testing.T, userID, fortuneTypeKey, txnID string) {
	t.Helper()
	_, err := e.billing.RecordPurchase(context.Background(), userID, PurchaseFact{
		Platform:           "ios",
		StoreTransactionID: txnID,
		ProductKey:         fortuneTypeKey + "_single",
		Status:             model.PurchaseVerified,
	})
	require.NoError(t, err)
}

// grantSubscription records an active subscription valid for 30 days.
func (e *testEnv) grantSubscription(t *testing.T, userID string) {
	t.Helper()
	_, err := e.billing.RecordSubscription(context.Background(), userID, SubscriptionFact{
		Platform:            "ios",
		StoreSubscriptionID: "sub-" + userID,
		Status:              model.SubscriptionActive,
		PeriodStart:         time.Now().Add(-time.Hour),
		PeriodEnd:           time.Now().Add(30 * 24 * time.Hour),
		AutoRenew:           true,
	})
	require.NoError(t, err)
}
