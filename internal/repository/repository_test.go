// Package repository tests run against a real PostgreSQL instance using
// testcontainers-go. They are skipped when Docker is unavailable.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"tarot-backend/internal/model"
	"tarot-backend/internal/pkg/db"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container, applies migrations and the
// catalog seed, and returns a connection pool.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
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

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// createUser ensures a user with the default 5/5 balance exists.
func createUser(t *testing.T, pool *pgxpool.Pool, userID string) {
	t.Helper()
	_, created, err := NewUserRepository(pool).GetOrCreate(context.Background(), userID, 5, 5)
	require.NoError(t, err)
	require.True(t, created)
}

// ============================================================================
// UserRepository Tests
// ============================================================================

func TestUserRepository_GetOrCreate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	user, created, err := repo.GetOrCreate(ctx, "user-1", 5, 5)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "user-1", user.ID)

	// Second call finds the existing row.
	user2, created, err := repo.GetOrCreate(ctx, "user-1", 5, 5)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, user2.ID)

	// The life balance was created alongside the user.
	balance, err := NewLifeRepository(pool).GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 5, balance.Current)
	assert.Equal(t, 5, balance.Max)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewUserRepository(pool).GetByID(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

// ============================================================================
// LifeRepository Tests
// ============================================================================

func TestLifeRepository_DecrementAndEvents(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createUser(t, pool, "user-1")
	repo := NewLifeRepository(pool)

	balance, err := repo.Decrement(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 4, balance.Current)

	event, err := repo.AppendEvent(ctx, "user-1", model.LifeEventConsume, -1, "execute:today_free", nil)
	require.NoError(t, err)
	assert.Equal(t, -1, event.Amount)

	events, err := repo.ListEvents(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.LifeEventConsume, events[0].EventType)
	assert.Equal(t, "execute:today_free", events[0].Reason)
}

func TestLifeRepository_CreditClamped(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createUser(t, pool, "user-1")
	repo := NewLifeRepository(pool)

	// 5 -> 4, then credit 2 clamps at max 5.
	_, err := repo.Decrement(ctx, "user-1")
	require.NoError(t, err)

	balance, err := repo.CreditClamped(ctx, "user-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 5, balance.Current)
}

func TestLifeRepository_GetBalance_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewLifeRepository(pool).GetBalance(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrLifeNotFound)
}

// ============================================================================
// AdEventRepository Tests
// ============================================================================

func TestAdEventRepository_CountRewardsSince(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createUser(t, pool, "user-1")
	repo := NewAdEventRepository(pool)

	for i := 0; i < 3; i++ {
		_, err := repo.Insert(ctx, "user-1", "admob", "life_recovery", 1)
		require.NoError(t, err)
	}
	// A different placement does not count toward the window.
	_, err := repo.Insert(ctx, "user-1", "admob", "bonus", 1)
	require.NoError(t, err)

	count, err := repo.CountRewardsSince(ctx, "user-1", "life_recovery", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// A boundary in the future excludes everything.
	count, err = repo.CountRewardsSince(ctx, "user-1", "life_recovery", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

// ============================================================================
// CatalogRepository Tests
// ============================================================================

func TestCatalogRepository_SeededCatalog(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewCatalogRepository(pool)

	free, err := repo.GetFortuneTypeByKey(ctx, "today_free")
	require.NoError(t, err)
	assert.Equal(t, model.AccessFree, free.AccessType)
	assert.False(t, free.RequiresWarning)

	crime, err := repo.GetFortuneTypeByKey(ctx, "triangle_crime")
	require.NoError(t, err)
	assert.Equal(t, model.AccessOneTime, crime.AccessType)
	assert.True(t, crime.RequiresWarning)

	sexual, err := repo.GetFortuneTypeByKey(ctx, "partner_sexual")
	require.NoError(t, err)
	assert.Equal(t, model.AccessSubscription, sexual.AccessType)
	assert.True(t, sexual.RequiresWarning)

	_, err = repo.GetFortuneTypeByKey(ctx, "unknown_key")
	assert.ErrorIs(t, err, ErrFortuneTypeNotFound)

	// One-time types get a product per platform.
	product, err := repo.GetProduct(ctx, "hexagram_love_single", "ios")
	require.NoError(t, err)
	assert.Equal(t, "ios", product.Platform)

	_, err = repo.GetProduct(ctx, "hexagram_love_single", "web")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

// ============================================================================
// PurchaseRepository Tests
// ============================================================================

func TestPurchaseRepository_UpsertIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createUser(t, pool, "user-1")

	catalog := NewCatalogRepository(pool)
	product, err := catalog.GetProduct(ctx, "celtic_work_single", "ios")
	require.NoError(t, err)

	repo := NewPurchaseRepository(pool)

	first, err := repo.Upsert(ctx, "user-1", product.ID, "ios", "txn-123", model.PurchaseVerified)
	require.NoError(t, err)

	// Replaying the same store transaction merges, never duplicates.
	second, err := repo.Upsert(ctx, "user-1", product.ID, "ios", "txn-123", model.PurchaseVerified)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestPurchaseRepository_ConsumeOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createUser(t, pool, "user-1")

	catalog := NewCatalogRepository(pool)
	product, err := catalog.GetProduct(ctx, "celtic_work_single", "ios")
	require.NoError(t, err)

	ft, err := catalog.GetFortuneTypeByKey(ctx, "celtic_work")
	require.NoError(t, err)

	repo := NewPurchaseRepository(pool)
	purchase, err := repo.Upsert(ctx, "user-1", product.ID, "ios", "txn-123", model.PurchaseVerified)
	require.NoError(t, err)

	locked, err := repo.LockOldestVerified(ctx, "user-1", ft.ID)
	require.NoError(t, err)
	assert.Equal(t, purchase.ID, locked.ID)

	require.NoError(t, repo.MarkConsumed(ctx, purchase.ID))

	// The consumed purchase no longer satisfies the entitlement.
	_, err = repo.LockOldestVerified(ctx, "user-1", ft.ID)
	assert.ErrorIs(t, err, ErrNoVerifiedPurchase)

	// A second consume of the same row fails.
	assert.ErrorIs(t, repo.MarkConsumed(ctx, purchase.ID), ErrNoVerifiedPurchase)
}

func TestPurchaseRepository_LockOldestFirst(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createUser(t, pool, "user-1")

	catalog := NewCatalogRepository(pool)
	product, err := catalog.GetProduct(ctx, "flower_timing_single", "android")
	require.NoError(t, err)
	ft, err := catalog.GetFortuneTypeByKey(ctx, "flower_timing")
	require.NoError(t, err)

	repo := NewPurchaseRepository(pool)
	oldest, err := repo.Upsert(ctx, "user-1", product.ID, "android", "txn-a", model.PurchaseVerified)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = repo.Upsert(ctx, "user-1", product.ID, "android", "txn-b", model.PurchaseVerified)
	require.NoError(t, err)

	locked, err := repo.LockOldestVerified(ctx, "user-1", ft.ID)
	require.NoError(t, err)
	assert.Equal(t, oldest.ID, locked.ID)
}

// ============================================================================
// SubscriptionRepository Tests
// ============================================================================

func TestSubscriptionRepository_UpsertAndActive(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createUser(t, pool, "user-1")
	repo := NewSubscriptionRepository(pool)

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(30 * 24 * time.Hour)

	first, err := repo.Upsert(ctx, "user-1", "ios", "sub-1", model.SubscriptionActive, start, end, true)
	require.NoError(t, err)

	active, err := repo.HasActive(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, active)

	// Re-verification updates the row in place.
	newEnd := end.Add(30 * 24 * time.Hour)
	second, err := repo.Upsert(ctx, "user-1", "ios", "sub-1", model.SubscriptionActive, start, newEnd, true)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	sub, err := repo.GetActive(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.WithinDuration(t, newEnd, sub.PeriodEnd, time.Second)
}

func TestSubscriptionRepository_ExpiredNotActive(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createUser(t, pool, "user-1")
	repo := NewSubscriptionRepository(pool)

	// Status is active but the period already ended.
	_, err := repo.Upsert(ctx, "user-1", "ios", "sub-1", model.SubscriptionActive,
		time.Now().Add(-48*time.Hour), time.Now().Add(-time.Hour), false)
	require.NoError(t, err)

	active, err := repo.HasActive(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, active)

	sub, err := repo.GetActive(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, sub)
}

// ============================================================================
// WarningRepository Tests
// ============================================================================

func TestWarningRepository_HasRecent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createUser(t, pool, "user-1")

	catalog := NewCatalogRepository(pool)
	crime, err := catalog.GetFortuneTypeByKey(ctx, "triangle_crime")
	require.NoError(t, err)
	sexual, err := catalog.GetFortuneTypeByKey(ctx, "partner_sexual")
	require.NoError(t, err)

	repo := NewWarningRepository(pool)
	_, err = repo.Insert(ctx, "user-1", crime.ID)
	require.NoError(t, err)

	ok, err := repo.HasRecent(ctx, "user-1", crime.ID, time.Now().Add(-5*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	// Consent does not carry over to a different fortune type.
	ok, err = repo.HasRecent(ctx, "user-1", sexual.ID, time.Now().Add(-5*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	// A boundary after the acceptance excludes it.
	ok, err = repo.HasRecent(ctx, "user-1", crime.ID, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

// ============================================================================
// ReadingRepository Tests
// ============================================================================

func TestReadingRepository_InsertAndLatestSince(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createUser(t, pool, "user-1")

	catalog := NewCatalogRepository(pool)
	ft, err := catalog.GetFortuneTypeByKey(ctx, "today_free")
	require.NoError(t, err)

	repo := NewReadingRepository(pool)
	result := map[string]any{"type": "today_free", "fortune_type_key": "today_free"}
	readingID := uuid.NewString()

	inserted, err := repo.Insert(ctx, readingID, "user-1", ft.ID, model.AccessLife, nil, result, "user-1:2025-06-15:today_free")
	require.NoError(t, err)
	assert.Equal(t, readingID, inserted.ID)

	found, err := repo.LatestSince(ctx, "user-1", ft.ID, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, inserted.ID, found.ID)
	assert.Equal(t, "today_free", found.Result["fortune_type_key"])

	// A boundary after the insert finds nothing.
	_, err = repo.LatestSince(ctx, "user-1", ft.ID, time.Now().Add(time.Minute))
	assert.ErrorIs(t, err, ErrReadingNotFound)
}

func TestReadingRepository_GetByID_OwnershipScope(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createUser(t, pool, "user-1")
	createUser(t, pool, "user-2")

	catalog := NewCatalogRepository(pool)
	ft, err := catalog.GetFortuneTypeByKey(ctx, "today_free")
	require.NoError(t, err)

	repo := NewReadingRepository(pool)
	readingID := uuid.NewString()
	_, err = repo.Insert(ctx, readingID, "user-1", ft.ID, model.AccessLife, nil, map[string]any{}, "seed")
	require.NoError(t, err)

	// Owner can read it.
	_, err = repo.GetByID(ctx, "user-1", readingID)
	require.NoError(t, err)

	// Another user cannot.
	_, err = repo.GetByID(ctx, "user-2", readingID)
	assert.ErrorIs(t, err, ErrReadingNotFound)

	// Empty scope (administrative) can.
	_, err = repo.GetByID(ctx, "", readingID)
	require.NoError(t, err)
}

// ============================================================================
// InterpretationRepository Tests
// ============================================================================

func TestInterpretationRepository_Versions(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createUser(t, pool, "user-1")

	catalog := NewCatalogRepository(pool)
	ft, err := catalog.GetFortuneTypeByKey(ctx, "hexagram_love")
	require.NoError(t, err)

	readings := NewReadingRepository(pool)
	readingID := uuid.NewString()
	_, err = readings.Insert(ctx, readingID, "user-1", ft.ID, model.AccessOneTime, nil, map[string]any{}, "seed")
	require.NoError(t, err)

	repo := NewInterpretationRepository(pool)

	has, err := repo.HasVersion(ctx, readingID)
	require.NoError(t, err)
	assert.False(t, has)

	next, err := repo.NextVersion(ctx, readingID)
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	require.NoError(t, repo.UpsertInput(ctx, readingID, map[string]any{"type": "hexagram"}))

	v1, err := repo.InsertVersion(ctx, readingID, 1, "prompt", "text one", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)
	require.NoError(t, repo.SetOutput(ctx, readingID, "text one"))

	has, err = repo.HasVersion(ctx, readingID)
	require.NoError(t, err)
	assert.True(t, has)

	next, err = repo.NextVersion(ctx, readingID)
	require.NoError(t, err)
	assert.Equal(t, 2, next)

	_, err = repo.InsertVersion(ctx, readingID, 2, "prompt", "text two", "gpt-4o")
	require.NoError(t, err)

	history, err := repo.History(ctx, readingID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].Version)
	assert.Equal(t, 1, history[1].Version)

	in, err := repo.Get(ctx, readingID)
	require.NoError(t, err)
	require.NotNil(t, in.OutputText)
	assert.Equal(t, "text one", *in.OutputText)
	assert.Equal(t, "hexagram", in.Input["type"])
}

func TestInterpretationRepository_HasVersionInWindow(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createUser(t, pool, "user-1")

	catalog := NewCatalogRepository(pool)
	ft, err := catalog.GetFortuneTypeByKey(ctx, "today_free")
	require.NoError(t, err)

	readings := NewReadingRepository(pool)
	readingID := uuid.NewString()
	_, err = readings.Insert(ctx, readingID, "user-1", ft.ID, model.AccessLife, nil, map[string]any{}, "seed")
	require.NoError(t, err)

	repo := NewInterpretationRepository(pool)
	_, err = repo.InsertVersion(ctx, readingID, 1, "prompt", "text", "gpt-4o")
	require.NoError(t, err)

	ok, err := repo.HasVersionInWindow(ctx, "user-1", "today_free", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	// Other users and other keys are unaffected.
	ok, err = repo.HasVersionInWindow(ctx, "user-2", "today_free", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.HasVersionInWindow(ctx, "user-1", "week_one", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}
