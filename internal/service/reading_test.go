package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tarot-backend/internal/apperr"
	"tarot-backend/internal/model"
)

func TestResolveAndExecute_LifeDebitWithLedger(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	env.ensureUser(t, "user-1")

	reading, err := env.reading.ResolveAndExecute(ctx, "user-1", "week_one", nil)
	require.NoError(t, err)
	assert.Equal(t, model.AccessLife, reading.AccessTypeUsed)
	assert.Equal(t, "week_one", reading.Result["fortune_type_key"])

	balance, err := env.life.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 4, balance.Current)

	events, err := env.life.ListEvents(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.LifeEventConsume, events[0].EventType)
	assert.Equal(t, -1, events[0].Amount)
	assert.Equal(t, "execute:week_one", events[0].Reason)
}

func TestResolveAndExecute_FreeNormalizesToLife(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	env.ensureUser(t, "user-1")

	// today_free is catalogued as free but still costs one life.
	reading, err := env.reading.ResolveAndExecute(ctx, "user-1", "today_free", nil)
	require.NoError(t, err)
	assert.Equal(t, model.AccessLife, reading.AccessTypeUsed)

	balance, err := env.life.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 4, balance.Current)
}

func TestResolveAndExecute_DailyCacheNoRecharge(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	env.ensureUser(t, "user-1")

	first, err := env.reading.ResolveAndExecute(ctx, "user-1", "today_free", nil)
	require.NoError(t, err)

	// The second call within the daily window replays the stored reading
	// and charges nothing.
	second, err := env.reading.ResolveAndExecute(ctx, "user-1", "today_free", nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Seed, second.Seed)

	balance, err := env.life.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 4, balance.Current)

	events, err := env.life.ListEvents(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestResolveAndExecute_DailyCacheEvenWhenBroke(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	env.ensureUser(t, "user-1")

	first, err := env.reading.ResolveAndExecute(ctx, "user-1", "today_free", nil)
	require.NoError(t, err)

	env.drainLives(t, "user-1")

	// The cache lookup runs before the entitlement charge, so an empty
	// balance does not block the replay.
	second, err := env.reading.ResolveAndExecute(ctx, "user-1", "today_free", nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestResolveAndExecute_BalanceEmpty(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	env.ensureUser(t, "user-1")
	env.drainLives(t, "user-1")

	_, err := env.reading.ResolveAndExecute(ctx, "user-1", "compatibility", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	// The failed attempt left no reading and no ledger event beyond the
	// drain.
	readings, err := env.reading.ListReadings(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestResolveAndExecute_ConcurrentDebitLastLife(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	env.ensureUser(t, "user-1")

	// Leave exactly one life.
	for i := 0; i < 4; i++ {
		_, err := env.life.Debit(ctx, "user-1", "test drain")
		require.NoError(t, err)
	}

	// compatibility is life-gated and not daily-idempotent, so both
	// requests contend for the same last life.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.reading.ResolveAndExecute(ctx, "user-1", "compatibility", nil)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one request should win the last life")

	balance, err := env.life.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, balance.Current)
}

func TestResolveAndExecute_SubscriptionCoversLife(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	env.ensureUser(t, "user-1")
	env.grantSubscription(t, "user-1")

	reading, err := env.reading.ResolveAndExecute(ctx, "user-1", "week_one", nil)
	require.NoError(t, err)
	assert.Equal(t, model.AccessSubscription, reading.AccessTypeUsed)

	// No life was spent.
	balance, err := env.life.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 5, balance.Current)
}

func TestResolveAndExecute_SubscriptionRequired(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	env.ensureUser(t, "user-1")

	// Accept the warning so the subscription gate is what rejects.
	_, err := env.reading.AcceptWarning(ctx, "user-1", "partner_sexual")
	require.NoError(t, err)

	_, err = env.reading.ResolveAndExecute(ctx, "user-1", "partner_sexual", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestResolveAndExecute_WarningGate(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	env.ensureUser(t, "user-1")
	env.grantPurchase(t, "user-1", "triangle_crime", "txn-1")

	// Without acceptance the reading is rejected even though the
	// purchase exists.
	_, err := env.reading.ResolveAndExecute(ctx, "user-1", "triangle_crime", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	_, err = env.reading.AcceptWarning(ctx, "user-1", "triangle_crime")
	require.NoError(t, err)

	reading, err := env.reading.ResolveAndExecute(ctx, "user-1", "triangle_crime", nil)
	require.NoError(t, err)
	assert.Equal(t, model.AccessOneTime, reading.AccessTypeUsed)
}

func TestResolveAndExecute_OneTimeConsumedOnce(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	env.ensureUser(t, "user-1")
	env.grantPurchase(t, "user-1", "hexagram_love", "txn-1")

	reading, err := env.reading.ResolveAndExecute(ctx, "user-1", "hexagram_love", nil)
	require.NoError(t, err)
	assert.Equal(t, model.AccessOneTime, reading.AccessTypeUsed)

	// The purchase is spent; a second execution needs a new one.
	_, err = env.reading.ResolveAndExecute(ctx, "user-1", "hexagram_love", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	// The life balance was never touched for a one-time reading.
	balance, err := env.life.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 5, balance.Current)
}

func TestResolveAndExecute_UnknownFortuneType(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	env.ensureUser(t, "user-1")

	_, err := env.reading.ResolveAndExecute(ctx, "user-1", "no_such_type", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestResolveAndExecute_AdminBypass(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	env.ensureUser(t, "admin-user")

	// No subscription, no purchase, no warning acceptance: everything is
	// bypassed, but the reading is still recorded.
	reading, err := env.reading.ResolveAndExecute(ctx, "admin-user", "partner_sexual", nil)
	require.NoError(t, err)
	assert.Equal(t, "partner_sexual", reading.Result["fortune_type_key"])

	balance, err := env.life.GetBalance(ctx, "admin-user")
	require.NoError(t, err)
	assert.Equal(t, 5, balance.Current)
}

func TestResolveAndExecuteBatch_AllOrNothing(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	env.ensureUser(t, "user-1")

	// The second key requires a subscription the user lacks, so the
	// whole batch rolls back, including the first key's debit.
	_, err := env.reading.ResolveAndExecuteBatch(ctx, "user-1", []string{"week_one", "partner_sexual"}, nil)
	require.Error(t, err)

	balance, err := env.life.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 5, balance.Current)

	readings, err := env.reading.ListReadings(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestResolveAndExecuteBatch_Success(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	env.ensureUser(t, "user-1")

	readings, err := env.reading.ResolveAndExecuteBatch(ctx, "user-1", []string{"today_free", "week_one"}, nil)
	require.NoError(t, err)
	require.Len(t, readings, 2)

	balance, err := env.life.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, balance.Current)
}

func TestResolveAndExecuteBatch_EmptyKeys(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	env.ensureUser(t, "user-1")

	_, err := env.reading.ResolveAndExecuteBatch(context.Background(), "user-1", nil, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
}

func TestGetReading_OwnershipAndAdminScope(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ctx := context.Background()
	env.ensureUser(t, "user-1")
	env.ensureUser(t, "user-2")
	env.ensureUser(t, "admin-user")

	reading, err := env.reading.ResolveAndExecute(ctx, "user-1", "today_free", nil)
	require.NoError(t, err)

	_, err = env.reading.GetReading(ctx, "user-1", reading.ID)
	require.NoError(t, err)

	_, err = env.reading.GetReading(ctx, "user-2", reading.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	// Privileged users can read any user's reading.
	_, err = env.reading.GetReading(ctx, "admin-user", reading.ID)
	require.NoError(t, err)
}
