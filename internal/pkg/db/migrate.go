package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// migrations are applied in order at startup. Statements are idempotent
// so re-running on boot is safe.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS user_lives (
		user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		current_life INT NOT NULL,
		max_life INT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (current_life >= 0),
		CHECK (current_life <= max_life)
	)`,
	`CREATE TABLE IF NOT EXISTS ad_events (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		ad_type TEXT NOT NULL,
		provider TEXT NOT NULL,
		placement TEXT NOT NULL,
		rewarded BOOLEAN NOT NULL DEFAULT FALSE,
		reward_amount INT NOT NULL DEFAULT 0,
		event_time TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_ad_events_user_placement
		ON ad_events(user_id, placement, event_time DESC)`,
	`CREATE TABLE IF NOT EXISTS life_events (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		event_type TEXT NOT NULL,
		amount INT NOT NULL,
		reason TEXT NOT NULL,
		related_ad_event_id UUID REFERENCES ad_events(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_life_events_user
		ON life_events(user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS fortune_types (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		key TEXT NOT NULL UNIQUE,
		access_type_default TEXT NOT NULL,
		requires_warning BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		product_key TEXT NOT NULL,
		platform TEXT NOT NULL,
		fortune_type_id UUID NOT NULL REFERENCES fortune_types(id),
		UNIQUE (product_key, platform)
	)`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		product_id UUID NOT NULL REFERENCES products(id),
		platform TEXT NOT NULL,
		store_transaction_id TEXT NOT NULL,
		status TEXT NOT NULL,
		verified_at TIMESTAMPTZ,
		UNIQUE (platform, store_transaction_id)
	)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		platform TEXT NOT NULL,
		store_subscription_id TEXT NOT NULL,
		status TEXT NOT NULL,
		current_period_start TIMESTAMPTZ NOT NULL,
		current_period_end TIMESTAMPTZ NOT NULL,
		auto_renew BOOLEAN NOT NULL DEFAULT FALSE,
		verified_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (platform, store_subscription_id)
	);
	CREATE INDEX IF NOT EXISTS idx_subscriptions_user_active
		ON subscriptions(user_id, status, current_period_end DESC)`,
	`CREATE TABLE IF NOT EXISTS warnings_acceptance (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		fortune_type_id UUID NOT NULL REFERENCES fortune_types(id),
		accepted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_warnings_user_type
		ON warnings_acceptance(user_id, fortune_type_id, accepted_at DESC)`,
	`CREATE TABLE IF NOT EXISTS readings (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		fortune_type_id UUID NOT NULL REFERENCES fortune_types(id),
		access_type TEXT NOT NULL,
		input_json JSONB NOT NULL DEFAULT '{}',
		result_json JSONB NOT NULL,
		seed TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_readings_user_type_created
		ON readings(user_id, fortune_type_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS reading_interpretations (
		reading_id UUID PRIMARY KEY REFERENCES readings(id) ON DELETE CASCADE,
		input_json JSONB NOT NULL DEFAULT '{}',
		output_text TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS interpretation_versions (
		id BIGSERIAL PRIMARY KEY,
		reading_id UUID NOT NULL REFERENCES readings(id) ON DELETE CASCADE,
		version INT NOT NULL,
		prompt TEXT NOT NULL,
		output_text TEXT NOT NULL,
		model TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (reading_id, version)
	)`,
}

// catalogSeed describes the static fortune-type catalog. Inserted with
// ON CONFLICT DO NOTHING so operators can adjust rows without boot
// overwriting them.
var catalogSeed = []struct {
	key             string
	accessType      string
	requiresWarning bool
}{
	{"today_free", "free", false},
	{"today_deep_love", "life", false},
	{"today_deep_work", "life", false},
	{"today_deep_money", "life", false},
	{"today_deep_trouble", "life", false},
	{"week_one", "life", false},
	{"no_desc_draw", "life", false},
	{"compatibility", "life", false},
	{"hexagram_love", "one_time", false},
	{"hexagram_reunion", "one_time", false},
	{"hexagram_unreq", "one_time", false},
	{"hexagram_marriage", "one_time", false},
	{"celtic_work", "one_time", false},
	{"celtic_startup", "one_time", false},
	{"celtic_job", "one_time", false},
	{"flower_timing", "one_time", false},
	{"triangle_crime", "one_time", true},
	{"partner_sexual", "subscription", true},
}

// Migrate applies the schema and seeds the fortune-type catalog.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations")

	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	for _, ft := range catalogSeed {
		_, err := pool.Exec(ctx, `
			INSERT INTO fortune_types (key, access_type_default, requires_warning)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO NOTHING
		`, ft.key, ft.accessType, ft.requiresWarning)
		if err != nil {
			return fmt.Errorf("failed to seed fortune type %s: %w", ft.key, err)
		}
		if ft.accessType != "one_time" {
			continue
		}
		// Each one-time fortune type sells as a single-use product on
		// both stores.
		for _, platform := range []string{"ios", "android"} {
			_, err := pool.Exec(ctx, `
				INSERT INTO products (product_key, platform, fortune_type_id)
				SELECT $1, $2, id FROM fortune_types WHERE key = $3
				ON CONFLICT (product_key, platform) DO NOTHING
			`, ft.key+"_single", platform, ft.key)
			if err != nil {
				return fmt.Errorf("failed to seed product for %s: %w", ft.key, err)
			}
		}
	}

	log.Info().Int("statements", len(migrations)).Msg("Database migrations complete")
	return nil
}
