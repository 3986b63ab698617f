// Package model defines the data models for the tarot backend.
package model

import "time"

// User is an opaque account created on first authentication.
type User struct {
	ID        string    `db:"id" json:"id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// LifeBalance is the per-user consumable counter gating life-type readings.
// Current stays within [0, max]; credits clamp to max.
type LifeBalance struct {
	UserID    string    `db:"user_id" json:"user_id"`
	Current   int       `db:"current_life" json:"current_life"`
	Max       int       `db:"max_life" json:"max_life"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// LifeEvent is an append-only record of a single balance mutation.
// Every debit or credit writes exactly one event in the same transaction.
type LifeEvent struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	EventType string    `db:"event_type" json:"event_type"`
	Amount    int       `db:"amount" json:"amount"`
	Reason    string    `db:"reason" json:"reason"`
	AdEventID *string   `db:"related_ad_event_id" json:"related_ad_event_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Life event types.
const (
	LifeEventConsume = "consume"
	LifeEventRecover = "recover"
)

// AdRewardEvent records one completed reward ad. Never updated; only
// counted inside rolling windows by the throttle.
type AdRewardEvent struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	AdType    string    `db:"ad_type" json:"ad_type"`
	Provider  string    `db:"provider" json:"provider"`
	Placement string    `db:"placement" json:"placement"`
	Rewarded  bool      `db:"rewarded" json:"rewarded"`
	Amount    int       `db:"reward_amount" json:"reward_amount"`
	EventTime time.Time `db:"event_time" json:"event_time"`
}

// AdTypeReward is the only ad type the throttle counts.
const AdTypeReward = "reward"

// FortuneType is a static catalog entry, read-only at request time.
type FortuneType struct {
	ID              string `db:"id" json:"id"`
	Key             string `db:"key" json:"key"`
	AccessType      string `db:"access_type_default" json:"access_type_default"`
	RequiresWarning bool   `db:"requires_warning" json:"requires_warning"`
}

// Access types. Free is normalized to life before resolution.
const (
	AccessFree         = "free"
	AccessLife         = "life"
	AccessOneTime      = "one_time"
	AccessSubscription = "subscription"
)

// Product maps a store product key to the fortune type it unlocks.
type Product struct {
	ID            string `db:"id" json:"id"`
	ProductKey    string `db:"product_key" json:"product_key"`
	Platform      string `db:"platform" json:"platform"`
	FortuneTypeID string `db:"fortune_type_id" json:"fortune_type_id"`
}

// Purchase is a verified one-time good. It transitions verified->consumed
// exactly once, when it satisfies a one_time entitlement.
type Purchase struct {
	ID                 string     `db:"id" json:"id"`
	UserID             string     `db:"user_id" json:"user_id"`
	ProductID          string     `db:"product_id" json:"product_id"`
	Platform           string     `db:"platform" json:"platform"`
	StoreTransactionID string     `db:"store_transaction_id" json:"store_transaction_id"`
	Status             string     `db:"status" json:"status"`
	VerifiedAt         *time.Time `db:"verified_at" json:"verified_at,omitempty"`
}

// Purchase statuses.
const (
	PurchaseVerified = "verified"
	PurchaseConsumed = "consumed"
	PurchaseCanceled = "canceled"
)

// Subscription is a verified store subscription, upserted by
// (platform, store_subscription_id).
type Subscription struct {
	ID                  string    `db:"id" json:"id"`
	UserID              string    `db:"user_id" json:"user_id"`
	Platform            string    `db:"platform" json:"platform"`
	StoreSubscriptionID string    `db:"store_subscription_id" json:"store_subscription_id"`
	Status              string    `db:"status" json:"status"`
	PeriodStart         time.Time `db:"current_period_start" json:"current_period_start"`
	PeriodEnd           time.Time `db:"current_period_end" json:"current_period_end"`
	AutoRenew           bool      `db:"auto_renew" json:"auto_renew"`
	VerifiedAt          time.Time `db:"verified_at" json:"verified_at"`
}

// SubscriptionActive is the status required to cover gated readings.
const SubscriptionActive = "active"

// WarningAcceptance is a short-lived consent record; only acceptances in
// the trailing warning window count.
type WarningAcceptance struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	FortuneTypeID string    `db:"fortune_type_id" json:"fortune_type_id"`
	AcceptedAt    time.Time `db:"accepted_at" json:"accepted_at"`
}

// Reading is an executed draw, immutable once created.
type Reading struct {
	ID             string         `db:"id" json:"id"`
	UserID         string         `db:"user_id" json:"user_id"`
	FortuneTypeID  string         `db:"fortune_type_id" json:"fortune_type_id"`
	AccessTypeUsed string         `db:"access_type" json:"access_type_used"`
	Input          map[string]any `db:"input_json" json:"input,omitempty"`
	Result         map[string]any `db:"result_json" json:"result"`
	Seed           string         `db:"seed" json:"seed"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// Interpretation holds the narrative input/output for one reading.
type Interpretation struct {
	ReadingID  string         `db:"reading_id" json:"reading_id"`
	Input      map[string]any `db:"input_json" json:"input,omitempty"`
	OutputText *string        `db:"output_text" json:"output_text,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// InterpretationVersion is one generated narrative, keyed by reading and
// a monotonically increasing version.
type InterpretationVersion struct {
	ReadingID  string    `db:"reading_id" json:"reading_id"`
	Version    int       `db:"version" json:"version"`
	Prompt     string    `db:"prompt" json:"prompt"`
	OutputText string    `db:"output_text" json:"output_text"`
	Model      string    `db:"model" json:"model"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
