package models

import "time"

// Subscription links a consumer to a generator. Rows originate from an
// external on-chain listener; this module only reads them and flips the
// active flag when the expiry passes. The fan-out set of a broadcast is
// the snapshot of active, non-expired subscriptions at broadcast time;
// later changes never retroactively alter a broadcast's recipients.
type Subscription struct {
	ID          int64     `json:"id"`
	GeneratorID string    `json:"generator_id"`
	ConsumerID  string    `json:"consumer_id"`
	Active      bool      `json:"active"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}
