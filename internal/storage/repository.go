package storage

import (
	"context"
	"time"

	"tradecast/internal/models"
)

// ConfirmationUpdate carries the optional fields written alongside a status
// transition. Nil/zero fields are left untouched.
type ConfirmationUpdate struct {
	ModifiedParameters map[string]interface{}
	DecidedAt          *time.Time
	ExecutedAt         *time.Time
	TxHash             string
	GasPrice           string
	ErrorMessage       string
}

// BroadcastStore persists broadcasts and their fan-out.
type BroadcastStore interface {
	// CreateBroadcastWithConfirmations inserts the broadcast plus one PENDING
	// confirmation per consumer in a single transaction. On success b.ID is
	// populated and the created confirmations are returned. A crash
	// mid-fan-out leaves zero rows.
	CreateBroadcastWithConfirmations(ctx context.Context, b *models.Broadcast, consumerIDs []string) ([]models.Confirmation, error)
	GetBroadcast(ctx context.Context, id int64) (*models.Broadcast, error)
	ListBroadcastsByGenerator(ctx context.Context, generatorID string, limit, offset int) ([]*models.Broadcast, int, error)
	BroadcastStats(ctx context.Context, generatorID string) (*models.BroadcastStats, error)
	// DeleteSettledBroadcasts removes broadcasts expired before cutoff whose
	// confirmations have all left PENDING.
	DeleteSettledBroadcasts(ctx context.Context, cutoff time.Time) (int64, error)
}

// ConfirmationStore persists per-recipient decision records.
type ConfirmationStore interface {
	GetConfirmation(ctx context.Context, id int64) (*models.Confirmation, error)
	ListConfirmations(ctx context.Context, filter models.ConfirmationFilter) ([]*models.Confirmation, int, error)
	// TransitionConfirmation performs a conditional status update guarded by
	// the expected current status. Returns false (no error) when the guard
	// does not match, so racing duplicate calls are safe.
	TransitionConfirmation(ctx context.Context, id int64, from, to models.ConfirmationStatus, update ConfirmationUpdate) (bool, error)
	// ExpirePendingConfirmations flips every PENDING confirmation whose
	// broadcast expired before now to REJECTED. Returns rows affected.
	ExpirePendingConfirmations(ctx context.Context, now time.Time) (int64, error)
	// ListExpiringPending returns PENDING confirmations whose broadcast
	// expires within horizon, for the warning pass.
	ListExpiringPending(ctx context.Context, now time.Time, horizon time.Duration) ([]*models.Confirmation, error)
	// ListAcceptedConfirmations returns ACCEPTED confirmations across all
	// consumers, oldest first, for the execution coordinator.
	ListAcceptedConfirmations(ctx context.Context, limit int) ([]*models.Confirmation, error)
}

// SubscriptionStore reads the externally-sourced subscription table.
type SubscriptionStore interface {
	// SaveSubscription records a subscription observed by the external
	// listener. Concurrent duplicate creations resolve by returning the
	// existing row instead of a uniqueness-constraint fault.
	SaveSubscription(ctx context.Context, sub *models.Subscription) (*models.Subscription, error)
	// ActiveSubscribers returns consumer ids with an active, non-expired
	// subscription to the generator at the given instant.
	ActiveSubscribers(ctx context.Context, generatorID string, now time.Time) ([]string, error)
	// DeactivateExpiredSubscriptions marks expired active subscriptions
	// inactive and returns the rows that flipped.
	DeactivateExpiredSubscriptions(ctx context.Context, now time.Time) ([]models.Subscription, error)
}

// DeliveryStore persists the push backlog.
type DeliveryStore interface {
	SaveDelivery(ctx context.Context, rec *models.DeliveryRecord) error
	MarkDeliveryDelivered(ctx context.Context, id int64) error
	MarkDeliveryFailed(ctx context.Context, id int64, lastError string) error
	ListRetryableDeliveries(ctx context.Context, maxAttempts int) ([]*models.DeliveryRecord, error)
	ListMissedSince(ctx context.Context, recipientID string, since time.Time) ([]*models.DeliveryRecord, error)
	DeliveryHealth(ctx context.Context, recipientID string) (*models.DeliveryHealth, error)
	QueueDepth(ctx context.Context) (queued int, failed int, err error)
}

// ContractStore reads the deployed-contract records the registry resolves.
type ContractStore interface {
	GetActiveContract(ctx context.Context, protocol models.Protocol, name, network string) (*models.ContractRecord, error)
}

// Repository is the full storage surface, implemented by PostgresRepository.
type Repository interface {
	BroadcastStore
	ConfirmationStore
	SubscriptionStore
	DeliveryStore
	ContractStore

	Ping(ctx context.Context) error
	Close() error
}
