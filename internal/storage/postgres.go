package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tradecast/internal/faults"
	"tradecast/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{
		pool: pool,
	}, nil
}

// CreateBroadcastWithConfirmations inserts the broadcast and one PENDING
// confirmation per consumer atomically. Any failure rolls the whole fan-out
// back, leaving zero rows for the broadcast.
func (r *PostgresRepository) CreateBroadcastWithConfirmations(ctx context.Context, b *models.Broadcast, consumerIDs []string) ([]models.Confirmation, error) {
	paramsJSON, err := json.Marshal(b.Parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parameters: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	broadcastQuery := `
		INSERT INTO broadcasts (
			strategy_id, generator_id, correlation_id, function_name, protocol,
			parameters, contract_address, gas_estimate, network,
			broadcast_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	err = tx.QueryRow(ctx, broadcastQuery,
		b.StrategyID,
		b.GeneratorID,
		b.CorrelationID,
		b.FunctionName,
		b.Protocol,
		paramsJSON,
		b.ContractAddress,
		b.GasEstimate,
		b.Network,
		b.BroadcastAt,
		b.ExpiresAt,
	).Scan(&b.ID)

	if err != nil {
		return nil, fmt.Errorf("failed to insert broadcast: %w", err)
	}

	confirmationQuery := `
		INSERT INTO confirmations (
			broadcast_id, consumer_id, original_parameters, modified_parameters,
			status, received_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	confirmations := make([]models.Confirmation, 0, len(consumerIDs))
	for _, consumerID := range consumerIDs {
		c := models.Confirmation{
			BroadcastID:        b.ID,
			ConsumerID:         consumerID,
			OriginalParameters: b.Parameters,
			ModifiedParameters: b.Parameters,
			Status:             models.StatusPending,
			ReceivedAt:         b.BroadcastAt,
		}

		err = tx.QueryRow(ctx, confirmationQuery,
			b.ID,
			consumerID,
			paramsJSON,
			paramsJSON,
			models.StatusPending,
			b.BroadcastAt,
		).Scan(&c.ID)

		if err != nil {
			return nil, fmt.Errorf("failed to insert confirmation for %s: %w", consumerID, err)
		}

		confirmations = append(confirmations, c)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit fan-out transaction: %w", err)
	}

	return confirmations, nil
}

// GetBroadcast retrieves a broadcast by id
func (r *PostgresRepository) GetBroadcast(ctx context.Context, id int64) (*models.Broadcast, error) {
	query := `
		SELECT
			id, strategy_id, generator_id, correlation_id, function_name, protocol,
			parameters, contract_address, gas_estimate, network, broadcast_at, expires_at
		FROM broadcasts
		WHERE id = $1
	`

	var b models.Broadcast
	var paramsJSON []byte

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&b.ID,
		&b.StrategyID,
		&b.GeneratorID,
		&b.CorrelationID,
		&b.FunctionName,
		&b.Protocol,
		&paramsJSON,
		&b.ContractAddress,
		&b.GasEstimate,
		&b.Network,
		&b.BroadcastAt,
		&b.ExpiresAt,
	)

	if err == pgx.ErrNoRows {
		return nil, faults.New(faults.NotFound, "broadcast %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get broadcast: %w", err)
	}

	if err := json.Unmarshal(paramsJSON, &b.Parameters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parameters: %w", err)
	}

	return &b, nil
}

// ListBroadcastsByGenerator lists a generator's broadcasts with pagination
func (r *PostgresRepository) ListBroadcastsByGenerator(ctx context.Context, generatorID string, limit, offset int) ([]*models.Broadcast, int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM broadcasts WHERE generator_id = $1`, generatorID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count broadcasts: %w", err)
	}

	query := `
		SELECT
			id, strategy_id, generator_id, correlation_id, function_name, protocol,
			parameters, contract_address, gas_estimate, network, broadcast_at, expires_at
		FROM broadcasts
		WHERE generator_id = $1
		ORDER BY broadcast_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, generatorID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list broadcasts: %w", err)
	}
	defer rows.Close()

	var broadcasts []*models.Broadcast

	for rows.Next() {
		var b models.Broadcast
		var paramsJSON []byte

		err := rows.Scan(
			&b.ID,
			&b.StrategyID,
			&b.GeneratorID,
			&b.CorrelationID,
			&b.FunctionName,
			&b.Protocol,
			&paramsJSON,
			&b.ContractAddress,
			&b.GasEstimate,
			&b.Network,
			&b.BroadcastAt,
			&b.ExpiresAt,
		)

		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan broadcast: %w", err)
		}

		if err := json.Unmarshal(paramsJSON, &b.Parameters); err != nil {
			return nil, 0, fmt.Errorf("failed to unmarshal parameters: %w", err)
		}

		broadcasts = append(broadcasts, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating broadcasts: %w", err)
	}

	return broadcasts, total, nil
}

// BroadcastStats aggregates broadcast and confirmation outcomes for a generator
func (r *PostgresRepository) BroadcastStats(ctx context.Context, generatorID string) (*models.BroadcastStats, error) {
	now := time.Now().UTC()
	stats := &models.BroadcastStats{}

	countQuery := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE expires_at > $2),
			COUNT(*) FILTER (WHERE expires_at <= $2)
		FROM broadcasts
		WHERE generator_id = $1
	`
	err := r.pool.QueryRow(ctx, countQuery, generatorID, now).Scan(
		&stats.TotalBroadcasts,
		&stats.ActiveBroadcasts,
		&stats.ExpiredBroadcasts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count broadcasts: %w", err)
	}

	meanQuery := `
		SELECT COALESCE(AVG(cnt), 0) FROM (
			SELECT COUNT(c.id) AS cnt
			FROM broadcasts b
			LEFT JOIN confirmations c ON c.broadcast_id = b.id
			WHERE b.generator_id = $1
			GROUP BY b.id
		) per_broadcast
	`
	if err := r.pool.QueryRow(ctx, meanQuery, generatorID).Scan(&stats.MeanRecipients); err != nil {
		return nil, fmt.Errorf("failed to compute mean recipients: %w", err)
	}

	outcomeQuery := `
		SELECT
			COUNT(*) FILTER (WHERE c.status = 'EXECUTED'),
			COUNT(*) FILTER (WHERE c.status = 'FAILED')
		FROM confirmations c
		JOIN broadcasts b ON b.id = c.broadcast_id
		WHERE b.generator_id = $1
	`
	if err := r.pool.QueryRow(ctx, outcomeQuery, generatorID).Scan(&stats.ExecutedCount, &stats.FailedCount); err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}

	if settled := stats.ExecutedCount + stats.FailedCount; settled > 0 {
		stats.SuccessRate = float64(stats.ExecutedCount) / float64(settled)
	}

	return stats, nil
}

// DeleteSettledBroadcasts removes broadcasts expired before cutoff whose
// confirmations have all left PENDING
func (r *PostgresRepository) DeleteSettledBroadcasts(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM broadcasts b
		WHERE b.expires_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM confirmations c
			WHERE c.broadcast_id = b.id AND c.status = 'PENDING'
		  )
	`

	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete settled broadcasts: %w", err)
	}

	return tag.RowsAffected(), nil
}

// GetConfirmation retrieves a confirmation by id
func (r *PostgresRepository) GetConfirmation(ctx context.Context, id int64) (*models.Confirmation, error) {
	query := `
		SELECT
			id, broadcast_id, consumer_id, original_parameters, modified_parameters,
			status, gas_price, tx_hash, error_message, received_at, decided_at, executed_at
		FROM confirmations
		WHERE id = $1
	`

	c, err := scanConfirmation(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, faults.New(faults.NotFound, "confirmation %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get confirmation: %w", err)
	}

	return c, nil
}

// ListConfirmations lists confirmations for a consumer with pagination and
// an optional status filter
func (r *PostgresRepository) ListConfirmations(ctx context.Context, filter models.ConfirmationFilter) ([]*models.Confirmation, int, error) {
	countQuery := `
		SELECT COUNT(*) FROM confirmations
		WHERE consumer_id = $1 AND ($2 = '' OR status = $2)
	`

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, filter.ConsumerID, string(filter.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count confirmations: %w", err)
	}

	query := `
		SELECT
			id, broadcast_id, consumer_id, original_parameters, modified_parameters,
			status, gas_price, tx_hash, error_message, received_at, decided_at, executed_at
		FROM confirmations
		WHERE consumer_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY received_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.pool.Query(ctx, query, filter.ConsumerID, string(filter.Status), filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list confirmations: %w", err)
	}
	defer rows.Close()

	var confirmations []*models.Confirmation

	for rows.Next() {
		c, err := scanConfirmation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan confirmation: %w", err)
		}
		confirmations = append(confirmations, c)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating confirmations: %w", err)
	}

	return confirmations, total, nil
}

// TransitionConfirmation performs a status-guarded conditional update. The
// guard makes concurrent duplicate transitions race safely at the storage
// layer: the first update wins, later ones observe zero rows affected.
func (r *PostgresRepository) TransitionConfirmation(ctx context.Context, id int64, from, to models.ConfirmationStatus, update ConfirmationUpdate) (bool, error) {
	var paramsJSON []byte
	if update.ModifiedParameters != nil {
		var err error
		paramsJSON, err = json.Marshal(update.ModifiedParameters)
		if err != nil {
			return false, fmt.Errorf("failed to marshal modified parameters: %w", err)
		}
	}

	query := `
		UPDATE confirmations SET
			status = $3,
			modified_parameters = COALESCE($4, modified_parameters),
			decided_at = COALESCE($5, decided_at),
			executed_at = COALESCE($6, executed_at),
			tx_hash = COALESCE(NULLIF($7, ''), tx_hash),
			gas_price = COALESCE(NULLIF($8, ''), gas_price),
			error_message = COALESCE(NULLIF($9, ''), error_message)
		WHERE id = $1 AND status = $2
	`

	tag, err := r.pool.Exec(ctx, query,
		id,
		from,
		to,
		paramsJSON,
		update.DecidedAt,
		update.ExecutedAt,
		update.TxHash,
		update.GasPrice,
		update.ErrorMessage,
	)

	if err != nil {
		return false, fmt.Errorf("failed to transition confirmation: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ExpirePendingConfirmations flips PENDING confirmations with an expired
// broadcast to REJECTED in one batch update
func (r *PostgresRepository) ExpirePendingConfirmations(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE confirmations c SET
			status = 'REJECTED',
			decided_at = $1,
			error_message = 'broadcast expired'
		FROM broadcasts b
		WHERE c.broadcast_id = b.id
		  AND c.status = 'PENDING'
		  AND b.expires_at < $1
	`

	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending confirmations: %w", err)
	}

	return tag.RowsAffected(), nil
}

// ListExpiringPending returns PENDING confirmations whose broadcast expires
// within horizon, for the expiry warning pass
func (r *PostgresRepository) ListExpiringPending(ctx context.Context, now time.Time, horizon time.Duration) ([]*models.Confirmation, error) {
	query := `
		SELECT
			c.id, c.broadcast_id, c.consumer_id, c.original_parameters, c.modified_parameters,
			c.status, c.gas_price, c.tx_hash, c.error_message, c.received_at, c.decided_at, c.executed_at
		FROM confirmations c
		JOIN broadcasts b ON b.id = c.broadcast_id
		WHERE c.status = 'PENDING'
		  AND b.expires_at > $1
		  AND b.expires_at <= $2
		ORDER BY b.expires_at ASC
	`

	rows, err := r.pool.Query(ctx, query, now, now.Add(horizon))
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring confirmations: %w", err)
	}
	defer rows.Close()

	var confirmations []*models.Confirmation

	for rows.Next() {
		c, err := scanConfirmation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan confirmation: %w", err)
		}
		confirmations = append(confirmations, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expiring confirmations: %w", err)
	}

	return confirmations, nil
}

// ListAcceptedConfirmations returns accepted confirmations awaiting
// execution, oldest decision first.
func (r *PostgresRepository) ListAcceptedConfirmations(ctx context.Context, limit int) ([]*models.Confirmation, error) {
	query := `
		SELECT
			id, broadcast_id, consumer_id, original_parameters, modified_parameters,
			status, gas_price, tx_hash, error_message, received_at, decided_at, executed_at
		FROM confirmations
		WHERE status = 'ACCEPTED'
		ORDER BY decided_at ASC NULLS LAST
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list accepted confirmations: %w", err)
	}
	defer rows.Close()

	var confirmations []*models.Confirmation

	for rows.Next() {
		c, err := scanConfirmation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan confirmation: %w", err)
		}
		confirmations = append(confirmations, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accepted confirmations: %w", err)
	}

	return confirmations, nil
}

// SaveSubscription records an externally-observed subscription. A concurrent
// duplicate insert is resolved by re-reading and returning the existing row.
func (r *PostgresRepository) SaveSubscription(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	insertQuery := `
		INSERT INTO subscriptions (generator_id, consumer_id, active, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (generator_id, consumer_id) DO NOTHING
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, insertQuery,
		sub.GeneratorID,
		sub.ConsumerID,
		sub.Active,
		sub.ExpiresAt,
		sub.CreatedAt,
	).Scan(&sub.ID)

	if err == nil {
		return sub, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	// Conflict: another writer created the row first. Return theirs.
	selectQuery := `
		SELECT id, generator_id, consumer_id, active, expires_at, created_at
		FROM subscriptions
		WHERE generator_id = $1 AND consumer_id = $2
	`

	var existing models.Subscription
	err = r.pool.QueryRow(ctx, selectQuery, sub.GeneratorID, sub.ConsumerID).Scan(
		&existing.ID,
		&existing.GeneratorID,
		&existing.ConsumerID,
		&existing.Active,
		&existing.ExpiresAt,
		&existing.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read subscription after conflict: %w", err)
	}

	return &existing, nil
}

// ActiveSubscribers returns the consumer ids actively subscribed to the
// generator at the given instant
func (r *PostgresRepository) ActiveSubscribers(ctx context.Context, generatorID string, now time.Time) ([]string, error) {
	query := `
		SELECT consumer_id FROM subscriptions
		WHERE generator_id = $1 AND active = true AND expires_at > $2
		ORDER BY consumer_id ASC
	`

	rows, err := r.pool.Query(ctx, query, generatorID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get active subscribers: %w", err)
	}
	defer rows.Close()

	var consumerIDs []string
	for rows.Next() {
		var consumerID string
		if err := rows.Scan(&consumerID); err != nil {
			return nil, fmt.Errorf("failed to scan consumer id: %w", err)
		}
		consumerIDs = append(consumerIDs, consumerID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscribers: %w", err)
	}

	return consumerIDs, nil
}

// DeactivateExpiredSubscriptions marks expired active subscriptions inactive
// and returns the flipped rows
func (r *PostgresRepository) DeactivateExpiredSubscriptions(ctx context.Context, now time.Time) ([]models.Subscription, error) {
	query := `
		UPDATE subscriptions SET active = false
		WHERE active = true AND expires_at <= $1
		RETURNING id, generator_id, consumer_id, active, expires_at, created_at
	`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate expired subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		var s models.Subscription
		if err := rows.Scan(&s.ID, &s.GeneratorID, &s.ConsumerID, &s.Active, &s.ExpiresAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}

	return subs, nil
}

// SaveDelivery persists a new delivery record
func (r *PostgresRepository) SaveDelivery(ctx context.Context, rec *models.DeliveryRecord) error {
	payloadJSON, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO delivery_records (
			recipient_id, event_type, payload, status, attempts, last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id
	`

	err = r.pool.QueryRow(ctx, query,
		rec.RecipientID,
		rec.EventType,
		payloadJSON,
		rec.Status,
		rec.Attempts,
		rec.LastError,
		rec.CreatedAt,
	).Scan(&rec.ID)

	if err != nil {
		return fmt.Errorf("failed to save delivery record: %w", err)
	}

	return nil
}

// MarkDeliveryDelivered transitions a delivery record to delivered
func (r *PostgresRepository) MarkDeliveryDelivered(ctx context.Context, id int64) error {
	query := `
		UPDATE delivery_records SET status = 'delivered', updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark delivery delivered: %w", err)
	}

	return nil
}

// MarkDeliveryFailed re-marks a delivery record failed and bumps its attempt count
func (r *PostgresRepository) MarkDeliveryFailed(ctx context.Context, id int64, lastError string) error {
	query := `
		UPDATE delivery_records SET
			status = 'failed',
			attempts = attempts + 1,
			last_error = $2,
			updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.pool.Exec(ctx, query, id, lastError); err != nil {
		return fmt.Errorf("failed to mark delivery failed: %w", err)
	}

	return nil
}

// ListRetryableDeliveries returns failed deliveries below the attempt bound
func (r *PostgresRepository) ListRetryableDeliveries(ctx context.Context, maxAttempts int) ([]*models.DeliveryRecord, error) {
	query := `
		SELECT id, recipient_id, event_type, payload, status, attempts, last_error, created_at, updated_at
		FROM delivery_records
		WHERE status = 'failed' AND attempts < $1
		ORDER BY created_at ASC
	`

	return r.queryDeliveries(ctx, query, maxAttempts)
}

// ListMissedSince returns queued/failed deliveries for a recipient since the
// given time, supporting reconnect catch-up
func (r *PostgresRepository) ListMissedSince(ctx context.Context, recipientID string, since time.Time) ([]*models.DeliveryRecord, error) {
	query := `
		SELECT id, recipient_id, event_type, payload, status, attempts, last_error, created_at, updated_at
		FROM delivery_records
		WHERE recipient_id = $1 AND status IN ('queued', 'failed') AND created_at >= $2
		ORDER BY created_at ASC
	`

	return r.queryDeliveries(ctx, query, recipientID, since)
}

// DeliveryHealth summarises a recipient's backlog. Connected is filled in by
// the delivery channel, which owns the live-connection registry.
func (r *PostgresRepository) DeliveryHealth(ctx context.Context, recipientID string) (*models.DeliveryHealth, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status IN ('queued', 'failed')),
			MAX(updated_at) FILTER (WHERE status = 'delivered')
		FROM delivery_records
		WHERE recipient_id = $1
	`

	health := &models.DeliveryHealth{RecipientID: recipientID}
	if err := r.pool.QueryRow(ctx, query, recipientID).Scan(&health.MissedCount, &health.LastDeliveryTime); err != nil {
		return nil, fmt.Errorf("failed to get delivery health: %w", err)
	}

	return health, nil
}

// QueueDepth returns the global queued and failed delivery counts
func (r *PostgresRepository) QueueDepth(ctx context.Context) (int, int, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'queued'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM delivery_records
	`

	var queued, failed int
	if err := r.pool.QueryRow(ctx, query).Scan(&queued, &failed); err != nil {
		return 0, 0, fmt.Errorf("failed to get queue depth: %w", err)
	}

	return queued, failed, nil
}

// GetActiveContract retrieves the active contract record for a
// (protocol, name, network) triple
func (r *PostgresRepository) GetActiveContract(ctx context.Context, protocol models.Protocol, name, network string) (*models.ContractRecord, error) {
	query := `
		SELECT id, protocol, contract_name, network, address, abi, version, active, refreshed_at
		FROM contracts
		WHERE protocol = $1 AND contract_name = $2 AND network = $3 AND active = true
	`

	var c models.ContractRecord
	err := r.pool.QueryRow(ctx, query, protocol, name, network).Scan(
		&c.ID,
		&c.Protocol,
		&c.ContractName,
		&c.Network,
		&c.Address,
		&c.ABI,
		&c.Version,
		&c.Active,
		&c.RefreshedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, faults.New(faults.NotFound, "no active contract for %s/%s on %s", protocol, name, network)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}

	return &c, nil
}

// Ping checks if the database connection is alive
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// rowScanner abstracts pgx.Row and pgx.Rows for shared scan helpers
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfirmation(row rowScanner) (*models.Confirmation, error) {
	var c models.Confirmation
	var originalJSON, modifiedJSON []byte

	err := row.Scan(
		&c.ID,
		&c.BroadcastID,
		&c.ConsumerID,
		&originalJSON,
		&modifiedJSON,
		&c.Status,
		&c.GasPrice,
		&c.TxHash,
		&c.ErrorMessage,
		&c.ReceivedAt,
		&c.DecidedAt,
		&c.ExecutedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(originalJSON, &c.OriginalParameters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal original parameters: %w", err)
	}
	if err := json.Unmarshal(modifiedJSON, &c.ModifiedParameters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal modified parameters: %w", err)
	}

	return &c, nil
}

func (r *PostgresRepository) queryDeliveries(ctx context.Context, query string, args ...any) ([]*models.DeliveryRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	var records []*models.DeliveryRecord

	for rows.Next() {
		var rec models.DeliveryRecord
		var payloadJSON []byte

		err := rows.Scan(
			&rec.ID,
			&rec.RecipientID,
			&rec.EventType,
			&payloadJSON,
			&rec.Status,
			&rec.Attempts,
			&rec.LastError,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		)

		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery record: %w", err)
		}

		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &rec.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating delivery records: %w", err)
	}

	return records, nil
}
