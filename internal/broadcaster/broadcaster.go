// Package broadcaster fans a generator's proposed protocol call out to the
// snapshot of active subscribers, atomically persisting one broadcast plus
// one PENDING confirmation per recipient before handing the batch to the
// delivery channel.
package broadcaster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tradecast/internal/delivery"
	"tradecast/internal/faults"
	"tradecast/internal/metrics"
	"tradecast/internal/models"
	"tradecast/internal/registry"
	"tradecast/internal/storage"

	"github.com/google/uuid"
)

// Store is the slice of storage the broadcaster needs.
type Store interface {
	storage.BroadcastStore
	ActiveSubscribers(ctx context.Context, generatorID string, now time.Time) ([]string, error)
}

// Broadcaster orchestrates the fan-out pipeline.
type Broadcaster struct {
	store          Store
	registry       *registry.Registry
	channel        *delivery.Channel
	defaultExpiry  time.Duration
	defaultNetwork string
}

// New creates a broadcaster with its dependencies injected.
func New(store Store, reg *registry.Registry, channel *delivery.Channel, defaultExpiry time.Duration, defaultNetwork string) *Broadcaster {
	return &Broadcaster{
		store:          store,
		registry:       reg,
		channel:        channel,
		defaultExpiry:  defaultExpiry,
		defaultNetwork: defaultNetwork,
	}
}

// Broadcast validates the request, resolves the target contract, snapshots
// the subscriber set and persists the whole fan-out in one transaction.
// Zero subscribers is a valid, non-error outcome. Delivery happens after
// commit and never rolls the broadcast back.
func (b *Broadcaster) Broadcast(ctx context.Context, req *models.BroadcastRequest) (*models.BroadcastResponse, error) {
	if req.GeneratorID == "" {
		return nil, faults.New(faults.ValidationFailed, "generator_id is required")
	}

	sig, ok := b.registry.Signature(req.FunctionName)
	if !ok {
		return nil, faults.New(faults.ValidationFailed, "unknown function: %s", req.FunctionName).WithFields(req.FunctionName)
	}
	if sig.Protocol != req.Protocol {
		return nil, faults.New(faults.ValidationFailed, "function %s belongs to protocol %s, not %s",
			req.FunctionName, sig.Protocol, req.Protocol)
	}
	if errs := b.registry.ValidateParameters(req.FunctionName, req.Parameters); len(errs) > 0 {
		return nil, faults.New(faults.ValidationFailed, "invalid parameters").WithFields(errs...)
	}

	network := req.Network
	if network == "" {
		network = b.defaultNetwork
	}

	record, err := b.registry.ResolveForProtocol(ctx, req.Protocol, network)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	expiry := b.defaultExpiry
	if req.ExpiryMinutes != nil {
		expiry = time.Duration(*req.ExpiryMinutes) * time.Minute
	}

	broadcast := &models.Broadcast{
		StrategyID:      req.StrategyID,
		GeneratorID:     req.GeneratorID,
		CorrelationID:   newCorrelationID(now),
		FunctionName:    req.FunctionName,
		Protocol:        req.Protocol,
		Parameters:      req.Parameters,
		ContractAddress: record.Address,
		GasEstimate:     req.GasEstimate,
		Network:         network,
		BroadcastAt:     now,
		ExpiresAt:       now.Add(expiry),
	}

	subscribers, err := b.store.ActiveSubscribers(ctx, req.GeneratorID, now)
	if err != nil {
		return nil, faults.Wrap(faults.BroadcastFailed, err, "failed to resolve subscribers")
	}

	confirmations, err := b.store.CreateBroadcastWithConfirmations(ctx, broadcast, subscribers)
	if err != nil {
		return nil, faults.Wrap(faults.BroadcastFailed, err, "failed to persist fan-out")
	}

	metrics.BroadcastsCreated.Inc()
	metrics.ConfirmationsCreated.Add(float64(len(confirmations)))
	slog.Info("Broadcast fanned out",
		"broadcast_id", broadcast.ID,
		"correlation_id", broadcast.CorrelationID,
		"generator", req.GeneratorID,
		"function", req.FunctionName,
		"recipients", len(confirmations),
		"expires_at", broadcast.ExpiresAt,
	)

	b.notify(ctx, broadcast, confirmations)

	return &models.BroadcastResponse{
		BroadcastID:    broadcast.ID,
		CorrelationID:  broadcast.CorrelationID,
		RecipientCount: len(confirmations),
		BroadcastAt:    broadcast.BroadcastAt,
		ExpiresAt:      broadcast.ExpiresAt,
	}, nil
}

// notify pushes the new broadcast to each recipient. Failures degrade to
// the queued/retry path inside the channel and never fail the broadcast.
func (b *Broadcaster) notify(ctx context.Context, broadcast *models.Broadcast, confirmations []models.Confirmation) {
	for _, c := range confirmations {
		payload := map[string]interface{}{
			"broadcast_id":     broadcast.ID,
			"confirmation_id":  c.ID,
			"correlation_id":   broadcast.CorrelationID,
			"generator_id":     broadcast.GeneratorID,
			"function_name":    broadcast.FunctionName,
			"protocol":         broadcast.Protocol,
			"parameters":       broadcast.Parameters,
			"contract_address": broadcast.ContractAddress,
			"network":          broadcast.Network,
			"expires_at":       broadcast.ExpiresAt,
		}

		if err := b.channel.Send(ctx, c.ConsumerID, delivery.EventTradeBroadcast, payload); err != nil {
			slog.Error("Failed to record broadcast delivery",
				"broadcast_id", broadcast.ID,
				"consumer", c.ConsumerID,
				"error", err,
			)
			metrics.ErrorsTotal.WithLabelValues("broadcaster").Inc()
		}
	}
}

// History returns a generator's paginated broadcast history.
func (b *Broadcaster) History(ctx context.Context, generatorID string, limit, offset int) (*models.BroadcastListResponse, error) {
	broadcasts, total, err := b.store.ListBroadcastsByGenerator(ctx, generatorID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &models.BroadcastListResponse{
		Broadcasts: broadcasts,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
	}, nil
}

// Stats aggregates broadcast counts and confirmation outcomes.
func (b *Broadcaster) Stats(ctx context.Context, generatorID string) (*models.BroadcastStats, error) {
	return b.store.BroadcastStats(ctx, generatorID)
}

// CleanupSettled deletes broadcasts whose expiry passed more than the
// retention window ago and whose confirmations have all left PENDING.
// Broadcasts with a live PENDING row are never touched.
func (b *Broadcaster) CleanupSettled(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	deleted, err := b.store.DeleteSettledBroadcasts(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up settled broadcasts: %w", err)
	}
	if deleted > 0 {
		slog.Info("Settled broadcasts cleaned up", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

// newCorrelationID builds a human-traceable, globally-unique identifier:
// a timestamp-derived prefix plus a random suffix. Used purely for log and
// trace correlation, never for deduplication.
func newCorrelationID(now time.Time) string {
	return fmt.Sprintf("bc-%s-%s", now.Format("20060102T150405"), uuid.NewString()[:8])
}
