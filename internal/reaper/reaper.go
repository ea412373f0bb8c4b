// Package reaper runs the periodic expiry sweeps: stale PENDING
// confirmations become REJECTED and stale subscriptions become inactive.
// Every mutation is a status-guarded batch update, so the sweeps are
// idempotent and safe to run alongside live accept/reject traffic.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"tradecast/internal/delivery"
	"tradecast/internal/metrics"
	"tradecast/internal/models"
	"tradecast/internal/retry"
)

// Store is the slice of storage the reaper needs.
type Store interface {
	ExpirePendingConfirmations(ctx context.Context, now time.Time) (int64, error)
	ListExpiringPending(ctx context.Context, now time.Time, horizon time.Duration) ([]*models.Confirmation, error)
	DeactivateExpiredSubscriptions(ctx context.Context, now time.Time) ([]models.Subscription, error)
}

// Reaper converges expired state on fixed intervals.
type Reaper struct {
	store   Store
	channel *delivery.Channel
	retrier retry.Strategy

	confirmationEvery time.Duration
	subscriptionEvery time.Duration
	warningHorizon    time.Duration
}

// New creates a reaper. warningHorizon bounds the look-ahead of the expiry
// warning pass; zero disables it.
func New(store Store, channel *delivery.Channel, retrier retry.Strategy, confirmationEvery, subscriptionEvery, warningHorizon time.Duration) *Reaper {
	return &Reaper{
		store:             store,
		channel:           channel,
		retrier:           retrier,
		confirmationEvery: confirmationEvery,
		subscriptionEvery: subscriptionEvery,
		warningHorizon:    warningHorizon,
	}
}

// Run drives the sweeps until ctx ends.
func (r *Reaper) Run(ctx context.Context) {
	confirmations := time.NewTicker(r.confirmationEvery)
	defer confirmations.Stop()
	subscriptions := time.NewTicker(r.subscriptionEvery)
	defer subscriptions.Stop()

	slog.Info("Expiry reaper started",
		"confirmation_interval", r.confirmationEvery,
		"subscription_interval", r.subscriptionEvery,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Expiry reaper stopped")
			return
		case <-confirmations.C:
			if err := r.retrier.Execute(ctx, func() error {
				return r.SweepConfirmations(ctx)
			}); err != nil {
				slog.Error("Confirmation sweep failed", "error", err)
				metrics.ErrorsTotal.WithLabelValues("reaper").Inc()
			}
		case <-subscriptions.C:
			if err := r.retrier.Execute(ctx, func() error {
				return r.SweepSubscriptions(ctx)
			}); err != nil {
				slog.Error("Subscription sweep failed", "error", err)
				metrics.ErrorsTotal.WithLabelValues("reaper").Inc()
			}
		}
	}
}

// SweepConfirmations flips every PENDING confirmation whose broadcast has
// expired to REJECTED, then warns consumers whose pending confirmations are
// about to expire. Best-effort convergence with the synchronous expiry check
// in the decision path.
func (r *Reaper) SweepConfirmations(ctx context.Context) error {
	now := time.Now().UTC()

	expired, err := r.store.ExpirePendingConfirmations(ctx, now)
	if err != nil {
		return err
	}

	if expired > 0 {
		metrics.ExpiredConfirmations.Add(float64(expired))
		slog.Info("Expired pending confirmations rejected", "count", expired)
	}

	if r.warningHorizon > 0 {
		r.warnExpiring(ctx, now)
	}

	return nil
}

// SweepSubscriptions deactivates expired subscriptions and emits an
// informational expiry event per flipped row.
func (r *Reaper) SweepSubscriptions(ctx context.Context) error {
	now := time.Now().UTC()

	flipped, err := r.store.DeactivateExpiredSubscriptions(ctx, now)
	if err != nil {
		return err
	}

	if len(flipped) == 0 {
		return nil
	}

	metrics.ExpiredSubscriptions.Add(float64(len(flipped)))
	slog.Info("Expired subscriptions deactivated", "count", len(flipped))

	for _, sub := range flipped {
		payload := map[string]interface{}{
			"notice":       "subscription_expired",
			"generator_id": sub.GeneratorID,
			"expired_at":   sub.ExpiresAt,
		}
		if err := r.channel.Send(ctx, sub.ConsumerID, delivery.EventStatistics, payload); err != nil {
			slog.Debug("Subscription expiry notice not delivered",
				"consumer", sub.ConsumerID,
				"error", err,
			)
		}
	}

	return nil
}

// warnExpiring notifies consumers whose PENDING confirmations expire within
// the warning horizon.
func (r *Reaper) warnExpiring(ctx context.Context, now time.Time) {
	expiring, err := r.store.ListExpiringPending(ctx, now, r.warningHorizon)
	if err != nil {
		slog.Error("Failed to list expiring confirmations", "error", err)
		return
	}

	for _, c := range expiring {
		// Transient notice: live consumers get a nudge, offline ones are
		// not backlogged with repeated warnings.
		payload := map[string]interface{}{
			"notice":          "confirmation_expiring",
			"confirmation_id": c.ID,
			"broadcast_id":    c.BroadcastID,
		}
		if err := r.channel.Send(ctx, c.ConsumerID, delivery.EventStatistics, payload); err != nil {
			slog.Debug("Expiry warning not delivered",
				"confirmation_id", c.ID,
				"consumer", c.ConsumerID,
				"error", err,
			)
		}
	}
}
