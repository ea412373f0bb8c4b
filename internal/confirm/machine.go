// Package confirm owns the per-recipient confirmation lifecycle. Every
// mutation is a status-guarded conditional update, so duplicate or racing
// calls resolve at the storage layer: the first transition wins.
package confirm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"tradecast/internal/delivery"
	"tradecast/internal/faults"
	"tradecast/internal/metrics"
	"tradecast/internal/models"
	"tradecast/internal/registry"
	"tradecast/internal/storage"
)

// Store is the slice of storage the state machine needs.
type Store interface {
	GetConfirmation(ctx context.Context, id int64) (*models.Confirmation, error)
	GetBroadcast(ctx context.Context, id int64) (*models.Broadcast, error)
	TransitionConfirmation(ctx context.Context, id int64, from, to models.ConfirmationStatus, update storage.ConfirmationUpdate) (bool, error)
}

// Machine validates and applies confirmation transitions.
type Machine struct {
	store    Store
	registry *registry.Registry
	channel  *delivery.Channel
}

// New creates a confirmation state machine with its dependencies injected.
func New(store Store, reg *registry.Registry, channel *delivery.Channel) *Machine {
	return &Machine{store: store, registry: reg, channel: channel}
}

// Decide applies a consumer's accept or reject to a PENDING confirmation.
// On accept with modified parameters, every changed key must be in the
// function signature's modifiable set, all required keys must remain
// present, and amount-like values must stay positive integers.
func (m *Machine) Decide(ctx context.Context, req *models.DecisionRequest) (*models.Confirmation, error) {
	if req.Action != models.ActionAccept && req.Action != models.ActionReject {
		return nil, faults.New(faults.ValidationFailed, "unknown action: %s", req.Action)
	}

	c, err := m.store.GetConfirmation(ctx, req.ConfirmationID)
	if err != nil {
		return nil, err
	}

	if c.ConsumerID != req.ConsumerID {
		return nil, faults.New(faults.Unauthorized, "confirmation %d belongs to another consumer", c.ID)
	}

	if c.Status != models.StatusPending {
		return nil, faults.New(faults.InvalidState, "confirmation %d is %s, only PENDING can be decided", c.ID, c.Status)
	}

	broadcast, err := m.store.GetBroadcast(ctx, c.BroadcastID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if broadcast.Expired(now) {
		return nil, faults.New(faults.Expired, "broadcast %d expired at %s", broadcast.ID, broadcast.ExpiresAt.Format(time.RFC3339))
	}

	newStatus := models.StatusRejected
	update := storage.ConfirmationUpdate{DecidedAt: &now}

	if req.Action == models.ActionAccept {
		newStatus = models.StatusAccepted

		final, err := m.mergeParameters(broadcast.FunctionName, c.OriginalParameters, req.ModifiedParameters)
		if err != nil {
			return nil, err
		}
		update.ModifiedParameters = final
	}

	applied, err := m.store.TransitionConfirmation(ctx, c.ID, models.StatusPending, newStatus, update)
	if err != nil {
		return nil, fmt.Errorf("failed to persist decision: %w", err)
	}
	if !applied {
		// Lost a race with a concurrent decision or the expiry sweep.
		current, err := m.store.GetConfirmation(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		return nil, faults.New(faults.InvalidState, "confirmation %d is %s, only PENDING can be decided", c.ID, current.Status)
	}

	metrics.ConfirmationsDecided.WithLabelValues(string(newStatus)).Inc()
	slog.Info("Confirmation decided",
		"confirmation_id", c.ID,
		"broadcast_id", c.BroadcastID,
		"correlation_id", broadcast.CorrelationID,
		"consumer", c.ConsumerID,
		"status", newStatus,
	)

	updated, err := m.store.GetConfirmation(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	m.emit(ctx, updated, delivery.EventTradeConfirmation)

	return updated, nil
}

// MarkExecuting transitions ACCEPTED to EXECUTING. Returns false without
// error when the confirmation is not in ACCEPTED, so duplicate or racing
// executor callbacks are safe no-ops.
func (m *Machine) MarkExecuting(ctx context.Context, confirmationID int64) (bool, error) {
	return m.mark(ctx, confirmationID, models.StatusAccepted, models.StatusExecuting, storage.ConfirmationUpdate{})
}

// MarkExecuted transitions EXECUTING to EXECUTED, recording the transaction
// hash and the gas price paid.
func (m *Machine) MarkExecuted(ctx context.Context, confirmationID int64, txHash, gasPrice string) (bool, error) {
	now := time.Now().UTC()
	return m.mark(ctx, confirmationID, models.StatusExecuting, models.StatusExecuted, storage.ConfirmationUpdate{
		ExecutedAt: &now,
		TxHash:     txHash,
		GasPrice:   gasPrice,
	})
}

// MarkFailed transitions EXECUTING to FAILED with the failure reason.
func (m *Machine) MarkFailed(ctx context.Context, confirmationID int64, errorMessage string) (bool, error) {
	now := time.Now().UTC()
	return m.mark(ctx, confirmationID, models.StatusExecuting, models.StatusFailed, storage.ConfirmationUpdate{
		ExecutedAt:   &now,
		ErrorMessage: errorMessage,
	})
}

func (m *Machine) mark(ctx context.Context, id int64, from, to models.ConfirmationStatus, update storage.ConfirmationUpdate) (bool, error) {
	applied, err := m.store.TransitionConfirmation(ctx, id, from, to, update)
	if err != nil {
		return false, fmt.Errorf("failed to mark confirmation %s: %w", to, err)
	}
	if !applied {
		return false, nil
	}

	metrics.ConfirmationsDecided.WithLabelValues(string(to)).Inc()

	c, err := m.store.GetConfirmation(ctx, id)
	if err != nil {
		slog.Error("Failed to reload confirmation for push", "confirmation_id", id, "error", err)
		return true, nil
	}

	slog.Info("Confirmation execution status updated",
		"confirmation_id", id,
		"status", to,
		"tx_hash", c.TxHash,
	)
	m.emit(ctx, c, delivery.EventExecutionStatus)

	return true, nil
}

// mergeParameters overlays the consumer's modifications onto the original
// parameter map and enforces the mutation rules.
func (m *Machine) mergeParameters(functionName string, original, modified map[string]interface{}) (map[string]interface{}, error) {
	sig, ok := m.registry.Signature(functionName)
	if !ok {
		return nil, faults.New(faults.ValidationFailed, "unknown function: %s", functionName)
	}

	final := make(map[string]interface{}, len(original))
	for k, v := range original {
		final[k] = v
	}
	for k, v := range modified {
		final[k] = v
	}

	for key, value := range final {
		origValue, existed := original[key]
		if existed && renderValue(value) == renderValue(origValue) {
			continue
		}
		if !sig.IsModifiable(key) {
			return nil, faults.New(faults.ValidationFailed, "parameter %s is not modifiable", key).WithFields(key)
		}
	}

	for _, key := range sig.Required {
		if _, present := final[key]; !present {
			return nil, faults.New(faults.ValidationFailed, "missing required parameter: %s", key).WithFields(key)
		}
	}

	for key, value := range final {
		if !models.IsAmountKey(key) {
			continue
		}
		amount, ok := new(big.Int).SetString(renderValue(value), 10)
		if !ok || amount.Sign() <= 0 {
			return nil, faults.New(faults.ValidationFailed, "parameter %s must be a positive integer", key).WithFields(key)
		}
	}

	return final, nil
}

func (m *Machine) emit(ctx context.Context, c *models.Confirmation, eventType string) {
	payload := map[string]interface{}{
		"confirmation_id": c.ID,
		"broadcast_id":    c.BroadcastID,
		"status":          c.Status,
		"parameters":      c.ModifiedParameters,
	}
	if c.TxHash != "" {
		payload["tx_hash"] = c.TxHash
	}
	if c.ErrorMessage != "" {
		payload["error_message"] = c.ErrorMessage
	}

	if err := m.channel.Send(ctx, c.ConsumerID, eventType, payload); err != nil {
		slog.Error("Failed to push status change",
			"confirmation_id", c.ID,
			"consumer", c.ConsumerID,
			"error", err,
		)
		metrics.ErrorsTotal.WithLabelValues("confirm").Inc()
	}
}

// renderValue normalizes a parameter value for change detection, so "2000"
// and 2000 compare equal across JSON round-trips.
func renderValue(v interface{}) string {
	switch val := v.(type) {
	case float64:
		return new(big.Float).SetFloat64(val).Text('f', 0)
	default:
		return fmt.Sprintf("%v", v)
	}
}
