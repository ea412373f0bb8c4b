// Package delivery maintains live push connections per recipient and the
// persisted backlog for recipients that are offline. Delivery is decoupled
// from trade state: repeated attempts touch DeliveryRecords only, and the
// live-connection registry is a best-effort in-process structure whose loss
// merely turns live pushes into queued ones.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tradecast/internal/metrics"
	"tradecast/internal/models"
	"tradecast/internal/storage"
)

// Conn is one live push connection. The websocket adapter in the api package
// satisfies it; tests use in-memory fakes.
type Conn interface {
	WriteEvent(Envelope) error
	Close() error
}

// Channel routes events to live connections and falls back to the persisted
// queue. Safe for concurrent use.
type Channel struct {
	store       storage.DeliveryStore
	maxAttempts int

	heartbeatEvery time.Duration
	statsEvery     time.Duration

	mu    sync.Mutex
	conns map[string]Conn
}

// NewChannel creates a delivery channel over the given backlog store.
func NewChannel(store storage.DeliveryStore, maxAttempts int, heartbeatEvery, statsEvery time.Duration) *Channel {
	return &Channel{
		store:          store,
		maxAttempts:    maxAttempts,
		heartbeatEvery: heartbeatEvery,
		statsEvery:     statsEvery,
		conns:          make(map[string]Conn),
	}
}

// Register attaches a live connection for a recipient, replacing any
// previous one, and acknowledges it with a connected event.
func (c *Channel) Register(recipientID string, conn Conn) {
	c.mu.Lock()
	if prev, ok := c.conns[recipientID]; ok {
		prev.Close()
	}
	c.conns[recipientID] = conn
	total := len(c.conns)
	c.mu.Unlock()

	metrics.ConnectedRecipients.Set(float64(total))
	slog.Info("Recipient connected", "recipient", recipientID, "total_connections", total)

	if err := conn.WriteEvent(NewEnvelope(EventConnected, map[string]interface{}{
		"recipient_id": recipientID,
	})); err != nil {
		c.Unregister(recipientID, conn)
	}
}

// Unregister detaches a connection. A stale conn (already replaced) is
// ignored so late disconnect callbacks cannot drop a newer connection.
func (c *Channel) Unregister(recipientID string, conn Conn) {
	c.mu.Lock()
	current, ok := c.conns[recipientID]
	if ok && current == conn {
		delete(c.conns, recipientID)
	}
	total := len(c.conns)
	c.mu.Unlock()

	if ok {
		conn.Close()
		metrics.ConnectedRecipients.Set(float64(total))
		slog.Info("Recipient disconnected", "recipient", recipientID, "total_connections", total)
	}
}

// Connected reports whether a recipient has a live connection.
func (c *Channel) Connected(recipientID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.conns[recipientID]
	return ok
}

func (c *Channel) conn(recipientID string) (Conn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.conns[recipientID]
	return conn, ok
}

// Send pushes an event to a recipient: written immediately on a live
// connection, else persisted as a queued DeliveryRecord. Never silently
// dropped for durable event types.
func (c *Channel) Send(ctx context.Context, recipientID, eventType string, payload map[string]interface{}) error {
	now := time.Now().UTC()
	rec := &models.DeliveryRecord{
		RecipientID: recipientID,
		EventType:   eventType,
		Payload:     payload,
		CreatedAt:   now,
	}

	conn, live := c.conn(recipientID)
	if live {
		err := conn.WriteEvent(NewEnvelope(eventType, payload))
		if err == nil {
			metrics.DeliveriesSent.WithLabelValues("delivered").Inc()
			if !durable(eventType) {
				return nil
			}
			rec.Status = models.DeliveryDelivered
			rec.Attempts = 1
			return c.store.SaveDelivery(ctx, rec)
		}

		// A failed write is a disconnect; prune and fall through to queueing.
		slog.Warn("Live push failed, pruning connection",
			"recipient", recipientID,
			"event_type", eventType,
			"error", err,
		)
		c.Unregister(recipientID, conn)

		if durable(eventType) {
			metrics.DeliveriesSent.WithLabelValues("failed").Inc()
			rec.Status = models.DeliveryFailed
			rec.Attempts = 1
			rec.LastError = err.Error()
			return c.store.SaveDelivery(ctx, rec)
		}
		return nil
	}

	if !durable(eventType) {
		return nil
	}

	metrics.DeliveriesSent.WithLabelValues("queued").Inc()
	rec.Status = models.DeliveryQueued
	return c.store.SaveDelivery(ctx, rec)
}

// RetryFailed scans failed deliveries below the attempt bound. Records whose
// recipient is now live are resent and marked delivered; the rest get their
// attempt count bumped and stay failed. Returns the number delivered.
func (c *Channel) RetryFailed(ctx context.Context) (int, error) {
	records, err := c.store.ListRetryableDeliveries(ctx, c.maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("failed to list retryable deliveries: %w", err)
	}

	delivered := 0
	for _, rec := range records {
		conn, live := c.conn(rec.RecipientID)
		if !live {
			if err := c.store.MarkDeliveryFailed(ctx, rec.ID, "recipient offline"); err != nil {
				slog.Error("Failed to re-mark delivery", "delivery_id", rec.ID, "error", err)
			}
			continue
		}

		if err := conn.WriteEvent(NewEnvelope(rec.EventType, rec.Payload)); err != nil {
			c.Unregister(rec.RecipientID, conn)
			if err := c.store.MarkDeliveryFailed(ctx, rec.ID, err.Error()); err != nil {
				slog.Error("Failed to re-mark delivery", "delivery_id", rec.ID, "error", err)
			}
			continue
		}

		if err := c.store.MarkDeliveryDelivered(ctx, rec.ID); err != nil {
			slog.Error("Failed to mark delivery delivered", "delivery_id", rec.ID, "error", err)
			continue
		}
		metrics.DeliveriesSent.WithLabelValues("retried").Inc()
		delivered++
	}

	return delivered, nil
}

// MissedSince returns the queued/failed backlog for a recipient since the
// given time, supporting reconnect catch-up.
func (c *Channel) MissedSince(ctx context.Context, recipientID string, since time.Time) ([]*models.DeliveryRecord, error) {
	return c.store.ListMissedSince(ctx, recipientID, since)
}

// Resume replays the missed backlog over the recipient's live connection,
// marking each replayed record delivered. Stops on the first write failure so
// unplayed records stay in the backlog. Returns the number replayed.
func (c *Channel) Resume(ctx context.Context, recipientID string, since time.Time) (int, error) {
	records, err := c.store.ListMissedSince(ctx, recipientID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to list missed deliveries: %w", err)
	}

	replayed := 0
	for _, rec := range records {
		conn, live := c.conn(recipientID)
		if !live {
			break
		}

		if err := conn.WriteEvent(NewEnvelope(rec.EventType, rec.Payload)); err != nil {
			c.Unregister(recipientID, conn)
			break
		}

		if err := c.store.MarkDeliveryDelivered(ctx, rec.ID); err != nil {
			slog.Error("Failed to mark replayed delivery", "delivery_id", rec.ID, "error", err)
			continue
		}
		metrics.DeliveriesSent.WithLabelValues("replayed").Inc()
		replayed++
	}

	return replayed, nil
}

// Health reports a recipient's delivery state.
func (c *Channel) Health(ctx context.Context, recipientID string) (*models.DeliveryHealth, error) {
	health, err := c.store.DeliveryHealth(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	health.Connected = c.Connected(recipientID)
	return health, nil
}

// Run drives the heartbeat and periodic-statistics loops until ctx ends.
func (c *Channel) Run(ctx context.Context) {
	heartbeat := time.NewTicker(c.heartbeatEvery)
	defer heartbeat.Stop()
	stats := time.NewTicker(c.statsEvery)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			c.broadcastTransient(NewEnvelope(EventHeartbeat, nil))
		case <-stats.C:
			c.pushStatistics(ctx)
		}
	}
}

// broadcastTransient writes an envelope to every live connection, pruning
// connections whose write fails.
func (c *Channel) broadcastTransient(env Envelope) {
	c.mu.Lock()
	snapshot := make(map[string]Conn, len(c.conns))
	for id, conn := range c.conns {
		snapshot[id] = conn
	}
	c.mu.Unlock()

	for id, conn := range snapshot {
		if err := conn.WriteEvent(env); err != nil {
			slog.Debug("Heartbeat write failed, pruning connection", "recipient", id)
			c.Unregister(id, conn)
		}
	}
}

func (c *Channel) pushStatistics(ctx context.Context) {
	queued, failed, err := c.store.QueueDepth(ctx)
	if err != nil {
		slog.Error("Failed to read queue depth", "error", err)
		return
	}

	metrics.DeliveryQueueDepth.Set(float64(queued))
	metrics.FailedDeliveries.Set(float64(failed))

	c.broadcastTransient(NewEnvelope(EventStatistics, map[string]interface{}{
		"queued_deliveries": queued,
		"failed_deliveries": failed,
	}))
}
