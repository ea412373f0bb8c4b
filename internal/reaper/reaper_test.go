package reaper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tradecast/internal/delivery"
	"tradecast/internal/models"
	"tradecast/internal/retry"
)

type fakeStore struct {
	pendingExpired int64
	expireCalls    int
	expireErr      error

	expiring []*models.Confirmation
	flipped  []models.Subscription
}

func (s *fakeStore) ExpirePendingConfirmations(ctx context.Context, now time.Time) (int64, error) {
	s.expireCalls++
	if s.expireErr != nil {
		return 0, s.expireErr
	}
	expired := s.pendingExpired
	s.pendingExpired = 0 // batch update is idempotent
	return expired, nil
}

func (s *fakeStore) ListExpiringPending(ctx context.Context, now time.Time, horizon time.Duration) ([]*models.Confirmation, error) {
	return s.expiring, nil
}

func (s *fakeStore) DeactivateExpiredSubscriptions(ctx context.Context, now time.Time) ([]models.Subscription, error) {
	flipped := s.flipped
	s.flipped = nil
	return flipped, nil
}

type fakeDeliveryStore struct{}

func (fakeDeliveryStore) SaveDelivery(ctx context.Context, rec *models.DeliveryRecord) error {
	return nil
}
func (fakeDeliveryStore) MarkDeliveryDelivered(ctx context.Context, id int64) error { return nil }
func (fakeDeliveryStore) MarkDeliveryFailed(ctx context.Context, id int64, lastError string) error {
	return nil
}
func (fakeDeliveryStore) ListRetryableDeliveries(ctx context.Context, maxAttempts int) ([]*models.DeliveryRecord, error) {
	return nil, nil
}
func (fakeDeliveryStore) ListMissedSince(ctx context.Context, recipientID string, since time.Time) ([]*models.DeliveryRecord, error) {
	return nil, nil
}
func (fakeDeliveryStore) DeliveryHealth(ctx context.Context, recipientID string) (*models.DeliveryHealth, error) {
	return &models.DeliveryHealth{RecipientID: recipientID}, nil
}
func (fakeDeliveryStore) QueueDepth(ctx context.Context) (int, int, error) { return 0, 0, nil }

type fakeConn struct {
	mu     sync.Mutex
	events []delivery.Envelope
}

func (c *fakeConn) WriteEvent(env delivery.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, env)
	return nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) notices() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, env := range c.events {
		payload, ok := env.Payload.(map[string]interface{})
		if !ok {
			continue
		}
		if notice, ok := payload["notice"].(string); ok {
			out = append(out, notice)
		}
	}
	return out
}

func newTestReaper(store *fakeStore, channel *delivery.Channel) *Reaper {
	return New(store, channel, retry.NewNoRetryStrategy(), time.Hour, time.Hour, 5*time.Minute)
}

func TestSweepConfirmationsExpires(t *testing.T) {
	store := &fakeStore{pendingExpired: 4}
	channel := delivery.NewChannel(fakeDeliveryStore{}, 3, time.Hour, time.Hour)
	r := newTestReaper(store, channel)

	if err := r.SweepConfirmations(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if store.expireCalls != 1 {
		t.Errorf("Expected 1 expire call, got %d", store.expireCalls)
	}

	// Second sweep finds nothing left to expire
	if err := r.SweepConfirmations(context.Background()); err != nil {
		t.Fatalf("Second sweep failed: %v", err)
	}
}

func TestSweepConfirmationsWarnsExpiring(t *testing.T) {
	store := &fakeStore{
		expiring: []*models.Confirmation{
			{ID: 10, BroadcastID: 1, ConsumerID: "consumer-1", Status: models.StatusPending},
		},
	}
	channel := delivery.NewChannel(fakeDeliveryStore{}, 3, time.Hour, time.Hour)
	conn := &fakeConn{}
	channel.Register("consumer-1", conn)

	r := newTestReaper(store, channel)
	if err := r.SweepConfirmations(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	notices := conn.notices()
	if len(notices) != 1 || notices[0] != "confirmation_expiring" {
		t.Errorf("Expected a confirmation_expiring notice, got %v", notices)
	}
}

func TestSweepConfirmationsPropagatesStoreError(t *testing.T) {
	store := &fakeStore{expireErr: errors.New("connection refused")}
	channel := delivery.NewChannel(fakeDeliveryStore{}, 3, time.Hour, time.Hour)
	r := newTestReaper(store, channel)

	if err := r.SweepConfirmations(context.Background()); err == nil {
		t.Error("Expected store error to propagate")
	}
}

func TestSweepSubscriptionsNotifies(t *testing.T) {
	expiresAt := time.Now().UTC().Add(-time.Hour)
	store := &fakeStore{
		flipped: []models.Subscription{
			{ID: 1, GeneratorID: "gen-1", ConsumerID: "consumer-1", ExpiresAt: expiresAt},
			{ID: 2, GeneratorID: "gen-1", ConsumerID: "consumer-2", ExpiresAt: expiresAt},
		},
	}
	channel := delivery.NewChannel(fakeDeliveryStore{}, 3, time.Hour, time.Hour)
	conn := &fakeConn{}
	channel.Register("consumer-1", conn)

	r := newTestReaper(store, channel)
	if err := r.SweepSubscriptions(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	notices := conn.notices()
	if len(notices) != 1 || notices[0] != "subscription_expired" {
		t.Errorf("Expected a subscription_expired notice for the live consumer, got %v", notices)
	}

	// Already-converged state sweeps cleanly
	if err := r.SweepSubscriptions(context.Background()); err != nil {
		t.Fatalf("Second sweep failed: %v", err)
	}
}
