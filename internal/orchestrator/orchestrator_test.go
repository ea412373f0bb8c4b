package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tradecast/internal/confirm"
	"tradecast/internal/delivery"
	"tradecast/internal/executor"
	"tradecast/internal/faults"
	"tradecast/internal/models"
	"tradecast/internal/registry"
	"tradecast/internal/storage"
)

type fakeStore struct {
	mu             sync.Mutex
	confirmations  map[int64]*models.Confirmation
	broadcasts     map[int64]*models.Broadcast
	forceGuardMiss bool
	listErr        error
}

func (s *fakeStore) ListAcceptedConfirmations(ctx context.Context, limit int) ([]*models.Confirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var accepted []*models.Confirmation
	for _, c := range s.confirmations {
		if c.Status == models.StatusAccepted {
			copied := *c
			accepted = append(accepted, &copied)
		}
		if len(accepted) == limit {
			break
		}
	}
	return accepted, nil
}

func (s *fakeStore) GetConfirmation(ctx context.Context, id int64) (*models.Confirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.confirmations[id]
	if !ok {
		return nil, faults.New(faults.NotFound, "confirmation %d not found", id)
	}
	copied := *c
	return &copied, nil
}

func (s *fakeStore) GetBroadcast(ctx context.Context, id int64) (*models.Broadcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.broadcasts[id]
	if !ok {
		return nil, faults.New(faults.NotFound, "broadcast %d not found", id)
	}
	return b, nil
}

func (s *fakeStore) TransitionConfirmation(ctx context.Context, id int64, from, to models.ConfirmationStatus, update storage.ConfirmationUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forceGuardMiss {
		return false, nil
	}
	c, ok := s.confirmations[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	if update.ExecutedAt != nil {
		c.ExecutedAt = update.ExecutedAt
	}
	if update.TxHash != "" {
		c.TxHash = update.TxHash
	}
	if update.GasPrice != "" {
		c.GasPrice = update.GasPrice
	}
	if update.ErrorMessage != "" {
		c.ErrorMessage = update.ErrorMessage
	}
	return true, nil
}

func (s *fakeStore) status(id int64) models.ConfirmationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmations[id].Status
}

func (s *fakeStore) confirmation(id int64) models.Confirmation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.confirmations[id]
}

type fakeContractStore struct{}

func (fakeContractStore) GetActiveContract(ctx context.Context, protocol models.Protocol, name, network string) (*models.ContractRecord, error) {
	return &models.ContractRecord{Protocol: protocol, Network: network, Active: true}, nil
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

type fakeExecutor struct {
	mu       sync.Mutex
	protocol models.Protocol
	requests []*models.ExecutionRequest
	result   *models.ExecutionResult
	err      error
}

func (e *fakeExecutor) Protocol() models.Protocol { return e.protocol }

func (e *fakeExecutor) ValidateRequest(req *models.ExecutionRequest) *executor.ValidationResult {
	return &executor.ValidationResult{Valid: true}
}

func (e *fakeExecutor) BuildCallData(req *models.ExecutionRequest) ([]byte, error) {
	return nil, nil
}

func (e *fakeExecutor) EstimateGas(ctx context.Context, req *models.ExecutionRequest) (*models.GasEstimate, error) {
	return nil, nil
}

func (e *fakeExecutor) Execute(ctx context.Context, req *models.ExecutionRequest) (*models.ExecutionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	return e.result, e.err
}

func (e *fakeExecutor) ClearCache() {}

func (e *fakeExecutor) executed() []*models.ExecutionRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests
}

func newTestStore() *fakeStore {
	original := map[string]interface{}{
		"asset":        "0x6B175474E89094C44Da98b954EedeAC495271d0F",
		"amount":       "1000000000000000000",
		"onBehalfOf":   "0x1111111111111111111111111111111111111111",
		"referralCode": 0,
	}
	return &fakeStore{
		confirmations: map[int64]*models.Confirmation{
			10: {
				ID:                 10,
				BroadcastID:        1,
				ConsumerID:         "consumer-1",
				OriginalParameters: original,
				Status:             models.StatusAccepted,
			},
		},
		broadcasts: map[int64]*models.Broadcast{
			1: {
				ID:              1,
				GeneratorID:     "gen-1",
				FunctionName:    "supply",
				Protocol:        models.ProtocolLending,
				Parameters:      original,
				Network:         "mainnet",
				ContractAddress: "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2",
			},
		},
	}
}

func newTestCoordinator(store *fakeStore, exec *fakeExecutor) *Coordinator {
	reg := registry.New(fakeContractStore{}, time.Minute)
	channel := delivery.NewChannel(fakeDeliveryStore{}, 3, time.Hour, time.Hour)
	machine := confirm.New(store, reg, channel)
	return New(store, machine, executor.NewRegistry(exec), time.Minute)
}

func TestSweepExecutesAccepted(t *testing.T) {
	store := newTestStore()
	exec := &fakeExecutor{
		protocol: models.ProtocolLending,
		result:   &models.ExecutionResult{TxHash: "0xabc123", GasPrice: "30000000000", Status: "submitted"},
	}
	coord := newTestCoordinator(store, exec)

	settled, err := coord.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if settled != 1 {
		t.Errorf("Expected 1 settled confirmation, got %d", settled)
	}

	c := store.confirmation(10)
	if c.Status != models.StatusExecuted {
		t.Errorf("Expected status EXECUTED, got %s", c.Status)
	}
	if c.TxHash != "0xabc123" {
		t.Errorf("Expected tx hash to be recorded, got %q", c.TxHash)
	}
	if c.GasPrice != "30000000000" {
		t.Errorf("Expected the effective gas price to be recorded, got %q", c.GasPrice)
	}
	if c.ExecutedAt == nil {
		t.Error("Expected ExecutedAt to be set")
	}

	requests := exec.executed()
	if len(requests) != 1 {
		t.Fatalf("Expected 1 execution, got %d", len(requests))
	}
	if requests[0].Contract != "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2" {
		t.Errorf("Expected the broadcast contract address, got %s", requests[0].Contract)
	}
}

func TestSweepUsesModifiedParameters(t *testing.T) {
	store := newTestStore()
	store.confirmations[10].ModifiedParameters = map[string]interface{}{
		"asset":        "0x6B175474E89094C44Da98b954EedeAC495271d0F",
		"amount":       "500000000000000000",
		"onBehalfOf":   "0x1111111111111111111111111111111111111111",
		"referralCode": 0,
	}
	exec := &fakeExecutor{
		protocol: models.ProtocolLending,
		result:   &models.ExecutionResult{TxHash: "0xdef456", Status: "submitted"},
	}
	coord := newTestCoordinator(store, exec)

	if _, err := coord.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	requests := exec.executed()
	if len(requests) != 1 {
		t.Fatalf("Expected 1 execution, got %d", len(requests))
	}
	if requests[0].Parameters["amount"] != "500000000000000000" {
		t.Errorf("Expected the modified amount, got %v", requests[0].Parameters["amount"])
	}
}

func TestSweepMarksFailedOnExecutorError(t *testing.T) {
	store := newTestStore()
	exec := &fakeExecutor{
		protocol: models.ProtocolLending,
		err:      errors.New("insufficient funds for gas"),
	}
	coord := newTestCoordinator(store, exec)

	settled, err := coord.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if settled != 1 {
		t.Errorf("Expected the failure to settle the confirmation, got %d", settled)
	}

	c := store.confirmation(10)
	if c.Status != models.StatusFailed {
		t.Errorf("Expected status FAILED, got %s", c.Status)
	}
	if c.ErrorMessage != "insufficient funds for gas" {
		t.Errorf("Expected the executor error recorded, got %q", c.ErrorMessage)
	}
}

func TestSweepMarksFailedOnRejectedResult(t *testing.T) {
	store := newTestStore()
	exec := &fakeExecutor{
		protocol: models.ProtocolLending,
		result:   &models.ExecutionResult{Status: "failed", ErrorMessage: "execution reverted"},
	}
	coord := newTestCoordinator(store, exec)

	if _, err := coord.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	c := store.confirmation(10)
	if c.Status != models.StatusFailed {
		t.Errorf("Expected status FAILED, got %s", c.Status)
	}
	if c.ErrorMessage != "execution reverted" {
		t.Errorf("Expected the revert reason recorded, got %q", c.ErrorMessage)
	}
}

func TestSweepSkipsOnClaimMiss(t *testing.T) {
	store := newTestStore()
	store.forceGuardMiss = true
	exec := &fakeExecutor{
		protocol: models.ProtocolLending,
		result:   &models.ExecutionResult{TxHash: "0xabc", Status: "submitted"},
	}
	coord := newTestCoordinator(store, exec)

	if _, err := coord.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if got := exec.executed(); len(got) != 0 {
		t.Errorf("Expected no execution after a lost claim, got %d", len(got))
	}
}

func TestSweepEmptyBatch(t *testing.T) {
	store := newTestStore()
	store.confirmations[10].Status = models.StatusPending
	exec := &fakeExecutor{protocol: models.ProtocolLending}
	coord := newTestCoordinator(store, exec)

	settled, err := coord.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if settled != 0 {
		t.Errorf("Expected nothing to settle, got %d", settled)
	}
	if got := exec.executed(); len(got) != 0 {
		t.Errorf("Expected no executions, got %d", len(got))
	}
}

func TestSweepUnsupportedProtocol(t *testing.T) {
	store := newTestStore()
	store.broadcasts[1].Protocol = models.ProtocolSwap
	exec := &fakeExecutor{protocol: models.ProtocolLending}
	coord := newTestCoordinator(store, exec)

	settled, err := coord.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if settled != 0 {
		t.Errorf("Expected no settled confirmations, got %d", settled)
	}
	if store.status(10) != models.StatusAccepted {
		t.Errorf("Expected the confirmation to stay ACCEPTED, got %s", store.status(10))
	}
}

func TestSweepListFailure(t *testing.T) {
	store := newTestStore()
	store.listErr = errors.New("connection refused")
	exec := &fakeExecutor{protocol: models.ProtocolLending}
	coord := newTestCoordinator(store, exec)

	if _, err := coord.Sweep(context.Background()); err == nil {
		t.Error("Expected list failure to propagate")
	}
}
