package registry

import (
	"context"
	"testing"
	"time"

	"tradecast/internal/faults"
	"tradecast/internal/models"
)

type countingContractStore struct {
	calls   int
	records map[string]*models.ContractRecord
}

func storeKey(protocol models.Protocol, name, network string) string {
	return string(protocol) + "/" + name + "/" + network
}

func (s *countingContractStore) GetActiveContract(ctx context.Context, protocol models.Protocol, name, network string) (*models.ContractRecord, error) {
	s.calls++
	record, ok := s.records[storeKey(protocol, name, network)]
	if !ok {
		return nil, faults.New(faults.NotFound, "no active contract for %s/%s on %s", protocol, name, network)
	}
	return record, nil
}

func newTestStore() *countingContractStore {
	return &countingContractStore{
		records: map[string]*models.ContractRecord{
			storeKey(models.ProtocolLending, "LendingPool", "mainnet"): {
				ID:       1,
				Protocol: models.ProtocolLending,
				Network:  "mainnet",
				Address:  "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2",
				Active:   true,
			},
			storeKey(models.ProtocolSwap, "SwapRouter", "mainnet"): {
				ID:       2,
				Protocol: models.ProtocolSwap,
				Network:  "mainnet",
				Address:  "0xE592427A0AEce92De3Edee1F18E0157C05861564",
				Active:   true,
			},
		},
	}
}

func TestResolveCachesRecord(t *testing.T) {
	store := newTestStore()
	reg := New(store, time.Minute)
	ctx := context.Background()

	first, err := reg.Resolve(ctx, models.ProtocolLending, "LendingPool", "mainnet")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	second, err := reg.Resolve(ctx, models.ProtocolLending, "LendingPool", "mainnet")
	if err != nil {
		t.Fatalf("Second resolve failed: %v", err)
	}

	if store.calls != 1 {
		t.Errorf("Expected 1 store call with warm cache, got %d", store.calls)
	}
	if first.Address != second.Address {
		t.Errorf("Cached record differs: %s vs %s", first.Address, second.Address)
	}
}

func TestResolveCacheExpires(t *testing.T) {
	store := newTestStore()
	reg := New(store, 20*time.Millisecond)
	ctx := context.Background()

	if _, err := reg.Resolve(ctx, models.ProtocolSwap, "SwapRouter", "mainnet"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if _, err := reg.Resolve(ctx, models.ProtocolSwap, "SwapRouter", "mainnet"); err != nil {
		t.Fatalf("Resolve after expiry failed: %v", err)
	}

	if store.calls != 2 {
		t.Errorf("Expected 2 store calls after TTL expiry, got %d", store.calls)
	}
}

func TestInvalidateDropsCachedRecord(t *testing.T) {
	store := newTestStore()
	reg := New(store, time.Minute)
	ctx := context.Background()

	if _, err := reg.Resolve(ctx, models.ProtocolLending, "LendingPool", "mainnet"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	reg.Invalidate(models.ProtocolLending, "LendingPool", "mainnet")

	if _, err := reg.Resolve(ctx, models.ProtocolLending, "LendingPool", "mainnet"); err != nil {
		t.Fatalf("Resolve after invalidate failed: %v", err)
	}

	if store.calls != 2 {
		t.Errorf("Expected store re-read after Invalidate, got %d calls", store.calls)
	}
}

func TestResolveUnknownContract(t *testing.T) {
	reg := New(newTestStore(), time.Minute)

	_, err := reg.Resolve(context.Background(), models.ProtocolLending, "LendingPool", "testnet")
	if err == nil {
		t.Fatal("Expected error for unknown network")
	}
	if !faults.Is(err, faults.NotFound) {
		t.Errorf("Expected NotFound fault, got: %v", err)
	}
}

func TestResolveForProtocol(t *testing.T) {
	reg := New(newTestStore(), time.Minute)

	record, err := reg.ResolveForProtocol(context.Background(), models.ProtocolSwap, "mainnet")
	if err != nil {
		t.Fatalf("ResolveForProtocol failed: %v", err)
	}
	if record.Address != "0xE592427A0AEce92De3Edee1F18E0157C05861564" {
		t.Errorf("Unexpected address: %s", record.Address)
	}

	if _, err := reg.ResolveForProtocol(context.Background(), models.Protocol("STAKING"), "mainnet"); err == nil {
		t.Error("Expected error for protocol without canonical contract")
	}
}

func TestValidateParameters(t *testing.T) {
	reg := New(newTestStore(), time.Minute)

	valid := map[string]interface{}{
		"asset":        "0x6B175474E89094C44Da98b954EedeAC495271d0F",
		"amount":       "1000000000000000000",
		"onBehalfOf":   "0x1111111111111111111111111111111111111111",
		"referralCode": 0,
	}
	if errs := reg.ValidateParameters("supply", valid); len(errs) != 0 {
		t.Errorf("Expected no validation errors, got: %v", errs)
	}

	missing := map[string]interface{}{
		"asset": "0x6B175474E89094C44Da98b954EedeAC495271d0F",
	}
	errs := reg.ValidateParameters("supply", missing)
	if len(errs) != 3 {
		t.Errorf("Expected 3 missing-parameter errors, got %d: %v", len(errs), errs)
	}

	extra := map[string]interface{}{
		"asset":        "0x6B175474E89094C44Da98b954EedeAC495271d0F",
		"amount":       "100",
		"onBehalfOf":   "0x1111111111111111111111111111111111111111",
		"referralCode": 0,
		"slippage":     0.5,
	}
	errs = reg.ValidateParameters("supply", extra)
	if len(errs) != 1 {
		t.Errorf("Expected 1 unexpected-parameter error, got %d: %v", len(errs), errs)
	}

	if errs := reg.ValidateParameters("flashLoan", valid); len(errs) != 1 {
		t.Errorf("Expected unknown-function error, got: %v", errs)
	}
}

func TestCanModify(t *testing.T) {
	reg := New(newTestStore(), time.Minute)

	if !reg.CanModify("supply", []string{"amount"}) {
		t.Error("amount should be modifiable on supply")
	}
	if reg.CanModify("supply", []string{"asset"}) {
		t.Error("asset should not be modifiable on supply")
	}
	if !reg.CanModify("borrow", []string{"amount", "interestRateMode"}) {
		t.Error("amount and interestRateMode should be modifiable on borrow")
	}
	if !reg.CanModify("exactInputSingle", []string{"amountIn", "amountOutMinimum", "deadline"}) {
		t.Error("swap slippage parameters should be modifiable")
	}
	if reg.CanModify("exactInputSingle", []string{"tokenIn"}) {
		t.Error("tokenIn should not be modifiable")
	}
	if reg.CanModify("flashLoan", []string{"amount"}) {
		t.Error("unknown function should not be modifiable")
	}
}

func TestSignatureCatalog(t *testing.T) {
	for _, name := range []string{"supply", "withdraw", "borrow", "repay", "exactInputSingle"} {
		sig, ok := Signature(name)
		if !ok {
			t.Errorf("Missing catalog entry: %s", name)
			continue
		}
		if sig.Name != name {
			t.Errorf("Catalog entry %s has mismatched name %s", name, sig.Name)
		}
		for _, key := range sig.Modifiable {
			if !sig.IsRequired(key) {
				t.Errorf("%s: modifiable key %s is not in the required set", name, key)
			}
		}
	}

	if _, ok := Signature("flashLoan"); ok {
		t.Error("flashLoan should not be in the catalog")
	}
}
