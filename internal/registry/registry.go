// Package registry resolves (protocol, contract name, network) triples to
// deployed contract records and owns the static function-signature catalog.
// Resolutions are cached in-process with a TTL; losing the cache only costs
// a storage re-read.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tradecast/internal/models"
	"tradecast/internal/storage"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const cacheSize = 256

// Registry caches contract resolutions over a ContractStore.
type Registry struct {
	store storage.ContractStore
	cache *expirable.LRU[string, *models.ContractRecord]
}

// New creates a registry with the given record TTL.
func New(store storage.ContractStore, ttl time.Duration) *Registry {
	return &Registry{
		store: store,
		cache: expirable.NewLRU[string, *models.ContractRecord](cacheSize, nil, ttl),
	}
}

// Resolve returns the active contract record for the triple, from cache when
// fresh. Absence of an active record surfaces as a NotFound fault from the
// store, not a panic-worthy condition.
func (r *Registry) Resolve(ctx context.Context, protocol models.Protocol, contractName, network string) (*models.ContractRecord, error) {
	key := cacheKey(protocol, contractName, network)

	if record, ok := r.cache.Get(key); ok {
		return record, nil
	}

	record, err := r.store.GetActiveContract(ctx, protocol, contractName, network)
	if err != nil {
		return nil, err
	}

	r.cache.Add(key, record)
	slog.Debug("Contract record cached",
		"protocol", protocol,
		"contract", contractName,
		"network", network,
		"address", record.Address,
	)

	return record, nil
}

// ResolveForProtocol resolves the protocol's canonical contract.
func (r *Registry) ResolveForProtocol(ctx context.Context, protocol models.Protocol, network string) (*models.ContractRecord, error) {
	name, ok := CanonicalContractName(protocol)
	if !ok {
		return nil, fmt.Errorf("no canonical contract for protocol %s", protocol)
	}
	return r.Resolve(ctx, protocol, name, network)
}

// Invalidate drops one cached resolution.
func (r *Registry) Invalidate(protocol models.Protocol, contractName, network string) {
	r.cache.Remove(cacheKey(protocol, contractName, network))
}

// InvalidateAll drops every cached resolution.
func (r *Registry) InvalidateAll() {
	r.cache.Purge()
}

// Signature looks up a function signature by name.
func (r *Registry) Signature(functionName string) (models.FunctionSignature, bool) {
	return Signature(functionName)
}

// ValidateParameters checks that the provided keys are exactly the
// signature's required set. Returns one error string per violation.
func (r *Registry) ValidateParameters(functionName string, params map[string]interface{}) []string {
	sig, ok := Signature(functionName)
	if !ok {
		return []string{fmt.Sprintf("unknown function: %s", functionName)}
	}

	var errs []string
	for _, key := range sig.Required {
		if _, present := params[key]; !present {
			errs = append(errs, fmt.Sprintf("missing required parameter: %s", key))
		}
	}
	for key := range params {
		if !sig.IsRequired(key) {
			errs = append(errs, fmt.Sprintf("unexpected parameter: %s", key))
		}
	}

	return errs
}

// CanModify reports whether every changed key is in the signature's
// modifiable set.
func (r *Registry) CanModify(functionName string, changedKeys []string) bool {
	sig, ok := Signature(functionName)
	if !ok {
		return false
	}
	for _, key := range changedKeys {
		if !sig.IsModifiable(key) {
			return false
		}
	}
	return true
}

func cacheKey(protocol models.Protocol, contractName, network string) string {
	return fmt.Sprintf("%s|%s|%s", protocol, contractName, network)
}
