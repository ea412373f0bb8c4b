package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"time"

	"tradecast/internal/metrics"
	"tradecast/internal/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const gasCacheSize = 512

// Fallback figures used when the chain provider is unreachable. Deliberately
// conservative; a fallback estimate carries TTL 0 and is never cached.
var (
	fallbackGasLimits = map[models.Protocol]uint64{
		models.ProtocolLending: 400_000,
		models.ProtocolSwap:    300_000,
	}
	fallbackGasPrice = big.NewInt(30_000_000_000) // 30 gwei
)

// ChainClient is the narrow slice of an EVM RPC client the estimator needs.
// *ethclient.Client satisfies it.
type ChainClient interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// GasEstimator prices built calls, caching results per
// (function, network, parameter-set) for a TTL. The cache is a pure
// performance optimization; losing it only causes re-estimation.
type GasEstimator struct {
	client  ChainClient
	cache   *expirable.LRU[string, *models.GasEstimate]
	safety  float64
	ttl     time.Duration
	timeout time.Duration
	from    common.Address
}

// NewGasEstimator creates an estimator with the given safety multiplier and
// cache TTL. Chain calls are bounded by timeout and degrade to a fallback
// estimate instead of hanging or propagating provider faults.
func NewGasEstimator(client ChainClient, safety float64, ttl, timeout time.Duration) *GasEstimator {
	return &GasEstimator{
		client:  client,
		cache:   expirable.NewLRU[string, *models.GasEstimate](gasCacheSize, nil, ttl),
		safety:  safety,
		ttl:     ttl,
		timeout: timeout,
	}
}

// SetFrom sets the account estimates are computed against. Estimates for
// token operations can differ by sender, so the submitter's address is used
// when one is configured.
func (e *GasEstimator) SetFrom(from common.Address) {
	e.from = from
}

// Estimate prices the call described by req with calldata data against the
// resolved contract address. Provider failure yields a fallback estimate,
// never an error.
func (e *GasEstimator) Estimate(ctx context.Context, req *models.ExecutionRequest, data []byte) (*models.GasEstimate, error) {
	key := estimateKey(req)

	if cached, ok := e.cache.Get(key); ok {
		metrics.GasCacheHits.Inc()
		return cached, nil
	}
	metrics.GasCacheMisses.Inc()

	estimate, err := e.query(ctx, req, data)
	if err != nil {
		slog.Warn("Gas estimation failed, using fallback",
			"function", req.FunctionName,
			"network", req.Network,
			"error", err,
		)
		metrics.GasFallbacks.Inc()
		return e.fallback(req), nil
	}

	e.cache.Add(key, estimate)
	return estimate, nil
}

func (e *GasEstimator) query(ctx context.Context, req *models.ExecutionRequest, data []byte) (*models.GasEstimate, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	to := common.HexToAddress(req.Contract)
	raw, err := e.client.EstimateGas(ctx, ethereum.CallMsg{
		From: e.from,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}

	price, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	limit := uint64(float64(raw) * e.safety)

	return &models.GasEstimate{
		GasLimit:    limit,
		GasPrice:    price,
		TotalCost:   new(big.Int).Mul(new(big.Int).SetUint64(limit), price),
		EstimatedAt: time.Now().UTC(),
		TTLSeconds:  int(e.ttl.Seconds()),
	}, nil
}

func (e *GasEstimator) fallback(req *models.ExecutionRequest) *models.GasEstimate {
	limit, ok := fallbackGasLimits[req.Protocol]
	if !ok {
		limit = 500_000
	}

	return &models.GasEstimate{
		GasLimit:    limit,
		GasPrice:    new(big.Int).Set(fallbackGasPrice),
		TotalCost:   new(big.Int).Mul(new(big.Int).SetUint64(limit), fallbackGasPrice),
		EstimatedAt: time.Now().UTC(),
		TTLSeconds:  0,
		Fallback:    true,
	}
}

// Clear empties the estimate cache.
func (e *GasEstimator) Clear() {
	e.cache.Purge()
}

// estimateKey builds the cache key from function, network and the sorted
// parameter signature, so key order in the input map never matters.
func estimateKey(req *models.ExecutionRequest) string {
	keys := make([]string, 0, len(req.Parameters))
	for k := range req.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(req.FunctionName)
	sb.WriteByte('|')
	sb.WriteString(req.Network)
	for _, k := range keys {
		sb.WriteByte('|')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(paramString(req.Parameters[k]))
	}
	return sb.String()
}
