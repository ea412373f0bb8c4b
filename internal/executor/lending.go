package executor

import (
	"context"
	"fmt"
	"strings"

	"tradecast/internal/models"
	"tradecast/internal/registry"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Lending-pool functions take flat positional arguments.
const lendingPoolABI = `[
	{"name":"supply","type":"function","inputs":[
		{"name":"asset","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"onBehalfOf","type":"address"},
		{"name":"referralCode","type":"uint16"}]},
	{"name":"withdraw","type":"function","inputs":[
		{"name":"asset","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"to","type":"address"}]},
	{"name":"borrow","type":"function","inputs":[
		{"name":"asset","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"interestRateMode","type":"uint256"},
		{"name":"referralCode","type":"uint16"},
		{"name":"onBehalfOf","type":"address"}]},
	{"name":"repay","type":"function","inputs":[
		{"name":"asset","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"interestRateMode","type":"uint256"},
		{"name":"onBehalfOf","type":"address"}]}
]`

// LendingExecutor builds and submits lending-pool calls (supply, withdraw,
// borrow, repay).
type LendingExecutor struct {
	contractABI abi.ABI
	estimator   *GasEstimator
	submitter   Submitter
}

// NewLendingExecutor creates the LENDING protocol executor. submitter may be
// nil; execution then reports a failure instead of silently no-opping.
func NewLendingExecutor(estimator *GasEstimator, submitter Submitter) (*LendingExecutor, error) {
	parsed, err := abi.JSON(strings.NewReader(lendingPoolABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse lending pool ABI: %w", err)
	}
	return &LendingExecutor{
		contractABI: parsed,
		estimator:   estimator,
		submitter:   submitter,
	}, nil
}

func (e *LendingExecutor) Protocol() models.Protocol {
	return models.ProtocolLending
}

// ValidateRequest applies the shared checks plus the lending-specific
// referralCode and interestRateMode shapes.
func (e *LendingExecutor) ValidateRequest(req *models.ExecutionRequest) *ValidationResult {
	result := validateCommon(req, models.ProtocolLending, registry.Signature)
	if !result.Valid {
		return result
	}

	if v, ok := req.Parameters["referralCode"]; ok {
		code, err := parseUint(v)
		if err != nil {
			result.add("parameter referralCode: %v", err)
		} else if !code.IsUint64() || code.Uint64() > 65535 {
			result.add("parameter referralCode: out of uint16 range")
		}
	}

	if v, ok := req.Parameters["interestRateMode"]; ok {
		mode, err := parseUint(v)
		if err != nil {
			result.add("parameter interestRateMode: %v", err)
		} else if m := mode.Int64(); m != 1 && m != 2 {
			result.add("parameter interestRateMode: must be 1 (stable) or 2 (variable)")
		}
	}

	return result
}

// BuildCallData packs the ordered/typed argument list. Ordering is driven
// entirely by the signature's required-parameter list, never by map
// iteration order.
func (e *LendingExecutor) BuildCallData(req *models.ExecutionRequest) ([]byte, error) {
	sig, ok := registry.Signature(req.FunctionName)
	if !ok {
		return nil, fmt.Errorf("unknown function: %s", req.FunctionName)
	}

	args := make([]interface{}, 0, len(sig.Required))
	for _, key := range sig.Required {
		value, present := req.Parameters[key]
		if !present {
			return nil, fmt.Errorf("missing required parameter: %s", key)
		}

		switch {
		case isAddressKey(key):
			addr, err := parseAddress(value)
			if err != nil {
				return nil, fmt.Errorf("parameter %s: %w", key, err)
			}
			args = append(args, addr)
		case isAmountKey(key):
			amount, err := parseAmount(value)
			if err != nil {
				return nil, fmt.Errorf("parameter %s: %w", key, err)
			}
			args = append(args, amount)
		case key == "referralCode":
			code, err := parseUint(value)
			if err != nil {
				return nil, fmt.Errorf("parameter %s: %w", key, err)
			}
			args = append(args, uint16(code.Uint64()))
		default:
			n, err := parseUint(value)
			if err != nil {
				return nil, fmt.Errorf("parameter %s: %w", key, err)
			}
			args = append(args, n)
		}
	}

	data, err := e.contractABI.Pack(req.FunctionName, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", req.FunctionName, err)
	}

	return data, nil
}

func (e *LendingExecutor) EstimateGas(ctx context.Context, req *models.ExecutionRequest) (*models.GasEstimate, error) {
	return estimateGas(ctx, e, e.estimator, req)
}

func (e *LendingExecutor) Execute(ctx context.Context, req *models.ExecutionRequest) (*models.ExecutionResult, error) {
	return execute(ctx, e, e.estimator, e.submitter, req)
}

func (e *LendingExecutor) ClearCache() {
	e.estimator.Clear()
}
