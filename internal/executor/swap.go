package executor

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"tradecast/internal/models"
	"tradecast/internal/registry"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// The swap router takes one aggregate struct rather than flat positional
// arguments; that shape difference is the reason executors exist per
// protocol.
const swapRouterABI = `[
	{"name":"exactInputSingle","type":"function","inputs":[
		{"name":"params","type":"tuple","components":[
			{"name":"tokenIn","type":"address"},
			{"name":"tokenOut","type":"address"},
			{"name":"fee","type":"uint24"},
			{"name":"recipient","type":"address"},
			{"name":"deadline","type":"uint256"},
			{"name":"amountIn","type":"uint256"},
			{"name":"amountOutMinimum","type":"uint256"},
			{"name":"sqrtPriceLimitX96","type":"uint160"}]}]}
]`

// exactInputSingleParams mirrors the router's aggregate tuple; field names
// must match the ABI component names for packing.
type exactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// SwapExecutor builds and submits swap-router calls.
type SwapExecutor struct {
	contractABI abi.ABI
	estimator   *GasEstimator
	submitter   Submitter
}

// NewSwapExecutor creates the SWAP protocol executor.
func NewSwapExecutor(estimator *GasEstimator, submitter Submitter) (*SwapExecutor, error) {
	parsed, err := abi.JSON(strings.NewReader(swapRouterABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse swap router ABI: %w", err)
	}
	return &SwapExecutor{
		contractABI: parsed,
		estimator:   estimator,
		submitter:   submitter,
	}, nil
}

func (e *SwapExecutor) Protocol() models.Protocol {
	return models.ProtocolSwap
}

// ValidateRequest applies the shared checks plus the fee-tier shape.
func (e *SwapExecutor) ValidateRequest(req *models.ExecutionRequest) *ValidationResult {
	result := validateCommon(req, models.ProtocolSwap, registry.Signature)
	if !result.Valid {
		return result
	}

	if v, ok := req.Parameters["fee"]; ok {
		fee, err := parseUint(v)
		if err != nil {
			result.add("parameter fee: %v", err)
		} else if fee.Cmp(big.NewInt(1<<24)) >= 0 {
			result.add("parameter fee: out of uint24 range")
		}
	}

	return result
}

// BuildCallData assembles the aggregate params struct from the signature's
// required set and packs it.
func (e *SwapExecutor) BuildCallData(req *models.ExecutionRequest) ([]byte, error) {
	sig, ok := registry.Signature(req.FunctionName)
	if !ok {
		return nil, fmt.Errorf("unknown function: %s", req.FunctionName)
	}
	for _, key := range sig.Required {
		if _, present := req.Parameters[key]; !present {
			return nil, fmt.Errorf("missing required parameter: %s", key)
		}
	}

	tokenIn, err := parseAddress(req.Parameters["tokenIn"])
	if err != nil {
		return nil, fmt.Errorf("parameter tokenIn: %w", err)
	}
	tokenOut, err := parseAddress(req.Parameters["tokenOut"])
	if err != nil {
		return nil, fmt.Errorf("parameter tokenOut: %w", err)
	}
	recipient, err := parseAddress(req.Parameters["recipient"])
	if err != nil {
		return nil, fmt.Errorf("parameter recipient: %w", err)
	}
	fee, err := parseUint(req.Parameters["fee"])
	if err != nil {
		return nil, fmt.Errorf("parameter fee: %w", err)
	}
	deadline, err := parseUint(req.Parameters["deadline"])
	if err != nil {
		return nil, fmt.Errorf("parameter deadline: %w", err)
	}
	amountIn, err := parseAmount(req.Parameters["amountIn"])
	if err != nil {
		return nil, fmt.Errorf("parameter amountIn: %w", err)
	}
	amountOutMin, err := parseAmount(req.Parameters["amountOutMinimum"])
	if err != nil {
		return nil, fmt.Errorf("parameter amountOutMinimum: %w", err)
	}

	data, err := e.contractABI.Pack(req.FunctionName, exactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		Fee:               fee,
		Recipient:         recipient,
		Deadline:          deadline,
		AmountIn:          amountIn,
		AmountOutMinimum:  amountOutMin,
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", req.FunctionName, err)
	}

	return data, nil
}

func (e *SwapExecutor) EstimateGas(ctx context.Context, req *models.ExecutionRequest) (*models.GasEstimate, error) {
	return estimateGas(ctx, e, e.estimator, req)
}

func (e *SwapExecutor) Execute(ctx context.Context, req *models.ExecutionRequest) (*models.ExecutionResult, error) {
	return execute(ctx, e, e.estimator, e.submitter, req)
}

func (e *SwapExecutor) ClearCache() {
	e.estimator.Clear()
}
