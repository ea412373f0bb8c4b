// Package executor builds, prices and submits protocol calls. One Executor
// implementation exists per protocol; the broadcaster and confirmation
// layers select by protocol enum and never branch on protocol themselves.
package executor

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"tradecast/internal/faults"
	"tradecast/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// Executor is the per-protocol contract: validate a request against the
// function catalog, price it, and submit the built call.
type Executor interface {
	Protocol() models.Protocol
	ValidateRequest(req *models.ExecutionRequest) *ValidationResult
	BuildCallData(req *models.ExecutionRequest) ([]byte, error)
	EstimateGas(ctx context.Context, req *models.ExecutionRequest) (*models.GasEstimate, error)
	Execute(ctx context.Context, req *models.ExecutionRequest) (*models.ExecutionResult, error)
	ClearCache()
}

// ValidationResult collects per-parameter validation errors.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

func (v *ValidationResult) add(format string, args ...interface{}) {
	v.Valid = false
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// BuiltCall is the submit-ready form of a protocol call. Signing and
// submission belong to the configured Submitter, not this package.
type BuiltCall struct {
	To       common.Address
	Data     []byte
	GasLimit uint64
	GasPrice *big.Int
	Network  string
}

// Submitter hands a built call to the external signing/submission path.
type Submitter interface {
	Submit(ctx context.Context, call BuiltCall) (*models.ExecutionResult, error)
}

// Registry selects the executor for a protocol.
type Registry struct {
	executors map[models.Protocol]Executor
}

// NewRegistry indexes the given executors by protocol.
func NewRegistry(execs ...Executor) *Registry {
	r := &Registry{executors: make(map[models.Protocol]Executor)}
	for _, e := range execs {
		r.executors[e.Protocol()] = e
	}
	return r
}

// For returns the executor registered for the protocol.
func (r *Registry) For(protocol models.Protocol) (Executor, error) {
	e, ok := r.executors[protocol]
	if !ok {
		return nil, faults.New(faults.ValidationFailed, "unsupported protocol: %s", protocol)
	}
	return e, nil
}

// ClearCaches resets every executor's gas cache.
func (r *Registry) ClearCaches() {
	for _, e := range r.executors {
		e.ClearCache()
	}
}

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// addressKeys are the parameters carrying EVM addresses, across all catalogs.
var addressKeys = map[string]bool{
	"asset":      true,
	"onBehalfOf": true,
	"to":         true,
	"tokenIn":    true,
	"tokenOut":   true,
	"recipient":  true,
}

func isAmountKey(key string) bool {
	return models.IsAmountKey(key)
}

func isAddressKey(key string) bool {
	return addressKeys[key]
}

// paramString renders a parameter value as its string form. JSON decoding
// hands numbers over as float64, so both are accepted.
func paramString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return new(big.Float).SetFloat64(val).Text('f', 0)
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// parseAmount parses an amount-like value as a positive integer.
func parseAmount(v interface{}) (*big.Int, error) {
	s := paramString(v)
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not an integer: %q", s)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("must be positive, got %s", amount)
	}
	return amount, nil
}

// parseAddress validates address shape and converts to a checksum address.
func parseAddress(v interface{}) (common.Address, error) {
	s := paramString(v)
	if !addressPattern.MatchString(s) {
		return common.Address{}, fmt.Errorf("malformed address: %q", s)
	}
	return common.HexToAddress(s), nil
}

// parseUint parses a non-negative integer parameter (rate modes, fees,
// referral codes, deadlines).
func parseUint(v interface{}) (*big.Int, error) {
	s := paramString(v)
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not an integer: %q", s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("must not be negative, got %s", n)
	}
	return n, nil
}

// validateCommon applies the checks shared by every protocol variant:
// protocol match, signature lookup, required presence, address shape,
// positive amounts, and future deadlines.
func validateCommon(req *models.ExecutionRequest, protocol models.Protocol, signature func(string) (models.FunctionSignature, bool)) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if req.Protocol != protocol {
		result.add("protocol mismatch: request is %s, executor handles %s", req.Protocol, protocol)
		return result
	}

	sig, ok := signature(req.FunctionName)
	if !ok || sig.Protocol != protocol {
		result.add("unknown %s function: %s", protocol, req.FunctionName)
		return result
	}

	for _, key := range sig.Required {
		value, present := req.Parameters[key]
		if !present {
			result.add("missing required parameter: %s", key)
			continue
		}

		if isAddressKey(key) {
			if _, err := parseAddress(value); err != nil {
				result.add("parameter %s: %v", key, err)
			}
		}
		if isAmountKey(key) {
			if _, err := parseAmount(value); err != nil {
				result.add("parameter %s: %v", key, err)
			}
		}
		if key == "deadline" {
			deadline, err := parseUint(value)
			if err != nil {
				result.add("parameter deadline: %v", err)
			} else if deadline.Cmp(big.NewInt(time.Now().Unix())) <= 0 {
				result.add("parameter deadline: already passed")
			}
		}
	}

	return result
}
