package models

import (
	"math/big"
	"time"
)

// GasEstimate is the result of a gas estimation, cached by the executor for
// TTL seconds. A fallback estimate produced while the provider is down
// carries TTL 0 and is never cached.
type GasEstimate struct {
	GasLimit    uint64    `json:"gas_limit"`
	GasPrice    *big.Int  `json:"gas_price"`
	TotalCost   *big.Int  `json:"total_cost"`
	EstimatedAt time.Time `json:"estimated_at"`
	TTLSeconds  int       `json:"ttl_seconds"`
	Fallback    bool      `json:"fallback,omitempty"`
}

// ExecutionResult reports the outcome of submitting a built call on chain.
// GasPrice is the effective price in wei the transaction was submitted with.
type ExecutionResult struct {
	TxHash       string    `json:"tx_hash,omitempty"`
	GasPrice     string    `json:"gas_price,omitempty"`
	GasUsed      uint64    `json:"gas_used,omitempty"`
	BlockNumber  uint64    `json:"block_number,omitempty"`
	Status       string    `json:"status"` // "submitted" or "failed"
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// ExecutionRequest is what a protocol executor validates, prices and submits.
type ExecutionRequest struct {
	Protocol     Protocol               `json:"protocol"`
	FunctionName string                 `json:"function_name"`
	Parameters   map[string]interface{} `json:"parameters"`
	Network      string                 `json:"network"`
	Contract     string                 `json:"contract"` // resolved address
	GasPrice     string                 `json:"gas_price,omitempty"`
}
