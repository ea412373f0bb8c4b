package models

import "time"

// Protocol identifies the DeFi protocol a broadcast targets
type Protocol string

const (
	ProtocolLending Protocol = "LENDING"
	ProtocolSwap    Protocol = "SWAP"
)

// Broadcast represents one fan-out event: a proposed protocol call plus
// the recipient snapshot taken at creation time. Immutable once created.
type Broadcast struct {
	// Identification
	ID            int64  `json:"id"`
	StrategyID    string `json:"strategy_id"`
	GeneratorID   string `json:"generator_id"`
	CorrelationID string `json:"correlation_id"` // trace-only, never a dedup key

	// Proposed call
	FunctionName    string                 `json:"function_name"`
	Protocol        Protocol               `json:"protocol"`
	Parameters      map[string]interface{} `json:"parameters"`
	ContractAddress string                 `json:"contract_address"`
	GasEstimate     string                 `json:"gas_estimate,omitempty"`
	Network         string                 `json:"network"`

	// Validity window
	BroadcastAt time.Time `json:"broadcast_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the broadcast's validity window has passed.
func (b *Broadcast) Expired(now time.Time) bool {
	return now.After(b.ExpiresAt)
}

// BroadcastRequest is the input to the broadcaster.
type BroadcastRequest struct {
	StrategyID    string                 `json:"strategy_id"`
	GeneratorID   string                 `json:"generator_id"`
	FunctionName  string                 `json:"function_name"`
	Protocol      Protocol               `json:"protocol"`
	Parameters    map[string]interface{} `json:"parameters"`
	GasEstimate   string                 `json:"gas_estimate,omitempty"`
	Network       string                 `json:"network,omitempty"`
	ExpiryMinutes *int                   `json:"expiry_minutes,omitempty"` // default 5
}

// BroadcastResponse is returned to the generator after a successful fan-out.
type BroadcastResponse struct {
	BroadcastID    int64     `json:"broadcast_id"`
	CorrelationID  string    `json:"correlation_id"`
	RecipientCount int       `json:"recipient_count"`
	BroadcastAt    time.Time `json:"broadcast_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// BroadcastStats aggregates broadcast and confirmation outcomes for a generator.
type BroadcastStats struct {
	TotalBroadcasts   int     `json:"total_broadcasts"`
	ActiveBroadcasts  int     `json:"active_broadcasts"`
	ExpiredBroadcasts int     `json:"expired_broadcasts"`
	MeanRecipients    float64 `json:"mean_recipients"`
	ExecutedCount     int     `json:"executed_count"`
	FailedCount       int     `json:"failed_count"`
	SuccessRate       float64 `json:"success_rate"` // EXECUTED / (EXECUTED + FAILED)
}

// BroadcastListResponse represents a paginated broadcast history.
type BroadcastListResponse struct {
	Broadcasts []*Broadcast `json:"broadcasts"`
	Total      int          `json:"total"`
	Limit      int          `json:"limit"`
	Offset     int          `json:"offset"`
}
