package models

import (
	"strings"
	"time"
)

// IsAmountKey reports whether a parameter is amount-like: such values must
// always parse as positive integers, both at broadcast and on accept.
func IsAmountKey(key string) bool {
	return strings.Contains(strings.ToLower(key), "amount")
}

// ConfirmationStatus is the lifecycle state of a consumer's decision record.
//
// Transitions are monotonic:
//
//	PENDING -> ACCEPTED -> EXECUTING -> EXECUTED
//	PENDING -> REJECTED              EXECUTING -> FAILED
//
// EXECUTED, FAILED and REJECTED are terminal.
type ConfirmationStatus string

const (
	StatusPending   ConfirmationStatus = "PENDING"
	StatusAccepted  ConfirmationStatus = "ACCEPTED"
	StatusRejected  ConfirmationStatus = "REJECTED"
	StatusExecuting ConfirmationStatus = "EXECUTING"
	StatusExecuted  ConfirmationStatus = "EXECUTED"
	StatusFailed    ConfirmationStatus = "FAILED"
)

// Terminal reports whether no further transition is permitted from s.
func (s ConfirmationStatus) Terminal() bool {
	return s == StatusRejected || s == StatusExecuted || s == StatusFailed
}

// Confirmation is one recipient's decision record for a Broadcast. Created
// by the broadcaster in PENDING; mutated only by the state machine and the
// expiry reaper; never deleted.
type Confirmation struct {
	ID          int64  `json:"id"`
	BroadcastID int64  `json:"broadcast_id"`
	ConsumerID  string `json:"consumer_id"`

	// Parameter maps. OriginalParameters is a copy of the broadcast's
	// parameters at creation time; ModifiedParameters starts equal to it
	// and may diverge only on modifiable keys when the consumer accepts.
	OriginalParameters map[string]interface{} `json:"original_parameters"`
	ModifiedParameters map[string]interface{} `json:"modified_parameters"`

	Status       ConfirmationStatus `json:"status"`
	GasPrice     string             `json:"gas_price,omitempty"`
	TxHash       string             `json:"tx_hash,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`

	ReceivedAt time.Time  `json:"received_at"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
}

// DecisionAction is the consumer's choice on a pending confirmation.
type DecisionAction string

const (
	ActionAccept DecisionAction = "accept"
	ActionReject DecisionAction = "reject"
)

// DecisionRequest is the input to the confirmation state machine.
type DecisionRequest struct {
	ConfirmationID     int64                  `json:"confirmation_id"`
	Action             DecisionAction         `json:"action"`
	ModifiedParameters map[string]interface{} `json:"modified_parameters,omitempty"`
	ConsumerID         string                 `json:"consumer_id"`
}

// ConfirmationFilter provides criteria for listing confirmations.
type ConfirmationFilter struct {
	ConsumerID string
	Status     ConfirmationStatus // empty means any
	Limit      int
	Offset     int
}

// ConfirmationListResponse represents a paginated confirmation list.
type ConfirmationListResponse struct {
	Confirmations []*Confirmation `json:"confirmations"`
	Total         int             `json:"total"`
	Limit         int             `json:"limit"`
	Offset        int             `json:"offset"`
}
