package models

import "time"

// DeliveryStatus is the state of one push attempt record.
type DeliveryStatus string

const (
	DeliveryQueued    DeliveryStatus = "queued"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// DeliveryRecord tracks one (event, recipient) push. Decoupled from
// Confirmation so repeated delivery attempts never mutate trade state.
type DeliveryRecord struct {
	ID          int64                  `json:"id"`
	RecipientID string                 `json:"recipient_id"`
	EventType   string                 `json:"event_type"`
	Payload     map[string]interface{} `json:"payload"`
	Status      DeliveryStatus         `json:"status"`
	Attempts    int                    `json:"attempts"`
	LastError   string                 `json:"last_error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// DeliveryHealth summarises a recipient's delivery state for ops tooling.
type DeliveryHealth struct {
	RecipientID      string     `json:"recipient_id"`
	Connected        bool       `json:"connected"`
	MissedCount      int        `json:"missed_count"`
	LastDeliveryTime *time.Time `json:"last_delivery_time,omitempty"`
}
