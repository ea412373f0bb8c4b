package delivery

import "time"

// Event types carried in the push envelope.
const (
	EventConnected         = "connected"
	EventTradeBroadcast    = "trade-broadcast"
	EventTradeConfirmation = "trade-confirmation"
	EventExecutionStatus   = "execution-status"
	EventStatistics        = "statistics"
	EventHeartbeat         = "heartbeat"
)

// Envelope is the wire form of every push event.
type Envelope struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEnvelope stamps an envelope with the current time.
func NewEnvelope(eventType string, payload interface{}) Envelope {
	return Envelope{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// durable reports whether an event type is persisted as a DeliveryRecord
// when it cannot be pushed live. Heartbeats and connection acks are
// transient by nature.
func durable(eventType string) bool {
	switch eventType {
	case EventHeartbeat, EventConnected, EventStatistics:
		return false
	}
	return true
}
