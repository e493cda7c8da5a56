package models

import "time"

// Event types written to the journal.
const (
	EventConnect    = "CONNECT"
	EventDisconnect = "DISCONNECT"
	EventCommand    = "COMMAND"
	EventResponse   = "RESPONSE"
	EventMonitoring = "MONITORING"
	EventLogging    = "LOGGING"
	EventError      = "ERROR"
	EventInfo       = "INFO"
)

// DeviceEvent is a single journal entry.
type DeviceEvent struct {
	EventID    string    `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	Metadata   any       `json:"metadata,omitempty"`
}
