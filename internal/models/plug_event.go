package models

import "time"

// Plug journal event types.
const (
	EventToggleRequested = "TOGGLE_REQUESTED"
	EventToggleSent      = "TOGGLE_SENT"
	EventMismatch        = "MISMATCH"
	EventTimeout         = "TIMEOUT"
	EventCancelled       = "CANCELLED"
	EventExternalToggle  = "EXTERNAL_TOGGLE"
)

// PlugEvent is a single journal entry about a plug command.
type PlugEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Plug        string    `json:"plug"`
	Type        string    `json:"type"`        // TOGGLE_REQUESTED | TOGGLE_SENT | MISMATCH | TIMEOUT | CANCELLED | EXTERNAL_TOGGLE
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
