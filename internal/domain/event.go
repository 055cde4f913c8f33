package domain

import "time"

type EventType string

const (
	EventPartial EventType = "partial"
	EventFinal   EventType = "final"
)

// Event notifies listeners about progress on one request.
type Event struct {
	Type      EventType   `json:"type"`
	RequestID string      `json:"request_id"`
	Provider  string      `json:"provider,omitempty"`
	Status    EntryStatus `json:"status,omitempty"`
	Journeys  int         `json:"journeys"`
	At        time.Time   `json:"at"`
}
