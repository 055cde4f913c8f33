package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntryStatus is the outcome reported by a provider task
type EntryStatus string

const (
	StatusSuccess EntryStatus = "success"
	StatusError   EntryStatus = "error"
)

// Request is a journey request as accepted by the intake endpoint.
type Request struct {
	Origin          Point  `json:"origin"`
	Destination     Point  `json:"destination"`
	StartTime       int64  `json:"start_time"`
	Passengers      int    `json:"passenger_count"`
	OriginName      string `json:"origin_name,omitempty"`
	DestinationName string `json:"destination_name,omitempty"`
}

func (r Request) Validate() error {
	if err := ValidatePoint(r.Origin, "origin"); err != nil {
		return err
	}
	if err := ValidatePoint(r.Destination, "destination"); err != nil {
		return err
	}
	if r.StartTime <= 0 {
		return &ValidationError{Field: "start_time", Value: fmt.Sprint(r.StartTime), Message: "must be a positive epoch"}
	}
	if r.Passengers < 1 {
		return &ValidationError{Field: "passenger_count", Value: fmt.Sprint(r.Passengers), Message: "must be at least 1"}
	}
	return nil
}

// RequestContext is stored against a request id at dispatch time.
type RequestContext struct {
	RequestID string    `json:"request_id"`
	Request
	Providers []string  `json:"providers"`
	CreatedAt time.Time `json:"created_at"`
}

// Expected is the number of provider replies the join waits for.
func (c RequestContext) Expected() int {
	return len(c.Providers)
}

// ProviderTask is the unit of work sent to a single provider.
type ProviderTask struct {
	RequestID   string `json:"request_id"`
	Provider    string `json:"provider"`
	Origin      Point  `json:"origin"`
	Destination Point  `json:"destination"`
	StartTime   int64  `json:"start_time"`
	Passengers  int    `json:"passenger_count"`
}

// JoinTask asks for aggregation once Expected replies arrived or Deadline passed.
type JoinTask struct {
	RequestID string    `json:"request_id"`
	Expected  int       `json:"expected"`
	Deadline  time.Time `json:"deadline"`
}

// Entry is one provider reply stored under a request id.
type Entry struct {
	Provider   string            `json:"provider"`
	Status     EntryStatus       `json:"status"`
	Result     []json.RawMessage `json:"result"`
	Error      string            `json:"error"`
	DurationMS int64             `json:"duration_ms,omitempty"`
}

// MarshalJSON writes an empty error as null.
func (e Entry) MarshalJSON() ([]byte, error) {
	type entry Entry
	var msg *string
	if e.Error != "" {
		msg = &e.Error
	}
	return json.Marshal(struct {
		entry
		Error *string `json:"error"`
	}{entry(e), msg})
}

// NewSuccessEntry wraps provider records into a success entry.
func NewSuccessEntry(provider string, records []ItineraryRecord, took time.Duration) (Entry, error) {
	raw := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return Entry{}, fmt.Errorf("marshal record: %w", err)
		}
		raw = append(raw, data)
	}
	return Entry{
		Provider:   provider,
		Status:     StatusSuccess,
		Result:     raw,
		DurationMS: took.Milliseconds(),
	}, nil
}

func NewErrorEntry(provider string, err error, took time.Duration) Entry {
	return Entry{
		Provider:   provider,
		Status:     StatusError,
		Error:      err.Error(),
		DurationMS: took.Milliseconds(),
	}
}
