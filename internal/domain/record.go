package domain

import (
	"fmt"
	"math"
)

// ValidationError describes why a provider record or an inbound request was rejected.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (value: %s)", e.Field, e.Message, e.Value)
}

// ItineraryRecord is the itinerary shape produced by providers.
type ItineraryRecord struct {
	Category      []string     `json:"category"`
	DepartureDate int64        `json:"departure_date"`
	ArrivalDate   int64        `json:"arrival_date"`
	BookingLink   string       `json:"booking_link"`
	JourneySteps  []StepRecord `json:"journey_steps"`
}

type StepRecord struct {
	Type              string    `json:"type"`
	Label             string    `json:"label"`
	DistanceM         float64   `json:"distance_m"`
	DurationS         float64   `json:"duration_s"`
	PriceEUR          []float64 `json:"price_EUR"`
	GCO2              float64   `json:"gCO2"`
	DeparturePoint    Point     `json:"departure_point"`
	ArrivalPoint      Point     `json:"arrival_point"`
	DepartureStopName string    `json:"departure_stop_name"`
	ArrivalStopName   string    `json:"arrival_stop_name"`
	DepartureDate     int64     `json:"departure_date"`
	ArrivalDate       int64     `json:"arrival_date"`
	BookingLink       string    `json:"booking_link"`
	BikeFriendly      bool      `json:"bike_friendly,omitempty"`
}

// ValidateRecord checks a provider record before it enters stitching.
// Boundary points with a wrong number of coordinates are tolerated here;
// the stitcher skips gap construction for such ends.
func ValidateRecord(rec ItineraryRecord) error {
	if len(rec.JourneySteps) == 0 {
		return &ValidationError{Field: "journey_steps", Value: "[]", Message: "at least one step is required"}
	}
	if rec.ArrivalDate != 0 && rec.ArrivalDate < rec.DepartureDate {
		return &ValidationError{
			Field:   "arrival_date",
			Value:   fmt.Sprint(rec.ArrivalDate),
			Message: "must not precede departure_date",
		}
	}

	for i, s := range rec.JourneySteps {
		field := fmt.Sprintf("journey_steps[%d]", i)
		if _, err := ParseMode(s.Type); err != nil {
			return &ValidationError{Field: field + ".type", Value: s.Type, Message: "unknown mode"}
		}
		if invalidAmount(s.DistanceM) {
			return &ValidationError{Field: field + ".distance_m", Value: fmt.Sprint(s.DistanceM), Message: "must be a non-negative number"}
		}
		if invalidAmount(s.DurationS) {
			return &ValidationError{Field: field + ".duration_s", Value: fmt.Sprint(s.DurationS), Message: "must be a non-negative number"}
		}
		if math.IsNaN(s.GCO2) || math.IsInf(s.GCO2, 0) {
			return &ValidationError{Field: field + ".gCO2", Value: fmt.Sprint(s.GCO2), Message: "must be a number"}
		}
		for _, p := range s.PriceEUR {
			if math.IsNaN(p) || math.IsInf(p, 0) {
				return &ValidationError{Field: field + ".price_EUR", Value: fmt.Sprint(p), Message: "must be a number"}
			}
		}
		if s.ArrivalDate < s.DepartureDate {
			return &ValidationError{
				Field:   field + ".arrival_date",
				Value:   fmt.Sprint(s.ArrivalDate),
				Message: "must not precede departure_date",
			}
		}
		if s.DeparturePoint.Valid() {
			if err := ValidatePoint(s.DeparturePoint, field+".departure_point"); err != nil {
				return err
			}
		}
		if s.ArrivalPoint.Valid() {
			if err := ValidatePoint(s.ArrivalPoint, field+".arrival_point"); err != nil {
				return err
			}
		}
	}
	return nil
}

func invalidAmount(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0) || v < 0
}

// ToJourney converts a validated record into a Journey with dense step ids.
func (rec ItineraryRecord) ToJourney(id int) Journey {
	steps := make([]Step, len(rec.JourneySteps))
	for i, s := range rec.JourneySteps {
		mode, _ := ParseMode(s.Type)
		steps[i] = Step{
			ID:                i,
			Type:              mode,
			Label:             s.Label,
			DistanceM:         s.DistanceM,
			DurationS:         s.DurationS,
			PriceEUR:          append([]float64(nil), s.PriceEUR...),
			GCO2:              s.GCO2,
			DeparturePoint:    append(Point(nil), s.DeparturePoint...),
			ArrivalPoint:      append(Point(nil), s.ArrivalPoint...),
			DepartureStopName: s.DepartureStopName,
			ArrivalStopName:   s.ArrivalStopName,
			DepartureDate:     s.DepartureDate,
			ArrivalDate:       s.ArrivalDate,
			BookingLink:       s.BookingLink,
			BikeFriendly:      s.BikeFriendly,
		}
	}

	j := Journey{
		ID:            id,
		DepartureDate: rec.DepartureDate,
		ArrivalDate:   rec.ArrivalDate,
		BookingLink:   rec.BookingLink,
		Steps:         steps,
	}
	if j.DepartureDate == 0 && len(steps) > 0 {
		j.DepartureDate = steps[0].DepartureDate
	}
	if j.ArrivalDate == 0 && len(steps) > 0 {
		j.ArrivalDate = steps[len(steps)-1].ArrivalDate
	}
	j.Recompute()
	return j
}

// NewRecord builds the wire record of a journey assembled by a provider.
func NewRecord(steps []Step, bookingLink string) ItineraryRecord {
	j := Journey{Steps: steps}
	j.Recompute()

	rec := ItineraryRecord{
		BookingLink:  bookingLink,
		JourneySteps: make([]StepRecord, len(steps)),
	}
	for _, m := range j.Category {
		rec.Category = append(rec.Category, m.String())
	}
	if len(steps) > 0 {
		rec.DepartureDate = steps[0].DepartureDate
		rec.ArrivalDate = steps[len(steps)-1].ArrivalDate
	}
	for i, s := range steps {
		rec.JourneySteps[i] = StepRecord{
			Type:              s.Type.String(),
			Label:             s.Label,
			DistanceM:         s.DistanceM,
			DurationS:         s.DurationS,
			PriceEUR:          s.PriceEUR,
			GCO2:              s.GCO2,
			DeparturePoint:    s.DeparturePoint,
			ArrivalPoint:      s.ArrivalPoint,
			DepartureStopName: s.DepartureStopName,
			ArrivalStopName:   s.ArrivalStopName,
			DepartureDate:     s.DepartureDate,
			ArrivalDate:       s.ArrivalDate,
			BookingLink:       s.BookingLink,
			BikeFriendly:      s.BikeFriendly,
		}
	}
	return rec
}
