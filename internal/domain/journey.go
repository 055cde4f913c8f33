package domain

import (
	"errors"
	"math"
)

var ErrAlreadySpliced = errors.New("journey end already spliced")

// Step is one atomic leg of travel
type Step struct {
	ID                int       `json:"id"`
	Type              Mode      `json:"type"`
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
	BikeFriendly      bool      `json:"bike_friendly"`
}

// Price sums the price components of the step.
func (s Step) Price() float64 {
	var total float64
	for _, p := range s.PriceEUR {
		total += p
	}
	return total
}

func (s Step) clone() Step {
	c := s
	c.PriceEUR = append([]float64(nil), s.PriceEUR...)
	c.DeparturePoint = append(Point(nil), s.DeparturePoint...)
	c.ArrivalPoint = append(Point(nil), s.ArrivalPoint...)
	return c
}

// Journey is an ordered list of steps. The totals and the category are
// derived by Recompute and are not meant to be set by hand.
type Journey struct {
	ID            int     `json:"id"`
	Category      []Mode  `json:"category"`
	TotalDistance float64 `json:"total_distance"`
	TotalDuration float64 `json:"total_duration"`
	TotalPrice    float64 `json:"total_price_EUR"`
	TotalGCO2     float64 `json:"total_gCO2"`
	BikeFriendly  bool    `json:"bike_friendly"`
	DepartureDate int64   `json:"departure_date"`
	ArrivalDate   int64   `json:"arrival_date"`
	BookingLink   string  `json:"booking_link"`
	Steps         []Step  `json:"journey_steps"`

	splicedStart bool
	splicedEnd   bool
}

// Recompute derives every aggregate from the steps.
func (j *Journey) Recompute() {
	var distance, duration, price, co2 float64
	bikeFriendly := true
	seen := make(map[Mode]struct{}, len(j.Steps))
	category := make([]Mode, 0, 2)

	for _, s := range j.Steps {
		distance += s.DistanceM
		duration += s.DurationS
		price += s.Price()
		co2 += s.GCO2
		bikeFriendly = bikeFriendly && s.BikeFriendly

		if s.Type.IsConnector() {
			continue
		}
		if _, ok := seen[s.Type]; !ok {
			seen[s.Type] = struct{}{}
			category = append(category, s.Type)
		}
	}

	j.TotalDistance = distance
	j.TotalDuration = duration
	j.TotalPrice = price
	j.TotalGCO2 = co2
	j.BikeFriendly = bikeFriendly
	j.Category = category
}

// Spliced reports whether the given end has already received a gap leg.
func (j *Journey) Spliced(atStart bool) bool {
	if atStart {
		return j.splicedStart
	}
	return j.splicedEnd
}

// Splice inserts gap steps at the start or the end of the journey. Each end
// accepts at most one splice; the second call returns ErrAlreadySpliced.
// Gap steps are copied and retimed so they meet the journey boundary.
func (j *Journey) Splice(steps []Step, atStart bool) error {
	if j.Spliced(atStart) {
		return ErrAlreadySpliced
	}
	if len(steps) == 0 {
		return nil
	}

	gap := make([]Step, len(steps))
	var gapDuration float64
	for i, s := range steps {
		gap[i] = s.clone()
		gapDuration += s.DurationS
	}
	shift := int64(math.Round(gapDuration))

	if atStart {
		offset := j.DepartureDate - shift - gap[0].DepartureDate
		for i := range gap {
			gap[i].ID = i
			gap[i].DepartureDate += offset
			gap[i].ArrivalDate += offset
		}
		for i := range j.Steps {
			j.Steps[i].ID += len(gap)
		}
		j.Steps = append(gap, j.Steps...)
		j.DepartureDate -= shift
		j.splicedStart = true
		return nil
	}

	offset := j.ArrivalDate - gap[0].DepartureDate
	n := len(j.Steps)
	for i := range gap {
		gap[i].ID = n + i
		gap[i].DepartureDate += offset
		gap[i].ArrivalDate += offset
	}
	j.Steps = append(j.Steps, gap...)
	j.ArrivalDate += shift
	j.splicedEnd = true
	return nil
}

// FillStopNames gives blank stop names the name of the adjacent step.
// The first departure and the last arrival fall back to first and last.
func (j *Journey) FillStopNames(first, last string) {
	n := len(j.Steps)
	for i := range j.Steps {
		s := &j.Steps[i]
		if s.DepartureStopName == "" {
			if i == 0 {
				s.DepartureStopName = first
			} else {
				s.DepartureStopName = j.Steps[i-1].ArrivalStopName
			}
		}
		if s.ArrivalStopName != "" {
			continue
		}
		switch {
		case i == n-1:
			s.ArrivalStopName = last
		case j.Steps[i+1].DepartureStopName != "":
			s.ArrivalStopName = j.Steps[i+1].DepartureStopName
		case s.Type.IsConnector():
			// waiting happens in place
			s.ArrivalStopName = s.DepartureStopName
		}
	}
}

// FirstDeparture returns the departure point of the first step.
func (j *Journey) FirstDeparture() Point {
	if len(j.Steps) == 0 {
		return nil
	}
	return j.Steps[0].DeparturePoint
}

// LastArrival returns the arrival point of the last step.
func (j *Journey) LastArrival() Point {
	if len(j.Steps) == 0 {
		return nil
	}
	return j.Steps[len(j.Steps)-1].ArrivalPoint
}
