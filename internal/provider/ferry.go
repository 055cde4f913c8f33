package provider

import (
	"context"
	"time"

	"bonvoyage/internal/domain"
	"bonvoyage/internal/refdata"
)

const (
	ferryBoardingWait = 15 * time.Minute
	ferrySearchWindow = 7 * 24 * time.Hour
	ferryPerRoute     = 2
)

// Ferry proposes timetabled sailings between ports near the two endpoints.
type Ferry struct {
	timetable *refdata.FerryTimetable
	emissions *refdata.EmissionTable
	radiusM   float64
}

func NewFerry(data *refdata.Data, radiusKm float64) *Ferry {
	return &Ferry{
		timetable: data.Ferries,
		emissions: data.Emissions,
		radiusM:   radiusKm * 1000,
	}
}

func (f *Ferry) Name() string { return "ferry" }

func (f *Ferry) Query(ctx context.Context, task domain.ProviderTask) ([]domain.ItineraryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// passengers need to be at the port before boarding
	after := time.Unix(task.StartTime, 0).Add(ferryBoardingWait)
	sailings := f.timetable.Sailings(task.Origin, task.Destination, f.radiusM, after, ferrySearchWindow, ferryPerRoute)

	passengers := max(task.Passengers, 1)
	records := make([]domain.ItineraryRecord, 0, len(sailings))
	for _, s := range sailings {
		records = append(records, f.record(s, passengers))
	}
	return records, nil
}

func (f *Ferry) record(s refdata.Sailing, passengers int) domain.ItineraryRecord {
	dep := s.Departure.Unix()
	arr := s.Arrival.Unix()
	board := dep - int64(ferryBoardingWait.Seconds())

	wait := domain.Step{
		Type:              domain.ModeWait,
		Label:             "Boarding",
		DurationS:         ferryBoardingWait.Seconds(),
		DeparturePoint:    s.From(),
		ArrivalPoint:      s.From(),
		DepartureStopName: s.PortDep,
		ArrivalStopName:   s.PortDep,
		DepartureDate:     board,
		ArrivalDate:       dep,
		BikeFriendly:      true,
	}

	var co2 float64
	if f.emissions != nil {
		co2 = f.emissions.Grams(domain.ModeFerry, s.DistanceM) * float64(passengers)
	}
	sailing := domain.Step{
		Type:              domain.ModeFerry,
		Label:             s.PortDep + " - " + s.PortArr,
		DistanceM:         s.DistanceM,
		DurationS:         float64(arr - dep),
		PriceEUR:          []float64{s.PriceEUR * float64(passengers)},
		GCO2:              co2,
		DeparturePoint:    s.From(),
		ArrivalPoint:      s.To(),
		DepartureStopName: s.PortDep,
		ArrivalStopName:   s.PortArr,
		DepartureDate:     dep,
		ArrivalDate:       arr,
		BookingLink:       s.BookingLink,
		BikeFriendly:      true,
	}

	return domain.NewRecord([]domain.Step{wait, sailing}, s.BookingLink)
}
