package refdata

import (
	"fmt"
	"sort"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"bonvoyage/internal/domain"
)

// Crossing is a weekly ferry departure between two ports.
type Crossing struct {
	PortDep     string       `csv:"port_dep"`
	LatDep      float64      `csv:"lat_dep"`
	LonDep      float64      `csv:"lon_dep"`
	PortArr     string       `csv:"port_arr"`
	LatArr      float64      `csv:"lat_arr"`
	LonArr      float64      `csv:"lon_arr"`
	Weekday     time.Weekday `csv:"weekday"`
	DepartsAt   string       `csv:"departure"`
	DurationMin int          `csv:"duration_min"`
	PriceEUR    float64      `csv:"price_eur"`
	DistanceM   float64      `csv:"distance_m"`
	BookingLink string       `csv:"booking_link"`

	hour, minute int
}

func (c Crossing) From() domain.Point { return domain.NewPoint(c.LatDep, c.LonDep) }
func (c Crossing) To() domain.Point   { return domain.NewPoint(c.LatArr, c.LonArr) }

// Sailing is a dated occurrence of a Crossing.
type Sailing struct {
	Crossing
	Departure time.Time
	Arrival   time.Time
}

// FerryTimetable lists the weekly crossings known to the ferry provider.
type FerryTimetable struct {
	crossings []Crossing
	loc       *time.Location
}

func ParseFerries(data []byte, loc *time.Location) (*FerryTimetable, error) {
	var rows []Crossing
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode ferry timetable: %w", err)
	}

	for i := range rows {
		t, err := time.Parse("15:04", rows[i].DepartsAt)
		if err != nil {
			return nil, fmt.Errorf("ferry row %d: departure: %w", i+1, err)
		}
		if rows[i].Weekday < time.Sunday || rows[i].Weekday > time.Saturday {
			return nil, fmt.Errorf("ferry row %d: weekday %d out of range", i+1, rows[i].Weekday)
		}
		rows[i].hour, rows[i].minute = t.Hour(), t.Minute()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &FerryTimetable{crossings: rows, loc: loc}, nil
}

// Sailings returns the dated sailings leaving a port within radiusM of from
// for a port within radiusM of to, departing in [after, after+window). At
// most perRoute earliest sailings are kept for each port pair.
func (ft *FerryTimetable) Sailings(from, to domain.Point, radiusM float64, after time.Time, window time.Duration, perRoute int) []Sailing {
	if ft == nil || !from.Valid() || !to.Valid() {
		return nil
	}
	origin := orb.Point{from.Lon(), from.Lat()}
	destination := orb.Point{to.Lon(), to.Lat()}
	after = after.In(ft.loc)
	until := after.Add(window)

	byRoute := make(map[[2]string][]Sailing)
	for _, c := range ft.crossings {
		if geo.Distance(origin, orb.Point{c.LonDep, c.LatDep}) > radiusM {
			continue
		}
		if geo.Distance(destination, orb.Point{c.LonArr, c.LatArr}) > radiusM {
			continue
		}
		for day := after; day.Before(until.Add(24 * time.Hour)); day = day.AddDate(0, 0, 1) {
			if day.Weekday() != c.Weekday {
				continue
			}
			dep := time.Date(day.Year(), day.Month(), day.Day(), c.hour, c.minute, 0, 0, ft.loc)
			if dep.Before(after) || !dep.Before(until) {
				continue
			}
			route := [2]string{c.PortDep, c.PortArr}
			byRoute[route] = append(byRoute[route], Sailing{
				Crossing:  c,
				Departure: dep,
				Arrival:   dep.Add(time.Duration(c.DurationMin) * time.Minute),
			})
		}
	}

	var result []Sailing
	for _, sailings := range byRoute {
		sort.Slice(sailings, func(i, j int) bool { return sailings[i].Departure.Before(sailings[j].Departure) })
		if perRoute > 0 && len(sailings) > perRoute {
			sailings = sailings[:perRoute]
		}
		result = append(result, sailings...)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Departure.Before(result[j].Departure) })
	return result
}

func (ft *FerryTimetable) Len() int {
	if ft == nil {
		return 0
	}
	return len(ft.crossings)
}
