package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	maps "googlemaps.github.io/maps"

	"bonvoyage/internal/domain"
	"bonvoyage/internal/refdata"
)

// DirectionsClient is the part of the Google Maps client used here.
type DirectionsClient interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

var errNoTransitRoute = errors.New("no transit route")

var vehicleModes = map[string]domain.Mode{
	"BUS":                 domain.ModeBus,
	"INTERCITY_BUS":       domain.ModeCoach,
	"TROLLEYBUS":          domain.ModeBus,
	"SHARE_TAXI":          domain.ModeBus,
	"TRAM":                domain.ModeTram,
	"SUBWAY":              domain.ModeMetro,
	"METRO_RAIL":          domain.ModeMetro,
	"MONORAIL":            domain.ModeMetro,
	"RAIL":                domain.ModeTrain,
	"HEAVY_RAIL":          domain.ModeTrain,
	"COMMUTER_TRAIN":      domain.ModeTrain,
	"HIGH_SPEED_TRAIN":    domain.ModeTrain,
	"LONG_DISTANCE_TRAIN": domain.ModeTrain,
	"FERRY":               domain.ModeFerry,
}

// Transit resolves queries whose two points share a coverage region, using
// public transport directions.
type Transit struct {
	client    DirectionsClient
	regions   *refdata.RegionIndex
	emissions *refdata.EmissionTable
	logger    *slog.Logger
}

func NewTransit(client DirectionsClient, regions *refdata.RegionIndex, emissions *refdata.EmissionTable, logger *slog.Logger) *Transit {
	return &Transit{
		client:    client,
		regions:   regions,
		emissions: emissions,
		logger:    logger.With("component", "transit_source"),
	}
}

func (t *Transit) Name() string { return "transit" }

func (t *Transit) Resolve(ctx context.Context, q domain.Query) ([]domain.Step, error) {
	region, ok := t.regions.Common(q.From, q.To)
	if !ok {
		return nil, ErrDeclined
	}
	t.logger.Debug("routing inside region", "region", region.ID, "query", q.String())

	routes, _, err := t.client.Directions(ctx, &maps.DirectionsRequest{
		Origin:        q.From.String(),
		Destination:   q.To.String(),
		Mode:          maps.TravelModeTransit,
		DepartureTime: strconv.FormatInt(q.Departure, 10),
	})
	if err != nil {
		return nil, fmt.Errorf("transit directions in %s: %w", region.ID, err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, errNoTransitRoute
	}

	steps := t.convert(routes[0], q)
	if len(steps) == 0 {
		return nil, errNoTransitRoute
	}
	return steps, nil
}

// convert flattens the legs of a route into steps on a running clock that
// starts at the query departure. Time spent waiting for a vehicle becomes a
// waiting step.
func (t *Transit) convert(route maps.Route, q domain.Query) []domain.Step {
	var steps []domain.Step
	clock := q.Departure
	farePending := route.Fare != nil && strings.EqualFold(route.Fare.Currency, "EUR")

	for _, leg := range route.Legs {
		for _, ms := range leg.Steps {
			duration := ms.Duration.Seconds()
			from := domain.NewPoint(ms.StartLocation.Lat, ms.StartLocation.Lng)
			to := domain.NewPoint(ms.EndLocation.Lat, ms.EndLocation.Lng)

			s := domain.Step{
				Type:           domain.ModeWalk,
				Label:          "Walking",
				DistanceM:      float64(ms.Meters),
				DurationS:      duration,
				DeparturePoint: from,
				ArrivalPoint:   to,
				BikeFriendly:   true,
			}

			if td := ms.TransitDetails; ms.TravelMode == "TRANSIT" && td != nil {
				if dep := td.DepartureTime.Unix(); !td.DepartureTime.IsZero() && dep > clock {
					steps = append(steps, domain.Step{
						Type:              domain.ModeWait,
						Label:             "Waiting",
						DurationS:         float64(dep - clock),
						DeparturePoint:    from,
						ArrivalPoint:      from,
						DepartureStopName: td.DepartureStop.Name,
						ArrivalStopName:   td.DepartureStop.Name,
						DepartureDate:     clock,
						ArrivalDate:       dep,
						BikeFriendly:      true,
					})
					clock = dep
				}
				s.Type = transitMode(td.Line.Vehicle.Type)
				s.Label = lineLabel(td.Line)
				s.DepartureStopName = td.DepartureStop.Name
				s.ArrivalStopName = td.ArrivalStop.Name
				s.BikeFriendly = false
				if farePending {
					s.PriceEUR = []float64{route.Fare.Value}
					farePending = false
				}
			}

			if t.emissions != nil {
				s.GCO2 = t.emissions.Grams(s.Type, s.DistanceM)
			}
			s.DepartureDate = clock
			clock += int64(math.Round(duration))
			s.ArrivalDate = clock
			steps = append(steps, s)
		}
	}

	return steps
}

func transitMode(vehicleType string) domain.Mode {
	if m, ok := vehicleModes[vehicleType]; ok {
		return m
	}
	return domain.ModeBus
}

func lineLabel(line maps.TransitLine) string {
	name := line.ShortName
	if name == "" {
		name = line.Name
	}
	kind := line.Vehicle.Name
	switch {
	case kind != "" && name != "":
		return kind + " " + name
	case name != "":
		return name
	default:
		return kind
	}
}
