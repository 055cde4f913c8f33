package resolver

import (
	"context"
	"fmt"
	"math"

	"bonvoyage/internal/domain"
	"bonvoyage/internal/refdata"
	"bonvoyage/pkg/ors"
)

// Router computes a road route summary.
type Router interface {
	Directions(ctx context.Context, r ors.Request) (ors.Summary, error)
}

// Road answers any query with a drivable path as a single car step.
type Road struct {
	router       Router
	emissions    *refdata.EmissionTable
	costs        ors.Costs
	avoidFerries bool
}

func NewRoad(router Router, emissions *refdata.EmissionTable, costs ors.Costs) *Road {
	return &Road{
		router:    router,
		emissions: emissions,
		costs:     costs,
	}
}

// AvoidFerries makes the router skip ferry crossings.
func (r *Road) AvoidFerries() *Road {
	c := *r
	c.avoidFerries = true
	return &c
}

func (r *Road) Name() string { return "road" }

func (r *Road) Resolve(ctx context.Context, q domain.Query) ([]domain.Step, error) {
	summary, err := r.router.Directions(ctx, ors.Request{
		Profile:      ors.ProfileDrivingCar,
		FromLat:      q.From.Lat(),
		FromLon:      q.From.Lon(),
		ToLat:        q.To.Lat(),
		ToLon:        q.To.Lon(),
		AvoidFerries: r.avoidFerries,
	})
	if err != nil {
		return nil, fmt.Errorf("road directions: %w", err)
	}

	return []domain.Step{r.step(q, summary)}, nil
}

func (r *Road) step(q domain.Query, s ors.Summary) domain.Step {
	var co2 float64
	if r.emissions != nil {
		co2 = r.emissions.Grams(domain.ModeCar, s.Distance)
	}
	return domain.Step{
		Type:           domain.ModeCar,
		Label:          "Car",
		DistanceM:      s.Distance,
		DurationS:      s.Duration,
		PriceEUR:       r.costs.Components(s.Distance),
		GCO2:           co2,
		DeparturePoint: domain.NewPoint(q.From.Lat(), q.From.Lon()),
		ArrivalPoint:   domain.NewPoint(q.To.Lat(), q.To.Lon()),
		DepartureDate:  q.Departure,
		ArrivalDate:    q.Departure + int64(math.Round(s.Duration)),
	}
}
