package provider

import (
	"context"
	"errors"
	"fmt"

	"bonvoyage/internal/domain"
	"bonvoyage/pkg/ors"
)

// roadSource is satisfied by resolver.Road.
type roadSource interface {
	Resolve(ctx context.Context, q domain.Query) ([]domain.Step, error)
}

// Car proposes a single door-to-door drive.
type Car struct {
	road roadSource
}

func NewCar(road roadSource) *Car {
	return &Car{road: road}
}

func (c *Car) Name() string { return "car" }

func (c *Car) Query(ctx context.Context, task domain.ProviderTask) ([]domain.ItineraryRecord, error) {
	q := domain.NewQuery(task.Origin, task.Destination, task.StartTime)
	steps, err := c.road.Resolve(ctx, q)
	if errors.Is(err, ors.ErrNoRoute) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("car route: %w", err)
	}
	if len(steps) == 0 {
		return nil, nil
	}
	return []domain.ItineraryRecord{domain.NewRecord(steps, "")}, nil
}
