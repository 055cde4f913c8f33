// Package refdata loads the read-only datasets shared by providers and the
// gap resolver. Everything is parsed once at start-up and never mutated.
package refdata

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"time"
)

//go:embed defaults/*.csv
var defaults embed.FS

// Reader fetches a dataset by location.
type Reader interface {
	Read(ctx context.Context, location string) ([]byte, error)
}

// Sources names where each dataset comes from. An empty source selects the
// bundled default.
type Sources struct {
	Emissions string
	Regions   string
	Ferries   string
}

// Data is the immutable reference context passed to components at start-up.
type Data struct {
	Emissions *EmissionTable
	Regions   *RegionIndex
	Ferries   *FerryTimetable
}

func Load(ctx context.Context, r Reader, src Sources, loc *time.Location, logger *slog.Logger) (*Data, error) {
	logger = logger.With("component", "refdata")
	start := time.Now()

	raw, err := read(ctx, r, src.Emissions, "defaults/emissions.csv")
	if err != nil {
		return nil, fmt.Errorf("emissions: %w", err)
	}
	emissions, err := ParseEmissions(raw)
	if err != nil {
		return nil, err
	}

	raw, err = read(ctx, r, src.Regions, "defaults/regions.csv")
	if err != nil {
		return nil, fmt.Errorf("regions: %w", err)
	}
	regions, err := ParseRegions(raw)
	if err != nil {
		return nil, err
	}

	raw, err = read(ctx, r, src.Ferries, "defaults/ferries.csv")
	if err != nil {
		return nil, fmt.Errorf("ferries: %w", err)
	}
	ferries, err := ParseFerries(raw, loc)
	if err != nil {
		return nil, err
	}

	logger.Info("reference data loaded",
		"emission_factors", emissions.Len(),
		"regions", regions.Len(),
		"ferry_crossings", ferries.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Data{
		Emissions: emissions,
		Regions:   regions,
		Ferries:   ferries,
	}, nil
}

func read(ctx context.Context, r Reader, location, fallback string) ([]byte, error) {
	if location == "" || r == nil {
		return defaults.ReadFile(fallback)
	}
	return r.Read(ctx, location)
}
