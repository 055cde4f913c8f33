package refdata

import (
	"fmt"
	"math"

	"github.com/jszwec/csvutil"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"

	"bonvoyage/internal/domain"
)

type regionRow struct {
	ID   string `csv:"id"`
	Name string `csv:"name"`
	WKT  string `csv:"wkt"`
}

// Region is a transit coverage area.
type Region struct {
	ID       string
	Name     string
	geometry orb.Geometry
	bound    orb.Bound
	area     float64
}

func (r Region) contains(p orb.Point) bool {
	if !r.bound.Contains(p) {
		return false
	}
	switch g := r.geometry.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	default:
		return false
	}
}

// RegionIndex holds the coverage polygons of the regional transit source.
type RegionIndex struct {
	regions []Region
}

func ParseRegions(data []byte) (*RegionIndex, error) {
	var rows []regionRow
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode regions: %w", err)
	}

	idx := &RegionIndex{regions: make([]Region, 0, len(rows))}
	for _, row := range rows {
		g, err := wkt.Unmarshal(row.WKT)
		if err != nil {
			return nil, fmt.Errorf("region %s: %w", row.ID, err)
		}
		switch g.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			return nil, fmt.Errorf("region %s: unsupported geometry %s", row.ID, g.GeoJSONType())
		}
		idx.regions = append(idx.regions, Region{
			ID:       row.ID,
			Name:     row.Name,
			geometry: g,
			bound:    g.Bound(),
			area:     math.Abs(planar.Area(g)),
		})
	}
	return idx, nil
}

// Common returns the smallest region containing both points. It reports
// false when the points are outside every region or in different ones.
func (idx *RegionIndex) Common(a, b domain.Point) (Region, bool) {
	if idx == nil || !a.Valid() || !b.Valid() {
		return Region{}, false
	}
	pa := orb.Point{a.Lon(), a.Lat()}
	pb := orb.Point{b.Lon(), b.Lat()}

	var best Region
	found := false
	for _, r := range idx.regions {
		if !r.contains(pa) || !r.contains(pb) {
			continue
		}
		if !found || r.area < best.area {
			best = r
			found = true
		}
	}
	return best, found
}

func (idx *RegionIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.regions)
}
