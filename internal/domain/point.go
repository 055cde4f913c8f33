package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Point is a [lat, lon] pair as carried on the wire. Providers occasionally
// send a single coordinate, so a Point is only usable when Valid returns true.
type Point []float64

func NewPoint(lat, lon float64) Point {
	return Point{lat, lon}
}

func (p Point) Valid() bool {
	return len(p) == 2
}

func (p Point) Lat() float64 {
	if len(p) < 1 {
		return 0
	}
	return p[0]
}

func (p Point) Lon() float64 {
	if len(p) < 2 {
		return 0
	}
	return p[1]
}

// String formats the point as "lat,lon", the form accepted by ParsePoint.
func (p Point) String() string {
	if !p.Valid() {
		return fmt.Sprintf("%v", []float64(p))
	}
	return strconv.FormatFloat(p[0], 'f', -1, 64) + "," + strconv.FormatFloat(p[1], 'f', -1, 64)
}

// ParsePoint parses "lat,lon".
func ParsePoint(s string) (Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, &ValidationError{Field: "point", Value: s, Message: "expected lat,lon"}
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, &ValidationError{Field: "point", Value: s, Message: "invalid latitude"}
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, &ValidationError{Field: "point", Value: s, Message: "invalid longitude"}
	}
	p := NewPoint(lat, lon)
	if err := ValidatePoint(p, "point"); err != nil {
		return nil, err
	}
	return p, nil
}

// ValidatePoint checks that a two-element point lies within coordinate ranges.
func ValidatePoint(p Point, field string) error {
	if !p.Valid() {
		return &ValidationError{Field: field, Value: fmt.Sprint([]float64(p)), Message: "expected two coordinates"}
	}
	lat, lon := p[0], p[1]
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return &ValidationError{Field: field + ".lat", Value: fmt.Sprint(lat), Message: "must be between -90 and 90"}
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		return &ValidationError{Field: field + ".lon", Value: fmt.Sprint(lon), Message: "must be between -180 and 180"}
	}
	return nil
}
