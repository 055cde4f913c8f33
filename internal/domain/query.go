package domain

import (
	"fmt"
	"math"
)

// queryPrecision is the number of decimals kept when comparing gap endpoints.
const queryPrecision = 1e4

// Query is a point-to-point connection request used for last-mile gaps.
type Query struct {
	From      Point
	To        Point
	Departure int64
}

// QueryKey identifies equal queries. Coordinates are stored scaled and
// rounded so the struct can be used directly as a map key.
type QueryKey struct {
	FromLat, FromLon int64
	ToLat, ToLon     int64
	Departure        int64
}

func NewQuery(from, to Point, departure int64) Query {
	return Query{
		From:      append(Point(nil), from...),
		To:        append(Point(nil), to...),
		Departure: departure,
	}
}

func (q Query) Key() QueryKey {
	return QueryKey{
		FromLat:   round(q.From.Lat()),
		FromLon:   round(q.From.Lon()),
		ToLat:     round(q.To.Lat()),
		ToLon:     round(q.To.Lon()),
		Departure: q.Departure,
	}
}

func (q Query) Equal(other Query) bool {
	return q.Key() == other.Key()
}

// Degenerate reports whether both endpoints coincide once rounded.
func (q Query) Degenerate() bool {
	k := q.Key()
	return k.FromLat == k.ToLat && k.FromLon == k.ToLon
}

func (q Query) String() string {
	return fmt.Sprintf("%s -> %s @ %d", q.From, q.To, q.Departure)
}

func round(v float64) int64 {
	return int64(math.Round(v * queryPrecision))
}
