package refdata

import (
	"fmt"

	"github.com/jszwec/csvutil"

	"bonvoyage/internal/domain"
)

// EmissionFactor is one row of the carbon coefficient table. A zero
// DistanceMaxKm means the band has no upper bound.
type EmissionFactor struct {
	Mode             string  `csv:"mode"`
	KgPerPassengerKm float64 `csv:"value"`
	DistanceMinKm    float64 `csv:"distance_min"`
	DistanceMaxKm    float64 `csv:"distance_max"`
}

func (f EmissionFactor) covers(km float64) bool {
	if km < f.DistanceMinKm {
		return false
	}
	return f.DistanceMaxKm == 0 || km < f.DistanceMaxKm
}

// EmissionTable answers carbon lookups. It is read-only once parsed.
type EmissionTable struct {
	byMode map[domain.Mode][]EmissionFactor
}

func ParseEmissions(data []byte) (*EmissionTable, error) {
	var rows []EmissionFactor
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode emission table: %w", err)
	}

	t := &EmissionTable{byMode: make(map[domain.Mode][]EmissionFactor)}
	for i, r := range rows {
		mode, err := domain.ParseMode(r.Mode)
		if err != nil {
			return nil, fmt.Errorf("emission row %d: %w", i+1, err)
		}
		t.byMode[mode] = append(t.byMode[mode], r)
	}
	return t, nil
}

// Grams returns the emissions of one passenger travelling distanceM metres.
// The coefficient is the mean of every row matching the mode and distance
// band; without a band match all rows of the mode are averaged.
func (t *EmissionTable) Grams(mode domain.Mode, distanceM float64) float64 {
	if t == nil {
		return 0
	}
	rows := t.byMode[mode]
	if len(rows) == 0 {
		return 0
	}

	km := distanceM / 1000
	var sum float64
	var n int
	for _, r := range rows {
		if r.covers(km) {
			sum += r.KgPerPassengerKm
			n++
		}
	}
	if n == 0 {
		for _, r := range rows {
			sum += r.KgPerPassengerKm
		}
		n = len(rows)
	}
	return sum / float64(n) * km * 1000
}

func (t *EmissionTable) Len() int {
	if t == nil {
		return 0
	}
	var n int
	for _, rows := range t.byMode {
		n += len(rows)
	}
	return n
}
