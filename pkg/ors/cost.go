package ors

// Costs converts a driven distance into price components.
type Costs struct {
	FuelPricePerLitre float64
	LitresPerKm       float64
	TollPerKm         float64
}

// DefaultCosts are the fuel and toll rates used when none are configured.
var DefaultCosts = Costs{
	FuelPricePerLitre: 1.5,
	LitresPerKm:       0.0664,
	TollPerKm:         0.025,
}

func (c Costs) Fuel(distanceM float64) float64 {
	return c.FuelPricePerLitre * c.LitresPerKm * distanceM / 1000
}

func (c Costs) Toll(distanceM float64) float64 {
	return c.TollPerKm * distanceM / 1000
}

// Components returns the fuel and toll prices, in that order.
func (c Costs) Components(distanceM float64) []float64 {
	return []float64{c.Fuel(distanceM), c.Toll(distanceM)}
}
