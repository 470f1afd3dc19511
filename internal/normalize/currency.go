package normalize

import "math"

// Converter converts between EUR and RON at a fixed rate
type Converter struct {
	RonPerEur float64
}

// EurToRon converts and rounds to the nearest leu
func (c Converter) EurToRon(eur int) int {
	return int(math.Round(float64(eur) * c.RonPerEur))
}

// RonToEur converts and rounds to the nearest euro
func (c Converter) RonToEur(ron int) int {
	return int(math.Round(float64(ron) / c.RonPerEur))
}
