package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		status Status
		want   float64
	}{
		{"dot grouping", "123.456", Parsed, 123456},
		{"comma decimal after dot grouping", "1.234,56", Parsed, 1234.56},
		{"dot decimal after comma grouping", "1,234.56", Parsed, 1234.56},
		{"comma decimal", "54,5 mp", Parsed, 54.5},
		{"repeated grouping", "1.250.000 €", Parsed, 1250000},
		{"space grouping", "123 456 lei", Parsed, 123456},
		{"leading zero decimal", "0.750", Parsed, 0.75},
		{"plain", "89000", Parsed, 89000},
		{"empty", "   ", Missing, 0},
		{"no digits", "pret la cerere", Unparsable, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseNumber(tt.input)
			assert.Equal(t, tt.status, got.Status)
			if tt.status == Parsed {
				assert.InDelta(t, tt.want, got.Value, 1e-9)
			} else {
				assert.Nil(t, got.Ptr())
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	price, currency := ParsePrice("123.456 lei", "", "EUR")
	assert.Equal(t, Parsed, price.Status)
	assert.Equal(t, 123456.0, price.Value)
	assert.Equal(t, "RON", currency)

	price, currency = ParsePrice("89 000", "€", "RON")
	assert.Equal(t, 89000.0, price.Value)
	assert.Equal(t, "EUR", currency)

	_, currency = ParsePrice("75000", "", "eur")
	assert.Equal(t, "EUR", currency)

	price, _ = ParsePrice("0", "", "EUR")
	assert.Equal(t, Unparsable, price.Status)
}

func TestParseRoomsAndFloor(t *testing.T) {
	assert.Equal(t, 1, ParseRooms("Garsonieră").Value)
	assert.Equal(t, 3, ParseRooms("3 camere").Value)
	assert.Equal(t, Unparsable, ParseRooms("multe").Status)
	assert.Equal(t, Missing, ParseRooms("").Status)

	assert.Equal(t, 0, ParseFloor("Parter").Value)
	assert.Equal(t, -1, ParseFloor("demisol").Value)
	assert.Equal(t, 3, ParseFloor("etaj 3/8").Value)
	assert.Equal(t, Unparsable, ParseFloor("ultimul").Status)
}

func TestParseYear(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1977, ParseYear("construit in 1977", now).Value)
	assert.Equal(t, Unparsable, ParseYear("2090", now).Status)
	assert.Equal(t, Unparsable, ParseYear("vechi", now).Status)
	assert.Equal(t, Missing, ParseYear("", now).Status)
}

func TestParseMetro(t *testing.T) {
	dist, minutes := ParseMetro("500 m de metrou", 80)
	assert.Equal(t, 500, dist.Value)
	assert.Equal(t, 7, minutes.Value)

	dist, minutes = ParseMetro("1,2 km", 80)
	assert.Equal(t, 1200, dist.Value)
	assert.Equal(t, 15, minutes.Value)

	dist, minutes = ParseMetro("10 minute pana la metrou", 80)
	assert.Equal(t, 800, dist.Value)
	assert.Equal(t, 10, minutes.Value)

	dist, _ = ParseMetro("aproape", 80)
	assert.Equal(t, Unparsable, dist.Status)
}

func TestConverterRoundTrip(t *testing.T) {
	c := Converter{RonPerEur: 4.95}

	for _, eur := range []int{1, 7, 999, 24941, 100000, 123457} {
		back := c.RonToEur(c.EurToRon(eur))
		assert.InDelta(t, eur, back, 1, "eur %d", eur)
	}

	for _, ron := range []int{1, 5, 123456, 500001} {
		once := c.EurToRon(c.RonToEur(ron))
		twice := c.EurToRon(c.RonToEur(once))
		assert.Equal(t, once, twice, "ron %d", ron)
		assert.InDelta(t, ron, once, c.RonPerEur, "ron %d", ron)
	}
}
