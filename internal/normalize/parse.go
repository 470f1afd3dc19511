package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Status is the outcome of parsing one raw field
type Status int

const (
	// Missing means the raw field was empty
	Missing Status = iota
	// Parsed means a value was extracted
	Parsed
	// Unparsable means the raw field had content that could not be read
	Unparsable
)

func (s Status) String() string {
	switch s {
	case Parsed:
		return "parsed"
	case Unparsable:
		return "unparsable"
	default:
		return "missing"
	}
}

// Field is a parsed raw value together with how it was obtained
type Field[T any] struct {
	Status Status
	Value  T
}

// Ptr returns the value when parsed, nil otherwise
func (f Field[T]) Ptr() *T {
	if f.Status != Parsed {
		return nil
	}
	v := f.Value
	return &v
}

func missing[T any]() Field[T]    { return Field[T]{Status: Missing} }
func unparsable[T any]() Field[T] { return Field[T]{Status: Unparsable} }
func parsed[T any](v T) Field[T]  { return Field[T]{Status: Parsed, Value: v} }

// Space-grouped numbers ("123 456") first, then anything with . and , separators
var numberPattern = regexp.MustCompile(`\d{1,3}(?:[ \x{00A0}]\d{3})+(?:[.,]\d+)?|\d+(?:[.,]\d+)*`)

// ParseNumber extracts the first number in text. Grouping separators are
// stripped; with both '.' and ',' present the last one is the decimal marker.
// A single separator followed by exactly three digits is read as grouping.
func ParseNumber(text string) Field[float64] {
	text = strings.TrimSpace(text)
	if text == "" {
		return missing[float64]()
	}
	token := numberPattern.FindString(text)
	if token == "" {
		return unparsable[float64]()
	}
	token = strings.NewReplacer(" ", "", "\u00a0", "").Replace(token)

	v, err := strconv.ParseFloat(canonicalDecimal(token), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return unparsable[float64]()
	}
	return parsed(v)
}

func canonicalDecimal(token string) string {
	lastDot := strings.LastIndex(token, ".")
	lastComma := strings.LastIndex(token, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		decimal := lastDot
		if lastComma > lastDot {
			decimal = lastComma
		}
		intPart := strings.NewReplacer(".", "", ",", "").Replace(token[:decimal])
		return intPart + "." + token[decimal+1:]

	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		idx := lastDot
		if lastComma >= 0 {
			sep, idx = ",", lastComma
		}
		if strings.Count(token, sep) > 1 {
			return strings.ReplaceAll(token, sep, "")
		}
		head, tail := token[:idx], token[idx+1:]
		if len(tail) == 3 && head != "0" {
			return head + tail
		}
		return head + "." + tail

	default:
		return token
	}
}

// DetectCurrency reads a currency from free text tokens, first match wins
func DetectCurrency(texts ...string) (string, bool) {
	for _, text := range texts {
		t := strings.ToLower(text)
		switch {
		case strings.Contains(t, "€") || strings.Contains(t, "eur"):
			return "EUR", true
		case strings.Contains(t, "lei") || strings.Contains(t, "ron"):
			return "RON", true
		}
	}
	return "", false
}

// ParsePrice reads an asking price and its currency. The explicit currency
// token wins over symbols in the price text; defaultCurrency applies when neither names one.
func ParsePrice(priceText, currencyToken, defaultCurrency string) (Field[float64], string) {
	currency, ok := DetectCurrency(currencyToken, priceText)
	if !ok {
		currency = strings.ToUpper(defaultCurrency)
	}
	price := ParseNumber(priceText)
	if price.Status == Parsed && price.Value <= 0 {
		return unparsable[float64](), currency
	}
	return price, currency
}

// ParseArea reads a surface in square meters
func ParseArea(text string) Field[float64] {
	area := ParseNumber(text)
	if area.Status == Parsed && (area.Value < 5 || area.Value > 5000) {
		return unparsable[float64]()
	}
	return area
}

// ParseRooms reads a room count ("2 camere", "garsoniera")
func ParseRooms(text string) Field[int] {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return missing[int]()
	}
	if strings.Contains(t, "garsonier") || strings.Contains(t, "studio") {
		return parsed(1)
	}
	n := ParseNumber(t)
	if n.Status != Parsed || n.Value < 1 || n.Value > 20 || n.Value != math.Trunc(n.Value) {
		return unparsable[int]()
	}
	return parsed(int(n.Value))
}

var floorNumberPattern = regexp.MustCompile(`-?\d+`)

// ParseFloor reads a floor ("parter", "etaj 3/8", "3/10")
func ParseFloor(text string) Field[int] {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return missing[int]()
	}
	switch {
	case strings.HasPrefix(t, "parter") || strings.HasPrefix(t, "ground") || t == "p":
		return parsed(0)
	case strings.HasPrefix(t, "demisol") || strings.HasPrefix(t, "subsol") || strings.HasPrefix(t, "basement"):
		return parsed(-1)
	}
	m := floorNumberPattern.FindString(t)
	if m == "" {
		return unparsable[int]()
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < -2 || n > 100 {
		return unparsable[int]()
	}
	return parsed(n)
}

var yearPattern = regexp.MustCompile(`\b(1[89]\d{2}|20\d{2})\b`)

// ParseYear reads a construction year; years in the far future are rejected
func ParseYear(text string, now time.Time) Field[int] {
	t := strings.TrimSpace(text)
	if t == "" {
		return missing[int]()
	}
	m := yearPattern.FindString(t)
	if m == "" {
		return unparsable[int]()
	}
	year, _ := strconv.Atoi(m)
	if year > now.Year()+5 {
		return unparsable[int]()
	}
	return parsed(year)
}

var metroPattern = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(km|minute|minut|min|m)\b`)

// ParseMetro reads the distance and walking time to the nearest metro
// station. Whichever is missing is derived from the other at walkMetersPerMin.
func ParseMetro(text string, walkMetersPerMin int) (Field[int], Field[int]) {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return missing[int](), missing[int]()
	}
	if walkMetersPerMin <= 0 {
		walkMetersPerMin = 80
	}

	dist, minutes := unparsable[int](), unparsable[int]()
	for _, m := range metroPattern.FindAllStringSubmatch(t, -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
		if err != nil {
			continue
		}
		switch m[2] {
		case "km":
			if dist.Status != Parsed {
				dist = parsed(int(math.Round(v * 1000)))
			}
		case "m":
			if dist.Status != Parsed {
				dist = parsed(int(math.Round(v)))
			}
		default:
			if minutes.Status != Parsed {
				minutes = parsed(int(math.Round(v)))
			}
		}
	}

	switch {
	case dist.Status == Parsed && minutes.Status != Parsed:
		minutes = parsed(int(math.Ceil(float64(dist.Value) / float64(walkMetersPerMin))))
	case minutes.Status == Parsed && dist.Status != Parsed:
		dist = parsed(minutes.Value * walkMetersPerMin)
	}
	return dist, minutes
}
