package dashboard

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Class is the display category of a row's price movement.
type Class int

const (
	Neutral Class = iota
	Rise
	Fall
)

func (c Class) String() string {
	switch c {
	case Rise:
		return "rise"
	case Fall:
		return "fall"
	default:
		return "neutral"
	}
}

// Movement thresholds in percent; both bounds are exclusive.
const (
	riseThreshold = 0.5
	fallThreshold = -0.5
)

// Classify maps a percent change to a display category.
func Classify(percent float64) Class {
	switch {
	case percent > riseThreshold:
		return Rise
	case percent < fallThreshold:
		return Fall
	default:
		return Neutral
	}
}

// ClassifyRow classifies a formatted percent change. When the text does not
// parse, the sign of the raw change decides (zero counts as a rise); with
// neither available the row is neutral.
func ClassifyRow(percentText string, change decimal.NullDecimal) Class {
	if pct, ok := parsePercent(percentText); ok {
		return Classify(pct)
	}
	if !change.Valid {
		return Neutral
	}
	if change.Decimal.IsNegative() {
		return Fall
	}
	return Rise
}

// parsePercent strips a trailing percent sign and parses the rest.
func parsePercent(s string) (float64, bool) {
	return parseNumber(strings.TrimSuffix(strings.TrimSpace(s), "%"))
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v != v { // reject NaN
		return 0, false
	}
	return v, true
}
