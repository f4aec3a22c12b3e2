package dashboard

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"stockpane/internal/domain"
)

// Sort returns rows ordered by sel. The sort is stable: rows comparing equal
// keep their incoming relative order.
//
// Price and percent columns are parsed from their formatted text. A value
// that does not parse is given the extreme key that places it last for the
// active direction (+Inf ascending, -Inf descending), so N/A rows always sit
// at the bottom of the list.
func Sort(rows []ViewRow, sel domain.Selector) []ViewRow {
	out := slices.Clone(rows)
	desc := sel.Direction == domain.Descending

	var compare func(a, b ViewRow) int
	switch sel.Column {
	case domain.ColumnPrice:
		compare = func(a, b ViewRow) int {
			return cmp.Compare(numericKey(a.Price, parseNumber, desc), numericKey(b.Price, parseNumber, desc))
		}
	case domain.ColumnChangePercent:
		compare = func(a, b ViewRow) int {
			return cmp.Compare(numericKey(a.ChangePercent, parsePercent, desc), numericKey(b.ChangePercent, parsePercent, desc))
		}
	default:
		compare = func(a, b ViewRow) int {
			return strings.Compare(a.Symbol, b.Symbol)
		}
	}

	if desc {
		slices.SortStableFunc(out, func(a, b ViewRow) int { return compare(b, a) })
	} else {
		slices.SortStableFunc(out, compare)
	}
	return out
}

// numericKey parses s, substituting the bottom-of-list sentinel on failure.
func numericKey(s string, parse func(string) (float64, bool), desc bool) float64 {
	if v, ok := parse(s); ok {
		return v
	}
	if desc {
		return math.Inf(-1)
	}
	return math.Inf(1)
}
