package dashboard

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// NotAvailable is rendered for absent numeric fields.
const NotAvailable = "N/A"

// FormatPrice formats a price as X.XX, or N/A when absent.
func FormatPrice(p decimal.NullDecimal) string {
	if !p.Valid {
		return NotAvailable
	}
	return p.Decimal.StringFixed(2)
}

// FormatPercent formats a percent change as "+X.XX%" / "-X.XX%", or N/A.
func FormatPercent(p decimal.NullDecimal) string {
	if !p.Valid {
		return NotAvailable
	}
	s := p.Decimal.StringFixed(2)
	if !p.Decimal.IsNegative() {
		s = "+" + s
	}
	return s + "%"
}

// FormatChange formats an absolute change with an explicit sign, or N/A.
func FormatChange(c decimal.NullDecimal) string {
	if !c.Valid {
		return NotAvailable
	}
	if c.Decimal.IsNegative() {
		return c.Decimal.StringFixed(2)
	}
	return "+" + c.Decimal.StringFixed(2)
}

// FormatCount formats a count, using a K suffix for large values.
func FormatCount(n int) string {
	if n >= 100_000 {
		return fmt.Sprintf("%.0fK", float64(n)/1e3)
	}
	return fmt.Sprintf("%d", n)
}
