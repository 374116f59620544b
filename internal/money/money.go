package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

const DefaultSymbol = "S/"

// Format renders minor units as "S/ 1,234.50".
func Format(symbol string, cents int64) string {
	if symbol == "" {
		symbol = DefaultSymbol
	}
	return symbol + " " + Plain(cents)
}

// Plain renders minor units with thousands separators and no symbol.
func Plain(cents int64) string {
	raw := decimal.New(cents, -2).StringFixed(2)
	sign := ""
	if strings.HasPrefix(raw, "-") {
		sign = "-"
		raw = raw[1:]
	}
	whole, frac, _ := strings.Cut(raw, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + "." + frac
}

// Decimal converts minor units to a decimal for spreadsheet cells.
func Decimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Float is Decimal as float64, for consumers that only accept floats.
func Float(cents int64) float64 {
	f, _ := Decimal(cents).Float64()
	return f
}
