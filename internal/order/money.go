package order

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Percent returns pct percent of base cents, rounded half away from zero.
func Percent(base int64, pct decimal.Decimal) int64 {
	if base == 0 || pct.IsZero() {
		return 0
	}
	return decimal.NewFromInt(base).Mul(pct).Div(hundred).Round(0).IntPart()
}

// Cents converts an amount in currency units (2.50) to cents (250).
func Cents(units decimal.Decimal) int64 {
	return units.Shift(2).Round(0).IntPart()
}

// FormatCents renders cents as a fixed two-decimal string ("9.00").
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// ParseCents parses a currency string ("9.00") into cents.
func ParseCents(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return Cents(d), nil
}
