package shared

import "github.com/shopspring/decimal"

// MoneyScale is the number of decimals every stored amount carries.
const MoneyScale = 2

// IsCents reports whether d is representable without rounding at MoneyScale.
func IsCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyScale))
}
