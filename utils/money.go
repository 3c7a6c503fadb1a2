package utils

import "github.com/shopspring/decimal"

// MoneyScale is the number of fractional digits kept on every stored amount.
const MoneyScale = 4

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds half away from zero to MoneyScale digits. Amounts in the ledger
// are never negative, so this is round-half-up.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// Percent returns base*rate/100 rounded to MoneyScale.
func Percent(base, rate decimal.Decimal) decimal.Decimal {
	return RoundMoney(base.Mul(rate).Div(hundred))
}
