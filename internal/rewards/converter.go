package rewards

import "github.com/shopspring/decimal"

// Converter translates between reward points and currency.
// ExchangeRate is the currency value of one point.
type Converter struct {
	Enabled      bool
	ExchangeRate decimal.Decimal
}

func (c Converter) active() bool {
	return c.Enabled && c.ExchangeRate.IsPositive()
}

// PointsToAmount returns the currency value of points.
func (c Converter) PointsToAmount(points int) decimal.Decimal {
	if !c.active() || points <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(points)).Mul(c.ExchangeRate)
}

// AmountToPoints returns the smallest number of points worth at least amount.
func (c Converter) AmountToPoints(amount decimal.Decimal) int {
	if !c.active() || !amount.IsPositive() {
		return 0
	}
	return int(amount.Div(c.ExchangeRate).Ceil().IntPart())
}
