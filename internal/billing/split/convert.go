package split

import "github.com/shopspring/decimal"

// PercentageToMinutes converts a share into whole minutes of the flight.
func PercentageToMinutes(pct decimal.Decimal, totalMinutes int) int {
	if totalMinutes <= 0 {
		return 0
	}
	return int(decimal.NewFromInt(int64(totalMinutes)).Mul(pct).Div(hundred).Round(0).IntPart())
}

// MinutesToPercentage converts minutes into a share rounded to two decimals.
func MinutesToPercentage(minutes, totalMinutes int) decimal.Decimal {
	if totalMinutes <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(minutes)).Div(decimal.NewFromInt(int64(totalMinutes))).Mul(hundred).Round(2)
}
