// Package rate derives flight amounts from duration, billing unit and the
// applicable hourly or per-minute rate.
package rate

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BillingUnit is the unit an aircraft rate is expressed in.
type BillingUnit string

const (
	UnitHour   BillingUnit = "hour"
	UnitMinute BillingUnit = "minute"
)

var (
	ErrInvalidBillingUnit = errors.New("invalid_billing_unit")
	ErrInvalidDuration    = errors.New("invalid_flight_duration")
	ErrNegativeFee        = errors.New("negative_airport_fee")
	ErrInvalidFee         = errors.New("invalid_airport_fee")
)

var (
	sixty   = decimal.NewFromInt(60)
	hundred = decimal.NewFromInt(100)
)

// ParseBillingUnit normalizes a stored billing unit. Empty values default to hour.
func ParseBillingUnit(raw string) (BillingUnit, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(UnitHour):
		return UnitHour, nil
	case string(UnitMinute):
		return UnitMinute, nil
	default:
		return "", ErrInvalidBillingUnit
	}
}

// Source carries the candidate rates of a flight in priority order after the override.
type Source struct {
	OperationTypeRate *decimal.Decimal
	AircraftRate      *decimal.Decimal
}

// Override is an operator supplied rate. It only applies when Enabled is set
// and Rate holds a value.
type Override struct {
	Enabled bool
	Rate    *decimal.Decimal
}

// Active reports whether the override replaces the source rates.
func (o Override) Active() bool {
	return o.Enabled && o.Rate != nil
}

// EffectiveRate resolves override, then operation type rate, then aircraft
// default rate, else zero.
func EffectiveRate(src Source, override Override) decimal.Decimal {
	if override.Active() {
		return *override.Rate
	}
	if src.OperationTypeRate != nil {
		return *src.OperationTypeRate
	}
	if src.AircraftRate != nil {
		return *src.AircraftRate
	}
	return decimal.Zero
}

// FlightAmount returns the unrounded amount for the given flight time.
func FlightAmount(hours decimal.Decimal, unit BillingUnit, rate decimal.Decimal) (decimal.Decimal, error) {
	if hours.IsNegative() {
		return decimal.Zero, ErrInvalidDuration
	}
	switch unit {
	case UnitMinute:
		return hours.Mul(sixty).Mul(rate), nil
	case UnitHour, "":
		return hours.Mul(rate), nil
	default:
		return decimal.Zero, ErrInvalidBillingUnit
	}
}

// Round2 rounds a monetary value to cents.
func Round2(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// Fee is a single itemized airport fee.
type Fee struct {
	AirportCode string          `json:"airport_code"`
	FeeType     string          `json:"fee_type"`
	Amount      decimal.Decimal `json:"amount"`
}

// TotalFees sums itemized fees. Negative amounts are rejected.
func TotalFees(fees []Fee) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, fee := range fees {
		if fee.Amount.IsNegative() {
			return decimal.Zero, ErrNegativeFee
		}
		if strings.TrimSpace(fee.AirportCode) == "" && !fee.Amount.IsZero() {
			return decimal.Zero, ErrInvalidFee
		}
		total = total.Add(fee.Amount)
	}
	return total, nil
}

// FlightMinutes is the whole-minute difference between takeoff and landing.
// Missing or inverted timestamps yield zero.
func FlightMinutes(takeoff, landing *time.Time) int {
	return minutesBetween(takeoff, landing)
}

// BlockMinutes is the whole-minute difference between block off and block on.
func BlockMinutes(blockOff, blockOn *time.Time) int {
	return minutesBetween(blockOff, blockOn)
}

// HoursFromMinutes converts whole minutes into fractional hours without rounding.
func HoursFromMinutes(minutes int) decimal.Decimal {
	return decimal.NewFromInt(int64(minutes)).Div(sixty)
}

func minutesBetween(start, end *time.Time) int {
	if start == nil || end == nil || start.IsZero() || end.IsZero() {
		return 0
	}
	d := end.Sub(*start)
	if d <= 0 {
		return 0
	}
	return int(d.Round(time.Minute) / time.Minute)
}

// Quote is the priced view of a flight before allocation.
type Quote struct {
	Rate          decimal.Decimal `json:"rate"`
	Unit          BillingUnit     `json:"billing_unit"`
	CustomRate    bool            `json:"custom_rate"`
	FlightHours   decimal.Decimal `json:"flight_hours"`
	FlightMinutes int             `json:"flight_minutes"`
	FlightAmount  decimal.Decimal `json:"flight_amount"`
	FeeAmount     decimal.Decimal `json:"fee_amount"`
	Fees          []Fee           `json:"fees,omitempty"`
	Total         decimal.Decimal `json:"total"`
}

// Price combines rate resolution, flight amount and fee totals. Amounts stay
// unrounded so allocation rounds only once.
func Price(minutes int, unit BillingUnit, src Source, override Override, fees []Fee) (Quote, error) {
	if minutes < 0 {
		return Quote{}, ErrInvalidDuration
	}
	effective := EffectiveRate(src, override)
	hours := HoursFromMinutes(minutes)
	amount, err := FlightAmount(hours, unit, effective)
	if err != nil {
		return Quote{}, err
	}
	feeAmount, err := TotalFees(fees)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Rate:          effective,
		Unit:          unit,
		CustomRate:    override.Active(),
		FlightHours:   hours,
		FlightMinutes: minutes,
		FlightAmount:  amount,
		FeeAmount:     feeAmount,
		Fees:          fees,
		Total:         amount.Add(feeAmount),
	}, nil
}

// Percent returns part as a share of whole in percent, or zero for an empty whole.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}
