package split

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/flightclub/internal/billing/rate"
)

// DescriptionMode marks whether a description follows its inputs.
type DescriptionMode string

const (
	DescriptionAuto   DescriptionMode = "auto"
	DescriptionManual DescriptionMode = "manual"
)

// Description is either generated from the charge inputs or a manual text
// that survives regeneration until Reset.
type Description struct {
	Mode DescriptionMode `json:"mode"`
	Text string          `json:"text,omitempty"`
}

func AutoDescription() Description {
	return Description{Mode: DescriptionAuto}
}

func ManualDescription(text string) Description {
	return Description{Mode: DescriptionManual, Text: strings.TrimSpace(text)}
}

func (d Description) IsManual() bool {
	return d.Mode == DescriptionManual
}

// Regenerate replaces the text with generated unless the description is manual.
func (d Description) Regenerate(generated string) Description {
	if d.IsManual() {
		return d
	}
	return Description{Mode: DescriptionAuto, Text: generated}
}

// Reset drops a manual override.
func (d Description) Reset() Description {
	return AutoDescription()
}

// Resolve returns the text to post for this description.
func (d Description) Resolve(generated string) string {
	if d.IsManual() && d.Text != "" {
		return d.Text
	}
	return generated
}

// UnmarshalJSON accepts either a plain string, treated as a manual override,
// or the {mode,text} object.
func (d *Description) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		if strings.TrimSpace(text) == "" {
			*d = AutoDescription()
		} else {
			*d = ManualDescription(text)
		}
		return nil
	}
	type raw Description
	var v raw
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v.Mode {
	case DescriptionManual:
		*d = ManualDescription(v.Text)
	default:
		*d = Description{Mode: DescriptionAuto, Text: v.Text}
	}
	return nil
}

// DescribeInput is the data a generated charge description is built from.
type DescribeInput struct {
	TailNumber    string
	FlightDate    time.Time
	FlightMinutes int
	Rate          decimal.Decimal
	Unit          rate.BillingUnit
	CustomRate    bool
	Mode          Mode
	Percentage    decimal.Decimal
	Minutes       int
	Fees          []rate.Fee
	FeeAllocation FeeAllocation
	FeeShare      decimal.Decimal
	Amount        decimal.Decimal
	Currency      string
	DateLayout    string
}

// Describe builds the generated description of one charge leg.
func Describe(in DescribeInput) string {
	layout := in.DateLayout
	if layout == "" {
		layout = "02.01.2006 15:04"
	}

	parts := make([]string, 0, 6)

	head := strings.TrimSpace(in.TailNumber)
	if !in.FlightDate.IsZero() {
		head = strings.TrimSpace(head + " " + in.FlightDate.Format(layout))
	}
	if head != "" {
		parts = append(parts, head)
	}

	unit := "h"
	if in.Unit == rate.UnitMinute {
		unit = "min"
	}
	rateText := fmt.Sprintf("%d min @ %s/%s", in.FlightMinutes, money(in.Rate, in.Currency), unit)
	if in.CustomRate {
		rateText += " (custom rate)"
	}
	parts = append(parts, rateText)

	full := in.Percentage.Sub(hundred).Abs().LessThanOrEqual(DefaultTolerance)
	if !full {
		if in.Mode == ModeTime {
			parts = append(parts, fmt.Sprintf("%d of %d min", in.Minutes, in.FlightMinutes))
		} else {
			parts = append(parts, in.Percentage.Round(2).String()+"%")
		}
	}

	if in.FeeShare.IsPositive() {
		parts = append(parts, feeText(in))
	}

	parts = append(parts, money(in.Amount.Round(2), in.Currency))
	return strings.Join(parts, " | ")
}

func feeText(in DescribeInput) string {
	var b strings.Builder
	b.WriteString("fees")
	if len(in.Fees) > 0 {
		items := make([]string, 0, len(in.Fees))
		for _, fee := range in.Fees {
			label := strings.TrimSpace(strings.TrimSpace(fee.AirportCode) + " " + strings.TrimSpace(fee.FeeType))
			items = append(items, label+" "+fee.Amount.StringFixed(2))
		}
		b.WriteString(": ")
		b.WriteString(strings.Join(items, ", "))
		if in.FeeAllocation != FeeAssignToOne {
			b.WriteString(" (share ")
			b.WriteString(money(in.FeeShare.Round(2), in.Currency))
			b.WriteString(")")
		}
		return b.String()
	}
	b.WriteString(" ")
	b.WriteString(money(in.FeeShare.Round(2), in.Currency))
	return b.String()
}

func money(amount decimal.Decimal, currency string) string {
	text := amount.StringFixed(2)
	if currency = strings.TrimSpace(currency); currency != "" {
		text += " " + currency
	}
	return text
}
