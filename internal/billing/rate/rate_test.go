package rate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func TestEffectiveRatePriority(t *testing.T) {
	tests := []struct {
		name     string
		src      Source
		override Override
		want     string
	}{
		{"override wins", Source{OperationTypeRate: decPtr("150"), AircraftRate: decPtr("120")}, Override{Enabled: true, Rate: decPtr("99")}, "99"},
		{"disabled override ignored", Source{OperationTypeRate: decPtr("150")}, Override{Enabled: false, Rate: decPtr("99")}, "150"},
		{"enabled override without value ignored", Source{AircraftRate: decPtr("120")}, Override{Enabled: true}, "120"},
		{"operation type before aircraft", Source{OperationTypeRate: decPtr("150"), AircraftRate: decPtr("120")}, Override{}, "150"},
		{"aircraft default", Source{AircraftRate: decPtr("120")}, Override{}, "120"},
		{"nothing set", Source{}, Override{}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EffectiveRate(tt.src, tt.override)
			assert.True(t, dec(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestFlightAmount(t *testing.T) {
	amount, err := FlightAmount(dec("1.5"), UnitHour, dec("150"))
	require.NoError(t, err)
	assert.Equal(t, "225.00", Round2(amount).StringFixed(2))

	amount, err = FlightAmount(dec("1.5"), UnitMinute, dec("2.5"))
	require.NoError(t, err)
	assert.Equal(t, "225.00", Round2(amount).StringFixed(2))

	amount, err = FlightAmount(dec("1"), UnitHour, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, amount.IsZero())

	_, err = FlightAmount(dec("1"), BillingUnit("day"), dec("1"))
	assert.ErrorIs(t, err, ErrInvalidBillingUnit)

	_, err = FlightAmount(dec("-1"), UnitHour, dec("1"))
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestFlightAmountKeepsPrecision(t *testing.T) {
	// 7 minutes at 100/hour is 11.666..., rounding only at the end.
	amount, err := FlightAmount(HoursFromMinutes(7), UnitHour, dec("100"))
	require.NoError(t, err)
	assert.Equal(t, "11.67", Round2(amount).StringFixed(2))
	assert.False(t, amount.Equal(Round2(amount)))
}

func TestTotalFees(t *testing.T) {
	total, err := TotalFees([]Fee{
		{AirportCode: "EDDF", FeeType: "landing", Amount: dec("12.50")},
		{AirportCode: "EDDF", FeeType: "parking", Amount: dec("7.50")},
	})
	require.NoError(t, err)
	assert.Equal(t, "20.00", total.StringFixed(2))

	_, err = TotalFees([]Fee{{AirportCode: "EDDF", Amount: dec("-1")}})
	assert.ErrorIs(t, err, ErrNegativeFee)

	total, err = TotalFees(nil)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}

func TestFlightAndBlockMinutes(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	takeoff := base.Add(10 * time.Minute)
	landing := base.Add(100 * time.Minute)
	blockOn := base.Add(110 * time.Minute)

	assert.Equal(t, 90, FlightMinutes(&takeoff, &landing))
	assert.Equal(t, 110, BlockMinutes(&base, &blockOn))
	assert.Equal(t, 0, FlightMinutes(&landing, &takeoff))
	assert.Equal(t, 0, FlightMinutes(nil, &landing))

	// Logged times are minute precision; stray seconds round to the nearest minute.
	assert.Equal(t, 30, FlightMinutes(&base, ptrTime(base.Add(29*time.Minute+30*time.Second))))
	assert.Equal(t, 29, FlightMinutes(&base, ptrTime(base.Add(29*time.Minute+29*time.Second))))
	assert.Equal(t, "0.5", HoursFromMinutes(FlightMinutes(&base, ptrTime(base.Add(30*time.Minute+10*time.Second)))).String())
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestPrice(t *testing.T) {
	q, err := Price(90, UnitHour, Source{AircraftRate: decPtr("150")}, Override{}, []Fee{{AirportCode: "EDFE", FeeType: "landing", Amount: dec("15")}})
	require.NoError(t, err)
	assert.Equal(t, "225.00", q.FlightAmount.StringFixed(2))
	assert.Equal(t, "15.00", q.FeeAmount.StringFixed(2))
	assert.Equal(t, "240.00", q.Total.StringFixed(2))
	assert.False(t, q.CustomRate)
}

func TestParseBillingUnit(t *testing.T) {
	unit, err := ParseBillingUnit(" Minute ")
	require.NoError(t, err)
	assert.Equal(t, UnitMinute, unit)

	unit, err = ParseBillingUnit("")
	require.NoError(t, err)
	assert.Equal(t, UnitHour, unit)

	_, err = ParseBillingUnit("week")
	assert.ErrorIs(t, err, ErrInvalidBillingUnit)
}
