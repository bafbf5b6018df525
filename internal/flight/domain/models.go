package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/flightclub/internal/billing/rate"
	"github.com/smallbiznis/flightclub/internal/billing/split"
)

// Flight is a logged flight and the unit of billing.
type Flight struct {
	ID                   snowflake.ID        `gorm:"primaryKey" json:"id"`
	AircraftID           snowflake.ID        `gorm:"not null;index" json:"aircraft_id"`
	PilotID              snowflake.ID        `gorm:"not null;index" json:"pilot_id"`
	CopilotID            *snowflake.ID       `json:"copilot_id,omitempty"`
	OperationTypeID      *snowflake.ID       `json:"operation_type_id,omitempty"`
	BlockOffAt           *time.Time          `json:"block_off_at,omitempty"`
	TakeoffAt            *time.Time          `json:"takeoff_at,omitempty"`
	LandingAt            *time.Time          `json:"landing_at,omitempty"`
	BlockOnAt            *time.Time          `json:"block_on_at,omitempty"`
	Departure            string              `gorm:"type:text" json:"departure"`
	Destination          string              `gorm:"type:text" json:"destination"`
	Charged              bool                `gorm:"not null;default:false;index" json:"charged"`
	Locked               bool                `gorm:"not null;default:false" json:"locked"`
	NeedsBoardReview     bool                `gorm:"not null;default:false" json:"needs_board_review"`
	DefaultCostCenterID  *snowflake.ID       `json:"default_cost_center_id,omitempty"`
	SplitCostWithCopilot bool                `gorm:"not null;default:false" json:"split_cost_with_copilot"`
	PilotCostPercentage  decimal.NullDecimal `gorm:"type:numeric(5,2)" json:"pilot_cost_percentage"`
	CreatedAt            time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time           `gorm:"not null" json:"updated_at"`
}

func (Flight) TableName() string { return "flightlogs" }

// FlightMinutes is landing minus takeoff in whole minutes.
func (f Flight) FlightMinutes() int {
	return rate.FlightMinutes(f.TakeoffAt, f.LandingAt)
}

// BlockMinutes is block-on minus block-off in whole minutes.
func (f Flight) BlockMinutes() int {
	return rate.BlockMinutes(f.BlockOffAt, f.BlockOnAt)
}

func (f Flight) FlightHours() decimal.Decimal {
	return rate.HoursFromMinutes(f.FlightMinutes())
}

// Date is the business date used in generated descriptions.
func (f Flight) Date() time.Time {
	for _, t := range []*time.Time{f.TakeoffAt, f.BlockOffAt} {
		if t != nil && !t.IsZero() {
			return *t
		}
	}
	return f.CreatedAt
}

func (f Flight) Parties() split.Parties {
	parties := split.Parties{
		PilotID:              f.PilotID,
		CopilotID:            f.CopilotID,
		DefaultCostCenterID:  f.DefaultCostCenterID,
		SplitCostWithCopilot: f.SplitCostWithCopilot,
	}
	if f.PilotCostPercentage.Valid {
		pct := f.PilotCostPercentage.Decimal
		parties.PilotCostPercentage = &pct
	}
	return parties
}

type Aircraft struct {
	ID           snowflake.ID        `gorm:"primaryKey" json:"id"`
	Registration string              `gorm:"type:text;not null;uniqueIndex" json:"registration"`
	DefaultRate  decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"default_rate"`
	BillingUnit  string              `gorm:"type:text;not null;default:'hour'" json:"billing_unit"`
	CreatedAt    time.Time           `gorm:"not null" json:"created_at"`
}

func (Aircraft) TableName() string { return "aircraft" }

type OperationType struct {
	ID        snowflake.ID        `gorm:"primaryKey" json:"id"`
	Name      string              `gorm:"type:text;not null" json:"name"`
	Rate      decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"rate"`
	CreatedAt time.Time           `gorm:"not null" json:"created_at"`
}

func (OperationType) TableName() string { return "operation_types" }

// Detail is a flight joined with the data its price depends on.
type Detail struct {
	Flight        Flight         `json:"flight"`
	Aircraft      Aircraft       `json:"aircraft"`
	OperationType *OperationType `json:"operation_type,omitempty"`
}

func (d Detail) TailNumber() string {
	return strings.TrimSpace(d.Aircraft.Registration)
}

func (d Detail) Unit() rate.BillingUnit {
	unit, err := rate.ParseBillingUnit(d.Aircraft.BillingUnit)
	if err != nil {
		return rate.UnitHour
	}
	return unit
}

// RateSource returns the stored candidate rates for this flight.
func (d Detail) RateSource() rate.Source {
	var src rate.Source
	if d.OperationType != nil && d.OperationType.Rate.Valid {
		r := d.OperationType.Rate.Decimal
		src.OperationTypeRate = &r
	}
	if d.Aircraft.DefaultRate.Valid {
		r := d.Aircraft.DefaultRate.Decimal
		src.AircraftRate = &r
	}
	return src
}
