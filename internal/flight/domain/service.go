package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/flightclub/internal/billing/rate"
	"github.com/smallbiznis/flightclub/internal/billing/split"
	"gorm.io/gorm"
)

// UnchargedFlight is a flight ready for billing with its default price.
type UnchargedFlight struct {
	Detail
	FlightMinutes  int             `json:"flight_minutes"`
	BlockMinutes   int             `json:"block_minutes"`
	Rate           decimal.Decimal `json:"rate"`
	Amount         decimal.Decimal `json:"amount"`
	DefaultTargets []split.Target  `json:"default_targets"`
}

type ListUnchargedRequest struct {
	Limit int
}

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (Detail, error)
	// Load reads a flight detail on the given handle so callers can stay
	// inside their own transaction.
	Load(ctx context.Context, db *gorm.DB, id snowflake.ID) (Detail, error)
	ListUncharged(ctx context.Context, req ListUnchargedRequest) ([]UnchargedFlight, error)
	Price(detail Detail, override rate.Override, fees []rate.Fee) (rate.Quote, error)
}

var (
	ErrInvalidID          = errors.New("invalid_flight_id")
	ErrNotFound           = errors.New("flight_not_found")
	ErrAircraftNotFound   = errors.New("aircraft_not_found")
	ErrAlreadyCharged     = errors.New("flight_already_charged")
	ErrNeedsBoardReview   = errors.New("flight_needs_board_review")
	ErrNotCharged         = errors.New("flight_not_charged")
	ErrMissingFlightTimes = errors.New("flight_times_missing")
)
