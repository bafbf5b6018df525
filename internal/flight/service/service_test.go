package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/flightclub/internal/billing/rate"
	"github.com/smallbiznis/flightclub/internal/billing/split"
	"github.com/smallbiznis/flightclub/internal/dbtest"
	"github.com/smallbiznis/flightclub/internal/flight/domain"
	"github.com/smallbiznis/flightclub/internal/flight/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const (
	pilotID      snowflake.ID = 11
	copilotID    snowflake.ID = 12
	costCenterID snowflake.ID = 21
	aircraftID   snowflake.ID = 31
	opTypeID     snowflake.ID = 51
)

func newTestService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	dbtest.CreateUser(t, db, pilotID, "Pilot", true)
	dbtest.CreateUser(t, db, copilotID, "Copilot", true)
	dbtest.CreateCostCenter(t, db, costCenterID, "Club", true)
	dbtest.CreateAircraft(t, db, aircraftID, "D-EABC", "150", "hour")
	require.NoError(t, db.Create(&domain.OperationType{
		ID:        opTypeID,
		Name:      "Training",
		Rate:      decimal.NewNullDecimal(decimal.RequireFromString("120")),
		CreatedAt: time.Now().UTC(),
	}).Error)

	svc := New(Params{DB: db, Log: zaptest.NewLogger(t), Repo: repository.Provide()})
	return svc, db
}

func TestGetValidatesAndLoadsDetail(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	takeoff := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	dbtest.CreateFlight(t, db, 41, aircraftID, pilotID, takeoff, 90)
	require.NoError(t, db.Model(&domain.Flight{}).Where("id = ?", 41).Update("operation_type_id", opTypeID).Error)

	_, err := svc.Get(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = svc.Get(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	detail, err := svc.Get(ctx, 41)
	require.NoError(t, err)
	assert.Equal(t, "D-EABC", detail.TailNumber())
	require.NotNil(t, detail.OperationType)
	assert.Equal(t, "Training", detail.OperationType.Name)
}

func TestPriceUsesOperationTypeBeforeAircraftRate(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	takeoff := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	dbtest.CreateFlight(t, db, 41, aircraftID, pilotID, takeoff, 90)
	require.NoError(t, db.Model(&domain.Flight{}).Where("id = ?", 41).Update("operation_type_id", opTypeID).Error)

	detail, err := svc.Get(ctx, 41)
	require.NoError(t, err)

	quote, err := svc.Price(detail, rate.Override{}, nil)
	require.NoError(t, err)
	assert.True(t, quote.Rate.Equal(decimal.RequireFromString("120")), quote.Rate.String())
	assert.True(t, quote.FlightAmount.Equal(decimal.RequireFromString("180")), quote.FlightAmount.String())

	override := decimal.RequireFromString("200")
	quote, err = svc.Price(detail, rate.Override{Enabled: true, Rate: &override}, []rate.Fee{
		{AirportCode: "EDFE", FeeType: "landing", Amount: decimal.RequireFromString("25")},
	})
	require.NoError(t, err)
	assert.True(t, quote.CustomRate)
	assert.True(t, quote.Total.Equal(decimal.RequireFromString("325")), quote.Total.String())
}

func TestListUnchargedSkipsChargedAndBoardReview(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	takeoff := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	dbtest.CreateFlight(t, db, 41, aircraftID, pilotID, takeoff, 90, dbtest.WithCopilot(copilotID, "60"))
	dbtest.CreateFlight(t, db, 42, aircraftID, pilotID, takeoff.Add(3*time.Hour), 60, dbtest.WithCostCenter(costCenterID))
	dbtest.CreateFlight(t, db, 43, aircraftID, pilotID, takeoff.Add(6*time.Hour), 30, dbtest.WithBoardReview())
	dbtest.CreateFlight(t, db, 44, aircraftID, pilotID, takeoff.Add(9*time.Hour), 30)
	require.NoError(t, db.Model(&domain.Flight{}).Where("id = ?", 44).Updates(map[string]any{"charged": true, "locked": true}).Error)

	flights, err := svc.ListUncharged(ctx, domain.ListUnchargedRequest{})
	require.NoError(t, err)
	require.Len(t, flights, 2)

	first := flights[0]
	assert.Equal(t, snowflake.ID(41), first.Flight.ID)
	assert.Equal(t, 90, first.FlightMinutes)
	assert.Equal(t, 105, first.BlockMinutes)
	assert.True(t, first.Amount.Equal(decimal.RequireFromString("225")), first.Amount.String())
	require.Len(t, first.DefaultTargets, 2)
	assert.Equal(t, split.TargetUser, first.DefaultTargets[0].Type)
	assert.True(t, first.DefaultTargets[0].Percentage.Equal(decimal.RequireFromString("60")))
	assert.Equal(t, copilotID, first.DefaultTargets[1].ID)
	assert.True(t, first.DefaultTargets[1].Percentage.Equal(decimal.RequireFromString("40")))

	second := flights[1]
	assert.Equal(t, snowflake.ID(42), second.Flight.ID)
	require.Len(t, second.DefaultTargets, 1)
	assert.Equal(t, split.TargetCostCenter, second.DefaultTargets[0].Type)
	assert.Equal(t, costCenterID, second.DefaultTargets[0].ID)

	limited, err := svc.ListUncharged(ctx, domain.ListUnchargedRequest{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
