package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/flightclub/internal/actor"
	auditrepository "github.com/smallbiznis/flightclub/internal/audit/repository"
	auditservice "github.com/smallbiznis/flightclub/internal/audit/service"
	"github.com/smallbiznis/flightclub/internal/billing/rate"
	"github.com/smallbiznis/flightclub/internal/billing/split"
	chargedomain "github.com/smallbiznis/flightclub/internal/charge/domain"
	"github.com/smallbiznis/flightclub/internal/clock"
	"github.com/smallbiznis/flightclub/internal/config"
	"github.com/smallbiznis/flightclub/internal/dbtest"
	flightdomain "github.com/smallbiznis/flightclub/internal/flight/domain"
	flightrepository "github.com/smallbiznis/flightclub/internal/flight/repository"
	flightservice "github.com/smallbiznis/flightclub/internal/flight/service"
	ledgerdomain "github.com/smallbiznis/flightclub/internal/ledger/domain"
	ledgerrepository "github.com/smallbiznis/flightclub/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/flightclub/internal/ledger/service"
	ownerdomain "github.com/smallbiznis/flightclub/internal/owner/domain"
	ownerrepository "github.com/smallbiznis/flightclub/internal/owner/repository"
	ownerservice "github.com/smallbiznis/flightclub/internal/owner/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const (
	pilotID      snowflake.ID = 11
	copilotID    snowflake.ID = 12
	inactiveID   snowflake.ID = 13
	costCenterID snowflake.ID = 21
	aircraftID   snowflake.ID = 31
	flightID     snowflake.ID = 41
	otherFlight  snowflake.ID = 42
	reviewFlight snowflake.ID = 43
)

var treasurer = actor.User("5", actor.RoleTreasurer)

type fixture struct {
	db     *gorm.DB
	clock  *clock.FakeClock
	svc    chargedomain.Service
	ledger ledgerdomain.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Open(t)
	log := zaptest.NewLogger(t)
	node := dbtest.Node(t)
	clk := clock.NewFakeClock(time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC))
	billing := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())

	dbtest.CreateUser(t, db, pilotID, "Pilot", true)
	dbtest.CreateUser(t, db, copilotID, "Copilot", true)
	dbtest.CreateUser(t, db, inactiveID, "Former", false)
	dbtest.CreateCostCenter(t, db, costCenterID, "Club", true)
	dbtest.CreateAircraft(t, db, aircraftID, "D-EABC", "150", "hour")

	takeoff := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	dbtest.CreateFlight(t, db, flightID, aircraftID, pilotID, takeoff, 90, dbtest.WithCopilot(copilotID, "60"))
	dbtest.CreateFlight(t, db, otherFlight, aircraftID, pilotID, takeoff.Add(3*time.Hour), 60)
	dbtest.CreateFlight(t, db, reviewFlight, aircraftID, pilotID, takeoff.Add(6*time.Hour), 45, dbtest.WithBoardReview())

	audit := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Repo: auditrepository.Provide(), Clock: clk})
	owners := ownerservice.New(ownerservice.Params{DB: db, Log: log, Repo: ownerrepository.Provide()})
	flightRepo := flightrepository.Provide()
	flights := flightservice.New(flightservice.Params{DB: db, Log: log, Repo: flightRepo})
	ledger := ledgerservice.NewService(ledgerservice.Params{
		DB: db, Log: log, GenID: node, Repo: ledgerrepository.Provide(), Owners: owners,
		Flights: flightRepo, Billing: billing, Clock: clk, AuditSvc: audit,
	})
	svc := NewService(Params{
		DB: db, Log: log, Flights: flights, FlightRepo: flightRepo, Ledger: ledger,
		Billing: billing, Clock: clk, AuditSvc: audit,
	})
	return fixture{db: db, clock: clk, svc: svc, ledger: ledger}
}

func userRef(id snowflake.ID) ownerdomain.Ref {
	return ownerdomain.Ref{Type: ownerdomain.TypeUser, ID: id}
}

func (f fixture) entries(t *testing.T, owner ownerdomain.Ref) []ledgerdomain.Line {
	t.Helper()
	history, err := f.ledger.History(context.Background(), owner)
	require.NoError(t, err)
	return history.Transactions
}

func TestChargeFlightPricesSingleTarget(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.ChargeFlight(context.Background(), treasurer, chargedomain.SingleChargeRequest{
		FlightID: flightID,
		Owner:    userRef(pilotID),
	})
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)

	entry := res.Transactions[0]
	assert.True(t, entry.Amount.Equal(decimal.RequireFromString("-225")), entry.Amount.String())
	assert.Equal(t, ledgerdomain.KindFlightCharge, entry.Kind)
	require.NotNil(t, entry.FlightID)
	assert.Equal(t, flightID, *entry.FlightID)
	assert.Equal(t, "D-EABC 01.05.2024 10:30 | 90 min @ 150.00 EUR/h | 225.00 EUR", entry.Description)

	flight := dbtest.ReloadFlight(t, f.db, flightID)
	assert.True(t, flight.Charged)
	assert.True(t, flight.Locked)
}

func TestChargeFlightExplicitAmountIsDebit(t *testing.T) {
	f := newFixture(t)
	amount := decimal.RequireFromString("80")

	res, err := f.svc.ChargeFlight(context.Background(), treasurer, chargedomain.SingleChargeRequest{
		FlightID:    otherFlight,
		Owner:       ownerdomain.Ref{Type: ownerdomain.TypeCostCenter, ID: costCenterID},
		Amount:      &amount,
		Description: "towing",
	})
	require.NoError(t, err)
	assert.True(t, res.Transactions[0].Amount.Equal(decimal.NewFromInt(-80)))
	assert.Equal(t, "towing", res.Transactions[0].Description)
}

func TestChargeFlightRejectsChargedAndReviewFlights(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ChargeFlight(ctx, treasurer, chargedomain.SingleChargeRequest{FlightID: flightID, Owner: userRef(pilotID)})
	require.NoError(t, err)

	_, err = f.svc.ChargeFlight(ctx, treasurer, chargedomain.SingleChargeRequest{FlightID: flightID, Owner: userRef(pilotID)})
	assert.ErrorIs(t, err, flightdomain.ErrAlreadyCharged)

	_, err = f.svc.ChargeFlight(ctx, treasurer, chargedomain.SingleChargeRequest{FlightID: reviewFlight, Owner: userRef(pilotID)})
	assert.ErrorIs(t, err, flightdomain.ErrNeedsBoardReview)

	_, err = f.svc.ChargeFlight(ctx, treasurer, chargedomain.SingleChargeRequest{FlightID: otherFlight, Owner: userRef(inactiveID)})
	assert.ErrorIs(t, err, ownerdomain.ErrInactive)
	assert.False(t, dbtest.ReloadFlight(t, f.db, otherFlight).Charged)

	assert.Len(t, f.entries(t, userRef(pilotID)), 1)
}

func TestSplitChargePercentage(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.SplitCharge(context.Background(), treasurer, chargedomain.SplitChargeRequest{
		FlightID: flightID,
		Splits: []split.Target{
			{Type: split.TargetUser, ID: pilotID, Percentage: decimal.NewFromInt(60)},
			{Type: split.TargetUser, ID: copilotID, Percentage: decimal.NewFromInt(40)},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)
	assert.True(t, res.Transactions[0].Amount.Equal(decimal.NewFromInt(-135)))
	assert.True(t, res.Transactions[1].Amount.Equal(decimal.NewFromInt(-90)))
	assert.True(t, res.Total.Equal(decimal.NewFromInt(225)))
	assert.Equal(t, "D-EABC 01.05.2024 10:30 | 90 min @ 150.00 EUR/h | 60% | 135.00 EUR", res.Transactions[0].Description)
	assert.True(t, dbtest.ReloadFlight(t, f.db, flightID).Charged)
}

func TestSplitChargeTimeModeWithAssignedFees(t *testing.T) {
	f := newFixture(t)
	thirty, sixty := 30, 60

	res, err := f.svc.SplitCharge(context.Background(), treasurer, chargedomain.SplitChargeRequest{
		FlightID: flightID,
		Mode:     split.ModeTime,
		Splits: []split.Target{
			{Type: split.TargetUser, ID: pilotID, Minutes: &thirty, Description: split.ManualDescription("first leg")},
			{Type: split.TargetCostCenter, ID: costCenterID, Minutes: &sixty},
		},
		Fees:          []rate.Fee{{AirportCode: "EDFE", FeeType: "landing", Amount: decimal.RequireFromString("12.50")}},
		FeeAllocation: split.FeeAssignToOne,
		FeeTargetType: split.TargetUser,
		FeeTargetID:   pilotID,
	})
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)

	pilot, club := res.Transactions[0], res.Transactions[1]
	assert.Equal(t, "first leg", pilot.Description)
	assert.Equal(t, ownerdomain.TypeCostCenter, club.Owner.Type)
	assert.True(t, pilot.Amount.Add(club.Amount).Equal(decimal.RequireFromString("-237.5")), pilot.Amount.Add(club.Amount).String())
	assert.Equal(t, "-87.50", pilot.Amount.StringFixed(2))
	assert.Equal(t, "-150.00", club.Amount.StringFixed(2))
}

func TestSplitChargeRollsBackEveryLeg(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SplitCharge(ctx, treasurer, chargedomain.SplitChargeRequest{
		FlightID: flightID,
		Splits: []split.Target{
			{Type: split.TargetUser, ID: pilotID, Percentage: decimal.NewFromInt(50)},
			{Type: split.TargetUser, ID: inactiveID, Percentage: decimal.NewFromInt(50)},
		},
	})
	assert.ErrorIs(t, err, ownerdomain.ErrInactive)
	assert.Empty(t, f.entries(t, userRef(pilotID)))
	assert.False(t, dbtest.ReloadFlight(t, f.db, flightID).Charged)

	_, err = f.svc.SplitCharge(ctx, treasurer, chargedomain.SplitChargeRequest{
		FlightID: flightID,
		Splits: []split.Target{
			{Type: split.TargetUser, ID: pilotID, Percentage: decimal.NewFromInt(50)},
			{Type: split.TargetUser, ID: copilotID, Percentage: decimal.NewFromInt(45)},
		},
	})
	assert.ErrorIs(t, err, split.ErrPercentageSum)
	assert.Contains(t, err.Error(), "95%")
	assert.False(t, dbtest.ReloadFlight(t, f.db, flightID).Charged)
}

func TestReverseSingleChargeUnlocksFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.ChargeFlight(ctx, treasurer, chargedomain.SingleChargeRequest{FlightID: flightID, Owner: userRef(pilotID)})
	require.NoError(t, err)
	original := res.Transactions[0]

	rev, err := f.ledger.ReverseFlightCharge(ctx, treasurer, ownerdomain.TypeUser, original.ID)
	require.NoError(t, err)
	assert.True(t, rev.Reversal.Amount.Equal(decimal.NewFromInt(225)))
	require.NotNil(t, rev.Reversal.ReversesID)
	assert.Equal(t, original.ID, *rev.Reversal.ReversesID)
	require.NotNil(t, rev.Original.ReversalID)
	assert.Equal(t, rev.Reversal.ID, *rev.Original.ReversalID)
	assert.True(t, rev.FlightUnlocked)

	flight := dbtest.ReloadFlight(t, f.db, flightID)
	assert.False(t, flight.Charged)
	assert.False(t, flight.Locked)

	_, err = f.svc.ChargeFlight(ctx, treasurer, chargedomain.SingleChargeRequest{FlightID: flightID, Owner: userRef(copilotID)})
	require.NoError(t, err)
}

func TestBatchChargeIsolatesFailures(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.BatchCharge(context.Background(), treasurer, []chargedomain.BatchItem{
		{FlightID: flightID, Owner: userRef(pilotID)},
		{FlightID: reviewFlight, Owner: userRef(pilotID)},
		{FlightID: otherFlight, Owner: userRef(inactiveID)},
		{FlightID: otherFlight, Owner: userRef(copilotID)},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.BatchID)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 2, res.FailedCount)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 1, res.Errors[0].Index)
	assert.Equal(t, reviewFlight, res.Errors[0].FlightID)
	assert.Equal(t, flightdomain.ErrNeedsBoardReview.Error(), res.Errors[0].Error)
	assert.Equal(t, 2, res.Errors[1].Index)

	assert.False(t, dbtest.ReloadFlight(t, f.db, reviewFlight).Charged)
	assert.True(t, dbtest.ReloadFlight(t, f.db, otherFlight).Charged)
	assert.Len(t, f.entries(t, userRef(copilotID)), 1)
}

func TestBatchChargeRejectsEmptyBatch(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.BatchCharge(context.Background(), treasurer, nil)
	assert.ErrorIs(t, err, chargedomain.ErrEmptyBatch)
}

func TestQuoteUsesDefaultTargetsWithoutWriting(t *testing.T) {
	f := newFixture(t)
	override := decimal.NewFromInt(100)

	quote, err := f.svc.Quote(context.Background(), chargedomain.QuoteRequest{FlightID: flightID, OverrideRate: &override})
	require.NoError(t, err)
	assert.True(t, quote.Quote.FlightAmount.Equal(decimal.NewFromInt(150)))
	assert.True(t, quote.Quote.CustomRate)
	require.Len(t, quote.Legs, 2)
	assert.Equal(t, pilotID, quote.Legs[0].Target.ID)
	assert.True(t, quote.Legs[0].PostedAmount.Equal(decimal.NewFromInt(90)))
	assert.True(t, quote.Legs[1].PostedAmount.Equal(decimal.NewFromInt(60)))
	assert.Contains(t, quote.Legs[0].Description, "(custom rate)")

	assert.False(t, dbtest.ReloadFlight(t, f.db, flightID).Charged)
	assert.Empty(t, f.entries(t, userRef(pilotID)))
}
