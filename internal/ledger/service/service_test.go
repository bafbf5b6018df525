package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/flightclub/internal/actor"
	auditdomain "github.com/smallbiznis/flightclub/internal/audit/domain"
	auditrepository "github.com/smallbiznis/flightclub/internal/audit/repository"
	auditservice "github.com/smallbiznis/flightclub/internal/audit/service"
	"github.com/smallbiznis/flightclub/internal/clock"
	"github.com/smallbiznis/flightclub/internal/config"
	"github.com/smallbiznis/flightclub/internal/dbtest"
	flightrepository "github.com/smallbiznis/flightclub/internal/flight/repository"
	ledgerdomain "github.com/smallbiznis/flightclub/internal/ledger/domain"
	ledgerrepository "github.com/smallbiznis/flightclub/internal/ledger/repository"
	ownerdomain "github.com/smallbiznis/flightclub/internal/owner/domain"
	ownerrepository "github.com/smallbiznis/flightclub/internal/owner/repository"
	ownerservice "github.com/smallbiznis/flightclub/internal/owner/service"
	"github.com/smallbiznis/flightclub/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const (
	userID       snowflake.ID = 1001
	inactiveID   snowflake.ID = 1002
	costCenterID snowflake.ID = 2001
	aircraftID   snowflake.ID = 3001
	flightID     snowflake.ID = 4001
)

var treasurer = actor.User("77", actor.RoleTreasurer)

type fixture struct {
	db    *gorm.DB
	clock *clock.FakeClock
	svc   ledgerdomain.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Open(t)
	log := zaptest.NewLogger(t)
	node := dbtest.Node(t)
	clk := clock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	dbtest.CreateUser(t, db, userID, "Anna", true)
	dbtest.CreateUser(t, db, inactiveID, "Bert", false)
	dbtest.CreateCostCenter(t, db, costCenterID, "Training", true)

	audit := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Repo: auditrepository.Provide(), Clock: clk})
	owners := ownerservice.New(ownerservice.Params{DB: db, Log: log, Repo: ownerrepository.Provide()})
	svc := NewService(Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Repo:     ledgerrepository.Provide(),
		Owners:   owners,
		Flights:  flightrepository.Provide(),
		Billing:  config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		Clock:    clk,
		AuditSvc: audit,
	})
	return fixture{db: db, clock: clk, svc: svc}
}

func user() ownerdomain.Ref {
	return ownerdomain.Ref{Type: ownerdomain.TypeUser, ID: userID}
}

func costCenter() ownerdomain.Ref {
	return ownerdomain.Ref{Type: ownerdomain.TypeCostCenter, ID: costCenterID}
}

func (f fixture) add(t *testing.T, owner ownerdomain.Ref, kind ledgerdomain.Kind, amount string) ledgerdomain.Entry {
	t.Helper()
	entry, err := f.svc.AddManual(context.Background(), treasurer, ledgerdomain.ManualEntryRequest{
		Owner:       owner,
		Kind:        kind,
		Amount:      decimal.RequireFromString(amount),
		Description: string(kind) + " " + amount,
	})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	return entry
}

func (f fixture) auditCount(t *testing.T, action string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Where("action = ?", action).Count(&n).Error)
	return n
}

func TestAddManualAppliesKindSign(t *testing.T) {
	f := newFixture(t)

	payment := f.add(t, user(), ledgerdomain.KindPayment, "-100")
	assert.True(t, payment.Amount.Equal(decimal.NewFromInt(100)))

	charge := f.add(t, user(), ledgerdomain.KindCharge, "40")
	assert.True(t, charge.Amount.Equal(decimal.NewFromInt(-40)))

	adjustment := f.add(t, user(), ledgerdomain.KindAdjustment, "-2.50")
	assert.True(t, adjustment.Amount.Equal(decimal.RequireFromString("-2.5")))

	credit := f.add(t, costCenter(), ledgerdomain.KindCredit, "80")
	assert.True(t, credit.Amount.Equal(decimal.NewFromInt(80)))

	assert.Equal(t, int64(4), f.auditCount(t, auditdomain.ActionEntryCreated))
}

func TestAddManualRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  ledgerdomain.ManualEntryRequest
		want error
	}{
		{"zero amount", ledgerdomain.ManualEntryRequest{Owner: user(), Kind: ledgerdomain.KindPayment, Amount: decimal.Zero, Description: "x"}, ledgerdomain.ErrInvalidAmount},
		{"blank description", ledgerdomain.ManualEntryRequest{Owner: user(), Kind: ledgerdomain.KindPayment, Amount: decimal.NewFromInt(1), Description: "  "}, ledgerdomain.ErrInvalidDescription},
		{"credit on user", ledgerdomain.ManualEntryRequest{Owner: user(), Kind: ledgerdomain.KindCredit, Amount: decimal.NewFromInt(1), Description: "x"}, ledgerdomain.ErrInvalidKind},
		{"flight charge by hand", ledgerdomain.ManualEntryRequest{Owner: user(), Kind: ledgerdomain.KindFlightCharge, Amount: decimal.NewFromInt(1), Description: "x"}, ledgerdomain.ErrInvalidKind},
		{"unknown owner", ledgerdomain.ManualEntryRequest{Owner: ownerdomain.Ref{Type: ownerdomain.TypeUser, ID: 9}, Kind: ledgerdomain.KindPayment, Amount: decimal.NewFromInt(1), Description: "x"}, ownerdomain.ErrNotFound},
		{"inactive owner", ledgerdomain.ManualEntryRequest{Owner: ownerdomain.Ref{Type: ownerdomain.TypeUser, ID: inactiveID}, Kind: ledgerdomain.KindPayment, Amount: decimal.NewFromInt(1), Description: "x"}, ownerdomain.ErrInactive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.AddManual(ctx, treasurer, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := f.svc.AddManual(ctx, actor.Actor{}, ledgerdomain.ManualEntryRequest{Owner: user(), Kind: ledgerdomain.KindPayment, Amount: decimal.NewFromInt(1), Description: "x"})
	assert.ErrorIs(t, err, actor.ErrInvalidActor)
}

func TestReverseCreatesLinkedOpposite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	charge := f.add(t, user(), ledgerdomain.KindCharge, "40")

	res, err := f.svc.Reverse(ctx, treasurer, ownerdomain.TypeUser, charge.ID)
	require.NoError(t, err)

	assert.True(t, res.Reversal.Amount.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, ledgerdomain.KindReversal, res.Reversal.Kind)
	assert.Equal(t, "REVERSAL: charge 40", res.Reversal.Description)
	require.NotNil(t, res.Reversal.ReversesID)
	assert.Equal(t, charge.ID, *res.Reversal.ReversesID)
	assert.False(t, res.FlightUnlocked)

	stored, err := f.svc.Get(ctx, ownerdomain.TypeUser, charge.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReversedAt)
	require.NotNil(t, stored.ReversalID)
	assert.Equal(t, res.Reversal.ID, *stored.ReversalID)
	require.NotNil(t, stored.ReversedBy)
	assert.Equal(t, "77", *stored.ReversedBy)
	assert.Equal(t, int64(1), f.auditCount(t, auditdomain.ActionEntryReversed))
}

func TestReverseIsNotRepeatable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	charge := f.add(t, user(), ledgerdomain.KindCharge, "40")

	res, err := f.svc.Reverse(ctx, treasurer, ownerdomain.TypeUser, charge.ID)
	require.NoError(t, err)

	_, err = f.svc.Reverse(ctx, treasurer, ownerdomain.TypeUser, charge.ID)
	assert.ErrorIs(t, err, ledgerdomain.ErrAlreadyReversed)

	_, err = f.svc.Reverse(ctx, treasurer, ownerdomain.TypeUser, res.Reversal.ID)
	assert.ErrorIs(t, err, ledgerdomain.ErrIsReversal)

	_, err = f.svc.Reverse(ctx, treasurer, ownerdomain.TypeUser, 999)
	assert.ErrorIs(t, err, ledgerdomain.ErrNotFound)

	_, err = f.svc.Reverse(ctx, treasurer, ownerdomain.TypeCostCenter, charge.ID)
	assert.ErrorIs(t, err, ledgerdomain.ErrNotFound)

	history, err := f.svc.History(ctx, user())
	require.NoError(t, err)
	assert.Len(t, history.Transactions, 2)
}

func TestReverseFlightChargeUnlocksWhenNoLegsRemain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dbtest.CreateAircraft(t, f.db, aircraftID, "D-EABC", "150", "hour")
	dbtest.CreateFlight(t, f.db, flightID, aircraftID, userID, f.clock.Now().Add(-3*time.Hour), 90)

	var legs []ledgerdomain.Entry
	err := f.db.Transaction(func(tx *gorm.DB) error {
		marked, err := flightrepository.Provide().MarkCharged(ctx, tx, flightID, f.clock.Now())
		if err != nil {
			return err
		}
		require.True(t, marked)
		for _, owner := range []ownerdomain.Ref{user(), costCenter()} {
			leg, err := f.svc.PostTx(ctx, tx, treasurer, ledgerdomain.PostRequest{
				Owner: owner, Amount: decimal.RequireFromString("112.50"), Description: "D-EABC", FlightID: flightID,
			})
			if err != nil {
				return err
			}
			legs = append(legs, leg)
		}
		return nil
	})
	require.NoError(t, err)
	assert.True(t, legs[0].Amount.Equal(decimal.RequireFromString("-112.5")))

	res, err := f.svc.ReverseFlightCharge(ctx, treasurer, ownerdomain.TypeUser, legs[0].ID)
	require.NoError(t, err)
	assert.False(t, res.FlightUnlocked)
	require.NotNil(t, res.Reversal.FlightID)
	assert.Equal(t, flightID, *res.Reversal.FlightID)
	assert.True(t, dbtest.ReloadFlight(t, f.db, flightID).Charged)

	res, err = f.svc.ReverseFlightCharge(ctx, treasurer, ownerdomain.TypeCostCenter, legs[1].ID)
	require.NoError(t, err)
	assert.True(t, res.FlightUnlocked)

	flight := dbtest.ReloadFlight(t, f.db, flightID)
	assert.False(t, flight.Charged)
	assert.False(t, flight.Locked)
	assert.Equal(t, int64(1), f.auditCount(t, auditdomain.ActionFlightUnlocked))
}

func TestEditGraceWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.add(t, user(), ledgerdomain.KindPayment, "50")

	newDate := time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC)
	edited, err := f.svc.Edit(ctx, treasurer, ownerdomain.TypeUser, entry.ID, ledgerdomain.EditRequest{CreatedAt: &newDate})
	require.NoError(t, err)
	assert.True(t, edited.CreatedAt.Equal(newDate))

	f.clock.Advance(2 * time.Hour)

	_, err = f.svc.Edit(ctx, treasurer, ownerdomain.TypeUser, entry.ID, ledgerdomain.EditRequest{CreatedAt: &newDate})
	assert.ErrorIs(t, err, ledgerdomain.ErrEditWindowClosed)

	desc := "bank transfer"
	edited, err = f.svc.Edit(ctx, treasurer, ownerdomain.TypeUser, entry.ID, ledgerdomain.EditRequest{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, desc, edited.Description)

	stored, err := f.svc.Get(ctx, ownerdomain.TypeUser, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, desc, stored.Description)
	assert.True(t, stored.CreatedAt.Equal(newDate))
	assert.True(t, stored.Amount.Equal(decimal.NewFromInt(50)))

	blank := " "
	_, err = f.svc.Edit(ctx, treasurer, ownerdomain.TypeUser, entry.ID, ledgerdomain.EditRequest{Description: &blank})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidDescription)

	_, err = f.svc.Edit(ctx, treasurer, ownerdomain.TypeUser, entry.ID, ledgerdomain.EditRequest{})
	assert.ErrorIs(t, err, ledgerdomain.ErrNothingToEdit)
	assert.Equal(t, int64(2), f.auditCount(t, auditdomain.ActionEntryEdited))
}

func TestUserBalanceIncludesReversalPairs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.add(t, user(), ledgerdomain.KindPayment, "100")
	charge := f.add(t, user(), ledgerdomain.KindCharge, "40")
	f.add(t, user(), ledgerdomain.KindCharge, "40")
	_, err := f.svc.Reverse(ctx, treasurer, ownerdomain.TypeUser, charge.ID)
	require.NoError(t, err)

	history, err := f.svc.History(ctx, user())
	require.NoError(t, err)
	assert.True(t, history.Balance.Equal(decimal.NewFromInt(60)), history.Balance.String())
	require.Len(t, history.Transactions, 4)
	assert.True(t, history.Transactions[0].RunningBalance.Equal(decimal.NewFromInt(60)))

	balances, err := f.svc.Balances(ctx, ownerdomain.TypeUser)
	require.NoError(t, err)
	found := false
	for _, b := range balances {
		if b.Account.Ref.ID == userID {
			found = true
			assert.True(t, b.Balance.Equal(decimal.NewFromInt(60)))
		}
	}
	assert.True(t, found)
}

func TestCostCenterBalanceSkipsReversalPairs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.add(t, costCenter(), ledgerdomain.KindCredit, "500")
	charge := f.add(t, costCenter(), ledgerdomain.KindCharge, "200")
	_, err := f.svc.Reverse(ctx, treasurer, ownerdomain.TypeCostCenter, charge.ID)
	require.NoError(t, err)

	history, err := f.svc.History(ctx, costCenter())
	require.NoError(t, err)
	assert.True(t, history.Balance.Equal(decimal.NewFromInt(500)))
	for _, line := range history.Transactions {
		if line.ID == charge.ID || line.IsReversal() {
			assert.False(t, line.Counted)
		}
	}
}

func TestListPaginatesWithConsistentRunningBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.add(t, user(), ledgerdomain.KindPayment, "10")
	}

	first, err := f.svc.List(ctx, ledgerdomain.ListRequest{Owner: user(), Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.Transactions, 2)
	assert.True(t, first.HasMore)
	assert.True(t, first.Balance.Equal(decimal.NewFromInt(50)))
	assert.True(t, first.Transactions[0].RunningBalance.Equal(decimal.NewFromInt(50)))
	assert.True(t, first.Transactions[1].RunningBalance.Equal(decimal.NewFromInt(40)))

	second, err := f.svc.List(ctx, ledgerdomain.ListRequest{Owner: user(), Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.Transactions, 2)
	assert.True(t, second.Transactions[0].RunningBalance.Equal(decimal.NewFromInt(30)))
	assert.True(t, second.Transactions[1].RunningBalance.Equal(decimal.NewFromInt(20)))

	third, err := f.svc.List(ctx, ledgerdomain.ListRequest{Owner: user(), Pagination: pagination.Pagination{PageSize: 2, PageToken: second.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, third.Transactions, 1)
	assert.False(t, third.HasMore)
	assert.True(t, third.Transactions[0].RunningBalance.Equal(decimal.NewFromInt(10)))

	_, err = f.svc.List(ctx, ledgerdomain.ListRequest{Owner: user(), Pagination: pagination.Pagination{PageToken: "%%%"}})
	assert.ErrorIs(t, err, pagination.ErrInvalidPageToken)
}
