package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/flightclub/internal/actor"
	ownerdomain "github.com/smallbiznis/flightclub/internal/owner/domain"
	"github.com/smallbiznis/flightclub/pkg/db/pagination"
	"gorm.io/gorm"
)

// ManualEntryRequest posts a payment, credit, charge or adjustment.
type ManualEntryRequest struct {
	Owner       ownerdomain.Ref
	Kind        Kind
	Amount      decimal.Decimal
	Description string
	CreatedAt   *time.Time
}

// PostRequest posts a flight charge leg inside a caller's transaction.
type PostRequest struct {
	Owner       ownerdomain.Ref
	Amount      decimal.Decimal
	Description string
	FlightID    snowflake.ID
	CreatedAt   *time.Time
}

type EditRequest struct {
	Description *string
	CreatedAt   *time.Time
}

type ReverseResult struct {
	Original       Entry `json:"original"`
	Reversal       Entry `json:"reversal"`
	FlightUnlocked bool  `json:"flight_unlocked"`
}

type ListRequest struct {
	pagination.Pagination
	Owner ownerdomain.Ref
}

// Line is an entry with the owner balance as of and including it.
type Line struct {
	Entry
	RunningBalance decimal.Decimal `json:"running_balance"`
	Counted        bool            `json:"counted"`
}

type ListResponse struct {
	pagination.PageInfo
	Account      ownerdomain.Account `json:"account"`
	Balance      decimal.Decimal     `json:"balance"`
	Transactions []Line              `json:"transactions"`
}

type AccountBalance struct {
	ownerdomain.Account
	Balance decimal.Decimal `json:"balance"`
}

type Service interface {
	AddManual(ctx context.Context, by actor.Actor, req ManualEntryRequest) (Entry, error)
	// PostTx inserts a flight charge leg on tx. The caller owns the transaction.
	PostTx(ctx context.Context, tx *gorm.DB, by actor.Actor, req PostRequest) (Entry, error)
	Get(ctx context.Context, ownerType ownerdomain.Type, id snowflake.ID) (Entry, error)
	Reverse(ctx context.Context, by actor.Actor, ownerType ownerdomain.Type, id snowflake.ID) (ReverseResult, error)
	ReverseFlightCharge(ctx context.Context, by actor.Actor, ownerType ownerdomain.Type, id snowflake.ID) (ReverseResult, error)
	Edit(ctx context.Context, by actor.Actor, ownerType ownerdomain.Type, id snowflake.ID, req EditRequest) (Entry, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	// History returns the full newest-first projection of an owner ledger.
	History(ctx context.Context, owner ownerdomain.Ref) (ListResponse, error)
	Balances(ctx context.Context, ownerType ownerdomain.Type) ([]AccountBalance, error)
}

var (
	ErrInvalidID          = errors.New("invalid_transaction_id")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidDescription = errors.New("invalid_description")
	ErrInvalidKind        = errors.New("invalid_transaction_kind")
	ErrInvalidCreatedAt   = errors.New("invalid_created_at")
	ErrInvalidFlight      = errors.New("invalid_flight_reference")
	ErrNotFound           = errors.New("transaction_not_found")
	ErrAlreadyReversed    = errors.New("already_reversed")
	ErrIsReversal         = errors.New("transaction_is_reversal")
	ErrNotFlightCharge    = errors.New("not_a_flight_charge")
	ErrEditWindowClosed   = errors.New("edit_window_closed")
	ErrNothingToEdit      = errors.New("nothing_to_edit")
)
