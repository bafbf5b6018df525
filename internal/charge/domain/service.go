package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/flightclub/internal/actor"
	"github.com/smallbiznis/flightclub/internal/billing/rate"
	"github.com/smallbiznis/flightclub/internal/billing/split"
	ledgerdomain "github.com/smallbiznis/flightclub/internal/ledger/domain"
	ownerdomain "github.com/smallbiznis/flightclub/internal/owner/domain"
)

const (
	ModeSingle = "single"
	ModeSplit  = "split"
	ModeBatch  = "batch"
)

// SingleChargeRequest charges a whole flight to one owner. A nil Amount is
// priced from the flight; an empty Description is generated.
type SingleChargeRequest struct {
	FlightID     snowflake.ID     `json:"flight_id"`
	Owner        ownerdomain.Ref  `json:"owner"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	Description  string           `json:"description,omitempty"`
	OverrideRate *decimal.Decimal `json:"override_rate,omitempty"`
	Fees         []rate.Fee       `json:"fees,omitempty"`
}

// SplitChargeRequest charges a flight to several owners. Nil amounts are
// priced from the flight and its fees.
type SplitChargeRequest struct {
	FlightID      snowflake.ID        `json:"flight_id"`
	Splits        []split.Target      `json:"splits"`
	FlightAmount  *decimal.Decimal    `json:"flight_amount,omitempty"`
	FeeAmount     *decimal.Decimal    `json:"fee_amount,omitempty"`
	Fees          []rate.Fee          `json:"fees,omitempty"`
	FeeAllocation split.FeeAllocation `json:"fee_allocation,omitempty"`
	FeeTargetType split.TargetType    `json:"fee_target_type,omitempty"`
	FeeTargetID   snowflake.ID        `json:"fee_target_id,omitempty"`
	Mode          split.Mode          `json:"mode,omitempty"`
	OverrideRate  *decimal.Decimal    `json:"override_rate,omitempty"`
}

type ChargeResult struct {
	FlightID     snowflake.ID         `json:"flight_id"`
	Total        decimal.Decimal      `json:"total"`
	Transactions []ledgerdomain.Entry `json:"transactions"`
}

type BatchItem = SingleChargeRequest

type BatchError struct {
	Index    int          `json:"index"`
	FlightID snowflake.ID `json:"flight_id"`
	Error    string       `json:"error"`
}

type BatchResult struct {
	BatchID      string       `json:"batch_id"`
	SuccessCount int          `json:"success_count"`
	FailedCount  int          `json:"failed_count"`
	Errors       []BatchError `json:"errors"`
}

// QuoteRequest previews a charge. Empty Splits use the flight's default
// targets.
type QuoteRequest struct {
	FlightID      snowflake.ID        `json:"flight_id"`
	OverrideRate  *decimal.Decimal    `json:"override_rate,omitempty"`
	Fees          []rate.Fee          `json:"fees,omitempty"`
	Splits        []split.Target      `json:"splits,omitempty"`
	Mode          split.Mode          `json:"mode,omitempty"`
	FeeAllocation split.FeeAllocation `json:"fee_allocation,omitempty"`
	FeeTargetType split.TargetType    `json:"fee_target_type,omitempty"`
	FeeTargetID   snowflake.ID        `json:"fee_target_id,omitempty"`
}

type QuoteLeg struct {
	split.Allocation
	Description string `json:"description"`
}

type QuoteResponse struct {
	FlightID         snowflake.ID `json:"flight_id"`
	TailNumber       string       `json:"tail_number"`
	Charged          bool         `json:"charged"`
	NeedsBoardReview bool         `json:"needs_board_review"`
	Currency         string       `json:"currency"`
	Quote            rate.Quote   `json:"quote"`
	Legs             []QuoteLeg   `json:"legs"`
}

type Service interface {
	ChargeFlight(ctx context.Context, by actor.Actor, req SingleChargeRequest) (ChargeResult, error)
	SplitCharge(ctx context.Context, by actor.Actor, req SplitChargeRequest) (ChargeResult, error)
	// BatchCharge runs each item as an independent single charge. Item
	// failures are reported in the result, never returned.
	BatchCharge(ctx context.Context, by actor.Actor, items []BatchItem) (BatchResult, error)
	Quote(ctx context.Context, req QuoteRequest) (QuoteResponse, error)
}

var (
	ErrEmptyBatch    = errors.New("empty_batch")
	ErrBatchTooLarge = errors.New("batch_too_large")
	ErrInvalidRate   = errors.New("invalid_override_rate")
)
