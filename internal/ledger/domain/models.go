package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ownerdomain "github.com/smallbiznis/flightclub/internal/owner/domain"
)

// Kind records how an entry came to exist.
type Kind string

const (
	KindPayment      Kind = "payment"
	KindCredit       Kind = "credit"
	KindCharge       Kind = "charge"
	KindAdjustment   Kind = "adjustment"
	KindFlightCharge Kind = "flight_charge"
	KindReversal     Kind = "reversal"
)

// Entry is a ledger row for either owner type. Amount is signed: positive
// increases the balance, negative is a charge.
type Entry struct {
	ID          snowflake.ID    `json:"id"`
	Owner       ownerdomain.Ref `json:"owner"`
	Kind        Kind            `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
	InsertedAt  time.Time       `json:"inserted_at"`
	FlightID    *snowflake.ID   `json:"flightlog_id,omitempty"`
	ReversedAt  *time.Time      `json:"reversed_at,omitempty"`
	ReversedBy  *string         `json:"reversed_by,omitempty"`
	ReversalID  *snowflake.ID   `json:"reversal_transaction_id,omitempty"`
	ReversesID  *snowflake.ID   `json:"reverses_transaction_id,omitempty"`
}

func (e Entry) IsReversal() bool {
	return e.ReversesID != nil && *e.ReversesID != 0
}

func (e Entry) IsReversed() bool {
	return e.ReversedAt != nil
}

// Reversible fails for reversed originals and for reversals themselves.
func (e Entry) Reversible() error {
	if e.IsReversal() {
		return ErrIsReversal
	}
	if e.IsReversed() {
		return ErrAlreadyReversed
	}
	return nil
}

// Variant is the kind-specific view of an entry.
type Variant interface {
	variant()
}

type ManualEntry struct {
	Kind Kind
}

type FlightCharge struct {
	FlightID snowflake.ID
}

type Reversal struct {
	OriginalID snowflake.ID
	FlightID   *snowflake.ID
}

func (ManualEntry) variant()  {}
func (FlightCharge) variant() {}
func (Reversal) variant()     {}

// Variant classifies the entry. Reversals take precedence over flight links.
func (e Entry) Variant() Variant {
	switch {
	case e.IsReversal():
		return Reversal{OriginalID: *e.ReversesID, FlightID: e.FlightID}
	case e.FlightID != nil && *e.FlightID != 0:
		return FlightCharge{FlightID: *e.FlightID}
	default:
		return ManualEntry{Kind: e.Kind}
	}
}

// TransactionColumns is the column set shared by both transaction tables.
type TransactionColumns struct {
	ID                    snowflake.ID    `gorm:"primaryKey"`
	Kind                  string          `gorm:"type:text;not null;default:'adjustment'"`
	Amount                decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Description           string          `gorm:"type:text;not null"`
	CreatedAt             time.Time       `gorm:"not null;index"`
	InsertedAt            time.Time       `gorm:"not null"`
	FlightlogID           *snowflake.ID   `gorm:"index"`
	ReversedAt            *time.Time
	ReversedBy            *string `gorm:"type:text"`
	ReversalTransactionID *snowflake.ID
	ReversesTransactionID *snowflake.ID `gorm:"uniqueIndex"`
}

// UserTransaction is the user_transactions table.
type UserTransaction struct {
	TransactionColumns `gorm:"embedded"`
	UserID             snowflake.ID `gorm:"not null;index"`
}

func (UserTransaction) TableName() string { return "user_transactions" }

// CostCenterTransaction is the cost_center_transactions table.
type CostCenterTransaction struct {
	TransactionColumns `gorm:"embedded"`
	CostCenterID       snowflake.ID `gorm:"not null;index"`
}

func (CostCenterTransaction) TableName() string { return "cost_center_transactions" }

// Table names the physical table and owner column for an owner type.
type Table struct {
	Name        string
	OwnerColumn string
}

var tables = map[ownerdomain.Type]Table{
	ownerdomain.TypeUser:       {Name: "user_transactions", OwnerColumn: "user_id"},
	ownerdomain.TypeCostCenter: {Name: "cost_center_transactions", OwnerColumn: "cost_center_id"},
}

func TableFor(t ownerdomain.Type) (Table, error) {
	table, ok := tables[t]
	if !ok {
		return Table{}, ownerdomain.ErrInvalidType
	}
	return table, nil
}

// Models returns the gorm models backing the ledger.
func Models() []any {
	return []any{&UserTransaction{}, &CostCenterTransaction{}}
}
