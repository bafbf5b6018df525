package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ownerdomain "github.com/smallbiznis/flightclub/internal/owner/domain"
	"gorm.io/gorm"
)

// Cursor positions a newest-first listing after the given entry.
type Cursor struct {
	CreatedAt time.Time
	ID        snowflake.ID
}

type ListFilter struct {
	Owner  ownerdomain.Ref
	Cursor *Cursor
	Limit  int
}

// SumFilter selects entries for a balance sum. ExcludeReversalPairs drops
// reversed originals together with their reversals.
type SumFilter struct {
	Owner                ownerdomain.Ref
	OlderThan            *Cursor
	ExcludeReversalPairs bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *Entry) error
	FindByID(ctx context.Context, db *gorm.DB, ownerType ownerdomain.Type, id snowflake.ID) (*Entry, error)
	// MarkReversed links an original to its reversal. It reports false when
	// the original was already reversed or is itself a reversal.
	MarkReversed(ctx context.Context, db *gorm.DB, ownerType ownerdomain.Type, id, reversalID snowflake.ID, at time.Time, by string) (bool, error)
	UpdateDetails(ctx context.Context, db *gorm.DB, ownerType ownerdomain.Type, id snowflake.ID, description *string, createdAt *time.Time) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Entry, error)
	Sum(ctx context.Context, db *gorm.DB, filter SumFilter) (decimal.Decimal, error)
	Totals(ctx context.Context, db *gorm.DB, ownerType ownerdomain.Type, excludeReversalPairs bool) (map[snowflake.ID]decimal.Decimal, error)
	// ActiveFlightCharges returns unreversed, non-reversal entries of a flight.
	ActiveFlightCharges(ctx context.Context, db *gorm.DB, ownerType ownerdomain.Type, flightID snowflake.ID) ([]*Entry, error)
}
