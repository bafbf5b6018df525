package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type UnchargedFilter struct {
	LandedBefore *time.Time
	Limit        int
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Flight, error)
	FindAircraft(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Aircraft, error)
	FindOperationType(ctx context.Context, db *gorm.DB, id snowflake.ID) (*OperationType, error)
	// MarkCharged flips charged and locked only while the flight is uncharged
	// and not under board review. It reports whether a row changed.
	MarkCharged(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	MarkUncharged(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	ListUncharged(ctx context.Context, db *gorm.DB, filter UnchargedFilter) ([]*Flight, error)
}
