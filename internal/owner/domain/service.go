package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Service interface {
	// Resolve loads an account on db and fails unless it exists and is active.
	Resolve(ctx context.Context, db *gorm.DB, ref Ref) (Account, error)
	Get(ctx context.Context, ref Ref) (Account, error)
	List(ctx context.Context, ownerType Type) ([]Account, error)
}

var (
	ErrInvalidType = errors.New("invalid_owner_type")
	ErrInvalidID   = errors.New("invalid_owner_id")
	ErrNotFound    = errors.New("owner_not_found")
	ErrInactive    = errors.New("owner_inactive")
)
