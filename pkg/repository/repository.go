package repository

import (
	"context"

	"github.com/smallbiznis/flightclub/pkg/db/option"
)

// Repository is a thin generic gorm reader for reference tables.
type Repository[T any] interface {
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	// FindOne returns nil without error when nothing matches.
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
}
