package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindUser(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindCostCenter(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CostCenter, error)
	ListUsers(ctx context.Context, db *gorm.DB) ([]*User, error)
	ListCostCenters(ctx context.Context, db *gorm.DB) ([]*CostCenter, error)
}
