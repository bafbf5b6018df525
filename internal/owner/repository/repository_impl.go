package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/flightclub/internal/owner/domain"
	"github.com/smallbiznis/flightclub/pkg/db/option"
	pkgrepo "github.com/smallbiznis/flightclub/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindUser(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	return pkgrepo.ProvideStore[domain.User](db).FindOne(ctx, &domain.User{ID: id})
}

func (r *repo) FindCostCenter(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.CostCenter, error) {
	return pkgrepo.ProvideStore[domain.CostCenter](db).FindOne(ctx, &domain.CostCenter{ID: id})
}

func (r *repo) ListUsers(ctx context.Context, db *gorm.DB) ([]*domain.User, error) {
	return pkgrepo.ProvideStore[domain.User](db).Find(ctx, &domain.User{}, option.WithOrder("name asc, id asc"))
}

func (r *repo) ListCostCenters(ctx context.Context, db *gorm.DB) ([]*domain.CostCenter, error) {
	return pkgrepo.ProvideStore[domain.CostCenter](db).Find(ctx, &domain.CostCenter{}, option.WithOrder("name asc, id asc"))
}
