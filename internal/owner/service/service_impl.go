package service

import (
	"context"

	"github.com/smallbiznis/flightclub/internal/owner/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("owner.service"),
		repo: p.Repo,
	}
}

func (s *Service) Resolve(ctx context.Context, db *gorm.DB, ref domain.Ref) (domain.Account, error) {
	account, err := s.load(ctx, db, ref)
	if err != nil {
		return domain.Account{}, err
	}
	if !account.Active {
		return domain.Account{}, domain.ErrInactive
	}
	return account, nil
}

func (s *Service) Get(ctx context.Context, ref domain.Ref) (domain.Account, error) {
	return s.load(ctx, s.db, ref)
}

func (s *Service) load(ctx context.Context, db *gorm.DB, ref domain.Ref) (domain.Account, error) {
	if ref.ID == 0 {
		return domain.Account{}, domain.ErrInvalidID
	}
	switch ref.Type {
	case domain.TypeUser:
		user, err := s.repo.FindUser(ctx, db, ref.ID)
		if err != nil {
			return domain.Account{}, err
		}
		if user == nil {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{Ref: ref, Name: user.Name, Active: user.Active}, nil
	case domain.TypeCostCenter:
		cc, err := s.repo.FindCostCenter(ctx, db, ref.ID)
		if err != nil {
			return domain.Account{}, err
		}
		if cc == nil {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{Ref: ref, Name: cc.Name, Active: cc.Active}, nil
	default:
		return domain.Account{}, domain.ErrInvalidType
	}
}

func (s *Service) List(ctx context.Context, ownerType domain.Type) ([]domain.Account, error) {
	switch ownerType {
	case domain.TypeUser:
		users, err := s.repo.ListUsers(ctx, s.db)
		if err != nil {
			return nil, err
		}
		out := make([]domain.Account, 0, len(users))
		for _, u := range users {
			out = append(out, domain.Account{
				Ref:    domain.Ref{Type: domain.TypeUser, ID: u.ID},
				Name:   u.Name,
				Active: u.Active,
			})
		}
		return out, nil
	case domain.TypeCostCenter:
		centers, err := s.repo.ListCostCenters(ctx, s.db)
		if err != nil {
			return nil, err
		}
		out := make([]domain.Account, 0, len(centers))
		for _, cc := range centers {
			out = append(out, domain.Account{
				Ref:    domain.Ref{Type: domain.TypeCostCenter, ID: cc.ID},
				Name:   cc.Name,
				Active: cc.Active,
			})
		}
		return out, nil
	default:
		return nil, domain.ErrInvalidType
	}
}
