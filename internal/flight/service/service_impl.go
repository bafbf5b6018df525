package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/flightclub/internal/billing/rate"
	"github.com/smallbiznis/flightclub/internal/billing/split"
	"github.com/smallbiznis/flightclub/internal/flight/domain"
	"github.com/smallbiznis/flightclub/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxUnchargedPage = 500

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
		log:  p.Log.Named("flight.service"),
		repo: p.Repo,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Detail, error) {
	return s.Load(ctx, s.db, id)
}

func (s *Service) Load(ctx context.Context, db *gorm.DB, id snowflake.ID) (domain.Detail, error) {
	if id == 0 {
		return domain.Detail{}, domain.ErrInvalidID
	}
	flight, err := s.repo.FindByID(ctx, db, id)
	if err != nil {
		return domain.Detail{}, err
	}
	if flight == nil {
		return domain.Detail{}, domain.ErrNotFound
	}
	return s.detail(ctx, db, flight)
}

func (s *Service) detail(ctx context.Context, db *gorm.DB, flight *domain.Flight) (domain.Detail, error) {
	aircraft, err := s.repo.FindAircraft(ctx, db, flight.AircraftID)
	if err != nil {
		return domain.Detail{}, err
	}
	if aircraft == nil {
		return domain.Detail{}, domain.ErrAircraftNotFound
	}

	detail := domain.Detail{Flight: *flight, Aircraft: *aircraft}
	if flight.OperationTypeID != nil && *flight.OperationTypeID != 0 {
		opType, err := s.repo.FindOperationType(ctx, db, *flight.OperationTypeID)
		if err != nil {
			return domain.Detail{}, err
		}
		detail.OperationType = opType
	}
	return detail, nil
}

func (s *Service) Price(detail domain.Detail, override rate.Override, fees []rate.Fee) (rate.Quote, error) {
	return rate.Price(detail.Flight.FlightMinutes(), detail.Unit(), detail.RateSource(), override, fees)
}

func (s *Service) ListUncharged(ctx context.Context, req domain.ListUnchargedRequest) ([]domain.UnchargedFlight, error) {
	limit := req.Limit
	if limit <= 0 || limit > maxUnchargedPage {
		limit = maxUnchargedPage
	}

	flights, err := s.repo.ListUncharged(ctx, s.db, domain.UnchargedFilter{Limit: limit})
	if err != nil {
		return nil, err
	}

	out := make([]domain.UnchargedFlight, 0, len(flights))
	for _, flight := range flights {
		detail, err := s.detail(ctx, s.db, flight)
		if err != nil {
			s.log.Warn("skipping uncharged flight",
				logger.FlightID(flight.ID),
				zap.Error(err),
			)
			continue
		}
		quote, err := s.Price(detail, rate.Override{}, nil)
		if err != nil {
			s.log.Warn("skipping unpriceable flight",
				logger.FlightID(flight.ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, domain.UnchargedFlight{
			Detail:         detail,
			FlightMinutes:  quote.FlightMinutes,
			BlockMinutes:   flight.BlockMinutes(),
			Rate:           quote.Rate,
			Amount:         rate.Round2(quote.FlightAmount),
			DefaultTargets: split.DefaultTargets(flight.Parties()),
		})
	}
	return out, nil
}
