package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/flightclub/internal/flight/domain"
	"gorm.io/gorm"
)

const flightColumns = `id, aircraft_id, pilot_id, copilot_id, operation_type_id,
	block_off_at, takeoff_at, landing_at, block_on_at, departure, destination,
	charged, locked, needs_board_review, default_cost_center_id,
	split_cost_with_copilot, pilot_cost_percentage, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Flight, error) {
	var flight domain.Flight
	err := db.WithContext(ctx).Raw(
		`SELECT `+flightColumns+` FROM flightlogs WHERE id = ?`,
		id,
	).Scan(&flight).Error
	if err != nil {
		return nil, err
	}
	if flight.ID == 0 {
		return nil, nil
	}
	return &flight, nil
}

func (r *repo) FindAircraft(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Aircraft, error) {
	var aircraft domain.Aircraft
	err := db.WithContext(ctx).Raw(
		`SELECT id, registration, default_rate, billing_unit, created_at
		 FROM aircraft WHERE id = ?`,
		id,
	).Scan(&aircraft).Error
	if err != nil {
		return nil, err
	}
	if aircraft.ID == 0 {
		return nil, nil
	}
	return &aircraft, nil
}

func (r *repo) FindOperationType(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.OperationType, error) {
	var opType domain.OperationType
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, rate, created_at FROM operation_types WHERE id = ?`,
		id,
	).Scan(&opType).Error
	if err != nil {
		return nil, err
	}
	if opType.ID == 0 {
		return nil, nil
	}
	return &opType, nil
}

func (r *repo) MarkCharged(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE flightlogs
		 SET charged = ?, locked = ?, updated_at = ?
		 WHERE id = ? AND charged = ? AND needs_board_review = ?`,
		true, true, now, id, false, false,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) MarkUncharged(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE flightlogs
		 SET charged = ?, locked = ?, updated_at = ?
		 WHERE id = ? AND charged = ?`,
		false, false, now, id, true,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) ListUncharged(ctx context.Context, db *gorm.DB, filter domain.UnchargedFilter) ([]*domain.Flight, error) {
	var flights []*domain.Flight
	stmt := db.WithContext(ctx).
		Model(&domain.Flight{}).
		Where("charged = ? AND needs_board_review = ?", false, false).
		Where("landing_at IS NOT NULL")
	if filter.LandedBefore != nil {
		stmt = stmt.Where("landing_at < ?", filter.LandedBefore.UTC())
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	if err := stmt.Order("takeoff_at asc, id asc").Find(&flights).Error; err != nil {
		return nil, err
	}
	return flights, nil
}
