package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/flightclub/internal/ledger/domain"
	ownerdomain "github.com/smallbiznis/flightclub/internal/owner/domain"
	"gorm.io/gorm"
)

const excludeReversalPairs = ` AND reversed_at IS NULL AND reverses_transaction_id IS NULL`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type row struct {
	ID                    snowflake.ID
	OwnerID               snowflake.ID
	Kind                  string
	Amount                decimal.Decimal
	Description           string
	CreatedAt             time.Time
	InsertedAt            time.Time
	FlightlogID           *snowflake.ID
	ReversedAt            *time.Time
	ReversedBy            *string
	ReversalTransactionID *snowflake.ID
	ReversesTransactionID *snowflake.ID
}

func (r row) toEntry(ownerType ownerdomain.Type) *domain.Entry {
	return &domain.Entry{
		ID:          r.ID,
		Owner:       ownerdomain.Ref{Type: ownerType, ID: r.OwnerID},
		Kind:        domain.Kind(r.Kind),
		Amount:      r.Amount,
		Description: r.Description,
		CreatedAt:   r.CreatedAt.UTC(),
		InsertedAt:  r.InsertedAt.UTC(),
		FlightID:    r.FlightlogID,
		ReversedAt:  utcPtr(r.ReversedAt),
		ReversedBy:  r.ReversedBy,
		ReversalID:  r.ReversalTransactionID,
		ReversesID:  r.ReversesTransactionID,
	}
}

func selectColumns(table domain.Table) string {
	return `SELECT id, ` + table.OwnerColumn + ` AS owner_id, kind, amount, description,
		created_at, inserted_at, flightlog_id, reversed_at, reversed_by,
		reversal_transaction_id, reverses_transaction_id
		FROM ` + table.Name
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.Entry) error {
	if entry == nil {
		return nil
	}
	table, err := domain.TableFor(entry.Owner.Type)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO `+table.Name+` (
			id, `+table.OwnerColumn+`, kind, amount, description, created_at, inserted_at,
			flightlog_id, reversed_at, reversed_by, reversal_transaction_id, reverses_transaction_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Owner.ID,
		string(entry.Kind),
		entry.Amount,
		entry.Description,
		entry.CreatedAt.UTC(),
		entry.InsertedAt.UTC(),
		entry.FlightID,
		entry.ReversedAt,
		entry.ReversedBy,
		entry.ReversalID,
		entry.ReversesID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, ownerType ownerdomain.Type, id snowflake.ID) (*domain.Entry, error) {
	table, err := domain.TableFor(ownerType)
	if err != nil {
		return nil, err
	}
	var rec row
	if err := db.WithContext(ctx).Raw(selectColumns(table)+` WHERE id = ?`, id).Scan(&rec).Error; err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		return nil, nil
	}
	return rec.toEntry(ownerType), nil
}

func (r *repo) MarkReversed(ctx context.Context, db *gorm.DB, ownerType ownerdomain.Type, id, reversalID snowflake.ID, at time.Time, by string) (bool, error) {
	table, err := domain.TableFor(ownerType)
	if err != nil {
		return false, err
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE `+table.Name+`
		 SET reversed_at = ?, reversed_by = ?, reversal_transaction_id = ?
		 WHERE id = ?`+excludeReversalPairs,
		at.UTC(),
		by,
		reversalID,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) UpdateDetails(ctx context.Context, db *gorm.DB, ownerType ownerdomain.Type, id snowflake.ID, description *string, createdAt *time.Time) error {
	table, err := domain.TableFor(ownerType)
	if err != nil {
		return err
	}
	updates := map[string]any{}
	if description != nil {
		updates["description"] = *description
	}
	if createdAt != nil {
		updates["created_at"] = createdAt.UTC()
	}
	if len(updates) == 0 {
		return nil
	}
	return db.WithContext(ctx).Table(table.Name).Where("id = ?", id).Updates(updates).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Entry, error) {
	table, err := domain.TableFor(filter.Owner.Type)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString(selectColumns(table))
	b.WriteString(` WHERE ` + table.OwnerColumn + ` = ?`)
	args := []any{filter.Owner.ID}
	if filter.Cursor != nil {
		b.WriteString(` AND (created_at < ? OR (created_at = ? AND id < ?))`)
		args = append(args, filter.Cursor.CreatedAt.UTC(), filter.Cursor.CreatedAt.UTC(), filter.Cursor.ID)
	}
	b.WriteString(` ORDER BY created_at DESC, id DESC`)
	if filter.Limit > 0 {
		b.WriteString(fmt.Sprintf(` LIMIT %d`, filter.Limit))
	}

	var rows []row
	if err := db.WithContext(ctx).Raw(b.String(), args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]*domain.Entry, 0, len(rows))
	for _, rec := range rows {
		entries = append(entries, rec.toEntry(filter.Owner.Type))
	}
	return entries, nil
}

func (r *repo) Sum(ctx context.Context, db *gorm.DB, filter domain.SumFilter) (decimal.Decimal, error) {
	table, err := domain.TableFor(filter.Owner.Type)
	if err != nil {
		return decimal.Zero, err
	}

	query := `SELECT COALESCE(SUM(amount), 0) AS total FROM ` + table.Name + ` WHERE ` + table.OwnerColumn + ` = ?`
	args := []any{filter.Owner.ID}
	if filter.OlderThan != nil {
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, filter.OlderThan.CreatedAt.UTC(), filter.OlderThan.CreatedAt.UTC(), filter.OlderThan.ID)
	}
	if filter.ExcludeReversalPairs {
		query += excludeReversalPairs
	}

	var out struct {
		Total decimal.Decimal
	}
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&out).Error; err != nil {
		return decimal.Zero, err
	}
	return out.Total.Round(2), nil
}

func (r *repo) Totals(ctx context.Context, db *gorm.DB, ownerType ownerdomain.Type, exclude bool) (map[snowflake.ID]decimal.Decimal, error) {
	table, err := domain.TableFor(ownerType)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + table.OwnerColumn + ` AS owner_id, COALESCE(SUM(amount), 0) AS total
		FROM ` + table.Name + ` WHERE 1 = 1`
	if exclude {
		query += excludeReversalPairs
	}
	query += ` GROUP BY ` + table.OwnerColumn

	var rows []struct {
		OwnerID snowflake.ID
		Total   decimal.Decimal
	}
	if err := db.WithContext(ctx).Raw(query).Scan(&rows).Error; err != nil {
		return nil, err
	}
	totals := make(map[snowflake.ID]decimal.Decimal, len(rows))
	for _, rec := range rows {
		totals[rec.OwnerID] = rec.Total.Round(2)
	}
	return totals, nil
}

func (r *repo) ActiveFlightCharges(ctx context.Context, db *gorm.DB, ownerType ownerdomain.Type, flightID snowflake.ID) ([]*domain.Entry, error) {
	table, err := domain.TableFor(ownerType)
	if err != nil {
		return nil, err
	}
	var rows []row
	if err := db.WithContext(ctx).Raw(
		selectColumns(table)+` WHERE flightlog_id = ?`+excludeReversalPairs+` ORDER BY id`,
		flightID,
	).Scan(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]*domain.Entry, 0, len(rows))
	for _, rec := range rows {
		entries = append(entries, rec.toEntry(ownerType))
	}
	return entries, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
