package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/flightclub/internal/actor"
	auditdomain "github.com/smallbiznis/flightclub/internal/audit/domain"
	"github.com/smallbiznis/flightclub/internal/clock"
	"github.com/smallbiznis/flightclub/internal/config"
	flightdomain "github.com/smallbiznis/flightclub/internal/flight/domain"
	"github.com/smallbiznis/flightclub/internal/ledger/balance"
	ledgerdomain "github.com/smallbiznis/flightclub/internal/ledger/domain"
	"github.com/smallbiznis/flightclub/internal/lock"
	"github.com/smallbiznis/flightclub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/flightclub/internal/observability/metrics"
	ownerdomain "github.com/smallbiznis/flightclub/internal/owner/domain"
	"github.com/smallbiznis/flightclub/pkg/db"
	"github.com/smallbiznis/flightclub/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       ledgerdomain.Repository
	Owners     ownerdomain.Service
	Flights    flightdomain.Repository
	Billing    *config.BillingConfigHolder
	Clock      clock.Clock
	AuditSvc   auditdomain.Service `optional:"true"`
	Locker     lock.FlightLocker   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       ledgerdomain.Repository
	owners     ownerdomain.Service
	flights    flightdomain.Repository
	billing    *config.BillingConfigHolder
	clock      clock.Clock
	auditSvc   auditdomain.Service
	locker     lock.FlightLocker
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	locker := p.Locker
	if locker == nil {
		locker = lock.Noop()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		owners:     p.Owners,
		flights:    p.Flights,
		billing:    p.Billing,
		clock:      p.Clock,
		auditSvc:   p.AuditSvc,
		locker:     locker,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) AddManual(ctx context.Context, by actor.Actor, req ledgerdomain.ManualEntryRequest) (ledgerdomain.Entry, error) {
	if err := by.Validate(); err != nil {
		return ledgerdomain.Entry{}, err
	}
	amount, err := signedAmount(req.Owner.Type, req.Kind, req.Amount)
	if err != nil {
		return ledgerdomain.Entry{}, err
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return ledgerdomain.Entry{}, ledgerdomain.ErrInvalidDescription
	}

	now := s.clock.Now().UTC()
	createdAt := now
	if req.CreatedAt != nil {
		if req.CreatedAt.IsZero() {
			return ledgerdomain.Entry{}, ledgerdomain.ErrInvalidCreatedAt
		}
		createdAt = req.CreatedAt.UTC()
	}

	entry := ledgerdomain.Entry{
		ID:          s.genID.Generate(),
		Owner:       req.Owner,
		Kind:        req.Kind,
		Amount:      amount,
		Description: description,
		CreatedAt:   createdAt,
		InsertedAt:  now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.owners.Resolve(ctx, tx, req.Owner); err != nil {
			return err
		}
		if err := s.repo.Insert(ctx, tx, &entry); err != nil {
			return err
		}
		return s.audit(ctx, tx, by, auditdomain.ActionEntryCreated, auditdomain.TargetTypeTransaction, entry.ID.String(), map[string]any{
			"owner":  entry.Owner.String(),
			"kind":   string(entry.Kind),
			"amount": entry.Amount.StringFixed(2),
		})
	})
	if err != nil {
		return ledgerdomain.Entry{}, err
	}

	s.obsMetrics.RecordLedgerEntry(ctx, string(entry.Owner.Type), string(entry.Kind))
	return entry, nil
}

func (s *Service) PostTx(ctx context.Context, tx *gorm.DB, by actor.Actor, req ledgerdomain.PostRequest) (ledgerdomain.Entry, error) {
	if err := by.Validate(); err != nil {
		return ledgerdomain.Entry{}, err
	}
	if req.FlightID == 0 {
		return ledgerdomain.Entry{}, ledgerdomain.ErrInvalidFlight
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return ledgerdomain.Entry{}, ledgerdomain.ErrInvalidDescription
	}
	if _, err := s.owners.Resolve(ctx, tx, req.Owner); err != nil {
		return ledgerdomain.Entry{}, err
	}

	now := s.clock.Now().UTC()
	createdAt := now
	if req.CreatedAt != nil && !req.CreatedAt.IsZero() {
		createdAt = req.CreatedAt.UTC()
	}
	flightID := req.FlightID
	entry := ledgerdomain.Entry{
		ID:          s.genID.Generate(),
		Owner:       req.Owner,
		Kind:        ledgerdomain.KindFlightCharge,
		Amount:      req.Amount.Abs().Round(2).Neg(),
		Description: description,
		CreatedAt:   createdAt,
		InsertedAt:  now,
		FlightID:    &flightID,
	}
	if err := s.repo.Insert(ctx, tx, &entry); err != nil {
		return ledgerdomain.Entry{}, err
	}
	if err := s.audit(ctx, tx, by, auditdomain.ActionEntryCreated, auditdomain.TargetTypeTransaction, entry.ID.String(), map[string]any{
		"owner":     entry.Owner.String(),
		"kind":      string(entry.Kind),
		"amount":    entry.Amount.StringFixed(2),
		"flight_id": flightID.String(),
	}); err != nil {
		return ledgerdomain.Entry{}, err
	}
	return entry, nil
}

func (s *Service) Get(ctx context.Context, ownerType ownerdomain.Type, id snowflake.ID) (ledgerdomain.Entry, error) {
	return s.load(ctx, s.db, ownerType, id)
}

func (s *Service) load(ctx context.Context, db *gorm.DB, ownerType ownerdomain.Type, id snowflake.ID) (ledgerdomain.Entry, error) {
	if id == 0 {
		return ledgerdomain.Entry{}, ledgerdomain.ErrInvalidID
	}
	if _, err := ledgerdomain.TableFor(ownerType); err != nil {
		return ledgerdomain.Entry{}, err
	}
	entry, err := s.repo.FindByID(ctx, db, ownerType, id)
	if err != nil {
		return ledgerdomain.Entry{}, err
	}
	if entry == nil {
		return ledgerdomain.Entry{}, ledgerdomain.ErrNotFound
	}
	return *entry, nil
}

func (s *Service) Reverse(ctx context.Context, by actor.Actor, ownerType ownerdomain.Type, id snowflake.ID) (ledgerdomain.ReverseResult, error) {
	return s.reverse(ctx, by, ownerType, id, false)
}

func (s *Service) ReverseFlightCharge(ctx context.Context, by actor.Actor, ownerType ownerdomain.Type, id snowflake.ID) (ledgerdomain.ReverseResult, error) {
	return s.reverse(ctx, by, ownerType, id, true)
}

func (s *Service) reverse(ctx context.Context, by actor.Actor, ownerType ownerdomain.Type, id snowflake.ID, unlockFlight bool) (ledgerdomain.ReverseResult, error) {
	if err := by.Validate(); err != nil {
		return ledgerdomain.ReverseResult{}, err
	}
	original, err := s.load(ctx, s.db, ownerType, id)
	if err != nil {
		return ledgerdomain.ReverseResult{}, err
	}
	if err := original.Reversible(); err != nil {
		return ledgerdomain.ReverseResult{}, err
	}

	var result ledgerdomain.ReverseResult
	run := func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res, err := s.reverseTx(ctx, tx, by, ownerType, id, unlockFlight)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
	}

	if original.FlightID != nil && *original.FlightID != 0 {
		err = s.locker.WithFlight(ctx, *original.FlightID, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return ledgerdomain.ReverseResult{}, err
	}

	s.obsMetrics.RecordReversal(ctx, string(ownerType), original.FlightID != nil)
	s.obsMetrics.RecordLedgerEntry(ctx, string(ownerType), string(ledgerdomain.KindReversal))
	logger.WithContext(ctx, s.log).Info("transaction reversed",
		logger.Owner(result.Original.Owner),
		zap.String("transaction_id", result.Original.ID.String()),
		zap.String("reversal_id", result.Reversal.ID.String()),
		zap.Bool("flight_unlocked", result.FlightUnlocked),
	)
	return result, nil
}

func (s *Service) reverseTx(ctx context.Context, tx *gorm.DB, by actor.Actor, ownerType ownerdomain.Type, id snowflake.ID, unlockFlight bool) (ledgerdomain.ReverseResult, error) {
	original, err := s.load(ctx, tx, ownerType, id)
	if err != nil {
		return ledgerdomain.ReverseResult{}, err
	}
	if err := original.Reversible(); err != nil {
		return ledgerdomain.ReverseResult{}, err
	}

	now := s.clock.Now().UTC()
	originalID := original.ID
	reversal := ledgerdomain.Entry{
		ID:          s.genID.Generate(),
		Owner:       original.Owner,
		Kind:        ledgerdomain.KindReversal,
		Amount:      original.Amount.Neg(),
		Description: s.billing.Get().ReversalPrefix + original.Description,
		CreatedAt:   now,
		InsertedAt:  now,
		FlightID:    original.FlightID,
		ReversesID:  &originalID,
	}
	if err := s.repo.Insert(ctx, tx, &reversal); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return ledgerdomain.ReverseResult{}, ledgerdomain.ErrAlreadyReversed
		}
		return ledgerdomain.ReverseResult{}, err
	}

	marked, err := s.repo.MarkReversed(ctx, tx, ownerType, original.ID, reversal.ID, now, by.ID)
	if err != nil {
		return ledgerdomain.ReverseResult{}, err
	}
	if !marked {
		return ledgerdomain.ReverseResult{}, ledgerdomain.ErrAlreadyReversed
	}

	reversedBy := by.ID
	reversalID := reversal.ID
	original.ReversedAt = &now
	original.ReversedBy = &reversedBy
	original.ReversalID = &reversalID

	if err := s.audit(ctx, tx, by, auditdomain.ActionEntryReversed, auditdomain.TargetTypeTransaction, original.ID.String(), map[string]any{
		"owner":       original.Owner.String(),
		"amount":      original.Amount.StringFixed(2),
		"reversal_id": reversal.ID.String(),
	}); err != nil {
		return ledgerdomain.ReverseResult{}, err
	}

	result := ledgerdomain.ReverseResult{Original: original, Reversal: reversal}
	if !unlockFlight || original.FlightID == nil || *original.FlightID == 0 {
		return result, nil
	}

	flightID := *original.FlightID
	remaining := 0
	for _, t := range []ownerdomain.Type{ownerdomain.TypeUser, ownerdomain.TypeCostCenter} {
		legs, err := s.repo.ActiveFlightCharges(ctx, tx, t, flightID)
		if err != nil {
			return ledgerdomain.ReverseResult{}, err
		}
		remaining += len(legs)
	}
	if remaining > 0 {
		return result, nil
	}

	unlocked, err := s.flights.MarkUncharged(ctx, tx, flightID, now)
	if err != nil {
		return ledgerdomain.ReverseResult{}, err
	}
	result.FlightUnlocked = unlocked
	if unlocked {
		if err := s.audit(ctx, tx, by, auditdomain.ActionFlightUnlocked, auditdomain.TargetTypeFlight, flightID.String(), map[string]any{
			"reversal_id": reversal.ID.String(),
		}); err != nil {
			return ledgerdomain.ReverseResult{}, err
		}
	}
	return result, nil
}

func (s *Service) Edit(ctx context.Context, by actor.Actor, ownerType ownerdomain.Type, id snowflake.ID, req ledgerdomain.EditRequest) (ledgerdomain.Entry, error) {
	if err := by.Validate(); err != nil {
		return ledgerdomain.Entry{}, err
	}
	if req.Description == nil && req.CreatedAt == nil {
		return ledgerdomain.Entry{}, ledgerdomain.ErrNothingToEdit
	}

	entry, err := s.load(ctx, s.db, ownerType, id)
	if err != nil {
		return ledgerdomain.Entry{}, err
	}

	var description *string
	if req.Description != nil {
		trimmed := strings.TrimSpace(*req.Description)
		if trimmed == "" {
			return ledgerdomain.Entry{}, ledgerdomain.ErrInvalidDescription
		}
		description = &trimmed
	}

	var createdAt *time.Time
	if req.CreatedAt != nil {
		if req.CreatedAt.IsZero() {
			return ledgerdomain.Entry{}, ledgerdomain.ErrInvalidCreatedAt
		}
		if s.clock.Now().Sub(entry.InsertedAt) >= s.billing.Get().EditGraceWindow {
			return ledgerdomain.Entry{}, ledgerdomain.ErrEditWindowClosed
		}
		at := req.CreatedAt.UTC()
		createdAt = &at
	}

	metadata := map[string]any{"owner": entry.Owner.String()}
	if description != nil {
		metadata["description_before"] = entry.Description
		metadata["description_after"] = *description
		entry.Description = *description
	}
	if createdAt != nil {
		metadata["created_at_before"] = entry.CreatedAt.Format(time.RFC3339)
		metadata["created_at_after"] = createdAt.Format(time.RFC3339)
		entry.CreatedAt = *createdAt
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpdateDetails(ctx, tx, ownerType, id, description, createdAt); err != nil {
			return err
		}
		return s.audit(ctx, tx, by, auditdomain.ActionEntryEdited, auditdomain.TargetTypeTransaction, id.String(), metadata)
	})
	if err != nil {
		return ledgerdomain.Entry{}, err
	}
	return entry, nil
}

func (s *Service) List(ctx context.Context, req ledgerdomain.ListRequest) (ledgerdomain.ListResponse, error) {
	account, err := s.owners.Get(ctx, req.Owner)
	if err != nil {
		return ledgerdomain.ListResponse{}, err
	}

	cursor, err := decodeCursor(req.PageToken)
	if err != nil {
		return ledgerdomain.ListResponse{}, err
	}

	limit := req.Pagination.Limit()
	items, err := s.repo.List(ctx, s.db, ledgerdomain.ListFilter{
		Owner:  req.Owner,
		Cursor: cursor,
		Limit:  limit + 1,
	})
	if err != nil {
		return ledgerdomain.ListResponse{}, err
	}
	items, pageInfo := pagination.BuildCursorPageInfo(items, limit, func(e *ledgerdomain.Entry) pagination.Cursor {
		return pagination.Cursor{ID: e.ID.String(), CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano)}
	})

	policy := balance.PolicyFor(req.Owner.Type)
	exclude := policy == balance.ExcludeReversalPairs

	opening := decimal.Zero
	if len(items) > 0 {
		last := items[len(items)-1]
		opening, err = s.repo.Sum(ctx, s.db, ledgerdomain.SumFilter{
			Owner:                req.Owner,
			OlderThan:            &ledgerdomain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID},
			ExcludeReversalPairs: exclude,
		})
		if err != nil {
			return ledgerdomain.ListResponse{}, err
		}
	}
	total, err := s.repo.Sum(ctx, s.db, ledgerdomain.SumFilter{Owner: req.Owner, ExcludeReversalPairs: exclude})
	if err != nil {
		return ledgerdomain.ListResponse{}, err
	}

	return ledgerdomain.ListResponse{
		PageInfo:     pageInfo,
		Account:      account,
		Balance:      total,
		Transactions: balance.Project(derefEntries(items), policy, opening),
	}, nil
}

func (s *Service) History(ctx context.Context, owner ownerdomain.Ref) (ledgerdomain.ListResponse, error) {
	account, err := s.owners.Get(ctx, owner)
	if err != nil {
		return ledgerdomain.ListResponse{}, err
	}
	items, err := s.repo.List(ctx, s.db, ledgerdomain.ListFilter{Owner: owner})
	if err != nil {
		return ledgerdomain.ListResponse{}, err
	}
	entries := derefEntries(items)
	policy := balance.PolicyFor(owner.Type)
	return ledgerdomain.ListResponse{
		Account:      account,
		Balance:      balance.Total(entries, policy),
		Transactions: balance.Project(entries, policy, decimal.Zero),
	}, nil
}

func (s *Service) Balances(ctx context.Context, ownerType ownerdomain.Type) ([]ledgerdomain.AccountBalance, error) {
	accounts, err := s.owners.List(ctx, ownerType)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.Totals(ctx, s.db, ownerType, balance.PolicyFor(ownerType) == balance.ExcludeReversalPairs)
	if err != nil {
		return nil, err
	}
	out := make([]ledgerdomain.AccountBalance, 0, len(accounts))
	for _, account := range accounts {
		total, ok := totals[account.Ref.ID]
		if !ok {
			total = decimal.Zero
		}
		out = append(out, ledgerdomain.AccountBalance{Account: account, Balance: total})
	}
	return out, nil
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, by actor.Actor, action, targetType, targetID string, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	return s.auditSvc.AuditLog(ctx, tx, by, action, targetType, targetID, metadata)
}

// signedAmount applies the sign implied by the entry kind.
func signedAmount(ownerType ownerdomain.Type, kind ledgerdomain.Kind, amount decimal.Decimal) (decimal.Decimal, error) {
	amount = amount.Round(2)
	if amount.IsZero() {
		return decimal.Zero, ledgerdomain.ErrInvalidAmount
	}
	switch kind {
	case ledgerdomain.KindPayment:
		if ownerType != ownerdomain.TypeUser {
			return decimal.Zero, ledgerdomain.ErrInvalidKind
		}
		return amount.Abs(), nil
	case ledgerdomain.KindCredit:
		if ownerType != ownerdomain.TypeCostCenter {
			return decimal.Zero, ledgerdomain.ErrInvalidKind
		}
		return amount.Abs(), nil
	case ledgerdomain.KindCharge:
		return amount.Abs().Neg(), nil
	case ledgerdomain.KindAdjustment:
		return amount, nil
	default:
		return decimal.Zero, ledgerdomain.ErrInvalidKind
	}
}

func decodeCursor(token string) (*ledgerdomain.Cursor, error) {
	decoded, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, err
	}
	if decoded == nil {
		return nil, nil
	}
	id, err := snowflake.ParseString(decoded.ID)
	if err != nil || id == 0 {
		return nil, pagination.ErrInvalidPageToken
	}
	at, err := decoded.Time()
	if err != nil {
		return nil, pagination.ErrInvalidPageToken
	}
	return &ledgerdomain.Cursor{CreatedAt: at, ID: id}, nil
}

func derefEntries(items []*ledgerdomain.Entry) []ledgerdomain.Entry {
	out := make([]ledgerdomain.Entry, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out
}

// IsValidationError reports input errors raised by this package.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ledgerdomain.ErrInvalidID, ledgerdomain.ErrInvalidAmount, ledgerdomain.ErrInvalidDescription,
		ledgerdomain.ErrInvalidKind, ledgerdomain.ErrInvalidCreatedAt, ledgerdomain.ErrInvalidFlight,
		ledgerdomain.ErrNothingToEdit,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
