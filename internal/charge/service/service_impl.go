package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/flightclub/internal/actor"
	auditdomain "github.com/smallbiznis/flightclub/internal/audit/domain"
	"github.com/smallbiznis/flightclub/internal/billing/rate"
	"github.com/smallbiznis/flightclub/internal/billing/split"
	chargedomain "github.com/smallbiznis/flightclub/internal/charge/domain"
	"github.com/smallbiznis/flightclub/internal/clock"
	"github.com/smallbiznis/flightclub/internal/config"
	flightdomain "github.com/smallbiznis/flightclub/internal/flight/domain"
	ledgerdomain "github.com/smallbiznis/flightclub/internal/ledger/domain"
	"github.com/smallbiznis/flightclub/internal/lock"
	"github.com/smallbiznis/flightclub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/flightclub/internal/observability/metrics"
	ownerdomain "github.com/smallbiznis/flightclub/internal/owner/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Flights    flightdomain.Service
	FlightRepo flightdomain.Repository
	Ledger     ledgerdomain.Service
	Billing    *config.BillingConfigHolder
	Clock      clock.Clock
	AuditSvc   auditdomain.Service `optional:"true"`
	Locker     lock.FlightLocker   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	flights    flightdomain.Service
	flightRepo flightdomain.Repository
	ledger     ledgerdomain.Service
	billing    *config.BillingConfigHolder
	clock      clock.Clock
	auditSvc   auditdomain.Service
	locker     lock.FlightLocker
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) chargedomain.Service {
	locker := p.Locker
	if locker == nil {
		locker = lock.Noop()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("charge.service"),
		flights:    p.Flights,
		flightRepo: p.FlightRepo,
		ledger:     p.Ledger,
		billing:    p.Billing,
		clock:      p.Clock,
		auditSvc:   p.AuditSvc,
		locker:     locker,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) ChargeFlight(ctx context.Context, by actor.Actor, req chargedomain.SingleChargeRequest) (chargedomain.ChargeResult, error) {
	result, err := s.chargeFlight(ctx, by, req)
	s.obsMetrics.RecordCharge(ctx, chargedomain.ModeSingle, outcome(err), len(result.Transactions))
	return result, err
}

func (s *Service) chargeFlight(ctx context.Context, by actor.Actor, req chargedomain.SingleChargeRequest) (chargedomain.ChargeResult, error) {
	if err := by.Validate(); err != nil {
		return chargedomain.ChargeResult{}, err
	}
	if req.FlightID == 0 {
		return chargedomain.ChargeResult{}, flightdomain.ErrInvalidID
	}
	if err := validateOwner(req.Owner); err != nil {
		return chargedomain.ChargeResult{}, err
	}
	override, err := overrideFor(req.OverrideRate)
	if err != nil {
		return chargedomain.ChargeResult{}, err
	}

	var result chargedomain.ChargeResult
	err = s.locker.WithFlight(ctx, req.FlightID, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			detail, err := s.loadChargeable(ctx, tx, req.FlightID)
			if err != nil {
				return err
			}

			quote, quoteErr := s.flights.Price(detail, override, req.Fees)
			var amount decimal.Decimal
			switch {
			case req.Amount != nil:
				amount = rate.Round2(req.Amount.Abs())
			case quoteErr != nil:
				return quoteErr
			case !hasFlightTimes(detail.Flight):
				return flightdomain.ErrMissingFlightTimes
			default:
				amount = rate.Round2(quote.Total)
			}

			description := strings.TrimSpace(req.Description)
			if description == "" {
				description = s.describe(detail, quote, split.ModePercentage, split.FeeSplitEqually, req.Fees, split.Allocation{
					Target:       split.Target{Percentage: decimal.NewFromInt(100)},
					Minutes:      quote.FlightMinutes,
					FeeShare:     quote.FeeAmount,
					PostedAmount: amount,
				})
			}

			if err := s.markCharged(ctx, tx, req.FlightID); err != nil {
				return err
			}
			entry, err := s.ledger.PostTx(ctx, tx, by, ledgerdomain.PostRequest{
				Owner:       req.Owner,
				Amount:      amount,
				Description: description,
				FlightID:    req.FlightID,
			})
			if err != nil {
				return err
			}

			result = chargedomain.ChargeResult{
				FlightID:     req.FlightID,
				Total:        entry.Amount.Neg(),
				Transactions: []ledgerdomain.Entry{entry},
			}
			return s.audit(ctx, tx, by, auditdomain.ActionFlightCharged, auditdomain.TargetTypeFlight, req.FlightID.String(), map[string]any{
				"mode":           chargedomain.ModeSingle,
				"owner":          req.Owner.String(),
				"amount":         amount.StringFixed(2),
				"transaction_id": entry.ID.String(),
			})
		})
	})
	if err != nil {
		return chargedomain.ChargeResult{}, err
	}

	s.obsMetrics.RecordLedgerEntry(ctx, string(req.Owner.Type), string(ledgerdomain.KindFlightCharge))
	logger.WithContext(ctx, s.log).Info("flight charged",
		logger.FlightID(req.FlightID),
		logger.Owner(req.Owner),
		zap.String("amount", result.Total.StringFixed(2)),
	)
	return result, nil
}

func (s *Service) SplitCharge(ctx context.Context, by actor.Actor, req chargedomain.SplitChargeRequest) (chargedomain.ChargeResult, error) {
	result, err := s.splitCharge(ctx, by, req)
	s.obsMetrics.RecordCharge(ctx, chargedomain.ModeSplit, outcome(err), len(result.Transactions))
	return result, err
}

func (s *Service) splitCharge(ctx context.Context, by actor.Actor, req chargedomain.SplitChargeRequest) (chargedomain.ChargeResult, error) {
	if err := by.Validate(); err != nil {
		return chargedomain.ChargeResult{}, err
	}
	if req.FlightID == 0 {
		return chargedomain.ChargeResult{}, flightdomain.ErrInvalidID
	}
	if len(req.Splits) == 0 {
		return chargedomain.ChargeResult{}, split.ErrNoTargets
	}
	override, err := overrideFor(req.OverrideRate)
	if err != nil {
		return chargedomain.ChargeResult{}, err
	}

	var result chargedomain.ChargeResult
	err = s.locker.WithFlight(ctx, req.FlightID, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			detail, err := s.loadChargeable(ctx, tx, req.FlightID)
			if err != nil {
				return err
			}

			quote, allocs, err := s.allocate(detail, allocationRequest{
				override:      override,
				fees:          req.Fees,
				flightAmount:  req.FlightAmount,
				feeAmount:     req.FeeAmount,
				targets:       req.Splits,
				mode:          req.Mode,
				feeAllocation: req.FeeAllocation,
				feeTargetType: req.FeeTargetType,
				feeTargetID:   req.FeeTargetID,
			})
			if err != nil {
				return err
			}

			if err := s.markCharged(ctx, tx, req.FlightID); err != nil {
				return err
			}

			entries := make([]ledgerdomain.Entry, 0, len(allocs))
			total := decimal.Zero
			for _, alloc := range allocs {
				generated := s.describe(detail, quote, req.Mode, req.FeeAllocation, req.Fees, alloc)
				entry, err := s.ledger.PostTx(ctx, tx, by, ledgerdomain.PostRequest{
					Owner:       ownerdomain.Ref{Type: ownerdomain.Type(alloc.Target.Type), ID: alloc.Target.ID},
					Amount:      alloc.PostedAmount,
					Description: alloc.Target.Description.Resolve(generated),
					FlightID:    req.FlightID,
				})
				if err != nil {
					return err
				}
				entries = append(entries, entry)
				total = total.Add(alloc.PostedAmount)
			}

			result = chargedomain.ChargeResult{FlightID: req.FlightID, Total: total, Transactions: entries}
			ids := make([]string, 0, len(entries))
			for _, e := range entries {
				ids = append(ids, e.ID.String())
			}
			return s.audit(ctx, tx, by, auditdomain.ActionFlightCharged, auditdomain.TargetTypeFlight, req.FlightID.String(), map[string]any{
				"mode":            chargedomain.ModeSplit,
				"split_mode":      string(modeOrDefault(req.Mode)),
				"legs":            len(entries),
				"amount":          total.StringFixed(2),
				"transaction_ids": strings.Join(ids, ","),
			})
		})
	})
	if err != nil {
		return chargedomain.ChargeResult{}, err
	}

	for _, entry := range result.Transactions {
		s.obsMetrics.RecordLedgerEntry(ctx, string(entry.Owner.Type), string(entry.Kind))
	}
	logger.WithContext(ctx, s.log).Info("flight split charged",
		logger.FlightID(req.FlightID),
		zap.Int("legs", len(result.Transactions)),
		zap.String("amount", result.Total.StringFixed(2)),
	)
	return result, nil
}

func (s *Service) BatchCharge(ctx context.Context, by actor.Actor, items []chargedomain.BatchItem) (chargedomain.BatchResult, error) {
	if err := by.Validate(); err != nil {
		return chargedomain.BatchResult{}, err
	}
	if len(items) == 0 {
		return chargedomain.BatchResult{}, chargedomain.ErrEmptyBatch
	}
	if limit := s.billing.Get().MaxBatchChargeSize; limit > 0 && len(items) > limit {
		return chargedomain.BatchResult{}, chargedomain.ErrBatchTooLarge
	}

	result := chargedomain.BatchResult{
		BatchID: ulid.Make().String(),
		Errors:  []chargedomain.BatchError{},
	}
	for i, item := range items {
		if _, err := s.ChargeFlight(ctx, by, item); err != nil {
			result.FailedCount++
			result.Errors = append(result.Errors, chargedomain.BatchError{
				Index:    i,
				FlightID: item.FlightID,
				Error:    err.Error(),
			})
			continue
		}
		result.SuccessCount++
	}

	if err := s.audit(ctx, nil, by, auditdomain.ActionBatchCharged, auditdomain.TargetTypeBatch, result.BatchID, map[string]any{
		"items":     len(items),
		"succeeded": result.SuccessCount,
		"failed":    result.FailedCount,
	}); err != nil {
		s.log.Warn("failed to audit batch charge", zap.String("batch_id", result.BatchID), zap.Error(err))
	}
	s.obsMetrics.RecordBatchItems(ctx, result.SuccessCount, result.FailedCount)
	return result, nil
}

func (s *Service) Quote(ctx context.Context, req chargedomain.QuoteRequest) (chargedomain.QuoteResponse, error) {
	if req.FlightID == 0 {
		return chargedomain.QuoteResponse{}, flightdomain.ErrInvalidID
	}
	override, err := overrideFor(req.OverrideRate)
	if err != nil {
		return chargedomain.QuoteResponse{}, err
	}
	detail, err := s.flights.Get(ctx, req.FlightID)
	if err != nil {
		return chargedomain.QuoteResponse{}, err
	}

	targets := req.Splits
	if len(targets) == 0 {
		targets = split.DefaultTargets(detail.Flight.Parties())
	}
	quote, allocs, err := s.allocate(detail, allocationRequest{
		override:      override,
		fees:          req.Fees,
		targets:       targets,
		mode:          req.Mode,
		feeAllocation: req.FeeAllocation,
		feeTargetType: req.FeeTargetType,
		feeTargetID:   req.FeeTargetID,
	})
	if err != nil {
		return chargedomain.QuoteResponse{}, err
	}

	legs := make([]chargedomain.QuoteLeg, 0, len(allocs))
	for _, alloc := range allocs {
		generated := s.describe(detail, quote, req.Mode, req.FeeAllocation, req.Fees, alloc)
		legs = append(legs, chargedomain.QuoteLeg{
			Allocation:  alloc,
			Description: alloc.Target.Description.Resolve(generated),
		})
	}
	return chargedomain.QuoteResponse{
		FlightID:         detail.Flight.ID,
		TailNumber:       detail.TailNumber(),
		Charged:          detail.Flight.Charged,
		NeedsBoardReview: detail.Flight.NeedsBoardReview,
		Currency:         s.billing.Get().Currency,
		Quote:            quote,
		Legs:             legs,
	}, nil
}

type allocationRequest struct {
	override      rate.Override
	fees          []rate.Fee
	flightAmount  *decimal.Decimal
	feeAmount     *decimal.Decimal
	targets       []split.Target
	mode          split.Mode
	feeAllocation split.FeeAllocation
	feeTargetType split.TargetType
	feeTargetID   snowflake.ID
}

// allocate prices the flight and splits it across targets. Explicit amounts
// take precedence over the priced ones.
func (s *Service) allocate(detail flightdomain.Detail, req allocationRequest) (rate.Quote, []split.Allocation, error) {
	quote, err := s.flights.Price(detail, req.override, req.fees)
	if err != nil {
		return rate.Quote{}, nil, err
	}
	if req.flightAmount == nil && !hasFlightTimes(detail.Flight) {
		return rate.Quote{}, nil, flightdomain.ErrMissingFlightTimes
	}

	flightAmount := quote.FlightAmount
	if req.flightAmount != nil {
		flightAmount = *req.flightAmount
	}
	feeAmount := quote.FeeAmount
	if req.feeAmount != nil {
		feeAmount = *req.feeAmount
	}

	allocs, err := split.Allocate(split.Input{
		FlightAmount:  flightAmount,
		FeeAmount:     feeAmount,
		Targets:       req.targets,
		Mode:          req.mode,
		FeeAllocation: req.feeAllocation,
		FeeTargetType: req.feeTargetType,
		FeeTargetID:   req.feeTargetID,
		FlightMinutes: quote.FlightMinutes,
		Tolerance:     decimal.NewFromFloat(s.billing.Get().SplitTolerance),
	})
	if err != nil {
		return rate.Quote{}, nil, err
	}
	return quote, allocs, nil
}

func (s *Service) describe(detail flightdomain.Detail, quote rate.Quote, mode split.Mode, feeAllocation split.FeeAllocation, fees []rate.Fee, alloc split.Allocation) string {
	cfg := s.billing.Get()
	return split.Describe(split.DescribeInput{
		TailNumber:    detail.TailNumber(),
		FlightDate:    detail.Flight.Date(),
		FlightMinutes: quote.FlightMinutes,
		Rate:          quote.Rate,
		Unit:          quote.Unit,
		CustomRate:    quote.CustomRate,
		Mode:          modeOrDefault(mode),
		Percentage:    alloc.Target.Percentage,
		Minutes:       alloc.Minutes,
		Fees:          fees,
		FeeAllocation: feeAllocation,
		FeeShare:      alloc.FeeShare,
		Amount:        alloc.PostedAmount,
		Currency:      cfg.Currency,
		DateLayout:    cfg.DescriptionLayout,
	})
}

func (s *Service) loadChargeable(ctx context.Context, tx *gorm.DB, flightID snowflake.ID) (flightdomain.Detail, error) {
	detail, err := s.flights.Load(ctx, tx, flightID)
	if err != nil {
		return flightdomain.Detail{}, err
	}
	if err := chargeable(detail.Flight); err != nil {
		return flightdomain.Detail{}, err
	}
	return detail, nil
}

// markCharged flips the flight flags. A lost race reports the state that won.
func (s *Service) markCharged(ctx context.Context, tx *gorm.DB, flightID snowflake.ID) error {
	marked, err := s.flightRepo.MarkCharged(ctx, tx, flightID, s.clock.Now().UTC())
	if err != nil {
		return err
	}
	if marked {
		return nil
	}
	flight, err := s.flightRepo.FindByID(ctx, tx, flightID)
	if err != nil {
		return err
	}
	if flight == nil {
		return flightdomain.ErrNotFound
	}
	if err := chargeable(*flight); err != nil {
		return err
	}
	return flightdomain.ErrAlreadyCharged
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, by actor.Actor, action, targetType, targetID string, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	return s.auditSvc.AuditLog(ctx, tx, by, action, targetType, targetID, metadata)
}

func chargeable(flight flightdomain.Flight) error {
	if flight.NeedsBoardReview {
		return flightdomain.ErrNeedsBoardReview
	}
	if flight.Charged || flight.Locked {
		return flightdomain.ErrAlreadyCharged
	}
	return nil
}

func hasFlightTimes(flight flightdomain.Flight) bool {
	return flight.TakeoffAt != nil && flight.LandingAt != nil
}

func validateOwner(ref ownerdomain.Ref) error {
	if ref.Type != ownerdomain.TypeUser && ref.Type != ownerdomain.TypeCostCenter {
		return ownerdomain.ErrInvalidType
	}
	if ref.ID == 0 {
		return ownerdomain.ErrInvalidID
	}
	return nil
}

func overrideFor(value *decimal.Decimal) (rate.Override, error) {
	if value == nil {
		return rate.Override{}, nil
	}
	if value.IsNegative() {
		return rate.Override{}, chargedomain.ErrInvalidRate
	}
	v := *value
	return rate.Override{Enabled: true, Rate: &v}, nil
}

func modeOrDefault(mode split.Mode) split.Mode {
	if mode == "" {
		return split.ModePercentage
	}
	return mode
}

func outcome(err error) string {
	switch {
	case err == nil:
		return obsmetrics.OutcomeSuccess
	case IsRejection(err):
		return obsmetrics.OutcomeRejected
	default:
		return obsmetrics.OutcomeFailure
	}
}

// IsRejection reports errors caused by the request or the flight state
// rather than by the store.
func IsRejection(err error) bool {
	if split.IsValidationError(err) {
		return true
	}
	for _, target := range []error{
		flightdomain.ErrInvalidID, flightdomain.ErrNotFound, flightdomain.ErrAlreadyCharged,
		flightdomain.ErrNeedsBoardReview, flightdomain.ErrMissingFlightTimes,
		ownerdomain.ErrInvalidType, ownerdomain.ErrInvalidID, ownerdomain.ErrNotFound, ownerdomain.ErrInactive,
		chargedomain.ErrInvalidRate, rate.ErrNegativeFee, rate.ErrInvalidFee, actor.ErrInvalidActor,
		lock.ErrBusy,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
