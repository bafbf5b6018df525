// Package split distributes a flight amount and its airport fees across one
// or more charge targets.
package split

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// TargetType identifies the ledger a leg is posted to.
type TargetType string

const (
	TargetUser       TargetType = "user"
	TargetCostCenter TargetType = "cost_center"
)

// Mode is how shares are expressed.
type Mode string

const (
	ModePercentage Mode = "percentage"
	ModeTime       Mode = "time"
)

// FeeAllocation is how the airport fee total is distributed.
type FeeAllocation string

const (
	FeeSplitEqually FeeAllocation = "split_equally"
	FeeAssignToOne  FeeAllocation = "assign_to_one"
)

var (
	ErrNoTargets            = errors.New("no_split_targets")
	ErrMissingTargetID      = errors.New("missing_target_id")
	ErrInvalidTargetType    = errors.New("invalid_target_type")
	ErrDuplicateTarget      = errors.New("duplicate_split_target")
	ErrInvalidPercentage    = errors.New("invalid_split_percentage")
	ErrPercentageSum        = errors.New("invalid_split_percentage_sum")
	ErrMinutesSum           = errors.New("invalid_split_minutes_sum")
	ErrInvalidFlightMinutes = errors.New("invalid_flight_minutes")
	ErrInvalidMode          = errors.New("invalid_split_mode")
	ErrInvalidFeeAllocation = errors.New("invalid_fee_allocation")
	ErrInvalidFeeTarget     = errors.New("invalid_fee_target")
	ErrNegativeAmount       = errors.New("negative_flight_amount")
	ErrNegativeFee          = errors.New("negative_fee_amount")
)

// DefaultTolerance is the allowed deviation of the percentage sum from 100.
var DefaultTolerance = decimal.RequireFromString("0.01")

var hundred = decimal.NewFromInt(100)

// Target is one recipient of a split charge. In time mode Minutes, when set,
// determines Percentage.
type Target struct {
	Type        TargetType      `json:"target_type"`
	ID          snowflake.ID    `json:"target_id"`
	Percentage  decimal.Decimal `json:"percentage"`
	Minutes     *int            `json:"minutes,omitempty"`
	Description Description     `json:"description"`
}

func (t Target) key() string {
	return string(t.Type) + ":" + t.ID.String()
}

// Input holds everything needed to validate and allocate a split.
type Input struct {
	FlightAmount  decimal.Decimal
	FeeAmount     decimal.Decimal
	Targets       []Target
	Mode          Mode
	FeeAllocation FeeAllocation
	// FeeTargetType may be empty when FeeTargetID names exactly one target.
	FeeTargetType TargetType
	FeeTargetID   snowflake.ID
	FlightMinutes int
	Tolerance     decimal.Decimal
}

// Allocation is a target with its resolved share of flight and fees.
type Allocation struct {
	Target       Target          `json:"target"`
	Minutes      int             `json:"minutes"`
	FlightShare  decimal.Decimal `json:"flight_share"`
	FeeShare     decimal.Decimal `json:"fee_share"`
	Amount       decimal.Decimal `json:"amount"`
	PostedAmount decimal.Decimal `json:"posted_amount"`
}

// Validate checks an input without computing amounts.
func Validate(in Input) error {
	_, err := normalize(in)
	return err
}

// Allocate validates the input and resolves every target's amount.
// Amounts are unrounded; use Post to obtain ledger amounts.
func Allocate(in Input) ([]Allocation, error) {
	in, err := normalize(in)
	if err != nil {
		return nil, err
	}

	feeKey := Target{Type: in.FeeTargetType, ID: in.FeeTargetID}.key()
	out := make([]Allocation, 0, len(in.Targets))
	for _, target := range in.Targets {
		share := shareOf(in, target)
		flightShare := share(in.FlightAmount)

		var feeShare decimal.Decimal
		switch in.FeeAllocation {
		case FeeAssignToOne:
			if target.key() == feeKey {
				feeShare = in.FeeAmount
			}
		default:
			feeShare = share(in.FeeAmount)
		}

		minutes := PercentageToMinutes(target.Percentage, in.FlightMinutes)
		if target.Minutes != nil {
			minutes = *target.Minutes
		}
		out = append(out, Allocation{
			Target:      target,
			Minutes:     minutes,
			FlightShare: flightShare,
			FeeShare:    feeShare,
			Amount:      flightShare.Add(feeShare),
		})
	}
	return Post(out), nil
}

// shareOf returns the target's portion of an amount. Time mode with minutes
// uses the exact minute ratio; the rounded percentage is for display only.
func shareOf(in Input, target Target) func(decimal.Decimal) decimal.Decimal {
	if in.Mode == ModeTime && target.Minutes != nil && in.FlightMinutes > 0 {
		minutes := decimal.NewFromInt(int64(*target.Minutes))
		total := decimal.NewFromInt(int64(in.FlightMinutes))
		return func(amount decimal.Decimal) decimal.Decimal {
			return amount.Mul(minutes).Div(total)
		}
	}
	pct := target.Percentage
	return func(amount decimal.Decimal) decimal.Decimal {
		return amount.Mul(pct).Div(hundred)
	}
}

// Post rounds each leg to cents. The rounding residue goes to the largest leg
// so the posted legs sum to the rounded total.
func Post(allocs []Allocation) []Allocation {
	if len(allocs) == 0 {
		return allocs
	}
	total := decimal.Zero
	posted := decimal.Zero
	largest := 0
	for i := range allocs {
		total = total.Add(allocs[i].Amount)
		allocs[i].PostedAmount = allocs[i].Amount.Round(2)
		posted = posted.Add(allocs[i].PostedAmount)
		if allocs[i].Amount.Abs().GreaterThan(allocs[largest].Amount.Abs()) {
			largest = i
		}
	}
	if residue := total.Round(2).Sub(posted); !residue.IsZero() {
		allocs[largest].PostedAmount = allocs[largest].PostedAmount.Add(residue)
	}
	return allocs
}

func normalize(in Input) (Input, error) {
	if in.Tolerance.IsZero() {
		in.Tolerance = DefaultTolerance
	}
	if in.Mode == "" {
		in.Mode = ModePercentage
	}
	if in.FeeAllocation == "" {
		in.FeeAllocation = FeeSplitEqually
	}
	if in.FlightAmount.IsNegative() {
		return in, ErrNegativeAmount
	}
	if in.FeeAmount.IsNegative() {
		return in, ErrNegativeFee
	}
	if len(in.Targets) == 0 {
		return in, ErrNoTargets
	}

	targets := make([]Target, len(in.Targets))
	seen := make(map[string]struct{}, len(in.Targets))
	for i, target := range in.Targets {
		target.Type = TargetType(strings.TrimSpace(string(target.Type)))
		if target.Type != TargetUser && target.Type != TargetCostCenter {
			return in, fmt.Errorf("%w: target %d", ErrInvalidTargetType, i+1)
		}
		if target.ID == 0 {
			return in, fmt.Errorf("%w: target %d", ErrMissingTargetID, i+1)
		}
		if _, dup := seen[target.key()]; dup {
			return in, fmt.Errorf("%w: %s %s", ErrDuplicateTarget, target.Type, target.ID)
		}
		seen[target.key()] = struct{}{}
		targets[i] = target
	}

	switch in.Mode {
	case ModePercentage:
		sum := decimal.Zero
		for _, target := range targets {
			if target.Percentage.IsNegative() || target.Percentage.GreaterThan(hundred) {
				return in, ErrInvalidPercentage
			}
			sum = sum.Add(target.Percentage)
		}
		if sum.Sub(hundred).Abs().GreaterThan(in.Tolerance) {
			return in, fmt.Errorf("%w: percentages sum to %s%%, expected 100%%", ErrPercentageSum, sum.String())
		}
	case ModeTime:
		if in.FlightMinutes <= 0 {
			return in, ErrInvalidFlightMinutes
		}
		sum := 0
		for i := range targets {
			if targets[i].Minutes != nil {
				if *targets[i].Minutes < 0 {
					return in, ErrInvalidPercentage
				}
				targets[i].Percentage = MinutesToPercentage(*targets[i].Minutes, in.FlightMinutes)
			}
			if targets[i].Percentage.IsNegative() {
				return in, ErrInvalidPercentage
			}
			sum += PercentageToMinutes(targets[i].Percentage, in.FlightMinutes)
		}
		if sum != in.FlightMinutes {
			return in, fmt.Errorf("%w: split minutes total %d, flight time is %d minutes", ErrMinutesSum, sum, in.FlightMinutes)
		}
	default:
		return in, ErrInvalidMode
	}

	switch in.FeeAllocation {
	case FeeSplitEqually:
	case FeeAssignToOne:
		if in.FeeAmount.IsPositive() {
			feeType, err := resolveFeeTarget(targets, in.FeeTargetType, in.FeeTargetID)
			if err != nil {
				return in, err
			}
			in.FeeTargetType = feeType
		}
	default:
		return in, ErrInvalidFeeAllocation
	}

	in.Targets = targets
	return in, nil
}

// resolveFeeTarget finds the one target that carries the fee. Without a type
// the id must not be shared by a user and a cost center.
func resolveFeeTarget(targets []Target, feeType TargetType, feeID snowflake.ID) (TargetType, error) {
	feeType = TargetType(strings.TrimSpace(string(feeType)))
	var matched []TargetType
	for _, target := range targets {
		if target.ID != feeID {
			continue
		}
		if feeType == "" || target.Type == feeType {
			matched = append(matched, target.Type)
		}
	}
	switch len(matched) {
	case 1:
		return matched[0], nil
	case 0:
		return "", ErrInvalidFeeTarget
	default:
		return "", fmt.Errorf("%w: %s is both a user and a cost center, set fee_target_type", ErrInvalidFeeTarget, feeID)
	}
}

// IsValidationError reports whether err was raised by split validation.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrNoTargets, ErrMissingTargetID, ErrInvalidTargetType, ErrDuplicateTarget,
		ErrInvalidPercentage, ErrPercentageSum, ErrMinutesSum, ErrInvalidFlightMinutes,
		ErrInvalidMode, ErrInvalidFeeAllocation, ErrInvalidFeeTarget, ErrNegativeAmount,
		ErrNegativeFee,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
