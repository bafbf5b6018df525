package split

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Parties are the flight attributes that determine the proposed targets.
type Parties struct {
	PilotID              snowflake.ID
	CopilotID            *snowflake.ID
	DefaultCostCenterID  *snowflake.ID
	SplitCostWithCopilot bool
	PilotCostPercentage  *decimal.Decimal
}

var fifty = decimal.NewFromInt(50)

// DefaultTargets proposes targets for a flight: its default cost center,
// else the requested pilot/copilot split, else the pilot alone.
func DefaultTargets(p Parties) []Target {
	if p.DefaultCostCenterID != nil && *p.DefaultCostCenterID != 0 {
		return []Target{{
			Type:        TargetCostCenter,
			ID:          *p.DefaultCostCenterID,
			Percentage:  hundred,
			Description: AutoDescription(),
		}}
	}

	if p.SplitCostWithCopilot && p.CopilotID != nil && *p.CopilotID != 0 && *p.CopilotID != p.PilotID {
		pilotPct := fifty
		if p.PilotCostPercentage != nil {
			pilotPct = *p.PilotCostPercentage
		}
		if pilotPct.IsNegative() {
			pilotPct = decimal.Zero
		}
		if pilotPct.GreaterThan(hundred) {
			pilotPct = hundred
		}
		return []Target{
			{Type: TargetUser, ID: p.PilotID, Percentage: pilotPct, Description: AutoDescription()},
			{Type: TargetUser, ID: *p.CopilotID, Percentage: hundred.Sub(pilotPct), Description: AutoDescription()},
		}
	}

	if p.PilotID == 0 {
		return nil
	}
	return []Target{{
		Type:        TargetUser,
		ID:          p.PilotID,
		Percentage:  hundred,
		Description: AutoDescription(),
	}}
}
