// Package balance projects running balances over newest-first ledger
// listings.
package balance

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/flightclub/internal/ledger/domain"
	ownerdomain "github.com/smallbiznis/flightclub/internal/owner/domain"
)

// Policy decides which entries contribute to a balance. Both policies sum to
// the same total because a reversal is the exact negation of its original.
type Policy int

const (
	// IncludeAll counts every entry and lets reversal pairs cancel.
	IncludeAll Policy = iota
	// ExcludeReversalPairs skips reversed originals and their reversals.
	ExcludeReversalPairs
)

// PolicyFor returns the policy used when displaying an owner ledger.
func PolicyFor(t ownerdomain.Type) Policy {
	if t == ownerdomain.TypeCostCenter {
		return ExcludeReversalPairs
	}
	return IncludeAll
}

func (p Policy) Includes(e domain.Entry) bool {
	if p == ExcludeReversalPairs {
		return !e.IsReversed() && !e.IsReversal()
	}
	return true
}

func (p Policy) String() string {
	if p == ExcludeReversalPairs {
		return "exclude_reversal_pairs"
	}
	return "include_all"
}

// RunningBalanceAt returns the balance as of and including newestFirst[index].
// Out of range indexes yield zero.
func RunningBalanceAt(newestFirst []domain.Entry, index int, p Policy) decimal.Decimal {
	if index < 0 || index >= len(newestFirst) {
		return decimal.Zero
	}
	oldestFirst := make([]domain.Entry, len(newestFirst))
	for i, e := range newestFirst {
		oldestFirst[len(newestFirst)-1-i] = e
	}

	position := len(newestFirst) - 1 - index
	sum := decimal.Zero
	for i := 0; i <= position; i++ {
		if p.Includes(oldestFirst[i]) {
			sum = sum.Add(oldestFirst[i].Amount)
		}
	}
	return sum
}

// Total is the running balance through the newest entry.
func Total(newestFirst []domain.Entry, p Policy) decimal.Decimal {
	return RunningBalanceAt(newestFirst, 0, p)
}

// Project annotates every entry with its running balance. opening is the
// balance of everything older than the last entry, zero for a full history.
func Project(newestFirst []domain.Entry, p Policy, opening decimal.Decimal) []domain.Line {
	lines := make([]domain.Line, len(newestFirst))
	running := opening
	for i := len(newestFirst) - 1; i >= 0; i-- {
		e := newestFirst[i]
		counted := p.Includes(e)
		if counted {
			running = running.Add(e.Amount)
		}
		lines[i] = domain.Line{Entry: e, RunningBalance: running, Counted: counted}
	}
	return lines
}
