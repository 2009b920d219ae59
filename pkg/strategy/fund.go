package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/core-tools/hsu-fundkeeper/pkg/domain"
)

// FundStrategy decides when a unit needs a top-up and how much to add.
// Closed set: Never, Always, BelowThreshold, BelowEstimatedRuntime.
type FundStrategy interface {
	isFundStrategy()
	String() string
}

// Never only observes the unit.
type Never struct{}

// Always tops up by Amount on every tick.
type Always struct {
	Amount domain.Budget
}

// BelowThreshold tops up by TopUpAmount when the budget drops under MinBudget.
type BelowThreshold struct {
	MinBudget   domain.Budget
	TopUpAmount domain.Budget
}

// BelowEstimatedRuntime tops up when the budget would be exhausted within
// MinRuntime at the observed burn rate. The top-up buys TopUpRuntime worth of
// budget, at least FallbackAmount.
type BelowEstimatedRuntime struct {
	MinRuntime     time.Duration
	TopUpRuntime   time.Duration
	FallbackAmount domain.Budget
}

func (Never) isFundStrategy()                 {}
func (Always) isFundStrategy()                {}
func (BelowThreshold) isFundStrategy()        {}
func (BelowEstimatedRuntime) isFundStrategy() {}

func (Never) String() string { return FundTypeNever }

func (s Always) String() string {
	return fmt.Sprintf("%s(amount: %d)", FundTypeAlways, s.Amount)
}

func (s BelowThreshold) String() string {
	return fmt.Sprintf("%s(min: %d, amount: %d)", FundTypeBelowThreshold, s.MinBudget, s.TopUpAmount)
}

func (s BelowEstimatedRuntime) String() string {
	return fmt.Sprintf("%s(min_runtime: %v, top_up_runtime: %v, fallback: %d)",
		FundTypeBelowEstimatedRuntime, s.MinRuntime, s.TopUpRuntime, s.FallbackAmount)
}

// DescribeFund returns the printable form of a possibly nil fund strategy.
func DescribeFund(s FundStrategy) string {
	if s == nil {
		return FundTypeNever
	}
	return s.String()
}

// Observation is what a fund strategy is evaluated against.
type Observation struct {
	Budget     domain.Budget
	BurnRate   float64 // budget units per second, 0 when unknown
	ObservedAt time.Time
}

// Decide evaluates fund against an observation and returns the top-up
// amount when one is needed now.
func Decide(fund FundStrategy, obs Observation) (domain.Budget, bool) {
	switch s := fund.(type) {
	case nil, Never:
		return 0, false
	case Always:
		return s.Amount, s.Amount > 0
	case BelowThreshold:
		if obs.Budget >= s.MinBudget {
			return 0, false
		}
		return s.TopUpAmount, s.TopUpAmount > 0
	case BelowEstimatedRuntime:
		return decideByRuntime(s, obs)
	default:
		return 0, false
	}
}

func decideByRuntime(s BelowEstimatedRuntime, obs Observation) (domain.Budget, bool) {
	// Without two observations there is no rate to project from.
	if obs.BurnRate <= 0 {
		return 0, false
	}

	remaining := float64(obs.Budget) / obs.BurnRate
	if remaining >= s.MinRuntime.Seconds() {
		return 0, false
	}

	projected := obs.BurnRate * s.TopUpRuntime.Seconds()
	amount := domain.Budget(math.MaxUint64)
	if projected < math.MaxUint64 {
		amount = domain.Budget(projected)
	}
	if amount < s.FallbackAmount {
		amount = s.FallbackAmount
	}
	return amount, amount > 0
}
