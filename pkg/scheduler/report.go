package scheduler

import (
	"time"

	"github.com/core-tools/hsu-fundkeeper/pkg/domain"
	"github.com/core-tools/hsu-fundkeeper/pkg/registry"
)

// UnitResult is what happened to one unit in one tick.
type UnitResult struct {
	UnitID   domain.UnitID
	Outcome  registry.Outcome
	Observed domain.Budget
	Amount   domain.Budget
	Action   string
	Err      error
}

// TickReport summarises one scan over the registry.
type TickReport struct {
	Tick       uint64
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []UnitResult
}

// Count returns how many units ended the tick with outcome.
func (r TickReport) Count(outcome registry.Outcome) int {
	count := 0
	for _, result := range r.Results {
		if result.Outcome == outcome {
			count++
		}
	}
	return count
}

// Result returns the result for a unit, if it was part of the tick.
func (r TickReport) Result(id domain.UnitID) (UnitResult, bool) {
	for _, result := range r.Results {
		if result.UnitID == id {
			return result, true
		}
	}
	return UnitResult{}, false
}
