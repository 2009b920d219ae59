package registry

import (
	"time"

	"github.com/core-tools/hsu-fundkeeper/pkg/domain"
	"github.com/core-tools/hsu-fundkeeper/pkg/strategy"
)

// Outcome is the result of processing one unit in one tick.
type Outcome string

const (
	OutcomeToppedUp       Outcome = "topped_up"
	OutcomeNotNeeded      Outcome = "not_needed"
	OutcomeNoStrategy     Outcome = "no_strategy"
	OutcomeObserveFailed  Outcome = "observe_failed"
	OutcomeTransferFailed Outcome = "transfer_failed"
	OutcomeAbandoned      Outcome = "abandoned"
)

// Failed reports whether the outcome counts as a failure of the unit.
func (o Outcome) Failed() bool {
	return o == OutcomeObserveFailed || o == OutcomeTransferFailed
}

// TopUpStats are per-unit diagnostics kept across ticks.
type TopUpStats struct {
	TopUps              int       `cbor:"top_ups"`
	ConsecutiveFailures int       `cbor:"consecutive_failures"`
	LastOutcome         Outcome   `cbor:"last_outcome,omitempty"`
	LastOutcomeAt       time.Time `cbor:"last_outcome_at"`
	LastTopUpAt         time.Time `cbor:"last_top_up_at"`
	LastError           string    `cbor:"last_error,omitempty"`
}

// Record is the registry entry of one monitored unit. Records returned by
// the registry are copies.
type Record struct {
	UnitID domain.UnitID

	// LastKnownBudget is meaningful only when BudgetObserved is set.
	LastKnownBudget domain.Budget
	BudgetObserved  bool
	LastObservedAt  time.Time

	// BurnRate is budget consumed per second, zero until two decreasing
	// observations were made.
	BurnRate float64

	// DepositedSinceObservation is budget added by top-ups after
	// LastObservedAt; the next observation accounts for it.
	DepositedSinceObservation domain.Budget

	FundStrategy strategy.FundStrategy

	// ObtainStrategy nil means the global default applies.
	ObtainStrategy strategy.ObtainStrategy

	Stats TopUpStats
}

// Observation returns the last observation as seen by fund strategies.
func (r Record) Observation() strategy.Observation {
	return strategy.Observation{
		Budget:     r.LastKnownBudget,
		BurnRate:   r.BurnRate,
		ObservedAt: r.LastObservedAt,
	}
}

// UnitState is the persisted, observed part of a record.
type UnitState struct {
	UnitID          domain.UnitID `cbor:"unit_id"`
	LastKnownBudget domain.Budget `cbor:"last_known_budget"`
	BudgetObserved  bool          `cbor:"budget_observed"`
	LastObservedAt  time.Time     `cbor:"last_observed_at"`
	BurnRate        float64       `cbor:"burn_rate"`
	Deposited       domain.Budget `cbor:"deposited_since_observation"`
	Stats           TopUpStats    `cbor:"stats"`
}
