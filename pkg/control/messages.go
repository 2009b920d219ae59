package control

import (
	"context"
	"time"
)

// Contract is the read-only status surface of a fund keeper.
type Contract interface {
	Status(ctx context.Context) (*StatusResponse, error)
	GetUnit(ctx context.Context, unitID string) (*UnitInfo, error)
	ListUnits(ctx context.Context) ([]UnitInfo, error)
}

type StatusRequest struct{}

type StatusResponse struct {
	State                string        `cbor:"state"`
	SchedulerState       string        `cbor:"scheduler_state"`
	Environment          string        `cbor:"environment"`
	MintingEnabled       bool          `cbor:"minting_enabled"`
	Interval             time.Duration `cbor:"interval"`
	TickCount            uint64        `cbor:"tick_count"`
	Units                int           `cbor:"units"`
	GlobalObtainStrategy string        `cbor:"global_obtain_strategy"`
}

type GetUnitRequest struct {
	UnitID string `cbor:"unit_id"`
}

type GetUnitResponse struct {
	Unit UnitInfo `cbor:"unit"`
}

type ListUnitsRequest struct{}

type ListUnitsResponse struct {
	Units []UnitInfo `cbor:"units"`
}

// UnitInfo is the wire form of a monitored unit's state.
type UnitInfo struct {
	UnitID              string    `cbor:"unit_id"`
	LastKnownBudget     uint64    `cbor:"last_known_budget"`
	BudgetObserved      bool      `cbor:"budget_observed"`
	LastObservedAt      time.Time `cbor:"last_observed_at"`
	BurnRate            float64   `cbor:"burn_rate"`
	FundStrategy        string    `cbor:"fund_strategy"`
	ObtainStrategy      string    `cbor:"obtain_strategy"`
	TopUps              int       `cbor:"top_ups"`
	ConsecutiveFailures int       `cbor:"consecutive_failures"`
	LastOutcome         string    `cbor:"last_outcome"`
	LastOutcomeAt       time.Time `cbor:"last_outcome_at"`
	LastError           string    `cbor:"last_error"`
}
