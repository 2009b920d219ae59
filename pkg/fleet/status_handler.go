package fleet

import (
	"context"

	"github.com/core-tools/hsu-fundkeeper/pkg/control"
	"github.com/core-tools/hsu-fundkeeper/pkg/domain"
	"github.com/core-tools/hsu-fundkeeper/pkg/errors"
	"github.com/core-tools/hsu-fundkeeper/pkg/registry"
	"github.com/core-tools/hsu-fundkeeper/pkg/strategy"
)

// NewStatusHandler exposes the manager through the read-only status
// contract served over gRPC.
func NewStatusHandler(manager *Manager) control.Contract {
	return &statusHandler{manager: manager}
}

type statusHandler struct {
	manager *Manager
}

func (h *statusHandler) Status(ctx context.Context) (*control.StatusResponse, error) {
	status := h.manager.Status()
	return &control.StatusResponse{
		State:                string(status.State),
		SchedulerState:       string(status.SchedulerState),
		Environment:          string(status.Environment),
		MintingEnabled:       status.MintingEnabled,
		Interval:             status.Interval,
		TickCount:            status.TickCount,
		Units:                status.Units,
		GlobalObtainStrategy: status.GlobalObtainStrategy.String(),
	}, nil
}

func (h *statusHandler) GetUnit(ctx context.Context, unitID string) (*control.UnitInfo, error) {
	if err := ValidateUnitID(domain.UnitID(unitID)); err != nil {
		return nil, err
	}
	record, exists := h.manager.GetUnitState(domain.UnitID(unitID))
	if !exists {
		return nil, errors.NewNotFoundError("unit not found", nil).WithContext("unit_id", unitID)
	}
	info := toUnitInfo(record)
	return &info, nil
}

func (h *statusHandler) ListUnits(ctx context.Context) ([]control.UnitInfo, error) {
	records := h.manager.Units()
	units := make([]control.UnitInfo, 0, len(records))
	for _, record := range records {
		units = append(units, toUnitInfo(record))
	}
	return units, nil
}

func toUnitInfo(record registry.Record) control.UnitInfo {
	return control.UnitInfo{
		UnitID:              string(record.UnitID),
		LastKnownBudget:     uint64(record.LastKnownBudget),
		BudgetObserved:      record.BudgetObserved,
		LastObservedAt:      record.LastObservedAt,
		BurnRate:            record.BurnRate,
		FundStrategy:        strategy.DescribeFund(record.FundStrategy),
		ObtainStrategy:      strategy.Describe(record.ObtainStrategy),
		TopUps:              record.Stats.TopUps,
		ConsecutiveFailures: record.Stats.ConsecutiveFailures,
		LastOutcome:         string(record.Stats.LastOutcome),
		LastOutcomeAt:       record.Stats.LastOutcomeAt,
		LastError:           record.Stats.LastError,
	}
}
