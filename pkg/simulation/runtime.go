package simulation

import (
	"context"
	"sync"

	"github.com/core-tools/hsu-fundkeeper/pkg/domain"
	"github.com/core-tools/hsu-fundkeeper/pkg/errors"
)

type simulatedUnit struct {
	budget  domain.Budget
	burn    domain.Budget
	failing bool
}

// Runtime is an in-memory unit runtime. Every observation drains the unit
// by its burn amount before reporting the budget.
type Runtime struct {
	mutex sync.Mutex
	units map[domain.UnitID]*simulatedUnit
}

func NewRuntime() *Runtime {
	return &Runtime{units: make(map[domain.UnitID]*simulatedUnit)}
}

// AddUnit creates or resets a simulated unit.
func (r *Runtime) AddUnit(id domain.UnitID, initial, burnPerObservation domain.Budget) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.units[id] = &simulatedUnit{budget: initial, burn: burnPerObservation}
}

// SetFailing makes observations of the unit fail until reset.
func (r *Runtime) SetFailing(id domain.UnitID, failing bool) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	unit, exists := r.units[id]
	if !exists {
		return errors.NewNotFoundError("unit not found", nil).WithContext("unit_id", string(id))
	}
	unit.failing = failing
	return nil
}

func (r *Runtime) ObserveBudget(ctx context.Context, id domain.UnitID) (domain.Budget, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.NewCancelledError("observation cancelled", err)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	unit, exists := r.units[id]
	if !exists {
		return 0, errors.NewNotFoundError("unit not found", nil).WithContext("unit_id", string(id))
	}
	if unit.failing {
		return 0, errors.NewNetworkError("unit unreachable", nil).WithContext("unit_id", string(id))
	}

	if unit.budget > unit.burn {
		unit.budget -= unit.burn
	} else {
		unit.budget = 0
	}
	return unit.budget, nil
}

// Credit adds amount to the unit's budget.
func (r *Runtime) Credit(id domain.UnitID, amount domain.Budget) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	unit, exists := r.units[id]
	if !exists {
		return errors.NewNotFoundError("unit not found", nil).WithContext("unit_id", string(id))
	}
	unit.budget += amount
	return nil
}

// Budget returns the current budget without draining it.
func (r *Runtime) Budget(id domain.UnitID) (domain.Budget, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	unit, exists := r.units[id]
	if !exists {
		return 0, false
	}
	return unit.budget, true
}
