package registry

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/core-tools/hsu-fundkeeper/pkg/domain"
	"github.com/core-tools/hsu-fundkeeper/pkg/logcollection"
	"github.com/core-tools/hsu-fundkeeper/pkg/logging"
	"github.com/core-tools/hsu-fundkeeper/pkg/strategy"
)

// Registry holds the monitored units. All methods are safe for concurrent
// use; the lock is never held while calling out of the package.
type Registry struct {
	mutex   sync.RWMutex
	records map[domain.UnitID]*Record
	logger  logging.Logger
	events  logcollection.StructuredLogger
}

func NewRegistry(logger logging.Logger, events logcollection.StructuredLogger) *Registry {
	if events == nil {
		events = logcollection.NewNopLogger()
	}
	return &Registry{
		records: make(map[domain.UnitID]*Record),
		logger:  logger,
		events:  events,
	}
}

// Register creates or updates a unit. Updating replaces both strategies and
// keeps everything observed so far. Returns true when the unit is new.
func (r *Registry) Register(id domain.UnitID, fund strategy.FundStrategy, obtain strategy.ObtainStrategy) bool {
	r.mutex.Lock()
	record, exists := r.records[id]
	if exists {
		record.FundStrategy = fund
		record.ObtainStrategy = obtain
	} else {
		r.records[id] = &Record{
			UnitID:         id,
			FundStrategy:   fund,
			ObtainStrategy: obtain,
		}
	}
	r.mutex.Unlock()

	event := logcollection.EventUnitRegistered
	if exists {
		event = logcollection.EventUnitUpdated
	}
	r.logger.Infof("Unit registered, id: %s, updated: %t, fund: %s, obtain: %s",
		id, exists, strategy.DescribeFund(fund), strategy.Describe(obtain))
	r.events.LogWithFields(logcollection.InfoLevel, "unit registered",
		logcollection.Event(event),
		logcollection.Unit(string(id)),
		logcollection.Strategy("fund_strategy", strategy.DescribeFund(fund)),
		logcollection.Strategy("obtain_strategy", strategy.Describe(obtain)),
	)
	return !exists
}

// Unregister removes a unit. Removing an unknown unit is a no-op.
func (r *Registry) Unregister(id domain.UnitID) bool {
	r.mutex.Lock()
	_, exists := r.records[id]
	delete(r.records, id)
	r.mutex.Unlock()

	if !exists {
		r.logger.Debugf("Unit not registered, nothing to remove, id: %s", id)
		return false
	}
	r.logger.Infof("Unit removed, id: %s", id)
	r.events.LogWithFields(logcollection.InfoLevel, "unit removed",
		logcollection.Event(logcollection.EventUnitRemoved),
		logcollection.Unit(string(id)),
	)
	return true
}

// Get returns a copy of the unit's record.
func (r *Registry) Get(id domain.UnitID) (Record, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	record, exists := r.records[id]
	if !exists {
		return Record{}, false
	}
	return *record, true
}

// SnapshotAll returns copies of all records ordered by unit id.
func (r *Registry) SnapshotAll() []Record {
	r.mutex.RLock()
	snapshot := make([]Record, 0, len(r.records))
	for _, record := range r.records {
		snapshot = append(snapshot, *record)
	}
	r.mutex.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].UnitID < snapshot[j].UnitID
	})
	return snapshot
}

// RecordObservation stores a freshly observed budget and updates the burn
// rate. Budget deposited since the previous observation counts as available
// in that interval. Returns false when the unit is no longer registered; a
// removed unit is never recreated.
func (r *Registry) RecordObservation(id domain.UnitID, budget domain.Budget, at time.Time) (strategy.Observation, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	record, exists := r.records[id]
	if !exists {
		return strategy.Observation{}, false
	}

	if record.BudgetObserved {
		available := saturatingAdd(record.LastKnownBudget, record.DepositedSinceObservation)
		if budget < available {
			if elapsed := at.Sub(record.LastObservedAt).Seconds(); elapsed > 0 {
				record.BurnRate = float64(available-budget) / elapsed
			}
		}
	}
	record.DepositedSinceObservation = 0
	record.LastKnownBudget = budget
	record.BudgetObserved = true
	record.LastObservedAt = at

	return record.Observation(), true
}

// RecordOutcome updates the unit's statistics. For a top-up, amount is the
// budget deposited into the unit. Returns false when the unit is no longer
// registered.
func (r *Registry) RecordOutcome(id domain.UnitID, outcome Outcome, amount domain.Budget, cause error, at time.Time) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	record, exists := r.records[id]
	if !exists {
		return false
	}

	stats := &record.Stats
	stats.LastOutcome = outcome
	stats.LastOutcomeAt = at
	switch {
	case outcome == OutcomeToppedUp:
		stats.TopUps++
		stats.LastTopUpAt = at
		record.DepositedSinceObservation = saturatingAdd(record.DepositedSinceObservation, amount)
		stats.ConsecutiveFailures = 0
		stats.LastError = ""
	case outcome.Failed():
		stats.ConsecutiveFailures++
		if cause != nil {
			stats.LastError = cause.Error()
		}
	case outcome == OutcomeNotNeeded, outcome == OutcomeNoStrategy:
		stats.ConsecutiveFailures = 0
	}
	return true
}

// States exports the observed part of all records, ordered by unit id.
func (r *Registry) States() []UnitState {
	snapshot := r.SnapshotAll()
	states := make([]UnitState, 0, len(snapshot))
	for _, record := range snapshot {
		states = append(states, UnitState{
			UnitID:          record.UnitID,
			LastKnownBudget: record.LastKnownBudget,
			BudgetObserved:  record.BudgetObserved,
			LastObservedAt:  record.LastObservedAt,
			BurnRate:        record.BurnRate,
			Deposited:       record.DepositedSinceObservation,
			Stats:           record.Stats,
		})
	}
	return states
}

// Restore applies previously exported states to registered units and
// returns how many were applied. Unknown units are skipped.
func (r *Registry) Restore(states []UnitState) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	restored := 0
	for _, state := range states {
		record, exists := r.records[state.UnitID]
		if !exists {
			continue
		}
		record.LastKnownBudget = state.LastKnownBudget
		record.BudgetObserved = state.BudgetObserved
		record.LastObservedAt = state.LastObservedAt
		record.BurnRate = state.BurnRate
		record.DepositedSinceObservation = state.Deposited
		record.Stats = state.Stats
		restored++
	}
	return restored
}

func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.records)
}

func saturatingAdd(a, b domain.Budget) domain.Budget {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
