package fleet

import (
	"context"
	"sync"
	"time"

	"github.com/core-tools/hsu-fundkeeper/pkg/clock"
	"github.com/core-tools/hsu-fundkeeper/pkg/domain"
	"github.com/core-tools/hsu-fundkeeper/pkg/errors"
	"github.com/core-tools/hsu-fundkeeper/pkg/logcollection"
	"github.com/core-tools/hsu-fundkeeper/pkg/logging"
	"github.com/core-tools/hsu-fundkeeper/pkg/registry"
	"github.com/core-tools/hsu-fundkeeper/pkg/scheduler"
	"github.com/core-tools/hsu-fundkeeper/pkg/statefile"
	"github.com/core-tools/hsu-fundkeeper/pkg/strategy"
)

const (
	DefaultInterval             = 6 * time.Hour
	DefaultForceShutdownTimeout = 30 * time.Second
)

// Environment is the execution context of the manager. Only production
// may mint.
type Environment string

const (
	EnvironmentLocal      Environment = "local"
	EnvironmentProduction Environment = "production"
)

type Options struct {
	Interval             time.Duration
	ScanConcurrency      int
	UnitTimeout          time.Duration
	ForceShutdownTimeout time.Duration
	Environment          Environment
	Clock                clock.Clock
}

// Collaborators are the external systems the manager talks to. Runtime is
// required; the others may be nil, which makes the matching strategies
// resolve to no action.
type Collaborators struct {
	Runtime  domain.UnitRuntime
	Accounts domain.AccountDirectory
	Ledger   domain.Ledger
	Minter   domain.Minter
}

// ManagerState represents the lifecycle of the manager
type ManagerState string

const (
	// ManagerStateNotStarted is the initial state before Start() is called
	ManagerStateNotStarted ManagerState = "not_started"

	// ManagerStateRunning means the scan loop is active
	ManagerStateRunning ManagerState = "running"

	// ManagerStateStopped is terminal
	ManagerStateStopped ManagerState = "stopped"
)

// Status is a point-in-time summary of the manager.
type Status struct {
	State                ManagerState
	SchedulerState       scheduler.State
	Environment          Environment
	MintingEnabled       bool
	Interval             time.Duration
	TickCount            uint64
	Units                int
	GlobalObtainStrategy strategy.ObtainStrategy
}

// Manager is the fleet cycle manager: it owns the registry, the global
// default obtain strategy and the scan scheduler.
type Manager struct {
	options   Options
	registry  *registry.Registry
	resolver  *strategy.Resolver
	scheduler *scheduler.Scheduler
	logger    logging.Logger
	events    logcollection.StructuredLogger

	defaultMutex sync.RWMutex
	globalObtain strategy.ObtainStrategy

	mutex sync.Mutex
	state ManagerState
}

func NewManager(options Options, collaborators Collaborators, logger logging.Logger, events logcollection.StructuredLogger) (*Manager, error) {
	if collaborators.Runtime == nil {
		return nil, errors.NewValidationError("unit runtime collaborator is required", nil)
	}

	if options.Interval == 0 {
		options.Interval = DefaultInterval
	}
	if options.Interval < 0 {
		return nil, errors.NewValidationError("interval cannot be negative", nil)
	}
	if options.ForceShutdownTimeout <= 0 {
		options.ForceShutdownTimeout = DefaultForceShutdownTimeout
	}
	if options.Environment == "" {
		options.Environment = EnvironmentLocal
	}
	if err := ValidateEnvironment(options.Environment); err != nil {
		return nil, err
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if events == nil {
		events = logcollection.NewNopLogger()
	}

	m := &Manager{
		options:      options,
		logger:       logger,
		events:       events,
		globalObtain: strategy.Disabled{},
		state:        ManagerStateNotStarted,
	}

	m.registry = registry.NewRegistry(logging.WithPrefix(logger, "registry: "), events)
	m.resolver = strategy.NewResolver(strategy.ResolverOptions{
		Accounts:       collaborators.Accounts,
		Ledger:         collaborators.Ledger,
		Minter:         collaborators.Minter,
		MintingEnabled: options.Environment == EnvironmentProduction,
	}, logging.WithPrefix(logger, "resolver: "))

	sched, err := scheduler.New(scheduler.Options{
		Interval:    options.Interval,
		Concurrency: options.ScanConcurrency,
		UnitTimeout: options.UnitTimeout,
		Clock:       options.Clock,
	}, scheduler.Dependencies{
		Registry: m.registry,
		Runtime:  collaborators.Runtime,
		Resolver: m.resolver,
		Defaults: m.GlobalObtainStrategy,
	}, logging.WithPrefix(logger, "scheduler: "), events)
	if err != nil {
		return nil, errors.NewInternalError("failed to create scheduler", err)
	}
	m.scheduler = sched

	logger.Infof("Fleet manager created, environment: %s, minting_enabled: %t, interval: %v",
		options.Environment, m.resolver.MintingEnabled(), options.Interval)
	return m, nil
}

// AddUnit registers a unit or replaces the strategies of a registered one.
// A nil obtain strategy inherits the global default.
func (m *Manager) AddUnit(id domain.UnitID, fund strategy.FundStrategy, obtain strategy.ObtainStrategy) error {
	if err := ValidateUnitID(id); err != nil {
		return errors.NewValidationError("invalid unit ID", err).WithContext("unit_id", string(id))
	}
	if err := strategy.ValidateFundStrategy(fund); err != nil {
		return errors.NewValidationError("invalid fund strategy", err).WithContext("unit_id", string(id))
	}
	if obtain != nil {
		if err := strategy.ValidateObtainStrategy(obtain); err != nil {
			return errors.NewValidationError("invalid obtain strategy", err).WithContext("unit_id", string(id))
		}
	}

	m.registry.Register(id, fund, obtain)
	return nil
}

// RemoveUnit stops monitoring a unit. Removing an unknown unit is not an
// error.
func (m *Manager) RemoveUnit(id domain.UnitID) error {
	if err := ValidateUnitID(id); err != nil {
		return errors.NewValidationError("invalid unit ID", err).WithContext("unit_id", string(id))
	}

	m.registry.Unregister(id)
	return nil
}

func (m *Manager) GetUnitState(id domain.UnitID) (registry.Record, bool) {
	return m.registry.Get(id)
}

// Units returns all records ordered by unit id.
func (m *Manager) Units() []registry.Record {
	return m.registry.SnapshotAll()
}

// SetGlobalObtainStrategy replaces the default used by units without an
// override, starting with the next tick.
func (m *Manager) SetGlobalObtainStrategy(obtain strategy.ObtainStrategy) error {
	if err := strategy.ValidateObtainStrategy(obtain); err != nil {
		return errors.NewValidationError("invalid global obtain strategy", err)
	}

	m.defaultMutex.Lock()
	previous := m.globalObtain
	m.globalObtain = obtain
	m.defaultMutex.Unlock()

	m.logger.Infof("Global obtain strategy changed, from: %s, to: %s", previous, obtain)
	m.events.LogWithFields(logcollection.InfoLevel, "global obtain strategy changed",
		logcollection.Event(logcollection.EventStrategyChange),
		logcollection.Strategy("previous", previous.String()),
		logcollection.Strategy("obtain_strategy", obtain.String()),
	)
	return nil
}

func (m *Manager) GlobalObtainStrategy() strategy.ObtainStrategy {
	m.defaultMutex.RLock()
	defer m.defaultMutex.RUnlock()
	return m.globalObtain
}

// Start launches the scan loop. Starting a running manager does nothing.
func (m *Manager) Start(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	switch m.state {
	case ManagerStateRunning:
		m.logger.Debugf("Fleet manager already running")
		return nil
	case ManagerStateStopped:
		return errors.NewConflictError("fleet manager is stopped", nil)
	}

	m.logger.Infof("Starting fleet manager, units: %d", m.registry.Len())

	if err := m.scheduler.Start(ctx); err != nil {
		return errors.NewInternalError("failed to start scheduler", err)
	}
	m.state = ManagerStateRunning

	m.logger.Infof("Fleet manager started")
	return nil
}

// Stop ends the scan loop, waiting at most ForceShutdownTimeout for an
// in-flight tick.
func (m *Manager) Stop(ctx context.Context) error {
	m.mutex.Lock()
	if m.state == ManagerStateStopped {
		m.mutex.Unlock()
		return nil
	}
	m.state = ManagerStateStopped
	m.mutex.Unlock()

	m.logger.Infof("Stopping fleet manager...")

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, m.options.ForceShutdownTimeout)
	defer cancel()

	if err := m.scheduler.Stop(ctx); err != nil {
		m.logger.Errorf("Scheduler did not stop cleanly: %v", err)
		return err
	}

	m.logger.Infof("Fleet manager stopped")
	return nil
}

// RunTick performs one scan synchronously.
func (m *Manager) RunTick(ctx context.Context) scheduler.TickReport {
	return m.scheduler.RunTick(ctx)
}

func (m *Manager) State() ManagerState {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.state
}

func (m *Manager) Status() Status {
	return Status{
		State:                m.State(),
		SchedulerState:       m.scheduler.State(),
		Environment:          m.options.Environment,
		MintingEnabled:       m.resolver.MintingEnabled(),
		Interval:             m.options.Interval,
		TickCount:            m.scheduler.TickCount(),
		Units:                m.registry.Len(),
		GlobalObtainStrategy: m.GlobalObtainStrategy(),
	}
}

// SaveState writes observed unit state and the global default to path.
func (m *Manager) SaveState(path string) error {
	store := statefile.NewStore(path, logging.WithPrefix(m.logger, "statefile: "))
	return store.Save(statefile.Snapshot{
		SavedAt:              m.options.Clock.Now(),
		GlobalObtainStrategy: strategy.DescribeObtainStrategy(m.GlobalObtainStrategy()),
		Units:                m.registry.States(),
	})
}

// LoadState restores a previously saved state into the registered units and
// returns how many units were restored. A missing file restores nothing.
func (m *Manager) LoadState(path string) (int, error) {
	store := statefile.NewStore(path, logging.WithPrefix(m.logger, "statefile: "))
	snapshot, found, err := store.Load()
	if err != nil || !found {
		return 0, err
	}

	if snapshot.GlobalObtainStrategy.Type != "" {
		obtain, err := snapshot.GlobalObtainStrategy.Build()
		if err != nil {
			return 0, errors.NewValidationError("invalid global obtain strategy in state file", err).
				WithContext("state_file", path)
		}
		if err := m.SetGlobalObtainStrategy(obtain); err != nil {
			return 0, err
		}
	}

	restored := m.registry.Restore(snapshot.Units)
	m.logger.Infof("State restored, path: %s, restored: %d, saved: %d", path, restored, len(snapshot.Units))
	return restored, nil
}
