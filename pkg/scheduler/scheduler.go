package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/core-tools/hsu-fundkeeper/pkg/clock"
	"github.com/core-tools/hsu-fundkeeper/pkg/domain"
	"github.com/core-tools/hsu-fundkeeper/pkg/errors"
	"github.com/core-tools/hsu-fundkeeper/pkg/logcollection"
	"github.com/core-tools/hsu-fundkeeper/pkg/logging"
	"github.com/core-tools/hsu-fundkeeper/pkg/registry"
	"github.com/core-tools/hsu-fundkeeper/pkg/strategy"
)

// State of the scan scheduler
type State string

const (
	// StateIdle means no tick is in progress
	StateIdle State = "idle"

	// StateRunning means a tick is in progress
	StateRunning State = "running"

	// StateStopped is terminal
	StateStopped State = "stopped"
)

type Options struct {
	Interval time.Duration

	// Concurrency bounds how many units of one tick are processed at once.
	Concurrency int

	// UnitTimeout bounds the external calls made for one unit, 0 disables it.
	UnitTimeout time.Duration

	Clock clock.Clock
}

// ActionResolver is satisfied by *strategy.Resolver.
type ActionResolver interface {
	Resolve(ctx context.Context, obtain strategy.ObtainStrategy) (strategy.Action, bool)
}

type Dependencies struct {
	Registry *registry.Registry
	Runtime  domain.UnitRuntime
	Resolver ActionResolver

	// Defaults returns the global obtain strategy. It is read once per tick.
	Defaults func() strategy.ObtainStrategy
}

type Scheduler struct {
	options Options
	deps    Dependencies
	logger  logging.Logger
	events  logcollection.StructuredLogger

	mutex   sync.Mutex
	started bool
	stopped bool
	ticking bool
	cancel  context.CancelFunc
	done    chan struct{}

	// tickMutex serialises RunTick with the loop
	tickMutex sync.Mutex
	tickCount atomic.Uint64
}

func New(options Options, deps Dependencies, logger logging.Logger, events logcollection.StructuredLogger) (*Scheduler, error) {
	if options.Interval <= 0 {
		return nil, errors.NewValidationError("scan interval must be positive", nil).
			WithContext("interval", options.Interval.String())
	}
	if deps.Registry == nil || deps.Runtime == nil || deps.Resolver == nil {
		return nil, errors.NewValidationError("scheduler requires registry, runtime and resolver", nil)
	}
	if options.Concurrency <= 0 {
		options.Concurrency = 1
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if deps.Defaults == nil {
		deps.Defaults = func() strategy.ObtainStrategy { return strategy.Disabled{} }
	}
	if events == nil {
		events = logcollection.NewNopLogger()
	}

	return &Scheduler{
		options: options,
		deps:    deps,
		logger:  logger,
		events:  events,
	}, nil
}

// Start launches the periodic loop. The first tick runs immediately. Calling
// Start on a started scheduler does nothing; a stopped scheduler cannot be
// restarted. The loop keeps ctx values but not its cancellation: only Stop
// ends it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.stopped {
		return errors.NewConflictError("scheduler is stopped", nil)
	}
	if s.started {
		s.logger.Debugf("Scheduler already started")
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.started = true
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Infof("Starting scheduler, interval: %v, concurrency: %d, unit_timeout: %v",
		s.options.Interval, s.options.Concurrency, s.options.UnitTimeout)

	go s.loop(loopCtx, s.done)
	return nil
}

// Stop ends the loop for good. In-flight external calls observe
// cancellation. Stop waits for the loop to exit or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mutex.Lock()
	if s.stopped {
		s.mutex.Unlock()
		return nil
	}
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.mutex.Unlock()

	s.logger.Infof("Stopping scheduler")

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		s.logger.Infof("Scheduler stopped, ticks: %d", s.TickCount())
		return nil
	case <-ctx.Done():
		s.logger.Warnf("Scheduler did not stop in time: %v", ctx.Err())
		return errors.NewTimeoutError("scheduler stop timed out", ctx.Err())
	}
}

func (s *Scheduler) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	switch {
	case s.stopped:
		return StateStopped
	case s.ticking:
		return StateRunning
	default:
		return StateIdle
	}
}

// TickCount returns the number of ticks started so far.
func (s *Scheduler) TickCount() uint64 {
	return s.tickCount.Load()
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := s.options.Clock.NewTicker(s.options.Interval)
	defer ticker.Stop()

	s.logger.Debugf("Scheduler loop started")

	s.RunTick(ctx)

	for {
		select {
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.RunTick(ctx)
		case <-ctx.Done():
			s.logger.Debugf("Scheduler loop stopping")
			return
		}
	}
}

func (s *Scheduler) beginTick() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.stopped {
		return false
	}
	s.ticking = true
	return true
}

func (s *Scheduler) endTick() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.ticking = false
}

// RunTick performs one scan over every registered unit and returns what
// happened to each. Per-unit failures never escape the tick. On a stopped
// scheduler RunTick does nothing and returns an empty report.
func (s *Scheduler) RunTick(ctx context.Context) TickReport {
	s.tickMutex.Lock()
	defer s.tickMutex.Unlock()

	if !s.beginTick() {
		s.logger.Debugf("Scheduler stopped, tick skipped")
		return TickReport{}
	}
	defer s.endTick()

	tick := s.tickCount.Add(1)
	report := TickReport{
		Tick:      tick,
		StartedAt: s.options.Clock.Now(),
	}

	records := s.deps.Registry.SnapshotAll()
	defaultObtain := s.deps.Defaults()

	s.logger.Debugf("Tick started, tick: %d, units: %d, default_obtain: %s",
		tick, len(records), strategy.Describe(defaultObtain))

	results := make([]UnitResult, len(records))
	var group errgroup.Group
	group.SetLimit(s.options.Concurrency)

	for i, record := range records {
		i, record := i, record
		if ctx.Err() != nil {
			results[i] = abandonedResult(record.UnitID, ctx.Err())
			s.emitUnitResult(tick, results[i])
			continue
		}
		group.Go(func() error {
			results[i] = s.processUnit(ctx, tick, record, defaultObtain)
			return nil
		})
	}
	_ = group.Wait()

	report.Results = results
	report.FinishedAt = s.options.Clock.Now()
	s.emitTickCompleted(report)
	return report
}

func (s *Scheduler) processUnit(ctx context.Context, tick uint64, record registry.Record, defaultObtain strategy.ObtainStrategy) UnitResult {
	result := s.evaluateUnit(ctx, record, defaultObtain)

	if result.Outcome != registry.OutcomeAbandoned {
		s.deps.Registry.RecordOutcome(record.UnitID, result.Outcome, result.Amount, result.Err, s.options.Clock.Now())
	}
	s.emitUnitResult(tick, result)
	return result
}

// evaluateUnit runs observe, decide, resolve and act for one unit. A panic
// is reported as a failure of the stage it happened in.
func (s *Scheduler) evaluateUnit(ctx context.Context, record registry.Record, defaultObtain strategy.ObtainStrategy) (result UnitResult) {
	id := record.UnitID
	logger := logging.WithPrefix(s.logger, "unit: "+string(id)+" , ")
	result = UnitResult{UnitID: id, Outcome: registry.OutcomeObserveFailed}

	defer func() {
		if r := recover(); r != nil {
			result.Err = errors.NewInternalError(fmt.Sprintf("panic while processing unit: %v", r), nil).
				WithContext("unit_id", string(id))
			logger.Errorf("Unit processing panicked, outcome: %s, panic: %v", result.Outcome, r)
		}
	}()

	if ctx.Err() != nil {
		return abandonedResult(id, ctx.Err())
	}

	if s.options.UnitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.options.UnitTimeout)
		defer cancel()
	}

	budget, err := s.deps.Runtime.ObserveBudget(ctx, id)
	if err != nil {
		result.Err = errors.NewObservationError("budget observation failed", err).WithContext("unit_id", string(id))
		logger.Warnf("Budget observation failed, error: %v", err)
		return result
	}

	observation, registered := s.deps.Registry.RecordObservation(id, budget, s.options.Clock.Now())
	if !registered {
		logger.Debugf("Unit removed during tick, observation dropped")
		return abandonedResult(id, nil)
	}
	result.Observed = budget
	result.Outcome = registry.OutcomeNotNeeded

	amount, needed := strategy.Decide(record.FundStrategy, observation)
	if !needed {
		logger.Debugf("No top-up needed, budget: %d, fund: %s", budget, strategy.DescribeFund(record.FundStrategy))
		return result
	}

	result.Outcome = registry.OutcomeTransferFailed
	result.Amount = amount

	obtain := record.ObtainStrategy
	if obtain == nil {
		obtain = defaultObtain
	}

	action, ok := s.deps.Resolver.Resolve(ctx, obtain)
	if !ok {
		result.Outcome = registry.OutcomeNoStrategy
		logger.Infof("Top-up needed but no action available, budget: %d, amount: %d, obtain: %s",
			budget, amount, strategy.Describe(obtain))
		return result
	}

	result.Action = action.Describe()

	if err := action.Execute(ctx, id, amount); err != nil {
		result.Err = err
		logger.Warnf("Top-up failed, amount: %d, action: %s, error: %v", amount, result.Action, err)
		return result
	}

	result.Outcome = registry.OutcomeToppedUp
	logger.Infof("Unit topped up, budget: %d, amount: %d, action: %s", budget, amount, result.Action)
	return result
}

func abandonedResult(id domain.UnitID, cause error) UnitResult {
	result := UnitResult{UnitID: id, Outcome: registry.OutcomeAbandoned}
	if cause != nil {
		result.Err = errors.NewCancelledError("tick cancelled before unit was processed", cause).
			WithContext("unit_id", string(id))
	}
	return result
}

func (s *Scheduler) emitUnitResult(tick uint64, result UnitResult) {
	fields := []logcollection.LogField{
		logcollection.Event(logcollection.EventUnitTick),
		logcollection.Outcome(string(result.Outcome)),
		logcollection.Uint64("tick", tick),
		logcollection.Uint64("observed_budget", uint64(result.Observed)),
	}
	if result.Amount > 0 {
		fields = append(fields, logcollection.Uint64("amount", uint64(result.Amount)))
	}
	if result.Action != "" {
		fields = append(fields, logcollection.String("action", result.Action))
	}

	level := logcollection.InfoLevel
	if result.Err != nil {
		fields = append(fields, logcollection.Error(result.Err))
		if result.Outcome.Failed() {
			level = logcollection.WarnLevel
		}
	}
	s.events.WithUnit(string(result.UnitID)).LogWithFields(level, "unit tick", fields...)
}

func (s *Scheduler) emitTickCompleted(report TickReport) {
	s.events.LogWithFields(logcollection.InfoLevel, "tick completed",
		logcollection.Event(logcollection.EventTickCompleted),
		logcollection.Uint64("tick", report.Tick),
		logcollection.Int("units", len(report.Results)),
		logcollection.Int(string(registry.OutcomeToppedUp), report.Count(registry.OutcomeToppedUp)),
		logcollection.Int(string(registry.OutcomeNotNeeded), report.Count(registry.OutcomeNotNeeded)),
		logcollection.Int(string(registry.OutcomeNoStrategy), report.Count(registry.OutcomeNoStrategy)),
		logcollection.Int(string(registry.OutcomeObserveFailed), report.Count(registry.OutcomeObserveFailed)),
		logcollection.Int(string(registry.OutcomeTransferFailed), report.Count(registry.OutcomeTransferFailed)),
		logcollection.Int(string(registry.OutcomeAbandoned), report.Count(registry.OutcomeAbandoned)),
		logcollection.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
}
