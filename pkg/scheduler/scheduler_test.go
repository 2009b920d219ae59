package scheduler

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/core-tools/hsu-fundkeeper/pkg/clock"
	"github.com/core-tools/hsu-fundkeeper/pkg/domain"
	"github.com/core-tools/hsu-fundkeeper/pkg/errors"
	"github.com/core-tools/hsu-fundkeeper/pkg/logcollection"
	"github.com/core-tools/hsu-fundkeeper/pkg/logging"
	"github.com/core-tools/hsu-fundkeeper/pkg/registry"
	"github.com/core-tools/hsu-fundkeeper/pkg/strategy"
)

var epoch = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

type MockRuntime struct {
	mock.Mock
}

func (m *MockRuntime) ObserveBudget(ctx context.Context, id domain.UnitID) (domain.Budget, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Budget), args.Error(1)
}

type MockAccounts struct {
	mock.Mock
}

func (m *MockAccounts) Lookup(ctx context.Context, id domain.AccountID) (domain.Account, bool) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Account), args.Bool(1)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Withdraw(ctx context.Context, from domain.Subaccount, to domain.UnitID, amount domain.Budget) error {
	args := m.Called(ctx, from, to, amount)
	return args.Error(0)
}

type runtimeFunc func(ctx context.Context, id domain.UnitID) (domain.Budget, error)

func (f runtimeFunc) ObserveBudget(ctx context.Context, id domain.UnitID) (domain.Budget, error) {
	return f(ctx, id)
}

type globalDefault struct {
	mutex  sync.Mutex
	obtain strategy.ObtainStrategy
}

func (g *globalDefault) Get() strategy.ObtainStrategy {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.obtain
}

func (g *globalDefault) Set(obtain strategy.ObtainStrategy) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.obtain = obtain
}

type harness struct {
	registry  *registry.Registry
	runtime   *MockRuntime
	accounts  *MockAccounts
	ledger    *MockLedger
	defaults  *globalDefault
	clock     *clock.FakeClock
	logs      *observer.ObservedLogs
	scheduler *Scheduler
}

func newHarness(t *testing.T, runtime domain.UnitRuntime, options Options) *harness {
	core, logs := observer.New(zapcore.DebugLevel)
	events := logcollection.NewZapAdapterFromLogger(zap.New(core))

	h := &harness{
		registry: registry.NewRegistry(logging.Nop(), events),
		runtime:  &MockRuntime{},
		accounts: &MockAccounts{},
		ledger:   &MockLedger{},
		defaults: &globalDefault{obtain: strategy.Disabled{}},
		clock:    clock.Fake(epoch),
		logs:     logs,
	}
	if runtime == nil {
		runtime = h.runtime
	}
	if options.Interval == 0 {
		options.Interval = time.Hour
	}
	options.Clock = h.clock

	resolver := strategy.NewResolver(strategy.ResolverOptions{
		Accounts: h.accounts,
		Ledger:   h.ledger,
	}, logging.Nop())

	scheduler, err := New(options, Dependencies{
		Registry: h.registry,
		Runtime:  runtime,
		Resolver: resolver,
		Defaults: h.defaults.Get,
	}, logging.Nop(), events)
	require.NoError(t, err)
	h.scheduler = scheduler
	return h
}

func (h *harness) observe(id domain.UnitID, budget domain.Budget) {
	h.runtime.On("ObserveBudget", mock.Anything, id).Return(budget, nil)
}

func (h *harness) account(id domain.AccountID, seed []byte) {
	h.accounts.On("Lookup", mock.Anything, id).Return(domain.Account{ID: id, Seed: seed}, true)
}

var topUpBelow1000 = strategy.BelowThreshold{MinBudget: 1000, TopUpAmount: 4000}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{}, Dependencies{}, logging.Nop(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))

	_, err = New(Options{Interval: time.Hour}, Dependencies{}, logging.Nop(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestScenarioDisabledAndWithdraw(t *testing.T) {
	h := newHarness(t, nil, Options{})
	seed := []byte("seed-S")

	h.registry.Register("A", topUpBelow1000, strategy.Disabled{})
	h.registry.Register("B", topUpBelow1000, strategy.WithdrawFromLedger{SourceAccount: "acct-1"})
	h.observe("A", 10)
	h.observe("B", 20)
	h.account("acct-1", seed)
	h.ledger.On("Withdraw", mock.Anything, strategy.SubaccountFromSeed(seed), domain.UnitID("B"), domain.Budget(4000)).
		Return(nil).Once()

	report := h.scheduler.RunTick(context.Background())

	h.ledger.AssertNumberOfCalls(t, "Withdraw", 1)
	h.ledger.AssertExpectations(t)

	a, _ := report.Result("A")
	b, _ := report.Result("B")
	assert.Equal(t, registry.OutcomeNoStrategy, a.Outcome)
	assert.Equal(t, registry.OutcomeToppedUp, b.Outcome)
	assert.Equal(t, domain.Budget(4000), b.Amount)

	recordA, _ := h.registry.Get("A")
	recordB, _ := h.registry.Get("B")
	assert.Equal(t, domain.Budget(10), recordA.LastKnownBudget)
	assert.Equal(t, domain.Budget(20), recordB.LastKnownBudget)
	assert.Equal(t, 0, recordA.Stats.TopUps)
	assert.Equal(t, 1, recordB.Stats.TopUps)
}

func TestDisabledNeverTransfers(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.registry.Register("unit-a", strategy.Always{Amount: 1}, nil)
	h.observe("unit-a", 0)

	for i := 0; i < 5; i++ {
		report := h.scheduler.RunTick(context.Background())
		assert.Equal(t, 1, report.Count(registry.OutcomeNoStrategy))
	}

	h.ledger.AssertNotCalled(t, "Withdraw", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, uint64(5), h.scheduler.TickCount())
}

func TestMissingAccountDoesNotAffectOtherUnits(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.registry.Register("unit-a", topUpBelow1000, strategy.WithdrawFromLedger{SourceAccount: "acct-missing"})
	h.registry.Register("unit-b", topUpBelow1000, strategy.WithdrawFromLedger{SourceAccount: "acct-1"})
	h.observe("unit-a", 1)
	h.observe("unit-b", 2)
	h.accounts.On("Lookup", mock.Anything, domain.AccountID("acct-missing")).Return(domain.Account{}, false)
	h.account("acct-1", []byte("s1"))
	h.ledger.On("Withdraw", mock.Anything, mock.Anything, domain.UnitID("unit-b"), domain.Budget(4000)).Return(nil)

	report := h.scheduler.RunTick(context.Background())

	a, _ := report.Result("unit-a")
	b, _ := report.Result("unit-b")
	assert.Equal(t, registry.OutcomeNoStrategy, a.Outcome)
	assert.Equal(t, registry.OutcomeToppedUp, b.Outcome)
	h.ledger.AssertNotCalled(t, "Withdraw", mock.Anything, mock.Anything, domain.UnitID("unit-a"), mock.Anything)
}

func TestGlobalDefaultChangeAppliesFromNextTick(t *testing.T) {
	h := newHarness(t, nil, Options{})
	withdraw := strategy.WithdrawFromLedger{SourceAccount: "acct-1"}

	h.registry.Register("unit-a", topUpBelow1000, nil)
	h.registry.Register("unit-b", topUpBelow1000, nil)
	h.registry.Register("unit-c", topUpBelow1000, strategy.Disabled{})

	// The default changes while tick N is already running.
	h.runtime.On("ObserveBudget", mock.Anything, domain.UnitID("unit-a")).
		Run(func(mock.Arguments) { h.defaults.Set(withdraw) }).
		Return(domain.Budget(1), nil)
	h.observe("unit-b", 1)
	h.observe("unit-c", 1)
	h.account("acct-1", []byte("s1"))
	h.ledger.On("Withdraw", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	tickN := h.scheduler.RunTick(context.Background())
	assert.Equal(t, 3, tickN.Count(registry.OutcomeNoStrategy))
	h.ledger.AssertNotCalled(t, "Withdraw", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	tickN1 := h.scheduler.RunTick(context.Background())
	a, _ := tickN1.Result("unit-a")
	b, _ := tickN1.Result("unit-b")
	c, _ := tickN1.Result("unit-c")
	assert.Equal(t, registry.OutcomeToppedUp, a.Outcome)
	assert.Equal(t, registry.OutcomeToppedUp, b.Outcome)
	assert.Equal(t, registry.OutcomeNoStrategy, c.Outcome)
	h.ledger.AssertNumberOfCalls(t, "Withdraw", 2)
}

func TestObservationFailureIsIsolated(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.registry.Register("unit-a", topUpBelow1000, strategy.WithdrawFromLedger{SourceAccount: "acct-1"})
	h.registry.Register("unit-b", topUpBelow1000, strategy.WithdrawFromLedger{SourceAccount: "acct-1"})
	h.registry.RecordObservation("unit-a", 777, epoch)

	h.runtime.On("ObserveBudget", mock.Anything, domain.UnitID("unit-a")).
		Return(domain.Budget(0), stderrors.New("unit unreachable"))
	h.observe("unit-b", 5)
	h.account("acct-1", []byte("s1"))
	h.ledger.On("Withdraw", mock.Anything, mock.Anything, domain.UnitID("unit-b"), domain.Budget(4000)).Return(nil)

	report := h.scheduler.RunTick(context.Background())

	a, _ := report.Result("unit-a")
	assert.Equal(t, registry.OutcomeObserveFailed, a.Outcome)
	assert.True(t, errors.IsObservationError(a.Err))
	b, _ := report.Result("unit-b")
	assert.Equal(t, registry.OutcomeToppedUp, b.Outcome)

	record, _ := h.registry.Get("unit-a")
	assert.Equal(t, domain.Budget(777), record.LastKnownBudget)
	assert.Equal(t, 1, record.Stats.ConsecutiveFailures)
	assert.Contains(t, record.Stats.LastError, "unit unreachable")
}

func TestTransferFailureIsRecorded(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.registry.Register("unit-a", topUpBelow1000, strategy.WithdrawFromLedger{SourceAccount: "acct-1"})
	h.observe("unit-a", 5)
	h.account("acct-1", []byte("s1"))
	h.ledger.On("Withdraw", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(stderrors.New("insufficient funds"))

	report := h.scheduler.RunTick(context.Background())

	a, _ := report.Result("unit-a")
	assert.Equal(t, registry.OutcomeTransferFailed, a.Outcome)
	assert.True(t, errors.IsTransferError(a.Err))

	record, _ := h.registry.Get("unit-a")
	assert.Equal(t, domain.Budget(5), record.LastKnownBudget)
	assert.Equal(t, registry.OutcomeTransferFailed, record.Stats.LastOutcome)
}

func TestPanicIsIsolated(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.registry.Register("unit-a", topUpBelow1000, nil)
	h.registry.Register("unit-b", strategy.Never{}, nil)
	h.runtime.On("ObserveBudget", mock.Anything, domain.UnitID("unit-a")).
		Run(func(mock.Arguments) { panic("runtime bug") }).
		Return(domain.Budget(0), nil)
	h.observe("unit-b", 3)

	var report TickReport
	require.NotPanics(t, func() {
		report = h.scheduler.RunTick(context.Background())
	})

	a, _ := report.Result("unit-a")
	assert.Equal(t, registry.OutcomeObserveFailed, a.Outcome)
	assert.True(t, errors.IsInternalError(a.Err))
	b, _ := report.Result("unit-b")
	assert.Equal(t, registry.OutcomeNotNeeded, b.Outcome)
	assert.Equal(t, StateIdle, h.scheduler.State())
}

func TestUnitRemovedDuringTickIsNotResurrected(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.registry.Register("unit-a", topUpBelow1000, nil)
	h.runtime.On("ObserveBudget", mock.Anything, domain.UnitID("unit-a")).
		Run(func(mock.Arguments) { h.registry.Unregister("unit-a") }).
		Return(domain.Budget(1), nil)

	report := h.scheduler.RunTick(context.Background())

	a, _ := report.Result("unit-a")
	assert.Equal(t, registry.OutcomeAbandoned, a.Outcome)
	_, ok := h.registry.Get("unit-a")
	assert.False(t, ok)
}

func TestCancelledTickAbandonsUnits(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.registry.Register("unit-a", topUpBelow1000, nil)
	h.registry.Register("unit-b", topUpBelow1000, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := h.scheduler.RunTick(ctx)

	assert.Equal(t, 2, report.Count(registry.OutcomeAbandoned))
	h.runtime.AssertNotCalled(t, "ObserveBudget", mock.Anything, mock.Anything)

	record, _ := h.registry.Get("unit-a")
	assert.False(t, record.BudgetObserved)
}

func TestUnitTimeoutBoundsObservation(t *testing.T) {
	blocking := runtimeFunc(func(ctx context.Context, id domain.UnitID) (domain.Budget, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	h := newHarness(t, blocking, Options{UnitTimeout: 10 * time.Millisecond})
	h.registry.Register("unit-a", topUpBelow1000, nil)

	report := h.scheduler.RunTick(context.Background())

	a, _ := report.Result("unit-a")
	assert.Equal(t, registry.OutcomeObserveFailed, a.Outcome)
	assert.ErrorIs(t, a.Err, context.DeadlineExceeded)
}

func TestBoundedConcurrency(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	counting := runtimeFunc(func(ctx context.Context, id domain.UnitID) (domain.Budget, error) {
		current := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			observed := maxInFlight.Load()
			if current <= observed || maxInFlight.CompareAndSwap(observed, current) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return 5000, nil
	})
	h := newHarness(t, counting, Options{Concurrency: 2})
	for i := 0; i < 6; i++ {
		h.registry.Register(domain.UnitID(fmt.Sprintf("unit-%d", i)), topUpBelow1000, nil)
	}

	report := h.scheduler.RunTick(context.Background())

	assert.Equal(t, 6, report.Count(registry.OutcomeNotNeeded))
	assert.LessOrEqual(t, maxInFlight.Load(), int32(2))
}

func TestDiagnosticEvents(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.registry.Register("unit-a", strategy.Never{}, nil)
	h.observe("unit-a", 42)

	h.scheduler.RunTick(context.Background())

	ticks := h.logs.FilterField(zap.String("event", logcollection.EventUnitTick)).All()
	require.Len(t, ticks, 1)
	fields := ticks[0].ContextMap()
	assert.Equal(t, "unit-a", fields["unit_id"])
	assert.Equal(t, string(registry.OutcomeNotNeeded), fields["outcome"])
	assert.Equal(t, uint64(42), fields["observed_budget"])

	completed := h.logs.FilterField(zap.String("event", logcollection.EventTickCompleted)).All()
	require.Len(t, completed, 1)
	assert.Equal(t, int64(1), completed[0].ContextMap()["units"])
}

func TestLoopOnFakeClock(t *testing.T) {
	h := newHarness(t, nil, Options{Interval: 6 * time.Hour})
	h.registry.Register("unit-a", strategy.Never{}, nil)
	h.observe("unit-a", 1)
	ctx := context.Background()

	require.NoError(t, h.scheduler.Start(ctx))
	require.NoError(t, h.scheduler.Start(ctx))

	require.Eventually(t, func() bool { return h.scheduler.TickCount() == 1 }, 5*time.Second, time.Millisecond)
	h.clock.WaitForTimers(1)
	assert.Equal(t, 1, h.clock.PendingCount(), "a second Start must not start another loop")

	h.clock.Advance(6 * time.Hour)
	require.Eventually(t, func() bool { return h.scheduler.TickCount() == 2 }, 5*time.Second, time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, h.scheduler.Stop(stopCtx))
	assert.Equal(t, StateStopped, h.scheduler.State())

	h.clock.Advance(24 * time.Hour)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, uint64(2), h.scheduler.TickCount())

	report := h.scheduler.RunTick(ctx)
	assert.Empty(t, report.Results)
	assert.Equal(t, uint64(2), h.scheduler.TickCount())

	err := h.scheduler.Start(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsConflictError(err))
}

func TestLoopOutlivesStartContext(t *testing.T) {
	h := newHarness(t, nil, Options{Interval: time.Hour})
	h.registry.Register("unit-a", strategy.Never{}, nil)
	h.observe("unit-a", 1)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.scheduler.Start(ctx))
	require.Eventually(t, func() bool { return h.scheduler.TickCount() == 1 }, 5*time.Second, time.Millisecond)
	cancel()

	h.clock.WaitForTimers(1)
	h.clock.Advance(time.Hour)
	require.Eventually(t, func() bool { return h.scheduler.TickCount() == 2 }, 5*time.Second, time.Millisecond)
	assert.NotEqual(t, StateStopped, h.scheduler.State())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, h.scheduler.Stop(stopCtx))
	assert.Equal(t, StateStopped, h.scheduler.State())
}

func TestStopCancelsInFlightObservation(t *testing.T) {
	entered := make(chan struct{})
	var once sync.Once
	blocking := runtimeFunc(func(ctx context.Context, id domain.UnitID) (domain.Budget, error) {
		once.Do(func() { close(entered) })
		<-ctx.Done()
		return 0, ctx.Err()
	})
	h := newHarness(t, blocking, Options{})
	h.registry.Register("unit-a", topUpBelow1000, nil)

	require.NoError(t, h.scheduler.Start(context.Background()))
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("tick did not start")
	}
	assert.Equal(t, StateRunning, h.scheduler.State())

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.scheduler.Stop(stopCtx))

	record, ok := h.registry.Get("unit-a")
	require.True(t, ok)
	assert.False(t, record.BudgetObserved)
	assert.Equal(t, registry.OutcomeObserveFailed, record.Stats.LastOutcome)
}

func TestStopWithoutStart(t *testing.T) {
	h := newHarness(t, nil, Options{})
	require.NoError(t, h.scheduler.Stop(context.Background()))
	assert.Equal(t, StateStopped, h.scheduler.State())
	require.NoError(t, h.scheduler.Stop(context.Background()))
}
