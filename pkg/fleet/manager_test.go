package fleet

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-fundkeeper/pkg/clock"
	"github.com/core-tools/hsu-fundkeeper/pkg/domain"
	"github.com/core-tools/hsu-fundkeeper/pkg/errors"
	"github.com/core-tools/hsu-fundkeeper/pkg/logging"
	"github.com/core-tools/hsu-fundkeeper/pkg/registry"
	"github.com/core-tools/hsu-fundkeeper/pkg/simulation"
	"github.com/core-tools/hsu-fundkeeper/pkg/strategy"
)

var (
	testStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	treasury  = domain.Account{ID: "treasury", Seed: []byte("treasury-seed")}
)

type testFleet struct {
	manager *Manager
	runtime *simulation.Runtime
	ledger  *simulation.Ledger
	minter  *simulation.Minter
	clock   *clock.FakeClock
}

func newTestFleet(t *testing.T, environment Environment) *testFleet {
	runtime := simulation.NewRuntime()
	accounts := simulation.NewAccounts()
	accounts.Add(treasury)
	ledger := simulation.NewLedger(runtime)
	ledger.Deposit(treasury.Seed, 100000)
	minter := simulation.NewMinter(runtime)
	fakeClock := clock.Fake(testStart)

	manager, err := NewManager(Options{
		Interval:    time.Hour,
		Environment: environment,
		Clock:       fakeClock,
	}, Collaborators{
		Runtime:  runtime,
		Accounts: accounts,
		Ledger:   ledger,
		Minter:   minter,
	}, logging.Nop(), nil)
	require.NoError(t, err)

	return &testFleet{
		manager: manager,
		runtime: runtime,
		ledger:  ledger,
		minter:  minter,
		clock:   fakeClock,
	}
}

func threshold() strategy.FundStrategy {
	return strategy.BelowThreshold{MinBudget: 1000, TopUpAmount: 2000}
}

func TestNewManagerRequiresRuntime(t *testing.T) {
	_, err := NewManager(Options{}, Collaborators{}, logging.Nop(), nil)
	assert.True(t, errors.IsValidationError(err))
}

func TestNewManagerRejectsUnknownEnvironment(t *testing.T) {
	_, err := NewManager(Options{Environment: "staging"}, Collaborators{Runtime: simulation.NewRuntime()}, logging.Nop(), nil)
	assert.True(t, errors.IsValidationError(err))
}

func TestOverrideAndInheritedDefault(t *testing.T) {
	f := newTestFleet(t, EnvironmentLocal)
	f.runtime.AddUnit("unit-a", 500, 0)
	f.runtime.AddUnit("unit-b", 500, 0)

	require.NoError(t, f.manager.AddUnit("unit-a", threshold(), strategy.WithdrawFromLedger{SourceAccount: treasury.ID}))
	require.NoError(t, f.manager.AddUnit("unit-b", threshold(), nil))

	report := f.manager.RunTick(context.Background())
	a, _ := report.Result("unit-a")
	b, _ := report.Result("unit-b")
	assert.Equal(t, registry.OutcomeToppedUp, a.Outcome)
	assert.Equal(t, domain.Budget(2000), a.Amount)
	assert.Equal(t, registry.OutcomeNoStrategy, b.Outcome)

	budgetA, _ := f.runtime.Budget("unit-a")
	budgetB, _ := f.runtime.Budget("unit-b")
	assert.Equal(t, domain.Budget(2500), budgetA)
	assert.Equal(t, domain.Budget(500), budgetB)

	require.NoError(t, f.manager.SetGlobalObtainStrategy(strategy.WithdrawFromLedger{SourceAccount: treasury.ID}))

	report = f.manager.RunTick(context.Background())
	b, _ = report.Result("unit-b")
	assert.Equal(t, registry.OutcomeToppedUp, b.Outcome)
	budgetB, _ = f.runtime.Budget("unit-b")
	assert.Equal(t, domain.Budget(2500), budgetB)

	a, _ = report.Result("unit-a")
	assert.Equal(t, registry.OutcomeNotNeeded, a.Outcome)
}

func TestMintingDependsOnEnvironment(t *testing.T) {
	local := newTestFleet(t, EnvironmentLocal)
	local.runtime.AddUnit("unit-a", 0, 0)
	require.NoError(t, local.manager.AddUnit("unit-a", threshold(), strategy.MintFromReserve{SourceAccount: treasury.ID}))

	report := local.manager.RunTick(context.Background())
	result, _ := report.Result("unit-a")
	assert.Equal(t, registry.OutcomeNoStrategy, result.Outcome)
	assert.Equal(t, domain.Budget(0), local.minter.Minted())
	assert.False(t, local.manager.Status().MintingEnabled)

	production := newTestFleet(t, EnvironmentProduction)
	production.runtime.AddUnit("unit-a", 0, 0)
	require.NoError(t, production.manager.AddUnit("unit-a", threshold(), strategy.MintFromReserve{SourceAccount: treasury.ID}))

	report = production.manager.RunTick(context.Background())
	result, _ = report.Result("unit-a")
	assert.Equal(t, registry.OutcomeToppedUp, result.Outcome)
	assert.Equal(t, domain.Budget(2000), production.minter.Minted())
	assert.True(t, production.manager.Status().MintingEnabled)
}

func TestAddUnitValidation(t *testing.T) {
	f := newTestFleet(t, EnvironmentLocal)

	err := f.manager.AddUnit("", threshold(), nil)
	assert.True(t, errors.IsValidationError(err))

	err = f.manager.AddUnit("unit a", threshold(), nil)
	assert.True(t, errors.IsValidationError(err))

	err = f.manager.AddUnit("unit-a", strategy.BelowThreshold{MinBudget: 10}, nil)
	assert.True(t, errors.IsValidationError(err))

	err = f.manager.AddUnit("unit-a", threshold(), strategy.WithdrawFromLedger{})
	assert.True(t, errors.IsValidationError(err))

	assert.Empty(t, f.manager.Units())
}

func TestReAddPreservesObservations(t *testing.T) {
	f := newTestFleet(t, EnvironmentLocal)
	f.runtime.AddUnit("unit-a", 5000, 0)
	require.NoError(t, f.manager.AddUnit("unit-a", threshold(), nil))
	f.manager.RunTick(context.Background())

	require.NoError(t, f.manager.AddUnit("unit-a", strategy.Never{}, strategy.Disabled{}))

	record, exists := f.manager.GetUnitState("unit-a")
	require.True(t, exists)
	assert.True(t, record.BudgetObserved)
	assert.Equal(t, domain.Budget(5000), record.LastKnownBudget)
	assert.Equal(t, strategy.Never{}, record.FundStrategy)
	assert.Equal(t, strategy.Disabled{}, record.ObtainStrategy)
}

func TestRemoveUnit(t *testing.T) {
	f := newTestFleet(t, EnvironmentLocal)
	f.runtime.AddUnit("unit-a", 0, 0)
	require.NoError(t, f.manager.AddUnit("unit-a", threshold(), nil))

	require.NoError(t, f.manager.RemoveUnit("unit-a"))
	require.NoError(t, f.manager.RemoveUnit("unit-a"))

	_, exists := f.manager.GetUnitState("unit-a")
	assert.False(t, exists)

	report := f.manager.RunTick(context.Background())
	assert.Empty(t, report.Results)
}

func TestSetGlobalObtainStrategyValidation(t *testing.T) {
	f := newTestFleet(t, EnvironmentLocal)
	assert.Equal(t, strategy.Disabled{}, f.manager.GlobalObtainStrategy())

	err := f.manager.SetGlobalObtainStrategy(nil)
	assert.True(t, errors.IsValidationError(err))

	err = f.manager.SetGlobalObtainStrategy(strategy.MintFromReserve{})
	assert.True(t, errors.IsValidationError(err))
	assert.Equal(t, strategy.Disabled{}, f.manager.GlobalObtainStrategy())
}

func TestStartStopLifecycle(t *testing.T) {
	f := newTestFleet(t, EnvironmentLocal)
	f.runtime.AddUnit("unit-a", 0, 0)
	require.NoError(t, f.manager.AddUnit("unit-a", threshold(), strategy.WithdrawFromLedger{SourceAccount: treasury.ID}))
	assert.Equal(t, ManagerStateNotStarted, f.manager.State())

	require.NoError(t, f.manager.Start(context.Background()))
	require.NoError(t, f.manager.Start(context.Background()))
	assert.Equal(t, ManagerStateRunning, f.manager.State())

	require.Eventually(t, func() bool {
		budget, _ := f.runtime.Budget("unit-a")
		return budget == 2000
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), f.manager.Status().TickCount)

	require.NoError(t, f.manager.Stop(context.Background()))
	require.NoError(t, f.manager.Stop(context.Background()))
	assert.Equal(t, ManagerStateStopped, f.manager.State())

	err := f.manager.Start(context.Background())
	assert.True(t, errors.IsConflictError(err))
}

func TestCancelledStartContextKeepsFleetRunning(t *testing.T) {
	f := newTestFleet(t, EnvironmentLocal)
	f.runtime.AddUnit("unit-a", 0, 0)
	require.NoError(t, f.manager.AddUnit("unit-a", strategy.Never{}, nil))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.manager.Start(ctx))
	require.Eventually(t, func() bool { return f.manager.Status().TickCount == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	f.clock.WaitForTimers(1)
	f.clock.Advance(time.Hour)
	require.Eventually(t, func() bool { return f.manager.Status().TickCount == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, ManagerStateRunning, f.manager.State())

	require.NoError(t, f.manager.Stop(context.Background()))
	assert.Equal(t, ManagerStateStopped, f.manager.State())
}

func TestStatus(t *testing.T) {
	f := newTestFleet(t, EnvironmentProduction)
	f.runtime.AddUnit("unit-a", 0, 0)
	require.NoError(t, f.manager.AddUnit("unit-a", threshold(), nil))

	status := f.manager.Status()
	assert.Equal(t, ManagerStateNotStarted, status.State)
	assert.Equal(t, EnvironmentProduction, status.Environment)
	assert.Equal(t, time.Hour, status.Interval)
	assert.Equal(t, 1, status.Units)
	assert.Equal(t, uint64(0), status.TickCount)
	assert.Equal(t, strategy.Disabled{}, status.GlobalObtainStrategy)
}

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cbor")

	f := newTestFleet(t, EnvironmentLocal)
	f.runtime.AddUnit("unit-a", 500, 0)
	f.runtime.AddUnit("unit-b", 7000, 0)
	require.NoError(t, f.manager.AddUnit("unit-a", threshold(), strategy.WithdrawFromLedger{SourceAccount: treasury.ID}))
	require.NoError(t, f.manager.AddUnit("unit-b", threshold(), nil))
	require.NoError(t, f.manager.SetGlobalObtainStrategy(strategy.WithdrawFromLedger{SourceAccount: treasury.ID}))
	f.manager.RunTick(context.Background())
	require.NoError(t, f.manager.SaveState(path))

	restored := newTestFleet(t, EnvironmentLocal)
	require.NoError(t, restored.manager.AddUnit("unit-a", threshold(), nil))

	count, err := restored.manager.LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "only registered units are restored")

	record, exists := restored.manager.GetUnitState("unit-a")
	require.True(t, exists)
	assert.True(t, record.BudgetObserved)
	assert.Equal(t, domain.Budget(500), record.LastKnownBudget)
	assert.Equal(t, 1, record.Stats.TopUps)
	assert.Equal(t, registry.OutcomeToppedUp, record.Stats.LastOutcome)
	assert.True(t, testStart.Equal(record.LastObservedAt))

	_, exists = restored.manager.GetUnitState("unit-b")
	assert.False(t, exists)

	assert.Equal(t, strategy.WithdrawFromLedger{SourceAccount: treasury.ID}, restored.manager.GlobalObtainStrategy())
}

func TestLoadStateMissingFile(t *testing.T) {
	f := newTestFleet(t, EnvironmentLocal)
	count, err := f.manager.LoadState(filepath.Join(t.TempDir(), "missing.cbor"))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
