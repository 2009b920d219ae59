package statefile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-fundkeeper/pkg/errors"
	"github.com/core-tools/hsu-fundkeeper/pkg/logging"
	"github.com/core-tools/hsu-fundkeeper/pkg/registry"
	"github.com/core-tools/hsu-fundkeeper/pkg/strategy"
)

func TestSaveAndLoad(t *testing.T) {
	observedAt := time.Date(2025, 6, 1, 12, 30, 15, 123456789, time.UTC)
	store := NewStore(filepath.Join(t.TempDir(), "nested", "fundkeeper.state"), logging.Nop())

	snapshot := Snapshot{
		SavedAt: observedAt,
		GlobalObtainStrategy: strategy.ObtainStrategyConfig{
			Type:    strategy.ObtainTypeWithdrawFromLedger,
			Account: "acct-1",
		},
		Units: []registry.UnitState{
			{
				UnitID:          "unit-a",
				LastKnownBudget: 4200,
				BudgetObserved:  true,
				LastObservedAt:  observedAt,
				BurnRate:        1.5,
				Stats: registry.TopUpStats{
					TopUps:      3,
					LastOutcome: registry.OutcomeToppedUp,
					LastTopUpAt: observedAt,
				},
			},
			{UnitID: "unit-b"},
		},
	}
	require.NoError(t, store.Save(snapshot))

	loaded, found, err := store.Load()
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, FormatVersion, loaded.Version)
	assert.Equal(t, snapshot.GlobalObtainStrategy, loaded.GlobalObtainStrategy)
	require.Len(t, loaded.Units, 2)

	a := loaded.Units[0]
	assert.Equal(t, snapshot.Units[0].UnitID, a.UnitID)
	assert.Equal(t, snapshot.Units[0].LastKnownBudget, a.LastKnownBudget)
	assert.True(t, a.BudgetObserved)
	assert.True(t, observedAt.Equal(a.LastObservedAt))
	assert.Equal(t, 1.5, a.BurnRate)
	assert.Equal(t, 3, a.Stats.TopUps)
	assert.Equal(t, registry.OutcomeToppedUp, a.Stats.LastOutcome)

	b := loaded.Units[1]
	assert.False(t, b.BudgetObserved)
	assert.True(t, b.LastObservedAt.IsZero())
}

func TestSaveIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	snapshot := Snapshot{
		SavedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Units:   []registry.UnitState{{UnitID: "unit-a", LastKnownBudget: 1}},
	}

	first := NewStore(filepath.Join(dir, "a.state"), logging.Nop())
	second := NewStore(filepath.Join(dir, "b.state"), logging.Nop())
	require.NoError(t, first.Save(snapshot))
	require.NoError(t, second.Save(snapshot))

	a, err := os.ReadFile(first.Path())
	require.NoError(t, err)
	b, err := os.ReadFile(second.Path())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temporary files left behind")
}

func TestLoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing.state"), logging.Nop())

	_, found, err := store.Load()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.state")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0x00, 0x13}, 0644))

	_, found, err := NewStore(path, logging.Nop()).Load()
	require.Error(t, err)
	assert.False(t, found)
	assert.True(t, errors.IsValidationError(err))
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "/tmp/x.state", ResolvePath("/tmp/x.state", SystemService))
	assert.Equal(t, "", ResolvePath("", UserService))

	auto := ResolvePath(AutoPath, UserService)
	assert.Equal(t, DefaultFileName, filepath.Base(auto))
	assert.Equal(t, DefaultAppName, filepath.Base(filepath.Dir(auto)))
}
