package fleet

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/core-tools/hsu-fundkeeper/pkg/control"
	"github.com/core-tools/hsu-fundkeeper/pkg/domain"
	"github.com/core-tools/hsu-fundkeeper/pkg/errors"
	"github.com/core-tools/hsu-fundkeeper/pkg/logcollection"
	"github.com/core-tools/hsu-fundkeeper/pkg/logging"
	"github.com/core-tools/hsu-fundkeeper/pkg/simulation"
	"github.com/core-tools/hsu-fundkeeper/pkg/statefile"
)

// Simulation holds the in-memory collaborators built from a configuration.
type Simulation struct {
	Runtime  *simulation.Runtime
	Accounts *simulation.Accounts
	Ledger   *simulation.Ledger
	Minter   *simulation.Minter
}

func (s *Simulation) Collaborators() Collaborators {
	return Collaborators{
		Runtime:  s.Runtime,
		Accounts: s.Accounts,
		Ledger:   s.Ledger,
		Minter:   s.Minter,
	}
}

// NewSimulationFromConfig seeds accounts, ledger balances and unit budgets.
func NewSimulationFromConfig(config *Config) (*Simulation, error) {
	sim := &Simulation{
		Runtime:  simulation.NewRuntime(),
		Accounts: simulation.NewAccounts(),
	}
	sim.Ledger = simulation.NewLedger(sim.Runtime)
	sim.Minter = simulation.NewMinter(sim.Runtime)

	for _, accountConfig := range config.Accounts {
		seed, err := accountConfig.DecodeSeed()
		if err != nil {
			return nil, err
		}
		sim.Accounts.Add(domain.Account{ID: domain.AccountID(accountConfig.ID), Seed: seed})
		if accountConfig.Balance > 0 {
			sim.Ledger.Deposit(seed, domain.Budget(accountConfig.Balance))
		}
	}

	for _, unitConfig := range config.Units {
		sim.Runtime.AddUnit(domain.UnitID(unitConfig.ID),
			domain.Budget(unitConfig.InitialBudget),
			domain.Budget(unitConfig.BurnPerObservation))
	}
	return sim, nil
}

// ManagerOptionsFromConfig maps the manager section to manager options.
func ManagerOptionsFromConfig(config *Config) Options {
	return Options{
		Interval:             config.Manager.Interval,
		ScanConcurrency:      config.Manager.ScanConcurrency,
		UnitTimeout:          config.Manager.UnitTimeout,
		ForceShutdownTimeout: config.Manager.ForceShutdownTimeout,
		Environment:          config.Manager.Environment,
	}
}

// Setup builds a manager from a validated configuration: it registers the
// enabled units, restores the state file and applies the configured global
// obtain strategy, which takes precedence over the restored one.
func Setup(config *Config, collaborators Collaborators, logger logging.Logger, events logcollection.StructuredLogger) (*Manager, string, error) {
	manager, err := NewManager(ManagerOptionsFromConfig(config), collaborators, logger, events)
	if err != nil {
		return nil, "", errors.NewInternalError("failed to create fleet manager", err)
	}

	units, err := CreateUnitsFromConfig(config, logger)
	if err != nil {
		return nil, "", err
	}
	for _, unit := range units {
		if err := manager.AddUnit(unit.ID, unit.Fund, unit.Obtain); err != nil {
			return nil, "", errors.NewValidationError(
				fmt.Sprintf("failed to add unit: %s", unit.ID),
				err,
			).WithContext("unit_id", string(unit.ID))
		}
	}
	logger.Infof("Added %d units", len(units))

	statePath := resolveStatePath(config)
	if statePath != "" {
		if _, err := manager.LoadState(statePath); err != nil {
			return nil, "", errors.NewIOError("failed to load state file", err).WithContext("state_file", statePath)
		}
	}

	if config.Manager.GlobalObtainStrategy != nil {
		obtain, err := config.Manager.GlobalObtainStrategy.Build()
		if err != nil {
			return nil, "", errors.NewValidationError("invalid global obtain strategy", err)
		}
		if err := manager.SetGlobalObtainStrategy(obtain); err != nil {
			return nil, "", err
		}
	}

	return manager, statePath, nil
}

// Run loads the configuration, runs the fund keeper until a signal arrives
// or runDuration elapses, then stops it and saves its state.
func Run(runDuration int, configFile string, logger logging.Logger, events logcollection.StructuredLogger) error {
	logger.Infof("Fund keeper runner starting...")

	ctx := context.Background()
	if runDuration > 0 {
		duration := time.Duration(runDuration) * time.Second
		logger.Infof("Using RUN DURATION of %v", duration)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	logger.Infof("Using CONFIGURATION FILE: %s", configFile)

	config, err := loadAndValidateConfig(configFile)
	if err != nil {
		return err
	}

	summary := GetConfigSummary(config)
	logger.Infof("Configuration loaded, environment: %s, interval: %v, units: %d/%d, accounts: %d, status port: %d",
		summary.Environment, summary.Interval, summary.EnabledUnits, summary.TotalUnits, summary.Accounts, summary.StatusPort)

	sim, err := NewSimulationFromConfig(config)
	if err != nil {
		return errors.NewValidationError("failed to build simulation from configuration", err)
	}

	manager, statePath, err := Setup(config, sim.Collaborators(), logger, events)
	if err != nil {
		return err
	}

	statusServer, err := serve(ctx, config, manager, logger, events)
	if err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig)
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}
	defer signal.Stop(sig)

	logger.Infof("Fund keeper is ready")

	select {
	case receivedSignal := <-sig:
		logger.Infof("Fund keeper runner received signal: %v", receivedSignal)
	case <-ctx.Done():
		logger.Infof("Fund keeper runner timed out")
	}

	// Fresh context: the run context is already done here.
	stopErr := manager.Stop(context.Background())
	if errors.IsTimeoutError(stopErr) {
		logger.Warnf("In-flight tick did not finish within %v, its outcomes are not in the saved state",
			config.Manager.ForceShutdownTimeout)
	}

	if statePath != "" {
		if err := manager.SaveState(statePath); err != nil {
			logger.Errorf("Failed to save state: %v", err)
			if stopErr == nil {
				stopErr = err
			}
		}
	}

	if statusServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Manager.ForceShutdownTimeout)
		statusServer.Shutdown(shutdownCtx)
		cancel()
	}

	logger.Infof("Fund keeper runner stopped")
	return stopErr
}

// serve starts the manager and then its status server. Nothing is left
// running when either fails.
func serve(ctx context.Context, config *Config, manager *Manager, logger logging.Logger, events logcollection.StructuredLogger) (control.Server, error) {
	if err := manager.Start(ctx); err != nil {
		return nil, err
	}
	if config.Manager.StatusPort == 0 {
		return nil, nil
	}

	controlLogger := logging.WithPrefix(logger, "control: ")
	statusServer, err := control.NewServer(control.ServerOptions{Port: config.Manager.StatusPort}, controlLogger)
	if err != nil {
		if stopErr := manager.Stop(context.Background()); stopErr != nil {
			logger.Errorf("Failed to stop fleet manager after status server failure: %v", stopErr)
		}
		return nil, err
	}
	control.RegisterGRPCServerHandler(statusServer.GRPC(), NewStatusHandler(manager), controlLogger, events)
	statusServer.Start()
	return statusServer, nil
}

// ValidateConfigFile validates a configuration file without running it.
func ValidateConfigFile(configFile string) error {
	_, err := loadAndValidateConfig(configFile)
	return err
}

func loadAndValidateConfig(configFile string) (*Config, error) {
	config, err := LoadConfigFromFile(configFile)
	if err != nil {
		return nil, errors.NewIOError("failed to load configuration", err).WithContext("config_file", configFile)
	}
	if err := ValidateConfig(config); err != nil {
		return nil, errors.NewValidationError("configuration validation failed", err).WithContext("config_file", configFile)
	}
	return config, nil
}

func resolveStatePath(config *Config) string {
	return statefile.ResolvePath(config.Manager.StateFile, config.Manager.StateContext)
}
