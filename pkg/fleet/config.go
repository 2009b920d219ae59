package fleet

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/core-tools/hsu-fundkeeper/pkg/domain"
	"github.com/core-tools/hsu-fundkeeper/pkg/errors"
	"github.com/core-tools/hsu-fundkeeper/pkg/logcollection"
	"github.com/core-tools/hsu-fundkeeper/pkg/logging"
	"github.com/core-tools/hsu-fundkeeper/pkg/statefile"
	"github.com/core-tools/hsu-fundkeeper/pkg/strategy"
)

// Config represents the top-level configuration file structure
type Config struct {
	Manager  ManagerConfigOptions `yaml:"manager"`
	Accounts []AccountConfig      `yaml:"accounts,omitempty"`
	Units    []UnitConfig         `yaml:"units"`
}

// ManagerConfigOptions represents manager-level configuration
type ManagerConfigOptions struct {
	Interval             time.Duration                  `yaml:"interval,omitempty"`
	Environment          Environment                    `yaml:"environment,omitempty"`
	ScanConcurrency      int                            `yaml:"scan_concurrency,omitempty"`
	UnitTimeout          time.Duration                  `yaml:"unit_timeout,omitempty"`
	ForceShutdownTimeout time.Duration                  `yaml:"force_shutdown_timeout,omitempty"`
	StatusPort           int                            `yaml:"status_port,omitempty"`
	StateFile            string                         `yaml:"state_file,omitempty"` // "", a path, or "auto"
	StateContext         statefile.ServiceContext       `yaml:"state_context,omitempty"`
	LogLevel             string                         `yaml:"log_level,omitempty"`
	LogFormat            string                         `yaml:"log_format,omitempty"`
	GlobalObtainStrategy *strategy.ObtainStrategyConfig `yaml:"global_obtain_strategy,omitempty"`
}

// AccountConfig seeds the in-memory account directory and ledger.
type AccountConfig struct {
	ID      string `yaml:"id"`
	Seed    string `yaml:"seed"` // hex
	Balance uint64 `yaml:"balance,omitempty"`
}

// UnitConfig represents a single monitored unit
type UnitConfig struct {
	ID      string `yaml:"id"`
	Enabled *bool  `yaml:"enabled,omitempty"` // Pointer to distinguish unset from false

	// Simulated runtime parameters
	InitialBudget      uint64 `yaml:"initial_budget,omitempty"`
	BurnPerObservation uint64 `yaml:"burn_per_observation,omitempty"`

	FundStrategy   strategy.FundStrategyConfig    `yaml:"fund_strategy"`
	ObtainStrategy *strategy.ObtainStrategyConfig `yaml:"obtain_strategy,omitempty"`
}

// IsEnabled reports whether the unit should be monitored.
func (u UnitConfig) IsEnabled() bool {
	return u.Enabled == nil || *u.Enabled
}

// DecodeSeed returns the binary seed of the account.
func (a AccountConfig) DecodeSeed() ([]byte, error) {
	seed, err := hex.DecodeString(a.Seed)
	if err != nil {
		return nil, errors.NewValidationError("account seed is not valid hex", err).WithContext("account_id", a.ID)
	}
	if len(seed) == 0 {
		return nil, errors.NewValidationError("account seed cannot be empty", nil).WithContext("account_id", a.ID)
	}
	return seed, nil
}

// LoadConfigFromFile loads configuration from a YAML file and applies defaults
func LoadConfigFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration and applies defaults
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err)
	}

	setConfigDefaults(&config)
	return &config, nil
}

func setConfigDefaults(config *Config) {
	manager := &config.Manager
	if manager.Interval == 0 {
		manager.Interval = DefaultInterval
	}
	if manager.Environment == "" {
		manager.Environment = EnvironmentLocal
	}
	if manager.ScanConcurrency == 0 {
		manager.ScanConcurrency = 1
	}
	if manager.ForceShutdownTimeout == 0 {
		manager.ForceShutdownTimeout = DefaultForceShutdownTimeout
	}
	if manager.StateContext == "" {
		manager.StateContext = statefile.SystemService
	}
	if manager.LogLevel == "" {
		manager.LogLevel = "info"
	}
	if manager.LogFormat == "" {
		manager.LogFormat = "json"
	}

	for i := range config.Units {
		unit := &config.Units[i]
		if unit.Enabled == nil {
			enabled := true
			unit.Enabled = &enabled
		}
	}
}

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *Config) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if err := validateManagerConfig(&config.Manager); err != nil {
		return errors.NewValidationError("invalid manager configuration", err)
	}

	if err := validateAccountsConfig(config.Accounts); err != nil {
		return errors.NewValidationError("invalid accounts configuration", err)
	}

	if err := validateUnitsConfig(config.Units); err != nil {
		return errors.NewValidationError("invalid units configuration", err)
	}

	if err := validateAccountReferences(config); err != nil {
		return errors.NewValidationError("invalid account references", err)
	}

	return nil
}

func validateManagerConfig(config *ManagerConfigOptions) error {
	if err := ValidateTimeout(config.Interval, "scan interval"); err != nil {
		return err
	}
	if err := ValidateTimeout(config.ForceShutdownTimeout, "force shutdown"); err != nil {
		return err
	}
	if config.UnitTimeout < 0 {
		return errors.NewValidationError("unit timeout cannot be negative", nil)
	}
	if err := ValidateEnvironment(config.Environment); err != nil {
		return err
	}
	if config.ScanConcurrency < 1 {
		return errors.NewValidationError(
			fmt.Sprintf("invalid scan concurrency: %d", config.ScanConcurrency),
			nil,
		).WithContext("minimum", 1)
	}
	if config.StatusPort != 0 {
		if err := ValidatePort(config.StatusPort); err != nil {
			return err
		}
	}
	switch config.StateContext {
	case statefile.SystemService, statefile.UserService:
	default:
		return errors.NewValidationError(fmt.Sprintf("invalid state context: %s", config.StateContext), nil).
			WithContext("valid_contexts", "system, user")
	}
	if _, ok := logcollection.ParseLogLevel(config.LogLevel); !ok {
		return errors.NewValidationError(
			fmt.Sprintf("invalid log level: %s", config.LogLevel),
			nil,
		).WithContext("valid_levels", "debug, info, warn, error")
	}
	if config.LogFormat != "json" && config.LogFormat != "console" {
		return errors.NewValidationError(
			fmt.Sprintf("invalid log format: %s", config.LogFormat),
			nil,
		).WithContext("valid_formats", "json, console")
	}
	if config.GlobalObtainStrategy != nil {
		if _, err := config.GlobalObtainStrategy.Build(); err != nil {
			return errors.NewValidationError("invalid global obtain strategy", err)
		}
	}
	return nil
}

func validateAccountsConfig(accounts []AccountConfig) error {
	errs := errors.NewErrorCollection()
	seenIDs := make(map[string]int)
	for i, account := range accounts {
		if account.ID == "" {
			errs.Add(errors.NewValidationError(fmt.Sprintf("account ID cannot be empty at index %d", i), nil))
			continue
		}
		if prevIndex, exists := seenIDs[account.ID]; exists {
			errs.Add(errors.NewValidationError(
				fmt.Sprintf("duplicate account ID '%s' found at indices %d and %d", account.ID, prevIndex, i),
				nil,
			))
			continue
		}
		seenIDs[account.ID] = i

		if _, err := account.DecodeSeed(); err != nil {
			errs.Add(err)
		}
	}
	return errs.ToError()
}

func validateUnitsConfig(units []UnitConfig) error {
	errs := errors.NewErrorCollection()
	seenIDs := make(map[string]int)
	for i, unit := range units {
		if err := ValidateUnitID(domain.UnitID(unit.ID)); err != nil {
			errs.Add(errors.NewValidationError(
				fmt.Sprintf("invalid unit ID at index %d", i),
				err,
			).WithContext("unit_id", unit.ID))
			continue
		}

		if prevIndex, exists := seenIDs[unit.ID]; exists {
			errs.Add(errors.NewValidationError(
				fmt.Sprintf("duplicate unit ID '%s' found at indices %d and %d", unit.ID, prevIndex, i),
				nil,
			))
			continue
		}
		seenIDs[unit.ID] = i

		if _, err := unit.FundStrategy.Build(); err != nil {
			errs.Add(errors.NewValidationError(
				fmt.Sprintf("invalid fund strategy at index %d", i),
				err,
			).WithContext("unit_id", unit.ID))
		}
		if unit.ObtainStrategy != nil {
			if _, err := unit.ObtainStrategy.Build(); err != nil {
				errs.Add(errors.NewValidationError(
					fmt.Sprintf("invalid obtain strategy at index %d", i),
					err,
				).WithContext("unit_id", unit.ID))
			}
		}
	}
	return errs.ToError()
}

// validateAccountReferences checks that every ledger withdrawal draws from an
// account declared under accounts.
func validateAccountReferences(config *Config) error {
	declared := make(map[string]bool, len(config.Accounts))
	for _, account := range config.Accounts {
		declared[account.ID] = true
	}

	errs := errors.NewErrorCollection()
	check := func(obtain *strategy.ObtainStrategyConfig, owner string) {
		if obtain == nil || obtain.Type != strategy.ObtainTypeWithdrawFromLedger || obtain.Account == "" {
			return
		}
		if !declared[obtain.Account] {
			errs.Add(errors.NewConfigurationError(
				fmt.Sprintf("%s withdraws from undeclared account '%s'", owner, obtain.Account),
				nil,
			).WithContext("account_id", obtain.Account))
		}
	}

	check(config.Manager.GlobalObtainStrategy, "global obtain strategy")
	for _, unit := range config.Units {
		check(unit.ObtainStrategy, fmt.Sprintf("unit '%s'", unit.ID))
	}
	return errs.ToError()
}

// UnitRegistration is a unit ready to be added to a Manager.
type UnitRegistration struct {
	ID     domain.UnitID
	Fund   strategy.FundStrategy
	Obtain strategy.ObtainStrategy
}

// CreateUnitsFromConfig builds registrations for all enabled units
func CreateUnitsFromConfig(config *Config, logger logging.Logger) ([]UnitRegistration, error) {
	if config == nil {
		return nil, errors.NewValidationError("configuration cannot be nil", nil)
	}

	var units []UnitRegistration
	for i, unitConfig := range config.Units {
		if !unitConfig.IsEnabled() {
			logger.Infof("Skipping disabled unit, id: %s", unitConfig.ID)
			continue
		}

		fund, err := unitConfig.FundStrategy.Build()
		if err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("failed to create unit at index %d", i), err).
				WithContext("unit_id", unitConfig.ID)
		}

		var obtain strategy.ObtainStrategy
		if unitConfig.ObtainStrategy != nil {
			obtain, err = unitConfig.ObtainStrategy.Build()
			if err != nil {
				return nil, errors.NewValidationError(fmt.Sprintf("failed to create unit at index %d", i), err).
					WithContext("unit_id", unitConfig.ID)
			}
		}

		units = append(units, UnitRegistration{
			ID:     domain.UnitID(unitConfig.ID),
			Fund:   fund,
			Obtain: obtain,
		})
	}
	return units, nil
}

// ConfigSummary provides a high-level overview of configuration
type ConfigSummary struct {
	Environment  Environment
	Interval     time.Duration
	StatusPort   int
	StateFile    string
	Accounts     int
	TotalUnits   int
	EnabledUnits int
}

func GetConfigSummary(config *Config) ConfigSummary {
	summary := ConfigSummary{
		Environment: config.Manager.Environment,
		Interval:    config.Manager.Interval,
		StatusPort:  config.Manager.StatusPort,
		StateFile:   statefile.ResolvePath(config.Manager.StateFile, config.Manager.StateContext),
		Accounts:    len(config.Accounts),
		TotalUnits:  len(config.Units),
	}
	for _, unit := range config.Units {
		if unit.IsEnabled() {
			summary.EnabledUnits++
		}
	}
	return summary
}
