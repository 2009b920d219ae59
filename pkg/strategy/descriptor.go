package strategy

import (
	"fmt"
	"time"

	"github.com/core-tools/hsu-fundkeeper/pkg/domain"
	"github.com/core-tools/hsu-fundkeeper/pkg/errors"
)

const (
	ObtainTypeDisabled           = "disabled"
	ObtainTypeMintFromReserve    = "mint_from_reserve"
	ObtainTypeWithdrawFromLedger = "withdraw_from_ledger"
)

const (
	FundTypeNever                 = "never"
	FundTypeAlways                = "always"
	FundTypeBelowThreshold        = "below_threshold"
	FundTypeBelowEstimatedRuntime = "below_estimated_runtime"
)

// ObtainStrategyConfig is the serialized form of an obtain strategy, used in
// YAML configuration and in the state file.
type ObtainStrategyConfig struct {
	Type    string `yaml:"type" cbor:"type"`
	Account string `yaml:"account,omitempty" cbor:"account,omitempty"`
}

// Build converts the descriptor into a strategy.
func (c ObtainStrategyConfig) Build() (ObtainStrategy, error) {
	var obtain ObtainStrategy
	switch c.Type {
	case ObtainTypeDisabled:
		obtain = Disabled{}
	case ObtainTypeMintFromReserve:
		obtain = MintFromReserve{SourceAccount: domain.AccountID(c.Account)}
	case ObtainTypeWithdrawFromLedger:
		obtain = WithdrawFromLedger{SourceAccount: domain.AccountID(c.Account)}
	default:
		return nil, errors.NewValidationError(
			fmt.Sprintf("unsupported obtain strategy type: %s", c.Type),
			nil,
		).WithContext("supported_types", "disabled, mint_from_reserve, withdraw_from_ledger")
	}
	if err := ValidateObtainStrategy(obtain); err != nil {
		return nil, err
	}
	return obtain, nil
}

// DescribeObtainStrategy is the inverse of ObtainStrategyConfig.Build.
func DescribeObtainStrategy(obtain ObtainStrategy) ObtainStrategyConfig {
	switch s := obtain.(type) {
	case Disabled:
		return ObtainStrategyConfig{Type: ObtainTypeDisabled}
	case MintFromReserve:
		return ObtainStrategyConfig{Type: ObtainTypeMintFromReserve, Account: string(s.SourceAccount)}
	case WithdrawFromLedger:
		return ObtainStrategyConfig{Type: ObtainTypeWithdrawFromLedger, Account: string(s.SourceAccount)}
	default:
		return ObtainStrategyConfig{}
	}
}

// FundStrategyConfig is the serialized form of a fund strategy.
type FundStrategyConfig struct {
	Type         string        `yaml:"type" cbor:"type"`
	Amount       uint64        `yaml:"amount,omitempty" cbor:"amount,omitempty"`
	MinBudget    uint64        `yaml:"min_budget,omitempty" cbor:"min_budget,omitempty"`
	MinRuntime   time.Duration `yaml:"min_runtime,omitempty" cbor:"min_runtime,omitempty"`
	TopUpRuntime time.Duration `yaml:"top_up_runtime,omitempty" cbor:"top_up_runtime,omitempty"`
}

// Build converts the descriptor into a strategy. For below_estimated_runtime
// Amount is the fallback amount.
func (c FundStrategyConfig) Build() (FundStrategy, error) {
	var fund FundStrategy
	switch c.Type {
	case FundTypeNever:
		fund = Never{}
	case FundTypeAlways:
		fund = Always{Amount: domain.Budget(c.Amount)}
	case FundTypeBelowThreshold:
		fund = BelowThreshold{MinBudget: domain.Budget(c.MinBudget), TopUpAmount: domain.Budget(c.Amount)}
	case FundTypeBelowEstimatedRuntime:
		fund = BelowEstimatedRuntime{
			MinRuntime:     c.MinRuntime,
			TopUpRuntime:   c.TopUpRuntime,
			FallbackAmount: domain.Budget(c.Amount),
		}
	default:
		return nil, errors.NewValidationError(
			fmt.Sprintf("unsupported fund strategy type: %s", c.Type),
			nil,
		).WithContext("supported_types", "never, always, below_threshold, below_estimated_runtime")
	}
	if err := ValidateFundStrategy(fund); err != nil {
		return nil, err
	}
	return fund, nil
}

// DescribeFundStrategy is the inverse of FundStrategyConfig.Build.
func DescribeFundStrategy(fund FundStrategy) FundStrategyConfig {
	switch s := fund.(type) {
	case Never:
		return FundStrategyConfig{Type: FundTypeNever}
	case Always:
		return FundStrategyConfig{Type: FundTypeAlways, Amount: uint64(s.Amount)}
	case BelowThreshold:
		return FundStrategyConfig{Type: FundTypeBelowThreshold, MinBudget: uint64(s.MinBudget), Amount: uint64(s.TopUpAmount)}
	case BelowEstimatedRuntime:
		return FundStrategyConfig{
			Type:         FundTypeBelowEstimatedRuntime,
			MinRuntime:   s.MinRuntime,
			TopUpRuntime: s.TopUpRuntime,
			Amount:       uint64(s.FallbackAmount),
		}
	default:
		return FundStrategyConfig{}
	}
}
