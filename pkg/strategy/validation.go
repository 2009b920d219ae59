package strategy

import (
	"fmt"

	"github.com/core-tools/hsu-fundkeeper/pkg/errors"
)

// ValidateObtainStrategy checks the shape of an obtain strategy.
func ValidateObtainStrategy(obtain ObtainStrategy) error {
	switch s := obtain.(type) {
	case nil:
		return errors.NewValidationError("obtain strategy cannot be nil", nil)
	case Disabled:
		return nil
	case MintFromReserve:
		if s.SourceAccount == "" {
			return errors.NewValidationError("mint from reserve requires a source account", nil)
		}
		return nil
	case WithdrawFromLedger:
		if s.SourceAccount == "" {
			return errors.NewValidationError("withdraw from ledger requires a source account", nil)
		}
		return nil
	default:
		return errors.NewValidationError(fmt.Sprintf("unsupported obtain strategy: %T", obtain), nil)
	}
}

// ValidateFundStrategy checks the shape of a fund strategy.
func ValidateFundStrategy(fund FundStrategy) error {
	switch s := fund.(type) {
	case nil:
		return errors.NewValidationError("fund strategy cannot be nil", nil)
	case Never:
		return nil
	case Always:
		if s.Amount == 0 {
			return errors.NewValidationError("always strategy requires a positive amount", nil)
		}
		return nil
	case BelowThreshold:
		if s.MinBudget == 0 {
			return errors.NewValidationError("below threshold strategy requires a positive min budget", nil)
		}
		if s.TopUpAmount == 0 {
			return errors.NewValidationError("below threshold strategy requires a positive top-up amount", nil)
		}
		return nil
	case BelowEstimatedRuntime:
		if s.MinRuntime <= 0 {
			return errors.NewValidationError("below estimated runtime strategy requires a positive min runtime", nil)
		}
		if s.TopUpRuntime <= 0 && s.FallbackAmount == 0 {
			return errors.NewValidationError("below estimated runtime strategy requires a top-up runtime or a fallback amount", nil)
		}
		if s.TopUpRuntime < 0 {
			return errors.NewValidationError("top-up runtime cannot be negative", nil)
		}
		return nil
	default:
		return errors.NewValidationError(fmt.Sprintf("unsupported fund strategy: %T", fund), nil)
	}
}
