package fleet

import (
	"fmt"
	"time"

	"github.com/core-tools/hsu-fundkeeper/pkg/domain"
	"github.com/core-tools/hsu-fundkeeper/pkg/errors"
)

const maxUnitIDLength = 128

// ValidateUnitID validates unit ID format and constraints
func ValidateUnitID(id domain.UnitID) error {
	if id == "" {
		return errors.NewValidationError("unit ID cannot be empty", nil)
	}

	if len(id) > maxUnitIDLength {
		return errors.NewValidationError(fmt.Sprintf("unit ID cannot exceed %d characters", maxUnitIDLength), nil)
	}

	for _, char := range id {
		if !isValidIDChar(char) {
			return errors.NewValidationError("unit ID contains invalid characters: only letters, numbers, hyphens, underscores, dots and colons are allowed", nil).
				WithContext("unit_id", string(id))
		}
	}

	return nil
}

// ValidatePort validates port number
func ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return errors.NewValidationError("port must be between 1 and 65535", nil)
	}
	return nil
}

// ValidateTimeout validates timeout duration
func ValidateTimeout(timeout time.Duration, name string) error {
	if timeout < 0 {
		return errors.NewValidationError(name+" timeout cannot be negative", nil)
	}

	if timeout == 0 {
		return errors.NewValidationError(name+" timeout cannot be zero", nil)
	}

	return nil
}

// ValidateEnvironment accepts local and production.
func ValidateEnvironment(environment Environment) error {
	switch environment {
	case EnvironmentLocal, EnvironmentProduction:
		return nil
	default:
		return errors.NewValidationError(fmt.Sprintf("invalid environment: %s", environment), nil).
			WithContext("valid_environments", "local, production")
	}
}

func isValidIDChar(char rune) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == '-' || char == '_' || char == '.' || char == ':'
}
