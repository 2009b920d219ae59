package domain

import (
	"context"
	"encoding/hex"
)

// UnitID identifies a monitored compute unit
type UnitID string

// AccountID identifies a funding account in the account collaborator
type AccountID string

// Budget is an amount of the metered execution resource (cycles)
type Budget uint64

// Account is the part of a funding account the fund keeper needs
type Account struct {
	ID   AccountID
	Seed []byte
}

// Subaccount is a withdrawal sub-account derived from an account seed
type Subaccount [32]byte

func (s Subaccount) String() string {
	return hex.EncodeToString(s[:])
}

// AccountDirectory looks up funding accounts
type AccountDirectory interface {
	Lookup(ctx context.Context, id AccountID) (Account, bool)
}

// Ledger transfers budget from a sub-account into a unit
type Ledger interface {
	Withdraw(ctx context.Context, from Subaccount, to UnitID, amount Budget) error
}

// Minter synthesizes budget from a reserve directly into a unit. Only
// available in production execution contexts.
type Minter interface {
	Mint(ctx context.Context, to UnitID, amount Budget) error
}

// UnitRuntime reports the current budget of a unit
type UnitRuntime interface {
	ObserveBudget(ctx context.Context, id UnitID) (Budget, error)
}
