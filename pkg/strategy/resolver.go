package strategy

import (
	"context"
	"fmt"

	"github.com/core-tools/hsu-fundkeeper/pkg/domain"
	"github.com/core-tools/hsu-fundkeeper/pkg/errors"
	"github.com/core-tools/hsu-fundkeeper/pkg/logging"
)

// Action is an executable replenishment for one unit.
type Action interface {
	Execute(ctx context.Context, unit domain.UnitID, amount domain.Budget) error
	Describe() string
}

// ResolverOptions wires the collaborators a Resolver consults.
type ResolverOptions struct {
	Accounts domain.AccountDirectory
	Ledger   domain.Ledger
	Minter   domain.Minter

	// MintingEnabled is the execution context capability flag. Local
	// contexts leave it false and mint strategies resolve to no action.
	MintingEnabled bool
}

// Resolver turns obtain strategies into actions. It never touches the
// registry; it only reads the account collaborator.
type Resolver struct {
	options ResolverOptions
	logger  logging.Logger
}

func NewResolver(options ResolverOptions, logger logging.Logger) *Resolver {
	return &Resolver{
		options: options,
		logger:  logger,
	}
}

// MintingEnabled reports whether mint strategies can produce actions.
func (r *Resolver) MintingEnabled() bool {
	return r.options.MintingEnabled && r.options.Minter != nil
}

// Resolve maps an obtain strategy to an action. The second result is false
// when nothing should be executed; that is a recoverable condition.
func (r *Resolver) Resolve(ctx context.Context, obtain ObtainStrategy) (Action, bool) {
	switch s := obtain.(type) {
	case nil:
		r.logger.Warnf("No obtain strategy given, treating as disabled")
		return nil, false

	case Disabled:
		return nil, false

	case MintFromReserve:
		if !r.MintingEnabled() {
			r.logger.Infof("Minting is unavailable in this execution context, skipping mint from reserve, account: %s",
				s.SourceAccount)
			return nil, false
		}
		return &mintAction{
			minter:  r.options.Minter,
			account: s.SourceAccount,
		}, true

	case WithdrawFromLedger:
		if r.options.Accounts == nil || r.options.Ledger == nil {
			r.logger.Warnf("Ledger withdrawal is not wired, account: %s", s.SourceAccount)
			return nil, false
		}
		account, found := r.options.Accounts.Lookup(ctx, s.SourceAccount)
		if !found {
			r.logger.Warnf("Account not found, cannot resolve ledger withdrawal, account: %s", s.SourceAccount)
			return nil, false
		}
		return &withdrawAction{
			ledger:  r.options.Ledger,
			account: account.ID,
			from:    SubaccountFromSeed(account.Seed),
		}, true

	default:
		r.logger.Errorf("Unsupported obtain strategy type: %T", obtain)
		return nil, false
	}
}

type mintAction struct {
	minter  domain.Minter
	account domain.AccountID
}

func (a *mintAction) Execute(ctx context.Context, unit domain.UnitID, amount domain.Budget) error {
	if err := a.minter.Mint(ctx, unit, amount); err != nil {
		return errors.NewTransferError("mint from reserve failed", err).
			WithContext("unit_id", string(unit)).
			WithContext("account_id", string(a.account)).
			WithContext("amount", uint64(amount))
	}
	return nil
}

func (a *mintAction) Describe() string {
	return fmt.Sprintf("mint from reserve account %s", a.account)
}

type withdrawAction struct {
	ledger  domain.Ledger
	account domain.AccountID
	from    domain.Subaccount
}

func (a *withdrawAction) Execute(ctx context.Context, unit domain.UnitID, amount domain.Budget) error {
	if err := a.ledger.Withdraw(ctx, a.from, unit, amount); err != nil {
		return errors.NewTransferError("ledger withdrawal failed", err).
			WithContext("unit_id", string(unit)).
			WithContext("account_id", string(a.account)).
			WithContext("subaccount", a.from.String()).
			WithContext("amount", uint64(amount))
	}
	return nil
}

func (a *withdrawAction) Describe() string {
	return fmt.Sprintf("withdraw from account %s subaccount %s", a.account, a.from)
}
