package simulation

import (
	"context"
	"fmt"
	"sync"

	"github.com/core-tools/hsu-fundkeeper/pkg/domain"
	"github.com/core-tools/hsu-fundkeeper/pkg/errors"
	"github.com/core-tools/hsu-fundkeeper/pkg/strategy"
)

// Accounts is an in-memory account directory.
type Accounts struct {
	mutex    sync.RWMutex
	accounts map[domain.AccountID]domain.Account
}

func NewAccounts() *Accounts {
	return &Accounts{accounts: make(map[domain.AccountID]domain.Account)}
}

func (a *Accounts) Add(account domain.Account) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.accounts[account.ID] = account
}

func (a *Accounts) Lookup(ctx context.Context, id domain.AccountID) (domain.Account, bool) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	account, exists := a.accounts[id]
	return account, exists
}

// Ledger keeps balances per withdrawal sub-account and credits withdrawn
// budget to the runtime.
type Ledger struct {
	mutex    sync.Mutex
	balances map[domain.Subaccount]domain.Budget
	runtime  *Runtime
}

func NewLedger(runtime *Runtime) *Ledger {
	return &Ledger{
		balances: make(map[domain.Subaccount]domain.Budget),
		runtime:  runtime,
	}
}

// Deposit adds funds to the sub-account derived from seed.
func (l *Ledger) Deposit(seed []byte, amount domain.Budget) domain.Subaccount {
	sub := strategy.SubaccountFromSeed(seed)
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.balances[sub] += amount
	return sub
}

func (l *Ledger) Balance(sub domain.Subaccount) domain.Budget {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.balances[sub]
}

func (l *Ledger) Withdraw(ctx context.Context, from domain.Subaccount, to domain.UnitID, amount domain.Budget) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCancelledError("withdrawal cancelled", err)
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	balance := l.balances[from]
	if balance < amount {
		return errors.NewConflictError(
			fmt.Sprintf("insufficient balance: have %d, need %d", balance, amount),
			nil,
		).WithContext("subaccount", from.String())
	}
	if err := l.runtime.Credit(to, amount); err != nil {
		return err
	}
	l.balances[from] = balance - amount
	return nil
}

// Minter creates budget out of nothing and credits it to the runtime.
type Minter struct {
	mutex   sync.Mutex
	minted  domain.Budget
	runtime *Runtime
}

func NewMinter(runtime *Runtime) *Minter {
	return &Minter{runtime: runtime}
}

func (m *Minter) Mint(ctx context.Context, to domain.UnitID, amount domain.Budget) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCancelledError("mint cancelled", err)
	}
	if err := m.runtime.Credit(to, amount); err != nil {
		return err
	}
	m.mutex.Lock()
	m.minted += amount
	m.mutex.Unlock()
	return nil
}

// Minted returns the total minted so far.
func (m *Minter) Minted() domain.Budget {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.minted
}
