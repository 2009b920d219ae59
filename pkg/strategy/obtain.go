package strategy

import (
	"fmt"

	"github.com/core-tools/hsu-fundkeeper/pkg/domain"
)

// ObtainStrategy describes how top-up funds are sourced. The set of
// implementations is closed: Disabled, MintFromReserve and
// WithdrawFromLedger. Consumers switch over all three.
type ObtainStrategy interface {
	isObtainStrategy()
	String() string
}

// Disabled never attempts replenishment; units are only observed.
type Disabled struct{}

// MintFromReserve synthesizes budget from a reserve account.
type MintFromReserve struct {
	SourceAccount domain.AccountID
}

// WithdrawFromLedger pulls budget from the ledger sub-account derived from
// the source account's seed.
type WithdrawFromLedger struct {
	SourceAccount domain.AccountID
}

func (Disabled) isObtainStrategy()           {}
func (MintFromReserve) isObtainStrategy()    {}
func (WithdrawFromLedger) isObtainStrategy() {}

func (Disabled) String() string { return ObtainTypeDisabled }

func (s MintFromReserve) String() string {
	return fmt.Sprintf("%s(account: %s)", ObtainTypeMintFromReserve, s.SourceAccount)
}

func (s WithdrawFromLedger) String() string {
	return fmt.Sprintf("%s(account: %s)", ObtainTypeWithdrawFromLedger, s.SourceAccount)
}

// Describe returns the printable form of an optional strategy.
func Describe(s ObtainStrategy) string {
	if s == nil {
		return "inherit"
	}
	return s.String()
}
