package strategy

import (
	"github.com/zeebo/blake3"

	"github.com/core-tools/hsu-fundkeeper/pkg/domain"
)

// subaccountContext is the BLAKE3 key derivation context. Changing it moves
// every derived withdrawal sub-account.
const subaccountContext = "hsu-fundkeeper 2025-06 withdrawal subaccount v1"

// SubaccountFromSeed derives the withdrawal sub-account of an account.
// Same seed, same sub-account.
func SubaccountFromSeed(seed []byte) domain.Subaccount {
	var subaccount domain.Subaccount
	blake3.DeriveKey(subaccountContext, seed, subaccount[:])
	return subaccount
}
