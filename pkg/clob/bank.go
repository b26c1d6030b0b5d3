package clob

import "github.com/ethereum/go-ethereum/common"

// Bank is the asset-transfer capability the ledger treats as a black box.
// Vault holdings are ordinary bank accounts owned by the ledger identity.
// Implementations must return ErrInsufficientFunds when the source holding
// cannot cover the amount; the ledger passes that error through unchanged.
type Bank interface {
	Transfer(from, to common.Address, asset common.Address, amount uint64) error
	BalanceOf(holder, asset common.Address) uint64
}
