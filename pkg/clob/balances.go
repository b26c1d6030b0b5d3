package clob

import "github.com/ethereum/go-ethereum/common"

// DepositBalance moves funds from the owner's holding accounts into the
// ledger vaults and credits the owner's free balance by the same amounts.
// A first-time owner gets a balance entry; ErrTooManyUsers when the bounded
// set is full. Both legs commit or neither does: if the base leg fails after
// the quote leg transferred, the quote leg is unwound.
func (l *Ledger) DepositBalance(bank Bank, owner common.Address, quoteAmount, baseAmount uint64) error {
	if quoteAmount == 0 && baseAmount == 0 {
		return nil
	}

	// Validate the credit up front so neither a capacity failure nor a
	// balance overflow can strand funds in the vault.
	if b, ok := l.Balances[owner]; ok {
		if _, err := addU64(b.BaseAmount, baseAmount); err != nil {
			return err
		}
		if _, err := addU64(b.QuoteAmount, quoteAmount); err != nil {
			return err
		}
	} else if len(l.Balances) >= MaxUsers {
		return ErrTooManyUsers
	}

	if quoteAmount > 0 {
		if err := bank.Transfer(owner, l.QuoteVault, l.QuoteAsset, quoteAmount); err != nil {
			return err
		}
	}
	if baseAmount > 0 {
		if err := bank.Transfer(owner, l.BaseVault, l.BaseAsset, baseAmount); err != nil {
			if quoteAmount > 0 {
				// Unwind the quote leg; the vault holds it, so this cannot fail.
				_ = bank.Transfer(l.QuoteVault, owner, l.QuoteAsset, quoteAmount)
			}
			return err
		}
	}

	return l.creditBalance(owner, baseAmount, quoteAmount)
}

// WithdrawFunds debits the owner's free balance and transfers the
// corresponding amounts out of the vaults back to the owner's holding
// accounts. ErrUserNotFound without an existing entry, ErrInsufficientBalance
// when either amount exceeds the free funds; both leave the ledger untouched.
func (l *Ledger) WithdrawFunds(bank Bank, owner common.Address, baseAmount, quoteAmount uint64) error {
	b, ok := l.Balances[owner]
	if !ok {
		return ErrUserNotFound
	}
	if b.BaseAmount < baseAmount || b.QuoteAmount < quoteAmount {
		return ErrInsufficientBalance
	}

	if baseAmount > 0 {
		if err := bank.Transfer(l.BaseVault, owner, l.BaseAsset, baseAmount); err != nil {
			return err
		}
	}
	if quoteAmount > 0 {
		if err := bank.Transfer(l.QuoteVault, owner, l.QuoteAsset, quoteAmount); err != nil {
			if baseAmount > 0 {
				_ = bank.Transfer(owner, l.BaseVault, l.BaseAsset, baseAmount)
			}
			return err
		}
	}

	// Checked above; cannot fail.
	return l.debitBalance(owner, baseAmount, quoteAmount)
}
