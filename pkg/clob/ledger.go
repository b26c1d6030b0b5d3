package clob

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// MaxOrders bounds each book side.
	MaxOrders = 100
	// MaxUsers bounds the per-ledger free balance set.
	MaxUsers = 50

	seedPrefix = "orderbook"
)

// ID uniquely identifies a ledger; it is a deterministic function of the
// ordered asset pair.
type ID = common.Hash

// PairSeed returns the derivation seed for the ledger of (base, quote).
func PairSeed(base, quote common.Address) []byte {
	seed := make([]byte, 0, len(seedPrefix)+2*common.AddressLength)
	seed = append(seed, seedPrefix...)
	seed = append(seed, base.Bytes()...)
	seed = append(seed, quote.Bytes()...)
	return seed
}

// DeriveID maps a pair seed to the ledger identity.
func DeriveID(seed []byte) ID {
	return crypto.Keccak256Hash(seed)
}

func deriveVault(seed []byte, salt string) common.Address {
	return common.BytesToAddress(crypto.Keccak256(seed, []byte(salt)))
}

// Ledger is the canonical per-asset-pair order book and balance state.
// It carries no locking of its own: the owning venue serializes mutating
// operations, and every operation either fully commits or leaves the ledger
// untouched.
type Ledger struct {
	BaseAsset  common.Address `json:"baseAsset"`
	QuoteAsset common.Address `json:"quoteAsset"`

	// Escrow holdings owned by the ledger, managed only through ledger
	// operations.
	BaseVault  common.Address `json:"baseVault"`
	QuoteVault common.Address `json:"quoteVault"`

	BaseDecimals  uint8 `json:"baseDecimals"`
	QuoteDecimals uint8 `json:"quoteDecimals"`

	Bids []Order `json:"bids"`
	Asks []Order `json:"asks"`

	Authority common.Address `json:"authority"`

	// Next order id; strictly increasing, never reused.
	OrderCounter uint64 `json:"orderCounter"`

	Balances map[common.Address]*UserBalance `json:"balances"`

	Status Status `json:"status"`
}

// NewLedger creates the ledger for an asset pair with derived vault
// holdings, an empty book, and an empty balance set.
func NewLedger(base, quote common.Address, baseDecimals, quoteDecimals uint8, authority common.Address) *Ledger {
	seed := PairSeed(base, quote)
	return &Ledger{
		BaseAsset:     base,
		QuoteAsset:    quote,
		BaseVault:     deriveVault(seed, "base_vault"),
		QuoteVault:    deriveVault(seed, "quote_vault"),
		BaseDecimals:  baseDecimals,
		QuoteDecimals: quoteDecimals,
		Authority:     authority,
		Balances:      make(map[common.Address]*UserBalance),
		Status:        StatusLocal,
	}
}

// ID returns the ledger's deterministic identity.
func (l *Ledger) ID() ID {
	return DeriveID(PairSeed(l.BaseAsset, l.QuoteAsset))
}

func (l *Ledger) nextOrderID() uint64 {
	id := l.OrderCounter
	l.OrderCounter++
	return id
}

// side returns the book side for s. Callers validate s first.
func (l *Ledger) side(s Side) *[]Order {
	if s == Buy {
		return &l.Bids
	}
	return &l.Asks
}

// findOrder locates an order by id across both sides.
func (l *Ledger) findOrder(id uint64) (*Order, Side, int) {
	for i := range l.Bids {
		if l.Bids[i].ID == id {
			return &l.Bids[i], Buy, i
		}
	}
	for i := range l.Asks {
		if l.Asks[i].ID == id {
			return &l.Asks[i], Sell, i
		}
	}
	return nil, 0, -1
}

// GetBalance returns the owner's free balances, zero if no entry exists.
func (l *Ledger) GetBalance(owner common.Address) (base, quote uint64) {
	if b, ok := l.Balances[owner]; ok {
		return b.BaseAmount, b.QuoteAmount
	}
	return 0, 0
}

// creditBalance adds free funds to an owner, creating the entry on first
// credit. Fails with ErrTooManyUsers when the bounded set is full and the
// owner is new.
func (l *Ledger) creditBalance(owner common.Address, base, quote uint64) error {
	b, ok := l.Balances[owner]
	if !ok {
		if len(l.Balances) >= MaxUsers {
			return ErrTooManyUsers
		}
		b = &UserBalance{Owner: owner}
		l.Balances[owner] = b
	}
	newBase, err := addU64(b.BaseAmount, base)
	if err != nil {
		return err
	}
	newQuote, err := addU64(b.QuoteAmount, quote)
	if err != nil {
		return err
	}
	b.BaseAmount, b.QuoteAmount = newBase, newQuote
	return nil
}

// debitBalance removes free funds from an owner; the entry is dropped when
// both amounts reach zero so the bounded set frees capacity.
func (l *Ledger) debitBalance(owner common.Address, base, quote uint64) error {
	b, ok := l.Balances[owner]
	if !ok {
		return ErrUserNotFound
	}
	if b.BaseAmount < base || b.QuoteAmount < quote {
		return ErrInsufficientBalance
	}
	b.BaseAmount -= base
	b.QuoteAmount -= quote
	if b.BaseAmount == 0 && b.QuoteAmount == 0 {
		delete(l.Balances, owner)
	}
	return nil
}

// Clone returns a deep copy. Used for delegation mirroring and for
// all-or-nothing application of multi-order mutations.
func (l *Ledger) Clone() *Ledger {
	cp := *l
	cp.Bids = append([]Order(nil), l.Bids...)
	cp.Asks = append([]Order(nil), l.Asks...)
	cp.Balances = make(map[common.Address]*UserBalance, len(l.Balances))
	for owner, b := range l.Balances {
		bb := *b
		cp.Balances[owner] = &bb
	}
	return &cp
}

// EscrowTotals returns the funds the open book is entitled to: quote escrow
// across bids (price × remaining) and base escrow across asks.
func (l *Ledger) EscrowTotals() (baseEscrow, quoteEscrow uint64, err error) {
	for i := range l.Bids {
		v, err := mulU64(l.Bids[i].Price, l.Bids[i].RemainingAmount)
		if err != nil {
			return 0, 0, err
		}
		quoteEscrow, err = addU64(quoteEscrow, v)
		if err != nil {
			return 0, 0, err
		}
	}
	for i := range l.Asks {
		baseEscrow, err = addU64(baseEscrow, l.Asks[i].RemainingAmount)
		if err != nil {
			return 0, 0, err
		}
	}
	return baseEscrow, quoteEscrow, nil
}

// CheckInvariants verifies that each vault holding equals open-order escrow
// plus free balances for its asset. Vault amounts come from the asset bank.
func (l *Ledger) CheckInvariants(baseVaultAmount, quoteVaultAmount uint64) error {
	baseEscrow, quoteEscrow, err := l.EscrowTotals()
	if err != nil {
		return err
	}
	var freeBase, freeQuote uint64
	for _, b := range l.Balances {
		if freeBase, err = addU64(freeBase, b.BaseAmount); err != nil {
			return err
		}
		if freeQuote, err = addU64(freeQuote, b.QuoteAmount); err != nil {
			return err
		}
	}
	if baseVaultAmount != baseEscrow+freeBase {
		return fmt.Errorf("base vault %d != escrow %d + free %d", baseVaultAmount, baseEscrow, freeBase)
	}
	if quoteVaultAmount != quoteEscrow+freeQuote {
		return fmt.Errorf("quote vault %d != escrow %d + free %d", quoteVaultAmount, quoteEscrow, freeQuote)
	}
	return nil
}
