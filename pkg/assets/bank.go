// Package assets implements the asset holding accounts the ledger debits
// and credits through the clob.Bank capability.
package assets

import (
	"fmt"
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pairbook/pairbook/pkg/clob"
)

// MemoryBank keeps per-holder, per-asset balances in memory. Each venue
// owns one bank; the ephemeral venue's bank is a mirror seeded at
// delegation time.
type MemoryBank struct {
	mu       sync.RWMutex
	balances map[common.Address]map[common.Address]uint64 // holder -> asset -> amount
}

func NewMemoryBank() *MemoryBank {
	return &MemoryBank{
		balances: make(map[common.Address]map[common.Address]uint64),
	}
}

var _ clob.Bank = (*MemoryBank)(nil)

func (b *MemoryBank) holding(holder common.Address) map[common.Address]uint64 {
	h, ok := b.balances[holder]
	if !ok {
		h = make(map[common.Address]uint64)
		b.balances[holder] = h
	}
	return h
}

// Transfer moves amount of asset between holders atomically. Holdings never
// wrap: a destination overflow fails the transfer with no funds moved.
func (b *MemoryBank) Transfer(from, to common.Address, asset common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	src := b.holding(from)
	if src[asset] < amount {
		return clob.ErrInsufficientFunds
	}
	dst := b.holding(to)
	if dst[asset] > math.MaxUint64-amount {
		return clob.ErrCalculationFailure
	}
	src[asset] -= amount
	dst[asset] += amount
	return nil
}

// BalanceOf returns holder's balance of asset.
func (b *MemoryBank) BalanceOf(holder, asset common.Address) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[holder][asset]
}

// Credit mints amount of asset to holder.
func (b *MemoryBank) Credit(holder, asset common.Address, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := b.holding(holder)
	if h[asset] > math.MaxUint64-amount {
		return clob.ErrCalculationFailure
	}
	h[asset] += amount
	return nil
}

// Debit burns amount of asset from holder.
func (b *MemoryBank) Debit(holder, asset common.Address, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := b.holding(holder)
	if h[asset] < amount {
		return fmt.Errorf("debit %d exceeds holding %d", amount, h[asset])
	}
	h[asset] -= amount
	return nil
}

// SetBalance forces holder's balance of asset to target. Delegation
// mirroring and reconciliation use it to align vault holdings with a
// snapshot.
func (b *MemoryBank) SetBalance(holder, asset common.Address, target uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holding(holder)[asset] = target
}
