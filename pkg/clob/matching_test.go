package clob_test

import (
	"errors"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pairbook/pairbook/pkg/assets"
	"github.com/pairbook/pairbook/pkg/clob"
)

const unit = uint64(1_000_000) // one whole token at 6 decimals

var (
	baseAsset  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	quoteAsset = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	admin      = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	alice      = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol      = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func newTestLedger(t *testing.T) (*clob.Ledger, *assets.MemoryBank) {
	t.Helper()
	l := clob.NewLedger(baseAsset, quoteAsset, 6, 6, admin)
	bank := assets.NewMemoryBank()
	for _, owner := range []common.Address{alice, bob, carol} {
		bank.Credit(owner, baseAsset, 1_000*unit)
		bank.Credit(owner, quoteAsset, 1_000*unit)
	}
	return l, bank
}

func checkInvariants(t *testing.T, l *clob.Ledger, bank *assets.MemoryBank) {
	t.Helper()
	baseVault := bank.BalanceOf(l.BaseVault, l.BaseAsset)
	quoteVault := bank.BalanceOf(l.QuoteVault, l.QuoteAsset)
	if err := l.CheckInvariants(baseVault, quoteVault); err != nil {
		t.Fatalf("invariant violated: %v", err)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	tests := []struct {
		name    string
		side    clob.Side
		price   uint64
		amount  uint64
		wantErr error
	}{
		{"invalid side", clob.Side(7), 10, 100, clob.ErrInvalidOrderSide},
		{"zero amount", clob.Buy, 10, 0, clob.ErrInvalidOrderAmount},
		{"zero price", clob.Buy, 0, 100, clob.ErrInvalidOrderPrice},
		{"escrow overflow", clob.Buy, math.MaxUint64, 2, clob.ErrCalculationFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, bank := newTestLedger(t)
			_, err := l.CreateOrder(bank, alice, tt.side, tt.price, tt.amount, 0)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CreateOrder() err = %v, want %v", err, tt.wantErr)
			}
			// No state mutation on rejection.
			if len(l.Bids)+len(l.Asks) != 0 || l.OrderCounter != 0 {
				t.Fatalf("rejected order mutated the book")
			}
			if got := bank.BalanceOf(l.QuoteVault, quoteAsset); got != 0 {
				t.Fatalf("rejected order escrowed %d quote units", got)
			}
		})
	}
}

func TestCreateOrderEscrow(t *testing.T) {
	l, bank := newTestLedger(t)

	// Buy at price 1 for 2 units escrows exactly 2 units of quote.
	id, err := l.CreateOrder(bank, alice, clob.Buy, 1, 2*unit, 0)
	if err != nil {
		t.Fatalf("CreateOrder(buy) err = %v", err)
	}
	if got := bank.BalanceOf(l.QuoteVault, quoteAsset); got != 2*unit {
		t.Fatalf("quote vault = %d, want %d", got, 2*unit)
	}
	if l.Bids[0].RemainingAmount != l.Bids[0].OriginalAmount {
		t.Fatalf("new order remaining %d != original %d", l.Bids[0].RemainingAmount, l.Bids[0].OriginalAmount)
	}

	// Sell for 2 units escrows exactly 2 base units.
	id2, err := l.CreateOrder(bank, bob, clob.Sell, unit, 2*unit, 0)
	if err != nil {
		t.Fatalf("CreateOrder(sell) err = %v", err)
	}
	if got := bank.BalanceOf(l.BaseVault, baseAsset); got != 2*unit {
		t.Fatalf("base vault = %d, want %d", got, 2*unit)
	}

	// Ids are unique and strictly increasing across sides.
	if id2 != id+1 {
		t.Fatalf("order ids not strictly increasing: %d then %d", id, id2)
	}
	checkInvariants(t, l, bank)
}

func TestCreateOrderInsufficientFunds(t *testing.T) {
	l, bank := newTestLedger(t)

	_, err := l.CreateOrder(bank, alice, clob.Buy, 2, 1_000*unit, 0)
	if !errors.Is(err, clob.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if l.OrderCounter != 0 || len(l.Bids) != 0 {
		t.Fatalf("failed escrow left book state behind")
	}
}

func TestCreateOrderBookFull(t *testing.T) {
	l, bank := newTestLedger(t)
	bank.Credit(alice, quoteAsset, uint64(clob.MaxOrders)*unit)

	for i := 0; i < clob.MaxOrders; i++ {
		if _, err := l.CreateOrder(bank, alice, clob.Buy, 1, unit, 0); err != nil {
			t.Fatalf("order %d: %v", i, err)
		}
	}

	before := bank.BalanceOf(alice, quoteAsset)
	_, err := l.CreateOrder(bank, alice, clob.Buy, 1, unit, 0)
	if !errors.Is(err, clob.ErrOrderbookFull) {
		t.Fatalf("err = %v, want ErrOrderbookFull", err)
	}
	if got := bank.BalanceOf(alice, quoteAsset); got != before {
		t.Fatalf("rejected order moved funds: %d -> %d", before, got)
	}
	checkInvariants(t, l, bank)
}

// TestMatchOrderBuyTaker covers the settlement convention: the resting
// order's price governs, and the buy side's escrow above that price unwinds
// into its free quote balance.
func TestMatchOrderBuyTaker(t *testing.T) {
	l, bank := newTestLedger(t)

	buyID, err := l.CreateOrder(bank, alice, clob.Buy, 2, 3*unit, 0)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := l.CreateOrder(bank, bob, clob.Sell, 1, 2*unit, 1); err != nil {
		t.Fatalf("sell: %v", err)
	}

	fills, err := l.MatchOrder(alice, buyID)
	if err != nil {
		t.Fatalf("MatchOrder: %v", err)
	}
	if len(fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(fills))
	}
	if fills[0].Price != 1 || fills[0].Amount != 2*unit {
		t.Fatalf("fill at price %d amount %d, want resting price 1 amount %d", fills[0].Price, fills[0].Amount, 2*unit)
	}

	// Buyer receives the base plus the escrow unwound above the resting price.
	gotBase, gotQuote := l.GetBalance(alice)
	if gotBase != 2*unit {
		t.Fatalf("buyer free base = %d, want %d", gotBase, 2*unit)
	}
	if wantRefund := (2 - 1) * 2 * unit; gotQuote != uint64(wantRefund) {
		t.Fatalf("buyer free quote = %d, want refund %d", gotQuote, wantRefund)
	}

	// Seller receives quote at the resting price.
	_, sellerQuote := l.GetBalance(bob)
	if sellerQuote != 1*2*unit {
		t.Fatalf("seller free quote = %d, want %d", sellerQuote, 2*unit)
	}

	// Buy order partially filled, sell order gone.
	if len(l.Bids) != 1 || l.Bids[0].RemainingAmount != unit {
		t.Fatalf("buy remaining = %v, want %d", l.Bids, unit)
	}
	if len(l.Asks) != 0 {
		t.Fatalf("filled sell order still resting")
	}
	checkInvariants(t, l, bank)
}

func TestMatchOrderSellTaker(t *testing.T) {
	l, bank := newTestLedger(t)

	if _, err := l.CreateOrder(bank, alice, clob.Buy, 3, 2*unit, 0); err != nil {
		t.Fatalf("buy: %v", err)
	}
	sellID, err := l.CreateOrder(bank, bob, clob.Sell, 2, 2*unit, 1)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}

	fills, err := l.MatchOrder(bob, sellID)
	if err != nil {
		t.Fatalf("MatchOrder: %v", err)
	}
	if len(fills) != 1 || fills[0].Price != 3 {
		t.Fatalf("fill = %+v, want settlement at resting bid price 3", fills)
	}

	// Seller is paid at the resting bid's price: price improvement goes to
	// the side being matched.
	_, sellerQuote := l.GetBalance(bob)
	if sellerQuote != 3*2*unit {
		t.Fatalf("seller free quote = %d, want %d", sellerQuote, 3*2*unit)
	}
	buyerBase, buyerQuote := l.GetBalance(alice)
	if buyerBase != 2*unit || buyerQuote != 0 {
		t.Fatalf("buyer free = (%d, %d), want (%d, 0)", buyerBase, buyerQuote, 2*unit)
	}
	if len(l.Bids) != 0 || len(l.Asks) != 0 {
		t.Fatalf("fully filled orders still resting")
	}
	checkInvariants(t, l, bank)
}

func TestMatchOrderNoCounter(t *testing.T) {
	l, bank := newTestLedger(t)

	buyID, _ := l.CreateOrder(bank, alice, clob.Buy, 2, unit, 0)
	// Resting ask is priced above the buy's limit: not eligible.
	if _, err := l.CreateOrder(bank, bob, clob.Sell, 5, unit, 1); err != nil {
		t.Fatalf("sell: %v", err)
	}

	fills, err := l.MatchOrder(alice, buyID)
	if err != nil {
		t.Fatalf("no-counter match must succeed, got %v", err)
	}
	if len(fills) != 0 {
		t.Fatalf("fills = %d, want 0", len(fills))
	}
	if len(l.Bids) != 1 || l.Bids[0].RemainingAmount != unit {
		t.Fatalf("order did not stay resting")
	}
	checkInvariants(t, l, bank)
}

func TestMatchOrderErrors(t *testing.T) {
	l, bank := newTestLedger(t)
	buyID, _ := l.CreateOrder(bank, alice, clob.Buy, 2, unit, 0)

	if _, err := l.MatchOrder(alice, 999); !errors.Is(err, clob.ErrOrderNotFound) {
		t.Fatalf("unknown id: err = %v, want ErrOrderNotFound", err)
	}
	if _, err := l.MatchOrder(bob, buyID); !errors.Is(err, clob.ErrNotOrderOwner) {
		t.Fatalf("foreign caller: err = %v, want ErrNotOrderOwner", err)
	}
}

func TestMatchOrderPriceTimePriority(t *testing.T) {
	l, bank := newTestLedger(t)

	// Asks: carol at 2 (later, better price), bob twice at 3 (earlier id wins the tie).
	bobFirst, _ := l.CreateOrder(bank, bob, clob.Sell, 3, unit, 0)
	bobSecond, _ := l.CreateOrder(bank, bob, clob.Sell, 3, unit, 0)
	carolID, _ := l.CreateOrder(bank, carol, clob.Sell, 2, unit, 5)

	buyID, _ := l.CreateOrder(bank, alice, clob.Buy, 3, 3*unit, 6)
	fills, err := l.MatchOrder(alice, buyID)
	if err != nil {
		t.Fatalf("MatchOrder: %v", err)
	}
	if len(fills) != 3 {
		t.Fatalf("fills = %d, want 3", len(fills))
	}
	wantOrder := []uint64{carolID, bobFirst, bobSecond}
	for i, want := range wantOrder {
		if fills[i].MakerOrderID != want {
			t.Fatalf("fill %d against order %d, want %d (best price first, then earliest)", i, fills[i].MakerOrderID, want)
		}
	}
	checkInvariants(t, l, bank)
}

// TestMatchOrderConservation: matching never increases total remaining, and
// base handed out equals base taken in.
func TestMatchOrderConservation(t *testing.T) {
	l, bank := newTestLedger(t)

	if _, err := l.CreateOrder(bank, bob, clob.Sell, 2, 3*unit, 0); err != nil {
		t.Fatalf("sell: %v", err)
	}
	buyID, _ := l.CreateOrder(bank, alice, clob.Buy, 2, 5*unit, 1)

	remainingBefore := totalRemaining(l)
	fills, err := l.MatchOrder(alice, buyID)
	if err != nil {
		t.Fatalf("MatchOrder: %v", err)
	}

	if after := totalRemaining(l); after > remainingBefore {
		t.Fatalf("total remaining grew: %d -> %d", remainingBefore, after)
	}
	var filled uint64
	for _, f := range fills {
		filled += f.Amount
	}
	buyerBase, _ := l.GetBalance(alice)
	if buyerBase != filled {
		t.Fatalf("base credited %d != base filled %d", buyerBase, filled)
	}
	checkInvariants(t, l, bank)
}

// TestMatchOrderAtomicAbort forces a capacity failure mid-match and checks
// that no partial fills persist.
func TestMatchOrderAtomicAbort(t *testing.T) {
	l, bank := newTestLedger(t)

	sellID, _ := l.CreateOrder(bank, bob, clob.Sell, 1, unit, 0)
	if _, err := l.CreateOrder(bank, alice, clob.Buy, 1, unit, 1); err != nil {
		t.Fatalf("buy: %v", err)
	}

	// Fill the balance set with strangers so the fill credits cannot create
	// entries for alice or bob.
	for i := 0; i < clob.MaxUsers; i++ {
		owner := common.BytesToAddress([]byte{byte(i + 1), 0xfe})
		bank.Credit(owner, quoteAsset, unit)
		if err := l.DepositBalance(bank, owner, unit, 0); err != nil {
			t.Fatalf("seed balance %d: %v", i, err)
		}
	}

	before := l.Clone()
	_, err := l.MatchOrder(bob, sellID)
	if !errors.Is(err, clob.ErrTooManyUsers) {
		t.Fatalf("err = %v, want ErrTooManyUsers", err)
	}
	if totalRemaining(l) != totalRemaining(before) || len(l.Bids) != len(before.Bids) || len(l.Asks) != len(before.Asks) {
		t.Fatalf("aborted match left partial fills behind")
	}
	checkInvariants(t, l, bank)
}

func totalRemaining(l *clob.Ledger) uint64 {
	var sum uint64
	for _, o := range l.Bids {
		sum += o.RemainingAmount
	}
	for _, o := range l.Asks {
		sum += o.RemainingAmount
	}
	return sum
}
